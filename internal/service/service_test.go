package service_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/wahlandcase/appgit/internal/errs"
	"github.com/wahlandcase/appgit/internal/git"
	"github.com/wahlandcase/appgit/internal/gittest"
	"github.com/wahlandcase/appgit/internal/models"
	"github.com/wahlandcase/appgit/internal/repository"
	"github.com/wahlandcase/appgit/internal/serializer"
	"github.com/wahlandcase/appgit/internal/service"
	"github.com/wahlandcase/appgit/internal/storage"
)

var ordersAction = serializer.ActionPath("Home", "listOrders")

type env struct {
	t      *testing.T
	ctx    context.Context
	store  *storage.MemoryStore
	repos  *repository.Manager
	svc    *service.GitService
	user   models.User
	remote string
}

func newEnv(t *testing.T) *env {
	e := &env{
		t:     t,
		ctx:   context.Background(),
		store: storage.NewMemoryStore(),
		repos: repository.NewManager(t.TempDir(), 10*time.Second, nil),
		user:  models.User{ID: "u1", Name: "Ann", Email: "ann@example.com"},
	}
	exec := git.New(git.Options{FetchRetries: 1, RetryInterval: time.Millisecond, RemoteTimeout: 10 * time.Second}, nil)
	e.svc = service.New(service.Options{
		Store:           e.store,
		Repos:           e.repos,
		Exec:            exec,
		BranchCacheSize: 8,
	})
	return e
}

// seed stores an application that is not yet git-enabled
func (e *env) seed(id string) *models.Application {
	app := models.NewApplication(id, "Orders", models.ApplicationContent{
		Pages: []models.Page{
			{ID: "p-home", Name: "Home", Slug: "home", IsDefault: true},
		},
		Actions: []models.Action{
			{ID: "a-1", Name: "listOrders", PageName: "Home", PluginType: "DB", Body: "SELECT 1"},
		},
	})
	require.NoError(e.t, e.store.CreateApplication(e.ctx, &app))
	return &app
}

func (e *env) initialized(id string) {
	e.seed(id)
	_, err := e.svc.Initialize(e.ctx, e.user, id, "main")
	require.NoError(e.t, err)
}

func (e *env) connected(id string) {
	e.seed(id)
	e.remote = gittest.NewRemote(e.t)
	_, err := e.svc.Connect(e.ctx, e.user, id, service.ConnectRequest{RemoteURL: e.remote}, "https://apps.example.com/orders")
	require.NoError(e.t, err)
}

func (e *env) record(id, branch string) *models.Application {
	app, err := e.store.FindBranchApplication(e.ctx, id, branch)
	require.NoError(e.t, err)
	return app
}

// edit changes a branch record without committing, as the editor would
func (e *env) edit(id, branch string, fn func(c *models.ApplicationContent)) *models.Application {
	app := e.record(id, branch)
	fn(&app.Content)
	require.NoError(e.t, e.store.UpdateApplication(e.ctx, app))
	return app
}

func (e *env) commit(id, branch, msg string) models.CommitResult {
	res, err := e.svc.Commit(e.ctx, e.user, id, branch, service.CommitRequest{Message: msg})
	require.NoError(e.t, err)
	return res
}

// pushRemote commits app's exported tree to the remote as another user would
func (e *env) pushRemote(branch, msg string, app *models.Application) {
	tree, err := serializer.Export(app)
	require.NoError(e.t, err)
	files := map[string]string{}
	for p, c := range tree {
		files[p] = string(c)
	}
	gittest.Push(e.t, e.remote, branch, msg, files)
}

func setBody(body string) func(c *models.ApplicationContent) {
	return func(c *models.ApplicationContent) { c.Actions[0].Body = body }
}

func setSlug(slug string) func(c *models.ApplicationContent) {
	return func(c *models.ApplicationContent) { c.Pages[0].Slug = slug }
}

// remoteEdit returns a copy of the record with fn applied, without saving it
func (e *env) remoteEdit(id, branch string, fn func(c *models.ApplicationContent)) *models.Application {
	app := e.record(id, branch)
	fn(&app.Content)
	return app
}

func TestInitializeAndCommit(t *testing.T) {
	e := newEnv(t)
	e.initialized("orders")

	root := e.record("orders", "main")
	assert.Equal(t, "orders", root.ID)
	require.NotNil(t, root.GitMetadata.LastCommittedAt)
	assert.False(t, root.GitMetadata.IsConnected())

	_, err := e.svc.Initialize(e.ctx, e.user, "orders", "main")
	assert.True(t, errs.IsValidation(err))

	noop := e.commit("orders", "main", "nothing")
	assert.False(t, noop.Changed)
	assert.Equal(t, "Nothing to commit, working tree clean", noop.String())

	e.edit("orders", "main", setBody("SELECT 2"))
	res := e.commit("orders", "", "")
	assert.True(t, res.Changed)
	assert.Equal(t, service.DefaultCommitMessage, res.Message)

	history, err := e.svc.CommitHistory(e.ctx, "orders", "main")
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, res.Hash, history[0].Hash)
	assert.Equal(t, "Ann", history[0].AuthorName)
	assert.Equal(t, "Initial commit", history[1].Message)

	status, err := e.svc.Status(e.ctx, "orders", "main")
	require.NoError(t, err)
	assert.True(t, status.IsClean)
}

func TestConcurrentCommitsProduceOneCommit(t *testing.T) {
	e := newEnv(t)
	e.initialized("orders")
	e.edit("orders", "main", setBody("SELECT 2"))

	results := make([]models.CommitResult, 4)
	g, ctx := errgroup.WithContext(e.ctx)
	for i := range results {
		g.Go(func() error {
			res, err := e.svc.Commit(ctx, e.user, "orders", "main", service.CommitRequest{Message: "edit"})
			results[i] = res
			return err
		})
	}
	require.NoError(t, g.Wait())

	changed := 0
	for _, r := range results {
		if r.Changed {
			changed++
		}
	}
	assert.Equal(t, 1, changed)

	history, err := e.svc.CommitHistory(e.ctx, "orders", "main")
	require.NoError(t, err)
	assert.Len(t, history, 2)
}

func TestProfileResolution(t *testing.T) {
	e := newEnv(t)
	e.initialized("orders")

	p, err := e.svc.GetProfile(e.ctx, e.user, "orders")
	require.NoError(t, err)
	assert.Equal(t, "Ann", p.AuthorName)
	assert.True(t, p.UseGlobalProfile)

	_, err = e.svc.SaveProfile(e.ctx, e.user, models.NewGitProfile("", "", false), "")
	assert.True(t, errs.IsValidation(err))

	profiles, err := e.svc.SaveProfile(e.ctx, e.user, models.NewGitProfile("Ann G", "ann@global.example", false), "")
	require.NoError(t, err)
	assert.Contains(t, profiles, models.DefaultProfileKey)

	profiles, err = e.svc.SaveProfile(e.ctx, e.user, models.NewGitProfile("Ann W", "ann@work.example", false), "orders")
	require.NoError(t, err)
	assert.Len(t, profiles, 2)

	p, err = e.svc.GetProfile(e.ctx, e.user, "orders")
	require.NoError(t, err)
	assert.Equal(t, models.NewGitProfile("Ann W", "ann@work.example", false), p)

	e.edit("orders", "main", setBody("SELECT 2"))
	e.commit("orders", "main", "as work identity")
	history, err := e.svc.CommitHistory(e.ctx, "orders", "main")
	require.NoError(t, err)
	assert.Equal(t, "ann@work.example", history[0].AuthorEmail)

	_, err = e.svc.SaveProfile(e.ctx, e.user, models.NewGitProfile("", "", true), "orders")
	require.NoError(t, err)
	p, err = e.svc.GetProfile(e.ctx, e.user, "orders")
	require.NoError(t, err)
	assert.Equal(t, "Ann G", p.AuthorName)
	assert.True(t, p.UseGlobalProfile)

	_, err = e.svc.Commit(e.ctx, models.User{ID: "anonymous"}, "orders", "main", service.CommitRequest{})
	assert.True(t, errs.IsValidation(err))
}

func TestDisjointEditsMergeWithMergeCommit(t *testing.T) {
	e := newEnv(t)
	e.initialized("orders")

	feature, err := e.svc.CreateBranch(e.ctx, "orders", "main", "feature")
	require.NoError(t, err)
	assert.Equal(t, "feature", feature.BranchName())

	e.edit("orders", "feature", setBody("SELECT * FROM orders"))
	featureCommit := e.commit("orders", "feature", "change query")
	e.edit("orders", "main", setSlug("start"))
	mainCommit := e.commit("orders", "main", "rename slug")

	status, err := e.svc.MergeStatus(e.ctx, "orders", "feature", "main")
	require.NoError(t, err)
	assert.True(t, status.IsMergeable)
	assert.Equal(t, models.MergeClean, status.Status)
	assert.Empty(t, status.ConflictingFiles)

	result, err := e.svc.Merge(e.ctx, e.user, "orders", "feature", "main")
	require.NoError(t, err)
	assert.True(t, result.Merged())

	history, err := e.svc.CommitHistory(e.ctx, "orders", "main")
	require.NoError(t, err)
	assert.Equal(t, result.Hash, history[0].Hash)
	assert.Equal(t, []string{mainCommit.Hash, featureCommit.Hash}, history[0].Parents)

	main := e.record("orders", "main")
	assert.Equal(t, "start", main.Content.Pages[0].Slug)
	assert.Equal(t, "SELECT * FROM orders", main.Content.Actions[0].Body)

	again, err := e.svc.Merge(e.ctx, e.user, "orders", "feature", "main")
	require.NoError(t, err)
	assert.Equal(t, models.MergeUpToDate, again.Status)
	assert.False(t, again.Merged())
}

func TestSameFieldConflictLeavesDestinationUnchanged(t *testing.T) {
	e := newEnv(t)
	e.initialized("orders")
	_, err := e.svc.CreateBranch(e.ctx, "orders", "main", "feature")
	require.NoError(t, err)

	e.edit("orders", "feature", setBody("SELECT 2"))
	e.commit("orders", "feature", "feature query")
	e.edit("orders", "main", setBody("SELECT 3"))
	e.commit("orders", "main", "main query")
	before, err := e.svc.CommitHistory(e.ctx, "orders", "main")
	require.NoError(t, err)

	status, err := e.svc.MergeStatus(e.ctx, "orders", "feature", "main")
	require.NoError(t, err)
	assert.False(t, status.IsMergeable)
	assert.Equal(t, models.MergeConflicting, status.Status)
	assert.Equal(t, []string{ordersAction}, status.ConflictingFiles)

	_, err = e.svc.Merge(e.ctx, e.user, "orders", "feature", "main")
	var conflict *errs.MergeConflictError
	require.True(t, errors.As(err, &conflict))
	assert.Equal(t, status.ConflictingFiles, conflict.Files)

	after, err := e.svc.CommitHistory(e.ctx, "orders", "main")
	require.NoError(t, err)
	assert.Equal(t, before[0].Hash, after[0].Hash)
	assert.Equal(t, "SELECT 3", e.record("orders", "main").Content.Actions[0].Body)
}

func TestMergePreconditions(t *testing.T) {
	e := newEnv(t)
	e.initialized("orders")
	_, err := e.svc.CreateBranch(e.ctx, "orders", "main", "feature")
	require.NoError(t, err)

	_, err = e.svc.MergeStatus(e.ctx, "orders", "main", "main")
	assert.True(t, errs.IsValidation(err))
	_, err = e.svc.Merge(e.ctx, e.user, "orders", "feature", "bad..name")
	assert.True(t, errs.IsValidation(err))
	_, err = e.svc.Merge(e.ctx, e.user, "orders", "ghost", "main")
	var nf *errs.BranchNotFoundError
	assert.True(t, errors.As(err, &nf))

	e.edit("orders", "feature", setBody("SELECT 2"))
	e.commit("orders", "feature", "feature query")
	e.edit("orders", "main", setSlug("dirty"))

	status, err := e.svc.MergeStatus(e.ctx, "orders", "feature", "main")
	require.NoError(t, err)
	assert.False(t, status.IsMergeable)
	assert.Contains(t, status.Message, "uncommitted")

	_, err = e.svc.Merge(e.ctx, e.user, "orders", "feature", "main")
	assert.True(t, errs.IsValidation(err))
}

func TestBranchNamesAreUniquePerRoot(t *testing.T) {
	e := newEnv(t)
	e.initialized("orders")
	e.initialized("billing")

	a, err := e.svc.CreateBranch(e.ctx, "orders", "main", "feature")
	require.NoError(t, err)
	b, err := e.svc.CreateBranch(e.ctx, "billing", "main", "feature")
	require.NoError(t, err)
	assert.NotEqual(t, a.ID, b.ID)

	_, err = e.svc.CreateBranch(e.ctx, "orders", "main", "feature")
	var exists *errs.BranchAlreadyExistsError
	assert.True(t, errors.As(err, &exists))

	_, err = e.svc.CreateBranch(e.ctx, "orders", "ghost", "other")
	var missing *errs.SourceBranchNotFoundError
	assert.True(t, errors.As(err, &missing))
}

func TestConnectPushesInitialCommit(t *testing.T) {
	e := newEnv(t)
	e.connected("orders")

	root := e.record("orders", "main")
	assert.Equal(t, e.remote, root.GitMetadata.RemoteURL)
	assert.Equal(t, "remote", root.GitMetadata.RepositoryName)
	require.NotNil(t, root.GitMetadata.LastCommittedAt)

	history, err := e.svc.CommitHistory(e.ctx, "orders", "main")
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, history[0].Hash, gittest.Head(t, e.remote, "main").String())

	meta, err := e.svc.GetMetadata(e.ctx, "orders")
	require.NoError(t, err)
	assert.True(t, meta.IsDefaultBranch())

	_, err = e.svc.Connect(e.ctx, e.user, "orders", service.ConnectRequest{RemoteURL: gittest.NewRemote(t)}, "")
	assert.True(t, errs.IsValidation(err))
}

func TestConnectAfterInitialize(t *testing.T) {
	e := newEnv(t)
	e.initialized("orders")
	_, err := e.svc.Push(e.ctx, "orders", "main")
	var nc *errs.NotConnectedError
	assert.True(t, errors.As(err, &nc))

	e.remote = gittest.NewRemote(t)
	profile := models.NewGitProfile("Ann W", "ann@work.example", false)
	_, err = e.svc.Connect(e.ctx, e.user, "orders", service.ConnectRequest{RemoteURL: e.remote, Profile: &profile}, "")
	require.NoError(t, err)

	history, err := e.svc.CommitHistory(e.ctx, "orders", "main")
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, "ann@work.example", history[0].AuthorEmail)
	assert.Equal(t, history[0].Hash, gittest.Head(t, e.remote, "main").String())
}

func TestConnectRejectsNonEmptyRemote(t *testing.T) {
	e := newEnv(t)
	e.seed("orders")
	remote := gittest.NewRemote(t)
	gittest.Push(t, remote, "main", "existing", map[string]string{"README.md": "taken"})

	_, err := e.svc.Connect(e.ctx, e.user, "orders", service.ConnectRequest{RemoteURL: remote}, "")
	assert.True(t, errs.IsValidation(err))
	assert.False(t, e.repos.Exists("orders"))

	app, err := e.store.GetApplication(e.ctx, "orders")
	require.NoError(t, err)
	assert.False(t, app.IsGitEnabled())

	_, err = e.svc.Connect(e.ctx, e.user, "orders", service.ConnectRequest{}, "")
	assert.True(t, errs.IsValidation(err))
}

func TestPushAndPull(t *testing.T) {
	e := newEnv(t)
	e.connected("orders")

	e.pushRemote("main", "remote slug", e.remoteEdit("orders", "main", setSlug("remote")))
	result, err := e.svc.Pull(e.ctx, e.user, "orders", "main")
	require.NoError(t, err)
	assert.Equal(t, models.PullUpdated, result.Status)
	assert.Equal(t, 1, result.CommitCount)
	assert.Equal(t, "remote", e.record("orders", "main").Content.Pages[0].Slug)

	again, err := e.svc.Pull(e.ctx, e.user, "orders", "main")
	require.NoError(t, err)
	assert.Equal(t, models.PullUpToDate, again.Status)

	e.edit("orders", "main", setBody("SELECT 2"))
	res, err := e.svc.Commit(e.ctx, e.user, "orders", "main", service.CommitRequest{Message: "query", DoPush: true})
	require.NoError(t, err)
	assert.True(t, res.Changed)
	assert.True(t, res.Pushed)
	assert.Equal(t, res.Hash, gittest.Head(t, e.remote, "main").String())

	msg, err := e.svc.Push(e.ctx, "orders", "main")
	require.NoError(t, err)
	assert.Equal(t, "Everything up-to-date", msg)
}

func TestPullRejectsUncommittedEdits(t *testing.T) {
	e := newEnv(t)
	e.connected("orders")
	e.edit("orders", "main", setBody("SELECT 2"))

	_, err := e.svc.Pull(e.ctx, e.user, "orders", "main")
	assert.True(t, errs.IsValidation(err))
}

func TestNonFastForwardPushThenPullMerge(t *testing.T) {
	e := newEnv(t)
	e.connected("orders")

	e.pushRemote("main", "remote slug", e.remoteEdit("orders", "main", setSlug("remote")))
	e.edit("orders", "main", setBody("SELECT 2"))
	res, err := e.svc.Commit(e.ctx, e.user, "orders", "main", service.CommitRequest{Message: "query", DoPush: true})
	var nff *errs.NonFastForwardError
	require.True(t, errors.As(err, &nff))
	assert.True(t, res.Changed)
	assert.False(t, res.Pushed)

	result, err := e.svc.Pull(e.ctx, e.user, "orders", "main")
	require.NoError(t, err)
	assert.Equal(t, models.PullMerged, result.Status)
	assert.True(t, result.MergeCommit)

	main := e.record("orders", "main")
	assert.Equal(t, "remote", main.Content.Pages[0].Slug)
	assert.Equal(t, "SELECT 2", main.Content.Actions[0].Body)

	msg, err := e.svc.Push(e.ctx, "orders", "main")
	require.NoError(t, err)
	assert.Contains(t, msg, "main")
}

func TestPullConflictResolvedByCommit(t *testing.T) {
	e := newEnv(t)
	e.connected("orders")

	e.pushRemote("main", "remote query", e.remoteEdit("orders", "main", setBody("SELECT 2")))
	e.edit("orders", "main", setBody("SELECT 3"))
	e.commit("orders", "main", "local query")

	result, err := e.svc.Pull(e.ctx, e.user, "orders", "main")
	var conflict *errs.MergeConflictError
	require.True(t, errors.As(err, &conflict))
	assert.Equal(t, models.PullConflicted, result.Status)
	assert.Equal(t, []string{ordersAction}, result.ConflictingFiles)
	assert.Equal(t, "SELECT 3", e.record("orders", "main").Content.Actions[0].Body)

	status, err := e.svc.Status(e.ctx, "orders", "main")
	require.NoError(t, err)
	assert.True(t, status.MergePending)
	assert.False(t, status.IsClean)

	_, err = e.svc.Push(e.ctx, "orders", "main")
	assert.True(t, errs.IsValidation(err))
	_, err = e.svc.CreateBranch(e.ctx, "orders", "main", "feature")
	assert.True(t, errs.IsValidation(err))

	resolved := e.commit("orders", "main", "resolve")
	assert.True(t, resolved.Changed)
	history, err := e.svc.CommitHistory(e.ctx, "orders", "main")
	require.NoError(t, err)
	assert.True(t, history[0].IsMerge())

	_, err = e.svc.Push(e.ctx, "orders", "main")
	require.NoError(t, err)
	assert.Equal(t, resolved.Hash, gittest.Head(t, e.remote, "main").String())
}

func TestPullConflictKeepsCleanRemoteChanges(t *testing.T) {
	e := newEnv(t)
	e.connected("orders")

	remote := e.remoteEdit("orders", "main", setBody("SELECT 2"))
	setSlug("remote-slug")(&remote.Content)
	e.pushRemote("main", "remote query and slug", remote)
	e.edit("orders", "main", setBody("SELECT 3"))
	e.commit("orders", "main", "local query")

	result, err := e.svc.Pull(e.ctx, e.user, "orders", "main")
	require.Error(t, err)
	assert.Equal(t, []string{ordersAction}, result.ConflictingFiles)

	main := e.record("orders", "main")
	assert.Equal(t, "remote-slug", main.Content.Pages[0].Slug)
	assert.Equal(t, "SELECT 3", main.Content.Actions[0].Body)

	status, err := e.svc.Status(e.ctx, "orders", "main")
	require.NoError(t, err)
	assert.True(t, status.MergePending)
	assert.Equal(t, []string{serializer.PagePath("Home")}, status.Modified)

	res, err := e.svc.Commit(e.ctx, e.user, "orders", "main", service.CommitRequest{Message: "resolve", DoPush: true})
	require.NoError(t, err)
	assert.True(t, res.Pushed)

	committed, err := e.svc.Status(e.ctx, "orders", "main")
	require.NoError(t, err)
	assert.True(t, committed.IsClean)
	assert.False(t, committed.MergePending)
	assert.Equal(t, 0, committed.Behind)
	assert.Equal(t, "remote-slug", e.record("orders", "main").Content.Pages[0].Slug)
	assert.Equal(t, res.Hash, gittest.Head(t, e.remote, "main").String())
}

func TestPullConflictDiscarded(t *testing.T) {
	e := newEnv(t)
	e.connected("orders")

	e.pushRemote("main", "remote query", e.remoteEdit("orders", "main", setBody("SELECT 2")))
	e.edit("orders", "main", setBody("SELECT 3"))
	local := e.commit("orders", "main", "local query")

	_, err := e.svc.Pull(e.ctx, e.user, "orders", "main")
	require.Error(t, err)

	app, err := e.svc.Discard(e.ctx, "orders", "main")
	require.NoError(t, err)
	assert.Equal(t, "SELECT 3", app.Content.Actions[0].Body)

	status, err := e.svc.Status(e.ctx, "orders", "main")
	require.NoError(t, err)
	assert.False(t, status.MergePending)
	assert.True(t, status.IsClean)
	assert.Equal(t, 1, status.Ahead)
	assert.Equal(t, 1, status.Behind)

	history, err := e.svc.CommitHistory(e.ctx, "orders", "main")
	require.NoError(t, err)
	assert.Equal(t, local.Hash, history[0].Hash)
}

func TestDiscardRestoresCommittedContent(t *testing.T) {
	e := newEnv(t)
	e.initialized("orders")
	e.edit("orders", "main", setSlug("draft"))

	status, err := e.svc.Status(e.ctx, "orders", "main")
	require.NoError(t, err)
	assert.Equal(t, []string{serializer.PagePath("Home")}, status.Modified)

	app, err := e.svc.Discard(e.ctx, "orders", "main")
	require.NoError(t, err)
	assert.Equal(t, "home", app.Content.Pages[0].Slug)
	assert.Equal(t, "home", e.record("orders", "main").Content.Pages[0].Slug)
}

func TestListBranchesPrunesDeletedRemoteBranches(t *testing.T) {
	e := newEnv(t)
	e.connected("orders")
	_, err := e.svc.CreateBranch(e.ctx, "orders", "main", "feature")
	require.NoError(t, err)
	gittest.Push(t, e.remote, "stale", "stale work", map[string]string{"notes.txt": "x"})

	branches, err := e.svc.ListBranches(e.ctx, "orders", true)
	require.NoError(t, err)
	assert.Equal(t, []models.GitBranch{
		{Name: "main", IsDefault: true, Local: true, Remote: true},
		{Name: "feature", Local: true},
		{Name: "stale", Remote: true},
	}, branches)

	gittest.DeleteBranch(t, e.remote, "stale")
	cached, err := e.svc.ListBranches(e.ctx, "orders", false)
	require.NoError(t, err)
	assert.Equal(t, branches, cached)

	refreshed, err := e.svc.ListBranches(e.ctx, "orders", true)
	require.NoError(t, err)
	assert.Equal(t, []models.GitBranch{
		{Name: "main", IsDefault: true, Local: true, Remote: true},
		{Name: "feature", Local: true},
	}, refreshed)
}

func TestCheckoutRemoteBranch(t *testing.T) {
	e := newEnv(t)
	e.connected("orders")
	e.pushRemote("shared", "shared work", e.remoteEdit("orders", "main", setSlug("shared")))

	_, err := e.svc.CheckoutBranch(e.ctx, "orders", "shared", false)
	var nf *errs.BranchNotFoundError
	assert.True(t, errors.As(err, &nf))

	app, err := e.svc.CheckoutBranch(e.ctx, "orders", "shared", true)
	require.NoError(t, err)
	assert.Equal(t, "shared", app.BranchName())
	assert.Equal(t, "orders", app.DefaultApplicationID())
	assert.Equal(t, "shared", app.Content.Pages[0].Slug)

	back, err := e.svc.CheckoutBranch(e.ctx, "orders", "main", false)
	require.NoError(t, err)
	assert.Equal(t, "home", back.Content.Pages[0].Slug)
}

func TestDisconnect(t *testing.T) {
	e := newEnv(t)
	e.connected("orders")
	feature, err := e.svc.CreateBranch(e.ctx, "orders", "main", "feature")
	require.NoError(t, err)
	e.edit("orders", "main", setBody("SELECT 2"))
	local := e.commit("orders", "main", "local query")

	root, err := e.svc.Disconnect(e.ctx, "orders")
	require.NoError(t, err)
	assert.True(t, root.IsGitEnabled())
	assert.Empty(t, root.GitMetadata.RemoteURL)
	assert.Empty(t, root.GitMetadata.GitAuthRef)
	assert.Equal(t, "main", root.GitMetadata.DefaultBranchName)
	assert.True(t, e.repos.Exists("orders"))

	meta, err := e.svc.GetMetadata(e.ctx, "orders")
	require.NoError(t, err)
	assert.False(t, meta.IsConnected())
	assert.Equal(t, "remote", meta.RepositoryName)

	branch, err := e.store.GetApplication(e.ctx, feature.ID)
	require.NoError(t, err)
	assert.False(t, branch.GitMetadata.IsConnected())

	history, err := e.svc.CommitHistory(e.ctx, "orders", "main")
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, local.Hash, history[0].Hash)

	status, err := e.svc.Status(e.ctx, "orders", "main")
	require.NoError(t, err)
	assert.True(t, status.IsClean)
	assert.False(t, status.RemoteTracked)

	var nc *errs.NotConnectedError
	_, err = e.svc.Push(e.ctx, "orders", "main")
	assert.True(t, errors.As(err, &nc))
	_, err = e.svc.Disconnect(e.ctx, "orders")
	assert.True(t, errors.As(err, &nc))

	e.edit("orders", "main", setBody("SELECT 3"))
	res, err := e.svc.Commit(e.ctx, e.user, "orders", "main", service.CommitRequest{Message: "offline"})
	require.NoError(t, err)
	assert.True(t, res.Changed)
}
