// Package branch maps git branches of a root application to the application
// records that hold each branch's content.
package branch

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/golang/groupcache/lru"
	"github.com/go-git/go-git/v5/plumbing/transport"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/wahlandcase/appgit/internal/errs"
	"github.com/wahlandcase/appgit/internal/git"
	"github.com/wahlandcase/appgit/internal/models"
	"github.com/wahlandcase/appgit/internal/repository"
	"github.com/wahlandcase/appgit/internal/serializer"
	"github.com/wahlandcase/appgit/internal/storage"
)

// Mapper resolves (root application, branch) pairs to application records.
// Callers hold the root application's lock.
type Mapper struct {
	store storage.Store
	repos *repository.Manager
	exec  *git.Executor
	log   *zap.Logger

	mu    sync.Mutex
	cache *lru.Cache
}

func NewMapper(store storage.Store, repos *repository.Manager, exec *git.Executor, cacheSize int, log *zap.Logger) *Mapper {
	if log == nil {
		log = zap.NewNop()
	}
	if cacheSize <= 0 {
		cacheSize = 128
	}
	return &Mapper{
		store: store,
		repos: repos,
		exec:  exec,
		log:   log,
		cache: lru.New(cacheSize),
	}
}

// Root returns the git-enabled root application
func (m *Mapper) Root(ctx context.Context, defaultAppID string) (*models.Application, error) {
	root, err := m.store.GetApplication(ctx, defaultAppID)
	if err != nil {
		if storage.IsNotFoundError(err) {
			return nil, &errs.NotConnectedError{ApplicationID: defaultAppID, Reason: "application not found"}
		}
		return nil, err
	}
	if !root.IsGitEnabled() {
		return nil, &errs.NotConnectedError{ApplicationID: defaultAppID, Reason: "application is not git-enabled"}
	}
	return root, nil
}

// Resolve returns the record tracking branch; an empty branch means the
// default branch
func (m *Mapper) Resolve(ctx context.Context, defaultAppID, branch string) (*models.Application, error) {
	root, err := m.Root(ctx, defaultAppID)
	if err != nil {
		return nil, err
	}
	if branch == "" {
		branch = root.GitMetadata.DefaultBranchName
	}
	if err := git.ValidateBranchName(branch); err != nil {
		return nil, err
	}

	app, err := m.store.FindBranchApplication(ctx, defaultAppID, branch)
	if err != nil {
		if storage.IsNotFoundError(err) {
			return nil, &errs.BranchNotFoundError{Branches: []string{branch}}
		}
		return nil, err
	}
	return app, nil
}

// CreateBranch forks newBranch from the committed state of sourceBranch and
// creates its application record
func (m *Mapper) CreateBranch(ctx context.Context, defaultAppID, newBranch, sourceBranch string) (*models.Application, error) {
	if err := git.ValidateBranchName(newBranch); err != nil {
		return nil, err
	}
	source, err := m.Resolve(ctx, defaultAppID, sourceBranch)
	if err != nil {
		var nf *errs.BranchNotFoundError
		if errors.As(err, &nf) {
			return nil, &errs.SourceBranchNotFoundError{Branch: sourceBranch}
		}
		return nil, err
	}
	wc, err := m.repos.Open(defaultAppID)
	if err != nil {
		return nil, err
	}

	if _, err := m.store.FindBranchApplication(ctx, defaultAppID, newBranch); err == nil {
		return nil, &errs.BranchAlreadyExistsError{Branch: newBranch}
	} else if !storage.IsNotFoundError(err) {
		return nil, err
	}
	if m.exec.BranchExists(wc, newBranch) || m.exec.RemoteBranchExists(wc, newBranch) {
		return nil, &errs.BranchAlreadyExistsError{Branch: newBranch}
	}

	if _, err := m.exec.CreateBranch(wc, newBranch, source.BranchName()); err != nil {
		return nil, err
	}
	if err := m.exec.Checkout(wc, newBranch); err != nil {
		return nil, err
	}

	content, name, err := m.importTree(wc, newBranch, source)
	if err != nil {
		return nil, err
	}
	app := models.NewApplication(uuid.NewString(), name, content)
	app.WorkspaceID = source.WorkspaceID
	meta := source.GitMetadata.ForBranch(newBranch)
	app.GitMetadata = &meta
	m.stampLastCommit(wc, &app)

	if err := m.store.CreateApplication(ctx, &app); err != nil {
		if storage.IsConflictError(err) {
			return nil, &errs.BranchAlreadyExistsError{Branch: newBranch}
		}
		return nil, err
	}
	m.Invalidate(defaultAppID)

	m.log.Info("created branch",
		zap.String("application_id", defaultAppID),
		zap.String("branch", newBranch),
		zap.String("source", source.BranchName()),
		zap.String("branch_application_id", app.ID))
	return &app, nil
}

// Checkout switches the working copy to branch. A branch that only exists on
// the remote is fetched and tracked when fromRemote is set.
func (m *Mapper) Checkout(ctx context.Context, defaultAppID, branch string, fromRemote bool, auth transport.AuthMethod) (*models.Application, error) {
	if err := git.ValidateBranchName(branch); err != nil {
		return nil, err
	}
	root, err := m.Root(ctx, defaultAppID)
	if err != nil {
		return nil, err
	}
	wc, err := m.repos.Open(defaultAppID)
	if err != nil {
		return nil, err
	}

	switch {
	case m.exec.BranchExists(wc, branch):
		if err := m.exec.Checkout(wc, branch); err != nil {
			return nil, err
		}
	case fromRemote:
		if err := m.exec.CheckoutRemote(ctx, wc, branch, auth); err != nil {
			return nil, err
		}
	default:
		return nil, &errs.BranchNotFoundError{Branches: []string{branch}}
	}
	defer m.Invalidate(defaultAppID)

	app, err := m.store.FindBranchApplication(ctx, defaultAppID, branch)
	switch {
	case storage.IsNotFoundError(err):
		content, name, err := m.importTree(wc, branch, root)
		if err != nil {
			return nil, err
		}
		created := models.NewApplication(uuid.NewString(), name, content)
		created.WorkspaceID = root.WorkspaceID
		meta := root.GitMetadata.ForBranch(branch)
		created.GitMetadata = &meta
		m.stampLastCommit(wc, &created)
		if err := m.store.CreateApplication(ctx, &created); err != nil {
			return nil, err
		}
		return &created, nil
	case err != nil:
		return nil, err
	}

	if m.IsClean(wc, app) {
		if err := m.Reimport(ctx, wc, app); err != nil {
			return nil, err
		}
		return app, nil
	}
	m.log.Debug("keeping uncommitted edits on checkout",
		zap.String("application_id", defaultAppID),
		zap.String("branch", branch))
	m.stampLastCommit(wc, app)
	app.UpdatedAt = time.Now().UTC()
	return app, m.store.UpdateApplication(ctx, app)
}

// Reimport replaces the record's content with the tree committed on its
// branch and saves it
func (m *Mapper) Reimport(ctx context.Context, wc *repository.WorkingCopy, app *models.Application) error {
	content, name, err := m.importTree(wc, app.BranchName(), app)
	if err != nil {
		return err
	}
	app.Name = name
	app.Content = content
	app.UpdatedAt = time.Now().UTC()
	m.stampLastCommit(wc, app)
	return m.store.UpdateApplication(ctx, app)
}

// AdoptPendingMerge loads the cleanly merged units of a stopped merge into the
// record, keeping its own version of the conflicting ones. The record is left
// unchanged when the merged tree does not import.
func (m *Mapper) AdoptPendingMerge(ctx context.Context, wc *repository.WorkingCopy, app *models.Application, conflicts []string) error {
	tree, err := m.exec.PendingMergeTree(wc, app.BranchName(), conflicts)
	if err != nil {
		return err
	}
	content, name, err := serializer.Import(tree, app)
	if err != nil {
		m.log.Warn("merged tree does not import, record left as committed",
			zap.String("application_id", app.ID),
			zap.String("branch", app.BranchName()),
			zap.Error(err))
		return nil
	}
	app.Name = name
	app.Content = content
	app.UpdatedAt = time.Now().UTC()
	return m.store.UpdateApplication(ctx, app)
}

// ListBranches lists the default branch first, then other local branches, then
// branches that only exist on the remote. ignoreCache fetches with pruning first.
func (m *Mapper) ListBranches(ctx context.Context, defaultAppID string, ignoreCache bool, auth transport.AuthMethod) ([]models.GitBranch, error) {
	if !ignoreCache {
		if cached, ok := m.cached(defaultAppID); ok {
			return cached, nil
		}
	}

	root, err := m.Root(ctx, defaultAppID)
	if err != nil {
		return nil, err
	}
	wc, err := m.repos.Open(defaultAppID)
	if err != nil {
		return nil, err
	}
	if ignoreCache && m.exec.RemoteURL(wc) != "" {
		if err := m.exec.Fetch(ctx, wc, auth, true); err != nil {
			return nil, err
		}
	}

	local, remote, err := m.exec.Branches(wc)
	if err != nil {
		return nil, err
	}
	branches := orderBranches(root.GitMetadata.DefaultBranchName, local, remote)

	m.mu.Lock()
	m.cache.Add(defaultAppID, branches)
	m.mu.Unlock()
	return append([]models.GitBranch(nil), branches...), nil
}

func (m *Mapper) cached(defaultAppID string) ([]models.GitBranch, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	v, ok := m.cache.Get(defaultAppID)
	if !ok {
		return nil, false
	}
	return append([]models.GitBranch(nil), v.([]models.GitBranch)...), true
}

// Invalidate drops the cached branch list of a root application
func (m *Mapper) Invalidate(defaultAppID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cache.Remove(defaultAppID)
}

func orderBranches(defaultBranch string, local, remote []string) []models.GitBranch {
	isLocal := make(map[string]bool, len(local))
	for _, b := range local {
		isLocal[b] = true
	}
	isRemote := make(map[string]bool, len(remote))
	for _, b := range remote {
		isRemote[b] = true
	}

	branches := []models.GitBranch{{
		Name:      defaultBranch,
		IsDefault: true,
		Local:     isLocal[defaultBranch],
		Remote:    isRemote[defaultBranch],
	}}
	for _, b := range local {
		if b != defaultBranch {
			branches = append(branches, models.GitBranch{Name: b, Local: true, Remote: isRemote[b]})
		}
	}
	for _, b := range remote {
		if b != defaultBranch && !isLocal[b] {
			branches = append(branches, models.GitBranch{Name: b, Remote: true})
		}
	}
	return branches
}

func (m *Mapper) importTree(wc *repository.WorkingCopy, branch string, live *models.Application) (models.ApplicationContent, string, error) {
	tree, err := m.exec.TreeFiles(wc, branch)
	if err != nil {
		return models.ApplicationContent{}, "", err
	}
	return serializer.Import(tree, live)
}

// IsClean reports whether the record matches its branch tip. Records that
// cannot be exported count as dirty.
func (m *Mapper) IsClean(wc *repository.WorkingCopy, app *models.Application) bool {
	tree, err := serializer.Export(app)
	if err != nil {
		return false
	}
	status, err := m.exec.Status(wc, tree, app.BranchName())
	return err == nil && status.IsClean
}

func (m *Mapper) stampLastCommit(wc *repository.WorkingCopy, app *models.Application) {
	tip, err := m.exec.TipCommit(wc, app.BranchName())
	if err != nil {
		return
	}
	committed := tip.CommittedAt.UTC()
	app.GitMetadata.LastCommittedAt = &committed
}
