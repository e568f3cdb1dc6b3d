package repository_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-git/go-git/v5/plumbing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wahlandcase/appgit/internal/errs"
	"github.com/wahlandcase/appgit/internal/gittest"
	"github.com/wahlandcase/appgit/internal/repository"
)

func newManager(t *testing.T) (*repository.Manager, string) {
	root := t.TempDir()
	return repository.NewManager(root, 10*time.Second, nil), root
}

func TestGetOrCreateInitializesOnce(t *testing.T) {
	m, root := newManager(t)
	ctx := context.Background()

	assert.False(t, m.Exists("app-1"))

	wc, err := m.GetOrCreate(ctx, "app-1", "main")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "app-1"), wc.Path)
	assert.True(t, m.Exists("app-1"))

	head, err := wc.Repo.Storer.Reference(plumbing.HEAD)
	require.NoError(t, err)
	assert.Equal(t, plumbing.NewBranchReferenceName("main"), head.Target())

	again, err := m.GetOrCreate(ctx, "app-1", "ignored")
	require.NoError(t, err)
	assert.Equal(t, wc.Path, again.Path)
}

func TestOpenMissingWorkingCopy(t *testing.T) {
	m, _ := newManager(t)

	_, err := m.Open("nope")
	var nc *errs.NotConnectedError
	assert.True(t, errors.As(err, &nc))
}

func TestRemove(t *testing.T) {
	m, root := newManager(t)
	_, err := m.GetOrCreate(context.Background(), "app-1", "main")
	require.NoError(t, err)

	require.NoError(t, m.Remove("app-1"))
	_, err = os.Stat(filepath.Join(root, "app-1"))
	assert.True(t, os.IsNotExist(err))
	assert.NoError(t, m.Remove("app-1"), "removing twice is fine")
}

func TestRejectsPathLikeIDs(t *testing.T) {
	m, _ := newManager(t)
	for _, id := range []string{"", ".", "..", "a/b", `a\b`} {
		_, err := m.GetOrCreate(context.Background(), id, "main")
		assert.True(t, errs.IsValidation(err), "id %q", id)
	}
}

func TestCloneChecksOutRemoteDefault(t *testing.T) {
	remote := gittest.NewRemote(t)
	tip := gittest.Push(t, remote, "main", "init", map[string]string{"manifest.toml": "formatVersion = 1\n"})

	m, _ := newManager(t)
	wc, err := m.Clone(context.Background(), remote, nil, "app-1")
	require.NoError(t, err)

	head, err := wc.Repo.Head()
	require.NoError(t, err)
	assert.Equal(t, "main", head.Name().Short())
	assert.Equal(t, tip, head.Hash())
	_, err = os.Stat(filepath.Join(wc.Path, "manifest.toml"))
	assert.NoError(t, err)
}

func TestCloneFailureLeavesNoDirectory(t *testing.T) {
	repository.UseInProcessFileTransport()
	m, root := newManager(t)

	_, err := m.Clone(context.Background(), filepath.Join(t.TempDir(), "missing.git"), nil, "app-1")
	require.Error(t, err)
	var rc *errs.RemoteConnectError
	assert.True(t, errors.As(err, &rc), "got %v", err)

	_, statErr := os.Stat(filepath.Join(root, "app-1"))
	assert.True(t, os.IsNotExist(statErr), "partial clone must be removed")
}

func TestCloneEmptyRemote(t *testing.T) {
	remote := gittest.NewRemote(t)
	m, root := newManager(t)

	_, err := m.Clone(context.Background(), remote, nil, "app-1")
	assert.ErrorIs(t, err, repository.ErrEmptyRemote)

	_, statErr := os.Stat(filepath.Join(root, "app-1"))
	assert.True(t, os.IsNotExist(statErr))
}

func TestCloneRefusesExistingWorkingCopy(t *testing.T) {
	remote := gittest.NewRemote(t)
	gittest.Push(t, remote, "main", "init", map[string]string{"a.txt": "a\n"})

	m, _ := newManager(t)
	_, err := m.GetOrCreate(context.Background(), "app-1", "main")
	require.NoError(t, err)

	_, err = m.Clone(context.Background(), remote, nil, "app-1")
	assert.True(t, errs.IsValidation(err))
}

func TestClassifyRemoteError(t *testing.T) {
	err := repository.ClassifyRemoteError("push", "file:///r", context.DeadlineExceeded)
	var rt *errs.RemoteTimeoutError
	assert.True(t, errors.As(err, &rt))

	err = repository.ClassifyRemoteError("push", "file:///r", errors.New("ssh: handshake failed: ssh: unable to authenticate"))
	var ae *errs.AuthenticationError
	assert.True(t, errors.As(err, &ae))

	err = repository.ClassifyRemoteError("push", "file:///r", errors.New("connection refused"))
	assert.True(t, errs.IsRemote(err))
	assert.Nil(t, repository.ClassifyRemoteError("push", "file:///r", nil))
}
