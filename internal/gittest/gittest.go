// Package gittest builds bare remotes for tests. Remotes are served through
// the in-process file transport, so no git binary is needed.
package gittest

import (
	"errors"
	"path"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-git/go-billy/v5/util"
	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/plumbing/transport"
	"github.com/stretchr/testify/require"

	"github.com/wahlandcase/appgit/internal/repository"
)

// DefaultBranch is the HEAD of every remote created here
const DefaultBranch = "main"

// Signature returns a fixed test author
func Signature() *object.Signature {
	return &object.Signature{Name: "Remote User", Email: "remote@example.com", When: time.Now()}
}

// NewRemote creates an empty bare repository whose HEAD is DefaultBranch and
// returns its path
func NewRemote(t *testing.T) string {
	t.Helper()
	repository.UseInProcessFileTransport()

	dir := filepath.Join(t.TempDir(), "remote.git")
	_, err := git.PlainInitWithOptions(dir, &git.PlainInitOptions{
		InitOptions: git.InitOptions{DefaultBranch: plumbing.NewBranchReferenceName(DefaultBranch)},
		Bare:        true,
	})
	require.NoError(t, err)
	return dir
}

// Push commits files to branch of remote from a scratch clone, as another
// user would. Empty content deletes the file. Returns the new commit hash.
func Push(t *testing.T, remote, branch, msg string, files map[string]string) plumbing.Hash {
	t.Helper()
	repository.UseInProcessFileTransport()

	scratch := t.TempDir()
	repo, err := git.PlainClone(scratch, false, &git.CloneOptions{URL: remote})
	if errors.Is(err, transport.ErrEmptyRemoteRepository) {
		repo, err = git.PlainInitWithOptions(scratch, &git.PlainInitOptions{
			InitOptions: git.InitOptions{DefaultBranch: plumbing.NewBranchReferenceName(branch)},
		})
		require.NoError(t, err)
		_, err = repo.CreateRemote(&config.RemoteConfig{Name: git.DefaultRemoteName, URLs: []string{remote}})
	}
	require.NoError(t, err)

	wt, err := repo.Worktree()
	require.NoError(t, err)

	ref := plumbing.NewBranchReferenceName(branch)
	if head, err := repo.Head(); err == nil && head.Name() != ref {
		opts := &git.CheckoutOptions{Branch: ref, Create: true}
		if tracking, err := repo.Reference(plumbing.NewRemoteReferenceName(git.DefaultRemoteName, branch), true); err == nil {
			opts.Hash = tracking.Hash()
		}
		require.NoError(t, wt.Checkout(opts))
	}

	for p, c := range files {
		if c == "" {
			_, err := wt.Remove(p)
			require.NoError(t, err)
			continue
		}
		if dir := path.Dir(p); dir != "." {
			require.NoError(t, wt.Filesystem.MkdirAll(dir, 0755))
		}
		require.NoError(t, util.WriteFile(wt.Filesystem, p, []byte(c), 0644))
		_, err := wt.Add(p)
		require.NoError(t, err)
	}

	hash, err := wt.Commit(msg, &git.CommitOptions{Author: Signature()})
	require.NoError(t, err)

	spec := config.RefSpec(ref.String() + ":" + ref.String())
	require.NoError(t, repo.Push(&git.PushOptions{RemoteName: git.DefaultRemoteName, RefSpecs: []config.RefSpec{spec}}))
	return hash
}

// DeleteBranch removes branch from remote
func DeleteBranch(t *testing.T, remote, branch string) {
	t.Helper()
	repo, err := git.PlainOpen(remote)
	require.NoError(t, err)
	require.NoError(t, repo.Storer.RemoveReference(plumbing.NewBranchReferenceName(branch)))
}

// Head returns the tip of branch on remote
func Head(t *testing.T, remote, branch string) plumbing.Hash {
	t.Helper()
	repo, err := git.PlainOpen(remote)
	require.NoError(t, err)
	ref, err := repo.Reference(plumbing.NewBranchReferenceName(branch), true)
	require.NoError(t, err)
	return ref.Hash()
}
