package git

import (
	"errors"
	"sort"
	"strings"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/storage/filesystem"

	"github.com/wahlandcase/appgit/internal/errs"
	"github.com/wahlandcase/appgit/internal/repository"
)

// CurrentBranch returns the branch HEAD points at, even when it has no commits yet
func (e *Executor) CurrentBranch(wc *repository.WorkingCopy) (string, error) {
	head, err := wc.Repo.Storer.Reference(plumbing.HEAD)
	if err != nil {
		return "", gitError("rev-parse HEAD", err)
	}
	if head.Type() == plumbing.SymbolicReference {
		return head.Target().Short(), nil
	}
	return "", &errs.GitError{Command: "rev-parse HEAD", Output: "HEAD is detached"}
}

// DetectDefaultBranch determines the remote's default branch from the
// tracking refs, preferring the remote HEAD, then main, then master
func (e *Executor) DetectDefaultBranch(wc *repository.WorkingCopy) (string, error) {
	remoteHead := plumbing.NewRemoteHEADReferenceName(e.opts.RemoteName)
	if ref, err := wc.Repo.Storer.Reference(remoteHead); err == nil && ref.Type() == plumbing.SymbolicReference {
		return strings.TrimPrefix(ref.Target().Short(), e.opts.RemoteName+"/"), nil
	}

	refs, err := wc.Repo.References()
	if err != nil {
		return "main", nil
	}

	var hasRemoteMain, hasRemoteMaster, hasLocalMain, hasLocalMaster bool
	_ = refs.ForEach(func(ref *plumbing.Reference) error {
		switch ref.Name() {
		case plumbing.NewRemoteReferenceName(e.opts.RemoteName, "main"):
			hasRemoteMain = true
		case plumbing.NewRemoteReferenceName(e.opts.RemoteName, "master"):
			hasRemoteMaster = true
		case plumbing.Main:
			hasLocalMain = true
		case plumbing.Master:
			hasLocalMaster = true
		}
		return nil
	})

	// Prefer remote refs
	if hasRemoteMain {
		return "main", nil
	}
	if hasRemoteMaster {
		return "master", nil
	}

	// Fall back to local refs
	if hasLocalMain {
		return "main", nil
	}
	if hasLocalMaster {
		return "master", nil
	}

	// Unborn HEAD names the branch the first commit will create
	if branch, err := e.CurrentBranch(wc); err == nil {
		return branch, nil
	}
	return "main", nil
}

// BranchTip returns the commit a local branch points at
func (e *Executor) BranchTip(wc *repository.WorkingCopy, branch string) (plumbing.Hash, error) {
	ref, err := wc.Repo.Reference(plumbing.NewBranchReferenceName(branch), true)
	if err != nil {
		if errors.Is(err, plumbing.ErrReferenceNotFound) {
			return plumbing.ZeroHash, &errs.BranchNotFoundError{Branches: []string{branch}}
		}
		return plumbing.ZeroHash, gitError("rev-parse "+branch, err)
	}
	return ref.Hash(), nil
}

// remoteTip returns the tip of the remote tracking branch, or ZeroHash
func (e *Executor) remoteTip(wc *repository.WorkingCopy, branch string) plumbing.Hash {
	ref, err := wc.Repo.Reference(plumbing.NewRemoteReferenceName(e.opts.RemoteName, branch), true)
	if err != nil {
		return plumbing.ZeroHash
	}
	return ref.Hash()
}

// BranchExists checks if a local branch exists
func (e *Executor) BranchExists(wc *repository.WorkingCopy, branch string) bool {
	_, err := wc.Repo.Reference(plumbing.NewBranchReferenceName(branch), true)
	return err == nil
}

// RemoteBranchExists checks if a remote tracking branch exists
func (e *Executor) RemoteBranchExists(wc *repository.WorkingCopy, branch string) bool {
	return !e.remoteTip(wc, branch).IsZero()
}

// Branches lists local branches and remote tracking branches, each sorted
func (e *Executor) Branches(wc *repository.WorkingCopy) (local, remote []string, err error) {
	refs, err := wc.Repo.References()
	if err != nil {
		return nil, nil, gitError("for-each-ref", err)
	}

	prefix := "refs/remotes/" + e.opts.RemoteName + "/"
	err = refs.ForEach(func(ref *plumbing.Reference) error {
		name := ref.Name()
		switch {
		case name.IsBranch():
			local = append(local, name.Short())
		case strings.HasPrefix(name.String(), prefix):
			short := strings.TrimPrefix(name.String(), prefix)
			if short != "HEAD" {
				remote = append(remote, short)
			}
		}
		return nil
	})
	if err != nil {
		return nil, nil, gitError("for-each-ref", err)
	}

	sort.Strings(local)
	sort.Strings(remote)
	return local, remote, nil
}

// CreateBranch creates newBranch at the tip of fromBranch without checking it out
func (e *Executor) CreateBranch(wc *repository.WorkingCopy, newBranch, fromBranch string) (plumbing.Hash, error) {
	tip, err := e.BranchTip(wc, fromBranch)
	if err != nil {
		var nf *errs.BranchNotFoundError
		if errors.As(err, &nf) {
			return plumbing.ZeroHash, &errs.SourceBranchNotFoundError{Branch: fromBranch}
		}
		return plumbing.ZeroHash, err
	}
	if e.BranchExists(wc, newBranch) {
		return plumbing.ZeroHash, &errs.BranchAlreadyExistsError{Branch: newBranch}
	}

	ref := plumbing.NewHashReference(plumbing.NewBranchReferenceName(newBranch), tip)
	if err := wc.Repo.Storer.SetReference(ref); err != nil {
		return plumbing.ZeroHash, gitError("branch "+newBranch, err)
	}
	return tip, nil
}

// Checkout switches the working copy to branch, discarding working-tree
// edits: application records hold uncommitted content, not the working copy.
// A branch with no commits yet is accepted when HEAD already points at it.
func (e *Executor) Checkout(wc *repository.WorkingCopy, branch string) error {
	if !e.BranchExists(wc, branch) {
		if current, err := e.CurrentBranch(wc); err == nil && current == branch {
			if _, err := wc.Repo.Head(); errors.Is(err, plumbing.ErrReferenceNotFound) {
				return nil
			}
		}
		return &errs.BranchNotFoundError{Branches: []string{branch}}
	}

	wt, err := wc.Worktree()
	if err != nil {
		return err
	}
	err = wt.Checkout(&git.CheckoutOptions{
		Branch: plumbing.NewBranchReferenceName(branch),
		Force:  true,
	})
	return gitError("checkout "+branch, err)
}

// TrackBranch records branch's upstream on the configured remote
func (e *Executor) TrackBranch(wc *repository.WorkingCopy, branch string) error {
	cfg, err := wc.Repo.Config()
	if err != nil {
		return gitError("config", err)
	}
	cfg.Branches[branch] = &config.Branch{
		Name:   branch,
		Remote: e.opts.RemoteName,
		Merge:  plumbing.NewBranchReferenceName(branch),
	}
	return gitError("config", wc.Repo.SetConfig(cfg))
}

// AddRemote points the configured remote at url, replacing any previous URL
func (e *Executor) AddRemote(wc *repository.WorkingCopy, url string) error {
	err := wc.Repo.DeleteRemote(e.opts.RemoteName)
	if err != nil && !errors.Is(err, git.ErrRemoteNotFound) {
		return gitError("remote remove", err)
	}
	_, err = wc.Repo.CreateRemote(&config.RemoteConfig{
		Name: e.opts.RemoteName,
		URLs: []string{url},
	})
	return gitError("remote add", err)
}

// RemoteURL returns the URL of the configured remote, or "" when detached
func (e *Executor) RemoteURL(wc *repository.WorkingCopy) string {
	remote, err := wc.Repo.Remote(e.opts.RemoteName)
	if err != nil || len(remote.Config().URLs) == 0 {
		return ""
	}
	return remote.Config().URLs[0]
}

// RemoveRemote detaches the working copy: the remote, its tracking refs and
// all upstream configuration are removed. Local history is kept.
func (e *Executor) RemoveRemote(wc *repository.WorkingCopy) error {
	err := wc.Repo.DeleteRemote(e.opts.RemoteName)
	if err != nil && !errors.Is(err, git.ErrRemoteNotFound) {
		return gitError("remote remove", err)
	}

	cfg, err := wc.Repo.Config()
	if err != nil {
		return gitError("config", err)
	}
	for name, b := range cfg.Branches {
		if b.Remote == e.opts.RemoteName {
			delete(cfg.Branches, name)
		}
	}
	if err := wc.Repo.SetConfig(cfg); err != nil {
		return gitError("config", err)
	}

	refs, err := wc.Repo.References()
	if err != nil {
		return gitError("for-each-ref", err)
	}
	prefix := "refs/remotes/" + e.opts.RemoteName + "/"
	var stale []plumbing.ReferenceName
	_ = refs.ForEach(func(ref *plumbing.Reference) error {
		if strings.HasPrefix(ref.Name().String(), prefix) {
			stale = append(stale, ref.Name())
		}
		return nil
	})
	for _, name := range stale {
		if err := wc.Repo.Storer.RemoveReference(name); err != nil {
			return gitError("update-ref -d "+name.String(), err)
		}
	}
	return nil
}

// dotGit returns the filesystem of the .git directory
func dotGit(wc *repository.WorkingCopy) (billy.Filesystem, error) {
	s, ok := wc.Repo.Storer.(*filesystem.Storage)
	if !ok {
		return nil, &errs.GitError{Command: "rev-parse --git-dir", Output: "working copy is not on disk"}
	}
	return s.Filesystem(), nil
}
