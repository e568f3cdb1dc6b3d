package git

import (
	"sort"

	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"

	"github.com/wahlandcase/appgit/internal/models"
	"github.com/wahlandcase/appgit/internal/repository"
	"github.com/wahlandcase/appgit/internal/serializer"
)

// Status compares tree with the tip of branch and with its remote tracking
// branch. Nothing is written to the working copy.
func (e *Executor) Status(wc *repository.WorkingCopy, tree serializer.FileTree, branch string) (models.GitStatus, error) {
	status := models.GitStatus{
		Branch:   branch,
		Added:    []string{},
		Modified: []string{},
		Removed:  []string{},
	}

	committed := map[string]plumbing.Hash{}
	tip, err := e.BranchTip(wc, branch)
	switch {
	case err == nil:
		committed, err = managedHashes(wc, tip)
		if err != nil {
			return status, err
		}
	default:
		if current, cerr := e.CurrentBranch(wc); cerr != nil || current != branch {
			return status, err
		}
	}

	for _, p := range tree.Paths() {
		h, ok := committed[p]
		switch {
		case !ok:
			status.Added = append(status.Added, p)
		case h != plumbing.ComputeHash(plumbing.BlobObject, tree[p]):
			status.Modified = append(status.Modified, p)
		}
	}
	for p := range committed {
		if _, ok := tree[p]; !ok {
			status.Removed = append(status.Removed, p)
		}
	}
	sort.Strings(status.Removed)

	if remote := e.remoteTip(wc, branch); !remote.IsZero() {
		status.RemoteTracked = true
		ahead, err := commitsBetween(wc.Repo, remote, tip)
		if err != nil {
			return status, gitError("rev-list", err)
		}
		behind, err := commitsBetween(wc.Repo, tip, remote)
		if err != nil {
			return status, gitError("rev-list", err)
		}
		status.Ahead = len(ahead)
		status.Behind = len(behind)
	}

	if _, pending, err := e.MergeHead(wc); err != nil {
		return status, err
	} else if pending {
		current, _ := e.CurrentBranch(wc)
		status.MergePending = current == branch
	}

	status.IsClean = status.ChangeCount() == 0 && !status.MergePending
	return status, nil
}

// managedHashes maps each managed path of a commit to its blob hash
func managedHashes(wc *repository.WorkingCopy, hash plumbing.Hash) (map[string]plumbing.Hash, error) {
	c, err := wc.Repo.CommitObject(hash)
	if err != nil {
		return nil, gitError("cat-file "+hash.String(), err)
	}
	iter, err := c.Files()
	if err != nil {
		return nil, gitError("ls-tree "+hash.String(), err)
	}

	hashes := map[string]plumbing.Hash{}
	err = iter.ForEach(func(f *object.File) error {
		if serializer.IsManaged(f.Name) {
			hashes[f.Name] = f.Hash
		}
		return nil
	})
	if err != nil {
		return nil, gitError("ls-tree "+hash.String(), err)
	}
	return hashes, nil
}
