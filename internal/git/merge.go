package git

import (
	"errors"
	"fmt"
	"os"
	"path"

	"github.com/go-git/go-billy/v5/util"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"go.uber.org/zap"

	"github.com/wahlandcase/appgit/internal/errs"
	"github.com/wahlandcase/appgit/internal/merge"
	"github.com/wahlandcase/appgit/internal/models"
	"github.com/wahlandcase/appgit/internal/repository"
	"github.com/wahlandcase/appgit/internal/serializer"
)

func (e *Executor) evaluate(wc *repository.WorkingCopy, source, dest string) (*merge.Outcome, error) {
	srcTip, err := e.BranchTip(wc, source)
	if err != nil {
		return nil, err
	}
	dstTip, err := e.BranchTip(wc, dest)
	if err != nil {
		return nil, err
	}
	out, err := merge.Evaluate(wc.Repo, dstTip, srcTip, merge.Labels{Ours: dest, Theirs: source})
	if err != nil {
		return nil, gitError(fmt.Sprintf("merge %s into %s", source, dest), err)
	}
	return out, nil
}

// MergeStatus reports whether source can be merged into dest without writing anything
func (e *Executor) MergeStatus(wc *repository.WorkingCopy, source, dest string) (models.MergeStatus, error) {
	out, err := e.evaluate(wc, source, dest)
	if err != nil {
		return models.MergeStatus{ConflictingFiles: []string{}}, err
	}
	return out.MergeStatus(), nil
}

// Merge merges source into dest with a merge commit. Conflicts abort the
// merge with MergeConflictError and leave dest untouched.
func (e *Executor) Merge(wc *repository.WorkingCopy, source, dest string, author *object.Signature) (models.MergeResult, error) {
	result := models.MergeResult{Source: source, Destination: dest}
	if err := requireAuthor(author); err != nil {
		return result, err
	}

	out, err := e.evaluate(wc, source, dest)
	if err != nil {
		return result, err
	}
	result.Status = out.Status

	switch out.Status {
	case models.MergeUpToDate:
		result.Message = "Already up to date"
		return result, nil
	case models.MergeConflicting:
		return result, &errs.MergeConflictError{Source: source, Destination: dest, Files: out.Conflicts}
	}

	message := fmt.Sprintf("Merge branch '%s' into %s", source, dest)
	hash, err := e.commitMerge(wc, dest, out, message, author)
	if err != nil {
		return result, err
	}
	result.Hash = hash.String()
	result.Message = message

	e.log.Info("merged",
		zap.String("application_id", wc.ID),
		zap.String("source", source),
		zap.String("destination", dest),
		zap.Stringer("status", out.Status),
		zap.String("hash", result.Hash))
	return result, nil
}

// commitMerge writes a clean merge outcome onto branch and records a commit
// whose parents are the two merged tips
func (e *Executor) commitMerge(wc *repository.WorkingCopy, branch string, out *merge.Outcome, message string, author *object.Signature) (plumbing.Hash, error) {
	if err := e.Checkout(wc, branch); err != nil {
		return plumbing.ZeroHash, err
	}
	if err := e.applyFiles(wc, out.Ours, out.Files); err != nil {
		return plumbing.ZeroHash, err
	}
	wt, err := wc.Worktree()
	if err != nil {
		return plumbing.ZeroHash, err
	}
	return e.commitWithParents(wt, message, author, out.Ours, out.Theirs)
}

// applyFiles makes the worktree hold exactly files, given that it currently
// holds the tree of ours
func (e *Executor) applyFiles(wc *repository.WorkingCopy, ours plumbing.Hash, files map[string][]byte) error {
	wt, err := wc.Worktree()
	if err != nil {
		return err
	}
	fs := wt.Filesystem

	c, err := wc.Repo.CommitObject(ours)
	if err != nil {
		return gitError("cat-file "+ours.String(), err)
	}
	iter, err := c.Files()
	if err != nil {
		return gitError("ls-tree "+ours.String(), err)
	}
	var stale []string
	err = iter.ForEach(func(f *object.File) error {
		if _, ok := files[f.Name]; !ok {
			stale = append(stale, f.Name)
		}
		return nil
	})
	if err != nil {
		return gitError("ls-tree "+ours.String(), err)
	}
	for _, p := range stale {
		if err := fs.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
			return gitError("rm "+p, err)
		}
	}

	for p, data := range files {
		if dir := path.Dir(p); dir != "." {
			if err := fs.MkdirAll(dir, 0755); err != nil {
				return gitError("mkdir "+dir, err)
			}
		}
		if err := util.WriteFile(fs, p, data, 0644); err != nil {
			return gitError("write "+p, err)
		}
	}
	return nil
}

// PendingMergeTree returns the managed files of a stopped merge on branch:
// cleanly merged paths as they were written to the worktree, and the branch
// tip's version of every conflicting path.
func (e *Executor) PendingMergeTree(wc *repository.WorkingCopy, branch string, conflicts []string) (serializer.FileTree, error) {
	if _, pending, err := e.MergeHead(wc); err != nil {
		return nil, err
	} else if !pending {
		return nil, errs.Invalid("branch", "no merge is in progress on "+branch)
	}
	wt, err := wc.Worktree()
	if err != nil {
		return nil, err
	}
	merged, err := serializer.ReadTree(wt.Filesystem)
	if err != nil {
		return nil, gitError("read worktree", err)
	}
	ours, err := e.TreeFiles(wc, branch)
	if err != nil {
		return nil, err
	}
	for _, p := range conflicts {
		if data, ok := ours[p]; ok {
			merged[p] = data
		} else {
			delete(merged, p)
		}
	}
	return merged, nil
}
