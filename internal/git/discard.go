package git

import (
	"bytes"
	"errors"
	"io"
	"os"
	"strings"

	"github.com/go-git/go-billy/v5/util"
	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"go.uber.org/zap"

	"github.com/wahlandcase/appgit/internal/repository"
	"github.com/wahlandcase/appgit/internal/serializer"
)

const (
	mergeHeadFile = "MERGE_HEAD"
	mergeMsgFile  = "MERGE_MSG"
)

// MergeHead returns the commit of a pending pull merge, if any
func (e *Executor) MergeHead(wc *repository.WorkingCopy) (plumbing.Hash, bool, error) {
	fs, err := dotGit(wc)
	if err != nil {
		return plumbing.ZeroHash, false, err
	}
	data, err := util.ReadFile(fs, mergeHeadFile)
	if err != nil {
		if os.IsNotExist(err) {
			return plumbing.ZeroHash, false, nil
		}
		return plumbing.ZeroHash, false, gitError("read "+mergeHeadFile, err)
	}
	h := plumbing.NewHash(strings.TrimSpace(string(data)))
	if h.IsZero() {
		return plumbing.ZeroHash, false, nil
	}
	return h, true, nil
}

func (e *Executor) writeMergeState(wc *repository.WorkingCopy, theirs plumbing.Hash, message string) error {
	fs, err := dotGit(wc)
	if err != nil {
		return err
	}
	if err := util.WriteFile(fs, mergeHeadFile, []byte(theirs.String()+"\n"), 0644); err != nil {
		return gitError("write "+mergeHeadFile, err)
	}
	if err := util.WriteFile(fs, mergeMsgFile, []byte(message+"\n"), 0644); err != nil {
		return gitError("write "+mergeMsgFile, err)
	}
	return nil
}

func (e *Executor) clearMergeState(wc *repository.WorkingCopy) error {
	fs, err := dotGit(wc)
	if err != nil {
		return err
	}
	for _, f := range []string{mergeHeadFile, mergeMsgFile} {
		if err := fs.Remove(f); err != nil && !os.IsNotExist(err) {
			return gitError("remove "+f, err)
		}
	}
	return nil
}

// Discard resets the working copy to the tip of branch and drops any pending
// merge. Untracked files are removed.
func (e *Executor) Discard(wc *repository.WorkingCopy, branch string) error {
	if err := e.Checkout(wc, branch); err != nil {
		return err
	}
	wt, err := wc.Worktree()
	if err != nil {
		return err
	}

	if tip, err := e.BranchTip(wc, branch); err == nil {
		if err := wt.Reset(&git.ResetOptions{Commit: tip, Mode: git.HardReset}); err != nil {
			return gitError("reset --hard", err)
		}
	}
	if err := wt.Clean(&git.CleanOptions{Dir: true}); err != nil {
		return gitError("clean -fd", err)
	}
	if err := e.clearMergeState(wc); err != nil {
		return err
	}

	e.log.Info("discarded working copy changes", zap.String("branch", branch))
	return nil
}

// TreeFiles returns the managed files committed at the tip of branch. A
// branch with no commits yet yields an empty tree.
func (e *Executor) TreeFiles(wc *repository.WorkingCopy, branch string) (serializer.FileTree, error) {
	tip, err := e.BranchTip(wc, branch)
	if err != nil {
		if current, cerr := e.CurrentBranch(wc); cerr == nil && current == branch {
			return serializer.FileTree{}, nil
		}
		return nil, err
	}
	return commitFiles(wc.Repo, tip)
}

// commitFiles reads the managed files of a commit's tree
func commitFiles(repo *git.Repository, hash plumbing.Hash) (serializer.FileTree, error) {
	c, err := repo.CommitObject(hash)
	if err != nil {
		return nil, gitError("cat-file "+hash.String(), err)
	}
	iter, err := c.Files()
	if err != nil {
		return nil, gitError("ls-tree "+hash.String(), err)
	}
	defer iter.Close()

	tree := serializer.FileTree{}
	for {
		f, err := iter.Next()
		if errors.Is(err, io.EOF) {
			return tree, nil
		}
		if err != nil {
			return nil, gitError("ls-tree "+hash.String(), err)
		}
		if !serializer.IsManaged(f.Name) {
			continue
		}
		data, err := blobBytes(f)
		if err != nil {
			return nil, gitError("cat-file "+f.Hash.String(), err)
		}
		tree[f.Name] = data
	}
}

func blobBytes(f *object.File) ([]byte, error) {
	r, err := f.Reader()
	if err != nil {
		return nil, err
	}
	defer r.Close()

	var buf bytes.Buffer
	if _, err := io.Copy(&buf, r); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
