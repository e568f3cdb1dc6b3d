package git

import (
	"errors"
	"io"
	"strings"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"go.uber.org/zap"

	"github.com/wahlandcase/appgit/internal/errs"
	"github.com/wahlandcase/appgit/internal/models"
	"github.com/wahlandcase/appgit/internal/repository"
	"github.com/wahlandcase/appgit/internal/serializer"
)

// Commit writes tree into the working copy on branch and commits it. When the
// tree matches the branch tip and no merge is pending, nothing is committed
// and the result has Changed=false.
func (e *Executor) Commit(wc *repository.WorkingCopy, branch string, tree serializer.FileTree, message string, author *object.Signature) (models.CommitResult, error) {
	result := models.CommitResult{Branch: branch, Message: firstLine(message)}
	if result.Message == "" {
		return result, errs.Invalid("commit message", "must not be empty")
	}
	if err := requireAuthor(author); err != nil {
		return result, err
	}

	if err := e.Checkout(wc, branch); err != nil {
		return result, err
	}
	wt, err := wc.Worktree()
	if err != nil {
		return result, err
	}
	if err := tree.WriteTo(wt.Filesystem); err != nil {
		return result, gitError("write tree", err)
	}
	if err := wt.AddWithOptions(&git.AddOptions{All: true}); err != nil {
		return result, gitError("add --all", err)
	}

	opts := &git.CommitOptions{Author: author, Committer: author}
	mergeHead, pending, err := e.MergeHead(wc)
	if err != nil {
		return result, err
	}
	head, headErr := wc.Repo.Head()
	if pending && headErr == nil {
		opts.Parents = []plumbing.Hash{head.Hash(), mergeHead}
		opts.AllowEmptyCommits = true
	}
	if errors.Is(headErr, plumbing.ErrReferenceNotFound) && len(tree) == 0 {
		return result, nil
	}

	hash, err := wt.Commit(message, opts)
	if errors.Is(err, git.ErrEmptyCommit) {
		e.log.Debug("nothing to commit", zap.String("branch", branch))
		return result, nil
	}
	if err != nil {
		return result, gitError("commit", err)
	}
	if pending {
		if err := e.clearMergeState(wc); err != nil {
			return result, err
		}
	}

	result.Hash = hash.String()
	result.Changed = true
	e.log.Info("committed",
		zap.String("branch", branch),
		zap.String("hash", hash.String()),
		zap.Bool("merge", pending))
	return result, nil
}

// commitWithParents records the staged worktree as a commit with explicit parents
func (e *Executor) commitWithParents(wt *git.Worktree, message string, author *object.Signature, parents ...plumbing.Hash) (plumbing.Hash, error) {
	if err := wt.AddWithOptions(&git.AddOptions{All: true}); err != nil {
		return plumbing.ZeroHash, gitError("add --all", err)
	}
	hash, err := wt.Commit(message, &git.CommitOptions{
		Author:            author,
		Committer:         author,
		Parents:           parents,
		AllowEmptyCommits: true,
	})
	return hash, gitError("commit", err)
}

// LogIterator yields commits of one branch, most recent first. It stops after
// the configured page size and can be consumed once.
type LogIterator struct {
	iter      object.CommitIter
	remaining int
}

// Next returns the next commit, or io.EOF when the history or page is exhausted
func (it *LogIterator) Next() (models.GitLog, error) {
	if it.iter == nil || it.remaining <= 0 {
		return models.GitLog{}, io.EOF
	}
	c, err := it.iter.Next()
	if err != nil {
		return models.GitLog{}, err
	}
	it.remaining--
	return toGitLog(c), nil
}

// Close releases the underlying iterator
func (it *LogIterator) Close() {
	if it.iter != nil {
		it.iter.Close()
		it.iter = nil
	}
}

// Collect drains the iterator into a slice and closes it
func Collect(it *LogIterator) ([]models.GitLog, error) {
	defer it.Close()
	logs := []models.GitLog{}
	for {
		l, err := it.Next()
		if errors.Is(err, io.EOF) {
			return logs, nil
		}
		if err != nil {
			return nil, gitError("log", err)
		}
		logs = append(logs, l)
	}
}

// History returns the commit log of branch. A branch with no commits yet has
// an empty history.
func (e *Executor) History(wc *repository.WorkingCopy, branch string) (*LogIterator, error) {
	tip, err := e.BranchTip(wc, branch)
	if err != nil {
		if current, cerr := e.CurrentBranch(wc); cerr == nil && current == branch {
			return &LogIterator{}, nil
		}
		return nil, err
	}

	iter, err := wc.Repo.Log(&git.LogOptions{From: tip, Order: git.LogOrderCommitterTime})
	if err != nil {
		return nil, gitError("log "+branch, err)
	}
	return &LogIterator{iter: iter, remaining: e.opts.PageSize}, nil
}

// TipCommit returns the log entry of the branch tip
func (e *Executor) TipCommit(wc *repository.WorkingCopy, branch string) (models.GitLog, error) {
	tip, err := e.BranchTip(wc, branch)
	if err != nil {
		return models.GitLog{}, err
	}
	c, err := wc.Repo.CommitObject(tip)
	if err != nil {
		return models.GitLog{}, gitError("cat-file "+tip.String(), err)
	}
	return toGitLog(c), nil
}

// commitsBetween returns the commits reachable from head but not from base
func commitsBetween(repo *git.Repository, base, head plumbing.Hash) ([]plumbing.Hash, error) {
	if head.IsZero() || head == base {
		return nil, nil
	}

	// Build set of commits reachable from base
	baseCommits := make(map[plumbing.Hash]bool)
	if !base.IsZero() {
		baseIter, err := repo.Log(&git.LogOptions{From: base})
		if err != nil {
			return nil, err
		}
		err = baseIter.ForEach(func(c *object.Commit) error {
			baseCommits[c.Hash] = true
			return nil
		})
		if err != nil {
			return nil, err
		}
	}

	headIter, err := repo.Log(&git.LogOptions{From: head})
	if err != nil {
		return nil, err
	}

	var commits []plumbing.Hash
	seen := make(map[plumbing.Hash]bool)
	err = headIter.ForEach(func(c *object.Commit) error {
		// Merge commits have several parents, so keep walking every path
		if seen[c.Hash] || baseCommits[c.Hash] {
			return nil
		}
		seen[c.Hash] = true
		commits = append(commits, c.Hash)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return commits, nil
}

func toGitLog(c *object.Commit) models.GitLog {
	parents := make([]string, 0, len(c.ParentHashes))
	for _, p := range c.ParentHashes {
		parents = append(parents, p.String())
	}
	return models.NewGitLog(c.Hash.String(), c.Author.Name, c.Author.Email,
		firstLine(c.Message), c.Committer.When, parents)
}

func firstLine(message string) string {
	return strings.TrimSpace(strings.SplitN(message, "\n", 2)[0])
}

// requireAuthor rejects commits without a usable identity
func requireAuthor(author *object.Signature) error {
	if author == nil || author.Name == "" || author.Email == "" {
		return errs.Invalid("author", "name and email are required")
	}
	return nil
}
