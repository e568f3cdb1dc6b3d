package service

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/wahlandcase/appgit/internal/errs"
	"github.com/wahlandcase/appgit/internal/git"
	"github.com/wahlandcase/appgit/internal/models"
	"github.com/wahlandcase/appgit/internal/repository"
	"github.com/wahlandcase/appgit/internal/serializer"
)

// DefaultCommitMessage is used when a commit request carries no message
const DefaultCommitMessage = "System generated commit"

// CommitRequest carries the commit message and whether to push afterwards
type CommitRequest struct {
	Message string
	DoPush  bool
}

// target is a branch record together with its root and working copy
type target struct {
	root *models.Application
	app  *models.Application
	wc   *repository.WorkingCopy
}

func (s *GitService) resolve(ctx context.Context, defaultAppID, branch string) (*target, error) {
	root, err := s.branches.Root(ctx, defaultAppID)
	if err != nil {
		return nil, err
	}
	app, err := s.branches.Resolve(ctx, defaultAppID, branch)
	if err != nil {
		return nil, err
	}
	wc, err := s.repos.Open(defaultAppID)
	if err != nil {
		return nil, err
	}
	return &target{root: root, app: app, wc: wc}, nil
}

// Commit records the branch record's current content on its branch. A record
// that matches the branch tip produces no commit.
func (s *GitService) Commit(ctx context.Context, user models.User, defaultAppID, branch string, req CommitRequest) (models.CommitResult, error) {
	ctx, release, err := s.lock(ctx, defaultAppID, true)
	if err != nil {
		return models.CommitResult{}, err
	}
	defer release()

	t, err := s.resolve(ctx, defaultAppID, branch)
	if err != nil {
		return models.CommitResult{}, err
	}
	branch = t.app.BranchName()
	if err := s.guardMerge(t.wc, branch); err != nil {
		return models.CommitResult{}, err
	}
	if req.DoPush {
		if err := requireRemote(t.root); err != nil {
			return models.CommitResult{}, err
		}
	}
	author, err := s.author(ctx, user, defaultAppID)
	if err != nil {
		return models.CommitResult{}, err
	}
	message := strings.TrimSpace(req.Message)
	if message == "" {
		message = DefaultCommitMessage
	}

	tree, err := serializer.Export(t.app)
	if err != nil {
		return models.CommitResult{}, err
	}
	result, err := s.exec.Commit(t.wc, branch, tree, message, author)
	if err != nil {
		return result, err
	}
	if result.Changed {
		if tip, err := s.exec.TipCommit(t.wc, branch); err == nil {
			committed := tip.CommittedAt.UTC()
			t.app.GitMetadata.LastCommittedAt = &committed
		}
		t.app.UpdatedAt = time.Now().UTC()
		if err := s.store.UpdateApplication(ctx, t.app); err != nil {
			return result, err
		}
	}

	if req.DoPush {
		auth, err := s.auth(t.root)
		if err != nil {
			return result, err
		}
		pushed, err := s.exec.Push(ctx, t.wc, branch, auth)
		if err != nil {
			return result, err
		}
		result.Pushed = !pushed.UpToDate
		s.branches.Invalidate(defaultAppID)
	}

	s.logger(defaultAppID, branch).Info("commit",
		zap.Bool("changed", result.Changed),
		zap.Bool("pushed", result.Pushed),
		zap.String("hash", result.Hash))
	return result, nil
}

// CommitHistory lists the commits reachable from branch, newest first
func (s *GitService) CommitHistory(ctx context.Context, defaultAppID, branch string) ([]models.GitLog, error) {
	ctx, release, err := s.lock(ctx, defaultAppID, false)
	if err != nil {
		return nil, err
	}
	defer release()

	t, err := s.resolve(ctx, defaultAppID, branch)
	if err != nil {
		return nil, err
	}
	it, err := s.exec.History(t.wc, t.app.BranchName())
	if err != nil {
		return nil, err
	}
	return git.Collect(it)
}

// Push sends the committed history of branch to the remote
func (s *GitService) Push(ctx context.Context, defaultAppID, branch string) (string, error) {
	ctx, release, err := s.lock(ctx, defaultAppID, true)
	if err != nil {
		return "", err
	}
	defer release()

	t, err := s.resolve(ctx, defaultAppID, branch)
	if err != nil {
		return "", err
	}
	if err := requireRemote(t.root); err != nil {
		return "", err
	}
	if err := s.guardMerge(t.wc, ""); err != nil {
		return "", err
	}
	auth, err := s.auth(t.root)
	if err != nil {
		return "", err
	}

	result, err := s.exec.Push(ctx, t.wc, t.app.BranchName(), auth)
	if err != nil {
		return "", err
	}
	s.branches.Invalidate(defaultAppID)
	return result.String(), nil
}

// Pull integrates the remote branch into the local one and re-imports the
// record. Records with uncommitted edits are rejected. On conflicts the record
// takes the cleanly merged units, keeps its own version of the conflicting
// ones, and MergeConflictError is returned with the result.
func (s *GitService) Pull(ctx context.Context, user models.User, defaultAppID, branch string) (models.PullResult, error) {
	result := models.PullResult{Status: models.PullUpToDate, ConflictingFiles: []string{}}
	ctx, release, err := s.lock(ctx, defaultAppID, true)
	if err != nil {
		return result, err
	}
	defer release()

	t, err := s.resolve(ctx, defaultAppID, branch)
	if err != nil {
		return result, err
	}
	branch = t.app.BranchName()
	if err := requireRemote(t.root); err != nil {
		return result, err
	}
	if err := s.guardMerge(t.wc, ""); err != nil {
		return result, err
	}
	if s.exec.BranchExists(t.wc, branch) && !s.branches.IsClean(t.wc, t.app) {
		return result, errs.Invalid("branch", branch+" has uncommitted changes, commit or discard them before pulling")
	}
	author, err := s.author(ctx, user, defaultAppID)
	if err != nil {
		return result, err
	}
	auth, err := s.auth(t.root)
	if err != nil {
		return result, err
	}

	defer s.branches.Invalidate(defaultAppID)
	result, err = s.exec.Pull(ctx, t.wc, branch, auth, author)
	if result.Status == models.PullConflicted {
		if aerr := s.branches.AdoptPendingMerge(ctx, t.wc, t.app, result.ConflictingFiles); aerr != nil {
			return result, aerr
		}
		return result, err
	}
	if err != nil {
		return result, err
	}
	switch result.Status {
	case models.PullUpdated, models.PullMerged:
		if err := s.branches.Reimport(ctx, t.wc, t.app); err != nil {
			return result, err
		}
	}
	return result, nil
}

// Status compares the branch record with its branch tip and remote tracking branch
func (s *GitService) Status(ctx context.Context, defaultAppID, branch string) (models.GitStatus, error) {
	ctx, release, err := s.lock(ctx, defaultAppID, false)
	if err != nil {
		return models.GitStatus{}, err
	}
	defer release()

	t, err := s.resolve(ctx, defaultAppID, branch)
	if err != nil {
		return models.GitStatus{}, err
	}
	tree, err := serializer.Export(t.app)
	if err != nil {
		return models.GitStatus{}, err
	}
	return s.exec.Status(t.wc, tree, t.app.BranchName())
}

// Discard drops uncommitted edits and any pending pull merge on branch; the
// record is restored from the branch tip
func (s *GitService) Discard(ctx context.Context, defaultAppID, branch string) (*models.Application, error) {
	ctx, release, err := s.lock(ctx, defaultAppID, true)
	if err != nil {
		return nil, err
	}
	defer release()

	t, err := s.resolve(ctx, defaultAppID, branch)
	if err != nil {
		return nil, err
	}
	branch = t.app.BranchName()
	if _, pending, err := s.exec.MergeHead(t.wc); err != nil {
		return nil, err
	} else if pending {
		current, _ := s.exec.CurrentBranch(t.wc)
		if current != branch {
			return nil, errs.Invalid("branch", "a merge is in progress on "+current+", discard it there")
		}
	}

	if err := s.exec.Discard(t.wc, branch); err != nil {
		return nil, err
	}
	if err := s.branches.Reimport(ctx, t.wc, t.app); err != nil {
		return nil, err
	}
	s.branches.Invalidate(defaultAppID)
	s.logger(defaultAppID, branch).Info("discarded changes")
	return t.app, nil
}
