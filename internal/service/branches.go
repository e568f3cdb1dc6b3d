package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/wahlandcase/appgit/internal/errs"
	"github.com/wahlandcase/appgit/internal/git"
	"github.com/wahlandcase/appgit/internal/models"
)

// CreateBranch forks newBranch from the last commit of sourceBranch
func (s *GitService) CreateBranch(ctx context.Context, defaultAppID, sourceBranch, newBranch string) (*models.Application, error) {
	if err := git.ValidateBranchName(newBranch); err != nil {
		return nil, err
	}
	ctx, release, err := s.lock(ctx, defaultAppID, true)
	if err != nil {
		return nil, err
	}
	defer release()

	if _, err := s.branches.Root(ctx, defaultAppID); err != nil {
		return nil, err
	}
	wc, err := s.repos.Open(defaultAppID)
	if err != nil {
		return nil, err
	}
	if err := s.guardMerge(wc, ""); err != nil {
		return nil, err
	}
	return s.branches.CreateBranch(ctx, defaultAppID, newBranch, sourceBranch)
}

// CheckoutBranch switches the working copy to branch and returns its record.
// isRemote checks out a branch that so far only exists on the remote.
func (s *GitService) CheckoutBranch(ctx context.Context, defaultAppID, branch string, isRemote bool) (*models.Application, error) {
	if err := git.ValidateBranchName(branch); err != nil {
		return nil, err
	}
	ctx, release, err := s.lock(ctx, defaultAppID, true)
	if err != nil {
		return nil, err
	}
	defer release()

	root, err := s.branches.Root(ctx, defaultAppID)
	if err != nil {
		return nil, err
	}
	if isRemote {
		if err := requireRemote(root); err != nil {
			return nil, err
		}
	}
	wc, err := s.repos.Open(defaultAppID)
	if err != nil {
		return nil, err
	}
	if err := s.guardMerge(wc, ""); err != nil {
		return nil, err
	}
	auth, err := s.auth(root)
	if err != nil {
		return nil, err
	}
	return s.branches.Checkout(ctx, defaultAppID, branch, isRemote, auth)
}

// ListBranches lists local and remote branches. ignoreCache refreshes the
// remote tracking refs with a pruning fetch.
func (s *GitService) ListBranches(ctx context.Context, defaultAppID string, ignoreCache bool) ([]models.GitBranch, error) {
	ctx, release, err := s.lock(ctx, defaultAppID, ignoreCache)
	if err != nil {
		return nil, err
	}
	defer release()

	root, err := s.branches.Root(ctx, defaultAppID)
	if err != nil {
		return nil, err
	}
	auth, err := s.auth(root)
	if err != nil {
		return nil, err
	}
	return s.branches.ListBranches(ctx, defaultAppID, ignoreCache, auth)
}

// mergeTargets resolves both branch records of a merge
func (s *GitService) mergeTargets(ctx context.Context, defaultAppID, source, dest string) (src, dst *target, err error) {
	if err := git.ValidateBranchName(source); err != nil {
		return nil, nil, err
	}
	if err := git.ValidateBranchName(dest); err != nil {
		return nil, nil, err
	}
	if source == dest {
		return nil, nil, errs.Invalid("branch", "cannot merge "+source+" into itself")
	}
	if src, err = s.resolve(ctx, defaultAppID, source); err != nil {
		return nil, nil, err
	}
	if dst, err = s.resolve(ctx, defaultAppID, dest); err != nil {
		return nil, nil, err
	}
	return src, dst, nil
}

// uncommitted names the first of the records with edits not yet committed
func (s *GitService) uncommitted(targets ...*target) (string, bool) {
	for _, t := range targets {
		if !s.branches.IsClean(t.wc, t.app) {
			return t.app.BranchName(), true
		}
	}
	return "", false
}

// MergeStatus reports whether source merges into dest, without writing anything.
// It agrees with Merge: a conflicting status means Merge fails with the same files.
func (s *GitService) MergeStatus(ctx context.Context, defaultAppID, source, dest string) (models.MergeStatus, error) {
	ctx, release, err := s.lock(ctx, defaultAppID, false)
	if err != nil {
		return models.MergeStatus{}, err
	}
	defer release()

	src, dst, err := s.mergeTargets(ctx, defaultAppID, source, dest)
	if err != nil {
		return models.MergeStatus{}, err
	}
	status, err := s.exec.MergeStatus(dst.wc, source, dest)
	if err != nil {
		return status, err
	}
	if branch, dirty := s.uncommitted(src, dst); dirty && status.IsMergeable {
		status.IsMergeable = false
		status.Message = branch + " has uncommitted changes"
	}
	return status, nil
}

// Merge merges source into dest with a merge commit and re-imports the
// destination record. Conflicts leave dest untouched.
func (s *GitService) Merge(ctx context.Context, user models.User, defaultAppID, source, dest string) (models.MergeResult, error) {
	result := models.MergeResult{Source: source, Destination: dest}
	ctx, release, err := s.lock(ctx, defaultAppID, true)
	if err != nil {
		return result, err
	}
	defer release()

	src, dst, err := s.mergeTargets(ctx, defaultAppID, source, dest)
	if err != nil {
		return result, err
	}
	if err := s.guardMerge(dst.wc, ""); err != nil {
		return result, err
	}
	if branch, dirty := s.uncommitted(src, dst); dirty {
		return result, errs.Invalid("branch", branch+" has uncommitted changes, commit or discard them before merging")
	}
	author, err := s.author(ctx, user, defaultAppID)
	if err != nil {
		return result, err
	}

	result, err = s.exec.Merge(dst.wc, source, dest, author)
	if err != nil {
		return result, err
	}
	if result.Merged() {
		if err := s.branches.Reimport(ctx, dst.wc, dst.app); err != nil {
			return result, err
		}
		s.branches.Invalidate(defaultAppID)
	}
	s.logger(defaultAppID, dest).Info("merge",
		zap.String("source", source),
		zap.Stringer("status", result.Status),
		zap.String("hash", result.Hash))
	return result, nil
}

// CurrentBranch returns the branch checked out in the working copy
func (s *GitService) CurrentBranch(ctx context.Context, defaultAppID string) (string, error) {
	ctx, release, err := s.lock(ctx, defaultAppID, false)
	if err != nil {
		return "", err
	}
	defer release()

	if _, err := s.branches.Root(ctx, defaultAppID); err != nil {
		return "", err
	}
	wc, err := s.repos.Open(defaultAppID)
	if err != nil {
		return "", err
	}
	return s.exec.CurrentBranch(wc)
}
