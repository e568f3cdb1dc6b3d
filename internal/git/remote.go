package git

import (
	"context"
	"errors"
	"fmt"

	"github.com/cenkalti/backoff/v4"
	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/plumbing/transport"
	"go.uber.org/zap"

	"github.com/wahlandcase/appgit/internal/errs"
	"github.com/wahlandcase/appgit/internal/merge"
	"github.com/wahlandcase/appgit/internal/models"
	"github.com/wahlandcase/appgit/internal/repository"
)

// PushResult describes what a push sent
type PushResult struct {
	Branch   string
	UpToDate bool
}

func (r PushResult) String() string {
	if r.UpToDate {
		return "Everything up-to-date"
	}
	return "Pushed " + r.Branch
}

func (e *Executor) requireRemote(wc *repository.WorkingCopy) (string, error) {
	url := e.RemoteURL(wc)
	if url == "" {
		return "", &errs.NotConnectedError{ApplicationID: wc.ID, Reason: "no remote configured"}
	}
	return url, nil
}

// Fetch updates remote tracking refs. Transient transport failures are
// retried with exponential backoff; with no refspecs every branch is fetched.
func (e *Executor) Fetch(ctx context.Context, wc *repository.WorkingCopy, auth transport.AuthMethod, prune bool, refspecs ...config.RefSpec) error {
	url, err := e.requireRemote(wc)
	if err != nil {
		return err
	}
	if len(refspecs) == 0 {
		refspecs = []config.RefSpec{config.RefSpec(fmt.Sprintf("+refs/heads/*:refs/remotes/%s/*", e.opts.RemoteName))}
	}

	ctx, cancel := context.WithTimeout(ctx, e.opts.RemoteTimeout)
	defer cancel()

	attempt := 0
	op := func() error {
		attempt++
		err := wc.Repo.FetchContext(ctx, &git.FetchOptions{
			RemoteName: e.opts.RemoteName,
			RefSpecs:   refspecs,
			Auth:       auth,
			Prune:      prune,
		})
		if err == nil || errors.Is(err, git.NoErrAlreadyUpToDate) {
			return nil
		}
		if isPermanent(err) {
			return backoff.Permanent(err)
		}
		e.log.Warn("fetch failed, retrying",
			zap.String("application_id", wc.ID),
			zap.Int("attempt", attempt),
			zap.Error(err))
		return err
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = e.opts.RetryInterval
	b.MaxElapsedTime = e.opts.RemoteTimeout
	err = backoff.Retry(op, backoff.WithContext(backoff.WithMaxRetries(b, uint64(e.opts.FetchRetries)), ctx))
	return fetchError(url, err)
}

// FetchBranch fetches a single branch into its remote tracking ref
func (e *Executor) FetchBranch(ctx context.Context, wc *repository.WorkingCopy, auth transport.AuthMethod, branch string) error {
	spec := config.RefSpec(fmt.Sprintf("+%s:%s",
		plumbing.NewBranchReferenceName(branch),
		plumbing.NewRemoteReferenceName(e.opts.RemoteName, branch)))
	err := e.Fetch(ctx, wc, auth, false, spec)
	var nf *errs.BranchNotFoundError
	if errors.As(err, &nf) {
		return &errs.BranchNotFoundError{Branches: []string{branch}}
	}
	return err
}

// Push sends branch to the remote and records the remote as its upstream
func (e *Executor) Push(ctx context.Context, wc *repository.WorkingCopy, branch string, auth transport.AuthMethod) (PushResult, error) {
	result := PushResult{Branch: branch}
	url, err := e.requireRemote(wc)
	if err != nil {
		return result, err
	}
	if _, err := e.BranchTip(wc, branch); err != nil {
		return result, err
	}

	ctx, cancel := context.WithTimeout(ctx, e.opts.RemoteTimeout)
	defer cancel()

	ref := plumbing.NewBranchReferenceName(branch)
	err = wc.Repo.PushContext(ctx, &git.PushOptions{
		RemoteName: e.opts.RemoteName,
		RefSpecs:   []config.RefSpec{config.RefSpec(ref + ":" + ref)},
		Auth:       auth,
	})
	if errors.Is(err, git.NoErrAlreadyUpToDate) {
		result.UpToDate = true
		err = nil
	}
	if err != nil {
		return result, remoteError("push", url, branch, err)
	}

	// Keep the tracking ref in step so status reports zero ahead
	tip, _ := e.BranchTip(wc, branch)
	tracking := plumbing.NewHashReference(plumbing.NewRemoteReferenceName(e.opts.RemoteName, branch), tip)
	if err := wc.Repo.Storer.SetReference(tracking); err != nil {
		return result, gitError("update-ref "+tracking.Name().String(), err)
	}
	if err := e.TrackBranch(wc, branch); err != nil {
		return result, err
	}

	e.log.Info("pushed",
		zap.String("application_id", wc.ID),
		zap.String("branch", branch),
		zap.Bool("up_to_date", result.UpToDate))
	return result, nil
}

// Pull fetches branch and integrates origin/<branch> into it. Diverged
// histories are merged with a merge commit; on conflicts the marker files and
// merge state are left in the working copy and MergeConflictError is returned.
func (e *Executor) Pull(ctx context.Context, wc *repository.WorkingCopy, branch string, auth transport.AuthMethod, author *object.Signature) (models.PullResult, error) {
	result := models.PullResult{Status: models.PullUpToDate, ConflictingFiles: []string{}}
	if err := requireAuthor(author); err != nil {
		return result, err
	}
	if err := e.FetchBranch(ctx, wc, auth, branch); err != nil {
		return result, err
	}

	theirs := e.remoteTip(wc, branch)
	if theirs.IsZero() {
		return result, &errs.BranchNotFoundError{Branches: []string{branch}}
	}
	remoteLabel := e.opts.RemoteName + "/" + branch

	ours, err := e.BranchTip(wc, branch)
	if err != nil {
		// Nothing local yet: adopt the remote branch
		if cerr := e.setBranch(wc, branch, theirs); cerr != nil {
			return result, cerr
		}
		count, _ := commitsBetween(wc.Repo, plumbing.ZeroHash, theirs)
		result.Status = models.PullUpdated
		result.CommitCount = len(count)
		return result, e.Checkout(wc, branch)
	}

	out, err := merge.Evaluate(wc.Repo, ours, theirs, merge.Labels{Ours: branch, Theirs: remoteLabel})
	if err != nil {
		return result, gitError("merge "+remoteLabel, err)
	}
	incoming, err := commitsBetween(wc.Repo, ours, theirs)
	if err != nil {
		return result, gitError("rev-list", err)
	}

	switch out.Status {
	case models.MergeUpToDate:
		return result, e.Checkout(wc, branch)

	case models.MergeFastForward:
		if err := e.setBranch(wc, branch, theirs); err != nil {
			return result, err
		}
		if err := e.Checkout(wc, branch); err != nil {
			return result, err
		}
		result.Status = models.PullUpdated
		result.CommitCount = len(incoming)

	case models.MergeClean:
		message := fmt.Sprintf("Merge remote-tracking branch '%s' into %s", remoteLabel, branch)
		if _, err := e.commitMerge(wc, branch, out, message, author); err != nil {
			return result, err
		}
		result.Status = models.PullMerged
		result.CommitCount = len(incoming)
		result.MergeCommit = true

	case models.MergeConflicting:
		if err := e.Checkout(wc, branch); err != nil {
			return result, err
		}
		if err := e.applyFiles(wc, ours, out.Files); err != nil {
			return result, err
		}
		message := fmt.Sprintf("Merge remote-tracking branch '%s' into %s", remoteLabel, branch)
		if err := e.writeMergeState(wc, theirs, message); err != nil {
			return result, err
		}
		result.Status = models.PullConflicted
		result.ConflictingFiles = append(result.ConflictingFiles, out.Conflicts...)
		e.log.Warn("pull stopped on conflicts",
			zap.String("application_id", wc.ID),
			zap.String("branch", branch),
			zap.Strings("files", out.Conflicts))
		return result, &errs.MergeConflictError{Source: remoteLabel, Destination: branch, Files: out.Conflicts}
	}

	e.log.Info("pulled",
		zap.String("application_id", wc.ID),
		zap.String("branch", branch),
		zap.Stringer("status", result.Status),
		zap.Int("commits", result.CommitCount))
	return result, nil
}

// CheckoutRemote creates a local branch tracking origin/<branch> and checks it out
func (e *Executor) CheckoutRemote(ctx context.Context, wc *repository.WorkingCopy, branch string, auth transport.AuthMethod) error {
	if e.BranchExists(wc, branch) {
		return &errs.BranchAlreadyExistsError{Branch: branch}
	}
	if err := e.FetchBranch(ctx, wc, auth, branch); err != nil {
		return err
	}
	tip := e.remoteTip(wc, branch)
	if tip.IsZero() {
		return &errs.BranchNotFoundError{Branches: []string{branch}}
	}
	if err := e.setBranch(wc, branch, tip); err != nil {
		return err
	}
	if err := e.TrackBranch(wc, branch); err != nil {
		return err
	}
	return e.Checkout(wc, branch)
}

func (e *Executor) setBranch(wc *repository.WorkingCopy, branch string, hash plumbing.Hash) error {
	ref := plumbing.NewHashReference(plumbing.NewBranchReferenceName(branch), hash)
	return gitError("update-ref "+ref.Name().String(), wc.Repo.Storer.SetReference(ref))
}
