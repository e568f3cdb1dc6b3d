package git

import (
	"context"
	"errors"
	"net"
	"os"
	"strings"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/transport"

	"github.com/wahlandcase/appgit/internal/errs"
	"github.com/wahlandcase/appgit/internal/repository"
)

// remoteError maps a failed network operation to the engine's error types
func remoteError(op, url, branch string, err error) error {
	if err == nil {
		return nil
	}
	if isNonFastForward(err) {
		return &errs.NonFastForwardError{Branch: branch}
	}
	if errors.Is(err, git.NoMatchingRefSpecError{}) {
		return &errs.BranchNotFoundError{Branches: []string{branch}}
	}
	if errors.Is(err, transport.ErrRepositoryNotFound) {
		return &errs.RemoteConnectError{URL: url, Err: err}
	}
	return repository.ClassifyRemoteError(op, url, err)
}

// isNonFastForward matches go-git push rejections, which are untyped
func isNonFastForward(err error) bool {
	return errors.Is(err, git.ErrForceNeeded) ||
		errors.Is(err, git.ErrNonFastForwardUpdate) ||
		strings.Contains(err.Error(), "non-fast-forward update")
}

// isPermanent reports fetch failures that retrying cannot fix
func isPermanent(err error) bool {
	return errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, transport.ErrRepositoryNotFound) ||
		errors.Is(err, transport.ErrEmptyRemoteRepository) ||
		errors.Is(err, git.NoMatchingRefSpecError{}) ||
		errors.Is(err, git.ErrRemoteNotFound) ||
		repository.IsAuthError(err) ||
		isNonFastForward(err)
}

func gitError(command string, err error) error {
	if err == nil {
		return nil
	}
	return &errs.GitError{Command: command, Err: err}
}

// fetchError classifies the final error of a retried fetch. Only deadlines and
// network timeouts count as timeouts; anything else the remote reported keeps
// its own class.
func fetchError(url string, err error) error {
	switch {
	case err == nil, errors.Is(err, transport.ErrEmptyRemoteRepository):
		return nil
	case isTimeout(err):
		return &errs.RemoteTimeoutError{Operation: "fetch", Err: err}
	default:
		return remoteError("fetch", url, "", err)
	}
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
