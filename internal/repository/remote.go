package repository

import (
	"context"
	"errors"
	"strings"

	"github.com/go-git/go-git/v5/plumbing/transport"

	"github.com/wahlandcase/appgit/internal/errs"
)

// ErrEmptyRemote is returned by Clone when the remote has no refs yet
var ErrEmptyRemote = errors.New("remote repository is empty")

// ClassifyRemoteError maps a transport failure to the engine's remote error
// types. op names the git operation for timeout messages.
func ClassifyRemoteError(op, url string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, context.DeadlineExceeded):
		return &errs.RemoteTimeoutError{Operation: op, Err: err}
	case IsAuthError(err):
		return &errs.AuthenticationError{Remote: url, Err: err}
	default:
		return &errs.RemoteConnectError{URL: url, Err: err}
	}
}

// IsAuthError returns true when the remote rejected the credentials
func IsAuthError(err error) bool {
	if errors.Is(err, transport.ErrAuthenticationRequired) || errors.Is(err, transport.ErrAuthorizationFailed) {
		return true
	}
	// ssh handshake failures are not typed
	return strings.Contains(err.Error(), "unable to authenticate")
}
