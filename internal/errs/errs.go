// Package errs holds the error taxonomy shared by every engine component.
package errs

import (
	"errors"
	"fmt"
	"strings"
)

// ValidationError is raised before any I/O for bad caller input
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation failed: " + e.Reason
	}
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// Invalid creates a ValidationError
func Invalid(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

// BranchAlreadyExistsError indicates a branch name collision within one root application
type BranchAlreadyExistsError struct {
	Branch string
}

func (e *BranchAlreadyExistsError) Error() string {
	return "branch already exists: " + e.Branch
}

// SourceBranchNotFoundError indicates the branch to fork from does not exist
type SourceBranchNotFoundError struct {
	Branch string
}

func (e *SourceBranchNotFoundError) Error() string {
	return "source branch not found: " + e.Branch
}

// BranchNotFoundError indicates a branch was found neither locally nor on the remote
type BranchNotFoundError struct {
	Branches []string
}

func (e *BranchNotFoundError) Error() string {
	return "branch not found: " + strings.Join(e.Branches, ", ")
}

// NotConnectedError indicates the application is not git-enabled or has no remote
type NotConnectedError struct {
	ApplicationID string
	Reason        string
}

func (e *NotConnectedError) Error() string {
	return fmt.Sprintf("application %s: %s", e.ApplicationID, e.Reason)
}

// RemoteConnectError wraps failures reaching the remote (network, unknown host, auth during clone)
type RemoteConnectError struct {
	URL string
	Err error
}

func (e *RemoteConnectError) Error() string {
	return fmt.Sprintf("unable to connect to remote %s: %v", e.URL, e.Err)
}

func (e *RemoteConnectError) Unwrap() error { return e.Err }

// AuthenticationError indicates the remote rejected the credentials
type AuthenticationError struct {
	Remote string
	Err    error
}

func (e *AuthenticationError) Error() string {
	return fmt.Sprintf("authentication to %s failed: %v", e.Remote, e.Err)
}

func (e *AuthenticationError) Unwrap() error { return e.Err }

// RemoteTimeoutError indicates a network operation exceeded the configured timeout
type RemoteTimeoutError struct {
	Operation string
	Err       error
}

func (e *RemoteTimeoutError) Error() string {
	return fmt.Sprintf("git %s timed out: %v", e.Operation, e.Err)
}

func (e *RemoteTimeoutError) Unwrap() error { return e.Err }

// NonFastForwardError indicates the remote has commits the local branch lacks
type NonFastForwardError struct {
	Branch string
}

func (e *NonFastForwardError) Error() string {
	return fmt.Sprintf("push rejected for %s: remote contains work that you do not have locally, pull first", e.Branch)
}

// MergeConflictError carries the full set of conflicting paths
type MergeConflictError struct {
	Source      string
	Destination string
	Files       []string
}

func (e *MergeConflictError) Error() string {
	return fmt.Sprintf("merge of %s into %s has conflicts in: %s",
		e.Source, e.Destination, strings.Join(e.Files, ", "))
}

// SerializationError indicates an application graph that cannot be exported
type SerializationError struct {
	Unit   string
	Reason string
	Err    error
}

func (e *SerializationError) Error() string {
	msg := fmt.Sprintf("serialize %s: %s", e.Unit, e.Reason)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *SerializationError) Unwrap() error { return e.Err }

// DeserializationError indicates a file tree that violates the expected schema
type DeserializationError struct {
	Path   string
	Reason string
	Err    error
}

func (e *DeserializationError) Error() string {
	msg := fmt.Sprintf("deserialize %s: %s", e.Path, e.Reason)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *DeserializationError) Unwrap() error { return e.Err }

// GitError provides context for git failures that have no better classification
type GitError struct {
	Command string
	Output  string
	Err     error
}

func (e *GitError) Error() string {
	if e.Output == "" && e.Err != nil {
		return "git " + e.Command + ": " + e.Err.Error()
	}
	return "git " + e.Command + ": " + e.Output
}

func (e *GitError) Unwrap() error { return e.Err }

// IsValidation returns true for errors the caller can fix by correcting input
func IsValidation(err error) bool {
	var (
		v  *ValidationError
		ae *BranchAlreadyExistsError
		sn *SourceBranchNotFoundError
		nf *BranchNotFoundError
		nc *NotConnectedError
	)
	return errors.As(err, &v) || errors.As(err, &ae) || errors.As(err, &sn) ||
		errors.As(err, &nf) || errors.As(err, &nc)
}

// IsRemote returns true for errors worth retrying or re-authenticating
func IsRemote(err error) bool {
	var (
		rc *RemoteConnectError
		au *AuthenticationError
		rt *RemoteTimeoutError
	)
	return errors.As(err, &rc) || errors.As(err, &au) || errors.As(err, &rt)
}

// ConflictingFiles returns the conflict set of a MergeConflictError, or nil
func ConflictingFiles(err error) []string {
	var mc *MergeConflictError
	if errors.As(err, &mc) {
		return mc.Files
	}
	return nil
}
