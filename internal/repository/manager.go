// Package repository owns the on-disk working copies, one per root
// application, and the locks that serialize access to them.
package repository

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/transport"
	"go.uber.org/zap"

	"github.com/wahlandcase/appgit/internal/errs"
)

// WorkingCopy is an opened working copy. It is only valid while the caller
// holds the application's lock.
type WorkingCopy struct {
	// ID is the root application ID the working copy belongs to
	ID   string
	Path string
	Repo *git.Repository
}

// Worktree returns the go-git worktree of the working copy
func (wc *WorkingCopy) Worktree() (*git.Worktree, error) {
	wt, err := wc.Repo.Worktree()
	if err != nil {
		return nil, &errs.GitError{Command: "worktree", Err: err}
	}
	return wt, nil
}

// Manager creates, locates and removes working copies under a root directory
type Manager struct {
	root          string
	remoteTimeout time.Duration
	locks         *LockArena
	log           *zap.Logger
}

func NewManager(root string, remoteTimeout time.Duration, log *zap.Logger) *Manager {
	if log == nil {
		log = zap.NewNop()
	}
	return &Manager{
		root:          root,
		remoteTimeout: remoteTimeout,
		locks:         NewLockArena(),
		log:           log,
	}
}

// Locks returns the manager's lock arena
func (m *Manager) Locks() *LockArena {
	return m.locks
}

// Lock takes the exclusive lock of a root application
func (m *Manager) Lock(ctx context.Context, id string) (func(), error) {
	return m.locks.Lock(ctx, id)
}

// RLock takes a shared lock of a root application
func (m *Manager) RLock(ctx context.Context, id string) (func(), error) {
	return m.locks.RLock(ctx, id)
}

// RemoteTimeout returns the bound applied to network operations
func (m *Manager) RemoteTimeout() time.Duration {
	return m.remoteTimeout
}

// Path returns the working-copy directory for id
func (m *Manager) Path(id string) (string, error) {
	if err := validateID(id); err != nil {
		return "", err
	}
	return filepath.Join(m.root, id), nil
}

// Exists returns true when a git working copy exists for id
func (m *Manager) Exists(id string) bool {
	path, err := m.Path(id)
	if err != nil {
		return false
	}
	_, err = os.Stat(filepath.Join(path, git.GitDirName))
	return err == nil
}

// Open opens an existing working copy
func (m *Manager) Open(id string) (*WorkingCopy, error) {
	path, err := m.Path(id)
	if err != nil {
		return nil, err
	}
	repo, err := git.PlainOpen(path)
	if err != nil {
		if errors.Is(err, git.ErrRepositoryNotExists) {
			return nil, &errs.NotConnectedError{ApplicationID: id, Reason: "no working copy"}
		}
		return nil, &errs.GitError{Command: "open", Err: err}
	}
	return &WorkingCopy{ID: id, Path: path, Repo: repo}, nil
}

// GetOrCreate opens the working copy for id, initializing an empty repository
// on defaultBranch when none exists yet
func (m *Manager) GetOrCreate(ctx context.Context, id, defaultBranch string) (*WorkingCopy, error) {
	if m.Exists(id) {
		return m.Open(id)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	path, err := m.Path(id)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(path, 0755); err != nil {
		return nil, fmt.Errorf("create working copy: %w", err)
	}

	repo, err := git.PlainInitWithOptions(path, &git.PlainInitOptions{
		InitOptions: git.InitOptions{
			DefaultBranch: plumbing.NewBranchReferenceName(defaultBranch),
		},
	})
	if err != nil {
		_ = os.RemoveAll(path)
		return nil, &errs.GitError{Command: "init", Err: err}
	}

	m.log.Info("Initialized working copy",
		zap.String("application_id", id),
		zap.String("branch", defaultBranch))

	return &WorkingCopy{ID: id, Path: path, Repo: repo}, nil
}

// Clone clones url into the working copy for id. Any failure removes the
// partially created directory. An empty remote yields ErrEmptyRemote.
func (m *Manager) Clone(ctx context.Context, url string, auth transport.AuthMethod, id string) (*WorkingCopy, error) {
	path, err := m.Path(id)
	if err != nil {
		return nil, err
	}
	if _, err := os.Stat(path); err == nil {
		return nil, errs.Invalid("application", "working copy already exists for "+id)
	}

	if m.remoteTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.remoteTimeout)
		defer cancel()
	}

	m.log.Debug("Cloning remote",
		zap.String("application_id", id),
		zap.String("remote_url", url))

	repo, err := git.PlainCloneContext(ctx, path, false, &git.CloneOptions{
		URL:        url,
		Auth:       auth,
		RemoteName: git.DefaultRemoteName,
	})
	if err != nil {
		if rmErr := os.RemoveAll(path); rmErr != nil {
			m.log.Warn("Failed to remove partial clone",
				zap.String("path", path),
				zap.Error(rmErr))
		}
		if errors.Is(err, transport.ErrEmptyRemoteRepository) {
			return nil, ErrEmptyRemote
		}
		classified := ClassifyRemoteError("clone", url, err)
		var ae *errs.AuthenticationError
		if errors.As(classified, &ae) {
			return nil, &errs.RemoteConnectError{URL: url, Err: classified}
		}
		return nil, classified
	}

	return &WorkingCopy{ID: id, Path: path, Repo: repo}, nil
}

// Remove deletes the working copy for id. Removing a missing working copy
// is not an error.
func (m *Manager) Remove(id string) error {
	path, err := m.Path(id)
	if err != nil {
		return err
	}
	if err := os.RemoveAll(path); err != nil {
		return fmt.Errorf("remove working copy: %w", err)
	}
	m.log.Info("Removed working copy", zap.String("application_id", id))
	return nil
}

func validateID(id string) error {
	switch {
	case id == "":
		return errs.Invalid("application id", "must not be empty")
	case id == "." || id == "..":
		return errs.Invalid("application id", "must not be a relative path")
	case strings.ContainsAny(id, "/\\\x00"):
		return errs.Invalid("application id", "must not contain path separators")
	}
	return nil
}
