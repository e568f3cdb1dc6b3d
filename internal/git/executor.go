// Package git performs version-control operations on a working copy. Every
// method assumes the caller holds the working copy's lock.
package git

import (
	"time"

	"go.uber.org/zap"
)

type Options struct {
	RemoteName    string
	RemoteTimeout time.Duration
	// FetchRetries bounds retries of transient fetch failures
	FetchRetries int
	// RetryInterval is the first backoff interval between fetch attempts
	RetryInterval time.Duration
	// PageSize caps the number of commits a history iterator yields
	PageSize int
}

// Executor runs git operations against working copies
type Executor struct {
	opts Options
	log  *zap.Logger
}

func New(opts Options, log *zap.Logger) *Executor {
	if opts.RemoteName == "" {
		opts.RemoteName = "origin"
	}
	if opts.RemoteTimeout <= 0 {
		opts.RemoteTimeout = 60 * time.Second
	}
	if opts.RetryInterval <= 0 {
		opts.RetryInterval = 200 * time.Millisecond
	}
	if opts.PageSize <= 0 {
		opts.PageSize = 100
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Executor{opts: opts, log: log}
}

// RemoteName returns the name of the configured remote
func (e *Executor) RemoteName() string {
	return e.opts.RemoteName
}
