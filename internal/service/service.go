// Package service exposes the versioning operations on application records.
// Every operation takes the root application's lock before touching its
// working copy: exclusive for operations that change history or records,
// shared for read-only ones.
package service

import (
	"context"
	"strings"
	"time"

	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/plumbing/transport"
	"go.uber.org/zap"

	"github.com/wahlandcase/appgit/internal/branch"
	"github.com/wahlandcase/appgit/internal/credentials"
	"github.com/wahlandcase/appgit/internal/errs"
	"github.com/wahlandcase/appgit/internal/git"
	"github.com/wahlandcase/appgit/internal/models"
	"github.com/wahlandcase/appgit/internal/repository"
	"github.com/wahlandcase/appgit/internal/storage"
)

// GitService is the engine facade
type GitService struct {
	store         storage.Store
	repos         *repository.Manager
	exec          *git.Executor
	branches      *branch.Mapper
	creds         credentials.Resolver
	defaultBranch string
	log           *zap.Logger
}

// Options configures a GitService
type Options struct {
	Store       storage.Store
	Repos       *repository.Manager
	Exec        *git.Executor
	Credentials credentials.Resolver
	// DefaultBranch names the first branch of newly initialized repositories
	DefaultBranch   string
	BranchCacheSize int
	Logger          *zap.Logger
}

func New(opts Options) *GitService {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	if opts.DefaultBranch == "" {
		opts.DefaultBranch = "main"
	}
	if opts.Credentials == nil {
		opts.Credentials = credentials.NewProvider(nil)
	}
	return &GitService{
		store:         opts.Store,
		repos:         opts.Repos,
		exec:          opts.Exec,
		branches:      branch.NewMapper(opts.Store, opts.Repos, opts.Exec, opts.BranchCacheSize, log),
		creds:         opts.Credentials,
		defaultBranch: opts.DefaultBranch,
		log:           log,
	}
}

// lock acquires the root application's lock. The returned context no longer
// follows caller cancellation: once acquired, an operation runs to completion
// within the remote timeout.
func (s *GitService) lock(ctx context.Context, defaultAppID string, exclusive bool) (context.Context, func(), error) {
	if defaultAppID == "" {
		return nil, nil, errs.Invalid("application", "default application ID is required")
	}
	acquire := s.repos.RLock
	if exclusive {
		acquire = s.repos.Lock
	}
	release, err := acquire(ctx, defaultAppID)
	if err != nil {
		return nil, nil, err
	}
	return context.WithoutCancel(ctx), release, nil
}

// auth resolves the credentials configured for a root application
func (s *GitService) auth(root *models.Application) (transport.AuthMethod, error) {
	if root.GitMetadata == nil {
		return nil, nil
	}
	return s.creds.Resolve(root.GitMetadata.GitAuthRef)
}

// requireRemote fails for root applications that were initialized but never connected
func requireRemote(root *models.Application) error {
	if !root.GitMetadata.IsConnected() {
		return &errs.NotConnectedError{ApplicationID: root.ID, Reason: "no remote repository connected"}
	}
	return nil
}

// guardMerge rejects operations while a pull merge awaits resolution.
// allowBranch names the branch whose commit may conclude the merge.
func (s *GitService) guardMerge(wc *repository.WorkingCopy, allowBranch string) error {
	_, pending, err := s.exec.MergeHead(wc)
	if err != nil || !pending {
		return err
	}
	current, _ := s.exec.CurrentBranch(wc)
	if allowBranch != "" && current == allowBranch {
		return nil
	}
	return errs.Invalid("branch", "a merge is in progress on "+current+", commit or discard it first")
}

func (s *GitService) logger(defaultAppID, branch string) *zap.Logger {
	return s.log.With(zap.String("application_id", defaultAppID), zap.String("branch", branch))
}

// SaveProfile stores profile for user, globally when defaultAppID is empty,
// and returns all of the user's profiles
func (s *GitService) SaveProfile(ctx context.Context, user models.User, profile models.GitProfile, defaultAppID string) (map[string]models.GitProfile, error) {
	if user.ID == "" {
		return nil, errs.Invalid("user", "user ID is required")
	}
	key := defaultAppID
	if key == "" {
		key = models.DefaultProfileKey
		profile.UseGlobalProfile = false
	}
	profile.AuthorName = strings.TrimSpace(profile.AuthorName)
	profile.AuthorEmail = strings.TrimSpace(profile.AuthorEmail)
	if !profile.UseGlobalProfile && !profile.IsComplete() {
		return nil, errs.Invalid("profile", "author name and email are required")
	}

	if err := s.store.SaveProfile(ctx, user.ID, key, profile); err != nil {
		return nil, err
	}
	return s.store.GetProfiles(ctx, user.ID)
}

// GetProfile returns the profile used for defaultAppID, falling back to the
// global profile when the application has none of its own
func (s *GitService) GetProfile(ctx context.Context, user models.User, defaultAppID string) (models.GitProfile, error) {
	profiles, err := s.store.GetProfiles(ctx, user.ID)
	if err != nil {
		return models.GitProfile{}, err
	}
	if defaultAppID != "" {
		if p, ok := profiles[defaultAppID]; ok && !p.UseGlobalProfile {
			return p, nil
		}
	}
	global, ok := profiles[models.DefaultProfileKey]
	if !ok {
		global = models.NewGitProfile(user.Name, user.Email, false)
	}
	global.UseGlobalProfile = defaultAppID != ""
	return global, nil
}

// author resolves the commit identity: the application's own profile, else
// the user's global profile, else the user record
func (s *GitService) author(ctx context.Context, user models.User, defaultAppID string) (*object.Signature, error) {
	profile, err := s.GetProfile(ctx, user, defaultAppID)
	if err != nil {
		return nil, err
	}
	if !profile.IsComplete() {
		return nil, errs.Invalid("profile", "no git author configured for user "+user.ID)
	}
	return &object.Signature{Name: profile.AuthorName, Email: profile.AuthorEmail, When: time.Now()}, nil
}

// GetMetadata returns the git metadata of a root application
func (s *GitService) GetMetadata(ctx context.Context, defaultAppID string) (models.GitApplicationMetadata, error) {
	ctx, release, err := s.lock(ctx, defaultAppID, false)
	if err != nil {
		return models.GitApplicationMetadata{}, err
	}
	defer release()

	root, err := s.branches.Root(ctx, defaultAppID)
	if err != nil {
		return models.GitApplicationMetadata{}, err
	}
	return *root.GitMetadata, nil
}
