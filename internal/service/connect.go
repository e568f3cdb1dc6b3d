package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/wahlandcase/appgit/internal/errs"
	"github.com/wahlandcase/appgit/internal/git"
	"github.com/wahlandcase/appgit/internal/models"
	"github.com/wahlandcase/appgit/internal/repository"
	"github.com/wahlandcase/appgit/internal/serializer"
	"github.com/wahlandcase/appgit/internal/storage"
)

const (
	readmeFile           = "README.md"
	initialCommitMessage = "Initial commit"
)

// ConnectRequest carries what connect needs besides the application
type ConnectRequest struct {
	RemoteURL string
	// GitAuthRef names a [credentials.<ref>] section; empty means anonymous
	GitAuthRef    string
	IsRepoPrivate bool
	// Profile, when set, is saved as the application's author profile
	Profile *models.GitProfile
}

// Connect attaches a root application to an empty remote repository, commits
// its content and pushes the default branch. origin is recorded in the README.
func (s *GitService) Connect(ctx context.Context, user models.User, defaultAppID string, req ConnectRequest, origin string) (*models.Application, error) {
	if strings.TrimSpace(req.RemoteURL) == "" {
		return nil, errs.Invalid("remote url", "must not be empty")
	}
	ctx, release, err := s.lock(ctx, defaultAppID, true)
	if err != nil {
		return nil, err
	}
	defer release()
	log := s.log.With(zap.String("application_id", defaultAppID), zap.String("remote_url", req.RemoteURL))

	root, err := s.store.GetApplication(ctx, defaultAppID)
	if err != nil {
		if storage.IsNotFoundError(err) {
			return nil, errs.Invalid("application", defaultAppID+" not found")
		}
		return nil, err
	}
	if root.IsGitEnabled() && root.GitMetadata.IsConnected() {
		return nil, errs.Invalid("application", "already connected to "+root.GitMetadata.RemoteURL)
	}

	auth, err := s.creds.Resolve(req.GitAuthRef)
	if err != nil {
		return nil, err
	}
	if req.Profile != nil {
		if _, err := s.SaveProfile(ctx, user, *req.Profile, defaultAppID); err != nil {
			return nil, err
		}
	}
	author, err := s.author(ctx, user, defaultAppID)
	if err != nil {
		return nil, err
	}

	defaultBranch := s.defaultBranch
	if root.IsGitEnabled() {
		defaultBranch = root.GitMetadata.DefaultBranchName
	}

	wc, created, err := s.attachRemote(ctx, defaultAppID, defaultBranch, req)
	if err != nil {
		return nil, err
	}
	cleanup := func() {
		if created {
			if err := s.repos.Remove(defaultAppID); err != nil {
				log.Warn("failed to remove working copy", zap.Error(err))
			}
		} else if err := s.exec.RemoveRemote(wc); err != nil {
			log.Warn("failed to detach remote", zap.Error(err))
		}
	}

	if root.GitMetadata == nil {
		meta := models.NewGitApplicationMetadata(defaultAppID, defaultBranch)
		root.GitMetadata = &meta
	}
	root.GitMetadata.RemoteURL = req.RemoteURL
	root.GitMetadata.RepositoryName = repositoryName(req.RemoteURL)
	root.GitMetadata.GitAuthRef = req.GitAuthRef
	root.GitMetadata.IsRepoPrivate = req.IsRepoPrivate

	tree, err := serializer.Export(root)
	if err != nil {
		cleanup()
		return nil, err
	}
	tree[readmeFile] = readme(root.Name, origin)
	if _, err := s.exec.Commit(wc, defaultBranch, tree, initialCommitMessage, author); err != nil {
		cleanup()
		return nil, err
	}
	if _, err := s.exec.Push(ctx, wc, defaultBranch, auth); err != nil {
		cleanup()
		return nil, err
	}

	if tip, err := s.exec.TipCommit(wc, defaultBranch); err == nil {
		committed := tip.CommittedAt.UTC()
		root.GitMetadata.LastCommittedAt = &committed
	}
	root.UpdatedAt = time.Now().UTC()
	if err := s.store.UpdateApplication(ctx, root); err != nil {
		cleanup()
		return nil, err
	}
	s.branches.Invalidate(defaultAppID)

	log.Info("connected application", zap.String("branch", defaultBranch))
	return root, nil
}

// attachRemote prepares a working copy whose remote is req.RemoteURL. The
// remote must be empty; created reports whether the working copy is new.
func (s *GitService) attachRemote(ctx context.Context, defaultAppID, defaultBranch string, req ConnectRequest) (*repository.WorkingCopy, bool, error) {
	auth, err := s.creds.Resolve(req.GitAuthRef)
	if err != nil {
		return nil, false, err
	}

	if s.repos.Exists(defaultAppID) {
		wc, err := s.repos.Open(defaultAppID)
		if err != nil {
			return nil, false, err
		}
		if err := s.exec.AddRemote(wc, req.RemoteURL); err != nil {
			return nil, false, err
		}
		if err := s.exec.Fetch(ctx, wc, auth, true); err != nil {
			_ = s.exec.RemoveRemote(wc)
			return nil, false, err
		}
		if _, remote, err := s.exec.Branches(wc); err != nil || len(remote) > 0 {
			_ = s.exec.RemoveRemote(wc)
			if err != nil {
				return nil, false, err
			}
			return nil, false, errs.Invalid("remote url", "remote repository is not empty")
		}
		return wc, false, nil
	}

	wc, err := s.repos.Clone(ctx, req.RemoteURL, auth, defaultAppID)
	switch {
	case errors.Is(err, repository.ErrEmptyRemote):
		wc, err = s.repos.GetOrCreate(ctx, defaultAppID, defaultBranch)
		if err != nil {
			return nil, false, err
		}
		if err := s.exec.AddRemote(wc, req.RemoteURL); err != nil {
			_ = s.repos.Remove(defaultAppID)
			return nil, false, err
		}
		return wc, true, nil
	case err != nil:
		return nil, false, err
	default:
		_ = s.repos.Remove(defaultAppID)
		return nil, false, errs.Invalid("remote url", "remote repository is not empty")
	}
}

func readme(appName, origin string) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", appName)
	b.WriteString("This repository holds the versioned definition of the application.\n")
	if origin != "" {
		fmt.Fprintf(&b, "\nEdit it at %s.\n", origin)
	}
	return []byte(b.String())
}

// repositoryName derives a repository name from an https or scp-style URL
func repositoryName(url string) string {
	name := strings.TrimSuffix(strings.TrimRight(url, "/"), ".git")
	if i := strings.LastIndexAny(name, "/:"); i >= 0 {
		name = name[i+1:]
	}
	return name
}

// Initialize makes a root application git-enabled without a remote. Its
// content becomes the first commit on defaultBranch.
func (s *GitService) Initialize(ctx context.Context, user models.User, defaultAppID, defaultBranch string) (*models.Application, error) {
	if defaultBranch == "" {
		defaultBranch = s.defaultBranch
	}
	if err := git.ValidateBranchName(defaultBranch); err != nil {
		return nil, err
	}
	ctx, release, err := s.lock(ctx, defaultAppID, true)
	if err != nil {
		return nil, err
	}
	defer release()

	root, err := s.store.GetApplication(ctx, defaultAppID)
	if err != nil {
		if storage.IsNotFoundError(err) {
			return nil, errs.Invalid("application", defaultAppID+" not found")
		}
		return nil, err
	}
	if root.IsGitEnabled() {
		return nil, errs.Invalid("application", "already git-enabled")
	}
	if s.repos.Exists(defaultAppID) {
		return nil, errs.Invalid("application", "a working copy already exists for "+defaultAppID)
	}
	author, err := s.author(ctx, user, defaultAppID)
	if err != nil {
		return nil, err
	}
	tree, err := serializer.Export(root)
	if err != nil {
		return nil, err
	}

	wc, err := s.repos.GetOrCreate(ctx, defaultAppID, defaultBranch)
	if err != nil {
		return nil, err
	}
	if _, err := s.exec.Commit(wc, defaultBranch, tree, initialCommitMessage, author); err != nil {
		_ = s.repos.Remove(defaultAppID)
		return nil, err
	}

	meta := models.NewGitApplicationMetadata(defaultAppID, defaultBranch)
	if tip, err := s.exec.TipCommit(wc, defaultBranch); err == nil {
		committed := tip.CommittedAt.UTC()
		meta.LastCommittedAt = &committed
	}
	root.GitMetadata = &meta
	root.UpdatedAt = time.Now().UTC()
	if err := s.store.UpdateApplication(ctx, root); err != nil {
		_ = s.repos.Remove(defaultAppID)
		return nil, err
	}

	s.logger(defaultAppID, defaultBranch).Info("initialized application repository")
	return root, nil
}

// Disconnect detaches the remote from a root application. The working copy,
// its history and every branch record are kept; the records lose their remote
// URL and credential reference.
func (s *GitService) Disconnect(ctx context.Context, defaultAppID string) (*models.Application, error) {
	ctx, release, err := s.lock(ctx, defaultAppID, true)
	if err != nil {
		return nil, err
	}
	defer release()

	root, err := s.branches.Root(ctx, defaultAppID)
	if err != nil {
		return nil, err
	}
	if err := requireRemote(root); err != nil {
		return nil, err
	}
	wc, err := s.repos.Open(defaultAppID)
	if err != nil {
		return nil, err
	}
	if err := s.guardMerge(wc, ""); err != nil {
		return nil, err
	}
	if err := s.exec.RemoveRemote(wc); err != nil {
		return nil, err
	}

	apps, err := s.store.ListBranchApplications(ctx, defaultAppID)
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	for _, app := range apps {
		if app.GitMetadata == nil {
			continue
		}
		detach(app.GitMetadata)
		app.UpdatedAt = now
		if err := s.store.UpdateApplication(ctx, app); err != nil {
			return nil, err
		}
		if app.ID == root.ID {
			root = app
		}
	}
	s.branches.Invalidate(defaultAppID)

	s.log.Info("disconnected application",
		zap.String("application_id", defaultAppID),
		zap.Int("branch_records", len(apps)))
	return root, nil
}

func detach(meta *models.GitApplicationMetadata) {
	meta.RemoteURL = ""
	meta.GitAuthRef = ""
	meta.IsRepoPrivate = false
}
