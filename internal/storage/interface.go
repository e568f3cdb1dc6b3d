// Package storage persists application records and author profiles.
package storage

import (
	"context"

	"github.com/wahlandcase/appgit/internal/models"
)

// Store is the interface for persisting applications and git profiles.
// Implementations enforce that at most one application exists per
// (default application ID, branch name).
type Store interface {
	// CreateApplication persists a new application
	CreateApplication(ctx context.Context, app *models.Application) error

	// UpdateApplication replaces an existing application
	UpdateApplication(ctx context.Context, app *models.Application) error

	// GetApplication retrieves an application by ID
	GetApplication(ctx context.Context, id string) (*models.Application, error)

	// FindBranchApplication retrieves the application tracking branch of a root application
	FindBranchApplication(ctx context.Context, defaultAppID, branch string) (*models.Application, error)

	// ListBranchApplications retrieves every application of a root application, ordered by branch
	ListBranchApplications(ctx context.Context, defaultAppID string) ([]*models.Application, error)

	// DeleteApplication removes an application by ID
	DeleteApplication(ctx context.Context, id string) error

	// SaveProfile stores a profile under key ("default" or an application ID)
	SaveProfile(ctx context.Context, userID, key string, profile models.GitProfile) error

	// GetProfiles retrieves every profile of a user keyed like SaveProfile
	GetProfiles(ctx context.Context, userID string) (map[string]models.GitProfile, error)

	// Close closes the storage connection
	Close() error
}
