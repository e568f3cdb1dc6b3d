package models

import "time"

// Application is the logical entity users edit. A root application owns one
// branch application per git branch once it is git-enabled.
type Application struct {
	ID          string
	Name        string
	WorkspaceID string
	// GitMetadata is nil until the application is initialized or connected
	GitMetadata *GitApplicationMetadata
	Content     ApplicationContent
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// NewApplication creates an application that is not yet git-enabled
func NewApplication(id, name string, content ApplicationContent) Application {
	now := time.Now().UTC()
	return Application{
		ID:        id,
		Name:      name,
		Content:   content,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// IsGitEnabled returns true once the application has git metadata
func (a *Application) IsGitEnabled() bool {
	return a.GitMetadata != nil && a.GitMetadata.DefaultApplicationID != ""
}

// BranchName returns the branch this application tracks, or "" when not git-enabled
func (a *Application) BranchName() string {
	if a.GitMetadata == nil {
		return ""
	}
	return a.GitMetadata.BranchName
}

// DefaultApplicationID returns the root application ID (the application's own
// ID when it is the root or is not git-enabled)
func (a *Application) DefaultApplicationID() string {
	if a.GitMetadata == nil || a.GitMetadata.DefaultApplicationID == "" {
		return a.ID
	}
	return a.GitMetadata.DefaultApplicationID
}
