package models

import "time"

// GitApplicationMetadata is attached to every git-enabled application
type GitApplicationMetadata struct {
	// DefaultApplicationID is the root application's ID
	DefaultApplicationID string
	// BranchName is the branch this record tracks
	BranchName string
	RemoteURL  string
	// DefaultBranchName is the remote's default branch
	DefaultBranchName string
	RepositoryName    string
	LastCommittedAt   *time.Time
	// GitAuthRef is an opaque reference resolved by the credentials provider
	GitAuthRef    string
	IsRepoPrivate bool
}

// NewGitApplicationMetadata creates metadata for the default branch of a root application
func NewGitApplicationMetadata(defaultApplicationID, defaultBranch string) GitApplicationMetadata {
	return GitApplicationMetadata{
		DefaultApplicationID: defaultApplicationID,
		BranchName:           defaultBranch,
		DefaultBranchName:    defaultBranch,
	}
}

// ForBranch returns a copy of the metadata pointing at another branch
func (m GitApplicationMetadata) ForBranch(branch string) GitApplicationMetadata {
	m.BranchName = branch
	if m.LastCommittedAt != nil {
		t := *m.LastCommittedAt
		m.LastCommittedAt = &t
	}
	return m
}

// IsConnected returns true when a remote is configured
func (m GitApplicationMetadata) IsConnected() bool {
	return m.RemoteURL != ""
}

// IsDefaultBranch returns true if this record tracks the default branch
func (m GitApplicationMetadata) IsDefaultBranch() bool {
	return m.BranchName == m.DefaultBranchName
}
