package models

// DefaultProfileKey is the key of the caller's global profile in a profile map
const DefaultProfileKey = "default"

// GitProfile is the author identity used on commits
type GitProfile struct {
	AuthorName       string
	AuthorEmail      string
	UseGlobalProfile bool
}

// NewGitProfile creates a GitProfile
func NewGitProfile(name, email string, useGlobal bool) GitProfile {
	return GitProfile{
		AuthorName:       name,
		AuthorEmail:      email,
		UseGlobalProfile: useGlobal,
	}
}

// IsComplete returns true if both name and email are set
func (p GitProfile) IsComplete() bool {
	return p.AuthorName != "" && p.AuthorEmail != ""
}
