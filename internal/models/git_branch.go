package models

// GitBranch is one entry of a branch listing
type GitBranch struct {
	Name      string
	IsDefault bool
	// Local is true when refs/heads/<Name> exists
	Local bool
	// Remote is true when the remote tracking ref exists
	Remote bool
}

// RemoteOnly returns true if the branch has not been checked out locally
func (b GitBranch) RemoteOnly() bool {
	return b.Remote && !b.Local
}
