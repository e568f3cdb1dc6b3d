package models

// PullStatus represents the status of a pull operation
type PullStatus int

const (
	PullUpdated    PullStatus = iota // Fast-forwarded to new commits
	PullUpToDate                     // Already up to date
	PullMerged                       // Diverged histories merged with a merge commit
	PullConflicted                   // Merge stopped on conflicts
)

func (s PullStatus) String() string {
	switch s {
	case PullUpdated:
		return "updated"
	case PullUpToDate:
		return "up-to-date"
	case PullMerged:
		return "merged"
	case PullConflicted:
		return "conflicted"
	default:
		return "unknown"
	}
}

// PullResult represents the result of pulling a branch
type PullResult struct {
	Status PullStatus
	// CommitCount is the number of new commits applied (PullUpdated, PullMerged)
	CommitCount int
	// MergeCommit is true when a merge commit was created
	MergeCommit      bool
	ConflictingFiles []string
}
