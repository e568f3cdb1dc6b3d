package models

// MergeOutcome classifies how a source branch relates to a destination branch
type MergeOutcome int

const (
	MergeUpToDate    MergeOutcome = iota // Destination already contains source
	MergeFastForward                     // Destination is an ancestor of source
	MergeClean                           // Diverged, merges without conflicts
	MergeConflicting                     // Diverged with overlapping changes
)

func (o MergeOutcome) String() string {
	switch o {
	case MergeUpToDate:
		return "up-to-date"
	case MergeFastForward:
		return "fast-forward"
	case MergeClean:
		return "clean"
	case MergeConflicting:
		return "conflicting"
	default:
		return "unknown"
	}
}

// MergeStatus is computed on every request and never persisted
type MergeStatus struct {
	IsMergeable      bool
	ConflictingFiles []string
	Message          string
	Status           MergeOutcome
}
