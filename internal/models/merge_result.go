package models

// MergeResult represents the result of merging one branch into another
type MergeResult struct {
	Source      string
	Destination string
	Status      MergeOutcome
	// Hash of the merge commit; empty when nothing was merged
	Hash    string
	Message string
}

// Merged returns true when a merge commit was created
func (r MergeResult) Merged() bool {
	return r.Hash != ""
}
