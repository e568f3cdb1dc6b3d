package models

// GitStatus is the difference between the last commit on a branch, the
// application's current content and the remote tracking branch
type GitStatus struct {
	Branch   string
	Added    []string
	Modified []string
	Removed  []string
	IsClean  bool
	// Ahead and Behind count commits relative to the remote tracking branch
	Ahead         int
	Behind        int
	RemoteTracked bool
	// MergePending is true while an unresolved pull merge is in the working copy
	MergePending bool
}

// ToMap renders the status as a flat map
func (s GitStatus) ToMap() map[string]any {
	return map[string]any{
		"branch":        s.Branch,
		"added":         s.Added,
		"modified":      s.Modified,
		"removed":       s.Removed,
		"isClean":       s.IsClean,
		"aheadCount":    s.Ahead,
		"behindCount":   s.Behind,
		"remoteTracked": s.RemoteTracked,
		"mergePending":  s.MergePending,
	}
}

// ChangeCount returns the total number of changed files
func (s GitStatus) ChangeCount() int {
	return len(s.Added) + len(s.Modified) + len(s.Removed)
}
