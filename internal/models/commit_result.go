package models

import "fmt"

// CommitResult is the outcome of a commit request
type CommitResult struct {
	Hash    string
	Branch  string
	Message string
	// Changed is false when there was nothing to commit
	Changed bool
	Pushed  bool
}

func (r CommitResult) String() string {
	if !r.Changed {
		return "Nothing to commit, working tree clean"
	}
	short := r.Hash
	if len(short) > 7 {
		short = short[:7]
	}
	s := fmt.Sprintf("[%s %s] %s", r.Branch, short, r.Message)
	if r.Pushed {
		s += " (pushed)"
	}
	return s
}
