package models

import "time"

// GitLog contains information about a git commit
type GitLog struct {
	// Hash is the full commit hash
	Hash        string
	AuthorName  string
	AuthorEmail string
	// Message is the first line of commit message
	Message     string
	CommittedAt time.Time
	// Parents are the full parent hashes; merge commits have two
	Parents []string
}

// NewGitLog creates a new GitLog
func NewGitLog(hash, authorName, authorEmail, message string, committedAt time.Time, parents []string) GitLog {
	return GitLog{
		Hash:        hash,
		AuthorName:  authorName,
		AuthorEmail: authorEmail,
		Message:     message,
		CommittedAt: committedAt,
		Parents:     parents,
	}
}

// ShortHash returns the 7 character hash
func (l GitLog) ShortHash() string {
	if len(l.Hash) < 7 {
		return l.Hash
	}
	return l.Hash[:7]
}

// IsMerge returns true for commits with more than one parent
func (l GitLog) IsMerge() bool {
	return len(l.Parents) > 1
}
