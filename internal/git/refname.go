package git

import (
	"strings"

	"github.com/go-git/go-git/v5/plumbing"

	"github.com/wahlandcase/appgit/internal/errs"
)

// ValidateBranchName checks name against git's ref-format rules
func ValidateBranchName(name string) error {
	switch {
	case name == "":
		return errs.Invalid("branch name", "must not be empty")
	case strings.TrimSpace(name) != name || strings.ContainsAny(name, " \t"):
		return errs.Invalid("branch name", "must not contain spaces")
	case strings.HasPrefix(name, "/") || strings.HasSuffix(name, "/"):
		return errs.Invalid("branch name", "must not start or end with '/'")
	case strings.HasPrefix(name, "-"):
		return errs.Invalid("branch name", "must not start with '-'")
	case name == "HEAD":
		return errs.Invalid("branch name", "HEAD is reserved")
	}

	if err := plumbing.NewBranchReferenceName(name).Validate(); err != nil {
		return errs.Invalid("branch name", name+" is not a valid git reference name")
	}
	return nil
}
