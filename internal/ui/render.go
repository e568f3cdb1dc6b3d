package ui

import (
	"fmt"
	"sort"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/wahlandcase/appgit/internal/errs"
	"github.com/wahlandcase/appgit/internal/models"
)

const timeLayout = "2006-01-02 15:04"

var (
	dimStyle  = lipgloss.NewStyle().Foreground(ColorDarkGray)
	boldStyle = lipgloss.NewStyle().Bold(true)
	hashStyle = lipgloss.NewStyle().Foreground(ColorYellow)
)

func iconLine(status, text string) string {
	icon, color := StatusIcon(status)
	return fmt.Sprintf("  %s %s", lipgloss.NewStyle().Foreground(color).Render(icon), text)
}

// Status renders the difference between a branch record and its last commit
func Status(s models.GitStatus, defaultBranch string) string {
	var b strings.Builder
	branch := lipgloss.NewStyle().Foreground(BranchColor(s.Branch, defaultBranch)).Bold(true).Render(s.Branch)
	fmt.Fprintf(&b, "On branch %s\n", branch)

	if s.RemoteTracked {
		switch {
		case s.Ahead > 0 && s.Behind > 0:
			fmt.Fprintf(&b, "Diverged from remote: %d ahead, %d behind\n", s.Ahead, s.Behind)
		case s.Ahead > 0:
			fmt.Fprintf(&b, "Ahead of remote by %d commit(s)\n", s.Ahead)
		case s.Behind > 0:
			fmt.Fprintf(&b, "Behind remote by %d commit(s)\n", s.Behind)
		default:
			b.WriteString("Up to date with remote\n")
		}
	}
	if s.MergePending {
		b.WriteString(lipgloss.NewStyle().Foreground(ColorRed).Bold(true).
			Render("Merge in progress: commit to conclude it or discard to abort") + "\n")
	}
	if s.ChangeCount() == 0 {
		if !s.MergePending {
			b.WriteString(dimStyle.Render("Nothing to commit, working tree clean") + "\n")
		}
		return b.String()
	}

	b.WriteString("\n" + SectionHeader("CHANGES", ColorCyan) + "\n")
	for _, p := range s.Added {
		b.WriteString(iconLine("added", "added:    "+p) + "\n")
	}
	for _, p := range s.Modified {
		b.WriteString(iconLine("modified", "modified: "+p) + "\n")
	}
	for _, p := range s.Removed {
		b.WriteString(iconLine("removed", "removed:  "+p) + "\n")
	}
	return b.String()
}

// Log renders commit history, newest first
func Log(logs []models.GitLog) string {
	if len(logs) == 0 {
		return dimStyle.Render("No commits yet") + "\n"
	}
	var b strings.Builder
	for _, l := range logs {
		merge := ""
		if l.IsMerge() {
			merge = dimStyle.Render(" (merge)")
		}
		fmt.Fprintf(&b, "%s %s%s\n", hashStyle.Render(l.ShortHash()), l.Message, merge)
		fmt.Fprintf(&b, "        %s\n", dimStyle.Render(fmt.Sprintf("%s <%s>  %s",
			l.AuthorName, l.AuthorEmail, l.CommittedAt.Local().Format(timeLayout))))
	}
	return b.String()
}

// Branches renders a branch listing. current marks the checked out branch.
func Branches(branches []models.GitBranch, current string) string {
	var b strings.Builder
	defaultBranch := ""
	for _, br := range branches {
		if br.IsDefault {
			defaultBranch = br.Name
		}
	}
	for _, br := range branches {
		style := lipgloss.NewStyle().Foreground(BranchColor(br.Name, defaultBranch))
		if br.Name == current {
			style = style.Bold(true)
		}
		var tags []string
		if br.IsDefault {
			tags = append(tags, "default")
		}
		switch {
		case br.RemoteOnly():
			tags = append(tags, "remote only")
		case br.Local && !br.Remote:
			tags = append(tags, "local only")
		}
		line := Arrow(br.Name == current) + style.Render(br.Name)
		if len(tags) > 0 {
			line += " " + dimStyle.Render("("+strings.Join(tags, ", ")+")")
		}
		b.WriteString(line + "\n")
	}
	return b.String()
}

// Pull renders a pull outcome
func Pull(r models.PullResult, branch string) string {
	switch r.Status {
	case models.PullUpdated:
		return iconLine("updated", fmt.Sprintf("Fast-forwarded %s by %d commit(s)", branch, r.CommitCount)) + "\n"
	case models.PullMerged:
		return iconLine("merged", fmt.Sprintf("Merged %d remote commit(s) into %s", r.CommitCount, branch)) + "\n"
	case models.PullConflicted:
		return conflicts(fmt.Sprintf("Pull into %s stopped on conflicts", branch), r.ConflictingFiles)
	default:
		return iconLine("up-to-date", "Already up to date") + "\n"
	}
}

// MergeStatus renders a merge preview
func MergeStatus(s models.MergeStatus, source, dest, defaultBranch string) string {
	var b strings.Builder
	b.WriteString(BranchFlowDiagram(source, dest, defaultBranch) + "\n\n")
	if len(s.ConflictingFiles) > 0 {
		b.WriteString(conflicts("Merge would conflict", s.ConflictingFiles))
		return b.String()
	}
	status := s.Status.String()
	text := s.Message
	if text == "" {
		text = "Can be merged (" + status + ")"
	}
	if !s.IsMergeable {
		status = "failed"
	}
	b.WriteString(iconLine(status, text) + "\n")
	return b.String()
}

// Merge renders a merge outcome
func Merge(r models.MergeResult) string {
	if !r.Merged() {
		return iconLine("up-to-date", "Already up to date") + "\n"
	}
	short := r.Hash
	if len(short) > 7 {
		short = short[:7]
	}
	return iconLine("merged", fmt.Sprintf("Merged %s into %s %s", r.Source, r.Destination, hashStyle.Render(short))) + "\n"
}

func conflicts(title string, files []string) string {
	var b strings.Builder
	b.WriteString(iconLine("conflicting", lipgloss.NewStyle().Foreground(ColorRed).Bold(true).Render(title)) + "\n")
	for _, f := range files {
		b.WriteString("      " + f + "\n")
	}
	return b.String()
}

// Application renders a record's identity and git metadata
func Application(app *models.Application) string {
	var b strings.Builder
	b.WriteString(boldStyle.Render(app.Name) + dimStyle.Render("  "+app.ID) + "\n")
	b.WriteString(KeyValue("pages", fmt.Sprint(len(app.Content.Pages)), 12) + "\n")
	b.WriteString(KeyValue("actions", fmt.Sprint(len(app.Content.Actions)), 12) + "\n")
	b.WriteString(KeyValue("datasources", fmt.Sprint(len(app.Content.Datasources)), 12) + "\n")
	b.WriteString(KeyValue("updated", app.UpdatedAt.Local().Format(timeLayout), 12) + "\n")
	if app.GitMetadata == nil {
		b.WriteString(KeyValue("git", dimStyle.Render("not enabled"), 12) + "\n")
		return b.String()
	}
	b.WriteString(Metadata(*app.GitMetadata))
	return b.String()
}

// Metadata renders git metadata
func Metadata(m models.GitApplicationMetadata) string {
	var b strings.Builder
	remote := m.RemoteURL
	if remote == "" {
		remote = dimStyle.Render("none")
	}
	b.WriteString(KeyValue("root", m.DefaultApplicationID, 12) + "\n")
	b.WriteString(KeyValue("branch", m.BranchName, 12) + "\n")
	b.WriteString(KeyValue("default", m.DefaultBranchName, 12) + "\n")
	b.WriteString(KeyValue("remote", remote, 12) + "\n")
	if m.RepositoryName != "" {
		b.WriteString(KeyValue("repository", m.RepositoryName, 12) + "\n")
	}
	if m.LastCommittedAt != nil {
		b.WriteString(KeyValue("committed", m.LastCommittedAt.Local().Format(timeLayout), 12) + "\n")
	}
	return b.String()
}

// Profiles renders a user's author profiles, the global one first
func Profiles(profiles map[string]models.GitProfile) string {
	keys := make([]string, 0, len(profiles))
	for k := range profiles {
		if k != models.DefaultProfileKey {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	if _, ok := profiles[models.DefaultProfileKey]; ok {
		keys = append([]string{models.DefaultProfileKey}, keys...)
	}

	var b strings.Builder
	for _, k := range keys {
		p := profiles[k]
		value := fmt.Sprintf("%s <%s>", p.AuthorName, p.AuthorEmail)
		if p.UseGlobalProfile {
			value = dimStyle.Render("uses global profile")
		}
		b.WriteString(KeyValue(k, value, 12) + "\n")
	}
	return b.String()
}

// Error renders a failed command. Merge conflicts list their files.
func Error(err error) string {
	msg := lipgloss.NewStyle().Foreground(ColorRed).Bold(true).Render("error:") + " " + err.Error()
	if files := errs.ConflictingFiles(err); len(files) > 0 {
		return msg + "\n" + conflicts("Conflicting files", files)
	}
	return msg
}
