// Package merge computes three-way merges of committed trees without touching
// any working copy. Both the merge-status check and the merge itself go
// through Evaluate, so they always agree on the conflict set.
package merge

import (
	"bytes"
	"fmt"
	"sort"

	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"

	"github.com/wahlandcase/appgit/internal/models"
)

// CommitSource resolves commits; *git.Repository satisfies it
type CommitSource interface {
	CommitObject(h plumbing.Hash) (*object.Commit, error)
}

// Outcome is the result of a simulated merge of theirs into ours
type Outcome struct {
	Status models.MergeOutcome
	Ours   plumbing.Hash
	Theirs plumbing.Hash
	// Base is zero when the histories share no ancestor
	Base plumbing.Hash
	// Files is the complete merged tree. Conflicting paths hold conflict
	// markers. Nil when Status is MergeUpToDate.
	Files map[string][]byte
	// Conflicts is sorted
	Conflicts []string
}

// side is one tree of a merge: a committed tree, or a synthesized one when
// data is set
type side struct {
	files map[string]*object.File
	data  map[string][]byte
}

func (s side) has(p string) bool {
	if s.data != nil {
		_, ok := s.data[p]
		return ok
	}
	_, ok := s.files[p]
	return ok
}

func (s side) hash(p string) plumbing.Hash {
	if s.data != nil {
		if d, ok := s.data[p]; ok {
			return plumbing.ComputeHash(plumbing.BlobObject, d)
		}
		return plumbing.ZeroHash
	}
	if f, ok := s.files[p]; ok {
		return f.Hash
	}
	return plumbing.ZeroHash
}

func (s side) paths() []string {
	out := make([]string, 0, len(s.files)+len(s.data))
	for p := range s.files {
		out = append(out, p)
	}
	for p := range s.data {
		out = append(out, p)
	}
	return out
}

func (s side) content(p string) (string, bool, error) {
	if s.data != nil {
		d, ok := s.data[p]
		if !ok {
			return "", false, nil
		}
		return string(d), bytes.IndexByte(d, 0) >= 0, nil
	}
	f, ok := s.files[p]
	if !ok {
		return "", false, nil
	}
	bin, err := f.IsBinary()
	if err != nil {
		return "", false, err
	}
	c, err := f.Contents()
	return c, bin, err
}

// Evaluate merges theirs into ours in memory
func Evaluate(repo CommitSource, ours, theirs plumbing.Hash, labels Labels) (*Outcome, error) {
	out := &Outcome{Ours: ours, Theirs: theirs}
	if ours == theirs {
		out.Status = models.MergeUpToDate
		return out, nil
	}

	oc, err := repo.CommitObject(ours)
	if err != nil {
		return nil, fmt.Errorf("load commit %s: %w", ours, err)
	}
	tc, err := repo.CommitObject(theirs)
	if err != nil {
		return nil, fmt.Errorf("load commit %s: %w", theirs, err)
	}

	bases, err := oc.MergeBase(tc)
	if err != nil {
		return nil, fmt.Errorf("merge base: %w", err)
	}

	base := side{files: map[string]*object.File{}}
	if len(bases) > 0 {
		sortBases(bases)
		out.Base = bases[0].Hash
		if out.Base == theirs {
			out.Status = models.MergeUpToDate
			return out, nil
		}
		if base, err = virtualBase(bases, 0); err != nil {
			return nil, err
		}
	}

	o, err := flatten(oc)
	if err != nil {
		return nil, err
	}
	t, err := flatten(tc)
	if err != nil {
		return nil, err
	}

	if out.Base == ours {
		out.Status = models.MergeFastForward
		out.Files = make(map[string][]byte, len(t.files))
		for p := range t.files {
			c, _, err := t.content(p)
			if err != nil {
				return nil, err
			}
			out.Files[p] = []byte(c)
		}
		return out, nil
	}

	out.Files, out.Conflicts, err = mergeTrees(base, o, t, labels)
	if err != nil {
		return nil, err
	}

	if len(out.Conflicts) > 0 {
		out.Status = models.MergeConflicting
	} else {
		out.Status = models.MergeClean
	}
	return out, nil
}

// mergeTrees merges every path of the three trees. Conflicts come back sorted.
func mergeTrees(base, ours, theirs side, labels Labels) (map[string][]byte, []string, error) {
	paths := map[string]struct{}{}
	for _, s := range []side{base, ours, theirs} {
		for _, p := range s.paths() {
			paths[p] = struct{}{}
		}
	}

	files := make(map[string][]byte, len(paths))
	var conflicts []string
	for p := range paths {
		data, conflict, err := mergePath(p, base, ours, theirs, labels)
		if err != nil {
			return nil, nil, err
		}
		if conflict {
			conflicts = append(conflicts, p)
		}
		if data != nil {
			files[p] = data
		}
	}
	sort.Strings(conflicts)
	return files, conflicts, nil
}

// maxVirtualDepth bounds the recursion through criss-cross histories; past it
// the oldest base is used as is
const maxVirtualDepth = 8

var virtualLabels = Labels{Ours: "merged common ancestors", Theirs: "merged common ancestors"}

// virtualBase builds the base tree of a merge with several best common
// ancestors by merging them oldest first, each pair over its own merge base.
// Conflicts inside the virtual base keep their markers.
func virtualBase(bases []*object.Commit, depth int) (side, error) {
	if len(bases) == 1 || depth >= maxVirtualDepth {
		return flatten(bases[0])
	}
	acc, err := flatten(bases[0])
	if err != nil {
		return side{}, err
	}
	for _, next := range bases[1:] {
		inner, err := bases[0].MergeBase(next)
		if err != nil {
			return side{}, fmt.Errorf("merge base: %w", err)
		}
		innerBase := side{files: map[string]*object.File{}}
		if len(inner) > 0 {
			sortBases(inner)
			if innerBase, err = virtualBase(inner, depth+1); err != nil {
				return side{}, err
			}
		}
		n, err := flatten(next)
		if err != nil {
			return side{}, err
		}
		files, _, err := mergeTrees(innerBase, acc, n, virtualLabels)
		if err != nil {
			return side{}, err
		}
		acc = side{data: files}
	}
	return acc, nil
}

// sortBases orders merge bases oldest first, by hash on equal times
func sortBases(bases []*object.Commit) {
	sort.Slice(bases, func(i, j int) bool {
		a, b := bases[i].Committer.When, bases[j].Committer.When
		if !a.Equal(b) {
			return a.Before(b)
		}
		return bases[i].Hash.String() < bases[j].Hash.String()
	})
}

// mergePath resolves one path. A nil result means the path is deleted.
func mergePath(p string, base, ours, theirs side, labels Labels) ([]byte, bool, error) {
	b, o, t := base.hash(p), ours.hash(p), theirs.hash(p)

	pick := func(s side) ([]byte, bool, error) {
		c, ok, err := presentContent(s, p)
		if err != nil || !ok {
			return nil, false, err
		}
		return []byte(c), false, nil
	}

	switch {
	case o == t:
		return pick(ours)
	case o == b:
		return pick(theirs)
	case t == b:
		return pick(ours)
	}

	// Delete on one side, modify on the other: keep the modified content
	if o.IsZero() {
		data, _, err := pick(theirs)
		return data, true, err
	}
	if t.IsZero() {
		data, _, err := pick(ours)
		return data, true, err
	}

	bc, _, err := base.content(p)
	if err != nil {
		return nil, false, err
	}
	oc, obin, err := ours.content(p)
	if err != nil {
		return nil, false, err
	}
	tc, tbin, err := theirs.content(p)
	if err != nil {
		return nil, false, err
	}
	if obin || tbin {
		return []byte(oc), true, nil
	}

	merged, conflict := Merge3(bc, oc, tc, labels)
	return []byte(merged), conflict, nil
}

func presentContent(s side, p string) (string, bool, error) {
	if !s.has(p) {
		return "", false, nil
	}
	c, _, err := s.content(p)
	return c, err == nil, err
}

func flatten(c *object.Commit) (side, error) {
	tree, err := c.Tree()
	if err != nil {
		return side{}, fmt.Errorf("tree of %s: %w", c.Hash, err)
	}
	files := map[string]*object.File{}
	err = tree.Files().ForEach(func(f *object.File) error {
		files[f.Name] = f
		return nil
	})
	if err != nil {
		return side{}, fmt.Errorf("walk tree of %s: %w", c.Hash, err)
	}
	return side{files: files}, nil
}

// MergeStatus maps the outcome to the caller-facing merge status
func (o *Outcome) MergeStatus() models.MergeStatus {
	s := models.MergeStatus{Status: o.Status, ConflictingFiles: []string{}}
	switch o.Status {
	case models.MergeUpToDate:
		s.IsMergeable = true
		s.Message = "Already up to date"
	case models.MergeFastForward, models.MergeClean:
		s.IsMergeable = true
		s.Message = "Branches can be merged automatically"
	case models.MergeConflicting:
		s.ConflictingFiles = append(s.ConflictingFiles, o.Conflicts...)
		s.Message = fmt.Sprintf("Merge conflicts found in %d file(s)", len(o.Conflicts))
	}
	return s
}
