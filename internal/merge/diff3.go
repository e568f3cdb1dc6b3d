package merge

import (
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"
)

// hunk is one changed region, in base line coordinates [Start, End) mapped to
// the other side's lines [OStart, OEnd)
type hunk struct {
	Start, End   int
	OStart, OEnd int
}

// Labels name the two sides in conflict markers
type Labels struct {
	Ours   string
	Theirs string
}

// splitLines splits text into lines that keep their trailing newline, the
// same way go-diff tokenizes lines
func splitLines(text string) []string {
	if text == "" {
		return nil
	}
	lines := strings.SplitAfter(text, "\n")
	if lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	return lines
}

// lineHunks diffs base against other line by line
func lineHunks(base, other string) []hunk {
	dmp := diffmatchpatch.New()
	dmp.DiffTimeout = 0
	r1, r2, _ := dmp.DiffLinesToRunes(base, other)
	diffs := dmp.DiffMainRunes(r1, r2, false)

	var (
		hunks []hunk
		cur   *hunk
		i, j  int
	)
	for _, d := range diffs {
		n := len([]rune(d.Text))
		switch d.Type {
		case diffmatchpatch.DiffEqual:
			if cur != nil {
				hunks = append(hunks, *cur)
				cur = nil
			}
			i += n
			j += n
		case diffmatchpatch.DiffDelete:
			if cur == nil {
				cur = &hunk{Start: i, End: i, OStart: j, OEnd: j}
			}
			i += n
			cur.End = i
		case diffmatchpatch.DiffInsert:
			if cur == nil {
				cur = &hunk{Start: i, End: i, OStart: j, OEnd: j}
			}
			j += n
			cur.OEnd = j
		}
	}
	if cur != nil {
		hunks = append(hunks, *cur)
	}
	return hunks
}

// touches reports whether h overlaps or abuts the base range [lo, hi].
// Adjacent edits are treated as conflicting, like git does.
func (h hunk) touches(lo, hi int) bool {
	return h.Start <= hi && lo <= h.End
}

// Merge3 performs a line-level three-way merge. Regions changed on only one
// side are taken from that side; regions changed identically on both sides
// are taken once; any other overlap is written with conflict markers and
// reported.
func Merge3(base, ours, theirs string, labels Labels) (string, bool) {
	baseLines := splitLines(base)
	ourLines := splitLines(ours)
	theirLines := splitLines(theirs)
	ha := lineHunks(base, ours)
	hb := lineHunks(base, theirs)

	var (
		out      strings.Builder
		conflict bool
		pos      int
		i, j     int
	)
	for i < len(ha) || j < len(hb) {
		var lo, hi int
		var ca, cb []hunk
		if j >= len(hb) || (i < len(ha) && ha[i].Start <= hb[j].Start) {
			lo, hi = ha[i].Start, ha[i].End
			ca = append(ca, ha[i])
			i++
		} else {
			lo, hi = hb[j].Start, hb[j].End
			cb = append(cb, hb[j])
			j++
		}

		// Grow the cluster until neither side has a hunk touching it
		for grew := true; grew; {
			grew = false
			for i < len(ha) && ha[i].touches(lo, hi) {
				ca = append(ca, ha[i])
				hi = max(hi, ha[i].End)
				i++
				grew = true
			}
			for j < len(hb) && hb[j].touches(lo, hi) {
				cb = append(cb, hb[j])
				hi = max(hi, hb[j].End)
				j++
				grew = true
			}
		}

		writeLines(&out, baseLines[pos:lo])
		pos = hi

		oursText := apply(baseLines, ourLines, ca, lo, hi)
		theirsText := apply(baseLines, theirLines, cb, lo, hi)
		switch {
		case len(cb) == 0:
			writeLines(&out, oursText)
		case len(ca) == 0:
			writeLines(&out, theirsText)
		case equalLines(oursText, theirsText):
			writeLines(&out, oursText)
		default:
			conflict = true
			out.WriteString("<<<<<<< " + labels.Ours + "\n")
			writeBlock(&out, oursText)
			out.WriteString("=======\n")
			writeBlock(&out, theirsText)
			out.WriteString(">>>>>>> " + labels.Theirs + "\n")
		}
	}
	writeLines(&out, baseLines[pos:])

	return out.String(), conflict
}

// apply rebuilds base[lo:hi] with one side's hunks applied
func apply(base, side []string, hunks []hunk, lo, hi int) []string {
	var res []string
	p := lo
	for _, h := range hunks {
		res = append(res, base[p:h.Start]...)
		res = append(res, side[h.OStart:h.OEnd]...)
		p = h.End
	}
	return append(res, base[p:hi]...)
}

func equalLines(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func writeLines(b *strings.Builder, lines []string) {
	for _, l := range lines {
		b.WriteString(l)
	}
}

// writeBlock writes a conflict side, terminating its last line so the next
// marker starts on its own line
func writeBlock(b *strings.Builder, lines []string) {
	writeLines(b, lines)
	if n := len(lines); n > 0 && !strings.HasSuffix(lines[n-1], "\n") {
		b.WriteString("\n")
	}
}
