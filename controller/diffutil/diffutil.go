// Copyright (C) 2025 doomcode
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as
// published by the Free Software Foundation, either version 3 of the
// License, or (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with this program. If not, see <https://www.gnu.org/licenses/>.

// SPDX-License-Identifier: LGPL-3.0-or-later

// Package diffutil parses and formats unified diffs: the textual format
// "diff --git"/"--- a/"/"+++ b/"/"@@ ... @@" that the assistant subprocess
// emits and that the operator side renders as a preview.
package diffutil

import (
	"fmt"
	"strconv"
	"strings"
)

// LineKind tags one line within a hunk.
type LineKind int

const (
	LineContext LineKind = iota
	LineAddition
	LineDeletion
	LineHeader
)

// Line is one line of a hunk, without its leading +/-/space marker.
type Line struct {
	Kind LineKind
	Text string
}

// Hunk is one contiguous change region, as delimited by an "@@" header.
type Hunk struct {
	OldStart int
	OldLines int
	NewStart int
	NewLines int
	Header   string // optional trailing context after the second "@@"
	Lines    []Line
}

// File is one file's changes within a diff.
type File struct {
	Path        string // the "b/" path, or "a/" path for a pure deletion
	OldPath     string
	NewMode     bool
	DeletedMode bool
	RenameFrom  string
	RenameTo    string
	Binary      bool
	Hunks       []Hunk
	Additions   int
	Deletions   int
}

// Document is a fully parsed unified diff.
type Document struct {
	Files          []File
	TotalAdditions int
	TotalDeletions int
}

var devNull = "/dev/null"

// Parse parses raw unified-diff text into a Document. It tolerates
// multiple files concatenated one after another, as produced by `git diff`
// or an assistant narrating several edits in one breath.
func Parse(raw string) (*Document, error) {
	lines := strings.Split(raw, "\n")
	doc := &Document{}

	var cur *File
	var curHunk *Hunk

	flushHunk := func() {
		if cur != nil && curHunk != nil {
			cur.Hunks = append(cur.Hunks, *curHunk)
			curHunk = nil
		}
	}
	flushFile := func() {
		flushHunk()
		if cur != nil {
			doc.Files = append(doc.Files, *cur)
			doc.TotalAdditions += cur.Additions
			doc.TotalDeletions += cur.Deletions
			cur = nil
		}
	}

	for i := 0; i < len(lines); i++ {
		line := lines[i]

		switch {
		case strings.HasPrefix(line, "diff --git "):
			flushFile()
			cur = &File{}
			continue

		case strings.HasPrefix(line, "new file mode"):
			if cur != nil {
				cur.NewMode = true
			}
			continue

		case strings.HasPrefix(line, "deleted file mode"):
			if cur != nil {
				cur.DeletedMode = true
			}
			continue

		case strings.HasPrefix(line, "rename from "):
			if cur != nil {
				cur.RenameFrom = strings.TrimPrefix(line, "rename from ")
			}
			continue

		case strings.HasPrefix(line, "rename to "):
			if cur != nil {
				cur.RenameTo = strings.TrimPrefix(line, "rename to ")
				cur.Path = cur.RenameTo
			}
			continue

		case strings.HasPrefix(line, "Binary files "):
			if cur != nil {
				cur.Binary = true
			}
			continue

		case strings.HasPrefix(line, "--- "):
			flushHunk()
			if cur == nil {
				cur = &File{}
			}
			path := strings.TrimPrefix(line, "--- ")
			path = strings.TrimPrefix(path, "a/")
			if path != devNull {
				cur.OldPath = path
			}
			continue

		case strings.HasPrefix(line, "+++ "):
			path := strings.TrimPrefix(line, "+++ ")
			path = strings.TrimPrefix(path, "b/")
			if path != devNull {
				cur.Path = path
			} else if cur.Path == "" {
				cur.Path = cur.OldPath
			}
			continue

		case strings.HasPrefix(line, "@@"):
			flushHunk()
			if cur == nil {
				cur = &File{}
			}
			h, err := parseHunkHeader(line)
			if err != nil {
				return nil, fmt.Errorf("diffutil: %w", err)
			}
			curHunk = h
			continue
		}

		if curHunk == nil {
			continue
		}
		if line == "" && i == len(lines)-1 {
			continue
		}

		switch {
		case strings.HasPrefix(line, "+"):
			curHunk.Lines = append(curHunk.Lines, Line{Kind: LineAddition, Text: line[1:]})
			cur.Additions++
		case strings.HasPrefix(line, "-"):
			curHunk.Lines = append(curHunk.Lines, Line{Kind: LineDeletion, Text: line[1:]})
			cur.Deletions++
		case strings.HasPrefix(line, " "):
			curHunk.Lines = append(curHunk.Lines, Line{Kind: LineContext, Text: line[1:]})
		default:
			curHunk.Lines = append(curHunk.Lines, Line{Kind: LineContext, Text: line})
		}
	}
	flushFile()

	return doc, nil
}

// parseHunkHeader parses "@@ -o[,ol] +n[,nl] @@ [header]". A count omitted
// after a comma-less position means an implicit one-line hunk, per §4.5.4.
func parseHunkHeader(line string) (*Hunk, error) {
	body := strings.TrimPrefix(line, "@@ ")
	parts := strings.SplitN(body, " @@", 2)
	if len(parts) < 1 {
		return nil, fmt.Errorf("malformed hunk header: %q", line)
	}
	fields := strings.Fields(parts[0])
	if len(fields) != 2 {
		return nil, fmt.Errorf("malformed hunk header: %q", line)
	}

	oldStart, oldLines, err := parseRange(fields[0], "-")
	if err != nil {
		return nil, err
	}
	newStart, newLines, err := parseRange(fields[1], "+")
	if err != nil {
		return nil, err
	}

	h := &Hunk{OldStart: oldStart, OldLines: oldLines, NewStart: newStart, NewLines: newLines}
	if len(parts) == 2 {
		h.Header = strings.TrimSpace(parts[1])
	}
	return h, nil
}

func parseRange(field, sign string) (start, count int, err error) {
	field = strings.TrimPrefix(field, sign)
	pieces := strings.SplitN(field, ",", 2)
	start, err = strconv.Atoi(pieces[0])
	if err != nil {
		return 0, 0, fmt.Errorf("bad range %q: %w", field, err)
	}
	if len(pieces) == 1 {
		return start, 1, nil
	}
	count, err = strconv.Atoi(pieces[1])
	if err != nil {
		return 0, 0, fmt.Errorf("bad range %q: %w", field, err)
	}
	return start, count, nil
}

// Format renders a Document back to unified-diff text, used to build the
// reverse diff the patch tracker stores for undo.
func Format(doc *Document) string {
	var b strings.Builder
	for _, f := range doc.Files {
		path := f.Path
		if path == "" {
			path = f.OldPath
		}
		oldPath := f.OldPath
		if oldPath == "" {
			oldPath = path
		}
		fmt.Fprintf(&b, "diff --git a/%s b/%s\n", oldPath, path)
		if f.NewMode {
			fmt.Fprintf(&b, "new file mode 100644\n")
		}
		if f.DeletedMode {
			fmt.Fprintf(&b, "deleted file mode 100644\n")
		}
		fmt.Fprintf(&b, "--- %s\n", diffSide(f.DeletedMode, "a/"+oldPath))
		fmt.Fprintf(&b, "+++ %s\n", diffSide(f.NewMode, "b/"+path))
		for _, h := range f.Hunks {
			fmt.Fprintf(&b, "@@ -%d,%d +%d,%d @@", h.OldStart, h.OldLines, h.NewStart, h.NewLines)
			if h.Header != "" {
				fmt.Fprintf(&b, " %s", h.Header)
			}
			b.WriteByte('\n')
			for _, l := range h.Lines {
				switch l.Kind {
				case LineAddition:
					b.WriteByte('+')
				case LineDeletion:
					b.WriteByte('-')
				default:
					b.WriteByte(' ')
				}
				b.WriteString(l.Text)
				b.WriteByte('\n')
			}
		}
	}
	return b.String()
}

func diffSide(isNullSide bool, path string) string {
	if isNullSide {
		return devNull
	}
	return path
}

// Reverse builds the reverse diff of a Document: additions become
// deletions and vice versa, and each file's two sides are exchanged as
// well (Path/OldPath and NewMode/DeletedMode swap), so the reversed
// diff's +++/--- headers name the sides in the opposite order from the
// original rather than being left as they were.
func Reverse(doc *Document) *Document {
	out := &Document{}
	for _, f := range doc.Files {
		rf := File{
			Path:        f.OldPath,
			OldPath:     f.Path,
			NewMode:     f.DeletedMode,
			DeletedMode: f.NewMode,
			Binary:      f.Binary,
		}
		for _, h := range f.Hunks {
			rh := Hunk{
				OldStart: h.NewStart,
				OldLines: h.NewLines,
				NewStart: h.OldStart,
				NewLines: h.OldLines,
				Header:   h.Header,
			}
			for _, l := range h.Lines {
				switch l.Kind {
				case LineAddition:
					rh.Lines = append(rh.Lines, Line{Kind: LineDeletion, Text: l.Text})
					rf.Deletions++
				case LineDeletion:
					rh.Lines = append(rh.Lines, Line{Kind: LineAddition, Text: l.Text})
					rf.Additions++
				default:
					rh.Lines = append(rh.Lines, l)
				}
			}
			rf.Hunks = append(rf.Hunks, rh)
		}
		out.Files = append(out.Files, rf)
		out.TotalAdditions += rf.Additions
		out.TotalDeletions += rf.Deletions
	}
	return out
}
