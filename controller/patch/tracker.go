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

// Package patch tracks accepted diffs so they can be undone later:
// recording a reverse diff and before/after content hashes per file, and
// applying the reverse diff on request.
package patch

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/doomcode/relay/controller/diffutil"
	"github.com/doomcode/relay/internal/metrics"
)

// defaultMaxHistory bounds the tracker's history per §4.5.5: oldest evicted
// past this size unless NewTrackerWithHistory or NewTrackerWithLimits is
// given a positive size.
const defaultMaxHistory = 50

// maxRestoreBytes bounds how large a deleted file's reconstructed pre-image
// may be before undo refuses it outright rather than risk a lossy restore.
const maxRestoreBytes = 1 << 20 // 1 MiB

// FileRecord is one file's before/after state within an AppliedPatch.
type FileRecord struct {
	Path             string
	BeforeHash       string
	AfterHash        string
	ReverseDoc       *diffutil.Document // per-file reverse diff, one File entry
	TooLargeToRestore bool              // deletion whose pre-image exceeds the tracker's maxRestoreSize
}

// AppliedPatch tracks a single accepted diff, matching the wire shape
// documented in §3's glossary.
type AppliedPatch struct {
	PatchID   string
	Timestamp int64
	AgentID   string
	Prompt    string
	Files     []FileRecord
}

// UndoResult reports the outcome of an undo attempt.
type UndoResult struct {
	Success       bool
	RevertedFiles []string
	Error         string
}

// Tracker serializes prepare/finalize/undo passes behind one mutex, per
// §5's "the patch tracker serializes its history behind one mutex".
type Tracker struct {
	mu             sync.Mutex
	history        []*AppliedPatch
	byID           map[string]*AppliedPatch
	maxHistory     int
	maxRestoreSize int64
}

// NewTracker returns an empty tracker bounded at defaultMaxHistory and
// maxRestoreBytes.
func NewTracker() *Tracker {
	return NewTrackerWithHistory(defaultMaxHistory)
}

// NewTrackerWithHistory returns an empty tracker honoring the controller
// config's patch_history_size (ControllerConfig.PatchHistorySize). A
// non-positive size falls back to defaultMaxHistory.
func NewTrackerWithHistory(maxHistory int) *Tracker {
	return NewTrackerWithLimits(maxHistory, maxRestoreBytes)
}

// NewTrackerWithLimits returns an empty tracker honoring both
// ControllerConfig.PatchHistorySize and ControllerConfig.PatchMaxRestoreBytes.
// Non-positive values fall back to their package defaults.
func NewTrackerWithLimits(maxHistory int, maxRestoreSize int64) *Tracker {
	if maxHistory <= 0 {
		maxHistory = defaultMaxHistory
	}
	if maxRestoreSize <= 0 {
		maxRestoreSize = maxRestoreBytes
	}
	return &Tracker{byID: make(map[string]*AppliedPatch), maxHistory: maxHistory, maxRestoreSize: maxRestoreSize}
}

// Prepare reads each file's current on-disk content, records its SHA-256,
// and computes the reverse diff, pushing an AppliedPatch to the front of
// history. Call before the diff is shown to the operator, not after it's
// applied: the "before" hash must reflect pre-apply state.
func (t *Tracker) Prepare(patchID, agentID, prompt string, doc *diffutil.Document) (*AppliedPatch, error) {
	reversed := diffutil.Reverse(doc)

	records := make([]FileRecord, 0, len(doc.Files))
	for i, f := range doc.Files {
		path := f.Path
		if path == "" {
			path = f.OldPath
		}

		beforeHash, err := hashFile(path)
		if err != nil {
			metrics.PatchOperations.WithLabelValues("prepare", "failure").Inc()
			return nil, fmt.Errorf("patch: hash %s: %w", path, err)
		}

		rf := reversed.Files[i]
		record := FileRecord{
			Path:       path,
			BeforeHash: beforeHash,
			ReverseDoc: &diffutil.Document{Files: []diffutil.File{rf}},
		}

		// f.DeletedMode means the forward patch removed this file, so
		// reconstructing it on undo means replaying the reverse diff's
		// full addition content (rf.NewMode). Refuse up front rather than
		// risk a partial write for oversized pre-images.
		if f.DeletedMode && restoredSize(rf) > t.maxRestoreSize {
			record.TooLargeToRestore = true
		}

		records = append(records, record)
	}

	ap := &AppliedPatch{
		PatchID:   patchID,
		Timestamp: time.Now().UnixMilli(),
		AgentID:   agentID,
		Prompt:    prompt,
		Files:     records,
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	t.push(ap)
	metrics.PatchOperations.WithLabelValues("prepare", "success").Inc()
	return ap, nil
}

// Finalize re-reads each tracked file's content after the agent applies
// the patch and records its post-apply SHA-256.
func (t *Tracker) Finalize(patchID string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	ap, ok := t.byID[patchID]
	if !ok {
		metrics.PatchOperations.WithLabelValues("finalize", "failure").Inc()
		return fmt.Errorf("patch: unknown patchId %q", patchID)
	}
	for i := range ap.Files {
		hash, err := hashFile(ap.Files[i].Path)
		if err != nil {
			metrics.PatchOperations.WithLabelValues("finalize", "failure").Inc()
			return fmt.Errorf("patch: hash %s: %w", ap.Files[i].Path, err)
		}
		ap.Files[i].AfterHash = hash
	}
	metrics.PatchOperations.WithLabelValues("finalize", "success").Inc()
	return nil
}

// Undo reverts patchID: it verifies every tracked file is still at its
// recorded AfterHash, then applies each file's reverse diff in reverse
// file order, preferring the native patch tool before falling back to a
// manual line-based applier. On success the record is dropped from
// history.
func (t *Tracker) Undo(patchID string) UndoResult {
	t.mu.Lock()
	defer t.mu.Unlock()

	ap, ok := t.byID[patchID]
	if !ok {
		metrics.PatchOperations.WithLabelValues("undo", "failure").Inc()
		return UndoResult{Success: false, Error: fmt.Sprintf("unknown patchId %q", patchID)}
	}

	for _, fr := range ap.Files {
		if fr.TooLargeToRestore {
			metrics.PatchOperations.WithLabelValues("undo", "failure").Inc()
			return UndoResult{Success: false, Error: fmt.Sprintf("file %s: file-too-large-to-restore", fr.Path)}
		}
		hash, err := hashFile(fr.Path)
		if err != nil {
			metrics.PatchOperations.WithLabelValues("undo", "failure").Inc()
			return UndoResult{Success: false, Error: fmt.Sprintf("file %s missing or unreadable: %v", fr.Path, err)}
		}
		if hash != fr.AfterHash {
			metrics.PatchOperations.WithLabelValues("undo", "failure").Inc()
			return UndoResult{Success: false, Error: fmt.Sprintf("file %s has drifted since apply, refusing to undo", fr.Path)}
		}
	}

	reverted := make([]string, 0, len(ap.Files))
	for i := len(ap.Files) - 1; i >= 0; i-- {
		fr := ap.Files[i]
		if err := applyReverse(fr); err != nil {
			metrics.PatchOperations.WithLabelValues("undo", "failure").Inc()
			return UndoResult{Success: false, RevertedFiles: reverted, Error: fmt.Sprintf("file %s: %v", fr.Path, err)}
		}
		reverted = append(reverted, fr.Path)
	}

	delete(t.byID, patchID)
	for i, p := range t.history {
		if p.PatchID == patchID {
			t.history = append(t.history[:i], t.history[i+1:]...)
			break
		}
	}

	metrics.PatchOperations.WithLabelValues("undo", "success").Inc()
	return UndoResult{Success: true, RevertedFiles: reverted}
}

// History returns the tracker's current patches, newest first.
func (t *Tracker) History() []*AppliedPatch {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]*AppliedPatch, len(t.history))
	copy(out, t.history)
	return out
}

func (t *Tracker) push(ap *AppliedPatch) {
	t.history = append([]*AppliedPatch{ap}, t.history...)
	t.byID[ap.PatchID] = ap
	if len(t.history) > t.maxHistory {
		evicted := t.history[len(t.history)-1]
		t.history = t.history[:len(t.history)-1]
		delete(t.byID, evicted.PatchID)
	}
}

// restoredSize sums the byte length of a reverse file's addition and
// context lines, counting one trailing newline per line, i.e. the size of
// the content undo would write back to disk.
func restoredSize(f diffutil.File) int64 {
	var n int64
	for _, h := range f.Hunks {
		for _, l := range h.Lines {
			if l.Kind == diffutil.LineAddition || l.Kind == diffutil.LineContext {
				n += int64(len(l.Text)) + 1
			}
		}
	}
	return n
}

func hashFile(path string) (string, error) {
	content, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:]), nil
}

// applyReverse writes fr's reverse diff to disk, preferring the platform
// patch(1) tool (check via --dry-run before committing) and falling back
// to a manual line-based hunk applier when it's unavailable or rejects the
// diff.
func applyReverse(fr FileRecord) error {
	text := diffutil.Format(fr.ReverseDoc)

	if path, err := exec.LookPath("patch"); err == nil {
		if err := tryNativePatch(path, fr.Path, text); err == nil {
			return nil
		}
	}
	return applyManually(fr.Path, fr.ReverseDoc)
}

func tryNativePatch(patchBin, path, diffText string) error {
	check := exec.Command(patchBin, "--dry-run", path)
	check.Stdin = strings.NewReader(diffText)
	if err := check.Run(); err != nil {
		return err
	}

	apply := exec.Command(patchBin, path)
	apply.Stdin = strings.NewReader(diffText)
	return apply.Run()
}

// applyManually applies a single-file reverse diff by splicing hunk lines
// directly into the file's content, used when the native patch tool is
// absent or refuses the diff (e.g. a minimal container image).
func applyManually(path string, doc *diffutil.Document) error {
	if len(doc.Files) != 1 {
		return fmt.Errorf("expected exactly one file in reverse diff, got %d", len(doc.Files))
	}
	f := doc.Files[0]

	if f.DeletedMode {
		// A reverse diff whose new side is deleted means the forward
		// patch created the file; reversing it removes it again.
		return os.Remove(path)
	}

	original, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	oldLines := splitLines(string(original))

	var out []string
	cursor := 0
	for _, h := range f.Hunks {
		start := h.OldStart - 1
		if start < 0 {
			start = 0
		}
		out = append(out, oldLines[cursor:start]...)
		for _, l := range h.Lines {
			switch l.Kind {
			case diffutil.LineContext:
				out = append(out, l.Text)
			case diffutil.LineAddition:
				out = append(out, l.Text)
			case diffutil.LineDeletion:
				// omitted from output
			}
		}
		cursor = start + h.OldLines
	}
	out = append(out, oldLines[min(cursor, len(oldLines)):]...)

	return os.WriteFile(path, []byte(joinLines(out)), 0o644)
}

func splitLines(s string) []string {
	if s == "" {
		return nil
	}
	var lines []string
	start := 0
	for i := 0; i < len(s); i++ {
		if s[i] == '\n' {
			lines = append(lines, s[start:i])
			start = i + 1
		}
	}
	if start < len(s) {
		lines = append(lines, s[start:])
	}
	return lines
}

func joinLines(lines []string) string {
	out := ""
	for _, l := range lines {
		out += l + "\n"
	}
	return out
}
