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

package scanner

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/doomcode/relay/controller/diffutil"
	"github.com/doomcode/relay/internal/metrics"
)

// Risk estimates carried on a detected diff.
const (
	RiskLow    = "low"
	RiskMedium = "medium"
	RiskHigh   = "high"
)

var diffStartMarkers = []*regexp.Regexp{
	regexp.MustCompile(`^diff --git `),
	regexp.MustCompile(`^--- a/`),
}

var diffEndMarkers = []*regexp.Regexp{
	regexp.MustCompile(`\n\n\n`),
	regexp.MustCompile(`(?i)\$\s*$`),                       // shell prompt tail
	regexp.MustCompile(`(?i)\d+ files? changed`),
	regexp.MustCompile(`(?i)(?:patch )?applied`),
}

var sensitivePathPattern = regexp.MustCompile(`(?i)(\.env|config|secret|\.key|password|auth|package\.json|go\.mod|Dockerfile|\.ya?ml)`)

// DetectedDiff is a fully parsed, risk-scored diff ready to become a
// diff_patch payload.
type DetectedDiff struct {
	PatchID        string
	Files          []diffutil.File
	Summary        string
	EstimatedRisk  string
	TotalAdditions int
	TotalDeletions int
	Raw            string
}

// DiffExtractor is a stateful scanner watching for unified-diff text
// embedded in subprocess output. Not safe for concurrent use.
type DiffExtractor struct {
	inDiff    bool
	buffer    strings.Builder
	maxWindow int
	tailSize  int
}

// NewDiffExtractor returns an extractor starting outside diff mode, bounded
// at defaultMaxWindowBytes.
func NewDiffExtractor() *DiffExtractor {
	return NewDiffExtractorWithWindow(defaultMaxWindowBytes)
}

// NewDiffExtractorWithWindow returns an extractor honoring the controller
// config's scan_window_bytes, the same §4.5.3 hygiene ceiling
// PermissionDetector enforces. A non-positive size falls back to
// defaultMaxWindowBytes.
func NewDiffExtractorWithWindow(maxWindow int) *DiffExtractor {
	if maxWindow <= 0 {
		maxWindow = defaultMaxWindowBytes
	}
	return &DiffExtractor{maxWindow: maxWindow, tailSize: int(float64(maxWindow) * truncatedTailFraction)}
}

// Feed appends a chunk of output and reports a DetectedDiff once the
// in-diff mode ends and the accumulated buffer parses into at least one
// file. Returns nil while still accumulating or if the buffer held no
// parseable files on exit.
//
// An assistant stream that enters diff mode but never reaches an end
// marker would otherwise grow the buffer without bound; once it exceeds
// maxWindow it is truncated to its tail, same as PermissionDetector's
// window. A diff truncated this way no longer parses, since it loses its
// leading "diff --git"/"---" header, so Feed simply yields no detection
// for it rather than a corrupted one.
func (e *DiffExtractor) Feed(chunk string) *DetectedDiff {
	if !e.inDiff {
		if !startsDiff(chunk) {
			return nil
		}
		e.inDiff = true
		e.buffer.Reset()
	}

	e.buffer.WriteString(chunk)
	if e.buffer.Len() > e.maxWindow {
		tail := e.buffer.String()[e.buffer.Len()-e.tailSize:]
		e.buffer.Reset()
		e.buffer.WriteString(tail)
	}

	if !endsDiff(e.buffer.String()) {
		return nil
	}

	raw := e.buffer.String()
	e.inDiff = false
	e.buffer.Reset()

	doc, err := diffutil.Parse(raw)
	if err != nil || len(doc.Files) == 0 {
		return nil
	}

	totalAdd, totalDel := 0, 0
	for _, f := range doc.Files {
		totalAdd += f.Additions
		totalDel += f.Deletions
	}

	metrics.ScannerDetections.WithLabelValues("diff").Inc()
	return &DetectedDiff{
		PatchID:        uuid.NewString(),
		Files:          doc.Files,
		Summary:        summarize(doc.Files),
		EstimatedRisk:  estimateRisk(doc.Files, totalAdd+totalDel),
		TotalAdditions: totalAdd,
		TotalDeletions: totalDel,
		Raw:            raw,
	}
}

func startsDiff(chunk string) bool {
	for _, re := range diffStartMarkers {
		if re.MatchString(chunk) {
			return true
		}
	}
	return false
}

func endsDiff(buffer string) bool {
	for _, re := range diffEndMarkers {
		if re.MatchString(buffer) {
			return true
		}
	}
	return false
}

func summarize(files []diffutil.File) string {
	if len(files) == 1 {
		return "Modified " + files[0].Path
	}
	return strings.Join([]string{files[0].Path, "and", strconv.Itoa(len(files) - 1), "more file(s)"}, " ")
}

func estimateRisk(files []diffutil.File, totalChanges int) string {
	sensitive := false
	for _, f := range files {
		if sensitivePathPattern.MatchString(f.Path) {
			sensitive = true
			break
		}
	}
	switch {
	case sensitive || len(files) > 10 || totalChanges > 500:
		return RiskHigh
	case len(files) > 5 || totalChanges > 100:
		return RiskMedium
	default:
		return RiskLow
	}
}
