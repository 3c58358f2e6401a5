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

package supervisor

import (
	"context"
	"fmt"
	"os/exec"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/doomcode/relay/controller/diffutil"
	"github.com/doomcode/relay/controller/patch"
	"github.com/doomcode/relay/controller/pty"
	"github.com/doomcode/relay/controller/scanner"
	"github.com/doomcode/relay/internal/logger"
	"github.com/doomcode/relay/internal/metrics"
	"github.com/doomcode/relay/pkg/payload"
)

// readChunkSize is the buffer size for each PTY read.
const readChunkSize = 4096

// Config configures one subprocess spawn.
type Config struct {
	AgentID   string
	Binary    string
	Args      []string
	Dir       string
	EnterMode EnterMode
	Style     *InputStyle // nil lets the backend pick its default
}

// Supervisor owns a single PTY-attached subprocess, the scanners reading
// its output, and the patch tracker recording accepted diffs. The
// supervisor's three concurrent activities — PTY read, transport read,
// timed callbacks — are modeled here as the PTY read loop (readLoop) plus
// externally driven calls (SendPrompt, HandlePermissionDecision, ...),
// which the caller's own transport read loop invokes; this package does
// not depend on the transport package to avoid a cycle.
type Supervisor struct {
	log      logger.Logger
	provider pty.Provider
	tracker  *patch.Tracker

	mu      sync.Mutex
	status  Status
	session pty.Session
	writer  *InputWriter
	cfg     Config

	permDetector *scanner.PermissionDetector
	diffExt      *scanner.DiffExtractor

	pending       map[string]*scanner.PermissionRequest
	lastPromptVal string
	appliedConfig *AppliedConfig
	seq           atomic.Uint64

	// OnOutput is invoked for every chunk read from the PTY, already
	// wrapped as a terminal_output payload with an assigned sequence.
	OnOutput func(p *payload.Envelope)
	// OnPermissionRequest is invoked when the scanner recognizes a prompt.
	OnPermissionRequest func(p *payload.Envelope)
	// OnDiffPatch is invoked when the scanner finishes parsing a diff.
	OnDiffPatch func(p *payload.Envelope)
	// OnStatusChange is invoked on every state transition.
	OnStatusChange func(status Status)
}

// New builds a Supervisor in the idle state, with the scanner window sized
// per defaultMaxWindowBytes.
func New(log logger.Logger, provider pty.Provider, tracker *patch.Tracker) *Supervisor {
	return NewWithScanWindow(log, provider, tracker, 0)
}

// NewWithScanWindow builds a Supervisor honoring the controller config's
// scan_window_bytes (ControllerConfig.ScanWindowBytes). A non-positive
// scanWindowBytes falls back to the scanner package's default.
func NewWithScanWindow(log logger.Logger, provider pty.Provider, tracker *patch.Tracker, scanWindowBytes int) *Supervisor {
	return &Supervisor{
		log:          log,
		provider:     provider,
		tracker:      tracker,
		status:       StatusIdle,
		permDetector: scanner.NewPermissionDetectorWithWindow(scanWindowBytes),
		diffExt:      scanner.NewDiffExtractorWithWindow(scanWindowBytes),
		pending:      make(map[string]*scanner.PermissionRequest),
	}
}

// Status reports the current lifecycle state.
func (s *Supervisor) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

func (s *Supervisor) setStatus(status Status) {
	s.mu.Lock()
	s.status = status
	cb := s.OnStatusChange
	s.mu.Unlock()
	if cb != nil {
		cb(status)
	}
}

// Start spawns the subprocess per cfg and begins the PTY read loop under
// ctx, returning once the loop's goroutine is launched. That goroutine
// (readLoop) runs until the subprocess exits or ctx is canceled; Start
// itself does not block on it.
func (s *Supervisor) Start(ctx context.Context, cfg Config) error {
	cmd := exec.CommandContext(ctx, cfg.Binary, cfg.Args...)
	cmd.Dir = cfg.Dir

	sess, err := s.provider.Start(cmd, pty.DefaultSize)
	if err != nil {
		s.setStatus(StatusError)
		metrics.PTYExits.WithLabelValues("error").Inc()
		return fmt.Errorf("supervisor: spawn failed: %w", err)
	}
	metrics.PTYSpawns.WithLabelValues(s.provider.Name()).Inc()

	isBridge := s.provider.Name() == "bridge"
	writer := NewInputWriter(sess, isBridge, cfg.EnterMode)

	s.mu.Lock()
	s.session = sess
	s.writer = writer
	s.cfg = cfg
	s.mu.Unlock()

	s.setStatus(StatusRunning)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return s.readLoop(gctx, sess) })
	g.Go(func() error {
		err := sess.Wait()
		if err != nil {
			metrics.PTYExits.WithLabelValues("signal").Inc()
		} else {
			metrics.PTYExits.WithLabelValues("normal").Inc()
		}
		s.setStatus(StatusIdle)
		return err
	})

	go func() {
		if err := g.Wait(); err != nil {
			s.log.Warn("supervisor subprocess exited", logger.AgentID(cfg.AgentID), logger.Error(err))
		}
	}()

	return nil
}

// readLoop is the PTY read loop: activity (1) of §5's three concurrent
// activities. It never blocks on the transport; output is handed off via
// OnOutput callbacks, which the caller must make non-blocking (e.g. by
// enqueueing to a channel) to preserve this guarantee.
func (s *Supervisor) readLoop(ctx context.Context, sess pty.Session) error {
	buf := make([]byte, readChunkSize)
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		n, err := sess.Read(buf)
		if n > 0 {
			metrics.PTYBytes.WithLabelValues("read").Add(float64(n))
			metrics.GetGlobalCollector().RecordPTYIO(true, n)
			s.handleChunk(buf[:n])
		}
		if err != nil {
			return err
		}
	}
}

func (s *Supervisor) handleChunk(chunk []byte) {
	if cb := s.OnOutput; cb != nil {
		cb(&payload.Envelope{
			Type:     payload.TypeTerminalOutput,
			Stream:   "stdout",
			Data:     string(chunk),
			Sequence: s.seq.Add(1),
		})
	}

	if req := s.permDetector.Feed(chunk); req != nil {
		metrics.GetGlobalCollector().RecordScannerHit()
		s.mu.Lock()
		s.pending[req.RequestID] = req
		s.mu.Unlock()
		s.setStatus(StatusWaitingInput)
		if cb := s.OnPermissionRequest; cb != nil {
			cb(&payload.Envelope{
				Type:        payload.TypePermissionRequest,
				RequestID:   req.RequestID,
				Action:      req.Action,
				Description: req.Description,
				Details:     req.Details,
			})
		}
	}

	if detected := s.diffExt.Feed(string(chunk)); detected != nil {
		metrics.GetGlobalCollector().RecordScannerHit()
		files := make([]payload.File, 0, len(detected.Files))
		for _, f := range detected.Files {
			files = append(files, payload.File{Path: f.Path, Additions: f.Additions, Deletions: f.Deletions})
		}

		doc := &diffutil.Document{}
		for _, f := range detected.Files {
			doc.Files = append(doc.Files, f)
		}
		if _, err := s.tracker.Prepare(detected.PatchID, s.cfg.AgentID, s.lastPrompt(), doc); err != nil {
			s.log.Warn("patch prepare failed", logger.PatchID(detected.PatchID), logger.Error(err))
		}

		if cb := s.OnDiffPatch; cb != nil {
			cb(&payload.Envelope{
				Type:           payload.TypeDiffPatch,
				PatchID:        detected.PatchID,
				Files:          files,
				Summary:        detected.Summary,
				EstimatedRisk:  detected.EstimatedRisk,
				TotalAdditions: detected.TotalAdditions,
				TotalDeletions: detected.TotalDeletions,
			})
		}
	}
}

// HandlePermissionDecision applies an operator's permission_response:
// writes y/n plus the configured enter suffix into the PTY and clears the
// pending entry, returning the supervisor to running.
func (s *Supervisor) HandlePermissionDecision(requestID, decision string) error {
	s.mu.Lock()
	_, ok := s.pending[requestID]
	delete(s.pending, requestID)
	writer := s.writer
	s.mu.Unlock()

	if !ok {
		return fmt.Errorf("supervisor: no pending permission request %q", requestID)
	}
	if writer == nil {
		return fmt.Errorf("supervisor: no active session")
	}

	reply := "n"
	if decision == "approve" || decision == "approve_always" {
		reply = "y"
	}
	if err := writer.lineWrite(reply); err != nil {
		return err
	}
	s.setStatus(StatusRunning)
	return nil
}

// SendPrompt injects prompt into the subprocess using the configured input
// discipline and records it as the last prompt for retry.
func (s *Supervisor) SendPrompt(ctx context.Context, prompt string) error {
	s.mu.Lock()
	writer := s.writer
	s.lastPromptVal = prompt
	s.mu.Unlock()

	if writer == nil {
		return fmt.Errorf("supervisor: no active session")
	}
	return writer.Send(ctx, prompt)
}

func (s *Supervisor) lastPrompt() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastPromptVal
}

// Stop cancels the subprocess per §5's cancellation semantics: pending
// input is dropped, any in-flight write is allowed to finish or fail
// (logged, never escalated), and status transitions to idle.
func (s *Supervisor) Stop() error {
	s.mu.Lock()
	sess := s.session
	s.session = nil
	s.writer = nil
	s.mu.Unlock()

	if sess == nil {
		s.setStatus(StatusIdle)
		return nil
	}
	err := sess.Close()
	metrics.PTYExits.WithLabelValues("stop_requested").Inc()
	s.setStatus(StatusIdle)
	return err
}

// Retry replays the last prompt through the same input-injection
// discipline, only valid when idle, per §4.5.6's `retry` command.
func (s *Supervisor) Retry(ctx context.Context) error {
	if s.Status() != StatusIdle {
		return fmt.Errorf("supervisor: retry only valid while idle")
	}
	prompt := s.lastPrompt()
	if prompt == "" {
		return fmt.Errorf("supervisor: no prior prompt to retry")
	}
	return s.SendPrompt(ctx, prompt)
}

// Tracker exposes the supervisor's patch tracker, used by the caller to
// service undo_request payloads.
func (s *Supervisor) Tracker() *patch.Tracker { return s.tracker }
