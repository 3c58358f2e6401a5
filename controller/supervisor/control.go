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

	"github.com/doomcode/relay/pkg/payload"
)

// Commands recognized by agent_control, per §4.5.6.
const (
	CommandStart     = "start"
	CommandStop      = "stop"
	CommandRetry     = "retry"
	CommandConfigure = "configure"
)

// AppliedConfig is the last configure{} the operator sent, recorded in
// memory on the Supervisor (it is not written to disk) even when it
// requires a restart to take full effect.
type AppliedConfig struct {
	Model           string
	Temperature     *float64
	ToolPermissions []string
}

// HandleAgentControl applies an operator-driven agent_control payload and
// returns the status update to emit, per §4.5.6's four commands. spawn is
// called to (re)start the subprocess with the supervisor's last known
// binary/args, only consulted by start (retry replays the last prompt
// through SendPrompt and never spawns).
func (s *Supervisor) HandleAgentControl(ctx context.Context, p *payload.Envelope, spawn func(agentID string) (Config, error)) (*payload.Envelope, error) {
	switch p.Command {
	case CommandStart:
		s.mu.Lock()
		current := s.cfg.AgentID
		s.mu.Unlock()

		if current != "" && current != p.AgentID {
			if err := s.Stop(); err != nil {
				return nil, fmt.Errorf("supervisor: stop before restart: %w", err)
			}
		}
		cfg, err := spawn(p.AgentID)
		if err != nil {
			return nil, err
		}
		if err := s.Start(ctx, cfg); err != nil {
			return nil, err
		}

	case CommandStop:
		if err := s.Stop(); err != nil {
			return nil, err
		}

	case CommandRetry:
		if err := s.Retry(ctx); err != nil {
			return nil, err
		}

	case CommandConfigure:
		applied := &AppliedConfig{}
		if p.Config != nil {
			applied.Model = p.Config.Model
			applied.Temperature = p.Config.Temperature
			applied.ToolPermissions = p.Config.ToolPermissions
		}
		s.mu.Lock()
		s.appliedConfig = applied
		s.mu.Unlock()

	default:
		return nil, fmt.Errorf("supervisor: unrecognized agent_control command %q", p.Command)
	}

	return &payload.Envelope{
		Type:       payload.TypeAgentStatusUpdate,
		AgentID:    p.AgentID,
		Status:     string(s.Status()),
		LastPrompt: s.lastPrompt(),
	}, nil
}

// LastAppliedConfig returns the last configure{} recorded, or nil if none.
func (s *Supervisor) LastAppliedConfig() *AppliedConfig {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.appliedConfig
}
