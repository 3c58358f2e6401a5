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

// Package payload defines the application-level messages carried inside an
// envelope's decrypted plaintext, discriminated by a "type" field. The
// relay never sees these; they exist only between the controller and the
// operator, on either side of the crypto.Box seal.
package payload

import "encoding/json"

// Kinds of payload, C meaning controller-originated and O operator-originated.
const (
	TypeTerminalOutput    = "terminal_output"     // C->O
	TypeUserPrompt        = "user_prompt"         // O->C
	TypePermissionRequest = "permission_request"  // C->O
	TypePermissionResponse = "permission_response" // O->C
	TypeDiffPatch         = "diff_patch"          // C->O
	TypePatchDecision     = "patch_decision"      // O->C
	TypePatchApplied      = "patch_applied"       // C->O
	TypeUndoRequest       = "undo_request"        // O->C
	TypeUndoResult        = "undo_result"         // C->O
	TypeAgentControl      = "agent_control"       // O->C
	TypeAgentStatusUpdate = "agent_status_update" // C->O
	TypeHeartbeat         = "heartbeat"           // both
	TypeSessionState      = "session_state"       // C->O
)

// Envelope is the generic shape every payload shares on the wire: a
// discriminator plus the type-specific fields, all flattened into one
// JSON object so a single struct can marshal any kind this package knows.
type Envelope struct {
	Type string `json:"type"`

	// terminal_output
	Stream   string `json:"stream,omitempty"`
	Data     string `json:"data,omitempty"`
	Sequence uint64 `json:"sequence,omitempty"`

	// user_prompt
	Prompt  string `json:"prompt,omitempty"`
	Context string `json:"context,omitempty"`

	// permission_request / permission_response
	RequestID   string            `json:"requestId,omitempty"`
	Action      string            `json:"action,omitempty"`
	Description string            `json:"description,omitempty"`
	Details     map[string]string `json:"details,omitempty"`
	TimeoutMS   int64             `json:"timeout,omitempty"`
	Decision    string            `json:"decision,omitempty"`

	// diff_patch / patch_decision / patch_applied
	PatchID         string    `json:"patchId,omitempty"`
	Files           []File    `json:"files,omitempty"`
	Summary         string    `json:"summary,omitempty"`
	EstimatedRisk   string    `json:"estimatedRisk,omitempty"`
	TotalAdditions  int       `json:"totalAdditions,omitempty"`
	TotalDeletions  int       `json:"totalDeletions,omitempty"`
	EditedDiff      string    `json:"editedDiff,omitempty"`
	Patch           *Patch    `json:"patch,omitempty"`

	// undo_request / undo_result
	Success       bool     `json:"success,omitempty"`
	Error         string   `json:"error,omitempty"`
	RevertedFiles []string `json:"revertedFiles,omitempty"`

	// agent_control
	Command string          `json:"command,omitempty"`
	AgentID string          `json:"agentId,omitempty"`
	Config  *AgentConfig    `json:"config,omitempty"`

	// agent_status_update
	Status     string `json:"status,omitempty"`
	LastPrompt string `json:"lastPrompt,omitempty"`

	// heartbeat
	Timestamp   int64  `json:"timestamp,omitempty"`
	AgentStatus string `json:"agentStatus,omitempty"`

	// session_state
	State *SessionState `json:"state,omitempty"`
}

// File is one file's change summary within a diff_patch payload.
type File struct {
	Path      string `json:"path"`
	Additions int    `json:"additions"`
	Deletions int    `json:"deletions"`
}

// Patch is the payload nested in patch_applied, mirroring the controller's
// internal AppliedPatch record minus the reverse-diff bytes (those never
// leave the controller).
type Patch struct {
	PatchID   string          `json:"patchId"`
	Timestamp int64           `json:"timestamp"`
	AgentID   string          `json:"agentId"`
	Prompt    string          `json:"prompt"`
	Files     []AppliedFile   `json:"files"`
}

// AppliedFile records the before/after hashes of one file in an applied patch.
type AppliedFile struct {
	Path        string `json:"path"`
	BeforeHash  string `json:"beforeHash"`
	AfterHash   string `json:"afterHash"`
}

// AgentConfig carries the optional configure{} fields of agent_control.
type AgentConfig struct {
	Model           string   `json:"model,omitempty"`
	Temperature     *float64 `json:"temperature,omitempty"`
	ToolPermissions []string `json:"toolPermissions,omitempty"`
}

// SessionState is the resync snapshot sent to a reconnecting operator.
type SessionState struct {
	Status            string              `json:"status"`
	LastPrompt        string              `json:"lastPrompt,omitempty"`
	PendingPermission *Envelope           `json:"pendingPermission,omitempty"`
	PendingPatches    []Patch             `json:"pendingPatches,omitempty"`
}

// Decode parses a payload's decrypted plaintext JSON.
func Decode(raw []byte) (*Envelope, error) {
	var p Envelope
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// Encode serializes a payload to its plaintext JSON form, ready for sealing.
func Encode(p *Envelope) ([]byte, error) {
	return json.Marshal(p)
}
