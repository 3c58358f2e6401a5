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

package relay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/doomcode/relay/internal/logger"
	"github.com/doomcode/relay/internal/metrics"
	"github.com/doomcode/relay/pkg/envelope"
)

// Handler serves the relay's duplex connection endpoint. It never decrypts
// an envelope's ciphertext; routing decisions use only the session store
// and the envelope's header fields.
type Handler struct {
	store    Store
	log      logger.Logger
	upgrader websocket.Upgrader

	registryMu sync.RWMutex
	registry   map[string]*Conn // connectionId -> live connection, this process only
}

// NewHandler builds a connection handler backed by store.
func NewHandler(store Store, log logger.Logger) *Handler {
	return &Handler{
		store: store,
		log:   log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		registry: make(map[string]*Conn),
	}
}

// ServeHTTP upgrades the request to a websocket and runs the connection's
// lifetime until it closes.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed", logger.Error(err))
		return
	}

	c := newConn(uuid.NewString(), ws)
	h.registryMu.Lock()
	h.registry[c.ID] = c
	h.registryMu.Unlock()

	metrics.ConnectionsOpened.WithLabelValues("unknown").Inc()
	opened := time.Now()

	defer func() {
		h.cleanupConnection(r.Context(), c)
		metrics.ConnectionDuration.Observe(time.Since(opened).Seconds())
		_ = c.Close()
	}()

	h.serveConn(r.Context(), c)
}

func (h *Handler) serveConn(ctx context.Context, c *Conn) {
	for {
		_, raw, err := c.ws.ReadMessage()
		if err != nil {
			return
		}

		kind, err := envelope.Sniff(raw)
		if err != nil {
			h.sendError(c, "", ErrCodeInternal, "malformed frame")
			continue
		}

		switch kind {
		case envelope.FrameControl:
			h.handleControl(ctx, c, raw)
		case envelope.FrameEnvelope:
			h.handleEnvelope(ctx, c, raw)
		default:
			h.sendError(c, "", ErrCodeInternal, "unrecognized frame shape")
		}
	}
}

func (h *Handler) handleControl(ctx context.Context, c *Conn, raw []byte) {
	var frame envelope.ControlFrame
	if err := json.Unmarshal(raw, &frame); err != nil {
		h.sendError(c, "", ErrCodeInternal, "malformed control frame")
		return
	}

	switch frame.Action {
	case envelope.ActionCreate:
		h.handleCreate(ctx, c, &frame)
	case envelope.ActionJoin:
		h.handleJoin(ctx, c, &frame)
	case envelope.ActionLeave:
		_ = c.Close()
	case envelope.ActionAck:
		h.handleAck(ctx, c, &frame)
	case envelope.ActionQueueStatus:
		h.handleQueueStatus(ctx, c, &frame)
	default:
		h.sendError(c, "", ErrCodeInternal, fmt.Sprintf("unknown action %q", frame.Action))
	}
}

func (h *Handler) handleCreate(ctx context.Context, c *Conn, frame *envelope.ControlFrame) {
	sessionID := uuid.NewString()
	if _, err := h.store.CreateSession(ctx, sessionID); err != nil {
		h.sendError(c, "", ErrCodeInternal, "failed to create session")
		return
	}

	if err := h.store.SetSessionSlot(ctx, sessionID, envelope.SenderController, c.ID, frame.PublicKey); err != nil {
		h.sendError(c, sessionID, ErrCodeInternal, "failed to register controller slot")
		return
	}
	_ = h.store.PutConnection(ctx, &Connection{
		ID: c.ID, SessionID: sessionID, Role: envelope.SenderController,
		PublicKey: frame.PublicKey, ConnectedAt: time.Now(),
	})

	c.setJoined(sessionID, envelope.SenderController)
	metrics.ConnectionsOpened.WithLabelValues("controller").Inc()

	_ = c.WriteControl(&envelope.ControlFrame{
		Action:    envelope.ActionSessionCreated,
		SessionID: sessionID,
	})
}

func (h *Handler) handleJoin(ctx context.Context, c *Conn, frame *envelope.ControlFrame) {
	sess, err := h.store.GetSession(ctx, frame.SessionID)
	if err != nil {
		h.sendError(c, frame.SessionID, ErrCodeSessionNotFound, "session not found or expired")
		return
	}

	role := frame.Role
	peerRole := otherRole(role)

	err = h.store.SetSessionSlot(ctx, frame.SessionID, role, c.ID, frame.PublicKey)
	if errors.Is(err, ErrSlotOccupied) {
		if !h.evictIncumbentIfGone(ctx, sess, role) {
			h.sendError(c, frame.SessionID, ErrCodeAlreadyConnected, "role already connected")
			return
		}
		// ForceSessionSlot, not a second SetSessionSlot: the slot was only
		// ever probed here, never cleared, so a concurrent joiner racing
		// this one cannot have slipped into the gap between evict and
		// re-set. ForceSessionSlot overwrites the occupant atomically in
		// one store call.
		err = h.store.ForceSessionSlot(ctx, frame.SessionID, role, c.ID, frame.PublicKey)
	}
	if err != nil {
		h.sendError(c, frame.SessionID, ErrCodeInternal, "failed to join session")
		return
	}

	// Key-rotation invariant: a joining operator whose public key differs
	// from the last one this relay saw for that role invalidates every
	// queued ciphertext, which was encrypted to the old key.
	if role == envelope.SenderOperator {
		if last, ok := sess.LastKeys[role]; ok && last != "" && last != frame.PublicKey {
			_ = h.store.PurgeQueue(ctx, frame.SessionID)
		}
	}

	_ = h.store.PutConnection(ctx, &Connection{
		ID: c.ID, SessionID: frame.SessionID, Role: role,
		PublicKey: frame.PublicKey, ConnectedAt: time.Now(),
	})
	c.setJoined(frame.SessionID, role)
	metrics.ConnectionsOpened.WithLabelValues(string(role)).Inc()

	refreshed, err := h.store.GetSession(ctx, frame.SessionID)
	if err != nil {
		h.sendError(c, frame.SessionID, ErrCodeInternal, "session vanished mid-join")
		return
	}

	resp := &envelope.ControlFrame{Action: envelope.ActionSessionJoined}
	if peerSlot, ok := refreshed.Slots[peerRole]; ok && peerSlot != nil {
		resp.PeerPublicKey = peerSlot.PublicKey
	}
	_ = c.WriteControl(resp)

	// Only the operator role ever has envelopes waiting: handleEnvelope
	// only enqueues controller-authored messages, so a rejoining
	// controller has nothing buffered to replay.
	if role == envelope.SenderOperator {
		h.replayQueue(ctx, c, frame.SessionID)
	}

	if peerSlot, ok := refreshed.Slots[peerRole]; ok && peerSlot != nil {
		h.registryMu.RLock()
		peerConn := h.registry[peerSlot.ConnectionID]
		h.registryMu.RUnlock()
		if peerConn != nil {
			_ = peerConn.WriteControl(&envelope.ControlFrame{
				Action:        envelope.ActionPeerConnected,
				PeerPublicKey: frame.PublicKey,
				PeerType:      envelope.Sender(role),
			})
		}
	}
}

// evictIncumbentIfGone probes the current occupant of role via a native
// websocket ping. If it fails to answer within one roundtrip it is
// considered Gone: the stale connection record is removed but the slot
// itself is left alone, since the caller takes it over with a single
// atomic Store.ForceSessionSlot rather than a clear-then-set pair that
// would leave a window for a second joiner to win the race.
func (h *Handler) evictIncumbentIfGone(ctx context.Context, sess *Session, role Role) bool {
	slot, ok := sess.Slots[role]
	if !ok || slot == nil {
		return true
	}

	h.registryMu.RLock()
	incumbent := h.registry[slot.ConnectionID]
	h.registryMu.RUnlock()

	if incumbent == nil || !incumbent.Probe() {
		_ = h.store.DeleteConnection(ctx, slot.ConnectionID)
		metrics.IncumbentEvictions.Inc()
		if incumbent != nil {
			_ = incumbent.Close()
		}
		return true
	}
	return false
}

func (h *Handler) handleAck(ctx context.Context, c *Conn, frame *envelope.ControlFrame) {
	sessionID, _, joined := c.snapshot()
	if !joined {
		h.sendError(c, frame.SessionID, ErrCodeNotJoined, "connection has not joined a session")
		return
	}
	_ = h.store.DeleteQueuedUpTo(ctx, sessionID, frame.LastMessageID)
}

func (h *Handler) handleQueueStatus(ctx context.Context, c *Conn, frame *envelope.ControlFrame) {
	sessionID, _, joined := c.snapshot()
	if !joined {
		h.sendError(c, frame.SessionID, ErrCodeNotJoined, "connection has not joined a session")
		return
	}

	queue, err := h.store.ListQueue(ctx, sessionID)
	if err != nil {
		h.sendError(c, sessionID, ErrCodeInternal, "failed to read queue")
		return
	}
	_ = c.WriteControl(queueStatusFrame(queue))
}

// queueStatusFrame builds the queue_status control frame reporting the
// queue depth and the oldest entry's timestamp, shared by handleQueueStatus
// and the replay-on-join path so both report the same shape.
func queueStatusFrame(queue []*QueuedEnvelope) *envelope.ControlFrame {
	resp := &envelope.ControlFrame{
		Action:         envelope.ActionQueueStatus,
		QueuedMessages: len(queue),
	}
	if len(queue) > 0 {
		ts := queue[0].Envelope.Timestamp
		resp.OldestTimestamp = &ts
	}
	return resp
}

// replayQueue reports the queue_status for sessionID and then pushes every
// envelope still buffered for it to c, in arrival order. It never trims the
// queue itself: that remains solely handleAck's job once the peer has
// acknowledged receipt, so a replay that is interrupted mid-stream (e.g. the
// connection drops) leaves the queue intact for the next join.
func (h *Handler) replayQueue(ctx context.Context, c *Conn, sessionID string) {
	queue, err := h.store.ListQueue(ctx, sessionID)
	if err != nil {
		return
	}
	_ = c.WriteControl(queueStatusFrame(queue))

	for _, qe := range queue {
		raw, err := envelope.Encode(qe.Envelope)
		if err != nil {
			continue
		}
		if err := c.WriteRaw(raw); err != nil {
			return
		}
	}
}

func (h *Handler) handleEnvelope(ctx context.Context, c *Conn, raw []byte) {
	sessionID, role, joined := c.snapshot()
	if !joined {
		h.sendError(c, "", ErrCodeNotJoined, "connection has not joined a session")
		return
	}

	env, err := envelope.Decode(raw)
	if err != nil {
		h.sendError(c, sessionID, ErrCodeInternal, "malformed envelope")
		return
	}

	start := time.Now()
	sess, err := h.store.GetSession(ctx, sessionID)
	if err != nil {
		h.sendError(c, sessionID, ErrCodeSessionNotFound, "session not found or expired")
		return
	}

	peerRole := otherRole(role)
	peerSlot, peerPresent := sess.Slots[peerRole]

	var peerConn *Conn
	if peerPresent && peerSlot != nil {
		h.registryMu.RLock()
		peerConn = h.registry[peerSlot.ConnectionID]
		h.registryMu.RUnlock()
	}

	direction := string(role) + "_to_" + string(peerRole)

	switch {
	case peerConn != nil:
		if err := peerConn.WriteRaw(raw); err != nil {
			metrics.EnvelopesDropped.WithLabelValues("peer_write_failed").Inc()
			return
		}
		metrics.EnvelopesRouted.WithLabelValues(direction).Inc()
		metrics.EnvelopeRoutingDuration.Observe(time.Since(start).Seconds())
	case role == envelope.SenderController:
		if err := h.store.Enqueue(ctx, sessionID, env); err != nil {
			metrics.EnvelopesDropped.WithLabelValues("queue_full").Inc()
			return
		}
		metrics.EnvelopesQueued.Inc()
	default:
		// operator -> controller while controller is absent: the
		// operator's UI retries user intent, so the relay drops silently.
		metrics.EnvelopesDropped.WithLabelValues("peer_absent").Inc()
	}
}

func (h *Handler) cleanupConnection(ctx context.Context, c *Conn) {
	h.registryMu.Lock()
	delete(h.registry, c.ID)
	h.registryMu.Unlock()

	sessionID, role, joined := c.snapshot()
	if !joined {
		return
	}

	_ = h.store.ClearSessionSlot(ctx, sessionID, role, c.ID)
	_ = h.store.DeleteConnection(ctx, c.ID)
	metrics.ConnectionsClosed.WithLabelValues("error").Inc()

	sess, err := h.store.GetSession(ctx, sessionID)
	if err != nil {
		return
	}
	peerRole := otherRole(role)
	if peerSlot, ok := sess.Slots[peerRole]; ok && peerSlot != nil {
		h.registryMu.RLock()
		peerConn := h.registry[peerSlot.ConnectionID]
		h.registryMu.RUnlock()
		if peerConn != nil {
			_ = peerConn.WriteControl(&envelope.ControlFrame{
				Action:   envelope.ActionPeerDisconnected,
				PeerType: envelope.Sender(role),
			})
		}
	}
}

func (h *Handler) sendError(c *Conn, sessionID, code, message string) {
	_ = c.WriteControl(&envelope.ControlFrame{
		Action:    envelope.ActionError,
		SessionID: sessionID,
		Code:      code,
		Message:   message,
	})
}

func otherRole(r Role) Role {
	if r == envelope.SenderController {
		return envelope.SenderOperator
	}
	return envelope.SenderController
}
