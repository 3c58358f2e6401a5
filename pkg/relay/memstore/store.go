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

// Package memstore is an in-memory relay.Store, intended for single-process
// deployments and tests. All tables live behind a single shared mutex,
// mirroring the mutex-guarded-map pattern used throughout this codebase's
// storage layer.
package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/doomcode/relay/pkg/envelope"
	"github.com/doomcode/relay/pkg/relay"
)

// Store implements relay.Store with in-memory maps.
type Store struct {
	mu          sync.Mutex
	sessions    map[string]*relay.Session
	connections map[string]*relay.Connection
	queues      map[string][]*relay.QueuedEnvelope
}

// New creates an empty in-memory store.
func New() *Store {
	return &Store{
		sessions:    make(map[string]*relay.Session),
		connections: make(map[string]*relay.Connection),
		queues:      make(map[string][]*relay.QueuedEnvelope),
	}
}

func (s *Store) Close() error { return nil }

func (s *Store) PutConnection(_ context.Context, c *relay.Connection) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *c
	s.connections[c.ID] = &cp
	return nil
}

func (s *Store) GetConnection(_ context.Context, connectionID string) (*relay.Connection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.connections[connectionID]
	if !ok {
		return nil, relay.ErrConnectionNotFound
	}
	cp := *c
	return &cp, nil
}

func (s *Store) DeleteConnection(_ context.Context, connectionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.connections, connectionID)
	return nil
}

func (s *Store) CreateSession(_ context.Context, id string) (*relay.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	sess := &relay.Session{
		ID:        id,
		CreatedAt: now,
		ExpiresAt: now.Add(relay.SessionTTL),
		Slots:     make(map[relay.Role]*relay.Slot),
		LastKeys:  make(map[relay.Role]string),
	}
	s.sessions[id] = sess

	cp := *sess
	cp.Slots = copySlots(sess.Slots)
	cp.LastKeys = copyLastKeys(sess.LastKeys)
	return &cp, nil
}

func (s *Store) GetSession(_ context.Context, id string) (*relay.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if !ok {
		return nil, relay.ErrSessionNotFound
	}
	if sess.Expired(time.Now()) {
		return nil, relay.ErrSessionExpired
	}

	cp := *sess
	cp.Slots = copySlots(sess.Slots)
	cp.LastKeys = copyLastKeys(sess.LastKeys)
	return &cp, nil
}

func (s *Store) SetSessionSlot(_ context.Context, sessionID string, role relay.Role, connectionID, publicKey string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[sessionID]
	if !ok {
		return relay.ErrSessionNotFound
	}
	if sess.Expired(time.Now()) {
		return relay.ErrSessionExpired
	}
	if existing, filled := sess.Slots[role]; filled && existing != nil {
		return relay.ErrSlotOccupied
	}

	sess.Slots[role] = &relay.Slot{ConnectionID: connectionID, PublicKey: publicKey}
	if sess.LastKeys == nil {
		sess.LastKeys = make(map[relay.Role]string)
	}
	sess.LastKeys[role] = publicKey
	return nil
}

func (s *Store) ForceSessionSlot(_ context.Context, sessionID string, role relay.Role, connectionID, publicKey string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[sessionID]
	if !ok {
		return relay.ErrSessionNotFound
	}
	if sess.Expired(time.Now()) {
		return relay.ErrSessionExpired
	}

	sess.Slots[role] = &relay.Slot{ConnectionID: connectionID, PublicKey: publicKey}
	if sess.LastKeys == nil {
		sess.LastKeys = make(map[relay.Role]string)
	}
	sess.LastKeys[role] = publicKey
	return nil
}

func (s *Store) ClearSessionSlot(_ context.Context, sessionID string, role relay.Role, connectionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[sessionID]
	if !ok {
		return nil // already gone; clearing is idempotent
	}

	if slot, filled := sess.Slots[role]; filled && slot != nil && slot.ConnectionID == connectionID {
		delete(sess.Slots, role)
	}
	return nil
}

func (s *Store) Enqueue(_ context.Context, sessionID string, env *envelope.Envelope) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	s.queues[sessionID] = append(s.queues[sessionID], &relay.QueuedEnvelope{
		Envelope:  env,
		QueuedAt:  now,
		ExpiresAt: now.Add(relay.QueueTTL),
	})
	return nil
}

func (s *Store) ListQueue(_ context.Context, sessionID string) ([]*relay.QueuedEnvelope, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	queue := s.queues[sessionID]
	out := make([]*relay.QueuedEnvelope, 0, len(queue))
	for _, qe := range queue {
		if now.After(qe.ExpiresAt) {
			continue
		}
		out = append(out, qe)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].QueuedAt.Before(out[j].QueuedAt) })
	return out, nil
}

func (s *Store) DeleteQueuedUpTo(_ context.Context, sessionID, messageID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	queue := s.queues[sessionID]
	idx := -1
	for i, qe := range queue {
		if qe.Envelope.MessageID == messageID {
			idx = i
			break
		}
	}
	if idx == -1 {
		return nil // absent id: no-op, per the idempotent contract
	}

	s.queues[sessionID] = append([]*relay.QueuedEnvelope{}, queue[idx+1:]...)
	return nil
}

func (s *Store) PurgeQueue(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.queues, sessionID)
	return nil
}

func (s *Store) DeleteExpired(_ context.Context) (int, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	sessionsRemoved := 0
	for id, sess := range s.sessions {
		if sess.Expired(now) {
			delete(s.sessions, id)
			delete(s.queues, id)
			sessionsRemoved++
		}
	}

	envelopesRemoved := 0
	for id, queue := range s.queues {
		kept := queue[:0:0]
		for _, qe := range queue {
			if now.After(qe.ExpiresAt) {
				envelopesRemoved++
				continue
			}
			kept = append(kept, qe)
		}
		s.queues[id] = kept
	}

	return sessionsRemoved, envelopesRemoved, nil
}

func copySlots(slots map[relay.Role]*relay.Slot) map[relay.Role]*relay.Slot {
	cp := make(map[relay.Role]*relay.Slot, len(slots))
	for role, slot := range slots {
		if slot == nil {
			continue
		}
		s := *slot
		cp[role] = &s
	}
	return cp
}

func copyLastKeys(keys map[relay.Role]string) map[relay.Role]string {
	cp := make(map[relay.Role]string, len(keys))
	for role, key := range keys {
		cp[role] = key
	}
	return cp
}
