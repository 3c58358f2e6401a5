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
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/doomcode/relay/internal/logger"
	"github.com/doomcode/relay/pkg/envelope"
)

// BootstrapRoutes registers the relay's plain HTTP endpoints (session
// create/lookup, health) onto router, and the duplex connection endpoint
// served by a Handler.
func BootstrapRoutes(router *mux.Router, store Store, h *Handler, log logger.Logger) {
	b := &bootstrap{store: store, log: log}

	router.HandleFunc("/session", b.createSession).Methods(http.MethodPost)
	router.HandleFunc("/session/{id}", b.getSession).Methods(http.MethodGet)
	router.HandleFunc("/health", b.health).Methods(http.MethodGet)
	router.Handle("/ws", h).Methods(http.MethodGet)
}

type bootstrap struct {
	store Store
	log   logger.Logger
}

func (b *bootstrap) createSession(w http.ResponseWriter, r *http.Request) {
	id := uuid.NewString()
	if _, err := b.store.CreateSession(r.Context(), id); err != nil {
		b.log.Error("failed to create session", logger.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to create session"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"sessionId": id})
}

func (b *bootstrap) getSession(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	sess, err := b.store.GetSession(r.Context(), id)
	if err != nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "session not found"})
		return
	}

	_, hasController := sess.Slots[envelope.SenderController]
	_, hasOperator := sess.Slots[envelope.SenderOperator]

	writeJSON(w, http.StatusOK, map[string]any{
		"sessionId":     sess.ID,
		"hasController": hasController,
		"hasOperator":   hasOperator,
		"createdAt":     sess.CreatedAt.UnixMilli(),
		"expiresAt":     sess.ExpiresAt.UnixMilli(),
	})
}

func (b *bootstrap) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"timestamp": time.Now().UnixMilli(),
	})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
