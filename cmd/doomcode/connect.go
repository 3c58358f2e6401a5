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

package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/doomcode/relay/controller/pairing"
	"github.com/doomcode/relay/controller/transport"
	"github.com/doomcode/relay/internal/logger"
	"github.com/doomcode/relay/pkg/envelope"
	"github.com/doomcode/relay/pkg/payload"
)

// connectCmd is a minimal text operator client: it joins the session named
// by a pairing payload and echoes terminal_output to stdout while
// forwarding stdin lines as user_prompt payloads. The real operator UI
// (touch input, rendering, panel navigation) lives outside this repo per
// §1's scope note; this exists to exercise the wire protocol end to end.
var connectCmd = &cobra.Command{
	Use:   "connect <pairing-payload-json>",
	Short: "join a paired session as a minimal text operator",
	Args:  cobra.ExactArgs(1),
	RunE:  runConnect,
}

func runConnect(cmd *cobra.Command, args []string) error {
	log := logger.NewDefaultLogger()

	pp, err := pairing.Decode(args[0])
	if err != nil {
		return fmt.Errorf("decode pairing payload: %w", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	client, err := transport.Dial(ctx, pp.RelayURL)
	if err != nil {
		return fmt.Errorf("dial relay: %w", err)
	}
	defer client.Close()

	if err := client.Join(ctx, pp.SessionID, envelope.RoleOperator); err != nil {
		return fmt.Errorf("join session: %w", err)
	}

	go readStdinPrompts(client, log)

	for {
		p, frame, msgID, err := client.Receive()
		if err != nil {
			return fmt.Errorf("transport receive: %w", err)
		}
		if frame != nil {
			if frame.Action == envelope.ActionPeerDisconnected {
				log.Info("controller disconnected")
			}
			continue
		}
		if p == nil {
			continue
		}

		switch p.Type {
		case payload.TypeTerminalOutput:
			fmt.Print(p.Data)
		case payload.TypePermissionRequest:
			fmt.Printf("\n[permission] %s (%s) requestId=%s\n", p.Description, p.Action, p.RequestID)
		case payload.TypeDiffPatch:
			fmt.Printf("\n[diff] %s risk=%s +%d/-%d\n", p.Summary, p.EstimatedRisk, p.TotalAdditions, p.TotalDeletions)
		}

		if msgID != "" {
			_ = client.Ack(msgID)
		}
	}
}

func readStdinPrompts(client *transport.Client, log logger.Logger) {
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		if err := client.Send(&payload.Envelope{Type: payload.TypeUserPrompt, Prompt: scanner.Text()}); err != nil {
			log.Warn("send user_prompt failed", logger.Error(err))
		}
	}
}
