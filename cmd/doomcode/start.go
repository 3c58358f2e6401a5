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
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/doomcode/relay/config"
	"github.com/doomcode/relay/controller/pairing"
	"github.com/doomcode/relay/controller/patch"
	"github.com/doomcode/relay/controller/pty"
	"github.com/doomcode/relay/controller/supervisor"
	"github.com/doomcode/relay/controller/transport"
	"github.com/doomcode/relay/internal/logger"
	"github.com/doomcode/relay/internal/metrics"
	"github.com/doomcode/relay/pkg/envelope"
	"github.com/doomcode/relay/pkg/payload"
)

var (
	flagAgentBinary string
	flagAgentArgs   []string
	flagEnterMode   string
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "spawn the assistant subprocess and wait for an operator to pair",
	RunE:  runStart,
}

func init() {
	startCmd.Flags().StringVar(&flagAgentBinary, "agent-binary", "", "assistant executable to supervise (required)")
	startCmd.Flags().StringSliceVar(&flagAgentArgs, "agent-arg", nil, "argument to pass the assistant binary (repeatable)")
	startCmd.Flags().StringVar(&flagEnterMode, "enter-mode", "cr", "enter mode: cr, lf, or crlf")
	_ = startCmd.MarkFlagRequired("agent-binary")
}

func runStart(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if cfg.Controller == nil {
		return fmt.Errorf("controller configuration section is required")
	}

	log := logger.NewDefaultLogger()

	if cfg.Metrics != nil && cfg.Metrics.Enabled {
		mux := http.NewServeMux()
		mux.Handle(cfg.Metrics.Path, metrics.Handler())
		go func() {
			if err := http.ListenAndServe(cfg.Metrics.Addr, mux); err != nil {
				log.Warn("metrics server stopped", logger.Error(err))
			}
		}()
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	client, err := transport.Dial(ctx, cfg.Controller.RelayURL)
	if err != nil {
		return fmt.Errorf("dial relay: %w", err)
	}
	defer client.Close()

	sessionID, err := client.Create(ctx)
	if err != nil {
		return fmt.Errorf("create session: %w", err)
	}

	var pubKey [32]byte
	copy(pubKey[:], mustDecodeBase64(client.PublicKeyBase64()))
	pairPayload := pairing.New(sessionID, pubKey, cfg.Controller.RelayURL, time.Now())
	wire, err := pairPayload.Encode()
	if err != nil {
		return fmt.Errorf("encode pairing payload: %w", err)
	}
	fmt.Println(wire)

	if cfg.Controller.CacheFile != "" {
		_ = pairing.SaveCache(cfg.Controller.CacheFile, &pairing.SessionCache{
			SessionID: sessionID,
			Role:      string(envelope.RoleController),
			RelayURL:  cfg.Controller.RelayURL,
			SavedAt:   time.Now().UnixMilli(),
		})
	}

	enterMode := supervisor.EnterMode(flagEnterMode)
	provider := pty.NewDefaultChain(pty.EnterMode(enterModeToPTY(enterMode)))
	tracker := patch.NewTrackerWithLimits(cfg.Controller.PatchHistorySize, cfg.Controller.PatchMaxRestoreBytes)
	sup := supervisor.NewWithScanWindow(log, provider, tracker, cfg.Controller.ScanWindowBytes)

	sup.OnOutput = func(p *payload.Envelope) {
		if err := client.Send(p); err != nil {
			log.Warn("send terminal_output failed", logger.Error(err))
		}
	}
	sup.OnPermissionRequest = func(p *payload.Envelope) {
		if err := client.Send(p); err != nil {
			log.Warn("send permission_request failed", logger.Error(err))
		}
	}
	sup.OnDiffPatch = func(p *payload.Envelope) {
		if err := client.Send(p); err != nil {
			log.Warn("send diff_patch failed", logger.Error(err))
		}
	}

	if err := sup.Start(ctx, supervisor.Config{
		AgentID:   "default",
		Binary:    flagAgentBinary,
		Args:      flagAgentArgs,
		EnterMode: enterMode,
	}); err != nil {
		return fmt.Errorf("start supervisor: %w", err)
	}

	return runControllerLoop(ctx, client, sup, log)
}

// runControllerLoop is the transport read loop: activity (2) of §5's three
// concurrent activities. It blocks until ctx is canceled or the
// connection drops.
func runControllerLoop(ctx context.Context, client *transport.Client, sup *supervisor.Supervisor, log logger.Logger) error {
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		p, frame, msgID, err := client.Receive()
		if err != nil {
			return fmt.Errorf("transport receive: %w", err)
		}

		if frame != nil {
			handleControlFrame(frame, log)
			if frame.Action == envelope.ActionPeerConnected && frame.PeerPublicKey != "" {
				if peerPub, err := base64.StdEncoding.DecodeString(frame.PeerPublicKey); err == nil && len(peerPub) == 32 {
					var peerArr [32]byte
					copy(peerArr[:], peerPub)
					client.SetPeerPublicKey(peerArr)
				}
			}
			continue
		}
		if p == nil {
			continue
		}

		switch p.Type {
		case payload.TypePermissionResponse:
			if err := sup.HandlePermissionDecision(p.RequestID, p.Decision); err != nil {
				log.Warn("permission decision failed", logger.Error(err))
			}
		case payload.TypeUserPrompt:
			if err := sup.SendPrompt(ctx, p.Prompt); err != nil {
				log.Warn("send prompt failed", logger.Error(err))
			}
		case payload.TypeUndoRequest:
			result := sup.Tracker().Undo(p.PatchID)
			_ = client.Send(&payload.Envelope{
				Type: payload.TypeUndoResult, PatchID: p.PatchID,
				Success: result.Success, Error: result.Error, RevertedFiles: result.RevertedFiles,
			})
		case payload.TypePatchDecision:
			if p.Decision == "apply" {
				if err := sup.Tracker().Finalize(p.PatchID); err != nil {
					log.Warn("patch finalize failed", logger.Error(err))
				}
			}
		case payload.TypeAgentControl:
			resp, err := sup.HandleAgentControl(ctx, p, func(agentID string) (supervisor.Config, error) {
				return supervisor.Config{AgentID: agentID, Binary: flagAgentBinary, Args: flagAgentArgs, EnterMode: supervisor.EnterMode(flagEnterMode)}, nil
			})
			if err != nil {
				log.Warn("agent_control failed", logger.Error(err))
				continue
			}
			_ = client.Send(resp)
		}

		if msgID != "" {
			_ = client.Ack(msgID)
		}
	}
}

func handleControlFrame(frame *envelope.ControlFrame, log logger.Logger) {
	switch frame.Action {
	case envelope.ActionPeerDisconnected:
		log.Info("operator disconnected")
	case envelope.ActionPeerConnected:
		log.Info("operator connected")
	case envelope.ActionError:
		log.Warn("relay error", logger.String("code", frame.Code), logger.String("message", frame.Message))
	}
}

func enterModeToPTY(mode supervisor.EnterMode) pty.EnterMode {
	switch mode {
	case supervisor.EnterLF:
		return pty.EnterModeLF
	case supervisor.EnterCRLF:
		return pty.EnterModeCRLF
	default:
		return pty.EnterModeCR
	}
}

func mustDecodeBase64(s string) []byte {
	b, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return make([]byte, 32)
	}
	return b
}
