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
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/spf13/cobra"

	"github.com/doomcode/relay/config"
	"github.com/doomcode/relay/internal/logger"
	"github.com/doomcode/relay/internal/metrics"
	"github.com/doomcode/relay/pkg/relay"
	"github.com/doomcode/relay/pkg/relay/memstore"
	"github.com/doomcode/relay/pkg/relay/pgstore"
)

var rootCmd = &cobra.Command{
	Use:   "doomcode-relay",
	Short: "doomcode relay - stateless envelope broker between controller and operator",
	Long: `doomcode-relay multiplexes end-to-end encrypted envelopes between a
controller and an operator, buffers messages for a momentarily absent
operator, and exposes session pairing primitives. It never possesses keys
and never inspects an envelope's ciphertext.`,
	RunE: runServe,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.CompletionOptions.DisableDefaultCmd = true
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log := logger.NewDefaultLogger()
	log.SetLevel(parseLevel(cfg.Logging.Level))

	store, err := buildStore(cfg)
	if err != nil {
		return fmt.Errorf("build store: %w", err)
	}
	defer store.Close()

	handler := relay.NewHandler(store, log)

	router := mux.NewRouter()
	relay.BootstrapRoutes(router, store, handler, log)

	if cfg.Metrics.Enabled {
		router.Handle(cfg.Metrics.Path, metrics.Handler())
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	go relay.RunSweeper(ctx, store, time.Minute, log)

	srv := &http.Server{
		Addr:    cfg.Relay.ListenAddr,
		Handler: router,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.Info("relay listening", logger.String("addr", cfg.Relay.ListenAddr))
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("serve: %w", err)
	}
	return nil
}

func buildStore(cfg *config.Config) (relay.Store, error) {
	if cfg.Relay.Store.Backend != "postgres" {
		return memstore.New(), nil
	}

	dsn, err := parsePostgresDSN(cfg.Relay.Store.PostgresDSN)
	if err != nil {
		return nil, err
	}
	return pgstore.NewStore(context.Background(), dsn)
}

func parseLevel(level string) logger.Level {
	switch level {
	case "debug":
		return logger.DebugLevel
	case "warn":
		return logger.WarnLevel
	case "error":
		return logger.ErrorLevel
	default:
		return logger.InfoLevel
	}
}
