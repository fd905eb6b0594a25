// Copyright 2024 The ledgernode Authors
// This file is part of the ledgernode library.
//
// The ledgernode library is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// The ledgernode library is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with the ledgernode library. If not, see <http://www.gnu.org/licenses/>.

// Command ledgernode runs a single node of the permissioned ledger
// network: it wires the ledger store, peer client, mining engine,
// self-healing supervisor, and HTTP surface together and serves until
// asked to stop.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/automaxprocs/maxprocs"

	"github.com/ledgernet/ledgernode/internal/api"
	"github.com/ledgernet/ledgernode/internal/config"
	"github.com/ledgernet/ledgernode/internal/healing"
	"github.com/ledgernet/ledgernode/internal/ledger"
	"github.com/ledgernet/ledgernode/internal/node"
	"github.com/ledgernet/ledgernode/internal/peerclient"
	"github.com/ledgernet/ledgernode/pkg/xlog"
)

func main() {
	if _, err := maxprocs.Set(); err != nil {
		fmt.Fprintf(os.Stderr, "maxprocs: %v\n", err)
	}

	log := xlog.New(os.Stderr, slog.LevelInfo)

	cfg, err := config.FromEnv()
	if err != nil {
		log.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	log = log.With("node_id", cfg.NodeID)

	store := ledger.New(cfg.Difficulty)
	client := peerclient.New(&http.Client{})
	engine := node.New(cfg, store, client, log.With("component", "engine"))
	healer := healing.New(cfg, store, client, log.With("component", "healing"))
	server := api.New(cfg, store, engine, healer, log.With("component", "api"))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go healer.Run(ctx)

	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           server.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.Info("listening", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("http server stopped", "error", err)
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error("graceful shutdown failed", "error", err)
	}
}
