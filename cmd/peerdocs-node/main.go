// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// peerdocs-node runs a long-lived peerdocs node: the blob, gossip and
// document protocols on one endpoint, an optional Prometheus listener,
// and a sealed author keyring saved on shutdown.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/peerdocs/docs"
	"github.com/bureau-foundation/peerdocs/lib/config"
	"github.com/bureau-foundation/peerdocs/lib/process"
	"github.com/bureau-foundation/peerdocs/lib/version"
	"github.com/bureau-foundation/peerdocs/node"
)

const shutdownTimeout = 15 * time.Second

func main() {
	if err := run(); err != nil {
		process.Fatal(err)
	}
}

func run() error {
	var (
		configPath  string
		joinTickets []string
		createDoc   bool
		showVersion bool
	)
	flagSet := pflag.NewFlagSet("peerdocs-node", pflag.ContinueOnError)
	flagSet.StringVar(&configPath, "config", "", "path to the YAML configuration (default: in-memory single node)")
	flagSet.StringArrayVar(&joinTickets, "join", nil, "document ticket to import on startup (repeatable)")
	flagSet.BoolVar(&createDoc, "create-doc", false, "create a document on startup and log its ticket")
	flagSet.BoolVar(&showVersion, "version", false, "print version information and exit")

	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}
	if showVersion {
		version.Print("peerdocs-node")
		return nil
	}
	if args := flagSet.Args(); len(args) > 0 {
		return fmt.Errorf("unexpected argument: %s", args[0])
	}

	cfg := config.Default()
	if configPath != "" {
		loaded, err := config.LoadFile(configPath)
		if err != nil {
			return err
		}
		cfg = loaded
	}

	logger, err := process.NewLogger(os.Stderr, cfg.Log.Level)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	n, err := node.New(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := n.Shutdown(shutdownCtx); err != nil {
			logger.Error("shutdown failed", "error", err)
		}
	}()

	var metricsServer *http.Server
	if cfg.Metrics.Address != "" {
		metricsServer, err = serveMetrics(cfg.Metrics.Address, n, logger)
		if err != nil {
			return err
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			metricsServer.Shutdown(shutdownCtx)
		}()
	}

	if err := openDocuments(ctx, n.Docs(), joinTickets, createDoc, logger); err != nil {
		return err
	}

	logger.Info("node running",
		"node", n.Endpoint().NodeID().ShortString(),
		"addresses", n.Endpoint().Addr().Addresses,
	)

	<-ctx.Done()
	logger.Info("shutting down")
	return nil
}

// serveMetrics binds address before returning so a bad listen address
// fails startup. The returned server's Addr is the bound address.
func serveMetrics(address string, n *node.Node, logger *slog.Logger) (*http.Server, error) {
	listener, err := net.Listen("tcp", address)
	if err != nil {
		return nil, fmt.Errorf("metrics listener: %w", err)
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", n.Metrics().Handler())
	server := &http.Server{
		Addr:              listener.Addr().String(),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server failed", "error", err)
		}
	}()
	logger.Info("serving metrics", "address", server.Addr)
	return server, nil
}

func openDocuments(ctx context.Context, d *docs.Docs, tickets []string, create bool, logger *slog.Logger) error {
	for _, text := range tickets {
		ticket, err := docs.ParseTicket(text)
		if err != nil {
			return fmt.Errorf("--join %q: %w", text, err)
		}
		doc, err := d.Import(ctx, ticket)
		if err != nil {
			return fmt.Errorf("importing %s: %w", ticket.Namespace.ShortString(), err)
		}
		logger.Info("joined document", "namespace", doc.ID().String(), "peers", len(ticket.Nodes))
	}
	if create {
		doc, err := d.Create(ctx)
		if err != nil {
			return err
		}
		logger.Info("created document", "namespace", doc.ID().String(), "ticket", doc.Share().String())
	}
	return nil
}
