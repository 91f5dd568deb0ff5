// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package router_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	promtestutil "github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/bureau-foundation/peerdocs/discovery"
	"github.com/bureau-foundation/peerdocs/endpoint"
	"github.com/bureau-foundation/peerdocs/router"
)

type message struct {
	Text string `cbor:"1,keyasint"`
}

// echoHandler answers every frame with the same frame.
type echoHandler struct {
	shutdowns atomic.Int32
}

func (h *echoHandler) Accept(_ context.Context, session *endpoint.Session) error {
	defer session.Close()
	for {
		var frame message
		if err := session.Receive(&frame); err != nil {
			return nil
		}
		if err := session.Send(frame); err != nil {
			return err
		}
	}
}

func (h *echoHandler) Shutdown(context.Context) error {
	h.shutdowns.Add(1)
	return nil
}

func newPair(t *testing.T) (server, client *endpoint.Endpoint) {
	t.Helper()
	directory := discovery.NewMemoryDirectory()
	ctx := context.Background()
	server, err := endpoint.Build(ctx, endpoint.Config{Directory: directory})
	if err != nil {
		t.Fatalf("Build server: %v", err)
	}
	client, err = endpoint.Build(ctx, endpoint.Config{Directory: directory})
	if err != nil {
		t.Fatalf("Build client: %v", err)
	}
	t.Cleanup(func() {
		server.Close()
		client.Close()
	})
	return server, client
}

func TestRouterDispatchesByALPN(t *testing.T) {
	server, client := newPair(t)
	echo := &echoHandler{}
	metrics := router.NewMetrics()

	r, err := router.NewBuilder(server).Accept("/echo/0", echo).WithMetrics(metrics).Spawn(context.Background())
	if err != nil {
		t.Fatalf("Spawn: %v", err)
	}
	defer r.Shutdown(context.Background())

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	session, err := client.Connect(ctx, server.NodeID(), "/echo/0")
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer session.Close()

	if err := session.Send(message{Text: "ping"}); err != nil {
		t.Fatalf("Send: %v", err)
	}
	var reply message
	if err := session.Receive(&reply); err != nil {
		t.Fatalf("Receive: %v", err)
	}
	if reply.Text != "ping" {
		t.Errorf("reply = %q, want ping", reply.Text)
	}

	if got := promtestutil.ToFloat64(metrics.SessionsCounter("/echo/0", "dispatched")); got != 1 {
		t.Errorf("dispatched sessions = %v, want 1", got)
	}
}

func TestRouterRejectsUnknownALPN(t *testing.T) {
	server, client := newPair(t)
	metrics := router.NewMetrics()

	r, err := router.NewBuilder(server).Accept("/echo/0", &echoHandler{}).WithMetrics(metrics).Spawn(context.Background())
	if err != nil {
		t.Fatalf("Spawn: %v", err)
	}
	defer r.Shutdown(context.Background())

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_, err = client.Connect(ctx, server.NodeID(), "/nobody/0")
	if !errors.Is(err, endpoint.ErrNoProtocol) {
		t.Fatalf("Connect = %v, want ErrNoProtocol", err)
	}
	if got := promtestutil.ToFloat64(metrics.SessionsCounter("/nobody/0", "rejected")); got != 1 {
		t.Errorf("rejected sessions = %v, want 1", got)
	}
}

func TestBuilderALPNCollision(t *testing.T) {
	server, _ := newPair(t)

	_, err := router.NewBuilder(server).
		Accept("/echo/0", &echoHandler{}).
		Accept("/other/0", &echoHandler{}).
		Accept("/echo/0", &echoHandler{}).
		Spawn(context.Background())
	if !errors.Is(err, router.ErrALPNCollision) {
		t.Fatalf("Spawn = %v, want ErrALPNCollision", err)
	}
}

func TestRouterShutdown(t *testing.T) {
	server, client := newPair(t)
	first, second := &echoHandler{}, &echoHandler{}

	r, err := router.NewBuilder(server).Accept("/a/0", first).Accept("/b/0", second).Spawn(context.Background())
	if err != nil {
		t.Fatalf("Spawn: %v", err)
	}
	if alpns := r.ALPNs(); len(alpns) != 2 || alpns[0] != "/a/0" || alpns[1] != "/b/0" {
		t.Errorf("ALPNs = %v", alpns)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	session, err := client.Connect(ctx, server.NodeID(), "/a/0")
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}

	// An open session does not hold up shutdown.
	if err := r.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	r.Shutdown(ctx)
	select {
	case <-r.Done():
	default:
		t.Error("accept loop still running after Shutdown")
	}
	if first.shutdowns.Load() != 1 || second.shutdowns.Load() != 1 {
		t.Errorf("handler shutdowns = %d, %d, want 1, 1", first.shutdowns.Load(), second.shutdowns.Load())
	}

	// The endpoint closed, so the open session ends.
	var frame message
	if err := session.Receive(&frame); err == nil {
		t.Error("session survived router shutdown")
	}
	if _, err := client.Connect(ctx, server.NodeID(), "/a/0"); err == nil {
		t.Error("Connect succeeded after shutdown")
	}
}
