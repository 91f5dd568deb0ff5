// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/bureau-foundation/peerdocs/docs"
	"github.com/bureau-foundation/peerdocs/lib/config"
	"github.com/bureau-foundation/peerdocs/node"
)

func newTestNode(t *testing.T) *node.Node {
	t.Helper()
	n, err := node.New(context.Background(), config.Default(), slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatalf("node.New: %v", err)
	}
	t.Cleanup(func() { n.Shutdown(context.Background()) })
	return n
}

func TestCreateDocLogsUsableTicket(t *testing.T) {
	n := newTestNode(t)
	var logs bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&logs, nil))

	if err := openDocuments(context.Background(), n.Docs(), nil, true, logger); err != nil {
		t.Fatalf("openDocuments: %v", err)
	}

	var record struct {
		Msg    string `json:"msg"`
		Ticket string `json:"ticket"`
	}
	if err := json.Unmarshal(logs.Bytes(), &record); err != nil {
		t.Fatalf("decoding log record %q: %v", logs.String(), err)
	}
	if record.Msg != "created document" {
		t.Fatalf("msg = %q, want created document", record.Msg)
	}
	ticket, err := docs.ParseTicket(record.Ticket)
	if err != nil {
		t.Fatalf("ParseTicket(%q): %v", record.Ticket, err)
	}
	if list := n.Docs().List(); len(list) != 1 || list[0] != ticket.Namespace {
		t.Fatalf("List() = %v, want [%s]", list, ticket.Namespace)
	}
}

func TestJoinRejectsMalformedTicket(t *testing.T) {
	n := newTestNode(t)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	err := openDocuments(context.Background(), n.Docs(), []string{"doc!!!"}, false, logger)
	if err == nil || !strings.Contains(err.Error(), "--join") {
		t.Fatalf("openDocuments error = %v, want --join error", err)
	}
}

func TestServeMetrics(t *testing.T) {
	n := newTestNode(t)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	server, err := serveMetrics("127.0.0.1:0", n, logger)
	if err != nil {
		t.Fatalf("serveMetrics: %v", err)
	}
	t.Cleanup(func() { server.Shutdown(context.Background()) })

	client := &http.Client{Timeout: 5 * time.Second}
	response, err := client.Get("http://" + server.Addr + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics: %v", err)
	}
	defer response.Body.Close()
	if response.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", response.StatusCode)
	}
	if contentType := response.Header.Get("Content-Type"); !strings.HasPrefix(contentType, "text/plain") {
		t.Fatalf("Content-Type = %q, want Prometheus text format", contentType)
	}

	if _, err := serveMetrics("not an address", n, logger); err == nil {
		t.Fatal("serveMetrics accepted a bad address")
	}
}
