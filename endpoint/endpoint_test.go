// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package endpoint_test

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/bureau-foundation/peerdocs/discovery"
	"github.com/bureau-foundation/peerdocs/endpoint"
)

func buildEndpoint(t *testing.T, directory endpoint.Directory) *endpoint.Endpoint {
	t.Helper()
	ep, err := endpoint.Build(context.Background(), endpoint.Config{
		Directory:        directory,
		HandshakeTimeout: 5 * time.Second,
	})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	t.Cleanup(func() { ep.Close() })
	return ep
}

type note struct {
	Text string `cbor:"1,keyasint"`
}

func TestConnectAndExchange(t *testing.T) {
	directory := discovery.NewMemoryDirectory()
	alpha := buildEndpoint(t, directory)
	beta := buildEndpoint(t, directory)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	accepted := make(chan *endpoint.Session, 1)
	go func() {
		session, err := beta.Accept(ctx)
		if err != nil {
			t.Errorf("Accept: %v", err)
			close(accepted)
			return
		}
		session.Confirm()
		accepted <- session
	}()

	session, err := alpha.Connect(ctx, beta.NodeID(), "/echo/0")
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer session.Close()

	inbound := <-accepted
	if inbound == nil {
		t.FailNow()
	}
	defer inbound.Close()
	if inbound.RemoteNode() != alpha.NodeID() {
		t.Errorf("inbound RemoteNode = %s, want alpha", inbound.RemoteNode().ShortString())
	}
	if inbound.ALPN() != "/echo/0" {
		t.Errorf("inbound ALPN = %q", inbound.ALPN())
	}

	if err := session.Send(note{Text: "hello"}); err != nil {
		t.Fatalf("Send: %v", err)
	}
	var got note
	if err := inbound.Receive(&got); err != nil {
		t.Fatalf("Receive: %v", err)
	}
	if got.Text != "hello" {
		t.Errorf("received %q, want hello", got.Text)
	}

	// Closing one side ends the other's stream.
	session.Close()
	if err := inbound.Receive(&got); !errors.Is(err, io.EOF) {
		t.Errorf("Receive after peer close = %v, want io.EOF", err)
	}
}

// A deadline the accepting handler sets right after Accept must hold
// against a peer that never sends.
func TestAcceptedSessionKeepsHandlerDeadline(t *testing.T) {
	directory := discovery.NewMemoryDirectory()
	alpha := buildEndpoint(t, directory)
	beta := buildEndpoint(t, directory)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	for round := range 10 {
		received := make(chan error, 1)
		go func() {
			session, err := beta.Accept(ctx)
			if err != nil {
				received <- err
				return
			}
			defer session.Close()
			session.SetReadDeadline(time.Now().Add(100 * time.Millisecond))
			session.Confirm()
			var got note
			received <- session.Receive(&got)
		}()

		session, err := alpha.Connect(ctx, beta.NodeID(), "/stall/0")
		if err != nil {
			t.Fatalf("round %d: Connect: %v", round, err)
		}
		select {
		case err := <-received:
			if !errors.Is(err, os.ErrDeadlineExceeded) {
				t.Fatalf("round %d: Receive = %v, want deadline exceeded", round, err)
			}
		case <-time.After(5 * time.Second):
			t.Fatalf("round %d: handler deadline was lost; Receive still blocked", round)
		}
		session.Close()
	}
}

func TestConnectRejectedNoProtocol(t *testing.T) {
	directory := discovery.NewMemoryDirectory()
	alpha := buildEndpoint(t, directory)
	beta := buildEndpoint(t, directory)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	go func() {
		session, err := beta.Accept(ctx)
		if err == nil {
			session.Reject(endpoint.CodeNoProtocol, "")
		}
	}()

	_, err := alpha.Connect(ctx, beta.NodeID(), "/missing/0")
	if !errors.Is(err, endpoint.ErrNoProtocol) {
		t.Fatalf("Connect = %v, want ErrNoProtocol", err)
	}
}

func TestConnectUsesAddressBook(t *testing.T) {
	alpha := buildEndpoint(t, nil)
	beta := buildEndpoint(t, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if _, err := alpha.Connect(ctx, beta.NodeID(), "/echo/0"); !endpoint.IsTransient(err) {
		t.Fatalf("Connect to unknown node = %v, want transient error", err)
	}

	alpha.AddNodeAddr(beta.Addr())
	go func() {
		if session, err := beta.Accept(ctx); err == nil {
			session.Confirm()
		}
	}()
	session, err := alpha.Connect(ctx, beta.NodeID(), "/echo/0")
	if err != nil {
		t.Fatalf("Connect after AddNodeAddr: %v", err)
	}
	session.Close()
}

func TestConnectUnreachableIsTransient(t *testing.T) {
	directory := discovery.NewMemoryDirectory()
	alpha := buildEndpoint(t, directory)
	beta := buildEndpoint(t, directory)
	betaID := beta.NodeID()
	addr := beta.Addr()
	beta.Close()

	// The stale address stays known to alpha.
	alpha.AddNodeAddr(addr)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_, err := alpha.Connect(ctx, betaID, "/echo/0")
	if err == nil || !endpoint.IsTransient(err) {
		t.Fatalf("Connect to closed peer = %v, want transient error", err)
	}
}

func TestBuildPublishesAndCloseUnpublishes(t *testing.T) {
	directory := discovery.NewMemoryDirectory()
	ep := buildEndpoint(t, directory)
	ctx := context.Background()

	published, err := directory.Resolve(ctx, ep.NodeID())
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if len(published.Addresses) != 1 || published.Addresses[0] != ep.Addr().Addresses[0] {
		t.Errorf("published %v, want %v", published.Addresses, ep.Addr().Addresses)
	}

	ep.Close()
	ep.Close()
	if _, err := directory.Resolve(ctx, ep.NodeID()); !errors.Is(err, endpoint.ErrNodeNotFound) {
		t.Errorf("Resolve after Close = %v, want ErrNodeNotFound", err)
	}
	if _, err := ep.Connect(ctx, endpoint.NodeID{1}, "/echo/0"); !errors.Is(err, endpoint.ErrClosed) {
		t.Errorf("Connect after Close = %v, want ErrClosed", err)
	}
	if _, err := ep.Accept(ctx); !errors.Is(err, endpoint.ErrClosed) {
		t.Errorf("Accept after Close = %v, want ErrClosed", err)
	}
}

type unreachableDirectory struct{}

func (unreachableDirectory) Publish(context.Context, endpoint.NodeAddr) error {
	return errors.New("relay unreachable")
}

func (unreachableDirectory) Resolve(context.Context, endpoint.NodeID) (endpoint.NodeAddr, error) {
	return endpoint.NodeAddr{}, endpoint.ErrNodeNotFound
}

func (unreachableDirectory) Unpublish(context.Context, endpoint.NodeID) error { return nil }

func TestBuildStartupErrors(t *testing.T) {
	ctx := context.Background()

	_, err := endpoint.Build(ctx, endpoint.Config{Directory: unreachableDirectory{}})
	if !errors.Is(err, endpoint.ErrNetworkStartup) {
		t.Fatalf("Build with failing directory = %v, want ErrNetworkStartup", err)
	}
	var startup *endpoint.StartupError
	if !errors.As(err, &startup) || startup.Op != "publish" {
		t.Errorf("startup error = %#v, want Op publish", err)
	}

	_, err = endpoint.Build(ctx, endpoint.Config{ListenAddress: "256.0.0.1:http"})
	if !errors.Is(err, endpoint.ErrNetworkStartup) {
		t.Fatalf("Build with bad address = %v, want ErrNetworkStartup", err)
	}
}

func TestNodeIDText(t *testing.T) {
	identity, err := endpoint.GenerateIdentity()
	if err != nil {
		t.Fatal(err)
	}
	id := identity.NodeID()
	parsed, err := endpoint.ParseNodeID(id.String())
	if err != nil || parsed != id {
		t.Fatalf("ParseNodeID(String()) = %v, %v", parsed, err)
	}
	if len(id.ShortString()) != 10 {
		t.Errorf("ShortString = %q", id.ShortString())
	}
	if _, err := endpoint.ParseNodeID("abcd"); err == nil {
		t.Error("short ID parsed")
	}
}

func TestLoadOrCreateIdentity(t *testing.T) {
	path := filepath.Join(t.TempDir(), "node.key")

	first, err := endpoint.LoadOrCreateIdentity(path)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	second, err := endpoint.LoadOrCreateIdentity(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if first.NodeID() != second.NodeID() {
		t.Error("reloaded identity differs")
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Errorf("key file mode = %v, want 0600", info.Mode().Perm())
	}
}
