// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"context"
	"net"
)

// Listener accepts inbound streams from peers.
type Listener interface {
	// Accept blocks until a peer opens a stream, ctx is cancelled, or
	// the listener is closed. After Close it returns net.ErrClosed.
	Accept(ctx context.Context) (net.Conn, error)

	// Address is the value peers pass to Dialer.DialContext to reach
	// this listener: "host:port" for TCP, the node name for WebRTC.
	Address() string

	// Close stops accepting. Streams already accepted are unaffected.
	Close() error
}

// Dialer opens outbound streams to peers.
type Dialer interface {
	// DialContext opens a stream to the peer at address, in the
	// format returned by the peer's Listener.Address.
	DialContext(ctx context.Context, address string) (net.Conn, error)
}
