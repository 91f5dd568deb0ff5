// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"context"
	"net"
	"time"
)

var (
	_ Listener = (*TCPListener)(nil)
	_ Dialer   = (*TCPDialer)(nil)
)

// TCPListener accepts inbound TCP streams. It requires direct
// reachability between peers.
type TCPListener struct {
	listener *net.TCPListener
}

// NewTCPListener listens on address (e.g. "127.0.0.1:0" for a random
// loopback port).
func NewTCPListener(address string) (*TCPListener, error) {
	listener, err := net.Listen("tcp", address)
	if err != nil {
		return nil, err
	}
	return &TCPListener{listener: listener.(*net.TCPListener)}, nil
}

// Accept waits for the next inbound connection. Cancelling ctx
// unblocks a pending Accept without closing the listener.
func (l *TCPListener) Accept(ctx context.Context) (net.Conn, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	// A previous cancelled Accept may have left a past deadline. A
	// closed listener fails here too; Accept reports that below.
	l.listener.SetDeadline(time.Time{})
	stop := context.AfterFunc(ctx, func() {
		l.listener.SetDeadline(time.Now())
	})
	defer stop()

	conn, err := l.listener.Accept()
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, err
	}
	return conn, nil
}

// Address returns the bound address in "host:port" form.
func (l *TCPListener) Address() string {
	return l.listener.Addr().String()
}

// Close stops the listener.
func (l *TCPListener) Close() error {
	return l.listener.Close()
}

// TCPDialer opens TCP streams.
type TCPDialer struct {
	// Timeout bounds connection establishment. Zero leaves only the
	// context deadline.
	Timeout time.Duration
}

// DialContext connects to address ("host:port").
func (d *TCPDialer) DialContext(ctx context.Context, address string) (net.Conn, error) {
	return (&net.Dialer{Timeout: d.Timeout}).DialContext(ctx, "tcp", address)
}
