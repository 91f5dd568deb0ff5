// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package router demultiplexes an endpoint's inbound sessions to
// protocol handlers by ALPN.
//
// Handlers are registered on a [Builder]; [Builder.Spawn] validates the
// registrations and starts the accept loop. Each inbound session whose
// ALPN matches a handler is confirmed and handed to that handler on its
// own goroutine. Sessions with an unknown ALPN are rejected with
// endpoint.CodeNoProtocol, which the dialer sees as
// endpoint.ErrNoProtocol.
//
// The router does not track dispatched sessions. [Router.Shutdown]
// stops accepting, asks every handler to shut down, and closes the
// endpoint, which tears down whatever sessions are still open.
package router
