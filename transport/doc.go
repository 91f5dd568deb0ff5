// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package transport provides the raw byte streams that peerdocs
// endpoints run their sessions over.
//
// [Listener] accepts inbound streams and [Dialer] opens outbound ones.
// Neither knows about node identity or protocols: the endpoint package
// layers the session handshake (ALPN selection and mutual Ed25519
// authentication) on top of whatever net.Conn a transport produces.
//
// [TCPListener] and [TCPDialer] are the direct-reachability transport
// used on loopback, in tests, and on flat networks.
//
// [WebRTCTransport] implements both interfaces over pion/webrtc data
// channels for peers behind NAT. Each pair of nodes shares one
// PeerConnection; every dial opens a new ordered, reliable data channel
// on it, so concurrent sessions do not block each other. Connection
// setup uses vanilla ICE: all candidates are gathered before the SDP is
// published through a [Signaler], so establishment takes exactly one
// offer/answer round-trip. When two nodes dial each other at the same
// time, the node whose name sorts lower keeps its offer and the other
// drops its attempt.
//
// [MemorySignaler] exchanges SDP in-process for tests; the discovery
// package provides an etcd-backed Signaler for real deployments.
// [DataChannelConn] adapts a detached data channel to net.Conn.
package transport
