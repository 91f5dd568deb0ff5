// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package gossip maintains per-topic overlays and floods messages
// through them.
//
// Each subscribed topic keeps an active view of up to MaxNeighbors
// peers, one session per (peer, topic). A joining node dials a
// bootstrap peer and sends Join; the peer answers with the addresses of
// its own neighbors and whether it accepted the join. Advertised peers
// are dialed while the view has room, so the overlay grows beyond the
// bootstrap set.
//
// Broadcast pushes a message to every neighbor. A node receiving a
// message it has not seen delivers it to local subscribers and forwards
// it to its other neighbors. Message IDs are remembered in a bounded
// cache to stop the flood. Delivery is best effort: a neighbor whose
// outbound queue is full misses the message. Messages from one sender
// arrive in the order they were sent.
//
// When two nodes dial each other at once, both keep the session opened
// by the node with the smaller ID. A neighbor lost to a transient error
// is redialed with exponential backoff while the topic stays open.
package gossip
