// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package endpoint is the process-wide networking substrate shared by
// every peerdocs protocol handler.
//
// An [Endpoint] owns one node identity (an Ed25519 keypair whose public
// key is the [NodeID]), one transport listener, one dialer, and a
// registration in a [Directory] so that peers can resolve the node's
// addresses from its ID. The pointer is the shared handle: every
// component that needs the network holds the same *Endpoint, and all
// of its methods are safe for concurrent use.
//
// Every stream, in either direction, starts with a session handshake:
//
//  1. The dialer sends Hello carrying the ALPN tag it wants to speak,
//     its NodeID, and a random nonce.
//  2. The acceptor answers with its NodeID, its own nonce, and a
//     signature over the dialer's nonce and NodeID.
//  3. The dialer checks that the acceptor is the node it meant to reach
//     and that the signature verifies under that NodeID, then proves
//     itself the same way over the acceptor's nonce.
//  4. The acceptor verifies the proof and hands the [Session] to
//     Accept's caller, which calls [Session.Confirm] or
//     [Session.Reject]. The verdict is the last handshake frame.
//
// Signatures bind the ALPN tag and the challenger's NodeID, so a
// response produced for one node or protocol cannot be replayed
// against another.
//
// After the verdict both ends exchange deterministic CBOR frames with
// [Session.Send] and [Session.Receive].
package endpoint
