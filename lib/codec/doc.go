// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package codec holds the single CBOR configuration shared by every
// peerdocs wire protocol and signed payload.
//
// Session frames (handshake, blob requests, gossip frames, document
// sync batches) are CBOR values written back to back on a stream. CBOR
// is self-delimiting, so no length prefix is needed:
//
//	encoder := codec.NewEncoder(conn)
//	decoder := codec.NewDecoder(conn)
//
// Signed records (document entries) are encoded with Marshal. The
// encoder uses Core Deterministic Encoding (RFC 8949 §4.2), so the same
// logical value always produces the same bytes and a signature computed
// on one peer verifies on every other.
//
// Wire structs use integer keys (`cbor:"1,keyasint"`) to keep frames
// small. Field numbers are protocol constants: never renumber a field,
// only add new ones.
package codec
