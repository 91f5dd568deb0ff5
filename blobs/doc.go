// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package blobs is the content-addressed byte store and the protocol
// that serves it to peers.
//
// A blob is addressed by the BLAKE3-256 digest of its bytes ([Hash]).
// Hashes render as hex for logs and as a CIDv1 (raw codec, blake3
// multihash) for interchange with other content-addressed systems.
//
// [Store] has two implementations: [MemStore], which keeps every blob in
// memory for the life of the process, and [SQLiteStore], a disk-backed
// variant for long-lived nodes. Both satisfy the conformance suite in
// blobstest.
//
// [Protocol] serves a Store to peers under [ALPN]; [Client] is the
// other end. A session carries any number of request/response cycles.
// Payloads above a small threshold travel compressed (zstd or lz4,
// chosen by probing) and every received payload is rehashed before it
// is accepted.
package blobs
