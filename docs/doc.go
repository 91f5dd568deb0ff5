// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package docs implements replicated key-value documents with
// author-signed entries.
//
// A document (namespace) maps (author, key) slots to entries. Each
// entry names its content by BLAKE3 hash; the bytes live in a
// [blobs.Store]. For a given slot only the latest entry is kept: the
// greater timestamp wins, and equal timestamps are broken by the
// lexicographically greater signature. Local writes stamp the entry
// with max(now, previous+1) so successive writes to a slot always
// supersede each other, even when the wall clock steps backwards.
//
// Replication has two paths, both over the shared endpoint:
//
//   - Live: every insert is broadcast on the document's gossip topic
//     and merged by subscribers after signature verification.
//   - Sync: when a gossip neighbor appears, or a ticket is imported,
//     the peers exchange their full entry sets over the [ALPN]
//     protocol and fetch missing content through the blobs protocol.
//
// Authors are Ed25519 keypairs held in a [Keyring]. Possession of the
// private key is the authority to write under that author. The keyring
// can be sealed to age recipients for storage on disk.
package docs
