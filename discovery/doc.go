// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package discovery provides the directories endpoints publish their
// addresses to and resolve peers from.
//
// [MemoryDirectory] is a process-local directory: every endpoint built
// against the same instance can find every other one. It backs the demo
// and multi-node tests.
//
// [EtcdDirectory] stores each node's address under
// <prefix>/nodes/<node-id> attached to a lease that the publishing
// process keeps alive, so a crashed node disappears once its lease
// expires. [EtcdSignaler] uses the same cluster as the rendezvous for
// WebRTC offers and answers.
package discovery
