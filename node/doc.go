// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package node composes a complete peerdocs node from configuration:
// endpoint and discovery, blob store, gossip, documents, and a router
// serving all three protocols.
package node
