// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package discovery

import (
	"context"
	"slices"
	"sync"

	"github.com/bureau-foundation/peerdocs/endpoint"
)

var _ endpoint.Directory = (*MemoryDirectory)(nil)

// MemoryDirectory is an in-process endpoint.Directory.
type MemoryDirectory struct {
	mu    sync.RWMutex
	nodes map[endpoint.NodeID]endpoint.NodeAddr
}

func NewMemoryDirectory() *MemoryDirectory {
	return &MemoryDirectory{nodes: make(map[endpoint.NodeID]endpoint.NodeAddr)}
}

func (d *MemoryDirectory) Publish(_ context.Context, addr endpoint.NodeAddr) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.nodes[addr.ID] = endpoint.NodeAddr{ID: addr.ID, Addresses: slices.Clone(addr.Addresses)}
	return nil
}

func (d *MemoryDirectory) Resolve(_ context.Context, id endpoint.NodeID) (endpoint.NodeAddr, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	addr, ok := d.nodes[id]
	if !ok {
		return endpoint.NodeAddr{}, endpoint.ErrNodeNotFound
	}
	return endpoint.NodeAddr{ID: addr.ID, Addresses: slices.Clone(addr.Addresses)}, nil
}

func (d *MemoryDirectory) Unpublish(_ context.Context, id endpoint.NodeID) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.nodes, id)
	return nil
}

// Nodes lists every published node.
func (d *MemoryDirectory) Nodes() []endpoint.NodeID {
	d.mu.RLock()
	defer d.mu.RUnlock()
	ids := make([]endpoint.NodeID, 0, len(d.nodes))
	for id := range d.nodes {
		ids = append(ids, id)
	}
	slices.SortFunc(ids, endpoint.NodeID.Compare)
	return ids
}
