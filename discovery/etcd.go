// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package discovery

import (
	"context"
	"fmt"
	"log/slog"
	"path"
	"sync"
	"time"

	clientv3 "go.etcd.io/etcd/client/v3"

	"github.com/bureau-foundation/peerdocs/endpoint"
	"github.com/bureau-foundation/peerdocs/lib/codec"
)

var _ endpoint.Directory = (*EtcdDirectory)(nil)

// DefaultLeaseTTL is the lifetime of a published address when the
// publisher stops renewing it.
const DefaultLeaseTTL = 30 * time.Second

// NewEtcdClient connects to an etcd cluster.
func NewEtcdClient(endpoints []string) (*clientv3.Client, error) {
	client, err := clientv3.New(clientv3.Config{
		Endpoints:   endpoints,
		DialTimeout: 5 * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("connecting to etcd %v: %w", endpoints, err)
	}
	return client, nil
}

// EtcdDirectory is an endpoint.Directory backed by etcd.
type EtcdDirectory struct {
	client *clientv3.Client
	prefix string
	ttl    time.Duration
	logger *slog.Logger

	mu     sync.Mutex
	leases map[endpoint.NodeID]publication
}

type publication struct {
	lease  clientv3.LeaseID
	cancel context.CancelFunc
}

// NewEtcdDirectory stores nodes under prefix. The caller owns client.
func NewEtcdDirectory(client *clientv3.Client, prefix string, ttl time.Duration, logger *slog.Logger) *EtcdDirectory {
	if ttl <= 0 {
		ttl = DefaultLeaseTTL
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &EtcdDirectory{
		client: client,
		prefix: prefix,
		ttl:    ttl,
		logger: logger,
		leases: make(map[endpoint.NodeID]publication),
	}
}

// NodeKey is the etcd key holding a node's address.
func NodeKey(prefix string, id endpoint.NodeID) string {
	return path.Join(prefix, "nodes", id.String())
}

// Publish writes addr under a fresh lease and keeps the lease alive
// until Unpublish. Republishing replaces the previous lease.
func (d *EtcdDirectory) Publish(ctx context.Context, addr endpoint.NodeAddr) error {
	value, err := codec.Marshal(addr)
	if err != nil {
		return fmt.Errorf("encoding node address: %w", err)
	}

	lease, err := d.client.Grant(ctx, int64(d.ttl/time.Second))
	if err != nil {
		return fmt.Errorf("granting etcd lease: %w", err)
	}
	if _, err := d.client.Put(ctx, NodeKey(d.prefix, addr.ID), string(value), clientv3.WithLease(lease.ID)); err != nil {
		return fmt.Errorf("publishing node %s: %w", addr.ID.ShortString(), err)
	}

	keepAliveCtx, cancel := context.WithCancel(context.Background())
	responses, err := d.client.KeepAlive(keepAliveCtx, lease.ID)
	if err != nil {
		cancel()
		return fmt.Errorf("keeping etcd lease alive: %w", err)
	}
	go d.drainKeepAlive(addr.ID, responses)

	d.mu.Lock()
	previous, republished := d.leases[addr.ID]
	d.leases[addr.ID] = publication{lease: lease.ID, cancel: cancel}
	d.mu.Unlock()
	if republished {
		previous.cancel()
	}

	d.logger.Debug("node published", "node", addr.ID.ShortString(), "lease", int64(lease.ID))
	return nil
}

// drainKeepAlive consumes renewals; the channel closes when the lease
// is revoked, expires, or the keepalive context ends.
func (d *EtcdDirectory) drainKeepAlive(id endpoint.NodeID, responses <-chan *clientv3.LeaseKeepAliveResponse) {
	for range responses {
	}
	d.logger.Debug("lease keepalive ended", "node", id.ShortString())
}

func (d *EtcdDirectory) Resolve(ctx context.Context, id endpoint.NodeID) (endpoint.NodeAddr, error) {
	response, err := d.client.Get(ctx, NodeKey(d.prefix, id))
	if err != nil {
		return endpoint.NodeAddr{}, fmt.Errorf("resolving node %s: %w", id.ShortString(), err)
	}
	if len(response.Kvs) == 0 {
		return endpoint.NodeAddr{}, endpoint.ErrNodeNotFound
	}
	var addr endpoint.NodeAddr
	if err := codec.Unmarshal(response.Kvs[0].Value, &addr); err != nil {
		return endpoint.NodeAddr{}, fmt.Errorf("decoding address of node %s: %w", id.ShortString(), err)
	}
	return addr, nil
}

// Unpublish revokes the node's lease, which deletes its key.
func (d *EtcdDirectory) Unpublish(ctx context.Context, id endpoint.NodeID) error {
	d.mu.Lock()
	published, ok := d.leases[id]
	delete(d.leases, id)
	d.mu.Unlock()

	if !ok {
		_, err := d.client.Delete(ctx, NodeKey(d.prefix, id))
		return err
	}
	published.cancel()
	if _, err := d.client.Revoke(ctx, published.lease); err != nil {
		return fmt.Errorf("revoking lease for node %s: %w", id.ShortString(), err)
	}
	return nil
}
