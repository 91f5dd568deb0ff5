// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package blobs

import (
	"context"
	"errors"
	"fmt"

	"github.com/bureau-foundation/peerdocs/endpoint"
)

// ErrRemote wraps an error reported by the serving peer.
var ErrRemote = errors.New("remote blob error")

// Client fetches blobs from and stores blobs on peers.
type Client struct {
	endpoint *endpoint.Endpoint
}

// NewClient returns a client that dials peers through ep. Each call
// opens its own session.
func NewClient(ep *endpoint.Endpoint) *Client {
	return &Client{endpoint: ep}
}

// Get downloads a blob. A miss on the peer is ErrNotFound. The content
// is verified against hash.
func (c *Client) Get(ctx context.Context, node endpoint.NodeID, hash Hash) ([]byte, error) {
	resp, err := c.roundTrip(ctx, node, request{Action: actionGet, Hash: hash})
	if err != nil {
		return nil, err
	}
	data, err := decompressPayload(resp.Data, resp.Compression, resp.Size)
	if err != nil {
		return nil, endpoint.NewPeerError(node, "get "+hash.ShortString(), err, false)
	}
	if Sum(data) != hash {
		return nil, endpoint.NewPeerError(node, "get "+hash.ShortString(), errors.New("content does not match hash"), false)
	}
	return data, nil
}

// Put uploads data and returns the hash the peer stored it under.
func (c *Client) Put(ctx context.Context, node endpoint.NodeID, data []byte) (Hash, error) {
	if len(data) > MaxBlobSize {
		return Hash{}, fmt.Errorf("blob of %d bytes exceeds limit of %d", len(data), MaxBlobSize)
	}
	payload, compression, err := compressPayload(data)
	if err != nil {
		return Hash{}, err
	}
	hash := Sum(data)
	resp, err := c.roundTrip(ctx, node, request{
		Action:      actionPut,
		Hash:        hash,
		Data:        payload,
		Compression: compression,
		Size:        len(data),
	})
	if err != nil {
		return Hash{}, err
	}
	if resp.Hash != hash {
		return Hash{}, endpoint.NewPeerError(node, "put", fmt.Errorf("stored as %s, want %s", resp.Hash.ShortString(), hash.ShortString()), false)
	}
	return hash, nil
}

// Has asks whether the peer holds the blob.
func (c *Client) Has(ctx context.Context, node endpoint.NodeID, hash Hash) (bool, error) {
	resp, err := c.roundTrip(ctx, node, request{Action: actionHas, Hash: hash})
	if err != nil {
		return false, err
	}
	return resp.Present, nil
}

// Fetch copies a blob from node into store unless store already has it.
func (c *Client) Fetch(ctx context.Context, node endpoint.NodeID, hash Hash, store Store) error {
	present, err := store.Has(ctx, hash)
	if err != nil {
		return err
	}
	if present {
		return nil
	}
	data, err := c.Get(ctx, node, hash)
	if err != nil {
		return err
	}
	_, err = store.Put(ctx, data)
	return err
}

func (c *Client) roundTrip(ctx context.Context, node endpoint.NodeID, req request) (response, error) {
	session, err := c.endpoint.Connect(ctx, node, ALPN)
	if err != nil {
		return response{}, err
	}
	defer session.Close()
	stop := context.AfterFunc(ctx, func() { session.Close() })
	defer stop()

	if err := session.Send(req); err != nil {
		return response{}, endpoint.NewPeerError(node, req.Action, err, true)
	}
	var resp response
	if err := session.Receive(&resp); err != nil {
		if ctx.Err() != nil {
			return response{}, ctx.Err()
		}
		return response{}, endpoint.NewPeerError(node, req.Action, err, true)
	}
	if !resp.OK {
		if resp.Code == codeNotFound {
			return response{}, fmt.Errorf("%s %s on peer %s: %w", req.Action, req.Hash.ShortString(), node.ShortString(), ErrNotFound)
		}
		return response{}, fmt.Errorf("%w: %s: %s", ErrRemote, resp.Code, resp.Error)
	}
	return resp, nil
}
