// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package docs

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bureau-foundation/peerdocs/endpoint"
)

const (
	// maxSyncBatch bounds the entries in one syncEntries frame.
	maxSyncBatch = 256

	syncAttempts       = 5
	syncBackoffInitial = 250 * time.Millisecond
	syncTimeout        = 30 * time.Second
	fetchTimeout       = 10 * time.Second
)

type syncOpen struct {
	Namespace NamespaceID `cbor:"1,keyasint"`
}

type syncVerdict struct {
	OK   bool               `cbor:"1,keyasint"`
	Code endpoint.CloseCode `cbor:"2,keyasint,omitempty"`
}

type syncEntries struct {
	Entries []Entry `cbor:"1,keyasint,omitempty"`
	Done    bool    `cbor:"2,keyasint,omitempty"`
}

// startSync runs a sync with node in the background. A request that
// arrives while one is running schedules one more pass after it.
func (doc *document) startSync(node endpoint.NodeID) {
	doc.syncMu.Lock()
	if doc.docs.ctx.Err() != nil {
		doc.syncMu.Unlock()
		return
	}
	if _, running := doc.syncing[node]; running {
		doc.syncing[node] = true
		doc.syncMu.Unlock()
		return
	}
	doc.syncing[node] = false
	doc.syncMu.Unlock()

	doc.docs.wg.Add(1)
	go func() {
		defer doc.docs.wg.Done()
		for {
			doc.syncWithRetry(node)

			doc.syncMu.Lock()
			again := doc.syncing[node] && doc.docs.ctx.Err() == nil
			if !again {
				delete(doc.syncing, node)
				doc.syncMu.Unlock()
				return
			}
			doc.syncing[node] = false
			doc.syncMu.Unlock()
		}
	}()
}

// syncWithRetry retries transient failures with exponential backoff.
func (doc *document) syncWithRetry(node endpoint.NodeID) {
	ctx := doc.docs.ctx
	delay := syncBackoffInitial
	for attempt := 1; attempt <= syncAttempts; attempt++ {
		received, err := doc.syncOnce(ctx, node)
		if err == nil {
			doc.logger.Debug("synced with peer", "peer", node.ShortString(), "received", received)
			return
		}
		if ctx.Err() != nil {
			return
		}
		if !endpoint.IsTransient(err) {
			doc.logger.Info("sync with peer failed", "peer", node.ShortString(), "error", err)
			return
		}
		doc.logger.Debug("sync with peer interrupted", "peer", node.ShortString(), "attempt", attempt, "retry_in", delay, "error", err)
		select {
		case <-ctx.Done():
			return
		case <-doc.docs.clock.After(delay):
		}
		delay *= 2
	}
	doc.logger.Warn("giving up sync with peer", "peer", node.ShortString(), "attempts", syncAttempts)
}

// syncOnce opens a sync session to node and exchanges entries.
func (doc *document) syncOnce(ctx context.Context, node endpoint.NodeID) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, syncTimeout)
	defer cancel()

	session, err := doc.docs.endpoint.Connect(ctx, node, ALPN)
	if err != nil {
		return 0, err
	}
	defer session.Close()
	session.SetDeadline(time.Now().Add(syncTimeout))
	stop := context.AfterFunc(ctx, func() { session.Close() })
	defer stop()

	if err := session.Send(syncOpen{Namespace: doc.namespace}); err != nil {
		return 0, endpoint.NewPeerError(node, "sync open", err, true)
	}
	var verdict syncVerdict
	if err := session.Receive(&verdict); err != nil {
		return 0, endpoint.NewPeerError(node, "sync verdict", err, true)
	}
	if !verdict.OK {
		return 0, endpoint.NewPeerError(node, "sync", fmt.Errorf("peer refused: %s", verdict.Code), false)
	}
	return doc.exchange(ctx, session)
}

// exchange sends every local entry while merging the peer's. Sending
// runs concurrently so neither side blocks on a full stream.
func (doc *document) exchange(ctx context.Context, session *endpoint.Session) (int, error) {
	node := session.RemoteNode()
	sendDone := make(chan error, 1)
	go func() { sendDone <- doc.sendEntries(session) }()

	received, receiveErr := doc.receiveEntries(ctx, session)
	if receiveErr != nil {
		session.Close()
	}
	sendErr := <-sendDone
	if receiveErr != nil {
		return received, receiveErr
	}
	if sendErr != nil {
		return received, endpoint.NewPeerError(node, "sync send", sendErr, true)
	}
	return received, nil
}

func (doc *document) sendEntries(session *endpoint.Session) error {
	entries := doc.replica.query(QueryAll())
	for len(entries) > maxSyncBatch {
		if err := session.Send(syncEntries{Entries: entries[:maxSyncBatch]}); err != nil {
			return err
		}
		entries = entries[maxSyncBatch:]
	}
	return session.Send(syncEntries{Entries: entries, Done: true})
}

// receiveEntries merges batches until the peer's final one. An entry
// that fails verification ends the sync without retry.
func (doc *document) receiveEntries(ctx context.Context, session *endpoint.Session) (int, error) {
	node := session.RemoteNode()
	received := 0
	for {
		var batch syncEntries
		if err := session.Receive(&batch); err != nil {
			return received, endpoint.NewPeerError(node, "sync receive", err, true)
		}
		if len(batch.Entries) > maxSyncBatch {
			return received, endpoint.NewPeerError(node, "sync receive", fmt.Errorf("batch of %d entries exceeds %d", len(batch.Entries), maxSyncBatch), false)
		}
		for _, entry := range batch.Entries {
			inserted, err := doc.merge(ctx, entry, node)
			if err != nil {
				return received, endpoint.NewPeerError(node, "sync merge", err, false)
			}
			if inserted {
				received++
			}
		}
		if batch.Done {
			return received, nil
		}
	}
}

// Accept serves an inbound sync session.
func (d *Docs) Accept(_ context.Context, session *endpoint.Session) error {
	defer session.Close()
	session.SetDeadline(time.Now().Add(syncTimeout))

	var open syncOpen
	if err := session.Receive(&open); err != nil {
		return fmt.Errorf("reading sync open: %w", err)
	}
	doc := d.lookup(open.Namespace)
	if doc == nil {
		d.logger.Debug("sync for unknown namespace", "namespace", open.Namespace.ShortString(), "peer", session.RemoteNode().ShortString())
		return session.Send(syncVerdict{Code: endpoint.CodeUnknownNamespace})
	}
	if err := session.Send(syncVerdict{OK: true}); err != nil {
		return fmt.Errorf("sending sync verdict: %w", err)
	}

	syncCtx, cancel := context.WithTimeout(d.ctx, syncTimeout)
	defer cancel()
	received, err := doc.exchange(syncCtx, session)
	if err != nil {
		if errors.Is(err, ErrClosed) || d.ctx.Err() != nil {
			return nil
		}
		return err
	}
	doc.logger.Debug("served sync", "peer", session.RemoteNode().ShortString(), "received", received)
	return nil
}
