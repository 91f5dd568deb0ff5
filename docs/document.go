// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package docs

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/bureau-foundation/peerdocs/blobs"
	"github.com/bureau-foundation/peerdocs/endpoint"
	"github.com/bureau-foundation/peerdocs/gossip"
	"github.com/bureau-foundation/peerdocs/lib/codec"
)

// liveUpdate is the gossip payload announcing one inserted entry.
type liveUpdate struct {
	Entry Entry `cbor:"1,keyasint"`
}

// document is the live state of one namespace, shared by every Doc
// handle on it.
type document struct {
	docs      *Docs
	namespace NamespaceID
	replica   *replica
	topic     *gossip.Topic
	logger    *slog.Logger

	// syncing maps peers with a running sync to whether another pass
	// was requested meanwhile.
	syncMu  sync.Mutex
	syncing map[endpoint.NodeID]bool
}

func newDocument(d *Docs, namespace NamespaceID, topic *gossip.Topic) *document {
	return &document{
		docs:      d,
		namespace: namespace,
		replica:   newReplica(namespace),
		topic:     topic,
		logger:    d.logger.With("namespace", namespace.ShortString()),
		syncing:   make(map[endpoint.NodeID]bool),
	}
}

// run applies live updates and starts sync with new neighbors until
// the topic closes.
func (doc *document) run() {
	self := doc.docs.endpoint.NodeID()
	for event := range doc.topic.Events() {
		switch event.Kind {
		case gossip.EventReceived:
			doc.applyLive(event)
		case gossip.EventNeighborUp:
			// Both ends see the neighbor; the smaller node initiates.
			if self.Compare(event.Node) < 0 {
				doc.startSync(event.Node)
			}
		}
	}
}

func (doc *document) applyLive(event gossip.Event) {
	var update liveUpdate
	if err := codec.Unmarshal(event.Content, &update); err != nil {
		doc.logger.Debug("dropping malformed live update", "peer", event.DeliveredFrom.ShortString(), "error", err)
		return
	}
	ctx, cancel := context.WithTimeout(doc.docs.ctx, fetchTimeout)
	defer cancel()
	if _, err := doc.merge(ctx, update.Entry, event.Origin, event.DeliveredFrom); err != nil {
		doc.logger.Debug("rejected live update", "peer", event.DeliveredFrom.ShortString(), "error", err)
	}
}

// merge inserts a remote entry, fetching its content from the given
// peers first when the entry would replace the slot. Content that
// cannot be fetched is logged; the entry is kept.
func (doc *document) merge(ctx context.Context, entry Entry, from ...endpoint.NodeID) (bool, error) {
	if entry.Namespace != doc.namespace {
		return false, fmt.Errorf("entry for namespace %s", entry.Namespace.ShortString())
	}
	if err := entry.Verify(); err != nil {
		return false, err
	}
	if !doc.replica.accepts(&entry) {
		return false, nil
	}
	if err := doc.ensureContent(ctx, entry.ContentHash, from); err != nil {
		doc.logger.Warn("entry content unavailable",
			"author", entry.Author.ShortString(),
			"hash", entry.ContentHash.ShortString(),
			"error", err,
		)
	}
	return doc.replica.insertRemote(entry)
}

func (doc *document) ensureContent(ctx context.Context, hash blobs.Hash, from []endpoint.NodeID) error {
	if present, err := doc.docs.store.Has(ctx, hash); err == nil && present {
		return nil
	}
	self := doc.docs.endpoint.NodeID()
	var lastErr error = blobs.ErrNotFound
	tried := make(map[endpoint.NodeID]bool)
	for _, node := range from {
		if node.IsZero() || node == self || tried[node] {
			continue
		}
		tried[node] = true
		if lastErr = doc.docs.blobClient.Fetch(ctx, node, hash, doc.docs.store); lastErr == nil {
			return nil
		}
	}
	return lastErr
}

// publish announces a local insert on the document topic. Failures
// are logged; the local write stands.
func (doc *document) publish(entry Entry) {
	content, err := codec.Marshal(liveUpdate{Entry: entry})
	if err != nil {
		doc.logger.Error("encoding live update", "error", err)
		return
	}
	if err := doc.topic.Broadcast(doc.docs.ctx, content); err != nil {
		doc.logger.Debug("broadcasting entry", "error", err)
	}
}

// Doc is a handle on a document.
type Doc struct {
	docs   *Docs
	doc    *document
	closed atomic.Bool
}

// ID returns the document's namespace.
func (h *Doc) ID() NamespaceID { return h.doc.namespace }

func (h *Doc) checkOpen() error {
	if h.closed.Load() || h.docs.isClosed() {
		return ErrClosed
	}
	return nil
}

// SetBytes stores value and writes it to the author's slot for key,
// returning the hash of the new signed entry. Once the content is
// stored the write completes even if ctx is cancelled.
func (h *Doc) SetBytes(ctx context.Context, author AuthorID, key, value []byte) (blobs.Hash, error) {
	if err := h.checkOpen(); err != nil {
		return blobs.Hash{}, err
	}
	private, ok := h.docs.keyring.get(author)
	if !ok {
		return blobs.Hash{}, fmt.Errorf("%w: %s", ErrUnknownAuthor, author.ShortString())
	}
	contentHash, err := h.docs.store.Put(ctx, value)
	if err != nil {
		return blobs.Hash{}, fmt.Errorf("storing content: %w", err)
	}

	now := max(h.docs.clock.Now().UnixMicro(), 0)
	entry, err := h.doc.replica.insertLocal(private, key, contentHash, uint64(len(value)), uint64(now))
	if err != nil {
		return blobs.Hash{}, fmt.Errorf("writing key %s: %w", formatKey(key), err)
	}
	h.doc.publish(entry)
	return entry.Hash(), nil
}

// SetText is SetBytes with the key and value taken as their UTF-8
// bytes; it addresses the same slot as SetBytes with those bytes.
func (h *Doc) SetText(ctx context.Context, author AuthorID, key, value string) (blobs.Hash, error) {
	return h.SetBytes(ctx, author, []byte(key), []byte(value))
}

// GetMany streams the latest entries matching query as of the call.
func (h *Doc) GetMany(ctx context.Context, query Query) (*EntryIterator, error) {
	if err := h.checkOpen(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return newEntryIterator(ctx, h.docs.ctx, h.doc.replica.query(query)), nil
}

// GetExact returns the latest entry in the author's slot for key.
func (h *Doc) GetExact(ctx context.Context, author AuthorID, key []byte) (Entry, error) {
	if err := h.checkOpen(); err != nil {
		return Entry{}, err
	}
	if err := ctx.Err(); err != nil {
		return Entry{}, err
	}
	entry, ok := h.doc.replica.get(author, key)
	if !ok {
		return Entry{}, fmt.Errorf("%w: author %s key %s", ErrEntryNotFound, author.ShortString(), formatKey(key))
	}
	return entry, nil
}

// Content reads an entry's value from the blob store.
func (h *Doc) Content(ctx context.Context, entry Entry) ([]byte, error) {
	return h.docs.store.Get(ctx, entry.ContentHash)
}

// Share returns a ticket naming this document and this node.
func (h *Doc) Share() Ticket {
	return Ticket{
		Namespace: h.doc.namespace,
		Nodes:     []endpoint.NodeAddr{h.docs.endpoint.Addr()},
	}
}

// Close releases the handle. The document stays live for other
// handles and for peers.
func (h *Doc) Close() error {
	h.closed.Store(true)
	return nil
}
