// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package docs

import (
	"context"
	"crypto/ed25519"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/bureau-foundation/peerdocs/blobs"
	"github.com/bureau-foundation/peerdocs/endpoint"
	"github.com/bureau-foundation/peerdocs/gossip"
	"github.com/bureau-foundation/peerdocs/lib/clock"
)

// ALPN is the protocol tag document sync sessions are opened with.
const ALPN = "/iroh-sync/1"

var (
	// ErrUnknownAuthor is returned when writing as an author that is
	// not in the keyring.
	ErrUnknownAuthor = errors.New("unknown author")

	// ErrDocumentNotFound is returned when opening a namespace this
	// node has never created or imported.
	ErrDocumentNotFound = errors.New("document not found")

	// ErrEntryNotFound is returned by GetExact when the slot is empty.
	ErrEntryNotFound = errors.New("entry not found")

	// ErrTimestampExhausted is returned by a write whose slot already
	// holds the largest representable timestamp, so no later entry
	// could supersede it.
	ErrTimestampExhausted = errors.New("entry timestamp exhausted")

	// ErrClosed is returned by operations after Shutdown, and by
	// iterators cut short by it.
	ErrClosed = errors.New("docs closed")
)

// Config tunes a Docs. Zero values take the defaults.
type Config struct {
	// Keyring holds the authors. Nil starts an empty keyring.
	Keyring *Keyring

	// Clock stamps local writes.
	Clock clock.Clock

	Logger *slog.Logger
}

// Docs owns a set of documents and the authors that write them. It is
// the protocol handler for ALPN and is safe for concurrent use.
type Docs struct {
	endpoint   *endpoint.Endpoint
	store      blobs.Store
	gossip     *gossip.Gossip
	blobClient *blobs.Client
	keyring    *Keyring
	clock      clock.Clock
	logger     *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu        sync.Mutex
	documents map[NamespaceID]*document
	closed    bool
}

// New creates the handler. Entry content is written to store; live
// updates travel over g. Register the result with the router under
// ALPN.
func New(ep *endpoint.Endpoint, store blobs.Store, g *gossip.Gossip, config Config) *Docs {
	if config.Keyring == nil {
		config.Keyring = NewKeyring()
	}
	if config.Clock == nil {
		config.Clock = clock.Real()
	}
	if config.Logger == nil {
		config.Logger = ep.Logger()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Docs{
		endpoint:   ep,
		store:      store,
		gossip:     g,
		blobClient: blobs.NewClient(ep),
		keyring:    config.Keyring,
		clock:      config.Clock,
		logger:     config.Logger.With("protocol", "docs"),
		ctx:        ctx,
		cancel:     cancel,
		documents:  make(map[NamespaceID]*document),
	}
}

// Keyring returns the author keyring.
func (d *Docs) Keyring() *Keyring { return d.keyring }

// Create allocates a new document and joins its topic.
func (d *Docs) Create(ctx context.Context) (*Doc, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	namespace, err := NewNamespaceID()
	if err != nil {
		return nil, err
	}
	doc, err := d.open(ctx, namespace, nil)
	if err != nil {
		return nil, err
	}
	d.logger.Info("created document", "namespace", namespace.ShortString())
	return &Doc{docs: d, doc: doc}, nil
}

// Open returns a new handle on a document this node already holds.
func (d *Docs) Open(ctx context.Context, namespace NamespaceID) (*Doc, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil, ErrClosed
	}
	doc, ok := d.documents[namespace]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrDocumentNotFound, namespace.ShortString())
	}
	return &Doc{docs: d, doc: doc}, nil
}

// Import joins the document a ticket names: it records the ticket's
// node addresses, subscribes with those nodes as bootstrap, and syncs
// with each of them in the background.
func (d *Docs) Import(ctx context.Context, ticket Ticket) (*Doc, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	self := d.endpoint.NodeID()
	var bootstrap []endpoint.NodeID
	for _, addr := range ticket.Nodes {
		if addr.ID == self || addr.ID.IsZero() {
			continue
		}
		d.endpoint.AddNodeAddr(addr)
		bootstrap = append(bootstrap, addr.ID)
	}
	doc, err := d.open(ctx, ticket.Namespace, bootstrap)
	if err != nil {
		return nil, err
	}
	for _, node := range bootstrap {
		doc.startSync(node)
	}
	d.logger.Info("imported document", "namespace", ticket.Namespace.ShortString(), "peers", len(bootstrap))
	return &Doc{docs: d, doc: doc}, nil
}

// open returns the live document for namespace, starting it if needed.
func (d *Docs) open(ctx context.Context, namespace NamespaceID, bootstrap []endpoint.NodeID) (*document, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil, ErrClosed
	}
	if doc, ok := d.documents[namespace]; ok {
		return doc, nil
	}
	topic, err := d.gossip.Subscribe(ctx, namespace.Topic(), bootstrap)
	if err != nil {
		return nil, fmt.Errorf("joining document topic: %w", err)
	}
	doc := newDocument(d, namespace, topic)
	d.documents[namespace] = doc
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		doc.run()
	}()
	return doc, nil
}

// lookup returns the live document for namespace, or nil.
func (d *Docs) lookup(namespace NamespaceID) *document {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.documents[namespace]
}

// List returns the held documents in ID order.
func (d *Docs) List() []NamespaceID {
	d.mu.Lock()
	defer d.mu.Unlock()
	ids := make([]NamespaceID, 0, len(d.documents))
	for id := range d.documents {
		ids = append(ids, id)
	}
	slices.SortFunc(ids, func(a, b NamespaceID) int { return slices.Compare(a[:], b[:]) })
	return ids
}

// CreateAuthor generates a new author in the keyring.
func (d *Docs) CreateAuthor(ctx context.Context) (AuthorID, error) {
	if err := ctx.Err(); err != nil {
		return AuthorID{}, err
	}
	return d.keyring.Create()
}

// ImportAuthor adds an existing author key to the keyring.
func (d *Docs) ImportAuthor(ctx context.Context, private ed25519.PrivateKey) (AuthorID, error) {
	if err := ctx.Err(); err != nil {
		return AuthorID{}, err
	}
	return d.keyring.Import(private)
}

// DeriveAuthor adds the author derived from root and label; the same
// inputs always yield the same author.
func (d *Docs) DeriveAuthor(ctx context.Context, root []byte, label string) (AuthorID, error) {
	if err := ctx.Err(); err != nil {
		return AuthorID{}, err
	}
	seed, err := DeriveAuthorSeed(root, label)
	if err != nil {
		return AuthorID{}, err
	}
	return d.keyring.ImportSeed(seed)
}

// Authors lists the keyring's authors in ID order.
func (d *Docs) Authors() []AuthorID { return d.keyring.Authors() }

// ExportAuthor returns a copy of the author's private key, for moving
// the author to another node with ImportAuthor. An author not in the
// keyring is ErrUnknownAuthor.
func (d *Docs) ExportAuthor(author AuthorID) (ed25519.PrivateKey, error) {
	return d.keyring.Export(author)
}

// Shutdown leaves every document topic and waits for background sync
// to stop. Open iterators end with ErrClosed.
func (d *Docs) Shutdown(ctx context.Context) error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	documents := make([]*document, 0, len(d.documents))
	for _, doc := range d.documents {
		documents = append(documents, doc)
	}
	d.mu.Unlock()

	d.cancel()
	for _, doc := range documents {
		doc.topic.Close()
	}

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for document sync to stop: %w", ctx.Err())
	}
}

func (d *Docs) isClosed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closed
}
