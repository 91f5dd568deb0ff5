// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package docs_test

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bureau-foundation/peerdocs/blobs"
	"github.com/bureau-foundation/peerdocs/discovery"
	"github.com/bureau-foundation/peerdocs/docs"
	"github.com/bureau-foundation/peerdocs/endpoint"
	"github.com/bureau-foundation/peerdocs/gossip"
	"github.com/bureau-foundation/peerdocs/lib/clock"
	"github.com/bureau-foundation/peerdocs/lib/testutil"
	"github.com/bureau-foundation/peerdocs/router"
)

type testNode struct {
	endpoint *endpoint.Endpoint
	store    *blobs.MemStore
	docs     *docs.Docs
	router   *router.Router
}

// newTestNode composes endpoint, blob store, gossip, and docs behind a
// router, the same way a node binary does.
func newTestNode(t *testing.T, directory *discovery.MemoryDirectory, docsClock clock.Clock) *testNode {
	t.Helper()
	ctx := context.Background()
	ep, err := endpoint.Build(ctx, endpoint.Config{Directory: directory})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	store := blobs.NewMemStore()
	g := gossip.New(ep, gossip.Config{})
	d := docs.New(ep, store, g, docs.Config{Clock: docsClock})
	r, err := router.NewBuilder(ep).
		Accept(blobs.ALPN, blobs.NewProtocol(ep, store, nil)).
		Accept(gossip.ALPN, g).
		Accept(docs.ALPN, d).
		Spawn(ctx)
	if err != nil {
		t.Fatalf("Spawn: %v", err)
	}
	t.Cleanup(func() { r.Shutdown(context.Background()) })
	return &testNode{endpoint: ep, store: store, docs: d, router: r}
}

func collect(t *testing.T, doc *docs.Doc, query docs.Query) []docs.Entry {
	t.Helper()
	it, err := doc.GetMany(context.Background(), query)
	if err != nil {
		t.Fatalf("GetMany: %v", err)
	}
	entries, err := it.Collect()
	if err != nil {
		t.Fatalf("iterating: %v", err)
	}
	return entries
}

func contentOf(t *testing.T, doc *docs.Doc, entry docs.Entry) string {
	t.Helper()
	content, err := doc.Content(context.Background(), entry)
	if err != nil {
		t.Fatalf("Content(%q): %v", entry.Key, err)
	}
	return string(content)
}

// byKey indexes entries by key, failing on duplicate keys.
func byKey(t *testing.T, entries []docs.Entry) map[string]docs.Entry {
	t.Helper()
	index := make(map[string]docs.Entry, len(entries))
	for _, entry := range entries {
		if _, dup := index[string(entry.Key)]; dup {
			t.Fatalf("key %q appears twice", entry.Key)
		}
		index[string(entry.Key)] = entry
	}
	return index
}

func TestGoldenPathAndOverwrite(t *testing.T) {
	node := newTestNode(t, discovery.NewMemoryDirectory(), nil)
	ctx := context.Background()

	doc, err := node.docs.Create(ctx)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	author, err := node.docs.CreateAuthor(ctx)
	if err != nil {
		t.Fatalf("CreateAuthor: %v", err)
	}

	if _, err := doc.SetBytes(ctx, author, []byte("t"), []byte("bork")); err != nil {
		t.Fatalf("SetBytes(t): %v", err)
	}
	if _, err := doc.SetBytes(ctx, author, []byte("todo"), []byte("bork")); err != nil {
		t.Fatalf("SetBytes(todo): %v", err)
	}

	entries := byKey(t, collect(t, doc, docs.QueryAll()))
	if len(entries) != 2 {
		t.Fatalf("got %d entries, want 2", len(entries))
	}
	for _, key := range []string{"t", "todo"} {
		entry, ok := entries[key]
		if !ok {
			t.Fatalf("missing key %q", key)
		}
		if entry.Author != author {
			t.Errorf("%q authored by %s", key, entry.Author.ShortString())
		}
		if got := contentOf(t, doc, entry); got != "bork" {
			t.Errorf("%q = %q, want bork", key, got)
		}
	}
	todoBefore := entries["todo"]
	tBefore := entries["t"]

	entryHash, err := doc.SetText(ctx, author, "t", "bork2")
	if err != nil {
		t.Fatalf("SetText: %v", err)
	}

	entries = byKey(t, collect(t, doc, docs.QueryAll()))
	if len(entries) != 2 {
		t.Fatalf("after overwrite got %d entries, want 2", len(entries))
	}
	if got := contentOf(t, doc, entries["t"]); got != "bork2" {
		t.Fatalf("t = %q, want bork2", got)
	}
	if entries["t"].Timestamp <= tBefore.Timestamp {
		t.Fatalf("overwrite timestamp %d not after %d", entries["t"].Timestamp, tBefore.Timestamp)
	}
	if entries["t"].Hash() != entryHash {
		t.Fatal("SetText did not return the stored entry's hash")
	}
	if entries["todo"].Hash() != todoBefore.Hash() {
		t.Fatal("todo entry changed")
	}
}

func TestTextAndByteKeysShareSlot(t *testing.T) {
	node := newTestNode(t, discovery.NewMemoryDirectory(), nil)
	ctx := context.Background()
	doc, _ := node.docs.Create(ctx)
	author, _ := node.docs.CreateAuthor(ctx)

	if _, err := doc.SetBytes(ctx, author, []byte("t"), []byte("bork")); err != nil {
		t.Fatalf("SetBytes: %v", err)
	}
	if _, err := doc.SetText(ctx, author, "t", "bork2"); err != nil {
		t.Fatalf("SetText: %v", err)
	}
	entries := collect(t, doc, docs.QueryKeyExact([]byte("t")))
	if len(entries) != 1 {
		t.Fatalf("got %d entries for t, want 1", len(entries))
	}
	if got := contentOf(t, doc, entries[0]); got != "bork2" {
		t.Fatalf("t = %q, want bork2", got)
	}
	exact, err := doc.GetExact(ctx, author, []byte("t"))
	if err != nil || exact.Hash() != entries[0].Hash() {
		t.Fatalf("GetExact = %v", err)
	}
}

func TestUnknownAuthor(t *testing.T) {
	node := newTestNode(t, discovery.NewMemoryDirectory(), nil)
	ctx := context.Background()
	doc, _ := node.docs.Create(ctx)

	var fabricated docs.AuthorID
	fabricated[0] = 0x42
	_, err := doc.SetText(ctx, fabricated, "k", "v")
	if !errors.Is(err, docs.ErrUnknownAuthor) {
		t.Fatalf("SetText with fabricated author = %v, want ErrUnknownAuthor", err)
	}
	if entries := collect(t, doc, docs.QueryAll()); len(entries) != 0 {
		t.Fatalf("rejected write left %d entries", len(entries))
	}
	if has, _ := node.store.Has(ctx, blobs.Sum([]byte("v"))); has {
		t.Fatal("rejected write stored its content")
	}
}

// Values are stored locally without the blob transfer limit.
func TestSetBytesLargeValue(t *testing.T) {
	node := newTestNode(t, discovery.NewMemoryDirectory(), nil)
	ctx := context.Background()
	doc, _ := node.docs.Create(ctx)
	author, _ := node.docs.CreateAuthor(ctx)

	value := bytes.Repeat([]byte{0xab}, blobs.MaxBlobSize+1)
	if _, err := doc.SetBytes(ctx, author, []byte("large"), value); err != nil {
		t.Fatalf("SetBytes(%d bytes): %v", len(value), err)
	}
	entry, err := doc.GetExact(ctx, author, []byte("large"))
	if err != nil {
		t.Fatalf("GetExact: %v", err)
	}
	if entry.ContentLen != uint64(len(value)) {
		t.Fatalf("ContentLen = %d, want %d", entry.ContentLen, len(value))
	}
	content, err := doc.Content(ctx, entry)
	if err != nil {
		t.Fatalf("Content: %v", err)
	}
	if !bytes.Equal(content, value) {
		t.Fatal("content read back differs from the value written")
	}
}

func TestDocumentIsolation(t *testing.T) {
	node := newTestNode(t, discovery.NewMemoryDirectory(), nil)
	ctx := context.Background()
	first, _ := node.docs.Create(ctx)
	second, _ := node.docs.Create(ctx)
	author, _ := node.docs.CreateAuthor(ctx)

	if first.ID() == second.ID() {
		t.Fatal("two documents share a namespace")
	}
	if _, err := first.SetText(ctx, author, "k", "one"); err != nil {
		t.Fatal(err)
	}
	if _, err := second.SetText(ctx, author, "k", "two"); err != nil {
		t.Fatal(err)
	}
	for doc, want := range map[*docs.Doc]string{first: "one", second: "two"} {
		entries := collect(t, doc, docs.QueryAll())
		if len(entries) != 1 {
			t.Fatalf("document %s has %d entries, want 1", doc.ID().ShortString(), len(entries))
		}
		if got := contentOf(t, doc, entries[0]); got != want {
			t.Fatalf("document %s k = %q, want %q", doc.ID().ShortString(), got, want)
		}
	}
	if got := node.docs.List(); len(got) != 2 {
		t.Fatalf("List = %d documents, want 2", len(got))
	}
}

func TestShutdownWithPendingIterator(t *testing.T) {
	node := newTestNode(t, discovery.NewMemoryDirectory(), nil)
	ctx := context.Background()
	doc, _ := node.docs.Create(ctx)
	author, _ := node.docs.CreateAuthor(ctx)
	for _, key := range []string{"a", "b", "c"} {
		if _, err := doc.SetText(ctx, author, key, "v"); err != nil {
			t.Fatal(err)
		}
	}

	it, err := doc.GetMany(ctx, docs.QueryAll())
	if err != nil {
		t.Fatalf("GetMany: %v", err)
	}
	defer it.Close()
	if !it.Next() {
		t.Fatal("iterator empty before shutdown")
	}
	delivered := []docs.Entry{it.Entry()}

	if err := node.router.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}

	for it.Next() {
		delivered = append(delivered, it.Entry())
	}
	if err := it.Err(); err != nil && !errors.Is(err, docs.ErrClosed) {
		t.Fatalf("iterator ended with %v", err)
	}
	if len(delivered) > 3 {
		t.Fatalf("delivered %d entries, want at most 3", len(delivered))
	}
	byKey(t, delivered)
	for _, entry := range delivered {
		if err := entry.Verify(); err != nil {
			t.Fatalf("delivered entry %q does not verify: %v", entry.Key, err)
		}
	}

	if _, err := doc.GetMany(ctx, docs.QueryAll()); !errors.Is(err, docs.ErrClosed) {
		t.Fatalf("GetMany after shutdown = %v, want ErrClosed", err)
	}
	if _, err := node.docs.Create(ctx); !errors.Is(err, docs.ErrClosed) {
		t.Fatalf("Create after shutdown = %v, want ErrClosed", err)
	}
}

func TestIteratorCloseReleasesProducer(t *testing.T) {
	node := newTestNode(t, discovery.NewMemoryDirectory(), nil)
	ctx := context.Background()
	doc, _ := node.docs.Create(ctx)
	author, _ := node.docs.CreateAuthor(ctx)
	for _, key := range []string{"a", "b", "c"} {
		doc.SetText(ctx, author, key, "v")
	}

	it, err := doc.GetMany(ctx, docs.QueryAll())
	if err != nil {
		t.Fatal(err)
	}
	it.Next()
	if err := it.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if it.Next() {
		t.Fatal("Next after Close returned an entry")
	}
	if err := it.Err(); err != nil {
		t.Fatalf("Err after Close = %v", err)
	}

	cancelled, cancel := context.WithCancel(ctx)
	it, err = doc.GetMany(cancelled, docs.QueryAll())
	if err != nil {
		t.Fatal(err)
	}
	cancel()
	for it.Next() {
	}
	if err := it.Err(); err != nil && !errors.Is(err, context.Canceled) {
		t.Fatalf("Err after cancel = %v", err)
	}
	it.Close()
}

func TestClockRegression(t *testing.T) {
	fake := clock.Fake(time.Date(2026, 10, 16, 12, 0, 0, 0, time.UTC))
	node := newTestNode(t, discovery.NewMemoryDirectory(), fake)
	ctx := context.Background()
	doc, _ := node.docs.Create(ctx)
	author, _ := node.docs.CreateAuthor(ctx)

	doc.SetText(ctx, author, "t", "bork")
	first, _ := doc.GetExact(ctx, author, []byte("t"))

	fake.Set(time.Date(2026, 10, 16, 11, 0, 0, 0, time.UTC))
	doc.SetText(ctx, author, "t", "bork2")
	second, _ := doc.GetExact(ctx, author, []byte("t"))

	if second.Timestamp != first.Timestamp+1 {
		t.Fatalf("timestamp after clock regression = %d, want %d", second.Timestamp, first.Timestamp+1)
	}
	if got := contentOf(t, doc, second); got != "bork2" {
		t.Fatalf("t = %q, want bork2", got)
	}
}

func TestAuthors(t *testing.T) {
	node := newTestNode(t, discovery.NewMemoryDirectory(), nil)
	ctx := context.Background()

	created, _ := node.docs.CreateAuthor(ctx)
	derived, err := node.docs.DeriveAuthor(ctx, bytes.Repeat([]byte{1}, 32), "demo")
	if err != nil {
		t.Fatalf("DeriveAuthor: %v", err)
	}
	again, _ := node.docs.DeriveAuthor(ctx, bytes.Repeat([]byte{1}, 32), "demo")
	if again != derived {
		t.Fatal("DeriveAuthor is not deterministic")
	}
	private, err := node.docs.ExportAuthor(created)
	if err != nil {
		t.Fatalf("ExportAuthor: %v", err)
	}

	other := newTestNode(t, discovery.NewMemoryDirectory(), nil)
	imported, err := other.docs.ImportAuthor(ctx, private)
	if err != nil || imported != created {
		t.Fatalf("ImportAuthor = %s, %v", imported.ShortString(), err)
	}
	if got := node.docs.Authors(); len(got) != 2 {
		t.Fatalf("Authors = %d, want 2", len(got))
	}
}

func TestOpenUnknownDocument(t *testing.T) {
	node := newTestNode(t, discovery.NewMemoryDirectory(), nil)
	ctx := context.Background()
	if _, err := node.docs.Open(ctx, docs.NamespaceID{9}); !errors.Is(err, docs.ErrDocumentNotFound) {
		t.Fatalf("Open = %v, want ErrDocumentNotFound", err)
	}
	doc, _ := node.docs.Create(ctx)
	reopened, err := node.docs.Open(ctx, doc.ID())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	author, _ := node.docs.CreateAuthor(ctx)
	doc.SetText(ctx, author, "k", "v")
	if _, err := reopened.GetExact(ctx, author, []byte("k")); err != nil {
		t.Fatalf("handles do not share state: %v", err)
	}
	if _, err := reopened.GetExact(ctx, author, []byte("missing")); !errors.Is(err, docs.ErrEntryNotFound) {
		t.Fatalf("GetExact(missing) = %v, want ErrEntryNotFound", err)
	}
	reopened.Close()
	if _, err := reopened.SetText(ctx, author, "k", "v"); !errors.Is(err, docs.ErrClosed) {
		t.Fatalf("SetText on closed handle = %v, want ErrClosed", err)
	}
	if _, err := doc.SetText(ctx, author, "k", "v2"); err != nil {
		t.Fatalf("closing one handle closed another: %v", err)
	}
}

func TestSyncBetweenNodes(t *testing.T) {
	directory := discovery.NewMemoryDirectory()
	alpha := newTestNode(t, directory, nil)
	beta := newTestNode(t, directory, nil)
	ctx := context.Background()

	doc, _ := alpha.docs.Create(ctx)
	author, _ := alpha.docs.CreateAuthor(ctx)
	doc.SetText(ctx, author, "t", "bork")
	doc.SetText(ctx, author, "todo", "bork")

	imported, err := beta.docs.Import(ctx, doc.Share())
	if err != nil {
		t.Fatalf("Import: %v", err)
	}
	if imported.ID() != doc.ID() {
		t.Fatal("imported a different namespace")
	}

	// Initial entries arrive through sync.
	testutil.Eventually(t, 10*time.Second, func() bool {
		return len(collect(t, imported, docs.QueryAll())) == 2
	}, "waiting for sync")
	entry, err := imported.GetExact(ctx, author, []byte("todo"))
	if err != nil {
		t.Fatal(err)
	}
	if got := contentOf(t, imported, entry); got != "bork" {
		t.Fatalf("synced todo = %q, want bork", got)
	}

	// Later writes arrive through live gossip.
	doc.SetText(ctx, author, "t", "bork2")
	testutil.Eventually(t, 10*time.Second, func() bool {
		entry, err := imported.GetExact(ctx, author, []byte("t"))
		if err != nil {
			return false
		}
		content, err := imported.Content(ctx, entry)
		return err == nil && string(content) == "bork2"
	}, "waiting for live update")

	// And in the other direction, from an author only beta holds.
	betaAuthor, _ := beta.docs.CreateAuthor(ctx)
	imported.SetText(ctx, betaAuthor, "reply", "ack")
	testutil.Eventually(t, 10*time.Second, func() bool {
		_, err := doc.GetExact(ctx, betaAuthor, []byte("reply"))
		return err == nil
	}, "waiting for reply")
}
