// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package docs

import (
	"crypto/ed25519"
	"crypto/rand"
	"strings"
	"testing"

	"github.com/bureau-foundation/peerdocs/blobs"
)

func newTestAuthor(t *testing.T) ed25519.PrivateKey {
	t.Helper()
	_, private, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	return private
}

func signedEntry(t *testing.T, private ed25519.PrivateKey, key string, timestamp uint64) Entry {
	t.Helper()
	entry := Entry{
		Author:      authorOf(private),
		Key:         []byte(key),
		ContentHash: blobs.Sum([]byte(key)),
		ContentLen:  uint64(len(key)),
		Timestamp:   timestamp,
	}
	entry.sign(private)
	return entry
}

func TestEntrySignatureCoversFields(t *testing.T) {
	private := newTestAuthor(t)
	entry := signedEntry(t, private, "t", 100)
	if err := entry.Verify(); err != nil {
		t.Fatalf("Verify: %v", err)
	}

	tampered := map[string]func(*Entry){
		"key":       func(e *Entry) { e.Key = []byte("todo") },
		"timestamp": func(e *Entry) { e.Timestamp++ },
		"content":   func(e *Entry) { e.ContentHash = blobs.Sum([]byte("bork2")) },
		"namespace": func(e *Entry) { e.Namespace[0] ^= 1 },
		"author":    func(e *Entry) { e.Author = authorOf(newTestAuthor(t)) },
		"signature": func(e *Entry) { e.Signature = e.Signature[:10] },
	}
	for field, mutate := range tampered {
		copied := entry
		copied.Key = append([]byte(nil), entry.Key...)
		copied.Signature = append([]byte(nil), entry.Signature...)
		mutate(&copied)
		if err := copied.Verify(); err == nil {
			t.Errorf("entry with tampered %s still verifies", field)
		}
	}
}

func TestEntrySupersedes(t *testing.T) {
	private := newTestAuthor(t)
	older := signedEntry(t, private, "t", 100)
	newer := signedEntry(t, private, "t", 101)
	if !newer.supersedes(&older) || older.supersedes(&newer) {
		t.Fatal("greater timestamp must win")
	}

	// Equal timestamps: the greater signature wins, and exactly one
	// direction holds.
	a := signedEntry(t, private, "t", 100)
	b := a
	b.Signature = append([]byte(nil), a.Signature...)
	b.Signature[0] ^= 0xff
	if a.supersedes(&b) == b.supersedes(&a) {
		t.Fatal("tie-break must order distinct signatures")
	}
	if a.supersedes(&a) {
		t.Fatal("an entry must not supersede itself")
	}
}

func TestEntryHashDistinguishesEntries(t *testing.T) {
	private := newTestAuthor(t)
	first := signedEntry(t, private, "t", 100)
	second := signedEntry(t, private, "t", 101)
	if first.Hash() == second.Hash() {
		t.Fatal("distinct entries share a hash")
	}
	if first.Hash() != first.Hash() {
		t.Fatal("Hash is not deterministic")
	}
}

func TestEntryString(t *testing.T) {
	entry := signedEntry(t, newTestAuthor(t), "todo", 100)
	dump := entry.String()
	for _, want := range []string{"Entry {", `key: "todo"`, "content_len: 4", "timestamp: 100", entry.Author.String()} {
		if !strings.Contains(dump, want) {
			t.Errorf("dump missing %q:\n%s", want, dump)
		}
	}

	binary := signedEntry(t, newTestAuthor(t), "\x00\x01", 1)
	if !strings.Contains(binary.String(), "key: 0x0001") {
		t.Errorf("binary key not rendered as hex:\n%s", binary.String())
	}
}

// Map values are not addressable; the read accessors must work on them.
func TestEntryAccessorsOnMapValues(t *testing.T) {
	private := newTestAuthor(t)
	entry := signedEntry(t, private, "t", 100)
	entries := map[string]Entry{"t": entry}

	if entries["t"].Hash() != entry.Hash() {
		t.Fatal("Hash of map value differs from the original entry")
	}
	if err := entries["t"].Verify(); err != nil {
		t.Fatalf("Verify on map value: %v", err)
	}
	if got := entries["t"].Time(); !got.Equal(entry.Time()) {
		t.Fatalf("Time on map value = %v, want %v", got, entry.Time())
	}
}
