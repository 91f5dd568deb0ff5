// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package docs

import (
	"crypto/ed25519"
	"fmt"
	"math"
	"slices"
	"sync"

	"github.com/bureau-foundation/peerdocs/blobs"
)

type slot struct {
	author AuthorID
	key    string
}

// replica holds the latest entry of every slot in one namespace.
// Stored entries are never mutated; readers receive shallow copies.
type replica struct {
	namespace NamespaceID

	mu      sync.Mutex
	entries map[slot]*Entry
}

func newReplica(namespace NamespaceID) *replica {
	return &replica{namespace: namespace, entries: make(map[slot]*Entry)}
}

// insertLocal signs and stores a new entry for the author's slot. The
// timestamp is now, or one past the entry it replaces when the slot's
// current timestamp is not behind now. A slot already at the maximum
// timestamp cannot be superseded and yields ErrTimestampExhausted.
func (r *replica) insertLocal(private ed25519.PrivateKey, key []byte, hash blobs.Hash, length uint64, now uint64) (Entry, error) {
	author := authorOf(private)
	s := slot{author: author, key: string(key)}

	r.mu.Lock()
	defer r.mu.Unlock()

	timestamp := now
	if previous, ok := r.entries[s]; ok && previous.Timestamp >= timestamp {
		if previous.Timestamp == math.MaxUint64 {
			return Entry{}, ErrTimestampExhausted
		}
		timestamp = previous.Timestamp + 1
	}
	entry := &Entry{
		Namespace:   r.namespace,
		Author:      author,
		Key:         slices.Clone(key),
		ContentHash: hash,
		ContentLen:  length,
		Timestamp:   timestamp,
	}
	entry.sign(private)
	r.entries[s] = entry
	return *entry, nil
}

// accepts reports whether entry would replace the slot's current entry.
func (r *replica) accepts(entry *Entry) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	current, ok := r.entries[slot{author: entry.Author, key: string(entry.Key)}]
	return !ok || entry.supersedes(current)
}

// insertRemote verifies and merges an entry from a peer. It reports
// whether the entry replaced the slot's current entry.
func (r *replica) insertRemote(entry Entry) (bool, error) {
	if entry.Namespace != r.namespace {
		return false, fmt.Errorf("entry for namespace %s merged into %s", entry.Namespace.ShortString(), r.namespace.ShortString())
	}
	if err := entry.Verify(); err != nil {
		return false, err
	}
	entry.Key = slices.Clone(entry.Key)
	entry.Signature = slices.Clone(entry.Signature)
	s := slot{author: entry.Author, key: string(entry.Key)}

	r.mu.Lock()
	defer r.mu.Unlock()
	if current, ok := r.entries[s]; ok && !entry.supersedes(current) {
		return false, nil
	}
	r.entries[s] = &entry
	return true, nil
}

func (r *replica) get(author AuthorID, key []byte) (Entry, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.entries[slot{author: author, key: string(key)}]
	if !ok {
		return Entry{}, false
	}
	return *entry, true
}

// query returns the matching entries in the query's order.
func (r *replica) query(q Query) []Entry {
	r.mu.Lock()
	matched := make([]Entry, 0, len(r.entries))
	for _, entry := range r.entries {
		if q.matches(entry) {
			matched = append(matched, *entry)
		}
	}
	r.mu.Unlock()
	return q.apply(matched)
}

func (r *replica) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}
