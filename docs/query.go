// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package docs

import (
	"bytes"
	"slices"
)

type keyMatch uint8

const (
	keyAny keyMatch = iota
	keyExact
	keyPrefix
)

// Query selects latest entries from a document. The zero Query is
// QueryAll. Results are ordered by author then key unless
// SortByKeyAuthor is applied.
type Query struct {
	author   *AuthorID
	key      []byte
	keyMatch keyMatch
	offset   int
	limit    int
	keyFirst bool
}

// QueryAll matches the latest entry of every (author, key) slot.
func QueryAll() Query { return Query{} }

// QueryAuthor matches entries written by author.
func QueryAuthor(author AuthorID) Query { return Query{}.WithAuthor(author) }

// QueryKeyExact matches entries whose key equals key.
func QueryKeyExact(key []byte) Query {
	return Query{key: slices.Clone(key), keyMatch: keyExact}
}

// QueryKeyPrefix matches entries whose key starts with prefix.
func QueryKeyPrefix(prefix []byte) Query {
	return Query{key: slices.Clone(prefix), keyMatch: keyPrefix}
}

// WithAuthor narrows the query to entries written by author.
func (q Query) WithAuthor(author AuthorID) Query {
	q.author = &author
	return q
}

// WithLimit caps the number of results. Zero means no limit.
func (q Query) WithLimit(limit int) Query {
	q.limit = max(limit, 0)
	return q
}

// WithOffset skips the first offset results, after sorting and
// before the limit applies.
func (q Query) WithOffset(offset int) Query {
	q.offset = max(offset, 0)
	return q
}

// SortByKeyAuthor orders results by key, then author.
func (q Query) SortByKeyAuthor() Query {
	q.keyFirst = true
	return q
}

func (q Query) matches(entry *Entry) bool {
	if q.author != nil && *q.author != entry.Author {
		return false
	}
	switch q.keyMatch {
	case keyExact:
		return bytes.Equal(entry.Key, q.key)
	case keyPrefix:
		return bytes.HasPrefix(entry.Key, q.key)
	}
	return true
}

// apply sorts entries and cuts the requested window. entries must
// already be filtered by matches.
func (q Query) apply(entries []Entry) []Entry {
	slices.SortFunc(entries, func(a, b Entry) int {
		if q.keyFirst {
			if c := bytes.Compare(a.Key, b.Key); c != 0 {
				return c
			}
			return a.Author.Compare(b.Author)
		}
		if c := a.Author.Compare(b.Author); c != 0 {
			return c
		}
		return bytes.Compare(a.Key, b.Key)
	})
	if q.offset >= len(entries) {
		return nil
	}
	entries = entries[q.offset:]
	if q.limit > 0 && q.limit < len(entries) {
		entries = entries[:q.limit]
	}
	return entries
}
