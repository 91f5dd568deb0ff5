// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package blobstest holds the behavior every blobs.Store must share.
package blobstest

import (
	"bytes"
	"context"
	"sync"
	"testing"

	"github.com/bureau-foundation/peerdocs/blobs"
)

// NewStore constructs a fresh, empty store isolated from other tests.
type NewStore func(t *testing.T) blobs.Store

// RunStoreConformance runs the shared suite against newStore.
func RunStoreConformance(t *testing.T, newStore NewStore) {
	t.Helper()
	ctx := context.Background()

	t.Run("PutGetRoundTrip", func(t *testing.T) {
		store := newStore(t)
		want := []byte("hello, blob store")

		hash, err := store.Put(ctx, want)
		if err != nil {
			t.Fatalf("Put: %v", err)
		}
		if hash != blobs.Sum(want) {
			t.Fatalf("Put hash = %s, want %s", hash, blobs.Sum(want))
		}
		got, err := store.Get(ctx, hash)
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		if !bytes.Equal(got, want) {
			t.Fatalf("Get = %q, want %q", got, want)
		}
	})

	t.Run("PutIdempotent", func(t *testing.T) {
		store := newStore(t)
		first, err := store.Put(ctx, []byte("same bytes"))
		if err != nil {
			t.Fatalf("Put(1): %v", err)
		}
		second, err := store.Put(ctx, []byte("same bytes"))
		if err != nil {
			t.Fatalf("Put(2): %v", err)
		}
		if first != second {
			t.Fatalf("Put not idempotent: %s vs %s", first, second)
		}
		other, err := store.Put(ctx, []byte("other bytes"))
		if err != nil {
			t.Fatalf("Put(3): %v", err)
		}
		if other == first {
			t.Fatal("distinct content produced the same hash")
		}
	})

	t.Run("HasAndNotFound", func(t *testing.T) {
		store := newStore(t)
		content := []byte("missing")
		hash := blobs.Sum(content)

		present, err := store.Has(ctx, hash)
		if err != nil || present {
			t.Fatalf("Has before Put = %v, %v", present, err)
		}
		if _, err := store.Get(ctx, hash); !blobs.IsNotFound(err) {
			t.Fatalf("Get missing = %v, want ErrNotFound", err)
		}
		if _, err := store.Put(ctx, content); err != nil {
			t.Fatalf("Put: %v", err)
		}
		if present, err := store.Has(ctx, hash); err != nil || !present {
			t.Fatalf("Has after Put = %v, %v", present, err)
		}
	})

	t.Run("EmptyBlob", func(t *testing.T) {
		store := newStore(t)
		hash, err := store.Put(ctx, nil)
		if err != nil {
			t.Fatalf("Put(nil): %v", err)
		}
		got, err := store.Get(ctx, hash)
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		if len(got) != 0 {
			t.Fatalf("Get = %q, want empty", got)
		}
	})

	t.Run("CallerOwnsBuffers", func(t *testing.T) {
		store := newStore(t)
		input := []byte("mutable")
		hash, err := store.Put(ctx, input)
		if err != nil {
			t.Fatalf("Put: %v", err)
		}
		input[0] = 'X'

		got, err := store.Get(ctx, hash)
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		got[1] = 'Y'
		again, err := store.Get(ctx, hash)
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		if string(again) != "mutable" {
			t.Fatalf("stored content changed to %q", again)
		}
	})

	t.Run("ConcurrentPuts", func(t *testing.T) {
		store := newStore(t)
		var wg sync.WaitGroup
		hashes := make([]blobs.Hash, 16)
		for index := range hashes {
			wg.Add(1)
			go func() {
				defer wg.Done()
				hash, err := store.Put(ctx, []byte("contended"))
				if err != nil {
					t.Errorf("Put: %v", err)
				}
				hashes[index] = hash
			}()
		}
		wg.Wait()
		for _, hash := range hashes {
			if hash != hashes[0] {
				t.Fatalf("concurrent puts disagree: %s vs %s", hash, hashes[0])
			}
		}
	})
}
