// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package blobs_test

import (
	"path/filepath"
	"testing"

	"github.com/bureau-foundation/peerdocs/blobs"
	"github.com/bureau-foundation/peerdocs/blobs/blobstest"
)

func TestMemStoreConformance(t *testing.T) {
	blobstest.RunStoreConformance(t, func(t *testing.T) blobs.Store {
		return blobs.NewMemStore()
	})
}

func TestSQLiteStoreConformance(t *testing.T) {
	blobstest.RunStoreConformance(t, func(t *testing.T) blobs.Store {
		store, err := blobs.OpenSQLite(filepath.Join(t.TempDir(), "blobs.db"), nil)
		if err != nil {
			t.Fatalf("OpenSQLite: %v", err)
		}
		t.Cleanup(func() { store.Close() })
		return store
	})
}

func TestMemStoreAccounting(t *testing.T) {
	store := blobs.NewMemStore()
	ctx := t.Context()
	store.Put(ctx, []byte("abc"))
	store.Put(ctx, []byte("abc"))
	store.Put(ctx, []byte("de"))
	if store.Len() != 2 || store.Size() != 5 {
		t.Fatalf("Len, Size = %d, %d, want 2, 5", store.Len(), store.Size())
	}
}

func TestSQLiteStorePersists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "blobs.db")
	ctx := t.Context()

	store, err := blobs.OpenSQLite(path, nil)
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	hash, err := store.Put(ctx, []byte("durable"))
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	store.Close()

	reopened, err := blobs.OpenSQLite(path, nil)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()
	got, err := reopened.Get(ctx, hash)
	if err != nil || string(got) != "durable" {
		t.Fatalf("Get after reopen = %q, %v", got, err)
	}
	if count, err := reopened.Len(ctx); err != nil || count != 1 {
		t.Fatalf("Len = %d, %v, want 1", count, err)
	}
}
