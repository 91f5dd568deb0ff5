// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package blobs

import (
	"context"
	"errors"
)

// ErrNotFound is returned when a blob is not in the store.
var ErrNotFound = errors.New("blob not found")

// IsNotFound reports whether err is, or wraps, ErrNotFound.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// Store is a content-addressed blob store. Implementations are safe for
// concurrent use.
type Store interface {
	// Put stores data and returns its hash. Storing equal bytes twice
	// returns the same hash and keeps one copy.
	Put(ctx context.Context, data []byte) (Hash, error)

	// Get returns the blob's bytes or ErrNotFound. The caller owns the
	// returned slice.
	Get(ctx context.Context, hash Hash) ([]byte, error)

	// Has reports whether the blob is present.
	Has(ctx context.Context, hash Hash) (bool, error)
}
