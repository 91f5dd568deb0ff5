// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package endpoint

import (
	"context"
	"errors"
)

// ErrNodeNotFound is returned by Directory.Resolve for a node that has
// no published addresses.
var ErrNodeNotFound = errors.New("node not found in directory")

// Directory is the discovery service: endpoints publish their
// addresses at startup and resolve peers by NodeID when dialing.
// Implementations live in the discovery package.
type Directory interface {
	Publish(ctx context.Context, addr NodeAddr) error
	Resolve(ctx context.Context, id NodeID) (NodeAddr, error)
	Unpublish(ctx context.Context, id NodeID) error
}
