// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package testutil provides shared test helpers for peerdocs packages.
//
// [RequireReceive] and [RequireClosed] wrap the select-with-timeout
// pattern so individual tests never call time.After directly.
// [Eventually] polls a condition for state that converges
// asynchronously, such as entries replicated between two nodes.
//
// All helpers call t.Fatalf on failure. This package has no peerdocs
// dependencies.
package testutil
