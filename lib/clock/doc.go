// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock provides an injectable time source.
//
// Document entry timestamps and retry backoff both read time through a
// Clock so tests can pin, advance, and rewind it:
//
//	c := clock.Fake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
//	docs, _ := docs.New(endpoint, store, gossip, docs.Config{Clock: c})
//	c.Set(earlier) // simulate a wall-clock regression
//
// Goroutines that wait on After register a pending timer; WaitForTimers
// blocks until a given number are registered so a test can Advance
// without racing the waiter.
package clock
