// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package docs

import (
	"context"
	"sync/atomic"
)

// EntryIterator yields query results one at a time. It is single-use
// and not safe for concurrent use. Close releases the producer; it is
// safe to call at any point, including after exhaustion.
//
//	it, err := doc.GetMany(ctx, docs.QueryAll())
//	...
//	defer it.Close()
//	for it.Next() {
//		entry := it.Entry()
//	}
//	if err := it.Err(); err != nil { ... }
type EntryIterator struct {
	entries chan Entry
	done    chan struct{}
	cancel  context.CancelFunc
	stop    func() bool

	// err is written by the producer before entries is closed.
	err     error
	closed  atomic.Bool
	current Entry
}

// newEntryIterator streams snapshot until it is exhausted, ctx ends,
// or owner ends. owner is the handler's lifetime.
func newEntryIterator(ctx, owner context.Context, snapshot []Entry) *EntryIterator {
	ctx, cancel := context.WithCancel(ctx)
	it := &EntryIterator{
		entries: make(chan Entry),
		done:    make(chan struct{}),
		cancel:  cancel,
		stop:    context.AfterFunc(owner, cancel),
	}
	go it.produce(ctx, owner, snapshot)
	return it
}

func (it *EntryIterator) produce(ctx, owner context.Context, snapshot []Entry) {
	defer close(it.done)
	defer close(it.entries)
	defer it.stop()
	for _, entry := range snapshot {
		select {
		case it.entries <- entry:
		case <-ctx.Done():
			switch {
			case it.closed.Load():
			case owner.Err() != nil:
				it.err = ErrClosed
			default:
				it.err = ctx.Err()
			}
			return
		}
	}
}

// Next advances to the next entry and reports whether there is one.
func (it *EntryIterator) Next() bool {
	entry, ok := <-it.entries
	if !ok {
		return false
	}
	it.current = entry
	return true
}

// Entry returns the entry Next advanced to.
func (it *EntryIterator) Entry() Entry { return it.current }

// Err returns the error that ended iteration early, if any. It is
// valid once Next has returned false. Entries are never partially
// delivered: an early end leaves the document untouched.
func (it *EntryIterator) Err() error {
	<-it.done
	return it.err
}

// Close stops the producer and waits for it to exit.
func (it *EntryIterator) Close() error {
	if it.closed.Swap(true) {
		return nil
	}
	it.cancel()
	it.stop()
	<-it.done
	return nil
}

// Collect drains the iterator and closes it.
func (it *EntryIterator) Collect() ([]Entry, error) {
	defer it.Close()
	var entries []Entry
	for it.Next() {
		entries = append(entries, it.Entry())
	}
	return entries, it.Err()
}
