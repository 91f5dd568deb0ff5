// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package gossip

// seenCache remembers the most recent message IDs. The oldest ID is
// evicted when capacity is reached. Not safe for concurrent use.
type seenCache struct {
	ids   map[MessageID]struct{}
	order []MessageID
	next  int
}

func newSeenCache(capacity int) *seenCache {
	return &seenCache{
		ids:   make(map[MessageID]struct{}, capacity),
		order: make([]MessageID, 0, capacity),
	}
}

// add records id and reports whether it was new.
func (c *seenCache) add(id MessageID) bool {
	if _, seen := c.ids[id]; seen {
		return false
	}
	if len(c.order) < cap(c.order) {
		c.order = append(c.order, id)
	} else {
		delete(c.ids, c.order[c.next])
		c.order[c.next] = id
		c.next = (c.next + 1) % len(c.order)
	}
	c.ids[id] = struct{}{}
	return true
}
