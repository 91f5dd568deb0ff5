// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package gossip

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/bureau-foundation/peerdocs/endpoint"
)

// joinTimeout bounds dialing a neighbor and exchanging Join.
const joinTimeout = 10 * time.Second

// errJoinRefused means the peer answered Join without accepting it.
var errJoinRefused = errors.New("join refused")

type EventKind uint8

const (
	// EventReceived carries a message broadcast by another node.
	EventReceived EventKind = iota + 1
	// EventNeighborUp reports a new direct neighbor.
	EventNeighborUp
	// EventNeighborDown reports a lost direct neighbor.
	EventNeighborDown
)

func (k EventKind) String() string {
	switch k {
	case EventReceived:
		return "received"
	case EventNeighborUp:
		return "neighbor-up"
	case EventNeighborDown:
		return "neighbor-down"
	default:
		return fmt.Sprintf("unknown(%d)", k)
	}
}

// Event is delivered on Topic.Events.
type Event struct {
	Kind EventKind

	// Content, Origin, and DeliveredFrom are set for EventReceived.
	Content       []byte
	Origin        endpoint.NodeID
	DeliveredFrom endpoint.NodeID

	// Node is set for EventNeighborUp and EventNeighborDown.
	Node endpoint.NodeID
}

// Topic is one subscriber's handle on a topic.
type Topic struct {
	state  *topicState
	events chan Event
	closed bool // guarded by state.mu
}

// ID returns the topic.
func (t *Topic) ID() TopicID { return t.state.id }

// Events delivers messages and neighbor changes. It is closed when the
// handle closes. Events are dropped when the buffer is full.
func (t *Topic) Events() <-chan Event { return t.events }

// Broadcast floods content to the topic. It returns once the message is
// queued for every current neighbor; local handles do not receive it.
func (t *Topic) Broadcast(ctx context.Context, content []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return t.state.broadcast(t, content)
}

// Neighbors lists the current direct neighbors.
func (t *Topic) Neighbors() []endpoint.NodeID {
	return t.state.neighborIDs()
}

// Close releases the handle. Closing the last handle leaves the topic.
func (t *Topic) Close() error {
	t.state.removeHandle(t)
	return nil
}

// topicState is the overlay for one topic, shared by its handles.
type topicState struct {
	gossip *Gossip
	id     TopicID
	logger *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu        sync.Mutex
	handles   map[*Topic]struct{}
	neighbors map[endpoint.NodeID]*neighbor
	pending   map[endpoint.NodeID]struct{}
	seen      *seenCache
	sequence  uint64
	closed    bool
}

func newTopicState(g *Gossip, id TopicID) *topicState {
	ctx, cancel := context.WithCancel(g.ctx)
	return &topicState{
		gossip:    g,
		id:        id,
		logger:    g.logger.With("topic", id.ShortString()),
		ctx:       ctx,
		cancel:    cancel,
		handles:   make(map[*Topic]struct{}),
		neighbors: make(map[endpoint.NodeID]*neighbor),
		pending:   make(map[endpoint.NodeID]struct{}),
		seen:      newSeenCache(g.config.SeenCacheSize),
	}
}

func (s *topicState) self() endpoint.NodeID { return s.gossip.endpoint.NodeID() }

// addHandle returns nil once the topic has closed.
func (s *topicState) addHandle() *Topic {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	handle := &Topic{state: s, events: make(chan Event, s.gossip.config.EventBuffer)}
	s.handles[handle] = struct{}{}
	for node := range s.neighbors {
		select {
		case handle.events <- Event{Kind: EventNeighborUp, Node: node}:
		default:
		}
	}
	return handle
}

func (s *topicState) removeHandle(handle *Topic) {
	s.mu.Lock()
	if handle.closed {
		s.mu.Unlock()
		return
	}
	handle.closed = true
	delete(s.handles, handle)
	close(handle.events)
	if len(s.handles) > 0 {
		s.mu.Unlock()
		return
	}
	neighbors := s.closeLocked()
	s.mu.Unlock()

	s.gossip.forget(s)
	s.leaveAll(neighbors)
}

// shutdown closes remaining handles and leaves every neighbor.
func (s *topicState) shutdown() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	neighbors := s.closeLocked()
	s.mu.Unlock()

	s.leaveAll(neighbors)
}

// closeLocked marks the topic closed, closes every handle, and empties
// the active view, returning it. s.mu must be held.
func (s *topicState) closeLocked() []*neighbor {
	s.closed = true
	for handle := range s.handles {
		handle.closed = true
		close(handle.events)
	}
	s.handles = make(map[*Topic]struct{})
	neighbors := make([]*neighbor, 0, len(s.neighbors))
	for _, n := range s.neighbors {
		neighbors = append(neighbors, n)
	}
	s.neighbors = make(map[endpoint.NodeID]*neighbor)
	return neighbors
}

func (s *topicState) leaveAll(neighbors []*neighbor) {
	s.cancel()
	for _, n := range neighbors {
		n.leave()
	}
	s.logger.Debug("left topic", "neighbors", len(neighbors))
}

// emitLocked fans event out to every handle. s.mu must be held.
func (s *topicState) emitLocked(event Event) {
	for handle := range s.handles {
		select {
		case handle.events <- event:
		default:
			s.logger.Debug("event buffer full, dropping event", "kind", event.Kind.String())
		}
	}
}

func (s *topicState) neighborIDs() []endpoint.NodeID {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]endpoint.NodeID, 0, len(s.neighbors))
	for id := range s.neighbors {
		ids = append(ids, id)
	}
	slices.SortFunc(ids, endpoint.NodeID.Compare)
	return ids
}

// neighborAddrsLocked returns the addresses of every neighbor except
// skip. s.mu must be held.
func (s *topicState) neighborAddrsLocked(skip endpoint.NodeID) []endpoint.NodeAddr {
	var addrs []endpoint.NodeAddr
	for id, n := range s.neighbors {
		if id != skip && len(n.addr.Addresses) > 0 {
			addrs = append(addrs, n.addr)
		}
	}
	return addrs
}

func (s *topicState) broadcast(handle *Topic, content []byte) error {
	s.mu.Lock()
	if s.closed || handle.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	s.sequence++
	origin := s.self()
	m := &message{
		ID:       messageID(origin, s.sequence, content),
		Origin:   origin,
		Sequence: s.sequence,
		Content:  append([]byte(nil), content...),
	}
	s.seen.add(m.ID)
	targets := make([]*neighbor, 0, len(s.neighbors))
	for _, n := range s.neighbors {
		targets = append(targets, n)
	}
	s.mu.Unlock()

	for _, n := range targets {
		n.enqueue(frame{Kind: frameMessage, Message: m})
	}
	return nil
}

// receive delivers a message from a neighbor and forwards it.
func (s *topicState) receive(from *neighbor, m *message) {
	if m == nil || m.ID != messageID(m.Origin, m.Sequence, m.Content) {
		s.logger.Debug("dropping malformed message", "peer", from.node.ShortString())
		return
	}

	s.mu.Lock()
	if s.closed || m.Origin == s.self() || !s.seen.add(m.ID) {
		s.mu.Unlock()
		return
	}
	s.emitLocked(Event{
		Kind:          EventReceived,
		Content:       m.Content,
		Origin:        m.Origin,
		DeliveredFrom: from.node,
	})
	targets := make([]*neighbor, 0, len(s.neighbors))
	for id, n := range s.neighbors {
		if id != from.node && id != m.Origin {
			targets = append(targets, n)
		}
	}
	s.mu.Unlock()

	for _, n := range targets {
		n.enqueue(frame{Kind: frameMessage, Message: m})
	}
}

// learn records advertised peers and dials them while there is room.
func (s *topicState) learn(peers []endpoint.NodeAddr) {
	for _, addr := range peers {
		if addr.ID == s.self() || addr.ID.IsZero() {
			continue
		}
		s.gossip.endpoint.AddNodeAddr(addr)
		s.dial(addr.ID)
	}
}

// join dials the bootstrap peers.
func (s *topicState) join(bootstrap []endpoint.NodeID) {
	for _, peer := range bootstrap {
		if peer != s.self() && !peer.IsZero() {
			s.dial(peer)
		}
	}
}

func (s *topicState) dial(peer endpoint.NodeID) {
	s.mu.Lock()
	_, connected := s.neighbors[peer]
	_, dialing := s.pending[peer]
	skip := s.closed || connected || dialing
	s.mu.Unlock()
	if !skip {
		go s.dialWithRetry(peer)
	}
}

// beginDial claims the right to dial peer. It fails when the topic is
// closed, the peer is already a neighbor or being dialed, or the view
// is full.
func (s *topicState) beginDial(peer endpoint.NodeID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	if _, connected := s.neighbors[peer]; connected {
		return false
	}
	if _, dialing := s.pending[peer]; dialing {
		return false
	}
	if len(s.neighbors)+len(s.pending) >= s.gossip.config.MaxNeighbors {
		return false
	}
	s.pending[peer] = struct{}{}
	return true
}

func (s *topicState) endDial(peer endpoint.NodeID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.pending, peer)
}

// dialWithRetry connects to peer, backing off between transient
// failures.
func (s *topicState) dialWithRetry(peer endpoint.NodeID) {
	delay := redialInitial
	for attempt := 1; attempt <= redialAttempts; attempt++ {
		if !s.beginDial(peer) {
			return
		}
		err := s.connectNeighbor(peer)
		s.endDial(peer)
		if err == nil {
			return
		}
		if !endpoint.IsTransient(err) {
			s.logger.Debug("not retrying neighbor", "peer", peer.ShortString(), "error", err)
			return
		}
		s.logger.Debug("neighbor dial failed", "peer", peer.ShortString(), "attempt", attempt, "retry_in", delay, "error", err)
		select {
		case <-s.ctx.Done():
			return
		case <-s.gossip.config.Clock.After(delay):
		}
		delay = min(delay*2, redialMax)
	}
	s.logger.Info("giving up on neighbor", "peer", peer.ShortString(), "attempts", redialAttempts)
}

// connectNeighbor dials peer, joins the topic, and starts the neighbor.
func (s *topicState) connectNeighbor(peer endpoint.NodeID) error {
	ctx, cancel := context.WithTimeout(s.ctx, joinTimeout)
	defer cancel()

	session, err := s.gossip.endpoint.Connect(ctx, peer, ALPN)
	if err != nil {
		return err
	}
	session.SetDeadline(time.Now().Add(joinTimeout))
	if err := session.Send(frame{Kind: frameJoin, Topic: s.id, Addr: s.gossip.endpoint.Addr()}); err != nil {
		session.Close()
		return endpoint.NewPeerError(peer, "sending join", err, true)
	}
	var reply frame
	if err := session.Receive(&reply); err != nil {
		session.Close()
		return endpoint.NewPeerError(peer, "reading join reply", err, true)
	}
	session.SetDeadline(time.Time{})

	if reply.Kind != frameNeighbors {
		session.Close()
		return endpoint.NewPeerError(peer, "joining", fmt.Errorf("unexpected frame kind %d", reply.Kind), false)
	}
	s.learn(reply.Peers)
	if !reply.Accepted {
		session.Close()
		return endpoint.NewPeerError(peer, "joining", errJoinRefused, false)
	}

	n := s.addNeighbor(session, s.gossip.endpoint.KnownAddr(peer), true)
	if n != nil {
		go s.runNeighbor(n)
	}
	return nil
}

// runAccepted answers an inbound Join and runs the neighbor on the
// calling goroutine.
func (s *topicState) runAccepted(session *endpoint.Session, addr endpoint.NodeAddr) {
	remote := session.RemoteNode()

	s.mu.Lock()
	_, replacing := s.neighbors[remote]
	full := len(s.neighbors) >= s.gossip.config.MaxNeighbors && !replacing
	reply := frame{
		Kind:     frameNeighbors,
		Accepted: !s.closed && !full,
		Peers:    s.neighborAddrsLocked(remote),
	}
	s.mu.Unlock()

	if err := session.Send(reply); err != nil || !reply.Accepted {
		session.Close()
		return
	}
	if addr.ID != remote {
		addr = endpoint.NodeAddr{ID: remote}
	}
	if n := s.addNeighbor(session, addr, false); n != nil {
		s.runNeighbor(n)
	}
}

// addNeighbor installs a session as the neighbor for its peer. If a
// session to that peer already exists, the one opened by the smaller
// node ID survives; the other is closed. Returns nil when the new
// session lost.
func (s *topicState) addNeighbor(session *endpoint.Session, addr endpoint.NodeAddr, dialed bool) *neighbor {
	remote := session.RemoteNode()
	self := s.self()

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		session.Close()
		return nil
	}
	existing := s.neighbors[remote]
	if existing != nil && keepExisting(self, remote, existing.dialed, dialed) {
		s.mu.Unlock()
		session.Close()
		return nil
	}
	n := newNeighbor(s, session, addr, dialed)
	s.neighbors[remote] = n
	if existing == nil {
		s.emitLocked(Event{Kind: EventNeighborUp, Node: remote})
	}
	s.mu.Unlock()

	if existing != nil {
		existing.close()
	}
	go n.writeLoop()
	s.logger.Debug("neighbor up", "peer", remote.ShortString(), "dialed", dialed)
	return n
}

// keepExisting decides between two sessions to the same peer.
func keepExisting(self, remote endpoint.NodeID, existingDialed, newDialed bool) bool {
	dialer := func(dialed bool) endpoint.NodeID {
		if dialed {
			return self
		}
		return remote
	}
	existingDialer, newDialer := dialer(existingDialed), dialer(newDialed)
	if existingDialer == newDialer {
		return false
	}
	return existingDialer.Compare(newDialer) < 0
}

// runNeighbor reads frames until the session ends, then removes the
// neighbor and, for sessions this node opened, schedules a redial.
func (s *topicState) runNeighbor(n *neighbor) {
	left := n.readLoop()

	s.mu.Lock()
	removed := s.neighbors[n.node] == n
	if removed {
		delete(s.neighbors, n.node)
		s.emitLocked(Event{Kind: EventNeighborDown, Node: n.node})
	}
	closed := s.closed
	s.mu.Unlock()

	n.close()
	if removed {
		s.logger.Debug("neighbor down", "peer", n.node.ShortString(), "left", left)
	}
	if removed && !closed && !left && n.dialed {
		go s.dialWithRetry(n.node)
	}
}
