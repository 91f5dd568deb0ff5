// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package gossip

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/zeebo/blake3"

	"github.com/bureau-foundation/peerdocs/endpoint"
	"github.com/bureau-foundation/peerdocs/lib/clock"
)

// ALPN is the protocol tag gossip sessions are opened with.
const ALPN = "/iroh-gossip/0"

const (
	DefaultMaxNeighbors  = 8
	DefaultQueueSize     = 256
	DefaultSeenCacheSize = 4096
	DefaultEventBuffer   = 256

	// redialAttempts bounds reconnection to a lost neighbor.
	redialAttempts = 8
	redialInitial  = 250 * time.Millisecond
	redialMax      = 10 * time.Second

	// leaveTimeout bounds the Leave frame sent when a topic closes.
	leaveTimeout = time.Second
)

// ErrClosed is returned by operations on a closed Gossip or Topic.
var ErrClosed = errors.New("gossip closed")

// TopicID names a topic overlay.
type TopicID [32]byte

// TopicFromName derives a topic ID from a human-readable name.
func TopicFromName(name string) TopicID {
	return TopicID(blake3.Sum256([]byte(name)))
}

func (id TopicID) String() string {
	return hex.EncodeToString(id[:])
}

func (id TopicID) ShortString() string {
	return id.String()[:10]
}

// Config tunes a Gossip. Zero values take the defaults.
type Config struct {
	MaxNeighbors  int
	QueueSize     int
	SeenCacheSize int
	EventBuffer   int
	Clock         clock.Clock
	Logger        *slog.Logger
}

// Gossip is the gossip protocol handler for one endpoint.
type Gossip struct {
	endpoint *endpoint.Endpoint
	config   Config
	logger   *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	topics map[TopicID]*topicState
	closed bool
}

// New creates the handler. Register it with the router under ALPN.
func New(ep *endpoint.Endpoint, config Config) *Gossip {
	if config.MaxNeighbors <= 0 {
		config.MaxNeighbors = DefaultMaxNeighbors
	}
	if config.QueueSize <= 0 {
		config.QueueSize = DefaultQueueSize
	}
	if config.SeenCacheSize <= 0 {
		config.SeenCacheSize = DefaultSeenCacheSize
	}
	if config.EventBuffer <= 0 {
		config.EventBuffer = DefaultEventBuffer
	}
	if config.Clock == nil {
		config.Clock = clock.Real()
	}
	if config.Logger == nil {
		config.Logger = ep.Logger()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Gossip{
		endpoint: ep,
		config:   config,
		logger:   config.Logger.With("protocol", "gossip"),
		ctx:      ctx,
		cancel:   cancel,
		topics:   make(map[TopicID]*topicState),
	}
}

// Subscribe joins topic and returns a new handle on it. Bootstrap
// peers are dialed in the background; watch Events for NeighborUp.
// Subscribing to a topic that already has handles shares its overlay.
func (g *Gossip) Subscribe(ctx context.Context, topic TopicID, bootstrap []endpoint.NodeID) (*Topic, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		return nil, ErrClosed
	}
	state, ok := g.topics[topic]
	var handle *Topic
	if ok {
		handle = state.addHandle()
	}
	if handle == nil {
		// A topic whose last handle is closing is replaced.
		state = newTopicState(g, topic)
		g.topics[topic] = state
		handle = state.addHandle()
	}
	g.mu.Unlock()

	state.join(bootstrap)
	return handle, nil
}

// Topics lists topics with at least one open handle.
func (g *Gossip) Topics() []TopicID {
	g.mu.Lock()
	defer g.mu.Unlock()
	topics := make([]TopicID, 0, len(g.topics))
	for id := range g.topics {
		topics = append(topics, id)
	}
	return topics
}

func (g *Gossip) lookup(topic TopicID) *topicState {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.topics[topic]
}

// forget drops a topic whose last handle closed.
func (g *Gossip) forget(state *topicState) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.topics[state.id] == state {
		delete(g.topics, state.id)
	}
}

// Accept serves an inbound gossip session: it reads Join, then runs the
// neighbor until either side leaves.
func (g *Gossip) Accept(ctx context.Context, session *endpoint.Session) error {
	session.SetReadDeadline(time.Now().Add(joinTimeout))
	var join frame
	if err := session.Receive(&join); err != nil {
		session.Close()
		return fmt.Errorf("reading join: %w", err)
	}
	session.SetReadDeadline(time.Time{})
	if join.Kind != frameJoin {
		session.Close()
		return fmt.Errorf("expected join, got frame kind %d", join.Kind)
	}
	if join.Addr.ID == session.RemoteNode() {
		g.endpoint.AddNodeAddr(join.Addr)
	}

	state := g.lookup(join.Topic)
	if state == nil {
		session.Send(frame{Kind: frameNeighbors})
		session.Close()
		g.logger.Debug("join for unsubscribed topic", "topic", join.Topic.ShortString(), "peer", session.RemoteNode().ShortString())
		return nil
	}
	state.runAccepted(session, join.Addr)
	return nil
}

// Shutdown leaves every topic and closes every handle.
func (g *Gossip) Shutdown(context.Context) error {
	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		return nil
	}
	g.closed = true
	topics := make([]*topicState, 0, len(g.topics))
	for _, state := range g.topics {
		topics = append(topics, state)
	}
	g.topics = make(map[TopicID]*topicState)
	g.mu.Unlock()

	for _, state := range topics {
		state.shutdown()
	}
	g.cancel()
	return nil
}
