// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package gossip

import (
	"sync"
	"time"

	"github.com/bureau-foundation/peerdocs/endpoint"
)

// neighbor is one session in a topic's active view. A dedicated writer
// drains its queue so a slow peer never blocks the topic.
type neighbor struct {
	topic   *topicState
	node    endpoint.NodeID
	addr    endpoint.NodeAddr
	session *endpoint.Session
	dialed  bool

	queue     chan frame
	done      chan struct{}
	closeOnce sync.Once
}

func newNeighbor(topic *topicState, session *endpoint.Session, addr endpoint.NodeAddr, dialed bool) *neighbor {
	return &neighbor{
		topic:   topic,
		node:    session.RemoteNode(),
		addr:    addr,
		session: session,
		dialed:  dialed,
		queue:   make(chan frame, topic.gossip.config.QueueSize),
		done:    make(chan struct{}),
	}
}

// enqueue queues f without blocking. A full queue drops the frame.
func (n *neighbor) enqueue(f frame) bool {
	select {
	case <-n.done:
		return false
	default:
	}
	select {
	case n.queue <- f:
		return true
	default:
		n.topic.logger.Debug("neighbor queue full, dropping frame", "peer", n.node.ShortString())
		return false
	}
}

func (n *neighbor) writeLoop() {
	for {
		select {
		case <-n.done:
			return
		case f := <-n.queue:
			if err := n.session.Send(f); err != nil {
				n.close()
				return
			}
		}
	}
}

// readLoop handles inbound frames until the session ends. It reports
// whether the peer left deliberately.
func (n *neighbor) readLoop() (left bool) {
	for {
		var f frame
		if err := n.session.Receive(&f); err != nil {
			return false
		}
		switch f.Kind {
		case frameMessage:
			n.topic.receive(n, f.Message)
		case frameNeighbors:
			n.topic.learn(f.Peers)
		case frameLeave:
			return true
		default:
			n.topic.logger.Debug("ignoring frame", "kind", f.Kind, "peer", n.node.ShortString())
		}
	}
}

// leave tells the peer this node is leaving the topic, then closes.
func (n *neighbor) leave() {
	n.session.SetDeadline(time.Now().Add(leaveTimeout))
	n.session.Send(frame{Kind: frameLeave})
	n.close()
}

func (n *neighbor) close() {
	n.closeOnce.Do(func() {
		close(n.done)
		n.session.Close()
	})
}
