// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"context"
	"sync"
)

var _ Signaler = (*MemorySignaler)(nil)

// MemorySignaler is an in-process Signaler. WebRTC transports sharing
// one MemorySignaler can connect without any network signaling.
type MemorySignaler struct {
	mu       sync.Mutex
	revision int64
	offers   map[string]SignalMessage // key: SignalKey(offerer, target)
	answers  map[string]SignalMessage // key: SignalKey(offerer, target)
	lastSeen map[string]int64         // key: store + poller + pair
}

// NewMemorySignaler creates an empty signaler.
func NewMemorySignaler() *MemorySignaler {
	return &MemorySignaler{
		offers:   make(map[string]SignalMessage),
		answers:  make(map[string]SignalMessage),
		lastSeen: make(map[string]int64),
	}
}

func (s *MemorySignaler) PublishOffer(_ context.Context, name, target, sdp string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.revision++
	s.offers[SignalKey(name, target)] = SignalMessage{Peer: name, SDP: sdp, Revision: s.revision}
	return nil
}

func (s *MemorySignaler) PublishAnswer(_ context.Context, offerer, name, sdp string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.revision++
	s.answers[SignalKey(offerer, name)] = SignalMessage{Peer: name, SDP: sdp, Revision: s.revision}
	return nil
}

func (s *MemorySignaler) PollOffers(_ context.Context, name string) ([]SignalMessage, error) {
	return s.poll("offers", name, s.offers, func(_, target string) bool { return target == name }), nil
}

func (s *MemorySignaler) PollAnswers(_ context.Context, name string) ([]SignalMessage, error) {
	return s.poll("answers", name, s.answers, func(offerer, _ string) bool { return offerer == name }), nil
}

func (s *MemorySignaler) poll(label, name string, store map[string]SignalMessage, match func(offerer, target string) bool) []SignalMessage {
	s.mu.Lock()
	defer s.mu.Unlock()

	var messages []SignalMessage
	for key, message := range store {
		offerer, target, ok := SplitSignalKey(key)
		if !ok || !match(offerer, target) {
			continue
		}
		seenKey := label + ":" + name + ":" + key
		if message.Revision <= s.lastSeen[seenKey] {
			continue
		}
		s.lastSeen[seenKey] = message.Revision
		messages = append(messages, message)
	}
	return messages
}
