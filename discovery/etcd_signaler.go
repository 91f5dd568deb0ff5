// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package discovery

import (
	"context"
	"fmt"
	"path"
	"strings"
	"sync"
	"time"

	clientv3 "go.etcd.io/etcd/client/v3"

	"github.com/bureau-foundation/peerdocs/transport"
)

var _ transport.Signaler = (*EtcdSignaler)(nil)

// signalTTL bounds how long an unanswered offer or unread answer
// lingers in etcd.
const signalTTL = 2 * time.Minute

// EtcdSignaler is a transport.Signaler backed by etcd. Offers live at
// <prefix>/signal/offers/<target>/<offerer> and answers at
// <prefix>/signal/answers/<offerer>/<answerer>, so each poll is one
// prefix read. A key's ModRevision serves as the message revision.
type EtcdSignaler struct {
	client *clientv3.Client
	prefix string

	mu       sync.Mutex
	lastSeen map[string]int64
}

// NewEtcdSignaler stores signaling keys under prefix. The caller owns
// client.
func NewEtcdSignaler(client *clientv3.Client, prefix string) *EtcdSignaler {
	return &EtcdSignaler{client: client, prefix: prefix, lastSeen: make(map[string]int64)}
}

func (s *EtcdSignaler) offerKey(target, offerer string) string {
	return path.Join(s.prefix, "signal", "offers", target, offerer)
}

func (s *EtcdSignaler) answerKey(offerer, answerer string) string {
	return path.Join(s.prefix, "signal", "answers", offerer, answerer)
}

func (s *EtcdSignaler) PublishOffer(ctx context.Context, name, target, sdp string) error {
	return s.put(ctx, s.offerKey(target, name), sdp)
}

func (s *EtcdSignaler) PublishAnswer(ctx context.Context, offerer, name, sdp string) error {
	return s.put(ctx, s.answerKey(offerer, name), sdp)
}

func (s *EtcdSignaler) put(ctx context.Context, key, sdp string) error {
	lease, err := s.client.Grant(ctx, int64(signalTTL/time.Second))
	if err != nil {
		return fmt.Errorf("granting signal lease: %w", err)
	}
	if _, err := s.client.Put(ctx, key, sdp, clientv3.WithLease(lease.ID)); err != nil {
		return fmt.Errorf("writing %s: %w", key, err)
	}
	return nil
}

func (s *EtcdSignaler) PollOffers(ctx context.Context, name string) ([]transport.SignalMessage, error) {
	return s.poll(ctx, path.Join(s.prefix, "signal", "offers", name)+"/")
}

func (s *EtcdSignaler) PollAnswers(ctx context.Context, name string) ([]transport.SignalMessage, error) {
	return s.poll(ctx, path.Join(s.prefix, "signal", "answers", name)+"/")
}

func (s *EtcdSignaler) poll(ctx context.Context, prefix string) ([]transport.SignalMessage, error) {
	response, err := s.client.Get(ctx, prefix, clientv3.WithPrefix())
	if err != nil {
		return nil, fmt.Errorf("polling %s: %w", prefix, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	var messages []transport.SignalMessage
	for _, kv := range response.Kvs {
		key := string(kv.Key)
		if kv.ModRevision <= s.lastSeen[key] {
			continue
		}
		s.lastSeen[key] = kv.ModRevision
		messages = append(messages, transport.SignalMessage{
			Peer:     strings.TrimPrefix(key, prefix),
			SDP:      string(kv.Value),
			Revision: kv.ModRevision,
		})
	}
	return messages, nil
}
