// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import "context"

// Signaler exchanges complete SDP descriptions between nodes. Nodes are
// named by an opaque string (the endpoint uses the hex node ID).
//
// Offers are keyed by (offerer, target) and answers by the same pair,
// so each direction of a node pair has at most one live offer and one
// live answer. Republishing replaces the previous value.
type Signaler interface {
	// PublishOffer stores an offer from name to target.
	PublishOffer(ctx context.Context, name, target, sdp string) error

	// PublishAnswer stores name's answer to offerer's offer.
	PublishAnswer(ctx context.Context, offerer, name, sdp string) error

	// PollOffers returns offers addressed to name that this caller has
	// not seen yet.
	PollOffers(ctx context.Context, name string) ([]SignalMessage, error)

	// PollAnswers returns answers to offers made by name that this
	// caller has not seen yet.
	PollAnswers(ctx context.Context, name string) ([]SignalMessage, error)
}

// SignalMessage is one offer or answer.
type SignalMessage struct {
	// Peer is the other party: the offerer for offers, the answerer
	// for answers.
	Peer string

	// SDP is the session description with all ICE candidates embedded.
	SDP string

	// Revision increases every time the pair's value is republished.
	// Pollers use it to skip values they have already processed.
	Revision int64
}

// signalingSeparator joins offerer and target in signal keys. Node
// names are hex, so the separator never appears inside one.
const signalingSeparator = "|"

// SignalKey returns the key for the (offerer, target) pair.
func SignalKey(offerer, target string) string {
	return offerer + signalingSeparator + target
}

// SplitSignalKey reverses SignalKey.
func SplitSignalKey(key string) (offerer, target string, ok bool) {
	for index := 0; index < len(key); index++ {
		if key[index] == signalingSeparator[0] {
			return key[:index], key[index+1:], true
		}
	}
	return "", "", false
}
