// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package gossip

import (
	"encoding/binary"

	"github.com/zeebo/blake3"

	"github.com/bureau-foundation/peerdocs/endpoint"
)

type frameKind uint8

const (
	frameJoin      frameKind = 1
	frameNeighbors frameKind = 2
	frameMessage   frameKind = 3
	frameLeave     frameKind = 4
)

// frame is the single envelope on a gossip session. Kind selects which
// of the remaining fields are meaningful.
type frame struct {
	Kind frameKind `cbor:"1,keyasint"`

	// Join
	Topic TopicID           `cbor:"2,keyasint"`
	Addr  endpoint.NodeAddr `cbor:"3,keyasint"`

	// Neighbors
	Accepted bool                `cbor:"4,keyasint,omitempty"`
	Peers    []endpoint.NodeAddr `cbor:"5,keyasint,omitempty"`

	// Message
	Message *message `cbor:"6,keyasint,omitempty"`
}

type message struct {
	ID       MessageID       `cbor:"1,keyasint"`
	Origin   endpoint.NodeID `cbor:"2,keyasint"`
	Sequence uint64          `cbor:"3,keyasint"`
	Content  []byte          `cbor:"4,keyasint"`
}

// MessageID identifies a broadcast for deduplication.
type MessageID [32]byte

// messageID hashes origin, sequence, and content.
func messageID(origin endpoint.NodeID, sequence uint64, content []byte) MessageID {
	hasher := blake3.New()
	hasher.Write(origin[:])
	var sequenceBytes [8]byte
	binary.BigEndian.PutUint64(sequenceBytes[:], sequence)
	hasher.Write(sequenceBytes[:])
	hasher.Write(content)
	var id MessageID
	copy(id[:], hasher.Sum(nil))
	return id
}
