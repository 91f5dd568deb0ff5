// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package endpoint

import (
	"bytes"
	"crypto/ed25519"
	"encoding/hex"
	"fmt"
)

// NodeID identifies a node. It is the node's Ed25519 public key, so
// possession of the matching private key is what makes a peer that
// node.
type NodeID [ed25519.PublicKeySize]byte

// ParseNodeID parses the lower-case hex form produced by String.
func ParseNodeID(text string) (NodeID, error) {
	var id NodeID
	decoded, err := hex.DecodeString(text)
	if err != nil {
		return id, fmt.Errorf("parsing node ID: %w", err)
	}
	if len(decoded) != len(id) {
		return id, fmt.Errorf("parsing node ID: got %d bytes, want %d", len(decoded), len(id))
	}
	copy(id[:], decoded)
	return id, nil
}

func (id NodeID) String() string {
	return hex.EncodeToString(id[:])
}

// ShortString returns the first ten hex characters, for log lines.
func (id NodeID) ShortString() string {
	return id.String()[:10]
}

func (id NodeID) IsZero() bool {
	return id == NodeID{}
}

// Compare orders node IDs bytewise.
func (id NodeID) Compare(other NodeID) int {
	return bytes.Compare(id[:], other[:])
}

// PublicKey returns the ID as a verification key.
func (id NodeID) PublicKey() ed25519.PublicKey {
	return ed25519.PublicKey(id[:])
}

// NodeAddr is what a peer needs to reach a node: its ID and the
// transport addresses it listens on.
type NodeAddr struct {
	ID        NodeID   `cbor:"1,keyasint"`
	Addresses []string `cbor:"2,keyasint,omitempty"`
}
