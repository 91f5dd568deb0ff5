// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package docs

import (
	"bytes"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"fmt"

	"github.com/bureau-foundation/peerdocs/gossip"
)

// NamespaceID identifies a document.
type NamespaceID [32]byte

// NewNamespaceID returns a random namespace.
func NewNamespaceID() (NamespaceID, error) {
	var id NamespaceID
	if _, err := rand.Read(id[:]); err != nil {
		return NamespaceID{}, fmt.Errorf("generating namespace: %w", err)
	}
	return id, nil
}

// ParseNamespaceID parses the 64-character hex form produced by
// NamespaceID.String.
func ParseNamespaceID(text string) (NamespaceID, error) {
	var id NamespaceID
	if err := parseHex32(text, id[:]); err != nil {
		return NamespaceID{}, fmt.Errorf("parsing namespace %q: %w", text, err)
	}
	return id, nil
}

func (id NamespaceID) String() string      { return hex.EncodeToString(id[:]) }
func (id NamespaceID) ShortString() string { return id.String()[:10] }

// Topic is the gossip topic live updates for the document travel on.
func (id NamespaceID) Topic() gossip.TopicID { return gossip.TopicID(id) }

// AuthorID is an author's Ed25519 public key.
type AuthorID [32]byte

// ParseAuthorID parses the hex form produced by AuthorID.String.
func ParseAuthorID(text string) (AuthorID, error) {
	var id AuthorID
	if err := parseHex32(text, id[:]); err != nil {
		return AuthorID{}, fmt.Errorf("parsing author %q: %w", text, err)
	}
	return id, nil
}

func (id AuthorID) String() string      { return hex.EncodeToString(id[:]) }
func (id AuthorID) ShortString() string { return id.String()[:10] }

// Compare orders author IDs bytewise.
func (id AuthorID) Compare(other AuthorID) int { return bytes.Compare(id[:], other[:]) }

func (id AuthorID) publicKey() ed25519.PublicKey { return ed25519.PublicKey(id[:]) }

func authorOf(private ed25519.PrivateKey) AuthorID {
	var id AuthorID
	copy(id[:], private.Public().(ed25519.PublicKey))
	return id
}

func parseHex32(text string, out []byte) error {
	decoded, err := hex.DecodeString(text)
	if err != nil {
		return err
	}
	if len(decoded) != 32 {
		return fmt.Errorf("want 32 bytes, got %d", len(decoded))
	}
	copy(out, decoded)
	return nil
}
