// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package endpoint

import (
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"fmt"
	"io/fs"
	"os"
)

// Identity is a node keypair.
type Identity struct {
	private ed25519.PrivateKey
	id      NodeID
}

// GenerateIdentity creates a fresh random identity.
func GenerateIdentity() (*Identity, error) {
	_, private, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generating node key: %w", err)
	}
	return newIdentity(private), nil
}

// IdentityFromSeed derives the identity for a 32-byte Ed25519 seed.
func IdentityFromSeed(seed []byte) (*Identity, error) {
	if len(seed) != ed25519.SeedSize {
		return nil, fmt.Errorf("node key seed: got %d bytes, want %d", len(seed), ed25519.SeedSize)
	}
	return newIdentity(ed25519.NewKeyFromSeed(seed)), nil
}

func newIdentity(private ed25519.PrivateKey) *Identity {
	identity := &Identity{private: private}
	copy(identity.id[:], private.Public().(ed25519.PublicKey))
	return identity
}

// LoadOrCreateIdentity reads the seed stored at path, or generates a
// new identity and writes its seed there with mode 0600.
func LoadOrCreateIdentity(path string) (*Identity, error) {
	seed, err := os.ReadFile(path)
	if err == nil {
		return IdentityFromSeed(seed)
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("reading node key: %w", err)
	}

	identity, err := GenerateIdentity()
	if err != nil {
		return nil, err
	}
	if err := os.WriteFile(path, identity.private.Seed(), 0o600); err != nil {
		return nil, fmt.Errorf("writing node key: %w", err)
	}
	return identity, nil
}

func (identity *Identity) NodeID() NodeID {
	return identity.id
}

func (identity *Identity) Sign(message []byte) []byte {
	return ed25519.Sign(identity.private, message)
}
