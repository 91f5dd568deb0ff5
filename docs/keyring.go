// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package docs

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"io"
	"slices"
	"sync"

	"golang.org/x/crypto/hkdf"

	"github.com/bureau-foundation/peerdocs/lib/codec"
	"github.com/bureau-foundation/peerdocs/lib/sealed"
	"github.com/bureau-foundation/peerdocs/lib/secret"
)

// authorDerivationInfo prefixes the HKDF info for derived author seeds.
const authorDerivationInfo = "peerdocs.author.v1:"

// Keyring holds author private keys. It is safe for concurrent use.
type Keyring struct {
	mu      sync.Mutex
	authors map[AuthorID]ed25519.PrivateKey
}

// NewKeyring returns an empty keyring. A node without a configured
// keyring path uses one for the life of the process.
func NewKeyring() *Keyring {
	return &Keyring{authors: make(map[AuthorID]ed25519.PrivateKey)}
}

// Create generates a fresh author. Every call yields a new identity.
func (k *Keyring) Create() (AuthorID, error) {
	_, private, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return AuthorID{}, fmt.Errorf("generating author key: %w", err)
	}
	return k.Import(private)
}

// Import adds an existing private key. Importing a key twice is a
// no-op.
func (k *Keyring) Import(private ed25519.PrivateKey) (AuthorID, error) {
	if len(private) != ed25519.PrivateKeySize {
		return AuthorID{}, fmt.Errorf("author key is %d bytes, want %d", len(private), ed25519.PrivateKeySize)
	}
	id := authorOf(private)
	k.mu.Lock()
	defer k.mu.Unlock()
	if _, exists := k.authors[id]; !exists {
		k.authors[id] = slices.Clone(private)
	}
	return id, nil
}

// ImportSeed adds the author whose private key is derived from a
// 32-byte Ed25519 seed.
func (k *Keyring) ImportSeed(seed []byte) (AuthorID, error) {
	if len(seed) != ed25519.SeedSize {
		return AuthorID{}, fmt.Errorf("author seed is %d bytes, want %d", len(seed), ed25519.SeedSize)
	}
	return k.Import(ed25519.NewKeyFromSeed(seed))
}

func (k *Keyring) get(id AuthorID) (ed25519.PrivateKey, bool) {
	k.mu.Lock()
	defer k.mu.Unlock()
	private, ok := k.authors[id]
	return private, ok
}

// Export returns a copy of the author's private key.
func (k *Keyring) Export(id AuthorID) (ed25519.PrivateKey, error) {
	private, ok := k.get(id)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownAuthor, id.ShortString())
	}
	return slices.Clone(private), nil
}

// Authors lists the held authors in ID order.
func (k *Keyring) Authors() []AuthorID {
	k.mu.Lock()
	defer k.mu.Unlock()
	ids := make([]AuthorID, 0, len(k.authors))
	for id := range k.authors {
		ids = append(ids, id)
	}
	slices.SortFunc(ids, AuthorID.Compare)
	return ids
}

// Len is the number of authors held.
func (k *Keyring) Len() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.authors)
}

// keyringFile is the plaintext inside a sealed keyring.
type keyringFile struct {
	Version int      `cbor:"1,keyasint"`
	Seeds   [][]byte `cbor:"2,keyasint"`
}

// Seal writes the keyring encrypted to the given age public keys.
func (k *Keyring) Seal(w io.Writer, recipientKeys ...string) error {
	k.mu.Lock()
	file := keyringFile{Version: 1, Seeds: make([][]byte, 0, len(k.authors))}
	for _, private := range k.authors {
		file.Seeds = append(file.Seeds, slices.Clone(private.Seed()))
	}
	k.mu.Unlock()
	slices.SortFunc(file.Seeds, func(a, b []byte) int { return slices.Compare(a, b) })

	plaintext, err := codec.Marshal(file)
	for _, seed := range file.Seeds {
		secret.Zero(seed)
	}
	if err != nil {
		return fmt.Errorf("encoding keyring: %w", err)
	}
	defer secret.Zero(plaintext)
	return sealed.Seal(w, plaintext, recipientKeys)
}

// UnsealKeyring reads a keyring written by Seal. The private key is
// borrowed and not closed.
func UnsealKeyring(r io.Reader, privateKey *secret.Buffer) (*Keyring, error) {
	plaintext, err := sealed.Open(r, privateKey)
	if err != nil {
		return nil, fmt.Errorf("unsealing keyring: %w", err)
	}
	defer plaintext.Close()

	var file keyringFile
	if err := codec.Unmarshal(plaintext.Bytes(), &file); err != nil {
		return nil, fmt.Errorf("decoding keyring: %w", err)
	}
	if file.Version != 1 {
		return nil, fmt.Errorf("unsupported keyring version %d", file.Version)
	}
	keyring := NewKeyring()
	for index, seed := range file.Seeds {
		if _, err := keyring.ImportSeed(seed); err != nil {
			return nil, fmt.Errorf("keyring author %d: %w", index, err)
		}
		secret.Zero(seed)
	}
	return keyring, nil
}

// DeriveAuthorSeed derives a deterministic Ed25519 seed from root key
// material with HKDF-SHA256. Distinct labels yield unrelated authors.
func DeriveAuthorSeed(root []byte, label string) ([]byte, error) {
	if len(root) < 16 {
		return nil, fmt.Errorf("root key material is %d bytes, want at least 16", len(root))
	}
	reader := hkdf.New(sha256.New, root, nil, []byte(authorDerivationInfo+label))
	seed := make([]byte, ed25519.SeedSize)
	if _, err := io.ReadFull(reader, seed); err != nil {
		return nil, fmt.Errorf("deriving author seed: %w", err)
	}
	return seed, nil
}
