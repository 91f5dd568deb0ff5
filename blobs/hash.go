// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package blobs

import (
	"encoding/hex"
	"fmt"

	"github.com/ipfs/go-cid"
	"github.com/multiformats/go-multihash"
	"github.com/zeebo/blake3"
)

// Hash is the BLAKE3-256 digest of a blob's content.
type Hash [32]byte

// Sum hashes data.
func Sum(data []byte) Hash {
	return Hash(blake3.Sum256(data))
}

// ParseHash parses the hex form produced by String.
func ParseHash(text string) (Hash, error) {
	var hash Hash
	decoded, err := hex.DecodeString(text)
	if err != nil {
		return hash, fmt.Errorf("parsing blob hash: %w", err)
	}
	if len(decoded) != len(hash) {
		return hash, fmt.Errorf("parsing blob hash: got %d bytes, want %d", len(decoded), len(hash))
	}
	copy(hash[:], decoded)
	return hash, nil
}

func (h Hash) String() string {
	return hex.EncodeToString(h[:])
}

// ShortString returns the first ten hex characters.
func (h Hash) ShortString() string {
	return h.String()[:10]
}

func (h Hash) IsZero() bool {
	return h == Hash{}
}

// CID returns the hash as a CIDv1 with the raw codec.
func (h Hash) CID() cid.Cid {
	digest, err := multihash.Encode(h[:], multihash.BLAKE3)
	if err != nil {
		// Encode only fails for unknown codes.
		panic("blobs: encoding blake3 multihash: " + err.Error())
	}
	return cid.NewCidV1(cid.Raw, digest)
}

// HashFromCID extracts the hash from a CID produced by Hash.CID.
func HashFromCID(id cid.Cid) (Hash, error) {
	var hash Hash
	if !id.Defined() {
		return hash, fmt.Errorf("undefined CID")
	}
	decoded, err := multihash.Decode(id.Hash())
	if err != nil {
		return hash, fmt.Errorf("decoding multihash of %s: %w", id, err)
	}
	if decoded.Code != multihash.BLAKE3 || len(decoded.Digest) != len(hash) {
		return hash, fmt.Errorf("CID %s is not a 32-byte blake3 digest", id)
	}
	copy(hash[:], decoded.Digest)
	return hash, nil
}

// ParseCID parses a CID string into a Hash.
func ParseCID(text string) (Hash, error) {
	id, err := cid.Decode(text)
	if err != nil {
		return Hash{}, fmt.Errorf("parsing CID: %w", err)
	}
	return HashFromCID(id)
}
