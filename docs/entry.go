// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package docs

import (
	"bytes"
	"crypto/ed25519"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/zeebo/blake3"

	"github.com/bureau-foundation/peerdocs/blobs"
	"github.com/bureau-foundation/peerdocs/lib/codec"
)

// entrySigningDomain prefixes every signed entry payload.
const entrySigningDomain = "peerdocs-entry-v1\x00"

// errBadSignature is returned when an entry's signature does not
// verify against its author.
var errBadSignature = errors.New("entry signature does not verify")

// Entry is one signed record in a document. Timestamp is microseconds
// since the Unix epoch.
type Entry struct {
	Namespace   NamespaceID `cbor:"1,keyasint"`
	Author      AuthorID    `cbor:"2,keyasint"`
	Key         []byte      `cbor:"3,keyasint"`
	ContentHash blobs.Hash  `cbor:"4,keyasint"`
	ContentLen  uint64      `cbor:"5,keyasint"`
	Timestamp   uint64      `cbor:"6,keyasint"`
	Signature   []byte      `cbor:"7,keyasint"`
}

// signedFields is the part of an entry covered by the signature.
type signedFields struct {
	Namespace   NamespaceID `cbor:"1,keyasint"`
	Author      AuthorID    `cbor:"2,keyasint"`
	Key         []byte      `cbor:"3,keyasint"`
	ContentHash blobs.Hash  `cbor:"4,keyasint"`
	ContentLen  uint64      `cbor:"5,keyasint"`
	Timestamp   uint64      `cbor:"6,keyasint"`
}

func (e *Entry) signingPayload() []byte {
	encoded, err := codec.Marshal(signedFields{
		Namespace:   e.Namespace,
		Author:      e.Author,
		Key:         e.Key,
		ContentHash: e.ContentHash,
		ContentLen:  e.ContentLen,
		Timestamp:   e.Timestamp,
	})
	if err != nil {
		panic("docs: encoding entry payload: " + err.Error())
	}
	return append([]byte(entrySigningDomain), encoded...)
}

func (e *Entry) sign(private ed25519.PrivateKey) {
	e.Signature = ed25519.Sign(private, e.signingPayload())
}

// Verify checks the author's signature.
func (e Entry) Verify() error {
	if len(e.Signature) != ed25519.SignatureSize {
		return errBadSignature
	}
	if !ed25519.Verify(e.Author.publicKey(), e.signingPayload(), e.Signature) {
		return errBadSignature
	}
	return nil
}

// Hash identifies the signed entry: BLAKE3 of its encoding.
func (e Entry) Hash() blobs.Hash {
	encoded, err := codec.Marshal(e)
	if err != nil {
		panic("docs: encoding entry: " + err.Error())
	}
	return blobs.Hash(blake3.Sum256(encoded))
}

// supersedes reports whether e replaces other in the same slot.
func (e *Entry) supersedes(other *Entry) bool {
	if e.Timestamp != other.Timestamp {
		return e.Timestamp > other.Timestamp
	}
	return bytes.Compare(e.Signature, other.Signature) > 0
}

// Time converts the timestamp to wall-clock time.
func (e Entry) Time() time.Time {
	return time.UnixMicro(int64(e.Timestamp)).UTC()
}

func (e Entry) String() string {
	var builder strings.Builder
	builder.WriteString("Entry {\n")
	fmt.Fprintf(&builder, "    namespace: %s,\n", e.Namespace)
	fmt.Fprintf(&builder, "    author: %s,\n", e.Author)
	fmt.Fprintf(&builder, "    key: %s,\n", formatKey(e.Key))
	fmt.Fprintf(&builder, "    content_hash: %s,\n", e.ContentHash)
	fmt.Fprintf(&builder, "    content_len: %d,\n", e.ContentLen)
	fmt.Fprintf(&builder, "    timestamp: %d,\n", e.Timestamp)
	builder.WriteString("}")
	return builder.String()
}

// formatKey quotes printable keys and renders the rest as hex.
func formatKey(key []byte) string {
	if utf8.Valid(key) && !bytes.ContainsFunc(key, func(r rune) bool { return !unicode.IsPrint(r) }) {
		return strconv.Quote(string(key))
	}
	return fmt.Sprintf("0x%x", key)
}
