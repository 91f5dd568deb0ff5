// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package codec

import (
	"io"
	"reflect"

	"github.com/fxamacker/cbor/v2"
)

// encMode encodes with Core Deterministic Encoding (RFC 8949 §4.2):
// map keys sorted, integers in their shortest form, no
// indefinite-length items. Entry signatures and content hashes are
// computed over these bytes, so the same value must always encode
// identically on every peer.
var encMode cbor.EncMode

// decMode accepts any well-formed CBOR. Fields a frame carries that
// the target struct does not declare are dropped, which lets a newer
// peer add fields without breaking an older one.
var decMode cbor.DecMode

func init() {
	var err error

	encOptions := cbor.CoreDetEncOptions()
	// A type with a MarshalText method travels as a CBOR text string.
	// Without this a struct whose state is unexported would encode as
	// an empty map and arrive on the other side as its zero value.
	encOptions.TextMarshaler = cbor.TextMarshalerTextString
	encMode, err = encOptions.EncMode()
	if err != nil {
		panic("codec: CBOR encoder initialization failed: " + err.Error())
	}

	decMode, err = cbor.DecOptions{
		// Every map peerdocs puts on the wire is keyed by strings or by
		// integer struct tags. When the target is any, the decoder has
		// to choose a Go map type itself, and the CBOR default of
		// map[any]any does not mix with code expecting map[string]any.
		// Struct decoding is unaffected.
		DefaultMapType: reflect.TypeOf(map[string]any(nil)),
		// The decoding half of the TextMarshaler setting above, so such
		// types round-trip.
		TextUnmarshaler: cbor.TextUnmarshalerTextString,
	}.DecMode()
	if err != nil {
		panic("codec: CBOR decoder initialization failed: " + err.Error())
	}
}

// Marshal encodes v to CBOR using Core Deterministic Encoding. Use it
// for anything that is signed or hashed.
func Marshal(v any) ([]byte, error) {
	return encMode.Marshal(v)
}

// Unmarshal decodes CBOR data into v. Unknown fields are ignored;
// trailing bytes after the first value are an error.
func Unmarshal(data []byte, v any) error {
	return decMode.Unmarshal(data, v)
}

// Encoder writes a sequence of CBOR values to a stream. It is an alias
// so packages depend on lib/codec alone, never on fxamacker/cbor.
type Encoder = cbor.Encoder

// Decoder reads a sequence of CBOR values from a stream. It returns
// io.EOF when the stream ends cleanly between values.
type Decoder = cbor.Decoder

// RawMessage holds one encoded CBOR value as-is, for a payload whose
// type is only known after another field has been read.
type RawMessage = cbor.RawMessage

// NewEncoder returns an encoder writing to w with the same
// deterministic configuration as Marshal.
func NewEncoder(w io.Writer) *Encoder {
	return encMode.NewEncoder(w)
}

// NewDecoder returns a decoder reading from r with the same
// configuration as Unmarshal.
func NewDecoder(r io.Reader) *Decoder {
	return decMode.NewDecoder(r)
}
