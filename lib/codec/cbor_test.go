// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package codec

import (
	"bytes"
	"errors"
	"io"
	"testing"
)

type testFrame struct {
	Kind    uint8  `cbor:"1,keyasint"`
	Topic   []byte `cbor:"2,keyasint,omitempty"`
	Content []byte `cbor:"3,keyasint,omitempty"`
}

func TestMarshalDeterministicMapOrder(t *testing.T) {
	// Go map iteration order is random; deterministic encoding must
	// sort keys so repeated encodings are byte-identical.
	value := map[string]int{"todo": 2, "t": 1, "key": 3, "a": 4}

	first, err := Marshal(value)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	for attempt := 0; attempt < 20; attempt++ {
		again, err := Marshal(value)
		if err != nil {
			t.Fatalf("Marshal: %v", err)
		}
		if !bytes.Equal(first, again) {
			t.Fatalf("encoding %d differs: %x vs %x", attempt, again, first)
		}
	}
}

func TestIntegerKeysAreCompact(t *testing.T) {
	data, err := Marshal(testFrame{Kind: 1})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	// map(1) {1: 1}
	want := []byte{0xa1, 0x01, 0x01}
	if !bytes.Equal(data, want) {
		t.Errorf("encoded = %x, want %x", data, want)
	}
}

func TestStreamCarriesBackToBackFrames(t *testing.T) {
	var buffer bytes.Buffer
	encoder := NewEncoder(&buffer)
	frames := []testFrame{
		{Kind: 1, Topic: []byte("topic")},
		{Kind: 2, Content: []byte("bork")},
		{Kind: 3},
	}
	for _, frame := range frames {
		if err := encoder.Encode(frame); err != nil {
			t.Fatalf("Encode: %v", err)
		}
	}

	decoder := NewDecoder(&buffer)
	for index, want := range frames {
		var got testFrame
		if err := decoder.Decode(&got); err != nil {
			t.Fatalf("Decode frame %d: %v", index, err)
		}
		if got.Kind != want.Kind || !bytes.Equal(got.Content, want.Content) || !bytes.Equal(got.Topic, want.Topic) {
			t.Errorf("frame %d = %+v, want %+v", index, got, want)
		}
	}

	var extra testFrame
	if err := decoder.Decode(&extra); !errors.Is(err, io.EOF) {
		t.Errorf("Decode past end = %v, want io.EOF", err)
	}
}

func TestUnmarshalIgnoresUnknownFields(t *testing.T) {
	type newer struct {
		Kind  uint8  `cbor:"1,keyasint"`
		Extra string `cbor:"9,keyasint"`
	}
	data, err := Marshal(newer{Kind: 2, Extra: "future"})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	var decoded testFrame
	if err := Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if decoded.Kind != 2 {
		t.Errorf("Kind = %d, want 2", decoded.Kind)
	}
}

func TestRawMessageDefersDecoding(t *testing.T) {
	type envelope struct {
		Action string     `cbor:"1,keyasint"`
		Body   RawMessage `cbor:"2,keyasint"`
	}
	body, err := Marshal(testFrame{Kind: 7})
	if err != nil {
		t.Fatalf("Marshal body: %v", err)
	}
	data, err := Marshal(envelope{Action: "get", Body: body})
	if err != nil {
		t.Fatalf("Marshal envelope: %v", err)
	}

	var decoded envelope
	if err := Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal envelope: %v", err)
	}
	var frame testFrame
	if err := Unmarshal(decoded.Body, &frame); err != nil {
		t.Fatalf("Unmarshal body: %v", err)
	}
	if decoded.Action != "get" || frame.Kind != 7 {
		t.Errorf("decoded = %+v / %+v", decoded, frame)
	}
}

func TestUnmarshalRejectsTrailingData(t *testing.T) {
	data, err := Marshal(testFrame{Kind: 1})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	var frame testFrame
	if err := Unmarshal(append(data, 0x01), &frame); err == nil {
		t.Fatal("Unmarshal accepted bytes after the first value")
	}
}

func TestUnmarshalAnyUsesStringKeyedMaps(t *testing.T) {
	data, err := Marshal(map[string]any{"key": "t", "nested": map[string]any{"len": 4}})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	var decoded any
	if err := Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	top, ok := decoded.(map[string]any)
	if !ok {
		t.Fatalf("decoded %T, want map[string]any", decoded)
	}
	if _, ok := top["nested"].(map[string]any); !ok {
		t.Fatalf("nested value is %T, want map[string]any", top["nested"])
	}
}
