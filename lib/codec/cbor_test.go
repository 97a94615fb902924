// Copyright 2026 The Washhouse Authors
// SPDX-License-Identifier: Apache-2.0

package codec

import (
	"bytes"
	"testing"
)

// sampleRequest is a representative internal wire message using cbor
// struct tags (the convention for purely-internal types).
type sampleRequest struct {
	Action   string `cbor:"action"`
	Machine  string `cbor:"machine,omitempty"`
	Sequence int    `cbor:"sequence"`
}

// sampleDualMessage uses json struct tags (the convention for types
// that serve both JSON and CBOR, relying on fxamacker's fallback).
type sampleDualMessage struct {
	Version int    `json:"version"`
	Name    string `json:"name"`
}

func TestMarshalUnmarshalRoundtrip(t *testing.T) {
	original := sampleRequest{
		Action:   "reserve-machine",
		Machine:  "lr-201/washer-04",
		Sequence: 42,
	}

	data, err := Marshal(original)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	if len(data) == 0 {
		t.Fatal("Marshal produced empty output")
	}

	var decoded sampleRequest
	if err := Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}

	if decoded != original {
		t.Errorf("roundtrip mismatch: got %+v, want %+v", decoded, original)
	}
}

func TestMarshalDeterministic(t *testing.T) {
	message := sampleRequest{
		Action:   "status",
		Machine:  "lr-201/washer-04",
		Sequence: 7,
	}

	first, err := Marshal(message)
	if err != nil {
		t.Fatalf("first Marshal: %v", err)
	}

	second, err := Marshal(message)
	if err != nil {
		t.Fatalf("second Marshal: %v", err)
	}

	if !bytes.Equal(first, second) {
		t.Errorf("deterministic encoding violated: %x != %x", first, second)
	}
}

func TestEncoderDecoderStreamRoundtrip(t *testing.T) {
	messages := []sampleRequest{
		{Action: "reserve-machine", Machine: "a/b", Sequence: 1},
		{Action: "start-machine", Machine: "c/d", Sequence: 2},
		{Action: "status", Sequence: 0},
	}

	var buffer bytes.Buffer
	encoder := NewEncoder(&buffer)
	for _, message := range messages {
		if err := encoder.Encode(message); err != nil {
			t.Fatalf("Encode: %v", err)
		}
	}

	decoder := NewDecoder(&buffer)
	for i, want := range messages {
		var got sampleRequest
		if err := decoder.Decode(&got); err != nil {
			t.Fatalf("Decode message %d: %v", i, err)
		}
		if got != want {
			t.Errorf("message %d: got %+v, want %+v", i, got, want)
		}
	}
}

func TestJSONTagFallback(t *testing.T) {
	// Types with json tags (no cbor tags) should encode/decode
	// correctly through our modes, using json tag names as CBOR
	// map keys.
	original := sampleDualMessage{Version: 3, Name: "washer-04"}

	data, err := Marshal(original)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	var decoded sampleDualMessage
	if err := Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}

	if decoded != original {
		t.Errorf("json-tag roundtrip mismatch: got %+v, want %+v", decoded, original)
	}
}

func TestOmitemptyRespected(t *testing.T) {
	// A zero-value omitempty field should not appear in output.
	withMachine := sampleRequest{Action: "a", Machine: "x", Sequence: 1}
	withoutMachine := sampleRequest{Action: "a", Sequence: 1}

	dataWith, err := Marshal(withMachine)
	if err != nil {
		t.Fatal(err)
	}
	dataWithout, err := Marshal(withoutMachine)
	if err != nil {
		t.Fatal(err)
	}

	// The encoding without the machine field should be shorter
	// because the omitted field is not present.
	if len(dataWithout) >= len(dataWith) {
		t.Errorf("omitempty not effective: without=%d bytes, with=%d bytes",
			len(dataWithout), len(dataWith))
	}
}

func TestUnmarshalInvalidCBOR(t *testing.T) {
	var message sampleRequest
	err := Unmarshal([]byte{0xFF, 0xFE, 0xFD}, &message)
	if err == nil {
		t.Error("Unmarshal should reject invalid CBOR")
	}
}

func TestByteStringRoundtrip(t *testing.T) {
	// Verify that []byte fields encode as CBOR byte strings (major
	// type 2), not text strings. This matters for carrying signed
	// access tokens inside request envelopes.
	type envelope struct {
		Token []byte `cbor:"token"`
	}

	original := envelope{Token: []byte{0xA1, 0x01, 0x61, 0x78}}

	data, err := Marshal(original)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	var decoded envelope
	if err := Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}

	if !bytes.Equal(decoded.Token, original.Token) {
		t.Errorf("byte string roundtrip: got %x, want %x", decoded.Token, original.Token)
	}
}

func TestAnyTargetDecodesStringKeyedMap(t *testing.T) {
	data, err := Marshal(map[string]any{"action": "status", "count": 3})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	var decoded any
	if err := Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}

	asMap, ok := decoded.(map[string]any)
	if !ok {
		t.Fatalf("any target decoded to %T, want map[string]any", decoded)
	}
	if asMap["action"] != "status" {
		t.Errorf("action = %v, want status", asMap["action"])
	}
}

func BenchmarkMarshal(b *testing.B) {
	message := sampleRequest{
		Action:   "reserve-machine",
		Machine:  "lr-201/washer-04",
		Sequence: 42,
	}

	b.ReportAllocs()
	for b.Loop() {
		Marshal(message)
	}
}

func BenchmarkUnmarshal(b *testing.B) {
	message := sampleRequest{
		Action:   "reserve-machine",
		Machine:  "lr-201/washer-04",
		Sequence: 42,
	}
	data, err := Marshal(message)
	if err != nil {
		b.Fatal(err)
	}

	b.SetBytes(int64(len(data)))
	b.ReportAllocs()
	for b.Loop() {
		var decoded sampleRequest
		Unmarshal(data, &decoded)
	}
}
