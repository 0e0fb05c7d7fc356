// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package negotiation

import (
	"fmt"
	"io"

	"github.com/bureau-foundation/tango/lib/codec"
	"github.com/bureau-foundation/tango/lib/compress"
)

// NonceSize is the width of a NegotiatedState nonce and of the
// derived seed.
const NonceSize = 16

// DefaultMaxStateSize bounds the decompressed size of a peer's state.
const DefaultMaxStateSize = 8 << 20

// NegotiatedState is what each side commits to and later reveals.
type NegotiatedState struct {
	Nonce    [NonceSize]byte `cbor:"nonce"`
	SaveData []byte          `cbor:"save_data"`
}

// newState draws a fresh nonce from random.
func newState(random io.Reader, saveData []byte) (NegotiatedState, error) {
	state := NegotiatedState{SaveData: saveData}
	if _, err := io.ReadFull(random, state.Nonce[:]); err != nil {
		return NegotiatedState{}, fmt.Errorf("drawing nonce: %w", err)
	}
	return state, nil
}

// encodeReveal produces the bytes that are committed to and chunked.
func encodeReveal(state NegotiatedState, tag compress.Tag) ([]byte, error) {
	encoded, err := codec.Marshal(state)
	if err != nil {
		return nil, fmt.Errorf("encoding state: %w", err)
	}
	reveal, err := compress.Encode(encoded, tag)
	if err != nil {
		return nil, fmt.Errorf("compressing state: %w", err)
	}
	return reveal, nil
}

// decodeReveal is the inverse of encodeReveal. It bounds the
// decompressed size by maxSize.
func decodeReveal(reveal []byte, maxSize int) (NegotiatedState, error) {
	encoded, err := compress.Decode(reveal, maxSize)
	if err != nil {
		return NegotiatedState{}, err
	}
	var state NegotiatedState
	if err := codec.Unmarshal(encoded, &state); err != nil {
		return NegotiatedState{}, err
	}
	return state, nil
}

// DeriveSeed combines both nonces. XOR is commutative, so both sides
// derive the same seed without agreeing on an order.
func DeriveSeed(a, b [NonceSize]byte) [NonceSize]byte {
	var seed [NonceSize]byte
	for i := range seed {
		seed[i] = a[i] ^ b[i]
	}
	return seed
}
