// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package codec provides the shared CBOR encoding configuration.
//
// Every binary schema in tango is CBOR: the frames exchanged with the
// core process over its standard streams, the negotiation messages
// tunneled to the peer inside those frames, the NegotiatedState that
// is hashed for commitments, and the replay metadata handed to the
// core at start. JSON appears only at the edges (patch info.jsonc
// files, the keymapping argument passed to the core).
//
// The encoder uses Core Deterministic Encoding (RFC 8949 §4.2). This
// matters beyond tidiness: a commitment is a hash over encoded bytes,
// so both peers must encode an identical value to identical bytes.
//
// For buffer-oriented operations:
//
//	data, err := codec.Marshal(value)
//	err = codec.Unmarshal(data, &value)
//
// For stream-oriented operations:
//
//	encoder := codec.NewEncoder(w)
//	decoder := codec.NewDecoder(r)
//
// # Struct Tag Rules
//
// Types that only ever travel as CBOR use `cbor` tags with snake_case
// keys. Never put both `cbor` and `json` tags on the same field.
package codec
