// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package commitment implements the hash commitment both peers publish
// before revealing their negotiated state.
//
// A commitment is 16 bytes of SHAKE128 output over a fixed domain
// prefix followed by the exact reveal bytes a peer will later send
// (the compressed, encoded NegotiatedState). Hashing the transmitted
// bytes rather than a re-encoding of the decoded value means the
// receiver verifies precisely what arrived on the wire.
//
// The 16-byte width is inherited from the deployed protocol. Birthday
// bounds put collision search at 2^64 work, which a committing party
// would need to equivocate; see DESIGN.md for the review note.
package commitment
