// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package commitment

import (
	"crypto/subtle"
	"encoding/hex"

	"golang.org/x/crypto/sha3"
)

// Size is the commitment width in bytes.
const Size = 16

// Domain prefixes the hashed bytes so a commitment cannot be replayed
// as a digest from another protocol that also hashes CBOR.
const Domain = "tango:state:"

// Commitment binds a party to a reveal without disclosing it.
type Commitment [Size]byte

// Compute returns the commitment to reveal: the first Size bytes of
// SHAKE128(Domain || reveal).
func Compute(reveal []byte) Commitment {
	shake := sha3.NewShake128()
	shake.Write([]byte(Domain))
	shake.Write(reveal)

	var result Commitment
	// ShakeHash.Read never returns an error.
	shake.Read(result[:])
	return result
}

// Verify reports whether reveal hashes to want. The comparison runs in
// constant time so a peer probing with forged reveals learns nothing
// from timing.
func Verify(want Commitment, reveal []byte) bool {
	got := Compute(reveal)
	return subtle.ConstantTimeCompare(got[:], want[:]) == 1
}

// IsZero reports whether c is the zero commitment. No real reveal is
// expected to hash to it; the negotiation layer rejects it on receipt.
func (c Commitment) IsZero() bool {
	return c == Commitment{}
}

// String returns the hex form for logs.
func (c Commitment) String() string {
	return hex.EncodeToString(c[:])
}
