// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package negotiation

import (
	"testing"

	"github.com/bureau-foundation/tango/lib/codec"
	"github.com/bureau-foundation/tango/lib/commitment"
)

// encodeRaw encodes v without EncodeMessage's variant check, for
// building malformed messages.
func encodeRaw(t *testing.T, v any) ([]byte, error) {
	t.Helper()
	return codec.Marshal(v)
}

func commitmentOf(reveal []byte) commitment.Commitment {
	return commitment.Compute(reveal)
}
