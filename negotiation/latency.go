// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package negotiation

import (
	"slices"
	"time"
)

// latencyWindow is how many recent samples the median covers.
const latencyWindow = 5

// LatencyCounter reports the median of the most recent round-trip
// samples. The zero value is ready to use. Not safe for concurrent
// use.
type LatencyCounter struct {
	samples []time.Duration
	next    int
}

// Mark records one sample.
func (c *LatencyCounter) Mark(sample time.Duration) {
	if sample < 0 {
		return
	}
	if len(c.samples) < latencyWindow {
		c.samples = append(c.samples, sample)
		return
	}
	c.samples[c.next] = sample
	c.next = (c.next + 1) % latencyWindow
}

// Median returns the median sample, or zero with no samples.
func (c *LatencyCounter) Median() time.Duration {
	if len(c.samples) == 0 {
		return 0
	}
	sorted := slices.Clone(c.samples)
	slices.Sort(sorted)
	return sorted[len(sorted)/2]
}
