package state

import (
	"time"

	"github.com/scottpeterman/wirlwind/models"
)

// ─────────────────────────────────────────────────────────────────────────────
// Ring — fixed-capacity FIFO sample buffer
// ─────────────────────────────────────────────────────────────────────────────

// DefaultRingCapacity holds 24h of samples at a 30s interval.
const DefaultRingCapacity = 2880

// Ring is a fixed-capacity FIFO of numeric samples. Appending beyond
// capacity evicts the oldest sample. Not safe for concurrent use; the Store
// serializes access.
type Ring struct {
	buf   []models.Sample
	head  int // index of oldest sample
	count int
}

// NewRing creates a ring with the given capacity (DefaultRingCapacity when
// capacity ≤ 0).
func NewRing(capacity int) *Ring {
	if capacity <= 0 {
		capacity = DefaultRingCapacity
	}
	return &Ring{buf: make([]models.Sample, capacity)}
}

// Append adds a sample, evicting the oldest when full.
func (r *Ring) Append(at time.Time, value float64) {
	idx := (r.head + r.count) % len(r.buf)
	r.buf[idx] = models.Sample{At: at, Value: value}
	if r.count < len(r.buf) {
		r.count++
	} else {
		r.head = (r.head + 1) % len(r.buf)
	}
}

// Len returns the number of stored samples.
func (r *Ring) Len() int { return r.count }

// Cap returns the fixed capacity.
func (r *Ring) Cap() int { return len(r.buf) }

// Samples returns the stored samples oldest-first.
func (r *Ring) Samples() []models.Sample {
	out := make([]models.Sample, r.count)
	for i := 0; i < r.count; i++ {
		out[i] = r.buf[(r.head+i)%len(r.buf)]
	}
	return out
}
