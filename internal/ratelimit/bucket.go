package ratelimit

import (
	"encoding/binary"
	"fmt"
	"math"
	"time"
)

// bucketSize is the encoded size: float64 token bits followed by unix nanos.
const bucketSize = 16

// Bucket is the persisted state of one key.
type Bucket struct {
	Tokens     float64
	LastRefill time.Time
}

// EncodeBucket serializes b into a fixed 16-byte big-endian payload.
func EncodeBucket(b Bucket) []byte {
	buf := make([]byte, bucketSize)
	binary.BigEndian.PutUint64(buf[:8], math.Float64bits(b.Tokens))
	binary.BigEndian.PutUint64(buf[8:], uint64(b.LastRefill.UnixNano()))
	return buf
}

// DecodeBucket parses a payload produced by EncodeBucket.
func DecodeBucket(data []byte) (Bucket, error) {
	if len(data) != bucketSize {
		return Bucket{}, fmt.Errorf("%w: got %d bytes, want %d", ErrCorruptBucket, len(data), bucketSize)
	}
	tokens := math.Float64frombits(binary.BigEndian.Uint64(data[:8]))
	if math.IsNaN(tokens) || math.IsInf(tokens, 0) || tokens < 0 {
		return Bucket{}, fmt.Errorf("%w: invalid token count %v", ErrCorruptBucket, tokens)
	}
	nanos := int64(binary.BigEndian.Uint64(data[8:]))
	return Bucket{Tokens: tokens, LastRefill: time.Unix(0, nanos)}, nil
}

// Policy is the static configuration of every bucket: capacity C and a
// refill rate of RefillTokens per RefillPeriod.
type Policy struct {
	Capacity     int
	RefillTokens int
	RefillPeriod time.Duration
}

// Validate checks that the policy can admit requests.
func (p Policy) Validate() error {
	if p.Capacity <= 0 {
		return fmt.Errorf("capacity must be positive, got %d", p.Capacity)
	}
	if p.RefillTokens <= 0 {
		return fmt.Errorf("refill tokens must be positive, got %d", p.RefillTokens)
	}
	if p.RefillPeriod <= 0 {
		return fmt.Errorf("refill period must be positive, got %s", p.RefillPeriod)
	}
	return nil
}

// Full returns a bucket at capacity stamped with now.
func (p Policy) Full(now time.Time) Bucket {
	return Bucket{Tokens: float64(p.Capacity), LastRefill: now}
}

// Refill adds the tokens accrued since b.LastRefill, capped at capacity.
// If now is before b.LastRefill (clock skew between writers) nothing is
// added and the later timestamp is kept.
func (p Policy) Refill(b Bucket, now time.Time) Bucket {
	capacity := float64(p.Capacity)
	if b.Tokens > capacity {
		b.Tokens = capacity
	}

	elapsed := now.Sub(b.LastRefill)
	if elapsed <= 0 {
		return b
	}

	accrued := float64(elapsed) / float64(p.RefillPeriod) * float64(p.RefillTokens)
	b.Tokens = math.Min(capacity, b.Tokens+accrued)
	b.LastRefill = now
	return b
}

// TimeToFull is how long an empty bucket takes to reach capacity, rounded up
// to whole refill periods. Bucket records expire after this window: an
// expired record and a full bucket are indistinguishable.
func (p Policy) TimeToFull() time.Duration {
	periods := math.Ceil(float64(p.Capacity) / float64(p.RefillTokens))
	return time.Duration(periods) * p.RefillPeriod
}

// RetryAfter is how long until b holds cost tokens. Zero if it already does.
func (p Policy) RetryAfter(b Bucket, cost int) time.Duration {
	deficit := float64(cost) - b.Tokens
	if deficit <= 0 {
		return 0
	}
	if cost > p.Capacity {
		return p.TimeToFull()
	}
	wait := deficit / float64(p.RefillTokens) * float64(p.RefillPeriod)
	return time.Duration(math.Ceil(wait))
}
