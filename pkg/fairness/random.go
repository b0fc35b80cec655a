package fairness

import (
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"math/bits"
)

// maxRejections bounds the resampling loop. Each attempt is rejected with
// probability below 1/2, so hitting the bound means the entropy source is broken.
const maxRejections = 128

var (
	ErrInvalidRange       = errors.New("fairness: invalid random range")
	ErrEntropyUnavailable = errors.New("fairness: entropy source unavailable")
)

// Source draws unbiased integers from an entropy reader.
type Source struct {
	reader io.Reader
}

// NewSource returns a Source backed by crypto/rand.
func NewSource() *Source {
	return &Source{reader: rand.Reader}
}

// NewSourceFromReader is used by tests to inject deterministic bytes.
func NewSourceFromReader(r io.Reader) *Source {
	if r == nil {
		r = rand.Reader
	}
	return &Source{reader: r}
}

var defaultSource = NewSource()

// SecureRandomInRange returns an integer uniformly distributed in [min, max].
func SecureRandomInRange(min, max int64) (int64, error) {
	return defaultSource.IntInRange(min, max)
}

// IntInRange samples the minimal number of bytes covering the range and
// rejects raw values at or above the largest multiple of the range that fits,
// so the final modulo carries no bias.
func (s *Source) IntInRange(min, max int64) (int64, error) {
	if s == nil || s.reader == nil {
		return 0, ErrEntropyUnavailable
	}
	if min > max {
		return 0, fmt.Errorf("%w: min %d > max %d", ErrInvalidRange, min, max)
	}
	// Unsigned subtraction yields the exact span for any ordered pair.
	spread := uint64(max) - uint64(min)
	if spread == 0 {
		return min, nil
	}

	width := byteWidth(spread)
	span := spread + 1
	limit, unbounded := rejectionLimit(span, width)

	var buf [8]byte
	for attempt := 0; attempt < maxRejections; attempt++ {
		if _, err := io.ReadFull(s.reader, buf[8-width:]); err != nil {
			return 0, fmt.Errorf("%w: %v", ErrEntropyUnavailable, err)
		}
		raw := binary.BigEndian.Uint64(buf[:])
		if !unbounded && raw >= limit {
			continue
		}
		// span wraps to 0 when the range covers every int64.
		if span == 0 {
			return int64(raw), nil
		}
		return int64(uint64(min) + raw%span), nil
	}

	return 0, fmt.Errorf("%w: rejection bound exceeded", ErrEntropyUnavailable)
}

func byteWidth(spread uint64) int {
	width := (bits.Len64(spread) + 7) / 8
	if width < 1 {
		width = 1
	}
	return width
}

// rejectionLimit returns the exclusive upper bound for accepted raw samples of
// the given byte width. unbounded is set when every value of a full 8-byte
// sample is acceptable; a span of 0 stands for 2^64.
func rejectionLimit(span uint64, width int) (limit uint64, unbounded bool) {
	if width >= 8 {
		if span == 0 {
			return 0, true
		}
		rem := (math.MaxUint64%span + 1) % span
		if rem == 0 {
			return 0, true
		}
		return math.MaxUint64 - rem + 1, false
	}

	space := uint64(1) << (8 * uint(width))
	return space - space%span, false
}
