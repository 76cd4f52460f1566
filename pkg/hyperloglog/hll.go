// Package hyperloglog provides approximate distinct counting for tag values
// and emitting sources. A sketch with precision p uses 2^p one-byte
// registers; the standard error is ~1.04/sqrt(2^p). The default precision of
// 14 uses 16KB per sketch with ~0.81% error, which is ample for cardinality
// fields that are reported as order-of-magnitude estimates.
package hyperloglog

import (
	"errors"
	"hash/fnv"
	"math"
	"math/bits"
)

// DefaultPrecision is used when callers pass an out-of-range precision.
const DefaultPrecision = 14

// ErrPrecisionMismatch is returned when merging sketches of different sizes.
var ErrPrecisionMismatch = errors.New("hyperloglog: precision mismatch")

// Sketch is a HyperLogLog distinct-value estimator. It is not safe for
// concurrent use.
type Sketch struct {
	precision uint8
	registers []uint8
	alpha     float64
}

// New creates a sketch with the given precision (4-18).
func New(precision uint8) *Sketch {
	if precision < 4 || precision > 18 {
		precision = DefaultPrecision
	}

	m := uint32(1) << precision
	var alpha float64
	switch m {
	case 16:
		alpha = 0.673
	case 32:
		alpha = 0.697
	case 64:
		alpha = 0.709
	default:
		alpha = 0.7213 / (1 + 1.079/float64(m))
	}

	return &Sketch{
		precision: precision,
		registers: make([]uint8, m),
		alpha:     alpha,
	}
}

// Add records one observation of value.
func (s *Sketch) Add(value string) {
	h := fnv.New64a()
	h.Write([]byte(value))
	hash := h.Sum64()

	idx := hash & ((1 << s.precision) - 1)
	w := hash >> s.precision

	var rank uint8
	if w == 0 {
		rank = uint8(64 - s.precision + 1)
	} else {
		rank = uint8(bits.LeadingZeros64(w) - int(s.precision) + 1)
	}

	if rank > s.registers[idx] {
		s.registers[idx] = rank
	}
}

// Estimate returns the estimated number of distinct values added.
func (s *Sketch) Estimate() int64 {
	sum := 0.0
	zeros := 0
	for _, r := range s.registers {
		sum += 1.0 / float64(uint64(1)<<r)
		if r == 0 {
			zeros++
		}
	}

	m := float64(len(s.registers))
	estimate := s.alpha * m * m / sum

	// Range corrections from the original HLL paper.
	if estimate <= 2.5*m {
		if zeros != 0 {
			estimate = m * math.Log(m/float64(zeros))
		}
	} else if estimate > (1.0/30.0)*math.Pow(2, 32) {
		estimate = -math.Pow(2, 32) * math.Log(1-estimate/math.Pow(2, 32))
	}

	return int64(estimate)
}

// Merge unions another sketch into this one. Both must share a precision.
func (s *Sketch) Merge(other *Sketch) error {
	if s.precision != other.precision {
		return ErrPrecisionMismatch
	}
	for i, r := range other.registers {
		if r > s.registers[i] {
			s.registers[i] = r
		}
	}
	return nil
}
