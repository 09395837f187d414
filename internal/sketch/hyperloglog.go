// Package sketch implements the HyperLogLog cardinality estimator that backs
// the analytics engine's approximate distinct counts. The register layout,
// hash and estimator are part of this system's contract, so the structure is
// implemented here rather than pulled in as an opaque dependency.
package sketch

import (
	"errors"
	"fmt"
	"math"
	"math/bits"

	"github.com/cespare/xxhash/v2"
)

// ErrPrecisionMismatch is returned by Merge when the two sketches were built
// with different precisions. The engine constructs every sketch at one fixed
// precision, so hitting this is a programmer error.
var ErrPrecisionMismatch = errors.New("sketch precision mismatch")

const (
	MinPrecision = 4
	MaxPrecision = 18

	// DefaultPrecision gives m = 16384 registers and a standard error of
	// about 0.81%.
	DefaultPrecision = 14
)

// Sketch estimates the number of distinct elements added to it in fixed
// memory. It is not safe for concurrent use; the analytics engine serializes
// all access behind its own mutex.
type Sketch struct {
	precision uint8
	m         uint32
	registers []uint8
	alpha     float64
}

// New allocates a sketch with 2^precision zeroed registers. Precision is
// clamped to [MinPrecision, MaxPrecision].
func New(precision int) *Sketch {
	if precision < MinPrecision {
		precision = MinPrecision
	}
	if precision > MaxPrecision {
		precision = MaxPrecision
	}

	p := uint8(precision)
	m := uint32(1) << p

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
		precision: p,
		m:         m,
		registers: make([]uint8, m),
		alpha:     alpha,
	}
}

// Precision returns the sketch's precision p (log2 of the register count).
func (s *Sketch) Precision() int { return int(s.precision) }

// Add hashes the element to a 64-bit value, selects a register with the low p
// bits and keeps the maximum first-1-bit rank of the remaining bits. Adding
// the same element again never changes any register.
func (s *Sketch) Add(element []byte) {
	hash := xxhash.Sum64(element)
	idx := uint32(hash) & (s.m - 1)
	w := hash >> s.precision

	// Rank of the first 1-bit within the remaining 64-p bits. An all-zero
	// remainder takes the maximum rank.
	var rank uint8
	if w == 0 {
		rank = 64 - s.precision + 1
	} else {
		rank = uint8(bits.LeadingZeros64(w)) - s.precision + 1
	}

	if rank > s.registers[idx] {
		s.registers[idx] = rank
	}
}

// AddString is Add for string elements.
func (s *Sketch) AddString(element string) {
	s.Add([]byte(element))
}

// Estimate returns the bias-corrected harmonic-mean cardinality estimate.
// It is deterministic given the register contents.
func (s *Sketch) Estimate() float64 {
	sum := 0.0
	zeros := 0
	for _, v := range s.registers {
		sum += 1.0 / float64(uint64(1)<<v)
		if v == 0 {
			zeros++
		}
	}

	m := float64(s.m)
	estimate := s.alpha * m * m / sum

	// Small-range correction: linear counting while empty registers remain.
	if estimate <= 2.5*m && zeros != 0 {
		return m * math.Log(m/float64(zeros))
	}

	// Large-range correction for the 64-bit hash space.
	const two64 float64 = 1 << 64
	if estimate > two64/30 {
		return -two64 * math.Log(1-estimate/two64)
	}

	return estimate
}

// Merge folds other into s by taking the elementwise register maximum. The
// receiver is the merge target and the only sketch modified; other is left
// untouched. Merge is commutative, associative and idempotent.
func (s *Sketch) Merge(other *Sketch) error {
	if other == nil {
		return nil
	}
	if other.precision != s.precision {
		return fmt.Errorf("%w: %d vs %d", ErrPrecisionMismatch, s.precision, other.precision)
	}
	for i, v := range other.registers {
		if v > s.registers[i] {
			s.registers[i] = v
		}
	}
	return nil
}

// Clone returns an independent copy of the sketch.
func (s *Sketch) Clone() *Sketch {
	c := &Sketch{
		precision: s.precision,
		m:         s.m,
		registers: make([]uint8, len(s.registers)),
		alpha:     s.alpha,
	}
	copy(c.registers, s.registers)
	return c
}
