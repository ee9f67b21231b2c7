package zorder

import "fmt"

// Scratch holds the working buffers of one BIGMIN computation. It is owned by
// a single scan and reused for every record that scan examines.
type Scratch struct {
	min     []byte
	max     []byte
	bigmin  []byte
	found   bool
	decided []bool
}

// NewScratch allocates buffers for interleaved keys of the given byte length.
func NewScratch(length int) *Scratch {
	return &Scratch{
		min:    make([]byte, length),
		max:    make([]byte, length),
		bigmin: make([]byte, length),
	}
}

func (s *Scratch) reset(searchMin, searchMax []byte) {
	copy(s.min, searchMin)
	copy(s.max, searchMax)
	clear(s.bigmin)
	s.found = false
}

// ─── Decision table ───────────────────────────────────────────────────────────

type step uint8

const (
	stepContinue step = iota
	stepFinish
	stepInvalid
)

// bitCase handles one row of the decision table for bit position bit.
type bitCase func(s *Scratch, bit, dims, totalBits int) step

// decisionTable is indexed by d<<2 | min<<1 | max, where d, min and max are
// the bits of the dividing record, the current min and the current max.
var decisionTable = [8]bitCase{
	0b000: case000,
	0b001: case001,
	0b010: case010,
	0b011: case011,
	0b100: case100,
	0b101: case101,
	0b110: case110,
	0b111: case111,
}

// case000: record, min and max agree on 0.
func case000(*Scratch, int, int, int) step { return stepContinue }

// case001: the record lies in the lower half of the split. The smallest key
// of the upper half is the best candidate so far; keep searching the lower
// half with max shrunk to its top.
func case001(s *Scratch, bit, dims, totalBits int) step {
	copy(s.bigmin, s.min)
	loadHigh(s.bigmin, bit, dims, totalBits)
	loadLow(s.max, bit, dims, totalBits)
	s.found = true
	return stepContinue
}

func case010(*Scratch, int, int, int) step { return stepInvalid }

// case011: the whole remaining region lies above the record.
func case011(s *Scratch, _, _, _ int) step {
	copy(s.bigmin, s.min)
	s.found = true
	return stepFinish
}

// case100: the whole remaining region lies below the record.
func case100(*Scratch, int, int, int) step { return stepFinish }

// case101: the record lies in the upper half; continue there.
func case101(s *Scratch, bit, dims, totalBits int) step {
	loadHigh(s.min, bit, dims, totalBits)
	return stepContinue
}

func case110(*Scratch, int, int, int) step { return stepInvalid }

// case111: record, min and max agree on 1.
func case111(*Scratch, int, int, int) step { return stepContinue }

// loadHigh sets bit to 1 and clears the lower-order bits of the same
// dimension, which sit dims apart in the interleaved stream (1000...).
func loadHigh(arr []byte, bit, dims, totalBits int) {
	SetBit(arr, bit, true)
	for j := bit + dims; j < totalBits; j += dims {
		SetBit(arr, j, false)
	}
}

// loadLow clears bit and sets the lower-order bits of the same dimension
// (0111...).
func loadLow(arr []byte, bit, dims, totalBits int) {
	SetBit(arr, bit, false)
	for j := bit + dims; j < totalBits; j += dims {
		SetBit(arr, j, true)
	}
}

func bitIndex(b bool) int {
	if b {
		return 1
	}
	return 0
}

// validateBox checks min <= max in every dimension. The first bit in which a
// dimension's corners differ decides it.
func validateBox(s *Scratch, searchMin, searchMax []byte, dims, totalBits int) error {
	if cap(s.decided) < dims {
		s.decided = make([]bool, dims)
	}
	decided := s.decided[:dims]
	clear(decided)
	for i := 0; i < totalBits; i++ {
		d := i % dims
		if decided[d] {
			continue
		}
		mn, mx := GetBit(searchMin, i), GetBit(searchMax, i)
		switch {
		case mn && !mx:
			return fmt.Errorf("%w: dimension %d", ErrInvalidRange, d)
		case !mn && mx:
			decided[d] = true
		}
	}
	return nil
}

func checkLengths(s *Scratch, dividing, searchMin, searchMax []byte, dims, totalBits int) error {
	if len(dividing) != len(searchMin) || len(dividing) != len(searchMax) || len(s.bigmin) != len(dividing) {
		return fmt.Errorf("%w: record %d, min %d, max %d, scratch %d",
			ErrLengthMismatch, len(dividing), len(searchMin), len(searchMax), len(s.bigmin))
	}
	if dims < 1 || totalBits < 0 || totalBits > len(dividing)*8 {
		return fmt.Errorf("%w: %d dimensions over %d bits in %d bytes",
			ErrLengthMismatch, dims, totalBits, len(dividing))
	}
	return nil
}

// ComputeBigMin returns the smallest interleaved key >= dividing that lies
// inside the box spanned by searchMin and searchMax. found is false when no
// such key exists. dims is the number of interleaved dimensions and
// totalBits the number of significant bits; trailing padding bits are left
// untouched.
//
// The returned slice aliases s and is valid until the next call with s.
func ComputeBigMin(s *Scratch, dividing, searchMin, searchMax []byte, dims, totalBits int) ([]byte, bool, error) {
	if err := checkLengths(s, dividing, searchMin, searchMax, dims, totalBits); err != nil {
		return nil, false, err
	}
	if err := validateBox(s, searchMin, searchMax, dims, totalBits); err != nil {
		return nil, false, err
	}
	return computeBigMin(s, dividing, searchMin, searchMax, dims, totalBits)
}

func computeBigMin(s *Scratch, dividing, searchMin, searchMax []byte, dims, totalBits int) ([]byte, bool, error) {
	s.reset(searchMin, searchMax)
	for i := 0; i < totalBits; i++ {
		c := bitIndex(GetBit(dividing, i))<<2 | bitIndex(GetBit(s.min, i))<<1 | bitIndex(GetBit(s.max, i))
		switch decisionTable[c](s, i, dims, totalBits) {
		case stepContinue:
			continue
		case stepInvalid:
			return nil, false, fmt.Errorf("%w: bit %d", ErrInvalidRange, i)
		}
		return s.bigmin, s.found, nil
	}

	// Every bit was consistent with the box, so dividing lies inside it.
	copy(s.bigmin, dividing)
	s.found = true
	return s.bigmin, true, nil
}

// Calculator binds a search box and its scratch buffers.
type Calculator struct {
	searchMin []byte
	searchMax []byte
	dims      int
	totalBits int
	scratch   *Scratch
}

// NewCalculator returns a Calculator for the box [searchMin, searchMax].
// Both corners are unsigned interleaved keys of equal length.
func NewCalculator(searchMin, searchMax []byte, dims, totalBits int) (*Calculator, error) {
	if len(searchMin) != len(searchMax) {
		return nil, fmt.Errorf("%w: min %d, max %d", ErrLengthMismatch, len(searchMin), len(searchMax))
	}
	s := NewScratch(len(searchMin))
	if err := checkLengths(s, searchMin, searchMin, searchMax, dims, totalBits); err != nil {
		return nil, err
	}
	if err := validateBox(s, searchMin, searchMax, dims, totalBits); err != nil {
		return nil, err
	}
	return &Calculator{
		searchMin: append([]byte(nil), searchMin...),
		searchMax: append([]byte(nil), searchMax...),
		dims:      dims,
		totalBits: totalBits,
		scratch:   s,
	}, nil
}

// BigMin computes BIGMIN for dividing. See ComputeBigMin; the box was
// validated when c was built.
func (c *Calculator) BigMin(dividing []byte) ([]byte, bool, error) {
	if err := checkLengths(c.scratch, dividing, c.searchMin, c.searchMax, c.dims, c.totalBits); err != nil {
		return nil, false, err
	}
	return computeBigMin(c.scratch, dividing, c.searchMin, c.searchMax, c.dims, c.totalBits)
}
