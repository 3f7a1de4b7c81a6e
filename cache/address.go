package cache

import "fmt"

// addressLayout holds the derived constants used by the Classical and
// Shifted address-decomposition helpers. It is computed once from the
// cache's construction parameters.
type addressLayout struct {
	numLinesPerWay int

	indexMask uint64
	posMask   uint64

	classicalIndexShift uint
	classicalTagMask    uint64

	shiftedIndexShift uint
	shiftedTagMask    uint64
}

func ceilPow2(n int) uint64 {
	if n <= 1 {
		return 1
	}
	p := uint64(1)
	for p < uint64(n) {
		p <<= 1
	}
	return p
}

func log2Exact(n int) (uint, error) {
	if n <= 0 || n&(n-1) != 0 {
		return 0, fmt.Errorf("cache: %d is not a power of two", n)
	}
	var shift uint
	for (1 << shift) < n {
		shift++
	}
	return shift, nil
}

func newAddressLayout(numLinesPerWay, numObjectsPerLine int) (*addressLayout, error) {
	objShift, err := log2Exact(numObjectsPerLine)
	if err != nil {
		return nil, fmt.Errorf("cache: NumObjectsPerLine must be a power of two: %w", err)
	}
	linesCeil := ceilPow2(numLinesPerWay)

	l := &addressLayout{
		numLinesPerWay: numLinesPerWay,
		indexMask:      linesCeil - 1,
		posMask:        uint64(numObjectsPerLine) - 1,

		classicalIndexShift: objShift + 3,
		classicalTagMask:    ^((linesCeil * uint64(numObjectsPerLine) * 8) - 1),

		shiftedIndexShift: objShift,
		shiftedTagMask:    ^((linesCeil * uint64(numObjectsPerLine)) - 1),
	}
	return l, nil
}

// ClassicalIndex extracts the set index from a, accounting for the
// byte-in-quadword (×8) adjustment classical addressing applies.
func (l *addressLayout) ClassicalIndex(a uint64) uint64 {
	return (a >> l.classicalIndexShift) & l.indexMask
}

func (l *addressLayout) ClassicalTag(a uint64) uint64 { return a & l.classicalTagMask }

func (l *addressLayout) ClassicalPos(a uint64) uint64 { return (a >> 3) & l.posMask }

// ClassicalOriginal reconstructs an address from (index, tag). It is a
// contract violation for tag and the shifted index to overlap bits,
// unless tag is the Clear sentinel (which never corresponds to a real
// address and is exempt from the check).
func (l *addressLayout) ClassicalOriginal(index, tag uint64) (uint64, error) {
	shiftedIndex := index << l.classicalIndexShift
	if tag != ClearedTag && tag&shiftedIndex != 0 {
		return 0, fmt.Errorf("cache: classical original() overlap between tag 0x%x and index 0x%x", tag, shiftedIndex)
	}
	return tag | shiftedIndex, nil
}

// ShiftedIndex is the Shifted-addressing analogue of ClassicalIndex, with
// no byte-in-quadword adjustment. The result is asserted in range so that
// non-power-of-two capacities still reject out-of-bounds indices.
func (l *addressLayout) ShiftedIndex(a uint64) (uint64, error) {
	idx := (a >> l.shiftedIndexShift) & l.indexMask
	if idx >= uint64(l.numLinesPerWay) {
		return 0, fmt.Errorf("cache: shifted index %d out of range [0,%d)", idx, l.numLinesPerWay)
	}
	return idx, nil
}

func (l *addressLayout) ShiftedTag(a uint64) uint64 { return a & l.shiftedTagMask }

func (l *addressLayout) ShiftedPos(a uint64) uint64 { return a & l.posMask }

func (l *addressLayout) ShiftedOriginal(index, tag uint64) (uint64, error) {
	shiftedIndex := index << l.shiftedIndexShift
	if tag != ClearedTag && tag&shiftedIndex != 0 {
		return 0, fmt.Errorf("cache: shifted original() overlap between tag 0x%x and index 0x%x", tag, shiftedIndex)
	}
	return tag | shiftedIndex, nil
}
