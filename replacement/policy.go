// Package replacement implements the family of victim-selection policies
// shared by every cache: true LRU, tree pseudo-LRU, the generalized
// two-level PLRU, Random, Random-Not-MRU, and the EV7 not-recently-touched
// scheme. Each keeps its own per-set metadata and is driven entirely
// through the Policy interface, so cache.Cache never special-cases a
// particular policy.
package replacement

import (
	"bufio"
	"errors"
	"fmt"
	"io"
)

// ErrAllWaysReserved is returned by GetVictim/GetLRU when the policy finds
// no way outside the caller's reserved mask. For LRU and EV7 that means
// every way in the set is reserved; PLRU and GeneralizedPLRU return it as
// soon as the way (or leaf) their tree currently selects is reserved, and
// do not try the set's other ways. cache.Cache treats this as
// a fatal contract violation and logs-then-panics with the set/tag context
// the policy itself does not have.
var ErrAllWaysReserved = errors.New("replacement: all ways reserved")

// ErrReservationUnsupported is returned by Random and Random-Not-MRU when
// called with a non-zero reserved mask. The source asserts rather than
// loops here; this module follows that choice (see the Random type's doc
// in random.go).
var ErrReservationUnsupported = errors.New("replacement: policy does not support a reserved mask")

// ErrMalformedCheckpoint is returned by RestoreState when the input does
// not match the policy's expected save-state grammar.
var ErrMalformedCheckpoint = errors.New("replacement: malformed LRU checkpoint line")

// Policy is the shared contract every replacement scheme implements.
// setIndex selects the per-set metadata the policy owns internally;
// callers never see it directly.
type Policy interface {
	// GetVictim selects a way to evict from the set, honoring
	// reservedMask (bit i set means way i must not be chosen).
	GetVictim(setIndex int, reservedMask uint64) (int, error)

	// MakeMRU records way as the most-recently-used in the set.
	// Idempotent when way is already MRU.
	MakeMRU(setIndex, way int)

	// MakeLRU records way as the least-recently-used in the set.
	// Idempotent when way is already LRU.
	MakeLRU(setIndex, way int)

	// GetMRU returns the current most-recently-used way in the set.
	GetMRU(setIndex int) int

	// GetLRU returns the least-recently-used way not excluded by
	// reservedMask.
	GetLRU(setIndex int, reservedMask uint64) (int, error)

	// SaveState writes the set's replacement metadata in the policy's
	// checkpoint grammar.
	SaveState(setIndex int, w io.Writer) error

	// RestoreState reads one set's worth of replacement metadata,
	// previously produced by SaveState, advancing r past it.
	RestoreState(setIndex int, r *bufio.Reader) error
}

// checkNumWays validates that numWays is in the legal range (1..255, matching
// the Line State way-field width) and returns a descriptive error if not.
func checkNumWays(numWays int) error {
	if numWays < 1 || numWays > 255 {
		return fmt.Errorf("replacement: NumWays %d out of range [1,255]", numWays)
	}
	return nil
}
