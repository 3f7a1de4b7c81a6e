package replacement

import (
	"bufio"
	"fmt"
	"io"

	"github.com/sarchlab/cachecore/prng"
)

// Random picks way = rand() mod NumWays. It has no way to honor a
// reserved mask: the source asserts the mask is empty rather than
// retrying or falling back, and this follows that choice (see the
// decision recorded in DESIGN.md) rather than silently looping until a
// free way turns up.
type Random struct {
	numWays int
	rng     *prng.Source
	mru     []int // last-selected way per set, tracked only so GetMRU has an answer
}

// NewRandom constructs a Random policy for numSets sets of numWays ways.
func NewRandom(numSets, numWays int, rng *prng.Source) (*Random, error) {
	if err := checkNumWays(numWays); err != nil {
		return nil, err
	}
	return &Random{numWays: numWays, rng: rng, mru: make([]int, numSets)}, nil
}

func (p *Random) GetVictim(setIndex int, reservedMask uint64) (int, error) {
	if reservedMask != 0 {
		return -1, ErrReservationUnsupported
	}
	return p.rng.Intn(p.numWays), nil
}

func (p *Random) MakeMRU(setIndex, way int) { p.mru[setIndex] = way }
func (p *Random) MakeLRU(setIndex, way int) {}
func (p *Random) GetMRU(setIndex int) int   { return p.mru[setIndex] }

func (p *Random) GetLRU(setIndex int, reservedMask uint64) (int, error) {
	return p.GetVictim(setIndex, reservedMask)
}

func (p *Random) SaveState(setIndex int, w io.Writer) error {
	_, err := fmt.Fprintf(w, "S: %d mru=%d\n", setIndex, p.mru[setIndex])
	return err
}

func (p *Random) RestoreState(setIndex int, r *bufio.Reader) error {
	line, err := r.ReadString('\n')
	if err != nil && line == "" {
		return err
	}
	var idx, mru int
	if _, err := fmt.Sscanf(line, "S: %d mru=%d", &idx, &mru); err != nil {
		return ErrMalformedCheckpoint
	}
	if idx != setIndex {
		return ErrMalformedCheckpoint
	}
	p.mru[setIndex] = mru
	return nil
}
