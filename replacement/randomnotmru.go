package replacement

import (
	"bufio"
	"fmt"
	"io"

	"github.com/sarchlab/cachecore/prng"
)

// RandomNotMRU picks way = (1 + MRU + rand() mod (NumWays-1)) mod NumWays,
// guaranteeing the current MRU way is never evicted. Like Random, it
// asserts rather than accommodates a non-empty reserved mask.
type RandomNotMRU struct {
	numWays int
	rng     *prng.Source
	mru     []int
}

// NewRandomNotMRU constructs the policy. NumWays must exceed 1.
func NewRandomNotMRU(numSets, numWays int, rng *prng.Source) (*RandomNotMRU, error) {
	if err := checkNumWays(numWays); err != nil {
		return nil, err
	}
	if numWays <= 1 {
		return nil, fmt.Errorf("replacement: RandomNotMRU requires NumWays > 1, got %d", numWays)
	}
	return &RandomNotMRU{numWays: numWays, rng: rng, mru: make([]int, numSets)}, nil
}

func (p *RandomNotMRU) GetVictim(setIndex int, reservedMask uint64) (int, error) {
	if reservedMask != 0 {
		return -1, ErrReservationUnsupported
	}
	mru := p.mru[setIndex]
	return (1 + mru + p.rng.Intn(p.numWays-1)) % p.numWays, nil
}

func (p *RandomNotMRU) MakeMRU(setIndex, way int) { p.mru[setIndex] = way }
func (p *RandomNotMRU) MakeLRU(setIndex, way int) {}
func (p *RandomNotMRU) GetMRU(setIndex int) int   { return p.mru[setIndex] }

func (p *RandomNotMRU) GetLRU(setIndex int, reservedMask uint64) (int, error) {
	return p.GetVictim(setIndex, reservedMask)
}

func (p *RandomNotMRU) SaveState(setIndex int, w io.Writer) error {
	_, err := fmt.Fprintf(w, "S: %d mru=%d\n", setIndex, p.mru[setIndex])
	return err
}

func (p *RandomNotMRU) RestoreState(setIndex int, r *bufio.Reader) error {
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
