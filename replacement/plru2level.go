package replacement

import (
	"bufio"
	"fmt"
	"io"

	"github.com/sarchlab/cachecore/prng"
)

// GeneralizedPLRU partitions ways into randAtTop groups of NumWays/randAtTop
// ways, each group a PLRU sub-tree whose leaves each cover randAtBottom
// ways tie-broken randomly. randAtTop == 1 collapses the top-level choice
// to the single group; randAtBottom == 1 collapses the leaf tie-break to
// the sole way it names — so plain PLRU is the randAtTop=1,randAtBottom=1
// special case of this policy.
type GeneralizedPLRU struct {
	numWays      int
	randAtTop    int
	randAtBottom int
	groupSize    int // ways per group = numWays / randAtTop
	leavesPerGrp int // groupSize / randAtBottom
	mask1s       []uint64
	mask0s       []uint64
	sets         []*plru2Set
	rng          *prng.Source
}

type plru2Set struct {
	groupBits []uint64 // one PLRU word per group
}

// NewGeneralizedPLRU constructs the two-level policy. numWays must be
// divisible by randAtTop, and numWays/randAtTop must be divisible by
// randAtBottom, with the resulting leaf count a power of two.
func NewGeneralizedPLRU(numSets, numWays, randAtTop, randAtBottom int, rng *prng.Source) (*GeneralizedPLRU, error) {
	if err := checkNumWays(numWays); err != nil {
		return nil, err
	}
	if randAtTop < 1 || randAtBottom < 1 || numWays%randAtTop != 0 {
		return nil, fmt.Errorf("replacement: invalid randAtTop=%d for NumWays=%d", randAtTop, numWays)
	}
	groupSize := numWays / randAtTop
	if groupSize%randAtBottom != 0 {
		return nil, fmt.Errorf("replacement: invalid randAtBottom=%d for group size %d", randAtBottom, groupSize)
	}
	leaves := groupSize / randAtBottom
	if leaves&(leaves-1) != 0 {
		return nil, fmt.Errorf("replacement: generalized PLRU leaf count %d must be a power of two", leaves)
	}
	m1, m0 := buildPLRUMasks(leaves)
	p := &GeneralizedPLRU{
		numWays: numWays, randAtTop: randAtTop, randAtBottom: randAtBottom,
		groupSize: groupSize, leavesPerGrp: leaves,
		mask1s: m1, mask0s: m0, sets: make([]*plru2Set, numSets), rng: rng,
	}
	for i := range p.sets {
		p.sets[i] = &plru2Set{groupBits: make([]uint64, randAtTop)}
	}
	return p, nil
}

func (p *GeneralizedPLRU) decompose(way int) (group, leaf, bottom int) {
	group = way / p.groupSize
	within := way % p.groupSize
	leaf = within / p.randAtBottom
	bottom = within % p.randAtBottom
	return
}

func (p *GeneralizedPLRU) compose(group, leaf, bottom int) int {
	return group*p.groupSize + leaf*p.randAtBottom + bottom
}

// leafReservedMask extracts the bits of reservedMask belonging to one
// group, re-based to bit 0, at leaf granularity (a leaf is reserved only
// when every one of its randAtBottom ways is reserved).
func (p *GeneralizedPLRU) leafReservedMask(reservedMask uint64, group int) uint64 {
	var leafMask uint64
	for leaf := 0; leaf < p.leavesPerGrp; leaf++ {
		allReserved := true
		for b := 0; b < p.randAtBottom; b++ {
			way := p.compose(group, leaf, b)
			if reservedMask&(uint64(1)<<uint(way)) == 0 {
				allReserved = false
				break
			}
		}
		if allReserved {
			leafMask |= uint64(1) << uint(leaf)
		}
	}
	return leafMask
}

func (p *GeneralizedPLRU) groupFullyReserved(reservedMask uint64, group int) bool {
	for leaf := 0; leaf < p.leavesPerGrp; leaf++ {
		for b := 0; b < p.randAtBottom; b++ {
			way := p.compose(group, leaf, b)
			if reservedMask&(uint64(1)<<uint(way)) == 0 {
				return false
			}
		}
	}
	return true
}

func (p *GeneralizedPLRU) GetVictim(setIndex int, reservedMask uint64) (int, error) {
	groupOrder := make([]int, 0, p.randAtTop)
	for g := 0; g < p.randAtTop; g++ {
		if !p.groupFullyReserved(reservedMask, g) {
			groupOrder = append(groupOrder, g)
		}
	}
	if len(groupOrder) == 0 {
		return -1, ErrAllWaysReserved
	}
	group := groupOrder[0]
	if p.randAtTop > 1 {
		group = groupOrder[p.rng.Intn(len(groupOrder))]
	}

	leafMask := p.leafReservedMask(reservedMask, group)
	leaf, ok := scanVictim(p.sets[setIndex].groupBits[group], p.mask1s, p.mask0s, leafMask)
	if !ok {
		return -1, ErrAllWaysReserved
	}

	if p.randAtBottom == 1 {
		return p.compose(group, leaf, 0), nil
	}
	candidates := make([]int, 0, p.randAtBottom)
	for b := 0; b < p.randAtBottom; b++ {
		way := p.compose(group, leaf, b)
		if reservedMask&(uint64(1)<<uint(way)) == 0 {
			candidates = append(candidates, b)
		}
	}
	if len(candidates) == 0 {
		return -1, ErrAllWaysReserved
	}
	bottom := candidates[p.rng.Intn(len(candidates))]
	return p.compose(group, leaf, bottom), nil
}

func (p *GeneralizedPLRU) MakeMRU(setIndex, way int) {
	group, leaf, _ := p.decompose(way)
	s := p.sets[setIndex]
	s.groupBits[group] = (s.groupBits[group] | p.mask1s[leaf]) & p.mask0s[leaf]
}

func (p *GeneralizedPLRU) MakeLRU(setIndex, way int) {
	group, leaf, _ := p.decompose(way)
	s := p.sets[setIndex]
	full := fullMaskFor(p.leavesPerGrp)
	s.groupBits[group] = (s.groupBits[group] &^ p.mask1s[leaf]) | (full &^ p.mask0s[leaf])
}

func (p *GeneralizedPLRU) GetMRU(setIndex int) int {
	s := p.sets[setIndex]
	bits := (^s.groupBits[0]) & fullMaskFor(p.leavesPerGrp)
	leaf, _ := scanVictim(bits, p.mask1s, p.mask0s, 0)
	return p.compose(0, leaf, 0)
}

func (p *GeneralizedPLRU) GetLRU(setIndex int, reservedMask uint64) (int, error) {
	return p.GetVictim(setIndex, reservedMask)
}

func (p *GeneralizedPLRU) SaveState(setIndex int, w io.Writer) error {
	_, err := fmt.Fprintf(w, "S: %d plru2=", setIndex)
	if err != nil {
		return err
	}
	for g, bits := range p.sets[setIndex].groupBits {
		if g > 0 {
			if _, err := io.WriteString(w, ","); err != nil {
				return err
			}
		}
		if _, err := fmt.Fprintf(w, "0x%x", bits); err != nil {
			return err
		}
	}
	_, err = io.WriteString(w, "\n")
	return err
}

func (p *GeneralizedPLRU) RestoreState(setIndex int, r *bufio.Reader) error {
	line, err := r.ReadString('\n')
	if err != nil && line == "" {
		return err
	}
	var idx int
	var payload string
	if _, err := fmt.Sscanf(line, "S: %d plru2=%s", &idx, &payload); err != nil {
		return ErrMalformedCheckpoint
	}
	if idx != setIndex {
		return ErrMalformedCheckpoint
	}
	groups := make([]uint64, 0, p.randAtTop)
	start := 0
	for i := 0; i <= len(payload); i++ {
		if i == len(payload) || payload[i] == ',' {
			var bits uint64
			if _, err := fmt.Sscanf(payload[start:i], "0x%x", &bits); err != nil {
				return ErrMalformedCheckpoint
			}
			groups = append(groups, bits)
			start = i + 1
		}
	}
	if len(groups) != p.randAtTop {
		return ErrMalformedCheckpoint
	}
	p.sets[setIndex] = &plru2Set{groupBits: groups}
	return nil
}
