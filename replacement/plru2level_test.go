package replacement

import (
	"testing"

	"github.com/sarchlab/cachecore/prng"
)

func TestGeneralizedPLRUCollapsesToPlainPLRU(t *testing.T) {
	// randAtTop=1, randAtBottom=1: single group, single-way leaves,
	// behaving exactly like plain PLRU.
	p, err := NewGeneralizedPLRU(1, 8, 1, 1, prng.New(3))
	if err != nil {
		t.Fatal(err)
	}
	plain, err := NewPLRU(1, 8)
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 10; i++ {
		wPlain, errPlain := plain.GetVictim(0, 0)
		wGen, errGen := p.GetVictim(0, 0)
		if (errPlain == nil) != (errGen == nil) || wPlain != wGen {
			t.Fatalf("draw %d diverged: plain=%d(%v) generalized=%d(%v)", i, wPlain, errPlain, wGen, errGen)
		}
		plain.MakeMRU(0, wPlain)
		p.MakeMRU(0, wGen)
	}
}

func TestGeneralizedPLRUReservedGroupSkipped(t *testing.T) {
	// 2 groups of 4 ways each (randAtTop=2, randAtBottom=1). Reserve
	// every way in group 0; the victim must come from group 1.
	p, err := NewGeneralizedPLRU(1, 8, 2, 1, prng.New(5))
	if err != nil {
		t.Fatal(err)
	}
	var reserved uint64
	for w := 0; w < 4; w++ {
		reserved |= 1 << uint(w)
	}
	for i := 0; i < 20; i++ {
		way, err := p.GetVictim(0, reserved)
		if err != nil {
			t.Fatal(err)
		}
		if way < 4 {
			t.Fatalf("victim %d came from the fully-reserved group", way)
		}
	}
}

func TestGeneralizedPLRUBottomTieBreakStaysInLeaf(t *testing.T) {
	// 1 group of 4 ways, randAtBottom=2: two leaves of 2 ways each. Every
	// victim draw must land on one of the two ways composing whichever
	// leaf PLRU currently picks.
	p, err := NewGeneralizedPLRU(1, 4, 1, 2, prng.New(11))
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 30; i++ {
		leaf, _ := scanVictim(p.sets[0].groupBits[0], p.mask1s, p.mask0s, 0)
		way, err := p.GetVictim(0, 0)
		if err != nil {
			t.Fatal(err)
		}
		if way < 0 || way >= 4 {
			t.Fatalf("way %d out of range", way)
		}
		if way/2 != leaf {
			t.Fatalf("way %d is outside leaf %d picked by the tree", way, leaf)
		}
		p.MakeMRU(0, way)
	}
}

func TestGeneralizedPLRURejectsBadShape(t *testing.T) {
	if _, err := NewGeneralizedPLRU(1, 8, 3, 1, prng.New(1)); err == nil {
		t.Fatal("expected error: 8 not divisible by randAtTop=3")
	}
	if _, err := NewGeneralizedPLRU(1, 8, 1, 3, prng.New(1)); err == nil {
		t.Fatal("expected error: group size 8 not divisible by randAtBottom=3")
	}
}
