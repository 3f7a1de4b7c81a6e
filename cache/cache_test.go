package cache_test

import (
	"bufio"
	"bytes"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/akita/v4/mem/vm"
	"github.com/sarchlab/cachecore/cache"
	"github.com/sarchlab/cachecore/cachemgr"
	"github.com/sarchlab/cachecore/replacement"
)

func newLRUCache(numWays, numSets, numObjects int, opts ...cache.Option) *cache.Cache[struct{}, byte] {
	policy, err := replacement.NewLRU(numSets, numWays)
	Expect(err).NotTo(HaveOccurred())
	c, err := cache.New[struct{}, byte](numWays, numSets, numObjects, policy, opts...)
	Expect(err).NotTo(HaveOccurred())
	return c
}

var _ = Describe("Cache", func() {
	var owner vm.PID = 7

	Describe("LRU eviction on fill", func() {
		It("evicts the true LRU way and installs the new fill as MRU", func() {
			c := newLRUCache(4, 1, 1)
			tags := []uint64{0xA0, 0xA1, 0xA2, 0xA3}
			ways := make([]int, len(tags))
			for i, t := range tags {
				Expect(c.GetLineState(0, t, owner, false)).To(BeNil())
				way := c.WarmUpFill(0, t, -1, cache.ExclusiveClean, owner)
				ways[i] = way
				c.MakeMRU(0, way)
			}

			// Access T0 again (touch it, making it MRU).
			line := c.GetLineState(0, tags[0], owner, false)
			Expect(line).NotTo(BeNil())
			c.MakeMRU(0, line.GetWay())

			// Fill T4: the way holding T1 (the new LRU) must be evicted.
			t4 := uint64(0xA4)
			victimBefore := c.GetVictimState(0, true)
			Expect(victimBefore.GetTag()).To(Equal(tags[1]))

			newWay := c.WarmUpFill(0, t4, -1, cache.ExclusiveClean, owner)
			c.MakeMRU(0, newWay)

			Expect(c.GetLineState(0, tags[0], owner, false)).NotTo(BeNil())
			Expect(c.GetLineState(0, tags[1], owner, false)).To(BeNil())
			Expect(c.GetLineState(0, tags[2], owner, false)).NotTo(BeNil())
			Expect(c.GetLineState(0, tags[3], owner, false)).NotTo(BeNil())
			Expect(c.GetLineState(0, t4, owner, false)).NotTo(BeNil())
			Expect(c.GetMRUState(0).GetTag()).To(Equal(t4))
		})
	})

	Describe("reserved ways excluded from victim selection", func() {
		It("never picks a RESERVED way as victim", func() {
			c := newLRUCache(2, 1, 1)
			way0 := c.GetWayLineState(0, 0)
			way0.SetTag(0x10)
			way0.SetStatus(cache.Reserved)

			victim := c.GetVictimState(0, true)
			Expect(victim.GetWay()).To(Equal(1))

			way1 := c.GetWayLineState(0, 1)
			way1.SetTag(0x20)
			way1.SetStatus(cache.Shared)
			way1.SetValidBit(0)

			victim2 := c.GetVictimState(0, false)
			Expect(victim2.GetWay()).To(Equal(1))
		})
	})

	Describe("warm resolution with no peers", func() {
		It("promotes a warm way to a synthesized hit and publishes to the manager", func() {
			mgr := cachemgr.New()
			c := newLRUCache(2, 1, 1,
				cache.WithWarmUp(100, cache.Shared),
				cache.WithSeed(1),
				cache.WithManager(mgr, "L2", "core0"),
			)

			line := c.GetLineState(0, 0xABC, owner, false)
			Expect(line).NotTo(BeNil())
			Expect(line.GetStatus()).To(Equal(cache.Shared))
			Expect(line.GetOwnerID()).To(Equal(owner))
			for i := 0; i < c.NumObjectsPerLine(); i++ {
				Expect(line.GetValidBit(i)).To(BeTrue())
			}
			Expect(mgr.GetStatus("L2", 0, 0xABC)).To(Equal(cachemgr.StatusShared))
		})
	})

	Describe("warm resolution suppressed by a peer", func() {
		It("reports a miss and invalidates the drawn warm way without promoting it", func() {
			mgr := cachemgr.New()
			mgr.SetStatus("L2", "peer", 0, 0xABC, cachemgr.StatusExclusiveClean)

			c := newLRUCache(2, 1, 1,
				cache.WithWarmUp(100, cache.Shared),
				cache.WithSeed(1),
				cache.WithManager(mgr, "L2", "core0"),
			)

			line := c.GetLineState(0, 0xABC, owner, false)
			Expect(line).To(BeNil())

			way := c.GetWayLineState(0, 0)
			anotherWay := c.GetWayLineState(0, 1)
			invalidated := way
			if way.GetStatus() != cache.Invalid {
				invalidated = anotherWay
			}
			Expect(invalidated.GetTag()).To(Equal(uint64(0xABC)))
			Expect(invalidated.GetStatus()).To(Equal(cache.Invalid))
		})
	})

	Describe("checkpoint round-trip", func() {
		It("restores every line field-for-field except RESERVED lines, which become INVALID", func() {
			c := newLRUCache(4, 16, 1)

			c.GetWayLineState(0, 0).SetTag(0x100)
			c.GetWayLineState(0, 0).SetStatus(cache.Shared)
			c.GetWayLineState(0, 0).SetValidBit(0)

			c.GetWayLineState(0, 1).SetTag(0x200)
			c.GetWayLineState(0, 1).SetStatus(cache.ExclusiveDirty)
			c.GetWayLineState(0, 1).SetValidBit(0)
			c.GetWayLineState(0, 1).SetDirtyBit(0)
			c.GetWayLineState(0, 1).SetOwnerID(vm.PID(42))

			c.GetWayLineState(0, 2).SetTag(0x300)
			c.GetWayLineState(0, 2).SetStatus(cache.Reserved)

			var buf bytes.Buffer
			Expect(c.SaveCacheState(&buf, false)).To(Succeed())

			c2 := newLRUCache(4, 16, 1)
			Expect(c2.RestoreCacheState(bufio.NewReader(&buf))).To(Succeed())

			Expect(c2.GetWayLineState(0, 0).GetTag()).To(Equal(uint64(0x100)))
			Expect(c2.GetWayLineState(0, 0).GetStatus()).To(Equal(cache.Shared))
			Expect(c2.GetWayLineState(0, 0).GetValidBit(0)).To(BeTrue())

			Expect(c2.GetWayLineState(0, 1).GetTag()).To(Equal(uint64(0x200)))
			Expect(c2.GetWayLineState(0, 1).GetStatus()).To(Equal(cache.ExclusiveDirty))
			Expect(c2.GetWayLineState(0, 1).GetDirtyBit(0)).To(BeTrue())
			Expect(c2.GetWayLineState(0, 1).GetOwnerID()).To(Equal(vm.PID(42)))

			Expect(c2.GetWayLineState(0, 2).GetStatus()).To(Equal(cache.Invalid))
		})
	})

	Describe("associativity uniqueness", func() {
		It("never reports two non-invalid ways sharing a tag (enforced by findWay's fatal check)", func() {
			c := newLRUCache(4, 1, 1)
			c.WarmUpFill(0, 0x1, -1, cache.Shared, owner)
			Expect(c.GetLineState(0, 0x1, owner, false)).NotTo(BeNil())
			Expect(c.GetLineState(0, 0x2, owner, false)).To(BeNil())
		})
	})

	Describe("sticky PERFECT", func() {
		It("never leaves PERFECT once set", func() {
			c := newLRUCache(1, 1, 1)
			line := c.GetWayLineState(0, 0)
			line.SetStatus(cache.Perfect)
			line.SetStatus(cache.Shared)
			line.SetStatus(cache.Invalid)
			Expect(line.GetStatus()).To(Equal(cache.Perfect))
		})
	})

	Describe("reservation honoring", func() {
		It("GetVictimState never returns a RESERVED way when an alternative exists", func() {
			c := newLRUCache(3, 1, 1)
			c.GetWayLineState(0, 0).SetStatus(cache.Reserved)
			c.GetWayLineState(0, 0).SetTag(0x1)
			c.GetWayLineState(0, 1).SetStatus(cache.Reserved)
			c.GetWayLineState(0, 1).SetTag(0x2)

			victim := c.GetVictimState(0, false)
			Expect(victim.GetWay()).To(Equal(2))
		})
	})

	Describe("address round-trip", func() {
		It("reconstructs the original address from (index, tag) for classical addressing", func() {
			c := newLRUCache(4, 64, 8)
			addr := uint64(0x123450)
			idx := c.Addressing().ClassicalIndex(addr)
			tag := c.Addressing().ClassicalTag(addr)
			original, err := c.Addressing().ClassicalOriginal(idx, tag)
			Expect(err).NotTo(HaveOccurred())
			Expect(original).To(Equal(addr &^ ((8 * 8) - 1)))
		})
	})

	Describe("valid-dirty coupling via SetLineData", func() {
		It("writes the payload and sets the dirty bit of each object whose valid bit is set", func() {
			c := newLRUCache(2, 1, 2, cache.WithData())
			line := c.GetWayLineState(0, 0)
			line.SetStatus(cache.Shared)
			line.SetValidBit(0)
			line.SetValidBit(1)
			c.SetLineData(0, 0, []byte{0xAA, 0xBB})
			Expect(c.GetLineData(0, 0)).To(Equal([]byte{0xAA, 0xBB}))
			Expect(line.GetDirtyBit(0)).To(BeTrue())
		})
	})

	Describe("ClearAllLines", func() {
		It("invalidates every line without disturbing other fields", func() {
			c := newLRUCache(2, 1, 1)
			line := c.GetWayLineState(0, 0)
			line.SetTag(0x99)
			line.SetStatus(cache.Shared)
			c.ClearAllLines()
			Expect(line.GetStatus()).To(Equal(cache.Invalid))
			Expect(line.GetTag()).To(Equal(uint64(0x99)))
		})
	})
})
