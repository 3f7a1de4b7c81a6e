package cache

import (
	"fmt"

	"github.com/sarchlab/akita/v4/mem/vm"
	"github.com/sarchlab/cachecore/cachemgr"
	"github.com/sarchlab/cachecore/prng"
	"github.com/sarchlab/cachecore/replacement"
	"github.com/sarchlab/cachecore/trace"
)

// Cache is the generic set-associative cache body: owner of the tag/data
// arrays and a replacement policy, exposing the associative lookup,
// warm-up fill, victim/MRU/LRU queries, address decomposition, and
// checkpoint save/restore that make up the substrate every level of a
// memory hierarchy is built from.
//
// T is the opaque per-line info type; D is the data array's element type
// (unused, and the array left empty, when the cache is not declared
// with-data).
type Cache[T any, D any] struct {
	level, levelInstance string

	numWays           int
	numSets           int
	numObjectsPerLine int
	withData          bool

	tags *tagArray[T]
	data *dataArray[D]

	policy replacement.Policy
	addr   *addressLayout

	warmPercent         int
	initialWarmedStatus Status

	rng     *prng.Source
	manager *cachemgr.Manager

	cfg *config
}

// New constructs a cache with numWays ways, numSets sets (the source's
// "NumLinesPerWay", since each way holds that many lines), and
// numObjectsPerLine sub-objects per line (must be a power of two), driven
// by the given replacement policy, which must already be sized for
// (numSets, numWays).
func New[T any, D any](numWays, numSets, numObjectsPerLine int, policy replacement.Policy, opts ...Option) (*Cache[T, D], error) {
	if numWays < 1 || numWays > 255 {
		return nil, fmt.Errorf("cache: NumWays %d out of range [1,255]", numWays)
	}
	layout, err := newAddressLayout(numSets, numObjectsPerLine)
	if err != nil {
		return nil, err
	}

	cfg := defaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}

	seed := cfg.seed
	if !cfg.hasSeed {
		seed = prng.NextDefaultSeed()
	}

	c := &Cache[T, D]{
		level:               cfg.level,
		levelInstance:       cfg.levelInstance,
		numWays:             numWays,
		numSets:             numSets,
		numObjectsPerLine:   numObjectsPerLine,
		withData:            cfg.withData,
		tags:                newTagArray[T](numSets, numWays, numObjectsPerLine),
		policy:              policy,
		addr:                layout,
		warmPercent:         cfg.warmPercent,
		initialWarmedStatus: cfg.initialWarmedStatus,
		rng:                 prng.New(seed),
		manager:             cfg.manager,
		cfg:                 cfg,
	}
	if cfg.withData {
		c.data = newDataArray[D](numSets, numWays, numObjectsPerLine)
	}
	if c.warmPercent > 0 {
		for s := 0; s < numSets; s++ {
			for w := 0; w < numWays; w++ {
				c.tags.at(s, w).SetStatus(Warm)
			}
		}
	}
	return c, nil
}

// fatal logs a contract violation at Panic level and aborts the process;
// zerolog's Panic level panics from within Msg, so this never returns.
func (c *Cache[T, D]) fatal(msg string, fields map[string]interface{}) {
	ev := c.cfg.logger.Panic()
	for k, v := range fields {
		ev = ev.Interface(k, v)
	}
	ev.Msg(msg)
}

func (c *Cache[T, D]) checkIndex(index int) {
	if index < 0 || index >= c.numSets {
		c.fatal("index out of range", map[string]interface{}{"level": c.level, "index": index, "numSets": c.numSets})
	}
}

func (c *Cache[T, D]) checkWay(way int) {
	if way < 0 || way >= c.numWays {
		c.fatal("way out of range", map[string]interface{}{"level": c.level, "way": way, "numWays": c.numWays})
	}
}

func (c *Cache[T, D]) managerStatus(index int, tag uint64) cachemgr.Status {
	if c.manager == nil {
		return cachemgr.StatusInvalid
	}
	return c.manager.GetStatus(c.level, uint64(index), tag)
}

func (c *Cache[T, D]) managerSet(index int, tag uint64, s cachemgr.Status) {
	if c.manager == nil {
		return
	}
	c.manager.SetStatus(c.level, c.levelInstance, uint64(index), tag, s)
}

func toManagerStatus(s Status) cachemgr.Status {
	switch s {
	case Invalid:
		return cachemgr.StatusInvalid
	case ExclusiveDirty:
		return cachemgr.StatusExclusiveDirty
	case ExclusiveClean:
		return cachemgr.StatusExclusiveClean
	default:
		return cachemgr.StatusShared
	}
}

// findWay performs the associative tag scan described by the component
// design: at most one non-invalid-non-reserved match and at most one
// reserved match per set per tag; any other outcome is a fatal contract
// violation. warmOwner and isProbe gate warm-up resolution.
func (c *Cache[T, D]) findWay(index int, tag uint64, warmOwner vm.PID, isProbe bool) int {
	c.checkIndex(index)

	returnWay := -1
	returnWayReserved := -1
	anyInvalidMatch := false
	var warmWays []int

	for w := 0; w < c.numWays; w++ {
		line := c.tags.at(index, w)
		if line.GetTag() == tag {
			switch line.GetStatus() {
			case Invalid:
				anyInvalidMatch = true
			case Reserved:
				if returnWayReserved != -1 {
					c.fatal("duplicate reserved tag match in set", map[string]interface{}{
						"level": c.level, "set": index, "tag": tag,
						"way1": returnWayReserved, "way2": w,
						"status1": c.tags.at(index, returnWayReserved).GetStatus().String(),
						"status2": line.GetStatus().String(),
					})
				}
				returnWayReserved = w
			default:
				if returnWay != -1 {
					c.fatal("duplicate tag match in set", map[string]interface{}{
						"level": c.level, "set": index, "tag": tag,
						"way1": returnWay, "way2": w,
						"status1": c.tags.at(index, returnWay).GetStatus().String(),
						"status2": line.GetStatus().String(),
					})
				}
				returnWay = w
			}
		}
		if !isProbe && line.GetStatus() == Warm {
			warmWays = append(warmWays, w)
		}
	}

	if returnWay != -1 {
		return returnWay
	}
	if returnWayReserved != -1 {
		return returnWayReserved
	}
	if anyInvalidMatch {
		return -1
	}
	if len(warmWays) == 0 {
		return -1
	}
	return c.resolveWarmUp(index, tag, warmOwner, warmWays)
}

// resolveWarmUp runs the warm-up lottery against the cache's private
// PRNG: a random warm way is drawn, and promoted to a synthesized hit
// only when the percentage draw succeeds and no peer already holds the
// line (checked via the Cache Manager); otherwise the drawn way's tag is
// updated and its status dropped to Invalid, and the access reports MISS.
func (c *Cache[T, D]) resolveWarmUp(index int, tag uint64, warmOwner vm.PID, warmWays []int) int {
	warmWay := warmWays[c.rng.Intn(len(warmWays))]

	var r float64
	if c.warmPercent != 100 {
		r = c.rng.Float64() * 100
	}

	line := c.tags.at(index, warmWay)
	if float64(c.warmPercent) > r && c.managerStatus(index, tag) == cachemgr.StatusInvalid {
		line.SetTag(tag)
		line.SetStatus(c.initialWarmedStatus)
		line.SetOwnerID(warmOwner)
		c.managerSet(index, tag, toManagerStatus(c.initialWarmedStatus))
		for j := 0; j < c.numObjectsPerLine; j++ {
			line.SetValidBit(j)
		}
		c.cfg.sink.Record(trace.NewEvent(trace.KindWarmPromote, c.level, index, warmWay, tag))
		return warmWay
	}

	line.SetTag(tag)
	line.SetStatus(Invalid)
	c.cfg.sink.Record(trace.NewEvent(trace.KindWarmSuppress, c.level, index, warmWay, tag))
	return -1
}

// GetLineState wraps findWay and returns the referenced line, or nil on a
// miss.
func (c *Cache[T, D]) GetLineState(index int, tag uint64, warmOwner vm.PID, isProbe bool) *LineState[T] {
	way := c.findWay(index, tag, warmOwner, isProbe)
	if way == -1 {
		return nil
	}
	return c.tags.at(index, way)
}

// GetWayLineState returns the line at (index, way) directly.
func (c *Cache[T, D]) GetWayLineState(index, way int) *LineState[T] {
	c.checkIndex(index)
	c.checkWay(way)
	return c.tags.at(index, way)
}

// GetLRUState returns the line the policy currently considers least
// recently used in the set.
func (c *Cache[T, D]) GetLRUState(index int) *LineState[T] {
	c.checkIndex(index)
	way, err := c.policy.GetLRU(index, 0)
	if err != nil {
		c.fatal("GetLRUState: policy exhaustion", map[string]interface{}{"level": c.level, "set": index, "err": err.Error()})
	}
	return c.tags.at(index, way)
}

// GetMRUState returns the line the policy currently considers most
// recently used in the set.
func (c *Cache[T, D]) GetMRUState(index int) *LineState[T] {
	c.checkIndex(index)
	way := c.policy.GetMRU(index)
	return c.tags.at(index, way)
}

// GetVictimState scans for an Invalid way first (unless invalidFirst is
// false), tracking a reserved mask along the way; absent an invalid way,
// it delegates to the policy.
func (c *Cache[T, D]) GetVictimState(index int, invalidFirst bool) *LineState[T] {
	way := c.GetVictimWayNum(index, invalidFirst)
	return c.tags.at(index, way)
}

// GetVictimWayNum is GetVictimState's way-number-only form, also used
// directly by WarmUpFill.
func (c *Cache[T, D]) GetVictimWayNum(index int, invalidFirst bool) int {
	c.checkIndex(index)
	var reservedMask uint64
	for w := 0; w < c.numWays; w++ {
		status := c.tags.at(index, w).GetStatus()
		if invalidFirst && status == Invalid {
			return w
		}
		if status == Reserved {
			reservedMask |= uint64(1) << uint(w)
		}
	}
	way, err := c.policy.GetVictim(index, reservedMask)
	if err != nil {
		c.fatal("GetVictimState: policy exhaustion", map[string]interface{}{"level": c.level, "set": index, "err": err.Error()})
	}
	return way
}

// WarmUpFill finds-or-fills (index, tag): if a peer cache already holds
// the line (per the Cache Manager), it short-circuits and returns the
// MRU way without touching this cache's own state. Otherwise it performs
// the same associative lookup as GetLineState; on miss, it selects a
// victim (replWay if >= 0, else GetVictimState), retires the victim's old
// manager record, installs (tag, initialState, warmOwner) with every
// valid bit set, and publishes the new record.
func (c *Cache[T, D]) WarmUpFill(index int, tag uint64, replWay int, initialState Status, warmOwner vm.PID) int {
	c.checkIndex(index)

	if c.managerStatus(index, tag) != cachemgr.StatusInvalid {
		return c.GetMRUState(index).GetWay()
	}

	way := c.findWay(index, tag, warmOwner, false)
	if way != -1 {
		return way
	}

	var victim *LineState[T]
	if replWay >= 0 {
		victim = c.GetWayLineState(index, replWay)
	} else {
		victim = c.GetVictimState(index, true)
	}

	if victim.GetStatus() != Invalid {
		c.cfg.sink.Record(trace.NewEvent(trace.KindEvict, c.level, index, victim.GetWay(), victim.GetTag()))
	}
	c.managerSet(index, victim.GetTag(), cachemgr.StatusInvalid)

	victim.SetTag(tag)
	victim.SetStatus(initialState)
	victim.SetOwnerID(warmOwner)
	c.managerSet(index, tag, toManagerStatus(initialState))
	for j := 0; j < c.numObjectsPerLine; j++ {
		victim.SetValidBit(j)
	}

	c.cfg.sink.Record(trace.NewEvent(trace.KindFill, c.level, index, victim.GetWay(), tag))
	return victim.GetWay()
}

// MakeMRU delegates to the policy after validating (index, way).
func (c *Cache[T, D]) MakeMRU(index, way int) {
	c.checkIndex(index)
	c.checkWay(way)
	c.policy.MakeMRU(index, way)
}

// MakeLRU delegates to the policy after validating (index, way).
func (c *Cache[T, D]) MakeLRU(index, way int) {
	c.checkIndex(index)
	c.checkWay(way)
	c.policy.MakeLRU(index, way)
}

// ClearAllLines sets every line's status to Invalid without touching any
// other field (tag, valid/dirty bits, and info all survive).
func (c *Cache[T, D]) ClearAllLines() {
	for s := 0; s < c.numSets; s++ {
		for w := 0; w < c.numWays; w++ {
			c.tags.at(s, w).SetStatus(Invalid)
		}
	}
	c.cfg.sink.Record(trace.NewEvent(trace.KindClear, c.level, -1, -1, 0))
}

// SetLineData writes a full line's payload. It is a no-op when the cache
// was not declared with-data. Every object's valid bit must already be
// set; each write also sets the object's dirty bit.
func (c *Cache[T, D]) SetLineData(index, way int, data []D) {
	if !c.withData {
		return
	}
	c.checkIndex(index)
	c.checkWay(way)
	line := c.tags.at(index, way)
	for i := 0; i < c.numObjectsPerLine; i++ {
		if !line.GetValidBit(i) {
			c.fatal("SetLineData: valid bit must be set before writing", map[string]interface{}{
				"level": c.level, "set": index, "way": way, "object": i,
			})
		}
		line.SetDirtyBit(i)
		c.data.data[index][way][i] = data[i]
	}
}

// SetLineDataAt writes a single sub-object's payload; see SetLineData.
func (c *Cache[T, D]) SetLineDataAt(index, way, object int, value D) {
	if !c.withData {
		return
	}
	c.checkIndex(index)
	c.checkWay(way)
	line := c.tags.at(index, way)
	if !line.GetValidBit(object) {
		c.fatal("SetLineDataAt: valid bit must be set before writing", map[string]interface{}{
			"level": c.level, "set": index, "way": way, "object": object,
		})
	}
	line.SetDirtyBit(object)
	c.data.data[index][way][object] = value
}

// GetLineData reads a full line's payload. It is a no-op (returns nil)
// when the cache was not declared with-data.
func (c *Cache[T, D]) GetLineData(index, way int) []D {
	if !c.withData {
		return nil
	}
	c.checkIndex(index)
	c.checkWay(way)
	out := make([]D, c.numObjectsPerLine)
	copy(out, c.data.data[index][way])
	return out
}

// GetLineDataAt reads a single sub-object's payload; see GetLineData.
func (c *Cache[T, D]) GetLineDataAt(index, way, object int) (D, bool) {
	var zero D
	if !c.withData {
		return zero, false
	}
	c.checkIndex(index)
	c.checkWay(way)
	return c.data.data[index][way][object], true
}

// NumWays, NumSets, NumObjectsPerLine, and WithData expose the cache's
// construction-time shape.
func (c *Cache[T, D]) NumWays() int           { return c.numWays }
func (c *Cache[T, D]) NumSets() int           { return c.numSets }
func (c *Cache[T, D]) NumObjectsPerLine() int { return c.numObjectsPerLine }
func (c *Cache[T, D]) WithData() bool         { return c.withData }

// Addressing exposes the Classical/Shifted address-decomposition helpers.
func (c *Cache[T, D]) Addressing() *addressLayout { return c.addr }
