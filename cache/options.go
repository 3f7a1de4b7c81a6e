package cache

import (
	"os"

	"github.com/rs/zerolog"

	"github.com/sarchlab/cachecore/cachemgr"
	"github.com/sarchlab/cachecore/trace"
)

// config collects the construction-time parameters a cache needs beyond
// its shape (NumWays/NumLinesPerWay/NumObjectsPerLine) and policy, set
// through functional Options so the constructor signature stays stable as
// optional knobs are added.
type config struct {
	withData            bool
	warmPercent         int
	initialWarmedStatus Status
	seed                int64
	hasSeed             bool
	logger              zerolog.Logger
	manager             *cachemgr.Manager
	level               string
	levelInstance       string
	sink                trace.Sink
}

func defaultConfig() *config {
	return &config{
		initialWarmedStatus: Shared,
		logger:              zerolog.New(os.Stderr).With().Timestamp().Logger(),
		sink:                trace.NopSink{},
		level:               "L1",
		levelInstance:       "0",
	}
}

// Option mutates a cache's config before construction completes.
type Option func(*config)

// WithData declares the cache as holding real payload, allocating a
// parallel sets x ways x objects data array.
func WithData() Option {
	return func(c *config) { c.withData = true }
}

// WithWarmUp enables the probabilistic cold-start skip: percent is the
// chance (0-100) that a miss against a still-WARM way is promoted to a
// synthesized hit in initialStatus. The owner attributed to a promoted
// line comes from the warmOwner argument passed to the triggering
// GetLineState call, not from construction time, since that is the only
// place the caller identifies who is asking.
func WithWarmUp(percent int, initialStatus Status) Option {
	return func(c *config) {
		c.warmPercent = percent
		c.initialWarmedStatus = initialStatus
	}
}

// WithSeed pins the cache's private PRNG seed, overriding the
// process-wide monotonic default. Use this to reproduce a specific run.
func WithSeed(seed int64) Option {
	return func(c *config) {
		c.seed = seed
		c.hasSeed = true
	}
}

// WithLogger overrides the structured logger fatal contract violations
// are reported through before the cache panics.
func WithLogger(l zerolog.Logger) Option {
	return func(c *config) { c.logger = l }
}

// WithManager attaches the process-wide Cache Manager this cache
// consults and publishes to during warm-up resolution and warmUpFill.
// Caches sharing a Manager and a level name observe each other's fills.
func WithManager(m *cachemgr.Manager, level, levelInstance string) Option {
	return func(c *config) {
		c.manager = m
		c.level = level
		c.levelInstance = levelInstance
	}
}

// WithTraceSink attaches an external observer notified of every
// status-changing operation. The default is a no-op sink.
func WithTraceSink(s trace.Sink) Option {
	return func(c *config) { c.sink = s }
}
