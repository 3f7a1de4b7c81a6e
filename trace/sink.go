// Package trace defines the observer surface a cache reports
// status-changing operations to. It stands in for a DRAL event-trace
// client without reimplementing DRAL's wire format or dispatch: a Sink
// sees the same record-oriented shape DRAL consumes (a minted record id,
// a kind, and the line coordinates involved).
package trace

import "github.com/rs/xid"

// Kind classifies the operation a Record describes.
type Kind int

const (
	KindFill Kind = iota
	KindWarmPromote
	KindWarmSuppress
	KindClear
	KindEvict
)

func (k Kind) String() string {
	switch k {
	case KindFill:
		return "FILL"
	case KindWarmPromote:
		return "WARM_PROMOTE"
	case KindWarmSuppress:
		return "WARM_SUPPRESS"
	case KindClear:
		return "CLEAR"
	case KindEvict:
		return "EVICT"
	default:
		return "UNKNOWN"
	}
}

// Event is one reported operation. ID is minted fresh per event so an
// external consumer can order and deduplicate records even when several
// caches report concurrently.
type Event struct {
	ID    xid.ID
	Kind  Kind
	Level string
	Set   int
	Way   int
	Tag   uint64
}

// NewEvent mints a fresh record id and fills in the rest of the fields.
func NewEvent(kind Kind, level string, set, way int, tag uint64) Event {
	return Event{ID: xid.New(), Kind: kind, Level: level, Set: set, Way: way, Tag: tag}
}

// Sink receives cache events. Implementations must not block the caller
// for long: a cache invokes Record synchronously on its hot path.
type Sink interface {
	Record(Event)
}

// NopSink discards every event; it is the default when a cache is not
// configured with WithTraceSink.
type NopSink struct{}

func (NopSink) Record(Event) {}
