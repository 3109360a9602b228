package sink

import (
	"sync/atomic"
	"time"

	"github.com/petems/audio-ingest/internal/track"
	"github.com/rs/zerolog"
)

// Unit is one encoded block. Data is owned by the sink once emitted.
type Unit struct {
	Data             []byte
	PresentationSize int
	TimestampMs      uint64
	Duration         time.Duration
	Track            track.Type
}

// Sink accepts encoded units. Emit must not block the capture worker.
type Sink interface {
	Emit(u Unit)
}

// Chan is a bounded channel sink. Units are dropped when the channel is full.
type Chan struct {
	ch      chan Unit
	dropped atomic.Uint64
}

// NewChan creates a channel sink holding up to size units
func NewChan(size int) *Chan {
	if size < 1 {
		size = 1
	}
	return &Chan{ch: make(chan Unit, size)}
}

func (c *Chan) Emit(u Unit) {
	select {
	case c.ch <- u:
	default:
		// Drop if channel full (backpressure)
		c.dropped.Add(1)
	}
}

// Units returns the receive side of the sink
func (c *Chan) Units() <-chan Unit {
	return c.ch
}

// Dropped reports how many units were discarded because the channel was full
func (c *Chan) Dropped() uint64 {
	return c.dropped.Load()
}

// Log records every unit at debug level and keeps totals
type Log struct {
	log   zerolog.Logger
	units atomic.Uint64
	bytes atomic.Uint64
}

// NewLog creates a logging sink
func NewLog(log zerolog.Logger) *Log {
	return &Log{log: log.With().Str("component", "sink").Logger()}
}

func (l *Log) Emit(u Unit) {
	n := l.units.Add(1)
	l.bytes.Add(uint64(len(u.Data)))
	l.log.Debug().
		Uint64("seq", n).
		Uint64("timestamp_ms", u.TimestampMs).
		Int("bytes", len(u.Data)).
		Stringer("track", u.Track).
		Msg("Encoded unit")
}

// Totals returns the number of units and payload bytes seen
func (l *Log) Totals() (units, bytes uint64) {
	return l.units.Load(), l.bytes.Load()
}
