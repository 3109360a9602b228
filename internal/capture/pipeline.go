package capture

import (
	"time"

	"github.com/petems/audio-ingest/internal/encoder"
	"github.com/petems/audio-ingest/internal/metrics"
	"github.com/petems/audio-ingest/internal/sink"
	"github.com/petems/audio-ingest/internal/track"
	"github.com/rs/zerolog"
)

// emitter encodes completed blocks and hands the results to the sink
type emitter struct {
	enc      encoder.Encoder
	out      []byte
	sink     sink.Sink
	duration time.Duration

	log     zerolog.Logger
	metrics *metrics.CaptureMetrics
	source  string
	codec   string
}

// emit encodes block and emits it stamped with timestampMs. Failures drop the
// block and are only logged.
func (e *emitter) emit(block []byte, timestampMs uint64) bool {
	start := time.Now()
	n, err := e.enc.Encode(block, e.out)
	e.metrics.RecordEncode(e.source, e.codec, time.Since(start).Seconds())

	if err != nil {
		e.log.Warn().Err(err).Uint64("timestamp_ms", timestampMs).Msg("Block encode failed")
		e.metrics.RecordEncodeError(e.source, e.codec, "encode")
		return false
	}
	if n <= 0 {
		e.log.Warn().Uint64("timestamp_ms", timestampMs).Msg("Encoder produced no output")
		e.metrics.RecordEncodeError(e.source, e.codec, "empty")
		return false
	}

	data := make([]byte, n)
	copy(data, e.out[:n])

	e.sink.Emit(sink.Unit{
		Data:             data,
		PresentationSize: n,
		TimestampMs:      timestampMs,
		Duration:         e.duration,
		Track:            track.Audio,
	})
	e.metrics.RecordEmit(e.source, e.codec, n, timestampMs)
	return true
}

// pipeline feeds device frames through accumulation, timestamping and
// encoding. It belongs to the worker goroutine.
type pipeline struct {
	acc   *Accumulator
	ts    *Timestamps
	emit  *emitter
	ready func(block []byte)
}

func newPipeline(acc *Accumulator, ts *Timestamps, e *emitter) *pipeline {
	p := &pipeline{acc: acc, ts: ts, emit: e}
	p.ready = p.onBlock
	return p
}

// feed absorbs one device frame and returns the number of blocks completed
func (p *pipeline) feed(frame []byte) int {
	if len(frame) == 0 {
		return 0
	}
	if p.acc.Empty() {
		p.ts.Mark()
	}
	return p.acc.Absorb(frame, p.ready)
}

func (p *pipeline) onBlock(block []byte) {
	p.emit.emit(block, p.ts.Current())
	// Device time keeps running whether or not the block survived encoding
	p.ts.Advance()
}

// discard drops a partial block left when capture stops and returns its size
func (p *pipeline) discard() int {
	n := p.acc.Len()
	p.acc.Reset()
	return n
}
