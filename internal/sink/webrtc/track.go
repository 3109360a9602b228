// Package webrtc delivers encoded audio units to WebRTC peers.
//
// A Track is a sink: the capture worker emits Opus units into a small queue
// and a writer goroutine hands them to a pion sample track, so network
// backpressure never stalls capture. A Publisher attaches the track to peer
// connections negotiated from WHEP-style SDP offers.
package webrtc

import (
	"sync"
	"sync/atomic"

	"github.com/petems/audio-ingest/internal/sink"
	pion "github.com/pion/webrtc/v3"
	"github.com/pion/webrtc/v3/pkg/media"
	"github.com/rs/zerolog"
)

const (
	// DefaultQueueSize is the number of units buffered ahead of the writer
	DefaultQueueSize = 64

	trackID  = "audio"
	streamID = "audio-ingest"
)

// Track is a sink writing units to a pion sample track
type Track struct {
	local *pion.TrackLocalStaticSample
	queue *sink.Chan
	quit  chan struct{}
	wg    sync.WaitGroup
	log   zerolog.Logger

	written   atomic.Uint64
	dropped   atomic.Uint64
	closeOnce sync.Once
}

// NewTrack creates an Opus track and starts its writer goroutine
func NewTrack(queueSize int, log zerolog.Logger) (*Track, error) {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}

	local, err := pion.NewTrackLocalStaticSample(
		pion.RTPCodecCapability{MimeType: pion.MimeTypeOpus, ClockRate: 48000, Channels: 2},
		trackID,
		streamID,
	)
	if err != nil {
		return nil, err
	}

	t := &Track{
		local: local,
		queue: sink.NewChan(queueSize),
		quit:  make(chan struct{}),
		log:   log.With().Str("component", "webrtc_track").Logger(),
	}
	t.wg.Add(1)
	go t.writeLoop()
	return t, nil
}

// Emit queues a unit for the writer. Units are dropped when the queue is
// full or the track is closed.
func (t *Track) Emit(u sink.Unit) {
	select {
	case <-t.quit:
		t.dropped.Add(1)
	default:
		t.queue.Emit(u)
	}
}

func (t *Track) writeLoop() {
	defer t.wg.Done()
	for {
		select {
		case u := <-t.queue.Units():
			if err := t.local.WriteSample(media.Sample{Data: u.Data, Duration: u.Duration}); err != nil {
				t.log.Debug().Err(err).Msg("Failed to write sample")
				continue
			}
			t.written.Add(1)
		case <-t.quit:
			return
		}
	}
}

// Local is the track to add to peer connections
func (t *Track) Local() pion.TrackLocal {
	return t.local
}

// Written reports how many samples reached the pion track
func (t *Track) Written() uint64 {
	return t.written.Load()
}

// Dropped reports how many units were discarded, after close or on a full
// queue
func (t *Track) Dropped() uint64 {
	return t.dropped.Load() + t.queue.Dropped()
}

// Close stops the writer goroutine. Queued units are discarded.
func (t *Track) Close() {
	t.closeOnce.Do(func() {
		close(t.quit)
		t.wg.Wait()
		t.log.Debug().
			Uint64("written", t.Written()).
			Uint64("dropped", t.Dropped()).
			Msg("Track closed")
	})
}

var _ sink.Sink = (*Track)(nil)
