// Package capture runs a live audio capture device through a block encoder.
//
// A Capture owns one worker goroutine. The worker configures and enables the
// device, polls it for frames, accumulates the frames into encoder-sized
// blocks, stamps each block with its capture time and hands every encoded
// block to a sink. The owner stops the worker cooperatively with Terminate:
// the request is observed between loop iterations, so the worst-case stop
// latency is one device poll timeout.
//
// Only the track descriptor is shared between the owner and the worker. All
// pipeline state belongs to the worker goroutine and is never locked.
package capture

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/petems/audio-ingest/internal/audio"
	"github.com/petems/audio-ingest/internal/config"
	"github.com/petems/audio-ingest/internal/encoder"
	"github.com/petems/audio-ingest/internal/metrics"
	"github.com/petems/audio-ingest/internal/sink"
	"github.com/petems/audio-ingest/internal/track"
	"github.com/rs/zerolog"
)

const (
	// DefaultPollTimeout bounds each device poll and so the stop latency
	DefaultPollTimeout = time.Second
	// DefaultMaxFrameBytes sizes the encoder output buffer. The buffer is
	// never smaller than one block.
	DefaultMaxFrameBytes = 8 * 1024
)

// Options configure a Capture. Device is required; the function fields
// default to the encoder package implementations.
type Options struct {
	Capture config.CaptureConfig
	Encoder config.EncoderConfig
	Device  audio.Device

	NewEncoder   func(p encoder.Params) (encoder.Encoder, error)
	CodecPrivate func(codec string, sampleRate, channels int) ([]byte, error)

	Logger      zerolog.Logger
	Metrics     *metrics.CaptureMetrics
	Clock       Clock
	PollTimeout time.Duration
}

// Capture is a running capture worker
type Capture struct {
	opts   Options
	log    zerolog.Logger
	source string

	mu   sync.Mutex
	info *track.Info

	terminating atomic.Bool
	terminated  atomic.Bool
	state       atomic.Int32
	done        chan struct{}
	err         error

	started       bool
	enc           encoder.Encoder
	blockSize     int
	terminateOnce sync.Once
}

// Create builds the track descriptor and the encoder, then starts the capture
// worker. On failure the partially built capture is terminated and an error
// is returned.
func Create(opts Options, s sink.Sink) (*Capture, error) {
	c := newCapture(opts)

	if err := c.start(s); err != nil {
		c.log.Error().Err(err).Msg("Failed to create capture")
		c.Terminate()
		return nil, err
	}

	c.log.Info().
		Int("sample_rate", opts.Capture.SampleRate).
		Int("channels", opts.Capture.Channels).
		Str("codec", opts.Encoder.Codec).
		Int("block_bytes", c.blockSize).
		Msg("Capture started")
	return c, nil
}

func newCapture(opts Options) *Capture {
	if opts.NewEncoder == nil {
		opts.NewEncoder = encoder.New
	}
	if opts.CodecPrivate == nil {
		opts.CodecPrivate = encoder.CodecPrivate
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if opts.PollTimeout <= 0 {
		opts.PollTimeout = DefaultPollTimeout
	}
	if opts.Encoder.MaxFrameBytes <= 0 {
		opts.Encoder.MaxFrameBytes = DefaultMaxFrameBytes
	}

	source := opts.Capture.Source
	if source == "" {
		source = "device"
	}

	return &Capture{
		opts:   opts,
		log:    opts.Logger.With().Str("component", "capture").Str("source", source).Logger(),
		source: source,
		done:   make(chan struct{}),
	}
}

func (c *Capture) start(s sink.Sink) error {
	cc := c.opts.Capture
	if s == nil {
		return errors.New("capture: nil sink")
	}
	if c.opts.Device == nil {
		return errors.New("capture: nil device")
	}
	if cc.SampleRate <= 0 || cc.Channels <= 0 {
		return fmt.Errorf("capture: invalid format %d Hz/%d ch/%d bit", cc.SampleRate, cc.Channels, cc.BitDepth)
	}
	// Encoders and block sizes assume 16-bit little-endian samples
	if cc.BitDepth != 16 {
		return fmt.Errorf("capture: unsupported bit depth: %d", cc.BitDepth)
	}

	params := encoder.ParamsFrom(cc, c.opts.Encoder)
	if err := c.buildTrackInfo(params); err != nil {
		return fmt.Errorf("failed to init audio track info: %w", err)
	}

	enc, err := c.opts.NewEncoder(params)
	if err != nil {
		return fmt.Errorf("failed to init encoder: %w", err)
	}
	c.enc = enc

	c.blockSize = enc.BlockSize()
	if c.blockSize <= 0 {
		return fmt.Errorf("capture: encoder block size %d", c.blockSize)
	}

	w := c.newWorker(s, params.Codec)
	c.started = true
	go c.runWorker(w)
	return nil
}

func (c *Capture) newWorker(s sink.Sink, codec string) *worker {
	cc := c.opts.Capture
	bytesPerFrame := cc.BitDepth / 8 * cc.Channels
	samples := c.blockSize / bytesPerFrame

	// Pass-through encoders write a whole block
	outSize := max(c.opts.Encoder.MaxFrameBytes, c.blockSize)

	e := &emitter{
		enc:      c.enc,
		out:      make([]byte, outSize),
		sink:     s,
		duration: time.Duration(samples) * time.Second / time.Duration(cc.SampleRate),
		log:      c.log,
		metrics:  c.opts.Metrics,
		source:   c.source,
		codec:    codec,
	}
	ts := NewTimestamps(c.opts.Clock, BlockDurationMs(c.blockSize, cc.SampleRate, bytesPerFrame))

	return &worker{
		dev: c.opts.Device,
		attr: audio.Attributes{
			SampleRate:      cc.SampleRate,
			BitDepth:        cc.BitDepth,
			Channels:        cc.Channels,
			FramesPerBuffer: cc.FramesPerBuffer,
			BufferDepth:     cc.BufferDepth,
		},
		channel:     audio.ChannelParams{ID: cc.Channel, Depth: cc.BufferDepth},
		volume:      cc.Volume,
		gain:        cc.Gain,
		pollTimeout: c.opts.PollTimeout,
		pipe:        newPipeline(NewAccumulator(c.blockSize), ts, e),
		terminating: &c.terminating,
		state:       &c.state,
		log:         c.log,
		metrics:     c.opts.Metrics,
		source:      c.source,
	}
}

func (c *Capture) runWorker(w *worker) {
	defer func() {
		w.setState(StateStopped)
		c.terminated.Store(true)
		close(c.done)
	}()

	c.err = w.run()
}

// buildTrackInfo builds the track descriptor once
func (c *Capture) buildTrackInfo(p encoder.Params) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.info != nil {
		return nil
	}

	private, err := c.opts.CodecPrivate(p.Codec, p.SampleRate, p.Channels)
	if err != nil {
		return fmt.Errorf("failed to generate codec private data: %w", err)
	}

	c.info = &track.Info{
		TrackName:    track.AudioTrackName,
		CodecName:    encoder.CodecName(p.Codec),
		SampleRate:   p.SampleRate,
		Channels:     p.Channels,
		CodecPrivate: private,
	}
	return nil
}

// TrackInfo returns a copy of the track descriptor, or nil if it has not
// been built.
func (c *Capture) TrackInfo() *track.Info {
	if c == nil {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.info.Clone()
}

// Terminate asks the worker to stop, waits for it without a deadline and
// releases the encoder. It is safe on a partially created capture and may be
// called more than once.
func (c *Capture) Terminate() {
	if c == nil {
		return
	}
	c.terminateOnce.Do(func() {
		c.terminating.Store(true)

		if c.started {
			<-c.done
		}

		if c.enc != nil {
			if err := c.enc.Close(); err != nil {
				c.log.Warn().Err(err).Msg("Failed to close encoder")
			}
		}

		if c.started {
			c.log.Info().Err(c.err).Msg("Capture terminated")
		}
	})
}

// Done is closed once the worker has stopped, whether on request or on error
func (c *Capture) Done() <-chan struct{} {
	return c.done
}

// Terminated reports whether the worker has stopped
func (c *Capture) Terminated() bool {
	return c.terminated.Load()
}

// Err returns the error that stopped the worker. It is nil while the worker
// runs and after a requested stop.
func (c *Capture) Err() error {
	select {
	case <-c.done:
		return c.err
	default:
		return nil
	}
}

// State returns the worker's current state
func (c *Capture) State() State {
	return State(c.state.Load())
}

// BlockSize is the encoder input block size in bytes
func (c *Capture) BlockSize() int {
	return c.blockSize
}
