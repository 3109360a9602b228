package capture

import (
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/petems/audio-ingest/internal/audio"
	"github.com/petems/audio-ingest/internal/metrics"
	"github.com/rs/zerolog"
)

// State is the capture worker's lifecycle state
type State int32

const (
	StateIdle State = iota
	StateDeviceSetup
	StateRunning
	StateDraining
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateDeviceSetup:
		return "device_setup"
	case StateRunning:
		return "running"
	case StateDraining:
		return "draining"
	case StateStopped:
		return "stopped"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

var (
	// ErrDeviceSetup means the device could not be prepared; no frame was captured
	ErrDeviceSetup = errors.New("capture: device setup failed")
	// ErrFrameFetch means a polled frame could not be fetched
	ErrFrameFetch = errors.New("capture: frame fetch failed")
	// ErrFrameRelease means a frame could not be handed back to the device
	ErrFrameRelease = errors.New("capture: frame release failed")
	// ErrWorkerPanic means the capture loop panicked
	ErrWorkerPanic = errors.New("capture: worker panic")
)

const (
	// pollErrorBackoff is the longest pause after a failed poll
	pollErrorBackoff = 100 * time.Millisecond
	// pollErrorLogEvery logs every Nth consecutive poll failure
	pollErrorLogEvery = 50
)

// worker owns the device and the pipeline for the lifetime of one capture
type worker struct {
	dev         audio.Device
	attr        audio.Attributes
	channel     audio.ChannelParams
	volume      int
	gain        int
	pollTimeout time.Duration
	pipe        *pipeline

	terminating *atomic.Bool
	state       *atomic.Int32

	log     zerolog.Logger
	metrics *metrics.CaptureMetrics
	source  string

	deviceEnabled  bool
	channelEnabled bool
}

// run drives the device from setup to teardown and returns the error that
// ended it, or nil for a requested stop.
func (w *worker) run() error {
	w.setState(StateDeviceSetup)
	if err := w.setup(); err != nil {
		w.metrics.RecordDeviceError(w.source, "setup")
		w.log.Error().Err(err).Msg("Failed to setup audio device")
		w.setState(StateDraining)
		w.teardown()
		return fmt.Errorf("%w: %w", ErrDeviceSetup, err)
	}

	w.setState(StateRunning)
	err := w.safeLoop()
	w.setState(StateDraining)
	w.teardown()
	return err
}

func (w *worker) setup() error {
	if err := w.dev.Configure(w.attr); err != nil {
		return fmt.Errorf("configure: %w", err)
	}
	// Teardown also undoes a partially failed enable
	w.deviceEnabled = true
	if err := w.dev.Enable(); err != nil {
		return fmt.Errorf("enable device: %w", err)
	}
	w.channelEnabled = true
	if err := w.dev.EnableChannel(w.channel); err != nil {
		return fmt.Errorf("enable channel %d: %w", w.channel.ID, err)
	}
	if err := w.dev.SetVolume(w.volume); err != nil {
		return fmt.Errorf("set volume: %w", err)
	}
	if err := w.dev.SetGain(w.gain); err != nil {
		return fmt.Errorf("set gain: %w", err)
	}
	return nil
}

func (w *worker) safeLoop() (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrWorkerPanic, r)
			w.log.Error().Err(err).Msg("Capture loop panicked")
		}
	}()
	return w.loop()
}

func (w *worker) loop() error {
	pollErrors := 0
	for {
		err := w.dev.PollFrame(w.pollTimeout)
		switch {
		case err == nil:
			pollErrors = w.pollRecovered(pollErrors)
			if err := w.process(); err != nil {
				return err
			}
		case errors.Is(err, audio.ErrPollTimeout):
			pollErrors = w.pollRecovered(pollErrors)
			w.metrics.RecordPollTimeout(w.source)
			w.log.Warn().Dur("timeout", w.pollTimeout).Msg("Audio poll returned no frame")
		default:
			pollErrors++
			w.metrics.RecordDeviceError(w.source, "poll")
			if pollErrors == 1 || pollErrors%pollErrorLogEvery == 0 {
				w.log.Error().Err(err).Int("consecutive", pollErrors).Msg("Audio poll frame error")
			}
			// A failing device returns at once; don't spin on it
			time.Sleep(min(w.pollTimeout, pollErrorBackoff))
		}

		if w.terminating.Load() {
			w.log.Debug().Msg("Capture stop requested")
			return nil
		}
	}
}

func (w *worker) pollRecovered(failures int) int {
	if failures > 0 {
		w.log.Info().Int("failures", failures).Msg("Audio poll recovered")
	}
	return 0
}

// process fetches one frame, feeds it through the pipeline and releases it
func (w *worker) process() error {
	frame, err := w.dev.GetFrame()
	if err != nil {
		if errors.Is(err, audio.ErrEndOfStream) {
			w.log.Info().Msg("Audio source exhausted")
		} else {
			w.metrics.RecordDeviceError(w.source, "fetch")
			w.log.Error().Err(err).Msg("Audio get frame error")
		}
		return fmt.Errorf("%w: %w", ErrFrameFetch, err)
	}

	w.metrics.RecordFrame(w.source, len(frame.Data))
	w.pipe.feed(frame.Data)

	if err := w.dev.ReleaseFrame(frame); err != nil {
		w.metrics.RecordDeviceError(w.source, "release")
		w.log.Error().Err(err).Msg("Audio release frame error")
		return fmt.Errorf("%w: %w", ErrFrameRelease, err)
	}
	return nil
}

// teardown disables whatever setup enabled. Failures are logged only.
func (w *worker) teardown() {
	if n := w.pipe.discard(); n > 0 {
		w.log.Debug().Int("bytes", n).Msg("Discarding partial block")
	}
	if w.channelEnabled {
		if err := w.dev.DisableChannel(); err != nil {
			w.metrics.RecordDeviceError(w.source, "teardown")
			w.log.Error().Err(err).Msg("Audio channel disable error")
		}
		w.channelEnabled = false
	}
	if w.deviceEnabled {
		if err := w.dev.Disable(); err != nil {
			w.metrics.RecordDeviceError(w.source, "teardown")
			w.log.Error().Err(err).Msg("Audio device disable error")
		}
		w.deviceEnabled = false
	}
}

func (w *worker) setState(s State) {
	w.state.Store(int32(s))
	w.metrics.SetWorkerState(w.source, int(s))
	w.log.Debug().Stringer("state", s).Msg("Capture state")
}
