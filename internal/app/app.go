package app

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/petems/audio-ingest/internal/audio"
	"github.com/petems/audio-ingest/internal/capture"
	"github.com/petems/audio-ingest/internal/config"
	"github.com/petems/audio-ingest/internal/metrics"
	"github.com/petems/audio-ingest/internal/sink"
	"github.com/petems/audio-ingest/internal/track"
	"github.com/rs/zerolog"
)

// ErrCapturing is returned for changes that need capture to be stopped
var ErrCapturing = errors.New("cannot change while capturing")

// StatusUpdater is an interface for updating status (e.g., a status line)
type StatusUpdater interface {
	SetIdle()
	SetCapturing()
	SetError()
}

// DeviceFactory opens the capture device for a capture configuration
type DeviceFactory func(cc config.CaptureConfig) (audio.Device, error)

type Config struct {
	Config        *config.Config
	ConfigPath    string // Optional - empty saves to the default location
	Logger        zerolog.Logger
	Sink          sink.Sink
	Metrics       *metrics.CaptureMetrics             // Optional
	NewDevice     DeviceFactory                       // Optional - defaults to OpenDevice
	ListDevices   func() ([]audio.AudioDevice, error) // Optional - defaults to audio.ListDevices
	StatusUpdater StatusUpdater                       // Optional - can be nil
	Options       func(o *capture.Options)            // Optional - adjusts capture options
}

// App runs one capture session at a time
type App struct {
	cfg         *config.Config
	cfgPath     string
	log         zerolog.Logger
	sink        sink.Sink
	metrics     *metrics.CaptureMetrics
	newDevice   DeviceFactory
	listDevices func() ([]audio.AudioDevice, error)
	status      StatusUpdater
	options     func(o *capture.Options)

	mu      sync.Mutex
	capture *capture.Capture
	done    chan struct{}
	err     error
}

func New(cfg Config) *App {
	a := &App{
		cfg:         cfg.Config,
		cfgPath:     cfg.ConfigPath,
		log:         cfg.Logger,
		sink:        cfg.Sink,
		metrics:     cfg.Metrics,
		newDevice:   cfg.NewDevice,
		listDevices: cfg.ListDevices,
		status:      cfg.StatusUpdater,
		options:     cfg.Options,
	}
	if a.newDevice == nil {
		a.newDevice = OpenDevice
	}
	if a.listDevices == nil {
		a.listDevices = audio.ListDevices
	}
	return a
}

// OpenDevice opens the device named by the capture source
func OpenDevice(cc config.CaptureConfig) (audio.Device, error) {
	switch cc.Source {
	case config.SourcePortAudio, "":
		return audio.NewPortAudio(cc.DeviceID), nil
	case config.SourceWAV:
		if cc.File == "" {
			return nil, errors.New("wav source needs a file")
		}
		return audio.NewWAVFile(cc.File, cc.Realtime), nil
	default:
		return nil, fmt.Errorf("unknown capture source: %q", cc.Source)
	}
}

// Start begins a capture session
func (a *App) Start() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.capture != nil {
		return errors.New("capture already running")
	}

	dev, err := a.newDevice(a.cfg.Capture)
	if err != nil {
		a.setError()
		return fmt.Errorf("failed to open device: %w", err)
	}

	opts := capture.Options{
		Capture: a.cfg.Capture,
		Encoder: a.cfg.Encoder,
		Device:  dev,
		Logger:  a.log,
		Metrics: a.metrics,
	}
	if a.options != nil {
		a.options(&opts)
	}

	c, err := capture.Create(opts, a.sink)
	if err != nil {
		a.setError()
		return fmt.Errorf("failed to start capture: %w", err)
	}

	a.log.Info().Str("source", a.cfg.Capture.Source).Str("device", a.cfg.Capture.DeviceID).Msg("Starting capture")
	a.capture = c
	a.done = make(chan struct{})
	a.err = nil
	if a.status != nil {
		a.status.SetCapturing()
	}

	go a.watch(c, a.done)
	return nil
}

// watch releases a session once its worker stops, on request or on error
func (a *App) watch(c *capture.Capture, done chan struct{}) {
	<-c.Done()
	c.Terminate()

	err := c.Err()
	a.mu.Lock()
	if a.capture == c {
		a.capture = nil
	}
	a.err = err
	a.mu.Unlock()

	if err != nil {
		a.log.Error().Err(err).Msg("Capture ended")
		a.setError()
	}
	close(done)
}

// Stop ends the current session and waits for the worker to exit
func (a *App) Stop() {
	a.mu.Lock()
	c := a.capture
	done := a.done
	a.capture = nil
	a.mu.Unlock()

	if c == nil {
		return
	}

	a.log.Info().Msg("Stopping capture")
	c.Terminate()
	<-done

	if a.status != nil && c.Err() == nil {
		a.status.SetIdle()
	}
}

func (a *App) Shutdown(ctx context.Context) error {
	stopped := make(chan struct{})
	go func() {
		a.Stop()
		close(stopped)
	}()

	select {
	case <-stopped:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (a *App) setError() {
	if a.status != nil {
		a.status.SetError()
	}
}

// Done is closed when the latest session has ended. It is nil before the
// first Start.
func (a *App) Done() <-chan struct{} {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.done
}

// Err is the error that ended the latest session
func (a *App) Err() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.err
}

func (a *App) IsCapturing() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.capture != nil
}

// TrackInfo describes the running session's track, or nil when idle
func (a *App) TrackInfo() *track.Info {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.capture.TrackInfo()
}

// Settings

func (a *App) SetDevice(id string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.capture != nil {
		return ErrCapturing
	}

	a.cfg.Capture.DeviceID = id
	if a.cfgPath != "" {
		return a.cfg.SaveTo(a.cfgPath)
	}
	return a.cfg.Save()
}

func (a *App) ListDevices() ([]audio.AudioDevice, error) {
	return a.listDevices()
}
