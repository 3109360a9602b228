package app

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/petems/audio-ingest/internal/audio"
	"github.com/petems/audio-ingest/internal/capture"
	"github.com/petems/audio-ingest/internal/config"
	"github.com/petems/audio-ingest/internal/sink"
	"github.com/petems/audio-ingest/internal/track"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// Mock implementations for testing
type mockDevice struct{}

func (m *mockDevice) Configure(audio.Attributes) error        { return nil }
func (m *mockDevice) Enable() error                           { return nil }
func (m *mockDevice) Disable() error                          { return nil }
func (m *mockDevice) EnableChannel(audio.ChannelParams) error { return nil }
func (m *mockDevice) DisableChannel() error                   { return nil }
func (m *mockDevice) SetVolume(int) error                     { return nil }
func (m *mockDevice) SetGain(int) error                       { return nil }
func (m *mockDevice) GetFrame() (audio.Frame, error)          { return audio.Frame{}, errors.New("no frames") }
func (m *mockDevice) ReleaseFrame(audio.Frame) error          { return nil }

func (m *mockDevice) PollFrame(timeout time.Duration) error {
	time.Sleep(timeout)
	return audio.ErrPollTimeout
}

type mockStatus struct {
	mu     sync.Mutex
	events []string
}

func (m *mockStatus) SetIdle()      { m.add("idle") }
func (m *mockStatus) SetCapturing() { m.add("capturing") }
func (m *mockStatus) SetError()     { m.add("error") }

func (m *mockStatus) add(e string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, e)
}

func (m *mockStatus) list() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.events...)
}

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.Encoder.Codec = config.CodecPCM
	cfg.Capture.Volume = 100
	return cfg
}

func fastPoll(o *capture.Options) {
	o.PollTimeout = 5 * time.Millisecond
}

func newTestApp(cfg *config.Config, status StatusUpdater, s sink.Sink) *App {
	return New(Config{
		Config:        cfg,
		Logger:        zerolog.Nop(),
		Sink:          s,
		NewDevice:     func(config.CaptureConfig) (audio.Device, error) { return &mockDevice{}, nil },
		StatusUpdater: status,
		Options:       fastPoll,
	})
}

func waitDone(t *testing.T, app *App) {
	t.Helper()
	select {
	case <-app.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("session did not end")
	}
}

func TestStartStop(t *testing.T) {
	status := &mockStatus{}
	app := newTestApp(testConfig(), status, sink.NewChan(4))

	// Initially not capturing
	assert.False(t, app.IsCapturing())
	assert.Nil(t, app.TrackInfo())
	assert.Nil(t, app.Done())

	require.NoError(t, app.Start())
	assert.True(t, app.IsCapturing())
	assert.Error(t, app.Start())

	info := app.TrackInfo()
	require.NotNil(t, info)
	assert.Equal(t, track.CodecNamePCM, info.CodecName)
	assert.Equal(t, 16000, info.SampleRate)

	app.Stop()
	waitDone(t, app)
	assert.False(t, app.IsCapturing())
	assert.NoError(t, app.Err())
	assert.Equal(t, []string{"capturing", "idle"}, status.list())

	// Stopping again is a no-op
	app.Stop()
}

func TestRestartAfterStop(t *testing.T) {
	app := newTestApp(testConfig(), nil, sink.NewChan(4))

	require.NoError(t, app.Start())
	app.Stop()
	require.NoError(t, app.Start())
	assert.True(t, app.IsCapturing())
	require.NoError(t, app.Shutdown(context.Background()))
	assert.False(t, app.IsCapturing())
}

func TestStartDeviceError(t *testing.T) {
	status := &mockStatus{}
	app := New(Config{
		Config:        testConfig(),
		Logger:        zerolog.Nop(),
		Sink:          sink.NewChan(1),
		NewDevice:     func(config.CaptureConfig) (audio.Device, error) { return nil, errors.New("no mic") },
		StatusUpdater: status,
	})

	assert.Error(t, app.Start())
	assert.False(t, app.IsCapturing())
	assert.Equal(t, []string{"error"}, status.list())
}

func TestStartInvalidEncoder(t *testing.T) {
	cfg := testConfig()
	cfg.Encoder.Codec = "mp3"
	app := newTestApp(cfg, nil, sink.NewChan(1))

	assert.Error(t, app.Start())
	assert.False(t, app.IsCapturing())
}

func writeWAV(t *testing.T, samples int) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "in.wav")
	f, err := os.Create(path)
	require.NoError(t, err)

	data := make([]int, samples)
	for i := range data {
		data[i] = i % 1000
	}
	enc := wav.NewEncoder(f, 16000, 16, 1, 1)
	require.NoError(t, enc.Write(&goaudio.IntBuffer{
		Data:           data,
		Format:         &goaudio.Format{SampleRate: 16000, NumChannels: 1},
		SourceBitDepth: 16,
	}))
	require.NoError(t, enc.Close())
	require.NoError(t, f.Close())
	return path
}

func TestWAVSessionEndsAtEndOfFile(t *testing.T) {
	cfg := testConfig()
	cfg.Capture.Source = config.SourceWAV
	cfg.Capture.File = writeWAV(t, 3200)
	cfg.Capture.Realtime = false

	status := &mockStatus{}
	units := sink.NewChan(16)
	app := New(Config{
		Config:        cfg,
		Logger:        zerolog.Nop(),
		Sink:          units,
		StatusUpdater: status,
	})

	require.NoError(t, app.Start())
	waitDone(t, app)

	assert.ErrorIs(t, app.Err(), audio.ErrEndOfStream)
	assert.False(t, app.IsCapturing())
	assert.Equal(t, []string{"capturing", "error"}, status.list())

	// 3200 samples at 16 kHz is 200 ms, ten 20 ms blocks
	assert.Len(t, units.Units(), 10)
}

func TestOpenDevice(t *testing.T) {
	tests := []struct {
		name    string
		cc      config.CaptureConfig
		wantErr bool
	}{
		{name: "default", cc: config.CaptureConfig{}},
		{name: "portaudio", cc: config.CaptureConfig{Source: config.SourcePortAudio, DeviceID: "1"}},
		{name: "wav", cc: config.CaptureConfig{Source: config.SourceWAV, File: "in.wav"}},
		{name: "wav without file", cc: config.CaptureConfig{Source: config.SourceWAV}, wantErr: true},
		{name: "unknown", cc: config.CaptureConfig{Source: "alsa"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dev, err := OpenDevice(tt.cc)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.NotNil(t, dev)
		})
	}
}

func TestSetDevice(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	cfg := testConfig()
	app := New(Config{
		Config:     cfg,
		ConfigPath: path,
		Logger:     zerolog.Nop(),
		Sink:       sink.NewChan(1),
		NewDevice:  func(config.CaptureConfig) (audio.Device, error) { return &mockDevice{}, nil },
		Options:    fastPoll,
	})

	require.NoError(t, app.SetDevice("usb-mic"))
	loaded, err := config.LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "usb-mic", loaded.Capture.DeviceID)

	require.NoError(t, app.Start())
	assert.ErrorIs(t, app.SetDevice("other"), ErrCapturing)
	app.Stop()
	assert.Equal(t, "usb-mic", cfg.Capture.DeviceID)
}

func TestListDevices(t *testing.T) {
	app := New(Config{
		Config: testConfig(),
		Logger: zerolog.Nop(),
		ListDevices: func() ([]audio.AudioDevice, error) {
			return []audio.AudioDevice{{ID: "0", Name: "Default", Default: true}}, nil
		},
	})

	devices, err := app.ListDevices()
	require.NoError(t, err)
	require.Len(t, devices, 1)
	assert.True(t, devices[0].Default)
}

func TestShutdownIdle(t *testing.T) {
	app := newTestApp(testConfig(), nil, sink.NewChan(1))
	assert.NoError(t, app.Shutdown(context.Background()))
}
