package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/petems/audio-ingest/internal/audio"
	"github.com/petems/audio-ingest/internal/capture"
	"github.com/petems/audio-ingest/internal/config"
	"github.com/petems/audio-ingest/internal/logging"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, dir, body string) string {
	t.Helper()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func writeWAV(t *testing.T, dir string) string {
	t.Helper()
	path := filepath.Join(dir, "in.wav")
	f, err := os.Create(path)
	require.NoError(t, err)

	enc := wav.NewEncoder(f, 16000, 16, 1, 1)
	require.NoError(t, enc.Write(&goaudio.IntBuffer{
		Data:           make([]int, 1600),
		Format:         &goaudio.Format{SampleRate: 16000, NumChannels: 1},
		SourceBitDepth: 16,
	}))
	require.NoError(t, enc.Close())
	require.NoError(t, f.Close())
	return path
}

func execute(t *testing.T, args ...string) error {
	t.Helper()
	_, err := executeOutput(t, args...)
	return err
}

func executeOutput(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Setenv(logging.FileEnv, "-")
	out := &bytes.Buffer{}
	cmd := rootCommand()
	cmd.SetArgs(args)
	cmd.SetOut(out)
	cmd.SetErr(&bytes.Buffer{})
	err := cmd.Execute()
	return out.String(), err
}

func fakeDevices(t *testing.T) {
	t.Helper()
	orig := listDevices
	listDevices = func() ([]audio.AudioDevice, error) {
		return []audio.AudioDevice{
			{ID: "Built-in Microphone", Name: "Built-in Microphone", Default: true},
			{ID: "USB Mic", Name: "USB Mic"},
		}, nil
	}
	t.Cleanup(func() { listDevices = orig })
}

func TestRunWAVFileToLogSink(t *testing.T) {
	dir := t.TempDir()
	cfgPath := writeConfig(t, dir, "log_level: error\nserver:\n  listen: \"\"\n")

	err := execute(t, "run",
		"--config", cfgPath,
		"--source", config.SourceWAV,
		"--file", writeWAV(t, dir),
		"--realtime=false",
		"--codec", config.CodecPCM,
		"--sink", config.SinkLog,
	)
	assert.NoError(t, err)
}

func TestRunMissingFileFailsSetup(t *testing.T) {
	dir := t.TempDir()
	cfgPath := writeConfig(t, dir, "log_level: error\nserver:\n  listen: \"\"\n")

	err := execute(t,
		"--config", cfgPath,
		"--source", config.SourceWAV,
		"--file", filepath.Join(dir, "missing.wav"),
		"--codec", config.CodecPCM,
		"--sink", config.SinkLog,
	)
	assert.ErrorIs(t, err, capture.ErrDeviceSetup)
}

func TestRunRejectsInvalidConfig(t *testing.T) {
	dir := t.TempDir()
	cfgPath := writeConfig(t, dir, "log_level: error\n")

	// WebRTC carries Opus only
	err := execute(t, "--config", cfgPath, "--codec", config.CodecPCM, "--sink", config.SinkWebRTC)
	assert.Error(t, err)
}

func TestRunMissingConfigFile(t *testing.T) {
	err := execute(t, "--config", filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestNewSink(t *testing.T) {
	s, publisher, closeFn, err := newSink(config.SinkConfig{Kind: config.SinkWebRTC, QueueSize: 4}, zerolog.Nop())
	require.NoError(t, err)
	assert.NotNil(t, s)
	assert.NotNil(t, publisher)
	closeFn()

	s, publisher, closeFn, err = newSink(config.SinkConfig{Kind: config.SinkLog}, zerolog.Nop())
	require.NoError(t, err)
	assert.NotNil(t, s)
	assert.Nil(t, publisher)
	closeFn()

	_, _, _, err = newSink(config.SinkConfig{Kind: "kafka"}, zerolog.Nop())
	assert.Error(t, err)
}

func TestDevicesList(t *testing.T) {
	fakeDevices(t)
	cfgPath := writeConfig(t, t.TempDir(), "log_level: error\n")

	out, err := executeOutput(t, "devices", "--config", cfgPath)
	require.NoError(t, err)
	assert.Contains(t, out, "Built-in Microphone")
	assert.Contains(t, out, "USB Mic")
}

func TestDevicesSelectPersists(t *testing.T) {
	fakeDevices(t)
	dir := t.TempDir()
	cfgPath := writeConfig(t, dir, "log_level: error\n")

	out, err := executeOutput(t, "devices", "--config", cfgPath, "--select", "USB Mic")
	require.NoError(t, err)
	assert.Contains(t, out, "USB Mic")

	cfg, err := config.LoadFile(cfgPath)
	require.NoError(t, err)
	assert.Equal(t, "USB Mic", cfg.Capture.DeviceID)
	assert.Equal(t, "error", cfg.LogLevel)

	out, err = executeOutput(t, "devices", "--config", cfgPath)
	require.NoError(t, err)
	assert.Regexp(t, `\*\s+USB Mic`, out)
}

func TestDevicesSelectUnknown(t *testing.T) {
	fakeDevices(t)
	cfgPath := writeConfig(t, t.TempDir(), "log_level: error\n")

	_, err := executeOutput(t, "devices", "--config", cfgPath, "--select", "nope")
	assert.Error(t, err)

	data, err := os.ReadFile(cfgPath)
	require.NoError(t, err)
	assert.Equal(t, "log_level: error\n", string(data))
}
