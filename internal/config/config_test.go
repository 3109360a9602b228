package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadWithoutFileReturnsDefaults(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("HOME", dir)
	t.Setenv("XDG_CONFIG_HOME", dir)
	t.Setenv("APPDATA", dir)

	cfg, err := LoadFile("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadFileMissingExplicitPath(t *testing.T) {
	_, err := LoadFile(filepath.Join(t.TempDir(), "nope.json"))
	assert.Error(t, err)
}

func TestSaveThenLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.json")

	cfg := Default()
	cfg.Capture.DeviceID = "USB Audio"
	cfg.Capture.Gain = 6
	cfg.Encoder.BitRate = 32000
	cfg.Sink.Kind = SinkLog
	require.NoError(t, cfg.SaveTo(path))

	loaded, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)
}

func TestLoadFilePartialKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("capture:\n  source: wav\n  file: in.wav\n"), 0644))

	cfg, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, SourceWAV, cfg.Capture.Source)
	assert.Equal(t, "in.wav", cfg.Capture.File)
	assert.Equal(t, 16000, cfg.Capture.SampleRate)
	assert.Equal(t, CodecOpus, cfg.Encoder.Codec)
}

func TestLoadViperOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, Default().SaveTo(path))

	v := viper.New()
	v.Set("capture.device_id", "from-flag")

	cfg, err := LoadViper(v, path)
	require.NoError(t, err)
	assert.Equal(t, "from-flag", cfg.Capture.DeviceID)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{name: "defaults", mutate: func(c *Config) {}},
		{name: "wav without file", mutate: func(c *Config) { c.Capture.Source = SourceWAV }, wantErr: true},
		{name: "wav with file", mutate: func(c *Config) { c.Capture.Source = SourceWAV; c.Capture.File = "a.wav" }},
		{name: "unknown source", mutate: func(c *Config) { c.Capture.Source = "alsa" }, wantErr: true},
		{name: "24 bit", mutate: func(c *Config) { c.Capture.BitDepth = 24 }, wantErr: true},
		{name: "no channels", mutate: func(c *Config) { c.Capture.Channels = 0 }, wantErr: true},
		{name: "volume too high", mutate: func(c *Config) { c.Capture.Volume = 101 }, wantErr: true},
		{name: "gain too low", mutate: func(c *Config) { c.Capture.Gain = -31 }, wantErr: true},
		{name: "zero frames per buffer", mutate: func(c *Config) { c.Capture.FramesPerBuffer = 0 }, wantErr: true},
		{name: "unknown codec", mutate: func(c *Config) { c.Encoder.Codec = "aac" }, wantErr: true},
		{name: "webrtc needs opus", mutate: func(c *Config) { c.Encoder.Codec = CodecPCM }, wantErr: true},
		{name: "pcm to log", mutate: func(c *Config) { c.Encoder.Codec = CodecPCM; c.Sink.Kind = SinkLog }},
		{name: "unknown sink", mutate: func(c *Config) { c.Sink.Kind = "kinesis" }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
