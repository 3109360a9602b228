package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/spf13/viper"
)

// Capture source kinds
const (
	SourcePortAudio = "portaudio"
	SourceWAV       = "wav"
)

// Codecs
const (
	CodecOpus = "opus"
	CodecPCM  = "pcm"
)

// Sink kinds
const (
	SinkWebRTC = "webrtc"
	SinkLog    = "log"
)

type Config struct {
	LogLevel string        `json:"log_level" mapstructure:"log_level"`
	Capture  CaptureConfig `json:"capture" mapstructure:"capture"`
	Encoder  EncoderConfig `json:"encoder" mapstructure:"encoder"`
	Sink     SinkConfig    `json:"sink" mapstructure:"sink"`
	Server   ServerConfig  `json:"server" mapstructure:"server"`
}

type CaptureConfig struct {
	Source          string `json:"source" mapstructure:"source"` // "portaudio" or "wav"
	DeviceID        string `json:"device_id" mapstructure:"device_id"`
	Channel         int    `json:"channel" mapstructure:"channel"`
	File            string `json:"file" mapstructure:"file"`
	SampleRate      int    `json:"sample_rate" mapstructure:"sample_rate"`
	BitDepth        int    `json:"bit_depth" mapstructure:"bit_depth"`
	Channels        int    `json:"channels" mapstructure:"channels"`
	Volume          int    `json:"volume" mapstructure:"volume"` // percent
	Gain            int    `json:"gain" mapstructure:"gain"`     // dB
	FramesPerBuffer int    `json:"frames_per_buffer" mapstructure:"frames_per_buffer"`
	BufferDepth     int    `json:"buffer_depth" mapstructure:"buffer_depth"`
	Realtime        bool   `json:"realtime" mapstructure:"realtime"` // pace file input at capture speed
}

type EncoderConfig struct {
	Codec           string `json:"codec" mapstructure:"codec"`     // "opus" or "pcm"
	Profile         string `json:"profile" mapstructure:"profile"` // "audio", "voip", "lowdelay"
	BitRate         int    `json:"bit_rate" mapstructure:"bit_rate"`
	FrameDurationMs int    `json:"frame_duration_ms" mapstructure:"frame_duration_ms"`
	MaxFrameBytes   int    `json:"max_frame_bytes" mapstructure:"max_frame_bytes"`
}

type SinkConfig struct {
	Kind      string `json:"kind" mapstructure:"kind"` // "webrtc" or "log"
	QueueSize int    `json:"queue_size" mapstructure:"queue_size"`
}

type ServerConfig struct {
	Listen  string `json:"listen" mapstructure:"listen"` // empty disables the HTTP server
	Metrics bool   `json:"metrics" mapstructure:"metrics"`
}

// Default returns the built-in configuration
func Default() *Config {
	return &Config{
		LogLevel: "info",
		Capture: CaptureConfig{
			Source:          SourcePortAudio,
			DeviceID:        "",
			Channel:         0,
			SampleRate:      16000,
			BitDepth:        16,
			Channels:        1,
			Volume:          60,
			Gain:            0,
			FramesPerBuffer: 640,
			BufferDepth:     40,
			Realtime:        true,
		},
		Encoder: EncoderConfig{
			Codec:           CodecOpus,
			Profile:         "audio",
			BitRate:         64000,
			FrameDurationMs: 20,
			MaxFrameBytes:   8 * 1024,
		},
		Sink: SinkConfig{
			Kind:      SinkWebRTC,
			QueueSize: 64,
		},
		Server: ServerConfig{
			Listen:  ":8089",
			Metrics: true,
		},
	}
}

// LoadFile reads the config from path. An empty path means the platform
// config path, which is allowed to be missing.
func LoadFile(path string) (*Config, error) {
	return LoadViper(viper.New(), path)
}

// LoadViper is LoadFile on a caller-supplied viper instance, so settings
// already bound into v (CLI flags) override the file.
func LoadViper(v *viper.Viper, path string) (*Config, error) {
	setDefaults(v, Default())

	v.SetEnvPrefix("AUDIO_INGEST")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	explicit := path != ""
	if !explicit {
		path = configPath()
	}
	v.SetConfigFile(path)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		switch {
		case errors.As(err, &notFound), !explicit && errors.Is(err, os.ErrNotExist):
			// Defaults only
		default:
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	return cfg, nil
}

// Save writes the config to disk
func (c *Config) Save() error {
	return c.SaveTo(configPath())
}

// SaveTo writes the config as JSON to path
func (c *Config) SaveTo(path string) error {
	// Ensure directory exists
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}

// Validate checks the settings the pipeline depends on
func (c *Config) Validate() error {
	cc := c.Capture
	switch cc.Source {
	case SourcePortAudio:
	case SourceWAV:
		if cc.File == "" {
			return fmt.Errorf("capture.file is required for source %q", SourceWAV)
		}
	default:
		return fmt.Errorf("unknown capture source: %q", cc.Source)
	}
	if cc.SampleRate <= 0 {
		return fmt.Errorf("invalid sample rate: %d", cc.SampleRate)
	}
	if cc.BitDepth != 16 {
		return fmt.Errorf("unsupported bit depth: %d", cc.BitDepth)
	}
	if cc.Channels < 1 || cc.Channels > 2 {
		return fmt.Errorf("unsupported channel count: %d", cc.Channels)
	}
	if cc.Volume < 0 || cc.Volume > 100 {
		return fmt.Errorf("volume out of range [0,100]: %d", cc.Volume)
	}
	if cc.Gain < -30 || cc.Gain > 30 {
		return fmt.Errorf("gain out of range [-30,30]: %d", cc.Gain)
	}
	if cc.FramesPerBuffer <= 0 {
		return fmt.Errorf("invalid frames per buffer: %d", cc.FramesPerBuffer)
	}

	switch c.Encoder.Codec {
	case CodecOpus, CodecPCM:
	default:
		return fmt.Errorf("unknown codec: %q", c.Encoder.Codec)
	}

	switch c.Sink.Kind {
	case SinkWebRTC:
		if c.Encoder.Codec != CodecOpus {
			return fmt.Errorf("sink %q requires codec %q", SinkWebRTC, CodecOpus)
		}
	case SinkLog:
	default:
		return fmt.Errorf("unknown sink: %q", c.Sink.Kind)
	}

	return nil
}

func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("log_level", d.LogLevel)

	v.SetDefault("capture.source", d.Capture.Source)
	v.SetDefault("capture.device_id", d.Capture.DeviceID)
	v.SetDefault("capture.channel", d.Capture.Channel)
	v.SetDefault("capture.file", d.Capture.File)
	v.SetDefault("capture.sample_rate", d.Capture.SampleRate)
	v.SetDefault("capture.bit_depth", d.Capture.BitDepth)
	v.SetDefault("capture.channels", d.Capture.Channels)
	v.SetDefault("capture.volume", d.Capture.Volume)
	v.SetDefault("capture.gain", d.Capture.Gain)
	v.SetDefault("capture.frames_per_buffer", d.Capture.FramesPerBuffer)
	v.SetDefault("capture.buffer_depth", d.Capture.BufferDepth)
	v.SetDefault("capture.realtime", d.Capture.Realtime)

	v.SetDefault("encoder.codec", d.Encoder.Codec)
	v.SetDefault("encoder.profile", d.Encoder.Profile)
	v.SetDefault("encoder.bit_rate", d.Encoder.BitRate)
	v.SetDefault("encoder.frame_duration_ms", d.Encoder.FrameDurationMs)
	v.SetDefault("encoder.max_frame_bytes", d.Encoder.MaxFrameBytes)

	v.SetDefault("sink.kind", d.Sink.Kind)
	v.SetDefault("sink.queue_size", d.Sink.QueueSize)

	v.SetDefault("server.listen", d.Server.Listen)
	v.SetDefault("server.metrics", d.Server.Metrics)
}

// Path returns the platform-specific config file path
func Path() string {
	return configPath()
}

// configPath returns the platform-specific config file path
func configPath() string {
	var base string

	switch runtime.GOOS {
	case "darwin":
		base = os.Getenv("HOME") + "/Library/Application Support"
	case "windows":
		base = os.Getenv("APPDATA")
	default: // linux
		if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
			base = xdg
		} else {
			base = os.Getenv("HOME") + "/.config"
		}
	}

	return filepath.Join(base, "audio-ingest", "config.json")
}
