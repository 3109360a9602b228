package audio

import (
	"errors"
	"fmt"
	"time"

	"github.com/gordonklaus/portaudio"
)

// pollInterval is how often PollFrame checks the stream for buffered input
const pollInterval = 5 * time.Millisecond

type portAudioDevice struct {
	deviceID string
	attr     Attributes

	initialized bool
	device      *portaudio.DeviceInfo
	stream      *portaudio.Stream
	buf         []int16
	frame       []byte
	level       level
	held        bool
	seq         uint64
}

// NewPortAudio creates a PortAudio-based capture device. An empty deviceID
// selects the default input device.
func NewPortAudio(deviceID string) Device {
	return &portAudioDevice{deviceID: deviceID, level: newLevel()}
}

func (p *portAudioDevice) Configure(attr Attributes) error {
	if attr.BitDepth != 16 {
		return fmt.Errorf("unsupported bit depth: %d", attr.BitDepth)
	}
	if attr.SampleRate <= 0 || attr.Channels <= 0 || attr.FramesPerBuffer <= 0 {
		return fmt.Errorf("invalid capture attributes: %+v", attr)
	}
	p.attr = attr
	return nil
}

func (p *portAudioDevice) Enable() error {
	if err := portaudio.Initialize(); err != nil {
		return fmt.Errorf("failed to initialize PortAudio: %w", err)
	}
	p.initialized = true

	device, err := findInputDevice(p.deviceID)
	if err != nil {
		return err
	}
	p.device = device
	return nil
}

// findInputDevice resolves a device by name, or the default input device
func findInputDevice(deviceID string) (*portaudio.DeviceInfo, error) {
	if deviceID == "" {
		device, err := portaudio.DefaultInputDevice()
		if err != nil {
			return nil, fmt.Errorf("failed to get default input device: %w", err)
		}
		return device, nil
	}

	devices, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate devices: %w", err)
	}
	for _, d := range devices {
		if d.Name == deviceID && d.MaxInputChannels > 0 {
			return d, nil
		}
	}
	return nil, fmt.Errorf("device not found: %s", deviceID)
}

func (p *portAudioDevice) EnableChannel(params ChannelParams) error {
	if p.device == nil {
		return ErrNotEnabled
	}
	if p.attr.Channels > p.device.MaxInputChannels {
		return fmt.Errorf("device %s has %d input channels, need %d", p.device.Name, p.device.MaxInputChannels, p.attr.Channels)
	}

	// Device-internal buffering expressed as input latency
	latency := p.device.DefaultLowInputLatency
	if depth := params.Depth; depth > 0 {
		latency = time.Duration(depth*p.attr.FramesPerBuffer) * time.Second / time.Duration(p.attr.SampleRate)
	}

	p.buf = make([]int16, p.attr.FramesPerBuffer*p.attr.Channels)
	p.frame = make([]byte, p.attr.FrameBytes())

	stream, err := portaudio.OpenStream(portaudio.StreamParameters{
		Input: portaudio.StreamDeviceParameters{
			Device:   p.device,
			Channels: p.attr.Channels,
			Latency:  latency,
		},
		SampleRate:      float64(p.attr.SampleRate),
		FramesPerBuffer: p.attr.FramesPerBuffer,
	}, p.buf)
	if err != nil {
		return fmt.Errorf("failed to open audio stream: %w", err)
	}

	if err := stream.Start(); err != nil {
		stream.Close()
		return fmt.Errorf("failed to start audio stream: %w", err)
	}

	p.stream = stream
	return nil
}

func (p *portAudioDevice) SetVolume(volume int) error {
	return p.level.setVolume(volume)
}

func (p *portAudioDevice) SetGain(gain int) error {
	return p.level.setGain(gain)
}

func (p *portAudioDevice) PollFrame(timeout time.Duration) error {
	if p.stream == nil {
		return ErrNotEnabled
	}

	deadline := time.Now().Add(timeout)
	for {
		n, err := p.stream.AvailableToRead()
		if err != nil {
			return fmt.Errorf("failed to query stream: %w", err)
		}
		if n >= p.attr.FramesPerBuffer {
			return nil
		}
		if !time.Now().Before(deadline) {
			return ErrPollTimeout
		}
		time.Sleep(pollInterval)
	}
}

func (p *portAudioDevice) GetFrame() (Frame, error) {
	if p.stream == nil {
		return Frame{}, ErrNotEnabled
	}

	// An overflow still delivers a full buffer; the lost input is upstream of us
	if err := p.stream.Read(); err != nil && !errors.Is(err, portaudio.InputOverflowed) {
		return Frame{}, fmt.Errorf("failed to read audio stream: %w", err)
	}

	int16sToBytes(p.frame, p.buf)
	p.level.apply(p.frame)

	p.held = true
	p.seq++
	return Frame{Data: p.frame, Seq: p.seq}, nil
}

func (p *portAudioDevice) ReleaseFrame(f Frame) error {
	if !p.held || f.Seq != p.seq {
		return ErrFrameNotHeld
	}
	p.held = false
	return nil
}

func (p *portAudioDevice) DisableChannel() error {
	if p.stream == nil {
		return nil
	}
	stream := p.stream
	p.stream = nil

	stopErr := stream.Stop()
	closeErr := stream.Close()
	if stopErr != nil {
		return fmt.Errorf("failed to stop audio stream: %w", stopErr)
	}
	if closeErr != nil {
		return fmt.Errorf("failed to close audio stream: %w", closeErr)
	}
	return nil
}

func (p *portAudioDevice) Disable() error {
	p.device = nil
	if !p.initialized {
		return nil
	}
	p.initialized = false
	return portaudio.Terminate()
}

// ListDevices returns the PortAudio devices that can capture
func ListDevices() ([]AudioDevice, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("failed to initialize PortAudio: %w", err)
	}
	defer portaudio.Terminate()

	devices, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("failed to list devices: %w", err)
	}

	result := make([]AudioDevice, 0, len(devices))
	defaultDevice, _ := portaudio.DefaultInputDevice()

	for _, d := range devices {
		if d.MaxInputChannels > 0 {
			result = append(result, AudioDevice{
				ID:      d.Name,
				Name:    d.Name,
				Default: d == defaultDevice,
			})
		}
	}

	return result, nil
}
