package audio

import (
	"errors"
	"time"
)

var (
	// ErrPollTimeout is returned by PollFrame when no frame became ready in time
	ErrPollTimeout = errors.New("audio: poll timeout")
	// ErrEndOfStream is returned by GetFrame when a finite source is exhausted
	ErrEndOfStream = errors.New("audio: end of stream")
	// ErrFrameNotHeld is returned when releasing a frame that was not fetched
	ErrFrameNotHeld = errors.New("audio: frame not held")
	// ErrNotEnabled is returned when a call needs an enabled device or channel
	ErrNotEnabled = errors.New("audio: device not enabled")
)

// Attributes describe the device-wide capture format
type Attributes struct {
	SampleRate      int
	BitDepth        int
	Channels        int
	FramesPerBuffer int // sample frames per delivered buffer
	BufferDepth     int // buffers queued inside the device
}

// FrameBytes is the byte length of one delivered buffer
func (a Attributes) FrameBytes() int {
	return a.FramesPerBuffer * a.Channels * a.BitDepth / 8
}

// ChannelParams select the input channel to capture from
type ChannelParams struct {
	ID    int
	Depth int
}

// Frame is one device-delivered chunk of interleaved PCM. Data stays valid
// until the frame is released.
type Frame struct {
	Data []byte
	Seq  uint64
}

// Device is a capture device driven by a single worker goroutine. Methods are
// not safe for concurrent use.
type Device interface {
	Configure(attr Attributes) error
	Enable() error
	Disable() error
	EnableChannel(params ChannelParams) error
	DisableChannel() error
	SetVolume(volume int) error
	SetGain(gain int) error
	// PollFrame waits up to timeout for a frame. It returns nil when a frame
	// is ready and ErrPollTimeout when none arrived.
	PollFrame(timeout time.Duration) error
	GetFrame() (Frame, error)
	ReleaseFrame(f Frame) error
}

// AudioDevice represents an audio input device
type AudioDevice struct {
	ID      string
	Name    string
	Default bool
}
