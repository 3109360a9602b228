package audio

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// wavFileDevice replays a 16-bit PCM WAV file as if it were captured live.
// The file format must match the configured attributes; nothing is resampled.
type wavFileDevice struct {
	path     string
	realtime bool
	attr     Attributes

	file  *os.File
	dec   *wav.Decoder
	buf   *goaudio.IntBuffer
	frame []byte
	level level
	held  bool
	seq   uint64
	next  time.Time
}

// NewWAVFile creates a device that reads frames from the WAV file at path.
// With realtime set, frames become ready at the rate they were recorded.
func NewWAVFile(path string, realtime bool) Device {
	return &wavFileDevice{path: path, realtime: realtime, level: newLevel()}
}

func (w *wavFileDevice) Configure(attr Attributes) error {
	if attr.BitDepth != 16 {
		return fmt.Errorf("unsupported bit depth: %d", attr.BitDepth)
	}
	if attr.SampleRate <= 0 || attr.Channels <= 0 || attr.FramesPerBuffer <= 0 {
		return fmt.Errorf("invalid capture attributes: %+v", attr)
	}
	w.attr = attr
	return nil
}

func (w *wavFileDevice) Enable() error {
	file, err := os.Open(w.path)
	if err != nil {
		return fmt.Errorf("failed to open wav file: %w", err)
	}

	dec := wav.NewDecoder(file)
	dec.ReadInfo()
	if !dec.IsValidFile() {
		file.Close()
		return fmt.Errorf("%s is not a valid WAV audio file", w.path)
	}

	if int(dec.SampleRate) != w.attr.SampleRate || int(dec.NumChans) != w.attr.Channels || int(dec.BitDepth) != w.attr.BitDepth {
		file.Close()
		return fmt.Errorf("wav format %d Hz/%d ch/%d bit does not match capture format %d Hz/%d ch/%d bit",
			dec.SampleRate, dec.NumChans, dec.BitDepth, w.attr.SampleRate, w.attr.Channels, w.attr.BitDepth)
	}

	w.file = file
	w.dec = dec
	return nil
}

func (w *wavFileDevice) EnableChannel(params ChannelParams) error {
	if w.dec == nil {
		return ErrNotEnabled
	}
	w.buf = &goaudio.IntBuffer{
		Data:           make([]int, w.attr.FramesPerBuffer*w.attr.Channels),
		Format:         &goaudio.Format{SampleRate: w.attr.SampleRate, NumChannels: w.attr.Channels},
		SourceBitDepth: w.attr.BitDepth,
	}
	w.frame = make([]byte, w.attr.FrameBytes())
	w.next = time.Now()
	return nil
}

func (w *wavFileDevice) SetVolume(volume int) error {
	return w.level.setVolume(volume)
}

func (w *wavFileDevice) SetGain(gain int) error {
	return w.level.setGain(gain)
}

func (w *wavFileDevice) PollFrame(timeout time.Duration) error {
	if w.buf == nil {
		return ErrNotEnabled
	}
	if !w.realtime {
		return nil
	}

	wait := time.Until(w.next)
	if wait > timeout {
		time.Sleep(timeout)
		return ErrPollTimeout
	}
	if wait > 0 {
		time.Sleep(wait)
	}
	return nil
}

func (w *wavFileDevice) GetFrame() (Frame, error) {
	if w.buf == nil {
		return Frame{}, ErrNotEnabled
	}

	n, err := w.dec.PCMBuffer(w.buf)
	if err != nil && !errors.Is(err, io.EOF) {
		return Frame{}, fmt.Errorf("failed to decode wav: %w", err)
	}
	// Keep whole sample frames only
	n -= n % w.attr.Channels
	if n == 0 {
		return Frame{}, ErrEndOfStream
	}

	data := w.frame[:n*2]
	for i, s := range w.buf.Data[:n] {
		data[i*2] = byte(s)
		data[i*2+1] = byte(s >> 8)
	}
	w.level.apply(data)

	w.next = w.next.Add(time.Duration(n/w.attr.Channels) * time.Second / time.Duration(w.attr.SampleRate))
	w.held = true
	w.seq++
	return Frame{Data: data, Seq: w.seq}, nil
}

func (w *wavFileDevice) ReleaseFrame(f Frame) error {
	if !w.held || f.Seq != w.seq {
		return ErrFrameNotHeld
	}
	w.held = false
	return nil
}

func (w *wavFileDevice) DisableChannel() error {
	w.buf = nil
	return nil
}

func (w *wavFileDevice) Disable() error {
	w.dec = nil
	if w.file == nil {
		return nil
	}
	err := w.file.Close()
	w.file = nil
	if err != nil && !errors.Is(err, os.ErrClosed) {
		return fmt.Errorf("failed to close wav file: %w", err)
	}
	return nil
}
