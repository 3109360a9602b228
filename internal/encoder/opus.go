package encoder

import (
	"fmt"

	"layeh.com/gopus"
)

// Sample rates and frame durations libopus accepts
var (
	opusSampleRates    = map[int]bool{8000: true, 12000: true, 16000: true, 24000: true, 48000: true}
	opusFrameDurations = map[int]bool{10: true, 20: true, 40: true, 60: true}
)

// opusEncoder wraps a gopus Opus encoder
type opusEncoder struct {
	enc       *gopus.Encoder
	frameSize int // samples per channel
	blockSize int
	pcm       []int16
}

func newOpus(p Params) (*opusEncoder, error) {
	if !opusSampleRates[p.SampleRate] {
		return nil, fmt.Errorf("opus: unsupported sample rate %d", p.SampleRate)
	}
	if !opusFrameDurations[p.FrameDurationMs] {
		return nil, fmt.Errorf("opus: unsupported frame duration %d ms", p.FrameDurationMs)
	}
	if p.Channels > 2 {
		return nil, fmt.Errorf("opus: unsupported channel count %d", p.Channels)
	}

	app, err := opusApplication(p.Profile)
	if err != nil {
		return nil, err
	}

	enc, err := gopus.NewEncoder(p.SampleRate, p.Channels, app)
	if err != nil {
		return nil, fmt.Errorf("opus: create encoder: %w", err)
	}
	if p.BitRate > 0 {
		enc.SetBitrate(p.BitRate)
	}

	return &opusEncoder{
		enc:       enc,
		frameSize: p.SamplesPerChannel(),
		blockSize: p.BlockSize(),
		pcm:       make([]int16, p.SamplesPerChannel()*p.Channels),
	}, nil
}

func opusApplication(profile string) (gopus.Application, error) {
	switch profile {
	case "", "audio":
		return gopus.Audio, nil
	case "voip":
		return gopus.Voip, nil
	case "lowdelay":
		return gopus.RestrictedLowDelay, nil
	default:
		return 0, fmt.Errorf("opus: unknown profile %q", profile)
	}
}

func (e *opusEncoder) BlockSize() int { return e.blockSize }

// Encode encodes one block of little-endian int16 PCM into an Opus packet
func (e *opusEncoder) Encode(pcm, out []byte) (int, error) {
	if len(pcm) != e.blockSize {
		return 0, fmt.Errorf("%w: got %d bytes, want %d", ErrBlockSize, len(pcm), e.blockSize)
	}
	bytesToInt16s(e.pcm, pcm)

	packet, err := e.enc.Encode(e.pcm, e.frameSize, len(out))
	if err != nil {
		return 0, fmt.Errorf("opus: encode: %w", err)
	}
	return copy(out, packet), nil
}

func (e *opusEncoder) Close() error { return nil }

// bytesToInt16s converts little-endian bytes into dst without allocating
func bytesToInt16s(dst []int16, b []byte) {
	for i := range dst {
		dst[i] = int16(b[i*2]) | int16(b[i*2+1])<<8
	}
}
