// Package encoder turns fixed-size PCM blocks into encoded audio frames.
//
// An Encoder dictates the block size the capture pipeline accumulates: every
// call to Encode receives exactly BlockSize bytes of interleaved little-endian
// 16-bit PCM.
package encoder

import (
	"errors"
	"fmt"

	"github.com/petems/audio-ingest/internal/config"
)

// ErrBlockSize is returned when Encode receives a block of the wrong length
var ErrBlockSize = errors.New("encoder: input is not one block")

// Encoder encodes one PCM block at a time. Implementations are not safe for
// concurrent use.
type Encoder interface {
	// BlockSize is the required input length in bytes
	BlockSize() int
	// Encode writes the encoded form of pcm into out and returns its length
	Encode(pcm, out []byte) (int, error)
	Close() error
}

// Params is the encoder configuration derived from the capture settings
type Params struct {
	Codec           string
	SampleRate      int
	Channels        int
	BitRate         int
	Profile         string
	FrameDurationMs int
}

// ParamsFrom derives encoder parameters from capture and encoder settings
func ParamsFrom(cc config.CaptureConfig, ec config.EncoderConfig) Params {
	return Params{
		Codec:           ec.Codec,
		SampleRate:      cc.SampleRate,
		Channels:        cc.Channels,
		BitRate:         ec.BitRate,
		Profile:         ec.Profile,
		FrameDurationMs: ec.FrameDurationMs,
	}
}

// SamplesPerChannel is the number of samples per channel in one block
func (p Params) SamplesPerChannel() int {
	return p.SampleRate * p.FrameDurationMs / 1000
}

// BlockSize is the block length in bytes for 16-bit samples
func (p Params) BlockSize() int {
	return p.SamplesPerChannel() * p.Channels * 2
}

// New creates the encoder named by p.Codec
func New(p Params) (Encoder, error) {
	if p.SampleRate <= 0 || p.Channels <= 0 {
		return nil, fmt.Errorf("invalid encoder format: %d Hz, %d channels", p.SampleRate, p.Channels)
	}
	if p.FrameDurationMs <= 0 || p.SamplesPerChannel() == 0 {
		return nil, fmt.Errorf("invalid frame duration: %d ms", p.FrameDurationMs)
	}

	switch p.Codec {
	case config.CodecOpus:
		return newOpus(p)
	case config.CodecPCM:
		return newPCM(p), nil
	default:
		return nil, fmt.Errorf("unknown codec: %q", p.Codec)
	}
}

// pcmEncoder passes blocks through unchanged
type pcmEncoder struct {
	blockSize int
}

func newPCM(p Params) *pcmEncoder {
	return &pcmEncoder{blockSize: p.BlockSize()}
}

func (e *pcmEncoder) BlockSize() int { return e.blockSize }

func (e *pcmEncoder) Encode(pcm, out []byte) (int, error) {
	if len(pcm) != e.blockSize {
		return 0, fmt.Errorf("%w: got %d bytes, want %d", ErrBlockSize, len(pcm), e.blockSize)
	}
	if len(out) < len(pcm) {
		return 0, fmt.Errorf("pcm: output buffer too small: %d < %d", len(out), len(pcm))
	}
	return copy(out, pcm), nil
}

func (e *pcmEncoder) Close() error { return nil }
