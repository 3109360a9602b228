package encoder

import (
	"encoding/binary"
	"fmt"

	"github.com/petems/audio-ingest/internal/config"
	"github.com/petems/audio-ingest/internal/track"
)

// opusPreSkip is the decoder pre-skip in 48 kHz samples (80 ms)
const opusPreSkip = 3840

// CodecPrivate generates the codec initialization bytes for a track:
// an RFC 7845 identification header for Opus, nothing for raw PCM.
func CodecPrivate(codec string, sampleRate, channels int) ([]byte, error) {
	switch codec {
	case config.CodecOpus:
		return opusHead(sampleRate, channels)
	case config.CodecPCM:
		return []byte{}, nil
	default:
		return nil, fmt.Errorf("no codec private data for codec %q", codec)
	}
}

// CodecName returns the Matroska codec ID for codec
func CodecName(codec string) string {
	switch codec {
	case config.CodecOpus:
		return track.CodecNameOpus
	case config.CodecPCM:
		return track.CodecNamePCM
	default:
		return codec
	}
}

func opusHead(sampleRate, channels int) ([]byte, error) {
	if sampleRate <= 0 {
		return nil, fmt.Errorf("opus head: invalid sample rate %d", sampleRate)
	}
	// Mapping family 0 only covers mono and stereo
	if channels < 1 || channels > 2 {
		return nil, fmt.Errorf("opus head: unsupported channel count %d", channels)
	}

	head := make([]byte, 19)
	copy(head, "OpusHead")
	head[8] = 1 // version
	head[9] = byte(channels)
	binary.LittleEndian.PutUint16(head[10:], opusPreSkip)
	binary.LittleEndian.PutUint32(head[12:], uint32(sampleRate))
	binary.LittleEndian.PutUint16(head[16:], 0) // output gain
	head[18] = 0                                // channel mapping family
	return head, nil
}
