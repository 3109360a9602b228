// Package track describes the encoded media tracks handed to sinks.
package track

import "fmt"

// Type tags an encoded unit with the track it belongs to.
type Type int

const (
	Video Type = iota
	Audio
)

func (t Type) String() string {
	switch t {
	case Video:
		return "video"
	case Audio:
		return "audio"
	default:
		return fmt.Sprintf("track(%d)", int(t))
	}
}

// Default track and codec names
const (
	AudioTrackName = "audio"

	// Matroska codec IDs
	CodecNameOpus = "A_OPUS"
	CodecNamePCM  = "A_PCM/INT/LIT"
)

// Info is the metadata descriptor of an encoded audio track.
type Info struct {
	TrackName    string `json:"track_name"`
	CodecName    string `json:"codec_name"`
	SampleRate   int    `json:"sample_rate"`
	Channels     int    `json:"channels"`
	CodecPrivate []byte `json:"codec_private"`
}

// Clone returns a deep copy. The codec private bytes are never shared.
func (i *Info) Clone() *Info {
	if i == nil {
		return nil
	}
	c := *i
	if i.CodecPrivate != nil {
		c.CodecPrivate = make([]byte, len(i.CodecPrivate))
		copy(c.CodecPrivate, i.CodecPrivate)
	}
	return &c
}
