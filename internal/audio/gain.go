package audio

import (
	"encoding/binary"
	"fmt"
	"math"
)

// level holds the software volume and gain applied to captured samples
type level struct {
	volume int // percent
	gain   int // dB
	factor float64
}

func newLevel() level {
	return level{volume: 100, factor: 1}
}

func (l *level) setVolume(v int) error {
	if v < 0 || v > 100 {
		return fmt.Errorf("volume out of range [0,100]: %d", v)
	}
	l.volume = v
	l.update()
	return nil
}

func (l *level) setGain(g int) error {
	if g < -30 || g > 30 {
		return fmt.Errorf("gain out of range [-30,30]: %d", g)
	}
	l.gain = g
	l.update()
	return nil
}

func (l *level) update() {
	l.factor = float64(l.volume) / 100 * math.Pow(10, float64(l.gain)/20)
}

// apply scales little-endian int16 samples in place, clamping to int16 range
func (l *level) apply(pcm []byte) {
	if l.factor == 1 {
		return
	}
	for i := 0; i+1 < len(pcm); i += 2 {
		s := float64(int16(binary.LittleEndian.Uint16(pcm[i:])))
		s *= l.factor
		if s > math.MaxInt16 {
			s = math.MaxInt16
		} else if s < math.MinInt16 {
			s = math.MinInt16
		}
		binary.LittleEndian.PutUint16(pcm[i:], uint16(int16(s)))
	}
}

// int16sToBytes writes samples into dst as little-endian bytes
func int16sToBytes(dst []byte, pcm []int16) {
	for i, s := range pcm {
		dst[i*2] = byte(s)
		dst[i*2+1] = byte(s >> 8)
	}
}
