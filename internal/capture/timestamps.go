package capture

import "time"

// Clock returns the current wall-clock time
type Clock func() time.Time

// BlockDurationMs is the play time of one block in whole milliseconds.
//
// bytesPerFrame is the size of one sample frame, bytes per sample times the
// channel count. Dividing by bytes per sample alone, as a mono-only formula
// would, doubles the duration of stereo blocks.
func BlockDurationMs(blockBytes, sampleRate, bytesPerFrame int) uint64 {
	return uint64(blockBytes) * 1000 / (uint64(sampleRate) * uint64(bytesPerFrame))
}

// Timestamps tracks the capture time of the block being accumulated.
//
// The clock is read only when a new block starts from an empty buffer; blocks
// that follow within the same chunk are spaced by the fixed block duration,
// modelling continuous device time rather than host scheduling. The running
// value never moves backwards.
type Timestamps struct {
	now     Clock
	step    uint64
	current uint64
}

// NewTimestamps creates a tracker advancing by stepMs per block
func NewTimestamps(now Clock, stepMs uint64) *Timestamps {
	if now == nil {
		now = time.Now
	}
	return &Timestamps{now: now, step: stepMs}
}

// Mark starts a new block at the current wall-clock time
func (t *Timestamps) Mark() {
	ms := t.now().UnixMilli()
	if ms < 0 {
		ms = 0
	}
	if now := uint64(ms); now > t.current {
		t.current = now
	}
}

// Current is the timestamp of the block being completed
func (t *Timestamps) Current() uint64 { return t.current }

// Advance moves past one completed block
func (t *Timestamps) Advance() { t.current += t.step }
