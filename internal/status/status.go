// Package status tracks the capture status shown to operators.
package status

import (
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// State is the capture status
type State string

const (
	Idle      State = "idle"
	Capturing State = "capturing"
	Error     State = "error"
)

// Indicator records status updates from the app and logs every change
type Indicator struct {
	log zerolog.Logger

	mu    sync.Mutex
	state State
	since time.Time
	now   func() time.Time
}

func New(log zerolog.Logger) *Indicator {
	return &Indicator{
		log:   log.With().Str("component", "status").Logger(),
		state: Idle,
		since: time.Now(),
		now:   time.Now,
	}
}

// Status update methods for the app to call
func (i *Indicator) SetIdle() {
	i.update(Idle)
}

func (i *Indicator) SetCapturing() {
	i.update(Capturing)
}

func (i *Indicator) SetError() {
	i.update(Error)
}

func (i *Indicator) update(s State) {
	i.mu.Lock()
	prev := i.state
	if prev == s {
		i.mu.Unlock()
		return
	}
	i.state = s
	i.since = i.now()
	i.mu.Unlock()

	ev := i.log.Info()
	if s == Error {
		ev = i.log.Warn()
	}
	ev.Str("from", string(prev)).Str("to", string(s)).Msg("Status changed")
}

// State returns the current status and when it was entered
func (i *Indicator) State() (State, time.Time) {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.state, i.since
}

func (i *Indicator) String() string {
	s, _ := i.State()
	return string(s)
}
