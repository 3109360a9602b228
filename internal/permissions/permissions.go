// Package permissions checks the OS permission needed for microphone capture.
package permissions

import (
	"errors"
	"fmt"
)

// ErrMicrophoneDenied is returned when capture from the microphone is not allowed
var ErrMicrophoneDenied = errors.New("microphone permission not granted")

// Status is a microphone authorization status, in AVFoundation's numbering
type Status int

const (
	NotDetermined Status = iota
	Restricted
	Denied
	Authorized
)

func (s Status) String() string {
	switch s {
	case NotDetermined:
		return "not determined"
	case Restricted:
		return "restricted"
	case Denied:
		return "denied"
	case Authorized:
		return "authorized"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}
