//go:build darwin

package permissions

/*
#cgo LDFLAGS: -framework AVFoundation
#import <AVFoundation/AVFoundation.h>

int microphoneStatus() {
    return (int)[AVCaptureDevice authorizationStatusForMediaType:AVMediaTypeAudio];
}

void requestMicrophone() {
    [AVCaptureDevice requestAccessForMediaType:AVMediaTypeAudio completionHandler:^(BOOL granted) {}];
}
*/
import "C"

import "fmt"

// Microphone returns the current microphone authorization status
func Microphone() Status {
	return Status(C.microphoneStatus())
}

// EnsureMicrophone fails unless the process may capture from the microphone.
// An undetermined status triggers the system prompt.
func EnsureMicrophone() error {
	status := Microphone()
	if status == Authorized {
		return nil
	}
	if status == NotDetermined {
		C.requestMicrophone()
	}
	return fmt.Errorf("%w: %s (System Settings > Privacy & Security > Microphone)", ErrMicrophoneDenied, status)
}
