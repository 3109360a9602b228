//go:build !darwin

package permissions

// Microphone reports Authorized; only macOS gates capture per process.
func Microphone() Status {
	return Authorized
}

// EnsureMicrophone is a no-op on non-macOS platforms.
func EnsureMicrophone() error {
	return nil
}
