package permissions

import (
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStatusString(t *testing.T) {
	assert.Equal(t, "not determined", NotDetermined.String())
	assert.Equal(t, "restricted", Restricted.String())
	assert.Equal(t, "denied", Denied.String())
	assert.Equal(t, "authorized", Authorized.String())
	assert.Equal(t, "status(7)", Status(7).String())
}

func TestEnsureMicrophoneOffMacOS(t *testing.T) {
	if runtime.GOOS == "darwin" {
		t.Skip("depends on the host's privacy settings")
	}
	assert.NoError(t, EnsureMicrophone())
	assert.Equal(t, Authorized, Microphone())
}
