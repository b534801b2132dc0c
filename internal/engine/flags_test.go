package engine

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFlagsDefaults(t *testing.T) {
	var stderr bytes.Buffer
	f, err := parseFlags(nil, &stderr)
	require.NoError(t, err)

	ov := f.ToOverrides()
	assert.False(t, ov.HasDeviceIndex)
	assert.False(t, ov.HasAutoRecord)
	assert.False(t, ov.HasTranscribe)
	assert.Empty(t, ov.ServerURL)
}

func TestParseFlagsOverrides(t *testing.T) {
	var stderr bytes.Buffer
	f, err := parseFlags([]string{
		"--server", "http://stt:8080",
		"--device", "2",
		"--buffer-seconds", "20",
		"--auto",
		"--transcribe=false",
	}, &stderr)
	require.NoError(t, err)

	ov := f.ToOverrides()
	assert.Equal(t, "http://stt:8080", ov.ServerURL)
	assert.True(t, ov.HasDeviceIndex)
	assert.Equal(t, 2, ov.DeviceIndex)
	assert.True(t, ov.HasBufferSeconds)
	assert.Equal(t, 20, ov.BufferSeconds)
	assert.True(t, ov.HasAutoRecord)
	assert.True(t, ov.AutoRecord)
	assert.True(t, ov.HasTranscribe)
	assert.False(t, ov.Transcribe)
}

func TestParseFlagsRejectsPositionalArgs(t *testing.T) {
	var stderr bytes.Buffer
	_, err := parseFlags([]string{"extra"}, &stderr)
	assert.Error(t, err)
}

func TestParseFlagsUnknownFlag(t *testing.T) {
	var stderr bytes.Buffer
	_, err := parseFlags([]string{"--bogus"}, &stderr)
	assert.Error(t, err)
}
