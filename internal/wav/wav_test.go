package wav

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "take.wav")

	enc, err := NewEncoder(path, 48000, 2)
	require.NoError(t, err)

	samples := []float32{0.0, 0.25, -0.5, 1.0, -1.0, 0.125}
	require.NoError(t, enc.WriteSamples(samples[:4]))
	require.NoError(t, enc.WriteSamples(samples[4:]))
	assert.Equal(t, 3, enc.Frames())
	require.NoError(t, enc.Close())

	f, err := Decode(path)
	require.NoError(t, err)
	assert.Equal(t, 48000, f.SampleRate)
	assert.Equal(t, 2, f.Channels)
	assert.Equal(t, 3, f.Frames())
	assert.Equal(t, samples, f.Samples)
}

func TestEncoderHeaderFields(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hdr.wav")

	enc, err := NewEncoder(path, 16000, 1)
	require.NoError(t, err)
	require.NoError(t, enc.WriteSamples(make([]float32, 16)))
	require.NoError(t, enc.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(data), 44)

	assert.Equal(t, "RIFF", string(data[0:4]))
	assert.Equal(t, "WAVE", string(data[8:12]))
	assert.Equal(t, uint16(3), binary.LittleEndian.Uint16(data[20:22]), "IEEE float format tag")
	assert.Equal(t, uint16(1), binary.LittleEndian.Uint16(data[22:24]))
	assert.Equal(t, uint32(16000), binary.LittleEndian.Uint32(data[24:28]))
	assert.Equal(t, uint16(32), binary.LittleEndian.Uint16(data[34:36]), "bits per sample")
	assert.Equal(t, uint32(64), binary.LittleEndian.Uint32(data[40:44]), "data chunk size")
	assert.Equal(t, uint32(36+64), binary.LittleEndian.Uint32(data[4:8]), "riff size")
}

func TestNewEncoderRejectsBadParameters(t *testing.T) {
	dir := t.TempDir()
	_, err := NewEncoder(filepath.Join(dir, "a.wav"), 0, 1)
	assert.Error(t, err)
	_, err = NewEncoder(filepath.Join(dir, "b.wav"), 48000, 0)
	assert.Error(t, err)
}

func TestDecodeRejectsNonWav(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bogus.wav")
	require.NoError(t, os.WriteFile(path, []byte("definitely not audio"), 0644))

	_, err := Decode(path)
	assert.Error(t, err)
}

func TestEmptyRecordingDecodes(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.wav")

	enc, err := NewEncoder(path, 48000, 1)
	require.NoError(t, err)
	require.NoError(t, enc.Close())

	f, err := Decode(path)
	require.NoError(t, err)
	assert.Equal(t, 0, f.Frames())
}
