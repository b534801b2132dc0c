package audio

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seq(start, n int) []float32 {
	out := make([]float32, n)
	for i := range out {
		out[i] = float32(start + i)
	}
	return out
}

func TestNewRingValidation(t *testing.T) {
	_, err := NewRing(0, 1)
	assert.Error(t, err)

	_, err = NewRing(100, 0)
	assert.Error(t, err)

	r, err := NewRing(100, 2)
	require.NoError(t, err)
	assert.Equal(t, 100, r.Capacity())
	assert.Equal(t, 2, r.Channels())
	assert.False(t, r.Filled())
}

func TestRingSnapshotBeforeFill(t *testing.T) {
	r, err := NewRing(10, 1)
	require.NoError(t, err)

	r.Write(seq(0, 4))

	dst := make([]float32, 10)
	frames := r.Snapshot(dst)
	assert.Equal(t, 4, frames)
	assert.Equal(t, seq(0, 4), dst[:4])
	assert.False(t, r.Filled())
}

func TestRingWrapUnwrapsOldestFirst(t *testing.T) {
	r, err := NewRing(10, 1)
	require.NoError(t, err)

	// 14 samples into a 10-frame ring: the last 10 survive.
	r.Write(seq(0, 6))
	r.Write(seq(6, 6))
	r.Write(seq(12, 2))

	require.True(t, r.Filled())

	dst := make([]float32, 10)
	frames := r.Snapshot(dst)
	assert.Equal(t, 10, frames)
	assert.Equal(t, seq(4, 10), dst)
}

func TestRingExactBoundaryLatchesFilled(t *testing.T) {
	r, err := NewRing(8, 1)
	require.NoError(t, err)

	r.Write(seq(0, 8))
	assert.True(t, r.Filled())
	assert.Equal(t, 0, r.Cursor())

	dst := make([]float32, 8)
	assert.Equal(t, 8, r.Snapshot(dst))
	assert.Equal(t, seq(0, 8), dst)
}

func TestRingCapacityProperty(t *testing.T) {
	// Sustained writes of arbitrary block sizes totalling more than
	// capacity always snapshot exactly capacity frames.
	r, err := NewRing(48, 1)
	require.NoError(t, err)

	sizes := []int{7, 13, 1, 31, 5, 17, 23, 9}
	next := 0
	for _, n := range sizes {
		r.Write(seq(next, n))
		next += n
	}
	require.Greater(t, next, 48)
	require.True(t, r.Filled())

	dst := make([]float32, 48)
	frames := r.Snapshot(dst)
	assert.Equal(t, 48, frames)
	assert.Equal(t, seq(next-48, 48), dst)
}

func TestRingInterleavedChannels(t *testing.T) {
	r, err := NewRing(4, 2)
	require.NoError(t, err)

	// 6 frames of stereo into a 4-frame ring.
	r.Write(seq(0, 12))

	dst := make([]float32, 8)
	frames := r.Snapshot(dst)
	assert.Equal(t, 4, frames)
	assert.Equal(t, seq(4, 8), dst)
}

func TestLinearToDB(t *testing.T) {
	assert.InDelta(t, 0.0, LinearToDB(1.0), 1e-9)
	assert.InDelta(t, -20.0, LinearToDB(0.1), 1e-9)
	assert.Equal(t, -100.0, LinearToDB(0))
	assert.Equal(t, -100.0, LinearToDB(1e-6))
}
