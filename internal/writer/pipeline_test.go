package writer

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/b08x/omega-13/internal/audio"
	"github.com/b08x/omega-13/internal/wav"
)

// Full-pipeline scenarios at real capture rates: ring pre-roll stitched to
// live blocks, sample counts exact.

const (
	scenarioRate  = 48000
	blockFrames   = 1024
	bufferSeconds = 13
)

// fillRing simulates seconds of capture into the ring in callback-sized
// blocks, returning the total frames written.
func fillRing(ring *audio.Ring, seconds float64) int {
	total := int(seconds * scenarioRate)
	block := make([]float32, blockFrames)
	for i := range block {
		block[i] = 0.25
	}
	written := 0
	for written < total {
		n := blockFrames
		if total-written < n {
			n = total - written
		}
		ring.Write(block[:n])
		written += n
	}
	return written
}

func pushLive(t *testing.T, q *audio.LiveQueue, seconds float64) {
	t.Helper()
	total := int(seconds * scenarioRate)
	block := make([]float32, blockFrames)
	for i := range block {
		block[i] = 0.25
	}
	pushed := 0
	seq := uint64(0)
	for pushed < total {
		n := blockFrames
		if total-pushed < n {
			n = total - pushed
		}
		seq++
		for !q.Push(block[:n], n, seq) {
			// Writer is draining concurrently; wait for pool headroom.
			time.Sleep(time.Millisecond)
		}
		pushed += n
	}
}

func TestScenarioPrerollCapture(t *testing.T) {
	// 20 s of capture into a 13 s buffer, record 5 s live: the file holds
	// exactly 18 s = 864,000 samples at 48 kHz mono.
	ring, err := audio.NewRing(scenarioRate*bufferSeconds, 1)
	require.NoError(t, err)
	fillRing(ring, 20)
	require.True(t, ring.Filled())

	snapshot := make([]float32, ring.Capacity())
	frames := ring.Snapshot(snapshot)
	assert.Equal(t, scenarioRate*bufferSeconds, frames)

	q := audio.NewLiveQueue(blockFrames, 1, audio.DefaultQueueDepth)
	path := filepath.Join(t.TempDir(), "scenario1.wav")
	w := Start(path, snapshot[:frames], q, scenarioRate, 1)

	pushLive(t, q, 5)
	w.Stop()

	res := waitResult(t, w)
	require.NoError(t, res.Err)
	assert.Equal(t, 864000, res.Frames)
	assert.InDelta(t, 18.0, res.Duration.Seconds(), 1e-9)

	f, err := wav.Decode(path)
	require.NoError(t, err)
	assert.Equal(t, 864000, f.Frames())
}

func TestScenarioShortRunPreroll(t *testing.T) {
	// 5 s of capture (buffer not yet filled), record 1 s live: 6 s of
	// audio, 288,000 samples.
	ring, err := audio.NewRing(scenarioRate*bufferSeconds, 1)
	require.NoError(t, err)
	fillRing(ring, 5)
	require.False(t, ring.Filled())

	snapshot := make([]float32, ring.Capacity())
	frames := ring.Snapshot(snapshot)
	assert.Equal(t, scenarioRate*5, frames, "pre-roll equals the cursor, not capacity")

	q := audio.NewLiveQueue(blockFrames, 1, audio.DefaultQueueDepth)
	path := filepath.Join(t.TempDir(), "scenario2.wav")
	w := Start(path, snapshot[:frames], q, scenarioRate, 1)

	pushLive(t, q, 1)
	w.Stop()

	res := waitResult(t, w)
	require.NoError(t, res.Err)
	assert.Equal(t, 288000, res.Frames)

	f, err := wav.Decode(path)
	require.NoError(t, err)
	assert.Equal(t, 288000, f.Frames())
	assert.Equal(t, scenarioRate, f.SampleRate)
}
