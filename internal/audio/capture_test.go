package audio

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testEngine builds an Engine without touching portaudio so the callback
// body can be driven directly.
func testEngine(t *testing.T, sampleRate, channels, bufferSeconds int) *Engine {
	t.Helper()
	ring, err := NewRing(sampleRate*bufferSeconds, channels)
	require.NoError(t, err)
	return &Engine{
		cfg: EngineConfig{
			SampleRate:      sampleRate,
			Channels:        channels,
			BufferSeconds:   bufferSeconds,
			FramesPerBuffer: 8,
			QueueDepth:      16,
		},
		ring:  ring,
		queue: NewLiveQueue(8, channels, 16),
	}
}

func TestProcessWritesRingAndPeak(t *testing.T) {
	e := testEngine(t, 16, 1, 1)

	e.process([]float32{0.1, -0.5, 0.2, 0.3})

	peak, _ := e.Levels()
	assert.InDelta(t, 0.5, peak, 1e-6)
	assert.Equal(t, uint64(4), e.FramesCaptured())

	dst := make([]float32, 16)
	frames := e.Ring().Snapshot(dst)
	assert.Equal(t, 4, frames)
	assert.Equal(t, []float32{0.1, -0.5, 0.2, 0.3}, dst[:4])
}

func TestProcessPublishesRMSEveryKth(t *testing.T) {
	e := testEngine(t, 16, 1, 1)

	block := []float32{0.5, 0.5}
	for i := 0; i < rmsEveryK-1; i++ {
		e.process(block)
	}
	_, rms := e.Levels()
	assert.Equal(t, 0.0, rms)

	e.process(block)
	_, rms = e.Levels()
	assert.InDelta(t, 0.5, rms, 1e-6)

	// Accumulators reset for the next window.
	quiet := []float32{0.1, 0.1}
	for i := 0; i < rmsEveryK; i++ {
		e.process(quiet)
	}
	_, rms = e.Levels()
	assert.InDelta(t, 0.1, rms, 1e-6)
}

func TestProcessEnqueuesOnlyWhileRecording(t *testing.T) {
	e := testEngine(t, 16, 1, 1)

	e.process([]float32{0.1, 0.2})
	assert.Nil(t, e.queue.TryPop())

	q := e.BeginRecording()
	e.process([]float32{0.3, 0.4})
	e.process([]float32{0.5, 0.6})

	b := q.TryPop()
	require.NotNil(t, b)
	assert.Equal(t, uint64(1), b.Seq)
	assert.Equal(t, []float32{0.3, 0.4}, b.Samples[:2])
	q.Release(b)

	e.EndRecording()
	e.process([]float32{0.7, 0.8})

	b = q.TryPop()
	require.NotNil(t, b)
	assert.Equal(t, uint64(2), b.Seq)
	q.Release(b)
	assert.Nil(t, q.TryPop())
}

func TestBeginRecordingDrainsStaleBlocks(t *testing.T) {
	e := testEngine(t, 16, 1, 1)

	e.BeginRecording()
	e.process([]float32{0.1})
	e.EndRecording()

	q := e.BeginRecording()
	assert.Nil(t, q.TryPop())
}

func TestProcessDropCounterUnderPressure(t *testing.T) {
	e := testEngine(t, 16, 1, 1)
	e.queue = NewLiveQueue(8, 1, 2)

	e.BeginRecording()
	for i := 0; i < 5; i++ {
		e.process([]float32{float32(i)})
	}
	assert.Equal(t, uint64(3), e.Dropped())
}

func TestNewEngineRejectsBadConfig(t *testing.T) {
	_, err := NewEngine(EngineConfig{SampleRate: 0, Channels: 1, BufferSeconds: 13})
	assert.Error(t, err)

	_, err = NewEngine(EngineConfig{SampleRate: 48000, Channels: 1, BufferSeconds: 0})
	assert.Error(t, err)

	_, err = NewEngine(EngineConfig{
		SampleRate: 100, Channels: 1, BufferSeconds: 1, FramesPerBuffer: 200,
	})
	assert.Error(t, err)
}

func TestLevelsBitsRoundTrip(t *testing.T) {
	e := testEngine(t, 16, 1, 1)
	e.peakBits.Store(math.Float64bits(0.25))
	peak, _ := e.Levels()
	assert.Equal(t, 0.25, peak)
}
