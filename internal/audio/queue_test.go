package audio

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLiveQueueOrderPreserved(t *testing.T) {
	q := NewLiveQueue(4, 1, 8)

	for i := 0; i < 5; i++ {
		ok := q.Push([]float32{float32(i)}, 1, uint64(i+1))
		require.True(t, ok)
	}

	for i := 0; i < 5; i++ {
		b := q.TryPop()
		require.NotNil(t, b)
		assert.Equal(t, uint64(i+1), b.Seq)
		assert.Equal(t, float32(i), b.Samples[0])
		q.Release(b)
	}
	assert.Nil(t, q.TryPop())
	assert.Equal(t, uint64(0), q.Dropped())
}

func TestLiveQueueDropsOnExhaustion(t *testing.T) {
	q := NewLiveQueue(4, 1, 2)

	assert.True(t, q.Push([]float32{1}, 1, 1))
	assert.True(t, q.Push([]float32{2}, 1, 2))
	// Pool empty: degradation path, not failure.
	assert.False(t, q.Push([]float32{3}, 1, 3))
	assert.Equal(t, uint64(1), q.Dropped())

	// Releasing a block makes room again.
	b := q.TryPop()
	require.NotNil(t, b)
	q.Release(b)
	assert.True(t, q.Push([]float32{4}, 1, 4))
}

func TestLiveQueueRejectsOversizedBlock(t *testing.T) {
	q := NewLiveQueue(2, 1, 2)

	assert.False(t, q.Push([]float32{1, 2, 3}, 3, 1))
	assert.Equal(t, uint64(1), q.Dropped())
	assert.Nil(t, q.TryPop())
}

func TestLiveQueueDrain(t *testing.T) {
	q := NewLiveQueue(4, 1, 4)

	require.True(t, q.Push([]float32{1}, 1, 1))
	require.True(t, q.Push([]float32{2}, 1, 2))
	q.Drain()

	assert.Nil(t, q.TryPop())
	// All blocks back in the pool.
	for i := 0; i < 4; i++ {
		assert.True(t, q.Push([]float32{float32(i)}, 1, uint64(i)))
	}
}
