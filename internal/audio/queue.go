package audio

import "sync/atomic"

// Block is one callback's worth of interleaved samples in flight between
// the capture callback and the recording writer.
type Block struct {
	Samples []float32 // interleaved, Frames*channels valid samples
	Frames  int
	Seq     uint64
}

// LiveQueue carries post-trigger blocks from the capture callback to the
// recording writer. Single producer, single consumer. Blocks come from a
// pre-allocated pool recycled through a channel, so the callback path never
// allocates: a pool miss drops the block and bumps the drop counter instead
// of blocking the audio thread.
type LiveQueue struct {
	pool    chan *Block
	out     chan *Block
	dropped atomic.Uint64
}

// NewLiveQueue pre-allocates depth blocks of blockFrames frames each.
func NewLiveQueue(blockFrames, channels, depth int) *LiveQueue {
	q := &LiveQueue{
		pool: make(chan *Block, depth),
		out:  make(chan *Block, depth),
	}
	for i := 0; i < depth; i++ {
		q.pool <- &Block{Samples: make([]float32, blockFrames*channels)}
	}
	return q
}

// Push copies src into a pooled block and enqueues it. Returns false when
// the pool is exhausted or src exceeds the block size; the samples are
// dropped and the drop counter incremented. Safe for the callback: both
// channel operations are non-blocking.
func (q *LiveQueue) Push(src []float32, frames int, seq uint64) bool {
	var b *Block
	select {
	case b = <-q.pool:
	default:
		q.dropped.Add(1)
		return false
	}
	if len(src) > len(b.Samples) {
		q.pool <- b
		q.dropped.Add(1)
		return false
	}
	copy(b.Samples, src)
	b.Frames = frames
	b.Seq = seq
	select {
	case q.out <- b:
		return true
	default:
		q.pool <- b
		q.dropped.Add(1)
		return false
	}
}

// Blocks returns the consumer side of the queue.
func (q *LiveQueue) Blocks() <-chan *Block { return q.out }

// TryPop receives the next block without blocking, returning nil when the
// queue is empty. Used by the writer to drain after the stop signal.
func (q *LiveQueue) TryPop() *Block {
	select {
	case b := <-q.out:
		return b
	default:
		return nil
	}
}

// Release returns a consumed block to the pool.
func (q *LiveQueue) Release(b *Block) {
	select {
	case q.pool <- b:
	default:
		// Pool full means the queue was rebuilt; drop the stray block.
	}
}

// Drain moves any queued blocks straight back to the pool. Called between
// recordings so a new session starts from an empty queue.
func (q *LiveQueue) Drain() {
	for {
		b := q.TryPop()
		if b == nil {
			return
		}
		q.Release(b)
	}
}

// Dropped returns the number of blocks shed since creation.
func (q *LiveQueue) Dropped() uint64 { return q.dropped.Load() }
