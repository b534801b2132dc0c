// Package writer drains the live queue into a WAV file. One writer runs
// per recording: it stitches the ring-buffer snapshot in front of the live
// blocks, tracks level statistics, and posts a single Result back to the
// controller when done.
package writer

import (
	"math"
	"os"
	"sync"
	"time"

	"github.com/b08x/omega-13/internal/audio"
	"github.com/b08x/omega-13/internal/wav"
)

// Result is the writer's report to the controller. Exactly one Result is
// delivered per Start call.
type Result struct {
	Path     string
	Frames   int
	Duration time.Duration
	Peak     float64 // linear
	RMS      float64 // linear average over the whole file
	Err      error
}

// Writer is the handle the controller keeps while a recording is active.
type Writer struct {
	stop     chan struct{}
	stopOnce sync.Once
	done     chan Result
}

// Start spawns the writer goroutine. preroll is the unwrapped ring
// snapshot (interleaved, may be empty); queue delivers the live blocks.
// The writer runs until Stop is called and the queue is drained.
func Start(path string, preroll []float32, queue *audio.LiveQueue, sampleRate, channels int) *Writer {
	w := &Writer{
		stop: make(chan struct{}),
		done: make(chan Result, 1),
	}
	go w.run(path, preroll, queue, sampleRate, channels)
	return w
}

// Stop signals the writer to finish once the queue is empty. Idempotent:
// the controller stops a writer both when the recording ends and again
// when it settles the result, and a failed writer is only ever stopped
// from the latter path.
func (w *Writer) Stop() {
	w.stopOnce.Do(func() { close(w.stop) })
}

// Done delivers the writer's Result. The channel is buffered so the writer
// never blocks on a slow controller.
func (w *Writer) Done() <-chan Result {
	return w.done
}

func (w *Writer) run(path string, preroll []float32, queue *audio.LiveQueue, sampleRate, channels int) {
	var (
		sumSquares float64
		sumCount   int
		peak       float64
	)
	track := func(samples []float32) {
		for _, s := range samples {
			v := float64(s)
			if v < 0 {
				v = -v
			}
			if v > peak {
				peak = v
			}
			sumSquares += v * v
		}
		sumCount += len(samples)
	}

	finish := func(enc *wav.Encoder, err error) {
		res := Result{Path: path, Err: err}
		if enc != nil {
			res.Frames = enc.Frames()
			res.Duration = time.Duration(enc.Frames()) * time.Second / time.Duration(sampleRate)
			if cerr := enc.Close(); cerr != nil && res.Err == nil {
				res.Err = cerr
			}
		}
		res.Peak = peak
		if sumCount > 0 {
			res.RMS = math.Sqrt(sumSquares / float64(sumCount))
		}
		w.done <- res
	}

	enc, err := wav.NewEncoder(path, sampleRate, channels)
	if err != nil {
		w.done <- Result{Path: path, Err: err}
		w.drainUntilStopped(queue)
		return
	}

	if len(preroll) > 0 {
		track(preroll)
		if err := enc.WriteSamples(preroll); err != nil {
			finish(enc, err)
			w.drainUntilStopped(queue)
			return
		}
	}

	for {
		select {
		case b := <-queue.Blocks():
			samples := b.Samples[:b.Frames*channels]
			track(samples)
			err := enc.WriteSamples(samples)
			queue.Release(b)
			if err != nil {
				finish(enc, err)
				w.drainUntilStopped(queue)
				return
			}
		case <-w.stop:
			// Stop is set; drain whatever the callback enqueued before the
			// recording flag cleared, then close.
			for {
				b := queue.TryPop()
				if b == nil {
					finish(enc, nil)
					return
				}
				samples := b.Samples[:b.Frames*channels]
				track(samples)
				err := enc.WriteSamples(samples)
				queue.Release(b)
				if err != nil {
					finish(enc, err)
					queue.Drain()
					return
				}
			}
		}
	}
}

// drainUntilStopped keeps recycling blocks after a write failure so the
// capture callback's pool never starves while the controller reacts.
func (w *Writer) drainUntilStopped(queue *audio.LiveQueue) {
	for {
		select {
		case b := <-queue.Blocks():
			queue.Release(b)
		case <-w.stop:
			queue.Drain()
			return
		}
	}
}

// Remove deletes a written file, used when a recording is discarded below
// the energy floor.
func Remove(path string) error {
	err := os.Remove(path)
	if os.IsNotExist(err) {
		return nil
	}
	return err
}
