package transcribe

import (
	"context"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
)

// Dispatcher defaults.
const (
	DefaultMaxAttempts     = 3
	DefaultMaxConcurrent   = 2
	DefaultShutdownTimeout = 3 * time.Second
)

// Job is one recording queued for transcription.
type Job struct {
	SessionID      string
	Ordinal        int
	AudioPath      string
	TranscriptPath string
}

// DispatcherConfig bounds the worker pool and the retry schedule.
type DispatcherConfig struct {
	MaxConcurrent   int
	MaxAttempts     int
	Timeout         time.Duration
	ShutdownTimeout time.Duration
}

// Dispatcher runs one worker goroutine per submitted job, bounded in
// concurrency, retrying with exponential backoff, and cooperating with
// process shutdown: once shutdown begins, per-attempt timeouts shrink so
// workers fail fast instead of holding the exit hostage.
type Dispatcher struct {
	backend Backend
	cfg     DispatcherConfig
	log     *zap.Logger

	sem      *semaphore.Weighted
	wg       sync.WaitGroup
	ctx      context.Context
	cancel   context.CancelFunc
	draining atomic.Bool

	// OnTranscript and OnError are invoked from worker goroutines with
	// the job's terminal outcome. Both are optional.
	OnTranscript func(job Job, res Result)
	OnError      func(job Job, err error)

	attempts  atomic.Uint64
	successes atomic.Uint64
	failures  atomic.Uint64
}

// NewDispatcher builds a dispatcher over the given backend.
func NewDispatcher(backend Backend, cfg DispatcherConfig, log *zap.Logger) *Dispatcher {
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = DefaultMaxConcurrent
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultMaxAttempts
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = DefaultShutdownTimeout
	}
	if log == nil {
		log = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Dispatcher{
		backend: backend,
		cfg:     cfg,
		log:     log,
		sem:     semaphore.NewWeighted(int64(cfg.MaxConcurrent)),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Health runs the backend's reachability probe under DefaultHealthTimeout.
func (d *Dispatcher) Health(ctx context.Context) error {
	hctx, cancel := context.WithTimeout(ctx, DefaultHealthTimeout)
	defer cancel()
	return d.backend.Health(hctx)
}

// Submit queues a job. Returns an error only when shutdown has begun;
// backend failures are reported through OnError.
func (d *Dispatcher) Submit(job Job) error {
	if d.draining.Load() {
		return fmt.Errorf("dispatcher is shutting down")
	}
	d.wg.Add(1)
	go d.worker(job)
	return nil
}

func (d *Dispatcher) worker(job Job) {
	defer d.wg.Done()

	if err := d.sem.Acquire(d.ctx, 1); err != nil {
		d.fail(job, fmt.Errorf("abandoned before transcription started: %w", err))
		return
	}
	defer d.sem.Release(1)

	sched := backoff.NewExponentialBackOff()
	sched.InitialInterval = time.Second
	sched.Multiplier = 2
	sched.RandomizationFactor = 0
	sched.MaxElapsedTime = 0
	sched.Reset()

	var lastErr error
	for attempt := 1; attempt <= d.cfg.MaxAttempts; attempt++ {
		if d.ctx.Err() != nil {
			d.fail(job, fmt.Errorf("abandoned during shutdown after %d attempts: %w", attempt-1, lastErr))
			return
		}

		d.attempts.Add(1)
		res, err := d.attempt(job)
		if err == nil {
			d.succeed(job, res)
			return
		}
		lastErr = err
		d.log.Warn("transcription attempt failed",
			zap.String("audio", job.AudioPath),
			zap.Int("attempt", attempt),
			zap.Error(err))

		if attempt == d.cfg.MaxAttempts {
			break
		}
		if d.draining.Load() {
			d.fail(job, fmt.Errorf("abandoned during shutdown after %d attempts: %w", attempt, lastErr))
			return
		}
		select {
		case <-time.After(sched.NextBackOff()):
		case <-d.ctx.Done():
			d.fail(job, fmt.Errorf("abandoned during shutdown after %d attempts: %w", attempt, lastErr))
			return
		}
	}
	d.fail(job, fmt.Errorf("all %d attempts failed: %w", d.cfg.MaxAttempts, lastErr))
}

func (d *Dispatcher) attempt(job Job) (Result, error) {
	timeout := d.cfg.Timeout
	if d.draining.Load() {
		timeout = d.cfg.ShutdownTimeout
	}
	ctx, cancel := context.WithTimeout(d.ctx, timeout)
	defer cancel()
	return d.backend.Transcribe(ctx, job.AudioPath)
}

func (d *Dispatcher) succeed(job Job, res Result) {
	d.successes.Add(1)
	if job.TranscriptPath != "" {
		if err := os.WriteFile(job.TranscriptPath, []byte(res.Text+"\n"), 0644); err != nil {
			d.log.Warn("failed to write transcript file",
				zap.String("path", job.TranscriptPath),
				zap.Error(err))
		}
	}
	d.log.Info("transcription complete",
		zap.String("audio", job.AudioPath),
		zap.String("language", res.Language))
	if d.OnTranscript != nil {
		d.OnTranscript(job, res)
	}
}

func (d *Dispatcher) fail(job Job, err error) {
	d.failures.Add(1)
	d.log.Warn("transcription failed",
		zap.String("audio", job.AudioPath),
		zap.Error(err))
	if d.OnError != nil {
		d.OnError(job, err)
	}
}

// BeginShutdown rejects new jobs and shortens per-attempt timeouts. It
// does not wait; use Shutdown for that.
func (d *Dispatcher) BeginShutdown() {
	d.draining.Store(true)
}

// Shutdown waits for in-flight workers up to the ctx deadline, then
// cancels whatever is left. Workers abandoned here report through OnError.
func (d *Dispatcher) Shutdown(ctx context.Context) error {
	d.BeginShutdown()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		d.cancel()
		return nil
	case <-ctx.Done():
		d.cancel()
		<-done
		return fmt.Errorf("transcription workers abandoned at shutdown deadline")
	}
}

// Stats reports attempt/success/failure counters for diagnostics.
func (d *Dispatcher) Stats() (attempts, successes, failures uint64) {
	return d.attempts.Load(), d.successes.Load(), d.failures.Load()
}
