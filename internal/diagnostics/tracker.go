// Package diagnostics provides state tracking and diagnostic dumping.
package diagnostics

import (
	"fmt"
	"os"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// Tracker records recorder state for debugging hung or silent conditions.
// Counter methods are safe from any goroutine, including none of them on
// the capture callback: the engine's own atomics are sampled into the
// tracker by the coordinator.
type Tracker struct {
	mu sync.RWMutex

	startTime time.Time

	// Capture stats (sampled from the engine atomics).
	framesCaptured atomic.Uint64
	blocksDropped  atomic.Uint64

	// Recording stats.
	recordingsStarted   atomic.Uint64
	recordingsCompleted atomic.Uint64
	recordingsDiscarded atomic.Uint64
	recordingsFailed    atomic.Uint64

	// Transcription stats.
	transcriptionAttempts  atomic.Uint64
	transcriptionSuccesses atomic.Uint64
	transcriptionFailures  atomic.Uint64

	// Connection state.
	backendHealthy   bool
	backendCheckedAt time.Time
	inputName        string

	// Last errors (for debugging).
	lastWriterErr       string
	lastWriterErrAt     time.Time
	lastTranscribeErr   string
	lastTranscribeErrAt time.Time

	// Current state string as reported by the controller.
	state string
}

// New creates a new diagnostic tracker.
func New() *Tracker {
	return &Tracker{startTime: time.Now()}
}

// SampleCapture updates the capture counters from the engine atomics.
func (t *Tracker) SampleCapture(frames, dropped uint64) {
	t.framesCaptured.Store(frames)
	t.blocksDropped.Store(dropped)
}

// RecordStarted counts a recording start.
func (t *Tracker) RecordStarted() { t.recordingsStarted.Add(1) }

// RecordCompleted counts a surviving recording.
func (t *Tracker) RecordCompleted() { t.recordingsCompleted.Add(1) }

// RecordDiscarded counts a below-floor disposal.
func (t *Tracker) RecordDiscarded() { t.recordingsDiscarded.Add(1) }

// RecordFailed records a writer failure.
func (t *Tracker) RecordFailed(err error) {
	t.recordingsFailed.Add(1)
	t.mu.Lock()
	defer t.mu.Unlock()
	t.lastWriterErr = err.Error()
	t.lastWriterErrAt = time.Now()
}

// SampleTranscription updates the dispatcher counters.
func (t *Tracker) SampleTranscription(attempts, successes, failures uint64) {
	t.transcriptionAttempts.Store(attempts)
	t.transcriptionSuccesses.Store(successes)
	t.transcriptionFailures.Store(failures)
}

// RecordTranscribeError keeps the most recent transcription failure.
func (t *Tracker) RecordTranscribeError(msg string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.lastTranscribeErr = msg
	t.lastTranscribeErrAt = time.Now()
}

// SetBackendHealth records the startup health probe outcome.
func (t *Tracker) SetBackendHealth(healthy bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.backendHealthy = healthy
	t.backendCheckedAt = time.Now()
}

// SetInput records the active input device name.
func (t *Tracker) SetInput(name string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.inputName = name
}

// SetState records the controller state string.
func (t *Tracker) SetState(state string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.state = state
}

// Dump returns a human-readable diagnostic report.
func (t *Tracker) Dump() string {
	t.mu.RLock()
	defer t.mu.RUnlock()

	var b strings.Builder
	now := time.Now()

	fmt.Fprintf(&b, "=== omega13 diagnostics ===\n")
	fmt.Fprintf(&b, "Generated: %s\n", now.Format(time.RFC3339))
	fmt.Fprintf(&b, "Uptime: %v\n", now.Sub(t.startTime).Round(time.Second))
	fmt.Fprintf(&b, "Goroutines: %d\n\n", runtime.NumGoroutine())

	fmt.Fprintf(&b, "-- State --\n")
	fmt.Fprintf(&b, "Controller: %s\n", t.state)
	fmt.Fprintf(&b, "Input: %s\n", t.inputName)
	fmt.Fprintf(&b, "Backend healthy: %v (checked %s)\n\n", t.backendHealthy, fmtTime(t.backendCheckedAt))

	fmt.Fprintf(&b, "-- Capture --\n")
	fmt.Fprintf(&b, "Frames captured: %d\n", t.framesCaptured.Load())
	fmt.Fprintf(&b, "Blocks dropped: %d\n\n", t.blocksDropped.Load())

	fmt.Fprintf(&b, "-- Recordings --\n")
	fmt.Fprintf(&b, "Started: %d\n", t.recordingsStarted.Load())
	fmt.Fprintf(&b, "Completed: %d\n", t.recordingsCompleted.Load())
	fmt.Fprintf(&b, "Discarded: %d\n", t.recordingsDiscarded.Load())
	fmt.Fprintf(&b, "Failed: %d\n", t.recordingsFailed.Load())
	if t.lastWriterErr != "" {
		fmt.Fprintf(&b, "Last writer error: %s (%s)\n", t.lastWriterErr, fmtTime(t.lastWriterErrAt))
	}
	b.WriteString("\n")

	fmt.Fprintf(&b, "-- Transcription --\n")
	fmt.Fprintf(&b, "Attempts: %d\n", t.transcriptionAttempts.Load())
	fmt.Fprintf(&b, "Successes: %d\n", t.transcriptionSuccesses.Load())
	fmt.Fprintf(&b, "Failures: %d\n", t.transcriptionFailures.Load())
	if t.lastTranscribeErr != "" {
		fmt.Fprintf(&b, "Last error: %s (%s)\n", t.lastTranscribeErr, fmtTime(t.lastTranscribeErrAt))
	}

	return b.String()
}

// DumpToFile writes the diagnostic report to the given path.
func (t *Tracker) DumpToFile(path string) error {
	return os.WriteFile(path, []byte(t.Dump()), 0644)
}

func fmtTime(tm time.Time) string {
	if tm.IsZero() {
		return "never"
	}
	return tm.Format(time.RFC3339)
}
