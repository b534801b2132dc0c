// Package hooks executes external commands at recorder lifecycle events.
// This is the collaborator surface for desktop notifications, clipboard
// sinks, and anything else that wants to react to a finished recording or
// transcript without living inside the core.
package hooks

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/b08x/omega-13/internal/config"
)

// DefaultTimeout is the hook execution timeout when none is configured.
const DefaultTimeout = 5 * time.Second

// Lifecycle events hooks can subscribe to.
const (
	EventStart             = "on_start"
	EventRecordingComplete = "on_recording_complete"
	EventTranscript        = "on_transcript"
)

// Env carries event context into the hook command's environment.
type Env struct {
	SessionID string
	Ordinal   int
	AudioPath string
	Text      string
	Language  string
}

func (e Env) vars() []string {
	return []string{
		"OMEGA13_SESSION_ID=" + e.SessionID,
		fmt.Sprintf("OMEGA13_ORDINAL=%d", e.Ordinal),
		"OMEGA13_AUDIO_PATH=" + e.AudioPath,
		"OMEGA13_TEXT=" + e.Text,
		"OMEGA13_LANGUAGE=" + e.Language,
	}
}

// Runner executes configured hooks. Failures are logged and ignored: a
// broken notification script must never take down a recording.
type Runner struct {
	hooks []config.HookConfig
	log   *zap.Logger
	wg    sync.WaitGroup
}

// NewRunner creates a hook runner.
func NewRunner(hooks []config.HookConfig, log *zap.Logger) *Runner {
	if log == nil {
		log = zap.NewNop()
	}
	return &Runner{hooks: hooks, log: log}
}

// HasEvent reports whether any hook subscribes to the event.
func (r *Runner) HasEvent(event string) bool {
	for _, h := range r.hooks {
		if h.Event == event {
			return true
		}
	}
	return false
}

// Fire runs all hooks for the event in parallel and returns immediately.
func (r *Runner) Fire(ctx context.Context, event string, env Env) {
	for _, h := range r.hooks {
		if h.Event != event {
			continue
		}
		r.wg.Add(1)
		go func(hook config.HookConfig) {
			defer r.wg.Done()
			r.execute(ctx, hook, env)
		}(h)
	}
}

// Wait blocks until all in-flight hooks have finished.
func (r *Runner) Wait() {
	r.wg.Wait()
}

func (r *Runner) execute(ctx context.Context, hook config.HookConfig, env Env) {
	timeout := hook.Timeout.Duration()
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(cctx, "sh", "-c", hook.Command)
	cmd.Env = append(os.Environ(), env.vars()...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		r.log.Warn("hook failed",
			zap.String("hook", hook.Name),
			zap.String("event", hook.Event),
			zap.ByteString("output", out),
			zap.Error(err))
		return
	}
	r.log.Debug("hook completed",
		zap.String("hook", hook.Name),
		zap.String("event", hook.Event))
}
