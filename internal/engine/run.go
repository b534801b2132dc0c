// Package engine wires the recorder together: config, logging, capture,
// controller, dispatcher, hooks, history, diagnostics, and the signal
// surface, plus the graceful-shutdown sequence that keeps captured audio
// off the floor.
package engine

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/b08x/omega-13/internal/audio"
	"github.com/b08x/omega-13/internal/config"
	"github.com/b08x/omega-13/internal/controller"
	"github.com/b08x/omega-13/internal/diagnostics"
	"github.com/b08x/omega-13/internal/history"
	"github.com/b08x/omega-13/internal/hooks"
	"github.com/b08x/omega-13/internal/logging"
	"github.com/b08x/omega-13/internal/session"
	"github.com/b08x/omega-13/internal/transcribe"
	"github.com/b08x/omega-13/internal/trigger"
)

var version = "dev"

// ShutdownDeadline bounds the whole exit sequence; workers still busy
// when it expires are abandoned.
const ShutdownDeadline = 60 * time.Second

// Run executes the recorder until SIGINT/SIGTERM.
func Run(args []string, stdout, stderr io.Writer) error {
	flags, err := parseFlags(args, stderr)
	if err != nil {
		return err
	}
	if flags.ShowVersion {
		fmt.Fprintf(stdout, "omega13 version %s\n", version)
		return nil
	}
	if flags.ListDevices {
		return listDevices(stdout)
	}

	cfg, err := config.Load(config.FindConfigFile(flags.ConfigFile))
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	cfg = cfg.MergeFlags(flags.ToOverrides())
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	log := logging.New(cfg.Logging, cfg.Debug)
	defer log.Sync()

	return runEngine(cfg, log, stderr)
}

func listDevices(w io.Writer) error {
	devices, err := audio.Devices()
	if err != nil {
		return fmt.Errorf("failed to list devices: %w", err)
	}
	fmt.Fprintln(w, "Available audio input devices:")
	fmt.Fprintln(w)
	for _, d := range devices {
		fmt.Fprintln(w, " ", d.String())
	}
	return nil
}

func runEngine(cfg *config.Config, log *zap.Logger, stderr io.Writer) error {
	tempRoot := config.ExpandPath(cfg.Sessions.TempRoot)

	if cleaned, err := session.CleanupOld(tempRoot, cfg.Sessions.AutoCleanupDays, ""); err != nil {
		log.Warn("session cleanup failed", zap.Error(err))
	} else if cleaned > 0 {
		log.Info("cleaned up old sessions", zap.Int("count", cleaned))
	}

	pidPath := trigger.PIDPath()
	if err := trigger.WritePIDFile(pidPath); err != nil {
		return err
	}
	defer trigger.RemovePIDFile(pidPath)

	sess, err := session.New(tempRoot)
	if err != nil {
		return err
	}
	log.Info("session created", zap.String("id", sess.ID), zap.String("dir", sess.Dir))

	eng, err := audio.NewEngine(audio.EngineConfig{
		SampleRate:      cfg.Audio.SampleRate,
		Channels:        cfg.Audio.Channels,
		BufferSeconds:   cfg.Audio.BufferSeconds,
		FramesPerBuffer: cfg.Audio.FramesPerBuffer,
		QueueDepth:      cfg.Audio.QueueDepth,
		DeviceIndex:     cfg.Audio.DeviceIndex,
	})
	if err != nil {
		return fmt.Errorf("audio server unavailable: %w", err)
	}
	defer eng.Close()
	if err := eng.Start(); err != nil {
		return fmt.Errorf("audio server unavailable: %w", err)
	}
	log.Info("capture started",
		zap.String("input", eng.InputName()),
		zap.Int("sample_rate", eng.SampleRate()),
		zap.Int("channels", eng.Channels()),
		zap.Int("buffer_seconds", cfg.Audio.BufferSeconds))

	diag := diagnostics.New()
	diag.SetInput(eng.InputName())

	var hist *history.Store
	if h, err := history.Open(history.DefaultPath(tempRoot)); err != nil {
		log.Warn("transcript history unavailable", zap.Error(err))
	} else {
		hist = h
		defer hist.Close()
	}

	hookRunner := hooks.NewRunner(cfg.Hooks, log)

	var disp *transcribe.Dispatcher
	if cfg.Transcription.Enabled {
		backend, err := transcribe.NewBackend(cfg.BackendOptions())
		if err != nil {
			return err
		}
		disp = transcribe.NewDispatcher(backend, cfg.DispatcherConfig(), log)

		// Advisory probe: a dead backend degrades, it does not abort.
		if err := disp.Health(context.Background()); err != nil {
			diag.SetBackendHealth(false)
			log.Warn("transcription backend unreachable, transcripts will fail until it returns", zap.Error(err))
			fmt.Fprintf(stderr, "Warning: transcription backend unreachable: %v\n", err)
		} else {
			diag.SetBackendHealth(true)
		}
	}

	obs := &consoleObserver{
		stderr: stderr,
		sess:   sess,
		hooks:  hookRunner,
		hist:   hist,
		diag:   diag,
		log:    log,
	}

	ctrl, err := controller.New(cfg.ControllerConfig(), eng, sess, disp, obs, log)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	installSignals(ctx, cancel, ctrl, eng, diag, log)

	hookRunner.Fire(ctx, hooks.EventStart, hooks.Env{SessionID: sess.ID})

	fmt.Fprintf(stderr, "omega13 ready. Session %s\n", sess.ID)
	fmt.Fprintf(stderr, "Toggle recording with `omega13 toggle` or SIGUSR1; Ctrl+C to exit.\n")

	// Shutdown begins when ctx is cancelled; the deadline counts from then.
	shutdownAt := make(chan time.Time, 1)
	context.AfterFunc(ctx, func() { shutdownAt <- time.Now() })

	ctrl.Run(ctx)

	// Coordinator has stopped: the active writer, if any, has finished.
	// Give transcription the remainder of the shutdown budget.
	fmt.Fprintf(stderr, "\nShutting down...\n")
	deadline := (<-shutdownAt).Add(ShutdownDeadline)
	if disp != nil {
		sctx, scancel := context.WithDeadline(context.Background(), deadline)
		if err := disp.Shutdown(sctx); err != nil {
			log.Warn("unfinished transcriptions abandoned", zap.Error(err))
		}
		scancel()
		attempts, successes, failures := disp.Stats()
		diag.SampleTranscription(attempts, successes, failures)
	}
	hookRunner.Wait()

	if err := sess.SaveMetadata(); err != nil {
		log.Warn("failed to persist session metadata at exit", zap.Error(err))
	}
	if dropped := eng.Dropped(); dropped > 0 {
		log.Warn("capture blocks were dropped during this run", zap.Uint64("count", dropped))
	}
	log.Info("shutdown complete", zap.String("session", sess.ID))
	return nil
}

// installSignals wires the process signal surface: INT/TERM begin
// shutdown, USR1 is the toggle trigger, QUIT dumps diagnostics. Handlers
// only forward; all real work happens on the coordinator.
func installSignals(ctx context.Context, cancel context.CancelFunc, ctrl *controller.Controller, eng *audio.Engine, diag *diagnostics.Tracker, log *zap.Logger) {
	stopCh := make(chan os.Signal, 1)
	signal.Notify(stopCh, syscall.SIGINT, syscall.SIGTERM)

	toggleCh := make(chan os.Signal, 1)
	signal.Notify(toggleCh, syscall.SIGUSR1)

	diagCh := make(chan os.Signal, 1)
	signal.Notify(diagCh, syscall.SIGQUIT)

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-stopCh:
				cancel()
			case <-toggleCh:
				ctrl.Toggle()
			case <-diagCh:
				diag.SampleCapture(eng.FramesCaptured(), eng.Dropped())
				diag.SetState(ctrl.State().String())
				path := "./omega13-diagnostics.txt"
				if err := diag.DumpToFile(path); err != nil {
					log.Warn("failed to write diagnostics", zap.Error(err))
				} else {
					log.Info("diagnostics written", zap.String("path", path))
				}
			}
		}
	}()
}
