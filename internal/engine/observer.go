package engine

import (
	"context"
	"fmt"
	"io"
	"time"

	"go.uber.org/zap"

	"github.com/b08x/omega-13/internal/controller"
	"github.com/b08x/omega-13/internal/diagnostics"
	"github.com/b08x/omega-13/internal/history"
	"github.com/b08x/omega-13/internal/hooks"
	"github.com/b08x/omega-13/internal/session"
)

// consoleObserver is the CLI's observer implementation: state and
// recording events go to stderr for the operator, transcripts fan out to
// the hook runner and the history archive. Level events are consumed
// silently; there is no meter to draw without a UI attached.
type consoleObserver struct {
	stderr io.Writer
	sess   *session.Session
	hooks  *hooks.Runner
	hist   *history.Store
	diag   *diagnostics.Tracker
	log    *zap.Logger
}

func (o *consoleObserver) OnLevel(peak, rms float64) {}

func (o *consoleObserver) OnStateChange(state controller.State) {
	o.diag.SetState(state.String())
	switch state {
	case controller.StateRecordingManual, controller.StateRecordingAuto:
		o.diag.RecordStarted()
		fmt.Fprintf(o.stderr, "[REC] recording (%s)\n", state)
	case controller.StateArmed:
		fmt.Fprintf(o.stderr, "[ARMED] waiting for signal\n")
	case controller.StateIdle:
		fmt.Fprintf(o.stderr, "[IDLE]\n")
	}
}

func (o *consoleObserver) OnRecordingComplete(rec session.Recording) {
	if rec.Failed {
		o.diag.RecordFailed(fmt.Errorf("recording %03d failed mid-write", rec.Ordinal))
		fmt.Fprintf(o.stderr, "Recording %03d FAILED (disk error)\n", rec.Ordinal)
		return
	}
	o.diag.RecordCompleted()
	fmt.Fprintf(o.stderr, "Recording %03d complete: %.1fs, peak %.2f, avg %.1f dB\n",
		rec.Ordinal, rec.DurationSeconds, rec.Peak, rec.AvgRMSDB)
	o.hooks.Fire(context.Background(), hooks.EventRecordingComplete, hooks.Env{
		SessionID: o.sess.ID,
		Ordinal:   rec.Ordinal,
		AudioPath: o.sess.RecordingPath(rec.Ordinal),
	})
}

func (o *consoleObserver) OnRecordingDiscarded(rec session.Recording) {
	o.diag.RecordDiscarded()
	fmt.Fprintf(o.stderr, "Recording %03d discarded (avg %.1f dB below floor)\n",
		rec.Ordinal, rec.AvgRMSDB)
}

func (o *consoleObserver) OnTranscript(ordinal int, text, language string) {
	fmt.Fprintf(o.stderr, "Transcript %03d [%s]: %s\n", ordinal, language, text)
	if o.hist != nil {
		err := o.hist.Append(history.Entry{
			SessionID: o.sess.ID,
			Ordinal:   ordinal,
			CreatedAt: time.Now(),
			Language:  language,
			Text:      text,
		})
		if err != nil {
			o.log.Warn("failed to archive transcript", zap.Error(err))
		}
	}
	o.hooks.Fire(context.Background(), hooks.EventTranscript, hooks.Env{
		SessionID: o.sess.ID,
		Ordinal:   ordinal,
		AudioPath: o.sess.RecordingPath(ordinal),
		Text:      text,
		Language:  language,
	})
}

func (o *consoleObserver) OnTranscriptError(ordinal int, kind string) {
	o.diag.RecordTranscribeError(kind)
	fmt.Fprintf(o.stderr, "Transcription of %03d failed: %s\n", ordinal, kind)
}

func (o *consoleObserver) OnCaptureBlocked(reason string) {
	fmt.Fprintf(o.stderr, "Cannot start recording: %s\n", reason)
}
