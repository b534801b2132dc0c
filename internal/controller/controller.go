// Package controller owns the recording state machine. A single
// coordinator goroutine consumes operator toggles, detector edges, writer
// results, and shutdown, so no state is ever mutated from two places. The
// capture callback never appears here: it publishes metrics that the
// coordinator polls on its level tick.
package controller

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/b08x/omega-13/internal/audio"
	"github.com/b08x/omega-13/internal/detector"
	"github.com/b08x/omega-13/internal/session"
	"github.com/b08x/omega-13/internal/transcribe"
	"github.com/b08x/omega-13/internal/writer"
)

// State is the recording state machine position.
type State int32

const (
	StateIdle State = iota
	StateArmed
	StateRecordingManual
	StateRecordingAuto
	StateStopping
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateArmed:
		return "armed"
	case StateRecordingManual:
		return "recording_manual"
	case StateRecordingAuto:
		return "recording_auto"
	case StateStopping:
		return "stopping"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Recording reports whether audio is being persisted in this state.
func (s State) Recording() bool {
	return s == StateRecordingManual || s == StateRecordingAuto
}

// Defaults for controller behavior.
const (
	DefaultDiscardFloorDB      = -50.0
	DefaultActivityWindow      = 500 * time.Millisecond
	DefaultActivityThresholdDB = -70.0
	DefaultLevelInterval       = 50 * time.Millisecond // 20 Hz observer rate
)

// ErrNotRunning is returned by control calls after the coordinator exits.
var ErrNotRunning = errors.New("controller is not running")

// Engine is the capture surface the controller consumes. *audio.Engine
// implements it; tests substitute a fake.
type Engine interface {
	Connected() bool
	InputName() string
	Levels() (peak, rms float64)
	Ring() *audio.Ring
	BeginRecording() *audio.LiveQueue
	EndRecording()
	SampleRate() int
	Channels() int
}

// Observer receives the controller's outbound events. Implementations
// must not block; calls arrive on the coordinator goroutine.
type Observer interface {
	OnLevel(peak, rms float64)
	OnStateChange(state State)
	OnRecordingComplete(rec session.Recording)
	OnRecordingDiscarded(rec session.Recording)
	OnTranscript(ordinal int, text, language string)
	OnTranscriptError(ordinal int, kind string)
	OnCaptureBlocked(reason string)
}

// NopObserver discards every event.
type NopObserver struct{}

func (NopObserver) OnLevel(peak, rms float64)                   {}
func (NopObserver) OnStateChange(state State)                   {}
func (NopObserver) OnRecordingComplete(rec session.Recording)   {}
func (NopObserver) OnRecordingDiscarded(rec session.Recording)  {}
func (NopObserver) OnTranscript(ordinal int, text, lang string) {}
func (NopObserver) OnTranscriptError(ordinal int, kind string)  {}
func (NopObserver) OnCaptureBlocked(reason string)              {}

// Config tunes the controller.
type Config struct {
	AutoRecord          bool
	Detector            detector.Config
	DiscardFloorDB      float64
	ActivityWindow      time.Duration
	ActivityThresholdDB float64
	LevelInterval       time.Duration
	Transcribe          bool
	// KeepFailed retains the partial file of a recording that failed
	// mid-write; false deletes it.
	KeepFailed bool
}

// DefaultConfig returns the stock controller tuning.
func DefaultConfig() Config {
	return Config{
		Detector:            detector.DefaultConfig(),
		DiscardFloorDB:      DefaultDiscardFloorDB,
		ActivityWindow:      DefaultActivityWindow,
		ActivityThresholdDB: DefaultActivityThresholdDB,
		LevelInterval:       DefaultLevelInterval,
		KeepFailed:          true,
	}
}

type eventKind int

const (
	evToggle eventKind = iota
	evEnableAuto
	evDisableAuto
	evTranscript
	evTranscriptError
	evSave
	evDiscard
)

type event struct {
	kind eventKind

	// evTranscript / evTranscriptError
	ordinal  int
	text     string
	language string
	errKind  string

	// evSave / evDiscard
	dest  string
	title string
	reply chan saveReply
}

type saveReply struct {
	path string
	err  error
}

type activeRecording struct {
	ordinal   int
	path      string
	auto      bool
	startedAt time.Time
	w         *writer.Writer
}

type levelSample struct {
	at    time.Time
	rmsDB float64
}

// Controller coordinates triggers, the detector, the file writer, and the
// transcription dispatcher around one session.
type Controller struct {
	cfg    Config
	engine Engine
	sess   *session.Session
	det    *detector.Detector
	disp   *transcribe.Dispatcher
	obs    Observer
	log    *zap.Logger

	events  chan event
	stopped chan struct{}

	// Coordinator-owned state.
	state    State
	auto     bool
	cur      *activeRecording
	snapshot []float32
	recent   []levelSample

	stateMirror atomicState
}

// New builds a controller. dispatcher may be nil when transcription is
// disabled; observer may be nil.
func New(cfg Config, engine Engine, sess *session.Session, disp *transcribe.Dispatcher, obs Observer, log *zap.Logger) (*Controller, error) {
	det, err := detector.New(cfg.Detector)
	if err != nil {
		return nil, err
	}
	if cfg.DiscardFloorDB == 0 {
		cfg.DiscardFloorDB = DefaultDiscardFloorDB
	}
	if cfg.ActivityWindow <= 0 {
		cfg.ActivityWindow = DefaultActivityWindow
	}
	if cfg.ActivityThresholdDB == 0 {
		cfg.ActivityThresholdDB = DefaultActivityThresholdDB
	}
	if cfg.LevelInterval <= 0 {
		cfg.LevelInterval = DefaultLevelInterval
	}
	if obs == nil {
		obs = NopObserver{}
	}
	if log == nil {
		log = zap.NewNop()
	}

	c := &Controller{
		cfg:      cfg,
		engine:   engine,
		sess:     sess,
		det:      det,
		disp:     disp,
		obs:      obs,
		log:      log,
		events:   make(chan event, 64),
		stopped:  make(chan struct{}),
		state:    StateIdle,
		snapshot: make([]float32, engine.Ring().Capacity()*engine.Ring().Channels()),
	}
	c.stateMirror.set(StateIdle)

	if disp != nil {
		disp.OnTranscript = func(job transcribe.Job, res transcribe.Result) {
			c.post(event{kind: evTranscript, ordinal: job.Ordinal, text: res.Text, language: res.Language})
		}
		disp.OnError = func(job transcribe.Job, err error) {
			c.post(event{kind: evTranscriptError, ordinal: job.Ordinal, errKind: err.Error()})
		}
	}
	return c, nil
}

// State returns the current FSM state. Safe from any goroutine.
func (c *Controller) State() State { return c.stateMirror.get() }

// AutoEnabled reports whether auto-record mode is on. Safe from any
// goroutine only as a hint; the coordinator owns the truth.
func (c *Controller) AutoEnabled() bool { return c.stateMirror.auto() }

// Toggle advances the state machine one step from the operator's view:
// start when idle or armed, stop when recording.
func (c *Controller) Toggle() { c.post(event{kind: evToggle}) }

// SetAutoRecord enables or disables auto-record mode.
func (c *Controller) SetAutoRecord(enabled bool) {
	if enabled {
		c.post(event{kind: evEnableAuto})
	} else {
		c.post(event{kind: evDisableAuto})
	}
}

// SaveSession copies the session to dest and returns the permanent path.
// Blocks until the coordinator has performed the save.
func (c *Controller) SaveSession(dest, title string) (string, error) {
	reply := make(chan saveReply, 1)
	if !c.postWait(event{kind: evSave, dest: dest, title: title, reply: reply}) {
		return "", ErrNotRunning
	}
	select {
	case r := <-reply:
		return r.path, r.err
	case <-c.stopped:
		return "", ErrNotRunning
	}
}

// DiscardSession deletes the session's temp directory.
func (c *Controller) DiscardSession() error {
	reply := make(chan saveReply, 1)
	if !c.postWait(event{kind: evDiscard, reply: reply}) {
		return ErrNotRunning
	}
	select {
	case r := <-reply:
		return r.err
	case <-c.stopped:
		return ErrNotRunning
	}
}

// post delivers an event without ever blocking a producer; the channel is
// deep enough for any sane burst, and a full queue sheds the event with a
// log line rather than stalling a worker or signal handler.
func (c *Controller) post(e event) {
	select {
	case c.events <- e:
	case <-c.stopped:
	default:
		c.log.Warn("coordinator event queue full, event dropped")
	}
}

// postWait is post for callers who need the event accepted.
func (c *Controller) postWait(e event) bool {
	select {
	case c.events <- e:
		return true
	case <-c.stopped:
		return false
	}
}

// Run executes the coordinator loop until ctx is cancelled, then performs
// an orderly stop of any active recording.
func (c *Controller) Run(ctx context.Context) {
	defer close(c.stopped)

	if c.cfg.AutoRecord {
		c.enableAuto()
	}

	ticker := time.NewTicker(c.cfg.LevelInterval)
	defer ticker.Stop()

	for {
		var writerDone <-chan writer.Result
		if c.cur != nil {
			writerDone = c.cur.w.Done()
		}

		select {
		case <-ctx.Done():
			c.shutdown()
			return
		case e := <-c.events:
			c.handle(e)
		case res := <-writerDone:
			c.finishRecording(res)
		case <-ticker.C:
			c.tick(time.Now())
		}
	}
}

func (c *Controller) handle(e event) {
	switch e.kind {
	case evToggle:
		c.handleToggle()
	case evEnableAuto:
		c.enableAuto()
	case evDisableAuto:
		c.disableAuto()
	case evTranscript:
		if err := c.sess.AddTranscript(e.text); err != nil {
			c.log.Warn("failed to persist transcript", zap.Error(err))
		}
		c.obs.OnTranscript(e.ordinal, e.text, e.language)
	case evTranscriptError:
		c.obs.OnTranscriptError(e.ordinal, e.errKind)
	case evSave:
		path, err := c.sess.Save(e.dest, e.title)
		e.reply <- saveReply{path: path, err: err}
	case evDiscard:
		e.reply <- saveReply{err: c.sess.Discard()}
	}
}

func (c *Controller) handleToggle() {
	switch c.state {
	case StateIdle, StateArmed:
		if reason, ok := c.activityGate(); !ok {
			c.log.Info("capture blocked", zap.String("reason", reason))
			c.obs.OnCaptureBlocked(reason)
			return
		}
		c.startRecording(false)
	case StateRecordingManual, StateRecordingAuto:
		c.stopRecording()
	case StateStopping:
		c.log.Debug("toggle ignored while stopping")
	}
}

// activityGate guards a manual start: it refuses only when no input is
// connected. A connected but silent input passes — the gate exists to
// prevent recordings of nothing on dead graphs, not to second-guess the
// operator.
func (c *Controller) activityGate() (string, bool) {
	if !c.engine.Connected() {
		return "no audio inputs connected", false
	}
	if !c.recentActivity(time.Now()) {
		c.log.Debug("starting on a silent input",
			zap.String("input", c.engine.InputName()))
	}
	return "", true
}

// recentActivity reports whether RMS crossed the activity threshold inside
// the look-back window.
func (c *Controller) recentActivity(now time.Time) bool {
	for _, s := range c.recent {
		if now.Sub(s.at) <= c.cfg.ActivityWindow && s.rmsDB > c.cfg.ActivityThresholdDB {
			return true
		}
	}
	return false
}

func (c *Controller) enableAuto() {
	c.auto = true
	if c.state == StateIdle {
		c.transition(StateArmed, "auto-record enabled")
		c.det.Reset()
	}
	c.stateMirror.setAuto(true)
}

func (c *Controller) disableAuto() {
	c.auto = false
	c.stateMirror.setAuto(false)
	switch c.state {
	case StateArmed:
		c.transition(StateIdle, "auto-record disabled")
	case StateRecordingAuto:
		c.stopRecording()
	}
}

// startRecording snapshots the ring, arms the live queue, and spawns the
// writer. The snapshot is taken first: a callback block landing in the
// seam is absent from the file, trading at most one block of pre-roll for
// never writing the same block twice.
func (c *Controller) startRecording(auto bool) {
	ordinal, path := c.sess.NextRecording()
	frames := c.engine.Ring().Snapshot(c.snapshot)
	preroll := c.snapshot[:frames*c.engine.Channels()]
	queue := c.engine.BeginRecording()

	c.cur = &activeRecording{
		ordinal:   ordinal,
		path:      path,
		auto:      auto,
		startedAt: time.Now(),
		w:         writer.Start(path, preroll, queue, c.engine.SampleRate(), c.engine.Channels()),
	}
	c.det.Reset()

	if auto {
		c.transition(StateRecordingAuto, "signal onset")
	} else {
		c.transition(StateRecordingManual, "operator start")
	}
	c.log.Info("recording started",
		zap.Int("ordinal", ordinal),
		zap.String("path", path),
		zap.Int("preroll_frames", frames))
}

func (c *Controller) stopRecording() {
	if c.cur == nil {
		return
	}
	c.engine.EndRecording()
	c.cur.w.Stop()
	c.det.Reset()
	c.transition(StateStopping, "stopping recording")
}

// finishRecording runs when the writer posts its result: the one file per
// stop now exists (or failed), and the session can be updated.
func (c *Controller) finishRecording(res writer.Result) {
	cur := c.cur
	c.cur = nil
	if cur == nil {
		return
	}

	// A failed writer posts its result without ever being told to stop;
	// tear down unconditionally so the callback stops enqueueing and the
	// drained writer goroutine exits before the queue gets a new consumer.
	c.engine.EndRecording()
	cur.w.Stop()

	next := StateIdle
	if c.auto {
		next = StateArmed
	}

	rec := session.Recording{
		Ordinal:         cur.ordinal,
		Filename:        fmt.Sprintf("%03d.wav", cur.ordinal),
		Timestamp:       cur.startedAt,
		DurationSeconds: res.Duration.Seconds(),
		Channels:        c.engine.Channels(),
		SampleRate:      c.engine.SampleRate(),
		Peak:            res.Peak,
		AvgRMSDB:        audio.LinearToDB(res.RMS),
	}

	switch {
	case res.Err != nil:
		rec.Failed = true
		c.log.Error("recording failed", zap.Int("ordinal", cur.ordinal), zap.Error(res.Err))
		if !c.cfg.KeepFailed {
			if err := writer.Remove(cur.path); err != nil {
				c.log.Warn("failed to delete partial recording", zap.Error(err))
			}
		}
		if err := c.sess.Register(rec); err != nil {
			c.log.Warn("failed to persist session metadata", zap.Error(err))
		}
		c.obs.OnRecordingComplete(rec)

	case rec.AvgRMSDB < c.cfg.DiscardFloorDB:
		c.log.Info("recording discarded below energy floor",
			zap.Int("ordinal", cur.ordinal),
			zap.Float64("avg_rms_db", rec.AvgRMSDB),
			zap.Float64("floor_db", c.cfg.DiscardFloorDB))
		if err := writer.Remove(cur.path); err != nil {
			c.log.Warn("failed to delete discarded recording", zap.Error(err))
		}
		c.obs.OnRecordingDiscarded(rec)

	default:
		if err := c.sess.Register(rec); err != nil {
			c.log.Warn("failed to persist session metadata", zap.Error(err))
		}
		c.obs.OnRecordingComplete(rec)
		if c.cfg.Transcribe && c.disp != nil {
			err := c.disp.Submit(transcribe.Job{
				SessionID:      c.sess.ID,
				Ordinal:        cur.ordinal,
				AudioPath:      cur.path,
				TranscriptPath: c.sess.TranscriptPath(cur.ordinal),
			})
			if err != nil {
				c.log.Warn("transcription not queued", zap.Error(err))
			}
		}
	}

	c.det.Reset()
	reason := "recording stopped"
	if next == StateArmed {
		reason = "recording stopped, rearming"
	}
	c.transition(next, reason)
}

// tick polls the level atomics, publishes them, and feeds the detector.
func (c *Controller) tick(now time.Time) {
	peak, rms := c.engine.Levels()
	rmsDB := audio.LinearToDB(rms)
	c.obs.OnLevel(peak, rms)

	c.recent = append(c.recent, levelSample{at: now, rmsDB: rmsDB})
	cutoff := now.Add(-c.cfg.ActivityWindow)
	for len(c.recent) > 0 && c.recent[0].at.Before(cutoff) {
		c.recent = c.recent[1:]
	}

	edge := c.det.Update(rmsDB, now)
	switch c.state {
	case StateArmed:
		if edge == detector.EdgeOnset {
			c.startRecording(true)
		}
	case StateRecordingAuto:
		if edge == detector.EdgeOffset {
			c.log.Info("silence timeout elapsed, stopping")
			c.stopRecording()
		}
	}
}

// shutdown stops any active recording and waits for its file to close, so
// no captured audio is lost on exit.
func (c *Controller) shutdown() {
	if c.cur == nil {
		c.transition(StateIdle, "shutdown")
		return
	}
	if c.state.Recording() {
		c.stopRecording()
	}
	select {
	case res := <-c.cur.w.Done():
		c.finishRecording(res)
	case <-time.After(30 * time.Second):
		c.log.Error("writer did not finish before shutdown deadline, audio may be lost")
	}
	c.transition(StateIdle, "shutdown")
}

func (c *Controller) transition(next State, reason string) {
	if next == c.state {
		return
	}
	c.log.Info("state transition",
		zap.String("from", c.state.String()),
		zap.String("to", next.String()),
		zap.String("reason", reason))
	c.state = next
	c.stateMirror.set(next)
	c.obs.OnStateChange(next)
}
