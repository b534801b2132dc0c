package audio

import (
	"fmt"
	"math"
	"sync"
	"sync/atomic"

	"github.com/gordonklaus/portaudio"
)

const (
	// DefaultFramesPerBuffer is the callback block size requested from the
	// audio server.
	DefaultFramesPerBuffer = 1024
	// DefaultQueueDepth is the live queue capacity in blocks, sized to
	// absorb scheduler and GC jitter on the writer side.
	DefaultQueueDepth = 512
	// rmsEveryK publishes RMS on every Kth callback to keep the hot path
	// cheap; peak is published on every callback.
	rmsEveryK = 10
)

// EngineConfig holds the capture parameters fixed at engine init.
type EngineConfig struct {
	SampleRate      int
	Channels        int
	BufferSeconds   int
	FramesPerBuffer int
	QueueDepth      int
	DeviceIndex     int // -1 selects the default input device
}

// DeviceInfo describes an available audio input device.
type DeviceInfo struct {
	Index      int
	Name       string
	SampleRate float64
	Channels   int
	IsDefault  bool
}

// String returns a human-readable representation of the device.
func (d DeviceInfo) String() string {
	suffix := ""
	if d.IsDefault {
		suffix = " (default)"
	}
	return fmt.Sprintf("[%d] %s - %dHz, %d ch%s",
		d.Index, d.Name, int(d.SampleRate), d.Channels, suffix)
}

// Engine owns the portaudio stream, the ring buffer, the live queue, and
// the atomic level scalars. The stream callback is the only writer of the
// ring and queue; everything it touches is pre-allocated here.
type Engine struct {
	cfg   EngineConfig
	ring  *Ring
	queue *LiveQueue

	stream *portaudio.Stream
	mu     sync.Mutex
	device *portaudio.DeviceInfo

	recording atomic.Bool
	seq       atomic.Uint64
	frames    atomic.Uint64

	peakBits atomic.Uint64 // float64 bits of the last block peak
	rmsBits  atomic.Uint64 // float64 bits of the last published RMS

	// Callback-local accumulators; touched only from the audio thread.
	sumSquares float64
	sumCount   int
	cbCount    int
}

// NewEngine initializes portaudio and pre-sizes every capture buffer.
// Close must be called to release the audio server.
func NewEngine(cfg EngineConfig) (*Engine, error) {
	if cfg.SampleRate <= 0 {
		return nil, fmt.Errorf("sample rate must be positive, got %d", cfg.SampleRate)
	}
	if cfg.BufferSeconds <= 0 {
		return nil, fmt.Errorf("buffer seconds must be positive, got %d", cfg.BufferSeconds)
	}
	if cfg.FramesPerBuffer <= 0 {
		cfg.FramesPerBuffer = DefaultFramesPerBuffer
	}
	if cfg.QueueDepth <= 0 {
		cfg.QueueDepth = DefaultQueueDepth
	}
	capacity := cfg.SampleRate * cfg.BufferSeconds
	if cfg.FramesPerBuffer > capacity {
		return nil, fmt.Errorf("frames per buffer %d exceeds ring capacity %d", cfg.FramesPerBuffer, capacity)
	}

	ring, err := NewRing(capacity, cfg.Channels)
	if err != nil {
		return nil, err
	}

	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("failed to initialize portaudio: %w", err)
	}

	return &Engine{
		cfg:   cfg,
		ring:  ring,
		queue: NewLiveQueue(cfg.FramesPerBuffer, cfg.Channels, cfg.QueueDepth),
	}, nil
}

// Start opens and starts the input stream on the configured device.
func (e *Engine) Start() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.stream != nil {
		return nil
	}

	device, err := inputDevice(e.cfg.DeviceIndex)
	if err != nil {
		return err
	}

	params := portaudio.LowLatencyParameters(device, nil)
	params.Input.Channels = e.cfg.Channels
	params.SampleRate = float64(e.cfg.SampleRate)
	params.FramesPerBuffer = e.cfg.FramesPerBuffer

	stream, err := portaudio.OpenStream(params, e.process)
	if err != nil {
		return fmt.Errorf("failed to open stream: %w", err)
	}
	if err := stream.Start(); err != nil {
		stream.Close()
		return fmt.Errorf("failed to start stream: %w", err)
	}

	e.stream = stream
	e.device = device
	return nil
}

// Stop stops and closes the input stream, leaving the ring intact.
func (e *Engine) Stop() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.stream == nil {
		return nil
	}
	err := e.stream.Stop()
	e.stream.Close()
	e.stream = nil
	e.device = nil
	return err
}

// Close stops the stream and releases portaudio.
func (e *Engine) Close() error {
	err := e.Stop()
	if terr := portaudio.Terminate(); err == nil {
		err = terr
	}
	return err
}

// SelectInput switches capture to another device. Refused while recording.
func (e *Engine) SelectInput(deviceIndex int) error {
	if e.recording.Load() {
		return fmt.Errorf("cannot change inputs while recording")
	}
	if _, err := inputDevice(deviceIndex); err != nil {
		return err
	}
	if err := e.Stop(); err != nil {
		return err
	}
	e.cfg.DeviceIndex = deviceIndex
	return e.Start()
}

// Connected reports whether an input stream is open.
func (e *Engine) Connected() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stream != nil
}

// InputName returns the active device name, or "" when disconnected.
func (e *Engine) InputName() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.device == nil {
		return ""
	}
	return e.device.Name
}

// process is the real-time stream callback. It must not allocate, lock,
// log, or block: ring write, level math, and non-blocking queue push only.
func (e *Engine) process(in []float32) {
	e.ring.Write(in)
	e.frames.Add(uint64(len(in) / e.cfg.Channels))

	var peak float32
	for _, s := range in {
		if s < 0 {
			s = -s
		}
		if s > peak {
			peak = s
		}
		e.sumSquares += float64(s) * float64(s)
	}
	e.sumCount += len(in)
	e.peakBits.Store(math.Float64bits(float64(peak)))

	e.cbCount++
	if e.cbCount >= rmsEveryK {
		if e.sumCount > 0 {
			rms := math.Sqrt(e.sumSquares / float64(e.sumCount))
			e.rmsBits.Store(math.Float64bits(rms))
		}
		e.sumSquares = 0
		e.sumCount = 0
		e.cbCount = 0
	}

	if e.recording.Load() {
		e.queue.Push(in, len(in)/e.cfg.Channels, e.seq.Add(1))
	}
}

// Levels returns the last published peak and RMS, both linear.
func (e *Engine) Levels() (peak, rms float64) {
	return math.Float64frombits(e.peakBits.Load()),
		math.Float64frombits(e.rmsBits.Load())
}

// FramesCaptured returns the total frames delivered by the audio server.
func (e *Engine) FramesCaptured() uint64 { return e.frames.Load() }

// Dropped returns the number of live blocks shed under queue pressure.
func (e *Engine) Dropped() uint64 { return e.queue.Dropped() }

// Ring exposes the pre-roll store for snapshotting.
func (e *Engine) Ring() *Ring { return e.ring }

// SampleRate returns the configured capture rate.
func (e *Engine) SampleRate() int { return e.cfg.SampleRate }

// Channels returns the configured channel count.
func (e *Engine) Channels() int { return e.cfg.Channels }

// BeginRecording drains stale blocks and arms live enqueueing. The returned
// queue is the writer's input.
func (e *Engine) BeginRecording() *LiveQueue {
	e.queue.Drain()
	e.recording.Store(true)
	return e.queue
}

// EndRecording disarms live enqueueing. Blocks already queued remain for
// the writer to drain.
func (e *Engine) EndRecording() {
	e.recording.Store(false)
}

// Devices returns the available audio input devices.
func Devices() ([]DeviceInfo, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, err
	}
	defer portaudio.Terminate()

	devices, err := portaudio.Devices()
	if err != nil {
		return nil, err
	}

	defaultDevice, _ := portaudio.DefaultInputDevice()
	var defaultName string
	if defaultDevice != nil {
		defaultName = defaultDevice.Name
	}

	var result []DeviceInfo
	for i, d := range devices {
		if d.MaxInputChannels > 0 {
			result = append(result, DeviceInfo{
				Index:      i,
				Name:       d.Name,
				SampleRate: d.DefaultSampleRate,
				Channels:   d.MaxInputChannels,
				IsDefault:  d.Name == defaultName,
			})
		}
	}
	return result, nil
}

func inputDevice(index int) (*portaudio.DeviceInfo, error) {
	if index < 0 {
		device, err := portaudio.DefaultInputDevice()
		if err != nil {
			return nil, fmt.Errorf("failed to get default input device: %w", err)
		}
		return device, nil
	}
	devices, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("failed to list devices: %w", err)
	}
	if index >= len(devices) {
		return nil, fmt.Errorf("device index %d out of range (max %d)", index, len(devices)-1)
	}
	if devices[index].MaxInputChannels <= 0 {
		return nil, fmt.Errorf("device %d (%s) has no input channels", index, devices[index].Name)
	}
	return devices[index], nil
}
