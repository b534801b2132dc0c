// Package config handles configuration loading and merging for omega13.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/b08x/omega-13/internal/controller"
	"github.com/b08x/omega-13/internal/detector"
	"github.com/b08x/omega-13/internal/transcribe"
)

// Config holds all configuration values for the recorder.
type Config struct {
	Audio         AudioConfig         `yaml:"audio"`
	AutoRecord    AutoRecordConfig    `yaml:"auto_record"`
	Recording     RecordingConfig     `yaml:"recording"`
	Transcription TranscriptionConfig `yaml:"transcription"`
	Sessions      SessionsConfig      `yaml:"sessions"`
	Logging       LoggingConfig       `yaml:"logging"`
	Hooks         []HookConfig        `yaml:"hooks"`
	Debug         bool                `yaml:"debug"`
}

// AudioConfig fixes the capture parameters at engine init.
type AudioConfig struct {
	SampleRate      int `yaml:"sample_rate"`
	Channels        int `yaml:"channels"`
	BufferSeconds   int `yaml:"buffer_seconds"`
	FramesPerBuffer int `yaml:"frames_per_buffer"`
	QueueDepth      int `yaml:"queue_depth"`
	DeviceIndex     int `yaml:"device_index"` // -1 means default device
}

// AutoRecordConfig holds the signal detector thresholds.
type AutoRecordConfig struct {
	Enabled           bool    `yaml:"enabled"`
	OnsetThresholdDB  float64 `yaml:"onset_threshold_db"`
	OffsetThresholdDB float64 `yaml:"offset_threshold_db"`
	OnsetSustainSec   float64 `yaml:"onset_sustain_seconds"`
	SilenceTimeoutSec float64 `yaml:"silence_timeout_seconds"`
}

// RecordingConfig holds post-stop disposition policy.
type RecordingConfig struct {
	DiscardFloorDB float64 `yaml:"discard_floor_db"`
	KeepFailed     bool    `yaml:"keep_failed"`
}

// TranscriptionConfig selects and parameterizes the transcription backend.
// Backend is a tag: "whisper" (whisper-server HTTP), "openai"
// (OpenAI-compatible HTTP), or "streaming" (moshi-style websocket ASR).
type TranscriptionConfig struct {
	Enabled            bool   `yaml:"enabled"`
	Backend            string `yaml:"backend"`
	ServerURL          string `yaml:"server_url"`
	InferencePath      string `yaml:"inference_path"`
	APIKey             string `yaml:"api_key"`
	Model              string `yaml:"model"`
	TimeoutSec         int    `yaml:"timeout_seconds"`
	MaxAttempts        int    `yaml:"max_attempts"`
	MaxConcurrent      int    `yaml:"max_concurrent"`
	ShutdownTimeoutSec int    `yaml:"shutdown_timeout_seconds"`
}

// SessionsConfig controls the on-disk session layout.
type SessionsConfig struct {
	TempRoot            string `yaml:"temp_root"`
	DefaultSaveLocation string `yaml:"default_save_location"`
	AutoCleanupDays     int    `yaml:"auto_cleanup_days"`
}

// LoggingConfig configures the zap logger.
type LoggingConfig struct {
	Level      string `yaml:"level"`
	File       string `yaml:"file"` // empty disables the file sink
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
}

// HookConfig defines an external command run at a lifecycle event.
// Valid events: on_start, on_recording_complete, on_transcript.
type HookConfig struct {
	Name    string   `yaml:"name"`
	Command string   `yaml:"command"`
	Event   string   `yaml:"event"`
	Timeout Duration `yaml:"timeout"`
}

// Duration is a wrapper around time.Duration for YAML unmarshaling.
// Accepts plain integers (seconds) or Go duration strings.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler for Duration.
func (d *Duration) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var secs int
	if err := unmarshal(&secs); err == nil {
		*d = Duration(time.Duration(secs) * time.Second)
		return nil
	}

	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	if s == "" {
		*d = 0
		return nil
	}
	dur, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(dur)
	return nil
}

// Duration returns the underlying time.Duration.
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

// Default returns a Config with default values.
func Default() *Config {
	return &Config{
		Audio: AudioConfig{
			SampleRate:      48000,
			Channels:        2,
			BufferSeconds:   13,
			FramesPerBuffer: 1024,
			QueueDepth:      512,
			DeviceIndex:     -1,
		},
		AutoRecord: AutoRecordConfig{
			Enabled:           false,
			OnsetThresholdDB:  -35.0,
			OffsetThresholdDB: -40.0,
			OnsetSustainSec:   0.5,
			SilenceTimeoutSec: 10.0,
		},
		Recording: RecordingConfig{
			DiscardFloorDB: -50.0,
			KeepFailed:     true,
		},
		Transcription: TranscriptionConfig{
			Enabled:            true,
			Backend:            "whisper",
			ServerURL:          "http://localhost:8080",
			InferencePath:      "/inference",
			TimeoutSec:         600,
			MaxAttempts:        3,
			MaxConcurrent:      2,
			ShutdownTimeoutSec: 3,
		},
		Sessions: SessionsConfig{
			TempRoot:            filepath.Join(os.TempDir(), "omega13"),
			DefaultSaveLocation: defaultSaveLocation(),
			AutoCleanupDays:     7,
		},
		Logging: LoggingConfig{
			Level:      "info",
			MaxSizeMB:  10,
			MaxBackups: 3,
		},
	}
}

func defaultSaveLocation() string {
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, "Recordings")
	}
	return "."
}

// Load reads configuration from a YAML file.
// If the file doesn't exist, returns default configuration.
// If the file exists but is invalid, returns an error.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, err
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// FindConfigFile searches for a config file in standard locations.
// If explicitPath is provided, returns it directly.
func FindConfigFile(explicitPath string) string {
	if explicitPath != "" {
		return explicitPath
	}

	locations := []string{
		".omega13.yaml",
		".omega13.yml",
	}
	if home, err := os.UserHomeDir(); err == nil {
		locations = append(locations,
			filepath.Join(home, ".config", "omega13", "config.yaml"),
			filepath.Join(home, ".config", "omega13", "config.yml"),
		)
	}

	for _, loc := range locations {
		if _, err := os.Stat(loc); err == nil {
			return loc
		}
	}
	return ""
}

// FlagOverrides contains CLI flag values that override config file
// settings. Has* fields indicate whether the flag was explicitly set.
type FlagOverrides struct {
	ServerURL     string
	TempRoot      string
	SaveLocation  string
	DeviceIndex   int
	BufferSeconds int
	AutoRecord    bool
	Transcribe    bool
	Debug         bool

	HasDeviceIndex   bool
	HasBufferSeconds bool
	HasAutoRecord    bool
	HasTranscribe    bool
	HasDebug         bool
}

// MergeFlags creates a new Config with flag overrides applied.
func (c *Config) MergeFlags(flags *FlagOverrides) *Config {
	merged := *c

	if flags.ServerURL != "" {
		merged.Transcription.ServerURL = flags.ServerURL
	}
	if flags.TempRoot != "" {
		merged.Sessions.TempRoot = flags.TempRoot
	}
	if flags.SaveLocation != "" {
		merged.Sessions.DefaultSaveLocation = flags.SaveLocation
	}
	if flags.HasDeviceIndex {
		merged.Audio.DeviceIndex = flags.DeviceIndex
	}
	if flags.HasBufferSeconds {
		merged.Audio.BufferSeconds = flags.BufferSeconds
	}
	if flags.HasAutoRecord {
		merged.AutoRecord.Enabled = flags.AutoRecord
	}
	if flags.HasTranscribe {
		merged.Transcription.Enabled = flags.Transcribe
	}
	if flags.HasDebug {
		merged.Debug = flags.Debug
	}

	return &merged
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Audio.SampleRate <= 0 {
		return errors.New("audio sample rate must be positive")
	}
	if c.Audio.Channels <= 0 {
		return errors.New("audio channel count must be positive")
	}
	if c.Audio.BufferSeconds <= 0 {
		return errors.New("buffer seconds must be positive")
	}
	if c.Audio.FramesPerBuffer > c.Audio.SampleRate*c.Audio.BufferSeconds {
		return errors.New("frames per buffer exceeds ring buffer capacity")
	}
	if c.AutoRecord.OnsetThresholdDB <= c.AutoRecord.OffsetThresholdDB {
		return fmt.Errorf("onset threshold %.1f dB must be above offset threshold %.1f dB",
			c.AutoRecord.OnsetThresholdDB, c.AutoRecord.OffsetThresholdDB)
	}
	if c.AutoRecord.OnsetSustainSec < 0 || c.AutoRecord.SilenceTimeoutSec < 0 {
		return errors.New("auto-record durations must not be negative")
	}
	if c.Transcription.Enabled {
		if c.Transcription.ServerURL == "" {
			return errors.New("transcription server URL is required")
		}
		switch c.Transcription.Backend {
		case "", "whisper", "streaming":
		case "openai":
			if c.Transcription.APIKey == "" {
				return errors.New("openai transcription backend requires an api key")
			}
			if c.Transcription.Model == "" {
				return errors.New("openai transcription backend requires a model")
			}
		default:
			return fmt.Errorf("unknown transcription backend %q", c.Transcription.Backend)
		}
	}
	if c.Sessions.TempRoot == "" {
		return errors.New("session temp root is required")
	}
	for _, h := range c.Hooks {
		switch h.Event {
		case "on_start", "on_recording_complete", "on_transcript":
		default:
			return fmt.Errorf("hook %q has unknown event %q", h.Name, h.Event)
		}
		if h.Command == "" {
			return fmt.Errorf("hook %q has no command", h.Name)
		}
	}
	return nil
}

// DetectorConfig maps the auto-record section onto detector thresholds.
func (c *Config) DetectorConfig() detector.Config {
	return detector.Config{
		OnsetThresholdDB:  c.AutoRecord.OnsetThresholdDB,
		OffsetThresholdDB: c.AutoRecord.OffsetThresholdDB,
		OnsetSustain:      time.Duration(c.AutoRecord.OnsetSustainSec * float64(time.Second)),
		SilenceTimeout:    time.Duration(c.AutoRecord.SilenceTimeoutSec * float64(time.Second)),
	}
}

// ControllerConfig maps onto the coordinator's tuning.
func (c *Config) ControllerConfig() controller.Config {
	cfg := controller.DefaultConfig()
	cfg.AutoRecord = c.AutoRecord.Enabled
	cfg.Detector = c.DetectorConfig()
	cfg.DiscardFloorDB = c.Recording.DiscardFloorDB
	cfg.KeepFailed = c.Recording.KeepFailed
	cfg.Transcribe = c.Transcription.Enabled
	return cfg
}

// BackendOptions maps the transcription section onto backend options.
func (c *Config) BackendOptions() transcribe.Options {
	return transcribe.Options{
		Backend:       c.Transcription.Backend,
		ServerURL:     c.Transcription.ServerURL,
		InferencePath: c.Transcription.InferencePath,
		APIKey:        c.Transcription.APIKey,
		Model:         c.Transcription.Model,
	}
}

// DispatcherConfig maps the transcription section onto dispatcher bounds.
func (c *Config) DispatcherConfig() transcribe.DispatcherConfig {
	return transcribe.DispatcherConfig{
		MaxConcurrent:   c.Transcription.MaxConcurrent,
		MaxAttempts:     c.Transcription.MaxAttempts,
		Timeout:         time.Duration(c.Transcription.TimeoutSec) * time.Second,
		ShutdownTimeout: time.Duration(c.Transcription.ShutdownTimeoutSec) * time.Second,
	}
}

// ExpandPath expands ~ to the user's home directory.
func ExpandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, path[2:])
		}
	}
	if path == "~" {
		if home, err := os.UserHomeDir(); err == nil {
			return home
		}
	}
	return path
}
