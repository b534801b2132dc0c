package transcribe

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Default client parameters.
const (
	DefaultInferencePath = "/inference"
	DefaultTimeout       = 600 * time.Second
	DefaultHealthTimeout = 5 * time.Second
)

// Result is the parsed output of one transcription request.
type Result struct {
	Text     string
	Language string
}

// Backend is a transcription service variant. Implementations must honor
// ctx cancellation on every network operation.
type Backend interface {
	// Transcribe posts the audio file and returns the transcript.
	Transcribe(ctx context.Context, audioPath string) (Result, error)
	// Health issues a cheap request that checks the service is reachable.
	Health(ctx context.Context) error
}

// Options selects and parameterizes a backend. The Backend field is the
// config tag: "whisper", "openai", or "streaming".
type Options struct {
	Backend       string
	ServerURL     string
	InferencePath string
	APIKey        string
	Model         string
}

// NewBackend builds the configured backend variant.
func NewBackend(opts Options) (Backend, error) {
	if opts.ServerURL == "" {
		return nil, fmt.Errorf("transcription server URL is required")
	}
	serverURL := strings.TrimSuffix(opts.ServerURL, "/")

	switch opts.Backend {
	case "", "whisper":
		path := opts.InferencePath
		if path == "" {
			path = DefaultInferencePath
		}
		return newWhisperBackend(serverURL, path), nil
	case "openai":
		if opts.APIKey == "" {
			return nil, fmt.Errorf("openai backend requires an api key")
		}
		if opts.Model == "" {
			return nil, fmt.Errorf("openai backend requires a model")
		}
		return newOpenAIBackend(serverURL, opts.APIKey, opts.Model), nil
	case "streaming":
		return newStreamingBackend(serverURL, opts.APIKey), nil
	default:
		return nil, fmt.Errorf("unknown transcription backend %q", opts.Backend)
	}
}
