package transcribe

import (
	"context"
	"fmt"

	"github.com/go-resty/resty/v2"
)

// whisperBackend talks to a whisper-server style HTTP endpoint: multipart
// POST of the WAV to the inference path, JSON body back.
type whisperBackend struct {
	client *resty.Client
	root   string
	path   string
}

type inferenceResponse struct {
	Text     string `json:"text"`
	Language string `json:"language"`
	Error    string `json:"error"`
}

func newWhisperBackend(serverURL, inferencePath string) *whisperBackend {
	return &whisperBackend{
		client: resty.New().SetBaseURL(serverURL),
		root:   serverURL,
		path:   inferencePath,
	}
}

func (b *whisperBackend) Transcribe(ctx context.Context, audioPath string) (Result, error) {
	var payload inferenceResponse
	resp, err := b.client.R().
		SetContext(ctx).
		SetFile("file", audioPath).
		SetFormData(map[string]string{
			"response_format": "json",
			"temperature":     "0.0",
		}).
		SetResult(&payload).
		Post(b.path)
	if err != nil {
		return Result{}, fmt.Errorf("transcription request failed: %w", err)
	}
	if resp.IsError() {
		return Result{}, fmt.Errorf("transcription server returned %s", resp.Status())
	}
	if payload.Error != "" {
		return Result{}, fmt.Errorf("transcription server error: %s", payload.Error)
	}
	return Result{Text: payload.Text, Language: payload.Language}, nil
}

func (b *whisperBackend) Health(ctx context.Context) error {
	// Any HTTP answer means the server is up; whisper-server replies 200
	// on the root page.
	if _, err := b.client.R().SetContext(ctx).Get("/"); err != nil {
		return fmt.Errorf("transcription backend unreachable: %w", err)
	}
	return nil
}
