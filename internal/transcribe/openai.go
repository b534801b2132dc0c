package transcribe

import (
	"context"
	"fmt"

	"github.com/go-resty/resty/v2"
)

const openAITranscriptionPath = "/v1/audio/transcriptions"

// openAIBackend posts to an OpenAI-compatible transcription endpoint: the
// same multipart shape as whisper-server plus a model field and bearer
// auth. Works against cloud APIs and self-hosted compatibles alike.
type openAIBackend struct {
	client *resty.Client
	model  string
}

func newOpenAIBackend(serverURL, apiKey, model string) *openAIBackend {
	return &openAIBackend{
		client: resty.New().SetBaseURL(serverURL).SetAuthToken(apiKey),
		model:  model,
	}
}

func (b *openAIBackend) Transcribe(ctx context.Context, audioPath string) (Result, error) {
	var payload inferenceResponse
	resp, err := b.client.R().
		SetContext(ctx).
		SetFile("file", audioPath).
		SetFormData(map[string]string{
			"model":           b.model,
			"response_format": "json",
		}).
		SetResult(&payload).
		Post(openAITranscriptionPath)
	if err != nil {
		return Result{}, fmt.Errorf("transcription request failed: %w", err)
	}
	if resp.IsError() {
		return Result{}, fmt.Errorf("transcription server returned %s", resp.Status())
	}
	return Result{Text: payload.Text, Language: payload.Language}, nil
}

func (b *openAIBackend) Health(ctx context.Context) error {
	resp, err := b.client.R().SetContext(ctx).Get("/v1/models")
	if err != nil {
		return fmt.Errorf("transcription backend unreachable: %w", err)
	}
	if resp.StatusCode() >= 500 {
		return fmt.Errorf("transcription backend unhealthy: %s", resp.Status())
	}
	return nil
}
