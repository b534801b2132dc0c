package hooks

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/b08x/omega-13/internal/config"
)

func TestFireRunsMatchingHooks(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(dir, "out.txt")

	r := NewRunner([]config.HookConfig{
		{Name: "writer", Command: "echo \"$OMEGA13_TEXT\" > " + out, Event: EventTranscript},
		{Name: "other", Command: "echo wrong > " + out, Event: EventStart},
	}, nil)

	r.Fire(context.Background(), EventTranscript, Env{
		SessionID: "s1",
		Ordinal:   2,
		Text:      "hello hooks",
	})
	r.Wait()

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, "hello hooks\n", string(data))
}

func TestFireNoMatchingHooks(t *testing.T) {
	r := NewRunner(nil, nil)
	r.Fire(context.Background(), EventStart, Env{})
	r.Wait()
}

func TestHookEnvironment(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(dir, "env.txt")

	r := NewRunner([]config.HookConfig{{
		Name:    "env",
		Command: `printf '%s %s %s' "$OMEGA13_SESSION_ID" "$OMEGA13_ORDINAL" "$OMEGA13_LANGUAGE" > ` + out,
		Event:   EventRecordingComplete,
	}}, nil)

	r.Fire(context.Background(), EventRecordingComplete, Env{
		SessionID: "session_x",
		Ordinal:   7,
		Language:  "en",
	})
	r.Wait()

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, "session_x 7 en", string(data))
}

func TestHookTimeoutKillsCommand(t *testing.T) {
	r := NewRunner([]config.HookConfig{{
		Name:    "sleeper",
		Command: "sleep 30",
		Event:   EventStart,
		Timeout: config.Duration(100 * time.Millisecond),
	}}, nil)

	start := time.Now()
	r.Fire(context.Background(), EventStart, Env{})
	r.Wait()
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestHasEvent(t *testing.T) {
	r := NewRunner([]config.HookConfig{{Name: "x", Command: "true", Event: EventStart}}, nil)
	assert.True(t, r.HasEvent(EventStart))
	assert.False(t, r.HasEvent(EventTranscript))
}
