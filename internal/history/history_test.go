package history

import (
	"bytes"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openStore(t *testing.T) (*Store, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "history.db")
	s, err := Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s, path
}

func TestAppendAndSince(t *testing.T) {
	s, _ := openStore(t)
	now := time.Now()

	require.NoError(t, s.Append(Entry{
		SessionID: "s1", Ordinal: 1, CreatedAt: now.Add(-2 * time.Hour),
		Language: "en", Text: "old entry",
	}))
	require.NoError(t, s.Append(Entry{
		SessionID: "s1", Ordinal: 2, CreatedAt: now.Add(-10 * time.Minute),
		Language: "en", Text: "recent entry",
	}))
	require.NoError(t, s.Append(Entry{
		SessionID: "s2", Ordinal: 1, CreatedAt: now.Add(-time.Minute),
		Language: "de", Text: "newest entry",
	}))

	entries, err := s.Since(now.Add(-30 * time.Minute))
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "recent entry", entries[0].Text)
	assert.Equal(t, "newest entry", entries[1].Text)
	assert.Equal(t, "de", entries[1].Language)
}

func TestRecent(t *testing.T) {
	s, _ := openStore(t)
	now := time.Now()
	for i := 1; i <= 5; i++ {
		require.NoError(t, s.Append(Entry{
			SessionID: "s1", Ordinal: i,
			CreatedAt: now.Add(time.Duration(i) * time.Minute),
			Text:      string(rune('a' + i - 1)),
		}))
	}

	entries, err := s.Recent(2)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "d", entries[0].Text)
	assert.Equal(t, "e", entries[1].Text)
}

func TestStoreReopens(t *testing.T) {
	s, path := openStore(t)
	require.NoError(t, s.Append(Entry{SessionID: "s1", Ordinal: 1, CreatedAt: time.Now(), Text: "kept"}))
	require.NoError(t, s.Close())

	s2, err := Open(path)
	require.NoError(t, err)
	defer s2.Close()

	entries, err := s2.Recent(10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "kept", entries[0].Text)
}

func TestRunPrintsWindow(t *testing.T) {
	s, path := openStore(t)
	require.NoError(t, s.Append(Entry{
		SessionID: "s1", Ordinal: 1,
		CreatedAt: time.Now().Add(-5 * time.Minute),
		Text:      "inside window",
	}))
	require.NoError(t, s.Append(Entry{
		SessionID: "s1", Ordinal: 2,
		CreatedAt: time.Now().Add(-2 * time.Hour),
		Text:      "outside window",
	}))
	require.NoError(t, s.Close())

	var stdout, stderr bytes.Buffer
	err := Run([]string{"--db", path, "20", "min"}, path, &stdout, &stderr)
	require.NoError(t, err)
	assert.Contains(t, stdout.String(), "inside window")
	assert.NotContains(t, stdout.String(), "outside window")
}

func TestRunUsageErrors(t *testing.T) {
	var stdout, stderr bytes.Buffer
	err := Run([]string{"5"}, "x.db", &stdout, &stderr)
	assert.Error(t, err)

	err = Run([]string{"five", "min"}, "x.db", &stdout, &stderr)
	assert.Error(t, err)

	err = Run([]string{"5", "fortnights"}, "x.db", &stdout, &stderr)
	assert.Error(t, err)
}
