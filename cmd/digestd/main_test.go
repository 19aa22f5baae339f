package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/digestd/internal/evidence"
	"github.com/fyrsmithlabs/digestd/internal/pipeline"
)

func writeSnapshot(t *testing.T) string {
	t.Helper()
	snap := pipeline.Snapshot{
		UnitID:     "unit-1",
		DigestDate: "2026-03-10",
		Messages: []evidence.Message{
			{
				ID:             "m1",
				ConversationID: "thread-1",
				Timestamp:      time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC),
				Author:         "ivanov@example.com",
				Text:           "Прошу проверить отчет, дедлайн завтра",
				AddressedToMe:  true,
			},
		},
	}
	data, err := json.Marshal(snap)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "snapshot.json")
	require.NoError(t, os.WriteFile(path, data, 0o600))
	return path
}

func TestRunCommandProducesDigest(t *testing.T) {
	path := writeSnapshot(t)

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs([]string{"run", path})
	defer rootCmd.SetArgs(nil)

	require.NoError(t, rootCmd.Execute())

	var digest map[string]any
	require.NoError(t, json.Unmarshal(out.Bytes(), &digest))

	// LLM is not configured, so the run degrades to the extractive v2.
	assert.Equal(t, "2.0", digest["schema_version"])
	assert.Equal(t, "disabled", digest["reason"])
	assert.Equal(t, "2026-03-10", digest["digest_date"])
	assert.NotEmpty(t, digest["trace_id"])
}

func TestRunCommandRejectsBadSnapshot(t *testing.T) {
	path := filepath.Join(t.TempDir(), "snapshot.json")
	require.NoError(t, os.WriteFile(path, []byte("not json"), 0o600))

	rootCmd.SetOut(new(bytes.Buffer))
	rootCmd.SetErr(new(bytes.Buffer))
	rootCmd.SetArgs([]string{"run", path})
	defer rootCmd.SetArgs(nil)

	require.Error(t, rootCmd.Execute())
}

func TestCheckCommand(t *testing.T) {
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs([]string{"check"})
	defer rootCmd.SetArgs(nil)

	require.NoError(t, rootCmd.Execute())
	assert.Contains(t, out.String(), "config ok")
}
