package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "default", cfg.UnitID)
	assert.False(t, cfg.LLM.Enabled)
	assert.Equal(t, "ru", cfg.LLM.Language)
	assert.Equal(t, "strict", cfg.LLM.PrivacyMode)
	assert.Equal(t, 6000, cfg.LLM.MaxBatchTokens)
	assert.Equal(t, 4, cfg.LLM.MaxConcurrent)

	assert.True(t, cfg.Hierarchical.Enable)
	assert.Equal(t, 40, cfg.Hierarchical.ThresholdThreads)
	assert.Equal(t, 200, cfg.Hierarchical.ThresholdEmails)
	assert.Equal(t, 6, cfg.Hierarchical.MinThreadsToSummarize)

	assert.Equal(t, 1.0, cfg.Scoring.ActionVerb)
	assert.Equal(t, 3.0, cfg.Scoring.DateUrgent)
	assert.Equal(t, 2000, cfg.Chunking.MaxChunkChars)

	require.NotNil(t, cfg.Logging)
	assert.Equal(t, "json", cfg.Logging.Format)
	assert.True(t, cfg.Logging.Redaction.Enabled)
}

func TestLoadYAMLFile(t *testing.T) {
	content := `
unit_id: mailbox-7
llm:
  enabled: true
  endpoint: http://localhost:8080/v1/complete
  model: test-model
  timeout: 30
  strict_json: true
hierarchical:
  enable: true
  enable_auto: true
  threshold_threads: 10
  threshold_emails: 50
  min_threads_to_summarize: 3
chunking:
  max_chunk_chars: 500
  user_aliases:
    - Иванов
    - ivanov
`
	path := filepath.Join(t.TempDir(), "digestd.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "mailbox-7", cfg.UnitID)
	assert.True(t, cfg.LLM.Enabled)
	assert.Equal(t, "http://localhost:8080/v1/complete", cfg.LLM.Endpoint)
	assert.Equal(t, 30, cfg.LLM.Timeout)
	assert.True(t, cfg.LLM.StrictJSON)
	assert.Equal(t, 10, cfg.Hierarchical.ThresholdThreads)
	assert.Equal(t, 3, cfg.Hierarchical.MinThreadsToSummarize)
	assert.Equal(t, 500, cfg.Chunking.MaxChunkChars)
	assert.Equal(t, []string{"Иванов", "ivanov"}, cfg.Chunking.UserAliases)

	// Defaults still fill the gaps.
	assert.Equal(t, "ru", cfg.LLM.Language)
	assert.Equal(t, 6000, cfg.LLM.MaxBatchTokens)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	content := `
llm:
  enabled: true
  endpoint: http://from-file:8080
`
	path := filepath.Join(t.TempDir(), "digestd.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	t.Setenv("LLM_ENDPOINT", "http://from-env:9090")
	t.Setenv("LLM_MODEL", "env-model")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "http://from-env:9090", cfg.LLM.Endpoint)
	assert.Equal(t, "env-model", cfg.LLM.Model)
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "default", cfg.UnitID)
}

func TestLoadAllZeroScoringIsKept(t *testing.T) {
	// Zero for every weight is a legal policy (pure arrival-order
	// ranking); the defaults fill in only when the section is absent.
	content := "scoring:\n  action_verb: 0\n  date_present: 0\n  date_urgent: 0\n  addressed_to_me: 0\n  alias_match: 0\n"
	path := filepath.Join(t.TempDir(), "digestd.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 0.0, cfg.Scoring.ActionVerb)
	assert.Equal(t, 0.0, cfg.Scoring.DatePresent)
	assert.Equal(t, 0.0, cfg.Scoring.DateUrgent)
	assert.Equal(t, 0.0, cfg.Scoring.AddressedToMe)
	assert.Equal(t, 0.0, cfg.Scoring.AliasMatch)
}

func TestLoadRejectsInvalid(t *testing.T) {
	t.Run("enabled without endpoint", func(t *testing.T) {
		content := "llm:\n  enabled: true\n"
		path := filepath.Join(t.TempDir(), "digestd.yaml")
		require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

		_, err := Load(path)
		require.Error(t, err)
	})

	t.Run("negative score weight", func(t *testing.T) {
		content := "scoring:\n  action_verb: -1\n  date_present: 1\n  date_urgent: 1\n  addressed_to_me: 1\n  alias_match: 1\n"
		path := filepath.Join(t.TempDir(), "digestd.yaml")
		require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

		_, err := Load(path)
		require.Error(t, err)
	})

	t.Run("malformed yaml", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "digestd.yaml")
		require.NoError(t, os.WriteFile(path, []byte(":\n  - ["), 0o600))

		_, err := Load(path)
		require.Error(t, err)
	})
}
