package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)

	cfg, err = Load("")
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.Listen)
	assert.Equal(t, 7, cfg.Holds.RetentionDays)
	assert.Equal(t, 1.0, cfg.Recommend.FeedbackWeight)
	assert.Equal(t, 7*24*time.Hour, cfg.HoldRetention())
}

func TestLoadOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "shelfwise.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
listen: ":9090"
holds:
  retention_days: 14
recommend:
  feedback_weight: 0.5
explainer:
  provider: anthropic
  timeout_seconds: 3
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":9090", cfg.Listen)
	assert.Equal(t, 14, cfg.Holds.RetentionDays)
	assert.Equal(t, 0.5, cfg.Recommend.FeedbackWeight)
	assert.Equal(t, "anthropic", cfg.Explainer.Provider)
	assert.Equal(t, 3*time.Second, cfg.ExplainerTimeout())
	// Untouched fields keep their defaults.
	assert.Equal(t, "data", cfg.DataDir)
}

func TestLoadRejectsBadValues(t *testing.T) {
	for name, body := range map[string]string{
		"bad_provider":  "explainer:\n  provider: gemini\n",
		"bad_retention": "holds:\n  retention_days: 0\n",
		"bad_topk":      "recommend:\n  top_k: -1\n",
		"bad_yaml":      "listen: [unclosed\n",
	} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "shelfwise.yaml")
			require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
			_, err := Load(path)
			assert.Error(t, err)
		})
	}
}
