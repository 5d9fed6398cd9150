package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadPolicy(t *testing.T) {
	t.Run("missing file yields defaults", func(t *testing.T) {
		p, err := LoadPolicy(filepath.Join(t.TempDir(), "absent.toml"))
		require.NoError(t, err)
		assert.Equal(t, 0.75, p.OCR.Threshold)
		assert.Equal(t, int64(10<<20), p.Ingestion.MaxFileBytes)
		assert.False(t, p.Workflow.AdvanceOnNeedsReview)
		assert.True(t, p.RateLimit.Enabled)
		assert.Equal(t, 60, p.RateLimit.UploadsPerWindow)
	})

	t.Run("shipped policy file is valid", func(t *testing.T) {
		p, err := LoadPolicy(filepath.Join("..", "..", "..", "configs", "policy.toml"))
		require.NoError(t, err)
		assert.Len(t, p.Analysis.Providers, 3)
		assert.Equal(t, []string{"vertex", "openai", "glm"}, p.Analysis.Precedence["due_date"])
		assert.Equal(t, time.Minute, p.RateLimit.Window.Duration)
	})

	t.Run("file overrides defaults", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "policy.toml")
		body := `
[ocr]
threshold = 0.8
strategies = ["Tesseract", "filename", "tesseract"]
attempt_timeout = "5s"

[workflow]
advance_on_needs_review = true

[ingestion.quota_overrides]
"7f1c6c7e-3c1a-4f43-9a55-6d9ad7c1a001" = 2048

[analysis.precedence]
amount = ["glm"]
`
		require.NoError(t, os.WriteFile(path, []byte(body), 0o600))

		p, err := LoadPolicy(path)
		require.NoError(t, err)
		assert.Equal(t, 0.8, p.OCR.Threshold)
		assert.Equal(t, []string{"tesseract", "filename"}, p.OCR.Strategies)
		assert.Equal(t, 5*time.Second, p.OCR.AttemptTimeout.Duration)
		assert.True(t, p.Workflow.AdvanceOnNeedsReview)
		assert.Equal(t, int64(2048), p.Ingestion.QuotaOverrides["7f1c6c7e-3c1a-4f43-9a55-6d9ad7c1a001"])
		assert.Equal(t, []string{"glm"}, p.Analysis.Precedence["amount"])
		assert.Equal(t, 24*time.Hour, p.OCR.CacheTTL.Duration)
	})

	t.Run("invalid threshold rejected", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "policy.toml")
		require.NoError(t, os.WriteFile(path, []byte("[ocr]\nthreshold = 1.5\n"), 0o600))
		_, err := LoadPolicy(path)
		assert.Error(t, err)
	})

	t.Run("enabled rate limit needs a budget", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "policy.toml")
		require.NoError(t, os.WriteFile(path, []byte("[ratelimit]\nenabled = true\nuploads_per_window = 0\n"), 0o600))
		_, err := LoadPolicy(path)
		assert.Error(t, err)
	})
}
