package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/BurntSushi/toml"

	liststrings "docflow/pkg/platform/strings"
)

// Duration decodes TOML strings such as "30s" into a time.Duration.
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", text, err)
	}
	d.Duration = v
	return nil
}

// Policy is the pipeline tuning loaded from the TOML policy file.
type Policy struct {
	Ingestion IngestionPolicy `toml:"ingestion"`
	OCR       OCRPolicy       `toml:"ocr"`
	Analysis  AnalysisPolicy  `toml:"analysis"`
	Workflow  WorkflowPolicy  `toml:"workflow"`
	Pipeline  PipelinePolicy  `toml:"pipeline"`
	RateLimit RateLimitPolicy `toml:"ratelimit"`
}

type IngestionPolicy struct {
	MaxFileBytes      int64            `toml:"max_file_bytes"`
	DefaultQuotaBytes int64            `toml:"default_quota_bytes"`
	QuotaOverrides    map[string]int64 `toml:"quota_overrides"`
	AllowedMimeTypes  []string         `toml:"allowed_mime_types"`
	StorageTimeout    Duration         `toml:"storage_timeout"`
}

type OCRPolicy struct {
	Threshold      float64  `toml:"threshold"`
	Strategies     []string `toml:"strategies"`
	AttemptTimeout Duration `toml:"attempt_timeout"`
	CacheTTL       Duration `toml:"cache_ttl"`
	Languages      []string `toml:"languages"`
}

type ProviderPolicy struct {
	Name    string `toml:"name"`
	Kind    string `toml:"kind"`
	BaseURL string `toml:"base_url"`
	Model   string `toml:"model"`
}

type AnalysisPolicy struct {
	Threshold        float64             `toml:"threshold"`
	Quorum           int                 `toml:"quorum"`
	Deadline         Duration            `toml:"deadline"`
	ProviderTimeout  Duration            `toml:"provider_timeout"`
	MaxRetries       int                 `toml:"max_retries"`
	BreakerThreshold int                 `toml:"breaker_threshold"`
	BreakerCooldown  Duration            `toml:"breaker_cooldown"`
	Providers        []ProviderPolicy    `toml:"providers"`
	Precedence       map[string][]string `toml:"precedence"`
}

type WorkflowPolicy struct {
	AdvanceOnNeedsReview bool `toml:"advance_on_needs_review"`
}

// RateLimitPolicy bounds uploads per tenant in a sliding window.
type RateLimitPolicy struct {
	Enabled          bool     `toml:"enabled"`
	UploadsPerWindow int      `toml:"uploads_per_window"`
	Window           Duration `toml:"window"`
}

type PipelinePolicy struct {
	Workers            int `toml:"workers"`
	QueueSize          int `toml:"queue_size"`
	MaxConflictRetries int `toml:"max_conflict_retries"`
}

// DefaultPolicy returns the built-in policy used when no file is present.
func DefaultPolicy() Policy {
	return Policy{
		Ingestion: IngestionPolicy{
			MaxFileBytes:      10 << 20,
			DefaultQuotaBytes: 1 << 30,
			QuotaOverrides:    map[string]int64{},
			AllowedMimeTypes:  []string{"application/pdf", "image/jpeg", "image/jpg", "image/png"},
			StorageTimeout:    Duration{10 * time.Second},
		},
		OCR: OCRPolicy{
			Threshold:      0.75,
			Strategies:     []string{"text_layer", "tesseract", "tesseract_handwriting", "filename"},
			AttemptTimeout: Duration{30 * time.Second},
			CacheTTL:       Duration{24 * time.Hour},
			Languages:      []string{"por", "eng"},
		},
		Analysis: AnalysisPolicy{
			Threshold:        0.7,
			Quorum:           1,
			Deadline:         Duration{45 * time.Second},
			ProviderTimeout:  Duration{20 * time.Second},
			MaxRetries:       2,
			BreakerThreshold: 3,
			BreakerCooldown:  Duration{time.Minute},
			Providers: []ProviderPolicy{
				{Name: "openai", Kind: "openai", BaseURL: "https://api.openai.com/v1", Model: "gpt-4o-mini"},
				{Name: "glm", Kind: "openai", BaseURL: "https://open.bigmodel.cn/api/paas/v4", Model: "glm-4-flash"},
				{Name: "vertex", Kind: "vertex", Model: "gemini-1.5-flash"},
			},
			Precedence: map[string][]string{
				"amount":   {"openai", "glm", "vertex"},
				"due_date": {"vertex", "openai", "glm"},
			},
		},
		Workflow: WorkflowPolicy{AdvanceOnNeedsReview: false},
		Pipeline: PipelinePolicy{
			Workers:            4,
			QueueSize:          1024,
			MaxConflictRetries: 3,
		},
		RateLimit: RateLimitPolicy{
			Enabled:          true,
			UploadsPerWindow: 60,
			Window:           Duration{time.Minute},
		},
	}
}

// LoadPolicy overlays the TOML file at path onto DefaultPolicy. A missing
// file is not an error.
func LoadPolicy(path string) (Policy, error) {
	p := DefaultPolicy()
	if path == "" {
		return p, nil
	}
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		return p, nil
	}
	if _, err := toml.DecodeFile(path, &p); err != nil {
		return Policy{}, fmt.Errorf("decode policy file: %w", err)
	}
	p.Ingestion.AllowedMimeTypes = liststrings.NormalizeList(p.Ingestion.AllowedMimeTypes, true)
	p.OCR.Strategies = liststrings.NormalizeList(p.OCR.Strategies, true)
	if err := p.Validate(); err != nil {
		return Policy{}, err
	}
	return p, nil
}

// Validate rejects policies that would make the pipeline unusable.
func (p Policy) Validate() error {
	if p.OCR.Threshold <= 0 || p.OCR.Threshold > 1 {
		return fmt.Errorf("ocr.threshold must be in (0,1], got %v", p.OCR.Threshold)
	}
	if len(p.OCR.Strategies) == 0 {
		return errors.New("ocr.strategies must not be empty")
	}
	if p.Analysis.Threshold < 0 || p.Analysis.Threshold > 1 {
		return fmt.Errorf("analysis.threshold must be in [0,1], got %v", p.Analysis.Threshold)
	}
	if p.Analysis.Quorum < 1 {
		return errors.New("analysis.quorum must be at least 1")
	}
	if p.Pipeline.Workers < 1 {
		return errors.New("pipeline.workers must be at least 1")
	}
	if p.RateLimit.Enabled && (p.RateLimit.UploadsPerWindow < 1 || p.RateLimit.Window.Duration <= 0) {
		return errors.New("ratelimit needs a positive budget and window")
	}
	if p.Ingestion.MaxFileBytes <= 0 || p.Ingestion.DefaultQuotaBytes <= 0 {
		return errors.New("ingestion limits must be positive")
	}
	return nil
}
