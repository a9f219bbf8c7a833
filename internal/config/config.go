package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	Environment string `envconfig:"ENVIRONMENT" default:"local"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`

	DatabaseURL string `envconfig:"DATABASE_URL" required:"true"`
	DBMinConns  int32  `envconfig:"NP_DB_MIN_CONNS" default:"1"`
	DBMaxConns  int32  `envconfig:"NP_DB_MAX_CONNS" default:"8"`

	ExtractBaseURL       string        `envconfig:"EXTRACT_BASE_URL" default:""`
	ExtractAPIKey        string        `envconfig:"EXTRACT_API_KEY" default:""`
	ExtractModel         string        `envconfig:"EXTRACT_MODEL" default:"gpt-4o-mini"`
	ExtractMaxTokens     int           `envconfig:"EXTRACT_MAX_TOKENS" default:"16000"`
	ExtractTimeout       time.Duration `envconfig:"EXTRACT_TIMEOUT" default:"3m"`
	ExtractRatePerMinute int           `envconfig:"EXTRACT_RATE_PER_MINUTE" default:"20"`

	ChunkSize         int `envconfig:"CHUNK_SIZE" default:"30000"`
	ChunkOverlap      int `envconfig:"CHUNK_OVERLAP" default:"2000"`
	InsertBatchSize   int `envconfig:"INSERT_BATCH_SIZE" default:"50"`
	MergeMaxDaysApart int `envconfig:"MERGE_MAX_DAYS_APART" default:"14"`

	SourcesFile    string `envconfig:"SOURCES_FILE" default:"sources.yaml"`
	PushgatewayURL string `envconfig:"PUSHGATEWAY_URL" default:""`

	// Destructive-write gates. Merge and cleanup only report unless set.
	MergeApply  bool `envconfig:"MERGE" default:"false"`
	DeleteApply bool `envconfig:"DELETE" default:"false"`
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	if strings.TrimSpace(c.DatabaseURL) == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	if c.DBMinConns < 0 {
		return fmt.Errorf("NP_DB_MIN_CONNS must be >= 0")
	}
	if c.DBMaxConns < 1 {
		return fmt.Errorf("NP_DB_MAX_CONNS must be >= 1")
	}
	if c.DBMinConns > c.DBMaxConns {
		return fmt.Errorf("NP_DB_MIN_CONNS (%d) cannot exceed NP_DB_MAX_CONNS (%d)", c.DBMinConns, c.DBMaxConns)
	}
	if c.ChunkSize < 1 {
		return fmt.Errorf("CHUNK_SIZE must be >= 1")
	}
	if c.ChunkOverlap < 0 || c.ChunkOverlap >= c.ChunkSize {
		return fmt.Errorf("CHUNK_OVERLAP (%d) must be >= 0 and < CHUNK_SIZE (%d)", c.ChunkOverlap, c.ChunkSize)
	}
	if c.InsertBatchSize < 1 {
		return fmt.Errorf("INSERT_BATCH_SIZE must be >= 1")
	}
	if c.MergeMaxDaysApart < 0 {
		return fmt.Errorf("MERGE_MAX_DAYS_APART must be >= 0")
	}
	if c.ExtractMaxTokens < 1 {
		return fmt.Errorf("EXTRACT_MAX_TOKENS must be >= 1")
	}
	if c.ExtractTimeout <= 0 {
		return fmt.Errorf("EXTRACT_TIMEOUT must be > 0")
	}
	if c.ExtractRatePerMinute < 0 {
		return fmt.Errorf("EXTRACT_RATE_PER_MINUTE must be >= 0")
	}
	if err := validateOptionalURL("EXTRACT_BASE_URL", c.ExtractBaseURL); err != nil {
		return err
	}
	if err := validateOptionalURL("PUSHGATEWAY_URL", c.PushgatewayURL); err != nil {
		return err
	}
	return nil
}

// RequireExtraction reports a configuration error for commands that call the
// extraction collaborator.
func (c *Config) RequireExtraction() error {
	if strings.TrimSpace(c.ExtractAPIKey) == "" {
		return fmt.Errorf("EXTRACT_API_KEY is required for extraction")
	}
	return nil
}

func validateOptionalURL(name, raw string) error {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil
	}
	parsed, err := url.Parse(trimmed)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return fmt.Errorf("%s must be an absolute URL", name)
	}
	return nil
}
