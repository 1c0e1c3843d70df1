package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// OnAIReviewFail values decide what happens when the AI rating is below the
// auto-approve threshold.
const (
	AIReviewFailPend   = "pend"
	AIReviewFailReject = "reject"
)

type Config struct {
	Environment string `envconfig:"ENVIRONMENT" default:"local"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`

	DatabaseURL string `envconfig:"DATABASE_URL" required:"true"`
	DBMinConns  int32  `envconfig:"CAVE_DB_MIN_CONNS" default:"1"`
	DBMaxConns  int32  `envconfig:"CAVE_DB_MAX_CONNS" default:"8"`

	BlobDir      string        `envconfig:"BLOB_DIR" default:"./cave-data"`
	MediaTimeout time.Duration `envconfig:"MEDIA_TIMEOUT" default:"60s"`

	TextThreshold        float64 `envconfig:"TEXT_THRESHOLD" default:"95"`
	ImageThreshold       float64 `envconfig:"IMAGE_THRESHOLD" default:"95"`
	AutoApproveThreshold int     `envconfig:"AUTO_APPROVE_THRESHOLD" default:"60"`

	EnableSimilarity  bool   `envconfig:"ENABLE_SIMILARITY" default:"true"`
	EnableAI          bool   `envconfig:"ENABLE_AI" default:"false"`
	EnablePend        bool   `envconfig:"ENABLE_PEND" default:"false"`
	EnableAutoApprove bool   `envconfig:"ENABLE_AUTO_APPROVE" default:"false"`
	OnAIReviewFail    string `envconfig:"ON_AI_REVIEW_FAIL" default:"pend"`

	LLMEndpointsFile string        `envconfig:"LLM_ENDPOINTS_FILE" default:"endpoints.yaml"`
	SystemPrompt     string        `envconfig:"LLM_SYSTEM_PROMPT" default:""`
	SystemPromptFile string        `envconfig:"LLM_SYSTEM_PROMPT_FILE" default:""`
	LLMTimeout       time.Duration `envconfig:"LLM_TIMEOUT" default:"600s"`
	LLMRetryCooldown time.Duration `envconfig:"LLM_RETRY_COOLDOWN" default:"30s"`
}

// Endpoint is one LLM chat-completions target. Requests rotate through the
// configured endpoints in order.
type Endpoint struct {
	URL   string `yaml:"url"`
	Key   string `yaml:"key"`
	Model string `yaml:"model"`
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
		return fmt.Errorf("CAVE_DB_MIN_CONNS must be >= 0")
	}
	if c.DBMaxConns < 1 {
		return fmt.Errorf("CAVE_DB_MAX_CONNS must be >= 1")
	}
	if c.DBMinConns > c.DBMaxConns {
		return fmt.Errorf("CAVE_DB_MIN_CONNS (%d) cannot exceed CAVE_DB_MAX_CONNS (%d)", c.DBMinConns, c.DBMaxConns)
	}
	if c.TextThreshold < 0 || c.TextThreshold > 100 {
		return fmt.Errorf("TEXT_THRESHOLD must be within [0,100]")
	}
	if c.ImageThreshold < 0 || c.ImageThreshold > 100 {
		return fmt.Errorf("IMAGE_THRESHOLD must be within [0,100]")
	}
	if c.AutoApproveThreshold < 0 || c.AutoApproveThreshold > 100 {
		return fmt.Errorf("AUTO_APPROVE_THRESHOLD must be within [0,100]")
	}
	switch strings.TrimSpace(strings.ToLower(c.OnAIReviewFail)) {
	case AIReviewFailPend, AIReviewFailReject:
	default:
		return fmt.Errorf("ON_AI_REVIEW_FAIL must be %q or %q", AIReviewFailPend, AIReviewFailReject)
	}
	if c.MediaTimeout <= 0 {
		return fmt.Errorf("MEDIA_TIMEOUT must be positive")
	}
	if c.LLMTimeout <= 0 {
		return fmt.Errorf("LLM_TIMEOUT must be positive")
	}
	return nil
}

// ReviewFailRejects reports whether a below-threshold AI rating rejects the
// submission instead of falling through to manual review.
func (c *Config) ReviewFailRejects() bool {
	return strings.TrimSpace(strings.ToLower(c.OnAIReviewFail)) == AIReviewFailReject
}

// LoadEndpoints reads the ordered LLM endpoint list from the configured YAML
// file. An absent file yields an empty list, which disables AI moderation.
func (c *Config) LoadEndpoints() ([]Endpoint, error) {
	path := strings.TrimSpace(c.LLMEndpointsFile)
	if path == "" {
		return nil, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read endpoints file %s: %w", path, err)
	}

	var doc struct {
		Endpoints []Endpoint `yaml:"endpoints"`
	}
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("parse endpoints file %s: %w", path, err)
	}

	endpoints := make([]Endpoint, 0, len(doc.Endpoints))
	for i, ep := range doc.Endpoints {
		ep.URL = strings.TrimSpace(ep.URL)
		ep.Model = strings.TrimSpace(ep.Model)
		if ep.URL == "" {
			return nil, fmt.Errorf("endpoints[%d]: url is required", i)
		}
		if ep.Model == "" {
			return nil, fmt.Errorf("endpoints[%d]: model is required", i)
		}
		endpoints = append(endpoints, ep)
	}
	return endpoints, nil
}

// ResolveSystemPrompt prefers the inline prompt over the prompt file.
func (c *Config) ResolveSystemPrompt() (string, error) {
	if prompt := strings.TrimSpace(c.SystemPrompt); prompt != "" {
		return prompt, nil
	}
	path := strings.TrimSpace(c.SystemPromptFile)
	if path == "" {
		return "", nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read system prompt file %s: %w", path, err)
	}
	return strings.TrimSpace(string(raw)), nil
}
