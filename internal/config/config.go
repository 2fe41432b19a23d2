package config

import (
	"fmt"
	"os"
	"time"

	"github.com/pelletier/go-toml/v2"

	"github.com/agenthands/loom/internal/core/extract"
	"github.com/agenthands/loom/internal/core/quality"
	"github.com/agenthands/loom/internal/core/relate"
)

// Duration wraps time.Duration so TOML files can use "30s" style values.
type Duration time.Duration

func (d *Duration) UnmarshalText(data []byte) error {
	v, err := time.ParseDuration(string(data))
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

type LLMConfig struct {
	Provider string `toml:"provider"`
	Model    string `toml:"model"`
	APIKey   string `toml:"api_key"`
	BaseURL  string `toml:"base_url"`
}

type GraphConfig struct {
	Backend           string   `toml:"backend"`
	URI               string   `toml:"uri"`
	User              string   `toml:"user"`
	Password          string   `toml:"password"`
	StrengthIncrement float64  `toml:"strength_increment"`
	CacheTTL          Duration `toml:"cache_ttl"`
}

type PipelineConfig struct {
	ComplexityThreshold float64         `toml:"complexity_threshold"`
	QualityThreshold    float64         `toml:"quality_threshold"`
	MaxRetries          int             `toml:"max_retries"`
	PairwiseLimit       int             `toml:"pairwise_limit"`
	TruncateAt          int             `toml:"truncate_at"`
	MatchThreshold      float64         `toml:"match_threshold"`
	BackendTimeout      Duration        `toml:"backend_timeout"`
	DecayHalfLife       Duration        `toml:"decay_half_life"`
	Weights             quality.Weights `toml:"weights"`
	Bands               quality.Bands   `toml:"bands"`
}

type PromptsConfig struct {
	Extraction    extract.Prompts `toml:"extraction"`
	Relationships relate.Prompts  `toml:"relationships"`
	Tasks         string          `toml:"tasks"`
}

type Config struct {
	LLM      LLMConfig      `toml:"llm"`
	Graph    GraphConfig    `toml:"graph"`
	Pipeline PipelineConfig `toml:"pipeline"`
	Prompts  PromptsConfig  `toml:"prompts"`
}

// Default returns a config that works without a file: in-memory graph,
// built-in prompts, standard thresholds.
func Default() *Config {
	return &Config{
		LLM: LLMConfig{
			Provider: "openai",
			Model:    "gpt-4o-mini",
		},
		Graph: GraphConfig{
			Backend:           "memory",
			URI:               "bolt://localhost:7687",
			StrengthIncrement: 0.3,
			CacheTTL:          Duration(5 * time.Minute),
		},
		Pipeline: PipelineConfig{
			ComplexityThreshold: 0.6,
			QualityThreshold:    0.7,
			MaxRetries:          2,
			PairwiseLimit:       6,
			TruncateAt:          4000,
			MatchThreshold:      0.7,
			BackendTimeout:      Duration(30 * time.Second),
			DecayHalfLife:       Duration(30 * 24 * time.Hour),
			Weights:             quality.DefaultWeights(),
			Bands:               quality.DefaultBands(),
		},
	}
}

// Load reads a TOML file on top of the defaults. Fields missing from the
// file keep their default values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file '%s': %w", path, err)
	}

	cfg := Default()
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse TOML: %w", err)
	}

	return cfg, nil
}
