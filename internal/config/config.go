package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/snapvalue/snapvalue/internal/domain"
)

// Config holds the snapvalue API configuration.
type Config struct {
	HTTP        HTTPConfig        `yaml:"http"`
	Marketplace MarketplaceConfig `yaml:"marketplace"`
	LLM         LLMConfig         `yaml:"llm"`
	Embedding   EmbeddingConfig   `yaml:"embedding"`
	Cache       CacheConfig       `yaml:"cache"`
	Pipeline    PipelineConfig    `yaml:"pipeline"`
	Logging     LoggingConfig     `yaml:"logging"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error (default: determined by env)
}

// HTTPConfig holds HTTP server settings.
type HTTPConfig struct {
	Port            int `yaml:"port"`
	ReadTimeoutSec  int `yaml:"read_timeout_sec"`
	WriteTimeoutSec int `yaml:"write_timeout_sec"`
	ShutdownSec     int `yaml:"shutdown_timeout_sec"`
}

// MarketplaceConfig holds marketplace search backend settings.
// Read timeout is deliberately much longer than connect: the upstream
// search can be slow while still healthy.
type MarketplaceConfig struct {
	Endpoint          string `yaml:"endpoint"`
	APIKey            string `yaml:"api_key"`
	PageSize          int    `yaml:"page_size"`
	ConnectTimeoutSec int    `yaml:"connect_timeout_sec"`
	ReadTimeoutSec    int    `yaml:"read_timeout_sec"`
	WriteTimeoutSec   int    `yaml:"write_timeout_sec"`
}

// LLMConfig holds the vision query-generation collaborator settings.
type LLMConfig struct {
	APIKey          string `yaml:"api_key"`
	BaseURL         string `yaml:"base_url"`
	Model           string `yaml:"model"`
	MaxOutputTokens int    `yaml:"max_output_tokens"`
}

// EmbeddingConfig holds the image embedding backend settings.
type EmbeddingConfig struct {
	BaseURL         string `yaml:"base_url"`
	TimeoutSec      int    `yaml:"timeout_sec"`
	ThumbTimeoutSec int    `yaml:"thumb_timeout_sec"` // thumbnail download timeout
}

// CacheConfig holds embedding cache settings.
type CacheConfig struct {
	Driver    string   `yaml:"driver"` // memory, redis (default: memory)
	Capacity  int      `yaml:"capacity"`
	Addrs     []string `yaml:"addrs"`
	Password  string   `yaml:"password"`
	KeyPrefix string   `yaml:"key_prefix"`
}

// PipelineConfig holds the re-ranking pipeline tunables.
type PipelineConfig struct {
	FastCrops         []float64 `yaml:"fast_crops"`
	FullCrops         []float64 `yaml:"full_crops"`
	MaxEmbedItems     int       `yaml:"max_embed_items"`
	ThumbConcurrency  int       `yaml:"thumb_concurrency"`
	EmbedBatchSize    int       `yaml:"embed_batch_size"`
	EnrichTopN        int       `yaml:"enrich_top_n"`
	SimilarityMin     float64   `yaml:"similarity_min"`
	FinalSimilarity   float64   `yaml:"final_similarity_min"`
	FinalKeepTopK     int       `yaml:"final_keep_top_k"`
	RefineSimilarity  float64   `yaml:"refine_similarity_min"`
	ExampleListingCap int       `yaml:"example_listing_cap"`
}

// Load reads configuration from a YAML file by environment name (local, dev, prod).
func Load(env string) (Config, error) {
	configPath := findConfigPath(env)

	data, err := os.ReadFile(filepath.Clean(configPath))
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config %s: %w", configPath, err)
	}

	// Substitute env variables of the form ${VAR}
	data = expandEnvVars(data)

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// MustLoad loads configuration or panics.
func MustLoad(env string) Config {
	cfg, err := Load(env)
	if err != nil {
		panic(err)
	}
	return cfg
}

// GetEnv returns the current environment from the ENV variable, defaulting to "local".
func GetEnv() string {
	if env := os.Getenv("ENV"); env != "" {
		return env
	}
	return "local"
}

// ApplyDefaults fills empty fields with default values.
func (c *Config) ApplyDefaults() {
	if c.HTTP.ReadTimeoutSec <= 0 {
		c.HTTP.ReadTimeoutSec = 30
	}
	if c.HTTP.WriteTimeoutSec <= 0 {
		// Long: the extract endpoint streams for the life of the pipeline.
		c.HTTP.WriteTimeoutSec = 300
	}
	if c.HTTP.ShutdownSec <= 0 {
		c.HTTP.ShutdownSec = 10
	}
	if c.Marketplace.Endpoint == "" {
		c.Marketplace.Endpoint = "https://serpapi.com/search.json"
	}
	if c.Marketplace.PageSize <= 0 {
		c.Marketplace.PageSize = 50
	}
	if c.Marketplace.ConnectTimeoutSec <= 0 {
		c.Marketplace.ConnectTimeoutSec = 5
	}
	if c.Marketplace.ReadTimeoutSec <= 0 {
		c.Marketplace.ReadTimeoutSec = 30
	}
	if c.Marketplace.WriteTimeoutSec <= 0 {
		c.Marketplace.WriteTimeoutSec = 10
	}
	if c.LLM.Model == "" {
		c.LLM.Model = "gpt-4o-mini"
	}
	if c.LLM.MaxOutputTokens <= 0 {
		c.LLM.MaxOutputTokens = 1500
	}
	if c.Embedding.TimeoutSec <= 0 {
		c.Embedding.TimeoutSec = 60
	}
	if c.Embedding.ThumbTimeoutSec <= 0 {
		c.Embedding.ThumbTimeoutSec = 10
	}
	if c.Cache.Driver == "" {
		c.Cache.Driver = "memory"
	}
	if c.Cache.Capacity <= 0 {
		c.Cache.Capacity = 4096
	}
	if c.Cache.KeyPrefix == "" {
		c.Cache.KeyPrefix = "snapvalue:"
	}
	if len(c.Pipeline.FastCrops) == 0 {
		c.Pipeline.FastCrops = []float64{1.0}
	}
	if len(c.Pipeline.FullCrops) == 0 {
		c.Pipeline.FullCrops = []float64{1.0, 0.85}
	}
	if c.Pipeline.MaxEmbedItems <= 0 {
		c.Pipeline.MaxEmbedItems = 50
	}
	if c.Pipeline.ThumbConcurrency <= 0 {
		c.Pipeline.ThumbConcurrency = 6
	}
	if c.Pipeline.EmbedBatchSize <= 0 {
		c.Pipeline.EmbedBatchSize = 10
	}
	if c.Pipeline.EnrichTopN <= 0 {
		c.Pipeline.EnrichTopN = 12
	}
	if c.Pipeline.SimilarityMin <= 0 {
		c.Pipeline.SimilarityMin = 0.55
	}
	if c.Pipeline.FinalSimilarity <= 0 {
		c.Pipeline.FinalSimilarity = 0.68
	}
	if c.Pipeline.FinalKeepTopK <= 0 {
		c.Pipeline.FinalKeepTopK = 25
	}
	if c.Pipeline.RefineSimilarity <= 0 {
		c.Pipeline.RefineSimilarity = 0.65
	}
	if c.Pipeline.ExampleListingCap <= 0 {
		c.Pipeline.ExampleListingCap = 50
	}
}

// Validate checks the configuration for correctness.
func (c *Config) Validate() error {
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port must be between 1 and 65535, got %d", c.HTTP.Port)
	}
	if c.Marketplace.APIKey == "" {
		return fmt.Errorf("marketplace.api_key is required")
	}
	if c.Embedding.BaseURL == "" {
		return fmt.Errorf("embedding.base_url is required")
	}
	switch c.Cache.Driver {
	case "memory":
	case "redis":
		if len(c.Cache.Addrs) == 0 {
			return fmt.Errorf("cache.addrs is required for the redis driver")
		}
	default:
		return fmt.Errorf("cache.driver must be \"memory\" or \"redis\", got %q", c.Cache.Driver)
	}
	for _, f := range append(append([]float64{}, c.Pipeline.FastCrops...), c.Pipeline.FullCrops...) {
		if f <= 0 || f > 1 {
			return fmt.Errorf("crop fractions must be in (0,1], got %v", f)
		}
	}
	// The cache serves fast-crop lookups from full-crop entries, which is
	// only sound when the fast set is an ordered prefix of the full set.
	fast := domain.CropSet(c.Pipeline.FastCrops)
	full := domain.CropSet(c.Pipeline.FullCrops)
	if !fast.PrefixOf(full) {
		return fmt.Errorf("pipeline.fast_crops %v must be a strict prefix of pipeline.full_crops %v",
			c.Pipeline.FastCrops, c.Pipeline.FullCrops)
	}
	if c.Pipeline.SimilarityMin > c.Pipeline.FinalSimilarity {
		return fmt.Errorf("pipeline.similarity_min must not exceed pipeline.final_similarity_min")
	}
	return nil
}

// MarketplaceReadTimeout returns the configured read timeout as a duration.
func (c *MarketplaceConfig) MarketplaceReadTimeout() time.Duration {
	return time.Duration(c.ReadTimeoutSec) * time.Second
}

// findConfigPath locates the config file.
func findConfigPath(env string) string {
	filename := fmt.Sprintf("%s.yaml", env)

	// 1. Check ./config/
	if path := filepath.Join("config", filename); fileExists(path) {
		return path
	}

	// 2. Check relative to the source file
	_, b, _, _ := runtime.Caller(0)
	projectRoot := filepath.Dir(filepath.Dir(filepath.Dir(b))) // internal/config -> project root
	if path := filepath.Join(projectRoot, "config", filename); fileExists(path) {
		return path
	}

	// 3. Fallback to ./config/
	return filepath.Join("config", filename)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// expandEnvVars replaces ${VAR} and ${VAR:-default} with environment variable values.
var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}`)

func expandEnvVars(data []byte) []byte {
	return envVarRegex.ReplaceAllFunc(data, func(match []byte) []byte {
		expr := string(match[2 : len(match)-1]) // strip ${ and }
		varName, defaultVal, hasDefault := strings.Cut(expr, ":-")
		val := os.Getenv(varName)
		if val == "" && hasDefault {
			val = defaultVal
		}
		return []byte(val)
	})
}
