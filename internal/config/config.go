package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/pelletier/go-toml/v2"
)

type LLMConfig struct {
	Provider       string `toml:"provider"`
	Model          string `toml:"model"`
	EmbeddingModel string `toml:"embedding_model"`
	APIKey         string `toml:"api_key"`
	BaseURL        string `toml:"base_url"`
}

type Neo4jConfig struct {
	URI      string `toml:"uri"`
	User     string `toml:"user"`
	Password string `toml:"password"`
	Database string `toml:"database"`
	// Seconds allowed for the initial connectivity check.
	ConnectTimeout int `toml:"connect_timeout"`
}

type DiscoveryConfig struct {
	Threshold  float64 `toml:"threshold"`
	SampleSize int     `toml:"sample_size"`
	ReportTop  int     `toml:"report_top"`
	LockFile   string  `toml:"lock_file"`
	// Prometheus textfile written after each CLI run, empty disables it.
	MetricsTextfile string `toml:"metrics_textfile"`
}

type QueryPrompts struct {
	Translate string `toml:"translate"`
}

type ConcurrencyConfig struct {
	ScoreWorkers int `toml:"score_workers"`
}

type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

type ServerConfig struct {
	Port string `toml:"port"`
}

type Config struct {
	LLM         LLMConfig         `toml:"llm"`
	Neo4j       Neo4jConfig       `toml:"neo4j"`
	Discovery   DiscoveryConfig   `toml:"discovery"`
	Prompts     QueryPrompts      `toml:"prompts"`
	Concurrency ConcurrencyConfig `toml:"concurrency"`
	Log         LogConfig         `toml:"log"`
	Server      ServerConfig      `toml:"server"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		LLM: LLMConfig{
			Provider: "ollama",
			Model:    "gpt-oss:latest",
			BaseURL:  "http://localhost:11434",
		},
		Neo4j: Neo4jConfig{
			URI:            "bolt://localhost:7687",
			User:           "neo4j",
			ConnectTimeout: 10,
		},
		Discovery: DiscoveryConfig{
			Threshold:  0.12,
			SampleSize: 5,
			ReportTop:  10,
			LockFile:   os.TempDir() + "/symbiosis-discovery.lock",
		},
		Concurrency: ConcurrencyConfig{ScoreWorkers: 4},
		Log:         LogConfig{Level: "info", Format: "console"},
		Server:      ServerConfig{Port: "8080"},
	}
}

// Load reads a TOML file on top of Default, so omitted keys keep their defaults.
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

// Resolve loads path (or $CONFIG_PATH when path is empty), falling back to
// Default when neither is set, then applies environment overrides and
// validates the result.
func Resolve(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv("CONFIG_PATH")
	}

	cfg := Default()
	if path != "" {
		loaded, err := Load(path)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// ApplyEnv overrides file values with environment variables when set.
func (c *Config) ApplyEnv() error {
	setString(&c.Neo4j.URI, "NEO4J_URI")
	setString(&c.Neo4j.User, "NEO4J_USER")
	setString(&c.Neo4j.Password, "NEO4J_PASSWORD")
	setString(&c.Neo4j.Database, "NEO4J_DATABASE")

	setString(&c.LLM.Provider, "LLM_PROVIDER")
	setString(&c.LLM.Model, "LLM_MODEL")
	setString(&c.LLM.EmbeddingModel, "LLM_EMBEDDING_MODEL")
	setString(&c.LLM.APIKey, "LLM_API_KEY")
	setString(&c.LLM.BaseURL, "LLM_BASE_URL")

	setString(&c.Discovery.LockFile, "DISCOVERY_LOCK_FILE")
	setString(&c.Discovery.MetricsTextfile, "DISCOVERY_METRICS_TEXTFILE")
	if v := os.Getenv("DISCOVERY_THRESHOLD"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("invalid DISCOVERY_THRESHOLD %q: %w", v, err)
		}
		c.Discovery.Threshold = f
	}

	setString(&c.Log.Level, "LOG_LEVEL")
	setString(&c.Log.Format, "LOG_FORMAT")
	setString(&c.Server.Port, "PORT")
	return nil
}

// Matches stored on POTENTIAL_MATCH carry at most this many shared names.
const maxSampleSize = 5

func (c *Config) Validate() error {
	var errs []error
	if c.Neo4j.URI == "" {
		errs = append(errs, errors.New("neo4j.uri is required"))
	}
	if c.Discovery.Threshold <= 0 || c.Discovery.Threshold > 1 {
		errs = append(errs, fmt.Errorf("discovery.threshold must be in (0, 1], got %v", c.Discovery.Threshold))
	}
	if c.Discovery.SampleSize < 1 || c.Discovery.SampleSize > maxSampleSize {
		errs = append(errs, fmt.Errorf("discovery.sample_size must be in [1, %d], got %d", maxSampleSize, c.Discovery.SampleSize))
	}
	return errors.Join(errs...)
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}
