package config

import (
	"fmt"

	"github.com/spf13/viper"
)

// Config holds all configuration for CourseChat
type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Admin   AdminConfig   `mapstructure:"admin"`
	Docs    DocsConfig    `mapstructure:"docs"`
	Store   StoreConfig   `mapstructure:"store"`
	Chunker ChunkerConfig `mapstructure:"chunker"`
	Session SessionConfig `mapstructure:"session"`
	LLM     LLMConfig     `mapstructure:"llm"`
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

// AdminConfig holds admin authentication configuration
type AdminConfig struct {
	APIKey string `mapstructure:"api_key"`
}

// DocsConfig holds the ingestion corpus location
type DocsConfig struct {
	Path string `mapstructure:"path"`
}

// StoreConfig holds vector index configuration
type StoreConfig struct {
	Backend          string  `mapstructure:"backend"` // sqlite or memory
	Path             string  `mapstructure:"path"`
	MaxResults       int     `mapstructure:"max_results"`
	ResolveThreshold float64 `mapstructure:"resolve_threshold"`
}

// ChunkerConfig holds chunking configuration
type ChunkerConfig struct {
	Size    int    `mapstructure:"size"`
	Overlap int    `mapstructure:"overlap"`
	Unit    string `mapstructure:"unit"` // chars or tokens
}

// SessionConfig holds conversation history configuration
type SessionConfig struct {
	MaxHistory int `mapstructure:"max_history"`
}

// LLMConfig holds LLM provider configuration
type LLMConfig struct {
	BaseURL        string  `mapstructure:"base_url"`
	APIKey         string  `mapstructure:"api_key"`
	Model          string  `mapstructure:"model"`
	EmbeddingModel string  `mapstructure:"embedding_model"`
	Temperature    float64 `mapstructure:"temperature"`
	MaxTokens      int     `mapstructure:"max_tokens"`
}

// Load loads configuration from file and environment
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	v.SetEnvPrefix("COURSECHAT")
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		// Config file not found, use defaults
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8000)

	v.SetDefault("admin.api_key", "")

	v.SetDefault("docs.path", "./docs")

	v.SetDefault("store.backend", "sqlite")
	v.SetDefault("store.path", "./data/coursechat.db")
	v.SetDefault("store.max_results", 5)
	v.SetDefault("store.resolve_threshold", 0.8)

	v.SetDefault("chunker.size", 800)
	v.SetDefault("chunker.overlap", 100)
	v.SetDefault("chunker.unit", "chars")

	v.SetDefault("session.max_history", 2)

	v.SetDefault("llm.base_url", "https://api.openai.com/v1")
	v.SetDefault("llm.api_key", "")
	v.SetDefault("llm.model", "gpt-4o-mini")
	v.SetDefault("llm.embedding_model", "text-embedding-3-small")
	v.SetDefault("llm.temperature", 0)
	v.SetDefault("llm.max_tokens", 800)
}

// Validate rejects configurations that must fail at startup rather than
// be silently clamped at runtime.
func (c *Config) Validate() error {
	if c.Chunker.Size <= 0 {
		return fmt.Errorf("chunker.size must be positive, got %d", c.Chunker.Size)
	}
	if c.Chunker.Overlap < 0 {
		return fmt.Errorf("chunker.overlap must not be negative, got %d", c.Chunker.Overlap)
	}
	if c.Chunker.Overlap >= c.Chunker.Size {
		return fmt.Errorf("chunker.overlap (%d) must be smaller than chunker.size (%d)",
			c.Chunker.Overlap, c.Chunker.Size)
	}
	if c.Chunker.Unit != "chars" && c.Chunker.Unit != "tokens" {
		return fmt.Errorf("chunker.unit must be chars or tokens, got %q", c.Chunker.Unit)
	}
	if c.Store.Backend != "sqlite" && c.Store.Backend != "memory" {
		return fmt.Errorf("store.backend must be sqlite or memory, got %q", c.Store.Backend)
	}
	if c.Store.MaxResults <= 0 {
		return fmt.Errorf("store.max_results must be positive, got %d", c.Store.MaxResults)
	}
	if c.Session.MaxHistory < 0 {
		return fmt.Errorf("session.max_history must not be negative, got %d", c.Session.MaxHistory)
	}
	if c.LLM.APIKey == "" {
		return fmt.Errorf("llm.api_key is required (set COURSECHAT_LLM_API_KEY)")
	}
	return nil
}

// Address returns the server address
func (c *Config) Address() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}
