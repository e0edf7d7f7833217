package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for recallchat
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Admin     AdminConfig     `mapstructure:"admin"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Search    SearchConfig    `mapstructure:"search"`
	LLM       LLMConfig       `mapstructure:"llm"`
	Status    StatusConfig    `mapstructure:"status"`
	Chat      ChatConfig      `mapstructure:"chat"`
	Readiness ReadinessConfig `mapstructure:"readiness"`
	Gate      GateConfig      `mapstructure:"gate"`
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Host         string   `mapstructure:"host"`
	Port         int      `mapstructure:"port"`
	AllowOrigins []string `mapstructure:"allow_origins"`
}

// AdminConfig holds admin authentication configuration
type AdminConfig struct {
	APIKey string `mapstructure:"api_key"`
}

// DatabaseConfig holds chat thread storage configuration
type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

// SearchConfig holds the history search collaborator configuration
type SearchConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	Mode    string        `mapstructure:"mode"`
	Limit   int           `mapstructure:"limit"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// LLMConfig holds generation backend configuration
type LLMConfig struct {
	Provider  string        `mapstructure:"provider"`
	BaseURL   string        `mapstructure:"base_url"`
	APIKey    string        `mapstructure:"api_key"`
	Model     string        `mapstructure:"model"`
	Timeout   time.Duration `mapstructure:"timeout"`
	Extractor string        `mapstructure:"extractor"`
}

// StatusConfig holds the model/queue status source configuration
type StatusConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// ChatConfig holds turn pipeline tuning
type ChatConfig struct {
	HistoryLimit         int     `mapstructure:"history_limit"`
	ConversationTurns    int     `mapstructure:"conversation_turns"`
	ConversationMaxChars int     `mapstructure:"conversation_max_chars"`
	HighQualityThreshold float64 `mapstructure:"high_quality_threshold"`
	MaxContextRecords    int     `mapstructure:"max_context_records"`
	ExcerptChars         int     `mapstructure:"excerpt_chars"`
}

// ReadinessConfig holds model readiness polling configuration
type ReadinessConfig struct {
	InitialDelay         time.Duration `mapstructure:"initial_delay"`
	Interval             time.Duration `mapstructure:"interval"`
	MaxAttempts          int           `mapstructure:"max_attempts"`
	OptimisticReadyAfter time.Duration `mapstructure:"optimistic_ready_after"`
	WarmInterval         time.Duration `mapstructure:"warm_interval"`
	WarmTimeout          time.Duration `mapstructure:"warm_timeout"`
}

// GateConfig holds processing gate configuration
type GateConfig struct {
	Interval     time.Duration `mapstructure:"interval"`
	SettleDelay  time.Duration `mapstructure:"settle_delay"`
	DisableInput bool          `mapstructure:"disable_input"`
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

	// RECALLCHAT_SERVER_PORT overrides server.port
	v.SetEnvPrefix("RECALLCHAT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "127.0.0.1")
	v.SetDefault("server.port", 8090)
	v.SetDefault("server.allow_origins", []string{"*"})

	v.SetDefault("admin.api_key", "")

	v.SetDefault("database.path", "./data/recallchat.db")

	v.SetDefault("search.base_url", "http://localhost:8091")
	v.SetDefault("search.mode", "hybrid-rerank")
	v.SetDefault("search.limit", 25)
	v.SetDefault("search.timeout", 15*time.Second)

	v.SetDefault("llm.provider", "openai")
	v.SetDefault("llm.base_url", "http://localhost:11434/v1")
	v.SetDefault("llm.api_key", "")
	v.SetDefault("llm.model", "qwen2.5:7b")
	v.SetDefault("llm.timeout", 60*time.Second)
	v.SetDefault("llm.extractor", "heuristic")

	v.SetDefault("status.base_url", "http://localhost:8091")
	v.SetDefault("status.timeout", 5*time.Second)

	v.SetDefault("chat.history_limit", 50)
	v.SetDefault("chat.conversation_turns", 10)
	v.SetDefault("chat.conversation_max_chars", 2000)
	v.SetDefault("chat.high_quality_threshold", 0.3)
	v.SetDefault("chat.max_context_records", 3)
	v.SetDefault("chat.excerpt_chars", 300)

	v.SetDefault("readiness.initial_delay", time.Second)
	v.SetDefault("readiness.interval", 2*time.Second)
	v.SetDefault("readiness.max_attempts", 60)
	v.SetDefault("readiness.optimistic_ready_after", 3*time.Second)
	v.SetDefault("readiness.warm_interval", 2*time.Second)
	v.SetDefault("readiness.warm_timeout", 120*time.Second)

	v.SetDefault("gate.interval", 3*time.Second)
	v.SetDefault("gate.settle_delay", 1500*time.Millisecond)
	v.SetDefault("gate.disable_input", false)
}

// Validate rejects settings the pipeline cannot run with
func (c *Config) Validate() error {
	if c.Search.Limit <= 0 {
		return fmt.Errorf("search.limit must be positive, got %d", c.Search.Limit)
	}
	if c.Readiness.Interval <= 0 || c.Gate.Interval <= 0 {
		return errors.New("polling intervals must be positive")
	}
	if c.Readiness.MaxAttempts <= 0 {
		return fmt.Errorf("readiness.max_attempts must be positive, got %d", c.Readiness.MaxAttempts)
	}
	if c.Chat.HighQualityThreshold <= 0 || c.Chat.HighQualityThreshold > 1 {
		return fmt.Errorf("chat.high_quality_threshold must be above 0 and at most 1, got %v", c.Chat.HighQualityThreshold)
	}
	return nil
}

// Address returns the server address
func (c *Config) Address() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}
