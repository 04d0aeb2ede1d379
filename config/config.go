package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the clinsight service.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Corpus    CorpusConfig    `mapstructure:"corpus"`
	Guardrail GuardrailConfig `mapstructure:"guardrail"`
	LLM       LLMConfig       `mapstructure:"llm"`
	Audit     AuditConfig     `mapstructure:"audit"`
	Postgres  PostgresConfig  `mapstructure:"postgres"`
	Redis     RedisConfig     `mapstructure:"redis"`
}

// ServerConfig contains HTTP server and auth settings.
type ServerConfig struct {
	Address       string        `mapstructure:"address"`
	JWTSecret     string        `mapstructure:"jwt_secret"`
	TokenTTL      time.Duration `mapstructure:"token_ttl"`
	MaxNoteLength int           `mapstructure:"max_note_length"`
	RateLimit     int           `mapstructure:"rate_limit"`
	RateWindow    time.Duration `mapstructure:"rate_window"`
}

// CorpusConfig locates the embedded evidence corpus.
type CorpusConfig struct {
	Path       string `mapstructure:"path"`
	Dimensions int    `mapstructure:"dimensions"`
}

// GuardrailConfig carries the numeric guardrail thresholds. Defaults match the
// documented safety rules; they are configurable so staging environments can
// tighten them, never to disable review entirely.
type GuardrailConfig struct {
	ReviewThreshold        float64 `mapstructure:"review_threshold"`
	GroundingThreshold     float64 `mapstructure:"grounding_threshold"`
	HallucinationThreshold float64 `mapstructure:"hallucination_threshold"`
}

// LLMConfig configures the generation/embedding provider.
type LLMConfig struct {
	Provider        string        `mapstructure:"provider"`
	APIKey          string        `mapstructure:"api_key"`
	CompletionModel string        `mapstructure:"completion_model"`
	EmbeddingModel  string        `mapstructure:"embedding_model"`
	Temperature     float64       `mapstructure:"temperature"`
	MaxTokens       int           `mapstructure:"max_tokens"`
	Timeout         time.Duration `mapstructure:"timeout"`
	Languages       []string      `mapstructure:"languages"`
}

// AuditConfig selects the audit sink and signing key.
type AuditConfig struct {
	Backend    string `mapstructure:"backend"` // postgres | file
	SigningKey string `mapstructure:"signing_key"`
	Dir        string `mapstructure:"dir"` // file backend only
}

// PostgresConfig builds the audit/accounts database DSN.
type PostgresConfig struct {
	URL      string `mapstructure:"url"`
	Host     string `mapstructure:"host"`
	Port     string `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
	SSLMode  string `mapstructure:"sslmode"`
}

// DSN returns the connection string, preferring the explicit URL.
func (p PostgresConfig) DSN() string {
	if p.URL != "" {
		return p.URL
	}
	port := p.Port
	if port == "" {
		port = "5432"
	}
	ssl := p.SSLMode
	if ssl == "" {
		ssl = "disable"
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s", p.User, p.Password, p.Host, port, p.DBName, ssl)
}

// RedisConfig configures the rate limiter backend.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// Validate checks the thresholds stay inside their meaningful ranges. Zero is
// rejected everywhere: a zero threshold would disable review or detection
// outright, which configuration must not be able to do.
func (g GuardrailConfig) Validate() error {
	if g.ReviewThreshold <= 0 || g.ReviewThreshold > 1 {
		return fmt.Errorf("guardrail.review_threshold must be in (0,1], got %v", g.ReviewThreshold)
	}
	if g.GroundingThreshold <= 0 || g.GroundingThreshold > 1 {
		return fmt.Errorf("guardrail.grounding_threshold must be in (0,1], got %v", g.GroundingThreshold)
	}
	if g.HallucinationThreshold <= 0 || g.HallucinationThreshold >= 1 {
		return fmt.Errorf("guardrail.hallucination_threshold must be in (0,1), got %v", g.HallucinationThreshold)
	}
	return nil
}

// LoadConfig reads configuration from the given file, or from config.json in
// the usual locations, with CLINSIGHT_* environment overrides.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("json")

	v.SetDefault("server.address", ":10020")
	v.SetDefault("server.token_ttl", 24*time.Hour)
	v.SetDefault("server.max_note_length", 10000)
	v.SetDefault("server.rate_limit", 100)
	v.SetDefault("server.rate_window", time.Hour)
	v.SetDefault("corpus.path", "corpus/corpus.json")
	v.SetDefault("corpus.dimensions", 1536)
	v.SetDefault("guardrail.review_threshold", 0.6)
	v.SetDefault("guardrail.grounding_threshold", 0.75)
	v.SetDefault("guardrail.hallucination_threshold", 0.30)
	v.SetDefault("llm.provider", "openai")
	v.SetDefault("llm.completion_model", "gpt-4o")
	v.SetDefault("llm.embedding_model", "text-embedding-3-large")
	v.SetDefault("llm.temperature", 0.2)
	v.SetDefault("llm.max_tokens", 2048)
	v.SetDefault("llm.timeout", 30*time.Second)
	v.SetDefault("llm.languages", []string{"hi", "ta"})
	v.SetDefault("audit.backend", "file")
	v.SetDefault("audit.dir", "artifacts/audit")

	if path == "" {
		v.AddConfigPath("./config")
		v.AddConfigPath(".")
	} else {
		v.SetConfigFile(path)
	}

	v.SetEnvPrefix("CLINSIGHT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		// Config file is optional; env + defaults are enough to run.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Guardrail.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}
