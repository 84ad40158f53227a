package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	BackendFS       = "fs"
	BackendMemory   = "memory"
	BackendPostgres = "postgres"

	AuthModeDevelopment = "development"
	AuthModeJWT         = "jwt"
)

type Config struct {
	Port     string `mapstructure:"PORT"`
	Env      string `mapstructure:"ENV"`
	LogLevel string `mapstructure:"LOG_LEVEL"`
	LogFile  string `mapstructure:"LOG_FILE"`

	UpstreamAPIBase            string        `mapstructure:"UPSTREAM_API_BASE"`
	PredictTimeout             time.Duration `mapstructure:"PREDICT_TIMEOUT"`
	DefaultLLMModel            string        `mapstructure:"DEFAULT_LLM_MODEL"`
	DefaultExplainMethod       string        `mapstructure:"DEFAULT_EXPLAIN_METHOD"`
	DefaultICDVersion          string        `mapstructure:"DEFAULT_ICD_VERSION"`
	DefaultConfidenceThreshold float64       `mapstructure:"DEFAULT_CONFIDENCE_THRESHOLD"`

	FolderBackend      string `mapstructure:"FOLDER_BACKEND"`
	OutputDir          string `mapstructure:"OUTPUT_DIR"`
	TerminologyBackend string `mapstructure:"TERMINOLOGY_BACKEND"`
	DescriptionFile    string `mapstructure:"DESCRIPTION_FILE"`

	DatabaseURL string `mapstructure:"DATABASE_URL"`
	DBMaxConns  int32  `mapstructure:"DB_MAX_CONNS"`
	DBMinConns  int32  `mapstructure:"DB_MIN_CONNS"`
	RedisURL    string `mapstructure:"REDIS_URL"`

	SearchCacheTTL time.Duration `mapstructure:"SEARCH_CACHE_TTL"`
	SearchDebounce time.Duration `mapstructure:"SEARCH_DEBOUNCE"`
	SearchLimit    int           `mapstructure:"SEARCH_LIMIT"`
	SessionTTL     time.Duration `mapstructure:"SESSION_TTL"`

	AuthMode       string `mapstructure:"AUTH_MODE"`
	AuthSigningKey string `mapstructure:"AUTH_SIGNING_KEY"`
	AuthIssuer     string `mapstructure:"AUTH_ISSUER"`
	AuthAudience   string `mapstructure:"AUTH_AUDIENCE"`

	CORSOrigins    []string      `mapstructure:"CORS_ORIGINS"`
	BodyLimit      string        `mapstructure:"BODY_LIMIT"`
	RequestTimeout time.Duration `mapstructure:"REQUEST_TIMEOUT"`
}

var keys = []string{
	"PORT", "ENV", "LOG_LEVEL", "LOG_FILE",
	"UPSTREAM_API_BASE", "PREDICT_TIMEOUT", "DEFAULT_LLM_MODEL",
	"DEFAULT_EXPLAIN_METHOD", "DEFAULT_ICD_VERSION", "DEFAULT_CONFIDENCE_THRESHOLD",
	"FOLDER_BACKEND", "OUTPUT_DIR", "TERMINOLOGY_BACKEND", "DESCRIPTION_FILE",
	"DATABASE_URL", "DB_MAX_CONNS", "DB_MIN_CONNS", "REDIS_URL",
	"SEARCH_CACHE_TTL", "SEARCH_DEBOUNCE", "SEARCH_LIMIT", "SESSION_TTL",
	"AUTH_MODE", "AUTH_SIGNING_KEY", "AUTH_ISSUER", "AUTH_AUDIENCE",
	"CORS_ORIGINS", "BODY_LIMIT", "REQUEST_TIMEOUT",
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("UPSTREAM_API_BASE", "http://localhost:8001")
	v.SetDefault("PREDICT_TIMEOUT", "120s")
	v.SetDefault("DEFAULT_EXPLAIN_METHOD", "grad_attention")
	v.SetDefault("DEFAULT_ICD_VERSION", "10")
	v.SetDefault("DEFAULT_CONFIDENCE_THRESHOLD", 0.5)
	v.SetDefault("FOLDER_BACKEND", BackendFS)
	v.SetDefault("OUTPUT_DIR", "output")
	v.SetDefault("TERMINOLOGY_BACKEND", BackendMemory)
	v.SetDefault("DESCRIPTION_FILE", "description.json")
	v.SetDefault("DB_MAX_CONNS", 20)
	v.SetDefault("DB_MIN_CONNS", 2)
	v.SetDefault("SEARCH_CACHE_TTL", "10m")
	v.SetDefault("SEARCH_DEBOUNCE", "250ms")
	v.SetDefault("SEARCH_LIMIT", 20)
	v.SetDefault("SESSION_TTL", "8h")
	v.SetDefault("AUTH_MODE", "") // inferred from ENV when empty
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000")
	v.SetDefault("BODY_LIMIT", "2M")
	v.SetDefault("REQUEST_TIMEOUT", "30s")

	// Bind explicitly so Unmarshal sees variables that have no default.
	for _, k := range keys {
		_ = v.BindEnv(k)
	}

	// A missing .env is fine.
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	cfg.CORSOrigins = splitList(strings.Join(cfg.CORSOrigins, ","))
	if cfg.CORSOrigins == nil {
		cfg.CORSOrigins = splitList(v.GetString("CORS_ORIGINS"))
	}

	return cfg, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// ResolvedAuthMode returns AUTH_MODE when set; otherwise development
// environments get the dev middleware and everything else requires JWTs.
func (c *Config) ResolvedAuthMode() string {
	if c.AuthMode != "" {
		return c.AuthMode
	}
	if c.IsDev() {
		return AuthModeDevelopment
	}
	return AuthModeJWT
}

// NeedsDatabase reports whether any configured backend uses Postgres.
func (c *Config) NeedsDatabase() bool {
	return c.FolderBackend == BackendPostgres || c.TerminologyBackend == BackendPostgres
}

// Validate checks that the configuration is safe to run.
func (c *Config) Validate() error {
	switch mode := c.ResolvedAuthMode(); mode {
	case AuthModeDevelopment:
		if !c.IsDev() {
			return fmt.Errorf("AUTH_MODE=development is only allowed with ENV=development (current ENV=%q)", c.Env)
		}
	case AuthModeJWT:
		if len(c.AuthSigningKey) < 32 {
			return fmt.Errorf("AUTH_SIGNING_KEY must be at least 32 bytes when AUTH_MODE is %q", AuthModeJWT)
		}
	default:
		return fmt.Errorf("AUTH_MODE must be %q or %q, got %q", AuthModeDevelopment, AuthModeJWT, mode)
	}

	if c.FolderBackend != BackendFS && c.FolderBackend != BackendPostgres {
		return fmt.Errorf("FOLDER_BACKEND must be %q or %q, got %q", BackendFS, BackendPostgres, c.FolderBackend)
	}
	if c.TerminologyBackend != BackendMemory && c.TerminologyBackend != BackendPostgres {
		return fmt.Errorf("TERMINOLOGY_BACKEND must be %q or %q, got %q", BackendMemory, BackendPostgres, c.TerminologyBackend)
	}
	if c.NeedsDatabase() && c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required when a postgres backend is configured")
	}
	if c.FolderBackend == BackendFS && c.OutputDir == "" {
		return fmt.Errorf("OUTPUT_DIR is required when FOLDER_BACKEND is %q", BackendFS)
	}

	if c.UpstreamAPIBase == "" {
		return fmt.Errorf("UPSTREAM_API_BASE is required")
	}
	if c.DefaultICDVersion != "9" && c.DefaultICDVersion != "10" {
		return fmt.Errorf("DEFAULT_ICD_VERSION must be \"9\" or \"10\", got %q", c.DefaultICDVersion)
	}
	if c.DefaultConfidenceThreshold < 0 || c.DefaultConfidenceThreshold > 1 {
		return fmt.Errorf("DEFAULT_CONFIDENCE_THRESHOLD must be within [0,1], got %v", c.DefaultConfidenceThreshold)
	}
	if c.PredictTimeout <= 0 {
		return fmt.Errorf("PREDICT_TIMEOUT must be positive")
	}
	if c.SearchLimit <= 0 {
		return fmt.Errorf("SEARCH_LIMIT must be positive")
	}
	if c.DBMinConns > c.DBMaxConns {
		return fmt.Errorf("DB_MIN_CONNS (%d) exceeds DB_MAX_CONNS (%d)", c.DBMinConns, c.DBMaxConns)
	}

	return nil
}
