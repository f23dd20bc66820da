package config

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// DefaultEnvFile is the dotenv file preloaded before reading the environment.
const DefaultEnvFile = "configs/.env"

// Config holds the application configuration loaded from files and environment variables.
type Config struct {
	AppName  string `mapstructure:"app_name"`
	Env      string `mapstructure:"app_env"`
	LogLevel string `mapstructure:"log_level"`

	RubricsFile     string   `mapstructure:"rubrics_file"`
	RubricURLs      []string `mapstructure:"rubric_urls"`
	RubricIDPattern string   `mapstructure:"rubric_id_pattern"`
	MaxPages        int      `mapstructure:"max_pages"`
	PageSize        int      `mapstructure:"page_size"`

	Workers               int    `mapstructure:"workers"`
	RequestDelayMs        int64  `mapstructure:"request_delay_ms"`
	RateLimitScope        string `mapstructure:"rate_limit_scope"`
	RequestTimeoutSeconds int64  `mapstructure:"request_timeout_seconds"`
	RetryBudget           int    `mapstructure:"retry_budget"`
	RetryBaseDelayMs      int64  `mapstructure:"retry_base_delay_ms"`
	RetryMaxDelayMs       int64  `mapstructure:"retry_max_delay_ms"`
	MaxBodyBytes          int64  `mapstructure:"max_body_bytes"`
	UserAgent             string `mapstructure:"user_agent"`
	AcceptLanguage        string `mapstructure:"accept_language"`
	RespectRobots         bool   `mapstructure:"respect_robots"`
	FrontierIdleSeconds   int64  `mapstructure:"frontier_idle_timeout_seconds"`

	SelectorsFile string `mapstructure:"selectors_file"`
	SinksFile     string `mapstructure:"sinks_file"`
	OutputPath    string `mapstructure:"output_path"`

	StorageType           string `mapstructure:"storage_type"`
	BBoltPath             string `mapstructure:"bbolt_path"`
	StorageTTLSeconds     int64  `mapstructure:"storage_ttl_seconds"`
	StorageCleanupSeconds int64  `mapstructure:"storage_cleanup_interval_seconds"`

	CrawlIntervalSeconds int64  `mapstructure:"crawl_interval"`
	MetricsAddr          string `mapstructure:"metrics_addr"`

	RequestDelay           time.Duration `mapstructure:"-"`
	RequestTimeout         time.Duration `mapstructure:"-"`
	RetryBaseDelay         time.Duration `mapstructure:"-"`
	RetryMaxDelay          time.Duration `mapstructure:"-"`
	FrontierIdleTimeout    time.Duration `mapstructure:"-"`
	StorageTTL             time.Duration `mapstructure:"-"`
	StorageCleanupInterval time.Duration `mapstructure:"-"`
	CrawlInterval          time.Duration `mapstructure:"-"`
}

// Load reads configuration from environment variables, preloading envFile
// (DefaultEnvFile when empty) if it exists.
func Load(envFile string) (*Config, error) {
	if strings.TrimSpace(envFile) == "" {
		envFile = DefaultEnvFile
	}
	_ = godotenv.Load(envFile)

	v := viper.New()

	v.SetDefault("app_name", "rubric-harvester")
	v.SetDefault("app_env", "development")
	v.SetDefault("log_level", "info")
	v.SetDefault("rubrics_file", "./configs/rubrics.yaml")
	v.SetDefault("rubric_urls", []string{})
	v.SetDefault("rubric_id_pattern", `rubrique(\d+)`)
	v.SetDefault("max_pages", 10)
	v.SetDefault("page_size", 20)
	v.SetDefault("workers", 8)
	v.SetDefault("request_delay_ms", 1000)
	v.SetDefault("rate_limit_scope", "global")
	v.SetDefault("request_timeout_seconds", 20)
	v.SetDefault("retry_budget", 2)
	v.SetDefault("retry_base_delay_ms", 500)
	v.SetDefault("retry_max_delay_ms", 10000)
	v.SetDefault("max_body_bytes", 5<<20)
	v.SetDefault("user_agent", "Mozilla/5.0 (compatible; rubric-harvester/1.0)")
	v.SetDefault("accept_language", "fr-FR,fr;q=0.9,en;q=0.5")
	v.SetDefault("respect_robots", true)
	v.SetDefault("frontier_idle_timeout_seconds", 60)
	v.SetDefault("selectors_file", "")
	v.SetDefault("sinks_file", "")
	v.SetDefault("output_path", "./data/articles.jsonl")
	v.SetDefault("storage_type", "none")
	v.SetDefault("bbolt_path", "./data/harvest.db")
	v.SetDefault("storage_ttl_seconds", int64((30*24*time.Hour)/time.Second))
	v.SetDefault("storage_cleanup_interval_seconds", int64((12*time.Hour)/time.Second))
	v.SetDefault("crawl_interval", 0)
	v.SetDefault("metrics_addr", "")

	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	cfg.RubricURLs = splitList(cfg.RubricURLs)

	if err := cfg.finalize(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// finalize validates raw values and derives the duration fields.
func (cfg *Config) finalize() error {
	if cfg.MaxPages <= 0 {
		return fmt.Errorf("invalid max_pages (must be positive)")
	}
	if cfg.PageSize <= 0 {
		return fmt.Errorf("invalid page_size (must be positive)")
	}
	if cfg.Workers <= 0 {
		return fmt.Errorf("invalid workers (must be positive)")
	}
	if cfg.RequestDelayMs < 0 {
		return fmt.Errorf("invalid request_delay_ms (must not be negative)")
	}
	if cfg.RequestTimeoutSeconds <= 0 {
		return fmt.Errorf("invalid request_timeout_seconds (must be positive seconds)")
	}
	if cfg.RetryBudget < 0 {
		return fmt.Errorf("invalid retry_budget (must not be negative)")
	}
	if cfg.RetryBaseDelayMs < 0 || cfg.RetryMaxDelayMs < 0 {
		return fmt.Errorf("invalid retry delays (must not be negative)")
	}
	if cfg.FrontierIdleSeconds <= 0 {
		return fmt.Errorf("invalid frontier_idle_timeout_seconds (must be positive seconds)")
	}
	if cfg.StorageTTLSeconds <= 0 {
		return fmt.Errorf("invalid storage_ttl_seconds (must be positive seconds)")
	}
	if cfg.StorageCleanupSeconds <= 0 {
		return fmt.Errorf("invalid storage_cleanup_interval_seconds (must be positive seconds)")
	}
	if cfg.CrawlIntervalSeconds < 0 {
		return fmt.Errorf("invalid crawl_interval (must not be negative)")
	}
	if _, err := regexp.Compile(cfg.RubricIDPattern); err != nil {
		return fmt.Errorf("invalid rubric_id_pattern: %w", err)
	}

	cfg.RateLimitScope = strings.ToLower(strings.TrimSpace(cfg.RateLimitScope))
	switch cfg.RateLimitScope {
	case "", "global", "host":
	default:
		return fmt.Errorf("invalid rate_limit_scope %q (expected global or host)", cfg.RateLimitScope)
	}

	cfg.RequestDelay = time.Duration(cfg.RequestDelayMs) * time.Millisecond
	cfg.RequestTimeout = time.Duration(cfg.RequestTimeoutSeconds) * time.Second
	cfg.RetryBaseDelay = time.Duration(cfg.RetryBaseDelayMs) * time.Millisecond
	cfg.RetryMaxDelay = time.Duration(cfg.RetryMaxDelayMs) * time.Millisecond
	cfg.FrontierIdleTimeout = time.Duration(cfg.FrontierIdleSeconds) * time.Second
	cfg.StorageTTL = time.Duration(cfg.StorageTTLSeconds) * time.Second
	cfg.StorageCleanupInterval = time.Duration(cfg.StorageCleanupSeconds) * time.Second
	cfg.CrawlInterval = time.Duration(cfg.CrawlIntervalSeconds) * time.Second
	return nil
}

// splitList flattens comma separated entries; env vars arrive as one string.
func splitList(in []string) []string {
	var out []string
	for _, item := range in {
		for _, part := range strings.Split(item, ",") {
			if p := strings.TrimSpace(part); p != "" {
				out = append(out, p)
			}
		}
	}
	return out
}
