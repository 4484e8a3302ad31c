package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for an osinthunter process. It is loaded once
// and passed explicitly to every component that needs it.
type Config struct {
	General     GeneralConfig     `mapstructure:"general"`
	Agent       AgentConfig       `mapstructure:"agent"`
	Credentials CredentialsConfig `mapstructure:"credentials"`
	Search      SearchConfig      `mapstructure:"search"`
	Fetch       FetchConfig       `mapstructure:"fetch"`
	LLM         LLMConfig         `mapstructure:"llm"`
	Server      ServerConfig      `mapstructure:"server"`
	Telemetry   TelemetryConfig   `mapstructure:"telemetry"`
	RunLog      RunLogConfig      `mapstructure:"runlog"`
}

// GeneralConfig contains general application settings
type GeneralConfig struct {
	Debug     bool   `mapstructure:"debug"`
	LogLevel  string `mapstructure:"log_level"`
	LogFormat string `mapstructure:"log_format"` // json or console
}

// AgentConfig bounds the investigation loop.
type AgentConfig struct {
	MaxIterations           int           `mapstructure:"max_iterations"`
	AllowNetwork            bool          `mapstructure:"allow_network"`
	CollectorTimeout        time.Duration `mapstructure:"collector_timeout"`
	MaxConcurrentCollectors int           `mapstructure:"max_concurrent_collectors"`
	PlanMaxSteps            int           `mapstructure:"plan_max_steps"`
	Collectors              []string      `mapstructure:"collectors"` // empty = all
}

func (a AgentConfig) Validate() error {
	if a.MaxIterations < 0 {
		return fmt.Errorf("agent.max_iterations must be >= 0, got %d", a.MaxIterations)
	}
	if a.CollectorTimeout <= 0 {
		return fmt.Errorf("agent.collector_timeout must be > 0")
	}
	if a.MaxConcurrentCollectors <= 0 {
		return fmt.Errorf("agent.max_concurrent_collectors must be > 0")
	}
	if a.PlanMaxSteps <= 0 {
		return fmt.Errorf("agent.plan_max_steps must be > 0")
	}
	return nil
}

// CredentialsConfig carries upstream API keys. Missing keys put the matching
// collectors in degraded mode.
type CredentialsConfig struct {
	SerpAPI      string `mapstructure:"serpapi"`
	Brave        string `mapstructure:"brave"`
	Serper       string `mapstructure:"serper"`
	Tavily       string `mapstructure:"tavily"`
	Shodan       string `mapstructure:"shodan"`
	CensysID     string `mapstructure:"censys_id"`
	CensysSecret string `mapstructure:"censys_secret"`
	Hunter       string `mapstructure:"hunter"`
	BuiltWith    string `mapstructure:"builtwith"`
}

// SearchConfig selects the web-search backend.
type SearchConfig struct {
	Provider   string `mapstructure:"provider"` // serpapi, serper, brave, tavily
	MaxResults int    `mapstructure:"max_results"`
}

var searchProviders = map[string]struct{}{"serpapi": {}, "serper": {}, "brave": {}, "tavily": {}}

func (s SearchConfig) Validate() error {
	if _, ok := searchProviders[strings.ToLower(s.Provider)]; !ok {
		return fmt.Errorf("search.provider %q is not supported", s.Provider)
	}
	if s.MaxResults <= 0 {
		return fmt.Errorf("search.max_results must be > 0")
	}
	return nil
}

// FetchConfig controls the headless page fetcher.
type FetchConfig struct {
	Timeout  time.Duration `mapstructure:"timeout"`
	MaxChars int           `mapstructure:"max_chars"`
}

// LLMConfig configures the optional refinement hooks.
type LLMConfig struct {
	Enabled bool          `mapstructure:"enabled"`
	APIKey  string        `mapstructure:"api_key"`
	BaseURL string        `mapstructure:"base_url"`
	Model   string        `mapstructure:"model"`
	Timeout time.Duration `mapstructure:"timeout"`
}

func (l LLMConfig) Validate() error {
	if !l.Enabled {
		return nil
	}
	if strings.TrimSpace(l.APIKey) == "" {
		return fmt.Errorf("llm.api_key required when llm is enabled")
	}
	if l.Timeout <= 0 {
		return fmt.Errorf("llm.timeout must be > 0")
	}
	return nil
}

// ServerConfig contains HTTP server settings
type ServerConfig struct {
	Address        string `mapstructure:"address"`
	MaxUploadBytes int64  `mapstructure:"max_upload_bytes"`
	MaxIterations  int    `mapstructure:"max_iterations"` // cap for per-request overrides
}

func (s ServerConfig) Validate() error {
	if s.MaxIterations < 0 {
		return fmt.Errorf("server.max_iterations must not be negative")
	}
	return nil
}

// TelemetryConfig contains telemetry and monitoring settings
type TelemetryConfig struct {
	Enabled      bool   `mapstructure:"enabled"`
	OTLPEndpoint string `mapstructure:"otlp_endpoint"`
	ServiceName  string `mapstructure:"service_name"`
}

// RunLogConfig selects where completed runs are recorded. Every backend is optional.
type RunLogConfig struct {
	File     string         `mapstructure:"file"`
	Postgres PostgresConfig `mapstructure:"postgres"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Index    IndexConfig    `mapstructure:"index"`
}

// PostgresConfig contains Postgres connection settings
type PostgresConfig struct {
	URL string `mapstructure:"url"`
}

// RedisConfig contains Redis connection settings
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Stream   string `mapstructure:"stream"`
}

func (r RedisConfig) Validate() error {
	if strings.TrimSpace(r.Addr) != "" && strings.TrimSpace(r.Stream) == "" {
		return fmt.Errorf("runlog.redis.stream required when runlog.redis.addr is set")
	}
	return nil
}

// IndexConfig toggles the in-memory evidence search index. Only the latest
// MaxRuns runs stay searchable.
type IndexConfig struct {
	Enabled bool `mapstructure:"enabled"`
	MaxRuns int  `mapstructure:"max_runs"`
}

// Validate checks every section.
func (c *Config) Validate() error {
	return errors.Join(
		c.Agent.Validate(),
		c.Search.Validate(),
		c.LLM.Validate(),
		c.Server.Validate(),
		c.RunLog.Redis.Validate(),
	)
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("general.debug", false)
	v.SetDefault("general.log_level", "info")
	v.SetDefault("general.log_format", "console")

	v.SetDefault("agent.max_iterations", 6)
	v.SetDefault("agent.allow_network", false)
	v.SetDefault("agent.collector_timeout", 20*time.Second)
	v.SetDefault("agent.max_concurrent_collectors", 8)
	v.SetDefault("agent.plan_max_steps", 8)
	v.SetDefault("agent.collectors", []string{})

	for _, k := range []string{"serpapi", "brave", "serper", "tavily", "shodan", "censys_id", "censys_secret", "hunter", "builtwith"} {
		v.SetDefault("credentials."+k, "")
	}

	v.SetDefault("search.provider", "serpapi")
	v.SetDefault("search.max_results", 5)

	v.SetDefault("fetch.timeout", 15*time.Second)
	v.SetDefault("fetch.max_chars", 20000)

	v.SetDefault("llm.enabled", false)
	v.SetDefault("llm.api_key", "")
	v.SetDefault("llm.base_url", "https://api.openai.com/v1")
	v.SetDefault("llm.model", "gpt-4o-mini")
	v.SetDefault("llm.timeout", 30*time.Second)

	v.SetDefault("server.address", ":8000")
	v.SetDefault("server.max_upload_bytes", 10<<20)
	v.SetDefault("server.max_iterations", 20)

	v.SetDefault("telemetry.enabled", false)
	v.SetDefault("telemetry.otlp_endpoint", "")
	v.SetDefault("telemetry.service_name", "osinthunter")

	v.SetDefault("runlog.file", "")
	v.SetDefault("runlog.postgres.url", "")
	v.SetDefault("runlog.redis.addr", "")
	v.SetDefault("runlog.redis.password", "")
	v.SetDefault("runlog.redis.db", 0)
	v.SetDefault("runlog.redis.stream", "osinthunter:runs")
	v.SetDefault("runlog.index.enabled", false)
	v.SetDefault("runlog.index.max_runs", 1000)
}

// legacyEnv maps config keys to the plain environment variable names that
// deployments already export.
var legacyEnv = map[string][]string{
	"credentials.serpapi":       {"SERPAPI_API_KEY"},
	"credentials.brave":         {"BRAVE_API_KEY"},
	"credentials.serper":        {"SERPER_API_KEY"},
	"credentials.tavily":        {"TAVILY_API_KEY"},
	"credentials.shodan":        {"SHODAN_API_KEY"},
	"credentials.censys_id":     {"CENSYS_API_ID"},
	"credentials.censys_secret": {"CENSYS_API_SECRET"},
	"credentials.hunter":        {"HUNTER_API_KEY"},
	"credentials.builtwith":     {"BUILTWITH_API_KEY"},
	"llm.api_key":               {"OPENAI_API_KEY", "OPENROUTER_API_KEY"},
	"llm.base_url":              {"OPENROUTER_BASE_URL"},
	"llm.model":                 {"OSINTHUNTER_MODEL"},
	"agent.allow_network":       {"OSINTHUNTER_ALLOW_NETWORK"},
	"agent.max_iterations":      {"OSINTHUNTER_MAX_ITERATIONS"},
	"runlog.postgres.url":       {"DATABASE_URL"},
}

func bindEnv(v *viper.Viper) error {
	v.SetEnvPrefix("OSINTHUNTER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv() // OSINTHUNTER_AGENT_MAX_ITERATIONS etc.

	for key, names := range legacyEnv {
		prefixed := "OSINTHUNTER_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		args := append([]string{key, prefixed}, names...)
		if err := v.BindEnv(args...); err != nil {
			return fmt.Errorf("bind env %s: %w", key, err)
		}
	}
	return nil
}

// Load reads configuration from path, or from the default search locations
// when path is empty. A missing config file is not an error; defaults and the
// environment still apply.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	if err := bindEnv(v); err != nil {
		return nil, err
	}

	if path == "" {
		v.SetConfigName("osinthunter")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		if exe, err := os.Executable(); err == nil {
			v.AddConfigPath(filepath.Join(filepath.Dir(exe), "..", "config"))
		}
	} else {
		v.SetConfigFile(path)
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.Search.Provider = strings.ToLower(strings.TrimSpace(cfg.Search.Provider))
	cfg.Agent.Collectors = normalizeNames(cfg.Agent.Collectors)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// normalizeNames trims names and splits entries that came from a single
// comma or space separated environment value.
func normalizeNames(in []string) []string {
	var out []string
	for _, item := range in {
		for _, part := range strings.FieldsFunc(item, func(r rune) bool { return r == ',' || r == ' ' }) {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}
