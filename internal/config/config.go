package config

import (
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	Apify      ApifyConfig      `yaml:"apify" mapstructure:"apify"`
	Jina       JinaConfig       `yaml:"jina" mapstructure:"jina"`
	Anthropic  AnthropicConfig  `yaml:"anthropic" mapstructure:"anthropic"`
	Bouncer    BouncerConfig    `yaml:"bouncer" mapstructure:"bouncer"`
	Notion     NotionConfig     `yaml:"notion" mapstructure:"notion"`
	Salesforce SalesforceConfig `yaml:"salesforce" mapstructure:"salesforce"`
	Coverage   CoverageConfig   `yaml:"coverage" mapstructure:"coverage"`
	Budget     BudgetConfig     `yaml:"budget" mapstructure:"budget"`
	Research   ResearchConfig   `yaml:"research" mapstructure:"research"`
	Engine     EngineConfig     `yaml:"engine" mapstructure:"engine"`
	Export     ExportConfig     `yaml:"export" mapstructure:"export"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// ApifyConfig holds the discovery provider settings.
type ApifyConfig struct {
	Token      string `yaml:"token" mapstructure:"token"`
	BaseURL    string `yaml:"base_url" mapstructure:"base_url"`
	ActorID    string `yaml:"actor_id" mapstructure:"actor_id"`
	MaxPerUnit int    `yaml:"max_per_unit" mapstructure:"max_per_unit"`
}

// JinaConfig holds Jina AI Reader settings for website research.
type JinaConfig struct {
	Key     string `yaml:"key" mapstructure:"key"`
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
}

// AnthropicConfig holds the summarizer settings.
type AnthropicConfig struct {
	Key          string `yaml:"key" mapstructure:"key"`
	SummaryModel string `yaml:"summary_model" mapstructure:"summary_model"`
	ComposeModel string `yaml:"compose_model" mapstructure:"compose_model"`
	MaxTokens    int    `yaml:"max_tokens" mapstructure:"max_tokens"`
}

// BouncerConfig holds the email verification provider settings.
type BouncerConfig struct {
	Key     string `yaml:"key" mapstructure:"key"`
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
}

// NotionConfig holds Notion API credentials for lead review hand-off.
type NotionConfig struct {
	Token  string `yaml:"token" mapstructure:"token"`
	LeadDB string `yaml:"lead_db" mapstructure:"lead_db"`
}

// SalesforceConfig holds Salesforce JWT auth settings for lead sync.
type SalesforceConfig struct {
	ClientID string `yaml:"client_id" mapstructure:"client_id"`
	Username string `yaml:"username" mapstructure:"username"`
	KeyPath  string `yaml:"key_path" mapstructure:"key_path"`
	LoginURL string `yaml:"login_url" mapstructure:"login_url"`
}

// CoverageConfig configures the coverage planner.
type CoverageConfig struct {
	TablePath     string  `yaml:"table_path" mapstructure:"table_path"`
	MinSpacingKM  float64 `yaml:"min_spacing_km" mapstructure:"min_spacing_km"`
	ThinBySpacing bool    `yaml:"thin_by_spacing" mapstructure:"thin_by_spacing"`
}

// CapabilityLimit bounds one external capability.
type CapabilityLimit struct {
	MinIntervalMS   int     `yaml:"min_interval_ms" mapstructure:"min_interval_ms"`
	MaxInFlight     int     `yaml:"max_in_flight" mapstructure:"max_in_flight"`
	CostPerThousand float64 `yaml:"cost_per_thousand" mapstructure:"cost_per_thousand"`
}

// MinInterval returns the minimum inter-call interval as a duration.
func (c CapabilityLimit) MinInterval() time.Duration {
	return time.Duration(c.MinIntervalMS) * time.Millisecond
}

// BudgetConfig configures the rate budget scheduler.
type BudgetConfig struct {
	Discovery CapabilityLimit `yaml:"discovery" mapstructure:"discovery"`
	Research  CapabilityLimit `yaml:"research" mapstructure:"research"`
	Summarize CapabilityLimit `yaml:"summarize" mapstructure:"summarize"`
	Verify    CapabilityLimit `yaml:"verify" mapstructure:"verify"`
}

// Limits returns the per-capability limits keyed by capability name, the
// shape the budget scheduler consumes.
func (b BudgetConfig) Limits() map[string]CapabilityLimit {
	return map[string]CapabilityLimit{
		"discovery": b.Discovery,
		"research":  b.Research,
		"summarize": b.Summarize,
		"verify":    b.Verify,
	}
}

// ResearchConfig bounds the website research stage.
type ResearchConfig struct {
	MaxLinks    int `yaml:"max_links" mapstructure:"max_links"`
	MaxBytes    int `yaml:"max_bytes" mapstructure:"max_bytes"`
	TimeoutSecs int `yaml:"timeout_secs" mapstructure:"timeout_secs"`
}

// EngineConfig configures the campaign execution engine.
type EngineConfig struct {
	WorkersPerUnit    int `yaml:"workers_per_unit" mapstructure:"workers_per_unit"`
	HeartbeatSecs     int `yaml:"heartbeat_secs" mapstructure:"heartbeat_secs"`
	MaxResultsPerPage int `yaml:"max_results_per_page" mapstructure:"max_results_per_page"`
}

// HeartbeatInterval returns the heartbeat period as a duration.
func (e EngineConfig) HeartbeatInterval() time.Duration {
	return time.Duration(e.HeartbeatSecs) * time.Second
}

// ExportConfig configures result export.
type ExportConfig struct {
	FTPAddr string `yaml:"ftp_addr" mapstructure:"ftp_addr"`
	FTPUser string `yaml:"ftp_user" mapstructure:"ftp_user"`
	FTPPass string `yaml:"ftp_pass" mapstructure:"ftp_pass"`
	FTPDir  string `yaml:"ftp_dir" mapstructure:"ftp_dir"`
}

// ServerConfig configures the HTTP front end.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("CAMPAIGN")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "campaigns.db")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("apify.base_url", "https://api.apify.com/v2")
	v.SetDefault("apify.actor_id", "compass~crawler-google-places")
	v.SetDefault("apify.max_per_unit", 200)
	v.SetDefault("jina.base_url", "https://r.jina.ai")
	v.SetDefault("anthropic.summary_model", "claude-haiku-4-5-20251001")
	v.SetDefault("anthropic.compose_model", "claude-sonnet-4-5-20250929")
	v.SetDefault("anthropic.max_tokens", 1024)
	v.SetDefault("bouncer.base_url", "https://api.usebouncer.com/v1.1")
	v.SetDefault("salesforce.login_url", "https://login.salesforce.com")
	v.SetDefault("coverage.min_spacing_km", 3.0)
	v.SetDefault("coverage.thin_by_spacing", false)
	v.SetDefault("budget.discovery.min_interval_ms", 2000)
	v.SetDefault("budget.discovery.max_in_flight", 1)
	v.SetDefault("budget.discovery.cost_per_thousand", 4.00)
	v.SetDefault("budget.research.min_interval_ms", 500)
	v.SetDefault("budget.research.max_in_flight", 5)
	v.SetDefault("budget.research.cost_per_thousand", 0.20)
	v.SetDefault("budget.summarize.min_interval_ms", 200)
	v.SetDefault("budget.summarize.max_in_flight", 4)
	v.SetDefault("budget.summarize.cost_per_thousand", 8.00)
	v.SetDefault("budget.verify.min_interval_ms", 100)
	v.SetDefault("budget.verify.max_in_flight", 5)
	v.SetDefault("budget.verify.cost_per_thousand", 2.00)
	v.SetDefault("research.max_links", 5)
	v.SetDefault("research.max_bytes", 262144)
	v.SetDefault("research.timeout_secs", 30)
	v.SetDefault("engine.workers_per_unit", 3)
	v.SetDefault("engine.heartbeat_secs", 60)
	v.SetDefault("engine.max_results_per_page", 200)

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
