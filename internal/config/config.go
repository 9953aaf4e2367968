// Package config loads outlet-cli settings from config.yaml, .env and
// OUTLET_* environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Fetch     FetchConfig     `yaml:"fetch" mapstructure:"fetch"`
	Extract   ExtractConfig   `yaml:"extract" mapstructure:"extract"`
	Firecrawl FirecrawlConfig `yaml:"firecrawl" mapstructure:"firecrawl"`
	Jina      JinaConfig      `yaml:"jina" mapstructure:"jina"`
	Geocode   GeocodeConfig   `yaml:"geocode" mapstructure:"geocode"`
	Enrich    EnrichConfig    `yaml:"enrich" mapstructure:"enrich"`
	Store     StoreConfig     `yaml:"store" mapstructure:"store"`
	SSH       SSHConfig       `yaml:"ssh" mapstructure:"ssh"`
	Anthropic AnthropicConfig `yaml:"anthropic" mapstructure:"anthropic"`
	Export    ExportConfig    `yaml:"export" mapstructure:"export"`
	S3        S3Config        `yaml:"s3" mapstructure:"s3"`
	Kafka     KafkaConfig     `yaml:"kafka" mapstructure:"kafka"`
	Server    ServerConfig    `yaml:"server" mapstructure:"server"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
}

// FetchConfig configures the page fetch.
type FetchConfig struct {
	URL       string `yaml:"url" mapstructure:"url"`
	Locality  string `yaml:"locality" mapstructure:"locality"`
	SettleMS  int    `yaml:"settle_ms" mapstructure:"settle_ms"`
	UserAgent string `yaml:"user_agent" mapstructure:"user_agent"`
	Local     bool   `yaml:"local" mapstructure:"local"`
}

// Settle returns the settle delay as a duration.
func (f FetchConfig) Settle() time.Duration {
	return time.Duration(f.SettleMS) * time.Millisecond
}

// ExtractConfig locates service tags in the rendered page.
type ExtractConfig struct {
	ServiceContainer string `yaml:"service_container" mapstructure:"service_container"`
	ServiceItem      string `yaml:"service_item" mapstructure:"service_item"`
}

// FirecrawlConfig holds Firecrawl API settings.
type FirecrawlConfig struct {
	Key     string `yaml:"key" mapstructure:"key"`
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
}

// JinaConfig holds Jina AI Reader settings.
type JinaConfig struct {
	Key     string `yaml:"key" mapstructure:"key"`
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
}

// GeocodeConfig configures the Google geocoder.
type GeocodeConfig struct {
	Key          string  `yaml:"key" mapstructure:"key"`
	BaseURL      string  `yaml:"base_url" mapstructure:"base_url"`
	Region       string  `yaml:"region" mapstructure:"region"`
	RateLimit    float64 `yaml:"rate_limit" mapstructure:"rate_limit"`
	CacheEnabled bool    `yaml:"cache_enabled" mapstructure:"cache_enabled"`
	CacheTTLDays int     `yaml:"cache_ttl_days" mapstructure:"cache_ttl_days"`
}

// EnrichConfig configures coordinate enrichment.
type EnrichConfig struct {
	Concurrency int  `yaml:"concurrency" mapstructure:"concurrency"`
	ReuseStored bool `yaml:"reuse_stored" mapstructure:"reuse_stored"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	SQLitePath  string `yaml:"sqlite_path" mapstructure:"sqlite_path"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// SSHConfig configures the bastion host and the database psql reaches from it.
type SSHConfig struct {
	Host           string        `yaml:"host" mapstructure:"host"`
	Port           int           `yaml:"port" mapstructure:"port"`
	User           string        `yaml:"user" mapstructure:"user"`
	KeyFile        string        `yaml:"key_file" mapstructure:"key_file"`
	KnownHostsFile string        `yaml:"known_hosts_file" mapstructure:"known_hosts_file"`
	Timeout        time.Duration `yaml:"timeout" mapstructure:"timeout"`
	DBHost         string        `yaml:"db_host" mapstructure:"db_host"`
	DBPort         int           `yaml:"db_port" mapstructure:"db_port"`
	DBUser         string        `yaml:"db_user" mapstructure:"db_user"`
	DBPassword     string        `yaml:"db_password" mapstructure:"db_password"`
	DBName         string        `yaml:"db_name" mapstructure:"db_name"`
}

// AnthropicConfig holds Anthropic API settings for the chat endpoint.
type AnthropicConfig struct {
	Key       string `yaml:"key" mapstructure:"key"`
	Model     string `yaml:"model" mapstructure:"model"`
	MaxTokens int64  `yaml:"max_tokens" mapstructure:"max_tokens"`
}

// ExportConfig configures the XLSX snapshot.
type ExportConfig struct {
	Path      string `yaml:"path" mapstructure:"path"`
	OnRun     bool   `yaml:"on_run" mapstructure:"on_run"`
	S3Enabled bool   `yaml:"s3_enabled" mapstructure:"s3_enabled"`
	S3Prefix  string `yaml:"s3_prefix" mapstructure:"s3_prefix"`
}

// S3Config holds S3-compatible object storage settings.
type S3Config struct {
	Endpoint  string `yaml:"endpoint" mapstructure:"endpoint"`
	AccessKey string `yaml:"access_key" mapstructure:"access_key"`
	SecretKey string `yaml:"secret_key" mapstructure:"secret_key"`
	Bucket    string `yaml:"bucket" mapstructure:"bucket"`
	Region    string `yaml:"region" mapstructure:"region"`
	UseSSL    bool   `yaml:"use_ssl" mapstructure:"use_ssl"`
}

// KafkaConfig configures outlet change events. Empty brokers disable them.
type KafkaConfig struct {
	Brokers []string `yaml:"brokers" mapstructure:"brokers"`
	Topic   string   `yaml:"topic" mapstructure:"topic"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Port           int      `yaml:"port" mapstructure:"port"`
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from .env, config.yaml and the environment.
// Environment variables win over the file.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, eris.Wrap(err, "config: load .env")
	}

	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	v.SetEnvPrefix("OUTLET")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}
	cfg.Kafka.Brokers = splitList(cfg.Kafka.Brokers)
	cfg.Server.AllowedOrigins = splitList(cfg.Server.AllowedOrigins)

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("fetch.url", "https://www.mcdonalds.com.my/locate-us")
	v.SetDefault("fetch.locality", "Kuala Lumpur")
	v.SetDefault("fetch.settle_ms", 5000)
	v.SetDefault("fetch.user_agent", "Mozilla/5.0 (compatible; OutletBot/1.0)")
	v.SetDefault("fetch.local", true)
	v.SetDefault("extract.service_container", ".ed-store-locator-result")
	v.SetDefault("extract.service_item", ".ed-store-services span")
	v.SetDefault("firecrawl.key", "")
	v.SetDefault("firecrawl.base_url", "https://api.firecrawl.dev/v2")
	v.SetDefault("jina.key", "")
	v.SetDefault("jina.base_url", "https://r.jina.ai")
	v.SetDefault("geocode.key", "")
	v.SetDefault("geocode.base_url", "https://maps.googleapis.com/maps/api/geocode/json")
	v.SetDefault("geocode.region", "my")
	v.SetDefault("geocode.rate_limit", 10.0)
	v.SetDefault("geocode.cache_enabled", false)
	v.SetDefault("geocode.cache_ttl_days", 90)
	v.SetDefault("enrich.concurrency", 1)
	v.SetDefault("enrich.reuse_stored", false)
	v.SetDefault("store.driver", "postgres")
	v.SetDefault("store.database_url", "")
	v.SetDefault("store.sqlite_path", "outlets.db")
	v.SetDefault("store.max_conns", 4)
	v.SetDefault("store.min_conns", 1)
	v.SetDefault("ssh.host", "")
	v.SetDefault("ssh.port", 22)
	v.SetDefault("ssh.user", "")
	v.SetDefault("ssh.key_file", "")
	v.SetDefault("ssh.known_hosts_file", "")
	v.SetDefault("ssh.timeout", "15s")
	v.SetDefault("ssh.db_host", "localhost")
	v.SetDefault("ssh.db_port", 5432)
	v.SetDefault("ssh.db_user", "")
	v.SetDefault("ssh.db_password", "")
	v.SetDefault("ssh.db_name", "")
	v.SetDefault("anthropic.key", "")
	v.SetDefault("anthropic.model", "claude-haiku-4-5-20251001")
	v.SetDefault("anthropic.max_tokens", 1024)
	v.SetDefault("export.path", "outlets.xlsx")
	v.SetDefault("export.on_run", true)
	v.SetDefault("export.s3_enabled", false)
	v.SetDefault("export.s3_prefix", "exports")
	v.SetDefault("s3.endpoint", "")
	v.SetDefault("s3.access_key", "")
	v.SetDefault("s3.secret_key", "")
	v.SetDefault("s3.bucket", "")
	v.SetDefault("s3.region", "us-east-1")
	v.SetDefault("s3.use_ssl", true)
	v.SetDefault("kafka.brokers", []string{})
	v.SetDefault("kafka.topic", "outlets")
	v.SetDefault("server.port", 8000)
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
}

// splitList expands comma-separated entries, as env vars arrive as one string.
func splitList(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		for _, part := range strings.Split(s, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

// Command modes accepted by Validate.
const (
	ModeRun     = "run"
	ModeQuery   = "query"
	ModeServe   = "serve"
	ModeMigrate = "migrate"
	ModeRemote  = "remote"
	ModeChat    = "chat"
	ModeExport  = "export"
)

// Validate checks the settings a command mode needs.
func (c *Config) Validate(mode string) error {
	var errs []string
	require := func(ok bool, key string) {
		if !ok {
			errs = append(errs, key+" is required")
		}
	}

	switch mode {
	case ModeRun, ModeQuery, ModeServe, ModeExport:
		require(c.Fetch.URL != "", "fetch.url")
		if c.Fetch.SettleMS < 0 {
			errs = append(errs, "fetch.settle_ms must be >= 0")
		}
		if !c.Fetch.Local && c.Firecrawl.Key == "" && c.Jina.Key == "" {
			errs = append(errs, "one of firecrawl.key, jina.key or fetch.local is required")
		}
		if c.Enrich.Concurrency < 1 || c.Enrich.Concurrency > 32 {
			errs = append(errs, "enrich.concurrency must be between 1 and 32")
		}
	case ModeMigrate, ModeRemote, ModeChat:
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	switch mode {
	case ModeRun, ModeServe, ModeMigrate, ModeExport:
		switch c.Store.Driver {
		case "postgres":
			require(c.Store.DatabaseURL != "", "store.database_url")
		case "sqlite":
			require(c.Store.SQLitePath != "", "store.sqlite_path")
		default:
			errs = append(errs, fmt.Sprintf("store.driver %q must be postgres or sqlite", c.Store.Driver))
		}
	}

	switch mode {
	case ModeRemote:
		require(c.SSH.Host != "", "ssh.host")
		require(c.SSH.User != "", "ssh.user")
		require(c.SSH.KeyFile != "", "ssh.key_file")
		require(c.SSH.DBUser != "", "ssh.db_user")
		require(c.SSH.DBName != "", "ssh.db_name")
	case ModeChat:
		require(c.Anthropic.Key != "", "anthropic.key")
		require(c.Export.Path != "", "export.path")
	case ModeServe:
		if c.Server.Port <= 0 {
			errs = append(errs, "server.port must be > 0")
		}
		require(c.Export.Path != "", "export.path")
	case ModeExport:
		require(c.Export.Path != "", "export.path")
	}

	if c.Export.S3Enabled && (mode == ModeRun || mode == ModeExport || mode == ModeServe) {
		require(c.S3.Endpoint != "", "s3.endpoint")
		require(c.S3.Bucket != "", "s3.bucket")
	}

	if len(errs) > 0 {
		return eris.Errorf("config: validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
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
