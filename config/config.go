package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the scout service.
type Config struct {
	General       GeneralConfig       `mapstructure:"general"`
	Server        ServerConfig        `mapstructure:"server"`
	LLM           LLMConfig           `mapstructure:"llm"`
	Search        SearchConfig        `mapstructure:"search"`
	Storage       StorageConfig       `mapstructure:"storage"`
	Notifications NotificationsConfig `mapstructure:"notifications"`
	Telemetry     TelemetryConfig     `mapstructure:"telemetry"`
}

// GeneralConfig contains general application settings.
type GeneralConfig struct {
	Debug    bool   `mapstructure:"debug"`
	LogLevel string `mapstructure:"log_level"`
}

// ServerConfig contains HTTP server and auth settings.
type ServerConfig struct {
	Listen    string `mapstructure:"listen"`
	JWTSecret string `mapstructure:"jwt_secret"`
}

// LLMConfig configures the judge model used for relevance scoring and
// summarization. An empty APIKey leaves the service in degraded mode:
// filtering passes results through and summaries are templated.
type LLMConfig struct {
	APIKey          string        `mapstructure:"api_key"`
	BaseURL         string        `mapstructure:"base_url"`
	Model           string        `mapstructure:"model"`
	MaxTokens       int           `mapstructure:"max_tokens"`
	Temperature     float64       `mapstructure:"temperature"`
	Timeout         time.Duration `mapstructure:"timeout"`
	CostPer1K       float64       `mapstructure:"cost_per_1k_input"`
	CostPer1KOutput float64       `mapstructure:"cost_per_1k_output"`
}

// SearchConfig bounds crawl and filter behaviour.
type SearchConfig struct {
	MaxResultsPerPlatform int           `mapstructure:"max_results_per_platform"`
	FilterBatchLimit      int           `mapstructure:"filter_batch_limit"`
	FilterThreshold       int           `mapstructure:"filter_threshold"`
	RequestTimeout        time.Duration `mapstructure:"request_timeout"`
	UserAgent             string        `mapstructure:"user_agent"`
}

// StorageConfig groups the backing stores.
type StorageConfig struct {
	Redis    RedisConfig    `mapstructure:"redis"`
	Postgres PostgresConfig `mapstructure:"postgres"`
}

// RedisConfig contains connection settings for the subscription store.
type RedisConfig struct {
	Host     string        `mapstructure:"host"`
	Port     string        `mapstructure:"port"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

func (r RedisConfig) Validate() error {
	if strings.TrimSpace(r.Host) == "" {
		return fmt.Errorf("storage.redis.host required")
	}
	if strings.TrimSpace(r.Port) == "" {
		return fmt.Errorf("storage.redis.port required")
	}
	return nil
}

// Addr returns host:port for the go-redis client.
func (r RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%s", r.Host, r.Port)
}

// PostgresConfig contains connection settings for the report store.
type PostgresConfig struct {
	URL      string        `mapstructure:"url"`
	Host     string        `mapstructure:"host"`
	Port     string        `mapstructure:"port"`
	User     string        `mapstructure:"user"`
	Password string        `mapstructure:"password"`
	DBName   string        `mapstructure:"dbname"`
	SSLMode  string        `mapstructure:"sslmode"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

func (p PostgresConfig) Validate() error {
	if strings.TrimSpace(p.URL) != "" {
		return nil
	}
	if strings.TrimSpace(p.Host) == "" {
		return fmt.Errorf("storage.postgres.host required when url is not provided")
	}
	if strings.TrimSpace(p.DBName) == "" {
		return fmt.Errorf("storage.postgres.dbname required when url is not provided")
	}
	return nil
}

// DSN builds a postgres connection string from either the URL or the
// individual fields, defaulting port 5432 and sslmode disable.
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

// NotificationsConfig controls the recurring subscription checker and the
// outbound email channel.
type NotificationsConfig struct {
	CheckInterval   time.Duration `mapstructure:"check_interval"`
	NotificationTTL time.Duration `mapstructure:"notification_ttl"`
	MaxPerUser      int           `mapstructure:"max_per_user"`
	Email           EmailConfig   `mapstructure:"email"`
}

// EmailConfig contains SMTP delivery settings. Incomplete settings switch
// the sender off rather than failing the checker.
type EmailConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	SMTPHost string `mapstructure:"smtp_host"`
	SMTPPort string `mapstructure:"smtp_port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	From     string `mapstructure:"from"`
}

func (e EmailConfig) Validate() error {
	if !e.Enabled {
		return nil
	}
	if strings.TrimSpace(e.SMTPHost) == "" || strings.TrimSpace(e.SMTPPort) == "" {
		return fmt.Errorf("notifications.email.smtp_host and smtp_port required when email is enabled")
	}
	if strings.TrimSpace(e.From) == "" {
		return fmt.Errorf("notifications.email.from required when email is enabled")
	}
	return nil
}

// TelemetryConfig contains metrics and cost-tracking settings.
type TelemetryConfig struct {
	Enabled      bool `mapstructure:"enabled"`
	CostTracking bool `mapstructure:"cost_tracking"`
}

// Normalize fills search defaults that must never be zero at runtime.
func (s SearchConfig) Normalize() SearchConfig {
	if s.MaxResultsPerPlatform <= 0 {
		s.MaxResultsPerPlatform = 100
	}
	if s.FilterBatchLimit <= 0 {
		s.FilterBatchLimit = 50
	}
	if s.FilterThreshold <= 0 {
		s.FilterThreshold = 5
	}
	if s.RequestTimeout <= 0 {
		s.RequestTimeout = 30 * time.Second
	}
	if strings.TrimSpace(s.UserAgent) == "" {
		s.UserAgent = "scout/1.0 (+https://github.com/mohammad-safakhou/scout)"
	}
	return s
}

// Normalize fills LLM defaults for everything except the API key.
func (l LLMConfig) Normalize() LLMConfig {
	if strings.TrimSpace(l.BaseURL) == "" {
		l.BaseURL = "https://api.openai.com/v1"
	}
	if strings.TrimSpace(l.Model) == "" {
		l.Model = "gpt-4o-mini"
	}
	if l.MaxTokens <= 0 {
		l.MaxTokens = 2000
	}
	if l.Timeout <= 0 {
		l.Timeout = 30 * time.Second
	}
	return l
}

// Normalize fills checker defaults: hourly checks, week-long notification
// retention, at most 100 stored notifications per user.
func (n NotificationsConfig) Normalize() NotificationsConfig {
	if n.CheckInterval <= 0 {
		n.CheckInterval = time.Hour
	}
	if n.NotificationTTL <= 0 {
		n.NotificationTTL = 7 * 24 * time.Hour
	}
	if n.MaxPerUser <= 0 {
		n.MaxPerUser = 100
	}
	return n
}

// LoadConfig reads configuration from the given file, or from the default
// search paths when path is empty, applying SCOUT_* environment overrides.
func LoadConfig(path string) *Config {
	viper.SetConfigName("config")
	viper.SetConfigType("json")
	viper.SetDefault("general.log_level", "info")
	viper.SetDefault("server.listen", ":10010")
	viper.SetDefault("search.filter_batch_limit", 50)
	viper.SetDefault("search.filter_threshold", 5)
	viper.SetDefault("search.max_results_per_platform", 100)
	viper.SetDefault("notifications.check_interval", time.Hour)
	viper.SetDefault("telemetry.enabled", true)
	viper.SetDefault("telemetry.cost_tracking", true)

	if path == "" {
		viper.AddConfigPath("./config")
		viper.AddConfigPath(".")
		exe, _ := os.Executable()
		exeDir := filepath.Dir(exe)
		viper.AddConfigPath(exeDir)
		viper.AddConfigPath(filepath.Join(exeDir, ".."))
		viper.AddConfigPath(filepath.Join(exeDir, "..", "config"))
	} else {
		viper.SetConfigFile(path)
	}

	viper.SetEnvPrefix("SCOUT")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		panic(fmt.Errorf("fatal error config file: %w", err))
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		panic(fmt.Errorf("fatal error config file: %w", err))
	}
	config.Search = config.Search.Normalize()
	config.LLM = config.LLM.Normalize()
	config.Notifications = config.Notifications.Normalize()

	if err := config.Notifications.Email.Validate(); err != nil {
		panic(err)
	}
	return &config
}
