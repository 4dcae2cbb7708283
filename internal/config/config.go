package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
	"golang.org/x/crypto/bcrypt"
)

// DateLayout is the calendar-day format used for anchor dates and API output.
const DateLayout = "2006-01-02"

type Config struct {
	Environment string            `mapstructure:"environment"`
	LogLevel    string            `mapstructure:"log_level"`
	Server      ServerConfig      `mapstructure:"server"`
	Database    DatabaseConfig    `mapstructure:"database"`
	Redis       RedisConfig       `mapstructure:"redis"`
	Security    SecurityConfig    `mapstructure:"security"`
	Forecast    ForecastConfig    `mapstructure:"forecast"`
	ModelServer ModelServerConfig `mapstructure:"model_server"`
	Content     ContentConfig     `mapstructure:"content"`
	Scheduler   SchedulerConfig   `mapstructure:"scheduler"`
	Telemetry   TelemetryConfig   `mapstructure:"telemetry"`
}

type ServerConfig struct {
	Port int `mapstructure:"port"`
}

type DatabaseConfig struct {
	Host        string `mapstructure:"host"`
	Port        int    `mapstructure:"port"`
	User        string `mapstructure:"user"`
	Password    string `mapstructure:"password"`
	DBName      string `mapstructure:"dbname"`
	SSLMode     string `mapstructure:"sslmode"`
	DatabaseURL string `mapstructure:"database_url"`
	MaxConns    int32  `mapstructure:"max_conns"`
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type SecurityConfig struct {
	JWTSecret  string `mapstructure:"jwt_secret" json:"-" yaml:"-"`
	JWTExpiry  string `mapstructure:"jwt_expiry"`
	BcryptCost int    `mapstructure:"bcrypt_cost"`
}

// ForecastConfig controls the prediction pipeline.
type ForecastConfig struct {
	ArtifactDir        string              `mapstructure:"artifact_dir"`
	Horizon            int                 `mapstructure:"horizon"`
	WindowWidth        int                 `mapstructure:"window_width"`
	FallbackAnchorDate string              `mapstructure:"fallback_anchor_date"`
	RequestTimeout     string              `mapstructure:"request_timeout"`
	ChartHistoryPoints int                 `mapstructure:"chart_history_points"`
	Sectors            map[string][]string `mapstructure:"sectors"`
}

type ModelServerConfig struct {
	ServiceURL string `mapstructure:"service_url"`
	Timeout    int    `mapstructure:"timeout"`
}

// ContentConfig points at the documents written by the scrapers.
type ContentConfig struct {
	NewsFile          string `mapstructure:"news_file"`
	MarketSummaryFile string `mapstructure:"market_summary_file"`
	SectorsFile       string `mapstructure:"sectors_file"`
	CompaniesFile     string `mapstructure:"companies_file"`
	CacheTTL          string `mapstructure:"cache_ttl"`
	StreamInterval    string `mapstructure:"stream_interval"`
}

type SchedulerConfig struct {
	Enabled            bool   `mapstructure:"enabled"`
	ContentRefresh     string `mapstructure:"content_refresh"`
	ArtifactInvalidate string `mapstructure:"artifact_invalidate"`
}

type TelemetryConfig struct {
	Enabled      bool    `mapstructure:"enabled"`
	OTLPEndpoint string  `mapstructure:"otlp_endpoint"`
	ServiceName  string  `mapstructure:"service_name"`
	SampleRatio  float64 `mapstructure:"sample_ratio"`
}

// SupportedSymbols flattens the sector map into the symbol allow-list.
func (f ForecastConfig) SupportedSymbols() []string {
	var symbols []string
	seen := make(map[string]bool)
	for _, sector := range f.Sectors {
		for _, symbol := range sector {
			s := strings.ToUpper(symbol)
			if !seen[s] {
				seen[s] = true
				symbols = append(symbols, s)
			}
		}
	}
	return symbols
}

// AnchorDate parses FallbackAnchorDate.
func (f ForecastConfig) AnchorDate() (time.Time, error) {
	return time.Parse(DateLayout, f.FallbackAnchorDate)
}

// Timeout parses RequestTimeout, falling back to 10s.
func (f ForecastConfig) Timeout() time.Duration {
	return parseDurationOr(f.RequestTimeout, 10*time.Second)
}

// TTL parses CacheTTL, falling back to 5m.
func (c ContentConfig) TTL() time.Duration {
	return parseDurationOr(c.CacheTTL, 5*time.Minute)
}

// Interval parses StreamInterval, falling back to 30s.
func (c ContentConfig) Interval() time.Duration {
	return parseDurationOr(c.StreamInterval, 30*time.Second)
}

// Expiry parses JWTExpiry, falling back to 24h.
func (s SecurityConfig) Expiry() time.Duration {
	return parseDurationOr(s.JWTExpiry, 24*time.Hour)
}

func parseDurationOr(raw string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

func Load() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("./configs")
	viper.AddConfigPath(".")

	// Set default values
	setDefaults()

	// Enable environment variable support
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.BindEnv("security.jwt_secret", "JWT_SECRET"); err != nil {
		return nil, fmt.Errorf("failed to bind JWT_SECRET environment variable: %w", err)
	}
	if err := viper.BindEnv("database.database_url", "DATABASE_URL"); err != nil {
		return nil, fmt.Errorf("failed to bind DATABASE_URL environment variable: %w", err)
	}

	// Read config file
	if err := viper.ReadInConfig(); err != nil {
		// Config file not found, use defaults and environment variables
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, err
	}

	config.Environment = strings.ToLower(config.Environment)

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

// Validate checks cross-field constraints after unmarshalling.
func (c *Config) Validate() error {
	if c.Environment != "development" && c.Security.JWTSecret == "" {
		return errors.New("JWT_SECRET environment variable is required in non-development environments")
	}

	if c.Security.JWTExpiry != "" {
		if _, err := time.ParseDuration(c.Security.JWTExpiry); err != nil {
			return fmt.Errorf("invalid JWT expiry duration: %w", err)
		}
	}

	if c.Security.BcryptCost < bcrypt.MinCost || c.Security.BcryptCost > bcrypt.MaxCost {
		return fmt.Errorf("bcrypt cost must be between %d and %d, got %d",
			bcrypt.MinCost, bcrypt.MaxCost, c.Security.BcryptCost)
	}

	if c.Forecast.Horizon <= 0 {
		return fmt.Errorf("forecast horizon must be positive, got %d", c.Forecast.Horizon)
	}
	if c.Forecast.WindowWidth <= 0 {
		return fmt.Errorf("forecast window width must be positive, got %d", c.Forecast.WindowWidth)
	}
	if _, err := c.Forecast.AnchorDate(); err != nil {
		return fmt.Errorf("invalid fallback anchor date: %w", err)
	}
	if c.Forecast.RequestTimeout != "" {
		if _, err := time.ParseDuration(c.Forecast.RequestTimeout); err != nil {
			return fmt.Errorf("invalid forecast request timeout: %w", err)
		}
	}
	if len(c.Forecast.SupportedSymbols()) == 0 {
		return errors.New("at least one supported symbol must be configured")
	}

	return nil
}

func setDefaults() {
	// Environment
	viper.SetDefault("environment", "development")
	viper.SetDefault("log_level", "info")

	// Server
	viper.SetDefault("server.port", 5000)

	// Database
	viper.SetDefault("database.host", "localhost")
	viper.SetDefault("database.port", 5432)
	viper.SetDefault("database.user", "postgres")
	viper.SetDefault("database.password", "postgres")
	viper.SetDefault("database.dbname", "stocksage")
	viper.SetDefault("database.sslmode", "disable")
	viper.SetDefault("database.database_url", "")
	viper.SetDefault("database.max_conns", 10)

	// Redis
	viper.SetDefault("redis.host", "localhost")
	viper.SetDefault("redis.port", 6379)
	viper.SetDefault("redis.password", "")
	viper.SetDefault("redis.db", 0)

	// Security
	viper.SetDefault("security.jwt_secret", "")
	viper.SetDefault("security.jwt_expiry", "24h")
	viper.SetDefault("security.bcrypt_cost", 12)

	// Forecast
	viper.SetDefault("forecast.artifact_dir", "./models")
	viper.SetDefault("forecast.horizon", 30)
	viper.SetDefault("forecast.window_width", 26)
	viper.SetDefault("forecast.fallback_anchor_date", "2024-12-10")
	viper.SetDefault("forecast.request_timeout", "10s")
	viper.SetDefault("forecast.chart_history_points", 100)
	viper.SetDefault("forecast.sectors", map[string][]string{
		"commercial bank":  {"SCB", "NABIL"},
		"development bank": {"JBBL", "GBBL"},
		"hydropower":       {"API"},
		"others":           {"NTC"},
	})

	// Model server
	viper.SetDefault("model_server.service_url", "http://localhost:8501")
	viper.SetDefault("model_server.timeout", 5)

	// Content
	viper.SetDefault("content.news_file", "news_links.json")
	viper.SetDefault("content.market_summary_file", "market-summary-1.json")
	viper.SetDefault("content.sectors_file", "sectors.json")
	viper.SetDefault("content.companies_file", "companies.json")
	viper.SetDefault("content.cache_ttl", "5m")
	viper.SetDefault("content.stream_interval", "30s")

	// Scheduler
	viper.SetDefault("scheduler.enabled", true)
	viper.SetDefault("scheduler.content_refresh", "@every 30s")
	viper.SetDefault("scheduler.artifact_invalidate", "0 0 * * *")

	// Telemetry
	viper.SetDefault("telemetry.enabled", false)
	viper.SetDefault("telemetry.otlp_endpoint", "")
	viper.SetDefault("telemetry.service_name", "stocksage-go")
	viper.SetDefault("telemetry.sample_ratio", 1.0)
}
