package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Env      string         `mapstructure:"env"` // "dev" or "prod"
	Server   ServerConfig   `mapstructure:"server"`
	Market   MarketConfig   `mapstructure:"market"`
	Oracle   OracleConfig   `mapstructure:"oracle"`
	Log      LogConfig      `mapstructure:"log"`
	Postgres PostgresConfig `mapstructure:"postgres"`
	Ledger   LedgerConfig   `mapstructure:"ledger"`
}

type ServerConfig struct {
	Port                string        `mapstructure:"port"`
	PriceUpdateInterval time.Duration `mapstructure:"price_update_interval"`
	MaxConnections      int           `mapstructure:"max_connections"`
	MaxMessageSize      int64         `mapstructure:"max_message_size"`
	WriteTimeout        time.Duration `mapstructure:"write_timeout"`
	// ReconnectInterval is advertised to clients (see pkg/ratesclient); the server never enforces it.
	ReconnectInterval time.Duration `mapstructure:"reconnect_interval"`
}

// MarketConfig holds the random walk policy.
type MarketConfig struct {
	TrendBias         float64 `mapstructure:"trend_bias"`
	Band              float64 `mapstructure:"band"`
	DefaultVolatility float64 `mapstructure:"default_volatility"`
	MaxPriceChange    float64 `mapstructure:"max_price_change"`
	CatalogFile       string  `mapstructure:"catalog_file"`   // optional YAML catalog override
	FixedBaseline     float64 `mapstructure:"fixed_baseline"` // > 0 forces every baseline
}

type OracleConfig struct {
	Enabled     bool          `mapstructure:"enabled"`
	BaseURL     string        `mapstructure:"base_url"`
	Timeout     time.Duration `mapstructure:"timeout"`
	VsCurrency  string        `mapstructure:"vs_currency"`
	APIKey      string        `mapstructure:"api_key"`
	APIKeyParam string        `mapstructure:"api_key_param"` // SSM parameter name used in prod
}

// Options defines the logger configuration options.
type LogConfig struct {
	Level       string `mapstructure:"level"`       // log level: "debug", "info", "warn", "error"
	Format      string `mapstructure:"format"`      // log format: "json" or "console"
	OutputFile  string `mapstructure:"output_file"` // file path to store logs (optional)
	Environment string `mapstructure:"environment"` // environment: "dev" or "prod"
}

type LedgerConfig struct {
	Retention time.Duration `mapstructure:"retention"`
}

// Load loads application configuration using Viper.
// It reads config.yaml from dir (or next to the executable when dir is empty),
// then overrides with environment variables. A .env file is loaded first if present.
func Load(dir string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("failed to load .env: %v", err)
	}

	v := viper.New()
	setDefaults(v)

	v.SetConfigName("config") // config.yaml
	v.SetConfigType("yaml")
	for _, p := range configPaths(dir) {
		v.AddConfigPath(p)
	}

	// Support environment variables with dot notation (e.g., SERVER_PORT)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
		log.Println("no config.yaml found, using defaults and environment")
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("env", "dev")

	v.SetDefault("server.port", "3000")
	v.SetDefault("server.price_update_interval", time.Second)
	v.SetDefault("server.max_connections", 1000)
	v.SetDefault("server.max_message_size", 1024)
	v.SetDefault("server.write_timeout", 5*time.Second)
	v.SetDefault("server.reconnect_interval", 5*time.Second)

	v.SetDefault("market.trend_bias", 0.48)
	v.SetDefault("market.band", 0.10)
	v.SetDefault("market.default_volatility", 0.03)
	v.SetDefault("market.max_price_change", 0.5)
	v.SetDefault("market.catalog_file", "")
	v.SetDefault("market.fixed_baseline", 0.0)

	v.SetDefault("oracle.enabled", true)
	v.SetDefault("oracle.base_url", "https://api.coingecko.com")
	v.SetDefault("oracle.timeout", 10*time.Second)
	v.SetDefault("oracle.vs_currency", "cad")
	v.SetDefault("oracle.api_key", "")
	v.SetDefault("oracle.api_key_param", "")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
	v.SetDefault("log.output_file", "")
	v.SetDefault("log.environment", "dev")

	v.SetDefault("postgres.enabled", false)
	v.SetDefault("postgres.host", "localhost")
	v.SetDefault("postgres.port", 5432)
	v.SetDefault("postgres.user", "postgres")
	v.SetDefault("postgres.password", "")
	v.SetDefault("postgres.dbname", "marketfeed")
	v.SetDefault("postgres.sslmode", "disable")
	v.SetDefault("postgres.timezone", "UTC")
	v.SetDefault("postgres.max_open_conns", 10)
	v.SetDefault("postgres.max_idle_conns", 5)
	v.SetDefault("postgres.conn_max_lifetime", time.Hour)

	v.SetDefault("ledger.retention", 30*24*time.Hour)
}

func configPaths(dir string) []string {
	if dir != "" {
		return []string{dir}
	}

	ex, _ := os.Executable()
	if strings.Contains(ex, "go-build") {
		pwd, _ := os.Getwd()
		return []string{pwd, filepath.Join(pwd, "config"), filepath.Join(pwd, "../../config")}
	}
	return []string{filepath.Join(filepath.Dir(ex), "../config"), "./config"}
}

// Addr returns the listen address for the HTTP server.
func (s ServerConfig) Addr() string {
	if strings.HasPrefix(s.Port, ":") {
		return s.Port
	}
	return ":" + s.Port
}

// Validate rejects configurations the server cannot run with.
func (c *Config) Validate() error {
	switch {
	case c.Server.PriceUpdateInterval <= 0:
		return fmt.Errorf("server.price_update_interval must be positive, got %s", c.Server.PriceUpdateInterval)
	case c.Server.MaxConnections <= 0:
		return fmt.Errorf("server.max_connections must be positive, got %d", c.Server.MaxConnections)
	case c.Server.MaxMessageSize <= 0:
		return fmt.Errorf("server.max_message_size must be positive, got %d", c.Server.MaxMessageSize)
	case c.Market.Band <= 0 || c.Market.Band >= 1:
		return fmt.Errorf("market.band must be in (0,1), got %v", c.Market.Band)
	case c.Market.DefaultVolatility <= 0 || c.Market.DefaultVolatility > 1:
		return fmt.Errorf("market.default_volatility must be in (0,1], got %v", c.Market.DefaultVolatility)
	case c.Market.TrendBias < 0 || c.Market.TrendBias > 1:
		return fmt.Errorf("market.trend_bias must be in [0,1], got %v", c.Market.TrendBias)
	case c.Market.MaxPriceChange <= 0:
		return fmt.Errorf("market.max_price_change must be positive, got %v", c.Market.MaxPriceChange)
	case c.Oracle.Enabled && c.Oracle.Timeout <= 0:
		return fmt.Errorf("oracle.timeout must be positive when the oracle is enabled, got %s", c.Oracle.Timeout)
	case c.Market.FixedBaseline < 0:
		return fmt.Errorf("market.fixed_baseline must not be negative, got %v", c.Market.FixedBaseline)
	}
	return nil
}
