package config

import (
	"context"
	"fmt"
	"time"
)

// PostgresConfig defines the configuration for the optional session ledger database.
type PostgresConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
	SSLMode  string `mapstructure:"sslmode"`
	TimeZone string `mapstructure:"timezone"`

	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// SSM parameter names holding the production database credentials.
const (
	ParamDBHost     = "MARKETFEED_DB_HOST"
	ParamDBUser     = "MARKETFEED_DB_USER"
	ParamDBPassword = "MARKETFEED_DB_PASSWORD"
)

// ParamSource looks up a parameter, returning fallback when it cannot be read.
type ParamSource interface {
	ValueOr(ctx context.Context, name, fallback string) string
}

// Resolve returns a copy whose host and credentials come from store in prod.
// Both DSN and AdminDSN of the result point at the same server.
func (cfg PostgresConfig) Resolve(ctx context.Context, env string, store ParamSource) PostgresConfig {
	if env != "prod" {
		return cfg
	}

	cfg.Host = store.ValueOr(ctx, ParamDBHost, cfg.Host)
	cfg.User = store.ValueOr(ctx, ParamDBUser, cfg.User)
	cfg.Password = store.ValueOr(ctx, ParamDBPassword, cfg.Password)
	return cfg
}

// DSN builds the connection string for DBName.
func (cfg *PostgresConfig) DSN() string {
	return cfg.dsn(cfg.DBName)
}

// AdminDSN points at the default "postgres" database, used to create DBName.
func (cfg *PostgresConfig) AdminDSN() string {
	return cfg.dsn("postgres")
}

func (cfg *PostgresConfig) dsn(dbname string) string {
	dsn := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, dbname, cfg.SSLMode,
	)

	if cfg.TimeZone != "" {
		dsn += fmt.Sprintf(" TimeZone=%s", cfg.TimeZone)
	}

	return dsn
}
