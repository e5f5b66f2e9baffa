package config

import (
	"context"
	"fmt"

	"github.com/sethvargo/go-envconfig"
)

// PostgresConfig locates the shard session database. The runtime touches it
// rarely (one row per shard), so the pool defaults small.
type PostgresConfig struct {
	Host     string `env:"POSTGRES_HOST, required"`
	Port     string `env:"POSTGRES_PORT, default=5432"`
	Username string `env:"POSTGRES_USERNAME, required"`
	Password string `env:"POSTGRES_PASSWORD, required"`
	Database string `env:"POSTGRES_DATABASE, default=voxgate"`
	SSLMode  string `env:"POSTGRES_SSLMODE, default=disable"`
	MaxConns int32  `env:"POSTGRES_MAX_CONNS, default=4"`
}

func NewPostgresConfigFromEnv() (*PostgresConfig, error) {
	var cfg PostgresConfig
	if err := envconfig.Process(context.Background(), &cfg); err != nil {
		return nil, err
	}
	if cfg.MaxConns < 1 {
		return nil, fmt.Errorf("POSTGRES_MAX_CONNS must be positive, got %d", cfg.MaxConns)
	}
	return &cfg, nil
}

// DSN renders the config as a pgx connection string.
func (c *PostgresConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=%s",
		c.Username,
		c.Password,
		c.Host,
		c.Port,
		c.Database,
		c.SSLMode,
	)
}
