package config

import (
	"context"
	"fmt"
	"time"

	"github.com/sethvargo/go-envconfig"
)

// GatewayDriver selects which Shard implementation the coordinator builds.
const (
	DriverDiscordgo = "discordgo"
	DriverNative    = "native"
)

type DiscordConfig struct {
	Token      string        `env:"DISCORD_TOKEN, required"`
	GuildID    string        `env:"DISCORD_GUILD_ID"`
	ShardCount int           `env:"DISCORD_SHARD_COUNT, default=1"`
	Driver     string        `env:"GATEWAY_DRIVER, default=discordgo"`
	GatewayURL string        `env:"GATEWAY_URL"`
	Stagger    time.Duration `env:"GATEWAY_STAGGER, default=5s"`
}

func NewDiscordConfigFromEnv() (*DiscordConfig, error) {
	var cfg DiscordConfig
	if err := envconfig.Process(context.Background(), &cfg); err != nil {
		return nil, err
	}
	if cfg.ShardCount < 1 {
		return nil, fmt.Errorf("DISCORD_SHARD_COUNT must be at least 1, got %d", cfg.ShardCount)
	}
	if cfg.Driver != DriverDiscordgo && cfg.Driver != DriverNative {
		return nil, fmt.Errorf("GATEWAY_DRIVER must be %q or %q, got %q", DriverDiscordgo, DriverNative, cfg.Driver)
	}
	return &cfg, nil
}
