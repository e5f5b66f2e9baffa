package config

import (
	"context"
	"fmt"

	"github.com/sethvargo/go-envconfig"
)

// AnnounceConfig drives the optional scheduled announcement: at every cron
// tick the bot enqueues a playback job for the configured audio object.
type AnnounceConfig struct {
	Cron      string `env:"ANNOUNCE_CRON"`
	AudioKey  string `env:"ANNOUNCE_AUDIO_KEY"`
	GuildID   string `env:"ANNOUNCE_GUILD_ID"`
	ChannelID string `env:"ANNOUNCE_CHANNEL_ID"`
}

func NewAnnounceConfigFromEnv() (*AnnounceConfig, error) {
	var cfg AnnounceConfig
	if err := envconfig.Process(context.Background(), &cfg); err != nil {
		return nil, err
	}
	if cfg.Cron != "" && (cfg.AudioKey == "" || cfg.GuildID == "" || cfg.ChannelID == "") {
		return nil, fmt.Errorf("ANNOUNCE_CRON requires ANNOUNCE_AUDIO_KEY, ANNOUNCE_GUILD_ID, and ANNOUNCE_CHANNEL_ID")
	}
	return &cfg, nil
}

// Enabled reports whether announcements are configured at all.
func (c *AnnounceConfig) Enabled() bool {
	return c.Cron != ""
}
