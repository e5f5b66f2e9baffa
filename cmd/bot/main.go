package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/redis/go-redis/v9"
	"github.com/voxgate/voxgate/internal/config"
	"github.com/voxgate/voxgate/internal/datalayer"
	"github.com/voxgate/voxgate/internal/gateway"
	"github.com/voxgate/voxgate/internal/generator"
	"github.com/voxgate/voxgate/internal/repository"
	"github.com/voxgate/voxgate/internal/schedule"
	"github.com/voxgate/voxgate/internal/worker"
)

// lifecycle receives the coordinator's aggregate events. Once every shard is
// up it pushes a presence update through shard 0.
type lifecycle struct {
	coordinator *gateway.Coordinator
}

func (l *lifecycle) AllShardsConnected() {
	slog.Info("all shards connected")
	err := l.coordinator.SendPayload(gateway.Payload{
		Op: gateway.OpPresenceUpdate,
		Data: discordgo.UpdateStatusData{
			Status: "online",
			Activities: []*discordgo.Activity{
				{Name: "announcements", Type: discordgo.ActivityTypeListening},
			},
		},
	}, 0)
	if err != nil {
		slog.Warn("failed to update presence", slog.Any("error", err))
	}
}

func (l *lifecycle) AllShardsDisconnected() {
	slog.Info("all shards disconnected")
}

func buildShardFactory(cfg *config.DiscordConfig, recorder gateway.SessionRecorder) gateway.ShardFactory {
	if cfg.Driver == config.DriverNative {
		return gateway.NewConnFactory(cfg.Token, cfg.GatewayURL, recorder)
	}
	return gateway.NewDiscordShardFactory(cfg.Token)
}

// announceForever enqueues one playback job per cron tick. It never returns.
func announceForever(cfg *config.AnnounceConfig, queue *worker.RedisJobQueue) {
	ids := generator.UUIDGenerator{}
	for {
		runs, err := schedule.NextRunTimes(cfg.Cron, 1)
		if err != nil || len(runs) == 0 {
			slog.Error("failed to compute next announcement", slog.Any("error", err))
			return
		}
		next := runs[0]
		time.Sleep(time.Until(next))

		id, err := ids.Next()
		if err != nil {
			slog.Error("failed to generate job id", slog.Any("error", err))
			continue
		}
		job := worker.PlaybackJob{
			ID:              id,
			GuildID:         cfg.GuildID,
			TargetChannelID: cfg.ChannelID,
			AudioKey:        cfg.AudioKey,
			RunTime:         next,
		}
		if err := queue.Enqueue(context.Background(), job); err != nil {
			slog.Error("failed to enqueue announcement", "jobID", id, slog.Any("error", err))
			continue
		}
		slog.Info("announcement enqueued", "jobID", id, "runAt", next.Format(time.RFC3339))

		// Avoid re-enqueueing the same tick.
		time.Sleep(time.Second)
	}
}

func runBotForever() error {
	if err := config.LoadEnv(); err != nil {
		if os.IsNotExist(err) {
			slog.Warn("No .env file found, continuing without it")
		} else {
			return fmt.Errorf("failed to load .env file: %w", err)
		}
	}

	discordConfig, err := config.NewDiscordConfigFromEnv()
	if err != nil {
		return fmt.Errorf("failed to load discord config: %w", err)
	}

	pool, err := datalayer.NewPostgresPoolFromEnv()
	if err != nil {
		return fmt.Errorf("failed to create postgres pool: %w", err)
	}
	defer pool.Close()

	if err := datalayer.MigratePostgres(pool); err != nil {
		return fmt.Errorf("failed to migrate postgres: %w", err)
	}
	sessions := repository.NewPostgresSessionRepository(pool)

	events := &lifecycle{}
	coordinator := gateway.NewCoordinator(events, buildShardFactory(discordConfig, sessions))
	events.coordinator = coordinator

	coordinator.SetStagger(discordConfig.Stagger)
	coordinator.Reshard(discordConfig.ShardCount)
	if err := sessions.ClearSessions(context.Background()); err != nil {
		slog.Warn("failed to clear stale shard sessions", slog.Any("error", err))
	}
	coordinator.Connect()
	defer coordinator.Disconnect()

	announceConfig, err := config.NewAnnounceConfigFromEnv()
	if err != nil {
		return fmt.Errorf("failed to load announce config: %w", err)
	}
	if announceConfig.Enabled() {
		redisConfig, err := config.NewRedisConfigFromEnv()
		if err != nil {
			return fmt.Errorf("failed to load redis config: %w", err)
		}
		rdb := redis.NewClient(&redis.Options{
			Addr:     redisConfig.Addr,
			Password: redisConfig.Password,
		})
		if err := rdb.Ping(context.Background()).Err(); err != nil {
			return fmt.Errorf("failed to connect to redis: %w", err)
		}

		hostname, err := os.Hostname()
		if err != nil {
			return fmt.Errorf("failed to get hostname: %w", err)
		}
		queue, err := worker.NewRedisJobQueue(rdb, redisConfig.Stream, hostname)
		if err != nil {
			return fmt.Errorf("failed to create job queue: %w", err)
		}
		go announceForever(announceConfig, queue)
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt)
	<-stop
	return nil
}

func main() {
	if err := runBotForever(); err != nil {
		slog.Error("bot encountered an error", slog.Any("error", err))
		os.Exit(1)
	}
}
