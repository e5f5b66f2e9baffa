package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/voxgate/voxgate/internal/config"
	"github.com/voxgate/voxgate/internal/datalayer"
	"github.com/voxgate/voxgate/internal/gateway"
	"github.com/voxgate/voxgate/internal/schedule"
	"github.com/voxgate/voxgate/internal/voice"
	"github.com/voxgate/voxgate/internal/worker"
)

var dryRun = flag.Bool("dry-run", false, "Do not use Discord, just print job info to terminal")

func getLogAttrs(job worker.PlaybackJob) []any {
	return []any{
		"jobID", job.ID,
		"guildID", job.GuildID,
		"targetChannelID", job.TargetChannelID,
		"audioKey", job.AudioKey,
		"runAt", job.RunTime.Format(time.RFC3339),
	}
}

// connectedWatcher unblocks the main goroutine once the single worker shard
// is up.
type connectedWatcher struct {
	ready chan struct{}
}

func (w *connectedWatcher) AllShardsConnected() {
	select {
	case w.ready <- struct{}{}:
	default:
	}
}

func (w *connectedWatcher) AllShardsDisconnected() {
	slog.Warn("worker shard disconnected")
}

func runWorkerForever() error {
	flag.Parse()
	slog.SetLogLoggerLevel(slog.LevelDebug)

	if err := config.LoadEnv(); err != nil {
		if os.IsNotExist(err) {
			slog.Warn("No .env file found, continuing without it")
		} else {
			return fmt.Errorf("failed to load .env file: %w", err)
		}
	}

	redisConfig, err := config.NewRedisConfigFromEnv()
	if err != nil {
		return fmt.Errorf("failed to load redis config: %w", err)
	}

	discordConfig, err := config.NewDiscordConfigFromEnv()
	if err != nil {
		return fmt.Errorf("failed to load discord config: %w", err)
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     redisConfig.Addr,
		Password: redisConfig.Password,
	})
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		return fmt.Errorf("failed to connect to redis: %w", err)
	}

	consumer, err := os.Hostname()
	if err != nil {
		return fmt.Errorf("failed to get hostname: %w", err)
	}

	queue, err := worker.NewRedisJobQueue(rdb, redisConfig.Stream, consumer)
	if err != nil {
		return fmt.Errorf("failed to create job queue: %w", err)
	}
	skips := worker.NewRedisSkipList(rdb)

	blobStorage, err := datalayer.NewMinioStorageFromEnv()
	if err != nil {
		return fmt.Errorf("failed to create blob storage: %w", err)
	}

	// The worker is a one-shard client: it only needs a voice-capable
	// session, not a partition of the gateway.
	watcher := &connectedWatcher{ready: make(chan struct{}, 1)}
	coordinator := gateway.NewCoordinator(watcher, gateway.NewDiscordShardFactory(discordConfig.Token))
	coordinator.Reshard(1)

	var session *gateway.DiscordShard
	if !*dryRun {
		coordinator.Connect()
		defer coordinator.Disconnect()

		select {
		case <-watcher.ready:
		case <-time.After(time.Minute):
			return fmt.Errorf("worker shard did not connect within a minute")
		}

		shard, ok := coordinator.Shards()[0].(*gateway.DiscordShard)
		if !ok {
			return fmt.Errorf("worker shard is not discordgo-backed")
		}
		session = shard
	}

	for {
		jobs, err := queue.Receive(context.Background())
		if err != nil {
			return fmt.Errorf("failed to receive jobs: %w", err)
		}

		for _, job := range jobs {
			job := job
			ctx := context.Background()

			schedule.RunAt(ctx, job.RunTime, func(ctx context.Context) {
				skipped, err := skips.IsSkipped(ctx, job.ID)
				if err != nil {
					slog.Error("failed to check skip list", "jobID", job.ID, slog.Any("error", err))
					return
				}
				if skipped {
					slog.Info("skipping playback job", "jobID", job.ID)
					return
				}

				if *dryRun {
					slog.Info("Dry run mode: job would be played", getLogAttrs(job)...)
					return
				}

				audio, err := blobStorage.Get(ctx, job.AudioKey)
				if err != nil {
					slog.Error("failed to fetch audio", "audioKey", job.AudioKey, slog.Any("error", err))
					return
				}
				defer audio.Close()

				err = voice.Play(session.Session(), job.GuildID, job.TargetChannelID, audio)
				if err != nil {
					attrs := append(getLogAttrs(job), slog.Any("error", err))
					slog.Error("failed to play job", attrs...)
				}
			})
		}
	}
}

func main() {
	if err := runWorkerForever(); err != nil {
		slog.Error("Worker encountered an error", slog.Any("error", err))
		os.Exit(1)
	}
}
