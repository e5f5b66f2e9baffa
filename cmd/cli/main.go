package main

import (
	"fmt"
	"io"
	"log"
	"os"

	"github.com/redis/go-redis/v9"
	"github.com/urfave/cli/v2"
	"github.com/voxgate/voxgate/internal/config"
	"github.com/voxgate/voxgate/internal/datalayer"
	"github.com/voxgate/voxgate/internal/generator"
	"github.com/voxgate/voxgate/internal/opus"
	"github.com/voxgate/voxgate/internal/repository"
	"github.com/voxgate/voxgate/internal/schedule"
	"github.com/voxgate/voxgate/internal/worker"
)

var uuidGenerator = generator.UUIDGenerator{}

func transcodeAction(c *cli.Context) error {
	input, err := os.Open(c.String("input"))
	if err != nil {
		return cli.Exit("Failed to open input: "+err.Error(), 1)
	}
	defer input.Close()

	output, err := os.Create(c.String("output"))
	if err != nil {
		return cli.Exit("Failed to create output: "+err.Error(), 1)
	}
	defer output.Close()

	frames, err := opus.Encode(input)
	if err != nil {
		return cli.Exit("Failed to start transcoding: "+err.Error(), 1)
	}
	defer frames.Close()

	n, err := io.Copy(output, frames)
	if err != nil {
		return cli.Exit("Transcoding failed: "+err.Error(), 1)
	}
	log.Printf("Wrote %d bytes of length-prefixed opus frames", n)
	return nil
}

func uploadAction(c *cli.Context) error {
	blobStorage, err := datalayer.NewMinioStorageFromEnv()
	if err != nil {
		return cli.Exit("Failed to create blob storage: "+err.Error(), 1)
	}
	if err := blobStorage.EnsureBucket(c.Context); err != nil {
		return cli.Exit("Failed to ensure bucket: "+err.Error(), 1)
	}

	file, err := os.Open(c.String("input"))
	if err != nil {
		return cli.Exit("Failed to open input: "+err.Error(), 1)
	}
	defer file.Close()

	stat, err := file.Stat()
	if err != nil {
		return cli.Exit("Failed to stat input: "+err.Error(), 1)
	}

	key, _ := uuidGenerator.Next()
	err = blobStorage.Put(c.Context, key, file, datalayer.PutOptions{
		Size:        stat.Size(),
		ContentType: "application/octet-stream",
	})
	if err != nil {
		return cli.Exit("Failed to upload: "+err.Error(), 1)
	}
	log.Printf("Uploaded %s as %s", c.String("input"), key)
	return nil
}

func enqueueAction(c *cli.Context) error {
	cron := c.String("cron")
	if err := schedule.ValidateCron(cron); err != nil {
		return cli.Exit("Invalid cron: "+err.Error(), 1)
	}
	runs, err := schedule.NextRunTimes(cron, 1)
	if err != nil || len(runs) == 0 {
		return cli.Exit("Failed to compute run time", 1)
	}

	redisConfig, err := config.NewRedisConfigFromEnv()
	if err != nil {
		return cli.Exit("Failed to load redis config: "+err.Error(), 1)
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:     redisConfig.Addr,
		Password: redisConfig.Password,
	})
	hostname, err := os.Hostname()
	if err != nil {
		return cli.Exit("Failed to get hostname: "+err.Error(), 1)
	}
	queue, err := worker.NewRedisJobQueue(rdb, redisConfig.Stream, hostname)
	if err != nil {
		return cli.Exit("Failed to create job queue: "+err.Error(), 1)
	}

	id, _ := uuidGenerator.Next()
	job := worker.PlaybackJob{
		ID:              id,
		GuildID:         c.String("guild-id"),
		TargetChannelID: c.String("channel-id"),
		AudioKey:        c.String("audio-key"),
		RunTime:         runs[0],
	}
	if err := queue.Enqueue(c.Context, job); err != nil {
		return cli.Exit("Failed to enqueue job: "+err.Error(), 1)
	}
	log.Printf("Enqueued job %s for %s", id, job.RunTime)
	return nil
}

func sessionsAction(c *cli.Context) error {
	pool, err := datalayer.NewPostgresPoolFromEnv()
	if err != nil {
		return cli.Exit("Failed to create postgres pool: "+err.Error(), 1)
	}
	defer pool.Close()

	repo := repository.NewPostgresSessionRepository(pool)
	states, err := repo.ListSessions(c.Context)
	if err != nil {
		return cli.Exit("Failed to list sessions: "+err.Error(), 1)
	}
	if len(states) == 0 {
		log.Println("No shard sessions recorded.")
		return nil
	}
	for _, state := range states {
		fmt.Printf("shard %d/%d session=%s seq=%d resume=%s\n",
			state.ShardIndex, state.TotalShards, state.SessionID, state.Sequence, state.ResumeURL)
	}
	return nil
}

func main() {
	if err := config.LoadEnv(); err != nil && !os.IsNotExist(err) {
		log.Fatalf("Failed to load .env file: %v", err)
	}

	app := &cli.App{
		Name:        "voxgate-cli",
		Description: "A development CLI for exercising voxgate without Discord",
		Commands: []*cli.Command{
			{
				Name:   "transcode",
				Usage:  "Transcode an audio file to length-prefixed opus frames",
				Action: transcodeAction,
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "input", Usage: "Audio file to transcode", Required: true},
					&cli.StringFlag{Name: "output", Usage: "Destination file", Required: true},
				},
			},
			{
				Name:   "upload",
				Usage:  "Upload an audio file to blob storage",
				Action: uploadAction,
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "input", Usage: "File to upload", Required: true},
				},
			},
			{
				Name:   "enqueue",
				Usage:  "Enqueue a playback job for the next run of a cron expression",
				Action: enqueueAction,
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "cron", Usage: "Cron expression (e.g. '0 0 * * *')", Required: true},
					&cli.StringFlag{Name: "guild-id", Usage: "Guild to play in", Required: true},
					&cli.StringFlag{Name: "channel-id", Usage: "Voice channel to play in", Required: true},
					&cli.StringFlag{Name: "audio-key", Usage: "Blob storage key of the audio", Required: true},
				},
			},
			{
				Name:   "sessions",
				Usage:  "List recorded shard sessions",
				Action: sessionsAction,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatalf("Error running CLI: %v", err)
	}
}
