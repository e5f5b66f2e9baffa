// Package worker moves playback jobs between the scheduler and the voice
// worker through a Redis stream.
package worker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	consumerGroup = "voxgate_playback_group"
	skipSetKey    = "voxgate_playback_skips"
)

// PlaybackJob asks the worker to play one cached audio object in a voice
// channel at (or after) RunTime.
type PlaybackJob struct {
	ID              string
	GuildID         string
	TargetChannelID string
	AudioKey        string
	RunTime         time.Time
}

// JobHandler consumes playback jobs.
type JobHandler interface {
	HandleJobs(ctx context.Context, jobs ...PlaybackJob) error
}

// PrintingJobHandler logs jobs instead of playing them. Used by dry runs.
type PrintingJobHandler struct{}

func (h *PrintingJobHandler) HandleJobs(ctx context.Context, jobs ...PlaybackJob) error {
	for _, job := range jobs {
		slog.InfoContext(
			ctx,
			"handling playback job",
			slog.String("jobID", job.ID),
			slog.String("guildID", job.GuildID),
			slog.String("targetChannelID", job.TargetChannelID),
			slog.String("audioKey", job.AudioKey),
			slog.String("runAt", job.RunTime.Format(time.RFC3339)),
		)
	}
	return nil
}

// RedisJobQueue publishes and consumes playback jobs on a Redis stream, one
// consumer group across all workers.
type RedisJobQueue struct {
	client   *redis.Client
	stream   string
	consumer string
}

func NewRedisJobQueue(client *redis.Client, stream, consumer string) (*RedisJobQueue, error) {
	err := client.XGroupCreateMkStream(context.Background(), stream, consumerGroup, "$").Err()
	if err != nil && err != redis.Nil && err.Error() != "BUSYGROUP Consumer Group name already exists" {
		return nil, err
	}
	return &RedisJobQueue{client: client, stream: stream, consumer: consumer}, nil
}

// Enqueue publishes jobs in one pipeline.
func (q *RedisJobQueue) Enqueue(ctx context.Context, jobs ...PlaybackJob) error {
	_, err := q.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, job := range jobs {
			pipe.XAdd(ctx, &redis.XAddArgs{
				Stream: q.stream,
				Values: map[string]any{
					"jobID":           job.ID,
					"guildID":         job.GuildID,
					"targetChannelID": job.TargetChannelID,
					"audioKey":        job.AudioKey,
					"runAt":           job.RunTime.Format(time.RFC3339),
				},
			})
		}
		return nil
	})
	return err
}

// Receive blocks until at least one job is available for this consumer.
func (q *RedisJobQueue) Receive(ctx context.Context) ([]PlaybackJob, error) {
	streams, err := q.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    consumerGroup,
		Consumer: q.consumer,
		Streams:  []string{q.stream, ">"},
		Block:    0,
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read playback stream: %w", err)
	}

	var jobs []PlaybackJob
	for _, stream := range streams {
		for _, message := range stream.Messages {
			job, err := jobFromValues(message.Values)
			if err != nil {
				slog.Warn("skipping malformed playback job", "messageID", message.ID, slog.Any("error", err))
				continue
			}
			jobs = append(jobs, job)
			if err := q.client.XAck(ctx, q.stream, consumerGroup, message.ID).Err(); err != nil {
				slog.Warn("failed to ack playback job", "messageID", message.ID, slog.Any("error", err))
			}
		}
	}
	return jobs, nil
}

func jobFromValues(values map[string]any) (PlaybackJob, error) {
	str := func(key string) (string, error) {
		v, ok := values[key].(string)
		if !ok || v == "" {
			return "", fmt.Errorf("missing field %q", key)
		}
		return v, nil
	}

	var job PlaybackJob
	var err error
	if job.ID, err = str("jobID"); err != nil {
		return PlaybackJob{}, err
	}
	if job.GuildID, err = str("guildID"); err != nil {
		return PlaybackJob{}, err
	}
	if job.TargetChannelID, err = str("targetChannelID"); err != nil {
		return PlaybackJob{}, err
	}
	if job.AudioKey, err = str("audioKey"); err != nil {
		return PlaybackJob{}, err
	}

	runAt, err := str("runAt")
	if err != nil {
		return PlaybackJob{}, err
	}
	if job.RunTime, err = time.Parse(time.RFC3339, runAt); err != nil {
		return PlaybackJob{}, fmt.Errorf("invalid runAt: %w", err)
	}
	return job, nil
}

// SkipChecker reports whether a job was pulled after being enqueued, so the
// worker can drop it instead of playing stale audio.
type SkipChecker interface {
	IsSkipped(ctx context.Context, jobID string) (bool, error)
}

// SkipAdder marks a job to be dropped by workers.
type SkipAdder interface {
	AddSkip(ctx context.Context, jobID string) error
}

type RedisSkipList struct {
	client *redis.Client
}

func NewRedisSkipList(client *redis.Client) *RedisSkipList {
	return &RedisSkipList{client: client}
}

func (s *RedisSkipList) AddSkip(ctx context.Context, jobID string) error {
	if _, err := s.client.SAdd(ctx, skipSetKey, jobID).Result(); err != nil {
		return fmt.Errorf("failed to add job %s to skip list: %w", jobID, err)
	}
	return nil
}

func (s *RedisSkipList) IsSkipped(ctx context.Context, jobID string) (bool, error) {
	skipped, err := s.client.SIsMember(ctx, skipSetKey, jobID).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check skip list for job %s: %w", jobID, err)
	}
	return skipped, nil
}

var (
	_ SkipAdder   = (*RedisSkipList)(nil)
	_ SkipChecker = (*RedisSkipList)(nil)
)
