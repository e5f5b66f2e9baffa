package repository_test

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/voxgate/voxgate/internal/datalayer"
	"github.com/voxgate/voxgate/internal/gateway"
	"github.com/voxgate/voxgate/internal/repository"
)

func TestSessionRepository(t *testing.T) {
	ctx := t.Context()
	postgresContainer, err := postgres.Run(
		ctx,
		"postgres",
		postgres.WithDatabase("voxgate"),
		postgres.WithUsername("user"),
		postgres.WithPassword("password"),
		postgres.BasicWaitStrategies(),
	)
	if err != nil {
		t.Fatalf("failed to start postgres container: %v", err)
	}
	defer func() {
		if err := postgresContainer.Terminate(ctx); err != nil {
			t.Fatalf("failed to terminate postgres container: %v", err)
		}
	}()

	connStr, err := postgresContainer.ConnectionString(ctx)
	if err != nil {
		t.Fatalf("failed to get connection string: %v", err)
	}

	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		t.Fatalf("failed to create postgres pool: %v", err)
	}
	defer pool.Close()

	if err := datalayer.MigratePostgres(pool); err != nil {
		t.Fatalf("failed to migrate postgres: %v", err)
	}

	repo := repository.NewPostgresSessionRepository(pool)

	state := gateway.SessionState{
		ShardIndex:  1,
		TotalShards: 3,
		SessionID:   "d6d7c9a1f2e3",
		ResumeURL:   "wss://gateway-us-east1-b.discord.gg",
		Sequence:    412,
	}
	if err := repo.RecordSession(ctx, state); err != nil {
		t.Fatalf("failed to record session: %v", err)
	}

	t.Run("a recorded session loads back unchanged", func(t *testing.T) {
		got, ok, err := repo.LoadSession(ctx, 1)
		if err != nil {
			t.Fatalf("failed to load session: %v", err)
		}
		if !ok {
			t.Fatal("session not found after recording")
		}
		if diff := cmp.Diff(state, got); diff != "" {
			t.Errorf("session differs (-want +got):\n%s", diff)
		}
	})

	t.Run("recording the same shard again overwrites", func(t *testing.T) {
		state.Sequence = 997
		if err := repo.RecordSession(ctx, state); err != nil {
			t.Fatalf("failed to re-record session: %v", err)
		}

		got, ok, err := repo.LoadSession(ctx, 1)
		if err != nil || !ok {
			t.Fatalf("failed to load session: ok=%v err=%v", ok, err)
		}
		if got.Sequence != 997 {
			t.Errorf("sequence = %d, want 997", got.Sequence)
		}
	})

	t.Run("an unknown shard index reports not found", func(t *testing.T) {
		_, ok, err := repo.LoadSession(ctx, 7)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if ok {
			t.Error("expected no session for shard 7")
		}
	})

	t.Run("clearing removes every session", func(t *testing.T) {
		if err := repo.ClearSessions(ctx); err != nil {
			t.Fatalf("failed to clear sessions: %v", err)
		}
		states, err := repo.ListSessions(ctx)
		if err != nil {
			t.Fatalf("failed to list sessions: %v", err)
		}
		if len(states) != 0 {
			t.Errorf("expected no sessions after clear, got %d", len(states))
		}
	})
}
