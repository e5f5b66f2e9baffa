package schedule_test

import (
	"context"
	"testing"
	"time"

	"github.com/voxgate/voxgate/internal/schedule"
)

func TestNextRunTimesAfterSuccess(t *testing.T) {
	table := []struct {
		cron  string
		after time.Time
		n     int
		want  []time.Time
	}{
		{
			cron:  "0 0 * * *", // Every day at midnight
			after: time.Date(2024, 3, 10, 18, 30, 0, 0, time.UTC),
			n:     3,
			want: []time.Time{
				time.Date(2024, 3, 11, 0, 0, 0, 0, time.UTC),
				time.Date(2024, 3, 12, 0, 0, 0, 0, time.UTC),
				time.Date(2024, 3, 13, 0, 0, 0, 0, time.UTC),
			},
		},
		{
			cron:  "*/15 * * * *", // Every 15 minutes
			after: time.Date(2024, 3, 10, 9, 0, 0, 0, time.UTC),
			n:     3,
			want: []time.Time{
				time.Date(2024, 3, 10, 9, 15, 0, 0, time.UTC),
				time.Date(2024, 3, 10, 9, 30, 0, 0, time.UTC),
				time.Date(2024, 3, 10, 9, 45, 0, 0, time.UTC),
			},
		},
		{
			cron:  "@hourly",
			after: time.Date(2024, 3, 10, 9, 20, 0, 0, time.UTC),
			n:     2,
			want: []time.Time{
				time.Date(2024, 3, 10, 10, 0, 0, 0, time.UTC),
				time.Date(2024, 3, 10, 11, 0, 0, 0, time.UTC),
			},
		},
		{
			cron:  "30 17 * * 5", // Every Friday at 17:30
			after: time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC),
			n:     2,
			want: []time.Time{
				time.Date(2024, 3, 15, 17, 30, 0, 0, time.UTC),
				time.Date(2024, 3, 22, 17, 30, 0, 0, time.UTC),
			},
		},
	}

	for _, tc := range table {
		t.Run(tc.cron, func(t *testing.T) {
			got, err := schedule.NextRunTimesAfter(tc.cron, tc.after, tc.n)
			if err != nil {
				t.Fatalf("NextRunTimesAfter(%q, %v, %d) returned error: %v", tc.cron, tc.after, tc.n, err)
			}
			for i := range tc.want {
				if got[i] != tc.want[i] {
					t.Errorf("NextRunTimesAfter(%q, %v, %d) = %v; want %v", tc.cron, tc.after, tc.n, got[i], tc.want[i])
				}
			}
		})
	}
}

func TestNextRunTimesAfterFailure(t *testing.T) {
	table := []struct {
		cron  string
		after time.Time
		n     int
	}{
		{
			cron:  "not a cron",
			after: time.Now(),
			n:     3,
		},
		{
			cron:  "0 0 * * *",
			after: time.Now(),
			n:     0,
		},
	}

	for _, tc := range table {
		t.Run(tc.cron, func(t *testing.T) {
			got, err := schedule.NextRunTimesAfter(tc.cron, tc.after, tc.n)
			if err == nil {
				t.Fatalf("NextRunTimesAfter(%q, %v, %d) expected error but got result: %v", tc.cron, tc.after, tc.n, got)
			}
		})
	}
}

func TestRunAtRespectsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(t.Context())

	ran := make(chan struct{}, 1)
	schedule.RunAt(ctx, time.Now().Add(50*time.Millisecond), func(context.Context) {
		ran <- struct{}{}
	})
	cancel()

	select {
	case <-ran:
		t.Fatal("canceled RunAt still executed")
	case <-time.After(150 * time.Millisecond):
	}
}
