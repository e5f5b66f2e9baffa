package worker

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func TestJobFromValues(t *testing.T) {
	runAt := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

	valid := map[string]any{
		"jobID":           "8e7c1a9b",
		"guildID":         "517907971481534467",
		"targetChannelID": "812345678901234567",
		"audioKey":        "opus/8e7c1a9b",
		"runAt":           runAt.Format(time.RFC3339),
	}

	t.Run("valid values decode", func(t *testing.T) {
		got, err := jobFromValues(valid)
		if err != nil {
			t.Fatalf("jobFromValues failed: %v", err)
		}
		want := PlaybackJob{
			ID:              "8e7c1a9b",
			GuildID:         "517907971481534467",
			TargetChannelID: "812345678901234567",
			AudioKey:        "opus/8e7c1a9b",
			RunTime:         runAt,
		}
		if diff := cmp.Diff(want, got); diff != "" {
			t.Errorf("job differs (-want +got):\n%s", diff)
		}
	})

	for _, missing := range []string{"jobID", "guildID", "targetChannelID", "audioKey", "runAt"} {
		t.Run("missing "+missing, func(t *testing.T) {
			values := make(map[string]any, len(valid))
			for k, v := range valid {
				values[k] = v
			}
			delete(values, missing)

			if _, err := jobFromValues(values); err == nil {
				t.Errorf("expected error for values missing %q", missing)
			}
		})
	}

	t.Run("malformed runAt is rejected", func(t *testing.T) {
		values := make(map[string]any, len(valid))
		for k, v := range valid {
			values[k] = v
		}
		values["runAt"] = "yesterday"

		if _, err := jobFromValues(values); err == nil {
			t.Error("expected error for malformed runAt")
		}
	})
}
