package gateway

import "context"

// SessionState is what a shard needs to resume a gateway session after a
// restart: the session id and resume endpoint from READY, plus the last
// dispatch sequence seen.
type SessionState struct {
	ShardIndex  int
	TotalShards int
	SessionID   string
	ResumeURL   string
	Sequence    int64
}

// SessionRecorder persists shard session state so a restarted runtime can
// resume instead of re-identifying. Conn calls it on READY and again when the
// connection drops.
type SessionRecorder interface {
	RecordSession(ctx context.Context, state SessionState) error
}
