package schedule

import (
	"context"
	"time"
)

// RunAt executes fn at runAt on its own goroutine. A canceled context
// abandons the run.
func RunAt(ctx context.Context, runAt time.Time, fn func(ctx context.Context)) {
	go func() {
		delay := time.Until(runAt)
		if delay > 0 {
			timer := time.NewTimer(delay)
			defer timer.Stop()
			select {
			case <-ctx.Done():
				return
			case <-timer.C:
			}
		}
		fn(ctx)
	}()
}
