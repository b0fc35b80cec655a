package jobs

import (
	"context"
	"time"
)

const defaultJobTimeout = 2 * time.Minute

func jobContext(timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		timeout = defaultJobTimeout
	}
	return context.WithTimeout(context.Background(), timeout)
}
