package activities

import (
	"context"
	"time"

	"github.com/bcc-code/bcc-media-joiner/services/joiner"
	"go.temporal.io/sdk/activity"
)

var heartbeatInterval = time.Second * 15

func registerProgressCallback(ctx context.Context) (chan struct{}, joiner.ProgressFunc) {
	stop, cb := newHeartBeater[joiner.Progress](ctx)
	return stop, joiner.ProgressFunc(cb)
}

// newHeartBeater records the latest reported value as heartbeat details until the returned channel is closed.
func newHeartBeater[T any](ctx context.Context) (chan struct{}, func(T)) {
	latest := make(chan T, 1)

	cb := func(i T) {
		// keep only the newest value
		select {
		case <-latest:
		default:
		}
		latest <- i
	}

	stopChan := make(chan struct{})

	go func() {
		timer := time.NewTicker(heartbeatInterval)
		defer timer.Stop()

		var info T
		for {
			select {
			case i := <-latest:
				info = i
			case <-timer.C:
				activity.RecordHeartbeat(ctx, info)
				if ctx.Err() != nil {
					return
				}
			case <-stopChan:
				return
			}
		}
	}()

	return stopChan, cb
}
