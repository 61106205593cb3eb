package wfutils

import (
	"context"
	"time"

	"github.com/bcc-code/bcc-media-joiner/activities"
	"github.com/bcc-code/bcc-media-joiner/environment"
	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"
)

var LooseRetryPolicy = temporal.RetryPolicy{
	MaximumAttempts: 10,
	InitialInterval: 30 * time.Second,
	MaximumInterval: 60 * time.Minute,
}

// SingleAttemptPolicy is the default on the transcode queue. Joins run exactly once.
var SingleAttemptPolicy = temporal.RetryPolicy{
	MaximumAttempts: 1,
}

type Future[TR any] struct {
	workflow.Future
}

// Result returns the result of the future
func (f Future[TR]) Result(ctx workflow.Context) (TR, error) {
	var result TR
	err := f.Get(ctx, &result)
	return result, err
}

// Wait waits until the task is done
func (f Future[TR]) Wait(ctx workflow.Context) error {
	return f.Get(ctx, nil)
}

func withQueueOptions(ctx workflow.Context, queue string) workflow.Context {
	options := workflow.GetActivityOptions(ctx)
	options.TaskQueue = queue

	switch options.TaskQueue {
	case environment.GetWorkerQueue(), environment.QueueLowPriority:
		if options.RetryPolicy == nil {
			options.RetryPolicy = &LooseRetryPolicy
		}
	case environment.GetTranscodeQueue():
		if options.RetryPolicy == nil {
			options.RetryPolicy = &SingleAttemptPolicy
		}
	}

	return workflow.WithActivityOptions(ctx, options)
}

// Execute executes the specified activity with the correct task queue
func Execute[T any, TR any](ctx workflow.Context, activity func(context.Context, T) (TR, error), params T) Future[TR] {
	ctx = withQueueOptions(ctx, activities.GetQueueForActivity(activity))
	return Future[TR]{
		workflow.ExecuteActivity(ctx, activity, params),
	}
}

// ExecuteWithLowPrioQueue executes the utility activities with the low priority queue
func ExecuteWithLowPrioQueue[T any, TR any](ctx workflow.Context, activity func(context.Context, T) (TR, error), params T) Future[TR] {
	queue := activities.GetQueueForActivity(activity)
	if queue == environment.QueueWorker {
		queue = environment.QueueLowPriority
	}

	ctx = withQueueOptions(ctx, queue)
	return Future[TR]{
		workflow.ExecuteActivity(ctx, activity, params),
	}
}
