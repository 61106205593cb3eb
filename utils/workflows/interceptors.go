package wfutils

import (
	"context"
	"time"

	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/interceptor"
	"go.temporal.io/sdk/workflow"
)

// WORKER INTERCEPTORS

// LoggingWorkerInterceptor logs the start, status and duration of every workflow and activity run by the worker.
type LoggingWorkerInterceptor struct {
	interceptor.WorkerInterceptorBase
}

func (c *LoggingWorkerInterceptor) InterceptWorkflow(
	ctx workflow.Context,
	next interceptor.WorkflowInboundInterceptor,
) interceptor.WorkflowInboundInterceptor {
	return &LoggingWorkflowInboundInterceptor{
		WorkflowInboundInterceptorBase: interceptor.WorkflowInboundInterceptorBase{
			Next: next,
		},
	}
}

func (c *LoggingWorkerInterceptor) InterceptActivity(
	ctx context.Context,
	next interceptor.ActivityInboundInterceptor,
) interceptor.ActivityInboundInterceptor {
	return &LoggingActivityInboundInterceptor{
		ActivityInboundInterceptorBase: interceptor.ActivityInboundInterceptorBase{
			Next: next,
		},
	}
}

func status(err error) string {
	if err != nil {
		return "Failure"
	}
	return "Success"
}

// WORKFLOW INTERCEPTOR

type LoggingWorkflowInboundInterceptor struct {
	interceptor.WorkflowInboundInterceptorBase
}

func (c *LoggingWorkflowInboundInterceptor) ExecuteWorkflow(
	ctx workflow.Context,
	in *interceptor.ExecuteWorkflowInput,
) (any, error) {
	info := workflow.GetInfo(ctx)
	logger := workflow.GetLogger(ctx)

	logger.Info("Workflow started", "workflow", info.WorkflowType.Name)
	startTime := workflow.Now(ctx)

	result, err := c.Next.ExecuteWorkflow(ctx, in)

	if !workflow.IsReplaying(ctx) {
		logger.Info("Workflow finished",
			"workflow", info.WorkflowType.Name,
			"status", status(err),
			"executionTimeMs", workflow.Now(ctx).Sub(startTime).Milliseconds(),
		)
	}

	return result, err
}

// ACTIVITY INTERCEPTOR

type LoggingActivityInboundInterceptor struct {
	interceptor.ActivityInboundInterceptorBase
}

func (c *LoggingActivityInboundInterceptor) ExecuteActivity(
	ctx context.Context, in *interceptor.ExecuteActivityInput,
) (any, error) {
	info := activity.GetInfo(ctx)
	logger := activity.GetLogger(ctx)
	startTime := time.Now()

	logger.Info("Activity started", "activity", info.ActivityType.Name, "queue", info.TaskQueue, "attempt", info.Attempt)

	result, err := c.Next.ExecuteActivity(ctx, in)

	logger.Info("Activity finished",
		"activity", info.ActivityType.Name,
		"queue", info.TaskQueue,
		"status", status(err),
		"executionTimeMs", time.Since(startTime).Milliseconds(),
	)

	return result, err
}
