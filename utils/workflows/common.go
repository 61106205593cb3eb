package wfutils

import (
	"time"

	"github.com/bcc-code/bcc-media-joiner/environment"

	"go.temporal.io/sdk/workflow"
)

// GetDefaultActivityOptions leaves RetryPolicy unset so Execute picks the policy of the queue.
func GetDefaultActivityOptions() workflow.ActivityOptions {
	return workflow.ActivityOptions{
		StartToCloseTimeout:    time.Hour * 4,
		ScheduleToCloseTimeout: time.Hour * 48,
		HeartbeatTimeout:       time.Minute * 1,
		TaskQueue:              environment.GetWorkerQueue(),
		WaitForCancellation:    true,
	}
}
