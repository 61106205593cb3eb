package main

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/bcc-code/bcc-media-joiner/activities"
	"github.com/bcc-code/bcc-media-joiner/environment"
	"github.com/bcc-code/bcc-media-joiner/utils"
	wfutils "github.com/bcc-code/bcc-media-joiner/utils/workflows"
	"github.com/bcc-code/bcc-media-joiner/workflows"

	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/interceptor"
	"go.temporal.io/sdk/worker"
)

var utilActivities = activities.GetUtilActivities()

var joinActivities = activities.GetJoinActivities()

func main() {
	c, err := client.Dial(client.Options{
		HostPort:  environment.GetTemporalHostPort(),
		Namespace: environment.GetTemporalNamespace(),
		Logger:    utils.NewConsoleLogger(os.Getenv("DEBUG") != ""),
	})

	if err != nil {
		panic(err)
	}

	defer c.Close()

	identity := os.Getenv("IDENTITY")
	if identity == "" {
		identity = "worker"
	}

	activityCountString := os.Getenv("ACTIVITY_COUNT")
	if activityCountString == "" {
		activityCountString = "2"
	}

	activityCount, err := strconv.Atoi(activityCountString)
	if err != nil {
		panic(err)
	}

	workerOptions := worker.Options{
		DeadlockDetectionTimeout:           time.Hour * 3,
		DisableRegistrationAliasing:        true,
		Identity:                           identity,
		MaxConcurrentActivityExecutionSize: activityCount, // Joins are disk bound, keep this low
		Interceptors: []interceptor.WorkerInterceptor{
			&wfutils.LoggingWorkerInterceptor{},
		},
	}

	registerWorker(c, environment.GetQueue(), workerOptions)
}

func registerWorker(c client.Client, queue string, options worker.Options) {
	w := worker.New(c, queue, options)

	switch queue {
	case environment.QueueDebug:
		for _, a := range utilActivities {
			w.RegisterActivity(a)
		}

		for _, a := range joinActivities {
			w.RegisterActivity(a)
		}

		for _, wf := range workflows.WorkerWorkflows {
			w.RegisterWorkflow(wf)
		}
	case environment.QueueLowPriority:
		fallthrough
	case environment.QueueWorker:
		for _, a := range utilActivities {
			w.RegisterActivity(a)
		}

		for _, wf := range workflows.WorkerWorkflows {
			w.RegisterWorkflow(wf)
		}
	case environment.QueueTranscode:
		for _, a := range joinActivities {
			w.RegisterActivity(a)
		}
	}

	err := w.Run(worker.InterruptCh())

	log.Printf("Worker finished: %v", err)
}
