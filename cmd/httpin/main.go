package main

import (
	"net/http"
	"os"
	"reflect"
	"runtime"
	"strings"

	"github.com/bcc-code/bcc-media-joiner/environment"
	"github.com/bcc-code/bcc-media-joiner/services/joiner"
	"github.com/bcc-code/bcc-media-joiner/services/presets"
	"github.com/bcc-code/bcc-media-joiner/utils"
	"github.com/bcc-code/bcc-media-joiner/workflows"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/teris-io/shortid"
	"go.temporal.io/api/enums/v1"
	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/converter"
)

func getClient() (client.Client, error) {
	return client.Dial(client.Options{
		HostPort:  environment.GetTemporalHostPort(),
		Namespace: environment.GetTemporalNamespace(),
		Logger:    utils.NewConsoleLogger(os.Getenv("DEBUG") != ""),
	})
}

type server struct {
	client client.Client
}

func (s *server) joinHandler(ctx *gin.Context) {
	var input workflows.JoinVideosInput
	if err := ctx.ShouldBindJSON(&input); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{
			"error": err.Error(),
		})
		return
	}

	if len(input.Sources) < joiner.MinSources {
		ctx.JSON(http.StatusBadRequest, gin.H{
			"error": joiner.ErrValidation.Error(),
		})
		return
	}

	workflowOptions := client.StartWorkflowOptions{
		ID:                    "join-" + shortid.MustGenerate(),
		TaskQueue:             environment.GetQueue(),
		WorkflowIDReusePolicy: enums.WORKFLOW_ID_REUSE_POLICY_REJECT_DUPLICATE,
	}

	res, err := s.client.ExecuteWorkflow(ctx, workflowOptions, workflows.JoinVideos, input)
	if err != nil {
		ctx.JSON(http.StatusInternalServerError, gin.H{
			"error": err.Error(),
		})
		return
	}

	ctx.JSON(http.StatusOK, gin.H{
		"workflowId": res.GetID(),
		"runId":      res.GetRunID(),
	})
}

type joinStatus struct {
	WorkflowID string           `json:"workflowId"`
	Status     string           `json:"status"`
	Progress   *joiner.Progress `json:"progress,omitempty"`
}

// statusHandler reports the workflow status and the last progress heartbeat of the running join.
func (s *server) statusHandler(ctx *gin.Context) {
	id := ctx.Param("id")

	desc, err := s.client.DescribeWorkflowExecution(ctx, id, "")
	if err != nil {
		ctx.JSON(http.StatusNotFound, gin.H{
			"error": err.Error(),
		})
		return
	}

	status := joinStatus{
		WorkflowID: id,
		Status:     desc.GetWorkflowExecutionInfo().GetStatus().String(),
	}

	for _, activity := range desc.GetPendingActivities() {
		if activity.GetHeartbeatDetails() == nil {
			continue
		}
		var progress joiner.Progress
		if err := converter.GetDefaultDataConverter().FromPayloads(activity.GetHeartbeatDetails(), &progress); err == nil {
			status.Progress = &progress
		}
	}

	ctx.JSON(http.StatusOK, status)
}

func (s *server) cancelHandler(ctx *gin.Context) {
	id := ctx.Param("id")

	err := s.client.CancelWorkflow(ctx, id, "")
	if err != nil {
		ctx.JSON(http.StatusInternalServerError, gin.H{
			"error": err.Error(),
		})
		return
	}

	ctx.Status(http.StatusAccepted)
}

type estimateInput struct {
	Sources []string `json:"sources" binding:"required"`
	Tier    string   `json:"tier"`
}

// estimateHandler reads the source headers directly; the sources must be mounted on this host.
func estimateHandler(ctx *gin.Context) {
	var input estimateInput
	if err := ctx.ShouldBindJSON(&input); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{
			"error": err.Error(),
		})
		return
	}

	tier := presets.TierMedium
	if input.Tier != "" {
		t, err := presets.Parse(input.Tier)
		if err != nil {
			ctx.JSON(http.StatusBadRequest, gin.H{
				"error": err.Error(),
			})
			return
		}
		tier = t
	}

	estimate, err := joiner.Estimate(ctx, input.Sources, tier)
	if err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{
			"error": err.Error(),
		})
		return
	}

	ctx.JSON(http.StatusOK, gin.H{
		"tier":             estimate.Tier,
		"sizeBytes":        estimate.SizeBytes,
		"sizeMB":           estimate.SizeMB,
		"size":             utils.FormatBytes(estimate.SizeBytes),
		"totalDurationSec": estimate.TotalDurationSec,
		"duration":         utils.FormatDuration(estimate.TotalDurationSec),
	})
}

func presetsHandler(ctx *gin.Context) {
	ctx.JSON(http.StatusOK, presets.All())
}

func newRouter(s *server) *gin.Engine {
	r := gin.Default()
	r.Use(cors.Default())

	r.POST("/join", s.joinHandler)
	r.GET("/join/:id", s.statusHandler)
	r.POST("/join/:id/cancel", s.cancelHandler)
	r.POST("/estimate", estimateHandler)
	r.GET("/presets", presetsHandler)
	r.GET("/schemas", getWorkflowSchemas)

	return r
}

func main() {
	wfClient, err := getClient()
	if err != nil {
		panic(err)
	}
	defer wfClient.Close()

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080" // Default port if not specified
	}

	_ = newRouter(&server{client: wfClient}).Run(":" + port)
}

func getFunctionName(i interface{}) string {
	if fullName, ok := i.(string); ok {
		return fullName
	}
	fullName := runtime.FuncForPC(reflect.ValueOf(i).Pointer()).Name()
	elements := strings.Split(fullName, ".")
	shortName := elements[len(elements)-1]
	return strings.TrimSuffix(shortName, "-fm")
}
