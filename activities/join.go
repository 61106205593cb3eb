package activities

import (
	"context"
	"path/filepath"
	"time"

	"github.com/bcc-code/bcc-media-joiner/common"
	"github.com/bcc-code/bcc-media-joiner/environment"
	"github.com/bcc-code/bcc-media-joiner/paths"
	"github.com/bcc-code/bcc-media-joiner/services/joiner"
	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/temporal"
)

type JoinActivities struct{}

// JoinVideos joins the sources into one file. The activity is cancelled together with the workflow,
// which stops a transcode; a stream copy runs to the end.
func (ja JoinActivities) JoinVideos(ctx context.Context, params common.JoinVideosParams) (*common.JoinVideosResult, error) {
	log := activity.GetLogger(ctx)
	activity.RecordHeartbeat(ctx, joiner.Progress{IsRunning: true})
	log.Info("Starting JoinVideosActivity", "sources", len(params.Sources), "strategy", params.Strategy.Value)

	outputDir := environment.GetTempMountPrefix()
	if !params.OutputDir.IsZero() {
		outputDir = params.OutputDir.Local()
	}
	name := params.OutputName
	if name == "" {
		name = joiner.OutputFilename(time.Now())
	}
	output := filepath.Join(outputDir, name)

	stop, progressCallback := registerProgressCallback(ctx)
	defer close(stop)

	job, err := joiner.Start(ctx, params.Sources, joiner.Config{
		Strategy: params.Strategy,
		Tier:     params.Tier,
		Output:   output,
		Logger:   log,
	}, progressCallback)
	if err != nil {
		return nil, temporal.NewNonRetryableApplicationError(err.Error(), "ValidationError", err)
	}

	result, err := job.Wait()
	if err != nil {
		return nil, err
	}

	path, err := paths.Parse(result)
	if err != nil {
		return nil, err
	}

	return &common.JoinVideosResult{
		Path:          path,
		Strategy:      job.Strategy,
		ElapsedTimeMs: job.Progress().ElapsedTimeMs,
	}, nil
}

// EstimateJoin reads the source headers and estimates the size of a transcoded join.
func (ja JoinActivities) EstimateJoin(ctx context.Context, params common.EstimateJoinParams) (*common.EstimateJoinResult, error) {
	log := activity.GetLogger(ctx)
	log.Info("Starting EstimateJoinActivity", "sources", len(params.Sources), "tier", params.Tier.Value)

	sources, err := joiner.ParseSources(params.Sources)
	if err != nil {
		return nil, temporal.NewNonRetryableApplicationError(err.Error(), "ValidationError", err)
	}

	summaries, err := joiner.DescribeAll(ctx, sources)
	if err != nil {
		return nil, err
	}

	estimate, err := joiner.EstimateFromSummaries(summaries, params.Tier)
	if err != nil {
		return nil, err
	}

	return &common.EstimateJoinResult{
		Estimate: estimate,
		Sources:  summaries,
	}, nil
}
