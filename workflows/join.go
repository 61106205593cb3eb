package workflows

import (
	"github.com/bcc-code/bcc-media-joiner/activities"
	"github.com/bcc-code/bcc-media-joiner/common"
	"github.com/bcc-code/bcc-media-joiner/paths"
	"github.com/bcc-code/bcc-media-joiner/services/joiner"
	"github.com/bcc-code/bcc-media-joiner/services/presets"
	wfutils "github.com/bcc-code/bcc-media-joiner/utils/workflows"
	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"
)

type JoinVideosInput struct {
	Sources []string `json:"sources" jsonschema:"minItems=2"`
	// Strategy is "copy" (default) or "transcode".
	Strategy string `json:"strategy,omitempty" jsonschema:"enum=copy,enum=transcode"`
	// Tier is "low", "medium" (default) or "high". Only used when transcoding.
	Tier      string `json:"tier,omitempty" jsonschema:"enum=low,enum=medium,enum=high"`
	OutputDir string `json:"outputDir,omitempty"`
}

type JoinVideosResult struct {
	Path          string           `json:"path"`
	Strategy      string           `json:"strategy"`
	Estimate      presets.Estimate `json:"estimate"`
	ElapsedTimeMs int64            `json:"elapsedTimeMs"`
}

func parseJoinInput(params JoinVideosInput) (joiner.StrategyKind, presets.Tier, paths.Path, error) {
	strategy := joiner.StrategyCopy
	if params.Strategy != "" {
		s := joiner.Strategies.Parse(params.Strategy)
		if s == nil {
			return strategy, presets.Tier{}, paths.Path{}, temporal.NewNonRetryableApplicationError("unknown join strategy "+params.Strategy, "ValidationError", nil)
		}
		strategy = *s
	}

	tier := presets.TierMedium
	if params.Tier != "" {
		t, err := presets.Parse(params.Tier)
		if err != nil {
			return strategy, tier, paths.Path{}, temporal.NewNonRetryableApplicationError(err.Error(), "ValidationError", err)
		}
		tier = t
	}

	var outputDir paths.Path
	if params.OutputDir != "" {
		p, err := paths.Parse(params.OutputDir)
		if err != nil {
			return strategy, tier, outputDir, temporal.NewNonRetryableApplicationError(err.Error(), "ValidationError", err)
		}
		outputDir = p
	}

	return strategy, tier, outputDir, nil
}

// JoinVideos joins the sources into one mp4 file and returns its path.
func JoinVideos(
	ctx workflow.Context,
	params JoinVideosInput,
) (*JoinVideosResult, error) {
	logger := workflow.GetLogger(ctx)
	logger.Info("Starting JoinVideos", "sources", len(params.Sources), "strategy", params.Strategy)

	if len(params.Sources) < joiner.MinSources {
		return nil, temporal.NewNonRetryableApplicationError(joiner.ErrValidation.Error(), "ValidationError", nil)
	}

	strategy, tier, outputDir, err := parseJoinInput(params)
	if err != nil {
		return nil, err
	}

	ctx = workflow.WithActivityOptions(ctx, wfutils.GetDefaultActivityOptions())

	estimate, err := wfutils.ExecuteWithLowPrioQueue(ctx, activities.Join.EstimateJoin, common.EstimateJoinParams{
		Sources: params.Sources,
		Tier:    tier,
	}).Result(ctx)
	if err != nil {
		return nil, err
	}

	logger.Info("Estimated join",
		"sizeMB", estimate.Estimate.SizeMB,
		"durationSec", estimate.Estimate.TotalDurationSec,
	)

	result, err := wfutils.Execute(ctx, activities.Join.JoinVideos, common.JoinVideosParams{
		Sources:    params.Sources,
		Strategy:   strategy,
		Tier:       tier,
		OutputDir:  outputDir,
		OutputName: joiner.OutputFilename(wfutils.Now(ctx)),
	}).Result(ctx)
	if err != nil {
		return nil, err
	}

	return &JoinVideosResult{
		Path:          result.Path.Local(),
		Strategy:      result.Strategy.Value,
		Estimate:      estimate.Estimate,
		ElapsedTimeMs: result.ElapsedTimeMs,
	}, nil
}
