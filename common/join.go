package common

import (
	"github.com/bcc-code/bcc-media-joiner/paths"
	"github.com/bcc-code/bcc-media-joiner/services/joiner"
	"github.com/bcc-code/bcc-media-joiner/services/presets"
)

type JoinVideosParams struct {
	// Sources are paths or file:// URIs, in playback order.
	Sources  []string
	Strategy joiner.StrategyKind
	Tier     presets.Tier
	// OutputDir defaults to the temp directory.
	OutputDir paths.Path
	// OutputName defaults to joiner.OutputFilename at activity start.
	OutputName string
}

type JoinVideosResult struct {
	Path          paths.Path
	Strategy      joiner.StrategyKind
	ElapsedTimeMs int64
}

type EstimateJoinParams struct {
	Sources []string
	Tier    presets.Tier
}

type EstimateJoinResult struct {
	Estimate presets.Estimate
	Sources  []*joiner.SourceSummary
}
