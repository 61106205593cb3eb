package joiner

import (
	"context"
	"os"

	"github.com/ansel1/merry/v2"
	"github.com/bcc-code/bcc-media-joiner/environment"
	"github.com/bcc-code/bcc-media-joiner/services/mp4"
	"github.com/bcc-code/bcc-media-joiner/services/presets"
	"github.com/samber/lo"
	"golang.org/x/sync/errgroup"
)

// SourceSummary describes one source without reading its samples.
type SourceSummary struct {
	Source   Source       `json:"source"`
	Size     int64        `json:"size"`
	Duration float64      `json:"duration"`
	Tracks   []TrackBrief `json:"tracks"`
}

type TrackBrief struct {
	Kind       mp4.TrackKind `json:"kind"`
	Codec      string        `json:"codec"`
	Duration   float64       `json:"duration"`
	Samples    int           `json:"samples"`
	Width      int           `json:"width,omitempty"`
	Height     int           `json:"height,omitempty"`
	SampleRate int           `json:"sampleRate,omitempty"`
	Channels   int           `json:"channels,omitempty"`
}

// Describe opens the source and lists its tracks. The source duration is the longest declared track duration.
func Describe(source Source) (*SourceSummary, error) {
	stat, err := os.Stat(source.Path)
	if err != nil {
		return nil, merry.Wrap(mp4.ErrSourceOpen, merry.WithCause(err), merry.WithMessagef("stat %s: %v", source.Path, err))
	}

	extractor, err := mp4.Open(source.Path)
	if err != nil {
		return nil, err
	}
	defer extractor.Close()

	tracks := lo.Map(extractor.Tracks(), func(t *mp4.Track, _ int) TrackBrief {
		return TrackBrief{
			Kind:       t.Kind,
			Codec:      t.Schema.Codec,
			Duration:   t.Duration.Seconds(),
			Samples:    t.SampleCount(),
			Width:      t.Schema.Width,
			Height:     t.Schema.Height,
			SampleRate: t.Schema.SampleRate,
			Channels:   t.Schema.ChannelCount,
		}
	})

	return &SourceSummary{
		Source: source,
		Size:   stat.Size(),
		Duration: lo.Max(lo.Map(tracks, func(t TrackBrief, _ int) float64 {
			return t.Duration
		})),
		Tracks: tracks,
	}, nil
}

// DescribeAll describes the sources concurrently, keeping their order.
func DescribeAll(ctx context.Context, sources []Source) ([]*SourceSummary, error) {
	summaries := make([]*SourceSummary, len(sources))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(environment.GetProbeConcurrency())
	for i, source := range sources {
		g.Go(func() error {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			summary, err := Describe(source)
			if err != nil {
				return err
			}
			summaries[i] = summary
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return summaries, nil
}

// Estimate guesses the size of a transcoded join. A stream copy keeps the total size of the sources.
func Estimate(ctx context.Context, uris []string, tier presets.Tier) (presets.Estimate, error) {
	sources, err := ParseSources(uris)
	if err != nil {
		return presets.Estimate{}, err
	}

	summaries, err := DescribeAll(ctx, sources)
	if err != nil {
		return presets.Estimate{}, err
	}

	return EstimateFromSummaries(summaries, tier)
}

func EstimateFromSummaries(summaries []*SourceSummary, tier presets.Tier) (presets.Estimate, error) {
	return presets.EstimateOutput(lo.Map(summaries, func(s *SourceSummary, _ int) presets.SourceInfo {
		return presets.SourceInfo{
			SizeBytes:   s.Size,
			DurationSec: s.Duration,
		}
	}), tier)
}
