package joiner

import (
	"context"

	"github.com/bcc-code/bcc-media-joiner/services/ffmpeg"
	"github.com/bcc-code/bcc-media-joiner/services/presets"
	"github.com/bcc-code/bcc-media-joiner/services/transcode"
	"github.com/samber/lo"
)

// TranscodeStrategy re-encodes the sources to H.264/AAC using the settings of a quality tier.
type TranscodeStrategy struct {
	Tier presets.Tier
	// FFmpegPath defaults to the configured ffmpeg binary.
	FFmpegPath string
}

func (s *TranscodeStrategy) Kind() StrategyKind {
	return StrategyTranscode
}

// Join stops ffmpeg and removes the partial output when ctx is cancelled.
func (s *TranscodeStrategy) Join(ctx context.Context, sources []Source, output string, report ProgressFunc) error {
	preset, err := presets.Get(s.Tier)
	if err != nil {
		return err
	}

	_, err = transcode.Join(ctx, transcode.JoinInput{
		Sources: lo.Map(sources, func(s Source, _ int) string {
			return s.Path
		}),
		Output:     output,
		Preset:     preset,
		FFmpegPath: s.FFmpegPath,
	}, func(p ffmpeg.Progress) {
		if report != nil {
			report(Progress{
				Percent:    p.Percent,
				SpeedRatio: p.SpeedRatio,
				IsRunning:  true,
			})
		}
	})
	return err
}
