package transcode

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/ansel1/merry/v2"
	"github.com/bcc-code/bcc-media-joiner/environment"
	"github.com/bcc-code/bcc-media-joiner/services/ffmpeg"
	"github.com/bcc-code/bcc-media-joiner/services/presets"
	"github.com/samber/lo"
)

var ErrNoVideo = merry.Sentinel("no source has a video stream")

// maxRunningPercent is reported until ffmpeg has exited cleanly.
const maxRunningPercent = 99.0

type JoinInput struct {
	Sources []string
	Output  string
	Preset  presets.Preset
	// Infos are probed when empty.
	Infos []ffmpeg.StreamInfo
	// FFmpegPath defaults to environment.GetFFmpegPath().
	FFmpegPath string
}

type JoinResult struct {
	Output       string
	TotalSeconds float64
}

// targetSize returns the dimensions of the first source with video, rounded down to even numbers for yuv420p.
func targetSize(infos []ffmpeg.StreamInfo) (int, int, error) {
	info, found := lo.Find(infos, func(i ffmpeg.StreamInfo) bool {
		return i.HasVideo && i.Width > 0 && i.Height > 0
	})
	if !found {
		return 0, 0, ErrNoVideo
	}
	return info.Width &^ 1, info.Height &^ 1, nil
}

func joinFilterComplex(infos []ffmpeg.StreamInfo, width, height int) string {
	var filters []string
	var concatInputs string

	for index, info := range infos {
		if info.HasVideo {
			filters = append(filters, fmt.Sprintf(
				"[%d:v:0]scale=%d:%d:force_original_aspect_ratio=decrease,pad=%[2]d:%[3]d:(ow-iw)/2:(oh-ih)/2,setsar=1,format=yuv420p[v%[1]d]",
				index, width, height,
			))
		} else {
			filters = append(filters, fmt.Sprintf("color=c=black:s=%dx%d:d=%f,format=yuv420p[v%d]", width, height, info.TotalSeconds, index))
		}

		if info.HasAudio {
			filters = append(filters, fmt.Sprintf(
				"[%d:a:0]aresample=48000,aformat=sample_fmts=fltp:channel_layouts=stereo[a%[1]d]",
				index,
			))
		} else {
			filters = append(filters, fmt.Sprintf(
				"anullsrc=channel_layout=stereo:sample_rate=48000,atrim=duration=%f[a%d]",
				info.TotalSeconds, index,
			))
		}

		concatInputs += fmt.Sprintf("[v%d][a%[1]d]", index)
	}

	filters = append(filters, fmt.Sprintf("%sconcat=n=%d:v=1:a=1[v][a]", concatInputs, len(infos)))

	return strings.Join(filters, ";")
}

// JoinArguments builds the ffmpeg arguments that re-encode and concatenate the sources into output.
func JoinArguments(sources []string, infos []ffmpeg.StreamInfo, preset presets.Preset, output string) ([]string, error) {
	if len(sources) != len(infos) {
		return nil, merry.New(fmt.Sprintf("%d sources but %d stream infos", len(sources), len(infos)))
	}

	width, height, err := targetSize(infos)
	if err != nil {
		return nil, err
	}

	params := []string{
		"-progress", "pipe:1",
		"-hide_banner",
		"-nostats",
	}

	for _, source := range sources {
		params = append(params, "-i", source)
	}

	params = append(params,
		"-filter_complex", joinFilterComplex(infos, width, height),
		"-map", "[v]",
		"-map", "[a]",
		"-c:v", "libx264",
		"-preset", "medium",
		"-crf", strconv.Itoa(preset.CRF),
		"-pix_fmt", "yuv420p",
		"-c:a", "aac",
		"-b:a", strconv.Itoa(preset.AudioBitrateBits()),
		"-ar", "48000",
		"-ac", "2",
		"-movflags", "+faststart",
		"-y",
		output,
	)

	return params, nil
}

// Join re-encodes the sources into one H.264/AAC file. A failed or cancelled run removes the partial output.
func Join(ctx context.Context, input JoinInput, progressCallback ffmpeg.ProgressCallback) (*JoinResult, error) {
	infos := input.Infos
	if len(infos) == 0 {
		var err error
		infos, err = ffmpeg.GetStreamInfos(ctx, input.Sources)
		if err != nil {
			return nil, err
		}
	}

	params, err := JoinArguments(input.Sources, infos, input.Preset, input.Output)
	if err != nil {
		return nil, err
	}

	totalSeconds := lo.SumBy(infos, func(i ffmpeg.StreamInfo) float64 { return i.TotalSeconds })

	binary := input.FFmpegPath
	if binary == "" {
		binary = environment.GetFFmpegPath()
	}

	_, err = ffmpeg.Run(ctx, binary, params, ffmpeg.StreamInfo{TotalSeconds: totalSeconds}, func(p ffmpeg.Progress) {
		p.Percent = min(p.Percent, maxRunningPercent)
		if progressCallback != nil {
			progressCallback(p)
		}
	})
	if err != nil {
		_ = os.Remove(input.Output)
		return nil, err
	}

	return &JoinResult{
		Output:       input.Output,
		TotalSeconds: totalSeconds,
	}, nil
}
