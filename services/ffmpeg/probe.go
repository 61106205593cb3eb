package ffmpeg

import (
	"context"
	"encoding/json"
	"os/exec"

	"github.com/ansel1/merry/v2"
	"github.com/bcc-code/bcc-media-joiner/cache"
	"github.com/bcc-code/bcc-media-joiner/environment"
	"github.com/bcc-code/bcc-media-joiner/utils"
	"golang.org/x/sync/errgroup"
)

type FFProbeStream struct {
	Index              int    `json:"index"`
	CodecName          string `json:"codec_name"`
	CodecLongName      string `json:"codec_long_name"`
	Profile            string `json:"profile"`
	CodecType          string `json:"codec_type"`
	CodecTagString     string `json:"codec_tag_string"`
	Width              int    `json:"width"`
	Height             int    `json:"height"`
	SampleAspectRatio  string `json:"sample_aspect_ratio"`
	DisplayAspectRatio string `json:"display_aspect_ratio"`
	PixFmt             string `json:"pix_fmt"`
	Level              int    `json:"level"`
	RFrameRate         string `json:"r_frame_rate"`
	AvgFrameRate       string `json:"avg_frame_rate"`
	TimeBase           string `json:"time_base"`
	StartTime          string `json:"start_time"`
	DurationTs         int    `json:"duration_ts"`
	Duration           string `json:"duration"`
	BitRate            string `json:"bit_rate"`
	NbFrames           string `json:"nb_frames"`
	SampleRate         string `json:"sample_rate"`
	Channels           int    `json:"channels"`
	ChannelLayout      string `json:"channel_layout"`
	Tags               struct {
		Language    string `json:"language"`
		HandlerName string `json:"handler_name"`
		Rotate      string `json:"rotate"`
	} `json:"tags"`
}

type FFProbeResult struct {
	Streams []FFProbeStream `json:"streams"`
	Format  struct {
		Filename       string `json:"filename"`
		NbStreams      int    `json:"nb_streams"`
		FormatName     string `json:"format_name"`
		FormatLongName string `json:"format_long_name"`
		StartTime      string `json:"start_time"`
		Duration       string `json:"duration"`
		Size           string `json:"size"`
		BitRate        string `json:"bit_rate"`
		ProbeScore     int    `json:"probe_score"`
	} `json:"format"`
}

var ErrProbe = merry.Sentinel("probe failed")

func doProbe(ctx context.Context, path string) (*FFProbeResult, error) {
	cmd := exec.CommandContext(ctx,
		environment.GetFFprobePath(),
		"-hide_banner",
		"-v", "quiet",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		path,
	)

	result, err := utils.ExecuteCmd(cmd, nil)
	if err != nil {
		return nil, merry.Wrap(ErrProbe, merry.WithCause(err), merry.WithMessagef("couldn't execute ffprobe %s, %s", path, err.Error()))
	}

	var info FFProbeResult
	err = json.Unmarshal([]byte(result), &info)
	if err != nil {
		return nil, merry.Wrap(ErrProbe, merry.WithCause(err), merry.WithMessagef("parse ffprobe output for %s: %v", path, err))
	}

	return &info, nil
}

// ProbeFile returns information about the specified video file. Requires ffprobe present.
func ProbeFile(ctx context.Context, filePath string) (*FFProbeResult, error) {
	return cache.GetOrSet("probe:"+filePath, func() (*FFProbeResult, error) {
		return doProbe(ctx, filePath)
	})
}

func GetStreamInfo(ctx context.Context, path string) (StreamInfo, error) {
	info, err := ProbeFile(ctx, path)
	if err != nil {
		return StreamInfo{}, err
	}
	return ProbeResultToInfo(info), nil
}

// GetStreamInfos probes all paths concurrently and returns the results in input order.
func GetStreamInfos(ctx context.Context, paths []string) ([]StreamInfo, error) {
	infos := make([]StreamInfo, len(paths))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(environment.GetProbeConcurrency())
	for i, path := range paths {
		g.Go(func() error {
			info, err := GetStreamInfo(ctx, path)
			if err != nil {
				return err
			}
			infos[i] = info
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return infos, nil
}
