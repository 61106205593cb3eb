package transcode

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/bcc-code/bcc-media-joiner/services/ffmpeg"
	"github.com/bcc-code/bcc-media-joiner/services/presets"
	"github.com/samber/lo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mediumPreset(t *testing.T) presets.Preset {
	p, err := presets.Get(presets.TierMedium)
	require.NoError(t, err)
	return p
}

// fakeFFmpeg writes a shell script standing in for ffmpeg. The script receives the output path as its last argument.
func fakeFFmpeg(t *testing.T, body string) string {
	path := filepath.Join(t.TempDir(), "ffmpeg")
	script := "#!/bin/sh\nfor last; do :; done\n" + body + "\n"
	require.NoError(t, os.WriteFile(path, []byte(script), 0o755))
	return path
}

func Test_JoinArguments(t *testing.T) {
	infos := []ffmpeg.StreamInfo{
		{HasVideo: true, HasAudio: true, Width: 1921, Height: 1080, TotalSeconds: 5},
		{HasVideo: true, HasAudio: false, Width: 640, Height: 480, TotalSeconds: 3},
	}

	args, err := JoinArguments([]string{"/in/a.mp4", "/in/b.mp4"}, infos, mediumPreset(t), "/out/joined.mp4")
	require.NoError(t, err)

	joined := strings.Join(args, " ")
	assert.Contains(t, joined, "-i /in/a.mp4 -i /in/b.mp4")
	assert.Contains(t, joined, "-crf 23")
	assert.Contains(t, joined, "-b:a 128000")
	assert.Contains(t, joined, "-movflags +faststart")
	assert.Contains(t, joined, "-progress pipe:1")
	assert.Equal(t, "/out/joined.mp4", args[len(args)-1])

	filter := args[lo.IndexOf(args, "-filter_complex")+1]
	assert.Contains(t, filter, "[0:v:0]scale=1920:1080:force_original_aspect_ratio=decrease,pad=1920:1080:(ow-iw)/2:(oh-ih)/2,setsar=1,format=yuv420p[v0]")
	assert.Contains(t, filter, "[1:v:0]scale=1920:1080")
	assert.Contains(t, filter, "[0:a:0]aresample=48000")
	assert.Contains(t, filter, "anullsrc=channel_layout=stereo:sample_rate=48000,atrim=duration=3.000000[a1]")
	assert.True(t, strings.HasSuffix(filter, "[v0][a0][v1][a1]concat=n=2:v=1:a=1[v][a]"))
}

func Test_JoinArgumentsNoVideo(t *testing.T) {
	_, err := JoinArguments([]string{"a.m4a", "b.m4a"}, []ffmpeg.StreamInfo{{HasAudio: true}, {HasAudio: true}}, mediumPreset(t), "out.mp4")
	assert.ErrorIs(t, err, ErrNoVideo)

	_, err = JoinArguments([]string{"a.mp4"}, nil, mediumPreset(t), "out.mp4")
	assert.Error(t, err)
}

func Test_JoinProgressCapped(t *testing.T) {
	binary := fakeFFmpeg(t, `echo out_time_us=4000000
echo speed=2.0x
echo progress=continue
echo out_time_us=8000000
echo progress=end
echo data > "$last"`)

	output := filepath.Join(t.TempDir(), "joined.mp4")
	var reports []ffmpeg.Progress
	result, err := Join(context.Background(), JoinInput{
		Sources:    []string{"a.mp4", "b.mp4"},
		Output:     output,
		Preset:     mediumPreset(t),
		Infos:      []ffmpeg.StreamInfo{{HasVideo: true, Width: 320, Height: 240, TotalSeconds: 4}, {HasVideo: true, TotalSeconds: 4}},
		FFmpegPath: binary,
	}, func(p ffmpeg.Progress) {
		reports = append(reports, p)
	})

	require.NoError(t, err)
	assert.Equal(t, output, result.Output)
	assert.Equal(t, 8.0, result.TotalSeconds)
	assert.FileExists(t, output)

	require.Len(t, reports, 2)
	assert.Equal(t, 50.0, reports[0].Percent)
	assert.Equal(t, 2.0, reports[0].SpeedRatio)
	assert.Equal(t, maxRunningPercent, reports[1].Percent)
}

func Test_JoinFailureRemovesOutput(t *testing.T) {
	binary := fakeFFmpeg(t, `echo partial > "$last"
echo "Error while decoding stream" >&2
exit 1`)

	output := filepath.Join(t.TempDir(), "joined.mp4")
	_, err := Join(context.Background(), JoinInput{
		Sources:    []string{"a.mp4", "b.mp4"},
		Output:     output,
		Preset:     mediumPreset(t),
		Infos:      []ffmpeg.StreamInfo{{HasVideo: true, Width: 320, Height: 240}, {HasVideo: true}},
		FFmpegPath: binary,
	}, nil)

	require.Error(t, err)
	assert.ErrorIs(t, err, ffmpeg.ErrExternalProcess)
	assert.Contains(t, ffmpeg.Diagnostics(err), "Error while decoding stream")
	assert.NoFileExists(t, output)
}

func Test_JoinCancelled(t *testing.T) {
	binary := fakeFFmpeg(t, `echo partial > "$last"
echo progress=continue
exec sleep 10`)

	output := filepath.Join(t.TempDir(), "joined.mp4")
	ctx, cancel := context.WithCancel(context.Background())

	started := make(chan struct{}, 1)
	go func() {
		<-started
		cancel()
	}()

	_, err := Join(ctx, JoinInput{
		Sources:    []string{"a.mp4", "b.mp4"},
		Output:     output,
		Preset:     mediumPreset(t),
		Infos:      []ffmpeg.StreamInfo{{HasVideo: true, Width: 320, Height: 240}, {HasVideo: true}},
		FFmpegPath: binary,
	}, func(ffmpeg.Progress) {
		select {
		case started <- struct{}{}:
		default:
		}
	})

	require.Error(t, err)
	assert.ErrorIs(t, err, ffmpeg.ErrExternalProcess)
	assert.ErrorIs(t, err, context.Canceled)
	assert.NoFileExists(t, output)
}
