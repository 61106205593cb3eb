package ffmpeg

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_ParseProgress(t *testing.T) {
	var reports []Progress
	cb := parseProgressCallback([]string{"-i", "a.mp4"}, StreamInfo{TotalSeconds: 10}, func(p Progress) {
		reports = append(reports, p)
	})

	for _, line := range []string{
		"frame=60",
		"bitrate= 1024.0kbits/s",
		"out_time_us=2500000",
		"speed=1.52x",
		"progress=continue",
		"out_time_us=N/A",
		"progress=continue",
		"garbage",
		"out_time_us=10000000",
		"speed=N/A",
		"progress=end",
	} {
		cb(line)
	}

	require.Len(t, reports, 3)

	assert.Equal(t, "-i a.mp4", reports[0].Params)
	assert.InDelta(t, 25.0, reports[0].Percent, 0.001)
	assert.Equal(t, 2.5, reports[0].CurrentSeconds)
	assert.Equal(t, 60, reports[0].CurrentFrame)
	assert.Equal(t, "1024.0kbits/s", reports[0].Bitrate)
	assert.Equal(t, 1.52, reports[0].SpeedRatio)
	assert.False(t, reports[0].Done)

	// Unparseable time keeps the last value
	assert.InDelta(t, 25.0, reports[1].Percent, 0.001)

	assert.Equal(t, 100.0, reports[2].Percent)
	assert.Equal(t, 0.0, reports[2].SpeedRatio)
	assert.True(t, reports[2].Done)
}

func Test_ParseProgressFrames(t *testing.T) {
	var last Progress
	cb := parseProgressCallback(nil, StreamInfo{TotalFrames: 200}, func(p Progress) {
		last = p
	})
	cb("frame=50")
	cb("progress=continue")

	assert.Equal(t, 25.0, last.Percent)
}

func Test_ProbeResultToInfo(t *testing.T) {
	var result FFProbeResult
	result.Format.Duration = "12.5"
	result.Streams = []FFProbeStream{
		{Index: 0, CodecType: "video", Width: 1920, Height: 1080, NbFrames: "375", AvgFrameRate: "30000/1001"},
		{Index: 1, CodecType: "audio", Channels: 2, ChannelLayout: "stereo"},
		{Index: 2, CodecType: "data"},
	}

	info := ProbeResultToInfo(&result)
	assert.True(t, info.HasVideo)
	assert.True(t, info.HasAudio)
	assert.Equal(t, 1920, info.Width)
	assert.Equal(t, 1080, info.Height)
	assert.Equal(t, 375, info.TotalFrames)
	assert.Equal(t, 12.5, info.TotalSeconds)
	assert.InDelta(t, 29.97, info.FrameRate, 0.01)
	assert.Len(t, info.OtherStreams, 1)

	assert.Equal(t, StreamInfo{}, ProbeResultToInfo(nil))
}

func Test_ProbeResultAudioOnly(t *testing.T) {
	var result FFProbeResult
	result.Streams = []FFProbeStream{{CodecType: "audio"}}

	info := ProbeResultToInfo(&result)
	assert.False(t, info.HasVideo)
	assert.True(t, info.HasAudio)
	assert.Equal(t, 0, info.Width)
}

func Test_RunFailure(t *testing.T) {
	_, err := Run(context.Background(), "/bin/sh", []string{"-c", "echo 'Invalid data found' >&2; exit 3"}, StreamInfo{}, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrExternalProcess)
	assert.Contains(t, Diagnostics(err), "Invalid data found")
}

func Test_RunCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(100 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	_, err := Run(ctx, "/bin/sh", []string{"-c", "exec sleep 10"}, StreamInfo{}, nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrExternalProcess))
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Less(t, time.Since(start), 5*time.Second)
}

func Test_RunProgress(t *testing.T) {
	var reports []Progress
	out, err := Run(context.Background(), "/bin/sh", []string{"-c", "echo out_time_us=500000; echo progress=continue; echo progress=end"}, StreamInfo{TotalSeconds: 1}, func(p Progress) {
		reports = append(reports, p)
	})
	require.NoError(t, err)
	assert.Contains(t, out, "progress=end")
	require.Len(t, reports, 2)
	assert.Equal(t, 50.0, reports[0].Percent)
	assert.True(t, reports[1].Done)
}
