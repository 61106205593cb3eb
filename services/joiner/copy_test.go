package joiner

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/bcc-code/bcc-media-joiner/services/mp4"
	"github.com/bcc-code/bcc-media-joiner/services/rebase"
	"github.com/bcc-code/bcc-media-joiner/utils/testutils"
	"github.com/davecgh/go-spew/spew"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testPeriods = rebase.FramePeriods{
	Video: 33333 * time.Microsecond,
	Audio: 23220 * time.Microsecond,
}

func fixture(t *testing.T, name string, params testutils.MP4Params) string {
	return testutils.GenerateMP4File(filepath.Join(t.TempDir(), name), params)
}

func avFixture(t *testing.T, name string) string {
	return fixture(t, name, testutils.MP4Params{
		Video: testutils.DefaultVideo(),
		Audio: testutils.DefaultAudio(),
	})
}

func copyJoin(t *testing.T, sources ...string) (string, error) {
	output := filepath.Join(t.TempDir(), "joined.mp4")
	return Join(context.Background(), sources, Config{
		Output:       output,
		FramePeriods: &testPeriods,
	}, nil)
}

type readSample struct {
	mp4.Sample
}

// readTrack returns all samples of the first track of kind, with copied payloads.
func readTrack(t *testing.T, path string, kind mp4.TrackKind) ([]readSample, time.Duration) {
	e, err := mp4.Open(path)
	require.NoError(t, err)
	defer e.Close()

	index, ok := e.TrackOf(kind)
	require.True(t, ok, "no %s track in %s", kind, path)

	c, err := e.Cursor(index)
	require.NoError(t, err)

	var samples []readSample
	for {
		s, err := c.Next(nil)
		if errors.Is(err, io.EOF) {
			break
		}
		require.NoError(t, err)
		s.Data = append([]byte(nil), s.Data...)
		samples = append(samples, readSample{s})
	}
	return samples, e.DurationOf(index)
}

func Test_CopyJoinTwoSources(t *testing.T) {
	a := avFixture(t, "a.mp4")
	b := avFixture(t, "b.mp4")

	output, err := copyJoin(t, a, b)
	require.NoError(t, err)

	video, videoDuration := readTrack(t, output, mp4.KindVideo)
	audio, audioDuration := readTrack(t, output, mp4.KindAudio)

	require.Len(t, video, 60)
	require.Len(t, audio, 86)

	for i, s := range video {
		assert.Equal(t, testutils.VideoSamplePayload(i%30), s.Data, "video sample %d", i)
	}
	for i, s := range audio {
		assert.Equal(t, testutils.AudioSamplePayload(i%43), s.Data, "audio sample %d", i)
	}

	// second source starts exactly where the first one ends
	assert.Equal(t, time.Second, video[30].PTS)
	assert.True(t, video[30].Sync)

	assert.InDelta(t, (2 * time.Second).Seconds(), videoDuration.Seconds(), testPeriods.Video.Seconds())
	assert.InDelta(t, 2*(43*1024)/44100.0, audioDuration.Seconds(), testPeriods.Audio.Seconds())
}

func Test_CopyJoinTimestampsNonDecreasing(t *testing.T) {
	reordered := testutils.DefaultVideo()
	reordered.Reordered = true
	params := testutils.MP4Params{Video: reordered, Audio: testutils.DefaultAudio()}

	output, err := copyJoin(t,
		fixture(t, "a.mp4", params),
		fixture(t, "b.mp4", params),
		fixture(t, "c.mp4", params),
	)
	require.NoError(t, err)

	for _, kind := range mp4.JoinableKinds {
		samples, _ := readTrack(t, output, kind)
		for i := 1; i < len(samples); i++ {
			assert.GreaterOrEqual(t, samples[i].DTS, samples[i-1].DTS, "%s sample %d", kind, i)
		}
	}

	video, _ := readTrack(t, output, mp4.KindVideo)
	require.Len(t, video, 90)
	// composition offsets survive the copy
	assert.Equal(t, video[0].DTS+time.Second/30, video[0].PTS)
	assert.Equal(t, video[62].DTS, video[62].PTS)
}

func Test_CopyJoinSourceWithoutAudio(t *testing.T) {
	a := avFixture(t, "a.mp4")
	b := fixture(t, "b.mp4", testutils.MP4Params{Video: testutils.DefaultVideo()})
	c := avFixture(t, "c.mp4")

	output, err := copyJoin(t, a, b, c)
	require.NoError(t, err)

	video, videoDuration := readTrack(t, output, mp4.KindVideo)
	audio, audioDuration := readTrack(t, output, mp4.KindAudio)

	assert.Len(t, video, 90)
	assert.Len(t, audio, 86)
	assert.InDelta(t, 3.0, videoDuration.Seconds(), testPeriods.Video.Seconds())
	// the audio clock only advanced for sources with audio
	assert.InDelta(t, 2*(43*1024)/44100.0, audioDuration.Seconds(), testPeriods.Audio.Seconds())
	assert.InDelta(t, (43*1024)/44100.0, audio[43].PTS.Seconds(), 0.0001)
}

func Test_CopyJoinFirstSourceWithoutAudio(t *testing.T) {
	a := fixture(t, "a.mp4", testutils.MP4Params{Video: testutils.DefaultVideo()})
	b := avFixture(t, "b.mp4")

	output, err := copyJoin(t, a, b)
	require.NoError(t, err)

	e, err := mp4.Open(output)
	require.NoError(t, err)
	defer e.Close()

	// schemas come from the first source only
	require.Len(t, e.Tracks(), 1)
	assert.Equal(t, mp4.KindVideo, e.Tracks()[0].Kind)
	assert.Equal(t, 60, e.Tracks()[0].SampleCount())
}

func Test_CopyJoinInferredDuration(t *testing.T) {
	video := testutils.DefaultVideo()
	video.OmitDuration = true
	params := testutils.MP4Params{Video: video, MoovFirst: true}

	output, err := copyJoin(t, fixture(t, "a.mp4", params), fixture(t, "b.mp4", params))
	require.NoError(t, err)

	samples, duration := readTrack(t, output, mp4.KindVideo)
	require.Len(t, samples, 60)

	// last frame of the first source at 29/30 s, plus one assumed frame period
	expectedStart := 29*time.Second/30 + testPeriods.Video
	assert.InDelta(t, expectedStart.Seconds(), samples[30].PTS.Seconds(), 0.0001)
	assert.InDelta(t, (2 * expectedStart).Seconds(), duration.Seconds(), 0.0001)
}

func Test_CopyJoinSchemaFromFirstSource(t *testing.T) {
	small := avFixture(t, "a.mp4")
	largeVideo := testutils.DefaultVideo()
	largeVideo.Width = 640
	largeVideo.Height = 480
	large := fixture(t, "b.mp4", testutils.MP4Params{Video: largeVideo, Audio: testutils.DefaultAudio()})

	output, err := copyJoin(t, small, large)
	require.NoError(t, err)

	e, err := mp4.Open(output)
	require.NoError(t, err)
	defer e.Close()

	index, ok := e.TrackOf(mp4.KindVideo)
	require.True(t, ok)
	schema := e.Tracks()[index].Schema
	t.Log(spew.Sdump(schema.Codec, schema.Width, schema.Height))
	assert.Equal(t, 320, schema.Width)
	assert.Equal(t, 240, schema.Height)
}

func Test_CopyJoinMissingFirstSource(t *testing.T) {
	output := filepath.Join(t.TempDir(), "joined.mp4")
	_, err := Join(context.Background(), []string{
		filepath.Join(t.TempDir(), "missing.mp4"),
		avFixture(t, "b.mp4"),
	}, Config{Output: output}, nil)

	assert.ErrorIs(t, err, mp4.ErrSourceOpen)
	assert.NoFileExists(t, output)
}

func Test_CopyJoinBrokenLaterSource(t *testing.T) {
	output := filepath.Join(t.TempDir(), "joined.mp4")
	var reports []Progress
	_, err := Join(context.Background(), []string{
		avFixture(t, "a.mp4"),
		testutils.GenerateGarbageFile(filepath.Join(t.TempDir(), "b.mp4")),
	}, Config{Output: output}, func(p Progress) {
		reports = append(reports, p)
	})

	assert.ErrorIs(t, err, mp4.ErrSourceOpen)

	// the output was begun, so it was still sealed
	_, statErr := os.Stat(output)
	assert.NoError(t, statErr)
	for _, p := range reports {
		assert.Less(t, p.Percent, 100.0)
	}
}

func Test_CopyJoinFileURIs(t *testing.T) {
	a := avFixture(t, "a.mp4")
	b := avFixture(t, "b.mp4")

	output, err := copyJoin(t, "file://"+a, "file://"+b)
	require.NoError(t, err)
	assert.FileExists(t, output)
}
