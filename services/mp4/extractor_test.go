package mp4

import (
	"bytes"
	"encoding/binary"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/bcc-code/bcc-media-joiner/utils/testutils"
	"github.com/davecgh/go-spew/spew"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_OpenTracks(t *testing.T) {
	path := testutils.GenerateMP4File(filepath.Join(t.TempDir(), "a.mp4"), testutils.MP4Params{
		Video: testutils.DefaultVideo(),
		Audio: testutils.DefaultAudio(),
	})

	e, err := Open(path)
	require.NoError(t, err)
	defer e.Close()

	require.Len(t, e.Tracks(), 2)
	t.Log(spew.Sdump(e.Tracks()[0].Schema.Codec, e.Tracks()[1].Schema.Codec))

	video, ok := e.TrackOf(KindVideo)
	assert.True(t, ok)
	assert.Equal(t, 0, video)

	audio, ok := e.TrackOf(KindAudio)
	assert.True(t, ok)
	assert.Equal(t, 1, audio)

	_, ok = e.TrackOf(KindOther)
	assert.False(t, ok)

	assert.Equal(t, time.Second, e.DurationOf(video))
	assert.Equal(t, toDuration(43*1024, 44100), e.DurationOf(audio))
	assert.Equal(t, time.Duration(0), e.DurationOf(7))

	vs := e.Tracks()[video].Schema
	assert.Equal(t, KindVideo, vs.Kind)
	assert.Equal(t, "avc1", vs.Codec)
	assert.Equal(t, uint32(90000), vs.Timescale)
	assert.Equal(t, 320, vs.Width)
	assert.Equal(t, 240, vs.Height)
	assert.Equal(t, "stsd", string(vs.SampleDescription[4:8]))

	as := e.Tracks()[audio].Schema
	assert.Equal(t, "mp4a", as.Codec)
	assert.Equal(t, 44100, as.SampleRate)
	assert.Equal(t, 2, as.ChannelCount)

	assert.Equal(t, 30, e.Tracks()[video].SampleCount())
	assert.Equal(t, 200+6*13, e.Tracks()[video].MaxSampleSize())
}

func readAll(t *testing.T, c *Cursor) []Sample {
	var samples []Sample
	buf := make([]byte, c.Track().MaxSampleSize())
	for {
		s, err := c.Next(buf)
		if err == io.EOF {
			return samples
		}
		require.NoError(t, err)
		s.Data = append([]byte(nil), s.Data...)
		samples = append(samples, s)
	}
}

func Test_CursorPayloads(t *testing.T) {
	for _, moovFirst := range []bool{false, true} {
		path := testutils.GenerateMP4File(filepath.Join(t.TempDir(), "a.mp4"), testutils.MP4Params{
			Video:           testutils.DefaultVideo(),
			Audio:           testutils.DefaultAudio(),
			MoovFirst:       moovFirst,
			SamplesPerChunk: 4,
		})

		e, err := Open(path)
		require.NoError(t, err)

		c, err := e.Cursor(0)
		require.NoError(t, err)
		samples := readAll(t, c)
		require.Len(t, samples, 30)
		for i, s := range samples {
			assert.Equal(t, testutils.VideoSamplePayload(i), s.Data, "video sample %d", i)
			assert.Equal(t, toDuration(int64(i)*3000, 90000), s.DTS)
			assert.Equal(t, s.DTS, s.PTS)
			assert.Equal(t, i%10 == 0, s.Sync)
			assert.Equal(t, KindVideo, s.Kind)
		}

		c, err = e.Cursor(1)
		require.NoError(t, err)
		samples = readAll(t, c)
		require.Len(t, samples, 43)
		for i, s := range samples {
			assert.Equal(t, testutils.AudioSamplePayload(i), s.Data, "audio sample %d", i)
			assert.True(t, s.Sync)
		}

		assert.NoError(t, e.Close())
	}
}

func Test_CursorReordered(t *testing.T) {
	video := testutils.DefaultVideo()
	video.Reordered = true
	path := testutils.GenerateMP4File(filepath.Join(t.TempDir(), "b.mp4"), testutils.MP4Params{Video: video})

	e, err := Open(path)
	require.NoError(t, err)
	defer e.Close()

	c, err := e.Cursor(0)
	require.NoError(t, err)
	samples := readAll(t, c)
	require.Len(t, samples, 30)

	frame := toDuration(3000, 90000)
	assert.Equal(t, frame, samples[0].PTS-samples[0].DTS)
	assert.Equal(t, time.Duration(0), samples[2].PTS-samples[2].DTS)
}

func Test_SeekSync(t *testing.T) {
	path := testutils.GenerateMP4File(filepath.Join(t.TempDir(), "a.mp4"), testutils.MP4Params{
		Video: testutils.DefaultVideo(),
	})

	e, err := Open(path)
	require.NoError(t, err)
	defer e.Close()

	c, err := e.Cursor(0)
	require.NoError(t, err)

	c.SeekSync(500 * time.Millisecond)
	s, err := c.Next(nil)
	require.NoError(t, err)
	assert.True(t, s.Sync)
	assert.Equal(t, testutils.VideoSamplePayload(10), s.Data)

	c.SeekSync(10 * time.Second)
	s, err = c.Next(nil)
	require.NoError(t, err)
	assert.Equal(t, testutils.VideoSamplePayload(20), s.Data)
}

func Test_MissingDuration(t *testing.T) {
	video := testutils.DefaultVideo()
	video.OmitDuration = true
	path := testutils.GenerateMP4File(filepath.Join(t.TempDir(), "a.mp4"), testutils.MP4Params{Video: video})

	e, err := Open(path)
	require.NoError(t, err)
	defer e.Close()

	assert.Equal(t, time.Duration(0), e.DurationOf(0))
	_, ok := e.TrackOf(KindAudio)
	assert.False(t, ok)
}

func Test_OpenErrors(t *testing.T) {
	dir := t.TempDir()

	_, err := Open(filepath.Join(dir, "missing.mp4"))
	assert.ErrorIs(t, err, ErrSourceOpen)

	_, err = Open(testutils.GenerateGarbageFile(filepath.Join(dir, "garbage.mp4")))
	assert.ErrorIs(t, err, ErrSourceOpen)
}

func Test_CloseIsIdempotent(t *testing.T) {
	path := testutils.GenerateMP4File(filepath.Join(t.TempDir(), "a.mp4"), testutils.MP4Params{
		Video: testutils.DefaultVideo(),
	})

	e, err := Open(path)
	require.NoError(t, err)

	c, err := e.Cursor(0)
	require.NoError(t, err)
	_, err = c.Next(nil)
	require.NoError(t, err)

	assert.NoError(t, e.Close())
	assert.NoError(t, e.Close())

	_, err = e.Cursor(0)
	assert.ErrorIs(t, err, ErrSourceOpen)
}

func Test_Rescale(t *testing.T) {
	// 1001/30000 does not divide a nanosecond evenly
	d := toDuration(1001, 30000)
	assert.Equal(t, int64(1001), toUnits(d, 30000))

	assert.Equal(t, int64(90000), toUnits(time.Second, 90000))
	assert.Equal(t, time.Duration(0), toDuration(5, 0))
	assert.Equal(t, int64(-3000), toUnits(-toDuration(3000, 90000), 90000))
}

// patchStsz overwrites the fixed sample size and count of the first stsz box.
func patchStsz(t *testing.T, path string, size uint32, count uint32) {
	data, err := os.ReadFile(path)
	require.NoError(t, err)

	moov := bytes.Index(data, []byte("moov"))
	require.Positive(t, moov)
	i := bytes.Index(data[moov:], []byte("stsz"))
	require.Positive(t, i)
	i += moov

	binary.BigEndian.PutUint32(data[i+8:], size)
	if count > 0 {
		binary.BigEndian.PutUint32(data[i+12:], count)
	}
	require.NoError(t, os.WriteFile(path, data, 0644))
}

func Test_OpenRejectsImpossibleSampleCount(t *testing.T) {
	cases := []struct {
		name  string
		size  uint32
		count uint32
	}{
		{"count beyond tables", 100, 0xFFFFFFF0},
		{"samples larger than file", 1 << 30, 0},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			path := testutils.GenerateMP4File(filepath.Join(t.TempDir(), "a.mp4"), testutils.MP4Params{
				Video: testutils.DefaultVideo(),
				Audio: testutils.DefaultAudio(),
			})
			patchStsz(t, path, c.size, c.count)

			_, err := Open(path)
			assert.ErrorIs(t, err, ErrSourceOpen)
		})
	}
}
