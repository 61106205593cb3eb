package mp4

import (
	"errors"
	"io"
	"math"
	"os"
	"time"

	"github.com/abema/go-mp4"
	"github.com/ansel1/merry/v2"
	"github.com/bluenviron/mediacommon/v2/pkg/codecs/h264"
	"github.com/samber/lo"
)

// Extractor reads the tracks of one source container.
type Extractor struct {
	path   string
	file   *os.File
	tracks []*Track
}

// Open parses the container index of path. Sample payloads are read lazily through a Cursor.
func Open(path string) (*Extractor, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, merry.Wrap(ErrSourceOpen, merry.WithCause(err), merry.WithMessagef("open %s: %v", path, err))
	}

	tracks, err := readTracks(f)
	if err != nil {
		_ = f.Close()
		if errors.Is(err, ErrSourceOpen) {
			return nil, merry.Wrap(err, merry.WithMessagef("%s: %v", path, err))
		}
		return nil, merry.Wrap(ErrSourceOpen, merry.WithCause(err), merry.WithMessagef("read %s: %v", path, err))
	}

	return &Extractor{
		path:   path,
		file:   f,
		tracks: tracks,
	}, nil
}

func (e *Extractor) Path() string {
	return e.path
}

func (e *Extractor) Tracks() []*Track {
	return e.tracks
}

// TrackOf returns the index of the first track of the given kind, in container order.
func (e *Extractor) TrackOf(kind TrackKind) (int, bool) {
	_, index, found := lo.FindIndexOf(e.tracks, func(t *Track) bool {
		return t.Kind == kind
	})
	return index, found
}

// DurationOf returns the declared duration of the track, 0 if the container does not declare one.
func (e *Extractor) DurationOf(index int) time.Duration {
	if index < 0 || index >= len(e.tracks) {
		return 0
	}
	return e.tracks[index].Duration
}

// Cursor returns a sample cursor positioned at the first sync sample of the track.
func (e *Extractor) Cursor(index int) (*Cursor, error) {
	if e.file == nil {
		return nil, merry.Wrap(ErrSourceOpen, merry.WithMessagef("%s: extractor is closed", e.path))
	}
	if index < 0 || index >= len(e.tracks) {
		return nil, merry.Wrap(ErrSourceOpen, merry.WithMessagef("%s: no track at index %d", e.path, index))
	}
	c := &Cursor{
		reader: e.file,
		track:  e.tracks[index],
	}
	c.SeekSync(0)
	return c, nil
}

// Close releases the file. It is safe to call more than once and while cursors are partially read.
func (e *Extractor) Close() error {
	if e.file == nil {
		return nil
	}
	err := e.file.Close()
	e.file = nil
	return err
}

type trackBuilder struct {
	track  *Track
	tables sampleTables
	// media time of the first non-empty edit, in track timescale units
	mediaTime int64
}

func readTracks(f *os.File) ([]*Track, error) {
	stat, err := f.Stat()
	if err != nil {
		return nil, err
	}

	var builders []*trackBuilder
	var current *trackBuilder
	hasMoov := false
	fragmented := false

	_, err = mp4.ReadBoxStructure(f, func(h *mp4.ReadHandle) (interface{}, error) {
		switch h.BoxInfo.Type {
		case mp4.BoxTypeMoov():
			hasMoov = true
			return h.Expand()
		case mp4.BoxTypeMvex():
			fragmented = true
			return nil, nil
		case mp4.BoxTypeTrak():
			current = &trackBuilder{track: &Track{Index: len(builders), Kind: KindOther}}
			builders = append(builders, current)
			return h.Expand()
		case mp4.BoxTypeEdts(), mp4.BoxTypeMdia(), mp4.BoxTypeMinf(), mp4.BoxTypeStbl():
			if current == nil {
				return nil, nil
			}
			return h.Expand()
		}

		if current == nil {
			return nil, nil
		}

		switch h.BoxInfo.Type {
		case mp4.BoxTypeStsd():
			raw := make([]byte, h.BoxInfo.Size)
			if _, err := f.ReadAt(raw, int64(h.BoxInfo.Offset)); err != nil {
				return nil, err
			}
			current.track.Schema.SampleDescription = raw
			return h.Expand()
		case mp4.BoxTypeAvcC():
			return nil, readAvcC(h, current.track)
		}

		if len(h.Path) >= 2 && h.Path[len(h.Path)-2] == mp4.BoxTypeStsd() {
			return readSampleEntry(h, current.track)
		}

		if !h.BoxInfo.IsSupportedType() {
			return nil, nil
		}

		switch h.BoxInfo.Type {
		case mp4.BoxTypeTkhd(), mp4.BoxTypeElst(), mp4.BoxTypeMdhd(), mp4.BoxTypeHdlr(),
			mp4.BoxTypeStts(), mp4.BoxTypeCtts(), mp4.BoxTypeStss(), mp4.BoxTypeStsz(),
			mp4.BoxTypeStsc(), mp4.BoxTypeStco(), mp4.BoxTypeCo64():
		default:
			return nil, nil
		}

		box, _, err := h.ReadPayload()
		if err != nil {
			return nil, err
		}

		t := current.track
		switch b := box.(type) {
		case *mp4.Tkhd:
			t.ID = b.TrackID
			if t.Schema.Width == 0 {
				t.Schema.Width = int(b.Width >> 16)
				t.Schema.Height = int(b.Height >> 16)
			}
		case *mp4.Elst:
			current.mediaTime = firstMediaTime(b)
		case *mp4.Mdhd:
			t.Timescale = b.Timescale
			t.Schema.Timescale = b.Timescale
			t.Duration = declaredDuration(b)
		case *mp4.Hdlr:
			t.Kind = kindFromHandler(b.HandlerType)
			t.Schema.Kind = t.Kind
		case *mp4.Stts:
			current.tables.stts = b
		case *mp4.Ctts:
			current.tables.ctts = b
		case *mp4.Stss:
			current.tables.stss = b
		case *mp4.Stsz:
			current.tables.stsz = b
		case *mp4.Stsc:
			current.tables.stsc = b
		case *mp4.Stco:
			current.tables.stco = b
		case *mp4.Co64:
			current.tables.co64 = b
		}
		return nil, nil
	})
	if err != nil {
		return nil, err
	}

	if !hasMoov {
		return nil, merry.Wrap(ErrSourceOpen, merry.WithMessage("not an mp4 container, no moov box"))
	}
	if fragmented {
		return nil, merry.Wrap(ErrSourceOpen, merry.WithMessage("fragmented mp4 is not supported"))
	}

	tracks := make([]*Track, 0, len(builders))
	for _, b := range builders {
		samples, maxSize, err := b.tables.buildSamples(stat.Size())
		if err != nil {
			return nil, merry.Wrap(err, merry.WithMessagef("track %d: %v", b.track.ID, err))
		}
		b.track.Schema.MediaTime = toDuration(b.mediaTime, b.track.Timescale)
		b.track.samples = samples
		b.track.maxSize = maxSize
		tracks = append(tracks, b.track)
	}

	return tracks, nil
}

func declaredDuration(b *mp4.Mdhd) time.Duration {
	var units uint64
	if b.GetVersion() == 1 {
		units = b.DurationV1
		if units == math.MaxUint64 {
			return 0
		}
	} else {
		units = uint64(b.DurationV0)
		if units == math.MaxUint32 {
			return 0
		}
	}
	if units > math.MaxInt64 {
		return 0
	}
	return toDuration(int64(units), b.Timescale)
}

// firstMediaTime skips leading empty edits. Later edits are not applied.
func firstMediaTime(b *mp4.Elst) int64 {
	for _, entry := range b.Entries {
		mediaTime := int64(entry.MediaTimeV0)
		if b.GetVersion() == 1 {
			mediaTime = entry.MediaTimeV1
		}
		if mediaTime >= 0 {
			return mediaTime
		}
	}
	return 0
}

func readSampleEntry(h *mp4.ReadHandle, t *Track) (interface{}, error) {
	// only the first sample description is used
	if t.Schema.Codec != "" {
		return nil, nil
	}
	t.Schema.Codec = h.BoxInfo.Type.String()

	if !h.BoxInfo.IsSupportedType() {
		return nil, nil
	}

	box, _, err := h.ReadPayload()
	if err != nil {
		return nil, err
	}

	switch b := box.(type) {
	case *mp4.VisualSampleEntry:
		if b.Width != 0 && b.Height != 0 {
			t.Schema.Width = int(b.Width)
			t.Schema.Height = int(b.Height)
		}
	case *mp4.AudioSampleEntry:
		t.Schema.ChannelCount = int(b.ChannelCount)
		t.Schema.SampleRate = int(b.SampleRate >> 16)
	}

	return h.Expand()
}

func readAvcC(h *mp4.ReadHandle, t *Track) error {
	box, _, err := h.ReadPayload()
	if err != nil {
		return err
	}
	avcc, ok := box.(*mp4.AVCDecoderConfiguration)
	if !ok || len(avcc.SequenceParameterSets) == 0 {
		return nil
	}

	var sps h264.SPS
	if err := sps.Unmarshal(avcc.SequenceParameterSets[0].NALUnit); err != nil {
		// dimensions from the sample entry are good enough
		return nil
	}
	t.Schema.Width = sps.Width()
	t.Schema.Height = sps.Height()
	return nil
}

// Cursor is a single pass over the samples of one track.
type Cursor struct {
	reader io.ReaderAt
	track  *Track
	pos    int
}

// SeekSync positions the cursor on the last sync sample at or before t.
// When t is before the first sync sample, the cursor is placed on the first sync sample.
func (c *Cursor) SeekSync(t time.Duration) {
	samples := c.track.samples
	target := toUnits(t, c.track.Timescale)

	first := -1
	best := -1
	for i, s := range samples {
		if !s.sync {
			continue
		}
		if first < 0 {
			first = i
		}
		if s.dts+s.cto > target && best >= 0 {
			break
		}
		if s.dts+s.cto <= target {
			best = i
		}
	}

	switch {
	case best >= 0:
		c.pos = best
	case first >= 0:
		c.pos = first
	default:
		c.pos = len(samples)
	}
}

func (c *Cursor) Track() *Track {
	return c.track
}

// Next reads the next sample into buf and returns it. The returned Data aliases buf when it is large enough.
// io.EOF marks the end of the track.
func (c *Cursor) Next(buf []byte) (Sample, error) {
	if c.pos >= len(c.track.samples) {
		return Sample{}, io.EOF
	}
	entry := c.track.samples[c.pos]

	if cap(buf) < int(entry.size) {
		buf = make([]byte, entry.size)
	}
	data := buf[:entry.size]

	if _, err := c.reader.ReadAt(data, entry.offset); err != nil {
		return Sample{}, merry.Wrap(ErrSourceOpen,
			merry.WithCause(err),
			merry.WithMessagef("read sample %d of track %d: %v", c.pos, c.track.ID, err),
		)
	}
	c.pos++

	ts := c.track.Timescale
	return Sample{
		Kind: c.track.Kind,
		Data: data,
		PTS:  toDuration(entry.dts+entry.cto, ts),
		DTS:  toDuration(entry.dts, ts),
		Sync: entry.sync,
	}, nil
}
