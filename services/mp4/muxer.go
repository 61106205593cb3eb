package mp4

import (
	"bufio"
	"encoding/binary"
	"io"
	"math"
	"os"
	"time"

	"github.com/abema/go-mp4"
	"github.com/ansel1/merry/v2"
	"github.com/samber/lo"
)

type muxerState int

const (
	muxerIdle muxerState = iota
	muxerStarted
	muxerFinalized
)

// TrackHandle identifies a registered track of a Muxer.
type TrackHandle int

// Muxer writes samples of up to one track per kind into a progressive mp4 file.
// Sample data is streamed into mdat as it arrives; moov is appended by Finalize.
type Muxer struct {
	path   string
	file   *os.File
	buf    *bufio.Writer
	tracks []*muxTrack
	state  muxerState

	mdatStart int64
	offset    int64
	lastTrack TrackHandle

	finalizeErr error
}

type muxTrack struct {
	id        uint32
	schema    Schema
	timescale uint32

	sizes   []uint32
	dts     []int64
	cto     []int64
	syncs   []uint32
	allSync bool

	chunkOffsets    []int64
	samplesPerChunk []uint32

	// end in timescale units; extends the duration of the last sample
	end int64
}

// NewMuxer prepares a muxer for path. Nothing is created on disk until Begin.
func NewMuxer(path string) *Muxer {
	return &Muxer{
		path:      path,
		lastTrack: -1,
	}
}

func (m *Muxer) Path() string {
	return m.path
}

// Started reports whether Begin succeeded, i.e. whether the output needs a Finalize.
func (m *Muxer) Started() bool {
	return m.state != muxerIdle
}

// RegisterSchema adds the track for a kind. Only one schema per kind is accepted and only before Begin.
func (m *Muxer) RegisterSchema(kind TrackKind, schema Schema) (TrackHandle, error) {
	if m.state != muxerIdle {
		return -1, merry.Wrap(ErrSchemaConflict, merry.WithMessagef("cannot register %s track after begin", kind))
	}
	if lo.SomeBy(m.tracks, func(t *muxTrack) bool { return t.schema.Kind == kind }) {
		return -1, merry.Wrap(ErrSchemaConflict, merry.WithMessagef("%s track already registered", kind))
	}
	if len(schema.SampleDescription) < 16 || string(schema.SampleDescription[4:8]) != "stsd" {
		return -1, merry.Wrap(ErrSchemaConflict, merry.WithMessagef("%s schema has no sample description", kind))
	}

	schema.Kind = kind
	timescale := schema.Timescale
	if timescale == 0 {
		timescale = defaultTimescale(schema)
	}

	m.tracks = append(m.tracks, &muxTrack{
		id:        uint32(len(m.tracks) + 1),
		schema:    schema,
		timescale: timescale,
		allSync:   true,
	})
	return TrackHandle(len(m.tracks) - 1), nil
}

func defaultTimescale(schema Schema) uint32 {
	if schema.Kind == KindAudio && schema.SampleRate > 0 {
		return uint32(schema.SampleRate)
	}
	return 90000
}

// Begin creates the output file and writes the file header.
func (m *Muxer) Begin() error {
	if m.state != muxerIdle {
		return merry.Wrap(ErrMuxerState, merry.WithMessage("begin called twice"))
	}
	if len(m.tracks) == 0 {
		return merry.Wrap(ErrMuxerState, merry.WithMessage("begin called before any schema was registered"))
	}

	f, err := os.Create(m.path)
	if err != nil {
		return merry.Wrap(ErrWrite, merry.WithCause(err), merry.WithMessagef("create %s: %v", m.path, err))
	}
	m.file = f
	m.state = muxerStarted

	if err := writeFtyp(f); err != nil {
		return merry.Wrap(ErrWrite, merry.WithCause(err), merry.WithMessagef("write ftyp: %v", err))
	}
	m.mdatStart, err = f.Seek(0, io.SeekCurrent)
	if err != nil {
		return merry.Wrap(ErrWrite, merry.WithCause(err), merry.WithMessagef("seek: %v", err))
	}

	// free(8) + mdat(8); Finalize turns both into one 64-bit mdat header when needed
	header := make([]byte, 16)
	binary.BigEndian.PutUint32(header[0:], 8)
	copy(header[4:], "free")
	copy(header[12:], "mdat")
	if _, err := f.Write(header); err != nil {
		return merry.Wrap(ErrWrite, merry.WithCause(err), merry.WithMessagef("write mdat header: %v", err))
	}
	m.offset = m.mdatStart + 16
	m.buf = bufio.NewWriterSize(f, 1<<20)

	return nil
}

// WriteSample appends the sample to the track. Callers supply samples in decode order per track.
func (m *Muxer) WriteSample(handle TrackHandle, sample Sample) error {
	if m.state != muxerStarted {
		return merry.Wrap(ErrMuxerState, merry.WithMessage("write before begin or after finalize"))
	}
	if handle < 0 || int(handle) >= len(m.tracks) {
		return merry.Wrap(ErrMuxerState, merry.WithMessagef("unknown track handle %d", handle))
	}
	t := m.tracks[handle]

	if _, err := m.buf.Write(sample.Data); err != nil {
		return merry.Wrap(ErrWrite, merry.WithCause(err), merry.WithMessagef("write %s sample: %v", t.schema.Kind, err))
	}

	if m.lastTrack != handle || len(t.chunkOffsets) == 0 {
		t.chunkOffsets = append(t.chunkOffsets, m.offset)
		t.samplesPerChunk = append(t.samplesPerChunk, 0)
	}
	t.samplesPerChunk[len(t.samplesPerChunk)-1]++
	m.lastTrack = handle
	m.offset += int64(len(sample.Data))

	dts := toUnits(sample.DTS, t.timescale)
	t.sizes = append(t.sizes, uint32(len(sample.Data)))
	t.dts = append(t.dts, dts)
	t.cto = append(t.cto, toUnits(sample.PTS, t.timescale)-dts)
	if sample.Sync {
		t.syncs = append(t.syncs, uint32(len(t.sizes)))
	} else {
		t.allSync = false
	}
	return nil
}

// SetEnd records where the track ends. It sets the duration of the last sample,
// which otherwise repeats the previous sample duration.
func (m *Muxer) SetEnd(handle TrackHandle, end time.Duration) {
	if handle < 0 || int(handle) >= len(m.tracks) {
		return
	}
	t := m.tracks[handle]
	t.end = toUnits(end, t.timescale)
}

// Finalize seals mdat and writes moov. It runs at most once; later calls return the first result.
func (m *Muxer) Finalize() error {
	switch m.state {
	case muxerIdle:
		return merry.Wrap(ErrMuxerState, merry.WithMessage("finalize called before begin"))
	case muxerFinalized:
		return m.finalizeErr
	}
	m.state = muxerFinalized
	m.finalizeErr = m.finalize()
	return m.finalizeErr
}

func (m *Muxer) finalize() error {
	defer func() {
		if m.file != nil {
			_ = m.file.Close()
			m.file = nil
		}
	}()

	if m.buf == nil {
		return merry.Wrap(ErrFinalize, merry.WithMessage("output header was never written"))
	}
	if err := m.buf.Flush(); err != nil {
		return merry.Wrap(ErrFinalize, merry.WithCause(err), merry.WithMessagef("flush: %v", err))
	}

	if err := m.patchMdatHeader(); err != nil {
		return merry.Wrap(ErrFinalize, merry.WithCause(err), merry.WithMessagef("mdat header: %v", err))
	}

	if _, err := m.file.Seek(m.offset, io.SeekStart); err != nil {
		return merry.Wrap(ErrFinalize, merry.WithCause(err), merry.WithMessagef("seek: %v", err))
	}
	if err := writeMoov(m.file, m.tracks); err != nil {
		return merry.Wrap(ErrFinalize, merry.WithCause(err), merry.WithMessagef("write moov: %v", err))
	}

	if err := m.file.Sync(); err != nil {
		return merry.Wrap(ErrFinalize, merry.WithCause(err), merry.WithMessagef("sync: %v", err))
	}
	err := m.file.Close()
	m.file = nil
	if err != nil {
		return merry.Wrap(ErrFinalize, merry.WithCause(err), merry.WithMessagef("close: %v", err))
	}
	return nil
}

func (m *Muxer) patchMdatHeader() error {
	size := m.offset - (m.mdatStart + 8)
	var header []byte
	at := m.mdatStart + 8
	if size <= math.MaxUint32 {
		header = make([]byte, 4)
		binary.BigEndian.PutUint32(header, uint32(size))
	} else {
		// overwrite the free box with a large-size mdat header
		at = m.mdatStart
		header = make([]byte, 16)
		binary.BigEndian.PutUint32(header[0:], 1)
		copy(header[4:], "mdat")
		binary.BigEndian.PutUint64(header[8:], uint64(m.offset-m.mdatStart))
	}
	_, err := m.file.WriteAt(header, at)
	return err
}

// Close releases the output file without sealing it. Finalize already closes on its own.
func (m *Muxer) Close() error {
	if m.file == nil {
		return nil
	}
	err := m.file.Close()
	m.file = nil
	return err
}

func writeFtyp(w io.WriteSeeker) error {
	bw := newBoxWriter(w)
	bw.box(&mp4.Ftyp{
		MajorBrand:   [4]byte{'i', 's', 'o', 'm'},
		MinorVersion: 512,
		CompatibleBrands: []mp4.CompatibleBrandElem{
			{CompatibleBrand: [4]byte{'i', 's', 'o', 'm'}},
			{CompatibleBrand: [4]byte{'i', 's', 'o', '2'}},
			{CompatibleBrand: [4]byte{'a', 'v', 'c', '1'}},
			{CompatibleBrand: [4]byte{'m', 'p', '4', '1'}},
		},
	})
	return bw.err
}
