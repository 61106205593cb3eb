package mp4

import (
	"io"
	"math"

	"github.com/abema/go-mp4"
)

const movieTimescale = 1000

var unityMatrix = [9]int32{0x00010000, 0, 0, 0, 0x00010000, 0, 0, 0, 0x40000000}

// self-contained data reference: dref with one "url " entry flagged 1
var drefBox = []byte{
	0, 0, 0, 28, 'd', 'r', 'e', 'f', 0, 0, 0, 0, 0, 0, 0, 1,
	0, 0, 0, 12, 'u', 'r', 'l', ' ', 0, 0, 0, 1,
}

type boxWriter struct {
	w   *mp4.Writer
	err error
}

func newBoxWriter(w io.WriteSeeker) *boxWriter {
	return &boxWriter{w: mp4.NewWriter(w)}
}

func (b *boxWriter) start(t mp4.BoxType) {
	if b.err != nil {
		return
	}
	_, b.err = b.w.StartBox(&mp4.BoxInfo{Type: t})
}

func (b *boxWriter) end() {
	if b.err != nil {
		return
	}
	_, b.err = b.w.EndBox()
}

func (b *boxWriter) box(box mp4.IImmutableBox) {
	b.start(box.GetType())
	if b.err == nil {
		_, b.err = mp4.Marshal(b.w, box, mp4.Context{})
	}
	b.end()
}

func (b *boxWriter) raw(p []byte) {
	if b.err != nil {
		return
	}
	_, b.err = b.w.Write(p)
}

func fullBox(version uint8, flags uint32) mp4.FullBox {
	return mp4.FullBox{
		Version: version,
		Flags:   [3]byte{byte(flags >> 16), byte(flags >> 8), byte(flags)},
	}
}

func writeMoov(w io.WriteSeeker, tracks []*muxTrack) error {
	bw := newBoxWriter(w)

	var movieDuration uint64
	durations := make([]uint64, len(tracks))
	for i, t := range tracks {
		durations[i] = t.mediaDuration()
		movieDuration = max(movieDuration, t.edits(durations[i]).trackDuration())
	}

	bw.start(mp4.BoxTypeMoov())

	mvhd := &mp4.Mvhd{
		FullBox:     fullBox(versionFor(movieDuration), 0),
		Timescale:   movieTimescale,
		Rate:        0x00010000,
		Volume:      0x0100,
		Matrix:      unityMatrix,
		NextTrackID: uint32(len(tracks) + 1),
	}
	mvhd.DurationV0, mvhd.DurationV1 = splitDuration(movieDuration)
	bw.box(mvhd)

	for i, t := range tracks {
		writeTrak(bw, t, durations[i])
	}

	bw.end()
	return bw.err
}

func writeTrak(bw *boxWriter, t *muxTrack, mediaDuration uint64) {
	edits := t.edits(mediaDuration)
	trackDuration := edits.trackDuration()

	bw.start(mp4.BoxTypeTrak())

	tkhd := &mp4.Tkhd{
		FullBox: fullBox(versionFor(trackDuration), 0x000003),
		TrackID: t.id,
		Matrix:  unityMatrix,
	}
	tkhd.DurationV0, tkhd.DurationV1 = splitDuration(trackDuration)
	switch t.schema.Kind {
	case KindVideo:
		tkhd.Width = uint32(t.schema.Width) << 16
		tkhd.Height = uint32(t.schema.Height) << 16
	case KindAudio:
		tkhd.Volume = 0x0100
	}
	bw.box(tkhd)

	if elst := edits.elst(); elst != nil {
		bw.start(mp4.BoxTypeEdts())
		bw.box(elst)
		bw.end()
	}

	bw.start(mp4.BoxTypeMdia())

	mdhd := &mp4.Mdhd{
		FullBox:   fullBox(versionFor(mediaDuration), 0),
		Timescale: t.timescale,
		// "und", packed as three 5-bit letters
		Language: [3]byte{'u' - 0x60, 'n' - 0x60, 'd' - 0x60},
	}
	mdhd.DurationV0, mdhd.DurationV1 = splitDuration(mediaDuration)
	bw.box(mdhd)

	handlerType, name := t.schema.Kind.handler()
	bw.box(&mp4.Hdlr{
		HandlerType: handlerType,
		Name:        name,
	})

	bw.start(mp4.BoxTypeMinf())
	if t.schema.Kind == KindAudio {
		bw.box(&mp4.Smhd{})
	} else {
		bw.box(&mp4.Vmhd{FullBox: fullBox(0, 1)})
	}

	bw.start(mp4.BoxTypeDinf())
	bw.raw(drefBox)
	bw.end()

	writeStbl(bw, t)

	bw.end() // minf
	bw.end() // mdia
	bw.end() // trak
}

func writeStbl(bw *boxWriter, t *muxTrack) {
	bw.start(mp4.BoxTypeStbl())
	bw.raw(t.schema.SampleDescription)

	stts := &mp4.Stts{}
	for _, delta := range t.sampleDurations() {
		n := len(stts.Entries)
		if n > 0 && stts.Entries[n-1].SampleDelta == delta {
			stts.Entries[n-1].SampleCount++
			continue
		}
		stts.Entries = append(stts.Entries, mp4.SttsEntry{SampleCount: 1, SampleDelta: delta})
	}
	stts.EntryCount = uint32(len(stts.Entries))
	bw.box(stts)

	if ctts := t.ctts(); ctts != nil {
		bw.box(ctts)
	}

	if !t.allSync {
		bw.box(&mp4.Stss{
			EntryCount:   uint32(len(t.syncs)),
			SampleNumber: t.syncs,
		})
	}

	stsc := &mp4.Stsc{}
	for i, spc := range t.samplesPerChunk {
		n := len(stsc.Entries)
		if n > 0 && stsc.Entries[n-1].SamplesPerChunk == spc {
			continue
		}
		stsc.Entries = append(stsc.Entries, mp4.StscEntry{
			FirstChunk:             uint32(i + 1),
			SamplesPerChunk:        spc,
			SampleDescriptionIndex: 1,
		})
	}
	stsc.EntryCount = uint32(len(stsc.Entries))
	bw.box(stsc)

	bw.box(&mp4.Stsz{
		SampleCount: uint32(len(t.sizes)),
		EntrySize:   t.sizes,
	})

	if n := len(t.chunkOffsets); n > 0 && t.chunkOffsets[n-1] > math.MaxUint32 {
		co64 := &mp4.Co64{EntryCount: uint32(n), ChunkOffset: make([]uint64, n)}
		for i, o := range t.chunkOffsets {
			co64.ChunkOffset[i] = uint64(o)
		}
		bw.box(co64)
	} else {
		stco := &mp4.Stco{EntryCount: uint32(n), ChunkOffset: make([]uint32, n)}
		for i, o := range t.chunkOffsets {
			stco.ChunkOffset[i] = uint32(o)
		}
		bw.box(stco)
	}

	bw.end()
}

// trackEdits places the media of a track on the movie timeline.
// empty and segment are in movie timescale units, mediaTime in track units.
type trackEdits struct {
	empty     uint64
	segment   uint64
	mediaTime int64
}

// edits delays a track whose first sample does not start at zero with an empty edit, and skips
// MediaTime of the first source so encoder delay stays hidden.
func (t *muxTrack) edits(mediaDuration uint64) trackEdits {
	var lead int64
	if len(t.dts) > 0 {
		lead = max(t.dts[0], 0)
	}
	mediaTime := min(max(toUnits(t.schema.MediaTime, t.timescale), 0), int64(mediaDuration))

	return trackEdits{
		empty:     uint64(rescale(lead, int64(t.timescale), movieTimescale)),
		segment:   uint64(rescale(int64(mediaDuration)-mediaTime, int64(t.timescale), movieTimescale)),
		mediaTime: mediaTime,
	}
}

func (e trackEdits) trackDuration() uint64 {
	return e.empty + e.segment
}

// elst returns nil when the media maps onto the movie timeline unchanged.
func (e trackEdits) elst() *mp4.Elst {
	if e.empty == 0 && e.mediaTime == 0 {
		return nil
	}

	var version uint8
	if e.trackDuration() > math.MaxUint32 || e.mediaTime > math.MaxInt32 {
		version = 1
	}

	elst := &mp4.Elst{FullBox: fullBox(version, 0)}
	if e.empty > 0 {
		elst.Entries = append(elst.Entries, elstEntry(e.empty, -1))
	}
	elst.Entries = append(elst.Entries, elstEntry(e.segment, e.mediaTime))
	elst.EntryCount = uint32(len(elst.Entries))
	return elst
}

func elstEntry(segment uint64, mediaTime int64) mp4.ElstEntry {
	return mp4.ElstEntry{
		SegmentDurationV0: uint32(min(segment, math.MaxUint32)),
		MediaTimeV0:       int32(max(min(mediaTime, math.MaxInt32), math.MinInt32)),
		SegmentDurationV1: segment,
		MediaTimeV1:       mediaTime,
		MediaRateInteger:  1,
	}
}

// sampleDurations derives per-sample durations from decode timestamps.
// Decreasing timestamps are written as zero length samples, the muxer does not reorder.
func (t *muxTrack) sampleDurations() []uint32 {
	n := len(t.dts)
	deltas := make([]uint32, n)
	for i := 0; i < n-1; i++ {
		deltas[i] = clampDelta(t.dts[i+1] - t.dts[i])
	}
	if n > 0 {
		switch {
		case t.end > t.dts[n-1]:
			deltas[n-1] = clampDelta(t.end - t.dts[n-1])
		case n > 1:
			deltas[n-1] = deltas[n-2]
		}
	}
	return deltas
}

func (t *muxTrack) mediaDuration() uint64 {
	var total uint64
	for _, d := range t.sampleDurations() {
		total += uint64(d)
	}
	return total
}

func (t *muxTrack) ctts() *mp4.Ctts {
	needed := false
	negative := false
	for _, c := range t.cto {
		if c != 0 {
			needed = true
		}
		if c < 0 {
			negative = true
		}
	}
	if !needed {
		return nil
	}

	var version uint8
	if negative {
		version = 1
	}
	ctts := &mp4.Ctts{FullBox: fullBox(version, 0)}
	for _, c := range t.cto {
		offset := int32(max(min(c, math.MaxInt32), math.MinInt32))
		n := len(ctts.Entries)
		if n > 0 && ctts.Entries[n-1].SampleOffsetV1 == offset {
			ctts.Entries[n-1].SampleCount++
			continue
		}
		ctts.Entries = append(ctts.Entries, mp4.CttsEntry{
			SampleCount:    1,
			SampleOffsetV0: uint32(offset),
			SampleOffsetV1: offset,
		})
	}
	ctts.EntryCount = uint32(len(ctts.Entries))
	return ctts
}

func clampDelta(d int64) uint32 {
	if d < 0 {
		return 0
	}
	if d > math.MaxUint32 {
		return math.MaxUint32
	}
	return uint32(d)
}

func versionFor(duration uint64) uint8 {
	if duration > math.MaxUint32 {
		return 1
	}
	return 0
}

func splitDuration(duration uint64) (uint32, uint64) {
	if duration > math.MaxUint32 {
		return 0, duration
	}
	return uint32(duration), duration
}
