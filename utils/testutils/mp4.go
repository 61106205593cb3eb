package testutils

import (
	"encoding/binary"
	"os"
	"path/filepath"

	"github.com/abema/go-mp4"
	"github.com/bluenviron/mediacommon/v2/pkg/formats/fmp4/seekablebuffer"
)

type VideoTrackParams struct {
	Width     int
	Height    int
	Timescale uint32
	Frames    int
	// FrameDuration in timescale units
	FrameDuration uint32
	// GOP is the distance between sync samples
	GOP int
	// Reordered writes composition offsets as produced by encoders using B-frames
	Reordered bool
	// OmitDuration leaves the media header duration at 0
	OmitDuration bool
}

type AudioTrackParams struct {
	SampleRate    int
	Channels      int
	Frames        int
	FrameDuration uint32
	OmitDuration  bool
}

type MP4Params struct {
	Video           *VideoTrackParams
	Audio           *AudioTrackParams
	MoovFirst       bool
	SamplesPerChunk int
}

// DefaultVideo is one second of 30 fps 320x240 H.264.
func DefaultVideo() *VideoTrackParams {
	return &VideoTrackParams{
		Width:         320,
		Height:        240,
		Timescale:     90000,
		Frames:        30,
		FrameDuration: 3000,
		GOP:           10,
	}
}

// DefaultAudio is about one second of 44.1kHz stereo AAC frames.
func DefaultAudio() *AudioTrackParams {
	return &AudioTrackParams{
		SampleRate:    44100,
		Channels:      2,
		Frames:        43,
		FrameDuration: 1024,
	}
}

type fixtureTrack struct {
	id        uint32
	video     bool
	timescale uint32
	duration  uint64
	stsd      []byte
	width     int
	height    int

	sizes   []uint32
	deltas  []uint32
	cto     []uint32
	syncs   []uint32
	allSync bool
	payload [][]byte

	chunks []int // first sample index of each chunk
	offset []uint64
}

// VideoSamplePayload is the payload written for video sample i. Tests compare output payloads against it.
func VideoSamplePayload(i int) []byte {
	return samplePayload('V', i, 200+(i%7)*13)
}

// AudioSamplePayload is the payload written for audio sample i.
func AudioSamplePayload(i int) []byte {
	return samplePayload('A', i, 60+(i%5)*7)
}

func samplePayload(tag byte, i int, size int) []byte {
	p := make([]byte, size)
	p[0] = tag
	binary.BigEndian.PutUint32(p[1:], uint32(i))
	for j := 5; j < size; j++ {
		p[j] = byte(i + j)
	}
	return p
}

// GenerateMP4File writes a progressive mp4 with synthetic samples. No encoder is involved,
// the payloads are not decodable but the container structure is complete.
func GenerateMP4File(path string, params MP4Params) string {
	_ = os.MkdirAll(filepath.Dir(path), 0755)

	if params.SamplesPerChunk <= 0 {
		params.SamplesPerChunk = 5
	}

	var tracks []*fixtureTrack
	if params.Video != nil {
		tracks = append(tracks, videoFixture(uint32(len(tracks)+1), params.Video))
	}
	if params.Audio != nil {
		tracks = append(tracks, audioFixture(uint32(len(tracks)+1), params.Audio))
	}

	// interleave chunks: one chunk of every track in turn
	type chunkRef struct {
		track *fixtureTrack
		first int
	}
	var order []chunkRef
	for more := true; more; {
		more = false
		for _, t := range tracks {
			next := len(t.chunks) * params.SamplesPerChunk
			if next < len(t.sizes) {
				t.chunks = append(t.chunks, next)
				order = append(order, chunkRef{t, next})
				more = true
			}
		}
	}

	ftyp := marshalBox(&mp4.Ftyp{
		MajorBrand:   [4]byte{'i', 's', 'o', 'm'},
		MinorVersion: 512,
		CompatibleBrands: []mp4.CompatibleBrandElem{
			{CompatibleBrand: [4]byte{'i', 's', 'o', 'm'}},
			{CompatibleBrand: [4]byte{'m', 'p', '4', '1'}},
		},
	})

	layout := func(base uint64) {
		offset := base
		for _, c := range order {
			c.track.offset = append(c.track.offset, offset)
			for s := c.first; s < c.first+params.SamplesPerChunk && s < len(c.track.sizes); s++ {
				offset += uint64(c.track.sizes[s])
			}
		}
	}
	resetOffsets := func() {
		for _, t := range tracks {
			t.offset = nil
		}
	}

	var moov []byte
	if params.MoovFirst {
		layout(0)
		size := uint64(len(buildMoov(tracks)))
		resetOffsets()
		layout(uint64(len(ftyp)) + size + 8)
		moov = buildMoov(tracks)
	} else {
		layout(uint64(len(ftyp)) + 8)
		moov = buildMoov(tracks)
	}

	var mdat []byte
	for _, c := range order {
		for s := c.first; s < c.first+params.SamplesPerChunk && s < len(c.track.sizes); s++ {
			mdat = append(mdat, c.track.payload[s]...)
		}
	}
	mdatHeader := make([]byte, 8)
	binary.BigEndian.PutUint32(mdatHeader, uint32(len(mdat)+8))
	copy(mdatHeader[4:], "mdat")

	var out []byte
	out = append(out, ftyp...)
	if params.MoovFirst {
		out = append(out, moov...)
		out = append(out, mdatHeader...)
		out = append(out, mdat...)
	} else {
		out = append(out, mdatHeader...)
		out = append(out, mdat...)
		out = append(out, moov...)
	}

	if err := os.WriteFile(path, out, 0644); err != nil {
		panic(err)
	}
	return path
}

// GenerateGarbageFile writes bytes that are not an mp4 container.
func GenerateGarbageFile(path string) string {
	_ = os.MkdirAll(filepath.Dir(path), 0755)
	if err := os.WriteFile(path, []byte("this is certainly not a movie"), 0644); err != nil {
		panic(err)
	}
	return path
}

func videoFixture(id uint32, p *VideoTrackParams) *fixtureTrack {
	t := &fixtureTrack{
		id:        id,
		video:     true,
		timescale: p.Timescale,
		width:     p.Width,
		height:    p.Height,
		stsd:      videoSampleDescription(p.Width, p.Height),
	}
	gop := p.GOP
	if gop <= 0 {
		gop = 1
	}
	for i := 0; i < p.Frames; i++ {
		payload := VideoSamplePayload(i)
		t.payload = append(t.payload, payload)
		t.sizes = append(t.sizes, uint32(len(payload)))
		t.deltas = append(t.deltas, p.FrameDuration)
		if i%gop == 0 {
			t.syncs = append(t.syncs, uint32(i+1))
		}
		if p.Reordered {
			// I P B pattern: display delayed by one frame for references
			cto := p.FrameDuration
			if i%3 == 2 {
				cto = 0
			}
			t.cto = append(t.cto, cto)
		}
	}
	if !p.OmitDuration {
		t.duration = uint64(p.Frames) * uint64(p.FrameDuration)
	}
	return t
}

func audioFixture(id uint32, p *AudioTrackParams) *fixtureTrack {
	t := &fixtureTrack{
		id:        id,
		timescale: uint32(p.SampleRate),
		stsd:      audioSampleDescription(p.Channels, p.SampleRate),
		allSync:   true,
	}
	for i := 0; i < p.Frames; i++ {
		payload := AudioSamplePayload(i)
		t.payload = append(t.payload, payload)
		t.sizes = append(t.sizes, uint32(len(payload)))
		t.deltas = append(t.deltas, p.FrameDuration)
	}
	if !p.OmitDuration {
		t.duration = uint64(p.Frames) * uint64(p.FrameDuration)
	}
	return t
}

func marshalBox(box mp4.IImmutableBox) []byte {
	var buf seekablebuffer.Buffer
	w := mp4.NewWriter(&buf)
	must(w.StartBox(&mp4.BoxInfo{Type: box.GetType()}))
	must(mp4.Marshal(w, box, mp4.Context{}))
	must(w.EndBox())
	return buf.Bytes()
}

func must[T any](_ T, err error) {
	if err != nil {
		panic(err)
	}
}

func buildMoov(tracks []*fixtureTrack) []byte {
	var buf seekablebuffer.Buffer
	w := mp4.NewWriter(&buf)
	ctx := mp4.Context{}

	start := func(t mp4.BoxType) { must(w.StartBox(&mp4.BoxInfo{Type: t})) }
	end := func() { must(w.EndBox()) }
	box := func(b mp4.IImmutableBox) {
		start(b.GetType())
		must(mp4.Marshal(w, b, ctx))
		end()
	}
	raw := func(p []byte) { must(w.Write(p)) }

	start(mp4.BoxTypeMoov())
	box(&mp4.Mvhd{
		Timescale:   1000,
		Rate:        0x00010000,
		Volume:      0x0100,
		Matrix:      [9]int32{0x00010000, 0, 0, 0, 0x00010000, 0, 0, 0, 0x40000000},
		NextTrackID: uint32(len(tracks) + 1),
	})

	for _, t := range tracks {
		start(mp4.BoxTypeTrak())
		tkhd := &mp4.Tkhd{
			FullBox: mp4.FullBox{Flags: [3]byte{0, 0, 3}},
			TrackID: t.id,
		}
		if t.video {
			tkhd.Width = uint32(t.width) << 16
			tkhd.Height = uint32(t.height) << 16
		}
		box(tkhd)

		start(mp4.BoxTypeMdia())
		box(&mp4.Mdhd{
			Timescale:  t.timescale,
			DurationV0: uint32(t.duration),
			Language:   [3]byte{'u' - 0x60, 'n' - 0x60, 'd' - 0x60},
		})
		if t.video {
			box(&mp4.Hdlr{HandlerType: [4]byte{'v', 'i', 'd', 'e'}, Name: "VideoHandler"})
		} else {
			box(&mp4.Hdlr{HandlerType: [4]byte{'s', 'o', 'u', 'n'}, Name: "SoundHandler"})
		}

		start(mp4.BoxTypeMinf())
		start(mp4.BoxTypeStbl())
		raw(t.stsd)

		stts := &mp4.Stts{}
		for _, d := range t.deltas {
			n := len(stts.Entries)
			if n > 0 && stts.Entries[n-1].SampleDelta == d {
				stts.Entries[n-1].SampleCount++
				continue
			}
			stts.Entries = append(stts.Entries, mp4.SttsEntry{SampleCount: 1, SampleDelta: d})
		}
		stts.EntryCount = uint32(len(stts.Entries))
		box(stts)

		if len(t.cto) > 0 {
			ctts := &mp4.Ctts{}
			for _, c := range t.cto {
				ctts.Entries = append(ctts.Entries, mp4.CttsEntry{SampleCount: 1, SampleOffsetV0: c})
			}
			ctts.EntryCount = uint32(len(ctts.Entries))
			box(ctts)
		}

		if !t.allSync {
			box(&mp4.Stss{EntryCount: uint32(len(t.syncs)), SampleNumber: t.syncs})
		}

		stsc := &mp4.Stsc{}
		for i, first := range t.chunks {
			count := len(t.sizes) - first
			if i+1 < len(t.chunks) {
				count = t.chunks[i+1] - first
			}
			n := len(stsc.Entries)
			if n > 0 && stsc.Entries[n-1].SamplesPerChunk == uint32(count) {
				continue
			}
			stsc.Entries = append(stsc.Entries, mp4.StscEntry{
				FirstChunk:             uint32(i + 1),
				SamplesPerChunk:        uint32(count),
				SampleDescriptionIndex: 1,
			})
		}
		stsc.EntryCount = uint32(len(stsc.Entries))
		box(stsc)

		box(&mp4.Stsz{SampleCount: uint32(len(t.sizes)), EntrySize: t.sizes})

		stco := &mp4.Stco{EntryCount: uint32(len(t.offset))}
		for _, o := range t.offset {
			stco.ChunkOffset = append(stco.ChunkOffset, uint32(o))
		}
		box(stco)

		end() // stbl
		end() // minf
		end() // mdia
		end() // trak
	}
	end() // moov

	return buf.Bytes()
}

func videoSampleDescription(width, height int) []byte {
	sps := BaselineSPS(width, height)
	pps := []byte{0x68, 0xce, 0x38, 0x80}

	avcC := []byte{1, sps[1], sps[2], sps[3], 0xff, 0xe1}
	avcC = binary.BigEndian.AppendUint16(avcC, uint16(len(sps)))
	avcC = append(avcC, sps...)
	avcC = append(avcC, 1)
	avcC = binary.BigEndian.AppendUint16(avcC, uint16(len(pps)))
	avcC = append(avcC, pps...)

	entry := make([]byte, 78)
	binary.BigEndian.PutUint16(entry[6:], 1) // data reference index
	binary.BigEndian.PutUint16(entry[24:], uint16(width))
	binary.BigEndian.PutUint16(entry[26:], uint16(height))
	binary.BigEndian.PutUint32(entry[28:], 0x00480000)
	binary.BigEndian.PutUint32(entry[32:], 0x00480000)
	binary.BigEndian.PutUint16(entry[40:], 1) // frame count
	binary.BigEndian.PutUint16(entry[74:], 0x0018)
	binary.BigEndian.PutUint16(entry[76:], 0xffff)
	entry = append(entry, box("avcC", avcC)...)

	return stsd(box("avc1", entry))
}

func audioSampleDescription(channels, sampleRate int) []byte {
	entry := make([]byte, 28)
	binary.BigEndian.PutUint16(entry[6:], 1) // data reference index
	binary.BigEndian.PutUint16(entry[16:], uint16(channels))
	binary.BigEndian.PutUint16(entry[18:], 16)
	binary.BigEndian.PutUint32(entry[24:], uint32(sampleRate)<<16)
	return stsd(box("mp4a", entry))
}

func stsd(entry []byte) []byte {
	payload := make([]byte, 8)
	binary.BigEndian.PutUint32(payload[4:], 1)
	return box("stsd", append(payload, entry...))
}

func box(typ string, payload []byte) []byte {
	b := make([]byte, 8, 8+len(payload))
	binary.BigEndian.PutUint32(b, uint32(8+len(payload)))
	copy(b[4:], typ)
	return append(b, payload...)
}

// BaselineSPS encodes a minimal H.264 baseline sequence parameter set for the given size.
// Width and height must be multiples of 16.
func BaselineSPS(width, height int) []byte {
	var w bitWriter
	w.bits(66, 8)   // profile_idc
	w.bits(0xc0, 8) // constraint_set0 and 1
	w.bits(30, 8)   // level_idc
	w.ue(0)         // seq_parameter_set_id
	w.ue(0)         // log2_max_frame_num_minus4
	w.ue(2)         // pic_order_cnt_type
	w.ue(1)         // max_num_ref_frames
	w.bits(0, 1)    // gaps_in_frame_num_value_allowed_flag
	w.ue(uint32(width/16 - 1))
	w.ue(uint32(height/16 - 1))
	w.bits(1, 1) // frame_mbs_only_flag
	w.bits(1, 1) // direct_8x8_inference_flag
	w.bits(0, 1) // frame_cropping_flag
	w.bits(0, 1) // vui_parameters_present_flag
	w.bits(1, 1) // rbsp_stop_one_bit
	return append([]byte{0x67}, escapeRBSP(w.bytes())...)
}

type bitWriter struct {
	buf  []byte
	used int
}

func (w *bitWriter) bits(v uint32, n int) {
	for i := n - 1; i >= 0; i-- {
		if w.used%8 == 0 {
			w.buf = append(w.buf, 0)
		}
		if v>>uint(i)&1 == 1 {
			w.buf[len(w.buf)-1] |= 1 << uint(7-w.used%8)
		}
		w.used++
	}
}

// ue writes an unsigned exp-Golomb code.
func (w *bitWriter) ue(v uint32) {
	v++
	n := 0
	for x := v; x > 1; x >>= 1 {
		n++
	}
	w.bits(0, n)
	w.bits(v, n+1)
}

func (w *bitWriter) bytes() []byte {
	return w.buf
}

func escapeRBSP(rbsp []byte) []byte {
	out := make([]byte, 0, len(rbsp)+4)
	zeros := 0
	for _, b := range rbsp {
		if zeros == 2 && b <= 3 {
			out = append(out, 3)
			zeros = 0
		}
		out = append(out, b)
		if b == 0 {
			zeros++
		} else {
			zeros = 0
		}
	}
	return out
}
