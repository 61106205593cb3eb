package mp4

import (
	"time"

	"github.com/abema/go-mp4"
	"github.com/ansel1/merry/v2"
)

type sampleEntry struct {
	offset int64
	size   uint32
	// dts and cto are in track timescale units
	dts  int64
	cto  int64
	sync bool
}

// sampleTables holds the stbl children needed to locate samples.
type sampleTables struct {
	stts *mp4.Stts
	ctts *mp4.Ctts
	stss *mp4.Stss
	stsz *mp4.Stsz
	stsc *mp4.Stsc
	stco *mp4.Stco
	co64 *mp4.Co64
}

func (t *sampleTables) chunkOffsets() []int64 {
	switch {
	case t.co64 != nil:
		offsets := make([]int64, len(t.co64.ChunkOffset))
		for i, o := range t.co64.ChunkOffset {
			offsets[i] = int64(o)
		}
		return offsets
	case t.stco != nil:
		offsets := make([]int64, len(t.stco.ChunkOffset))
		for i, o := range t.stco.ChunkOffset {
			offsets[i] = int64(o)
		}
		return offsets
	}
	return nil
}

// capacity returns how many samples stts and stsc can place, whichever is smaller.
func (t *sampleTables) capacity(chunks int) uint64 {
	var timed uint64
	for _, entry := range t.stts.Entries {
		timed += uint64(entry.SampleCount)
	}

	var placed uint64
	for e, entry := range t.stsc.Entries {
		first := int(entry.FirstChunk)
		last := chunks
		if e+1 < len(t.stsc.Entries) {
			last = min(int(t.stsc.Entries[e+1].FirstChunk)-1, chunks)
		}
		if first < 1 || last < first {
			continue
		}
		placed += uint64(last-first+1) * uint64(entry.SamplesPerChunk)
	}

	return min(timed, placed)
}

// buildSamples flattens the sample tables into one entry per sample.
// The declared sample count must fit the other tables and the file size before anything is allocated.
func (t *sampleTables) buildSamples(fileSize int64) ([]sampleEntry, uint32, error) {
	if t.stsz == nil {
		return nil, 0, nil
	}
	count := int(t.stsz.SampleCount)
	if count == 0 {
		return nil, 0, nil
	}
	if t.stts == nil || t.stsc == nil {
		return nil, 0, merry.Wrap(ErrSourceOpen, merry.WithMessage("sample table is incomplete"))
	}
	chunks := t.chunkOffsets()
	if len(chunks) == 0 {
		return nil, 0, merry.Wrap(ErrSourceOpen, merry.WithMessage("sample table has no chunk offsets"))
	}
	if t.stsz.SampleSize == 0 && len(t.stsz.EntrySize) < count {
		return nil, 0, merry.Wrap(ErrSourceOpen, merry.WithMessage("sample size table is truncated"))
	}
	if capacity := t.capacity(len(chunks)); uint64(count) > capacity {
		return nil, 0, merry.Wrap(ErrSourceOpen, merry.WithMessagef("sample count %d exceeds the %d samples the tables describe", count, capacity))
	}
	if t.stsz.SampleSize > 0 && uint64(count)*uint64(t.stsz.SampleSize) > uint64(max(fileSize, 0)) {
		return nil, 0, merry.Wrap(ErrSourceOpen, merry.WithMessagef("%d samples of %d bytes do not fit in the file", count, t.stsz.SampleSize))
	}

	samples := make([]sampleEntry, count)
	var maxSize uint32
	for i := range samples {
		size := t.stsz.SampleSize
		if size == 0 {
			size = t.stsz.EntrySize[i]
		}
		samples[i].size = size
		samples[i].sync = t.stss == nil
		if size > maxSize {
			maxSize = size
		}
	}

	// offsets from stsc runs
	n := 0
	for e, entry := range t.stsc.Entries {
		if entry.FirstChunk == 0 {
			return nil, 0, merry.Wrap(ErrSourceOpen, merry.WithMessage("invalid sample-to-chunk entry"))
		}
		last := len(chunks)
		if e+1 < len(t.stsc.Entries) {
			last = int(t.stsc.Entries[e+1].FirstChunk) - 1
		}
		for chunk := int(entry.FirstChunk); chunk <= last && chunk <= len(chunks) && n < count; chunk++ {
			offset := chunks[chunk-1]
			for s := uint32(0); s < entry.SamplesPerChunk && n < count; s++ {
				samples[n].offset = offset
				offset += int64(samples[n].size)
				n++
			}
		}
	}
	if n < count {
		samples = samples[:n]
	}

	// decode times from stts runs
	var dts int64
	n = 0
	for _, entry := range t.stts.Entries {
		for s := uint32(0); s < entry.SampleCount && n < len(samples); s++ {
			samples[n].dts = dts
			dts += int64(entry.SampleDelta)
			n++
		}
	}
	if n < len(samples) {
		samples = samples[:n]
	}

	if t.ctts != nil {
		n = 0
		for _, entry := range t.ctts.Entries {
			// version 0 offsets are commonly written signed as well
			offset := int64(int32(entry.SampleOffsetV0))
			if t.ctts.GetVersion() == 1 {
				offset = int64(entry.SampleOffsetV1)
			}
			for s := uint32(0); s < entry.SampleCount && n < len(samples); s++ {
				samples[n].cto = offset
				n++
			}
		}
	}

	if t.stss != nil {
		for _, number := range t.stss.SampleNumber {
			if number >= 1 && int(number) <= len(samples) {
				samples[number-1].sync = true
			}
		}
	}

	return samples, maxSize, nil
}

// toDuration converts timescale units to a duration, rounding to the nearest nanosecond.
func toDuration(v int64, timescale uint32) time.Duration {
	if timescale == 0 {
		return 0
	}
	return time.Duration(rescale(v, int64(timescale), int64(time.Second)))
}

// toUnits converts a duration to timescale units, rounding to the nearest unit.
func toUnits(d time.Duration, timescale uint32) int64 {
	return rescale(int64(d), int64(time.Second), int64(timescale))
}

// rescale computes v*to/from rounded to nearest without overflowing for realistic media lengths.
func rescale(v, from, to int64) int64 {
	if v < 0 {
		return -rescale(-v, from, to)
	}
	whole := v / from
	rem := v % from
	return whole*to + (rem*to+from/2)/from
}
