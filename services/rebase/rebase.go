// Package rebase shifts sample timestamps so that consecutive sources play back as one timeline.
//
// Every track kind has its own running clock. Samples of a source are shifted by the clock
// of their kind, and the clock advances only after the whole track of that source was copied:
// by the duration the source declares, or, when it declares none, to one frame period after
// the last timestamp the source actually produced.
package rebase

import (
	"time"

	"github.com/bcc-code/bcc-media-joiner/environment"
	"github.com/bcc-code/bcc-media-joiner/services/mp4"
)

type Policy int

const (
	// PolicyDeclared advances by the duration declared in the container.
	PolicyDeclared Policy = iota
	// PolicyInferred advances past the last observed sample by one frame period.
	PolicyInferred
)

func (p Policy) String() string {
	if p == PolicyInferred {
		return "inferred"
	}
	return "declared"
}

// FramePeriods are the cadences assumed when a track declares no duration.
type FramePeriods struct {
	Video time.Duration
	Audio time.Duration
}

func DefaultFramePeriods() FramePeriods {
	return FramePeriods{
		Video: environment.GetVideoFramePeriod(),
		Audio: environment.GetAudioFramePeriod(),
	}
}

func (p FramePeriods) Of(kind mp4.TrackKind) time.Duration {
	switch kind {
	case mp4.KindVideo:
		return p.Video
	case mp4.KindAudio:
		return p.Audio
	}
	return 0
}

// OffsetAfter returns how far the clock of a track kind moves after one source.
// maxObserved is the largest timestamp the source produced for the track, relative to the source start.
func OffsetAfter(periods FramePeriods, kind mp4.TrackKind, declared, maxObserved time.Duration) (time.Duration, Policy) {
	if declared > 0 {
		return declared, PolicyDeclared
	}
	return maxObserved + periods.Of(kind), PolicyInferred
}

// Rebase shifts the sample timestamps by offset. Everything else passes through.
func Rebase(sample mp4.Sample, offset time.Duration) mp4.Sample {
	sample.PTS += offset
	sample.DTS += offset
	return sample
}

// Clock holds the running offset per track kind for a single join.
type Clock struct {
	periods FramePeriods
	offsets map[mp4.TrackKind]time.Duration
}

func NewClock(periods FramePeriods) *Clock {
	return &Clock{
		periods: periods,
		offsets: map[mp4.TrackKind]time.Duration{},
	}
}

// Offset is where the next source starts on the track.
func (c *Clock) Offset(kind mp4.TrackKind) time.Duration {
	return c.offsets[kind]
}

// Advance moves the clock after a source's track was drained. maxRebased is the largest re-based
// timestamp written for the source, so the inferred branch continues right after it.
// A track without samples and without a declared duration leaves the clock where it is.
func (c *Clock) Advance(kind mp4.TrackKind, declared time.Duration, maxRebased time.Duration, sampled bool) (time.Duration, Policy) {
	offset := c.offsets[kind]
	if declared <= 0 && !sampled {
		return 0, PolicyInferred
	}
	increment, policy := OffsetAfter(c.periods, kind, declared, maxRebased-offset)
	c.offsets[kind] = offset + increment
	return increment, policy
}
