package joiner

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/bcc-code/bcc-media-joiner/services/mp4"
	"github.com/bcc-code/bcc-media-joiner/services/rebase"
	"github.com/bcc-code/bcc-media-joiner/utils"
	mapset "github.com/deckarep/golang-set/v2"
	"go.temporal.io/sdk/log"
)

// copyPercentBeforeFinalize is the share of progress given to copying; the rest covers finalizing.
const copyPercentBeforeFinalize = 95.0

// CopyStrategy joins by copying compressed samples, re-timed onto one timeline.
// Track schemas come from the first source; later sources are assumed to match.
type CopyStrategy struct {
	// Periods defaults to rebase.DefaultFramePeriods().
	Periods *rebase.FramePeriods
	Logger  log.Logger
}

func (s *CopyStrategy) Kind() StrategyKind {
	return StrategyCopy
}

// copyJob is the state of one copy join.
type copyJob struct {
	logger     log.Logger
	muxer      *mp4.Muxer
	clock      *rebase.Clock
	handles    map[mp4.TrackKind]mp4.TrackHandle
	registered mapset.Set[mp4.TrackKind]
	buf        []byte
}

// Join has no point where it could stop early, so ctx is not observed.
func (s *CopyStrategy) Join(_ context.Context, sources []Source, output string, report ProgressFunc) (err error) {
	periods := rebase.DefaultFramePeriods()
	if s.Periods != nil {
		periods = *s.Periods
	}
	logger := s.Logger
	if logger == nil {
		logger = utils.NopLogger()
	}

	job := &copyJob{
		logger:     logger,
		muxer:      mp4.NewMuxer(output),
		clock:      rebase.NewClock(periods),
		handles:    map[mp4.TrackKind]mp4.TrackHandle{},
		registered: mapset.NewSet[mp4.TrackKind](),
	}

	defer func() {
		// Finalize is a no-op when it already ran on the success path
		if job.muxer.Started() {
			if finalizeErr := job.muxer.Finalize(); finalizeErr != nil && err == nil {
				err = finalizeErr
			}
		}
	}()

	for i, source := range sources {
		err = job.copySource(i, source)
		if err != nil {
			return err
		}
		if report != nil {
			report(Progress{
				Percent:   copyPercentBeforeFinalize * float64(i+1) / float64(len(sources)),
				IsRunning: true,
			})
		}
	}

	for kind, handle := range job.handles {
		job.muxer.SetEnd(handle, job.clock.Offset(kind))
	}

	logger.Debug("Finalizing joined file", "output", output)
	return job.muxer.Finalize()
}

func (j *copyJob) copySource(index int, source Source) error {
	extractor, err := mp4.Open(source.Path)
	if err != nil {
		return err
	}
	defer extractor.Close()

	if index == 0 {
		err = j.begin(extractor)
		if err != nil {
			return err
		}
	}

	for _, kind := range mp4.JoinableKinds {
		if !j.registered.Contains(kind) {
			continue
		}
		trackIndex, ok := extractor.TrackOf(kind)
		if !ok {
			j.logger.Info("Source has no track of kind, clock stays", "source", source.URI, "kind", kind.Value)
			continue
		}

		err = j.copyTrack(extractor, trackIndex, kind)
		if err != nil {
			return err
		}
	}
	return nil
}

// begin registers the tracks of the first source and opens the output.
func (j *copyJob) begin(extractor *mp4.Extractor) error {
	for _, kind := range mp4.JoinableKinds {
		trackIndex, ok := extractor.TrackOf(kind)
		if !ok {
			continue
		}
		handle, err := j.muxer.RegisterSchema(kind, extractor.Tracks()[trackIndex].Schema)
		if err != nil {
			return err
		}
		j.handles[kind] = handle
		j.registered.Add(kind)
	}
	return j.muxer.Begin()
}

func (j *copyJob) copyTrack(extractor *mp4.Extractor, trackIndex int, kind mp4.TrackKind) error {
	cursor, err := extractor.Cursor(trackIndex)
	if err != nil {
		return err
	}

	if size := cursor.Track().MaxSampleSize(); cap(j.buf) < size {
		j.buf = make([]byte, size)
	}

	handle := j.handles[kind]
	offset := j.clock.Offset(kind)

	var maxRebased time.Duration
	count := 0
	for {
		sample, err := cursor.Next(j.buf)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return err
		}

		sample = rebase.Rebase(sample, offset)
		err = j.muxer.WriteSample(handle, sample)
		if err != nil {
			return err
		}

		if count == 0 || sample.PTS > maxRebased {
			maxRebased = sample.PTS
		}
		count++
	}

	increment, policy := j.clock.Advance(kind, extractor.DurationOf(trackIndex), maxRebased, count > 0)
	j.logger.Debug("Track copied",
		"source", extractor.Path(),
		"kind", kind.Value,
		"samples", count,
		"offset", offset,
		"increment", increment,
		"policy", policy.String(),
	)
	return nil
}
