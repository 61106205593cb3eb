package joiner

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"github.com/ansel1/merry/v2"
	"github.com/bcc-code/bcc-media-joiner/environment"
	"github.com/bcc-code/bcc-media-joiner/services/presets"
	"github.com/bcc-code/bcc-media-joiner/services/rebase"
	"github.com/bcc-code/bcc-media-joiner/utils"
	"github.com/google/uuid"
	"go.temporal.io/sdk/log"
)

type Config struct {
	Strategy StrategyKind `json:"strategy"`
	// Tier is used by the transcode strategy. Defaults to medium.
	Tier presets.Tier `json:"tier"`
	// Output defaults to a timestamped file in the temp directory.
	Output string `json:"output"`

	FramePeriods *rebase.FramePeriods `json:"-"`
	FFmpegPath   string               `json:"-"`
	Logger       log.Logger           `json:"-"`
	// Implementation replaces the strategy selected by Strategy.
	Implementation Strategy `json:"-"`
}

// NewStrategy returns the implementation for config.Strategy. The zero value selects stream copy.
func NewStrategy(config Config) (Strategy, error) {
	if config.Implementation != nil {
		return config.Implementation, nil
	}

	switch config.Strategy {
	case StrategyCopy, StrategyKind{}:
		return &CopyStrategy{
			Periods: config.FramePeriods,
			Logger:  config.Logger,
		}, nil
	case StrategyTranscode:
		tier := config.Tier
		if tier == (presets.Tier{}) {
			tier = presets.TierMedium
		}
		if _, err := presets.Get(tier); err != nil {
			return nil, err
		}
		return &TranscodeStrategy{
			Tier:       tier,
			FFmpegPath: config.FFmpegPath,
		}, nil
	}
	return nil, merry.Wrap(ErrValidation, merry.WithMessagef("unknown join strategy %q", config.Strategy.Value))
}

// Job is a handle on one running join.
type Job struct {
	ID       string
	Output   string
	Strategy StrategyKind

	logger     log.Logger
	onProgress ProgressFunc
	cancel     context.CancelFunc
	started    time.Time
	done       chan struct{}

	mu        sync.Mutex
	progress  Progress
	cancelled bool
	err       error
}

// Start validates the sources and runs the join in the background.
// Validation errors are returned before any file is opened or created.
func Start(ctx context.Context, uris []string, config Config, onProgress ProgressFunc) (*Job, error) {
	sources, err := ParseSources(uris)
	if err != nil {
		return nil, err
	}

	strategy, err := NewStrategy(config)
	if err != nil {
		return nil, err
	}

	output := config.Output
	if output == "" {
		output = filepath.Join(environment.GetTempMountPrefix(), OutputFilename(time.Now()))
	}

	logger := config.Logger
	if logger == nil {
		logger = utils.NopLogger()
	}

	ctx, cancel := context.WithCancel(ctx)
	j := &Job{
		ID:         uuid.NewString(),
		Output:     output,
		Strategy:   strategy.Kind(),
		onProgress: onProgress,
		cancel:     cancel,
		started:    time.Now(),
		done:       make(chan struct{}),
	}
	j.logger = log.With(logger, "job", j.ID)

	j.logger.Info("Join started", "strategy", j.Strategy.Value, "sources", len(sources), "output", output)
	j.report(Progress{IsRunning: true})

	go j.run(ctx, strategy, sources)

	return j, nil
}

// Join runs a join to completion.
func Join(ctx context.Context, uris []string, config Config, onProgress ProgressFunc) (string, error) {
	j, err := Start(ctx, uris, config, onProgress)
	if err != nil {
		return "", err
	}
	return j.Wait()
}

func (j *Job) run(ctx context.Context, strategy Strategy, sources []Source) {
	defer close(j.done)
	defer j.cancel()

	err := strategy.Join(ctx, sources, j.Output, j.report)
	if err == nil {
		j.report(Progress{Percent: 100})
		j.logger.Info("Join finished", "elapsed", time.Since(j.started).String())
		return
	}

	j.mu.Lock()
	j.err = err
	j.progress.IsRunning = false
	j.mu.Unlock()

	j.logger.Error("Join failed", "error", err.Error())
}

// report stores the snapshot and forwards it. Reports after a cancel are dropped.
func (j *Job) report(p Progress) {
	j.mu.Lock()
	if j.cancelled {
		j.mu.Unlock()
		return
	}
	p.Percent = max(p.Percent, j.progress.Percent)
	p.ElapsedTimeMs = time.Since(j.started).Milliseconds()
	j.progress = p
	j.mu.Unlock()

	if j.onProgress != nil {
		j.onProgress(p)
	}
}

// Progress returns the latest snapshot. A cancelled job reports the zero value.
func (j *Job) Progress() Progress {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.progress
}

// Cancel asks the join to stop. A stream copy cannot be interrupted, so the request is accepted and ignored.
func (j *Job) Cancel() {
	if j.Strategy == StrategyCopy {
		j.logger.Debug("Cancel ignored for stream copy")
		return
	}

	j.mu.Lock()
	j.cancelled = true
	j.progress = Progress{}
	j.mu.Unlock()

	j.logger.Info("Join cancelled")
	j.cancel()
}

func (j *Job) Done() <-chan struct{} {
	return j.done
}

// Wait blocks until the join ends and returns the output path.
func (j *Job) Wait() (string, error) {
	<-j.done

	j.mu.Lock()
	defer j.mu.Unlock()
	if j.err != nil {
		return "", j.err
	}
	return j.Output, nil
}
