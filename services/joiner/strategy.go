package joiner

import (
	"context"
	"encoding/json"

	"github.com/ansel1/merry/v2"
	"github.com/orsinium-labs/enum"
)

type StrategyKind enum.Member[string]

//goland:noinspection GoMixedReceiverTypes
func (s StrategyKind) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Value)
}

//goland:noinspection GoMixedReceiverTypes
func (s *StrategyKind) UnmarshalJSON(value []byte) error {
	var stringValue string
	err := json.Unmarshal(value, &stringValue)
	if err != nil {
		return err
	}
	if stringValue == "" {
		*s = StrategyCopy
		return nil
	}
	strategy := Strategies.Parse(stringValue)
	if strategy == nil {
		return merry.Wrap(ErrValidation, merry.WithMessagef("unknown join strategy %q", stringValue))
	}
	*s = *strategy
	return nil
}

//goland:noinspection GoMixedReceiverTypes
func (s StrategyKind) String() string {
	return s.Value
}

var (
	// StrategyCopy copies compressed samples. All sources must share codec parameters.
	StrategyCopy = StrategyKind{Value: "copy"}
	// StrategyTranscode re-encodes every source with ffmpeg.
	StrategyTranscode = StrategyKind{Value: "transcode"}
	Strategies        = enum.New(StrategyCopy, StrategyTranscode)
)

// Progress of a running join. Percent never decreases; failures are reported as errors only.
type Progress struct {
	Percent       float64 `json:"percent"`
	ElapsedTimeMs int64   `json:"elapsedTimeMs"`
	SpeedRatio    float64 `json:"speedRatio"`
	IsRunning     bool    `json:"isRunning"`
}

type ProgressFunc func(Progress)

//go:generate mockgen -source=strategy.go -destination=mock_strategy_test.go -package=joiner

// Strategy joins the sources into output. Implementations report Percent and SpeedRatio; the Job fills in the rest.
type Strategy interface {
	Kind() StrategyKind
	Join(ctx context.Context, sources []Source, output string, report ProgressFunc) error
}
