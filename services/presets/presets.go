package presets

import (
	"encoding/json"
	"math"
	"strconv"

	"github.com/ansel1/merry/v2"
	"github.com/bcc-code/bcc-media-joiner/utils"
	"github.com/orsinium-labs/enum"
	"github.com/samber/lo"
)

type Tier enum.Member[string]

//goland:noinspection GoMixedReceiverTypes
func (t Tier) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.Value)
}

//goland:noinspection GoMixedReceiverTypes
func (t *Tier) UnmarshalJSON(value []byte) error {
	var stringValue string
	err := json.Unmarshal(value, &stringValue)
	if err != nil {
		return err
	}
	if stringValue == "" {
		*t = Tier{}
		return nil
	}
	tier := Tiers.Parse(stringValue)
	if tier == nil {
		return merry.Wrap(ErrUnknownTier, merry.WithMessagef("unknown quality tier %q", stringValue))
	}
	*t = *tier
	return nil
}

var (
	TierLow    = Tier{Value: "low"}
	TierMedium = Tier{Value: "medium"}
	TierHigh   = Tier{Value: "high"}
	// Tiers are ordered from least to most compression.
	Tiers = enum.New(TierLow, TierMedium, TierHigh)

	ErrUnknownTier = merry.Sentinel("unknown quality tier")
)

// Preset holds the encoder settings of a tier.
type Preset struct {
	Tier         Tier
	CRF          int
	AudioBitrate string
	Label        string
	Description  string
	// SizeFactor is only used for estimates.
	SizeFactor float64
}

var presets = map[Tier]Preset{
	TierLow: {
		Tier:         TierLow,
		CRF:          18,
		AudioBitrate: "192k",
		Label:        "低圧縮 (高画質)",
		Description:  "ファイルサイズ大・高品質",
		SizeFactor:   1.0,
	},
	TierMedium: {
		Tier:         TierMedium,
		CRF:          23,
		AudioBitrate: "128k",
		Label:        "中圧縮 (バランス)",
		Description:  "画質とサイズのバランス",
		SizeFactor:   0.65,
	},
	TierHigh: {
		Tier:         TierHigh,
		CRF:          28,
		AudioBitrate: "96k",
		Label:        "高圧縮 (小ファイル)",
		Description:  "ファイルサイズ小・画質やや低下",
		SizeFactor:   0.35,
	},
}

func Get(tier Tier) (Preset, error) {
	p, ok := presets[tier]
	if !ok {
		return Preset{}, merry.Wrap(ErrUnknownTier, merry.WithMessagef("unknown quality tier %q", tier.Value))
	}
	return p, nil
}

// Parse looks a tier up by name.
func Parse(name string) (Tier, error) {
	tier := Tiers.Parse(name)
	if tier == nil {
		return Tier{}, merry.Wrap(ErrUnknownTier, merry.WithMessagef("unknown quality tier %q", name))
	}
	return *tier, nil
}

// All returns the presets in tier order.
func All() []Preset {
	return lo.Map(Tiers.Members(), func(t Tier, _ int) Preset {
		return presets[t]
	})
}

// AudioBitrateBits returns the audio bitrate in bits per second.
func (p Preset) AudioBitrateBits() int {
	v, _ := strconv.Atoi(p.AudioBitrate[:len(p.AudioBitrate)-1])
	return v * 1000
}

type SourceInfo struct {
	SizeBytes   int64
	DurationSec float64
}

// Estimate is an advisory guess of the transcoded output. A stream-copy join keeps size and quality unchanged.
type Estimate struct {
	Tier             Tier
	SizeBytes        int64
	SizeMB           float64
	TotalDurationSec float64
}

func EstimateOutput(sources []SourceInfo, tier Tier) (Estimate, error) {
	p, err := Get(tier)
	if err != nil {
		return Estimate{}, err
	}

	totalSize := lo.SumBy(sources, func(s SourceInfo) int64 { return s.SizeBytes })
	totalDuration := lo.SumBy(sources, func(s SourceInfo) float64 { return s.DurationSec })

	estimated := float64(totalSize) * p.SizeFactor
	return Estimate{
		Tier:             tier,
		SizeBytes:        int64(math.Round(estimated)),
		SizeMB:           utils.RoundTo(estimated/(1024*1024), 1),
		TotalDurationSec: totalDuration,
	}, nil
}
