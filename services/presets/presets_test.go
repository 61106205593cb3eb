package presets

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_Table(t *testing.T) {
	all := All()
	require.Len(t, all, 3)

	assert.Equal(t, TierLow, all[0].Tier)
	assert.Equal(t, 18, all[0].CRF)
	assert.Equal(t, "192k", all[0].AudioBitrate)
	assert.Equal(t, 1.0, all[0].SizeFactor)

	assert.Equal(t, TierMedium, all[1].Tier)
	assert.Equal(t, 23, all[1].CRF)
	assert.Equal(t, "128k", all[1].AudioBitrate)
	assert.Equal(t, 0.65, all[1].SizeFactor)

	assert.Equal(t, TierHigh, all[2].Tier)
	assert.Equal(t, 28, all[2].CRF)
	assert.Equal(t, "96k", all[2].AudioBitrate)
	assert.Equal(t, 0.35, all[2].SizeFactor)
	assert.Equal(t, 96000, all[2].AudioBitrateBits())
}

func Test_Estimate(t *testing.T) {
	e, err := EstimateOutput([]SourceInfo{
		{SizeBytes: 10_000_000, DurationSec: 5},
		{SizeBytes: 20_000_000, DurationSec: 10},
	}, TierMedium)

	require.NoError(t, err)
	assert.InDelta(t, 30_000_000*0.65/1_048_576, e.SizeMB, 0.05)
	assert.Equal(t, 18.6, e.SizeMB)
	assert.Equal(t, int64(19_500_000), e.SizeBytes)
	assert.Equal(t, 15.0, e.TotalDurationSec)
}

func Test_EstimateEmpty(t *testing.T) {
	e, err := EstimateOutput(nil, TierHigh)
	require.NoError(t, err)
	assert.Equal(t, 0.0, e.SizeMB)
	assert.Equal(t, 0.0, e.TotalDurationSec)
}

func Test_UnknownTier(t *testing.T) {
	_, err := Parse("ultra")
	assert.ErrorIs(t, err, ErrUnknownTier)

	_, err = EstimateOutput(nil, Tier{Value: "ultra"})
	assert.ErrorIs(t, err, ErrUnknownTier)

	var tier Tier
	assert.ErrorIs(t, json.Unmarshal([]byte(`"ultra"`), &tier), ErrUnknownTier)
	assert.NoError(t, json.Unmarshal([]byte(`"high"`), &tier))
	assert.Equal(t, TierHigh, tier)
}
