package main

import (
	"bytes"
	"testing"
	"time"

	"github.com/bcc-code/bcc-media-joiner/services/joiner"
	"github.com/bcc-code/bcc-media-joiner/services/presets"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_JoinConfigFromEnv(t *testing.T) {
	t.Setenv("JOINER_STRATEGY", "transcode")
	t.Setenv("JOINER_TIER", "high")
	t.Setenv("JOINER_VIDEO_FRAME_PERIOD", "40ms")

	config, err := joinConfig()
	require.NoError(t, err)

	assert.Equal(t, joiner.StrategyTranscode, config.Strategy)
	assert.Equal(t, presets.TierHigh, config.Tier)
	assert.Equal(t, 40*time.Millisecond, config.FramePeriods.Video)
	assert.NotNil(t, config.Logger)
}

func Test_JoinConfigUnknownStrategy(t *testing.T) {
	t.Setenv("JOINER_STRATEGY", "magic")

	_, err := joinConfig()
	assert.ErrorIs(t, err, joiner.ErrValidation)
}

func Test_PresetsCommand(t *testing.T) {
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"presets"})
	require.NoError(t, rootCmd.Execute())

	assert.Contains(t, out.String(), "low")
	assert.Contains(t, out.String(), "medium")
	assert.Contains(t, out.String(), "high")
	assert.Contains(t, out.String(), "128k")
}

func Test_JoinCommandNeedsTwoSources(t *testing.T) {
	rootCmd.SetOut(&bytes.Buffer{})
	rootCmd.SetArgs([]string{"join", "/tmp/a.mp4"})
	assert.Error(t, rootCmd.Execute())
}
