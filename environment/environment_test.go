package environment

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func Test_MicrosecondsOr(t *testing.T) {
	assert.Equal(t, DefaultVideoFramePeriod, microsecondsOr("", DefaultVideoFramePeriod))
	assert.Equal(t, DefaultAudioFramePeriod, microsecondsOr("abc", DefaultAudioFramePeriod))
	assert.Equal(t, DefaultAudioFramePeriod, microsecondsOr("-5", DefaultAudioFramePeriod))
	assert.Equal(t, 40*time.Millisecond, microsecondsOr("40000", DefaultVideoFramePeriod))
}

func Test_DefaultPeriods(t *testing.T) {
	assert.Equal(t, int64(33333), DefaultVideoFramePeriod.Microseconds())
	assert.Equal(t, int64(23220), DefaultAudioFramePeriod.Microseconds())
}
