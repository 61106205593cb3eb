package environment

import (
	"os"
	"strconv"
	"time"
)

const (
	QueueDebug       = "debug"
	QueueWorker      = "worker"
	QueueTranscode   = "transcode"
	QueueLowPriority = "low-priority"
)

var queue = os.Getenv("QUEUE")

func GetQueue() string {
	if queue != "" {
		return queue
	}
	return QueueWorker
}

func GetWorkerQueue() string {
	if queue == QueueDebug {
		return QueueDebug
	}
	return QueueWorker
}

func GetTranscodeQueue() string {
	if queue == QueueDebug {
		return QueueDebug
	}
	return QueueTranscode
}

var tempMountPrefix = os.Getenv("TEMP_MOUNT_PREFIX")

func GetTempMountPrefix() string {
	// For local testing
	if tempMountPrefix != "" {
		return tempMountPrefix
	}
	return os.TempDir()
}

var ffmpegPath = os.Getenv("FFMPEG_PATH")

func GetFFmpegPath() string {
	if ffmpegPath != "" {
		return ffmpegPath
	}
	return "ffmpeg"
}

var ffprobePath = os.Getenv("FFPROBE_PATH")

func GetFFprobePath() string {
	if ffprobePath != "" {
		return ffprobePath
	}
	return "ffprobe"
}

const (
	DefaultVideoFramePeriod = 33333 * time.Microsecond
	DefaultAudioFramePeriod = 23220 * time.Microsecond
)

var videoFramePeriod = os.Getenv("VIDEO_FRAME_PERIOD_US")

// GetVideoFramePeriod is the cadence assumed for a video track that does not declare a duration.
func GetVideoFramePeriod() time.Duration {
	return microsecondsOr(videoFramePeriod, DefaultVideoFramePeriod)
}

var audioFramePeriod = os.Getenv("AUDIO_FRAME_PERIOD_US")

// GetAudioFramePeriod is one AAC frame (1024 samples) at 44.1kHz unless overridden.
func GetAudioFramePeriod() time.Duration {
	return microsecondsOr(audioFramePeriod, DefaultAudioFramePeriod)
}

var probeConcurrency = os.Getenv("PROBE_CONCURRENCY")

func GetProbeConcurrency() int {
	n, err := strconv.Atoi(probeConcurrency)
	if err != nil || n <= 0 {
		return 4
	}
	return n
}

func GetTemporalHostPort() string {
	return os.Getenv("TEMPORAL_HOST_PORT")
}

func GetTemporalNamespace() string {
	return os.Getenv("TEMPORAL_NAMESPACE")
}

func microsecondsOr(value string, fallback time.Duration) time.Duration {
	if value == "" {
		return fallback
	}
	us, err := strconv.ParseInt(value, 10, 64)
	if err != nil || us <= 0 {
		return fallback
	}
	return time.Duration(us) * time.Microsecond
}
