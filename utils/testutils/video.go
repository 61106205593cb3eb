package testutils

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
)

type VideoGeneratorParams struct {
	Duration  float64
	FrameRate int
	Width     int
	Height    int
	// AudioFrequency adds a sine tone when set
	AudioFrequency int
}

// HasFFmpeg reports whether ffmpeg and ffprobe are on the PATH.
func HasFFmpeg() bool {
	for _, bin := range []string{"ffmpeg", "ffprobe"} {
		if _, err := exec.LookPath(bin); err != nil {
			return false
		}
	}
	return true
}

// GenerateVideoFile encodes an H.264 test pattern with ffmpeg, the way a phone camera would write it.
func GenerateVideoFile(outFile string, videoParams VideoGeneratorParams) string {
	os.MkdirAll(filepath.Dir(outFile), 0755)
	args := []string{
		"-hide_banner",
		"-f", "lavfi",
		"-i", fmt.Sprintf("testsrc=size=%dx%d:rate=%d:duration=%f", videoParams.Width, videoParams.Height, videoParams.FrameRate, videoParams.Duration),
	}

	if videoParams.AudioFrequency > 0 {
		args = append(args,
			"-f", "lavfi",
			"-i", fmt.Sprintf("sine=frequency=%d:duration=%f:sample_rate=48000", videoParams.AudioFrequency, videoParams.Duration),
			"-c:a", "aac",
			"-ac", "2",
		)
	}

	args = append(args,
		"-c:v", "libx264",
		"-preset", "ultrafast",
		"-pix_fmt", "yuv420p",
		"-y", outFile,
	)

	cmd := exec.Command("ffmpeg", args...)
	err := cmd.Run()
	if err != nil {
		panic(err)
	}

	return outFile
}
