package ffmpeg

import (
	"strconv"
	"strings"
	"time"

	"github.com/samber/lo"
)

type ProgressCallback func(Progress)

type Progress struct {
	Params         string  `json:"command"`
	Percent        float64 `json:"percent"`
	CurrentSeconds float64 `json:"currentSeconds"`
	TotalSeconds   float64 `json:"totalSeconds"`
	CurrentFrame   int     `json:"currentFrame"`
	TotalFrames    int     `json:"totalFrames"`
	Bitrate        string  `json:"bitrate"`
	Speed          string  `json:"speed"`
	SpeedRatio     float64 `json:"speedRatio"`
	Done           bool    `json:"done"`
}

type StreamInfo struct {
	HasAudio     bool
	HasVideo     bool
	VideoStreams []FFProbeStream
	AudioStreams []FFProbeStream
	OtherStreams []FFProbeStream
	TotalFrames  int
	TotalSeconds float64
	FrameRate    float64
	Height       int
	Width        int
}

func ProbeResultToInfo(info *FFProbeResult) StreamInfo {
	if info == nil {
		return StreamInfo{}
	}

	streamInfo := StreamInfo{
		HasAudio: lo.SomeBy(info.Streams, func(i FFProbeStream) bool {
			return i.CodecType == "audio"
		}),
		HasVideo: lo.SomeBy(info.Streams, func(i FFProbeStream) bool {
			return i.CodecType == "video"
		}),
	}

	for _, stream := range info.Streams {
		switch stream.CodecType {
		case "audio":
			streamInfo.AudioStreams = append(streamInfo.AudioStreams, stream)
		case "video":
			streamInfo.VideoStreams = append(streamInfo.VideoStreams, stream)
		default:
			streamInfo.OtherStreams = append(streamInfo.OtherStreams, stream)
		}
	}

	streamInfo.TotalSeconds, _ = strconv.ParseFloat(info.Format.Duration, 64)

	stream, found := lo.Find(info.Streams, func(i FFProbeStream) bool {
		return i.CodecType == "video"
	})
	if !found {
		return streamInfo
	}

	streamInfo.Height = stream.Height
	streamInfo.Width = stream.Width
	frames, _ := strconv.ParseInt(stream.NbFrames, 10, 64)
	streamInfo.TotalFrames = int(frames)
	if streamInfo.TotalSeconds == 0 {
		streamInfo.TotalSeconds, _ = strconv.ParseFloat(stream.Duration, 64)
	}
	streamInfo.FrameRate = parseRate(stream.AvgFrameRate)
	if streamInfo.FrameRate == 0 {
		streamInfo.FrameRate = parseRate(stream.RFrameRate)
	}

	return streamInfo
}

func parseRate(rate string) float64 {
	parts := strings.Split(rate, "/")
	if len(parts) != 2 {
		return 0
	}
	frames, _ := strconv.ParseFloat(parts[0], 64)
	seconds, _ := strconv.ParseFloat(parts[1], 64)
	if seconds == 0 {
		return 0
	}
	return frames / seconds
}

// parseSpeed reads ffmpeg's "1.52x" notation. "N/A" gives 0.
func parseSpeed(speed string) float64 {
	v, err := strconv.ParseFloat(strings.TrimSuffix(strings.TrimSpace(speed), "x"), 64)
	if err != nil {
		return 0
	}
	return v
}

// parseProgressCallback consumes the key=value lines of "-progress pipe:1" and reports once per block.
func parseProgressCallback(command []string, info StreamInfo, cb func(Progress)) func(string) {
	var progress Progress

	progress.Params = strings.Join(command, " ")
	progress.TotalFrames = info.TotalFrames
	progress.TotalSeconds = info.TotalSeconds

	return func(line string) {

		parts := strings.SplitN(line, "=", 2)

		if len(parts) != 2 {
			return
		}

		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])

		switch key {
		case "frame":
			frame, _ := strconv.ParseInt(value, 10, 64)
			progress.CurrentFrame = int(frame)
			if progress.TotalFrames != 0 && frame != 0 && progress.TotalSeconds == 0 {
				progress.Percent = float64(frame) / float64(progress.TotalFrames) * 100
			}
		case "out_time_us":
			us, err := strconv.ParseFloat(value, 64)
			if err != nil || us < 0 {
				return
			}
			progress.CurrentSeconds = (time.Duration(us) * time.Microsecond).Seconds()
			if progress.TotalSeconds != 0 && us != 0 {
				progress.Percent = progress.CurrentSeconds / progress.TotalSeconds * 100
			}
		case "bitrate":
			progress.Bitrate = value
		case "speed":
			progress.Speed = value
			progress.SpeedRatio = parseSpeed(value)
		case "progress":
			// Audio doesn't report progress in a conceivable way, so just return 100 on complete
			if value == "end" {
				progress.Percent = 100
				progress.Done = true
			}
			progress.Percent = min(progress.Percent, 100)
			if cb != nil {
				cb(progress)
			}
		}
	}
}
