package mp4

import (
	"encoding/json"
	"time"

	"github.com/orsinium-labs/enum"
)

type TrackKind enum.Member[string]

//goland:noinspection GoMixedReceiverTypes
func (k TrackKind) MarshalJSON() ([]byte, error) {
	return json.Marshal(k.Value)
}

//goland:noinspection GoMixedReceiverTypes
func (k *TrackKind) UnmarshalJSON(value []byte) error {
	var stringValue string
	err := json.Unmarshal(value, &stringValue)
	if err != nil {
		return err
	}
	kind := TrackKinds.Parse(stringValue)
	if kind == nil {
		*k = KindOther
		return nil
	}
	*k = *kind
	return nil
}

//goland:noinspection GoMixedReceiverTypes
func (k TrackKind) String() string {
	return k.Value
}

var (
	KindVideo  = TrackKind{Value: "video"}
	KindAudio  = TrackKind{Value: "audio"}
	KindOther  = TrackKind{Value: "other"}
	TrackKinds = enum.New(KindVideo, KindAudio, KindOther)

	// JoinableKinds are copied by a join, in this order, for every source.
	JoinableKinds = []TrackKind{KindVideo, KindAudio}
)

func kindFromHandler(handler [4]byte) TrackKind {
	switch string(handler[:]) {
	case "vide":
		return KindVideo
	case "soun":
		return KindAudio
	}
	return KindOther
}

func (k TrackKind) handler() ([4]byte, string) {
	switch k {
	case KindVideo:
		return [4]byte{'v', 'i', 'd', 'e'}, "VideoHandler"
	case KindAudio:
		return [4]byte{'s', 'o', 'u', 'n'}, "SoundHandler"
	}
	return [4]byte{'m', 'e', 't', 'a'}, "MetaHandler"
}

// Schema describes the format of a track. A join takes it from the first source only.
type Schema struct {
	Kind      TrackKind
	Codec     string
	Timescale uint32

	Width  int
	Height int

	SampleRate   int
	ChannelCount int

	// MediaTime is where presentation starts in the media timeline, taken from the first edit of the source.
	// Encoders use it to hide B-frame delay and AAC priming.
	MediaTime time.Duration

	// SampleDescription is the complete stsd box of the source track, copied verbatim into the output.
	SampleDescription []byte `json:"-"`
}

// Sample is one compressed access unit with timing relative to the start of the join.
type Sample struct {
	Kind TrackKind
	Data []byte
	PTS  time.Duration
	DTS  time.Duration
	Sync bool
}

// Track is the index of one track in a source file.
type Track struct {
	Index     int
	ID        uint32
	Kind      TrackKind
	Timescale uint32
	// Duration is 0 when the container does not declare one.
	Duration time.Duration
	Schema   Schema

	samples []sampleEntry
	maxSize uint32
}

func (t *Track) SampleCount() int {
	return len(t.samples)
}

// MaxSampleSize is the size of the largest sample, the buffer size needed to read the track.
func (t *Track) MaxSampleSize() int {
	return int(t.maxSize)
}
