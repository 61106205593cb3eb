package joiner

import (
	"fmt"
	"time"

	"github.com/ansel1/merry/v2"
	"github.com/bcc-code/bcc-media-joiner/paths"
)

var ErrValidation = merry.Sentinel("2本以上の動画が必要です。")

// MinSources is the smallest number of sources a join accepts.
const MinSources = 2

// Source is one input of a join, in caller order.
type Source struct {
	URI  string `json:"uri"`
	Path string `json:"path"`
}

// ParseSources validates the input list before any file is touched.
func ParseSources(uris []string) ([]Source, error) {
	if len(uris) < MinSources {
		return nil, merry.Wrap(ErrValidation, merry.WithUserMessage(ErrValidation.Error()))
	}

	sources := make([]Source, 0, len(uris))
	for _, uri := range uris {
		source, err := ParseSource(uri)
		if err != nil {
			return nil, err
		}
		sources = append(sources, source)
	}
	return sources, nil
}

// ParseSource resolves a path or file:// URI to a local path.
func ParseSource(uri string) (Source, error) {
	p, err := paths.Parse(uri)
	if err != nil {
		return Source{}, merry.Wrap(ErrValidation, merry.WithCause(err), merry.WithMessagef("invalid source %q: %v", uri, err))
	}
	return Source{
		URI:  uri,
		Path: p.Local(),
	}, nil
}

// OutputFilename is the default name of a joined file, based on the local start time.
func OutputFilename(now time.Time) string {
	return fmt.Sprintf("joined_%s.mp4", now.Format("20060102150405"))
}
