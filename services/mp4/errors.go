package mp4

import "github.com/ansel1/merry/v2"

var (
	ErrSourceOpen     = merry.Sentinel("source could not be opened")
	ErrSchemaConflict = merry.Sentinel("track schema conflict")
	ErrMuxerState     = merry.Sentinel("invalid muxer state")
	ErrWrite          = merry.Sentinel("write failed")
	ErrFinalize       = merry.Sentinel("finalize failed")
)
