package ffmpeg

import (
	"context"
	"fmt"
	"os/exec"

	"github.com/ansel1/merry/v2"
	"github.com/bcc-code/bcc-media-joiner/environment"
	"github.com/bcc-code/bcc-media-joiner/utils"
)

// ErrExternalProcess is returned when ffmpeg exits with an error or is cancelled.
var ErrExternalProcess = merry.Sentinel("external process failed")

type diagnosticsKey struct{}

// Do runs ffmpeg with the arguments. Cancelling ctx kills the process.
func Do(ctx context.Context, arguments []string, info StreamInfo, progressCallback ProgressCallback) (string, error) {
	return Run(ctx, environment.GetFFmpegPath(), arguments, info, progressCallback)
}

// Run is Do with an explicit binary.
func Run(ctx context.Context, binary string, arguments []string, info StreamInfo, progressCallback ProgressCallback) (string, error) {
	cmd := exec.CommandContext(ctx, binary, arguments...)

	out, err := utils.ExecuteCmd(cmd, parseProgressCallback(arguments, info, progressCallback))
	if err == nil {
		return out, nil
	}

	diagnostics := utils.Stderr(err)
	if ctx.Err() != nil {
		return "", merry.Wrap(
			fmt.Errorf("%w: %w", ErrExternalProcess, ctx.Err()),
			merry.WithValue(diagnosticsKey{}, diagnostics),
		)
	}
	return "", merry.Wrap(ErrExternalProcess,
		merry.WithCause(err),
		merry.WithValue(diagnosticsKey{}, diagnostics),
		merry.WithMessagef("%s failed: %v", binary, err),
	)
}

// Diagnostics returns the stderr output of the failed process, if any.
func Diagnostics(err error) string {
	v, _ := merry.Value(err, diagnosticsKey{}).(string)
	return v
}
