package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ansel1/merry/v2"
	"github.com/bcc-code/bcc-media-joiner/services/joiner"
	"github.com/bcc-code/bcc-media-joiner/services/presets"
	"github.com/bcc-code/bcc-media-joiner/utils"
	"github.com/spf13/cobra"
)

var joinCmd = &cobra.Command{
	Use:   "join [flags] source source [source...]",
	Short: "Join the sources in order",
	Args:  cobra.MinimumNArgs(joiner.MinSources),
	RunE:  runJoin,
}

func init() {
	joinCmd.Flags().StringP("output", "o", "", "Output file (default: joined_<timestamp>.mp4 in the temp directory)")
	joinCmd.Flags().StringP("strategy", "s", "copy", "copy or transcode")
	joinCmd.Flags().StringP("tier", "t", "medium", "Quality tier when transcoding (low, medium, high)")
	joinCmd.Flags().Duration("video-frame-period", 0, "Frame period assumed for video tracks without a duration")
	joinCmd.Flags().Duration("audio-frame-period", 0, "Frame period assumed for audio tracks without a duration")

	for _, name := range []string{"output", "strategy", "tier", "video-frame-period", "audio-frame-period"} {
		_ = v.BindPFlag(name, joinCmd.Flags().Lookup(name))
	}
}

func joinConfig() (joiner.Config, error) {
	strategy := joiner.Strategies.Parse(v.GetString("strategy"))
	if strategy == nil {
		return joiner.Config{}, merry.Wrap(joiner.ErrValidation, merry.WithMessagef("unknown join strategy %q", v.GetString("strategy")))
	}

	tier, err := presets.Parse(v.GetString("tier"))
	if err != nil {
		return joiner.Config{}, err
	}

	return joiner.Config{
		Strategy:     *strategy,
		Tier:         tier,
		Output:       v.GetString("output"),
		FramePeriods: framePeriods(),
		FFmpegPath:   v.GetString("ffmpeg"),
		Logger:       logger(),
	}, nil
}

func runJoin(cmd *cobra.Command, args []string) error {
	config, err := joinConfig()
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	job, err := joiner.Start(context.Background(), args, config, func(p joiner.Progress) {
		line := fmt.Sprintf("\r%5.1f%% %s", p.Percent, utils.FormatDuration(float64(p.ElapsedTimeMs)/1000))
		if p.SpeedRatio > 0 {
			line += fmt.Sprintf(" %.2fx", p.SpeedRatio)
		}
		fmt.Fprint(out, line)
	})
	if err != nil {
		return err
	}

	signals := make(chan os.Signal, 1)
	signal.Notify(signals, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(signals)

	go func() {
		for {
			select {
			case <-signals:
				if job.Strategy == joiner.StrategyCopy {
					fmt.Fprintln(out, "\nstream copy cannot be cancelled, waiting for it to finish")
				}
				job.Cancel()
			case <-job.Done():
				return
			}
		}
	}()

	start := time.Now()
	output, err := job.Wait()
	fmt.Fprintln(out)
	if err != nil {
		if msg := merry.UserMessage(err); msg != "" {
			return fmt.Errorf("%s: %w", msg, err)
		}
		return err
	}

	size := int64(0)
	if stat, err := os.Stat(output); err == nil {
		size = stat.Size()
	}

	fmt.Fprintf(out, "%s (%s) in %s\n", output, utils.FormatBytes(size), utils.FormatDuration(time.Since(start).Seconds()))
	return nil
}
