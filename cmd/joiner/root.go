package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/bcc-code/bcc-media-joiner/services/rebase"
	"github.com/bcc-code/bcc-media-joiner/utils"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var v = viper.New()

var rootCmd = &cobra.Command{
	Use:           "joiner",
	Short:         "Join mp4 files into one",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	v.SetDefault("strategy", "copy")
	v.SetDefault("tier", "medium")
	v.SetDefault("ffmpeg", "")
	v.SetDefault("debug", false)
	v.SetDefault("video-frame-period", time.Duration(0))
	v.SetDefault("audio-frame-period", time.Duration(0))

	v.SetEnvPrefix("JOINER")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	rootCmd.PersistentFlags().Bool("debug", false, "Log every track")
	rootCmd.PersistentFlags().String("ffmpeg", "", "Path to the ffmpeg binary")
	_ = v.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug"))
	_ = v.BindPFlag("ffmpeg", rootCmd.PersistentFlags().Lookup("ffmpeg"))

	rootCmd.AddCommand(joinCmd)
	rootCmd.AddCommand(estimateCmd)
	rootCmd.AddCommand(probeCmd)
	rootCmd.AddCommand(presetsCmd)
}

func logger() *utils.ZeroLogger {
	return utils.NewConsoleLogger(v.GetBool("debug"))
}

// framePeriods applies the flag or JOINER_ overrides on top of the environment defaults.
func framePeriods() *rebase.FramePeriods {
	periods := rebase.DefaultFramePeriods()
	if d := v.GetDuration("video-frame-period"); d > 0 {
		periods.Video = d
	}
	if d := v.GetDuration("audio-frame-period"); d > 0 {
		periods.Audio = d
	}
	return &periods
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
