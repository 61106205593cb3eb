package main

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/bcc-code/bcc-media-joiner/services/joiner"
	"github.com/bcc-code/bcc-media-joiner/services/presets"
	"github.com/bcc-code/bcc-media-joiner/utils"
	"github.com/spf13/cobra"
)

var estimateCmd = &cobra.Command{
	Use:   "estimate [flags] source source [source...]",
	Short: "Estimate the transcoded output size",
	Args:  cobra.MinimumNArgs(joiner.MinSources),
	RunE: func(cmd *cobra.Command, args []string) error {
		name := v.GetString("tier")
		if cmd.Flags().Changed("tier") {
			name, _ = cmd.Flags().GetString("tier")
		}

		tier, err := presets.Parse(name)
		if err != nil {
			return err
		}

		estimate, err := joiner.Estimate(cmd.Context(), args, tier)
		if err != nil {
			return err
		}

		fmt.Fprintf(cmd.OutOrStdout(), "tier:     %s\nsize:     %s (%.1f MB)\nduration: %s\n",
			estimate.Tier.Value,
			utils.FormatBytes(estimate.SizeBytes),
			estimate.SizeMB,
			utils.FormatDuration(estimate.TotalDurationSec),
		)
		return nil
	},
}

var probeCmd = &cobra.Command{
	Use:   "probe source [source...]",
	Short: "List the tracks of each source as JSON",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		sources := make([]joiner.Source, 0, len(args))
		for _, arg := range args {
			source, err := joiner.ParseSource(arg)
			if err != nil {
				return err
			}
			sources = append(sources, source)
		}

		summaries, err := joiner.DescribeAll(cmd.Context(), sources)
		if err != nil {
			return err
		}

		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(summaries)
	},
}

var presetsCmd = &cobra.Command{
	Use:   "presets",
	Short: "List the quality tiers",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "TIER\tCRF\tAUDIO\tLABEL")
		for _, p := range presets.All() {
			fmt.Fprintf(w, "%s\t%d\t%s\t%s\n", p.Tier.Value, p.CRF, p.AudioBitrate, p.Label)
		}
		return w.Flush()
	},
}

func init() {
	estimateCmd.Flags().StringP("tier", "t", "medium", "Quality tier (low, medium, high)")
}
