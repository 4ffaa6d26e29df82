package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/ayusman/squatcoach/internal/app"
	"github.com/ayusman/squatcoach/internal/replay"
)

type replayFlags struct {
	realtime   bool
	jsonOutput bool
	quiet      bool
}

func newReplayCmd(root *rootFlags) *cobra.Command {
	flags := &replayFlags{}

	cmd := &cobra.Command{
		Use:   "replay <recording.json>",
		Short: "Count reps in a recorded landmark file",
		Long: `replay feeds a landmark recording through the same selector, angle and
rep counter as the live camera and prints a summary. Thresholds come from the
config file.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(root)
			if err != nil {
				return err
			}
			log := newLogger(cfg.Log)

			rec, err := replay.LoadFile(args[0])
			if err != nil {
				return err
			}

			opts := replay.Options{Realtime: flags.realtime}
			if !flags.quiet && !flags.jsonOutput {
				opts.Progress = cmd.ErrOrStderr()
			}

			p := app.NewPipeline(cfg.Exercise.Thresholds(), nil, log)
			summary, err := replay.Run(cmd.Context(), rec, p, opts, log)
			if err != nil {
				return err
			}

			if flags.jsonOutput {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(summary)
			}
			printSummary(cmd.OutOrStdout(), summary)
			return nil
		},
	}

	cmd.Flags().BoolVar(&flags.realtime, "realtime", false, "pace frames at the recording's frame rate")
	cmd.Flags().BoolVar(&flags.jsonOutput, "json", false, "print the summary as JSON")
	cmd.Flags().BoolVarP(&flags.quiet, "quiet", "q", false, "hide the progress bar")
	return cmd
}

func printSummary(w io.Writer, s replay.Summary) {
	fmt.Fprintf(w, "reps:          %d\n", s.Reps)
	fmt.Fprintf(w, "form warnings: %d\n", s.FormWarnings)
	fmt.Fprintf(w, "frames:        %d (accepted %d, low visibility %d, no person %d)\n",
		s.Frames, s.Accepted, s.Rejected, s.NoPerson)
	fmt.Fprintf(w, "duration:      %s\n", s.Duration)
}
