package main

import (
	"context"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

// options holds the CLI surface of spec.md §6:
// `collector [--mode live|historical] [--interval SECS] [--duration SECS]
// [--exchanges CSV] [--parallel|--sequential]`.
type options struct {
	configPath string
	mode       string
	intervalS  int
	durationS  int
	exchanges  string
	parallel   bool
	sequential bool
}

// Execute builds and runs the collector's root command against ctx, which
// is cancelled on SIGINT/SIGTERM.
func Execute(ctx context.Context) error {
	var opts options

	root := &cobra.Command{
		Use:   "collector",
		Short: "Cross-exchange perpetual-futures funding-rate observatory",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(ctx, opts)
		},
	}

	root.Flags().StringVar(&opts.configPath, "config", "config/observatory.yaml", "path to the YAML configuration file")
	root.Flags().StringVar(&opts.mode, "mode", "", "collection mode: live|historical (overrides config)")
	root.Flags().IntVar(&opts.intervalS, "interval", 0, "live collection tick interval in seconds (overrides config)")
	root.Flags().IntVar(&opts.durationS, "duration", 0, "overall run duration in seconds, 0 = run until cancelled (overrides config)")
	root.Flags().StringVar(&opts.exchanges, "exchanges", "", "comma-separated enabled venue list (overrides config)")
	root.Flags().BoolVar(&opts.parallel, "parallel", false, "dispatch every adapter concurrently each cycle (overrides config)")
	root.Flags().BoolVar(&opts.sequential, "sequential", false, "dispatch adapters one at a time, staggered (overrides config)")

	log.Info().Msg("collector starting")
	return root.ExecuteContext(ctx)
}
