package main

import (
	"encoding/json"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/matthewmakh/NYC-DOB-permit-search-and-parse-sub000/internal/lock"
	"github.com/matthewmakh/NYC-DOB-permit-search-and-parse-sub000/internal/pipeline"
)

func runCmd(envFile *string) *cobra.Command {
	var opts pipeline.Options

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the enrichment pipeline once",
		Long: `Run the enrichment pipeline once and print the run summary as JSON.

Examples:
  enricher run
  enricher run --phase parcel --phase assessment --limit 100
  enricher run --refresh`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := opts.Validate(); err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := bootstrap(ctx, *envFile)
			if err != nil {
				return err
			}
			defer a.close()

			if !cmd.Flags().Changed("refresh") {
				opts.Refresh = a.cfg.Pipeline.Refresh
			}

			stats, err := a.runner.Run(ctx, opts)
			if errors.Is(err, lock.ErrRunInProgress) {
				a.log.Warn("Another run holds the lock, nothing to do", nil)
				return nil
			}
			if stats != nil {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				if encErr := enc.Encode(stats); encErr != nil {
					return encErr
				}
			}
			return err
		},
	}

	cmd.Flags().StringSliceVar(&opts.Phases, "phase", nil, "restrict the run to these phases (repeatable)")
	cmd.Flags().BoolVar(&opts.Refresh, "refresh", false, "reprocess every building and overwrite stored values")
	cmd.Flags().IntVar(&opts.Limit, "limit", 0, "cap buildings selected per phase (0 = no cap)")

	return cmd
}
