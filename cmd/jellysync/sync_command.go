package main

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/tesorrells/jellyfin-sync/internal/daemon"
	"github.com/tesorrells/jellyfin-sync/internal/logging"
	"github.com/tesorrells/jellyfin-sync/internal/sync"
)

func newSyncCommand(ctx *commandContext) *cobra.Command {
	var once bool

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Run the consumer node: poll the manifest and reconcile local content",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			logger, err := logging.NewFromConfig(cfg, "jellysync")
			if err != nil {
				return fmt.Errorf("configure logging: %w", err)
			}

			d, err := daemon.New(cfg, logger)
			if err != nil {
				return err
			}
			defer d.Close()

			if once {
				report := d.RunOnce(cmd.Context())
				printReport(cmd, report)
				if report.ManifestErr != nil {
					return fmt.Errorf("manifest fetch failed: %w", report.ManifestErr)
				}
				return nil
			}

			runCtx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			if err := d.Start(runCtx); err != nil {
				return err
			}
			<-runCtx.Done()
			d.Stop()
			return nil
		},
	}

	cmd.Flags().BoolVar(&once, "once", false, "Run a single reconciliation cycle and exit")
	return cmd
}

func printReport(cmd *cobra.Command, report sync.Report) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Cycle %s (%s)\n", report.CycleID, report.Group)
	if report.ManifestErr != nil {
		fmt.Fprintf(out, "  manifest error: %v\n", report.ManifestErr)
		return
	}
	fmt.Fprintf(out, "  fetched: %d  skipped: %d  failed: %d  quarantined: %d\n",
		report.Count(sync.OutcomeFetched),
		report.Count(sync.OutcomeSkipped),
		report.Count(sync.OutcomeFetchFailed),
		report.Count(sync.OutcomeQuarantined))
	for _, item := range report.Items {
		if item.Err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "  %s: %s (%v)\n", item.Item.Title, item.Outcome, item.Err)
		}
	}
}
