package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/tesorrells/jellyfin-sync/internal/daemon"
	"github.com/tesorrells/jellyfin-sync/internal/history"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the running consumer daemon's status",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}

			var st daemon.Status
			if err := getLocalJSON(cmd.Context(), "http://"+cfg.Paths.APIBind+"/api/status", &st); err != nil {
				return fmt.Errorf("daemon unreachable at %s: %w", cfg.Paths.APIBind, err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Running: %v (pid %d)\n", st.Running, st.PID)
			fmt.Fprintf(out, "Group:   %s\n", st.Group)
			if st.LastCycle == nil {
				fmt.Fprintln(out, "No cycle has completed yet.")
				return nil
			}
			lc := st.LastCycle
			fmt.Fprintf(out, "Last cycle %s finished %s\n", lc.ID, lc.Finished.Local().Format(time.RFC1123))
			if lc.ManifestError != "" {
				fmt.Fprintf(out, "  manifest error: %s\n", lc.ManifestError)
				return nil
			}
			rows := [][]string{{
				strconv.Itoa(lc.Fetched),
				strconv.Itoa(lc.Skipped),
				strconv.Itoa(lc.Failed),
				strconv.Itoa(lc.Quarantined),
			}}
			fmt.Fprintln(out, renderTable(
				[]string{"Fetched", "Skipped", "Failed", "Quarantined"}, rows,
				[]columnAlignment{alignRight, alignRight, alignRight, alignRight}))
			return nil
		},
	}
}

func newHistoryCommand(ctx *commandContext) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recent reconciliation cycles",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}

			var resp struct {
				Cycles []history.Cycle `json:"cycles"`
			}
			url := fmt.Sprintf("http://%s/api/history?limit=%d", cfg.Paths.APIBind, limit)
			if err := getLocalJSON(cmd.Context(), url, &resp); err != nil {
				return fmt.Errorf("daemon unreachable at %s: %w", cfg.Paths.APIBind, err)
			}
			if len(resp.Cycles) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No recorded cycles.")
				return nil
			}

			rows := make([][]string, 0, len(resp.Cycles))
			for _, c := range resp.Cycles {
				outcome := fmt.Sprintf("%d/%d/%d/%d", c.Fetched, c.Skipped, c.Failed, c.Quarantined)
				if c.ManifestError != "" {
					outcome = "manifest error"
				}
				rows = append(rows, []string{
					c.Started.Local().Format("2006-01-02 15:04"),
					c.Group,
					outcome,
				})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable(
				[]string{"Started", "Group", "Fetched/Skipped/Failed/Quarantined"}, rows,
				[]columnAlignment{alignLeft, alignLeft, alignRight}))
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 10, "Number of cycles to show")
	return cmd
}

func getLocalJSON(ctx context.Context, url string, v any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("status %d", resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(v)
}
