package main

import (
	"fmt"
	"net/http"
	"path/filepath"
	"sort"

	"github.com/spf13/cobra"
)

func newSeedCommand(ctx *commandContext) *cobra.Command {
	var group string
	var title string
	var destPath string
	var serverURL string

	cmd := &cobra.Command{
		Use:   "seed <path>",
		Short: "Ask the curator to start seeding a local file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			path, err := filepath.Abs(args[0])
			if err != nil {
				return fmt.Errorf("resolve path: %w", err)
			}

			client := newCuratorClient(cfg, serverURL)
			req := map[string]string{
				"path":  path,
				"group": group,
			}
			if title != "" {
				req["title"] = title
			}
			if destPath != "" {
				req["dest_path"] = destPath
			}

			var resp struct {
				Status string  `json:"status"`
				Magnet *string `json:"magnet"`
				Group  string  `json:"group"`
			}
			if err := client.do(cmd.Context(), http.MethodPost, "/seed", req, &resp); err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			switch resp.Status {
			case "already-seeding":
				fmt.Fprintf(out, "Already seeding into group %s\n", resp.Group)
				if resp.Magnet != nil {
					fmt.Fprintf(out, "  %s\n", *resp.Magnet)
				}
			default:
				fmt.Fprintf(out, "Seeding started; the item will join group %s once the address is known\n", resp.Group)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&group, "group", "g", "", "Manifest group to publish into")
	cmd.Flags().StringVar(&title, "title", "", "Display title (derived from the filename when omitted)")
	cmd.Flags().StringVar(&destPath, "dest", "", "Destination path relative to the consumer storage root")
	cmd.Flags().StringVar(&serverURL, "server", "", "Curator base URL (defaults to the configured bind address)")
	_ = cmd.MarkFlagRequired("group")

	return cmd
}

func newSeedsCommand(ctx *commandContext) *cobra.Command {
	var serverURL string

	cmd := &cobra.Command{
		Use:   "seeds",
		Short: "List active seeds on the curator",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			client := newCuratorClient(cfg, serverURL)

			var resp struct {
				Seeds map[string]string `json:"seeds"`
			}
			if err := client.do(cmd.Context(), http.MethodGet, "/seeds", nil, &resp); err != nil {
				return err
			}
			if len(resp.Seeds) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No active seeds.")
				return nil
			}

			paths := make([]string, 0, len(resp.Seeds))
			for path := range resp.Seeds {
				paths = append(paths, path)
			}
			sort.Strings(paths)

			rows := make([][]string, 0, len(paths))
			for _, path := range paths {
				rows = append(rows, []string{path, resp.Seeds[path]})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable(
				[]string{"Path", "Status"}, rows, []columnAlignment{alignLeft, alignLeft}))
			return nil
		},
	}

	cmd.Flags().StringVar(&serverURL, "server", "", "Curator base URL (defaults to the configured bind address)")
	return cmd
}
