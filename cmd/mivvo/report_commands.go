package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"mivvo/internal/analysis"
	"mivvo/internal/apiclient"
)

func newReportCommand(ctx *commandContext) *cobra.Command {
	reportCmd := &cobra.Command{
		Use:   "report",
		Short: "Create and inspect analysis reports",
	}

	reportCmd.AddCommand(newReportCreateCommand(ctx))
	reportCmd.AddCommand(newReportListCommand(ctx))
	reportCmd.AddCommand(newReportShowCommand(ctx))
	reportCmd.AddCommand(newReportUploadCommand(ctx))
	reportCmd.AddCommand(newReportAnalyzeCommand(ctx))

	return reportCmd
}

func newReportCreateCommand(ctx *commandContext) *cobra.Command {
	var kinds []string

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a pending report for one or more analysis kinds",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.ownedClient()
			if err != nil {
				return err
			}
			rpt, err := client.CreateReport(cmd.Context(), kinds)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Report %s created (%s, cost %s credits)\n", rpt.ID, strings.Join(rpt.Kinds, ", "), rpt.Cost)
			fmt.Fprintf(out, "Upload assets with `mivvo report upload %s <file>` and then run `mivvo report analyze %s`\n", rpt.ID, rpt.ID)
			return nil
		},
	}

	cmd.Flags().StringSliceVarP(&kinds, "kinds", "k", nil, "Analysis kinds (paint, damage, audio, value, full)")
	_ = cmd.MarkFlagRequired("kinds")
	return cmd
}

func newReportListCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List the owner's reports, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.ownedClient()
			if err != nil {
				return err
			}
			reports, err := client.Reports(cmd.Context())
			if err != nil {
				return err
			}
			if len(reports) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No reports yet")
				return nil
			}
			rows := make([][]string, 0, len(reports))
			for _, rpt := range reports {
				rows = append(rows, []string{
					rpt.ID,
					strings.Join(rpt.Kinds, ","),
					rpt.Status,
					rpt.Cost,
					rpt.CreatedAt.Local().Format(time.DateTime),
				})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable(
				[]string{"ID", "Kinds", "Status", "Cost", "Created"}, rows, 3))
			return nil
		},
	}
}

func newReportShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show <report-id>",
		Short: "Show one report, including its result when completed",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.ownedClient()
			if err != nil {
				return err
			}
			rpt, err := client.Report(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			renderReport(cmd, rpt)
			return nil
		},
	}
}

func renderReport(cmd *cobra.Command, rpt apiclient.Report) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Report %s\n", rpt.ID)
	fmt.Fprintf(out, "  Status: %s\n", rpt.Status)
	fmt.Fprintf(out, "  Kinds:  %s\n", strings.Join(rpt.Kinds, ", "))
	fmt.Fprintf(out, "  Cost:   %s credits\n", rpt.Cost)
	if rpt.Notes != "" {
		fmt.Fprintf(out, "  Notes:  %s\n", rpt.Notes)
	}
	if len(rpt.Result) == 0 {
		return
	}

	aggregate, err := analysis.DecodeAggregate(string(rpt.Result))
	if err != nil {
		fmt.Fprintf(out, "  Result: (unreadable: %v)\n", err)
		return
	}
	fmt.Fprintf(out, "  Score:  %d (%s severity, %d issues)\n", aggregate.Score, aggregate.Band, aggregate.IssueCount)
	for _, section := range aggregate.Sections {
		if section.Skipped {
			fmt.Fprintf(out, "  - %s: skipped (%s)\n", section.Kind, section.Reason)
			continue
		}
		fmt.Fprintf(out, "  - %s: %d issue(s)\n", section.Kind, len(section.Issues))
		for _, issue := range section.Issues {
			fmt.Fprintf(out, "      [%s] %s\n", issue.Severity, issue.Title)
		}
	}
}

func newReportUploadCommand(ctx *commandContext) *cobra.Command {
	var kind string

	cmd := &cobra.Command{
		Use:   "upload <report-id> <file>",
		Short: "Attach an image or audio file to a pending report",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.ownedClient()
			if err != nil {
				return err
			}
			data, err := os.ReadFile(args[1])
			if err != nil {
				return fmt.Errorf("read asset file: %w", err)
			}
			asset, err := client.UploadAsset(cmd.Context(), args[0], kind, data)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Uploaded %s asset (%d bytes) to report %s\n", asset.Kind, asset.Size, asset.ReportID)
			return nil
		},
	}

	cmd.Flags().StringVarP(&kind, "kind", "k", "image", "Asset kind: image or audio")
	return cmd
}

func newReportAnalyzeCommand(ctx *commandContext) *cobra.Command {
	var wait bool

	cmd := &cobra.Command{
		Use:   "analyze <report-id>",
		Short: "Queue the report for analysis; credits are charged when a worker picks it up",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.ownedClient()
			if err != nil {
				return err
			}
			rpt, err := client.RequestAnalyze(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Report %s queued for analysis\n", rpt.ID)
			if !wait {
				return nil
			}

			for {
				select {
				case <-cmd.Context().Done():
					return cmd.Context().Err()
				case <-time.After(2 * time.Second):
				}
				rpt, err = client.Report(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if rpt.Status == "completed" || rpt.Status == "failed" {
					renderReport(cmd, rpt)
					return nil
				}
			}
		},
	}

	cmd.Flags().BoolVarP(&wait, "wait", "w", false, "Block until the report reaches a terminal state")
	return cmd
}
