package cli

import (
	"fmt"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/semdex/internal/core/domain"
)

// timePrecision rounds durations for display.
const timePrecision = time.Millisecond

func newReindexCommand(configPath *string) *cobra.Command {
	var domainFlag string
	var scope string

	cmd := &cobra.Command{
		Use:   "reindex",
		Short: "Incrementally re-index changed source records",
		Long: `Runs the incremental reindexer: collects source records, diffs their
content hashes against the index and embeds only what is new or changed.
Without --domain every domain is processed in sequence.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newApp(*configPath)
			if err != nil {
				return err
			}
			defer app.Close()

			ctx := cmd.Context()

			if domainFlag != "" {
				dom, err := parseDomain(domainFlag)
				if err != nil {
					return err
				}
				report, err := app.reindexer.RunDomain(ctx, dom, scope)
				if err != nil {
					return err
				}
				printReport(cmd, report)
				return nil
			}

			summary, err := app.reindexer.Run(ctx)
			if err != nil {
				return err
			}
			printSummary(cmd, summary)
			return nil
		},
	}

	cmd.Flags().StringVar(&domainFlag, "domain", "", "re-index a single domain")
	cmd.Flags().StringVar(&scope, "scope", "", "restrict the pass to one source grouping (requires --domain)")

	return cmd
}

func newRebuildCommand(configPath *string) *cobra.Command {
	var domainFlag string

	cmd := &cobra.Command{
		Use:   "rebuild",
		Short: "Truncate a domain's index and re-embed it from scratch",
		Long: `Deletes every indexed record of the domain and rebuilds it from the
source tables. The domain is search-empty until the rebuild completes.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			dom, err := parseDomain(domainFlag)
			if err != nil {
				return err
			}

			app, err := newApp(*configPath)
			if err != nil {
				return err
			}
			defer app.Close()

			report, err := app.reindexer.Rebuild(cmd.Context(), dom)
			if err != nil {
				return err
			}
			printReport(cmd, report)
			return nil
		},
	}

	cmd.Flags().StringVar(&domainFlag, "domain", "", "domain to rebuild (required)")
	cmd.MarkFlagRequired("domain") //nolint:errcheck

	return cmd
}

func newRunsCommand(configPath *string) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "runs",
		Short: "Show recent reindex run history",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newApp(*configPath)
			if err != nil {
				return err
			}
			defer app.Close()

			runs, err := app.store.ListRuns(cmd.Context(), limit)
			if err != nil {
				return err
			}
			if len(runs) == 0 {
				cmd.Println("no reindex runs recorded")
				return nil
			}

			for _, run := range runs {
				status := "ok"
				if run.Failed() {
					status = "failed"
				}
				cmd.Printf("%s  %s  embedded=%d errors=%d %s\n",
					run.StartedAt.Format("2006-01-02 15:04:05"),
					run.RunID,
					run.TotalEmbedded(),
					run.TotalErrors(),
					status)
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 10, "maximum number of runs to show")

	return cmd
}

func printReport(cmd *cobra.Command, report domain.DomainReport) {
	line := fmt.Sprintf("%-14s %-10s embedded=%-4d skipped=%-4d errors=%-3d %s",
		report.Domain, report.Phase, report.Embedded, report.Skipped, report.Errors, report.Duration.Round(timePrecision))
	if report.Err != "" {
		line += "  (" + report.Err + ")"
	}
	cmd.Println(line)
}

func printSummary(cmd *cobra.Command, summary *domain.RunSummary) {
	domains := make([]domain.Domain, 0, len(summary.Domains))
	for dom := range summary.Domains {
		domains = append(domains, dom)
	}
	sort.Slice(domains, func(i, j int) bool { return domains[i] < domains[j] })

	for _, dom := range domains {
		printReport(cmd, summary.Domains[dom])
	}
	cmd.Printf("run %s: %d embedded, %d errors in %s\n",
		summary.RunID,
		summary.TotalEmbedded(),
		summary.TotalErrors(),
		summary.EndedAt.Sub(summary.StartedAt).Round(timePrecision))
}
