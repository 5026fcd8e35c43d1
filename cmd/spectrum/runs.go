package main

import (
	"fmt"
	"log/slog"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/Veraticus/shopper-spectrum/internal/artifact"
	"github.com/Veraticus/shopper-spectrum/internal/cli"
)

func runsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List published model runs",
		Long: `Show the artifact sets on disk, newest first, with the one currently in service
marked. --history shows every fit ever recorded in the database, including runs
that have since been pruned.`,
		RunE: runRuns,
	}

	cmd.Flags().Bool("history", false, "Show the fit history recorded in the database")
	cmd.Flags().Int("limit", 20, "Maximum number of history entries")
	cmd.Flags().Int("prune", 0, "Remove all but the newest N runs (the current run is always kept)")

	return cmd
}

func runRuns(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	settings, err := loadSettings()
	if err != nil {
		return err
	}
	manager := artifact.NewManager(settings.Artifacts.Dir)

	if keep, _ := cmd.Flags().GetInt("prune"); keep > 0 {
		removed, pruneErr := manager.Prune(keep)
		if pruneErr != nil {
			return fmt.Errorf("failed to prune runs: %w", pruneErr)
		}
		fmt.Fprintln(out, cli.FormatSuccess(fmt.Sprintf("Removed %d old runs", removed)))
	}

	if history, _ := cmd.Flags().GetBool("history"); history {
		store, storeErr := initStorage(ctx, settings)
		if storeErr != nil {
			return fmt.Errorf("failed to open database: %w", storeErr)
		}
		defer func() {
			if closeErr := store.Close(); closeErr != nil {
				slog.Error("Failed to close database", "error", closeErr)
			}
		}()

		limit, _ := cmd.Flags().GetInt("limit")
		fitRuns, listErr := store.ListFitRuns(ctx, limit)
		if listErr != nil {
			return fmt.Errorf("failed to list fit history: %w", listErr)
		}
		if len(fitRuns) == 0 {
			fmt.Fprintln(out, cli.FormatInfo("No fits recorded yet"))
			return nil
		}

		rows := make([][]string, 0, len(fitRuns))
		for _, r := range fitRuns {
			rows = append(rows, []string{
				r.RunID,
				r.CreatedAt.Local().Format("2006-01-02 15:04"),
				fmt.Sprintf("%d (%s %.3f)", r.K, r.Criterion, r.CriterionValue),
				strconv.Itoa(r.Customers),
				strconv.Itoa(r.Products),
				r.Weighting,
			})
		}
		fmt.Fprintln(out, cli.RenderTable([]string{"Run", "Created", "k", "Customers", "Products", "Weighting"}, rows))
		return nil
	}

	manifests, err := manager.List()
	if err != nil {
		return fmt.Errorf("failed to list runs: %w", err)
	}
	if len(manifests) == 0 {
		fmt.Fprintln(out, cli.FormatInfo("No published runs. Run 'spectrum fit' to create one."))
		return nil
	}

	current, err := manager.Current()
	if err != nil {
		slog.Warn("No current run", "error", err)
	}

	rows := make([][]string, 0, len(manifests))
	for _, m := range manifests {
		marker := ""
		if m.RunID == current {
			marker = cli.SuccessIcon
		}
		rows = append(rows, []string{
			marker,
			m.RunID,
			m.CreatedAt.Local().Format("2006-01-02 15:04"),
			fmt.Sprintf("%d (%s)", m.K, m.Criterion),
			strconv.Itoa(m.Customers),
			strconv.Itoa(m.Products),
		})
	}
	fmt.Fprintln(out, cli.RenderBox(cli.FolderIcon+" Published runs",
		cli.RenderTable([]string{"", "Run", "Created", "k", "Customers", "Products"}, rows)))
	return nil
}
