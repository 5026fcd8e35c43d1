package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/Veraticus/shopper-spectrum/internal/artifact"
	"github.com/Veraticus/shopper-spectrum/internal/cli"
	"github.com/Veraticus/shopper-spectrum/internal/common"
	"github.com/Veraticus/shopper-spectrum/internal/ingest"
	"github.com/Veraticus/shopper-spectrum/internal/model"
	"github.com/Veraticus/shopper-spectrum/internal/pipeline"
	"github.com/Veraticus/shopper-spectrum/internal/service"
)

func fitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "fit",
		Short: "Fit segmentation and recommendation models",
		Long: `Build RFM features, cluster customers and compute product similarity, then
publish every artifact as one set.

By default the transactions imported into the local database are used; pass --input
to fit straight from a CSV extract. If the fit fails or is interrupted, the previously
published models stay in service.`,
		RunE: runFit,
	}

	cmd.Flags().StringP("input", "i", "", "Fit from this CSV extract instead of the database")
	cmd.Flags().Bool("latin1", false, "Decode --input as ISO-8859-1")
	cmd.Flags().String("since", "", "First invoice date to fit on (format: 2006-01-02)")
	cmd.Flags().String("until", "", "Last invoice date to fit on, inclusive (format: 2006-01-02)")
	cmd.Flags().String("snapshot", "", "Recency reference date (format: 2006-01-02, default: day after last purchase)")
	cmd.Flags().IntP("k", "k", 0, "Fixed number of segments (0 selects automatically)")
	cmd.Flags().Int("k-min", 2, "Smallest k to try")
	cmd.Flags().Int("k-max", 8, "Largest k to try")
	cmd.Flags().String("criterion", "silhouette", "k selection criterion (silhouette, elbow)")
	cmd.Flags().Uint64("seed", 42, "Random seed for centroid initialization")
	cmd.Flags().String("weighting", "quantity", "Similarity weighting (quantity, binary)")
	cmd.Flags().Int("min-support", 2, "Minimum distinct customers per product")
	cmd.Flags().Bool("include-anonymous", false, "Treat anonymous invoices as customers for similarity")
	cmd.Flags().Int("keep", 5, "Number of published runs to keep")

	_ = viper.BindPFlag("fit.input", cmd.Flags().Lookup("input"))
	_ = viper.BindPFlag("fit.latin1", cmd.Flags().Lookup("latin1"))
	_ = viper.BindPFlag("fit.since", cmd.Flags().Lookup("since"))
	_ = viper.BindPFlag("fit.until", cmd.Flags().Lookup("until"))
	_ = viper.BindPFlag("rfm.snapshot_date", cmd.Flags().Lookup("snapshot"))
	_ = viper.BindPFlag("fit.k", cmd.Flags().Lookup("k"))
	_ = viper.BindPFlag("fit.k_min", cmd.Flags().Lookup("k-min"))
	_ = viper.BindPFlag("fit.k_max", cmd.Flags().Lookup("k-max"))
	_ = viper.BindPFlag("fit.criterion", cmd.Flags().Lookup("criterion"))
	_ = viper.BindPFlag("fit.seed", cmd.Flags().Lookup("seed"))
	_ = viper.BindPFlag("similarity.weighting", cmd.Flags().Lookup("weighting"))
	_ = viper.BindPFlag("similarity.min_support", cmd.Flags().Lookup("min-support"))
	_ = viper.BindPFlag("similarity.include_anonymous", cmd.Flags().Lookup("include-anonymous"))
	_ = viper.BindPFlag("artifacts.keep", cmd.Flags().Lookup("keep"))

	return cmd
}

func runFit(cmd *cobra.Command, _ []string) error {
	out := cmd.OutOrStdout()

	settings, err := loadSettings()
	if err != nil {
		return err
	}
	opts, err := pipeline.OptionsFromSettings(settings)
	if err != nil {
		return err
	}

	window, err := fitWindow(viper.GetString("fit.since"), viper.GetString("fit.until"))
	if err != nil {
		return err
	}

	handler := cli.NewInterruptHandler(cmd.ErrOrStderr())
	ctx := handler.HandleInterrupts(cmd.Context(), "Fit")
	defer handler.Stop()

	store, err := initStorage(ctx, settings)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer func() {
		if closeErr := store.Close(); closeErr != nil {
			slog.Error("Failed to close database", "error", closeErr)
		}
	}()

	var (
		transactions []model.Transaction
		readReport   *ingest.Report
	)
	if input := viper.GetString("fit.input"); input != "" {
		var report ingest.Report
		transactions, report, err = readExtract(cmd, input, viper.GetBool("fit.latin1"))
		if err != nil {
			return err
		}
		transactions = window.Apply(transactions)
		readReport = &report
	} else {
		first, last, rangeErr := store.DateRange(ctx)
		if rangeErr != nil {
			return fmt.Errorf("failed to read stored date range: %w", rangeErr)
		}
		if !first.IsZero() {
			fmt.Fprintln(out, cli.FormatInfo(fmt.Sprintf("Database holds invoices from %s to %s",
				first.Format("2006-01-02"), last.Format("2006-01-02"))))
		}

		transactions, err = loadStoredTransactions(ctx, store, window)
		if err != nil {
			return fmt.Errorf("failed to load transactions: %w", err)
		}
	}
	if len(transactions) == 0 {
		return common.NewUserError("No transactions found in the selected window. Run 'spectrum import <file.csv>', pass --input or widen --since/--until.", nil)
	}

	fmt.Fprintln(out, cli.FormatTitle(fmt.Sprintf("Fitting models on %d transactions", len(transactions))))

	p := pipeline.New(artifact.NewManager(settings.Artifacts.Dir),
		pipeline.WithStorage(store),
		pipeline.WithReporter(cli.NewProgressReporter(cmd.ErrOrStderr())),
		pipeline.WithKeep(settings.Artifacts.Keep))

	result, err := p.Run(ctx, transactions, opts)
	if err != nil {
		common.LogError(err, "Fit failed", common.Fields{"transactions": len(transactions)})
		if handler.WasInterrupted() {
			return common.NewUserError("Fit interrupted", err)
		}
		if errors.Is(err, common.ErrDataQuality) {
			return common.NewUserError("The data cannot support a fit: "+err.Error(), err)
		}
		return fmt.Errorf("fit failed: %w", err)
	}

	report := result.Report
	if readReport != nil {
		report = *readReport
	}
	fmt.Fprintln(out, cli.RenderBox("Input", formatReport(report)))
	fmt.Fprintln(out, cli.RenderBox("Segments", formatSelection(result)))
	fmt.Fprintln(out, cli.RenderBox("Products", formatSimilarity(result)))
	fmt.Fprintln(out, cli.FormatSuccess("Published run "+result.Manifest.RunID))
	return nil
}

// loadPageSize bounds how many stored lines are read per query.
const loadPageSize = 50000

// loadStoredTransactions reads every stored line inside window, one page at a time.
func loadStoredTransactions(ctx context.Context, store service.Storage, window service.TransactionFilter) ([]model.Transaction, error) {
	var all []model.Transaction
	filter := window
	filter.Limit = loadPageSize
	for {
		page, err := store.GetTransactions(ctx, filter)
		if err != nil {
			return nil, err
		}
		all = append(all, page...)
		if len(page) < filter.Limit {
			return all, nil
		}
		filter.Offset += len(page)
	}
}

// fitWindow turns the --since/--until dates into a filter. until is inclusive.
func fitWindow(since, until string) (service.TransactionFilter, error) {
	var filter service.TransactionFilter
	if since != "" {
		t, err := time.Parse("2006-01-02", since)
		if err != nil {
			return filter, common.NewUserError(fmt.Sprintf("Invalid --since date %q, want YYYY-MM-DD", since), err)
		}
		filter.StartDate = &t
	}
	if until != "" {
		t, err := time.Parse("2006-01-02", until)
		if err != nil {
			return filter, common.NewUserError(fmt.Sprintf("Invalid --until date %q, want YYYY-MM-DD", until), err)
		}
		end := t.AddDate(0, 0, 1)
		filter.EndDate = &end
	}
	if filter.StartDate != nil && filter.EndDate != nil && !filter.StartDate.Before(*filter.EndDate) {
		return filter, common.NewUserError("--since must not be after --until", nil)
	}
	return filter, nil
}

func formatSelection(r *pipeline.Result) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "k = %d chosen by %s (%.4f) over %d customers\n\n",
		r.Selection.K, r.Selection.Criterion, r.Selection.Value, r.Customers)

	rows := make([][]string, 0, len(r.Profiles))
	for _, p := range r.Profiles {
		rows = append(rows, []string{
			p.Label,
			strconv.Itoa(p.ClusterID),
			strconv.Itoa(p.Size),
			fmt.Sprintf("%.1f", p.Recency),
			fmt.Sprintf("%.1f", p.Frequency),
			fmt.Sprintf("%.2f", p.Monetary),
		})
	}
	sb.WriteString(cli.RenderTable([]string{"Segment", "Cluster", "Customers", "Recency", "Frequency", "Monetary"}, rows))
	return sb.String()
}

func formatSimilarity(r *pipeline.Result) string {
	msg := fmt.Sprintf("%d products, %d co-purchased pairs", r.Products, r.Pairs)
	if len(r.Excluded) > 0 {
		msg += fmt.Sprintf("\n%d products below minimum support were excluded", len(r.Excluded))
	}
	return msg
}
