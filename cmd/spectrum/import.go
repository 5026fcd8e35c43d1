package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/Veraticus/shopper-spectrum/internal/cli"
	"github.com/Veraticus/shopper-spectrum/internal/ingest"
	"github.com/Veraticus/shopper-spectrum/internal/model"
)

func importCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import <file.csv>",
		Short: "Import a retail transaction extract",
		Long: `Import invoice lines from a CSV extract into the local database.

Cancelled invoices and lines with a non-positive quantity or price are dropped.
Lines already imported are skipped, so re-importing the same file is safe.`,
		Args: cobra.ExactArgs(1),
		RunE: runImport,
	}

	cmd.Flags().Bool("latin1", false, "Decode the file as ISO-8859-1 instead of UTF-8")
	cmd.Flags().Bool("dry-run", false, "Show what would be imported without saving")

	_ = viper.BindPFlag("import.latin1", cmd.Flags().Lookup("latin1"))
	_ = viper.BindPFlag("import.dry_run", cmd.Flags().Lookup("dry-run"))

	return cmd
}

func runImport(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	settings, err := loadSettings()
	if err != nil {
		return err
	}

	transactions, report, err := readExtract(cmd, args[0], viper.GetBool("import.latin1"))
	if err != nil {
		return err
	}

	if viper.GetBool("import.dry_run") {
		fmt.Fprintln(out, cli.RenderBox("Import preview", formatReport(report)))
		fmt.Fprintln(out, cli.FormatInfo("Dry run: nothing was saved"))
		return nil
	}

	store, err := initStorage(ctx, settings)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer func() {
		if closeErr := store.Close(); closeErr != nil {
			slog.Error("Failed to close database", "error", closeErr)
		}
	}()

	source := filepath.Base(args[0])
	inserted, err := store.SaveTransactions(ctx, transactions, source)
	if err != nil {
		return fmt.Errorf("failed to save transactions: %w", err)
	}

	slog.Info("Imported transactions",
		"source", source,
		"kept", len(transactions),
		"inserted", inserted)

	fmt.Fprintln(out, cli.RenderBox("Import complete", formatReport(report)))
	fmt.Fprintln(out, cli.FormatSuccess(fmt.Sprintf("%d new transactions saved (%d already present)",
		inserted, len(transactions)-inserted)))

	first, last, err := store.DateRange(ctx)
	if err != nil {
		return fmt.Errorf("failed to read stored date range: %w", err)
	}
	if !first.IsZero() {
		fmt.Fprintln(out, cli.FormatInfo(fmt.Sprintf("Database now holds invoices from %s to %s",
			first.Format("2006-01-02"), last.Format("2006-01-02"))))
	}
	return nil
}

// readExtract parses and cleans one CSV file. The returned report covers both steps.
func readExtract(cmd *cobra.Command, path string, latin1 bool) ([]model.Transaction, ingest.Report, error) {
	f, err := os.Open(path) //nolint:gosec // path is a user-supplied extract
	if err != nil {
		return nil, ingest.Report{}, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	var opts []ingest.ParserOption
	if latin1 {
		opts = append(opts, ingest.WithLatin1())
	}

	parsed, parseReport, err := ingest.NewParser(opts...).ParseFile(cmd.Context(), f)
	if err != nil {
		return nil, ingest.Report{}, fmt.Errorf("failed to parse %s: %w", path, err)
	}

	cleaned, report := ingest.Clean(parsed)
	report.Rows = parseReport.Rows
	report.Malformed += parseReport.Malformed
	return cleaned, report, nil
}

func formatReport(r ingest.Report) string {
	var sb strings.Builder
	writeLine := func(w io.Writer, label string, n int) {
		fmt.Fprintf(w, "%-24s %d\n", label, n)
	}
	writeLine(&sb, "Rows read", r.Rows)
	writeLine(&sb, "Malformed", r.Malformed)
	writeLine(&sb, "Cancelled", r.Cancelled)
	writeLine(&sb, "Non-positive quantity", r.NonPositiveQuantity)
	writeLine(&sb, "Non-positive price", r.NonPositivePrice)
	writeLine(&sb, "Invalid", r.Invalid)
	writeLine(&sb, "Kept", r.Kept)
	writeLine(&sb, "  anonymous", r.Anonymous)
	writeLine(&sb, "  missing description", r.MissingDescription)
	return strings.TrimRight(sb.String(), "\n")
}
