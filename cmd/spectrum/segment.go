package main

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/Veraticus/shopper-spectrum/internal/cli"
	"github.com/Veraticus/shopper-spectrum/internal/common"
	"github.com/Veraticus/shopper-spectrum/internal/engine"
	"github.com/Veraticus/shopper-spectrum/internal/segment"
)

func segmentCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "segment [recency frequency monetary]",
		Short: "Assign customers to a segment",
		Long: `Predict the segment of one customer from recency (days since last purchase),
frequency (number of invoices) and monetary value (total spend), or of every row of
a CSV file with --file. Put "--" before the values when one of them starts with "-".`,
		Example: `  spectrum segment 12 8 950.50
  spectrum segment -- -5 2 100   # "--" lets a negative value reach validation
  spectrum segment --file customers.csv --out segments.csv`,
		Args: func(cmd *cobra.Command, args []string) error {
			file, _ := cmd.Flags().GetString("file")
			if file != "" {
				return cobra.NoArgs(cmd, args)
			}
			return cobra.ExactArgs(3)(cmd, args)
		},
		RunE: runSegment,
	}

	cmd.Flags().StringP("file", "f", "", "CSV with CustomerID, Recency, Frequency, Monetary columns")
	cmd.Flags().StringP("out", "o", "", "Write batch results to this CSV instead of stdout")

	return cmd
}

func runSegment(cmd *cobra.Command, args []string) error {
	settings, err := loadSettings()
	if err != nil {
		return err
	}
	eng := initEngine(settings)

	if file, _ := cmd.Flags().GetString("file"); file != "" {
		out, _ := cmd.Flags().GetString("out")
		return runSegmentBatch(cmd, eng, file, out)
	}

	values := make([]float64, len(args))
	for i, name := range []string{"recency", "frequency", "monetary"} {
		v, parseErr := strconv.ParseFloat(args[i], 64)
		if parseErr != nil {
			return common.NewUserError(fmt.Sprintf("%s must be a number, got %q", name, args[i]),
				common.NewValidationError(name, args[i], "not a number"))
		}
		values[i] = v
	}

	seg, err := eng.SegmentCustomer(values[0], values[1], values[2])
	if err != nil {
		return explainServingError(err)
	}

	content := fmt.Sprintf("Recency    %g days\nFrequency  %g invoices\nMonetary   %.2f\n\n%s",
		values[0], values[1], values[2],
		cli.BoldStyle.Render(fmt.Sprintf("%s (cluster %d)", seg.Label, seg.ClusterID)))
	fmt.Fprintln(cmd.OutOrStdout(), cli.RenderBox(cli.ChartIcon+" Customer segment", content))
	return nil
}

func runSegmentBatch(cmd *cobra.Command, eng *engine.Engine, file, out string) error {
	in, err := os.Open(file) //nolint:gosec // path is a user-supplied batch file
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", file, err)
	}
	defer func() { _ = in.Close() }()

	batch, err := eng.SegmentBatch(cmd.Context(), in)
	if err != nil {
		return explainServingError(err)
	}

	if out == "" {
		return segment.WriteBatch(cmd.OutOrStdout(), batch)
	}

	f, err := os.Create(out) //nolint:gosec // path is a user-supplied output file
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", out, err)
	}
	if err := segment.WriteBatch(f, batch); err != nil {
		_ = f.Close()
		return fmt.Errorf("failed to write %s: %w", out, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to write %s: %w", out, err)
	}

	failed := batch.Failed()
	fmt.Fprintln(cmd.OutOrStdout(), cli.FormatSuccess(fmt.Sprintf("Segmented %d customers into %s", len(batch.Rows)-failed, out)))
	if failed > 0 {
		fmt.Fprintln(cmd.OutOrStdout(), cli.FormatWarning(fmt.Sprintf("%d rows could not be segmented; see the Error column", failed)))
	}
	return nil
}

// explainServingError turns the recoverable serving failures into user-facing messages.
func explainServingError(err error) error {
	var validation *common.ValidationError
	switch {
	case errors.Is(err, common.ErrArtifactMissing):
		return common.NewUserError("No usable published models. Run 'spectrum fit' first.", err)
	case errors.As(err, &validation):
		return common.NewUserError(fmt.Sprintf("Invalid %s: %s", validation.Field, validation.Reason), err)
	default:
		return err
	}
}
