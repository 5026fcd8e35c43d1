package main

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Veraticus/shopper-spectrum/internal/cli"
	"github.com/Veraticus/shopper-spectrum/internal/common"
	"github.com/Veraticus/shopper-spectrum/internal/recommend"
)

func recommendCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "recommend <product name>",
		Short: "Recommend products similar to a product",
		Long: `List the products most often bought by the same customers as the given product,
ranked by cosine similarity. The product name must match exactly; close names are
suggested when it does not.`,
		Example: `  spectrum recommend "WHITE HANGING HEART T-LIGHT HOLDER"
  spectrum recommend --k 10 JUMBO BAG RED RETROSPOT`,
		Args: cobra.MinimumNArgs(1),
		RunE: runRecommend,
	}

	cmd.Flags().IntP("k", "k", recommend.DefaultK, "Number of recommendations")

	return cmd
}

func runRecommend(cmd *cobra.Command, args []string) error {
	settings, err := loadSettings()
	if err != nil {
		return err
	}
	eng := initEngine(settings)

	k, _ := cmd.Flags().GetInt("k")
	product := strings.TrimSpace(strings.Join(args, " "))

	recs, err := eng.RecommendProducts(product, k)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return unknownProductError(eng.Suggest, product, err)
		}
		return explainServingError(err)
	}

	out := cmd.OutOrStdout()
	if len(recs) == 0 {
		fmt.Fprintln(out, cli.FormatWarning("No other products are known"))
		return nil
	}

	rows := make([][]string, 0, len(recs))
	for i, rec := range recs {
		rows = append(rows, []string{strconv.Itoa(i + 1), rec.Product, cli.FormatScore(rec.Score)})
	}
	title := fmt.Sprintf("%s Customers who bought %s also bought", cli.CartIcon, product)
	fmt.Fprintln(out, cli.RenderBox(title, cli.RenderTable([]string{"#", "Product", "Score"}, rows)))
	return nil
}

// unknownProductError adds close product names to a not-found failure.
func unknownProductError(suggest func(string, int) ([]string, error), product string, cause error) error {
	msg := fmt.Sprintf("Product %q was not found.", product)
	if names, err := suggest(product, 5); err == nil && len(names) > 0 {
		msg += " Did you mean:\n  " + strings.Join(names, "\n  ")
	}
	return common.NewUserError(msg, cause)
}
