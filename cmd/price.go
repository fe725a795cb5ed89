package main

import (
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/reel-importer/internal/model"
	"github.com/sells-group/reel-importer/internal/pricing"
)

var (
	priceAmazonURL  string
	priceAliExpress []string
	priceSearch     []string
	priceMinSales   int
	priceTopN       int
	priceNoSoftPass bool
)

// priceReport is what the price command prints.
type priceReport struct {
	Retail        *model.PriceQuote   `json:"retail,omitempty"`
	RetailError   string              `json:"retail_error,omitempty"`
	Supplier      *model.BestQuote    `json:"supplier,omitempty"`
	SupplierError string              `json:"supplier_error,omitempty"`
	Decision      model.PriceDecision `json:"decision"`
}

var priceCmd = &cobra.Command{
	Use:   "price",
	Short: "Resolve quotes and apply the pricing rule to one product",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if err := cfg.Validate("price"); err != nil {
			return err
		}
		if priceAmazonURL == "" {
			return eris.New("--amazon-url is required")
		}

		resolver := newResolver(cfg.Pricing, newFetcher(cfg.Fetch), nil)
		policy := newPolicy(cfg.Pricing)
		if priceNoSoftPass {
			policy.SoftPass = false
		}

		var rep priceReport
		retail, err := resolver.ResolveRetail(ctx, priceAmazonURL)
		if err != nil {
			rep.RetailError = err.Error()
		}
		rep.Retail = retail

		supplier, err := resolver.ResolveSupplier(ctx, pricing.SupplierQuery{
			URLs:        priceAliExpress,
			SearchTerms: priceSearch,
			MinSales:    priceMinSales,
			TopN:        priceTopN,
		})
		if err != nil {
			rep.SupplierError = err.Error()
		}
		rep.Supplier = supplier

		rep.Decision = policy.Evaluate(retail, supplier)
		zap.L().Info("price decision",
			zap.String("branch", string(rep.Decision.Branch)),
			zap.String("reason", rep.Decision.Reason),
		)

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(rep)
	},
}

func init() {
	priceCmd.Flags().StringVar(&priceAmazonURL, "amazon-url", "", "retail listing URL (required)")
	priceCmd.Flags().StringSliceVar(&priceAliExpress, "aliexpress", nil, "supplier listing URLs")
	priceCmd.Flags().StringSliceVar(&priceSearch, "search", nil, "supplier search terms")
	priceCmd.Flags().IntVar(&priceMinSales, "min-sales", 300, "minimum supplier sales count")
	priceCmd.Flags().IntVar(&priceTopN, "top-n", 3, "supplier candidates to compare")
	priceCmd.Flags().BoolVar(&priceNoSoftPass, "no-soft-pass", false, "fail instead of soft-passing when the supplier price is unknown")
	rootCmd.AddCommand(priceCmd)
}
