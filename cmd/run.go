package main

import (
	"encoding/json"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/reel-importer/internal/manifest"
	"github.com/sells-group/reel-importer/internal/model"
)

// productFlags describe a single product given on the command line.
type productFlags struct {
	Name          string
	Category      string
	ReelURL       string
	AmazonURL     string
	AliExpress    []string
	SearchTerms   []string
	RetailPrice   string
	SupplierPrice string
	AssetsDir     string
}

var (
	runManifestDir string
	runFile        string
	runProduct     productFlags
	runTarget      int
	runMaxRuntime  time.Duration
	runForce       bool
	runDryRun      bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Import products from manifests or flags",
	Long:  "Prices every candidate, builds clips for the ones that pass, uploads assets and upserts the batch into the catalog. Prints the run summary as JSON.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		cands, err := loadCandidates()
		if err != nil {
			return err
		}
		if len(cands) == 0 {
			return eris.New("no candidates: pass --name or add manifests")
		}

		env, err := initImport(ctx, runOverrides{
			TargetAccepted: runTarget,
			MaxRuntime:     runMaxRuntime,
			Force:          runForce,
			DryRun:         runDryRun,
		})
		if err != nil {
			return err
		}
		defer env.Close()

		summary, err := env.Pipeline.Run(ctx, cands)
		if err != nil {
			return eris.Wrap(err, "pipeline run")
		}

		zap.L().Info("import complete",
			zap.String("run_id", summary.RunID),
			zap.Int("total", summary.Total),
			zap.Int("successful", summary.Successful),
			zap.Int("failed", summary.Failed),
			zap.Int("skipped", len(summary.Skipped)),
		)

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(summary)
	},
}

// loadCandidates reads the single product from flags, a manifest file, or
// the manifest directory, in that order of precedence.
func loadCandidates() ([]model.Candidate, error) {
	if runProduct.Name != "" {
		c, err := runProduct.candidate()
		if err != nil {
			return nil, err
		}
		return []model.Candidate{c}, nil
	}
	if runFile != "" {
		return manifest.LoadFile(runFile)
	}
	dir := runManifestDir
	if dir == "" {
		dir = cfg.Batch.ManifestDir
	}
	return manifest.Load(dir)
}

func (f productFlags) candidate() (model.Candidate, error) {
	c := model.Candidate{
		Name:                 f.Name,
		Category:             f.Category,
		ReelURL:              f.ReelURL,
		AmazonURL:            f.AmazonURL,
		AliExpressCandidates: f.AliExpress,
		SearchTerms:          f.SearchTerms,
		AssetsDir:            f.AssetsDir,
	}
	var err error
	if c.RetailPrice, err = parsePrice("retail-price", f.RetailPrice); err != nil {
		return c, err
	}
	if c.SupplierPrice, err = parsePrice("supplier-price", f.SupplierPrice); err != nil {
		return c, err
	}
	manifest.ApplyDefaults(&c)
	return c, nil
}

func parsePrice(flag, raw string) (*decimal.Decimal, error) {
	if raw == "" {
		return nil, nil
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return nil, eris.Wrapf(err, "invalid --%s %q", flag, raw)
	}
	if d.IsNegative() {
		return nil, eris.Errorf("invalid --%s %q: must not be negative", flag, raw)
	}
	return &d, nil
}

func addProductFlags(cmd *cobra.Command, f *productFlags) {
	cmd.Flags().StringVar(&f.Name, "name", "", "product name (single-product mode)")
	cmd.Flags().StringVar(&f.Category, "category", "", "catalog category")
	cmd.Flags().StringVar(&f.ReelURL, "reel-url", "", "source reel URL")
	cmd.Flags().StringVar(&f.AmazonURL, "amazon-url", "", "retail listing URL")
	cmd.Flags().StringSliceVar(&f.AliExpress, "aliexpress", nil, "supplier listing URLs")
	cmd.Flags().StringSliceVar(&f.SearchTerms, "search", nil, "supplier search terms")
	cmd.Flags().StringVar(&f.RetailPrice, "retail-price", "", "retail price used when the listing cannot be read")
	cmd.Flags().StringVar(&f.SupplierPrice, "supplier-price", "", "supplier price used when no listing can be read")
	cmd.Flags().StringVar(&f.AssetsDir, "assets-dir", "", "directory of prebuilt assets used instead of a reel")
}

func init() {
	runCmd.Flags().StringVar(&runManifestDir, "manifests", "", "manifest directory (default from config)")
	runCmd.Flags().StringVar(&runFile, "file", "", "single manifest file")
	addProductFlags(runCmd, &runProduct)
	runCmd.Flags().IntVar(&runTarget, "target", 0, "stop after this many accepted products (0 = config)")
	runCmd.Flags().DurationVar(&runMaxRuntime, "max-runtime", 0, "stop starting new candidates after this long (0 = config)")
	runCmd.Flags().BoolVar(&runForce, "force", false, "reprocess products already submitted")
	runCmd.Flags().BoolVar(&runDryRun, "dry-run", false, "price only; no clips, uploads or upserts")
	rootCmd.AddCommand(runCmd)
}
