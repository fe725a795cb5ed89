package main

import (
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/reel-importer/internal/model"
)

var (
	clipsReelURL string
	clipsOut     string
	clipsAspect  string
)

var clipsCmd = &cobra.Command{
	Use:   "clips",
	Short: "Cut text-free GIF clips from a reel into a local directory",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if clipsAspect != "" {
			cfg.Encode.Aspect = clipsAspect
		}
		if err := cfg.Validate("clips"); err != nil {
			return err
		}
		if clipsReelURL == "" {
			return eris.New("--reel-url is required")
		}
		if err := os.MkdirAll(clipsOut, 0o755); err != nil {
			return eris.Wrap(err, "create output dir")
		}

		producer, err := newProducer(cfg, newFetcher(cfg.Fetch), nil)
		if err != nil {
			return err
		}

		bundle, err := producer.Produce(ctx, model.Candidate{Name: "clips", ReelURL: clipsReelURL}, clipsOut, nil)
		if err != nil {
			return eris.Wrap(err, "produce clips")
		}

		zap.L().Info("clips complete",
			zap.String("policy", bundle.Policy),
			zap.Int("clips", len(bundle.Clips)),
			zap.Int("best_effort", bundle.BestEffortClips()),
		)

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(bundle)
	},
}

func init() {
	clipsCmd.Flags().StringVar(&clipsReelURL, "reel-url", "", "source reel URL (required)")
	clipsCmd.Flags().StringVar(&clipsOut, "out", "clips", "output directory")
	clipsCmd.Flags().StringVar(&clipsAspect, "aspect", "", "square or tall (default from config)")
	rootCmd.AddCommand(clipsCmd)
}
