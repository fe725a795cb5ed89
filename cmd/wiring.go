package main

import (
	"context"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/sells-group/reel-importer/internal/assets"
	"github.com/sells-group/reel-importer/internal/config"
	"github.com/sells-group/reel-importer/internal/copywriter"
	"github.com/sells-group/reel-importer/internal/encode"
	"github.com/sells-group/reel-importer/internal/fetcher"
	"github.com/sells-group/reel-importer/internal/media"
	"github.com/sells-group/reel-importer/internal/monitoring"
	"github.com/sells-group/reel-importer/internal/pipeline"
	"github.com/sells-group/reel-importer/internal/pricing"
	"github.com/sells-group/reel-importer/internal/resilience"
	"github.com/sells-group/reel-importer/internal/store"
	"github.com/sells-group/reel-importer/internal/windows"
	"github.com/sells-group/reel-importer/pkg/catalog"
)

// importEnv holds everything the run and serve commands need. Callers
// should defer env.Close().
type importEnv struct {
	Store    store.Store
	Pipeline *pipeline.Pipeline
	Metrics  *monitoring.Metrics
}

// Close releases resources held by the environment.
func (e *importEnv) Close() {
	if e.Store != nil {
		_ = e.Store.Close()
	}
}

// runOverrides are command-line values that win over config.
type runOverrides struct {
	TargetAccepted int
	MaxRuntime     time.Duration
	Force          bool
	DryRun         bool
}

// initImport validates config, opens the store and builds the pipeline.
func initImport(ctx context.Context, ov runOverrides) (*importEnv, error) {
	mode := "import"
	if ov.DryRun {
		mode = "price"
	}
	if err := cfg.Validate(mode); err != nil {
		return nil, err
	}

	st, err := store.Open(ctx, cfg.Store)
	if err != nil {
		return nil, eris.Wrap(err, "open store")
	}

	metrics := monitoring.NewMetrics()
	fetch := newFetcher(cfg.Fetch)
	resolver := newResolver(cfg.Pricing, fetch, st)

	producer, err := newProducer(cfg, fetch, metrics)
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	writer, err := copywriter.New(cfg)
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	opts := pipeline.Options{
		Policy:         newPolicy(cfg.Pricing),
		RRPMultiplier:  decimal.NewFromFloat(cfg.Pricing.RRPMultiplier),
		TargetAccepted: cfg.Batch.TargetAccepted,
		MaxRuntime:     cfg.Batch.MaxRuntime,
		Force:          cfg.Batch.Force || ov.Force,
		DryRun:         ov.DryRun,
		WorkDir:        cfg.Media.WorkDir,
		Workflow:       "reel_importer",
	}
	if ov.TargetAccepted > 0 {
		opts.TargetAccepted = ov.TargetAccepted
	}
	if ov.MaxRuntime > 0 {
		opts.MaxRuntime = ov.MaxRuntime
	}

	p := pipeline.New(opts, newCatalog(cfg.Catalog), resolver, producer, writer, st, metrics)
	return &importEnv{Store: st, Pipeline: p, Metrics: metrics}, nil
}

func newFetcher(fc config.FetchConfig) *fetcher.HTTPFetcher {
	return fetcher.New(fetcher.Options{
		UserAgent:       fc.UserAgent,
		Timeout:         time.Duration(fc.TimeoutSecs) * time.Second,
		MaxRetries:      fc.MaxRetries,
		RatePerSecond:   fc.RatePerSecond,
		Burst:           fc.Burst,
		BreakerFailures: fc.BreakerFailures,
		BreakerCooldown: time.Duration(fc.BreakerCooldownSecs) * time.Second,
	})
}

// newResolver builds the quote resolver. cache may be nil.
func newResolver(pc config.PricingConfig, f fetcher.HTMLFetcher, cache pricing.QuoteCache) *pricing.Resolver {
	opts := []pricing.ResolverOption{
		pricing.WithShippingPolicy(pricing.ShippingPolicy(pc.UnknownShipping)),
		pricing.WithSearch(pc.SearchURL, pc.ItemURL, pc.MaxDetailFetches),
	}
	if cache != nil {
		opts = append(opts, pricing.WithQuoteCache(cache, pc.QuoteCacheTTL))
	}
	return pricing.NewResolver(f, opts...)
}

func newPolicy(pc config.PricingConfig) pricing.Policy {
	return pricing.Policy{
		HalfRatio: decimal.NewFromFloat(pc.HalfRatio),
		MinSpread: decimal.NewFromFloat(pc.MinSpread),
		SoftPass:  pc.SoftPass,
	}
}

func newProducer(c *config.Config, download fetcher.Downloader, metrics *monitoring.Metrics) (*assets.Producer, error) {
	aspect, err := media.ParseAspect(c.Encode.Aspect)
	if err != nil {
		return nil, eris.Wrap(err, "encode aspect")
	}

	tools := media.NewTools(c.Media.FFmpegPath, c.Media.FFprobePath, c.Media.YtDLPPath, nil)

	var scorer windows.Scorer
	if c.Windows.Scorer == "permissive" {
		scorer = windows.PermissiveScorer{}
	}
	detector := windows.NewDetector(tools, scorer, windows.Options{
		MarginFraction: c.Windows.MarginFraction,
		SampleStep:     c.Windows.SampleStep,
		CleanThreshold: c.Windows.CleanThreshold,
		AdmitRatio:     c.Windows.AdmitRatio,
		Spacing:        c.Windows.Spacing,
		AnalysisWidth:  c.Windows.AnalysisWidth,
	})

	encoder := encode.NewEncoder(tools, encode.Options{
		Widths:   c.Encode.Widths,
		FPSStep:  c.Encode.FPSStep,
		Dither:   c.Encode.Dither,
		PadColor: c.Encode.PadColor,
	})
	if metrics != nil {
		encoder.OnAttempt = func(a encode.Attempt, size int64) {
			metrics.Encode()
			zap.L().Debug("encode: attempt",
				zap.Int("width", a.Width),
				zap.Int("fps", a.FPS),
				zap.Int64("bytes", size),
			)
		}
	}

	return assets.NewProducer(tools, detector, encoder, download, assets.Settings{
		Aspect:      aspect,
		MinDuration: c.Windows.MinDuration,
		MaxDuration: c.Windows.MaxDuration,
		Count:       c.Windows.Count,
		SizeCap:     c.Encode.SizeCapBytes(),
		FPSTarget:   c.Encode.FPSTarget,
		FPSFloor:    c.Encode.FPSFloor,
		StillSize:   c.Media.StillSize,
		PadColor:    c.Encode.PadColor,
	}), nil
}

func newCatalog(cc config.CatalogConfig) catalog.Client {
	timeout := time.Duration(cc.TimeoutSecs) * time.Second
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	retry := resilience.DefaultPolicy()
	retry.Notify = resilience.LogRetries("catalog", "request")

	creds := catalog.Credentials{
		AnonKey:    cc.AnonKey,
		AdminToken: cc.AdminToken,
		Email:      cc.Email,
		Password:   cc.Password,
	}
	return catalog.NewClient(cc.URL, creds,
		catalog.WithHTTPClient(&http.Client{Timeout: timeout}),
		catalog.WithBucket(cc.Bucket),
		catalog.WithSource(cc.Source),
		catalog.WithRetry(retry),
	)
}
