// Package pipeline runs candidates through pricing, asset production and
// catalog submission.
package pipeline

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/sells-group/reel-importer/internal/assets"
	"github.com/sells-group/reel-importer/internal/copywriter"
	"github.com/sells-group/reel-importer/internal/manifest"
	"github.com/sells-group/reel-importer/internal/model"
	"github.com/sells-group/reel-importer/internal/monitoring"
	"github.com/sells-group/reel-importer/internal/pricing"
	"github.com/sells-group/reel-importer/pkg/catalog"
)

// PriceResolver resolves retail and supplier quotes.
type PriceResolver interface {
	ResolveRetail(ctx context.Context, rawURL string) (*model.PriceQuote, error)
	ResolveSupplier(ctx context.Context, q pricing.SupplierQuery) (*model.BestQuote, error)
}

// AssetProducer builds the local asset bundle for a candidate.
type AssetProducer interface {
	Produce(ctx context.Context, cand model.Candidate, workDir string, gallery []string) (*assets.Bundle, error)
}

// Ledger persists runs and per-candidate outcomes.
type Ledger interface {
	CreateRun(ctx context.Context) (*model.Run, error)
	FinishRun(ctx context.Context, runID string, status model.RunStatus, summary *model.RunSummary) error
	RecordOutcome(ctx context.Context, runID string, o model.Outcome) error
	WasSubmitted(ctx context.Context, externalID string) (bool, error)
}

// Options control a run.
type Options struct {
	Policy        pricing.Policy
	RRPMultiplier decimal.Decimal
	// TargetAccepted stops the run once this many candidates are accepted.
	// Zero means no target.
	TargetAccepted int
	// MaxRuntime stops the run before the next candidate once exceeded.
	MaxRuntime time.Duration
	// Force reprocesses candidates already submitted in earlier runs.
	Force bool
	// DryRun prices candidates without producing assets or touching the
	// catalog.
	DryRun   bool
	WorkDir  string
	Workflow string
}

// Pipeline orchestrates an import run.
type Pipeline struct {
	opts     Options
	catalog  catalog.Client
	resolver PriceResolver
	producer AssetProducer
	writer   copywriter.Writer
	ledger   Ledger
	metrics  *monitoring.Metrics
	now      func() time.Time
}

// New creates a Pipeline. ledger and writer may be nil.
func New(
	opts Options,
	client catalog.Client,
	resolver PriceResolver,
	producer AssetProducer,
	writer copywriter.Writer,
	ledger Ledger,
	metrics *monitoring.Metrics,
) *Pipeline {
	if metrics == nil {
		metrics = monitoring.NewMetrics()
	}
	return &Pipeline{
		opts:     opts,
		catalog:  client,
		resolver: resolver,
		producer: producer,
		writer:   writer,
		ledger:   ledger,
		metrics:  metrics,
		now:      time.Now,
	}
}

// Run processes candidates in order and submits accepted products in one
// batch. Only a login failure aborts the run; every other problem is
// recorded against its candidate.
func (p *Pipeline) Run(ctx context.Context, cands []model.Candidate) (*model.RunSummary, error) {
	return p.run(ctx, "", cands)
}

// Begin records a new run in the ledger and returns its id, so callers can
// hand the id out before the run starts. Pass the id to RunAs.
func (p *Pipeline) Begin(ctx context.Context) (string, error) {
	if p.ledger == nil {
		return uuid.NewString(), nil
	}
	run, err := p.ledger.CreateRun(ctx)
	if err != nil {
		return "", eris.Wrap(err, "pipeline: create run")
	}
	return run.ID, nil
}

// RunAs is Run for a run already created with Begin. A login failure marks
// that run failed.
func (p *Pipeline) RunAs(ctx context.Context, runID string, cands []model.Candidate) (*model.RunSummary, error) {
	return p.run(ctx, runID, cands)
}

func (p *Pipeline) run(ctx context.Context, runID string, cands []model.Candidate) (*model.RunSummary, error) {
	start := p.now()
	log := zap.L().With(zap.Int("candidates", len(cands)), zap.Bool("dry_run", p.opts.DryRun))
	log.Info("pipeline: starting run")

	var token string
	if !p.opts.DryRun {
		t, err := p.catalog.Login(ctx)
		if err != nil {
			if runID != "" && p.ledger != nil {
				p.abandon(ctx, runID, start, err)
			}
			return nil, eris.Wrap(err, "pipeline: login")
		}
		token = t
	}

	persist := p.ledger != nil
	if runID == "" {
		runID, persist = p.createRun(ctx)
	}
	log = log.With(zap.String("run_id", runID))

	runs := make([]*candidateRun, 0, len(cands))
	accepted := 0
	var stop string
	for _, c := range cands {
		manifest.ApplyDefaults(&c)
		cr := newCandidateRun(c)
		runs = append(runs, cr)

		if stop == "" {
			stop = p.budgetExceeded(ctx, start, accepted)
			if stop != "" {
				log.Info("pipeline: stopping early", zap.String("reason", stop))
			}
		}
		if stop != "" {
			_ = cr.transition(model.StateSkipped, stop)
			continue
		}

		p.process(ctx, token, cr)
		if p.accepted(cr) {
			accepted++
		}
	}

	var upsertErrs []model.UpsertError
	if !p.opts.DryRun {
		upsertErrs = p.submit(ctx, token, runs)
	}

	summary := p.summarize(runID, start, runs)
	summary.Errors = upsertErrs
	p.finish(ctx, runID, persist, runs, summary)

	log.Info("pipeline: run complete",
		zap.Int("successful", summary.Successful),
		zap.Int("failed", summary.Failed),
		zap.Int("skipped", len(summary.Skipped)),
		zap.Duration("elapsed", summary.FinishedAt.Sub(start)),
	)
	return summary, nil
}

func (p *Pipeline) createRun(ctx context.Context) (string, bool) {
	if p.ledger == nil {
		return uuid.NewString(), false
	}
	run, err := p.ledger.CreateRun(ctx)
	if err != nil {
		zap.L().Warn("pipeline: create run failed, outcomes will not be persisted", zap.Error(err))
		return uuid.NewString(), false
	}
	return run.ID, true
}

// abandon marks a begun run failed when it could not start.
func (p *Pipeline) abandon(ctx context.Context, runID string, start time.Time, cause error) {
	zap.L().Error("pipeline: run abandoned", zap.String("run_id", runID), zap.Error(cause))
	s := &model.RunSummary{RunID: runID, Skipped: []model.SkipEntry{}, StartedAt: start, FinishedAt: p.now()}
	if err := p.ledger.FinishRun(context.WithoutCancel(ctx), runID, model.RunStatusFailed, s); err != nil {
		zap.L().Warn("pipeline: finish run failed", zap.String("run_id", runID), zap.Error(err))
	}
}

// budgetExceeded returns why no further candidate may start, or "".
func (p *Pipeline) budgetExceeded(ctx context.Context, start time.Time, accepted int) string {
	switch {
	case ctx.Err() != nil:
		return "run cancelled"
	case p.opts.TargetAccepted > 0 && accepted >= p.opts.TargetAccepted:
		return "target accepted count reached"
	case p.opts.MaxRuntime > 0 && p.now().Sub(start) >= p.opts.MaxRuntime:
		return "max runtime reached"
	}
	return ""
}

func (p *Pipeline) accepted(cr *candidateRun) bool {
	if p.opts.DryRun {
		return cr.state == model.StatePricePassed
	}
	return cr.state == model.StateAssetsBuilt
}

// process takes one candidate as far as ASSETS_BUILT, or PRICE_PASSED on a
// dry run.
func (p *Pipeline) process(ctx context.Context, token string, cr *candidateRun) {
	log := zap.L().With(zap.String("candidate", cr.id))

	if reason := manifest.Validate(cr.cand, !p.opts.DryRun); reason != "" {
		log.Warn("pipeline: candidate skipped", zap.String("reason", reason))
		_ = cr.transition(model.StateSkipped, reason)
		return
	}

	if !p.opts.Force && !p.opts.DryRun && p.ledger != nil {
		done, err := p.ledger.WasSubmitted(ctx, cr.id)
		if err != nil {
			log.Warn("pipeline: dedup lookup failed", zap.Error(err))
		} else if done {
			log.Info("pipeline: candidate already submitted")
			_ = cr.transition(model.StateSkipped, "already submitted")
			return
		}
	}

	retail, supplier := p.quotes(ctx, cr.cand)
	d := p.policyFor(cr.cand).Evaluate(retail, supplier)
	cr.decision = &d
	p.metrics.Decision(d)
	log.Info("pipeline: price decision",
		zap.String("branch", string(d.Branch)),
		zap.String("reason", d.Reason),
	)

	if !d.Passed {
		_ = cr.transition(model.StatePriceFailed, d.Reason)
		return
	}
	_ = cr.transition(model.StatePricePassed, d.Reason)
	if p.opts.DryRun {
		return
	}

	rec, err := p.build(ctx, token, cr, retail, supplier)
	if err != nil {
		log.Error("pipeline: candidate failed", zap.Error(err))
		_ = cr.transition(model.StateFailed, err.Error())
		return
	}
	cr.record = rec
	_ = cr.transition(model.StateAssetsBuilt, "")
}

func (p *Pipeline) policyFor(c model.Candidate) pricing.Policy {
	pol := p.opts.Policy
	if c.SoftPass != nil {
		pol.SoftPass = *c.SoftPass
	}
	return pol
}

func (p *Pipeline) summarize(runID string, start time.Time, runs []*candidateRun) *model.RunSummary {
	s := &model.RunSummary{
		RunID:     runID,
		Total:     len(runs),
		Skipped:   []model.SkipEntry{},
		StartedAt: start,
	}
	for _, cr := range runs {
		switch {
		case cr.state == model.StateSubmitted:
			s.Successful++
			s.Submitted = append(s.Submitted, cr.id)
		case p.opts.DryRun && cr.state == model.StatePricePassed:
			s.Successful++
		case cr.state == model.StateFailed || cr.state == model.StateSubmitFailed:
			s.Failed++
			s.Failures = append(s.Failures, cr.skipEntry())
		default:
			s.Skipped = append(s.Skipped, cr.skipEntry())
		}
	}
	s.FinishedAt = p.now()
	return s
}

// finish records outcomes and metrics. Persistence outlives cancellation of
// the run context.
func (p *Pipeline) finish(ctx context.Context, runID string, persist bool, runs []*candidateRun, s *model.RunSummary) {
	ctx = context.WithoutCancel(ctx)
	for _, cr := range runs {
		p.metrics.Candidate(cr.state)
		if !persist {
			continue
		}
		o := cr.outcome()
		o.RecordedAt = s.FinishedAt
		if err := p.ledger.RecordOutcome(ctx, runID, o); err != nil {
			zap.L().Warn("pipeline: record outcome failed", zap.String("candidate", cr.id), zap.Error(err))
		}
	}
	p.metrics.Run(s.FinishedAt.Sub(s.StartedAt))

	if !persist {
		return
	}
	if err := p.ledger.FinishRun(ctx, runID, model.RunStatusComplete, s); err != nil {
		zap.L().Warn("pipeline: finish run failed", zap.String("run_id", runID), zap.Error(err))
	}
}
