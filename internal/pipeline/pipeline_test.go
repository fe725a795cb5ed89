package pipeline

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rotisserie/eris"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/reel-importer/internal/assets"
	"github.com/sells-group/reel-importer/internal/copywriter"
	"github.com/sells-group/reel-importer/internal/model"
	"github.com/sells-group/reel-importer/internal/monitoring"
	"github.com/sells-group/reel-importer/internal/pricing"
	"github.com/sells-group/reel-importer/pkg/catalog"
)

type harness struct {
	t       *testing.T
	cat     *mockCatalog
	res     *fakeResolver
	prod    *fakeProducer
	ledger  *fakeLedger
	metrics *monitoring.Metrics
	workDir string
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	return &harness{
		t:       t,
		cat:     &mockCatalog{},
		res:     newFakeResolver(),
		prod:    &fakeProducer{},
		ledger:  newFakeLedger(),
		metrics: monitoring.NewMetrics(),
		workDir: t.TempDir(),
	}
}

func (h *harness) price(id, retail, supplier string) {
	if retail != "" {
		h.res.retail["https://amazon.test/"+id] = decimal.RequireFromString(retail)
	}
	if supplier != "" {
		h.res.supplier["https://aliexpress.test/"+id] = decimal.RequireFromString(supplier)
	}
}

func (h *harness) pipeline(opts Options) *Pipeline {
	if opts.Policy.HalfRatio.IsZero() {
		opts.Policy = pricing.DefaultPolicy()
	}
	opts.WorkDir = h.workDir
	return New(opts, h.cat, h.res, h.prod, copywriter.TemplateWriter{}, h.ledger, h.metrics)
}

func (h *harness) expectLogin() {
	h.cat.On("Login", mock.Anything).Return("tok", nil)
}

func (h *harness) expectUploads() {
	h.cat.On("Upload", mock.Anything, "tok", mock.Anything, mock.Anything).Return("https://cdn.test/asset", nil)
}

func (h *harness) assertWorkDirClean() {
	h.t.Helper()
	entries, err := os.ReadDir(h.workDir)
	require.NoError(h.t, err)
	assert.Empty(h.t, entries, "per-candidate work dirs must be removed")
}

func candidate(id string) model.Candidate {
	return model.Candidate{
		ExternalID:           id,
		Name:                 "Sunset Lamp " + id,
		Category:             "Lighting",
		ReelURL:              "https://www.instagram.com/reel/" + id + "/",
		AmazonURL:            "https://amazon.test/" + id,
		AliExpressCandidates: []string{"https://aliexpress.test/" + id},
	}
}

func assertSummaryBalanced(t *testing.T, s *model.RunSummary) {
	t.Helper()
	assert.Equal(t, s.Total, s.Successful+s.Failed+len(s.Skipped))
	assert.Len(t, s.Failures, s.Failed)
}

func TestRun_SpreadPassSubmits(t *testing.T) {
	h := newHarness(t)
	h.price("sku-1", "50.00", "28.00")
	h.expectLogin()
	h.expectUploads()

	var got []model.ProductRecord
	h.cat.On("Upsert", mock.Anything, "tok", mock.Anything).
		Run(func(args mock.Arguments) { got = args.Get(2).([]model.ProductRecord) }).
		Return(&catalog.UpsertResult{Total: 1, Successful: 1}, nil)

	s, err := h.pipeline(Options{Workflow: "reel_importer"}).Run(context.Background(), []model.Candidate{candidate("sku-1")})
	require.NoError(t, err)

	assert.Equal(t, 1, s.Total)
	assert.Equal(t, 1, s.Successful)
	assert.Equal(t, 0, s.Failed)
	assert.Empty(t, s.Skipped)
	assert.Equal(t, []string{"sku-1"}, s.Submitted)
	assertSummaryBalanced(t, s)

	require.Len(t, got, 1)
	rec := got[0]
	assert.Equal(t, "sku-1", rec.ExternalID)
	assert.True(t, rec.SupplierPrice.Equal(decimal.RequireFromString("28")))
	require.NotNil(t, rec.RecommendedRetailPrice)
	assert.True(t, rec.RecommendedRetailPrice.Equal(decimal.RequireFromString("84")))
	assert.Equal(t, model.BranchSpreadRule, rec.Metadata.PriceRuleBranch)
	assert.True(t, rec.Metadata.PriceRulePass)
	assert.Equal(t, "https://aliexpress.test/sku-1", rec.Metadata.AliExpressURL)
	assert.Equal(t, "reel_importer", rec.Metadata.Workflow)
	assert.NotNil(t, rec.Metadata.Copy)

	assert.Equal(t, [][]string{{"https://amazon.test/sku-1/img1.jpg"}}, h.prod.galleries)
	h.cat.AssertNumberOfCalls(t, "Upload", 2)
	h.assertWorkDirClean()

	assert.Equal(t, float64(1), testutil.ToFloat64(h.metrics.Candidates.WithLabelValues("SUBMITTED")))
	assert.Equal(t, float64(1), testutil.ToFloat64(h.metrics.PriceDecisions.WithLabelValues("spread_rule")))

	run := h.ledger.runs[s.RunID]
	require.NotNil(t, run)
	assert.Equal(t, model.RunStatusComplete, run.Status)
	outcomes := h.ledger.outcomes[s.RunID]
	require.Len(t, outcomes, 1)
	assert.Equal(t, model.StateSubmitted, outcomes[0].State)
	assert.Equal(t, model.BranchSpreadRule, outcomes[0].Branch)
}

func TestRun_PriceFailNeverUploads(t *testing.T) {
	h := newHarness(t)
	h.price("sku-1", "30.00", "20.00")
	h.expectLogin()

	s, err := h.pipeline(Options{}).Run(context.Background(), []model.Candidate{candidate("sku-1")})
	require.NoError(t, err)

	h.cat.AssertNotCalled(t, "Upload", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	h.cat.AssertNotCalled(t, "Upsert", mock.Anything, mock.Anything, mock.Anything)
	assert.Empty(t, h.prod.produced)

	require.Len(t, s.Skipped, 1)
	assert.Equal(t, model.StatePriceFailed, s.Skipped[0].State)
	assert.Contains(t, s.Skipped[0].Reason, "FAIL (supplier $20.00 vs retail $30.00")
	assertSummaryBalanced(t, s)
}

func TestRun_RetailUnresolvedFails(t *testing.T) {
	h := newHarness(t)
	h.price("sku-1", "", "5.00")
	h.expectLogin()

	s, err := h.pipeline(Options{}).Run(context.Background(), []model.Candidate{candidate("sku-1")})
	require.NoError(t, err)

	require.Len(t, s.Skipped, 1)
	assert.Equal(t, model.StatePriceFailed, s.Skipped[0].State)
	assert.Contains(t, s.Skipped[0].Reason, "retail unresolved")
	h.cat.AssertNotCalled(t, "Upload", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestRun_ManifestOverrideWhenUnresolved(t *testing.T) {
	h := newHarness(t)
	h.expectLogin()
	h.expectUploads()
	h.cat.On("Upsert", mock.Anything, "tok", mock.Anything).Return(&catalog.UpsertResult{Total: 1, Successful: 1}, nil)

	c := candidate("sku-1")
	c.RetailPrice = model.DecimalPtr(decimal.RequireFromString("40"))
	c.SupplierPrice = model.DecimalPtr(decimal.RequireFromString("12"))

	s, err := h.pipeline(Options{}).Run(context.Background(), []model.Candidate{c})
	require.NoError(t, err)
	assert.Equal(t, 1, s.Successful)

	outcomes := h.ledger.outcomes[s.RunID]
	require.Len(t, outcomes, 1)
	assert.Equal(t, model.BranchHalfRule, outcomes[0].Branch)
	assert.Contains(t, outcomes[0].Reason, "retail_manifest_override")
	assert.Contains(t, outcomes[0].Reason, "supplier_manifest_override")
}

func TestRun_SoftPassHasNoRRP(t *testing.T) {
	h := newHarness(t)
	h.price("sku-1", "45.00", "")
	h.expectLogin()
	h.expectUploads()

	var got []model.ProductRecord
	h.cat.On("Upsert", mock.Anything, "tok", mock.Anything).
		Run(func(args mock.Arguments) { got = args.Get(2).([]model.ProductRecord) }).
		Return(&catalog.UpsertResult{Total: 1, Successful: 1}, nil)

	s, err := h.pipeline(Options{}).Run(context.Background(), []model.Candidate{candidate("sku-1")})
	require.NoError(t, err)
	assert.Equal(t, 1, s.Successful)

	require.Len(t, got, 1)
	assert.Nil(t, got[0].RecommendedRetailPrice)
	assert.True(t, got[0].Metadata.SoftPass)
	assert.True(t, got[0].Metadata.PendingConfirmation)
}

func TestRun_SoftPassDisabledPerCandidate(t *testing.T) {
	h := newHarness(t)
	h.price("sku-1", "45.00", "")
	h.expectLogin()

	c := candidate("sku-1")
	c.SoftPass = model.BoolPtr(false)

	s, err := h.pipeline(Options{}).Run(context.Background(), []model.Candidate{c})
	require.NoError(t, err)
	require.Len(t, s.Skipped, 1)
	assert.Contains(t, s.Skipped[0].Reason, "soft-pass disabled")
}

func TestRun_LoginFailureAborts(t *testing.T) {
	h := newHarness(t)
	h.price("sku-1", "50.00", "10.00")
	h.cat.On("Login", mock.Anything).Return("", catalog.ErrAuth)

	s, err := h.pipeline(Options{}).Run(context.Background(), []model.Candidate{candidate("sku-1")})
	require.Error(t, err)
	assert.Nil(t, s)
	assert.ErrorIs(t, err, catalog.ErrAuth)
	assert.Empty(t, h.prod.produced)
	assert.Empty(t, h.ledger.runs)
}

func TestRunAs_UsesBegunRun(t *testing.T) {
	h := newHarness(t)
	h.price("sku-1", "50.00", "10.00")
	h.expectLogin()
	h.expectUploads()
	h.cat.On("Upsert", mock.Anything, "tok", mock.Anything).Return(&catalog.UpsertResult{Total: 1, Successful: 1}, nil)

	p := h.pipeline(Options{})
	runID, err := p.Begin(context.Background())
	require.NoError(t, err)
	require.Contains(t, h.ledger.runs, runID)
	assert.Equal(t, model.RunStatusRunning, h.ledger.runs[runID].Status)

	s, err := p.RunAs(context.Background(), runID, []model.Candidate{candidate("sku-1")})
	require.NoError(t, err)
	assert.Equal(t, runID, s.RunID)
	assert.Len(t, h.ledger.runs, 1)
	assert.Equal(t, model.RunStatusComplete, h.ledger.runs[runID].Status)
	assert.Len(t, h.ledger.outcomes[runID], 1)
}

func TestRunAs_LoginFailureMarksRunFailed(t *testing.T) {
	h := newHarness(t)
	h.cat.On("Login", mock.Anything).Return("", catalog.ErrAuth)

	p := h.pipeline(Options{})
	runID, err := p.Begin(context.Background())
	require.NoError(t, err)

	_, err = p.RunAs(context.Background(), runID, []model.Candidate{candidate("sku-1")})
	require.ErrorIs(t, err, catalog.ErrAuth)
	assert.Equal(t, model.RunStatusFailed, h.ledger.runs[runID].Status)
}

func TestBegin_LedgerError(t *testing.T) {
	h := newHarness(t)
	h.ledger.createErr = eris.New("disk full")

	_, err := h.pipeline(Options{}).Begin(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "pipeline: create run")
}

func TestRun_DryRunSkipsCatalog(t *testing.T) {
	h := newHarness(t)
	h.price("sku-1", "50.00", "10.00")
	h.price("sku-2", "30.00", "20.00")

	c1 := candidate("sku-1")
	c1.ReelURL = ""

	s, err := h.pipeline(Options{DryRun: true}).Run(context.Background(), []model.Candidate{c1, candidate("sku-2")})
	require.NoError(t, err)

	h.cat.AssertNotCalled(t, "Login", mock.Anything)
	assert.Empty(t, h.prod.produced)
	assert.Equal(t, 1, s.Successful)
	require.Len(t, s.Skipped, 1)
	assert.Equal(t, "sku-2", s.Skipped[0].ExternalID)
	assertSummaryBalanced(t, s)
}

func TestRun_TargetAcceptedStopsBetweenCandidates(t *testing.T) {
	h := newHarness(t)
	for _, id := range []string{"a", "b", "c"} {
		h.price(id, "50.00", "10.00")
	}
	h.expectLogin()
	h.expectUploads()
	h.cat.On("Upsert", mock.Anything, "tok", mock.Anything).Return(&catalog.UpsertResult{Total: 1, Successful: 1}, nil)

	s, err := h.pipeline(Options{TargetAccepted: 1}).Run(context.Background(),
		[]model.Candidate{candidate("a"), candidate("b"), candidate("c")})
	require.NoError(t, err)

	assert.Equal(t, []string{"a"}, h.prod.produced)
	assert.Equal(t, 1, s.Successful)
	require.Len(t, s.Skipped, 2)
	for _, sk := range s.Skipped {
		assert.Equal(t, model.StateSkipped, sk.State)
		assert.Equal(t, "target accepted count reached", sk.Reason)
	}
	assertSummaryBalanced(t, s)
}

func TestRun_MaxRuntimeStopsBetweenCandidates(t *testing.T) {
	h := newHarness(t)
	h.price("a", "50.00", "10.00")
	h.price("b", "50.00", "10.00")
	h.expectLogin()
	h.expectUploads()
	h.cat.On("Upsert", mock.Anything, "tok", mock.Anything).Return(&catalog.UpsertResult{Total: 1, Successful: 1}, nil)

	p := h.pipeline(Options{MaxRuntime: 90 * time.Second})
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	ticks := 0
	p.now = func() time.Time {
		now := base.Add(time.Duration(ticks) * time.Minute)
		ticks++
		return now
	}

	s, err := p.Run(context.Background(), []model.Candidate{candidate("a"), candidate("b")})
	require.NoError(t, err)

	assert.Equal(t, []string{"a"}, h.prod.produced)
	require.Len(t, s.Skipped, 1)
	assert.Equal(t, "max runtime reached", s.Skipped[0].Reason)
}

func TestRun_CancelledContextSkipsRemaining(t *testing.T) {
	h := newHarness(t)
	h.price("a", "50.00", "10.00")
	h.expectLogin()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	s, err := h.pipeline(Options{}).Run(ctx, []model.Candidate{candidate("a")})
	require.NoError(t, err)
	require.Len(t, s.Skipped, 1)
	assert.Equal(t, "run cancelled", s.Skipped[0].Reason)
	h.cat.AssertNotCalled(t, "Upsert", mock.Anything, mock.Anything, mock.Anything)
	require.Len(t, h.ledger.outcomes[s.RunID], 1)
}

func TestRun_DedupSkipsSubmitted(t *testing.T) {
	h := newHarness(t)
	h.price("sku-1", "50.00", "10.00")
	h.ledger.submitted["sku-1"] = true
	h.expectLogin()

	s, err := h.pipeline(Options{}).Run(context.Background(), []model.Candidate{candidate("sku-1")})
	require.NoError(t, err)
	require.Len(t, s.Skipped, 1)
	assert.Equal(t, "already submitted", s.Skipped[0].Reason)
	assert.Empty(t, h.prod.produced)
}

func TestRun_ForceReprocessesSubmitted(t *testing.T) {
	h := newHarness(t)
	h.price("sku-1", "50.00", "10.00")
	h.ledger.submitted["sku-1"] = true
	h.expectLogin()
	h.expectUploads()
	h.cat.On("Upsert", mock.Anything, "tok", mock.Anything).Return(&catalog.UpsertResult{Total: 1, Successful: 1}, nil)

	s, err := h.pipeline(Options{Force: true}).Run(context.Background(), []model.Candidate{candidate("sku-1")})
	require.NoError(t, err)
	assert.Equal(t, 1, s.Successful)
}

func TestRun_InvalidCandidateSkipped(t *testing.T) {
	h := newHarness(t)
	h.expectLogin()

	c := candidate("sku-1")
	c.ReelURL = ""

	s, err := h.pipeline(Options{}).Run(context.Background(), []model.Candidate{c})
	require.NoError(t, err)
	require.Len(t, s.Skipped, 1)
	assert.Equal(t, "missing reel_url", s.Skipped[0].Reason)
}

func TestRun_ProduceErrorFailsCandidate(t *testing.T) {
	h := newHarness(t)
	h.price("sku-1", "50.00", "10.00")
	h.prod.err = eris.New("ffmpeg exploded")
	h.expectLogin()

	s, err := h.pipeline(Options{}).Run(context.Background(), []model.Candidate{candidate("sku-1")})
	require.NoError(t, err)

	assert.Equal(t, 1, s.Failed)
	require.Len(t, s.Failures, 1)
	assert.Equal(t, model.StateFailed, s.Failures[0].State)
	assert.Contains(t, s.Failures[0].Reason, "ffmpeg exploded")
	h.cat.AssertNotCalled(t, "Upsert", mock.Anything, mock.Anything, mock.Anything)
	h.assertWorkDirClean()
}

func TestRun_UploadErrorFailsCandidate(t *testing.T) {
	h := newHarness(t)
	h.price("sku-1", "50.00", "10.00")
	h.expectLogin()
	h.cat.On("Upload", mock.Anything, "tok", mock.Anything, mock.Anything).Return("", eris.New("storage down"))

	s, err := h.pipeline(Options{}).Run(context.Background(), []model.Candidate{candidate("sku-1")})
	require.NoError(t, err)
	assert.Equal(t, 1, s.Failed)
	assert.Contains(t, s.Failures[0].Reason, "upload still")
	h.assertWorkDirClean()
}

func TestRun_UpsertErrorFailsBatch(t *testing.T) {
	h := newHarness(t)
	h.price("a", "50.00", "10.00")
	h.price("b", "50.00", "10.00")
	h.expectLogin()
	h.expectUploads()
	h.cat.On("Upsert", mock.Anything, "tok", mock.Anything).Return(nil, eris.New("catalog: upsert status 502"))

	s, err := h.pipeline(Options{}).Run(context.Background(), []model.Candidate{candidate("a"), candidate("b")})
	require.NoError(t, err)

	assert.Equal(t, 0, s.Successful)
	assert.Equal(t, 2, s.Failed)
	for _, f := range s.Failures {
		assert.Equal(t, model.StateSubmitFailed, f.State)
		assert.Contains(t, f.Reason, "502")
	}
	assert.Empty(t, s.Submitted)
	assertSummaryBalanced(t, s)
	h.cat.AssertNumberOfCalls(t, "Upsert", 1)
}

func TestRun_UpsertNamedErrors(t *testing.T) {
	h := newHarness(t)
	h.price("a", "50.00", "10.00")
	h.price("b", "50.00", "10.00")
	h.expectLogin()
	h.expectUploads()
	h.cat.On("Upsert", mock.Anything, "tok", mock.Anything).Return(&catalog.UpsertResult{
		Total:      2,
		Successful: 1,
		Failed:     1,
		Errors:     []model.UpsertError{{Product: "Sunset Lamp b", Error: "duplicate slug"}},
	}, nil)

	s, err := h.pipeline(Options{}).Run(context.Background(), []model.Candidate{candidate("a"), candidate("b")})
	require.NoError(t, err)

	assert.Equal(t, []string{"a"}, s.Submitted)
	require.Len(t, s.Failures, 1)
	assert.Equal(t, "b", s.Failures[0].ExternalID)
	assert.Equal(t, "duplicate slug", s.Failures[0].Reason)
	assert.Len(t, s.Errors, 1)
}

func TestRun_UpsertSharedNameMatchesExternalIDOnly(t *testing.T) {
	h := newHarness(t)
	h.price("a", "50.00", "10.00")
	h.price("b", "50.00", "10.00")
	h.expectLogin()
	h.expectUploads()
	h.cat.On("Upsert", mock.Anything, "tok", mock.Anything).Return(&catalog.UpsertResult{
		Total:      2,
		Successful: 1,
		Failed:     1,
		Errors:     []model.UpsertError{{Product: "b", Error: "bad image"}},
	}, nil)

	a, b := candidate("a"), candidate("b")
	a.Name, b.Name = "Cloud Lamp", "Cloud Lamp"
	s, err := h.pipeline(Options{}).Run(context.Background(), []model.Candidate{a, b})
	require.NoError(t, err)

	assert.Equal(t, []string{"a"}, s.Submitted)
	require.Len(t, s.Failures, 1)
	assert.Equal(t, "b", s.Failures[0].ExternalID)
	assertSummaryBalanced(t, s)
}

func TestRun_UpsertAmbiguousNameIsUnexplained(t *testing.T) {
	h := newHarness(t)
	h.price("a", "50.00", "10.00")
	h.price("b", "50.00", "10.00")
	h.expectLogin()
	h.expectUploads()
	h.cat.On("Upsert", mock.Anything, "tok", mock.Anything).Return(&catalog.UpsertResult{
		Total:      2,
		Successful: 1,
		Failed:     1,
		Errors:     []model.UpsertError{{Product: "Cloud Lamp", Error: "bad image"}},
	}, nil)

	a, b := candidate("a"), candidate("b")
	a.Name, b.Name = "Cloud Lamp", "Cloud Lamp"
	s, err := h.pipeline(Options{}).Run(context.Background(), []model.Candidate{a, b})
	require.NoError(t, err)

	assert.Empty(t, s.Submitted)
	require.Len(t, s.Failures, 2)
	for _, f := range s.Failures {
		assert.Contains(t, f.Reason, "without product detail")
	}
}

func TestRun_DuplicateExternalIDSentOnce(t *testing.T) {
	h := newHarness(t)
	h.price("a", "50.00", "10.00")
	h.expectLogin()
	h.expectUploads()
	h.cat.On("Upsert", mock.Anything, "tok", mock.MatchedBy(func(ps []model.ProductRecord) bool {
		return len(ps) == 1 && ps[0].ExternalID == "a"
	})).Return(&catalog.UpsertResult{Total: 1, Successful: 1}, nil)

	s, err := h.pipeline(Options{}).Run(context.Background(), []model.Candidate{candidate("a"), candidate("a")})
	require.NoError(t, err)

	h.cat.AssertNumberOfCalls(t, "Upsert", 1)
	assert.Equal(t, []string{"a"}, s.Submitted)
	require.Len(t, s.Failures, 1)
	assert.Contains(t, s.Failures[0].Reason, "duplicate external id a")
	assertSummaryBalanced(t, s)
}

func TestRun_UpsertUnnamedFailuresFailBatch(t *testing.T) {
	h := newHarness(t)
	h.price("a", "50.00", "10.00")
	h.price("b", "50.00", "10.00")
	h.expectLogin()
	h.expectUploads()
	h.cat.On("Upsert", mock.Anything, "tok", mock.Anything).Return(&catalog.UpsertResult{Total: 2, Successful: 1, Failed: 1}, nil)

	s, err := h.pipeline(Options{}).Run(context.Background(), []model.Candidate{candidate("a"), candidate("b")})
	require.NoError(t, err)
	assert.Equal(t, 0, s.Successful)
	assert.Equal(t, 2, s.Failed)
}

func TestRun_WithoutLedger(t *testing.T) {
	h := newHarness(t)
	h.price("sku-1", "30.00", "20.00")
	h.expectLogin()

	p := New(Options{Policy: pricing.DefaultPolicy(), WorkDir: h.workDir}, h.cat, h.res, h.prod, nil, nil, nil)
	s, err := p.Run(context.Background(), []model.Candidate{candidate("sku-1")})
	require.NoError(t, err)
	assert.NotEmpty(t, s.RunID)
	assert.Len(t, s.Skipped, 1)
}

func TestRun_CreateRunFailureStillRuns(t *testing.T) {
	h := newHarness(t)
	h.price("sku-1", "30.00", "20.00")
	h.ledger.createErr = eris.New("db locked")
	h.expectLogin()

	s, err := h.pipeline(Options{}).Run(context.Background(), []model.Candidate{candidate("sku-1")})
	require.NoError(t, err)
	assert.NotEmpty(t, s.RunID)
	assert.Empty(t, h.ledger.outcomes)
}

func TestUpload_RejectedBeforePricePass(t *testing.T) {
	h := newHarness(t)
	p := h.pipeline(Options{})

	for _, state := range []model.CandidateState{model.StatePricedPending, model.StatePriceFailed, model.StateSkipped} {
		cr := newCandidateRun(candidate("sku-1"))
		cr.state = state
		_, err := p.upload(context.Background(), "tok", cr, &assets.Bundle{Still: "main.jpg"})
		assert.ErrorIs(t, err, ErrUploadBeforePricing, state)
	}
	h.cat.AssertNotCalled(t, "Upload", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}
