package monitoring

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/reel-importer/internal/model"
	"github.com/sells-group/reel-importer/internal/store"
)

func TestMetrics_Counters(t *testing.T) {
	m := NewMetrics()

	m.Candidate(model.StateSubmitted)
	m.Candidate(model.StateSubmitted)
	m.Candidate(model.StatePriceFailed)
	m.Decision(model.PriceDecision{Branch: model.BranchSpreadRule})
	m.Encode()
	m.Encode()
	m.Encode()
	m.Clip(model.EncodedClip{BestEffort: true})
	m.Upload(nil)
	m.Upload(eris.New("503"))
	m.Run(90 * time.Second)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.Candidates.WithLabelValues("SUBMITTED")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Candidates.WithLabelValues("PRICE_FAILED")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.PriceDecisions.WithLabelValues("spread_rule")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.EncodeAttempts))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Clips.WithLabelValues("true")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Uploads.WithLabelValues("ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Uploads.WithLabelValues("error")))
}

func TestMetrics_Handler(t *testing.T) {
	m := NewMetrics()
	m.Encode()

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "reel_encode_attempts_total 1")
}

func TestMetrics_IndependentRegistries(t *testing.T) {
	assert.NotPanics(t, func() {
		NewMetrics()
		NewMetrics()
	})
}

type fakeRuns struct {
	runs []model.Run
	err  error
}

func (f fakeRuns) ListRuns(context.Context, store.RunFilter) ([]model.Run, error) {
	return f.runs, f.err
}

func TestCollector_Collect(t *testing.T) {
	now := time.Date(2026, 10, 15, 12, 0, 0, 0, time.UTC)
	runs := []model.Run{
		{ID: "a", Status: model.RunStatusComplete, StartedAt: now.Add(-time.Hour), Summary: &model.RunSummary{
			Total:     4,
			Submitted: []string{"x", "y"},
			Skipped:   []model.SkipEntry{{Name: "z"}, {Name: "w"}},
		}},
		{ID: "b", Status: model.RunStatusFailed, StartedAt: now.Add(-2 * time.Hour)},
		{ID: "c", Status: model.RunStatusRunning, StartedAt: now.Add(-10 * time.Minute)},
		{ID: "old", Status: model.RunStatusComplete, StartedAt: now.Add(-48 * time.Hour), Summary: &model.RunSummary{Total: 10}},
	}

	c := NewCollector(fakeRuns{runs: runs})
	c.now = func() time.Time { return now }

	snap, err := c.Collect(context.Background(), 24)
	require.NoError(t, err)
	assert.Equal(t, 3, snap.Runs)
	assert.Equal(t, 1, snap.Complete)
	assert.Equal(t, 1, snap.Failed)
	assert.Equal(t, 1, snap.Running)
	assert.Equal(t, 4, snap.Candidates)
	assert.Equal(t, 2, snap.Submitted)
	assert.Equal(t, 2, snap.Skipped)
	assert.InDelta(t, 0.5, snap.AcceptRate, 1e-9)
}

func TestCollector_StoreError(t *testing.T) {
	c := NewCollector(fakeRuns{err: eris.New("db down")})
	_, err := c.Collect(context.Background(), 24)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "monitoring: list runs")
}
