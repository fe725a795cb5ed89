package monitoring

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/reel-importer/internal/model"
	"github.com/sells-group/reel-importer/internal/store"
)

// Snapshot summarises recent runs.
type Snapshot struct {
	Runs          int     `json:"runs"`
	Complete      int     `json:"complete"`
	Failed        int     `json:"failed"`
	Running       int     `json:"running"`
	Candidates    int     `json:"candidates"`
	Submitted     int     `json:"submitted"`
	Skipped       int     `json:"skipped"`
	AcceptRate    float64 `json:"accept_rate"`
	LookbackHours int     `json:"lookback_hours"`

	CollectedAt time.Time `json:"collected_at"`
}

// RunLister is the store subset the collector reads.
type RunLister interface {
	ListRuns(ctx context.Context, filter store.RunFilter) ([]model.Run, error)
}

// Collector builds snapshots from the run ledger.
type Collector struct {
	runs RunLister
	now  func() time.Time
}

// NewCollector creates a Collector.
func NewCollector(runs RunLister) *Collector {
	return &Collector{runs: runs, now: time.Now}
}

// Collect summarises runs started within the lookback window.
func (c *Collector) Collect(ctx context.Context, lookbackHours int) (*Snapshot, error) {
	now := c.now().UTC()
	snap := &Snapshot{LookbackHours: lookbackHours, CollectedAt: now}
	cutoff := now.Add(-time.Duration(lookbackHours) * time.Hour)

	runs, err := c.runs.ListRuns(ctx, store.RunFilter{Limit: 1000})
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: list runs")
	}

	for _, r := range runs {
		if r.StartedAt.Before(cutoff) {
			continue
		}
		snap.Runs++
		switch r.Status {
		case model.RunStatusComplete:
			snap.Complete++
		case model.RunStatusFailed:
			snap.Failed++
		case model.RunStatusRunning:
			snap.Running++
		}
		if r.Summary != nil {
			snap.Candidates += r.Summary.Total
			snap.Submitted += len(r.Summary.Submitted)
			snap.Skipped += len(r.Summary.Skipped)
		}
	}
	if snap.Candidates > 0 {
		snap.AcceptRate = float64(snap.Submitted) / float64(snap.Candidates)
	}
	return snap, nil
}
