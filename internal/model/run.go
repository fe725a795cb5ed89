package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// RunStatus is the lifecycle state of an import run.
type RunStatus string

const (
	RunStatusRunning  RunStatus = "running"
	RunStatusComplete RunStatus = "complete"
	RunStatusFailed   RunStatus = "failed"
)

// Run is a persisted import run.
type Run struct {
	ID         string      `json:"id"`
	Status     RunStatus   `json:"status"`
	Summary    *RunSummary `json:"summary,omitempty"`
	StartedAt  time.Time   `json:"started_at"`
	FinishedAt *time.Time  `json:"finished_at,omitempty"`
}

// Outcome is the final state of one candidate within a run.
type Outcome struct {
	ExternalID    string           `json:"external_id"`
	Name          string           `json:"name"`
	State         CandidateState   `json:"state"`
	Branch        DecisionBranch   `json:"branch,omitempty"`
	Reason        string           `json:"reason,omitempty"`
	RetailTotal   *decimal.Decimal `json:"retail_total,omitempty"`
	SupplierTotal *decimal.Decimal `json:"supplier_total,omitempty"`
	RecordedAt    time.Time        `json:"recorded_at"`
}
