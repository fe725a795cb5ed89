package pipeline

import (
	"github.com/rotisserie/eris"

	"github.com/sells-group/reel-importer/internal/assets"
	"github.com/sells-group/reel-importer/internal/model"
)

var (
	// ErrUploadBeforePricing is returned when an upload is attempted for a
	// candidate that has not passed the price rule.
	ErrUploadBeforePricing = eris.New("pipeline: upload attempted before price pass")
	// ErrInvalidTransition is returned for a lifecycle move the state
	// machine does not allow.
	ErrInvalidTransition = eris.New("pipeline: invalid state transition")
)

// candidateRun tracks one candidate through the lifecycle.
type candidateRun struct {
	cand     model.Candidate
	id       string
	state    model.CandidateState
	reason   string
	decision *model.PriceDecision
	record   *model.ProductRecord
}

func newCandidateRun(c model.Candidate) *candidateRun {
	return &candidateRun{
		cand:  c,
		id:    assets.ExternalID(c),
		state: model.StatePricedPending,
	}
}

func (r *candidateRun) transition(next model.CandidateState, reason string) error {
	if !r.state.CanTransition(next) {
		return eris.Wrapf(ErrInvalidTransition, "%s: %s -> %s", r.id, r.state, next)
	}
	r.state = next
	if reason != "" {
		r.reason = reason
	}
	return nil
}

// uploadable reports whether assets may leave the machine.
func (r *candidateRun) uploadable() bool {
	return r.state == model.StatePricePassed || r.state == model.StateAssetsBuilt
}

func (r *candidateRun) skipEntry() model.SkipEntry {
	return model.SkipEntry{
		ExternalID: r.id,
		Name:       r.cand.Name,
		State:      r.state,
		Reason:     r.reason,
	}
}

func (r *candidateRun) outcome() model.Outcome {
	o := model.Outcome{
		ExternalID: r.id,
		Name:       r.cand.Name,
		State:      r.state,
		Reason:     r.reason,
	}
	if r.decision != nil {
		o.Branch = r.decision.Branch
		o.RetailTotal = r.decision.RetailTotal
		o.SupplierTotal = r.decision.SupplierTotal
	}
	return o
}
