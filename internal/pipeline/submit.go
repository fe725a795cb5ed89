package pipeline

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/sells-group/reel-importer/internal/model"
)

// submit upserts every ASSETS_BUILT candidate in one batch. A transport
// error or non-success status fails the whole batch. Per-product errors in
// a successful response fail only the products they name; when the catalog
// reports more failures than it names, the batch is treated as failed.
// Only the first candidate with a given external id is sent.
func (p *Pipeline) submit(ctx context.Context, token string, runs []*candidateRun) []model.UpsertError {
	var batch []*candidateRun
	var records []model.ProductRecord
	seen := make(map[string]bool)
	for _, cr := range runs {
		if cr.state != model.StateAssetsBuilt {
			continue
		}
		if seen[cr.id] {
			zap.L().Warn("pipeline: duplicate external id in batch", zap.String("external_id", cr.id))
			_ = cr.transition(model.StateSubmitFailed, "duplicate external id "+cr.id+" in batch")
			continue
		}
		seen[cr.id] = true
		batch = append(batch, cr)
		records = append(records, *cr.record)
	}
	if len(batch) == 0 {
		return nil
	}

	log := zap.L().With(zap.Int("products", len(records)))
	res, err := p.catalog.Upsert(ctx, token, records)
	if err != nil {
		log.Error("pipeline: upsert failed", zap.Error(err))
		for _, cr := range batch {
			_ = cr.transition(model.StateSubmitFailed, "upsert: "+err.Error())
		}
		return nil
	}

	failed := make(map[string]string, len(res.Errors))
	for _, e := range res.Errors {
		failed[e.Product] = e.Error
	}
	names := make(map[string]int, len(batch))
	for _, cr := range batch {
		names[cr.cand.Name]++
	}
	errorFor := func(cr *candidateRun) (string, bool) {
		return lookupError(failed, names, cr)
	}

	named := 0
	for _, cr := range batch {
		if _, ok := errorFor(cr); ok {
			named++
		}
	}
	if res.Failed > named {
		reason := fmt.Sprintf("catalog reported %d failures without product detail", res.Failed-named)
		log.Error("pipeline: upsert partially failed", zap.Int("failed", res.Failed), zap.Int("named", named))
		for _, cr := range batch {
			msg, ok := errorFor(cr)
			if !ok {
				msg = reason
			}
			_ = cr.transition(model.StateSubmitFailed, msg)
		}
		return res.Errors
	}

	for _, cr := range batch {
		if msg, ok := errorFor(cr); ok {
			_ = cr.transition(model.StateSubmitFailed, msg)
			continue
		}
		_ = cr.transition(model.StateSubmitted, "")
	}
	log.Info("pipeline: upsert complete",
		zap.Int("successful", res.Successful),
		zap.Int("failed", res.Failed),
	)
	return res.Errors
}

// lookupError finds the catalog error for cr by external id. Product names
// are matched only when no other product in the batch shares the name.
func lookupError(failed map[string]string, names map[string]int, cr *candidateRun) (string, bool) {
	if msg, ok := failed[cr.id]; ok {
		return msg, true
	}
	if names[cr.cand.Name] != 1 {
		return "", false
	}
	msg, ok := failed[cr.cand.Name]
	return msg, ok
}
