package pipeline

import (
	"context"
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/sells-group/reel-importer/internal/assets"
	"github.com/sells-group/reel-importer/internal/copywriter"
	"github.com/sells-group/reel-importer/internal/model"
)

// build produces, uploads and assembles the record for a passed candidate.
// The candidate's work directory is removed before build returns.
func (p *Pipeline) build(ctx context.Context, token string, cr *candidateRun, retail *model.PriceQuote, supplier *model.BestQuote) (*model.ProductRecord, error) {
	dir, err := os.MkdirTemp(p.opts.WorkDir, "reel-"+assets.Slug(cr.cand.Name)+"-")
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: create work dir")
	}
	defer func() {
		if rmErr := os.RemoveAll(dir); rmErr != nil {
			zap.L().Warn("pipeline: work dir cleanup failed", zap.String("dir", dir), zap.Error(rmErr))
		}
	}()

	var gallery []string
	if retail != nil {
		gallery = retail.Images
	}
	bundle, err := p.producer.Produce(ctx, cr.cand, dir, gallery)
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: produce assets")
	}
	for _, c := range bundle.Clips {
		p.metrics.Clip(c)
	}

	up, err := p.upload(ctx, token, cr, bundle)
	if err != nil {
		return nil, err
	}

	in := assets.Input{
		Candidate:       cr.cand,
		Decision:        *cr.decision,
		Assets:          up,
		Copy:            p.writeCopy(ctx, cr),
		RRPMultiplier:   p.opts.RRPMultiplier,
		WindowPolicy:    bundle.Policy,
		BestEffortClips: bundle.BestEffortClips(),
		Workflow:        p.opts.Workflow,
	}
	if retail != nil {
		in.RetailURL = retail.SourceURL
	}
	if supplier != nil {
		in.SupplierURL = supplier.Quote.SourceURL
		in.Considered = supplier.Considered
	}
	rec := assets.Assemble(in)
	return &rec, nil
}

// upload pushes the bundle to storage. The still and every clip must
// upload; gallery images and videos are best effort.
func (p *Pipeline) upload(ctx context.Context, token string, cr *candidateRun, b *assets.Bundle) (assets.Uploaded, error) {
	var up assets.Uploaded
	if !cr.uploadable() {
		return up, eris.Wrapf(ErrUploadBeforePricing, "%s in state %s", cr.id, cr.state)
	}

	put := func(path string) (string, error) {
		url, err := p.catalog.Upload(ctx, token, path, assets.StorageKey(cr.cand, filepath.Base(path)))
		p.metrics.Upload(err)
		return url, err
	}

	if b.Still != "" {
		url, err := put(b.Still)
		if err != nil {
			return up, eris.Wrap(err, "pipeline: upload still")
		}
		up.Main = url
	}
	for _, c := range b.Clips {
		url, err := put(c.Path)
		if err != nil {
			return up, eris.Wrapf(err, "pipeline: upload clip %s", filepath.Base(c.Path))
		}
		up.GIFs = append(up.GIFs, url)
	}
	for _, g := range b.Gallery {
		url, err := put(g)
		if err != nil {
			zap.L().Warn("pipeline: gallery upload failed", zap.String("candidate", cr.id), zap.String("file", g), zap.Error(err))
			continue
		}
		up.Gallery = append(up.Gallery, url)
	}
	for _, v := range b.Videos {
		url, err := put(v)
		if err != nil {
			zap.L().Warn("pipeline: video upload failed", zap.String("candidate", cr.id), zap.String("file", v), zap.Error(err))
			continue
		}
		up.Videos = append(up.Videos, url)
	}
	return up, nil
}

// writeCopy returns generated copy, or nil when no writer is configured or
// it fails.
func (p *Pipeline) writeCopy(ctx context.Context, cr *candidateRun) *model.Copy {
	if p.writer == nil {
		return nil
	}
	d := cr.decision
	b := copywriter.Brief{
		Name:        cr.cand.Name,
		Category:    cr.cand.Category,
		Description: cr.cand.Description,
	}
	if d.SupplierTotal != nil {
		b.SupplierTotal = *d.SupplierTotal
	} else {
		b.SupplierTotal = decimal.Zero
	}
	if !d.Soft {
		b.RRP = assets.RRP(d.SupplierTotal, p.opts.RRPMultiplier)
	}

	c, err := p.writer.Write(ctx, b)
	if err != nil {
		zap.L().Warn("pipeline: copy generation failed", zap.String("candidate", cr.id), zap.Error(err))
		return nil
	}
	return c
}
