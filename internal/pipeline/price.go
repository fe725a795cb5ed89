package pipeline

import (
	"context"

	"go.uber.org/zap"

	"github.com/sells-group/reel-importer/internal/model"
	"github.com/sells-group/reel-importer/internal/pricing"
)

// quotes resolves both sides of the price pair. A manifest price stands in
// for a side that could not be resolved from the web.
func (p *Pipeline) quotes(ctx context.Context, c model.Candidate) (*model.PriceQuote, *model.BestQuote) {
	return p.retailQuote(ctx, c), p.supplierQuote(ctx, c)
}

func (p *Pipeline) retailQuote(ctx context.Context, c model.Candidate) *model.PriceQuote {
	if c.AmazonURL != "" {
		q, err := p.resolver.ResolveRetail(ctx, c.AmazonURL)
		if err == nil {
			return q
		}
		zap.L().Info("pipeline: retail unresolved",
			zap.String("candidate", c.Label()),
			zap.String("url", c.AmazonURL),
			zap.Error(err),
		)
	}
	if c.RetailPrice != nil {
		q := pricing.ManifestQuote(*c.RetailPrice, c.AmazonURL)
		return &q
	}
	return nil
}

func (p *Pipeline) supplierQuote(ctx context.Context, c model.Candidate) *model.BestQuote {
	if len(c.AliExpressCandidates) > 0 || len(c.SearchTerms) > 0 {
		best, err := p.resolver.ResolveSupplier(ctx, pricing.SupplierQuery{
			URLs:        c.AliExpressCandidates,
			SearchTerms: c.SearchTerms,
			MinSales:    c.MinSales,
			TopN:        c.TopN,
		})
		if err == nil {
			return best
		}
		zap.L().Info("pipeline: supplier unresolved",
			zap.String("candidate", c.Label()),
			zap.Error(err),
		)
	}
	if c.SupplierPrice != nil {
		var rawURL string
		if len(c.AliExpressCandidates) > 0 {
			rawURL = c.AliExpressCandidates[0]
		}
		return &model.BestQuote{
			Quote:      pricing.ManifestQuote(*c.SupplierPrice, rawURL),
			Considered: len(c.AliExpressCandidates),
		}
	}
	return nil
}
