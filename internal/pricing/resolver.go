package pricing

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/sells-group/reel-importer/internal/fetcher"
	"github.com/sells-group/reel-importer/internal/model"
)

// UnresolvedError reports that no trustworthy quote was found. It is a
// normal outcome, not a failure of the run.
type UnresolvedError struct {
	Side   string
	Reason string
}

func (e *UnresolvedError) Error() string {
	return fmt.Sprintf("pricing: %s unresolved: %s", e.Side, e.Reason)
}

// IsUnresolved reports whether err is an UnresolvedError.
func IsUnresolved(err error) bool {
	var ue *UnresolvedError
	return errors.As(err, &ue)
}

func unresolved(side, format string, args ...any) error {
	return &UnresolvedError{Side: side, Reason: fmt.Sprintf(format, args...)}
}

// ShippingPolicy decides what happens when a supplier page has no
// shipping figure.
type ShippingPolicy string

const (
	// ShippingAssumeFree treats missing shipping as zero and records the
	// assumption on the quote.
	ShippingAssumeFree ShippingPolicy = "assume_free"
	// ShippingReject drops candidates without a shipping figure.
	ShippingReject ShippingPolicy = "reject"
)

// QuoteCache stores parsed quotes by page URL.
type QuoteCache interface {
	GetQuote(ctx context.Context, url string) (*model.PriceQuote, error)
	PutQuote(ctx context.Context, url string, q model.PriceQuote, ttl time.Duration) error
}

// SupplierQuery describes where to look for supplier quotes.
type SupplierQuery struct {
	URLs        []string
	SearchTerms []string
	MinSales    int
	TopN        int
}

// Resolver turns listing URLs into quotes.
type Resolver struct {
	fetcher          fetcher.HTMLFetcher
	premium          PremiumDetector
	shipping         ShippingPolicy
	cache            QuoteCache
	cacheTTL         time.Duration
	searchURL        string
	itemURL          string
	maxDetailFetches int
}

// ResolverOption configures a Resolver.
type ResolverOption func(*Resolver)

// WithPremiumDetector replaces the default Prime detector.
func WithPremiumDetector(d PremiumDetector) ResolverOption {
	return func(r *Resolver) { r.premium = d }
}

// WithShippingPolicy sets the unknown-shipping policy.
func WithShippingPolicy(p ShippingPolicy) ResolverOption {
	return func(r *Resolver) { r.shipping = p }
}

// WithQuoteCache caches parsed quotes for ttl.
func WithQuoteCache(c QuoteCache, ttl time.Duration) ResolverOption {
	return func(r *Resolver) {
		r.cache = c
		r.cacheTTL = ttl
	}
}

// WithSearch sets the supplier search and item URL templates (each with a
// single %s) and the cap on detail pages fetched from search results.
func WithSearch(searchURL, itemURL string, maxDetailFetches int) ResolverOption {
	return func(r *Resolver) {
		r.searchURL = searchURL
		r.itemURL = itemURL
		r.maxDetailFetches = maxDetailFetches
	}
}

// NewResolver creates a Resolver reading pages through f.
func NewResolver(f fetcher.HTMLFetcher, opts ...ResolverOption) *Resolver {
	r := &Resolver{
		fetcher:          f,
		premium:          PrimeDetector{},
		shipping:         ShippingAssumeFree,
		searchURL:        "https://www.aliexpress.com/wholesale?SortType=total_tranpro_desc&SearchText=%s",
		itemURL:          "https://www.aliexpress.com/item/%s.html",
		maxDetailFetches: 5,
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// ResolveRetail returns the retail quote for rawURL. Listings without a
// price or without the premium signal are unresolved.
func (r *Resolver) ResolveRetail(ctx context.Context, rawURL string) (*model.PriceQuote, error) {
	if rawURL == "" {
		return nil, unresolved("retail", "no retail url")
	}
	if q := r.cached(ctx, rawURL); q != nil {
		return q, nil
	}

	html, ok := r.fetcher.FetchHTML(ctx, rawURL)
	if !ok {
		return nil, unresolved("retail", "page unreadable")
	}

	page, err := ParseRetail(html, r.premium)
	if err != nil {
		return nil, unresolved("retail", "parse: %v", err)
	}
	if page.Price == nil {
		return nil, unresolved("retail", "price not found")
	}
	if !page.Premium {
		return nil, unresolved("retail", "no premium fulfillment signal (price %s ignored)", money(*page.Price))
	}

	q := model.PriceQuote{
		Amount:         *page.Price,
		Shipping:       decimal.Zero,
		ShippingPolicy: model.ShippingNone,
		SourceURL:      rawURL,
		Source:         model.SourcePage,
		Signal:         model.Signal{PrimeEligible: model.BoolPtr(true)},
		Images:         page.Images,
	}
	r.store(ctx, rawURL, q)
	return &q, nil
}

// ResolveSupplier evaluates supplier candidates and returns the cheapest
// qualifying one. Explicit URLs take precedence over search terms.
func (r *Resolver) ResolveSupplier(ctx context.Context, q SupplierQuery) (*model.BestQuote, error) {
	if q.TopN <= 0 {
		q.TopN = 3
	}

	var rejected []model.Rejection
	urls := dedupe(q.URLs)
	if len(urls) > q.TopN {
		urls = urls[:q.TopN]
	}
	if len(urls) == 0 && len(q.SearchTerms) > 0 {
		urls, rejected = r.searchCandidates(ctx, q)
	}
	if len(urls) == 0 {
		return nil, unresolved("supplier", "no supplier candidates")
	}

	var quotes []model.PriceQuote
	for _, u := range urls {
		quote, reason := r.supplierQuote(ctx, u)
		if reason == "" {
			reason = salesRejection(quote, q.MinSales)
		}
		if reason != "" {
			zap.L().Debug("pricing: supplier candidate rejected", zap.String("url", u), zap.String("reason", reason))
			rejected = append(rejected, model.Rejection{URL: u, Reason: reason})
			continue
		}
		quotes = append(quotes, *quote)
	}

	if len(quotes) == 0 {
		return nil, unresolved("supplier", "no usable candidates (%d rejected)", len(rejected))
	}

	best := quotes[0]
	for _, c := range quotes[1:] {
		if model.Less(c, best) {
			best = c
		}
	}

	return &model.BestQuote{
		Quote:      best,
		Considered: len(urls),
		Rejected:   rejected,
	}, nil
}

func salesRejection(q *model.PriceQuote, minSales int) string {
	if minSales <= 0 {
		return ""
	}
	if q.Signal.SalesCount == nil {
		return fmt.Sprintf("sales unknown (min %d)", minSales)
	}
	if *q.Signal.SalesCount < minSales {
		return fmt.Sprintf("sales %d below min %d", *q.Signal.SalesCount, minSales)
	}
	return ""
}

// supplierQuote returns a quote or a rejection reason.
func (r *Resolver) supplierQuote(ctx context.Context, rawURL string) (*model.PriceQuote, string) {
	if q := r.cached(ctx, rawURL); q != nil {
		return q, ""
	}

	html, ok := r.fetcher.FetchHTML(ctx, rawURL)
	if !ok {
		return nil, "page unreadable"
	}

	page := ParseSupplier(html)
	if page.Price == nil || !page.Price.IsPositive() {
		return nil, "price not found"
	}

	q := model.PriceQuote{
		Amount:    *page.Price,
		SourceURL: rawURL,
		Source:    model.SourcePage,
		Signal:    model.Signal{SalesCount: page.Sales},
	}
	switch {
	case page.Shipping != nil:
		q.Shipping = *page.Shipping
		q.ShippingPolicy = model.ShippingParsed
	case r.shipping == ShippingReject:
		return nil, "shipping unknown"
	default:
		q.Shipping = decimal.Zero
		q.ShippingPolicy = model.ShippingAssumedFree
	}

	r.store(ctx, rawURL, q)
	return &q, ""
}

// searchCandidates runs the search terms and returns detail URLs ranked by
// sold count, capped at min(TopN, maxDetailFetches).
func (r *Resolver) searchCandidates(ctx context.Context, q SupplierQuery) ([]string, []model.Rejection) {
	var hits []SearchHit
	seen := make(map[string]bool)
	for _, term := range q.SearchTerms {
		searchURL := fmt.Sprintf(r.searchURL, url.QueryEscape(term))
		html, ok := r.fetcher.FetchHTML(ctx, searchURL)
		if !ok {
			zap.L().Warn("pricing: supplier search unreadable", zap.String("term", term))
			continue
		}
		for _, h := range ParseSearch(html) {
			if !seen[h.ProductID] {
				seen[h.ProductID] = true
				hits = append(hits, h)
			}
		}
	}

	sort.SliceStable(hits, func(i, j int) bool {
		return salesOf(hits[i]) > salesOf(hits[j])
	})

	limit := q.TopN
	if r.maxDetailFetches > 0 && r.maxDetailFetches < limit {
		limit = r.maxDetailFetches
	}

	var urls []string
	var rejected []model.Rejection
	for _, h := range hits {
		u := fmt.Sprintf(r.itemURL, h.ProductID)
		if h.Sales != nil && *h.Sales < q.MinSales {
			rejected = append(rejected, model.Rejection{URL: u, Reason: fmt.Sprintf("search sales %d below min %d", *h.Sales, q.MinSales)})
			continue
		}
		if len(urls) == limit {
			break
		}
		urls = append(urls, u)
	}
	return urls, rejected
}

func salesOf(h SearchHit) int {
	if h.Sales == nil {
		return -1
	}
	return *h.Sales
}

func (r *Resolver) cached(ctx context.Context, rawURL string) *model.PriceQuote {
	if r.cache == nil || r.cacheTTL <= 0 {
		return nil
	}
	q, err := r.cache.GetQuote(ctx, rawURL)
	if err != nil {
		zap.L().Warn("pricing: quote cache read failed", zap.String("url", rawURL), zap.Error(err))
		return nil
	}
	if q != nil {
		q.Source = model.SourceCache
	}
	return q
}

func (r *Resolver) store(ctx context.Context, rawURL string, q model.PriceQuote) {
	if r.cache == nil || r.cacheTTL <= 0 {
		return
	}
	if err := r.cache.PutQuote(ctx, rawURL, q, r.cacheTTL); err != nil {
		zap.L().Warn("pricing: quote cache write failed", zap.String("url", rawURL), zap.Error(err))
	}
}

// ManifestQuote builds a quote from an operator-supplied price.
func ManifestQuote(amount decimal.Decimal, rawURL string) model.PriceQuote {
	return model.PriceQuote{
		Amount:         amount,
		Shipping:       decimal.Zero,
		ShippingPolicy: model.ShippingNone,
		SourceURL:      rawURL,
		Source:         model.SourceManifest,
	}
}

func dedupe(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}
