package model

import "github.com/shopspring/decimal"

// ShippingPolicy records how a quote's shipping figure was obtained.
type ShippingPolicy string

const (
	ShippingParsed      ShippingPolicy = "parsed"
	ShippingAssumedFree ShippingPolicy = "assumed_free"
	ShippingNone        ShippingPolicy = "none"
)

// QuoteSource records where a quote's amount came from.
type QuoteSource string

const (
	SourcePage     QuoteSource = "page"
	SourceManifest QuoteSource = "manifest"
	SourceCache    QuoteSource = "cache"
)

// Signal holds corroborating evidence attached to a quote.
type Signal struct {
	PrimeEligible *bool `json:"prime_eligible,omitempty"`
	SalesCount    *int  `json:"sales_count,omitempty"`
}

// PriceQuote is a resolved price for one product page.
type PriceQuote struct {
	Amount         decimal.Decimal `json:"amount"`
	Shipping       decimal.Decimal `json:"shipping"`
	ShippingPolicy ShippingPolicy  `json:"shipping_policy"`
	SourceURL      string          `json:"source_url"`
	Source         QuoteSource     `json:"source"`
	Signal         Signal          `json:"signal"`
	Images         []string        `json:"images,omitempty"`
}

// Total returns amount plus shipping.
func (q PriceQuote) Total() decimal.Decimal {
	return q.Amount.Add(q.Shipping)
}

// Sales returns the sales count, or -1 when unknown.
func (q PriceQuote) Sales() int {
	if q.Signal.SalesCount == nil {
		return -1
	}
	return *q.Signal.SalesCount
}

// Rejection explains why a supplier candidate was not considered.
type Rejection struct {
	URL    string `json:"url"`
	Reason string `json:"reason"`
}

// BestQuote is the winning supplier quote plus the audit of the search.
type BestQuote struct {
	Quote      PriceQuote  `json:"quote"`
	Considered int         `json:"considered"`
	Rejected   []Rejection `json:"rejected,omitempty"`
}

// Less orders quotes by total ascending, then sales descending, then URL.
func Less(a, b PriceQuote) bool {
	if c := a.Total().Cmp(b.Total()); c != 0 {
		return c < 0
	}
	if a.Sales() != b.Sales() {
		return a.Sales() > b.Sales()
	}
	return a.SourceURL < b.SourceURL
}

// BoolPtr returns a pointer to b.
func BoolPtr(b bool) *bool { return &b }

// IntPtr returns a pointer to n.
func IntPtr(n int) *int { return &n }

// DecimalPtr returns a pointer to d.
func DecimalPtr(d decimal.Decimal) *decimal.Decimal { return &d }
