package model

import (
	"sort"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func quote(url string, amount, shipping float64, sales *int) PriceQuote {
	return PriceQuote{
		Amount:    decimal.NewFromFloat(amount),
		Shipping:  decimal.NewFromFloat(shipping),
		SourceURL: url,
		Signal:    Signal{SalesCount: sales},
	}
}

func TestPriceQuoteTotal(t *testing.T) {
	q := quote("a", 12.49, 2.51, nil)
	assert.True(t, q.Total().Equal(decimal.NewFromInt(15)))
	assert.Equal(t, -1, q.Sales())
}

func TestLessOrdering(t *testing.T) {
	quotes := []PriceQuote{
		quote("c", 20, 0, IntPtr(500)),
		quote("b", 18, 2, IntPtr(900)),
		quote("a", 19, 1, IntPtr(900)),
		quote("d", 15, 0, IntPtr(10)),
	}
	sort.Slice(quotes, func(i, j int) bool { return Less(quotes[i], quotes[j]) })

	var urls []string
	for _, q := range quotes {
		urls = append(urls, q.SourceURL)
	}
	// d is cheapest; a/b/c tie at 20 and sort by sales then URL.
	assert.Equal(t, []string{"d", "a", "b", "c"}, urls)
}

func TestStateTransitions(t *testing.T) {
	assert.True(t, StatePricedPending.CanTransition(StatePricePassed))
	assert.True(t, StatePricedPending.CanTransition(StatePriceFailed))
	assert.True(t, StatePricePassed.CanTransition(StateAssetsBuilt))
	assert.True(t, StateAssetsBuilt.CanTransition(StateSubmitted))
	assert.True(t, StateAssetsBuilt.CanTransition(StateSubmitFailed))

	assert.False(t, StatePricedPending.CanTransition(StateAssetsBuilt))
	assert.False(t, StatePriceFailed.CanTransition(StatePricePassed))
	assert.False(t, StateSubmitted.CanTransition(StateSubmitFailed))

	assert.True(t, StatePriceFailed.Terminal())
	assert.True(t, StateSubmitted.Terminal())
	assert.False(t, StatePricePassed.Terminal())
}

func TestDecisionSpread(t *testing.T) {
	d := PriceDecision{
		RetailTotal:   DecimalPtr(decimal.NewFromInt(40)),
		SupplierTotal: DecimalPtr(decimal.NewFromInt(19)),
	}
	assert.True(t, d.Spread().Equal(decimal.NewFromInt(21)))

	d.SupplierTotal = nil
	assert.Nil(t, d.Spread())
}

func TestVideoWindowOverlaps(t *testing.T) {
	a := VideoWindow{Start: 0, End: 3}
	assert.True(t, a.Overlaps(VideoWindow{Start: 2, End: 5}))
	assert.False(t, a.Overlaps(VideoWindow{Start: 3, End: 5}))
	assert.InDelta(t, 3.0, a.Duration(), 1e-9)
}

func TestCandidateLabel(t *testing.T) {
	assert.Equal(t, "ig:1:lamp", Candidate{ExternalID: "ig:1:lamp", Name: "Lamp"}.Label())
	assert.Equal(t, "Lamp", Candidate{Name: "Lamp"}.Label())
}
