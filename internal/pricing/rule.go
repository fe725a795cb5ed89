// Package pricing resolves retail and supplier quotes from marketplace
// pages and applies the arbitrage rule to them.
package pricing

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/sells-group/reel-importer/internal/model"
)

// Policy is the arbitrage rule. A pair passes when the supplier total is at
// most HalfRatio of retail, or when the spread reaches MinSpread.
type Policy struct {
	HalfRatio decimal.Decimal
	MinSpread decimal.Decimal
	SoftPass  bool
}

// DefaultPolicy returns the standard rule: half price or a $20 spread, with
// soft-pass enabled.
func DefaultPolicy() Policy {
	return Policy{
		HalfRatio: decimal.RequireFromString("0.5"),
		MinSpread: decimal.NewFromInt(20),
		SoftPass:  true,
	}
}

// Decide applies the default half-price rule with the given spread and
// soft-pass settings.
func Decide(supplier, retail *decimal.Decimal, minSpread decimal.Decimal, softPassAllowed bool) model.PriceDecision {
	p := DefaultPolicy()
	p.MinSpread = minSpread
	p.SoftPass = softPassAllowed
	return p.Decide(supplier, retail)
}

// Decide evaluates the rule. A nil total means the price is unknown. The
// returned Reason is deterministic for the same inputs.
func (p Policy) Decide(supplier, retail *decimal.Decimal) model.PriceDecision {
	d := model.PriceDecision{RetailTotal: retail, SupplierTotal: supplier}

	switch {
	case retail == nil:
		d.Branch = model.BranchRetailUnresolved
		sup := "unresolved"
		if supplier != nil {
			sup = money(*supplier)
		}
		d.Reason = fmt.Sprintf("FAIL (retail unresolved; supplier %s)", sup)

	case supplier == nil && p.SoftPass:
		d.Passed = true
		d.Soft = true
		d.Branch = model.BranchSoftPass
		d.Reason = fmt.Sprintf("SOFT-PASS (supplier unresolved; retail %s; pending manual confirmation)", money(*retail))

	case supplier == nil:
		d.Branch = model.BranchSupplierUnresolved
		d.Reason = fmt.Sprintf("FAIL (supplier unresolved; retail %s; soft-pass disabled)", money(*retail))

	default:
		spread := retail.Sub(*supplier)
		halfCap := retail.Mul(p.HalfRatio)
		prefix := fmt.Sprintf("supplier %s vs retail %s; spread %s", money(*supplier), money(*retail), money(spread))

		switch {
		case supplier.LessThanOrEqual(halfCap):
			d.Passed = true
			d.Branch = model.BranchHalfRule
			d.Reason = fmt.Sprintf("PASS (%s; rule supplier<=%s%% retail)", prefix, p.HalfRatio.Mul(decimal.NewFromInt(100)).String())
		case spread.GreaterThanOrEqual(p.MinSpread):
			d.Passed = true
			d.Branch = model.BranchSpreadRule
			d.Reason = fmt.Sprintf("PASS (%s; rule spread>=%s)", prefix, money(p.MinSpread))
		default:
			d.Branch = model.BranchRuleFail
			d.Reason = fmt.Sprintf("FAIL (%s; needs supplier<=%s or spread>=%s)", prefix, money(halfCap), money(p.MinSpread))
		}
	}

	return d
}

// Evaluate decides on resolved quotes. Either may be nil when unresolved.
// Assumptions carried by the quotes are recorded on the decision and
// appended to its reason.
func (p Policy) Evaluate(retail *model.PriceQuote, supplier *model.BestQuote) model.PriceDecision {
	var retailTotal, supplierTotal *decimal.Decimal
	var assumptions []string

	if retail != nil {
		retailTotal = model.DecimalPtr(retail.Total())
		if retail.Source == model.SourceManifest {
			assumptions = append(assumptions, "retail_manifest_override")
		}
	}
	if supplier != nil {
		supplierTotal = model.DecimalPtr(supplier.Quote.Total())
		if supplier.Quote.ShippingPolicy == model.ShippingAssumedFree {
			assumptions = append(assumptions, "supplier_shipping_assumed_free")
		}
		if supplier.Quote.Source == model.SourceManifest {
			assumptions = append(assumptions, "supplier_manifest_override")
		}
	}

	d := p.Decide(supplierTotal, retailTotal)
	if len(assumptions) > 0 {
		d.Assumptions = assumptions
		d.Reason += " [assumptions: " + strings.Join(assumptions, ",") + "]"
	}
	return d
}

func money(d decimal.Decimal) string {
	if d.IsNegative() {
		return "-$" + d.Neg().StringFixed(2)
	}
	return "$" + d.StringFixed(2)
}
