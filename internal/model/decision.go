package model

import "github.com/shopspring/decimal"

// DecisionBranch names the rule branch that produced a PriceDecision.
type DecisionBranch string

const (
	BranchHalfRule           DecisionBranch = "half_rule"
	BranchSpreadRule         DecisionBranch = "spread_rule"
	BranchSoftPass           DecisionBranch = "soft_pass"
	BranchRuleFail           DecisionBranch = "rule_fail"
	BranchRetailUnresolved   DecisionBranch = "retail_unresolved"
	BranchSupplierUnresolved DecisionBranch = "supplier_unresolved"
)

// PriceDecision is the outcome of the pricing rule. Passed with Soft set
// means the retail price is known but the supplier price awaits manual
// confirmation.
type PriceDecision struct {
	Passed        bool             `json:"passed"`
	Soft          bool             `json:"soft"`
	Branch        DecisionBranch   `json:"branch"`
	Reason        string           `json:"reason"`
	RetailTotal   *decimal.Decimal `json:"retail_total,omitempty"`
	SupplierTotal *decimal.Decimal `json:"supplier_total,omitempty"`
	Assumptions   []string         `json:"assumptions,omitempty"`
}

// Spread returns retail minus supplier when both are known.
func (d PriceDecision) Spread() *decimal.Decimal {
	if d.RetailTotal == nil || d.SupplierTotal == nil {
		return nil
	}
	s := d.RetailTotal.Sub(*d.SupplierTotal)
	return &s
}
