package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Candidate is one product to evaluate, usually read from a manifest.
type Candidate struct {
	ExternalID           string           `yaml:"external_id" json:"external_id,omitempty"`
	Name                 string           `yaml:"name" json:"name"`
	Category             string           `yaml:"category" json:"category"`
	Description          string           `yaml:"description" json:"description,omitempty"`
	ReelURL              string           `yaml:"reel_url" json:"reel_url"`
	InspirationReels     []string         `yaml:"inspiration_reels" json:"inspiration_reels,omitempty"`
	AmazonURL            string           `yaml:"amazon_url" json:"amazon_url"`
	AliExpressCandidates []string         `yaml:"aliexpress_candidates" json:"aliexpress_candidates,omitempty"`
	SearchTerms          []string         `yaml:"aliexpress_search_terms" json:"aliexpress_search_terms,omitempty"`
	MinSales             int              `yaml:"min_sales" json:"min_sales"`
	TopN                 int              `yaml:"top_n" json:"top_n"`
	RetailPrice          *decimal.Decimal `yaml:"retail_price" json:"retail_price,omitempty"`
	SupplierPrice        *decimal.Decimal `yaml:"supplier_price" json:"supplier_price,omitempty"`
	SoftPass             *bool            `yaml:"soft_pass" json:"soft_pass,omitempty"`
	AssetsDir            string           `yaml:"assets_dir" json:"assets_dir,omitempty"`
	Headline             string           `yaml:"headline" json:"headline,omitempty"`
	AdCopy               string           `yaml:"ad_copy" json:"ad_copy,omitempty"`
}

// Label returns the most specific identifier available for logging.
func (c Candidate) Label() string {
	if c.ExternalID != "" {
		return c.ExternalID
	}
	return c.Name
}

// CandidateState is a step of the per-candidate lifecycle.
type CandidateState string

const (
	StatePricedPending CandidateState = "PRICED_PENDING"
	StatePriceFailed   CandidateState = "PRICE_FAILED"
	StatePricePassed   CandidateState = "PRICE_PASSED"
	StateAssetsBuilt   CandidateState = "ASSETS_BUILT"
	StateSubmitted     CandidateState = "SUBMITTED"
	StateSubmitFailed  CandidateState = "SUBMIT_FAILED"
	StateFailed        CandidateState = "FAILED"
	StateSkipped       CandidateState = "SKIPPED"
)

var transitions = map[CandidateState][]CandidateState{
	StatePricedPending: {StatePriceFailed, StatePricePassed, StateSkipped, StateFailed},
	StatePricePassed:   {StateAssetsBuilt, StateFailed},
	StateAssetsBuilt:   {StateSubmitted, StateSubmitFailed},
}

// CanTransition reports whether the lifecycle allows moving from s to next.
func (s CandidateState) CanTransition(next CandidateState) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Terminal reports whether s ends the candidate's lifecycle.
func (s CandidateState) Terminal() bool {
	return len(transitions[s]) == 0
}

// SkipEntry itemises a candidate that did not reach the catalog. The same
// shape lists failures.
type SkipEntry struct {
	ExternalID string         `json:"external_id,omitempty"`
	Name       string         `json:"name"`
	State      CandidateState `json:"state"`
	Reason     string         `json:"reason"`
}

// UpsertError is a per-product error reported by the catalog.
type UpsertError struct {
	Product string `json:"product"`
	Error   string `json:"error"`
}

// RunSummary is the terminal report of an import run.
type RunSummary struct {
	RunID      string        `json:"run_id"`
	Total      int           `json:"total"`
	Successful int           `json:"successful"`
	Failed     int           `json:"failed"`
	Skipped    []SkipEntry   `json:"skipped"`
	Failures   []SkipEntry   `json:"failures,omitempty"`
	Errors     []UpsertError `json:"errors,omitempty"`
	Submitted  []string      `json:"submitted,omitempty"`
	StartedAt  time.Time     `json:"started_at"`
	FinishedAt time.Time     `json:"finished_at"`
}
