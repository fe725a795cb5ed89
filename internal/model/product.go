package model

import "github.com/shopspring/decimal"

// Image types.
const (
	ImageMain       = "main"
	ImageAdditional = "additional"
	ImageLifestyle  = "lifestyle"
)

// Image is a product image reference.
type Image struct {
	URL          string `json:"url"`
	Type         string `json:"type"`
	DisplayOrder int    `json:"display_order"`
}

// Media is a product video reference.
type Media struct {
	URL         string `json:"url"`
	Type        string `json:"type"`
	Description string `json:"description"`
}

// Creative is an ad asset or an inspiration reel.
type Creative struct {
	Type          string `json:"type"`
	URL           string `json:"url"`
	Platform      string `json:"platform"`
	Headline      string `json:"headline,omitempty"`
	AdCopy        string `json:"ad_copy,omitempty"`
	IsInspiration bool   `json:"is_inspiration"`
}

// Metadata is the audit trail attached to a ProductRecord.
type Metadata struct {
	PriceRulePass       bool             `json:"price_rule_pass"`
	PriceRuleReason     string           `json:"price_rule_reason"`
	PriceRuleBranch     DecisionBranch   `json:"price_rule_branch"`
	SoftPass            bool             `json:"soft_pass"`
	PendingConfirmation bool             `json:"pricing_pending_confirmation"`
	AmazonURL           string           `json:"amazon_url,omitempty"`
	AliExpressURL       string           `json:"aliexpress_url,omitempty"`
	AmazonTotal         *decimal.Decimal `json:"amz_total,omitempty"`
	AliExpressTotal     *decimal.Decimal `json:"ae_total,omitempty"`
	Assumptions         []string         `json:"assumptions,omitempty"`
	CleanWindowPolicy   string           `json:"clean_window_policy,omitempty"`
	BestEffortClips     int              `json:"best_effort_clips"`
	SupplierCandidates  int              `json:"supplier_candidates_considered"`
	Copy                *Copy            `json:"copy,omitempty"`
	Workflow            string           `json:"workflow,omitempty"`
	Notes               []string         `json:"notes,omitempty"`
}

// AdCopy is the paid-social portion of generated copy.
type AdCopy struct {
	PrimaryText  []string `json:"primary_text"`
	Headlines    []string `json:"headlines"`
	Descriptions []string `json:"descriptions"`
}

// Copy is generated marketing text for one product.
type Copy struct {
	Titles            []string `json:"titles"`
	DescriptionBlocks []string `json:"description_blocks"`
	Ad                AdCopy   `json:"ad"`
}

// ProductRecord is the payload committed to the catalog.
type ProductRecord struct {
	ExternalID             string           `json:"external_id"`
	Name                   string           `json:"name"`
	Category               string           `json:"category"`
	Description            string           `json:"description"`
	SupplierPrice          *decimal.Decimal `json:"supplier_price"`
	RecommendedRetailPrice *decimal.Decimal `json:"recommended_retail_price"`
	Images                 []Image          `json:"images"`
	Media                  []Media          `json:"media"`
	Creatives              []Creative       `json:"creatives"`
	Metadata               Metadata         `json:"metadata"`
}
