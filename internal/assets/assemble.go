package assets

import (
	"strings"

	"github.com/shopspring/decimal"

	"github.com/sells-group/reel-importer/internal/model"
)

const clipNote = "GIFs must be text-free; uploaded after pricing pass."

// Uploaded holds the public URLs of a bundle after upload.
type Uploaded struct {
	Main    string
	Gallery []string
	GIFs    []string
	Videos  []string
}

// Input is everything Assemble needs for one product.
type Input struct {
	Candidate       model.Candidate
	Decision        model.PriceDecision
	RetailURL       string
	SupplierURL     string
	Considered      int
	Assets          Uploaded
	Copy            *model.Copy
	RRPMultiplier   decimal.Decimal
	WindowPolicy    string
	BestEffortClips int
	Workflow        string
}

// Assemble builds the catalog record. It performs no I/O.
func Assemble(in Input) model.ProductRecord {
	c := in.Candidate
	rec := model.ProductRecord{
		ExternalID:    ExternalID(c),
		Name:          c.Name,
		Category:      c.Category,
		Description:   description(c, in.Copy),
		SupplierPrice: in.Decision.SupplierTotal,
		Images:        images(in.Assets),
		Media:         videos(in.Assets.Videos),
		Creatives:     creatives(c, in.Assets.GIFs, in.Copy),
	}
	if !in.Decision.Soft {
		rec.RecommendedRetailPrice = RRP(in.Decision.SupplierTotal, in.RRPMultiplier)
	}

	var notes []string
	if len(in.Assets.GIFs) > 0 {
		notes = append(notes, clipNote)
	}
	if in.BestEffortClips > 0 {
		notes = append(notes, "some GIFs exceed the size cap (best effort)")
	}

	rec.Metadata = model.Metadata{
		PriceRulePass:       in.Decision.Passed,
		PriceRuleReason:     in.Decision.Reason,
		PriceRuleBranch:     in.Decision.Branch,
		SoftPass:            in.Decision.Soft,
		PendingConfirmation: in.Decision.Soft,
		AmazonURL:           firstNonEmpty(in.RetailURL, c.AmazonURL),
		AliExpressURL:       in.SupplierURL,
		AmazonTotal:         in.Decision.RetailTotal,
		AliExpressTotal:     in.Decision.SupplierTotal,
		Assumptions:         in.Decision.Assumptions,
		CleanWindowPolicy:   in.WindowPolicy,
		BestEffortClips:     in.BestEffortClips,
		SupplierCandidates:  in.Considered,
		Copy:                in.Copy,
		Workflow:            in.Workflow,
		Notes:               notes,
	}
	return rec
}

// RRP returns supplier × multiplier rounded to cents, or nil when the
// supplier total is unknown.
func RRP(supplier *decimal.Decimal, multiplier decimal.Decimal) *decimal.Decimal {
	if supplier == nil {
		return nil
	}
	if multiplier.IsZero() {
		multiplier = decimal.NewFromInt(3)
	}
	v := supplier.Mul(multiplier).Round(2)
	return &v
}

func description(c model.Candidate, cp *model.Copy) string {
	if strings.TrimSpace(c.Description) != "" {
		return c.Description
	}
	if cp != nil {
		return strings.Join(cp.DescriptionBlocks, " ")
	}
	return ""
}

func images(u Uploaded) []model.Image {
	var out []model.Image
	order := 0
	if u.Main != "" {
		out = append(out, model.Image{URL: u.Main, Type: model.ImageMain, DisplayOrder: order})
		order++
	}
	for _, g := range u.Gallery {
		typ := model.ImageAdditional
		if strings.Contains(strings.ToLower(g), "lifestyle") {
			typ = model.ImageLifestyle
		}
		out = append(out, model.Image{URL: g, Type: typ, DisplayOrder: order})
		order++
	}
	return out
}

func videos(urls []string) []model.Media {
	out := make([]model.Media, 0, len(urls))
	for _, u := range urls {
		out = append(out, model.Media{URL: u, Type: "video", Description: "Product demo"})
	}
	return out
}

// creatives lists inspiration reels first, then one ad per GIF. Ad headline
// and primary text rotate through the copy; manifest overrides apply to the
// first ad.
func creatives(c model.Candidate, gifs []string, cp *model.Copy) []model.Creative {
	reels := c.InspirationReels
	if len(reels) == 0 && c.ReelURL != "" {
		reels = []string{c.ReelURL}
	}

	out := make([]model.Creative, 0, len(reels)+len(gifs))
	for _, r := range reels {
		out = append(out, model.Creative{Type: "reel", URL: r, Platform: "instagram", IsInspiration: true})
	}
	for i, g := range gifs {
		ad := model.Creative{Type: "ad", URL: g, Platform: "meta"}
		if cp != nil {
			ad.Headline = rotate(cp.Ad.Headlines, i)
			ad.AdCopy = rotate(cp.Ad.PrimaryText, i)
		}
		if i == 0 {
			ad.Headline = firstNonEmpty(c.Headline, ad.Headline)
			ad.AdCopy = firstNonEmpty(c.AdCopy, ad.AdCopy)
		}
		out = append(out, ad)
	}
	return out
}

func rotate(s []string, i int) string {
	if len(s) == 0 {
		return ""
	}
	return s[i%len(s)]
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
