package pricing

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/shopspring/decimal"
	"github.com/tidwall/gjson"
)

var (
	numberRe         = regexp.MustCompile(`\d+(?:\.\d+)?`)
	currencyPrefixes = []string{"US$", "CA$", "USD", "$"}
)

// ParseMoney extracts the first amount from s, ignoring currency markers
// and thousands separators. It returns nil when s holds no number.
func ParseMoney(s string) *decimal.Decimal {
	s = strings.TrimSpace(s)
	for _, p := range currencyPrefixes {
		s = strings.ReplaceAll(s, p, "")
	}
	s = strings.ReplaceAll(s, ",", "")
	m := numberRe.FindString(s)
	if m == "" {
		return nil
	}
	d, err := decimal.NewFromString(m)
	if err != nil {
		return nil
	}
	return &d
}

// RetailPage is what we read from a retail listing.
type RetailPage struct {
	Title   string
	Price   *decimal.Decimal
	Premium bool
	Images  []string
}

var retailPriceSelectors = []string{
	"#corePrice_feature_div .a-offscreen",
	"#priceblock_ourprice",
	"#priceblock_dealprice",
	"#price_inside_buybox",
	".a-price .a-offscreen",
}

var (
	retailJSONPriceRe = regexp.MustCompile(`"priceAmount"\s*:\s*([0-9]+(?:\.[0-9]+)?)`)
	retailHiResRe     = regexp.MustCompile(`"hiRes"\s*:\s*"(https://[^"]+)"`)
)

const maxGalleryImages = 6

// ParseRetail reads a retail listing. A parse that finds no price leaves
// Price nil.
func ParseRetail(html string, premium PremiumDetector) (RetailPage, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return RetailPage{}, err
	}

	page := RetailPage{Title: strings.TrimSpace(doc.Find("#productTitle").First().Text())}

	for _, sel := range retailPriceSelectors {
		if p := ParseMoney(doc.Find(sel).First().Text()); p != nil && p.IsPositive() {
			page.Price = p
			break
		}
	}
	if page.Price == nil {
		whole := doc.Find(".a-price-whole").First()
		if whole.Length() > 0 {
			frac := whole.Parent().Find(".a-price-fraction").First().Text()
			raw := strings.TrimSuffix(strings.TrimSpace(whole.Text()), ".")
			if frac != "" {
				raw += "." + strings.TrimSpace(frac)
			}
			page.Price = ParseMoney(raw)
		}
	}
	if page.Price == nil {
		if m := retailJSONPriceRe.FindStringSubmatch(html); m != nil {
			page.Price = ParseMoney(m[1])
		}
	}

	if premium != nil {
		page.Premium = premium.DetectPremium(doc, html)
	}

	page.Images = retailImages(doc, html)
	return page, nil
}

func retailImages(doc *goquery.Document, html string) []string {
	seen := make(map[string]bool)
	var out []string
	add := func(u string) {
		if u == "" || seen[u] || len(out) >= maxGalleryImages {
			return
		}
		seen[u] = true
		out = append(out, u)
	}

	doc.Find("img[data-old-hires]").Each(func(_ int, s *goquery.Selection) {
		add(s.AttrOr("data-old-hires", ""))
	})
	for _, m := range retailHiResRe.FindAllStringSubmatch(html, -1) {
		add(m[1])
	}
	return out
}

// SupplierPage is what we read from a supplier product page. Nil fields
// were not found.
type SupplierPage struct {
	Price    *decimal.Decimal
	Shipping *decimal.Decimal
	Sales    *int
}

var (
	runParamsRe = regexp.MustCompile(`(?s)runParams\s*=\s*(\{.+?\})\s*;\s*(?:var\s|window\.|</script>)`)

	supplierPriceRe   = regexp.MustCompile(`"(?:salePrice|price)"\s*:\s*(?:\{[^{}]*?"value"\s*:\s*)?"?(?:US\s*\$|\$)?\s*([0-9][0-9,]*(?:\.[0-9]+)?)`)
	shippingFeeRe     = regexp.MustCompile(`"shippingFee"\s*:\s*"?(?:US\s*\$|\$)?\s*([0-9][0-9,]*(?:\.[0-9]+)?)`)
	shippingFeeFreeRe = regexp.MustCompile(`(?i)"shippingFee"\s*:\s*"free"`)
	freeShippingRe    = regexp.MustCompile(`(?i)free\s+shipping`)
	shippingTextRe    = regexp.MustCompile(`(?i)shipping[^<$]{0,40}\$\s?([0-9]+(?:\.[0-9]{1,2})?)`)
	tradeCountRe      = regexp.MustCompile(`"tradeCount"\s*:\s*"?([0-9][0-9,]*)`)
	soldTextRe        = regexp.MustCompile(`(?i)([0-9][0-9,.]*)\s*([kK])?\+?\s*(?:orders|sold)\b`)
)

var (
	runParamsPricePaths = []string{
		"data.priceModule.minActivityAmount.value",
		"data.priceModule.minAmount.value",
		"data.priceComponent.discountPrice.minActivityAmount.value",
		"data.priceComponent.origPrice.minAmount.value",
	}
	runParamsShippingPaths = []string{
		"data.shippingModule.generalFreightInfo.originalLayoutResultList.0.bizData.displayAmount",
		"data.webGeneralFreightCalculateComponent.originalLayoutResultList.0.bizData.displayAmount",
	}
	runParamsSalesPaths = []string{
		"data.titleModule.tradeCount",
		"data.tradeComponent.formatTradeCount",
	}
)

// ParseSupplier reads a supplier product page, preferring the embedded
// page-state JSON and falling back to text patterns.
func ParseSupplier(html string) SupplierPage {
	var page SupplierPage

	if m := runParamsRe.FindStringSubmatch(html); m != nil && gjson.Valid(m[1]) {
		state := gjson.Parse(m[1])
		for _, p := range runParamsPricePaths {
			if v := state.Get(p); v.Exists() {
				page.Price = ParseMoney(v.String())
				break
			}
		}
		for _, p := range runParamsShippingPaths {
			if v := state.Get(p); v.Exists() {
				page.Shipping = ParseMoney(v.String())
				break
			}
		}
		for _, p := range runParamsSalesPaths {
			if v := state.Get(p); v.Exists() {
				page.Sales = parseCount(v.String(), "")
				break
			}
		}
	}

	if page.Price == nil {
		if m := supplierPriceRe.FindStringSubmatch(html); m != nil {
			page.Price = ParseMoney(m[1])
		}
	}

	if page.Shipping == nil {
		switch {
		case shippingFeeFreeRe.MatchString(html):
			zero := decimal.Zero
			page.Shipping = &zero
		case shippingFeeRe.MatchString(html):
			page.Shipping = ParseMoney(shippingFeeRe.FindStringSubmatch(html)[1])
		case freeShippingRe.MatchString(html):
			zero := decimal.Zero
			page.Shipping = &zero
		case shippingTextRe.MatchString(html):
			page.Shipping = ParseMoney(shippingTextRe.FindStringSubmatch(html)[1])
		}
	}

	if page.Sales == nil {
		if m := tradeCountRe.FindStringSubmatch(html); m != nil {
			page.Sales = parseCount(m[1], "")
		} else if m := soldTextRe.FindStringSubmatch(html); m != nil {
			page.Sales = parseCount(m[1], m[2])
		}
	}

	return page
}

// SearchHit is one product in a supplier search result page.
type SearchHit struct {
	ProductID string
	Sales     *int
}

var (
	searchProductRe = regexp.MustCompile(`"productId"\s*:\s*"?(\d{6,})"?`)
	searchItemHref  = regexp.MustCompile(`/item/(\d{6,})\.html`)
	searchTradeRe   = regexp.MustCompile(`"tradeDesc"\s*:\s*"([^"]*)"`)
)

// ParseSearch extracts product ids and sold counts from a search results
// page, in page order without duplicates.
func ParseSearch(html string) []SearchHit {
	seen := make(map[string]bool)
	var hits []SearchHit

	locs := searchProductRe.FindAllStringSubmatchIndex(html, -1)
	for i, loc := range locs {
		id := html[loc[2]:loc[3]]
		if seen[id] {
			continue
		}
		seen[id] = true

		end := len(html)
		if i+1 < len(locs) {
			end = locs[i+1][0]
		}
		segment := html[loc[1]:end]

		hit := SearchHit{ProductID: id}
		if m := searchTradeRe.FindStringSubmatch(segment); m != nil {
			if s := soldTextRe.FindStringSubmatch(m[1]); s != nil {
				hit.Sales = parseCount(s[1], s[2])
			}
		}
		hits = append(hits, hit)
	}

	for _, m := range searchItemHref.FindAllStringSubmatch(html, -1) {
		if !seen[m[1]] {
			seen[m[1]] = true
			hits = append(hits, SearchHit{ProductID: m[1]})
		}
	}
	return hits
}

// parseCount turns "1,234" or "10" with suffix "K" into an int.
func parseCount(raw, suffix string) *int {
	raw = strings.ReplaceAll(strings.TrimSpace(raw), ",", "")
	raw = strings.TrimSuffix(raw, "+")
	if raw == "" {
		return nil
	}
	if strings.EqualFold(suffix, "k") {
		f, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return nil
		}
		n := int(f * 1000)
		return &n
	}
	if i := strings.IndexByte(raw, '.'); i >= 0 {
		raw = raw[:i]
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return nil
	}
	return &n
}
