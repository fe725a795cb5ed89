package pricing

import (
	"regexp"

	"github.com/PuerkitoBio/goquery"
)

// PremiumDetector decides whether a retail listing carries the premium
// fulfillment signal. Listings without it are not used as a retail
// reference.
type PremiumDetector interface {
	DetectPremium(doc *goquery.Document, raw string) bool
}

// PremiumDetectorFunc adapts a function to PremiumDetector.
type PremiumDetectorFunc func(doc *goquery.Document, raw string) bool

// DetectPremium implements PremiumDetector.
func (f PremiumDetectorFunc) DetectPremium(doc *goquery.Document, raw string) bool {
	return f(doc, raw)
}

var primeMarkupRe = regexp.MustCompile(`Prime[^<]*</span>|aria-label="(?:Amazon )?Prime"|amazon-prime`)

const primeSelectors = "i.a-icon-prime, .a-icon-prime, #primeBadge, [aria-label='Amazon Prime'], [aria-label='Prime']"

// PrimeDetector recognises Amazon Prime badges.
type PrimeDetector struct{}

// DetectPremium implements PremiumDetector.
func (PrimeDetector) DetectPremium(doc *goquery.Document, raw string) bool {
	if doc != nil && doc.Find(primeSelectors).Length() > 0 {
		return true
	}
	return primeMarkupRe.MatchString(raw)
}
