package copywriter

import (
	"context"
	"fmt"
	"strings"

	"github.com/sells-group/reel-importer/internal/model"
)

var angles = map[string][3]string{
	"lighting": {"Instant curb appeal", "No wiring, no stress", "Weather-resistant, dusk-to-dawn"},
	"home":     {"Seal drafts in seconds", "Quieter, comfier rooms", "Cut energy waste"},
	"fitness":  {"Train anywhere", "Full-body results fast", "Beginner to advanced"},
}

var defaultAngle = [3]string{"Easy upgrade", "High perceived quality", "Built to last"}

// TemplateWriter renders deterministic copy from per-category angle tables.
type TemplateWriter struct{}

// Write implements Writer. It never fails.
func (TemplateWriter) Write(_ context.Context, b Brief) (*model.Copy, error) {
	name := b.Name
	if name == "" {
		name = "This Product"
	}
	a := angleFor(b.Category)

	benefit := strings.TrimSpace(strings.SplitN(b.Description, ".", 2)[0])
	if benefit == "" {
		benefit = name + " makes everyday life easier"
	}

	priceHook := "Ready to ship"
	whyPay := "Why Pay More Elsewhere?"
	if b.RRP != nil {
		dollars := b.RRP.IntPart()
		priceHook = fmt.Sprintf("Under $%d", dollars)
		whyPay = fmt.Sprintf("Why Pay $%d Elsewhere?", dollars)
	}

	return &model.Copy{
		Titles: []string{
			fmt.Sprintf("%s: %s", name, a[0]),
			fmt.Sprintf("%s - %s", a[1], name),
			fmt.Sprintf("%s | %s", a[2], priceHook),
		},
		DescriptionBlocks: []string{
			benefit + ". Installs in minutes, no tools or pros needed.",
			"Designed for everyday use. Durable materials and a clean look fit any style.",
			"Risk-free try. If it doesn't wow your space, send it back.",
		},
		Ad: model.AdCopy{
			PrimaryText: []string{
				fmt.Sprintf("Today only! 35%% off + bundle & save. %s ships fast.", name),
				fmt.Sprintf("Upgrade your space in minutes. %s = %s.", name, strings.ToLower(a[0])),
				"Join thousands who switched. High quality without the premium price.",
			},
			Headlines: []string{
				"35% off (Ends Tomorrow)",
				"Fast & Free Shipping",
				"Easy Install, No Damage",
				a[0],
				"Built to Last",
				whyPay,
			},
			Descriptions: []string{
				"(fast & free shipping)",
				fmt.Sprintf("3x value vs suppliers, from $%s", b.SupplierTotal.StringFixed(2)),
				"Hassle-free returns",
			},
		},
	}, nil
}

// angleFor matches the category by keyword so "Home & Garden" uses the home table.
func angleFor(category string) [3]string {
	c := strings.ToLower(category)
	if a, ok := angles[c]; ok {
		return a
	}
	for _, key := range []string{"lighting", "fitness", "home"} {
		if strings.Contains(c, key) {
			return angles[key]
		}
	}
	return defaultAngle
}
