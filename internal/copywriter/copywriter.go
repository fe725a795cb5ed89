// Package copywriter generates product titles, description blocks and ad copy.
package copywriter

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/sells-group/reel-importer/internal/config"
	"github.com/sells-group/reel-importer/internal/model"
)

// Brief is the product context handed to a Writer.
type Brief struct {
	Name          string
	Category      string
	Description   string
	SupplierTotal decimal.Decimal
	// RRP is nil when the price decision was a soft pass.
	RRP *decimal.Decimal
}

// Writer produces marketing copy for a product.
type Writer interface {
	Write(ctx context.Context, b Brief) (*model.Copy, error)
}

// Fallback wraps a model-backed Writer and returns template copy when it fails.
type Fallback struct {
	Primary  Writer
	Template TemplateWriter
}

// Write implements Writer.
func (f Fallback) Write(ctx context.Context, b Brief) (*model.Copy, error) {
	if f.Primary == nil {
		return f.Template.Write(ctx, b)
	}
	c, err := f.Primary.Write(ctx, b)
	if err == nil {
		return c, nil
	}
	zap.L().Warn("copywriter: model backend failed, using template",
		zap.String("product", b.Name),
		zap.Error(err),
	)
	return f.Template.Write(ctx, b)
}

// New builds the Writer selected by cfg.Copy.Provider. Model providers without
// a key fall back to the template writer.
func New(cfg *config.Config) (Writer, error) {
	switch strings.ToLower(cfg.Copy.Provider) {
	case "", "template":
		return TemplateWriter{}, nil
	case "openai":
		if cfg.OpenAI.Key == "" {
			zap.L().Warn("copywriter: openai key not set, using template")
			return TemplateWriter{}, nil
		}
		return Fallback{Primary: NewOpenAIWriter(cfg.OpenAI.Key, cfg.OpenAI.Model)}, nil
	case "anthropic":
		if cfg.Anthropic.Key == "" {
			zap.L().Warn("copywriter: anthropic key not set, using template")
			return TemplateWriter{}, nil
		}
		return Fallback{Primary: NewAnthropicWriter(cfg.Anthropic.Key, cfg.Anthropic.Model)}, nil
	default:
		return nil, eris.Errorf("copywriter: unknown provider %q", cfg.Copy.Provider)
	}
}

const systemPrompt = "You are an expert e-commerce copywriter. Write compelling, benefit-driven product copy. " +
	"Respond with JSON only."

func userPrompt(b Brief) string {
	var sb strings.Builder
	sb.WriteString("Write marketing copy for this product.\n\n")
	sb.WriteString("Product: " + b.Name + "\n")
	sb.WriteString("Category: " + b.Category + "\n")
	if b.Description != "" {
		sb.WriteString("Description: " + b.Description + "\n")
	}
	if b.RRP != nil {
		sb.WriteString("Price: $" + b.RRP.StringFixed(2) + "\n")
	}
	sb.WriteString(`
Return a JSON object with keys:
  "titles": 3 product title variants,
  "description_blocks": 3 short paragraphs (benefit, features, value),
  "ad": {"primary_text": 3 short texts, "headlines": 6 hooks, "descriptions": 3 short lines}
`)
	return sb.String()
}

// parseCopy decodes a model response into Copy, tolerating a fenced code block.
func parseCopy(raw string) (*model.Copy, error) {
	raw = strings.TrimSpace(raw)
	raw = strings.TrimPrefix(raw, "```json")
	raw = strings.TrimPrefix(raw, "```")
	raw = strings.TrimSuffix(raw, "```")

	var c model.Copy
	if err := json.Unmarshal([]byte(strings.TrimSpace(raw)), &c); err != nil {
		return nil, eris.Wrap(err, "copywriter: decode response")
	}
	if len(c.Titles) == 0 || len(c.Ad.Headlines) == 0 {
		return nil, eris.New("copywriter: response missing titles or headlines")
	}
	return &c, nil
}
