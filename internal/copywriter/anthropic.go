package copywriter

import (
	"context"
	"strings"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/rotisserie/eris"

	"github.com/sells-group/reel-importer/internal/model"
)

const anthropicMaxTokens = 1500

// AnthropicWriter asks a Claude model for JSON copy.
type AnthropicWriter struct {
	client sdk.Client
	model  string
}

// NewAnthropicWriter creates a writer. Extra options are appended after the key.
func NewAnthropicWriter(key, modelName string, opts ...option.RequestOption) *AnthropicWriter {
	opts = append([]option.RequestOption{option.WithAPIKey(key)}, opts...)
	return &AnthropicWriter{client: sdk.NewClient(opts...), model: modelName}
}

// Write implements Writer.
func (w *AnthropicWriter) Write(ctx context.Context, b Brief) (*model.Copy, error) {
	msg, err := w.client.Messages.New(ctx, sdk.MessageNewParams{
		Model:     sdk.Model(w.model),
		MaxTokens: anthropicMaxTokens,
		System:    []sdk.TextBlockParam{{Text: systemPrompt}},
		Messages:  []sdk.MessageParam{sdk.NewUserMessage(sdk.NewTextBlock(userPrompt(b)))},
	})
	if err != nil {
		return nil, eris.Wrap(err, "copywriter: anthropic message")
	}

	var sb strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}
	return parseCopy(sb.String())
}
