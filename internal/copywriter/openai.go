package copywriter

import (
	"context"

	"github.com/rotisserie/eris"
	openai "github.com/sashabaranov/go-openai"

	"github.com/sells-group/reel-importer/internal/model"
)

// OpenAIWriter asks an OpenAI chat model for JSON copy.
type OpenAIWriter struct {
	client *openai.Client
	model  string
}

// NewOpenAIWriter creates a writer using the public OpenAI endpoint.
func NewOpenAIWriter(key, modelName string) *OpenAIWriter {
	return NewOpenAIWriterWithConfig(openai.DefaultConfig(key), modelName)
}

// NewOpenAIWriterWithConfig creates a writer from an explicit client config.
func NewOpenAIWriterWithConfig(cfg openai.ClientConfig, modelName string) *OpenAIWriter {
	if modelName == "" {
		modelName = openai.GPT4oMini
	}
	return &OpenAIWriter{client: openai.NewClientWithConfig(cfg), model: modelName}
}

// Write implements Writer.
func (w *OpenAIWriter) Write(ctx context.Context, b Brief) (*model.Copy, error) {
	resp, err := w.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: w.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: userPrompt(b)},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{Type: openai.ChatCompletionResponseFormatTypeJSONObject},
		Temperature:    0.8,
	})
	if err != nil {
		return nil, eris.Wrap(err, "copywriter: openai completion")
	}
	if len(resp.Choices) == 0 {
		return nil, eris.New("copywriter: openai returned no choices")
	}
	return parseCopy(resp.Choices[0].Message.Content)
}
