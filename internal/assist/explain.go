package assist

import (
	"context"
	"fmt"
	"strings"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/rotisserie/eris"
)

// DefaultModel is the model used when none is configured.
const DefaultModel = "claude-haiku-4-5-20251001"

const systemPrompt = "You are an urban planning assistant. Always explain reasoning based on heat (LST), NDVI, and population density."

// Explainer turns a classified question and its marker brief into prose
// for city officials.
type Explainer interface {
	Explain(ctx context.Context, intent Intent, brief string) (string, error)
}

// ClaudeExplainer implements Explainer with the Anthropic Messages API.
type ClaudeExplainer struct {
	client    sdk.Client
	model     string
	maxTokens int64
}

// NewClaudeExplainer creates an explainer. An empty model selects
// DefaultModel and a non-positive maxTokens selects 1024.
func NewClaudeExplainer(apiKey, model string, maxTokens int64, opts ...option.RequestOption) *ClaudeExplainer {
	if model == "" {
		model = DefaultModel
	}
	if maxTokens <= 0 {
		maxTokens = 1024
	}
	return &ClaudeExplainer{
		client:    sdk.NewClient(append([]option.RequestOption{option.WithAPIKey(apiKey)}, opts...)...),
		model:     model,
		maxTokens: maxTokens,
	}
}

// Explain sends one user turn and returns the concatenated text blocks.
func (e *ClaudeExplainer) Explain(ctx context.Context, intent Intent, brief string) (string, error) {
	msg, err := e.client.Messages.New(ctx, sdk.MessageNewParams{
		Model:     sdk.Model(e.model),
		MaxTokens: e.maxTokens,
		System:    []sdk.TextBlockParam{{Text: systemPrompt}},
		Messages:  []sdk.MessageParam{sdk.NewUserMessage(sdk.NewTextBlock(Prompt(intent, brief)))},
	})
	if err != nil {
		return "", eris.Wrap(err, "assist: explain")
	}

	var b strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			b.WriteString(block.Text)
		}
	}
	if b.Len() == 0 {
		return "", eris.Errorf("assist: explain: no text in response %s", msg.ID)
	}
	return b.String(), nil
}

// Prompt renders the user turn sent to the explainer.
func Prompt(intent Intent, brief string) string {
	return fmt.Sprintf("%s\n\nCandidate data:\n%s\n\nPlease explain your recommendations clearly for city officials.",
		intent.Context(), brief)
}
