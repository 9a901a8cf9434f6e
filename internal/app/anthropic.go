package app

import (
	"context"
	"fmt"
	"log"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/joestump/slackbridge/internal/dispatch"
)

const (
	defaultAnthropicModel = "claude-haiku-4-5-20251001"
	defaultMaxTokens      = 1024
)

// DefaultSystemPrompt is used when no system prompt is configured.
const DefaultSystemPrompt = `You are a helpful assistant answering questions asked in a Slack workspace.
Answer concisely and directly. Use short paragraphs and Markdown lists where they help.`

// Anthropic answers questions with the Anthropic Messages API.
type Anthropic struct {
	client    anthropic.Client
	model     string
	system    string
	maxTokens int64
}

// NewAnthropic creates an invoker for model. The API key is read from
// ANTHROPIC_API_KEY unless opts supply one.
func NewAnthropic(model, system string, maxTokens int, opts ...option.RequestOption) *Anthropic {
	if model == "" {
		model = defaultAnthropicModel
	}
	if system == "" {
		system = DefaultSystemPrompt
	}
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}
	return &Anthropic{
		client:    anthropic.NewClient(opts...),
		model:     model,
		system:    system,
		maxTokens: int64(maxTokens),
	}
}

// Invoke asks the model inv.Query. The app id only labels the call.
func (a *Anthropic) Invoke(ctx context.Context, inv dispatch.Invocation) (*dispatch.Answer, error) {
	log.Printf("app: asking %s on behalf of app %s", a.model, inv.AppID)
	msg, err := a.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(a.model),
		MaxTokens: a.maxTokens,
		System: []anthropic.TextBlockParam{
			{Text: a.system},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(inv.Query)),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("anthropic messages: %w", err)
	}

	for _, block := range msg.Content {
		if block.Type == "text" {
			return &dispatch.Answer{Answer: block.Text, MessageID: msg.ID}, nil
		}
	}
	return &dispatch.Answer{MessageID: msg.ID}, nil
}
