package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"

	"rag-service/internal/models"
)

// anthropicMaxTokens bounds each completion.
const anthropicMaxTokens = 2048

// Anthropic adapts the Anthropic messages API.
type Anthropic struct {
	client *anthropic.Client
}

// NewAnthropic wraps an Anthropic client.
func NewAnthropic(client *anthropic.Client) *Anthropic {
	return &Anthropic{client: client}
}

func (a *Anthropic) Name() string { return ProviderAnthropic }

// Complete runs a messages call. System turns inside the history are
// folded into the system prompt since the API takes system text separately.
func (a *Anthropic) Complete(ctx context.Context, model, system string, messages []Message) (string, error) {
	var systemParts []string
	if system != "" {
		systemParts = append(systemParts, system)
	}

	msgs := make([]anthropic.MessageParam, 0, len(messages))
	for _, m := range messages {
		switch m.Role {
		case models.RoleAssistant:
			msgs = append(msgs, anthropic.NewAssistantMessage(anthropic.NewTextBlock(m.Content)))
		case models.RoleSystem:
			systemParts = append(systemParts, m.Content)
		default:
			msgs = append(msgs, anthropic.NewUserMessage(anthropic.NewTextBlock(m.Content)))
		}
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		MaxTokens: anthropicMaxTokens,
		Messages:  msgs,
	}
	if len(systemParts) > 0 {
		params.System = []anthropic.TextBlockParam{{Text: strings.Join(systemParts, "\n\n")}}
	}

	resp, err := a.client.Messages.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("anthropic completion: %w", err)
	}

	var sb strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}
	return sb.String(), nil
}

// Stream delivers the full completion as a single token.
func (a *Anthropic) Stream(ctx context.Context, model, system string, messages []Message, onToken func(string) error) (string, error) {
	answer, err := a.Complete(ctx, model, system, messages)
	if err != nil {
		return "", err
	}
	if err := onToken(answer); err != nil {
		return answer, fmt.Errorf("anthropic stream consumer: %w", err)
	}
	return answer, nil
}
