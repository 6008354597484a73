package llm

import (
	"context"
	"fmt"

	"google.golang.org/genai"

	"rag-service/internal/models"
)

// Gemini adapts the Google GenAI API.
type Gemini struct {
	client *genai.Client
}

// NewGemini wraps a GenAI client.
func NewGemini(client *genai.Client) *Gemini {
	return &Gemini{client: client}
}

func (g *Gemini) Name() string { return ProviderGemini }

// Complete runs a generate-content call. History maps onto alternating
// user/model contents; system turns join the system instruction.
func (g *Gemini) Complete(ctx context.Context, model, system string, messages []Message) (string, error) {
	contents := make([]*genai.Content, 0, len(messages))
	systemText := system
	for _, m := range messages {
		switch m.Role {
		case models.RoleAssistant:
			contents = append(contents, genai.NewContentFromText(m.Content, genai.RoleModel))
		case models.RoleSystem:
			if systemText != "" {
				systemText += "\n\n"
			}
			systemText += m.Content
		default:
			contents = append(contents, genai.NewContentFromText(m.Content, genai.RoleUser))
		}
	}

	var cfg *genai.GenerateContentConfig
	if systemText != "" {
		cfg = &genai.GenerateContentConfig{
			SystemInstruction: genai.NewContentFromText(systemText, genai.RoleUser),
		}
	}

	resp, err := g.client.Models.GenerateContent(ctx, model, contents, cfg)
	if err != nil {
		return "", fmt.Errorf("gemini completion: %w", err)
	}
	return resp.Text(), nil
}

// Stream delivers the full completion as a single token.
func (g *Gemini) Stream(ctx context.Context, model, system string, messages []Message, onToken func(string) error) (string, error) {
	answer, err := g.Complete(ctx, model, system, messages)
	if err != nil {
		return "", err
	}
	if err := onToken(answer); err != nil {
		return answer, fmt.Errorf("gemini stream consumer: %w", err)
	}
	return answer, nil
}
