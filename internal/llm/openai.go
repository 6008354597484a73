package llm

import (
	"context"
	"fmt"

	"github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/shared"

	"rag-service/internal/models"
)

// OpenAI adapts the OpenAI chat completions API. It is the only provider
// with true token streaming.
type OpenAI struct {
	client *openai.Client
}

// NewOpenAI wraps an OpenAI client.
func NewOpenAI(client *openai.Client) *OpenAI {
	return &OpenAI{client: client}
}

func (o *OpenAI) Name() string { return ProviderOpenAI }

func (o *OpenAI) params(model, system string, messages []Message) openai.ChatCompletionNewParams {
	msgs := make([]openai.ChatCompletionMessageParamUnion, 0, len(messages)+1)
	if system != "" {
		msgs = append(msgs, openai.SystemMessage(system))
	}
	for _, m := range messages {
		switch m.Role {
		case models.RoleAssistant:
			msgs = append(msgs, openai.AssistantMessage(m.Content))
		case models.RoleSystem:
			msgs = append(msgs, openai.SystemMessage(m.Content))
		default:
			msgs = append(msgs, openai.UserMessage(m.Content))
		}
	}
	return openai.ChatCompletionNewParams{
		Model:    shared.ChatModel(model),
		Messages: msgs,
	}
}

// Complete runs a non-streaming chat completion.
func (o *OpenAI) Complete(ctx context.Context, model, system string, messages []Message) (string, error) {
	resp, err := o.client.Chat.Completions.New(ctx, o.params(model, system, messages))
	if err != nil {
		return "", fmt.Errorf("openai completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("openai completion: empty response")
	}
	return resp.Choices[0].Message.Content, nil
}

// Stream runs a streaming completion, emitting each delta through onToken
// and returning the accumulated answer.
func (o *OpenAI) Stream(ctx context.Context, model, system string, messages []Message, onToken func(string) error) (string, error) {
	stream := o.client.Chat.Completions.NewStreaming(ctx, o.params(model, system, messages))
	defer stream.Close()

	var full string
	for stream.Next() {
		chunk := stream.Current()
		if len(chunk.Choices) == 0 {
			continue
		}
		delta := chunk.Choices[0].Delta.Content
		if delta == "" {
			continue
		}
		full += delta
		if err := onToken(delta); err != nil {
			return full, fmt.Errorf("openai stream consumer: %w", err)
		}
	}
	if err := stream.Err(); err != nil {
		return full, fmt.Errorf("openai stream: %w", err)
	}
	return full, nil
}
