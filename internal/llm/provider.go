package llm

import (
	"context"
	"fmt"
	"strings"

	"rag-service/internal/apperr"
)

// Provider names used for routing and error details.
const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
	ProviderGemini    = "gemini"
)

// Message is one conversation turn handed to a provider.
type Message struct {
	Role    string
	Content string
}

// Provider generates completions for a prompt. Stream emits tokens through
// onToken as they arrive; providers without a streaming API deliver the
// whole answer as a single token.
type Provider interface {
	Name() string
	Complete(ctx context.Context, model, system string, messages []Message) (string, error)
	Stream(ctx context.Context, model, system string, messages []Message, onToken func(string) error) (string, error)
}

// Router resolves a model string to a configured provider and the bare
// model name that provider expects.
type Router struct {
	providers    map[string]Provider
	defaultModel string
}

// NewRouter builds a router over the configured providers. Unconfigured
// providers are simply absent from the map.
func NewRouter(defaultModel string, providers ...Provider) *Router {
	byName := make(map[string]Provider, len(providers))
	for _, p := range providers {
		byName[p.Name()] = p
	}
	return &Router{providers: byName, defaultModel: defaultModel}
}

// DefaultModel returns the model used when a request names none.
func (r *Router) DefaultModel() string {
	return r.defaultModel
}

// Resolve picks the provider for a model string. An explicit prefix
// ("openai:", "anthropic:", "claude:", "gemini:", "google:", with "/" also
// accepted as the separator) wins; otherwise the name is matched by
// substring, defaulting to OpenAI.
func (r *Router) Resolve(model string) (Provider, string, error) {
	if model == "" {
		model = r.defaultModel
	}

	name := ProviderOpenAI
	bare := model
	if prefix, rest, ok := splitPrefix(model); ok {
		switch prefix {
		case "openai":
			name = ProviderOpenAI
		case "anthropic", "claude":
			name = ProviderAnthropic
		case "gemini", "google":
			name = ProviderGemini
		default:
			return nil, "", apperr.BadRequest(fmt.Sprintf("unknown model provider: %s", prefix))
		}
		bare = rest
	} else {
		lower := strings.ToLower(model)
		switch {
		case strings.Contains(lower, "claude"):
			name = ProviderAnthropic
		case strings.Contains(lower, "gemini"):
			name = ProviderGemini
		}
	}

	if bare == "" {
		bare = r.defaultModel
	}

	p, ok := r.providers[name]
	if !ok {
		return nil, "", apperr.DependencyMissing(
			fmt.Sprintf("LLM provider %s is not configured", name),
			map[string]any{"provider": name},
		)
	}
	return p, bare, nil
}

func splitPrefix(model string) (prefix, rest string, ok bool) {
	for _, sep := range []string{":", "/"} {
		if i := strings.Index(model, sep); i > 0 {
			return strings.ToLower(model[:i]), model[i+len(sep):], true
		}
	}
	return "", "", false
}
