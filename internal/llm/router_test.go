package llm

import (
	"context"
	"errors"
	"testing"

	"rag-service/internal/apperr"
)

type stubProvider struct {
	name string
}

func (p *stubProvider) Name() string { return p.name }

func (p *stubProvider) Complete(ctx context.Context, model, system string, messages []Message) (string, error) {
	return "", nil
}

func (p *stubProvider) Stream(ctx context.Context, model, system string, messages []Message, onToken func(string) error) (string, error) {
	return "", nil
}

func fullRouter() *Router {
	return NewRouter("gpt-4o-mini",
		&stubProvider{name: ProviderOpenAI},
		&stubProvider{name: ProviderAnthropic},
		&stubProvider{name: ProviderGemini},
	)
}

func TestResolveRouting(t *testing.T) {
	tests := []struct {
		name         string
		model        string
		wantProvider string
		wantModel    string
	}{
		{name: "empty uses default", model: "", wantProvider: ProviderOpenAI, wantModel: "gpt-4o-mini"},
		{name: "openai prefix", model: "openai:gpt-4.1", wantProvider: ProviderOpenAI, wantModel: "gpt-4.1"},
		{name: "anthropic prefix", model: "anthropic:claude-sonnet-4-5", wantProvider: ProviderAnthropic, wantModel: "claude-sonnet-4-5"},
		{name: "claude prefix", model: "claude:claude-opus-4-1", wantProvider: ProviderAnthropic, wantModel: "claude-opus-4-1"},
		{name: "gemini prefix", model: "gemini:gemini-2.5-flash", wantProvider: ProviderGemini, wantModel: "gemini-2.5-flash"},
		{name: "google prefix", model: "google:gemini-2.5-pro", wantProvider: ProviderGemini, wantModel: "gemini-2.5-pro"},
		{name: "slash separator", model: "anthropic/claude-sonnet-4-5", wantProvider: ProviderAnthropic, wantModel: "claude-sonnet-4-5"},
		{name: "claude substring", model: "claude-sonnet-4-5", wantProvider: ProviderAnthropic, wantModel: "claude-sonnet-4-5"},
		{name: "gemini substring", model: "gemini-2.5-flash", wantProvider: ProviderGemini, wantModel: "gemini-2.5-flash"},
		{name: "plain model defaults to openai", model: "gpt-4.1-mini", wantProvider: ProviderOpenAI, wantModel: "gpt-4.1-mini"},
		{name: "prefix only falls back to default model", model: "openai:", wantProvider: ProviderOpenAI, wantModel: "gpt-4o-mini"},
	}

	r := fullRouter()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			provider, model, err := r.Resolve(tt.model)
			if err != nil {
				t.Fatal(err)
			}
			if provider.Name() != tt.wantProvider {
				t.Errorf("provider = %s, want %s", provider.Name(), tt.wantProvider)
			}
			if model != tt.wantModel {
				t.Errorf("model = %s, want %s", model, tt.wantModel)
			}
		})
	}
}

func TestResolveUnknownPrefix(t *testing.T) {
	_, _, err := fullRouter().Resolve("mistral:small")
	if err == nil {
		t.Fatal("expected an error for an unknown prefix")
	}
	var appErr *apperr.Error
	if !errors.As(err, &appErr) || appErr.Code != "bad_request" {
		t.Errorf("expected bad_request, got %v", err)
	}
}

func TestResolveUnconfiguredProvider(t *testing.T) {
	r := NewRouter("gpt-4o-mini", &stubProvider{name: ProviderOpenAI})

	_, _, err := r.Resolve("claude-sonnet-4-5")
	if err == nil {
		t.Fatal("expected an error for an unconfigured provider")
	}
	var appErr *apperr.Error
	if !errors.As(err, &appErr) || appErr.Code != "dependency_missing" {
		t.Errorf("expected dependency_missing, got %v", err)
	}
}
