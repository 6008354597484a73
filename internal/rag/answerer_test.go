package rag

import (
	"context"
	"errors"
	"strings"
	"syscall"
	"testing"
	"time"

	"rag-service/internal/llm"
	"rag-service/internal/logging"
	"rag-service/internal/models"
	"rag-service/internal/retry"
	"rag-service/internal/vector"
)

type fakeProvider struct {
	name             string
	answer           string
	streamErr        error
	completeErr      error
	completeFailures int
	streamFailures   int
	emitBeforeErr    bool
	calls            int
}

func (p *fakeProvider) Name() string { return p.name }

func (p *fakeProvider) Complete(ctx context.Context, model, system string, messages []llm.Message) (string, error) {
	p.calls++
	if p.completeFailures > 0 {
		p.completeFailures--
		return "", p.completeErr
	}
	return p.answer, nil
}

func (p *fakeProvider) Stream(ctx context.Context, model, system string, messages []llm.Message, onToken func(string) error) (string, error) {
	p.calls++
	if p.streamFailures > 0 {
		p.streamFailures--
		if p.emitBeforeErr {
			if err := onToken("partial"); err != nil {
				return "", err
			}
		}
		err := p.streamErr
		if p.streamFailures == 0 {
			// Failure budget spent: later calls recover, matching
			// Complete. A zero initial budget still fails forever.
			p.streamErr = nil
		}
		return "", err
	}
	if p.streamErr != nil {
		return "", p.streamErr
	}
	if err := onToken(p.answer); err != nil {
		return "", err
	}
	return p.answer, nil
}

type fakeHistory struct {
	sessionKey string
	messages   []models.ChatMessage
}

func (h *fakeHistory) GetSessionByID(ctx context.Context, id int64) (*models.ChatSession, error) {
	return &models.ChatSession{ID: id, SessionKey: h.sessionKey}, nil
}

func (h *fakeHistory) GetMessages(ctx context.Context, sessionID int64, limit int) ([]models.ChatMessage, error) {
	return nil, nil
}

func (h *fakeHistory) AddMessage(ctx context.Context, sessionID int64, role, content string) (*models.ChatMessage, error) {
	msg := models.ChatMessage{SessionID: sessionID, Role: role, Content: content}
	h.messages = append(h.messages, msg)
	return &msg, nil
}

type fakeDocs struct {
	doc *models.Document
}

func (d *fakeDocs) Get(ctx context.Context, id int64) (*models.Document, error) {
	if d.doc == nil {
		return nil, errors.New("no document")
	}
	return d.doc, nil
}

func newTestAnswerer(points []vector.ScoredPoint, provider *fakeProvider, history *fakeHistory, docs *fakeDocs) *Answerer {
	log := logging.New("disabled", false)
	retriever := NewRetriever(&fakeEmbedder{vec: []float32{1, 0}}, &fakeSearcher{points: points}, log)
	router := llm.NewRouter("gpt-4o-mini", provider)
	retryer := retry.New(3, time.Millisecond, 2*time.Millisecond, log)
	return NewAnswerer(retriever, router, history, docs, retryer, log)
}

func TestAskPersistsBothTurns(t *testing.T) {
	provider := &fakeProvider{name: llm.ProviderOpenAI, answer: "the answer"}
	history := &fakeHistory{}
	a := newTestAnswerer(nil, provider, history, &fakeDocs{})

	session := int64(7)
	answer, err := a.Ask(context.Background(), AskRequest{Question: "why?", SessionID: &session})
	if err != nil {
		t.Fatal(err)
	}
	if answer.Answer != "the answer" {
		t.Errorf("unexpected answer: %q", answer.Answer)
	}
	if len(history.messages) != 2 {
		t.Fatalf("expected 2 persisted turns, got %d", len(history.messages))
	}
	if history.messages[0].Role != models.RoleUser || history.messages[1].Role != models.RoleAssistant {
		t.Errorf("unexpected roles: %s, %s", history.messages[0].Role, history.messages[1].Role)
	}
}

func TestAskEmptyQuestion(t *testing.T) {
	a := newTestAnswerer(nil, &fakeProvider{name: llm.ProviderOpenAI}, &fakeHistory{}, &fakeDocs{})

	_, err := a.Ask(context.Background(), AskRequest{Question: "   "})
	if err == nil {
		t.Fatal("expected a validation error")
	}
}

func TestAskStreamFailureKeepsUserTurnOnly(t *testing.T) {
	provider := &fakeProvider{name: llm.ProviderOpenAI, streamErr: errors.New("connection reset")}
	history := &fakeHistory{}
	a := newTestAnswerer(nil, provider, history, &fakeDocs{})

	session := int64(3)
	_, err := a.AskStream(context.Background(), AskRequest{Question: "hello?", SessionID: &session}, func(string) error { return nil })
	if err == nil {
		t.Fatal("expected the stream error to propagate")
	}
	if len(history.messages) != 1 {
		t.Fatalf("expected only the user turn, got %d messages", len(history.messages))
	}
	if history.messages[0].Role != models.RoleUser {
		t.Errorf("expected the user turn, got %s", history.messages[0].Role)
	}
}

func TestAskStreamSuccessPersistsAssistant(t *testing.T) {
	provider := &fakeProvider{name: llm.ProviderOpenAI, answer: "streamed"}
	history := &fakeHistory{}
	a := newTestAnswerer(nil, provider, history, &fakeDocs{})

	session := int64(3)
	var tokens []string
	answer, err := a.AskStream(context.Background(), AskRequest{Question: "hello?", SessionID: &session}, func(tok string) error {
		tokens = append(tokens, tok)
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if answer.Answer != "streamed" || len(tokens) == 0 {
		t.Errorf("expected streamed tokens, got %v", tokens)
	}
	if len(history.messages) != 2 {
		t.Fatalf("expected both turns, got %d", len(history.messages))
	}
}

func TestDocumentNameShortCircuit(t *testing.T) {
	points := []vector.ScoredPoint{
		{ID: "a", Score: 0.9, Payload: map[string]any{"text": "body", "document_name": "contract.pdf"}},
	}

	tests := []struct {
		name     string
		question string
	}{
		{name: "english", question: "What is the name of the document?"},
		{name: "vietnamese with accents", question: "Tên tài liệu này là gì?"},
		{name: "vietnamese stripped", question: "ten tai lieu la gi"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			provider := &fakeProvider{name: llm.ProviderOpenAI, answer: "should not be used"}
			a := newTestAnswerer(points, provider, &fakeHistory{}, &fakeDocs{})

			answer, err := a.Ask(context.Background(), AskRequest{Question: tt.question})
			if err != nil {
				t.Fatal(err)
			}
			if answer.Answer != "The document is named: contract.pdf" {
				t.Errorf("unexpected answer: %q", answer.Answer)
			}
			if provider.calls != 0 {
				t.Errorf("the LLM should not be called, got %d calls", provider.calls)
			}
		})
	}
}

func TestDocumentNameFromPinnedDocument(t *testing.T) {
	docs := &fakeDocs{doc: &models.Document{ID: 42, Name: "handbook.docx"}}
	provider := &fakeProvider{name: llm.ProviderOpenAI}
	a := newTestAnswerer(nil, provider, &fakeHistory{}, docs)

	docID := int64(42)
	answer, err := a.Ask(context.Background(), AskRequest{Question: "what is the file name?", DocumentID: &docID})
	if err != nil {
		t.Fatal(err)
	}
	if answer.Answer != "The document is named: handbook.docx" {
		t.Errorf("unexpected answer: %q", answer.Answer)
	}
}

func TestOrdinaryQuestionReachesProvider(t *testing.T) {
	provider := &fakeProvider{name: llm.ProviderOpenAI, answer: "42"}
	a := newTestAnswerer(nil, provider, &fakeHistory{}, &fakeDocs{})

	answer, err := a.Ask(context.Background(), AskRequest{Question: "What is the meaning of life?"})
	if err != nil {
		t.Fatal(err)
	}
	if provider.calls != 1 {
		t.Errorf("expected one provider call, got %d", provider.calls)
	}
	if answer.Provider != llm.ProviderOpenAI {
		t.Errorf("unexpected provider: %s", answer.Provider)
	}
}

func TestAskSourcesRespectContextBudget(t *testing.T) {
	points := []vector.ScoredPoint{
		{ID: "a", Score: 0.9, Payload: map[string]any{"text": strings.Repeat("x", 5000)}},
		{ID: "b", Score: 0.8, Payload: map[string]any{"text": strings.Repeat("y", 5000)}},
	}
	provider := &fakeProvider{name: llm.ProviderOpenAI, answer: "no idea"}
	a := newTestAnswerer(points, provider, &fakeHistory{}, &fakeDocs{})

	answer, err := a.Ask(context.Background(), AskRequest{
		Question:        "summarize the findings",
		MaxContextChars: 500,
	})
	if err != nil {
		t.Fatal(err)
	}
	if provider.calls != 1 {
		t.Errorf("expected one provider call, got %d", provider.calls)
	}
	// Neither context fits the budget, so none reached the prompt and
	// none may be reported as a source.
	if len(answer.Sources) != 0 {
		t.Errorf("expected no sources, got %d", len(answer.Sources))
	}
}

func TestAskSessionKeyInAnswer(t *testing.T) {
	provider := &fakeProvider{name: llm.ProviderOpenAI, answer: "ok"}
	history := &fakeHistory{sessionKey: "8e1f0a6c"}
	a := newTestAnswerer(nil, provider, history, &fakeDocs{})

	session := int64(9)
	answer, err := a.Ask(context.Background(), AskRequest{Question: "why?", SessionID: &session})
	if err != nil {
		t.Fatal(err)
	}
	if answer.SessionKey != "8e1f0a6c" {
		t.Errorf("session_key = %q, want %q", answer.SessionKey, "8e1f0a6c")
	}
	if answer.SessionID == nil || *answer.SessionID != session {
		t.Errorf("session_id not echoed: %v", answer.SessionID)
	}
}

func TestAskRetriesTransientProviderFailure(t *testing.T) {
	provider := &fakeProvider{
		name:             llm.ProviderOpenAI,
		answer:           "recovered",
		completeErr:      syscall.ECONNRESET,
		completeFailures: 1,
	}
	a := newTestAnswerer(nil, provider, &fakeHistory{}, &fakeDocs{})

	answer, err := a.Ask(context.Background(), AskRequest{Question: "why?"})
	if err != nil {
		t.Fatal(err)
	}
	if answer.Answer != "recovered" {
		t.Errorf("unexpected answer: %q", answer.Answer)
	}
	if provider.calls != 2 {
		t.Errorf("expected a retry, got %d calls", provider.calls)
	}
}

func TestAskStreamRetriesBeforeFirstToken(t *testing.T) {
	provider := &fakeProvider{
		name:           llm.ProviderOpenAI,
		answer:         "streamed",
		streamErr:      syscall.ECONNRESET,
		streamFailures: 1,
	}
	history := &fakeHistory{}
	a := newTestAnswerer(nil, provider, history, &fakeDocs{})

	session := int64(4)
	answer, err := a.AskStream(context.Background(), AskRequest{Question: "why?", SessionID: &session}, func(string) error { return nil })
	if err != nil {
		t.Fatal(err)
	}
	if answer.Answer != "streamed" {
		t.Errorf("unexpected answer: %q", answer.Answer)
	}
	if provider.calls != 2 {
		t.Errorf("expected a retry, got %d calls", provider.calls)
	}
	if len(history.messages) != 2 {
		t.Fatalf("expected both turns after recovery, got %d", len(history.messages))
	}
}

func TestAskStreamNoRetryAfterTokensEmitted(t *testing.T) {
	provider := &fakeProvider{
		name:           llm.ProviderOpenAI,
		streamErr:      syscall.ECONNRESET,
		streamFailures: 1,
		emitBeforeErr:  true,
	}
	a := newTestAnswerer(nil, provider, &fakeHistory{}, &fakeDocs{})

	_, err := a.AskStream(context.Background(), AskRequest{Question: "why?"}, func(string) error { return nil })
	if err == nil {
		t.Fatal("expected the mid-stream failure to propagate")
	}
	// A retry would duplicate the tokens already delivered.
	if provider.calls != 1 {
		t.Errorf("expected no retry after output, got %d calls", provider.calls)
	}
}

func TestNormalizeQuestionFoldsDiacritics(t *testing.T) {
	got := normalizeQuestion("Tên TÀI liệu đây")
	if got != "ten tai lieu day" {
		t.Errorf("normalizeQuestion() = %q", got)
	}
}
