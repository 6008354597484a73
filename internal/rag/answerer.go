package rag

import (
	"context"
	"strings"
	"time"
	"unicode"

	"github.com/rs/zerolog"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"rag-service/internal/apperr"
	"rag-service/internal/llm"
	"rag-service/internal/models"
	"rag-service/internal/retry"
)

// AskRequest carries one question with its retrieval and generation knobs.
type AskRequest struct {
	Question  string
	SessionID *int64
	Model     string
	Stream    bool

	TopK            int
	UseMMR          bool
	MMRLambda       *float32
	ScoreThreshold  *float32
	MaxContextChars int
	MaxHistory      int

	DocumentID  *int64
	OwnerID     *int64
	ContentType *string
	CreatedFrom *time.Time
	CreatedTo   *time.Time
}

// Answer is a completed (non-streaming) response. Sources holds only the
// contexts that fit the character budget and reached the prompt.
type Answer struct {
	Answer     string `json:"answer"`
	Model      string `json:"model"`
	Provider   string `json:"provider"`
	UsedMMR    bool   `json:"used_mmr"`
	Sources    []Hit  `json:"sources"`
	SessionID  *int64 `json:"session_id,omitempty"`
	SessionKey string `json:"session_key,omitempty"`
}

// History provides conversation context and turn persistence, satisfied by
// chat.Memory.
type History interface {
	GetSessionByID(ctx context.Context, id int64) (*models.ChatSession, error)
	GetMessages(ctx context.Context, sessionID int64, limit int) ([]models.ChatMessage, error)
	AddMessage(ctx context.Context, sessionID int64, role, content string) (*models.ChatMessage, error)
}

// DocumentNamer resolves a document's display name for the name-intent
// shortcut when the search filter pins a document.
type DocumentNamer interface {
	Get(ctx context.Context, id int64) (*models.Document, error)
}

// Answerer assembles prompts from retrieved context and dispatches them to
// the routed LLM provider.
type Answerer struct {
	retriever *Retriever
	router    *llm.Router
	history   History
	docs      DocumentNamer
	retryer   *retry.Retryer
	log       zerolog.Logger
}

// NewAnswerer wires the RAG answerer.
func NewAnswerer(retriever *Retriever, router *llm.Router, history History, docs DocumentNamer, retryer *retry.Retryer, log zerolog.Logger) *Answerer {
	return &Answerer{
		retriever: retriever,
		router:    router,
		history:   history,
		docs:      docs,
		retryer:   retryer,
		log:       log.With().Str("component", "answerer").Logger(),
	}
}

// prepared is the assembled state shared by Ask and AskStream.
type prepared struct {
	provider   llm.Provider
	model      string
	sources    []Hit
	messages   []llm.Message
	sessionKey string
}

// Ask answers a question in one shot, persisting the user and assistant
// turns when a session is attached.
func (a *Answerer) Ask(ctx context.Context, req AskRequest) (*Answer, error) {
	prep, err := a.prepare(ctx, req)
	if err != nil {
		return nil, err
	}

	if name, ok := a.documentNameAnswer(ctx, req, prep.sources); ok {
		if err := a.persistTurns(ctx, req, name); err != nil {
			return nil, err
		}
		return a.answer(req, prep, name), nil
	}

	var answer string
	err = a.retryer.Do(ctx, "llm.complete", func() error {
		var callErr error
		answer, callErr = prep.provider.Complete(ctx, prep.model, systemPrompt, prep.messages)
		return callErr
	})
	if err != nil {
		return nil, apperr.Upstream("LLM provider request failed", map[string]any{
			"provider": prep.provider.Name(),
			"model":    prep.model,
		})
	}

	if err := a.persistTurns(ctx, req, answer); err != nil {
		return nil, err
	}
	return a.answer(req, prep, answer), nil
}

// AskStream answers with token streaming. The user turn persists when the
// stream opens; the assistant turn persists only on successful completion,
// so an aborted stream leaves the question without an answer turn. Retries
// happen only before the first token reaches the consumer.
func (a *Answerer) AskStream(ctx context.Context, req AskRequest, onToken func(string) error) (*Answer, error) {
	prep, err := a.prepare(ctx, req)
	if err != nil {
		return nil, err
	}

	if req.SessionID != nil {
		if _, err := a.history.AddMessage(ctx, *req.SessionID, models.RoleUser, req.Question); err != nil {
			return nil, err
		}
	}

	if name, ok := a.documentNameAnswer(ctx, req, prep.sources); ok {
		if err := onToken(name); err != nil {
			return nil, err
		}
		if req.SessionID != nil {
			if _, err := a.history.AddMessage(ctx, *req.SessionID, models.RoleAssistant, name); err != nil {
				return nil, err
			}
		}
		return a.answer(req, prep, name), nil
	}

	var answer string
	emitted := false
	err = a.retryer.Do(ctx, "llm.stream", func() error {
		var callErr error
		answer, callErr = prep.provider.Stream(ctx, prep.model, systemPrompt, prep.messages, func(token string) error {
			emitted = true
			return onToken(token)
		})
		if callErr != nil && emitted {
			// Tokens already reached the consumer; a retry would
			// duplicate output, so surface a terminal error instead.
			return apperr.Upstream("LLM provider stream failed", map[string]any{
				"provider": prep.provider.Name(),
				"model":    prep.model,
			})
		}
		return callErr
	})
	if err != nil {
		// Partial output is discarded: the assistant turn is never
		// written for an interrupted stream.
		a.log.Warn().Err(err).Str("provider", prep.provider.Name()).Msg("stream aborted before completion")
		return nil, apperr.Upstream("LLM provider stream failed", map[string]any{
			"provider": prep.provider.Name(),
			"model":    prep.model,
		})
	}

	if req.SessionID != nil {
		if _, err := a.history.AddMessage(ctx, *req.SessionID, models.RoleAssistant, answer); err != nil {
			return nil, err
		}
	}
	return a.answer(req, prep, answer), nil
}

func (a *Answerer) answer(req AskRequest, prep *prepared, text string) *Answer {
	return &Answer{
		Answer:     text,
		Model:      prep.model,
		Provider:   prep.provider.Name(),
		UsedMMR:    req.UseMMR,
		Sources:    prep.sources,
		SessionID:  req.SessionID,
		SessionKey: prep.sessionKey,
	}
}

// prepare runs retrieval, applies the context budget and assembles the
// provider messages. The sources it returns are the budgeted subset.
func (a *Answerer) prepare(ctx context.Context, req AskRequest) (*prepared, error) {
	if strings.TrimSpace(req.Question) == "" {
		return nil, apperr.FieldError("question", "question must not be empty")
	}

	provider, model, err := a.router.Resolve(req.Model)
	if err != nil {
		return nil, err
	}

	var sessionKey string
	if req.SessionID != nil {
		session, err := a.history.GetSessionByID(ctx, *req.SessionID)
		if err != nil {
			return nil, err
		}
		sessionKey = session.SessionKey
	}

	result, err := a.retriever.Search(ctx, SearchRequest{
		Query:          req.Question,
		TopK:           req.TopK,
		UseMMR:         req.UseMMR,
		MMRLambda:      req.MMRLambda,
		ScoreThreshold: req.ScoreThreshold,
		DocumentID:     req.DocumentID,
		OwnerID:        req.OwnerID,
		ContentType:    req.ContentType,
		CreatedFrom:    req.CreatedFrom,
		CreatedTo:      req.CreatedTo,
	})
	if err != nil {
		return nil, err
	}

	var historyText string
	if req.SessionID != nil {
		limit := req.MaxHistory
		if limit <= 0 {
			limit = DefaultMaxHistoryMessages
		}
		msgs, err := a.history.GetMessages(ctx, *req.SessionID, limit)
		if err != nil {
			return nil, err
		}
		historyText = renderHistory(msgs, limit)
	}

	contexts, kept := renderContexts(result.Hits, req.MaxContextChars)
	prompt := buildUserPrompt(contexts, historyText, req.Question)
	return &prepared{
		provider:   provider,
		model:      model,
		sources:    kept,
		messages:   []llm.Message{{Role: models.RoleUser, Content: prompt}},
		sessionKey: sessionKey,
	}, nil
}

// persistTurns writes the user and assistant turns for non-streaming asks.
func (a *Answerer) persistTurns(ctx context.Context, req AskRequest, answer string) error {
	if req.SessionID == nil {
		return nil
	}
	if _, err := a.history.AddMessage(ctx, *req.SessionID, models.RoleUser, req.Question); err != nil {
		return err
	}
	if _, err := a.history.AddMessage(ctx, *req.SessionID, models.RoleAssistant, answer); err != nil {
		return err
	}
	return nil
}

// nameIntentPhrases are matched against the normalized question. The
// Vietnamese entries are pre-stripped of diacritics; the question goes
// through the same folding before matching.
var nameIntentPhrases = []string{
	"name of the document",
	"name of this document",
	"document name",
	"what is the document called",
	"name of the file",
	"file name",
	"filename",
	"ten tai lieu",
	"ten cua tai lieu",
	"tai lieu nay ten gi",
	"tai lieu ten gi",
	"ten file",
	"ten tap tin",
}

var diacriticFolder = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

func normalizeQuestion(q string) string {
	folded, _, err := transform.String(diacriticFolder, strings.ToLower(q))
	if err != nil {
		return strings.ToLower(q)
	}
	// Vietnamese đ survives NFD folding.
	return strings.ReplaceAll(folded, "đ", "d")
}

// documentNameAnswer short-circuits questions that merely ask for the
// document's name. The name comes from the pinned document when the
// filter names one, otherwise from the retrieved context payloads.
func (a *Answerer) documentNameAnswer(ctx context.Context, req AskRequest, hits []Hit) (string, bool) {
	normalized := normalizeQuestion(req.Question)
	matched := false
	for _, phrase := range nameIntentPhrases {
		if strings.Contains(normalized, phrase) {
			matched = true
			break
		}
	}
	if !matched {
		return "", false
	}

	if req.DocumentID != nil {
		if doc, err := a.docs.Get(ctx, *req.DocumentID); err == nil {
			return "The document is named: " + doc.Name, true
		}
	}

	seen := make(map[string]bool)
	var names []string
	for _, hit := range hits {
		if name, ok := hit.Payload["document_name"].(string); ok && name != "" && !seen[name] {
			seen[name] = true
			names = append(names, name)
		}
	}
	if len(names) == 0 {
		return "", false
	}
	if len(names) == 1 {
		return "The document is named: " + names[0], true
	}
	return "The documents are named: " + strings.Join(names, ", "), true
}
