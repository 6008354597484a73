package server

import (
	"encoding/json"
	"net/http"
	"time"

	"rag-service/internal/apperr"
	"rag-service/internal/rag"
)

type createSessionBody struct {
	Name *string `json:"name"`
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var body createSessionBody
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeError(w, r, apperr.BadRequest("request body is not valid JSON"))
			return
		}
	}
	session, err := s.memory.CreateSession(r.Context(), body.Name, nil)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"id":          session.ID,
		"session_key": session.SessionKey,
		"name":        session.Name,
		"created_at":  session.CreatedAt,
	})
}

func (s *Server) handleGetMessages(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	limit, err := queryInt(r, "limit", 0)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if _, err := s.memory.GetSessionByID(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}
	msgs, err := s.memory.GetMessages(r.Context(), id, limit)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"session_id": id, "messages": msgs, "total": len(msgs)})
}

type askFilters struct {
	DocumentID  *int64     `json:"document_id"`
	OwnerID     *int64     `json:"owner_id"`
	ContentType *string    `json:"content_type"`
	CreatedFrom *time.Time `json:"created_from"`
	CreatedTo   *time.Time `json:"created_to"`
}

type askBody struct {
	Question        string      `json:"question"`
	SessionID       *int64      `json:"session_id"`
	Model           string      `json:"model"`
	Stream          bool        `json:"stream"`
	TopK            int         `json:"top_k"`
	UseMMR          bool        `json:"use_mmr"`
	MMRLambda       *float32    `json:"mmr_lambda"`
	ScoreThreshold  *float32    `json:"score_threshold"`
	MaxContextChars int         `json:"max_context_chars"`
	MaxHistory      int         `json:"max_history_messages"`
	DocumentID      *int64      `json:"document_id"`
	Filters         *askFilters `json:"filters"`
}

func (b *askBody) toRequest() rag.AskRequest {
	req := rag.AskRequest{
		Question:        b.Question,
		SessionID:       b.SessionID,
		Model:           b.Model,
		Stream:          b.Stream,
		TopK:            b.TopK,
		UseMMR:          b.UseMMR,
		MMRLambda:       b.MMRLambda,
		ScoreThreshold:  b.ScoreThreshold,
		MaxContextChars: b.MaxContextChars,
		MaxHistory:      b.MaxHistory,
		DocumentID:      b.DocumentID,
	}
	if b.Filters != nil {
		// filters.document_id wins over the top-level shorthand.
		if b.Filters.DocumentID != nil {
			req.DocumentID = b.Filters.DocumentID
		}
		req.OwnerID = b.Filters.OwnerID
		req.ContentType = b.Filters.ContentType
		req.CreatedFrom = b.Filters.CreatedFrom
		req.CreatedTo = b.Filters.CreatedTo
	}
	return req
}

func (b *askBody) validate() error {
	var items []apperr.ValidationItem
	field := func(name, msg string) {
		items = append(items, apperr.ValidationItem{Type: "value_error", Loc: []any{"body", name}, Msg: msg})
	}
	if b.Question == "" {
		field("question", "question must not be empty")
	}
	if b.MaxContextChars != 0 && (b.MaxContextChars < rag.MinContextChars || b.MaxContextChars > rag.MaxContextChars) {
		field("max_context_chars", "max_context_chars must be between 500 and 20000")
	}
	if b.MMRLambda != nil && (*b.MMRLambda < 0 || *b.MMRLambda > 1) {
		field("mmr_lambda", "mmr_lambda must be between 0 and 1")
	}
	if b.Filters != nil && b.Filters.CreatedFrom != nil && b.Filters.CreatedTo != nil &&
		b.Filters.CreatedFrom.After(*b.Filters.CreatedTo) {
		field("filters", "created_from must not be after created_to")
	}
	if len(items) > 0 {
		return apperr.Validation("Request validation failed", items...)
	}
	return nil
}

// handleAsk answers a question, streaming the tokens as text/plain when
// the request asks for it.
func (s *Server) handleAsk(w http.ResponseWriter, r *http.Request) {
	var body askBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, r, apperr.BadRequest("request body is not valid JSON"))
		return
	}
	if err := body.validate(); err != nil {
		writeError(w, r, err)
		return
	}

	if !body.Stream {
		answer, err := s.answerer.Ask(r.Context(), body.toRequest())
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, answer)
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")
	flusher, _ := w.(http.Flusher)

	wrote := false
	_, err := s.answerer.AskStream(r.Context(), body.toRequest(), func(token string) error {
		wrote = true
		if _, err := w.Write([]byte(token)); err != nil {
			return err
		}
		if flusher != nil {
			flusher.Flush()
		}
		return nil
	})
	if err != nil {
		// Headers are gone once the first token is written; only a
		// stream that failed before any output gets the JSON envelope.
		if !wrote {
			writeError(w, r, err)
		}
		return
	}
}
