package server

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"rag-service/internal/apperr"
	"rag-service/internal/rag"
)

type searchBody struct {
	Query          string   `json:"query"`
	TopK           *int     `json:"top_k"`
	FetchK         *int     `json:"fetch_k"`
	ScoreThreshold *float32 `json:"score_threshold"`
	UseMMR         bool     `json:"use_mmr"`
	MMRLambda      *float32 `json:"mmr_lambda"`

	DocumentID  *int64     `json:"document_id"`
	OwnerID     *int64     `json:"owner_id"`
	ContentType *string    `json:"content_type"`
	CreatedFrom *time.Time `json:"created_from"`
	CreatedTo   *time.Time `json:"created_to"`
}

// validate collects every field problem rather than stopping at the first.
func (b *searchBody) validate() error {
	var items []apperr.ValidationItem
	field := func(name, msg string) {
		items = append(items, apperr.ValidationItem{
			Type: "value_error",
			Loc:  []any{"body", name},
			Msg:  msg,
		})
	}

	if strings.TrimSpace(b.Query) == "" {
		field("query", "query must not be empty")
	}
	if b.TopK != nil && (*b.TopK < 1 || *b.TopK > 50) {
		field("top_k", "top_k must be between 1 and 50")
	}
	if b.FetchK != nil {
		if *b.FetchK < 1 || *b.FetchK > 200 {
			field("fetch_k", "fetch_k must be between 1 and 200")
		} else if b.TopK != nil && *b.FetchK < *b.TopK {
			field("fetch_k", "fetch_k must be at least top_k")
		}
	}
	if b.ScoreThreshold != nil && (*b.ScoreThreshold < -1 || *b.ScoreThreshold > 1) {
		field("score_threshold", "score_threshold must be between -1 and 1")
	}
	if b.MMRLambda != nil && (*b.MMRLambda < 0 || *b.MMRLambda > 1) {
		field("mmr_lambda", "mmr_lambda must be between 0 and 1")
	}
	if b.CreatedFrom != nil && b.CreatedTo != nil && b.CreatedFrom.After(*b.CreatedTo) {
		field("created_from", "created_from must not be after created_to")
	}

	if len(items) > 0 {
		return apperr.Validation("Request validation failed", items...)
	}
	return nil
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	var body searchBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, r, apperr.BadRequest("request body is not valid JSON"))
		return
	}
	if err := body.validate(); err != nil {
		writeError(w, r, err)
		return
	}

	req := rag.SearchRequest{
		Query:          body.Query,
		UseMMR:         body.UseMMR,
		MMRLambda:      body.MMRLambda,
		ScoreThreshold: body.ScoreThreshold,
		DocumentID:     body.DocumentID,
		OwnerID:        body.OwnerID,
		ContentType:    body.ContentType,
		CreatedFrom:    body.CreatedFrom,
		CreatedTo:      body.CreatedTo,
	}
	if body.TopK != nil {
		req.TopK = *body.TopK
	}
	if body.FetchK != nil {
		req.FetchK = *body.FetchK
	}

	result, err := s.retriever.Search(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}
