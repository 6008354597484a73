package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"rag-service/internal/logging"
	"rag-service/internal/rag"
	"rag-service/internal/vector"
)

type stubEmbedder struct{}

func (stubEmbedder) EmbedOne(ctx context.Context, text string) ([]float32, error) {
	return []float32{1, 0}, nil
}

type stubSearcher struct {
	points []vector.ScoredPoint
}

func (s stubSearcher) Search(ctx context.Context, queryVector []float32, limit int, filter *vector.Filter, scoreThreshold *float32, withVectors bool) ([]vector.ScoredPoint, error) {
	return s.points, nil
}

func newTestServer(points []vector.ScoredPoint) *Server {
	log := logging.New("disabled", false)
	retriever := rag.NewRetriever(stubEmbedder{}, stubSearcher{points: points}, log)
	return New(nil, nil, nil, nil, retriever, nil, nil, log)
}

func TestHealthz(t *testing.T) {
	srv := newTestServer(nil)
	rec := httptest.NewRecorder()
	srv.Routes().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestSearchValidationEnvelope(t *testing.T) {
	srv := newTestServer(nil)
	body := `{"query": "   ", "top_k": 99, "mmr_lambda": 1.5}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/search", strings.NewReader(body))
	req.Header.Set("X-Request-ID", "req-test-123")
	rec := httptest.NewRecorder()
	srv.Routes().ServeHTTP(rec, req)

	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	require.Equal(t, "req-test-123", rec.Header().Get("X-Request-ID"))

	var envelope struct {
		Success bool `json:"success"`
		Error   struct {
			Code    string `json:"code"`
			Message string `json:"message"`
			Details []struct {
				Type string `json:"type"`
				Loc  []any  `json:"loc"`
				Msg  string `json:"msg"`
			} `json:"details"`
		} `json:"error"`
		RequestID string `json:"request_id"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	require.False(t, envelope.Success)
	require.Equal(t, "validation_error", envelope.Error.Code)
	require.Equal(t, "req-test-123", envelope.RequestID)
	require.Len(t, envelope.Error.Details, 3)

	fields := make(map[string]bool)
	for _, d := range envelope.Error.Details {
		require.Equal(t, "value_error", d.Type)
		require.Len(t, d.Loc, 2)
		fields[d.Loc[1].(string)] = true
	}
	require.True(t, fields["query"])
	require.True(t, fields["top_k"])
	require.True(t, fields["mmr_lambda"])
}

func TestSearchMalformedJSON(t *testing.T) {
	srv := newTestServer(nil)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/search", strings.NewReader("{not json"))
	rec := httptest.NewRecorder()
	srv.Routes().ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Contains(t, rec.Body.String(), "bad_request")
}

func TestSearchGeneratedRequestID(t *testing.T) {
	srv := newTestServer(nil)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/search", strings.NewReader(`{"query": ""}`))
	rec := httptest.NewRecorder()
	srv.Routes().ServeHTTP(rec, req)

	headerID := rec.Header().Get("X-Request-ID")
	require.NotEmpty(t, headerID)

	var envelope struct {
		RequestID string `json:"request_id"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	require.Equal(t, headerID, envelope.RequestID)
}

func TestSearchSuccess(t *testing.T) {
	points := []vector.ScoredPoint{
		{ID: "p1", Score: 0.8, Payload: map[string]any{"text": "hello chunk"}},
	}
	srv := newTestServer(points)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/search", strings.NewReader(`{"query": "hello", "top_k": 3}`))
	rec := httptest.NewRecorder()
	srv.Routes().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var result rag.SearchResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	require.Len(t, result.Hits, 1)
	require.Equal(t, "hello chunk", result.Hits[0].Text)
	require.Equal(t, 1, result.TotalCandidates)
	require.False(t, result.UsedMMR)
}

func TestAskBodyFiltersThreadIntoRequest(t *testing.T) {
	raw := `{
		"question": "what changed?",
		"document_id": 1,
		"filters": {
			"document_id": 2,
			"owner_id": 7,
			"content_type": "application/pdf",
			"created_from": "2024-01-01T00:00:00Z",
			"created_to": "2024-06-30T00:00:00Z"
		}
	}`
	var body askBody
	require.NoError(t, json.Unmarshal([]byte(raw), &body))
	require.NoError(t, body.validate())

	req := body.toRequest()
	require.NotNil(t, req.DocumentID)
	require.Equal(t, int64(2), *req.DocumentID)
	require.NotNil(t, req.OwnerID)
	require.Equal(t, int64(7), *req.OwnerID)
	require.NotNil(t, req.ContentType)
	require.Equal(t, "application/pdf", *req.ContentType)
	require.NotNil(t, req.CreatedFrom)
	require.NotNil(t, req.CreatedTo)
	require.True(t, req.CreatedFrom.Before(*req.CreatedTo))
}

func TestAskBodyFiltersDateOrder(t *testing.T) {
	raw := `{
		"question": "q",
		"filters": {
			"created_from": "2024-06-30T00:00:00Z",
			"created_to": "2024-01-01T00:00:00Z"
		}
	}`
	var body askBody
	require.NoError(t, json.Unmarshal([]byte(raw), &body))
	require.Error(t, body.validate())
}

func TestDocumentIDMustBeInteger(t *testing.T) {
	srv := newTestServer(nil)
	req := httptest.NewRequest(http.MethodGet, "/api/v1/documents/abc", nil)
	rec := httptest.NewRecorder()
	srv.Routes().ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Contains(t, rec.Body.String(), "document id must be an integer")
}
