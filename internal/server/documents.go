package server

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"rag-service/internal/apperr"
)

func pathID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		return 0, apperr.BadRequest("document id must be an integer")
	}
	return id, nil
}

// queryInt reads an optional integer query parameter, returning fallback
// when absent.
func queryInt(r *http.Request, name string, fallback int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, apperr.BadRequest(name + " must be an integer")
	}
	return n, nil
}

// handleIngest kicks off the ingestion pipeline for one document.
func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	chunkSize, err := queryInt(r, "chunk_size", -1)
	if err != nil {
		writeError(w, r, err)
		return
	}
	chunkOverlap, err := queryInt(r, "chunk_overlap", -1)
	if err != nil {
		writeError(w, r, err)
		return
	}

	result, err := s.pipeline.Run(r.Context(), id, chunkSize, chunkOverlap)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

type documentResponse struct {
	ID                 int64   `json:"id"`
	Name               string  `json:"name"`
	OriginalFilename   string  `json:"original_filename"`
	ContentType        string  `json:"content_type"`
	FileSize           int64   `json:"file_size"`
	Status             string  `json:"status"`
	ProcessingStep     *string `json:"processing_step"`
	ProcessingProgress int     `json:"processing_progress"`
	ProcessingDuration *int64  `json:"processing_duration_ms"`
	ErrorCount         int     `json:"error_count"`
	LastError          *string `json:"last_error"`
	CreatedAt          string  `json:"created_at"`
}

func (s *Server) handleGetDocument(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	doc, err := s.docs.Get(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, documentResponse{
		ID:                 doc.ID,
		Name:               doc.Name,
		OriginalFilename:   doc.OriginalFilename,
		ContentType:        doc.ContentType,
		FileSize:           doc.FileSize,
		Status:             doc.Status,
		ProcessingStep:     doc.ProcessingStep,
		ProcessingProgress: doc.ProcessingProgress,
		ProcessingDuration: doc.ProcessingDuration,
		ErrorCount:         doc.ErrorCount,
		LastError:          doc.LastError,
		CreatedAt:          doc.CreatedAt.Format("2006-01-02T15:04:05Z07:00"),
	})
}

func (s *Server) handleListDocuments(w http.ResponseWriter, r *http.Request) {
	docs, err := s.docs.List(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	out := make([]documentResponse, 0, len(docs))
	for _, doc := range docs {
		out = append(out, documentResponse{
			ID:                 doc.ID,
			Name:               doc.Name,
			OriginalFilename:   doc.OriginalFilename,
			ContentType:        doc.ContentType,
			FileSize:           doc.FileSize,
			Status:             doc.Status,
			ProcessingStep:     doc.ProcessingStep,
			ProcessingProgress: doc.ProcessingProgress,
			ProcessingDuration: doc.ProcessingDuration,
			ErrorCount:         doc.ErrorCount,
			LastError:          doc.LastError,
			CreatedAt:          doc.CreatedAt.Format("2006-01-02T15:04:05Z07:00"),
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"documents": out, "total": len(out)})
}

// handleDeleteDocument soft-deletes the row and drops the document's
// chunks and vectors.
func (s *Server) handleDeleteDocument(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := s.docs.SoftDelete(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}
	if err := s.chunks.DeleteByDocument(r.Context(), id); err != nil {
		s.log.Error().Err(err).Int64("document_id", id).Msg("failed to delete chunks")
	}
	if err := s.vectors.DeleteByDocumentID(r.Context(), id); err != nil {
		s.log.Error().Err(err).Int64("document_id", id).Msg("failed to delete vectors")
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "document_id": id})
}
