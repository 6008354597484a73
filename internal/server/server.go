package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"rag-service/internal/chat"
	"rag-service/internal/ingest"
	"rag-service/internal/rag"
	"rag-service/internal/store"
	"rag-service/internal/vector"
)

// Server holds the HTTP handlers and their collaborators.
type Server struct {
	pipeline  *ingest.Pipeline
	docs      *store.DocumentStore
	chunks    *store.ChunkStore
	vectors   *vector.Store
	retriever *rag.Retriever
	answerer  *rag.Answerer
	memory    *chat.Memory
	log       zerolog.Logger
}

// New wires the HTTP server.
func New(
	pipeline *ingest.Pipeline,
	docs *store.DocumentStore,
	chunks *store.ChunkStore,
	vectors *vector.Store,
	retriever *rag.Retriever,
	answerer *rag.Answerer,
	memory *chat.Memory,
	log zerolog.Logger,
) *Server {
	return &Server{
		pipeline:  pipeline,
		docs:      docs,
		chunks:    chunks,
		vectors:   vectors,
		retriever: retriever,
		answerer:  answerer,
		memory:    memory,
		log:       log.With().Str("component", "http").Logger(),
	}
}

// Routes builds the router with middleware and the full API surface.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(s.log))

	r.Get("/healthz", s.handleHealth)

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/documents", func(r chi.Router) {
			r.Get("/", s.handleListDocuments)
			r.Get("/{id}", s.handleGetDocument)
			r.Delete("/{id}", s.handleDeleteDocument)
			r.Post("/{id}/ingest", s.handleIngest)
		})

		r.Post("/search", s.handleSearch)

		r.Route("/chat", func(r chi.Router) {
			r.Post("/sessions", s.handleCreateSession)
			r.Get("/sessions/{id}/messages", s.handleGetMessages)
			r.Post("/ask", s.handleAsk)
			r.Get("/ws", s.handleChatWS)
		})
	})

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
