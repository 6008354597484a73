package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"rag-service/internal/models"
)

// ChunkStore persists document chunks.
type ChunkStore struct {
	pool *pgxpool.Pool
}

// NewChunkStore creates a chunk repository on the shared pool.
func NewChunkStore(pool *pgxpool.Pool) *ChunkStore {
	return &ChunkStore{pool: pool}
}

// DeleteByDocument removes every chunk of the document. Used both before
// re-ingestion and during rollback.
func (s *ChunkStore) DeleteByDocument(ctx context.Context, documentID int64) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM document_chunks WHERE document_id = $1`, documentID)
	if err != nil {
		return fmt.Errorf("failed to delete chunks of document %d: %w", documentID, err)
	}
	return nil
}

// InsertBatch writes the chunks in one round trip via COPY.
func (s *ChunkStore) InsertBatch(ctx context.Context, chunks []models.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}
	rows := make([][]any, 0, len(chunks))
	for _, c := range chunks {
		rows = append(rows, []any{
			c.DocumentID, c.DocumentOwnerID, c.Content, c.ChunkIndex,
			c.PageNumber, c.CharCount, c.StartOffset, c.EndOffset,
		})
	}
	_, err := s.pool.CopyFrom(ctx,
		pgx.Identifier{"document_chunks"},
		[]string{
			"document_id", "document_owner_id", "content", "chunk_index",
			"page_number", "char_count", "start_offset", "end_offset",
		},
		pgx.CopyFromRows(rows))
	if err != nil {
		return fmt.Errorf("failed to insert %d chunks: %w", len(chunks), err)
	}
	return nil
}

// ListByDocument returns the document's chunks in chunk_index order.
func (s *ChunkStore) ListByDocument(ctx context.Context, documentID int64) ([]models.Chunk, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, document_id, document_owner_id, content, chunk_index,
		       page_number, char_count, start_offset, end_offset, created_at
		FROM document_chunks WHERE document_id = $1 ORDER BY chunk_index`, documentID)
	if err != nil {
		return nil, fmt.Errorf("failed to list chunks of document %d: %w", documentID, err)
	}
	defer rows.Close()

	var chunks []models.Chunk
	for rows.Next() {
		var c models.Chunk
		if err := rows.Scan(
			&c.ID, &c.DocumentID, &c.DocumentOwnerID, &c.Content, &c.ChunkIndex,
			&c.PageNumber, &c.CharCount, &c.StartOffset, &c.EndOffset, &c.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan chunk: %w", err)
		}
		chunks = append(chunks, c)
	}
	return chunks, rows.Err()
}
