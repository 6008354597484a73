package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"rag-service/internal/apperr"
	"rag-service/internal/models"
)

// DocumentStore persists document rows and their processing state.
type DocumentStore struct {
	pool *pgxpool.Pool
}

// NewDocumentStore creates a document repository on the shared pool.
func NewDocumentStore(pool *pgxpool.Pool) *DocumentStore {
	return &DocumentStore{pool: pool}
}

const documentColumns = `
	id, owner_id, name, original_filename, file_path, file_size, content_type,
	text_content, status, processing_step, processing_progress,
	processing_started_at, processing_finished_at, processing_duration_ms,
	error_count, last_error, is_deleted, created_at, updated_at`

func scanDocument(row pgx.Row) (*models.Document, error) {
	var d models.Document
	err := row.Scan(
		&d.ID, &d.OwnerID, &d.Name, &d.OriginalFilename, &d.FilePath,
		&d.FileSize, &d.ContentType, &d.TextContent, &d.Status,
		&d.ProcessingStep, &d.ProcessingProgress, &d.ProcessingStarted,
		&d.ProcessingFinished, &d.ProcessingDuration, &d.ErrorCount,
		&d.LastError, &d.IsDeleted, &d.CreatedAt, &d.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

// Get returns the document by id, excluding soft-deleted rows.
func (s *DocumentStore) Get(ctx context.Context, id int64) (*models.Document, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT`+documentColumns+` FROM documents WHERE id = $1 AND is_deleted = FALSE`, id)
	doc, err := scanDocument(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound(fmt.Sprintf("Document %d not found", id))
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load document %d: %w", id, err)
	}
	return doc, nil
}

// List returns all live documents, newest first.
func (s *DocumentStore) List(ctx context.Context) ([]models.Document, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT`+documentColumns+` FROM documents WHERE is_deleted = FALSE ORDER BY created_at DESC, id DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}
	defer rows.Close()

	var docs []models.Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan document: %w", err)
		}
		docs = append(docs, *doc)
	}
	return docs, rows.Err()
}

// MarkStarted moves the document into processing at the given step. The
// previous run's finish time, duration and error message are cleared.
func (s *DocumentStore) MarkStarted(ctx context.Context, id int64, step string, progress int) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE documents SET
			status = $2, processing_step = $3, processing_progress = $4,
			processing_started_at = $5, processing_finished_at = NULL,
			processing_duration_ms = NULL, last_error = NULL, updated_at = $5
		WHERE id = $1 AND is_deleted = FALSE`,
		id, models.StatusProcessing, step, progress, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to mark document %d started: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound(fmt.Sprintf("Document %d not found", id))
	}
	return nil
}

// SetProgress records an intermediate step transition.
func (s *DocumentStore) SetProgress(ctx context.Context, id int64, step string, progress int) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE documents SET processing_step = $2, processing_progress = $3, updated_at = $4
		WHERE id = $1`,
		id, step, progress, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to update document %d progress: %w", id, err)
	}
	return nil
}

// MarkCompleted records the terminal success state with the run duration.
func (s *DocumentStore) MarkCompleted(ctx context.Context, id int64, textContent string, durationMs int64) error {
	now := time.Now().UTC()
	_, err := s.pool.Exec(ctx, `
		UPDATE documents SET
			status = $2, processing_step = $3, processing_progress = 100,
			text_content = $4, processing_finished_at = $5,
			processing_duration_ms = $6, updated_at = $5
		WHERE id = $1`,
		id, models.StatusCompleted, models.StepCompleted, textContent, now, durationMs)
	if err != nil {
		return fmt.Errorf("failed to mark document %d completed: %w", id, err)
	}
	return nil
}

// MarkError records the terminal failure state. Progress is left where the
// run stopped; the error counter increments.
func (s *DocumentStore) MarkError(ctx context.Context, id int64, message string, durationMs int64) error {
	now := time.Now().UTC()
	_, err := s.pool.Exec(ctx, `
		UPDATE documents SET
			status = $2, processing_step = $3, error_count = error_count + 1,
			last_error = $4, processing_finished_at = $5,
			processing_duration_ms = $6, updated_at = $5
		WHERE id = $1`,
		id, models.StatusError, models.StepError, message, now, durationMs)
	if err != nil {
		return fmt.Errorf("failed to mark document %d errored: %w", id, err)
	}
	return nil
}

// SoftDelete flags the document deleted without removing the row.
func (s *DocumentStore) SoftDelete(ctx context.Context, id int64) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE documents SET is_deleted = TRUE, status = $2, updated_at = $3
		WHERE id = $1 AND is_deleted = FALSE`,
		id, models.StatusDeleted, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to delete document %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound(fmt.Sprintf("Document %d not found", id))
	}
	return nil
}
