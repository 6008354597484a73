package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"rag-service/internal/apperr"
	"rag-service/internal/models"
)

// ChatStore persists chat sessions and their message log.
type ChatStore struct {
	pool *pgxpool.Pool
}

// NewChatStore creates a chat repository on the shared pool.
func NewChatStore(pool *pgxpool.Pool) *ChatStore {
	return &ChatStore{pool: pool}
}

// CreateSession inserts a session and fills in its id and timestamps.
func (s *ChatStore) CreateSession(ctx context.Context, session *models.ChatSession) error {
	err := s.pool.QueryRow(ctx, `
		INSERT INTO chat_sessions (session_key, name, created_by_user_id)
		VALUES ($1, $2, $3)
		RETURNING id, created_at, updated_at`,
		session.SessionKey, session.Name, session.CreatedByUserID,
	).Scan(&session.ID, &session.CreatedAt, &session.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create chat session: %w", err)
	}
	return nil
}

func (s *ChatStore) getSession(ctx context.Context, where string, arg any) (*models.ChatSession, error) {
	var sess models.ChatSession
	err := s.pool.QueryRow(ctx, `
		SELECT id, session_key, name, created_by_user_id, created_at, updated_at
		FROM chat_sessions WHERE `+where, arg,
	).Scan(&sess.ID, &sess.SessionKey, &sess.Name, &sess.CreatedByUserID,
		&sess.CreatedAt, &sess.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound("Chat session not found")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load chat session: %w", err)
	}
	return &sess, nil
}

// GetSessionByID looks a session up by its internal id.
func (s *ChatStore) GetSessionByID(ctx context.Context, id int64) (*models.ChatSession, error) {
	return s.getSession(ctx, `id = $1`, id)
}

// GetSessionByKey looks a session up by its external key.
func (s *ChatStore) GetSessionByKey(ctx context.Context, key string) (*models.ChatSession, error) {
	return s.getSession(ctx, `session_key = $1`, key)
}

// InsertMessage appends one turn to the session log.
func (s *ChatStore) InsertMessage(ctx context.Context, msg *models.ChatMessage) error {
	err := s.pool.QueryRow(ctx, `
		INSERT INTO chat_messages (session_id, role, content)
		VALUES ($1, $2, $3)
		RETURNING id, created_at`,
		msg.SessionID, msg.Role, msg.Content,
	).Scan(&msg.ID, &msg.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert chat message: %w", err)
	}
	return nil
}

// ListMessagesDesc returns the newest limit messages, newest first.
// Ordering ties on created_at break on the insertion id.
func (s *ChatStore) ListMessagesDesc(ctx context.Context, sessionID int64, limit int) ([]models.ChatMessage, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, session_id, role, content, created_at
		FROM chat_messages WHERE session_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2`, sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list chat messages: %w", err)
	}
	defer rows.Close()

	var msgs []models.ChatMessage
	for rows.Next() {
		var m models.ChatMessage
		if err := rows.Scan(&m.ID, &m.SessionID, &m.Role, &m.Content, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan chat message: %w", err)
		}
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}
