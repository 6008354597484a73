package chat

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"rag-service/internal/apperr"
	"rag-service/internal/models"
)

// DefaultHistoryLimit caps how many messages a history fetch returns when
// the caller does not say.
const DefaultHistoryLimit = 50

// Store is the persistence the memory needs, satisfied by store.ChatStore.
type Store interface {
	CreateSession(ctx context.Context, session *models.ChatSession) error
	GetSessionByID(ctx context.Context, id int64) (*models.ChatSession, error)
	GetSessionByKey(ctx context.Context, key string) (*models.ChatSession, error)
	InsertMessage(ctx context.Context, msg *models.ChatMessage) error
	ListMessagesDesc(ctx context.Context, sessionID int64, limit int) ([]models.ChatMessage, error)
}

// Memory manages chat sessions and their ordered message log.
type Memory struct {
	store Store
}

// NewMemory creates the chat memory over the given store.
func NewMemory(store Store) *Memory {
	return &Memory{store: store}
}

// CreateSession starts a session under a fresh UUID key.
func (m *Memory) CreateSession(ctx context.Context, name *string, userID *int64) (*models.ChatSession, error) {
	session := &models.ChatSession{
		SessionKey:      uuid.NewString(),
		Name:            name,
		CreatedByUserID: userID,
	}
	if err := m.store.CreateSession(ctx, session); err != nil {
		return nil, err
	}
	return session, nil
}

// GetSessionByID returns the session or a not_found error.
func (m *Memory) GetSessionByID(ctx context.Context, id int64) (*models.ChatSession, error) {
	return m.store.GetSessionByID(ctx, id)
}

// GetSessionByKey returns the session by its external key.
func (m *Memory) GetSessionByKey(ctx context.Context, key string) (*models.ChatSession, error) {
	return m.store.GetSessionByKey(ctx, key)
}

// AddMessage appends a turn after validating the role.
func (m *Memory) AddMessage(ctx context.Context, sessionID int64, role, content string) (*models.ChatMessage, error) {
	if !models.ValidRole(role) {
		return nil, apperr.BadRequest(fmt.Sprintf("invalid message role: %s", role))
	}
	msg := &models.ChatMessage{
		SessionID: sessionID,
		Role:      role,
		Content:   content,
	}
	if err := m.store.InsertMessage(ctx, msg); err != nil {
		return nil, err
	}
	return msg, nil
}

// GetMessages returns the newest limit messages in ascending order. The
// store fetches newest-first; reversing keeps the most recent turns while
// preserving conversation order.
func (m *Memory) GetMessages(ctx context.Context, sessionID int64, limit int) ([]models.ChatMessage, error) {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	desc, err := m.store.ListMessagesDesc(ctx, sessionID, limit)
	if err != nil {
		return nil, err
	}
	asc := make([]models.ChatMessage, len(desc))
	for i, msg := range desc {
		asc[len(desc)-1-i] = msg
	}
	return asc, nil
}
