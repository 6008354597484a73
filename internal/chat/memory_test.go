package chat

import (
	"context"
	"errors"
	"testing"
	"time"

	"rag-service/internal/apperr"
	"rag-service/internal/models"
)

type fakeChatStore struct {
	sessions []models.ChatSession
	messages []models.ChatMessage
	nextID   int64
}

func (s *fakeChatStore) CreateSession(ctx context.Context, session *models.ChatSession) error {
	s.nextID++
	session.ID = s.nextID
	session.CreatedAt = time.Now()
	s.sessions = append(s.sessions, *session)
	return nil
}

func (s *fakeChatStore) GetSessionByID(ctx context.Context, id int64) (*models.ChatSession, error) {
	for i := range s.sessions {
		if s.sessions[i].ID == id {
			return &s.sessions[i], nil
		}
	}
	return nil, apperr.NotFound("Chat session not found")
}

func (s *fakeChatStore) GetSessionByKey(ctx context.Context, key string) (*models.ChatSession, error) {
	for i := range s.sessions {
		if s.sessions[i].SessionKey == key {
			return &s.sessions[i], nil
		}
	}
	return nil, apperr.NotFound("Chat session not found")
}

func (s *fakeChatStore) InsertMessage(ctx context.Context, msg *models.ChatMessage) error {
	s.nextID++
	msg.ID = s.nextID
	msg.CreatedAt = time.Now()
	s.messages = append(s.messages, *msg)
	return nil
}

func (s *fakeChatStore) ListMessagesDesc(ctx context.Context, sessionID int64, limit int) ([]models.ChatMessage, error) {
	var out []models.ChatMessage
	for i := len(s.messages) - 1; i >= 0 && len(out) < limit; i-- {
		if s.messages[i].SessionID == sessionID {
			out = append(out, s.messages[i])
		}
	}
	return out, nil
}

func TestCreateSessionGeneratesUniqueKeys(t *testing.T) {
	m := NewMemory(&fakeChatStore{})

	first, err := m.CreateSession(context.Background(), nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	second, err := m.CreateSession(context.Background(), nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	if first.SessionKey == "" || first.SessionKey == second.SessionKey {
		t.Errorf("expected distinct non-empty keys, got %q and %q", first.SessionKey, second.SessionKey)
	}
}

func TestAddMessageRejectsInvalidRole(t *testing.T) {
	m := NewMemory(&fakeChatStore{})

	_, err := m.AddMessage(context.Background(), 1, "robot", "beep")
	if err == nil {
		t.Fatal("expected an error for an invalid role")
	}
	var appErr *apperr.Error
	if !errors.As(err, &appErr) || appErr.Code != "bad_request" {
		t.Errorf("expected bad_request, got %v", err)
	}
}

func TestGetMessagesReturnsAscendingTail(t *testing.T) {
	store := &fakeChatStore{}
	m := NewMemory(store)

	for i := 0; i < 6; i++ {
		role := models.RoleUser
		if i%2 == 1 {
			role = models.RoleAssistant
		}
		if _, err := m.AddMessage(context.Background(), 1, role, string(rune('a'+i))); err != nil {
			t.Fatal(err)
		}
	}

	msgs, err := m.GetMessages(context.Background(), 1, 4)
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 4 {
		t.Fatalf("expected 4 messages, got %d", len(msgs))
	}
	// Newest four, oldest first.
	want := []string{"c", "d", "e", "f"}
	for i, msg := range msgs {
		if msg.Content != want[i] {
			t.Errorf("message %d = %q, want %q", i, msg.Content, want[i])
		}
	}
}
