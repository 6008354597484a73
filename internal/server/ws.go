package server

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/websocket"

	"rag-service/internal/apperr"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// wsQuestion is one inbound frame. A frame that is not valid JSON is
// treated as a bare question string.
type wsQuestion struct {
	Question   string `json:"question"`
	SessionID  *int64 `json:"session_id"`
	Model      string `json:"model"`
	TopK       int    `json:"top_k"`
	UseMMR     bool   `json:"use_mmr"`
	DocumentID *int64 `json:"document_id"`
}

// handleChatWS answers questions over a websocket: each inbound text
// frame is a question, tokens stream back as text frames, and "[DONE]"
// closes the answer.
func (s *Server) handleChatWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}
	defer conn.Close()

	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		if msgType != websocket.TextMessage {
			continue
		}

		var q wsQuestion
		if err := json.Unmarshal(data, &q); err != nil || q.Question == "" {
			q = wsQuestion{Question: string(data)}
		}

		body := askBody{
			Question:   q.Question,
			SessionID:  q.SessionID,
			Model:      q.Model,
			TopK:       q.TopK,
			UseMMR:     q.UseMMR,
			DocumentID: q.DocumentID,
		}
		req := body.toRequest()

		_, askErr := s.answerer.AskStream(r.Context(), req, func(token string) error {
			return conn.WriteMessage(websocket.TextMessage, []byte(token))
		})
		if askErr != nil {
			appErr := apperr.From(askErr)
			payload, _ := json.Marshal(map[string]any{
				"error": map[string]string{"code": appErr.Code, "message": appErr.Message},
			})
			if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
			continue
		}
		if err := conn.WriteMessage(websocket.TextMessage, []byte("[DONE]")); err != nil {
			return
		}
	}
}
