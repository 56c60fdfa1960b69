package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"go.uber.org/zap"

	"github.com/jonathan/company-agent/internal/chat"
)

const (
	wsReadLimit    = 64 << 10
	wsWriteTimeout = 10 * time.Second
)

// chatRequest is a chat turn. A missing message is answered as an empty one.
type chatRequest struct {
	Message   string `json:"message"`
	SessionID string `json:"session_id" validate:"max=100"`
}

type historyResponse struct {
	Chats any `json:"chats"`
}

// handleChat answers one message. Model and lookup failures are already
// turned into answer text, so only undecodable bodies and log failures are
// errors.
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if msg, ok := s.decodeJSON(w, r, &req); !ok {
		s.errorResponse(w, http.StatusBadRequest, msg)
		return
	}

	result, err := s.chat.Chat(r.Context(), req.Message, req.SessionID)
	if err != nil {
		s.logger.Error("chat turn failed", zap.Error(err))
		s.errorResponse(w, http.StatusInternalServerError, "Failed to process message")
		return
	}

	s.jsonResponse(w, http.StatusOK, result)
}

// handleChatHistory lists recent exchanges, newest first
func (s *Server) handleChatHistory(w http.ResponseWriter, r *http.Request) {
	limit := parseQueryInt(r, "limit", chat.MaxHistory, chat.MaxHistory)
	sessionID := r.URL.Query().Get("session_id")

	exchanges, err := s.chat.History(r.Context(), sessionID, limit)
	if err != nil {
		s.logger.Error("failed to load chat history", zap.Error(err))
		s.errorResponse(w, http.StatusInternalServerError, "Database error")
		return
	}

	s.jsonResponse(w, http.StatusOK, historyResponse{Chats: exchanges})
}

// handleChatSocket runs a chat session over a WebSocket. Every text frame is
// a chatRequest; the first session id seen (or generated) sticks to the
// connection.
func (s *Server) handleChatSocket(w http.ResponseWriter, r *http.Request) {
	// the socket outlives the server's read and write timeouts
	rc := http.NewResponseController(w)
	_ = rc.SetReadDeadline(time.Time{})
	_ = rc.SetWriteDeadline(time.Time{})

	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: s.originPatterns(),
	})
	if err != nil {
		s.logger.Warn("failed to accept websocket", zap.Error(err))
		return
	}
	defer ws.CloseNow()
	ws.SetReadLimit(wsReadLimit)

	ctx := r.Context()
	var sessionID string
	for {
		typ, data, err := ws.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) == -1 && ctx.Err() == nil {
				s.logger.Debug("websocket read ended", zap.Error(err))
			}
			return
		}
		if typ != websocket.MessageText {
			s.writeSocket(ctx, ws, map[string]string{"error": "Only text messages are supported"})
			continue
		}

		var req chatRequest
		if err := json.Unmarshal(data, &req); err != nil {
			s.writeSocket(ctx, ws, map[string]string{"error": "Invalid message"})
			continue
		}
		if err := s.validator.Struct(req); err != nil {
			s.writeSocket(ctx, ws, map[string]string{"error": extractValidationErrors(err)})
			continue
		}
		if req.SessionID == "" {
			req.SessionID = sessionID
		}

		result, err := s.chat.Chat(ctx, req.Message, req.SessionID)
		if err != nil {
			s.logger.Error("chat turn failed", zap.Error(err))
			if ctx.Err() != nil {
				return
			}
			s.writeSocket(ctx, ws, map[string]string{"error": "Failed to process message"})
			continue
		}
		sessionID = result.SessionID

		if !s.writeSocket(ctx, ws, result) {
			return
		}
	}
}

func (s *Server) writeSocket(ctx context.Context, ws *websocket.Conn, v any) bool {
	ctx, cancel := context.WithTimeout(ctx, wsWriteTimeout)
	defer cancel()
	if err := wsjson.Write(ctx, ws, v); err != nil {
		s.logger.Debug("websocket write failed", zap.Error(err))
		return false
	}
	return true
}

// originPatterns converts the CORS origin into websocket host patterns.
func (s *Server) originPatterns() []string {
	if s.corsOrigin == "*" {
		return []string{"*"}
	}
	u, err := url.Parse(s.corsOrigin)
	if err != nil || u.Host == "" {
		return []string{s.corsOrigin}
	}
	return []string{u.Host}
}
