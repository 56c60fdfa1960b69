// Package chat runs one chat turn end to end and keeps the interaction log.
package chat

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/jonathan/company-agent/internal/agent"
	"github.com/jonathan/company-agent/internal/db"
)

// MaxHistory caps how many exchanges History returns.
const MaxHistory = 20

// Answerer produces a reply for a message.
type Answerer interface {
	Run(ctx context.Context, message string) (agent.Reply, error)
}

// Log is the interaction log.
type Log interface {
	RecordExchange(ctx context.Context, e *db.ChatExchange) error
	ListExchanges(ctx context.Context, sessionID string, limit int) ([]db.ChatExchange, error)
}

// Result is the outcome of one chat turn.
type Result struct {
	Answer    string      `json:"answer"`
	SessionID string      `json:"session_id"`
	Route     agent.Route `json:"-"`
}

// Service answers messages and records each exchange exactly once.
type Service struct {
	agent  Answerer
	log    Log
	logger *zap.Logger
}

// NewService creates a Service.
func NewService(agent Answerer, log Log, logger *zap.Logger) *Service {
	return &Service{agent: agent, log: log, logger: logger}
}

// Chat answers message within sessionID. An empty sessionID starts a new
// session. The exchange is persisted before the result is returned.
func (s *Service) Chat(ctx context.Context, message, sessionID string) (*Result, error) {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	reply, err := s.agent.Run(ctx, message)
	if err != nil {
		return nil, fmt.Errorf("failed to answer message: %w", err)
	}

	exchange := &db.ChatExchange{
		UserMessage: message,
		BotResponse: reply.Answer,
		SessionID:   &sessionID,
	}
	if err := s.log.RecordExchange(ctx, exchange); err != nil {
		return nil, fmt.Errorf("failed to record exchange: %w", err)
	}

	s.logger.Info("chat exchange recorded",
		zap.String("session_id", sessionID),
		zap.String("route", string(reply.Route)),
		zap.String("exchange_id", exchange.ID.String()),
	)

	return &Result{Answer: reply.Answer, SessionID: sessionID, Route: reply.Route}, nil
}

// History returns recent exchanges, newest first. limit is clamped to
// [1, MaxHistory]; zero or negative means MaxHistory.
func (s *Service) History(ctx context.Context, sessionID string, limit int) ([]db.ChatExchange, error) {
	if limit <= 0 || limit > MaxHistory {
		limit = MaxHistory
	}
	exchanges, err := s.log.ListExchanges(ctx, strings.TrimSpace(sessionID), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to load chat history: %w", err)
	}
	if exchanges == nil {
		exchanges = []db.ChatExchange{}
	}
	return exchanges, nil
}
