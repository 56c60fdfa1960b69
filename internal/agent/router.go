package agent

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/jonathan/company-agent/internal/llm"
	"github.com/jonathan/company-agent/internal/metrics"
	"github.com/jonathan/company-agent/internal/prompts"
	"github.com/jonathan/company-agent/internal/schemas"
)

// Route is the datasource chosen for a message.
type Route string

const (
	RouteCompany Route = "company_query"
	RouteGeneral Route = "general_query"
)

type routeDecision struct {
	Datasource Route `json:"datasource"`
}

// Router classifies user messages with the LLM.
type Router struct {
	client      llm.Client
	logger      *zap.Logger
	instruction string
}

// NewRouter creates a Router using the embedded routing prompt.
func NewRouter(client llm.Client, logger *zap.Logger) *Router {
	return &Router{
		client:      client,
		logger:      logger,
		instruction: prompts.MustGet(prompts.ChatFile, prompts.KeyRouteQuery),
	}
}

// Classify decides which branch answers message. Model, parse and schema
// failures fall back to RouteGeneral; only context cancellation is an error.
func (r *Router) Classify(ctx context.Context, message string) (Route, error) {
	route, err := r.classify(ctx, message)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", ctxErr
		}
		r.logger.Warn("routing failed, falling back to general_query", zap.Error(err))
		metrics.RouteFallbacks.Inc()
		route = RouteGeneral
	}

	metrics.RouteDecisions.WithLabelValues(string(route)).Inc()
	r.logger.Debug("routed message", zap.String("route", string(route)))
	return route, nil
}

func (r *Router) classify(ctx context.Context, message string) (Route, error) {
	prompt := llm.BuildExtractionPrompt(llm.RouteDecisionSchema(r.instruction), message)

	raw, err := r.client.GenerateJSON(ctx, "", prompt, llm.TierLite)
	if err != nil {
		metrics.LLMRequests.WithLabelValues("route", "error").Inc()
		return "", fmt.Errorf("route request failed: %w", err)
	}
	metrics.LLMRequests.WithLabelValues("route", "ok").Inc()

	cleaned := llm.CleanJSONBlock(raw)
	if err := schemas.Validate(schemas.RouteDecision, []byte(cleaned)); err != nil {
		return "", fmt.Errorf("invalid route decision: %w", err)
	}

	var decision routeDecision
	if err := json.Unmarshal([]byte(cleaned), &decision); err != nil {
		return "", fmt.Errorf("failed to parse route decision: %w", err)
	}
	return decision.Datasource, nil
}
