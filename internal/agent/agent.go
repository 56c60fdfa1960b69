// Package agent routes chat messages and generates answers about companies.
package agent

import (
	"context"

	"go.uber.org/zap"
)

// Reply is the agent's answer to one message.
type Reply struct {
	Answer string
	Route  Route
}

// Agent classifies a message and dispatches it to the matching branch.
type Agent struct {
	router    *Router
	generator *Generator
	logger    *zap.Logger
}

// New creates an Agent.
func New(router *Router, generator *Generator, logger *zap.Logger) *Agent {
	return &Agent{router: router, generator: generator, logger: logger}
}

// Run answers message. It only fails when ctx is done.
func (a *Agent) Run(ctx context.Context, message string) (Reply, error) {
	route, err := a.router.Classify(ctx, message)
	if err != nil {
		return Reply{}, err
	}

	var answer string
	switch route {
	case RouteCompany:
		answer = a.generator.AnswerCompany(ctx, message)
	default:
		route = RouteGeneral
		answer = a.generator.AnswerGeneral(ctx, message)
	}

	if err := ctx.Err(); err != nil {
		return Reply{}, err
	}
	return Reply{Answer: answer, Route: route}, nil
}
