// Package db provides persistence for company profiles and the chat log.
package db

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

var (
	// ErrNotFound is returned by mutations addressing a missing record.
	ErrNotFound = errors.New("record not found")
	// ErrDuplicateName is returned when a company name is already taken.
	ErrDuplicateName = errors.New("company with this name already exists")
)

// Store is the persistence contract shared by the Postgres and SQLite backends.
// Getters return (nil, nil) when the record does not exist.
type Store interface {
	// Migrate creates the schema if it does not exist yet.
	Migrate(ctx context.Context) error
	// Ping verifies database connectivity.
	Ping(ctx context.Context) error
	// Close releases the underlying connections.
	Close() error

	// CreateCompany inserts a company, assigning ID and timestamps.
	CreateCompany(ctx context.Context, c *Company) error
	// CreateCompanyIfAbsent inserts a company unless one with exactly the
	// same name exists. It reports whether a row was created.
	CreateCompanyIfAbsent(ctx context.Context, c *Company) (bool, error)
	GetCompany(ctx context.Context, id uuid.UUID) (*Company, error)
	UpdateCompany(ctx context.Context, c *Company) error
	DeleteCompany(ctx context.Context, id uuid.UUID) error
	// ListCompanies returns companies ordered by name.
	ListCompanies(ctx context.Context, filter CompanyFilter) ([]Company, error)
	// FindCompaniesByName returns companies whose name equals name, ignoring case.
	FindCompaniesByName(ctx context.Context, name string) ([]Company, error)
	// SearchCompaniesByName returns companies whose name contains fragment,
	// ignoring case, ordered by name.
	SearchCompaniesByName(ctx context.Context, fragment string) ([]Company, error)

	// RecordExchange appends a chat turn to the interaction log.
	RecordExchange(ctx context.Context, e *ChatExchange) error
	// ListExchanges returns up to limit exchanges, newest first. An empty
	// sessionID lists every session.
	ListExchanges(ctx context.Context, sessionID string, limit int) ([]ChatExchange, error)
}

// Open connects to the store named by databaseURL and applies the schema.
// postgres:// and postgresql:// URLs use pgx; sqlite://<path> and
// sqlite://:memory: use the embedded SQLite driver.
func Open(ctx context.Context, databaseURL string) (Store, error) {
	var (
		store Store
		err   error
	)

	switch {
	case strings.HasPrefix(databaseURL, "postgres://"), strings.HasPrefix(databaseURL, "postgresql://"):
		store, err = NewPostgres(ctx, databaseURL)
	case strings.HasPrefix(databaseURL, "sqlite://"):
		store, err = NewSQLite(strings.TrimPrefix(databaseURL, "sqlite://"))
	default:
		return nil, fmt.Errorf("unsupported database URL scheme: %q", databaseURL)
	}
	if err != nil {
		return nil, err
	}

	if err := store.Migrate(ctx); err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return store, nil
}
