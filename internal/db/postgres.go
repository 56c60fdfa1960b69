package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS companies (
	id          UUID PRIMARY KEY,
	name        VARCHAR(120) NOT NULL UNIQUE,
	description TEXT NOT NULL DEFAULT '',
	sector      VARCHAR(80) NOT NULL DEFAULT '',
	financials  JSONB NOT NULL DEFAULT '{}'::jsonb,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS chat_exchanges (
	id           UUID PRIMARY KEY,
	user_message TEXT NOT NULL,
	bot_response TEXT NOT NULL,
	timestamp    TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	session_id   VARCHAR(100)
);

CREATE INDEX IF NOT EXISTS idx_chat_exchanges_session_ts ON chat_exchanges (session_id, timestamp DESC);
CREATE INDEX IF NOT EXISTS idx_chat_exchanges_ts ON chat_exchanges (timestamp DESC);
`

const companyColumns = `id, name, description, sector, financials, created_at, updated_at`

// uniqueViolation is the Postgres SQLSTATE for unique constraint violations.
const uniqueViolation = "23505"

// PostgresStore implements Store on a pgx connection pool
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgres establishes a connection pool to the database
func NewPostgres(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Verify connection
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &PostgresStore{pool: pool}, nil
}

// Migrate creates tables and indexes
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, postgresSchema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// Ping verifies database connectivity
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close closes the connection pool
func (s *PostgresStore) Close() error {
	if s.pool != nil {
		s.pool.Close()
	}
	return nil
}

// -----------------------------------------------------------------------------
// Company Methods
// -----------------------------------------------------------------------------

// CreateCompany inserts a new company
func (s *PostgresStore) CreateCompany(ctx context.Context, c *Company) error {
	created, err := s.insertCompany(ctx, c, false)
	if err != nil {
		return err
	}
	if !created {
		return ErrDuplicateName
	}
	return nil
}

// CreateCompanyIfAbsent inserts a company unless the name is already taken
func (s *PostgresStore) CreateCompanyIfAbsent(ctx context.Context, c *Company) (bool, error) {
	return s.insertCompany(ctx, c, true)
}

func (s *PostgresStore) insertCompany(ctx context.Context, c *Company, ignoreConflict bool) (bool, error) {
	financials, err := marshalFinancials(c.Financials)
	if err != nil {
		return false, err
	}

	id := uuid.New()
	now := time.Now().UTC()

	query := `INSERT INTO companies (id, name, description, sector, financials, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $6)`
	if ignoreConflict {
		query += ` ON CONFLICT (name) DO NOTHING`
	}

	tag, err := s.pool.Exec(ctx, query, id, c.Name, c.Description, c.Sector, financials, now)
	if err != nil {
		if isPgUniqueViolation(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to create company: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return false, nil
	}

	c.ID = id
	c.CreatedAt = now
	c.UpdatedAt = now
	if c.Financials == nil {
		c.Financials = Financials{}
	}
	return true, nil
}

// GetCompany retrieves a company by its UUID
func (s *PostgresStore) GetCompany(ctx context.Context, id uuid.UUID) (*Company, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+companyColumns+` FROM companies WHERE id = $1`,
		id,
	)
	c, err := scanPgCompany(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get company: %w", err)
	}
	return c, nil
}

// UpdateCompany overwrites the mutable fields of a company
func (s *PostgresStore) UpdateCompany(ctx context.Context, c *Company) error {
	financials, err := marshalFinancials(c.Financials)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	tag, err := s.pool.Exec(ctx,
		`UPDATE companies
		 SET name = $1, description = $2, sector = $3, financials = $4, updated_at = $5
		 WHERE id = $6`,
		c.Name, c.Description, c.Sector, financials, now, c.ID,
	)
	if err != nil {
		if isPgUniqueViolation(err) {
			return ErrDuplicateName
		}
		return fmt.Errorf("failed to update company: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	c.UpdatedAt = now
	return nil
}

// DeleteCompany removes a company
func (s *PostgresStore) DeleteCompany(ctx context.Context, id uuid.UUID) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM companies WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete company: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ListCompanies retrieves companies with optional filters, ordered by name
func (s *PostgresStore) ListCompanies(ctx context.Context, filter CompanyFilter) ([]Company, error) {
	query := `SELECT ` + companyColumns + ` FROM companies WHERE 1=1`
	args := []any{}
	argNum := 1

	if filter.Sector != "" {
		query += fmt.Sprintf(" AND sector = $%d", argNum)
		args = append(args, filter.Sector)
		argNum++
	}
	if filter.Search != "" {
		query += fmt.Sprintf(` AND (name ILIKE $%d ESCAPE '\' OR sector ILIKE $%d ESCAPE '\')`, argNum, argNum)
		args = append(args, "%"+escapeLike(filter.Search)+"%")
	}
	query += " ORDER BY name"

	return s.queryCompanies(ctx, query, args...)
}

// FindCompaniesByName matches the full name case-insensitively
func (s *PostgresStore) FindCompaniesByName(ctx context.Context, name string) ([]Company, error) {
	return s.queryCompanies(ctx,
		`SELECT `+companyColumns+` FROM companies WHERE UPPER(name) = UPPER($1) ORDER BY name`,
		name,
	)
}

// SearchCompaniesByName matches companies whose name contains fragment
func (s *PostgresStore) SearchCompaniesByName(ctx context.Context, fragment string) ([]Company, error) {
	return s.queryCompanies(ctx,
		`SELECT `+companyColumns+` FROM companies WHERE name ILIKE $1 ESCAPE '\' ORDER BY name`,
		"%"+escapeLike(fragment)+"%",
	)
}

func (s *PostgresStore) queryCompanies(ctx context.Context, query string, args ...any) ([]Company, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list companies: %w", err)
	}
	defer rows.Close()

	var companies []Company
	for rows.Next() {
		c, err := scanPgCompany(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan company: %w", err)
		}
		companies = append(companies, *c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list companies: %w", err)
	}
	return companies, nil
}

func scanPgCompany(row pgx.Row) (*Company, error) {
	var c Company
	var financials []byte
	if err := row.Scan(&c.ID, &c.Name, &c.Description, &c.Sector, &financials, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return nil, err
	}
	f, err := unmarshalFinancials(financials)
	if err != nil {
		return nil, err
	}
	c.Financials = f
	return &c, nil
}

// -----------------------------------------------------------------------------
// Chat Log Methods
// -----------------------------------------------------------------------------

// RecordExchange appends a chat turn
func (s *PostgresStore) RecordExchange(ctx context.Context, e *ChatExchange) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}

	_, err := s.pool.Exec(ctx,
		`INSERT INTO chat_exchanges (id, user_message, bot_response, timestamp, session_id)
		 VALUES ($1, $2, $3, $4, $5)`,
		e.ID, e.UserMessage, e.BotResponse, e.Timestamp, e.SessionID,
	)
	if err != nil {
		return fmt.Errorf("failed to record chat exchange: %w", err)
	}
	return nil
}

// ListExchanges retrieves recent chat turns, newest first
func (s *PostgresStore) ListExchanges(ctx context.Context, sessionID string, limit int) ([]ChatExchange, error) {
	query := `SELECT id, user_message, bot_response, timestamp, session_id FROM chat_exchanges`
	args := []any{}
	if sessionID != "" {
		query += ` WHERE session_id = $1`
		args = append(args, sessionID)
	}
	query += fmt.Sprintf(` ORDER BY timestamp DESC LIMIT $%d`, len(args)+1)
	args = append(args, limit)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list chat exchanges: %w", err)
	}
	defer rows.Close()

	var exchanges []ChatExchange
	for rows.Next() {
		var e ChatExchange
		if err := rows.Scan(&e.ID, &e.UserMessage, &e.BotResponse, &e.Timestamp, &e.SessionID); err != nil {
			return nil, fmt.Errorf("failed to scan chat exchange: %w", err)
		}
		exchanges = append(exchanges, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list chat exchanges: %w", err)
	}
	return exchanges, nil
}

func isPgUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}
