package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS companies (
	id          TEXT PRIMARY KEY,
	name        TEXT NOT NULL UNIQUE,
	description TEXT NOT NULL DEFAULT '',
	sector      TEXT NOT NULL DEFAULT '',
	financials  TEXT NOT NULL DEFAULT '{}',
	created_at  INTEGER NOT NULL,
	updated_at  INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS chat_exchanges (
	id           TEXT PRIMARY KEY,
	user_message TEXT NOT NULL,
	bot_response TEXT NOT NULL,
	timestamp    INTEGER NOT NULL,
	session_id   TEXT
);
CREATE INDEX IF NOT EXISTS idx_chat_exchanges_session_ts ON chat_exchanges(session_id, timestamp);
CREATE INDEX IF NOT EXISTS idx_chat_exchanges_ts ON chat_exchanges(timestamp);
`

const memoryPath = ":memory:"

// SQLiteStore implements Store using the pure-Go SQLite driver.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at path. ":memory:" opens a private
// in-memory database held by a single connection.
func NewSQLite(path string) (*SQLiteStore, error) {
	var dsn string
	if path == memoryPath {
		dsn = "file::memory:?_pragma=busy_timeout(5000)"
	} else {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
		dsn = "file:" + path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if path == memoryPath {
		// Every connection to :memory: gets its own database.
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(25)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(5 * time.Minute)
	}

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Migrate creates tables and indexes.
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, sqliteSchema); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Ping verifies database connectivity.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// CreateCompany inserts a new company.
func (s *SQLiteStore) CreateCompany(ctx context.Context, c *Company) error {
	created, err := s.insertCompany(ctx, c, false)
	if err != nil {
		return err
	}
	if !created {
		return ErrDuplicateName
	}
	return nil
}

// CreateCompanyIfAbsent inserts a company unless the name is already taken.
func (s *SQLiteStore) CreateCompanyIfAbsent(ctx context.Context, c *Company) (bool, error) {
	return s.insertCompany(ctx, c, true)
}

func (s *SQLiteStore) insertCompany(ctx context.Context, c *Company, ignoreConflict bool) (bool, error) {
	financials, err := marshalFinancials(c.Financials)
	if err != nil {
		return false, err
	}

	id := uuid.New()
	now := time.Now().UTC()

	query := `
	INSERT INTO companies (id, name, description, sector, financials, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?, ?, ?)`
	if ignoreConflict {
		query += ` ON CONFLICT(name) DO NOTHING`
	}

	result, err := s.db.ExecContext(ctx, query,
		id.String(), c.Name, c.Description, c.Sector, string(financials),
		now.UnixNano(), now.UnixNano(),
	)
	if err != nil {
		if isSQLiteUniqueError(err) {
			return false, nil
		}
		return false, fmt.Errorf("insert company: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("get rows affected: %w", err)
	}
	if rows == 0 {
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

// GetCompany retrieves a company by ID.
func (s *SQLiteStore) GetCompany(ctx context.Context, id uuid.UUID) (*Company, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+companyColumns+` FROM companies WHERE id = ?`, id.String())

	c, err := scanSQLiteCompany(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan company row: %w", err)
	}
	return c, nil
}

// UpdateCompany overwrites the mutable fields of a company.
func (s *SQLiteStore) UpdateCompany(ctx context.Context, c *Company) error {
	financials, err := marshalFinancials(c.Financials)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	result, err := s.db.ExecContext(ctx,
		`UPDATE companies SET name = ?, description = ?, sector = ?, financials = ?, updated_at = ? WHERE id = ?`,
		c.Name, c.Description, c.Sector, string(financials), now.UnixNano(), c.ID.String(),
	)
	if err != nil {
		if isSQLiteUniqueError(err) {
			return ErrDuplicateName
		}
		return fmt.Errorf("update company: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if rows == 0 {
		return ErrNotFound
	}
	c.UpdatedAt = now
	return nil
}

// DeleteCompany removes a company.
func (s *SQLiteStore) DeleteCompany(ctx context.Context, id uuid.UUID) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM companies WHERE id = ?`, id.String())
	if err != nil {
		return fmt.Errorf("delete company: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

// ListCompanies returns companies ordered by name.
func (s *SQLiteStore) ListCompanies(ctx context.Context, filter CompanyFilter) ([]Company, error) {
	query := `SELECT ` + companyColumns + ` FROM companies WHERE 1=1`
	var args []any

	if filter.Sector != "" {
		query += ` AND sector = ?`
		args = append(args, filter.Sector)
	}
	query += ` ORDER BY name`

	companies, err := s.queryCompanies(ctx, query, args...)
	if err != nil || filter.Search == "" {
		return companies, err
	}
	return filterCompanies(companies, func(c Company) bool {
		return containsFold(c.Name, filter.Search) || containsFold(c.Sector, filter.Search)
	}), nil
}

// SQLite's lower() and LIKE only fold ASCII, so name matching is done in Go
// with Unicode case mapping, the way Postgres UPPER and ILIKE behave.

// FindCompaniesByName matches the full name case-insensitively.
func (s *SQLiteStore) FindCompaniesByName(ctx context.Context, name string) ([]Company, error) {
	companies, err := s.queryCompanies(ctx, `SELECT `+companyColumns+` FROM companies ORDER BY name`)
	if err != nil {
		return nil, err
	}
	upper := strings.ToUpper(name)
	return filterCompanies(companies, func(c Company) bool {
		return strings.ToUpper(c.Name) == upper
	}), nil
}

// SearchCompaniesByName matches names containing fragment, ignoring case.
func (s *SQLiteStore) SearchCompaniesByName(ctx context.Context, fragment string) ([]Company, error) {
	companies, err := s.queryCompanies(ctx, `SELECT `+companyColumns+` FROM companies ORDER BY name`)
	if err != nil {
		return nil, err
	}
	return filterCompanies(companies, func(c Company) bool {
		return containsFold(c.Name, fragment)
	}), nil
}

func containsFold(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}

func filterCompanies(companies []Company, keep func(Company) bool) []Company {
	var out []Company
	for _, c := range companies {
		if keep(c) {
			out = append(out, c)
		}
	}
	return out
}

func (s *SQLiteStore) queryCompanies(ctx context.Context, query string, args ...any) ([]Company, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query companies: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var companies []Company
	for rows.Next() {
		c, err := scanSQLiteCompany(rows)
		if err != nil {
			return nil, fmt.Errorf("scan company row: %w", err)
		}
		companies = append(companies, *c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate companies: %w", err)
	}
	return companies, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSQLiteCompany(row rowScanner) (*Company, error) {
	var c Company
	var id, financials string
	var createdAt, updatedAt int64

	if err := row.Scan(&id, &c.Name, &c.Description, &c.Sector, &financials, &createdAt, &updatedAt); err != nil {
		return nil, err
	}

	parsed, err := uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("parse company id: %w", err)
	}
	f, err := unmarshalFinancials([]byte(financials))
	if err != nil {
		return nil, err
	}

	c.ID = parsed
	c.Financials = f
	c.CreatedAt = time.Unix(0, createdAt).UTC()
	c.UpdatedAt = time.Unix(0, updatedAt).UTC()
	return &c, nil
}

// RecordExchange appends a chat turn.
func (s *SQLiteStore) RecordExchange(ctx context.Context, e *ChatExchange) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}

	var sessionID any
	if e.SessionID != nil {
		sessionID = *e.SessionID
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO chat_exchanges (id, user_message, bot_response, timestamp, session_id) VALUES (?, ?, ?, ?, ?)`,
		e.ID.String(), e.UserMessage, e.BotResponse, e.Timestamp.UnixNano(), sessionID,
	)
	if err != nil {
		return fmt.Errorf("insert chat exchange: %w", err)
	}
	return nil
}

// ListExchanges returns up to limit exchanges, newest first.
func (s *SQLiteStore) ListExchanges(ctx context.Context, sessionID string, limit int) ([]ChatExchange, error) {
	query := `SELECT id, user_message, bot_response, timestamp, session_id FROM chat_exchanges`
	var args []any
	if sessionID != "" {
		query += ` WHERE session_id = ?`
		args = append(args, sessionID)
	}
	// rowid breaks ties between exchanges recorded in the same nanosecond.
	query += ` ORDER BY timestamp DESC, rowid DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query chat exchanges: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var exchanges []ChatExchange
	for rows.Next() {
		var e ChatExchange
		var id string
		var ts int64
		var session sql.NullString
		if err := rows.Scan(&id, &e.UserMessage, &e.BotResponse, &ts, &session); err != nil {
			return nil, fmt.Errorf("scan chat exchange row: %w", err)
		}
		parsed, err := uuid.Parse(id)
		if err != nil {
			return nil, fmt.Errorf("parse chat exchange id: %w", err)
		}
		e.ID = parsed
		e.Timestamp = time.Unix(0, ts).UTC()
		if session.Valid {
			v := session.String
			e.SessionID = &v
		}
		exchanges = append(exchanges, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate chat exchanges: %w", err)
	}
	return exchanges, nil
}

// isSQLiteUniqueError reports whether err is a UNIQUE constraint violation.
func isSQLiteUniqueError(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
