// Package importer loads companies from CSV files.
package importer

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/jonathan/company-agent/internal/db"
	"github.com/jonathan/company-agent/internal/metrics"
)

// Recognised columns. Others are ignored.
const (
	ColumnName        = "name"
	ColumnDescription = "description"
	ColumnSector      = "sector"
	ColumnFinancials  = "financials"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// FileError reports a problem with the file as a whole. Nothing was written.
type FileError struct {
	Reason string
	Cause  error
}

func (e *FileError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Reason, e.Cause)
	}
	return e.Reason
}

func (e *FileError) Unwrap() error {
	return e.Cause
}

// Result summarises an import.
type Result struct {
	Created int      `json:"created"`
	Skipped int      `json:"skipped"`
	Errors  []string `json:"errors"`
}

// CompanyWriter inserts companies that do not exist yet.
type CompanyWriter interface {
	CreateCompanyIfAbsent(ctx context.Context, c *db.Company) (bool, error)
}

type row struct {
	Name        string `validate:"max=120"`
	Description string
	Sector      string `validate:"max=80"`
	Financials  db.Financials
}

// Importer loads CSV rows into the company store.
type Importer struct {
	store    CompanyWriter
	logger   *zap.Logger
	validate *validator.Validate
}

// New creates an Importer.
func New(store CompanyWriter, logger *zap.Logger) *Importer {
	return &Importer{
		store:    store,
		logger:   logger,
		validate: validator.New(),
	}
}

// Import reads a CSV with a header row and creates every company whose name
// is not stored yet. Existing names are skipped. Row failures are collected
// in Result.Errors; a *FileError means the file was rejected before any write.
// An empty or header-only file imports nothing. Without a name column every
// row carries the blank name, so at most one blank-named company is created.
func (im *Importer) Import(ctx context.Context, r io.Reader) (*Result, error) {
	records, err := readRecords(r)
	if err != nil {
		return nil, err
	}

	result := &Result{}
	if len(records) == 0 {
		im.logger.Info("csv import finished: no rows")
		return result, nil
	}

	columns := indexHeader(records[0])
	if _, ok := columns[ColumnName]; !ok {
		im.logger.Warn("csv has no name column, rows get the blank name")
	}

	for i, record := range records[1:] {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		rowNum := i + 1

		created, err := im.importRow(ctx, columns, record)
		switch {
		case err != nil:
			result.Errors = append(result.Errors, fmt.Sprintf("Row %d: %v", rowNum, err))
			metrics.ImportRows.WithLabelValues("failed").Inc()
		case created:
			result.Created++
			metrics.ImportRows.WithLabelValues("created").Inc()
		default:
			result.Skipped++
			metrics.ImportRows.WithLabelValues("skipped").Inc()
		}
	}

	im.logger.Info("csv import finished",
		zap.Int("created", result.Created),
		zap.Int("skipped", result.Skipped),
		zap.Int("errors", len(result.Errors)),
	)
	return result, nil
}

func (im *Importer) importRow(ctx context.Context, columns map[string]int, record []string) (bool, error) {
	field := func(name string) string {
		idx, ok := columns[name]
		if !ok || idx >= len(record) {
			return ""
		}
		return record[idx]
	}

	financials, err := ParseFinancials(field(ColumnFinancials))
	if err != nil {
		return false, err
	}

	parsed := row{
		Name:        strings.TrimSpace(field(ColumnName)),
		Description: field(ColumnDescription),
		Sector:      field(ColumnSector),
		Financials:  financials,
	}
	if err := im.validate.Struct(parsed); err != nil {
		return false, describeValidation(err)
	}

	return im.store.CreateCompanyIfAbsent(ctx, &db.Company{
		Name:        parsed.Name,
		Description: parsed.Description,
		Sector:      parsed.Sector,
		Financials:  parsed.Financials,
	})
}

// ParseFinancials decodes a JSON object. Blank input is an empty object.
func ParseFinancials(text string) (db.Financials, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return db.Financials{}, nil
	}

	var value any
	if err := json.Unmarshal([]byte(text), &value); err != nil {
		return nil, fmt.Errorf("invalid financials JSON: %w", err)
	}
	obj, ok := value.(map[string]any)
	if !ok {
		return nil, errors.New("financials must be a JSON object")
	}
	return db.Financials(obj), nil
}

func readRecords(r io.Reader) ([][]string, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, &FileError{Reason: "failed to read file", Cause: err}
	}
	if !utf8.Valid(data) {
		return nil, &FileError{Reason: "file is not valid UTF-8"}
	}
	data = bytes.TrimPrefix(data, utf8BOM)

	reader := csv.NewReader(bytes.NewReader(data))
	reader.FieldsPerRecord = -1

	records, err := reader.ReadAll()
	if err != nil {
		return nil, &FileError{Reason: "invalid CSV", Cause: err}
	}
	return records, nil
}

func indexHeader(header []string) map[string]int {
	columns := make(map[string]int, len(header))
	for i, name := range header {
		key := strings.ToLower(strings.TrimSpace(name))
		if _, seen := columns[key]; !seen {
			columns[key] = i
		}
	}
	return columns
}

func describeValidation(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fmt.Sprintf("%s exceeds %s characters", strings.ToLower(fe.Field()), fe.Param()))
	}
	return errors.New(strings.Join(msgs, "; "))
}
