package server

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/jonathan/company-agent/internal/db"
	"github.com/jonathan/company-agent/internal/importer"
)

// ErrInvalidCredentials indicates a wrong admin password.
type ErrInvalidCredentials struct{}

func (e *ErrInvalidCredentials) Error() string {
	return "invalid credentials"
}

// ErrValidation indicates request validation failure
type ErrValidation struct {
	Field   string
	Message string
}

func (e *ErrValidation) Error() string {
	return fmt.Sprintf("validation error: %s - %s", e.Field, e.Message)
}

// HTTPStatus returns the appropriate HTTP status code for an error
func HTTPStatus(err error) int {
	var (
		credErr *ErrInvalidCredentials
		valErr  *ErrValidation
		fileErr *importer.FileError
	)
	switch {
	case errors.Is(err, db.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, db.ErrDuplicateName):
		return http.StatusConflict
	case errors.As(err, &credErr):
		return http.StatusUnauthorized
	case errors.As(err, &valErr), errors.As(err, &fileErr):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
