package server

import (
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/jonathan/company-agent/internal/importer"
)

type uploadResponse struct {
	Message string   `json:"message"`
	Skipped int      `json:"skipped"`
	Errors  []string `json:"errors"`
}

// handleUploadCSV imports companies from the multipart field "file".
func (s *Server) handleUploadCSV(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadBytes)

	file, header, err := r.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.errorResponse(w, http.StatusRequestEntityTooLarge, fmt.Sprintf("File exceeds %d bytes", tooLarge.Limit))
			return
		}
		s.errorResponse(w, http.StatusBadRequest, "No file provided")
		return
	}
	defer file.Close()

	if !strings.EqualFold(filepath.Ext(header.Filename), ".csv") {
		s.errorResponse(w, http.StatusBadRequest, "File must be CSV format")
		return
	}

	result, err := s.importer.Import(r.Context(), file)
	if err != nil {
		var fileErr *importer.FileError
		if !errors.As(err, &fileErr) {
			s.logger.Error("csv import failed", zap.String("file", header.Filename), zap.Error(err))
		}
		s.errorResponse(w, HTTPStatus(err), "Error processing CSV: "+err.Error())
		return
	}

	resp := uploadResponse{
		Message: fmt.Sprintf("Successfully imported %d companies", result.Created),
		Skipped: result.Skipped,
	}
	if len(result.Errors) > 0 {
		resp.Errors = result.Errors
	}
	s.jsonResponse(w, http.StatusOK, resp)
}
