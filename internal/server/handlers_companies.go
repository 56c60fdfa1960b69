package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/jonathan/company-agent/internal/db"
)

// companyRequest is the body of create and full update.
type companyRequest struct {
	Name        string        `json:"name" validate:"required,max=120"`
	Description string        `json:"description"`
	Sector      string        `json:"sector" validate:"max=80"`
	Financials  db.Financials `json:"financials"`
}

// companyPatch carries only the fields a PATCH sets.
type companyPatch struct {
	Name        *string        `json:"name"`
	Description *string        `json:"description"`
	Sector      *string        `json:"sector"`
	Financials  *db.Financials `json:"financials"`
}

func (req *companyRequest) normalize() {
	req.Name = strings.TrimSpace(req.Name)
	req.Sector = strings.TrimSpace(req.Sector)
	if req.Financials == nil {
		req.Financials = db.Financials{}
	}
}

func (req *companyRequest) applyTo(c *db.Company) {
	c.Name = req.Name
	c.Description = req.Description
	c.Sector = req.Sector
	c.Financials = req.Financials
}

func fromCompany(c *db.Company) companyRequest {
	return companyRequest{
		Name:        c.Name,
		Description: c.Description,
		Sector:      c.Sector,
		Financials:  c.Financials,
	}
}

// handleListCompanies lists companies ordered by name, optionally filtered
// by exact sector and a name/sector search term.
func (s *Server) handleListCompanies(w http.ResponseWriter, r *http.Request) {
	filter := db.CompanyFilter{
		Sector: strings.TrimSpace(r.URL.Query().Get("sector")),
		Search: strings.TrimSpace(r.URL.Query().Get("search")),
	}

	companies, err := s.store.ListCompanies(r.Context(), filter)
	if err != nil {
		s.storeError(w, "failed to list companies", err)
		return
	}
	if companies == nil {
		companies = []db.Company{}
	}

	s.jsonResponse(w, http.StatusOK, map[string]any{
		"companies": companies,
		"count":     len(companies),
	})
}

// handleCreateCompany creates a company
func (s *Server) handleCreateCompany(w http.ResponseWriter, r *http.Request) {
	var req companyRequest
	if msg, ok := s.decodeCompany(w, r, &req); !ok {
		s.errorResponse(w, http.StatusBadRequest, msg)
		return
	}

	var company db.Company
	req.applyTo(&company)
	if err := s.store.CreateCompany(r.Context(), &company); err != nil {
		s.storeError(w, "failed to create company", err)
		return
	}

	s.logger.Info("company created", zap.String("id", company.ID.String()), zap.String("name", company.Name))
	s.jsonResponse(w, http.StatusCreated, company)
}

// handleGetCompany retrieves a company by ID
func (s *Server) handleGetCompany(w http.ResponseWriter, r *http.Request) {
	company, ok := s.loadCompany(w, r)
	if !ok {
		return
	}
	s.jsonResponse(w, http.StatusOK, company)
}

// handleUpdateCompany replaces every mutable field of a company
func (s *Server) handleUpdateCompany(w http.ResponseWriter, r *http.Request) {
	company, ok := s.loadCompany(w, r)
	if !ok {
		return
	}

	var req companyRequest
	if msg, ok := s.decodeCompany(w, r, &req); !ok {
		s.errorResponse(w, http.StatusBadRequest, msg)
		return
	}

	req.applyTo(company)
	s.saveCompany(w, r, company)
}

// handlePatchCompany updates the fields present in the body
func (s *Server) handlePatchCompany(w http.ResponseWriter, r *http.Request) {
	company, ok := s.loadCompany(w, r)
	if !ok {
		return
	}

	var patch companyPatch
	if msg, ok := s.decodeJSON(w, r, &patch); !ok {
		s.errorResponse(w, http.StatusBadRequest, msg)
		return
	}

	req := fromCompany(company)
	if patch.Name != nil {
		req.Name = *patch.Name
	}
	if patch.Description != nil {
		req.Description = *patch.Description
	}
	if patch.Sector != nil {
		req.Sector = *patch.Sector
	}
	if patch.Financials != nil {
		req.Financials = *patch.Financials
	}
	req.normalize()
	if err := s.validator.Struct(req); err != nil {
		s.errorResponse(w, http.StatusBadRequest, extractValidationErrors(err))
		return
	}

	req.applyTo(company)
	s.saveCompany(w, r, company)
}

// handleDeleteCompany deletes a company
func (s *Server) handleDeleteCompany(w http.ResponseWriter, r *http.Request) {
	id, ok := s.companyID(w, r)
	if !ok {
		return
	}

	if err := s.store.DeleteCompany(r.Context(), id); err != nil {
		s.storeError(w, "failed to delete company", err)
		return
	}

	s.logger.Info("company deleted", zap.String("id", id.String()))
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) decodeCompany(w http.ResponseWriter, r *http.Request, req *companyRequest) (string, bool) {
	if msg, ok := s.decodeJSON(w, r, req); !ok {
		return msg, false
	}
	req.normalize()
	// re-check after trimming so "   " is rejected as empty
	if err := s.validator.Struct(req); err != nil {
		return extractValidationErrors(err), false
	}
	return "", true
}

func (s *Server) companyID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		s.errorResponse(w, http.StatusBadRequest, "Invalid company ID")
		return uuid.Nil, false
	}
	return id, true
}

func (s *Server) loadCompany(w http.ResponseWriter, r *http.Request) (*db.Company, bool) {
	id, ok := s.companyID(w, r)
	if !ok {
		return nil, false
	}

	company, err := s.store.GetCompany(r.Context(), id)
	if err != nil {
		s.storeError(w, "failed to get company", err)
		return nil, false
	}
	if company == nil {
		s.errorResponse(w, http.StatusNotFound, "Company not found")
		return nil, false
	}
	return company, true
}

func (s *Server) saveCompany(w http.ResponseWriter, r *http.Request, company *db.Company) {
	if err := s.store.UpdateCompany(r.Context(), company); err != nil {
		s.storeError(w, "failed to update company", err)
		return
	}
	s.jsonResponse(w, http.StatusOK, company)
}

// storeError maps store failures to responses. Internal errors are logged
// and reported generically.
func (s *Server) storeError(w http.ResponseWriter, action string, err error) {
	status := HTTPStatus(err)
	switch {
	case errors.Is(err, db.ErrNotFound):
		s.errorResponse(w, status, "Company not found")
	case errors.Is(err, db.ErrDuplicateName):
		s.errorResponse(w, status, db.ErrDuplicateName.Error())
	default:
		s.logger.Error(action, zap.Error(err))
		s.errorResponse(w, status, "Database error")
	}
}
