package server

import (
	"net/http"
	"time"

	"go.uber.org/zap"
)

type tokenRequest struct {
	Password string `json:"password" validate:"required,max=72"`
}

type tokenResponse struct {
	Token     string    `json:"token"`
	TokenType string    `json:"token_type"`
	ExpiresAt time.Time `json:"expires_at"`
}

// handleAdminToken exchanges the admin password for a bearer token.
func (s *Server) handleAdminToken(w http.ResponseWriter, r *http.Request) {
	if s.jwtService == nil {
		s.errorResponse(w, http.StatusNotFound, "Admin authentication is not configured")
		return
	}

	var req tokenRequest
	if msg, ok := s.decodeJSON(w, r, &req); !ok {
		s.errorResponse(w, http.StatusBadRequest, msg)
		return
	}

	if !s.passwords.VerifyPassword(req.Password, s.adminHash) {
		s.logger.Warn("admin login rejected", zap.String("remote", clientID(r)))
		err := &ErrInvalidCredentials{}
		s.errorResponse(w, HTTPStatus(err), err.Error())
		return
	}

	token, expiresAt, err := s.jwtService.GenerateToken(AdminSubject)
	if err != nil {
		s.logger.Error("failed to issue admin token", zap.Error(err))
		s.errorResponse(w, http.StatusInternalServerError, "Failed to generate token")
		return
	}

	s.jsonResponse(w, http.StatusOK, tokenResponse{
		Token:     token,
		TokenType: "Bearer",
		ExpiresAt: expiresAt.UTC(),
	})
}
