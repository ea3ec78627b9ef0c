package httpapi

import (
	"net/http"
	"time"

	"github.com/dinesh-wex/wex-platform-2026-sub001/internal/domain/engagement"
)

type issueTokenRequest struct {
	Role string `json:"role"`
	ID   string `json:"id"`
}

type issueTokenResponse struct {
	Token     string           `json:"token"`
	Actor     engagement.Actor `json:"actor"`
	ExpiresAt string           `json:"expiresAt"`
}

func (s *Server) me(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "UNAUTHORIZED", "missing auth")
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"actor": actor})
}

// issueToken lets operators mint tokens for parties and integrations.
func (s *Server) issueToken(w http.ResponseWriter, r *http.Request) {
	var req issueTokenRequest
	if err := decodeBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", err.Error())
		return
	}
	role, err := engagement.ParseActorRole(req.Role)
	if err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", err.Error())
		return
	}
	actor := engagement.Actor{Role: role, ID: req.ID}
	token, exp, err := s.authSvc.Issue(actor)
	if err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", err.Error())
		return
	}
	issuer, _ := actorFromContext(r.Context())
	s.logger.Info().Str("issued_by", issuer.String()).Str("actor", actor.String()).Msg("token issued over api")
	respondJSON(w, http.StatusCreated, issueTokenResponse{
		Token:     token,
		Actor:     actor,
		ExpiresAt: exp.UTC().Format(time.RFC3339),
	})
}
