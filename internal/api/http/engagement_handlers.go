package httpapi

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/dinesh-wex/wex-platform-2026-sub001/internal/domain/engagement"
)

func (s *Server) createEngagement(w http.ResponseWriter, r *http.Request) {
	var in engagement.MatchInput
	if err := decodeBody(r, &in); err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", err.Error())
		return
	}
	actor, _ := actorFromContext(r.Context())
	e, err := s.lifecycleSvc.CreateEngagement(r.Context(), in, actor)
	if err != nil {
		s.respondDomainError(w, r, err)
		return
	}
	setETag(w, e.Version)
	w.Header().Set("Location", "/v1/engagements/"+e.EngagementID.String())
	respondJSON(w, http.StatusCreated, e)
}

func (s *Server) listEngagements(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var filter engagement.Filter
	if v := q.Get("status"); v != "" {
		st, err := engagement.ParseStatus(v)
		if err != nil {
			respondError(w, http.StatusBadRequest, "INVALID_PARAM", err.Error())
			return
		}
		filter.Status = &st
	}
	if v := q.Get("supplier_id"); v != "" {
		filter.SupplierID = &v
	}
	if v := q.Get("buyer_id"); v != "" {
		filter.BuyerID = &v
	}
	if v := q.Get("flagged"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			respondError(w, http.StatusBadRequest, "INVALID_PARAM", "flagged must be a boolean")
			return
		}
		filter.Flagged = &b
	}
	limit, offset := parseLimitOffset(r, 50, 200)
	items, err := s.lifecycleSvc.ListEngagements(r.Context(), filter, limit, offset)
	if err != nil {
		s.respondDomainError(w, r, err)
		return
	}
	if items == nil {
		items = []*engagement.Engagement{}
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"items":  items,
		"limit":  limit,
		"offset": offset,
	})
}

func (s *Server) getEngagement(w http.ResponseWriter, r *http.Request) {
	id, err := parseUUIDParam(r, "engagementId")
	if err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", "invalid engagementId")
		return
	}
	actor, _ := actorFromContext(r.Context())
	view, err := s.lifecycleSvc.GetEngagement(r.Context(), id, actor)
	if err != nil {
		s.respondDomainError(w, r, err)
		return
	}
	setETag(w, view.Version)
	respondJSON(w, http.StatusOK, view)
}

func (s *Server) getRemainingHold(w http.ResponseWriter, r *http.Request) {
	id, err := parseUUIDParam(r, "engagementId")
	if err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", "invalid engagementId")
		return
	}
	actor, _ := actorFromContext(r.Context())
	// Visibility check; the hold itself is read without the actor.
	if _, err := s.lifecycleSvc.GetEngagement(r.Context(), id, actor); err != nil {
		s.respondDomainError(w, r, err)
		return
	}
	left, err := s.lifecycleSvc.GetRemainingHold(r.Context(), id)
	if err != nil {
		s.respondDomainError(w, r, err)
		return
	}
	resp := map[string]interface{}{"armed": left != nil}
	if left != nil {
		resp["remainingSeconds"] = left.Seconds()
	}
	respondJSON(w, http.StatusOK, resp)
}

func (s *Server) listAgreements(w http.ResponseWriter, r *http.Request) {
	id, err := parseUUIDParam(r, "engagementId")
	if err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", "invalid engagementId")
		return
	}
	actor, _ := actorFromContext(r.Context())
	if _, err := s.lifecycleSvc.GetEngagement(r.Context(), id, actor); err != nil {
		s.respondDomainError(w, r, err)
		return
	}
	items, err := s.lifecycleSvc.ListAgreements(r.Context(), id)
	if err != nil {
		s.respondDomainError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"items": items})
}

func (s *Server) getAgreement(w http.ResponseWriter, r *http.Request) {
	id, err := parseUUIDParam(r, "engagementId")
	if err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", "invalid engagementId")
		return
	}
	version := 0
	if raw := chi.URLParam(r, "version"); raw != "current" {
		version, err = strconv.Atoi(raw)
		if err != nil || version <= 0 {
			respondError(w, http.StatusBadRequest, "INVALID_PARAM", "version must be a positive integer or current")
			return
		}
	}
	actor, _ := actorFromContext(r.Context())
	if _, err := s.lifecycleSvc.GetEngagement(r.Context(), id, actor); err != nil {
		s.respondDomainError(w, r, err)
		return
	}
	agr, err := s.lifecycleSvc.GetAgreement(r.Context(), id, version)
	if err != nil {
		s.respondDomainError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, agr)
}

func (s *Server) listNotifications(w http.ResponseWriter, r *http.Request) {
	id, err := parseUUIDParam(r, "engagementId")
	if err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", "invalid engagementId")
		return
	}
	actor, _ := actorFromContext(r.Context())
	items, err := s.lifecycleSvc.ListNotifications(r.Context(), id, actor)
	if err != nil {
		s.respondDomainError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"items": items})
}

func (s *Server) updateAdminOverlay(w http.ResponseWriter, r *http.Request) {
	id, err := parseUUIDParam(r, "engagementId")
	if err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", "invalid engagementId")
		return
	}
	var overlay engagement.AdminOverlay
	if err := decodeBody(r, &overlay); err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", err.Error())
		return
	}
	actor, _ := actorFromContext(r.Context())
	e, err := s.lifecycleSvc.UpdateAdminOverlay(r.Context(), id, actor, overlay)
	if err != nil {
		s.respondDomainError(w, r, err)
		return
	}
	setETag(w, e.Version)
	respondJSON(w, http.StatusOK, e)
}
