package httpapi

import (
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/dinesh-wex/wex-platform-2026-sub001/internal/application/lifecycle"
	"github.com/dinesh-wex/wex-platform-2026-sub001/internal/domain/agreement"
	"github.com/dinesh-wex/wex-platform-2026-sub001/internal/domain/engagement"
	"github.com/dinesh-wex/wex-platform-2026-sub001/internal/domain/onboarding"
	"github.com/dinesh-wex/wex-platform-2026-sub001/internal/domain/pricing"
	"github.com/dinesh-wex/wex-platform-2026-sub001/internal/domain/tour"
)

// transitionRequest is the body shared by every transition. Each transition
// reads only the fields it needs.
type transitionRequest struct {
	Reason    string            `json:"reason,omitempty"`
	TourTime  *time.Time        `json:"tourTime,omitempty"`
	Confirmed *bool             `json:"confirmed,omitempty"`
	Outcome   string            `json:"outcome,omitempty"`
	Role      string            `json:"role,omitempty"`
	Item      string            `json:"item,omitempty"`
	BuyerID   string            `json:"buyerId,omitempty"`
	Pricing   *pricing.Snapshot `json:"pricing,omitempty"`
}

type transitionResponse struct {
	Engagement *engagement.Engagement `json:"engagement"`
	Event      *engagement.Event      `json:"event,omitempty"`
	Agreement  *agreement.Agreement   `json:"agreement,omitempty"`
	Changed    bool                   `json:"changed"`
}

func (s *Server) applyTransition(w http.ResponseWriter, r *http.Request) {
	id, err := parseUUIDParam(r, "engagementId")
	if err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", "invalid engagementId")
		return
	}
	expected, err := expectedVersion(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", err.Error())
		return
	}
	var req transitionRequest
	if err := decodeBody(r, &req); err != nil && !errors.Is(err, io.EOF) {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", err.Error())
		return
	}
	actor, _ := actorFromContext(r.Context())
	t := engagement.Transition(chi.URLParam(r, "transition"))
	ctx := r.Context()

	var res *lifecycle.Result
	switch t {
	case engagement.TransitionCreate:
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", "use POST /v1/engagements to create")
		return
	case engagement.TransitionSendAgreement:
		res, err = s.lifecycleSvc.SendAgreement(ctx, id, actor)
	case engagement.TransitionReissueAgreement:
		res, err = s.lifecycleSvc.ReissueAgreement(ctx, id, actor, req.Pricing)
	case engagement.TransitionConfirmTour:
		confirmed := req.Confirmed == nil || *req.Confirmed
		res, err = s.lifecycleSvc.ConfirmTour(ctx, id, actor, confirmed, req.TourTime, req.Reason, expected)
	default:
		cmd := lifecycle.Command{
			EngagementID:    id,
			Transition:      t,
			Actor:           actor,
			ExpectedVersion: expected,
			Reason:          req.Reason,
			TourTime:        req.TourTime,
			Outcome:         tour.Outcome(req.Outcome),
			BuyerID:         req.BuyerID,
			Pricing:         req.Pricing,
		}
		if req.Role != "" {
			if cmd.Role, err = agreement.ParseRole(req.Role); err != nil {
				respondError(w, http.StatusBadRequest, "INVALID_PARAM", err.Error())
				return
			}
		}
		if req.Item != "" {
			if cmd.Item, err = onboarding.ParseItem(req.Item); err != nil {
				respondError(w, http.StatusBadRequest, "INVALID_PARAM", err.Error())
				return
			}
		}
		res, err = s.lifecycleSvc.Apply(ctx, cmd)
	}
	if err != nil {
		s.respondDomainError(w, r, err)
		return
	}

	setETag(w, res.Engagement.Version)
	respondJSON(w, http.StatusOK, transitionResponse{
		Engagement: res.Engagement,
		Event:      res.Event,
		Agreement:  res.Agreement,
		Changed:    res.Changed(),
	})
}
