package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	appAuth "github.com/dinesh-wex/wex-platform-2026-sub001/internal/application/auth"
	"github.com/dinesh-wex/wex-platform-2026-sub001/internal/application/lifecycle"
	"github.com/dinesh-wex/wex-platform-2026-sub001/internal/application/timeline"
	"github.com/dinesh-wex/wex-platform-2026-sub001/internal/domain/engagement"
	"github.com/dinesh-wex/wex-platform-2026-sub001/internal/infrastructure/sse"
)

// Options tunes the router. Zero values fall back to defaults.
type Options struct {
	RateLimit       int64
	RateLimitPeriod time.Duration
	RequestTimeout  time.Duration
	MetricsHandler  http.Handler
}

// Server holds dependencies for HTTP handlers.
type Server struct {
	lifecycleSvc *lifecycle.Service
	timelineSvc  *timeline.Service
	authSvc      *appAuth.Service
	sseHub       *sse.Hub
	opts         Options
	logger       zerolog.Logger
}

func NewServer(
	lifecycleSvc *lifecycle.Service,
	timelineSvc *timeline.Service,
	authSvc *appAuth.Service,
	sseHub *sse.Hub,
	opts Options,
	logger zerolog.Logger,
) *Server {
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 30 * time.Second
	}
	if opts.MetricsHandler == nil {
		opts.MetricsHandler = promhttp.Handler()
	}
	return &Server{
		lifecycleSvc: lifecycleSvc,
		timelineSvc:  timelineSvc,
		authSvc:      authSvc,
		sseHub:       sseHub,
		opts:         opts,
		logger:       logger.With().Str("service", "http").Logger(),
	}
}

// Router builds the HTTP router.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.healthz)
	r.Handle("/metrics", s.opts.MetricsHandler)

	r.Route("/v1", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(s.requireAuth)
			r.Use(s.rateLimit(s.opts.RateLimit, s.opts.RateLimitPeriod))

			// Streams outlive the request timeout.
			r.Get("/engagements/{engagementId}/stream", s.streamEngagement)

			r.Group(func(r chi.Router) {
				r.Use(middleware.Timeout(s.opts.RequestTimeout))

				r.Route("/auth", func(r chi.Router) {
					r.Get("/me", s.me)
					r.With(s.requireRole(engagement.RoleAdmin)).Post("/tokens", s.issueToken)
				})

				r.Route("/engagements", func(r chi.Router) {
					r.With(s.requireRole(engagement.RoleSystem, engagement.RoleAdmin)).Post("/", s.createEngagement)
					r.With(s.requireRole(engagement.RoleAdmin)).Get("/", s.listEngagements)
					r.Get("/{engagementId}", s.getEngagement)
					r.Get("/{engagementId}/hold", s.getRemainingHold)
					r.Get("/{engagementId}/timeline", s.getTimeline)
					r.With(s.requireRole(engagement.RoleAdmin)).Get("/{engagementId}/timeline/verify", s.verifyTimeline)
					r.Get("/{engagementId}/agreements", s.listAgreements)
					r.Get("/{engagementId}/agreements/{version}", s.getAgreement)
					r.Get("/{engagementId}/notifications", s.listNotifications)
					r.Put("/{engagementId}/admin", s.updateAdminOverlay)
					r.Post("/{engagementId}/transitions/{transition}", s.applyTransition)
				})
			})
		})
	})

	return r
}

func (s *Server) healthz(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"status":     "ok",
		"sseClients": s.sseHub.GetClientCount(),
	})
}

// Helpers
func respondJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, map[string]interface{}{
		"error":   code,
		"message": message,
	})
}

// respondDomainError maps lifecycle rejections onto HTTP statuses. Anything
// that is not a rejection is logged and reported as an internal error.
func (s *Server) respondDomainError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, lifecycle.ErrBusy) {
		respondError(w, http.StatusServiceUnavailable, "BUSY", err.Error())
		return
	}
	kind := engagement.KindOf(err)
	switch kind {
	case engagement.KindNotFound:
		respondError(w, http.StatusNotFound, string(kind), err.Error())
	case engagement.KindInvalidTransition, engagement.KindStaleState, engagement.KindRescheduleLimitExceeded:
		respondError(w, http.StatusConflict, string(kind), err.Error())
	case engagement.KindUnauthorized:
		respondError(w, http.StatusForbidden, string(kind), err.Error())
	case engagement.KindGuardNotMet:
		respondError(w, http.StatusUnprocessableEntity, string(kind), err.Error())
	case engagement.KindValidation:
		respondError(w, http.StatusBadRequest, string(kind), err.Error())
	default:
		s.logger.Error().Err(err).
			Str("request_id", middleware.GetReqID(r.Context())).
			Str("path", r.URL.Path).
			Msg("request failed")
		respondError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "internal error")
	}
}

func parseUUIDParam(r *http.Request, key string) (uuid.UUID, error) {
	val := chi.URLParam(r, key)
	return uuid.Parse(val)
}

func decodeBody(r *http.Request, v interface{}) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

func parseLimitOffset(r *http.Request, defaultLimit, maxLimit int) (int, int) {
	limit := defaultLimit
	offset := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		if l, err := strconv.Atoi(v); err == nil {
			limit = l
		}
	}
	if v := r.URL.Query().Get("offset"); v != "" {
		if o, err := strconv.Atoi(v); err == nil {
			offset = o
		}
	}
	if limit <= 0 {
		limit = defaultLimit
	}
	if maxLimit > 0 && limit > maxLimit {
		limit = maxLimit
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

// expectedVersion reads the optimistic concurrency token from If-Match.
// A missing header or "*" skips the check.
func expectedVersion(r *http.Request) (int64, error) {
	raw := strings.TrimSpace(r.Header.Get("If-Match"))
	raw = strings.TrimPrefix(raw, "W/")
	raw = strings.Trim(raw, `"`)
	if raw == "" || raw == "*" {
		return 0, nil
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || v < 0 {
		return 0, errors.New("If-Match must carry an engagement version")
	}
	return v, nil
}

func setETag(w http.ResponseWriter, version int64) {
	w.Header().Set("ETag", `"`+strconv.FormatInt(version, 10)+`"`)
}
