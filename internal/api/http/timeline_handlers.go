package httpapi

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/dinesh-wex/wex-platform-2026-sub001/internal/application/timeline"
	"github.com/dinesh-wex/wex-platform-2026-sub001/internal/domain/engagement"
	"github.com/dinesh-wex/wex-platform-2026-sub001/internal/domain/notification"
)

func (s *Server) getTimeline(w http.ResponseWriter, r *http.Request) {
	id, err := parseUUIDParam(r, "engagementId")
	if err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", "invalid engagementId")
		return
	}
	limit, _ := parseLimitOffset(r, 50, 500)
	params := timeline.ListParams{Limit: limit}
	if c := r.URL.Query().Get("cursor"); c != "" {
		params.Cursor = &c
	}
	actor, _ := actorFromContext(r.Context())
	page, err := s.timelineSvc.List(r.Context(), id, actor, params)
	if err != nil {
		s.respondDomainError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, page)
}

func (s *Server) verifyTimeline(w http.ResponseWriter, r *http.Request) {
	id, err := parseUUIDParam(r, "engagementId")
	if err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", "invalid engagementId")
		return
	}
	res, err := s.timelineSvc.Verify(r.Context(), id)
	if err != nil {
		s.respondDomainError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, res)
}

// streamEngagement follows one engagement over SSE. Clients that reconnect
// with Last-Event-ID (engagementId:sequence) first receive what they missed.
func (s *Server) streamEngagement(w http.ResponseWriter, r *http.Request) {
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
	flusher, ok := w.(http.Flusher)
	if !ok {
		respondError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "streaming not supported")
		return
	}

	clientID := uuid.NewString()
	userID := actor.String()
	client := notification.NewSSEClient(clientID, &userID, []string{notification.EngagementGroup(id)})
	s.sseHub.Register(client)
	defer s.sseHub.Unregister(clientID)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(": connected\n\n"))
	flusher.Flush()

	ctx := r.Context()
	if after, ok := lastEventSequence(r, id); ok {
		events, err := s.timelineSvc.All(ctx, id, actor)
		if err != nil {
			s.logger.Warn().Err(err).Str("engagement_id", id.String()).Msg("failed to replay timeline")
		}
		for _, ev := range events {
			if ev.Sequence <= after {
				continue
			}
			writeSSE(w, replayMessage(ev))
		}
		flusher.Flush()
	}

	for {
		select {
		case msg := <-client.MessageChan:
			if msg == nil {
				return
			}
			writeSSE(w, msg)
			flusher.Flush()
		case <-ctx.Done():
			return
		}
	}
}

func lastEventSequence(r *http.Request, id uuid.UUID) (int64, bool) {
	raw := r.Header.Get("Last-Event-ID")
	if raw == "" {
		return 0, false
	}
	prefix := id.String() + ":"
	if !strings.HasPrefix(raw, prefix) {
		return 0, false
	}
	seq, err := strconv.ParseInt(strings.TrimPrefix(raw, prefix), 10, 64)
	if err != nil {
		return 0, false
	}
	return seq, true
}

func replayMessage(ev *engagement.Event) *notification.SSEMessage {
	data, _ := json.Marshal(map[string]interface{}{
		"engagementId": ev.EngagementID,
		"sequence":     ev.Sequence,
		"transition":   ev.Transition,
		"actor":        ev.Actor,
		"fromStatus":   ev.FromStatus,
		"toStatus":     ev.ToStatus,
		"payload":      ev.Payload,
		"createdAt":    ev.CreatedAt,
	})
	id := ev.EngagementID.String() + ":" + strconv.FormatInt(ev.Sequence, 10)
	return notification.NewSSEMessage(id, "engagement.transition", data)
}

// writeSSE frames one message. Heartbeats carry no id so they never move a
// client's Last-Event-ID.
func writeSSE(w http.ResponseWriter, msg *notification.SSEMessage) {
	if msg.ID != "" && msg.Event != "heartbeat" {
		_, _ = w.Write([]byte("id: " + msg.ID + "\n"))
	}
	if msg.Event != "" {
		_, _ = w.Write([]byte("event: " + msg.Event + "\n"))
	}
	data := msg.Data
	if len(data) == 0 {
		data = json.RawMessage("{}")
	}
	_, _ = w.Write([]byte("data: "))
	_, _ = w.Write(data)
	_, _ = w.Write([]byte("\n\n"))
}
