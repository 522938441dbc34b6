package server

import (
	"net/http"
	"strconv"
	"time"

	"github.com/ggrighi15/fusione-dev-sub001/audit"
	autherrors "github.com/ggrighi15/fusione-dev-sub001/internal/errors"
)

const (
	defaultEventsLimit = 100
	maxEventsLimit     = 1000
)

type securityEventsResponse struct {
	Events []*audit.Entry `json:"events"`
}

// SecurityEventsHandler lists audit entries, newest first. Accepts user_id, event_type,
// category, since and until (RFC 3339) and limit.
func (s *Server) SecurityEventsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		filter, err := parseEventFilter(r)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		entries, err := s.svc.Auditor.Recent(r.Context(), filter)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		if entries == nil {
			entries = []*audit.Entry{}
		}
		writeJSON(w, http.StatusOK, securityEventsResponse{Events: entries})
	}
}

func parseEventFilter(r *http.Request) (audit.Filter, error) {
	q := r.URL.Query()
	filter := audit.Filter{
		UserID:    q.Get("user_id"),
		EventType: q.Get("event_type"),
		Category:  audit.Category(q.Get("category")),
		Limit:     defaultEventsLimit,
	}

	var err error
	if filter.Since, err = parseTimeParam(q.Get("since")); err != nil {
		return audit.Filter{}, autherrors.Wrapf(autherrors.ErrInvalidRequest, "since must be RFC 3339")
	}
	if filter.Until, err = parseTimeParam(q.Get("until")); err != nil {
		return audit.Filter{}, autherrors.Wrapf(autherrors.ErrInvalidRequest, "until must be RFC 3339")
	}
	if raw := q.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 1 {
			return audit.Filter{}, autherrors.Wrapf(autherrors.ErrInvalidRequest, "limit must be a positive integer")
		}
		filter.Limit = min(limit, maxEventsLimit)
	}
	return filter, nil
}

func parseTimeParam(raw string) (time.Time, error) {
	if raw == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339, raw)
}

// HealthHandler reports whether the backing store answers.
func (s *Server) HealthHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.svc.Health != nil {
			if err := s.svc.Health(r.Context()); err != nil {
				s.logger.Warn().Err(err).Msg("health check failed")
				writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
				return
			}
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}
