package server

import (
	"context"
	"encoding/base64"
	"net"
	"net/http"
	"net/url"
	"strings"

	autherrors "github.com/ggrighi15/fusione-dev-sub001/internal/errors"
	"github.com/ggrighi15/fusione-dev-sub001/sessions"
)

// ContextKey is a custom type for context keys to avoid collisions
type ContextKey string

const (
	// ContextKeySession stores the validated *sessions.Session
	ContextKeySession ContextKey = "session"
	// ContextKeySessionToken stores the raw bearer token of the session
	ContextKeySessionToken ContextKey = "session_token"
)

// SessionFromContext returns the session put there by RequireSession.
func SessionFromContext(ctx context.Context) (*sessions.Session, bool) {
	session, ok := ctx.Value(ContextKeySession).(*sessions.Session)
	return session, ok
}

func sessionTokenFromContext(ctx context.Context) string {
	tokenStr, _ := ctx.Value(ContextKeySessionToken).(string)
	return tokenStr
}

// RequireSession validates the bearer session token and puts the session in the request
// context.
func (s *Server) RequireSession() func(http.HandlerFunc) http.HandlerFunc {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			tokenStr := bearerToken(r)
			if tokenStr == "" {
				w.Header().Set("WWW-Authenticate", `Bearer realm="session"`)
				writeJSONError(w, "invalid_token", "missing bearer session token", http.StatusUnauthorized)
				return
			}

			session, err := s.svc.Sessions.Validate(r.Context(), tokenStr)
			if err != nil {
				s.writeError(w, r, err)
				return
			}
			if session == nil {
				w.Header().Set("WWW-Authenticate", `Bearer realm="session", error="invalid_token"`)
				writeJSONError(w, "invalid_token", "session is unknown or expired", http.StatusUnauthorized)
				return
			}

			ctx := context.WithValue(r.Context(), ContextKeySession, session)
			ctx = context.WithValue(ctx, ContextKeySessionToken, tokenStr)
			next(w, r.WithContext(ctx))
		}
	}
}

// RequirePermission must be chained after RequireSession. A store failure while checking
// is reported as unavailable, never as a grant.
func (s *Server) RequirePermission(permission string) func(http.HandlerFunc) http.HandlerFunc {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			session, ok := SessionFromContext(r.Context())
			if !ok {
				writeJSONError(w, "invalid_token", "session required", http.StatusUnauthorized)
				return
			}
			if err := s.svc.Access.Require(r.Context(), session.UserID, permission); err != nil {
				s.writeError(w, r, err)
				return
			}
			next(w, r)
		}
	}
}

func bearerToken(r *http.Request) string {
	scheme, value, ok := strings.Cut(r.Header.Get("Authorization"), " ")
	if !ok || !strings.EqualFold(scheme, "bearer") {
		return ""
	}
	return strings.TrimSpace(value)
}

// basicCredentials reads HTTP Basic client credentials. They are form-urlencoded per
// RFC 6749 section 2.3.1. ok is false when the request carries no Basic header.
func basicCredentials(r *http.Request) (clientID, clientSecret string, ok bool, err error) {
	scheme, value, found := strings.Cut(r.Header.Get("Authorization"), " ")
	if !found || !strings.EqualFold(scheme, "basic") {
		return "", "", false, nil
	}
	malformed := autherrors.Wrapf(autherrors.ErrInvalidClient, "malformed basic credentials")
	decoded, err := base64.StdEncoding.DecodeString(strings.TrimSpace(value))
	if err != nil {
		return "", "", true, malformed
	}
	rawID, rawSecret, found := strings.Cut(string(decoded), ":")
	if !found {
		return "", "", true, malformed
	}
	if clientID, err = url.QueryUnescape(rawID); err != nil {
		return "", "", true, malformed
	}
	if clientSecret, err = url.QueryUnescape(rawSecret); err != nil {
		return "", "", true, malformed
	}
	return clientID, clientSecret, true, nil
}

// clientCredentials prefers Basic auth and falls back to the client_id and client_secret
// form fields. The form must already be parsed.
func clientCredentials(r *http.Request) (clientID, clientSecret string, err error) {
	clientID, clientSecret, ok, err := basicCredentials(r)
	if ok || err != nil {
		return clientID, clientSecret, err
	}
	clientID = r.FormValue("client_id")
	if clientID == "" {
		return "", "", autherrors.Wrapf(autherrors.ErrInvalidClient, "client authentication required")
	}
	return clientID, r.FormValue("client_secret"), nil
}

// clientIP returns the caller address. X-Forwarded-For is only read when the server is
// configured to trust its proxy, and then the rightmost entry is used.
func (s *Server) clientIP(r *http.Request) string {
	if s.config.App.TrustProxy {
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			ips := strings.Split(xff, ",")
			if ip := strings.TrimSpace(ips[len(ips)-1]); net.ParseIP(ip) != nil {
				return ip
			}
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
