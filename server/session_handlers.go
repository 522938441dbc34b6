package server

import (
	"net/http"
	"time"

	"github.com/ggrighi15/fusione-dev-sub001/auth"
	autherrors "github.com/ggrighi15/fusione-dev-sub001/internal/errors"
	"github.com/ggrighi15/fusione-dev-sub001/sessions"
)

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	// TOTP carries a TOTP or backup code once two-factor is enabled.
	TOTP string `json:"totp,omitempty"`
}

type loginResponse struct {
	UserID       string    `json:"user_id"`
	SessionID    string    `json:"session_id"`
	SessionToken string    `json:"session_token"`
	ExpiresAt    time.Time `json:"expires_at"`
}

type logoutRequest struct {
	RefreshToken string `json:"refresh_token,omitempty"`
}

type createSessionRequest struct {
	UserID    string `json:"user_id"`
	IP        string `json:"ip,omitempty"`
	UserAgent string `json:"user_agent,omitempty"`
}

type validateSessionResponse struct {
	Valid bool `json:"valid"`
	*sessions.Session
}

// LoginHandler checks the password and, for users with two-factor enabled, the code in
// the same request.
func (s *Server) LoginHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req loginRequest
		if err := decodeJSON(w, r, &req); err != nil {
			s.writeError(w, r, err)
			return
		}
		result, err := s.svc.Auth.Login(r.Context(), auth.LoginRequest{
			Email:     req.Email,
			Password:  req.Password,
			TOTP:      req.TOTP,
			IP:        s.clientIP(r),
			UserAgent: r.UserAgent(),
		})
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, loginResponse{
			UserID:       result.UserID,
			SessionID:    result.Session.SessionID,
			SessionToken: result.Session.SessionToken,
			ExpiresAt:    result.Session.ExpiresAt,
		})
	}
}

// LogoutHandler ends the bearer session. An optional refresh token of the same user is
// revoked with it.
func (s *Server) LogoutHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req logoutRequest
		if r.ContentLength != 0 {
			if err := decodeJSON(w, r, &req); err != nil {
				s.writeError(w, r, err)
				return
			}
		}
		if err := s.svc.Auth.Logout(r.Context(), sessionTokenFromContext(r.Context()), req.RefreshToken); err != nil {
			s.writeError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// CreateSessionHandler opens a session for another user on behalf of a trusted caller.
func (s *Server) CreateSessionHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req createSessionRequest
		if err := decodeJSON(w, r, &req); err != nil {
			s.writeError(w, r, err)
			return
		}
		if req.UserID == "" {
			writeJSONError(w, "invalid_request", "user_id is required", http.StatusBadRequest)
			return
		}
		if _, err := s.svc.Users.GetByID(r.Context(), req.UserID); err != nil {
			s.writeError(w, r, err)
			return
		}

		ip, userAgent := req.IP, req.UserAgent
		if ip == "" {
			ip = s.clientIP(r)
		}
		if userAgent == "" {
			userAgent = r.UserAgent()
		}
		created, err := s.svc.Sessions.Create(r.Context(), req.UserID, ip, userAgent)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, created)
	}
}

// ValidateSessionHandler reports whether the session token in the path is live. Unknown
// and expired tokens are a valid:false answer, not an error.
func (s *Server) ValidateSessionHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tokenStr := r.PathValue("token")
		if tokenStr == "" {
			s.writeError(w, r, autherrors.Wrapf(autherrors.ErrInvalidRequest, "session token is required"))
			return
		}
		session, err := s.svc.Sessions.Validate(r.Context(), tokenStr)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, validateSessionResponse{Valid: session != nil, Session: session})
	}
}
