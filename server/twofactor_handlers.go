package server

import (
	"net/http"

	autherrors "github.com/ggrighi15/fusione-dev-sub001/internal/errors"
)

type twoFactorCodeRequest struct {
	Code string `json:"code"`
}

type twoFactorVerifyResponse struct {
	Enabled bool `json:"enabled"`
}

type backupCodesResponse struct {
	BackupCodes []string `json:"backup_codes"`
}

// TwoFactorSetupHandler starts enrolment for the session user. The secret and backup codes
// are only returned here.
func (s *Server) TwoFactorSetupHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		session, _ := SessionFromContext(r.Context())

		user, err := s.svc.Users.GetByID(r.Context(), session.UserID)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		result, err := s.svc.TwoFactor.Setup(r.Context(), user.ID, user.Email)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, result)
	}
}

// TwoFactorVerifyHandler confirms enrolment with a TOTP code.
func (s *Server) TwoFactorVerifyHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		session, _ := SessionFromContext(r.Context())

		code, ok := s.readCode(w, r)
		if !ok {
			return
		}
		verified, err := s.svc.TwoFactor.Verify(r.Context(), session.UserID, code)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		if !verified {
			s.writeError(w, r, autherrors.ErrTwoFactorInvalid)
			return
		}
		writeJSON(w, http.StatusOK, twoFactorVerifyResponse{Enabled: true})
	}
}

// TwoFactorDisableHandler turns two-factor off after one more successful code.
func (s *Server) TwoFactorDisableHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		session, _ := SessionFromContext(r.Context())

		code, ok := s.readCode(w, r)
		if !ok {
			return
		}
		if !s.confirmTwoFactor(w, r, session.UserID, code) {
			return
		}
		if err := s.svc.TwoFactor.Disable(r.Context(), session.UserID); err != nil {
			s.writeError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// TwoFactorBackupCodesHandler replaces every backup code after one more successful code.
func (s *Server) TwoFactorBackupCodesHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		session, _ := SessionFromContext(r.Context())

		code, ok := s.readCode(w, r)
		if !ok {
			return
		}
		if !s.confirmTwoFactor(w, r, session.UserID, code) {
			return
		}
		codes, err := s.svc.TwoFactor.RegenerateBackupCodes(r.Context(), session.UserID)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, backupCodesResponse{BackupCodes: codes})
	}
}

func (s *Server) TwoFactorStatusHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		session, _ := SessionFromContext(r.Context())

		status, err := s.svc.TwoFactor.Status(r.Context(), session.UserID)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, status)
	}
}

func (s *Server) readCode(w http.ResponseWriter, r *http.Request) (string, bool) {
	var req twoFactorCodeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return "", false
	}
	if req.Code == "" {
		writeJSONError(w, "invalid_request", "code is required", http.StatusBadRequest)
		return "", false
	}
	return req.Code, true
}

// confirmTwoFactor requires 2FA to be enabled and code to pass the login check.
func (s *Server) confirmTwoFactor(w http.ResponseWriter, r *http.Request, userID, code string) bool {
	status, err := s.svc.TwoFactor.Status(r.Context(), userID)
	if err != nil {
		s.writeError(w, r, err)
		return false
	}
	if !status.Enabled {
		writeJSONError(w, "invalid_request", "two-factor authentication is not enabled", http.StatusBadRequest)
		return false
	}
	ok, err := s.svc.TwoFactor.ValidateLogin(r.Context(), userID, code)
	if err != nil {
		s.writeError(w, r, err)
		return false
	}
	if !ok {
		s.writeError(w, r, autherrors.ErrTwoFactorInvalid)
		return false
	}
	return true
}
