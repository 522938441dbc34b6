package server

import (
	"encoding/json"
	"net/http"
	"strings"

	autherrors "github.com/ggrighi15/fusione-dev-sub001/internal/errors"
)

const contentTypeJSON = "application/json"

// maxBodyBytes caps JSON and form request bodies.
const maxBodyBytes = 1 << 20

type errorResponse struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", contentTypeJSON)
	w.WriteHeader(status)
	if v == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(v)
}

func writeJSONError(w http.ResponseWriter, code, description string, status int) {
	if code == "invalid_client" {
		w.Header().Set("WWW-Authenticate", `Basic realm="oauth2"`)
	}
	writeJSON(w, status, errorResponse{Error: code, ErrorDescription: description})
}

// writeError maps err onto the error taxonomy. Internal detail is logged, never returned.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := autherrors.HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
	} else {
		s.logger.Debug().Err(err).Str("path", r.URL.Path).Msg("request rejected")
	}
	writeJSONError(w, autherrors.Code(err), publicMessage(err), status)
}

func publicMessage(err error) string {
	for _, known := range []error{
		autherrors.ErrTransient,
		autherrors.ErrInvalidClient,
		autherrors.ErrRedirectMismatch,
		autherrors.ErrInvalidRedirect,
		autherrors.ErrInvalidScope,
		autherrors.ErrInvalidGrant,
		autherrors.ErrInvalidCredentials,
		autherrors.ErrTwoFactorRequired,
		autherrors.ErrTwoFactorInvalid,
		autherrors.ErrInvalidToken,
		autherrors.ErrPermissionDenied,
		autherrors.ErrNotFound,
		autherrors.ErrConflict,
	} {
		if autherrors.Is(err, known) {
			return known.Error()
		}
	}
	if autherrors.Is(err, autherrors.ErrInvalidRequest) {
		// Validation messages are written for the caller.
		return stripOperationPrefixes(err.Error())
	}
	return "internal server error"
}

// stripOperationPrefixes turns "[Service.Register] email is required: invalid request" into
// "email is required: invalid request".
func stripOperationPrefixes(msg string) string {
	parts := strings.Split(msg, ": ")
	kept := parts[:0]
	for _, part := range parts {
		if strings.HasPrefix(part, "[") {
			if end := strings.Index(part, "] "); end >= 0 {
				part = part[end+2:]
			} else if strings.HasSuffix(part, "]") {
				continue
			}
		}
		kept = append(kept, part)
	}
	return strings.Join(kept, ": ")
}

// decodeJSON reads a bounded JSON body into v. Unknown fields are rejected.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return autherrors.Wrapf(autherrors.ErrInvalidRequest, "malformed JSON body")
	}
	return nil
}

func parseForm(w http.ResponseWriter, r *http.Request) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := r.ParseForm(); err != nil {
		return autherrors.Wrapf(autherrors.ErrInvalidRequest, "malformed form body")
	}
	return nil
}
