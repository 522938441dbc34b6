package server

import (
	"net/http"
	"net/url"

	"github.com/ggrighi15/fusione-dev-sub001/clients"
	autherrors "github.com/ggrighi15/fusione-dev-sub001/internal/errors"
	"github.com/ggrighi15/fusione-dev-sub001/internal/utils"
)

type authorizeRequest struct {
	ClientID    string `json:"client_id"`
	RedirectURI string `json:"redirect_uri"`
	Scope       string `json:"scope"`
	State       string `json:"state"`
}

type authorizeResponse struct {
	Code        string `json:"code"`
	State       string `json:"state,omitempty"`
	RedirectURI string `json:"redirect_uri"`
}

// RegisterClientHandler registers a client owned by the session user. The secret is only
// returned in this response.
func (s *Server) RegisterClientHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		session, _ := SessionFromContext(r.Context())

		var md clients.Metadata
		if err := decodeJSON(w, r, &md); err != nil {
			s.writeError(w, r, err)
			return
		}
		registered, err := s.svc.OAuth.RegisterClient(r.Context(), md, session.UserID)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, registered)
	}
}

// AuthorizeHandler issues a code to the session user. The caller redirects the browser to
// the returned redirect_uri.
func (s *Server) AuthorizeHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		session, _ := SessionFromContext(r.Context())

		var req authorizeRequest
		if err := decodeJSON(w, r, &req); err != nil {
			s.writeError(w, r, err)
			return
		}
		if req.ClientID == "" || req.RedirectURI == "" {
			writeJSONError(w, "invalid_request", "client_id and redirect_uri are required", http.StatusBadRequest)
			return
		}

		code, err := s.svc.OAuth.IssueAuthorizationCode(r.Context(), req.ClientID, session.UserID, utils.SplitScope(req.Scope), req.RedirectURI)
		if err != nil {
			s.writeError(w, r, err)
			return
		}

		redirect, err := url.Parse(req.RedirectURI)
		if err != nil {
			s.writeError(w, r, autherrors.Wrapf(autherrors.ErrInvalidRedirect, "unparseable redirect URI"))
			return
		}
		query := redirect.Query()
		query.Set("code", code)
		if req.State != "" {
			query.Set("state", req.State)
		}
		redirect.RawQuery = query.Encode()

		writeJSON(w, http.StatusOK, authorizeResponse{Code: code, State: req.State, RedirectURI: redirect.String()})
	}
}

// TokenHandler is the RFC 6749 token endpoint for the authorization_code and refresh_token
// grants.
func (s *Server) TokenHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := parseForm(w, r); err != nil {
			s.writeError(w, r, err)
			return
		}
		clientID, clientSecret, err := clientCredentials(r)
		if err != nil {
			s.writeError(w, r, err)
			return
		}

		var resp any
		switch grantType := r.PostFormValue("grant_type"); grantType {
		case clients.GrantTypeAuthorizationCode:
			code := r.PostFormValue("code")
			if code == "" {
				writeJSONError(w, "invalid_request", "code is required", http.StatusBadRequest)
				return
			}
			resp, err = s.svc.OAuth.ExchangeCode(r.Context(), code, clientID, clientSecret, r.PostFormValue("redirect_uri"))
		case clients.GrantTypeRefreshToken:
			refreshToken := r.PostFormValue("refresh_token")
			if refreshToken == "" {
				writeJSONError(w, "invalid_request", "refresh_token is required", http.StatusBadRequest)
				return
			}
			resp, err = s.svc.OAuth.RefreshAccessToken(r.Context(), refreshToken, clientID, clientSecret)
		case "":
			writeJSONError(w, "invalid_request", "grant_type is required", http.StatusBadRequest)
			return
		default:
			writeJSONError(w, "unsupported_grant_type", "grant type "+grantType+" is not supported", http.StatusBadRequest)
			return
		}
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, resp)
	}
}
