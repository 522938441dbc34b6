package server

import (
	"net/http"
)

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
	ClientID     string `json:"client_id,omitempty"`
	ClientSecret string `json:"client_secret,omitempty"`
}

// RefreshTokenHandler is the JSON form of the refresh_token grant. Client credentials come
// from Basic auth or the body.
func (s *Server) RefreshTokenHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req refreshRequest
		if err := decodeJSON(w, r, &req); err != nil {
			s.writeError(w, r, err)
			return
		}
		clientID, clientSecret, ok, err := basicCredentials(r)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		if !ok {
			clientID, clientSecret = req.ClientID, req.ClientSecret
		}
		if clientID == "" {
			writeJSONError(w, "invalid_client", "client authentication required", http.StatusUnauthorized)
			return
		}
		if req.RefreshToken == "" {
			writeJSONError(w, "invalid_request", "refresh_token is required", http.StatusBadRequest)
			return
		}

		resp, err := s.svc.OAuth.RefreshAccessToken(r.Context(), req.RefreshToken, clientID, clientSecret)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

// RevokeTokenHandler implements RFC 7009 for refresh tokens. Unknown tokens still get 200.
func (s *Server) RevokeTokenHandler() http.HandlerFunc {
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
		tokenStr := r.PostFormValue("token")
		if tokenStr == "" {
			writeJSONError(w, "invalid_request", "token is required", http.StatusBadRequest)
			return
		}
		if err := s.svc.OAuth.RevokeRefreshToken(r.Context(), tokenStr, clientID, clientSecret); err != nil {
			s.writeError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusOK)
	}
}

// IntrospectHandler implements RFC 7662. The caller authenticates as a client; dead or
// unknown tokens answer {"active": false}.
func (s *Server) IntrospectHandler() http.HandlerFunc {
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
		tokenStr := r.PostFormValue("token")
		if tokenStr == "" {
			writeJSONError(w, "invalid_request", "token is required", http.StatusBadRequest)
			return
		}

		result, err := s.svc.OAuth.Introspect(r.Context(), tokenStr, r.PostFormValue("token_type_hint"), clientID, clientSecret)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, result)
	}
}

// JWKSHandler publishes the access token verification keys. With HMAC signing there is
// nothing to publish and the route answers 404.
func (s *Server) JWKSHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		jwks, err := s.svc.OAuth.KeySet()
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		w.Header().Set("Cache-Control", "public, max-age=300")
		w.Header().Del("Pragma")
		writeJSON(w, http.StatusOK, jwks)
	}
}
