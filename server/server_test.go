package server_test

import (
	"bytes"
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"encoding/base64"
	"encoding/json"
	"errors"
	"math/big"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
	"github.com/stretchr/testify/require"
	xoauth2 "golang.org/x/oauth2"

	"github.com/ggrighi15/fusione-dev-sub001/auth"
	"github.com/ggrighi15/fusione-dev-sub001/internal/app"
	"github.com/ggrighi15/fusione-dev-sub001/internal/config"
	"github.com/ggrighi15/fusione-dev-sub001/server"
	"github.com/ggrighi15/fusione-dev-sub001/storage"
	"github.com/ggrighi15/fusione-dev-sub001/token"
)

const (
	adminEmail    = "admin@example.com"
	adminPassword = "Adm1nistrator"
	userEmail     = "alice@example.com"
	userPassword  = "Corr3ctHorse"
	redirectURI   = "http://localhost:3000/callback"
	allowedOrigin = "https://app.example"
)

type testFixture struct {
	app    *app.App
	srv    *httptest.Server
	userID string
}

func setupTestFixture(t *testing.T, options ...server.Option) *testFixture {
	t.Helper()
	return setupTestFixtureWithConfig(t, nil, options...)
}

func setupTestFixtureWithConfig(t *testing.T, configure func(*config.Config), options ...server.Option) *testFixture {
	t.Helper()

	c := config.Default()
	c.Bootstrap = config.Bootstrap{AdminEmail: adminEmail, AdminPassword: adminPassword}
	c.Cors.Origins = []string{allowedOrigin}
	if configure != nil {
		configure(&c)
	}

	a, err := app.New(c, storage.Memory())
	require.NoError(t, err)
	_, err = a.Bootstrap(context.Background(), c.Bootstrap)
	require.NoError(t, err)

	user, err := a.Auth.Register(context.Background(), auth.RegisterRequest{Email: userEmail, Password: userPassword})
	require.NoError(t, err)

	options = append([]server.Option{server.WithRateLimiter(server.NewRateLimiter(1000, 1000))}, options...)
	srv := httptest.NewServer(server.New(c, a.Services(), options...))
	t.Cleanup(srv.Close)

	return &testFixture{app: a, srv: srv, userID: user.ID}
}

// do sends body as JSON, or as a form when it is url.Values.
func (f *testFixture) do(t *testing.T, method, path, bearer string, body any) (*http.Response, map[string]any) {
	t.Helper()

	var (
		reader      *bytes.Reader
		contentType string
	)
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case url.Values:
		reader = bytes.NewReader([]byte(b.Encode()))
		contentType = "application/x-www-form-urlencoded"
	default:
		raw, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
		contentType = "application/json"
	}

	req, err := http.NewRequest(method, f.srv.URL+path, reader)
	require.NoError(t, err)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	resp, err := f.srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var decoded map[string]any
	if resp.StatusCode != http.StatusNoContent {
		_ = json.NewDecoder(resp.Body).Decode(&decoded)
	}
	return resp, decoded
}

func (f *testFixture) login(t *testing.T, email, password string) string {
	t.Helper()
	resp, body := f.do(t, http.MethodPost, server.RouteLogin, "", map[string]string{"email": email, "password": password})
	require.Equal(t, http.StatusOK, resp.StatusCode, body)
	return body["session_token"].(string)
}

func (f *testFixture) registerClient(t *testing.T, session string, grantTypes ...string) (string, string) {
	t.Helper()
	resp, body := f.do(t, http.MethodPost, server.RouteOAuth2Clients, session, map[string]any{
		"name":            "web app",
		"redirect_uris":   []string{redirectURI},
		"scopes":          []string{"read", "write"},
		"grant_types":     grantTypes,
		"is_confidential": true,
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode, body)
	return body["client_id"].(string), body["client_secret"].(string)
}

func (f *testFixture) authorize(t *testing.T, session, clientID string) string {
	t.Helper()
	resp, body := f.do(t, http.MethodPost, server.RouteOAuth2Authorize, session, map[string]string{
		"client_id":    clientID,
		"redirect_uri": redirectURI,
		"scope":        "read",
		"state":        "xyz",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode, body)
	return body["code"].(string)
}

func (f *testFixture) oauthConfig(clientID, clientSecret string) *xoauth2.Config {
	return &xoauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		RedirectURL:  redirectURI,
		Scopes:       []string{"read"},
		Endpoint: xoauth2.Endpoint{
			AuthURL:   f.srv.URL + server.RouteOAuth2Authorize,
			TokenURL:  f.srv.URL + server.RouteOAuth2Token,
			AuthStyle: xoauth2.AuthStyleInHeader,
		},
	}
}

func (f *testFixture) clientContext() context.Context {
	return context.WithValue(context.Background(), xoauth2.HTTPClient, f.srv.Client())
}

func TestLoginAndLogout(t *testing.T) {
	f := setupTestFixture(t)

	t.Run("wrong password", func(t *testing.T) {
		resp, body := f.do(t, http.MethodPost, server.RouteLogin, "", map[string]string{"email": userEmail, "password": "Wr0ngHorse"})
		require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
		require.Equal(t, "invalid_credentials", body["error"])
	})

	t.Run("malformed body", func(t *testing.T) {
		resp, body := f.do(t, http.MethodPost, server.RouteLogin, "", map[string]string{"email": userEmail, "password": userPassword, "extra": "x"})
		require.Equal(t, http.StatusBadRequest, resp.StatusCode)
		require.Equal(t, "invalid_request", body["error"])
	})

	t.Run("session lifecycle", func(t *testing.T) {
		session := f.login(t, userEmail, userPassword)

		resp, body := f.do(t, http.MethodGet, "/sessions/"+session+"/validate", "", nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		require.Equal(t, true, body["valid"])
		require.Equal(t, f.userID, body["user_id"])
		require.Equal(t, "no-store", resp.Header.Get("Cache-Control"))

		resp, _ = f.do(t, http.MethodPost, server.RouteLogout, session, nil)
		require.Equal(t, http.StatusNoContent, resp.StatusCode)

		resp, body = f.do(t, http.MethodGet, "/sessions/"+session+"/validate", "", nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		require.Equal(t, false, body["valid"])

		resp, body = f.do(t, http.MethodPost, server.RouteLogout, session, nil)
		require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
		require.Equal(t, "invalid_token", body["error"])
	})

	t.Run("missing bearer", func(t *testing.T) {
		resp, _ := f.do(t, http.MethodGet, server.RouteTwoFactorStatus, "", nil)
		require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
		require.NotEmpty(t, resp.Header.Get("WWW-Authenticate"))
	})
}

func TestAuthorizationCodeFlow(t *testing.T) {
	f := setupTestFixture(t)
	ctx := f.clientContext()
	session := f.login(t, userEmail, userPassword)
	clientID, clientSecret := f.registerClient(t, session)
	conf := f.oauthConfig(clientID, clientSecret)

	resp, body := f.do(t, http.MethodPost, server.RouteOAuth2Authorize, session, map[string]string{
		"client_id":    clientID,
		"redirect_uri": redirectURI,
		"state":        "xyz",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode, body)
	code := body["code"].(string)
	redirect, err := url.Parse(body["redirect_uri"].(string))
	require.NoError(t, err)
	require.Equal(t, code, redirect.Query().Get("code"))
	require.Equal(t, "xyz", redirect.Query().Get("state"))

	tok, err := conf.Exchange(ctx, code)
	require.NoError(t, err)
	require.Equal(t, "Bearer", tok.TokenType)
	require.NotEmpty(t, tok.RefreshToken)
	require.Equal(t, "read write", tok.Extra("scope"))

	claims, err := f.app.Codec.Verify(tok.AccessToken)
	require.NoError(t, err)
	require.Equal(t, f.userID, claims.Subject)
	require.Equal(t, clientID, claims.ClientID)

	t.Run("code is single use", func(t *testing.T) {
		_, err := conf.Exchange(ctx, code)
		var rerr *xoauth2.RetrieveError
		require.True(t, errors.As(err, &rerr))
		require.Equal(t, "invalid_grant", rerr.ErrorCode)
	})

	t.Run("refresh keeps the refresh token", func(t *testing.T) {
		refreshed, err := conf.TokenSource(ctx, &xoauth2.Token{RefreshToken: tok.RefreshToken}).Token()
		require.NoError(t, err)
		require.NotEmpty(t, refreshed.AccessToken)
		require.Equal(t, tok.RefreshToken, refreshed.RefreshToken)
	})

	t.Run("wrong secret", func(t *testing.T) {
		_, err := f.oauthConfig(clientID, "nope").Exchange(ctx, f.authorize(t, session, clientID))
		var rerr *xoauth2.RetrieveError
		require.True(t, errors.As(err, &rerr))
		require.Equal(t, "invalid_client", rerr.ErrorCode)
		require.Equal(t, http.StatusUnauthorized, rerr.Response.StatusCode)
	})

	t.Run("unregistered redirect", func(t *testing.T) {
		resp, body := f.do(t, http.MethodPost, server.RouteOAuth2Authorize, session, map[string]string{
			"client_id":    clientID,
			"redirect_uri": "https://evil.example/cb",
		})
		require.Equal(t, http.StatusBadRequest, resp.StatusCode)
		require.Equal(t, "invalid_grant", body["error"])
	})
}

func TestTokenEndpoint(t *testing.T) {
	f := setupTestFixture(t)
	session := f.login(t, userEmail, userPassword)
	clientID, clientSecret := f.registerClient(t, session)

	t.Run("unsupported grant", func(t *testing.T) {
		resp, body := f.do(t, http.MethodPost, server.RouteOAuth2Token, "", url.Values{
			"grant_type":    {"password"},
			"client_id":     {clientID},
			"client_secret": {clientSecret},
		})
		require.Equal(t, http.StatusBadRequest, resp.StatusCode)
		require.Equal(t, "unsupported_grant_type", body["error"])
	})

	t.Run("missing client", func(t *testing.T) {
		resp, body := f.do(t, http.MethodPost, server.RouteOAuth2Token, "", url.Values{
			"grant_type": {"authorization_code"},
			"code":       {"abc"},
		})
		require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
		require.Equal(t, "invalid_client", body["error"])
		require.NotEmpty(t, resp.Header.Get("WWW-Authenticate"))
	})

	t.Run("form credentials", func(t *testing.T) {
		resp, body := f.do(t, http.MethodPost, server.RouteOAuth2Token, "", url.Values{
			"grant_type":    {"authorization_code"},
			"code":          {f.authorize(t, session, clientID)},
			"redirect_uri":  {redirectURI},
			"client_id":     {clientID},
			"client_secret": {clientSecret},
		})
		require.Equal(t, http.StatusOK, resp.StatusCode, body)
		require.Equal(t, "read", body["scope"])
		require.NotEmpty(t, body["refresh_token"])
	})

	t.Run("client without refresh grant", func(t *testing.T) {
		codeOnlyID, codeOnlySecret := f.registerClient(t, session, "authorization_code")
		tok, err := f.oauthConfig(codeOnlyID, codeOnlySecret).Exchange(f.clientContext(), f.authorize(t, session, codeOnlyID))
		require.NoError(t, err)
		require.Empty(t, tok.RefreshToken)
	})
}

func TestRefreshAndRevoke(t *testing.T) {
	f := setupTestFixture(t)
	session := f.login(t, userEmail, userPassword)
	clientID, clientSecret := f.registerClient(t, session)
	tok, err := f.oauthConfig(clientID, clientSecret).Exchange(f.clientContext(), f.authorize(t, session, clientID))
	require.NoError(t, err)

	resp, body := f.do(t, http.MethodPost, server.RouteTokenRefresh, "", map[string]string{
		"refresh_token": tok.RefreshToken,
		"client_id":     clientID,
		"client_secret": clientSecret,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode, body)
	require.NotEmpty(t, body["access_token"])

	t.Run("unknown token still succeeds", func(t *testing.T) {
		resp, _ := f.do(t, http.MethodPost, server.RouteTokenRevoke, "", url.Values{
			"token":         {"not-a-token"},
			"client_id":     {clientID},
			"client_secret": {clientSecret},
		})
		require.Equal(t, http.StatusOK, resp.StatusCode)
	})

	resp, _ = f.do(t, http.MethodPost, server.RouteTokenRevoke, "", url.Values{
		"token":         {tok.RefreshToken},
		"client_id":     {clientID},
		"client_secret": {clientSecret},
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, body = f.do(t, http.MethodPost, server.RouteTokenRefresh, "", map[string]string{
		"refresh_token": tok.RefreshToken,
		"client_id":     clientID,
		"client_secret": clientSecret,
	})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	require.Equal(t, "invalid_grant", body["error"])
}

func TestTwoFactorFlow(t *testing.T) {
	f := setupTestFixture(t)
	session := f.login(t, userEmail, userPassword)

	resp, body := f.do(t, http.MethodPost, server.RouteTwoFactorSetup, session, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode, body)
	secret := body["secret"].(string)
	require.Contains(t, body["qr_payload"], "otpauth://totp/")
	codes := body["backup_codes"].([]any)
	require.Len(t, codes, 10)

	resp, body = f.do(t, http.MethodGet, server.RouteTwoFactorStatus, session, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, true, body["pending"])

	t.Run("wrong code", func(t *testing.T) {
		resp, body := f.do(t, http.MethodPost, server.RouteTwoFactorVerify, session, map[string]string{"code": "000000x"})
		require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
		require.Equal(t, "two_factor_invalid", body["error"])
	})

	code, err := totp.GenerateCodeCustom(secret, time.Now(), totp.ValidateOpts{Period: 30, Digits: otp.DigitsSix, Algorithm: otp.AlgorithmSHA1})
	require.NoError(t, err)
	resp, body = f.do(t, http.MethodPost, server.RouteTwoFactorVerify, session, map[string]string{"code": code})
	require.Equal(t, http.StatusOK, resp.StatusCode, body)
	require.Equal(t, true, body["enabled"])

	t.Run("login needs a code", func(t *testing.T) {
		resp, body := f.do(t, http.MethodPost, server.RouteLogin, "", map[string]string{"email": userEmail, "password": userPassword})
		require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
		require.Equal(t, "two_factor_required", body["error"])
	})

	t.Run("backup code logs in once", func(t *testing.T) {
		req := map[string]string{"email": userEmail, "password": userPassword, "totp": codes[0].(string)}
		resp, body := f.do(t, http.MethodPost, server.RouteLogin, "", req)
		require.Equal(t, http.StatusOK, resp.StatusCode, body)

		resp, body = f.do(t, http.MethodPost, server.RouteLogin, "", req)
		require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
		require.Equal(t, "two_factor_invalid", body["error"])
	})

	t.Run("regenerate then disable", func(t *testing.T) {
		resp, body := f.do(t, http.MethodPost, server.RouteTwoFactorBackupCodes, session, map[string]string{"code": codes[1].(string)})
		require.Equal(t, http.StatusOK, resp.StatusCode, body)
		fresh := body["backup_codes"].([]any)
		require.Len(t, fresh, 10)

		resp, _ = f.do(t, http.MethodPost, server.RouteTwoFactorDisable, session, map[string]string{"code": codes[2].(string)})
		require.Equal(t, http.StatusUnauthorized, resp.StatusCode, "old codes were replaced")

		resp, _ = f.do(t, http.MethodPost, server.RouteTwoFactorDisable, session, map[string]string{"code": fresh[0].(string)})
		require.Equal(t, http.StatusNoContent, resp.StatusCode)

		resp, body = f.do(t, http.MethodGet, server.RouteTwoFactorStatus, session, nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		require.Equal(t, false, body["enabled"])
	})
}

func TestPermissions(t *testing.T) {
	f := setupTestFixture(t)
	userSession := f.login(t, userEmail, userPassword)
	adminSession := f.login(t, adminEmail, adminPassword)

	t.Run("security events", func(t *testing.T) {
		resp, body := f.do(t, http.MethodGet, server.RouteSecurityEvents, userSession, nil)
		require.Equal(t, http.StatusForbidden, resp.StatusCode)
		require.Equal(t, "access_denied", body["error"])

		resp, body = f.do(t, http.MethodGet, server.RouteSecurityEvents+"?event_type=login_success&limit=1", adminSession, nil)
		require.Equal(t, http.StatusOK, resp.StatusCode, body)
		events := body["events"].([]any)
		require.Len(t, events, 1)
		require.Equal(t, "login_success", events[0].(map[string]any)["eventType"])

		resp, body = f.do(t, http.MethodGet, server.RouteSecurityEvents+"?since=yesterday", adminSession, nil)
		require.Equal(t, http.StatusBadRequest, resp.StatusCode)
		require.Equal(t, "invalid_request", body["error"])
	})

	t.Run("create session", func(t *testing.T) {
		req := map[string]string{"user_id": f.userID}
		resp, _ := f.do(t, http.MethodPost, server.RouteSessions, userSession, req)
		require.Equal(t, http.StatusForbidden, resp.StatusCode)

		resp, body := f.do(t, http.MethodPost, server.RouteSessions, adminSession, req)
		require.Equal(t, http.StatusCreated, resp.StatusCode, body)
		require.NotEmpty(t, body["session_token"])

		resp, _ = f.do(t, http.MethodPost, server.RouteSessions, adminSession, map[string]string{"user_id": "nobody"})
		require.Equal(t, http.StatusNotFound, resp.StatusCode)
	})
}

func TestRateLimit(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	limiter := server.NewRateLimiter(1, 2, server.WithLimiterNowFunc(func() time.Time { return now }))
	f := setupTestFixture(t, server.WithRateLimiter(limiter))

	attempt := map[string]string{"email": userEmail, "password": "Wr0ngHorse"}
	for i := 0; i < 2; i++ {
		resp, _ := f.do(t, http.MethodPost, server.RouteLogin, "", attempt)
		require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	}
	resp, body := f.do(t, http.MethodPost, server.RouteLogin, "", attempt)
	require.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	require.Equal(t, "rate_limited", body["error"])
	require.Equal(t, "1", resp.Header.Get("Retry-After"))

	// Other routes have their own bucket.
	resp, _ = f.do(t, http.MethodPost, server.RouteOAuth2Token, "", url.Values{"grant_type": {"password"}})
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestCORS(t *testing.T) {
	f := setupTestFixture(t)

	req, err := http.NewRequest(http.MethodOptions, f.srv.URL+server.RouteLogin, nil)
	require.NoError(t, err)
	req.Header.Set("Origin", allowedOrigin)
	resp, err := f.srv.Client().Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusNoContent, resp.StatusCode)
	require.Equal(t, allowedOrigin, resp.Header.Get("Access-Control-Allow-Origin"))
	require.True(t, strings.Contains(resp.Header.Get("Access-Control-Allow-Methods"), "POST"))

	req.Header.Set("Origin", "https://other.example")
	resp, err = f.srv.Client().Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	require.Empty(t, resp.Header.Get("Access-Control-Allow-Origin"))
}

func TestHealth(t *testing.T) {
	f := setupTestFixture(t)
	resp, body := f.do(t, http.MethodGet, server.RouteHealth, "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "ok", body["status"])

	svc := f.app.Services()
	svc.Health = func(context.Context) error { return errors.New("store down") }
	down := httptest.NewServer(server.New(config.Default(), svc))
	defer down.Close()

	res, err := down.Client().Get(down.URL + server.RouteHealth)
	require.NoError(t, err)
	res.Body.Close()
	require.Equal(t, http.StatusServiceUnavailable, res.StatusCode)
}

func TestIntrospect(t *testing.T) {
	f := setupTestFixture(t)
	ctx := f.clientContext()
	session := f.login(t, userEmail, userPassword)
	clientID, clientSecret := f.registerClient(t, session)

	tok, err := f.oauthConfig(clientID, clientSecret).Exchange(ctx, f.authorize(t, session, clientID))
	require.NoError(t, err)

	introspect := func(t *testing.T, form url.Values) (*http.Response, map[string]any) {
		t.Helper()
		form.Set("client_id", clientID)
		form.Set("client_secret", clientSecret)
		return f.do(t, http.MethodPost, server.RouteOAuth2Introspect, "", form)
	}

	t.Run("access token", func(t *testing.T) {
		resp, body := introspect(t, url.Values{"token": {tok.AccessToken}})
		require.Equal(t, http.StatusOK, resp.StatusCode, body)
		require.Equal(t, true, body["active"])
		require.Equal(t, f.userID, body["sub"])
		require.Equal(t, clientID, body["client_id"])
		require.Equal(t, "Bearer", body["token_type"])
		require.Equal(t, "no-store", resp.Header.Get("Cache-Control"))
	})

	t.Run("refresh token", func(t *testing.T) {
		resp, body := introspect(t, url.Values{"token": {tok.RefreshToken}, "token_type_hint": {"refresh_token"}})
		require.Equal(t, http.StatusOK, resp.StatusCode, body)
		require.Equal(t, true, body["active"])
		require.Equal(t, "refresh_token", body["token_type"])
	})

	t.Run("revoked refresh token", func(t *testing.T) {
		resp, _ := f.do(t, http.MethodPost, server.RouteTokenRevoke, "", url.Values{
			"token": {tok.RefreshToken}, "client_id": {clientID}, "client_secret": {clientSecret},
		})
		require.Equal(t, http.StatusOK, resp.StatusCode)

		resp, body := introspect(t, url.Values{"token": {tok.RefreshToken}})
		require.Equal(t, http.StatusOK, resp.StatusCode)
		require.Equal(t, map[string]any{"active": false}, body)
	})

	t.Run("token is required", func(t *testing.T) {
		resp, body := introspect(t, url.Values{})
		require.Equal(t, http.StatusBadRequest, resp.StatusCode)
		require.Equal(t, "invalid_request", body["error"])
	})

	t.Run("client must authenticate", func(t *testing.T) {
		resp, body := f.do(t, http.MethodPost, server.RouteOAuth2Introspect, "", url.Values{
			"token": {tok.AccessToken}, "client_id": {clientID}, "client_secret": {"nope"},
		})
		require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
		require.Equal(t, "invalid_client", body["error"])
	})
}

func TestJWKS(t *testing.T) {
	t.Run("hmac publishes nothing", func(t *testing.T) {
		f := setupTestFixture(t)
		resp, body := f.do(t, http.MethodGet, server.RouteWellKnownJWKS, "", nil)
		require.Equal(t, http.StatusNotFound, resp.StatusCode)
		require.Equal(t, "not_found", body["error"])
	})

	t.Run("key pair verifies issued tokens", func(t *testing.T) {
		keyPair, err := token.GenerateECDSAKeyPair("k1")
		require.NoError(t, err)
		pem, err := keyPair.ExportPrivateKeyPEM()
		require.NoError(t, err)
		path := filepath.Join(t.TempDir(), "signing.pem")
		require.NoError(t, os.WriteFile(path, []byte(pem), 0o600))

		f := setupTestFixtureWithConfig(t, func(c *config.Config) {
			c.OAuth.SigningKeyFile = path
			c.OAuth.SigningKeyID = "k1"
		})

		resp, err := f.srv.Client().Get(f.srv.URL + server.RouteWellKnownJWKS)
		require.NoError(t, err)
		defer resp.Body.Close()
		require.Equal(t, http.StatusOK, resp.StatusCode)
		require.Contains(t, resp.Header.Get("Cache-Control"), "public")

		var jwks token.JWKS
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&jwks))
		require.Len(t, jwks.Keys, 1)
		key := jwks.Keys[0]
		require.Equal(t, "k1", key.Kid)

		x, err := base64.RawURLEncoding.DecodeString(key.X)
		require.NoError(t, err)
		y, err := base64.RawURLEncoding.DecodeString(key.Y)
		require.NoError(t, err)
		public := &ecdsa.PublicKey{Curve: elliptic.P256(), X: new(big.Int).SetBytes(x), Y: new(big.Int).SetBytes(y)}

		issued, _, err := f.app.Codec.Issue(f.userID, "client-1", "read")
		require.NoError(t, err)
		parsed, err := jwt.Parse(issued, func(tok *jwt.Token) (any, error) {
			require.Equal(t, key.Kid, tok.Header["kid"])
			return public, nil
		}, jwt.WithValidMethods([]string{key.Alg}))
		require.NoError(t, err)
		require.True(t, parsed.Valid)
	})
}
