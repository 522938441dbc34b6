package server

import "net/http"

func (s *Server) initRoutes() {
	limited := s.RateLimitMiddleware

	// OAUTH2
	s.RegisterRouteHandler("POST "+RouteOAuth2Clients, ChainMiddleware(s.RegisterClientHandler(), s.APIMiddleware(s.RequireSession())...))
	s.RegisterRouteHandler("POST "+RouteOAuth2Authorize, ChainMiddleware(s.AuthorizeHandler(), s.APIMiddleware(s.RequireSession())...))
	s.RegisterRouteHandler("POST "+RouteOAuth2Token, ChainMiddleware(s.TokenHandler(), s.APIMiddleware(limited)...))
	s.RegisterRouteHandler("POST "+RouteOAuth2Introspect, ChainMiddleware(s.IntrospectHandler(), s.APIMiddleware(limited)...))
	s.RegisterRouteHandler("GET "+RouteWellKnownJWKS, ChainMiddleware(s.JWKSHandler(), s.APIMiddleware()...))

	// LOGIN
	s.RegisterRouteHandler("POST "+RouteLogin, ChainMiddleware(s.LoginHandler(), s.APIMiddleware(limited)...))
	s.RegisterRouteHandler("POST "+RouteLogout, ChainMiddleware(s.LogoutHandler(), s.APIMiddleware(s.RequireSession())...))

	// TWO-FACTOR
	s.RegisterRouteHandler("POST "+RouteTwoFactorSetup, ChainMiddleware(s.TwoFactorSetupHandler(), s.APIMiddleware(s.RequireSession())...))
	s.RegisterRouteHandler("POST "+RouteTwoFactorVerify, ChainMiddleware(s.TwoFactorVerifyHandler(), s.APIMiddleware(limited, s.RequireSession())...))
	s.RegisterRouteHandler("POST "+RouteTwoFactorDisable, ChainMiddleware(s.TwoFactorDisableHandler(), s.APIMiddleware(limited, s.RequireSession())...))
	s.RegisterRouteHandler("POST "+RouteTwoFactorBackupCodes, ChainMiddleware(s.TwoFactorBackupCodesHandler(), s.APIMiddleware(limited, s.RequireSession())...))
	s.RegisterRouteHandler("GET "+RouteTwoFactorStatus, ChainMiddleware(s.TwoFactorStatusHandler(), s.APIMiddleware(s.RequireSession())...))

	// SESSIONS
	s.RegisterRouteHandler("POST "+RouteSessions, ChainMiddleware(s.CreateSessionHandler(), s.APIMiddleware(s.RequireSession(), s.RequirePermission(PermissionSessionsCreate))...))
	s.RegisterRouteHandler("GET "+RouteSessionValidate, ChainMiddleware(s.ValidateSessionHandler(), s.APIMiddleware()...))

	// TOKENS
	s.RegisterRouteHandler("POST "+RouteTokenRefresh, ChainMiddleware(s.RefreshTokenHandler(), s.APIMiddleware(limited)...))
	s.RegisterRouteHandler("POST "+RouteTokenRevoke, ChainMiddleware(s.RevokeTokenHandler(), s.APIMiddleware(limited)...))

	// SECURITY
	s.RegisterRouteHandler("GET "+RouteSecurityEvents, ChainMiddleware(s.SecurityEventsHandler(), s.APIMiddleware(s.RequireSession(), s.RequirePermission(PermissionAuditRead))...))
	s.RegisterRouteHandler("GET "+RouteHealth, ChainMiddleware(s.HealthHandler(), s.APIMiddleware()...))

	// CORS preflight for every route above
	s.RegisterRouteHandler("OPTIONS /", ChainMiddleware(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}, s.APIMiddleware()...))
}
