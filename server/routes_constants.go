package server

// Route path constants
// All application routes are defined here to ensure consistency and prevent typos
const (
	// OAuth2 Routes
	RouteOAuth2Clients    = "/oauth2/clients"
	RouteOAuth2Authorize  = "/oauth2/authorize"
	RouteOAuth2Token      = "/oauth2/token"
	RouteOAuth2Introspect = "/oauth2/introspect"
	RouteWellKnownJWKS    = "/.well-known/jwks.json"

	// Login Routes
	RouteLogin  = "/login"
	RouteLogout = "/logout"

	// Two-Factor Routes
	RouteTwoFactorSetup       = "/2fa/setup"
	RouteTwoFactorVerify      = "/2fa/verify"
	RouteTwoFactorDisable     = "/2fa/disable"
	RouteTwoFactorStatus      = "/2fa/status"
	RouteTwoFactorBackupCodes = "/2fa/backup-codes"

	// Session Routes
	RouteSessions        = "/sessions"
	RouteSessionValidate = "/sessions/{token}/validate"

	// Token Routes
	RouteTokenRefresh = "/token/refresh"
	RouteTokenRevoke  = "/token/revoke"

	// Security Routes
	RouteSecurityEvents = "/security/events"
	RouteHealth         = "/healthz"
)

// Permissions checked by the HTTP layer.
const (
	PermissionAuditRead      = "audit:read"
	PermissionSessionsCreate = "sessions:create"
)
