package oauth2

// TokenResponse is the token endpoint response body as defined in RFC 6749 section 5.1.
// Returned from /oauth2/token for both supported grant types.
type TokenResponse struct {
	// AccessToken is the signed JWT used to access protected resources.
	// Usage: Include in Authorization header: "Bearer <access_token>"
	AccessToken string `json:"access_token"`

	// TokenType is always "Bearer".
	TokenType string `json:"token_type"`

	// ExpiresIn is the lifetime in seconds of the access token.
	// Note: This is a hint - actual expiration is in the JWT's "exp" claim
	ExpiresIn int `json:"expires_in"`

	// RefreshToken is an opaque token used to obtain new access tokens. It is omitted when
	// the client is not allowed the refresh_token grant, and it does not rotate on use.
	RefreshToken string `json:"refresh_token,omitempty"`

	// Scope is the space separated list of granted scopes.
	Scope string `json:"scope,omitempty"`
}

// RegisteredClient carries the only copy of the plaintext client secret.
type RegisteredClient struct {
	ClientID     string `json:"client_id"`
	ClientSecret string `json:"client_secret"`
}
