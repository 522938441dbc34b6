package clients

import (
	"net/url"
	"slices"
	"time"

	autherrors "github.com/ggrighi15/fusione-dev-sub001/internal/errors"
	"github.com/ggrighi15/fusione-dev-sub001/internal/utils"
)

const (
	GrantTypeAuthorizationCode = "authorization_code"
	GrantTypeRefreshToken      = "refresh_token"
)

// DefaultGrantTypes is applied when a registration does not name any.
var DefaultGrantTypes = []string{GrantTypeAuthorizationCode, GrantTypeRefreshToken}

// Client is a registered OAuth2 client. The ID never changes; the secret only changes
// through re-registration, which issues a new client.
type Client struct {
	ID             string    `json:"id"`
	SecretHash     string    `json:"-"`
	Name           string    `json:"name"`
	RedirectURIs   []string  `json:"redirectURIs"`
	Scopes         []string  `json:"scopes"` // Allowed scopes for this client
	GrantTypes     []string  `json:"grantTypes"`
	IsConfidential bool      `json:"isConfidential"`
	IsActive       bool      `json:"isActive"`
	OwnerID        string    `json:"ownerId"`
	CreatedAt      time.Time `json:"createdAt"`
}

// Metadata is what a caller supplies to register a client.
type Metadata struct {
	Name           string   `json:"name"`
	RedirectURIs   []string `json:"redirect_uris"`
	Scopes         []string `json:"scopes"`
	GrantTypes     []string `json:"grant_types"`
	IsConfidential bool     `json:"is_confidential"`
}

// Validate checks the registration metadata and fills in default grant types.
func (m *Metadata) Validate() error {
	if m.Name == "" {
		return autherrors.Wrapf(autherrors.ErrInvalidRequest, "client name is required")
	}
	if len(m.RedirectURIs) == 0 {
		return autherrors.Wrapf(autherrors.ErrInvalidRedirect, "at least one redirect URI is required")
	}
	for _, raw := range m.RedirectURIs {
		if err := validateRedirectURI(raw); err != nil {
			return err
		}
	}
	if len(m.GrantTypes) == 0 {
		m.GrantTypes = slices.Clone(DefaultGrantTypes)
	}
	for _, gt := range m.GrantTypes {
		if !slices.Contains(DefaultGrantTypes, gt) {
			return autherrors.Wrapf(autherrors.ErrInvalidRequest, "unsupported grant type %q", gt)
		}
	}
	return nil
}

func validateRedirectURI(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return autherrors.Wrapf(autherrors.ErrInvalidRedirect, "redirect URI %q", raw)
	}
	if (u.Scheme != "https" && u.Scheme != "http") || u.Host == "" {
		return autherrors.Wrapf(autherrors.ErrInvalidRedirect, "redirect URI %q must be an absolute http(s) URL", raw)
	}
	if u.Fragment != "" {
		return autherrors.Wrapf(autherrors.ErrInvalidRedirect, "redirect URI %q must not contain a fragment", raw)
	}
	return nil
}

// HasRedirectURI reports an exact match against the registered redirect URIs.
func (c *Client) HasRedirectURI(uri string) bool {
	return slices.Contains(c.RedirectURIs, uri)
}

// HasScope checks if the client has permission for a specific scope
func (c *Client) HasScope(scope string) bool {
	return slices.Contains(c.Scopes, scope)
}

func (c *Client) AllowsGrant(grantType string) bool {
	return slices.Contains(c.GrantTypes, grantType)
}

// ResolveScopes checks the requested scopes against the client. An empty request is
// granted the client's full scope set.
func (c *Client) ResolveScopes(requested []string) ([]string, error) {
	if len(requested) == 0 {
		return slices.Clone(c.Scopes), nil
	}
	for _, scope := range requested {
		if !c.HasScope(scope) {
			return nil, autherrors.Wrapf(autherrors.ErrInvalidScope, "scope %q not allowed for client %s", scope, c.ID)
		}
	}
	return requested, nil
}

// ValidateScopes checks a space separated scope string.
func (c *Client) ValidateScopes(requestedScopes string) error {
	_, err := c.ResolveScopes(utils.SplitScope(requestedScopes))
	return err
}
