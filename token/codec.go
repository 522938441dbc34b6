package token

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/pkg/errors"

	autherrors "github.com/ggrighi15/fusione-dev-sub001/internal/errors"
)

const (
	claimScope    = "scope"
	claimClientID = "client_id"

	defaultAccessTokenExpiry = 15 * time.Minute
)

// AccessClaims is the content of a signed access token. Tokens are never stored: validity
// is the signature plus exp.
type AccessClaims struct {
	ID        string
	Issuer    string
	Subject   string
	ClientID  string
	Scope     string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// Codec mints and verifies access tokens.
type Codec struct {
	signer  Signer
	issuer  string
	expiry  time.Duration
	nowFunc func() time.Time
}

type CodecOption func(*Codec)

func WithIssuer(issuer string) CodecOption {
	return func(c *Codec) {
		c.issuer = issuer
	}
}

func WithAccessTokenExpiry(expiry time.Duration) CodecOption {
	return func(c *Codec) {
		c.expiry = expiry
	}
}

func WithNowFunc(now func() time.Time) CodecOption {
	return func(c *Codec) {
		c.nowFunc = now
	}
}

func NewCodec(signer Signer, options ...CodecOption) *Codec {
	c := &Codec{
		signer:  signer,
		expiry:  defaultAccessTokenExpiry,
		nowFunc: time.Now,
	}
	for _, opt := range options {
		opt(c)
	}
	return c
}

// Expiry is the lifetime given to every access token.
func (c *Codec) Expiry() time.Duration {
	return c.expiry
}

// Issue signs an access token for subject acting through clientID.
func (c *Codec) Issue(subject, clientID, scope string) (string, *AccessClaims, error) {
	now := c.nowFunc()
	claims := &AccessClaims{
		ID:        uuid.NewString(),
		Issuer:    c.issuer,
		Subject:   subject,
		ClientID:  clientID,
		Scope:     scope,
		IssuedAt:  now,
		ExpiresAt: now.Add(c.expiry),
	}

	mapClaims := jwt.MapClaims{
		"jti":         claims.ID,
		"sub":         claims.Subject,
		"iat":         claims.IssuedAt.Unix(),
		"exp":         claims.ExpiresAt.Unix(),
		claimClientID: claims.ClientID,
		claimScope:    claims.Scope,
	}
	if c.issuer != "" {
		mapClaims["iss"] = c.issuer
	}

	signed, err := c.signer.Sign(mapClaims)
	if err != nil {
		return "", nil, errors.Wrap(err, "[Codec.Issue]")
	}
	return signed, claims, nil
}

// Verify checks signature, algorithm, issuer and expiry. Any failure is ErrInvalidToken.
func (c *Codec) Verify(tokenString string) (*AccessClaims, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{c.signer.GetSigningMethod().Alg()}),
		jwt.WithTimeFunc(c.nowFunc),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
	}
	if c.issuer != "" {
		opts = append(opts, jwt.WithIssuer(c.issuer))
	}

	parsed, err := jwt.Parse(tokenString, c.signer.GetVerificationKey, opts...)
	if err != nil {
		return nil, autherrors.Wrapf(autherrors.ErrInvalidToken, "[Codec.Verify] %v", err)
	}
	mapClaims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return nil, autherrors.Wrapf(autherrors.ErrInvalidToken, "[Codec.Verify] unexpected claims type %T", parsed.Claims)
	}

	claims := &AccessClaims{}
	claims.Subject, _ = mapClaims.GetSubject()
	claims.Issuer, _ = mapClaims.GetIssuer()
	claims.ID, _ = mapClaims["jti"].(string)
	claims.ClientID, _ = mapClaims[claimClientID].(string)
	claims.Scope, _ = mapClaims[claimScope].(string)
	if iat, _ := mapClaims.GetIssuedAt(); iat != nil {
		claims.IssuedAt = iat.Time
	}
	if exp, _ := mapClaims.GetExpirationTime(); exp != nil {
		claims.ExpiresAt = exp.Time
	}
	if claims.Subject == "" {
		return nil, autherrors.Wrapf(autherrors.ErrInvalidToken, "[Codec.Verify] missing subject")
	}
	return claims, nil
}
