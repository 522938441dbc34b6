package token

import (
	"crypto/ecdsa"
	"crypto/rsa"
	"encoding/base64"
	"math/big"

	"github.com/pkg/errors"

	autherrors "github.com/ggrighi15/fusione-dev-sub001/internal/errors"
)

// JWKS represents a JSON Web Key Set
type JWKS struct {
	Keys []JWK `json:"keys"`
}

// JWK is the public half of a signing key (RFC 7517).
type JWK struct {
	Kty string `json:"kty"`
	Use string `json:"use,omitempty"`
	Kid string `json:"kid,omitempty"`
	Alg string `json:"alg,omitempty"`

	// RSA
	N string `json:"n,omitempty"`
	E string `json:"e,omitempty"`

	// EC
	Crv string `json:"crv,omitempty"`
	X   string `json:"x,omitempty"`
	Y   string `json:"y,omitempty"`
}

// KeySetProvider is implemented by signers whose verification keys can be published.
type KeySetProvider interface {
	GetJWKS() (*JWKS, error)
}

var _ KeySetProvider = (*KeyPairSigner)(nil)

// ToJWK converts the public key. EC coordinates are left padded to the curve size.
func (kp *KeyPair) ToJWK() (*JWK, error) {
	jwk := &JWK{Kid: kp.KeyID, Use: "sig", Alg: kp.Algorithm}

	switch pub := kp.PublicKey.(type) {
	case *rsa.PublicKey:
		jwk.Kty = "RSA"
		jwk.N = base64.RawURLEncoding.EncodeToString(pub.N.Bytes())
		jwk.E = base64.RawURLEncoding.EncodeToString(big.NewInt(int64(pub.E)).Bytes())
	case *ecdsa.PublicKey:
		size := (pub.Curve.Params().BitSize + 7) / 8
		jwk.Kty = "EC"
		jwk.Crv = pub.Curve.Params().Name
		jwk.X = base64.RawURLEncoding.EncodeToString(pub.X.FillBytes(make([]byte, size)))
		jwk.Y = base64.RawURLEncoding.EncodeToString(pub.Y.FillBytes(make([]byte, size)))
	default:
		return nil, errors.Errorf("unsupported public key type %T", kp.PublicKey)
	}
	return jwk, nil
}

// GetJWKS returns the set holding this signer's public key.
func (a *KeyPairSigner) GetJWKS() (*JWKS, error) {
	jwk, err := a.keyPair.ToJWK()
	if err != nil {
		return nil, errors.Wrap(err, "failed to convert key to JWK")
	}
	return &JWKS{Keys: []JWK{*jwk}}, nil
}

// KeySet returns the published verification keys. Symmetric signers have none and get
// ErrNotFound.
func (c *Codec) KeySet() (*JWKS, error) {
	provider, ok := c.signer.(KeySetProvider)
	if !ok {
		return nil, autherrors.Wrapf(autherrors.ErrNotFound, "[Codec.KeySet] signer %s publishes no keys", c.signer.GetSigningMethod().Alg())
	}
	jwks, err := provider.GetJWKS()
	if err != nil {
		return nil, errors.Wrap(err, "[Codec.KeySet]")
	}
	return jwks, nil
}
