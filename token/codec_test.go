package token_test

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	autherrors "github.com/ggrighi15/fusione-dev-sub001/internal/errors"
	"github.com/ggrighi15/fusione-dev-sub001/token"
)

const (
	testIssuer   = "fusione-auth"
	testSecret   = "test-secret"
	testUserID   = "user-1"
	testClientID = "client-1"
)

var testNow = time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

func newCodec(signer token.Signer, now *time.Time) *token.Codec {
	return token.NewCodec(signer,
		token.WithIssuer(testIssuer),
		token.WithAccessTokenExpiry(15*time.Minute),
		token.WithNowFunc(func() time.Time { return *now }),
	)
}

func TestCodecIssueVerify(t *testing.T) {
	now := testNow
	codec := newCodec(token.NewHMACSigner(testSecret), &now)

	signed, issued, err := codec.Issue(testUserID, testClientID, "read write")
	require.NoError(t, err)
	require.Equal(t, testNow.Add(15*time.Minute), issued.ExpiresAt)

	claims, err := codec.Verify(signed)
	require.NoError(t, err)
	require.Equal(t, testUserID, claims.Subject)
	require.Equal(t, testClientID, claims.ClientID)
	require.Equal(t, "read write", claims.Scope)
	require.Equal(t, issued.ID, claims.ID)
	require.True(t, claims.ExpiresAt.Equal(issued.ExpiresAt))

	t.Run("valid until exp only", func(t *testing.T) {
		now = testNow.Add(15*time.Minute - time.Second)
		_, err := codec.Verify(signed)
		require.NoError(t, err)

		now = testNow.Add(15 * time.Minute)
		_, err = codec.Verify(signed)
		require.ErrorIs(t, err, autherrors.ErrInvalidToken)
	})
}

func TestCodecRejects(t *testing.T) {
	now := testNow
	codec := newCodec(token.NewHMACSigner(testSecret), &now)
	signed, _, err := codec.Issue(testUserID, testClientID, "")
	require.NoError(t, err)

	t.Run("other secret", func(t *testing.T) {
		other := newCodec(token.NewHMACSigner("other"), &now)
		_, err := other.Verify(signed)
		require.ErrorIs(t, err, autherrors.ErrInvalidToken)
	})

	t.Run("other issuer", func(t *testing.T) {
		other := token.NewCodec(token.NewHMACSigner(testSecret), token.WithIssuer("someone-else"),
			token.WithNowFunc(func() time.Time { return now }))
		_, err := other.Verify(signed)
		require.ErrorIs(t, err, autherrors.ErrInvalidToken)
	})

	t.Run("tampered payload", func(t *testing.T) {
		parts := strings.Split(signed, ".")
		require.Len(t, parts, 3)
		parts[1] = parts[1][:len(parts[1])-2] + "xx"
		_, err := codec.Verify(strings.Join(parts, "."))
		require.ErrorIs(t, err, autherrors.ErrInvalidToken)
	})

	t.Run("algorithm confusion", func(t *testing.T) {
		kp, err := token.GenerateECDSAKeyPair("k1")
		require.NoError(t, err)
		ecCodec := newCodec(token.NewKeyPairSigner(kp), &now)
		ecSigned, _, err := ecCodec.Issue(testUserID, testClientID, "")
		require.NoError(t, err)

		_, err = codec.Verify(ecSigned)
		require.ErrorIs(t, err, autherrors.ErrInvalidToken)
	})
}

func TestKeyPairSigner(t *testing.T) {
	now := testNow
	kp, err := token.GenerateECDSAKeyPair("key-1")
	require.NoError(t, err)

	pemKey, err := kp.ExportPrivateKeyPEM()
	require.NoError(t, err)
	loaded, err := token.LoadKeyPairFromPEM("key-1", pemKey)
	require.NoError(t, err)
	require.Equal(t, "ES256", loaded.Algorithm)

	signed, _, err := newCodec(token.NewKeyPairSigner(kp), &now).Issue(testUserID, testClientID, "read")
	require.NoError(t, err)

	claims, err := newCodec(token.NewKeyPairSigner(loaded), &now).Verify(signed)
	require.NoError(t, err)
	require.Equal(t, "read", claims.Scope)

	_, err = token.LoadKeyPairFromPEM("key-1", "not pem")
	require.Error(t, err)
}

func TestRandom(t *testing.T) {
	a, err := token.RandomHex(32)
	require.NoError(t, err)
	require.Len(t, a, 64)

	b, err := token.RandomURLSafe(32)
	require.NoError(t, err)
	require.Len(t, b, 43)
	require.NotContains(t, b, "=")
	require.NotEqual(t, a, b)
}

func TestKeySet(t *testing.T) {
	now := testNow

	t.Run("key pair publishes its public key", func(t *testing.T) {
		kp, err := token.GenerateECDSAKeyPair("key-1")
		require.NoError(t, err)
		codec := newCodec(token.NewKeyPairSigner(kp), &now)

		jwks, err := codec.KeySet()
		require.NoError(t, err)
		require.Len(t, jwks.Keys, 1)
		key := jwks.Keys[0]
		require.Equal(t, "EC", key.Kty)
		require.Equal(t, "P-256", key.Crv)
		require.Equal(t, "ES256", key.Alg)
		require.Equal(t, "key-1", key.Kid)
		require.Len(t, key.X, 43)
		require.Len(t, key.Y, 43)
	})

	t.Run("hmac has none", func(t *testing.T) {
		codec := newCodec(token.NewHMACSigner(testSecret), &now)
		_, err := codec.KeySet()
		require.ErrorIs(t, err, autherrors.ErrNotFound)
	})
}
