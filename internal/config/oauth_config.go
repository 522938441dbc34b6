package config

import "time"

type OAuth struct {
	TokenSecret         string        `env:"AUTH_TOKEN_SECRET"`
	Issuer              string        `env:"AUTH_TOKEN_ISSUER" envDefault:"fusione-auth"`
	AccessTokenExpiry   time.Duration `env:"AUTH_ACCESS_TOKEN_EXPIRY" envDefault:"15m"`
	CodeExpiry          time.Duration `env:"AUTH_CODE_EXPIRY" envDefault:"10m"`
	CodeCleanupInterval time.Duration `env:"AUTH_CODE_CLEANUP_INTERVAL" envDefault:"5m"`

	// SigningKeyFile, when set, points at a PEM encoded EC or RSA private key. Access tokens
	// are then signed with the key pair instead of the shared secret.
	SigningKeyFile string `env:"AUTH_TOKEN_SIGNING_KEY_FILE"`
	SigningKeyID   string `env:"AUTH_TOKEN_SIGNING_KEY_ID" envDefault:"primary"`

	// GeneratedSecret is set when a DEV secret was generated at startup.
	GeneratedSecret bool
}

type Refresh struct {
	Expiry          time.Duration `env:"AUTH_REFRESH_EXPIRY" envDefault:"720h"`
	MaxActive       int           `env:"AUTH_REFRESH_MAX_ACTIVE" envDefault:"5"`
	RevokedGrace    time.Duration `env:"AUTH_REFRESH_REVOKED_GRACE" envDefault:"168h"`
	CleanupInterval time.Duration `env:"AUTH_REFRESH_CLEANUP_INTERVAL" envDefault:"1h"`
}
