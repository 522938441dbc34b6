package config

import "time"

type TwoFactor struct {
	Issuer      string `env:"AUTH_2FA_ISSUER" envDefault:"Fusione"`
	Window      int    `env:"AUTH_2FA_WINDOW" envDefault:"2"`
	BackupCodes int    `env:"AUTH_2FA_BACKUP_CODES" envDefault:"10"`
}

type Session struct {
	Timeout       time.Duration `env:"AUTH_SESSION_TIMEOUT" envDefault:"2h"`
	SweepInterval time.Duration `env:"AUTH_SESSION_SWEEP_INTERVAL" envDefault:"5m"`
}

type Audit struct {
	ScanInterval        time.Duration `env:"AUTH_AUDIT_SCAN_INTERVAL" envDefault:"10m"`
	SuspiciousThreshold int           `env:"AUTH_AUDIT_SUSPICIOUS_THRESHOLD" envDefault:"3"`
	FailedWindow        time.Duration `env:"AUTH_AUDIT_FAILED_WINDOW" envDefault:"1h"`
	LocationLookback    time.Duration `env:"AUTH_AUDIT_LOCATION_LOOKBACK" envDefault:"720h"`
	LocationRecent      time.Duration `env:"AUTH_AUDIT_LOCATION_RECENT" envDefault:"24h"`
}

type RateLimit struct {
	RequestsPerSecond float64       `env:"AUTH_RATE_LIMIT_RPS" envDefault:"5"`
	Burst             int           `env:"AUTH_RATE_LIMIT_BURST" envDefault:"10"`
	IdleTimeout       time.Duration `env:"AUTH_RATE_LIMIT_IDLE" envDefault:"30m"`
	CleanupInterval   time.Duration `env:"AUTH_RATE_LIMIT_CLEANUP_INTERVAL" envDefault:"5m"`
}

// Bootstrap seeds an administrator with the wildcard level at startup. Both values must be
// set for it to run.
type Bootstrap struct {
	AdminEmail    string `env:"AUTH_ADMIN_EMAIL"`
	AdminPassword string `env:"AUTH_ADMIN_PASSWORD"`
}

func (b Bootstrap) Enabled() bool {
	return b.AdminEmail != "" && b.AdminPassword != ""
}
