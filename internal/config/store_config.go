package config

import "time"

// Store selects the persistent backend. Driver is "sqlite" or "postgres".
type Store struct {
	Driver  string        `env:"AUTH_STORE_DRIVER" envDefault:"sqlite"`
	DSN     string        `env:"AUTH_STORE_DSN" envDefault:"file:auth.db?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"`
	Timeout time.Duration `env:"AUTH_STORE_TIMEOUT" envDefault:"3s"`
	// Fallback allows the process to start on the in-memory backend when the store cannot be opened.
	Fallback bool `env:"AUTH_STORE_FALLBACK" envDefault:"true"`
	// GeoTable is a comma separated list of CIDR=COUNTRY pairs for the static geo resolver.
	GeoTable []string `env:"AUTH_GEO_TABLE" envSeparator:","`
}
