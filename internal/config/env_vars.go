package config

import "strings"

// App holds process level settings.
type App struct {
	Env      string `env:"AUTH_ENV" envDefault:"DEV"`
	AppName  string `env:"AUTH_APP_NAME" envDefault:"Fusione Auth"`
	Port     string `env:"AUTH_PORT" envDefault:"8080"`
	LogLevel string `env:"AUTH_LOG_LEVEL" envDefault:"info"`

	// TrustProxy takes the client address from X-Forwarded-For. Only set it behind a proxy
	// that overwrites the header.
	TrustProxy bool `env:"AUTH_TRUST_PROXY" envDefault:"false"`
}

// Addr returns the listen address for the HTTP server.
func (a App) Addr() string {
	if strings.HasPrefix(a.Port, ":") {
		return a.Port
	}
	return ":" + a.Port
}

func (a App) IsDev() bool {
	return strings.EqualFold(a.Env, devEnv)
}
