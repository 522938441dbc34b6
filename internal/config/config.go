package config

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"

	"github.com/caarlos0/env/v11"
)

const devEnv = "DEV"

// Config is built once at startup and passed by value. Nothing in the process mutates it.
type Config struct {
	App       App
	Cors      Cors
	Store     Store
	OAuth     OAuth
	Refresh   Refresh
	TwoFactor TwoFactor
	Session   Session
	Audit     Audit
	RateLimit RateLimit
	Bootstrap Bootstrap
}

// Load reads the configuration from the environment, applying defaults for anything unset.
func Load() (Config, error) {
	var c Config
	if err := env.Parse(&c); err != nil {
		return Config{}, fmt.Errorf("[config.Load] parse env: %w", err)
	}
	if err := c.finalise(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// Default returns the configuration defaults, ignoring the process environment.
func Default() Config {
	var c Config
	if err := env.ParseWithOptions(&c, env.Options{Environment: map[string]string{}}); err != nil {
		panic(fmt.Sprintf("[config.Default] invalid defaults: %v", err))
	}
	if err := c.finalise(); err != nil {
		panic(fmt.Sprintf("[config.Default] invalid defaults: %v", err))
	}
	return c
}

func (c *Config) finalise() error {
	if c.OAuth.TokenSecret == "" {
		if !c.App.IsDev() {
			return fmt.Errorf("[config.Load] AUTH_TOKEN_SECRET is required in %s", c.App.Env)
		}
		secret := make([]byte, 32)
		if _, err := rand.Read(secret); err != nil {
			return fmt.Errorf("[config.Load] generate dev token secret: %w", err)
		}
		c.OAuth.TokenSecret = hex.EncodeToString(secret)
		c.OAuth.GeneratedSecret = true
	}
	if c.Refresh.MaxActive < 1 {
		return fmt.Errorf("[config.Load] AUTH_REFRESH_MAX_ACTIVE must be at least 1, got %d", c.Refresh.MaxActive)
	}
	if c.TwoFactor.Window < 0 {
		return fmt.Errorf("[config.Load] AUTH_2FA_WINDOW must not be negative, got %d", c.TwoFactor.Window)
	}
	if c.Audit.SuspiciousThreshold < 1 {
		return fmt.Errorf("[config.Load] AUTH_AUDIT_SUSPICIOUS_THRESHOLD must be at least 1, got %d", c.Audit.SuspiciousThreshold)
	}
	return nil
}
