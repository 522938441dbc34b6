package config

type Cors struct {
	Origins        []string `env:"AUTH_CORS_ORIGINS" envSeparator:","`
	AllowedMethods string   `env:"AUTH_CORS_METHODS" envDefault:"GET, POST, DELETE"`
	AllowedHeaders string   `env:"AUTH_CORS_HEADERS" envDefault:"Content-Type, Authorization"`
}

type AllowedOrigins map[string]struct{}

func (a AllowedOrigins) IsAllowedOrigin(origin string) bool {
	_, ok := a[origin]
	return ok
}

func (c Cors) AllowedOrigins() AllowedOrigins {
	origins := make(AllowedOrigins, len(c.Origins))
	for _, o := range c.Origins {
		origins[o] = struct{}{}
	}
	return origins
}
