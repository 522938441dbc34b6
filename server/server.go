package server

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/rs/zerolog"

	"github.com/ggrighi15/fusione-dev-sub001/access"
	"github.com/ggrighi15/fusione-dev-sub001/audit"
	"github.com/ggrighi15/fusione-dev-sub001/auth"
	"github.com/ggrighi15/fusione-dev-sub001/internal/config"
	"github.com/ggrighi15/fusione-dev-sub001/internal/metrics"
	"github.com/ggrighi15/fusione-dev-sub001/oauth2"
	"github.com/ggrighi15/fusione-dev-sub001/sessions"
	"github.com/ggrighi15/fusione-dev-sub001/twofactor"
	"github.com/ggrighi15/fusione-dev-sub001/users"
)

// Services are the engines the HTTP layer calls into.
type Services struct {
	OAuth     *oauth2.Engine
	TwoFactor *twofactor.Engine
	Sessions  *sessions.Manager
	Access    *access.Engine
	Auditor   *audit.Auditor
	Auth      *auth.Service
	Users     users.Repo
	// Health reports whether the backing store is reachable.
	Health func(ctx context.Context) error
}

type Server struct {
	env     string
	mux     *http.ServeMux
	routes  []string
	config  config.Config
	svc     Services
	logger  zerolog.Logger
	metrics *metrics.Metrics
	limiter *RateLimiter
}

type Option func(*Server)

func WithLogger(l zerolog.Logger) Option {
	return func(s *Server) {
		s.logger = l
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Server) {
		s.metrics = m
	}
}

// WithRateLimiter replaces the limiter built from config.RateLimit.
func WithRateLimiter(l *RateLimiter) Option {
	return func(s *Server) {
		s.limiter = l
	}
}

func New(c config.Config, svc Services, options ...Option) *Server {
	s := &Server{
		env:    c.App.Env,
		mux:    http.NewServeMux(),
		config: c,
		svc:    svc,
		logger: zerolog.Nop(),
	}
	for _, opt := range options {
		opt(s)
	}
	if s.limiter == nil {
		s.limiter = NewRateLimiter(c.RateLimit.RequestsPerSecond, c.RateLimit.Burst)
	}

	s.initRoutes()
	s.logRoutes()
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// RateLimiter exposes the limiter so its idle entries can be swept on a schedule.
func (s *Server) RateLimiter() *RateLimiter {
	return s.limiter
}

func (s *Server) RegisterRouteHandler(pattern string, handler http.Handler) {
	s.routes = append(s.routes, pattern)
	s.mux.Handle(pattern, handler)
}

func (s *Server) RegisterRouteFunc(pattern string, handler func(http.ResponseWriter, *http.Request)) {
	s.routes = append(s.routes, pattern)
	s.mux.HandleFunc(pattern, handler)
}

func (s *Server) logRoutes() {
	if !s.config.App.IsDev() {
		return // Skip logging in non-development environments
	}
	for _, route := range s.routes {
		parts := strings.SplitN(route, " ", 2)

		if len(parts) > 1 {
			s.logRoute(parts[0], parts[1])
		} else {
			s.logRoute("", parts[0])
		}
	}
}

func (s *Server) logRoute(method, path string) {
	paddedMethod := fmt.Sprintf(" %-7s", method)
	color, ok := methodColors[method]
	if !ok {
		color = Gray
	}
	s.logger.Debug().Msgf("[%s] %s", color+paddedMethod+ResetColor, path)
}
