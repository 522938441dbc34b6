package metrics

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"

	"github.com/ggrighi15/fusione-dev-sub001/internal/events"
)

const meterName = "github.com/ggrighi15/fusione-dev-sub001"

// Metrics holds the counters recorded by the auth engines. A nil *Metrics records nothing.
type Metrics struct {
	ClientsRegistered metric.Int64Counter
	CodesIssued       metric.Int64Counter
	CodesExchanged    metric.Int64Counter
	TokensIssued      metric.Int64Counter
	TokensRevoked     metric.Int64Counter
	SessionsCreated   metric.Int64Counter
	SessionsExpired   metric.Int64Counter
	TwoFactorChecks   metric.Int64Counter
	LoginAttempts     metric.Int64Counter
	AuditEvents       metric.Int64Counter
	BusEvents         metric.Int64Counter
	RateLimited       metric.Int64Counter
	HTTPRequests      metric.Int64Counter
}

// New creates every instrument from provider.
func New(provider metric.MeterProvider) (*Metrics, error) {
	meter := provider.Meter(meterName)
	m := &Metrics{}

	counters := []struct {
		target *metric.Int64Counter
		name   string
		desc   string
		unit   string
	}{
		{&m.ClientsRegistered, "auth.oauth.clients.registered", "Number of OAuth2 clients registered", "{client}"},
		{&m.CodesIssued, "auth.oauth.codes.issued", "Number of authorization codes issued", "{code}"},
		{&m.CodesExchanged, "auth.oauth.codes.exchanged", "Number of authorization code exchanges by result", "{exchange}"},
		{&m.TokensIssued, "auth.tokens.issued", "Number of tokens issued by type", "{token}"},
		{&m.TokensRevoked, "auth.tokens.revoked", "Number of refresh tokens revoked", "{token}"},
		{&m.SessionsCreated, "auth.sessions.created", "Number of sessions created", "{session}"},
		{&m.SessionsExpired, "auth.sessions.expired", "Number of sessions expired by the sweep", "{session}"},
		{&m.TwoFactorChecks, "auth.twofactor.checks", "Number of two-factor verifications by result", "{check}"},
		{&m.LoginAttempts, "auth.login.attempts", "Number of login attempts by result", "{attempt}"},
		{&m.AuditEvents, "auth.audit.events", "Number of security log entries by severity", "{event}"},
		{&m.BusEvents, "auth.bus.events", "Number of bus events by kind", "{event}"},
		{&m.RateLimited, "auth.http.rate_limited", "Number of requests rejected by the rate limiter", "{request}"},
		{&m.HTTPRequests, "auth.http.requests", "Number of HTTP requests by route and status", "{request}"},
	}
	for _, c := range counters {
		counter, err := meter.Int64Counter(c.name, metric.WithDescription(c.desc), metric.WithUnit(c.unit))
		if err != nil {
			return nil, fmt.Errorf("failed to create %s counter: %w", c.name, err)
		}
		*c.target = counter
	}
	return m, nil
}

// Noop returns metrics backed by the otel noop provider.
func Noop() *Metrics {
	m, err := New(noop.NewMeterProvider())
	if err != nil {
		panic(err)
	}
	return m
}

func (m *Metrics) add(ctx context.Context, c metric.Int64Counter, n int64, attrs ...attribute.KeyValue) {
	if m == nil || c == nil || n == 0 {
		return
	}
	c.Add(ctx, n, metric.WithAttributes(attrs...))
}

func result(ok bool) attribute.KeyValue {
	if ok {
		return attribute.String("result", "success")
	}
	return attribute.String("result", "failure")
}

func (m *Metrics) RecordClientRegistered(ctx context.Context) {
	if m == nil {
		return
	}
	m.add(ctx, m.ClientsRegistered, 1)
}

func (m *Metrics) RecordCodeIssued(ctx context.Context, clientID string) {
	if m == nil {
		return
	}
	m.add(ctx, m.CodesIssued, 1, attribute.String("client_id", clientID))
}

func (m *Metrics) RecordCodeExchange(ctx context.Context, clientID string, ok bool) {
	if m == nil {
		return
	}
	m.add(ctx, m.CodesExchanged, 1, attribute.String("client_id", clientID), result(ok))
}

func (m *Metrics) RecordTokenIssued(ctx context.Context, tokenType string) {
	if m == nil {
		return
	}
	m.add(ctx, m.TokensIssued, 1, attribute.String("token_type", tokenType))
}

func (m *Metrics) RecordTokensRevoked(ctx context.Context, reason string, n int) {
	if m == nil {
		return
	}
	m.add(ctx, m.TokensRevoked, int64(n), attribute.String("reason", reason))
}

func (m *Metrics) RecordSessionCreated(ctx context.Context) {
	if m == nil {
		return
	}
	m.add(ctx, m.SessionsCreated, 1)
}

func (m *Metrics) RecordSessionsExpired(ctx context.Context, n int) {
	if m == nil {
		return
	}
	m.add(ctx, m.SessionsExpired, int64(n))
}

func (m *Metrics) RecordTwoFactorCheck(ctx context.Context, method string, ok bool) {
	if m == nil {
		return
	}
	m.add(ctx, m.TwoFactorChecks, 1, attribute.String("method", method), result(ok))
}

func (m *Metrics) RecordLogin(ctx context.Context, ok bool) {
	if m == nil {
		return
	}
	m.add(ctx, m.LoginAttempts, 1, result(ok))
}

func (m *Metrics) RecordAuditEvent(ctx context.Context, category, severity string) {
	if m == nil {
		return
	}
	m.add(ctx, m.AuditEvents, 1, attribute.String("category", category), attribute.String("severity", severity))
}

func (m *Metrics) RecordRateLimited(ctx context.Context, route string) {
	if m == nil {
		return
	}
	m.add(ctx, m.RateLimited, 1, attribute.String("route", route))
}

func (m *Metrics) RecordHTTPRequest(ctx context.Context, method, route string, status int) {
	if m == nil {
		return
	}
	m.add(ctx, m.HTTPRequests, 1,
		attribute.String("method", method),
		attribute.String("route", route),
		attribute.Int("status", status),
	)
}

// Subscription counts every bus event by kind.
func (m *Metrics) Subscription() events.Subscription {
	handlers := make(map[events.Kind]events.Handler, len(events.Kinds()))
	for _, k := range events.Kinds() {
		handlers[k] = func(ctx context.Context, e events.Event) {
			m.add(ctx, m.BusEvents, 1, attribute.String("kind", e.Kind().String()))
		}
	}
	return events.Subscription{Subsystem: "metrics", Handlers: handlers}
}
