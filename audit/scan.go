package audit

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/ggrighi15/fusione-dev-sub001/internal/events"
	"github.com/ggrighi15/fusione-dev-sub001/internal/storecall"
)

// ScanReport lists the alerts raised by one scan.
type ScanReport struct {
	SuspiciousActivity []events.SuspiciousActivity
	UnusualLocations   []events.UnusualLocation
}

type failureKey struct {
	userID string
	ip     string
}

type locationKey struct {
	userID  string
	country string
}

// Scan runs one anomaly detection cycle. Each (user, ip) group of failed logins at or
// above the threshold raises exactly one alert, however many failures it holds.
func (a *Auditor) Scan(ctx context.Context) (ScanReport, error) {
	var report ScanReport
	now := a.nowFunc()

	windowStart := now.Add(-a.scan.FailedWindow)
	failed, err := a.query(ctx, Filter{EventType: EventLoginFailed, Since: windowStart})
	if err != nil {
		return report, fmt.Errorf("[Auditor.Scan] failed logins: %w", err)
	}

	counts := make(map[failureKey]int)
	for _, e := range failed {
		counts[failureKey{userID: e.UserID, ip: e.IP}]++
	}
	keys := make([]failureKey, 0, len(counts))
	for k, n := range counts {
		if n >= a.scan.SuspiciousThreshold {
			keys = append(keys, k)
		}
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].userID != keys[j].userID {
			return keys[i].userID < keys[j].userID
		}
		return keys[i].ip < keys[j].ip
	})

	for _, k := range keys {
		alert := events.SuspiciousActivity{
			UserID:      k.userID,
			IP:          k.ip,
			Failures:    counts[k],
			WindowStart: windowStart,
			DetectedAt:  now,
		}
		a.Log(ctx, Event{
			UserID:      k.userID,
			EventType:   EventSuspiciousActivity,
			Category:    CategoryAnomaly,
			Severity:    SeverityHigh,
			Description: fmt.Sprintf("%d failed logins within %s", alert.Failures, a.scan.FailedWindow),
			IP:          k.ip,
			Metadata:    map[string]any{"failures": alert.Failures, "window": a.scan.FailedWindow.String()},
		})
		a.publisher.Publish(ctx, alert)
		report.SuspiciousActivity = append(report.SuspiciousActivity, alert)
	}

	unusual, err := a.scanLocations(ctx)
	if err != nil {
		return report, err
	}
	report.UnusualLocations = unusual

	a.logger.Debug().
		Int("suspicious", len(report.SuspiciousActivity)).
		Int("unusual_locations", len(report.UnusualLocations)).
		Msg("anomaly scan complete")
	return report, nil
}

// scanLocations flags (user, country) pairs seen in the recent window that have no
// successful login in the lookback window before it.
func (a *Auditor) scanLocations(ctx context.Context) ([]events.UnusualLocation, error) {
	now := a.nowFunc()
	recentStart := now.Add(-a.scan.LocationRecent)
	lookbackStart := now.Add(-a.scan.LocationLookback)

	recent, err := a.query(ctx, Filter{EventType: EventLoginSuccess, Since: recentStart})
	if err != nil {
		return nil, fmt.Errorf("[Auditor.Scan] recent logins: %w", err)
	}

	flagged, err := a.flaggedLocations(ctx, recentStart)
	if err != nil {
		return nil, err
	}

	seen := make(map[locationKey]*Entry)
	var pairs []locationKey
	for _, e := range recent {
		country := e.Country()
		if e.UserID == "" || country == "" {
			continue
		}
		k := locationKey{userID: e.UserID, country: country}
		if flagged[k] {
			continue
		}
		if _, ok := seen[k]; !ok {
			pairs = append(pairs, k)
		}
		// Entries are newest first, so the last write keeps the earliest login.
		seen[k] = e
	}

	var alerts []events.UnusualLocation
	history := make(map[string][]*Entry)
	for _, k := range pairs {
		past, ok := history[k.userID]
		if !ok {
			past, err = a.query(ctx, Filter{
				UserID:    k.userID,
				EventType: EventLoginSuccess,
				Since:     lookbackStart,
				Until:     recentStart,
			})
			if err != nil {
				return alerts, fmt.Errorf("[Auditor.Scan] login history of %s: %w", k.userID, err)
			}
			history[k.userID] = past
		}
		if containsCountry(past, k.country) {
			continue
		}

		login := seen[k]
		alert := events.UnusualLocation{UserID: k.userID, Country: k.country, IP: login.IP, DetectedAt: now}
		a.Log(ctx, Event{
			UserID:      k.userID,
			SessionID:   login.SessionID,
			EventType:   EventUnusualLocation,
			Category:    CategoryAnomaly,
			Severity:    SeverityHigh,
			Description: fmt.Sprintf("login from %s not seen in the last %s", k.country, a.scan.LocationLookback),
			IP:          login.IP,
			Metadata:    map[string]any{"country": k.country, "login_entry_id": login.ID},
		})
		a.publisher.Publish(ctx, alert)
		alerts = append(alerts, alert)
	}
	return alerts, nil
}

// flaggedLocations returns the pairs already alerted on since start, so a login stays
// flagged once while it is inside the recent window.
func (a *Auditor) flaggedLocations(ctx context.Context, start time.Time) (map[locationKey]bool, error) {
	prior, err := a.query(ctx, Filter{EventType: EventUnusualLocation, Since: start})
	if err != nil {
		return nil, fmt.Errorf("[Auditor.Scan] prior location alerts: %w", err)
	}
	flagged := make(map[locationKey]bool, len(prior))
	for _, e := range prior {
		if country, ok := e.Metadata["country"].(string); ok {
			flagged[locationKey{userID: e.UserID, country: country}] = true
		}
	}
	return flagged, nil
}

func containsCountry(entries []*Entry, country string) bool {
	for _, e := range entries {
		if e.Country() == country {
			return true
		}
	}
	return false
}

func (a *Auditor) query(ctx context.Context, f Filter) ([]*Entry, error) {
	return storecall.Query(ctx, a.storeTimeout, func(ctx context.Context) ([]*Entry, error) {
		return a.repo.Query(ctx, f)
	})
}
