package geo

import (
	"context"
	"fmt"
	"net/netip"
	"strings"
)

// Location is what a lookup knows about an address. Any field may be empty.
type Location struct {
	Country   string  `json:"country,omitempty"`
	Region    string  `json:"region,omitempty"`
	City      string  `json:"city,omitempty"`
	Timezone  string  `json:"timezone,omitempty"`
	Latitude  float64 `json:"latitude,omitempty"`
	Longitude float64 `json:"longitude,omitempty"`
}

// Resolver maps an IP to a location. It returns nil when nothing is known and never fails.
type Resolver interface {
	Lookup(ctx context.Context, ip string) *Location
}

type prefixEntry struct {
	prefix   netip.Prefix
	location Location
}

// StaticResolver answers from a fixed prefix table. The most specific prefix wins.
type StaticResolver struct {
	entries []prefixEntry
}

var _ Resolver = (*StaticResolver)(nil)

// NewStaticResolver parses entries of the form "CIDR=COUNTRY".
func NewStaticResolver(table []string) (*StaticResolver, error) {
	r := &StaticResolver{}
	for _, raw := range table {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		cidr, country, ok := strings.Cut(raw, "=")
		if !ok {
			return nil, fmt.Errorf("[geo.NewStaticResolver] entry %q is not CIDR=COUNTRY", raw)
		}
		prefix, err := netip.ParsePrefix(strings.TrimSpace(cidr))
		if err != nil {
			return nil, fmt.Errorf("[geo.NewStaticResolver] entry %q: %w", raw, err)
		}
		r.Add(prefix, Location{Country: strings.ToUpper(strings.TrimSpace(country))})
	}
	return r, nil
}

func (r *StaticResolver) Add(prefix netip.Prefix, loc Location) {
	r.entries = append(r.entries, prefixEntry{prefix: prefix.Masked(), location: loc})
}

func (r *StaticResolver) Lookup(_ context.Context, ip string) *Location {
	addr, err := netip.ParseAddr(strings.TrimSpace(ip))
	if err != nil {
		return nil
	}
	addr = addr.Unmap()

	var best *prefixEntry
	for i := range r.entries {
		e := &r.entries[i]
		if !e.prefix.Contains(addr) {
			continue
		}
		if best == nil || e.prefix.Bits() > best.prefix.Bits() {
			best = e
		}
	}
	if best == nil {
		return nil
	}
	loc := best.location
	return &loc
}

// Nop knows nothing.
type Nop struct{}

func (Nop) Lookup(context.Context, string) *Location { return nil }
