package features

import (
	"net"
	"strings"
)

// Location is the geolocation view of a source address
type Location struct {
	Country string
	ASN     string
	ISP     string
	Private bool
}

// Geolocator resolves a source IP to a coarse location. Implementations are
// pluggable; the engine only needs country-level resolution.
type Geolocator interface {
	Locate(ip string) (Location, bool)
}

// StaticGeolocator resolves from a fixed prefix table. Suitable for tests and
// for deployments that sync a prefix snapshot out of band.
type StaticGeolocator struct {
	prefixes map[string]Location
}

// NewStaticGeolocator builds a locator over a /24-or-coarser prefix table
// keyed by dotted prefix (e.g. "203.0.113").
func NewStaticGeolocator(prefixes map[string]Location) *StaticGeolocator {
	if prefixes == nil {
		prefixes = make(map[string]Location)
	}
	return &StaticGeolocator{prefixes: prefixes}
}

// Locate resolves an address. Private and loopback ranges resolve to a
// private location without consulting the table.
func (g *StaticGeolocator) Locate(ip string) (Location, bool) {
	parsed := net.ParseIP(ip)
	if parsed == nil {
		return Location{}, false
	}
	if parsed.IsPrivate() || parsed.IsLoopback() {
		return Location{Private: true}, true
	}

	// Longest dotted-prefix match, /24 then /16 then /8
	parts := strings.Split(ip, ".")
	for cut := len(parts) - 1; cut >= 1; cut-- {
		prefix := strings.Join(parts[:cut], ".")
		if loc, ok := g.prefixes[prefix]; ok {
			return loc, true
		}
	}
	return Location{}, false
}
