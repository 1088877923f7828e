// Package geo resolves client IP addresses to locations.
package geo

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/netip"
	"sync"

	"github.com/oschwald/geoip2-golang"

	"github.com/artpar/pulse/domain/event"
	"github.com/artpar/pulse/ports"
)

// ErrUnknownAddr is returned when an address has no location.
var ErrUnknownAddr = errors.New("geo: unknown address")

// MaxMind resolves addresses with a GeoLite2/GeoIP2 City database.
type MaxMind struct {
	reader *geoip2.Reader
	lang   string
}

// OpenMaxMind opens the .mmdb file at path.
func OpenMaxMind(path string) (*MaxMind, error) {
	r, err := geoip2.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open geoip database: %w", err)
	}
	return &MaxMind{reader: r, lang: "en"}, nil
}

// Lookup returns the city-level location of ip.
func (m *MaxMind) Lookup(_ context.Context, ip netip.Addr) (event.Geo, error) {
	rec, err := m.reader.City(net.IP(ip.AsSlice()))
	if err != nil {
		return event.Geo{}, fmt.Errorf("lookup %s: %w", ip, err)
	}
	if rec.Country.IsoCode == "" {
		return event.Geo{}, ErrUnknownAddr
	}

	g := event.Geo{
		Country:   rec.Country.IsoCode,
		City:      rec.City.Names[m.lang],
		Latitude:  rec.Location.Latitude,
		Longitude: rec.Location.Longitude,
		Timezone:  rec.Location.TimeZone,
	}
	if len(rec.Subdivisions) > 0 {
		g.Region = rec.Subdivisions[0].IsoCode
	}
	return g, nil
}

// Close releases the database.
func (m *MaxMind) Close() error {
	return m.reader.Close()
}

// Noop never resolves anything.
type Noop struct{}

// Lookup always returns ErrUnknownAddr.
func (Noop) Lookup(context.Context, netip.Addr) (event.Geo, error) {
	return event.Geo{}, ErrUnknownAddr
}

// Static resolves from a fixed table. Useful in tests and local setups.
type Static struct {
	mu    sync.RWMutex
	table map[netip.Addr]event.Geo
}

// NewStatic creates an empty table.
func NewStatic() *Static {
	return &Static{table: make(map[netip.Addr]event.Geo)}
}

// Add maps ip to g.
func (s *Static) Add(ip netip.Addr, g event.Geo) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.table[ip] = g
}

// Lookup returns the mapped location of ip.
func (s *Static) Lookup(_ context.Context, ip netip.Addr) (event.Geo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	g, ok := s.table[ip]
	if !ok {
		return event.Geo{}, ErrUnknownAddr
	}
	return g, nil
}

// Interface compliance checks.
var (
	_ ports.GeoResolver = (*MaxMind)(nil)
	_ ports.GeoResolver = Noop{}
	_ ports.GeoResolver = (*Static)(nil)
)
