package geo_test

import (
	"context"
	"errors"
	"net/netip"
	"path/filepath"
	"testing"

	"github.com/artpar/pulse/adapters/geo"
	"github.com/artpar/pulse/domain/event"
)

func TestOpenMaxMind_MissingFile(t *testing.T) {
	if _, err := geo.OpenMaxMind(filepath.Join(t.TempDir(), "missing.mmdb")); err == nil {
		t.Error("expected error for missing database")
	}
}

func TestNoop(t *testing.T) {
	_, err := geo.Noop{}.Lookup(context.Background(), netip.MustParseAddr("8.8.8.8"))
	if !errors.Is(err, geo.ErrUnknownAddr) {
		t.Errorf("err = %v, want ErrUnknownAddr", err)
	}
}

func TestStatic(t *testing.T) {
	s := geo.NewStatic()
	ip := netip.MustParseAddr("203.0.113.7")
	s.Add(ip, event.Geo{Country: "NZ", City: "Wellington"})

	g, err := s.Lookup(context.Background(), ip)
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if g.Country != "NZ" {
		t.Errorf("Country = %s, want NZ", g.Country)
	}

	if _, err := s.Lookup(context.Background(), netip.MustParseAddr("198.51.100.1")); !errors.Is(err, geo.ErrUnknownAddr) {
		t.Errorf("err = %v, want ErrUnknownAddr", err)
	}
}
