package app_test

import (
	"context"
	"errors"
	"net/netip"
	"testing"
	"time"

	"github.com/artpar/pulse/adapters/clock"
	"github.com/artpar/pulse/adapters/geo"
	"github.com/artpar/pulse/app"
	"github.com/artpar/pulse/domain/event"
)

type slowGeo struct{}

func (slowGeo) Lookup(ctx context.Context, _ netip.Addr) (event.Geo, error) {
	<-ctx.Done()
	return event.Geo{}, ctx.Err()
}

type brokenGeo struct{}

func (brokenGeo) Lookup(context.Context, netip.Addr) (event.Geo, error) {
	return event.Geo{}, errors.New("corrupt database")
}

func TestEnricher_Geo(t *testing.T) {
	clk := clock.NewFake(baseTime)
	static := geo.NewStatic()
	static.Add(netip.MustParseAddr("81.2.69.160"), event.Geo{Country: "GB", City: "London"})
	en := app.NewEnricher(static, clk, time.Second, testLogger)

	in := []event.Event{
		{ID: "e1", Type: event.TypeCustom, Device: &event.Device{Platform: " iOS "}},
		{ID: "e2", Type: event.TypeCustom},
	}
	out := en.EnrichBatch(context.Background(), in, app.Source{ClientIP: "81.2.69.160", SDKVersion: "2.1.0", BatchID: "b1"})

	if len(out) != 2 {
		t.Fatalf("len(out) = %d, want 2", len(out))
	}
	for _, e := range out {
		if e.Geo == nil || e.Geo.Country != "GB" {
			t.Errorf("%s Geo = %+v, want GB", e.ID, e.Geo)
		}
		if !e.ReceivedAt.Equal(baseTime) {
			t.Errorf("%s ReceivedAt = %v, want %v", e.ID, e.ReceivedAt, baseTime)
		}
		if e.Meta == nil || !e.Meta.Enriched || e.Meta.SDKVersion != "2.1.0" || e.Meta.BatchID != "b1" {
			t.Errorf("%s Meta = %+v", e.ID, e.Meta)
		}
	}
	if out[0].Device.Platform != "ios" {
		t.Errorf("Platform = %q, want ios", out[0].Device.Platform)
	}
	if in[0].Device.Platform != " iOS " || in[0].Meta != nil {
		t.Error("EnrichBatch must not modify its input")
	}
}

func TestEnricher_LookupFailures(t *testing.T) {
	tests := []struct {
		name string
		geo  interface {
			Lookup(context.Context, netip.Addr) (event.Geo, error)
		}
		ip      string
		wantTag string
	}{
		{"timeout", slowGeo{}, "81.2.69.160", app.TagGeoUnavailable},
		{"error", brokenGeo{}, "81.2.69.160", app.TagGeoLookupFailed},
		{"private address", brokenGeo{}, "10.0.0.1", ""},
		{"no address", brokenGeo{}, "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			en := app.NewEnricher(tt.geo, clock.NewFake(baseTime), 10*time.Millisecond, testLogger)
			out := en.EnrichBatch(context.Background(), []event.Event{{ID: "e1"}}, app.Source{ClientIP: tt.ip})

			meta := out[0].Meta
			if tt.wantTag == "" {
				if !meta.Enriched || len(meta.Errors) != 0 {
					t.Errorf("Meta = %+v, want enriched without errors", meta)
				}
				return
			}
			if meta.Enriched {
				t.Error("Enriched should be false after a failed lookup")
			}
			if len(meta.Errors) != 1 || meta.Errors[0] != tt.wantTag {
				t.Errorf("Errors = %v, want [%s]", meta.Errors, tt.wantTag)
			}
			if out[0].Geo != nil {
				t.Error("Geo should be unset after a failed lookup")
			}
		})
	}
}

func TestPublicAddr(t *testing.T) {
	tests := []struct {
		ip   string
		want bool
	}{
		{"81.2.69.160", true},
		{"::ffff:81.2.69.160", true},
		{"2001:4860:4860::8888", true},
		{"192.168.1.1", false},
		{"127.0.0.1", false},
		{"::1", false},
		{"169.254.1.1", false},
		{"0.0.0.0", false},
		{"not-an-ip", false},
	}
	for _, tt := range tests {
		if _, got := app.PublicAddr(tt.ip); got != tt.want {
			t.Errorf("PublicAddr(%q) = %v, want %v", tt.ip, got, tt.want)
		}
	}
}
