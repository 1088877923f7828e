package app

import (
	"context"
	"errors"
	"net/netip"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/artpar/pulse/domain/event"
	"github.com/artpar/pulse/ports"
)

// Enrichment error tags recorded in event _meta.
const (
	TagGeoUnavailable  = "geo_unavailable"
	TagGeoLookupFailed = "geo_lookup_failed"
)

// Enricher adds server-side context to validated events.
type Enricher struct {
	geo     ports.GeoResolver // nil disables geo lookup
	clock   ports.Clock
	timeout time.Duration
	logger  zerolog.Logger
}

// NewEnricher creates an enricher. A zero timeout means no lookup deadline.
func NewEnricher(geo ports.GeoResolver, clock ports.Clock, timeout time.Duration, logger zerolog.Logger) *Enricher {
	return &Enricher{
		geo:     geo,
		clock:   clock,
		timeout: timeout,
		logger:  logger.With().Str("service", "enricher").Logger(),
	}
}

// Source describes where a batch came from.
type Source struct {
	ClientIP   string
	SDKVersion string
	BatchID    string
}

// EnrichBatch returns enriched copies of events. The client IP is resolved
// once for the whole batch; a failed lookup marks every event as not
// enriched and never drops one.
func (e *Enricher) EnrichBatch(ctx context.Context, events []event.Event, src Source) []event.Event {
	now := e.clock.Now()
	geo, tag := e.lookup(ctx, src.ClientIP)

	out := make([]event.Event, len(events))
	for i, ev := range events {
		out[i] = enrichOne(ev, now, src, geo, tag)
	}
	return out
}

func enrichOne(ev event.Event, now time.Time, src Source, geo *event.Geo, tag string) event.Event {
	ev.ReceivedAt = now
	if ev.Device != nil {
		d := *ev.Device
		d.Platform = strings.ToLower(strings.TrimSpace(d.Platform))
		ev.Device = &d
	}
	if geo != nil {
		g := *geo
		ev.Geo = &g
	}

	meta := event.Meta{
		Enriched:   tag == "",
		SDKVersion: src.SDKVersion,
		BatchID:    src.BatchID,
	}
	if ev.Meta != nil && ev.Meta.SDKVersion != "" && meta.SDKVersion == "" {
		meta.SDKVersion = ev.Meta.SDKVersion
	}
	if tag != "" {
		meta.Errors = []string{tag}
	}
	ev.Meta = &meta
	return ev
}

// lookup resolves ip. It returns no location and no tag when the address
// is absent or not public: there is nothing to resolve.
func (e *Enricher) lookup(ctx context.Context, ip string) (*event.Geo, string) {
	if e.geo == nil {
		return nil, ""
	}
	addr, ok := PublicAddr(ip)
	if !ok {
		return nil, ""
	}

	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	g, err := e.geo.Lookup(ctx, addr)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return nil, TagGeoUnavailable
		}
		e.logger.Debug().Err(err).Str("ip", addr.String()).Msg("geo lookup failed")
		return nil, TagGeoLookupFailed
	}
	return &g, ""
}

// PublicAddr parses ip and reports whether it is a routable public address.
// Private, loopback, link-local, multicast and unspecified addresses are not.
func PublicAddr(ip string) (netip.Addr, bool) {
	addr, err := netip.ParseAddr(strings.TrimSpace(ip))
	if err != nil {
		return netip.Addr{}, false
	}
	addr = addr.Unmap()
	if addr.IsPrivate() || addr.IsLoopback() || addr.IsLinkLocalUnicast() ||
		addr.IsLinkLocalMulticast() || addr.IsMulticast() || addr.IsUnspecified() {
		return netip.Addr{}, false
	}
	return addr, true
}
