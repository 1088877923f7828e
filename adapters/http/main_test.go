package http_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/artpar/pulse/adapters/clock"
	"github.com/artpar/pulse/adapters/hasher"
	apihttp "github.com/artpar/pulse/adapters/http"
	"github.com/artpar/pulse/adapters/http/admin"
	"github.com/artpar/pulse/adapters/idgen"
	"github.com/artpar/pulse/adapters/memory"
	"github.com/artpar/pulse/adapters/metrics"
	"github.com/artpar/pulse/adapters/render"
	"github.com/artpar/pulse/adapters/sqlite"
	"github.com/artpar/pulse/app"
	"github.com/artpar/pulse/domain/cost"
	"github.com/artpar/pulse/domain/event"
)

var baseTime = time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)

const adminToken = "test-admin-token"

type server struct {
	router  http.Handler
	rawKey  string
	clock   *clock.Fake
	keys    *app.KeyService
	buffers *app.BufferManager
	exports *app.ExportService
	metrics *metrics.Collector
}

func newServer(t *testing.T, limit int) *server {
	t.Helper()
	logger := zerolog.Nop()
	clk := clock.NewFake(baseTime)

	db, err := sqlite.Open(filepath.Join(t.TempDir(), "pulse.db"))
	if err != nil {
		t.Fatalf("open database: %v", err)
	}
	if err := db.Migrate(); err != nil {
		db.Close()
		t.Fatalf("migrate: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	events := sqlite.NewEventStore(db)
	cache := memory.NewCache(clk)
	m := metrics.NewWithRegistry(prometheus.NewRegistry())

	keys := app.NewKeyService(app.KeyDeps{
		Store:  memory.NewKeyStore(),
		Hasher: hasher.Plain{},
		Clock:  clk,
		IDGen:  idgen.NewSequential("key"),
		Logger: logger,
	}, time.Minute)
	rawKey, _, err := keys.CreateKey(context.Background(), "proj-1", "test")
	if err != nil {
		t.Fatalf("CreateKey() error = %v", err)
	}

	bufCfg := app.DefaultBufferConfig()
	bufCfg.FlushSize = 1000
	buffers := app.NewBufferManager(events, bufCfg, logger, m)
	ingest := app.NewIngestionService(app.IngestionDeps{
		Limiter:  app.NewRateLimiter(cache, clk, logger, limit),
		Enricher: app.NewEnricher(nil, clk, 0, logger),
		Buffers:  buffers,
		Clock:    clk,
		IDGen:    idgen.NewSequential("batch"),
		Logger:   logger,
		Observer: m,
	}, event.DefaultRules())

	engine := app.NewEngine(app.EngineDeps{
		Query:    events,
		Cache:    cache,
		Clock:    clk,
		Logger:   logger,
		Observer: m,
	})
	exports := app.NewExportService(app.ExportDeps{
		Store:     memory.NewExportStore(),
		Objects:   memory.NewObjectStore("https://files.test", clk),
		Engine:    engine,
		Renderers: render.All(),
		Clock:     clk,
		IDGen:     idgen.NewSequential("exp"),
		Logger:    logger,
		Observer:  m,
	}, app.DefaultExportConfig())
	t.Cleanup(exports.Close)

	rollups := sqlite.NewRollupStore(db)
	aggregator := app.NewMetricsAggregator(app.AggregatorDeps{
		Query:    events,
		Rollups:  rollups,
		Exports:  exports,
		Clock:    clk,
		Logger:   logger,
		Observer: m,
	}, app.DefaultAggregatorConfig())
	costs := app.NewCostMonitor(cache, clk, logger, cost.DefaultPriceTable())

	adminHandler := admin.NewHandler(admin.Deps{
		Keys:       keys,
		Buffers:    buffers,
		Aggregator: aggregator,
		Exports:    exports,
		Checks:     map[string]admin.HealthChecker{"events": events},
		Token:      adminToken,
		Logger:     logger,
	})

	router := apihttp.NewRouter(apihttp.RouterConfig{
		Ingest:         apihttp.NewIngestHandler(ingest, clk, logger, 0),
		Analytics:      apihttp.NewAnalyticsHandler(engine, aggregator, rollups, clk, logger),
		Exports:        apihttp.NewExportsHandler(exports, clk, logger, 0),
		Costs:          apihttp.NewCostsHandler(costs, logger, 0),
		Health:         apihttp.NewHealthHandler(map[string]apihttp.HealthChecker{"events": events}),
		Auth:           apihttp.NewAuth(keys, adminToken, m, logger),
		Metrics:        m,
		MetricsHandler: http.NotFoundHandler(),
		AdminHandler:   adminHandler.Router(),
		EnableOpenAPI:  true,
		Version:        "test",
	}, logger)

	return &server{
		router:  router,
		rawKey:  rawKey,
		clock:   clk,
		keys:    keys,
		buffers: buffers,
		exports: exports,
		metrics: m,
	}
}

// do sends a request with optional JSON body and headers (name, value pairs).
func (s *server) do(t *testing.T, method, path string, body any, headers ...string) *httptest.ResponseRecorder {
	t.Helper()

	var r io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		r = bytes.NewBufferString(b)
	default:
		data, err := json.Marshal(b)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		r = bytes.NewReader(data)
	}

	req := httptest.NewRequest(method, path, r)
	if r != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}

	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func (s *server) withKey() []string {
	return []string{"X-API-Key", s.rawKey}
}

func withAdmin() []string {
	return []string{apihttp.AdminTokenHeader, adminToken}
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), v); err != nil {
		t.Fatalf("decode body %q: %v", rec.Body.String(), err)
	}
}

// errorCode returns the code of the first JSON:API error in the body.
func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var doc struct {
		Errors []struct {
			Code string `json:"code"`
		} `json:"errors"`
	}
	decode(t, rec, &doc)
	if len(doc.Errors) == 0 {
		t.Fatalf("no errors in body %q", rec.Body.String())
	}
	return doc.Errors[0].Code
}

func testEvent(id, user string, typ event.Type, name string, at time.Time) map[string]any {
	return map[string]any{
		"eventId":   id,
		"type":      typ,
		"name":      name,
		"userId":    user,
		"sessionId": "s-" + user,
		"timestamp": at.Format(time.RFC3339),
	}
}
