package sqlite_test

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/artpar/pulse/adapters/sqlite"
	"github.com/artpar/pulse/domain/analytics"
	"github.com/artpar/pulse/domain/event"
	"github.com/artpar/pulse/domain/export"
	"github.com/artpar/pulse/domain/key"
	"github.com/artpar/pulse/ports"
)

var baseTime = time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)

func setupTestDB(t *testing.T) (*sqlite.DB, func()) {
	t.Helper()

	f, err := os.CreateTemp("", "pulse-test-*.db")
	if err != nil {
		t.Fatalf("create temp file: %v", err)
	}
	path := f.Name()
	f.Close()

	db, err := sqlite.Open(path)
	if err != nil {
		os.Remove(path)
		t.Fatalf("open database: %v", err)
	}

	if err := db.Migrate(); err != nil {
		db.Close()
		os.Remove(path)
		t.Fatalf("migrate: %v", err)
	}

	cleanup := func() {
		db.Close()
		os.Remove(path)
	}
	return db, cleanup
}

func ev(id, user string, typ event.Type, name string, at time.Time) event.Event {
	return event.Event{
		ID:        id,
		ProjectID: "proj-1",
		Type:      typ,
		Name:      name,
		UserID:    user,
		SessionID: "s-" + user,
		Timestamp: at,
	}
}

func dayRange(from time.Time, days int) analytics.Range {
	start := analytics.DayStart(from)
	return analytics.Range{Start: start, End: start.AddDate(0, 0, days)}
}

func TestMigrate_Idempotent(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	if err := db.Migrate(); err != nil {
		t.Fatalf("second migrate: %v", err)
	}
}

func TestOpen_Memory(t *testing.T) {
	db, err := sqlite.Open(sqlite.MemoryPath)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer db.Close()

	if err := db.Migrate(); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	store := sqlite.NewEventStore(db)
	if err := store.WriteEvents(context.Background(), []event.Event{ev("e1", "u1", event.TypeCustom, "x", baseTime)}); err != nil {
		t.Fatalf("write: %v", err)
	}
	n, err := store.CountEvents(context.Background(), "proj-1", nil, dayRange(baseTime, 1))
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 1 {
		t.Errorf("count = %d, want 1", n)
	}
}

// -----------------------------------------------------------------------------
// EventStore Tests
// -----------------------------------------------------------------------------

func TestEventStore_WriteRoundTrip(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	store := sqlite.NewEventStore(db)
	ctx := context.Background()

	e := ev("e1", "u1", event.TypeScreenView, "Home", baseTime)
	e.Properties = map[string]any{"duration": 12.5, "tab": "feed"}
	e.Device = &event.Device{Platform: "iOS", OSVersion: "17.2"}
	e.Geo = &event.Geo{Country: "DE", City: "Berlin"}
	e.Meta = &event.Meta{Enriched: true, BatchID: "b1"}
	e.ReceivedAt = baseTime.Add(time.Second)

	if err := store.WriteEvents(ctx, []event.Event{e}); err != nil {
		t.Fatalf("write: %v", err)
	}

	got, err := store.ListEvents(ctx, ports.EventFilter{ProjectID: "proj-1", Range: dayRange(baseTime, 1)})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("len = %d, want 1", len(got))
	}
	g := got[0]
	if !g.Timestamp.Equal(baseTime) {
		t.Errorf("Timestamp = %v, want %v", g.Timestamp, baseTime)
	}
	if d, ok := g.Duration(); !ok || d != 12.5 {
		t.Errorf("Duration = %v, %v; want 12.5, true", d, ok)
	}
	if g.Device == nil || g.Device.OSVersion != "17.2" {
		t.Errorf("Device = %+v", g.Device)
	}
	if g.Geo == nil || g.Geo.City != "Berlin" {
		t.Errorf("Geo = %+v", g.Geo)
	}
	if g.Meta == nil || !g.Meta.Enriched {
		t.Errorf("Meta = %+v", g.Meta)
	}
	if g.Platform() != "ios" {
		t.Errorf("Platform = %s, want ios", g.Platform())
	}
}

func TestEventStore_DuplicatesIgnored(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	store := sqlite.NewEventStore(db)
	ctx := context.Background()
	batch := []event.Event{
		ev("e1", "u1", event.TypeCustom, "tap", baseTime),
		ev("e2", "u1", event.TypeCustom, "tap", baseTime),
	}

	if err := store.WriteEvents(ctx, batch); err != nil {
		t.Fatalf("first write: %v", err)
	}
	if err := store.WriteEvents(ctx, batch); err != nil {
		t.Fatalf("second write: %v", err)
	}

	n, err := store.CountEvents(ctx, "proj-1", nil, dayRange(baseTime, 1))
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 2 {
		t.Errorf("count = %d, want 2", n)
	}
}

func TestEventStore_Counts(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	store := sqlite.NewEventStore(db)
	ctx := context.Background()

	android := ev("e4", "u2", event.TypeScreenView, "Home", baseTime.Add(3*time.Minute))
	android.Device = &event.Device{Platform: "Android"}
	events := []event.Event{
		ev("e1", "u1", event.TypeSessionStart, "", baseTime),
		ev("e2", "u1", event.TypeScreenView, "Home", baseTime.Add(time.Minute)),
		ev("e3", "u1", event.TypeScreenView, "Cart", baseTime.Add(2*time.Minute)),
		android,
		ev("e5", "", event.TypeCustom, "tap", baseTime.Add(4*time.Minute)),
		ev("e6", "u3", event.TypeCustom, "tap", baseTime.AddDate(0, 0, 2)),
	}
	if err := store.WriteEvents(ctx, events); err != nil {
		t.Fatalf("write: %v", err)
	}
	r := dayRange(baseTime, 1)

	users, err := store.CountDistinctUsers(ctx, "proj-1", r)
	if err != nil {
		t.Fatalf("users: %v", err)
	}
	if users != 2 {
		t.Errorf("users = %d, want 2", users)
	}

	views, err := store.CountEvents(ctx, "proj-1", []event.Type{event.TypeScreenView}, r)
	if err != nil {
		t.Fatalf("views: %v", err)
	}
	if views != 3 {
		t.Errorf("views = %d, want 3", views)
	}

	screens, err := store.CountByName(ctx, "proj-1", event.TypeScreenView, r, 1)
	if err != nil {
		t.Fatalf("by name: %v", err)
	}
	if len(screens) != 1 || screens[0].Name != "Home" || screens[0].Count != 2 {
		t.Errorf("screens = %+v, want [Home:2]", screens)
	}

	all, err := store.CountByName(ctx, "proj-1", "", r, 0)
	if err != nil {
		t.Fatalf("by name: %v", err)
	}
	if len(all) != 4 {
		t.Errorf("len(all) = %d, want 4", len(all))
	}

	types, err := store.CountByType(ctx, "proj-1", r)
	if err != nil {
		t.Fatalf("by type: %v", err)
	}
	if types[0].Name != string(event.TypeScreenView) || types[0].Count != 3 {
		t.Errorf("types[0] = %+v, want screen_view:3", types[0])
	}

	platforms, err := store.CountByPlatform(ctx, "proj-1", r)
	if err != nil {
		t.Fatalf("by platform: %v", err)
	}
	want := map[string]int{"unknown": 4, "android": 1}
	for _, p := range platforms {
		if want[p.Name] != p.Count {
			t.Errorf("platform %s = %d, want %d", p.Name, p.Count, want[p.Name])
		}
	}
}

func TestEventStore_FirstSeenAndActiveDays(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	store := sqlite.NewEventStore(db)
	ctx := context.Background()
	day0 := analytics.DayStart(baseTime)

	events := []event.Event{
		ev("e1", "old", event.TypeCustom, "x", day0.AddDate(0, 0, -3)),
		ev("e2", "old", event.TypeCustom, "x", day0.Add(time.Hour)),
		ev("e3", "new", event.TypeCustom, "x", day0.Add(2*time.Hour)),
		ev("e4", "new", event.TypeCustom, "x", day0.AddDate(0, 0, 1).Add(time.Hour)),
		ev("e5", "new", event.TypeCustom, "x", day0.AddDate(0, 0, 1).Add(2*time.Hour)),
	}
	if err := store.WriteEvents(ctx, events); err != nil {
		t.Fatalf("write: %v", err)
	}

	first, err := store.FirstSeen(ctx, "proj-1", dayRange(day0, 1))
	if err != nil {
		t.Fatalf("first seen: %v", err)
	}
	if len(first) != 1 || first[0].UserID != "new" || !first[0].Day.Equal(day0) {
		t.Errorf("first seen = %+v, want [new@%v]", first, day0)
	}

	active, err := store.ActiveUserDays(ctx, "proj-1", []time.Time{day0, day0.AddDate(0, 0, 1)})
	if err != nil {
		t.Fatalf("active days: %v", err)
	}
	if len(active) != 3 {
		t.Fatalf("len(active) = %d, want 3: %+v", len(active), active)
	}
	if !active[2].Day.Equal(day0.AddDate(0, 0, 1)) || active[2].UserID != "new" {
		t.Errorf("active[2] = %+v", active[2])
	}
}

func TestEventStore_StepEvents(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	store := sqlite.NewEventStore(db)
	ctx := context.Background()

	events := []event.Event{
		ev("e1", "u1", event.TypeSessionStart, "", baseTime),
		ev("e2", "u1", event.TypeCustom, "add_to_cart", baseTime.Add(time.Minute)),
		ev("e3", "u1", event.TypeCustom, "other", baseTime.Add(2*time.Minute)),
		ev("e4", "", event.TypeCustom, "add_to_cart", baseTime.Add(3*time.Minute)),
	}
	if err := store.WriteEvents(ctx, events); err != nil {
		t.Fatalf("write: %v", err)
	}

	got, err := store.StepEvents(ctx, "proj-1", []string{"session_start", "add_to_cart"}, dayRange(baseTime, 1))
	if err != nil {
		t.Fatalf("step events: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2", len(got))
	}
	if got[0].Name != "session_start" || got[1].Name != "add_to_cart" {
		t.Errorf("names = %s, %s", got[0].Name, got[1].Name)
	}
}

func TestEventStore_ListFilterAndPrune(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	store := sqlite.NewEventStore(db)
	ctx := context.Background()

	other := ev("e9", "u9", event.TypeCustom, "x", baseTime)
	other.ProjectID = "proj-2"
	events := []event.Event{
		ev("e1", "u1", event.TypeSessionStart, "", baseTime),
		ev("e2", "u1", event.TypeSessionEnd, "", baseTime.Add(time.Minute)),
		ev("e3", "u1", event.TypeCustom, "x", baseTime.AddDate(0, 0, -40)),
		other,
	}
	if err := store.WriteEvents(ctx, events); err != nil {
		t.Fatalf("write: %v", err)
	}

	got, err := store.ListEvents(ctx, ports.EventFilter{
		ProjectID: "proj-1",
		Types:     []event.Type{event.TypeSessionEnd},
		Range:     dayRange(baseTime, 1),
	})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 1 || got[0].ID != "e2" {
		t.Errorf("list = %+v, want [e2]", got)
	}

	projects, err := store.ActiveProjects(ctx, dayRange(baseTime, 1))
	if err != nil {
		t.Fatalf("projects: %v", err)
	}
	if len(projects) != 2 || projects[0] != "proj-1" || projects[1] != "proj-2" {
		t.Errorf("projects = %v", projects)
	}

	n, err := store.DeleteEventsBefore(ctx, baseTime.AddDate(0, 0, -30))
	if err != nil {
		t.Fatalf("prune: %v", err)
	}
	if n != 1 {
		t.Errorf("pruned = %d, want 1", n)
	}
}

func TestEventStore_HealthAndClose(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	store := sqlite.NewEventStore(db)
	if err := store.HealthCheck(context.Background()); err != nil {
		t.Errorf("health: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Errorf("close: %v", err)
	}
}

// -----------------------------------------------------------------------------
// RollupStore Tests
// -----------------------------------------------------------------------------

func TestRollupStore_Upsert(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	store := sqlite.NewRollupStore(db)
	ctx := context.Background()
	start := analytics.DayStart(baseTime)

	r := analytics.Rollup{
		ProjectID:   "proj-1",
		Period:      analytics.PeriodDay,
		Start:       start,
		End:         start.AddDate(0, 0, 1),
		ActiveUsers: 10,
		TopScreens:  []analytics.NamedCount{{Name: "Home", Count: 4}},
		ComputedAt:  baseTime,
	}
	if err := store.SaveRollup(ctx, r); err != nil {
		t.Fatalf("save: %v", err)
	}
	r.ActiveUsers = 12
	if err := store.SaveRollup(ctx, r); err != nil {
		t.Fatalf("resave: %v", err)
	}

	got, err := store.GetRollup(ctx, "proj-1", analytics.PeriodDay, start)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.ActiveUsers != 12 {
		t.Errorf("ActiveUsers = %d, want 12", got.ActiveUsers)
	}
	if len(got.TopScreens) != 1 || got.TopScreens[0].Name != "Home" {
		t.Errorf("TopScreens = %+v", got.TopScreens)
	}

	list, err := store.ListRollups(ctx, "proj-1", analytics.PeriodDay, dayRange(start, 7))
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 1 {
		t.Errorf("len(list) = %d, want 1", len(list))
	}

	if _, err := store.GetRollup(ctx, "proj-1", analytics.PeriodWeek, start); !errors.Is(err, ports.ErrNotFound) {
		t.Errorf("missing rollup err = %v, want ErrNotFound", err)
	}

	n, err := store.DeleteRollupsBefore(ctx, start.AddDate(0, 0, 1))
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	if n != 1 {
		t.Errorf("deleted = %d, want 1", n)
	}
}

// -----------------------------------------------------------------------------
// ExportStore Tests
// -----------------------------------------------------------------------------

func newRecord(id string, created time.Time) export.Record {
	return export.Record{
		ID:         id,
		ProjectID:  "proj-1",
		UserID:     "owner",
		ReportType: export.ReportOverview,
		Format:     export.FormatCSV,
		Status:     export.StatusPending,
		DateRange:  dayRange(baseTime, 7),
		Options:    export.Options{Steps: []string{"a", "b"}},
		CreatedAt:  created,
		UpdatedAt:  created,
		ExpiresAt:  created.AddDate(0, 0, 7),
	}
}

func TestExportStore_Lifecycle(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	store := sqlite.NewExportStore(db)
	ctx := context.Background()

	if err := store.Create(ctx, newRecord("x1", baseTime)); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := store.Create(ctx, newRecord("x2", baseTime.Add(time.Minute))); err != nil {
		t.Fatalf("create: %v", err)
	}

	active, err := store.CountActive(ctx, "proj-1")
	if err != nil {
		t.Fatalf("count active: %v", err)
	}
	if active != 2 {
		t.Errorf("active = %d, want 2", active)
	}

	r, err := store.Get(ctx, "x1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if len(r.Options.Steps) != 2 || !r.DateRange.Start.Equal(analytics.DayStart(baseTime)) {
		t.Errorf("record = %+v", r)
	}

	r.Status = export.StatusCompleted
	r.Progress = 100
	r.File = &export.File{Key: "exports/proj-1/x1.csv", Size: 42}
	if err := store.Update(ctx, r); err != nil {
		t.Fatalf("update: %v", err)
	}

	got, err := store.Get(ctx, "x1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != export.StatusCompleted || got.File == nil || got.File.Size != 42 {
		t.Errorf("updated = %+v", got)
	}

	list, err := store.ListByProject(ctx, "proj-1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 2 || list[0].ID != "x2" {
		t.Errorf("list order = %v, want x2 first", list)
	}

	expired, err := store.ListExpired(ctx, baseTime.AddDate(0, 0, 7))
	if err != nil {
		t.Fatalf("expired: %v", err)
	}
	if len(expired) != 1 || expired[0].ID != "x1" {
		t.Errorf("expired = %v, want [x1]", expired)
	}

	if err := store.Delete(ctx, "x1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := store.Get(ctx, "x1"); !errors.Is(err, ports.ErrNotFound) {
		t.Errorf("get deleted err = %v, want ErrNotFound", err)
	}
	if err := store.Delete(ctx, "x1"); !errors.Is(err, ports.ErrNotFound) {
		t.Errorf("delete twice err = %v, want ErrNotFound", err)
	}
	if err := store.Update(ctx, r); !errors.Is(err, ports.ErrNotFound) {
		t.Errorf("update deleted err = %v, want ErrNotFound", err)
	}
}

// -----------------------------------------------------------------------------
// KeyStore Tests
// -----------------------------------------------------------------------------

func TestKeyStore_CreateGetRevoke(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	store := sqlite.NewKeyStore(db)
	ctx := context.Background()

	k := key.Key{
		ID:        "key-1",
		ProjectID: "proj-1",
		Name:      "ios",
		Prefix:    "pk_abcdefghi",
		Hash:      []byte("hash"),
		CreatedAt: baseTime,
	}
	if err := store.Create(ctx, k); err != nil {
		t.Fatalf("create: %v", err)
	}

	keys, err := store.Get(ctx, "pk_abcdefghi")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if len(keys) != 1 || keys[0].ProjectID != "proj-1" || string(keys[0].Hash) != "hash" {
		t.Fatalf("keys = %+v", keys)
	}
	if keys[0].RevokedAt != nil {
		t.Error("new key should not be revoked")
	}

	if err := store.UpdateLastUsed(ctx, "key-1", baseTime.Add(time.Hour)); err != nil {
		t.Fatalf("last used: %v", err)
	}
	if err := store.Revoke(ctx, "key-1", baseTime.Add(2*time.Hour)); err != nil {
		t.Fatalf("revoke: %v", err)
	}

	list, err := store.ListByProject(ctx, "proj-1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 1 || list[0].RevokedAt == nil || list[0].LastUsed == nil {
		t.Errorf("list = %+v", list)
	}

	if err := store.Revoke(ctx, "missing", baseTime); !errors.Is(err, ports.ErrNotFound) {
		t.Errorf("revoke missing err = %v, want ErrNotFound", err)
	}
}
