package idgen_test

import (
	"regexp"
	"strings"
	"sync"
	"testing"

	"github.com/artpar/pulse/adapters/idgen"
)

var uuidV7 = regexp.MustCompile(`^[0-9a-f]{8}-[0-9a-f]{4}-7[0-9a-f]{3}-[89ab][0-9a-f]{3}-[0-9a-f]{12}$`)

func TestUUID_Format(t *testing.T) {
	id := idgen.UUID{}.New()
	if !uuidV7.MatchString(id) {
		t.Errorf("ID %s is not a UUIDv7", id)
	}
}

func TestUUID_Prefix(t *testing.T) {
	id := idgen.UUID{Prefix: "exp_"}.New()
	if !strings.HasPrefix(id, "exp_") || !uuidV7.MatchString(strings.TrimPrefix(id, "exp_")) {
		t.Errorf("ID %s, want exp_ + UUIDv7", id)
	}
}

func TestUUID_Unique(t *testing.T) {
	g := idgen.UUID{}
	seen := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		id := g.New()
		if seen[id] {
			t.Fatalf("duplicate ID %s", id)
		}
		seen[id] = true
	}
}

func TestSequential(t *testing.T) {
	g := idgen.NewSequential("exp_")

	if got := g.New(); got != "exp_1" {
		t.Errorf("first = %s, want exp_1", got)
	}
	if got := g.New(); got != "exp_2" {
		t.Errorf("second = %s, want exp_2", got)
	}
}

func TestSequential_Concurrent(t *testing.T) {
	g := idgen.NewSequential("")
	var wg sync.WaitGroup
	var mu sync.Mutex
	seen := make(map[string]bool)

	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			id := g.New()
			mu.Lock()
			seen[id] = true
			mu.Unlock()
		}()
	}
	wg.Wait()

	if len(seen) != 50 {
		t.Errorf("got %d unique IDs, want 50", len(seen))
	}
}
