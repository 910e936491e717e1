package postgres

import (
	"testing"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

func TestULIDGeneratorProducesSortableUniqueIDs(t *testing.T) {
	g := NewULIDGenerator()

	seen := make(map[string]struct{}, 100)
	for i := 0; i < 100; i++ {
		id := g.Generate()
		if _, err := ulid.ParseStrict(id); err != nil {
			t.Fatalf("generated id %q is not a ULID: %v", id, err)
		}
		if _, dup := seen[id]; dup {
			t.Fatalf("duplicate id %q", id)
		}
		seen[id] = struct{}{}
	}
}

func TestUUIDGenerator(t *testing.T) {
	id := NewUUIDGenerator().Generate()
	parsed, err := uuid.Parse(id)
	if err != nil {
		t.Fatalf("generated id %q is not a UUID: %v", id, err)
	}
	if parsed.Version() != 4 {
		t.Fatalf("expected UUIDv4, got version %d", parsed.Version())
	}
}
