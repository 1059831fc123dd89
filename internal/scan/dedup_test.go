package scan

import (
	"testing"

	"github.com/nexamediaserver/server/internal/models"
)

func TestDedupResolveCachesWithinScan(t *testing.T) {
	d := NewDedup(nil)
	calls := 0
	factory := func(key DedupKey) (*models.MetadataItem, error) {
		calls++
		return &models.MetadataItem{ID: 1, Title: key.Title}, nil
	}
	key := DedupKey{MetadataType: models.MetadataTypeMovie, Provider: "tmdb", ExternalID: "27205", SectionID: 1, Title: "Inception"}

	first, err := d.Resolve(key, nil, factory)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	second, err := d.Resolve(key, nil, factory)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected factory invoked once, got %d calls", calls)
	}
	if first != second {
		t.Fatal("expected the cached item to be returned on the second call")
	}
}

func TestDedupResolveUsesLookupBeforeFactory(t *testing.T) {
	existing := &models.MetadataItem{ID: 42, Title: "Existing"}
	lookup := func(sectionID int64, mt models.MetadataType, ids map[string]string) (*models.MetadataItem, bool, error) {
		return existing, true, nil
	}
	d := NewDedup(lookup)
	factoryCalled := false
	factory := func(key DedupKey) (*models.MetadataItem, error) {
		factoryCalled = true
		return &models.MetadataItem{ID: 1}, nil
	}

	item, err := d.Resolve(DedupKey{SectionID: 1}, map[string]string{"tmdb": "27205"}, factory)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if item != existing {
		t.Fatal("expected the looked-up item to be returned")
	}
	if factoryCalled {
		t.Fatal("expected factory not to be called when lookup finds a match")
	}
}

func TestDedupResolveFallsBackToFactoryWhenLookupMisses(t *testing.T) {
	lookup := func(sectionID int64, mt models.MetadataType, ids map[string]string) (*models.MetadataItem, bool, error) {
		return nil, false, nil
	}
	d := NewDedup(lookup)
	created := &models.MetadataItem{ID: 7}
	factory := func(key DedupKey) (*models.MetadataItem, error) { return created, nil }

	item, err := d.Resolve(DedupKey{SectionID: 1}, nil, factory)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if item != created {
		t.Fatal("expected factory-created item when lookup misses")
	}
}

// §4.4 "orphan prevention: the cache is scoped to one scan": Reset must wipe
// any cached entries so a new scan never observes stale cross-scan state.
func TestDedupResetClearsCache(t *testing.T) {
	d := NewDedup(nil)
	calls := 0
	factory := func(key DedupKey) (*models.MetadataItem, error) {
		calls++
		return &models.MetadataItem{ID: int64(calls)}, nil
	}
	key := DedupKey{SectionID: 1, Title: "Inception"}

	first, _ := d.Resolve(key, nil, factory)
	d.Reset()
	second, _ := d.Resolve(key, nil, factory)

	if calls != 2 {
		t.Fatalf("expected factory invoked again after Reset, got %d calls", calls)
	}
	if first == second {
		t.Fatal("expected a distinct item after Reset cleared the cache")
	}
}
