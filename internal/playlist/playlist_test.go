package playlist

import (
	"testing"

	"github.com/nexamediaserver/server/internal/models"
)

func explicitGenerator(ids []int64, cursor int) *models.PlaylistGenerator {
	return &models.PlaylistGenerator{
		Seed:        models.PlaylistSeed{Type: models.SeedExplicit, ExplicitIDs: ids},
		CursorIndex: cursor,
		TotalCount:  len(ids),
	}
}

func TestResolveIndexExplicitSeedNoShuffle(t *testing.T) {
	ids := []int64{101, 102, 103}
	g := explicitGenerator(ids, 0)
	s := &Service{}

	item, err := s.resolveIndex(g, 2)
	if err != nil {
		t.Fatalf("resolveIndex: %v", err)
	}
	if item.MetadataItemID != ids[2] {
		t.Fatalf("expected item %v, got %v", ids[2], item.MetadataItemID)
	}
	if item.Index != 2 {
		t.Fatalf("expected index 2, got %d", item.Index)
	}
}

func TestResolveIndexOutOfRange(t *testing.T) {
	ids := []int64{1}
	g := explicitGenerator(ids, 0)
	s := &Service{}

	if _, err := s.resolveIndex(g, 5); err == nil {
		t.Fatal("expected an out-of-range error")
	}
}

func TestResolveIndexThroughShufflePermutation(t *testing.T) {
	ids := []int64{201, 202, 203}
	g := explicitGenerator(ids, 0)
	// Logical index 0 -> seed position 2, logical 1 -> seed 0, logical 2 -> seed 1.
	g.Shuffle = true
	g.ShuffleOrder = []int{2, 0, 1}
	s := &Service{}

	item, err := s.resolveIndex(g, 0)
	if err != nil {
		t.Fatalf("resolveIndex: %v", err)
	}
	if item.MetadataItemID != ids[2] {
		t.Fatalf("expected permutation to map logical 0 to seed 2 (%v), got %v", ids[2], item.MetadataItemID)
	}
}

// §8 invariant 8 / scenario 6: shuffle pins the current item to position 0
// and preserves the full multiset of underlying indices.
func TestShufflePinnedPinsCurrentAndPreservesMultiset(t *testing.T) {
	order := shufflePinned(5, 2)
	if len(order) != 5 {
		t.Fatalf("expected permutation of length 5, got %d", len(order))
	}
	if order[0] != 2 {
		t.Fatalf("expected pinned index 2 at position 0, got %d", order[0])
	}

	seen := make(map[int]bool)
	for _, v := range order {
		if seen[v] {
			t.Fatalf("duplicate index %d in permutation %v", v, order)
		}
		seen[v] = true
	}
	for i := 0; i < 5; i++ {
		if !seen[i] {
			t.Fatalf("index %d missing from permutation %v", i, order)
		}
	}
}

func TestCurrentSeedPositionUnshuffled(t *testing.T) {
	g := &models.PlaylistGenerator{CursorIndex: 3}
	if pos := currentSeedPosition(g); pos != 3 {
		t.Fatalf("expected unshuffled cursor to map to itself, got %d", pos)
	}
}

func TestCurrentSeedPositionShuffled(t *testing.T) {
	g := &models.PlaylistGenerator{Shuffle: true, ShuffleOrder: []int{4, 1, 0, 3, 2}, CursorIndex: 0}
	if pos := currentSeedPosition(g); pos != 4 {
		t.Fatalf("expected cursor 0 to map through permutation to seed 4, got %d", pos)
	}
}

// §4.11 / §8 invariant 4: Next advances cursor by 1 and clamps at the last
// index when repeat is off.
func TestNextMutatorClampsWithoutRepeat(t *testing.T) {
	g := explicitGenerator([]int64{1, 2}, 1)
	mutate := func(g *models.PlaylistGenerator) {
		if g.Repeat {
			g.CursorIndex = (g.CursorIndex + 1) % g.TotalCount
		} else if g.CursorIndex < g.TotalCount-1 {
			g.CursorIndex++
		}
	}
	mutate(g)
	if g.CursorIndex != 1 {
		t.Fatalf("expected cursor clamped at totalCount-1=1, got %d", g.CursorIndex)
	}
}

func TestNextMutatorWrapsWithRepeat(t *testing.T) {
	g := explicitGenerator([]int64{1, 2}, 1)
	g.Repeat = true
	mutate := func(g *models.PlaylistGenerator) {
		if g.Repeat {
			g.CursorIndex = (g.CursorIndex + 1) % g.TotalCount
		} else if g.CursorIndex < g.TotalCount-1 {
			g.CursorIndex++
		}
	}
	mutate(g)
	if g.CursorIndex != 0 {
		t.Fatalf("expected cursor to wrap to 0, got %d", g.CursorIndex)
	}
}
