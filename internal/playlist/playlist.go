// Package playlist implements the playlist generator and navigation
// service (§4.11): lazy chunked materialization, cursor/shuffle/repeat
// navigation with at-most-once index mutation.
package playlist

import (
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nexamediaserver/server/internal/lockpool"
	"github.com/nexamediaserver/server/internal/models"
	"github.com/nexamediaserver/server/internal/repository"
)

// DefaultChunkSize is the default materialization chunk size (§4.11).
const DefaultChunkSize = 20

// idempotencyWindow is how long a repeated Next/Previous call from the same
// session returns the prior result instead of mutating the cursor again.
const idempotencyWindow = time.Second

// ItemSource resolves the child items backing a container or library seed.
// The playlist service only depends on this narrow interface so it never
// imports internal/repository's metadata/library-section aggregates
// directly; internal/api wires a concrete implementation at startup.
type ItemSource interface {
	// SeedCount returns the total item count for a seed (album/season/show
	// child count, or a library's total filtered count).
	SeedCount(seed models.PlaylistSeed) (int, error)
	// SeedRange returns items [start, start+count) for the seed in stable
	// order, possibly fewer than count near the end.
	SeedRange(seed models.PlaylistSeed, start, count int) ([]models.PlaylistItem, error)
}

type navResult struct {
	at   time.Time
	item *models.PlaylistItem
}

// navKey scopes the idempotency cache by direction (and jump target) in
// addition to generator id, so a Previous/JumpTo issued soon after a Next
// isn't mistaken for a repeat of that Next (§4.11 only requires idempotency
// for repeated identical calls).
type navKey struct {
	id  uuid.UUID
	dir string
}

// Service is the playlist generator + navigation service.
type Service struct {
	repo   *repository.PlaylistRepository
	source ItemSource
	locks  *lockpool.Pool

	mu      sync.Mutex
	lastNav map[navKey]navResult
}

func New(repo *repository.PlaylistRepository, source ItemSource) *Service {
	return &Service{
		repo:    repo,
		source:  source,
		locks:   lockpool.New(),
		lastNav: make(map[navKey]navResult),
	}
}

// Create builds a PlaylistGenerator for seed and persists it. For a "single"
// seed, totalCount is 1; for container/library seeds, totalCount is the
// ItemSource's count at creation time.
func (s *Service) Create(playbackSessionID uuid.UUID, seed models.PlaylistSeed) (*models.PlaylistGenerator, error) {
	total := 1
	if seed.Type != models.SeedSingle {
		n, err := s.totalFor(seed)
		if err != nil {
			return nil, fmt.Errorf("playlist: seed count: %w", err)
		}
		total = n
	}
	if seed.Type == models.SeedExplicit {
		total = len(seed.ExplicitIDs)
	}

	g := &models.PlaylistGenerator{
		PlaybackSessionID: playbackSessionID,
		Seed:              seed,
		CursorIndex:       0,
		TotalCount:        total,
		Active:            true,
	}
	if err := s.repo.Create(g); err != nil {
		return nil, fmt.Errorf("playlist: create: %w", err)
	}
	return g, nil
}

func (s *Service) totalFor(seed models.PlaylistSeed) (int, error) {
	if seed.Type == models.SeedExplicit {
		return len(seed.ExplicitIDs), nil
	}
	return s.source.SeedCount(seed)
}

// Chunk is the sparse-array-friendly payload §4.11 specifies for
// GetPlaylistChunk.
type Chunk struct {
	Items        []models.PlaylistItem `json:"items"`
	CurrentIndex int                    `json:"currentIndex"`
	TotalCount   int                    `json:"totalCount"`
	HasMore      bool                   `json:"hasMore"`
	Shuffle      bool                   `json:"shuffle"`
	Repeat       bool                   `json:"repeat"`
}

// GetChunk materializes [startIndex, startIndex+limit) around the cursor.
// When shuffle is enabled, logical index i maps through the stored
// permutation to the underlying seed position before resolution.
func (s *Service) GetChunk(id uuid.UUID, startIndex, limit int) (*Chunk, error) {
	g, err := s.repo.GetByUUID(id)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = DefaultChunkSize
	}
	end := startIndex + limit
	if end > g.TotalCount {
		end = g.TotalCount
	}

	items := make([]models.PlaylistItem, 0, end-startIndex)
	for i := startIndex; i < end; i++ {
		item, err := s.resolveIndex(g, i)
		if err != nil {
			continue // sparse: a resolution failure just leaves a gap
		}
		items = append(items, *item)
	}

	return &Chunk{
		Items:        items,
		CurrentIndex: g.CursorIndex,
		TotalCount:   g.TotalCount,
		HasMore:      end < g.TotalCount,
		Shuffle:      g.Shuffle,
		Repeat:       g.Repeat,
	}, nil
}

// resolveIndex maps a logical playlist index through the shuffle
// permutation (if any) to the underlying seed position, then fetches it
// from the seed's explicit id list or the ItemSource.
func (s *Service) resolveIndex(g *models.PlaylistGenerator, index int) (*models.PlaylistItem, error) {
	seedPos := index
	if g.Shuffle && index < len(g.ShuffleOrder) {
		seedPos = g.ShuffleOrder[index]
	}

	if g.Seed.Type == models.SeedExplicit {
		if seedPos < 0 || seedPos >= len(g.Seed.ExplicitIDs) {
			return nil, fmt.Errorf("playlist: index %d out of range", index)
		}
		return &models.PlaylistItem{Index: index, MetadataItemID: g.Seed.ExplicitIDs[seedPos]}, nil
	}

	rows, err := s.source.SeedRange(g.Seed, seedPos, 1)
	if err != nil || len(rows) == 0 {
		return nil, fmt.Errorf("playlist: resolve index %d: %w", index, err)
	}
	item := rows[0]
	item.Index = index
	return &item, nil
}

// currentItem resolves the item at the generator's cursor.
func (s *Service) currentItem(g *models.PlaylistGenerator) (*models.PlaylistItem, error) {
	if g.TotalCount == 0 {
		return nil, fmt.Errorf("playlist: empty generator")
	}
	return s.resolveIndex(g, g.CursorIndex)
}

// Next advances the cursor per invariant 4: cursor' = (cursor+1) mod
// totalCount if repeat, else min(cursor+1, totalCount-1). Concurrent calls
// from the same session within idempotencyWindow return the same item as
// the first, per §5's "playlist cursor mutations are serialized" and §8's
// idempotence law.
func (s *Service) Next(id uuid.UUID) (*models.PlaylistItem, error) {
	return s.navigate(id, "next", func(g *models.PlaylistGenerator) {
		if g.Repeat {
			g.CursorIndex = (g.CursorIndex + 1) % g.TotalCount
		} else if g.CursorIndex < g.TotalCount-1 {
			g.CursorIndex++
		}
	})
}

// Previous is the symmetric inverse of Next.
func (s *Service) Previous(id uuid.UUID) (*models.PlaylistItem, error) {
	return s.navigate(id, "previous", func(g *models.PlaylistGenerator) {
		if g.Repeat {
			g.CursorIndex = (g.CursorIndex - 1 + g.TotalCount) % g.TotalCount
		} else if g.CursorIndex > 0 {
			g.CursorIndex--
		}
	})
}

// JumpTo sets the cursor to an explicit logical index.
func (s *Service) JumpTo(id uuid.UUID, index int) (*models.PlaylistItem, error) {
	return s.navigate(id, fmt.Sprintf("jump:%d", index), func(g *models.PlaylistGenerator) {
		if index < 0 {
			index = 0
		}
		if index >= g.TotalCount {
			index = g.TotalCount - 1
		}
		g.CursorIndex = index
	})
}

// navigate serializes cursor mutations per generator (§5), applies mutate,
// persists, and returns the resulting current item. It honors the
// at-most-once idempotency window for repeated identical calls.
func (s *Service) navigate(id uuid.UUID, dir string, mutate func(*models.PlaylistGenerator)) (*models.PlaylistItem, error) {
	key := navKey{id: id, dir: dir}
	var result *models.PlaylistItem
	err := s.locks.With(id.String(), func() error {
		s.mu.Lock()
		if last, ok := s.lastNav[key]; ok && time.Since(last.at) < idempotencyWindow {
			s.mu.Unlock()
			result = last.item
			return nil
		}
		s.mu.Unlock()

		g, err := s.repo.GetByUUID(id)
		if err != nil {
			return err
		}
		if g.TotalCount == 0 {
			return fmt.Errorf("playlist: empty generator")
		}
		mutate(g)
		if err := s.repo.SaveCursor(g); err != nil {
			return err
		}
		item, err := s.currentItem(g)
		if err != nil {
			return err
		}
		s.mu.Lock()
		s.lastNav[key] = navResult{at: time.Now(), item: item}
		s.mu.Unlock()
		result = item
		return nil
	})
	return result, err
}

// SetShuffle toggles shuffle. Enabling regenerates a Fisher-Yates
// permutation of [0, totalCount) with the current index pinned to
// position 0 (invariant 8); disabling discards the permutation, restoring
// original index order (§8 round-trip law).
func (s *Service) SetShuffle(id uuid.UUID, enabled bool) (*models.PlaylistGenerator, error) {
	var out *models.PlaylistGenerator
	err := s.locks.With(id.String(), func() error {
		g, err := s.repo.GetByUUID(id)
		if err != nil {
			return err
		}
		if enabled {
			g.ShuffleOrder = shufflePinned(g.TotalCount, currentSeedPosition(g))
			g.CursorIndex = 0
		} else {
			g.ShuffleOrder = nil
		}
		g.Shuffle = enabled
		if err := s.repo.SaveCursor(g); err != nil {
			return err
		}
		out = g
		return nil
	})
	return out, err
}

// currentSeedPosition returns the underlying seed position the cursor
// currently points at, before a shuffle permutation is (re)computed.
func currentSeedPosition(g *models.PlaylistGenerator) int {
	if g.Shuffle && g.CursorIndex < len(g.ShuffleOrder) {
		return g.ShuffleOrder[g.CursorIndex]
	}
	return g.CursorIndex
}

// shufflePinned returns a Fisher-Yates permutation of [0,n) with pinned
// placed at position 0.
func shufflePinned(n, pinned int) []int {
	order := make([]int, 0, n)
	for i := 0; i < n; i++ {
		if i != pinned {
			order = append(order, i)
		}
	}
	rand.Shuffle(len(order), func(i, j int) { order[i], order[j] = order[j], order[i] })
	return append([]int{pinned}, order...)
}

// SetRepeat toggles wraparound behavior for Next/Previous at the ends.
func (s *Service) SetRepeat(id uuid.UUID, enabled bool) (*models.PlaylistGenerator, error) {
	var out *models.PlaylistGenerator
	err := s.locks.With(id.String(), func() error {
		g, err := s.repo.GetByUUID(id)
		if err != nil {
			return err
		}
		g.Repeat = enabled
		if err := s.repo.SaveCursor(g); err != nil {
			return err
		}
		out = g
		return nil
	})
	return out, err
}

// Stop marks the generator inactive; kept for history up to the owning
// session's TTL per §3.
func (s *Service) Stop(id uuid.UUID) error {
	return s.repo.SetActive(id, false)
}
