// Package gopindex implements the on-disk GoP (Group of Pictures) index
// store: a sorted sequence of keyframe entries per (metadata-uuid,
// part-index), used by the playback orchestrator's GoP-aware seek (§4.8) to
// resolve a requested seek position to the nearest keyframe at or before it.
package gopindex

import (
	"encoding/xml"
	"fmt"
	"os"
	"sort"

	"github.com/cespare/xxhash/v2"
	"github.com/dgryski/go-rendezvous"
	"github.com/google/uuid"

	"github.com/nexamediaserver/server/internal/lockpool"
	"github.com/nexamediaserver/server/internal/paths"
)

// Entry is one keyframe-delimited GoP boundary.
type Entry struct {
	PTSMs         int64 `xml:"ptsMs,attr"`
	ByteOffset    int64 `xml:"byteOffset,attr"`
	IsKeyframe    bool  `xml:"isKeyframe,attr"`
	GopDurationMs int64 `xml:"gopDurationMs,attr"`
}

// Index is the in-memory representation of a GoP index file: entries sorted
// ascending by PTSMs.
type Index struct {
	XMLName xml.Name `xml:"gopIndex"`
	Entries []Entry  `xml:"entry"`
}

// Nearest returns the entry with the greatest PTSMs <= targetMs among
// keyframe entries, or ok=false if none precede targetMs.
func (idx *Index) Nearest(targetMs int64) (Entry, bool) {
	var best Entry
	found := false
	// Entries are sorted ascending, so the last keyframe with PTSMs <= target
	// is the answer; scanning the whole slice is cheap (GoP counts are in the
	// thousands at most) and avoids assuming entries are index-addressable.
	for _, e := range idx.Entries {
		if !e.IsKeyframe {
			continue
		}
		if e.PTSMs > targetMs {
			break
		}
		best = e
		found = true
	}
	return best, found
}

// Store reads and writes GoP index files under one or more cache roots,
// rendezvous-hashed by (uuid, partIndex) so adding or removing a root only
// reshuffles the keys assigned to it, not the whole key space.
type Store struct {
	roots      []*paths.Paths
	rootByName map[string]*paths.Paths
	hash       *rendezvous.Rendezvous
	locks      *lockpool.Pool
}

// NewStore builds a Store over one or more configured cache roots. A single
// root is the common case; multiple roots let an operator spread artifact
// storage across several disks.
func NewStore(roots []*paths.Paths) *Store {
	names := make([]string, len(roots))
	byName := make(map[string]*paths.Paths, len(roots))
	for i, r := range roots {
		names[i] = r.Cache
		byName[r.Cache] = r
	}
	return &Store{
		roots:      roots,
		rootByName: byName,
		hash:       rendezvous.New(names, xxhash.Sum64String),
		locks:      lockpool.New(),
	}
}

func key(id uuid.UUID, partIndex int) string {
	return fmt.Sprintf("%s.%d", id, partIndex)
}

func (s *Store) rootFor(id uuid.UUID, partIndex int) *paths.Paths {
	if len(s.roots) == 1 {
		return s.roots[0]
	}
	name := s.hash.Lookup(key(id, partIndex))
	return s.rootByName[name]
}

// Write atomically persists idx for (id, partIndex), sorting entries first so
// Nearest's linear scan can break early and round-trips are stable.
func (s *Store) Write(id uuid.UUID, partIndex int, idx *Index) error {
	sorted := make([]Entry, len(idx.Entries))
	copy(sorted, idx.Entries)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].PTSMs < sorted[j].PTSMs })
	toWrite := &Index{Entries: sorted}

	data, err := xml.MarshalIndent(toWrite, "", "  ")
	if err != nil {
		return fmt.Errorf("gopindex: marshal: %w", err)
	}

	p := s.rootFor(id, partIndex)
	dest := p.GopIndexPath(id, partIndex)
	k := key(id, partIndex)
	return s.locks.With(k, func() error {
		return paths.WriteAtomic(dest, data, 0o644)
	})
}

// Read loads the GoP index for (id, partIndex). Returns a wrapped
// os.ErrNotExist if no index has been generated yet.
func (s *Store) Read(id uuid.UUID, partIndex int) (*Index, error) {
	p := s.rootFor(id, partIndex)
	path := p.GopIndexPath(id, partIndex)
	k := key(id, partIndex)

	var idx Index
	err := s.locks.With(k, func() error {
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		return xml.Unmarshal(data, &idx)
	})
	if err != nil {
		return nil, fmt.Errorf("gopindex: read %s: %w", path, err)
	}
	return &idx, nil
}
