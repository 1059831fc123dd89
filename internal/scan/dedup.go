package scan

import (
	"fmt"
	"sync"

	"github.com/nexamediaserver/server/internal/models"
)

// DedupKey identifies a candidate entity by its external id within one
// provider namespace and library section, per §4.4's dedup service.
type DedupKey struct {
	MetadataType models.MetadataType
	Provider     string
	ExternalID   string
	SectionID    int64
	Title        string
	Year         int
}

// Factory creates a new MetadataItem for a key that has no existing match.
type Factory func(key DedupKey) (*models.MetadataItem, error)

// Lookup resolves an existing item by any of a set of external ids within a
// section; ties are broken by the earliest row id.
type Lookup func(sectionID int64, metadataType models.MetadataType, externalIDs map[string]string) (*models.MetadataItem, bool, error)

// Dedup scopes an in-scan cache to a single scan run so repeated resolver
// calls for the same external id within that scan return the same item
// without hitting the repository, while never leaking across scans (orphan
// prevention, per §4.4).
type Dedup struct {
	mu     sync.Mutex
	cache  map[DedupKey]*models.MetadataItem
	lookup Lookup
}

func NewDedup(lookup Lookup) *Dedup {
	return &Dedup{cache: make(map[DedupKey]*models.MetadataItem), lookup: lookup}
}

// Resolve returns the existing item for key, or invokes factory to create
// one and registers it under key for the remainder of the scan.
func (d *Dedup) Resolve(key DedupKey, externalIDs map[string]string, factory Factory) (*models.MetadataItem, error) {
	d.mu.Lock()
	if item, ok := d.cache[key]; ok {
		d.mu.Unlock()
		return item, nil
	}
	d.mu.Unlock()

	if d.lookup != nil {
		if item, found, err := d.lookup(key.SectionID, key.MetadataType, externalIDs); err != nil {
			return nil, fmt.Errorf("dedup: lookup: %w", err)
		} else if found {
			d.mu.Lock()
			d.cache[key] = item
			d.mu.Unlock()
			return item, nil
		}
	}

	item, err := factory(key)
	if err != nil {
		return nil, fmt.Errorf("dedup: factory: %w", err)
	}

	d.mu.Lock()
	d.cache[key] = item
	d.mu.Unlock()
	return item, nil
}

// Reset clears the in-scan cache; call at scan end so the cache never
// persists into the next scan.
func (d *Dedup) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.cache = make(map[DedupKey]*models.MetadataItem)
}
