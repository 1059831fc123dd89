package metadata

import (
	"fmt"

	"github.com/nexamediaserver/server/internal/models"
	"github.com/nexamediaserver/server/internal/repository"
)

// CreditService resolves aggregated PersonCredit/GroupCredit lists into
// upserted Person/Group MetadataItems and typed MetadataRelations, with
// cast/crew ordering preserved (§4.4 "Credit service").
type CreditService struct {
	repo *repository.MetadataRepository
}

func NewCreditService(repo *repository.MetadataRepository) *CreditService {
	return &CreditService{repo: repo}
}

// RelationCandidate is what an agent's Fetch reports for a single cast/crew
// entry: a name (and optionally an external id) that still needs resolving
// to a Person/Group MetadataItem before it can become a MetadataRelation.
type RelationCandidate struct {
	Type       models.RelationType
	Name       string
	Provider   string
	ExternalID string
	BirthYear  int
}

// groupRelationTypes are credits whose endpoint is a Group MetadataItem
// rather than a Person (bands, collectives); everything else resolves to a
// Person.
var groupRelationTypes = map[models.RelationType]bool{
	models.RelationBandMember: true,
}

// Resolve upserts the Person/Group endpoint of each candidate under
// librarySectionID and returns the resulting MetadataRelations with ToItemID
// populated, preserving input order per type so Apply's per-type ordering is
// stable across refreshes.
func (c *CreditService) Resolve(librarySectionID int64, candidates []RelationCandidate) ([]models.MetadataRelation, error) {
	out := make([]models.MetadataRelation, 0, len(candidates))
	for _, cand := range candidates {
		if cand.Name == "" {
			continue
		}
		var endpoint *models.MetadataItem
		var err error
		if groupRelationTypes[cand.Type] {
			endpoint, err = c.UpsertGroup(librarySectionID, cand.Provider, cand.ExternalID, cand.Name)
		} else {
			endpoint, err = c.UpsertPerson(librarySectionID, cand.Provider, cand.ExternalID, cand.Name, cand.BirthYear)
		}
		if err != nil {
			return nil, fmt.Errorf("credit: resolve %s %q: %w", cand.Type, cand.Name, err)
		}
		out = append(out, models.MetadataRelation{ToItemID: endpoint.ID, Type: cand.Type, Role: cand.Name})
	}
	return out, nil
}

// Apply writes each relation (its person/group endpoint already upserted by
// Resolve), replacing any prior relations of the same type from
// itemID so re-running a refresh is idempotent (§8 "MetadataRefresh applied
// twice is idempotent").
func (c *CreditService) Apply(itemID int64, relations []models.MetadataRelation) error {
	byType := make(map[models.RelationType][]models.MetadataRelation)
	for _, rel := range relations {
		byType[rel.Type] = append(byType[rel.Type], rel)
	}

	for relType, rels := range byType {
		if err := c.repo.ClearRelationsByType(itemID, relType); err != nil {
			return fmt.Errorf("credit: clear %s: %w", relType, err)
		}
		for i, rel := range rels {
			rel.FromItemID = itemID
			rel.Order = i
			if err := c.repo.AddRelation(&rel); err != nil {
				return fmt.Errorf("credit: add %s relation: %w", relType, err)
			}
		}
	}
	return nil
}

// UpsertPerson resolves an external id (or, lacking one, a normalized
// name+birthYear fallback) to an existing Person MetadataItem, creating one
// under librarySectionID if none matches (§4.4 dedup-by-external-id with a
// name fallback).
func (c *CreditService) UpsertPerson(librarySectionID int64, provider, externalID, name string, birthYear int) (*models.MetadataItem, error) {
	return c.upsert(librarySectionID, models.MetadataTypePerson, provider, externalID, name, birthYear)
}

// UpsertGroup is UpsertPerson's analog for bands/studios/collectives.
func (c *CreditService) UpsertGroup(librarySectionID int64, provider, externalID, name string) (*models.MetadataItem, error) {
	return c.upsert(librarySectionID, models.MetadataTypeGroup, provider, externalID, name, 0)
}

func (c *CreditService) upsert(librarySectionID int64, mType models.MetadataType, provider, externalID, name string, birthYear int) (*models.MetadataItem, error) {
	if externalID != "" {
		existing, err := c.repo.FindByExternalID(librarySectionID, mType, provider, externalID)
		if err != nil && err != repository.ErrNotFound {
			return nil, fmt.Errorf("credit: find by external id: %w", err)
		}
		if existing != nil {
			return existing, nil
		}
	}
	if name != "" {
		existing, err := c.repo.FindByNameAndYear(librarySectionID, mType, name, birthYear)
		if err != nil && err != repository.ErrNotFound {
			return nil, fmt.Errorf("credit: find by name/year: %w", err)
		}
		if existing != nil {
			if provider != "" && externalID != "" {
				if existing.ExternalIDs == nil {
					existing.ExternalIDs = map[string]string{}
				}
				if existing.ExternalIDs[provider] != externalID {
					existing.ExternalIDs[provider] = externalID
					if err := c.repo.Update(existing); err != nil {
						return nil, fmt.Errorf("credit: backfill external id: %w", err)
					}
				}
			}
			return existing, nil
		}
	}

	item := &models.MetadataItem{
		LibrarySectionID: librarySectionID,
		Type:             mType,
		Title:            name,
		SortTitle:        name,
		Year:             birthYear,
		ExternalIDs:      map[string]string{},
	}
	if provider != "" && externalID != "" {
		item.ExternalIDs[provider] = externalID
	}
	if err := c.repo.Create(item); err != nil {
		return nil, fmt.Errorf("credit: create %s: %w", mType, err)
	}
	return item, nil
}
