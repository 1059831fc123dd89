package api

import (
	"fmt"

	"github.com/nexamediaserver/server/internal/models"
	"github.com/nexamediaserver/server/internal/repository"
)

// repoItemSource implements playlist.ItemSource over the metadata
// repository: album/season/show seeds resolve to the originator's
// children, library seeds resolve to a section's top-level items (§4.11).
type repoItemSource struct {
	metadata *repository.MetadataRepository
}

// NewRepoItemSource wires a playlist.ItemSource over the metadata
// repository, for main to hand to playlist.New at startup.
func NewRepoItemSource(metadata *repository.MetadataRepository) *repoItemSource {
	return &repoItemSource{metadata: metadata}
}

func (s *repoItemSource) SeedCount(seed models.PlaylistSeed) (int, error) {
	switch seed.Type {
	case models.SeedSingle:
		return 1, nil
	case models.SeedExplicit:
		return len(seed.ExplicitIDs), nil
	case models.SeedLibrary:
		return s.metadata.CountTopLevel(seed.OriginatorID)
	case models.SeedAlbum, models.SeedSeason, models.SeedShow:
		return s.metadata.CountChildren(seed.OriginatorID)
	default:
		return 0, fmt.Errorf("playlist: unknown seed type %q", seed.Type)
	}
}

func (s *repoItemSource) SeedRange(seed models.PlaylistSeed, start, count int) ([]models.PlaylistItem, error) {
	switch seed.Type {
	case models.SeedSingle:
		if start > 0 {
			return nil, nil
		}
		item, err := s.metadata.GetByID(seed.OriginatorID)
		if err != nil {
			return nil, fmt.Errorf("playlist: single seed: %w", err)
		}
		return []models.PlaylistItem{itemToPlaylistItem(0, item)}, nil

	case models.SeedExplicit:
		end := start + count
		if end > len(seed.ExplicitIDs) {
			end = len(seed.ExplicitIDs)
		}
		if start >= end {
			return nil, nil
		}
		out := make([]models.PlaylistItem, 0, end-start)
		for i := start; i < end; i++ {
			item, err := s.metadata.GetByID(seed.ExplicitIDs[i])
			if err != nil {
				return nil, fmt.Errorf("playlist: explicit seed item %d: %w", seed.ExplicitIDs[i], err)
			}
			out = append(out, itemToPlaylistItem(i, item))
		}
		return out, nil

	case models.SeedLibrary:
		items, err := s.metadata.ListTopLevel(seed.OriginatorID, count, start)
		if err != nil {
			return nil, fmt.Errorf("playlist: library seed: %w", err)
		}
		return itemsToPlaylistItems(start, items), nil

	case models.SeedAlbum, models.SeedSeason, models.SeedShow:
		children, err := s.metadata.ListChildren(seed.OriginatorID)
		if err != nil {
			return nil, fmt.Errorf("playlist: container seed: %w", err)
		}
		end := start + count
		if end > len(children) {
			end = len(children)
		}
		if start >= end {
			return nil, nil
		}
		return itemsToPlaylistItems(start, children[start:end]), nil

	default:
		return nil, fmt.Errorf("playlist: unknown seed type %q", seed.Type)
	}
}

func itemToPlaylistItem(index int, item *models.MetadataItem) models.PlaylistItem {
	return models.PlaylistItem{
		Index:          index,
		MetadataItemID: item.ID,
		Title:          item.Title,
		MetadataType:   item.Type,
		DurationMs:     item.DurationMs,
	}
}

func itemsToPlaylistItems(start int, items []models.MetadataItem) []models.PlaylistItem {
	out := make([]models.PlaylistItem, len(items))
	for i, item := range items {
		out[i] = itemToPlaylistItem(start+i, &item)
	}
	return out
}
