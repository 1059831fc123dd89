// Package hub implements the hub and detail-field services (§4.7): merges
// metadata-type default templates with admin HubConfiguration overrides,
// computes type-specific hub content, and merges detail-field layouts.
package hub

import (
	"database/sql"
	"fmt"

	"github.com/nexamediaserver/server/internal/models"
	"github.com/nexamediaserver/server/internal/repository"
)

// Type is a hub's content-computation kind, the closed vocabulary the
// default templates and admin overrides are built from (§4.7).
type Type string

const (
	TypeRecentlyAdded     Type = "recently_added"
	TypeContinueWatching  Type = "continue_watching"
	TypePromoted          Type = "promoted"
	TypeCast              Type = "cast"
	TypeCrew              Type = "crew"
	TypeSimilar           Type = "similar"
	TypeRelated           Type = "related"
	TypeRecentlyReleased  Type = "recently_released"
)

// DefaultPageSize is the fixed default hub-content page size (§4.7).
const DefaultPageSize = 20

// defaultTemplates maps a metadata type to its ordered default hub list, used
// when the admin has no HubConfiguration override for the context.
var defaultTemplates = map[models.MetadataType][]Type{
	models.MetadataTypeMovie:   {TypeContinueWatching, TypeRecentlyAdded, TypePromoted, TypeSimilar, TypeCast, TypeCrew},
	models.MetadataTypeShow:    {TypeContinueWatching, TypeRecentlyAdded, TypePromoted, TypeSimilar, TypeCast, TypeCrew},
	models.MetadataTypeSeason:  {TypeRecentlyAdded, TypeCast, TypeCrew},
	models.MetadataTypeEpisode: {TypeRecentlyAdded, TypeContinueWatching, TypeCast, TypeCrew},
	models.MetadataTypeAlbum:   {TypeRecentlyAdded, TypeRelated},
	models.MetadataTypeTrack:   {TypeRelated},
	models.MetadataTypeCollection: {TypeRecentlyAdded},
	models.MetadataTypePerson: {TypeRelated},
	models.MetadataTypePhoto:  {TypeRecentlyAdded},
}

// homeDefault is the hub set shown when neither LibrarySection nor
// MetadataType is specified (context=home, top-level feed).
var homeDefault = []Type{TypeContinueWatching, TypeRecentlyAdded, TypePromoted}

// Hub is one resolved hub surface with its materialized content page.
type Hub struct {
	Type  Type                   `json:"type"`
	Title string                 `json:"title"`
	Items []models.MetadataItem  `json:"items"`
}

// Service resolves hub sets and detail-field layouts.
type Service struct {
	configs  *repository.HubRepository
	fields   *repository.DetailFieldRepository
	metadata *repository.MetadataRepository
	db       *sql.DB
}

func New(configs *repository.HubRepository, fields *repository.DetailFieldRepository, metadata *repository.MetadataRepository, db *sql.DB) *Service {
	return &Service{configs: configs, fields: fields, metadata: metadata, db: db}
}

// resolveHubTypes overlays (a) the metadata-type default template, (b) the
// admin HubConfiguration for the context, in that precedence order (§4.7).
// Unknown hub types present in HiddenHubTypes are never surfaced but remain
// stored by the repository layer so a future release can re-enable them.
func (s *Service) resolveHubTypes(ctx models.HubContext, sectionID *int64, mType *models.MetadataType) ([]Type, error) {
	base := homeDefault
	if mType != nil {
		if tmpl, ok := defaultTemplates[*mType]; ok {
			base = tmpl
		}
	}

	cfg, err := s.configs.GetConfiguration(ctx, sectionID, mType)
	if err != nil {
		return nil, fmt.Errorf("hub: resolve types: %w", err)
	}
	if cfg == nil {
		return base, nil
	}

	disabled := make(map[string]bool, len(cfg.DisabledHubTypes))
	for _, t := range cfg.DisabledHubTypes {
		disabled[t] = true
	}

	var out []Type
	if len(cfg.EnabledHubTypes) > 0 {
		for _, t := range cfg.EnabledHubTypes {
			if !disabled[t] {
				out = append(out, Type(t))
			}
		}
		return out, nil
	}
	for _, t := range base {
		if !disabled[string(t)] {
			out = append(out, t)
		}
	}
	return out, nil
}

// GetHubSet resolves and materializes every hub for the given context
// (§6 query "hub content").
func (s *Service) GetHubSet(ctx models.HubContext, sectionID *int64, mType *models.MetadataType, userID string, limit int) ([]Hub, error) {
	if limit <= 0 {
		limit = DefaultPageSize
	}
	types, err := s.resolveHubTypes(ctx, sectionID, mType)
	if err != nil {
		return nil, err
	}

	var hubs []Hub
	for _, t := range types {
		items, err := s.content(t, sectionID, mType, userID, limit)
		if err != nil {
			return nil, fmt.Errorf("hub: compute %s: %w", t, err)
		}
		if len(items) == 0 {
			continue
		}
		hubs = append(hubs, Hub{Type: t, Title: title(t), Items: items})
	}
	return hubs, nil
}

func title(t Type) string {
	switch t {
	case TypeRecentlyAdded:
		return "Recently Added"
	case TypeContinueWatching:
		return "Continue Watching"
	case TypePromoted:
		return "Featured"
	case TypeCast:
		return "Cast"
	case TypeCrew:
		return "Crew"
	case TypeSimilar:
		return "More Like This"
	case TypeRelated:
		return "Related"
	case TypeRecentlyReleased:
		return "Recently Released"
	default:
		return string(t)
	}
}

// content dispatches to the type-specific query. sectionID may be nil for a
// cross-library home hub.
func (s *Service) content(t Type, sectionID *int64, mType *models.MetadataType, userID string, limit int) ([]models.MetadataItem, error) {
	switch t {
	case TypeRecentlyAdded:
		return s.recentlyAdded(sectionID, mType, limit)
	case TypeContinueWatching:
		return s.continueWatching(sectionID, userID, limit)
	case TypePromoted:
		return s.promoted(sectionID, limit)
	case TypeSimilar:
		return s.similar(sectionID, mType, limit)
	case TypeRelated:
		return s.similar(sectionID, mType, limit)
	case TypeCast:
		return nil, nil // resolved per-item via relations, not a home/library hub
	case TypeCrew:
		return nil, nil
	default:
		return nil, nil
	}
}

func (s *Service) recentlyAdded(sectionID *int64, mType *models.MetadataType, limit int) ([]models.MetadataItem, error) {
	rows, err := s.db.Query(`
		SELECT id, uuid, library_section_id, parent_id, type, title, sort_title, year,
		       summary, thumb_uri, is_promoted, view_count, view_offset_ms, duration_ms, created_at, updated_at
		FROM metadata_items
		WHERE library_section_id IS NOT DISTINCT FROM COALESCE($1, library_section_id)
		  AND type IS NOT DISTINCT FROM COALESCE($2, type)
		ORDER BY created_at DESC
		LIMIT $3`, sectionID, mType, limit)
	if err != nil {
		return nil, err
	}
	return scanHubRows(rows)
}

func (s *Service) continueWatching(sectionID *int64, userID string, limit int) ([]models.MetadataItem, error) {
	rows, err := s.db.Query(`
		SELECT id, uuid, library_section_id, parent_id, type, title, sort_title, year,
		       summary, thumb_uri, is_promoted, view_count, view_offset_ms, duration_ms, created_at, updated_at
		FROM metadata_items
		WHERE library_section_id IS NOT DISTINCT FROM COALESCE($1, library_section_id)
		  AND view_offset_ms > 0 AND (duration_ms = 0 OR view_offset_ms < duration_ms)
		ORDER BY updated_at DESC
		LIMIT $2`, sectionID, limit)
	if err != nil {
		return nil, err
	}
	return scanHubRows(rows)
}

func (s *Service) promoted(sectionID *int64, limit int) ([]models.MetadataItem, error) {
	rows, err := s.db.Query(`
		SELECT id, uuid, library_section_id, parent_id, type, title, sort_title, year,
		       summary, thumb_uri, is_promoted, view_count, view_offset_ms, duration_ms, created_at, updated_at
		FROM metadata_items
		WHERE library_section_id IS NOT DISTINCT FROM COALESCE($1, library_section_id)
		  AND is_promoted = TRUE
		ORDER BY updated_at DESC
		LIMIT $2`, sectionID, limit)
	if err != nil {
		return nil, err
	}
	return scanHubRows(rows)
}

// similar approximates "more like this" by same-section, same-type
// neighbors ordered by year proximity is out of scope without a genre
// model; fall back to sort_title adjacency within the same library + type
// (§4.7 leaves similarity scoring unspecified — documented as a simple
// same-type/section heuristic until a genre/tag model lands).
func (s *Service) similar(sectionID *int64, mType *models.MetadataType, limit int) ([]models.MetadataItem, error) {
	if sectionID == nil || mType == nil {
		return nil, nil
	}
	rows, err := s.db.Query(`
		SELECT id, uuid, library_section_id, parent_id, type, title, sort_title, year,
		       summary, thumb_uri, is_promoted, view_count, view_offset_ms, duration_ms, created_at, updated_at
		FROM metadata_items
		WHERE library_section_id = $1 AND type = $2
		ORDER BY sort_title
		LIMIT $3`, *sectionID, *mType, limit)
	if err != nil {
		return nil, err
	}
	return scanHubRows(rows)
}

func scanHubRows(rows *sql.Rows) ([]models.MetadataItem, error) {
	defer rows.Close()
	var out []models.MetadataItem
	for rows.Next() {
		var m models.MetadataItem
		if err := rows.Scan(&m.ID, &m.UUID, &m.LibrarySectionID, &m.ParentID, &m.Type, &m.Title, &m.SortTitle,
			&m.Year, &m.Summary, &m.ThumbURI, &m.IsPromoted, &m.ViewCount, &m.ViewOffsetMs, &m.DurationMs,
			&m.CreatedAt, &m.UpdatedAt); err != nil {
			return nil, fmt.Errorf("hub: scan: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// ItemCast returns the cast/crew for a single item's detail hub, the one
// case where Cast/Crew are populated (§4.7: "Cast, Crew ... " per item).
func (s *Service) ItemCast(itemID int64) ([]models.MetadataRelation, error) {
	return s.metadata.ListRelations(itemID, models.RelationActor)
}

func (s *Service) ItemCrew(itemID int64) ([]models.MetadataRelation, error) {
	var out []models.MetadataRelation
	for _, rt := range []models.RelationType{models.RelationDirector, models.RelationWriter, models.RelationProducer, models.RelationComposer} {
		rels, err := s.metadata.ListRelations(itemID, rt)
		if err != nil {
			return nil, fmt.Errorf("hub: item crew: %w", err)
		}
		out = append(out, rels...)
	}
	return out, nil
}

// SaveHubConfiguration persists an admin override, preserving any hidden
// (unrecognized) hub types already stored (§3).
func (s *Service) SaveHubConfiguration(c *models.HubConfiguration) error {
	if err := s.configs.SaveConfiguration(c); err != nil {
		return fmt.Errorf("hub: save configuration: %w", err)
	}
	return nil
}

// --- Detail-field layout ---

// DetailFields is the merged field layout for a metadata type: the built-in
// field types the admin's configuration enables, plus enabled custom fields
// whose keys it does not disable. Field groups and field-to-group
// assignments are not included, and custom fields are not filtered by
// applicable type.
type DetailFields struct {
	BuiltinTypes []string                      `json:"builtinTypes"`
	CustomFields []models.CustomFieldDefinition `json:"customFields"`
}

// GetDetailFields merges built-in fields with custom field definitions and
// admin overrides for a metadata type (§4.7).
func (s *Service) GetDetailFields(mType models.MetadataType, sectionID *int64) (*DetailFields, error) {
	cfg, err := s.fields.GetConfiguration(mType, sectionID)
	if err != nil {
		return nil, fmt.Errorf("hub: get detail fields: %w", err)
	}
	custom, err := s.fields.ListCustomFields(mType)
	if err != nil {
		return nil, fmt.Errorf("hub: list custom fields: %w", err)
	}

	out := &DetailFields{CustomFields: custom}
	if cfg != nil {
		out.BuiltinTypes = cfg.EnabledBuiltinTypes
		if len(cfg.DisabledCustomKeys) > 0 {
			disabled := make(map[string]bool, len(cfg.DisabledCustomKeys))
			for _, k := range cfg.DisabledCustomKeys {
				disabled[k] = true
			}
			filtered := custom[:0:0]
			for _, f := range custom {
				if !disabled[f.Key] {
					filtered = append(filtered, f)
				}
			}
			out.CustomFields = filtered
		}
	}
	return out, nil
}
