package repository

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/nexamediaserver/server/internal/models"
)

type HubRepository struct {
	db *sql.DB
}

func NewHubRepository(db *sql.DB) *HubRepository {
	return &HubRepository{db: db}
}

// GetConfiguration returns the most specific stored HubConfiguration for the
// given context/section/type combination, or nil if the admin never saved
// an override (caller then falls back to the metadata-type default template).
func (r *HubRepository) GetConfiguration(ctx models.HubContext, sectionID *int64, mType *models.MetadataType) (*models.HubConfiguration, error) {
	row := r.db.QueryRow(`
		SELECT id, context, library_section_id, metadata_type, enabled_hub_types, disabled_hub_types, hidden_hub_types
		FROM hub_configurations
		WHERE context = $1
		  AND library_section_id IS NOT DISTINCT FROM $2
		  AND metadata_type IS NOT DISTINCT FROM $3`,
		ctx, sectionID, mType)

	var c models.HubConfiguration
	var enabledJSON, disabledJSON, hiddenJSON []byte
	if err := row.Scan(&c.ID, &c.Context, &c.LibrarySectionID, &c.MetadataType, &enabledJSON, &disabledJSON, &hiddenJSON); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("hub: get configuration: %w", err)
	}
	_ = json.Unmarshal(enabledJSON, &c.EnabledHubTypes)
	_ = json.Unmarshal(disabledJSON, &c.DisabledHubTypes)
	_ = json.Unmarshal(hiddenJSON, &c.HiddenHubTypes)
	return &c, nil
}

// SaveConfiguration upserts admin overrides, preserving any hub types already
// present in hidden_hub_types that the caller's payload doesn't know about
// (spec §3: "hidden (unknown) hub types ... preserved across saves").
func (r *HubRepository) SaveConfiguration(c *models.HubConfiguration) error {
	existing, err := r.GetConfiguration(c.Context, c.LibrarySectionID, c.MetadataType)
	if err != nil {
		return err
	}
	if existing != nil {
		known := make(map[string]bool, len(c.HiddenHubTypes))
		for _, t := range c.HiddenHubTypes {
			known[t] = true
		}
		for _, t := range existing.HiddenHubTypes {
			if !known[t] {
				c.HiddenHubTypes = append(c.HiddenHubTypes, t)
			}
		}
	}

	enabledJSON, _ := json.Marshal(c.EnabledHubTypes)
	disabledJSON, _ := json.Marshal(c.DisabledHubTypes)
	hiddenJSON, _ := json.Marshal(c.HiddenHubTypes)

	row := r.db.QueryRow(`
		INSERT INTO hub_configurations (context, library_section_id, metadata_type, enabled_hub_types, disabled_hub_types, hidden_hub_types)
		VALUES ($1,$2,$3,$4,$5,$6)
		ON CONFLICT DO NOTHING
		RETURNING id`, c.Context, c.LibrarySectionID, c.MetadataType, enabledJSON, disabledJSON, hiddenJSON)
	if err := row.Scan(&c.ID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			_, err := r.db.Exec(`
				UPDATE hub_configurations
				SET enabled_hub_types=$4, disabled_hub_types=$5, hidden_hub_types=$6
				WHERE context=$1 AND library_section_id IS NOT DISTINCT FROM $2 AND metadata_type IS NOT DISTINCT FROM $3`,
				c.Context, c.LibrarySectionID, c.MetadataType, enabledJSON, disabledJSON, hiddenJSON)
			if err != nil {
				return fmt.Errorf("hub: update configuration: %w", err)
			}
			return nil
		}
		return fmt.Errorf("hub: save configuration: %w", err)
	}
	return nil
}

// DetailFieldRepository persists per-(metadataType, section) field layout
// overrides; custom field definitions live in their own table.
type DetailFieldRepository struct {
	db *sql.DB
}

func NewDetailFieldRepository(db *sql.DB) *DetailFieldRepository {
	return &DetailFieldRepository{db: db}
}

func (r *DetailFieldRepository) GetConfiguration(mType models.MetadataType, sectionID *int64) (*models.DetailFieldConfiguration, error) {
	row := r.db.QueryRow(`
		SELECT id, metadata_type, library_section_id, enabled_builtin_types, disabled_custom_keys
		FROM detail_field_configurations
		WHERE metadata_type = $1 AND library_section_id IS NOT DISTINCT FROM $2`, mType, sectionID)

	var c models.DetailFieldConfiguration
	var enabledJSON, disabledJSON []byte
	if err := row.Scan(&c.ID, &c.MetadataType, &c.LibrarySectionID, &enabledJSON, &disabledJSON); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("detail_field: get configuration: %w", err)
	}
	_ = json.Unmarshal(enabledJSON, &c.EnabledBuiltinTypes)
	_ = json.Unmarshal(disabledJSON, &c.DisabledCustomKeys)
	return &c, nil
}

func (r *DetailFieldRepository) ListCustomFields(mType models.MetadataType) ([]models.CustomFieldDefinition, error) {
	rows, err := r.db.Query(`
		SELECT id, key, label, widget, sort_order, enabled
		FROM custom_field_definitions WHERE enabled = TRUE ORDER BY sort_order`)
	if err != nil {
		return nil, fmt.Errorf("detail_field: list custom fields: %w", err)
	}
	defer rows.Close()

	var out []models.CustomFieldDefinition
	for rows.Next() {
		var f models.CustomFieldDefinition
		if err := rows.Scan(&f.ID, &f.Key, &f.Label, &f.Widget, &f.SortOrder, &f.Enabled); err != nil {
			return nil, fmt.Errorf("detail_field: scan custom field: %w", err)
		}
		out = append(out, f)
	}
	return out, nil
}
