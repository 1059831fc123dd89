package metadata

import (
	"testing"

	"github.com/nexamediaserver/server/internal/models"
)

func TestApplyFieldsSkipsLockedFields(t *testing.T) {
	item := &models.MetadataItem{
		Title:        "My Edit",
		LockedFields: map[string]bool{"title": true},
	}
	applyFields(item, map[string]any{
		"title":   "Inception",
		"summary": "A thief who steals corporate secrets.",
		"year":    2010,
	}, nil)

	if item.Title != "My Edit" {
		t.Fatalf("locked title overwritten: got %q", item.Title)
	}
	if item.Summary != "A thief who steals corporate secrets." {
		t.Fatalf("unlocked summary not applied: got %q", item.Summary)
	}
	if item.Year != 2010 {
		t.Fatalf("unlocked year not applied: got %d", item.Year)
	}
}

func TestApplyFieldsOverrideLiftsLock(t *testing.T) {
	item := &models.MetadataItem{
		Title:        "My Edit",
		LockedFields: map[string]bool{"title": true},
	}
	applyFields(item, map[string]any{"title": "Inception"}, map[string]bool{"title": true})

	if item.Title != "Inception" {
		t.Fatalf("override did not lift lock: got %q", item.Title)
	}
}

func TestApplyFieldsIsIdempotent(t *testing.T) {
	item := &models.MetadataItem{}
	fields := map[string]any{"title": "Inception", "studio": "Syncopy", "year": 2010}
	applyFields(item, fields, nil)
	title, studio, year := item.Title, item.Studio, item.Year
	applyFields(item, fields, nil)
	if item.Title != title || item.Studio != studio || item.Year != year {
		t.Fatalf("second apply changed item: %q %q %d", item.Title, item.Studio, item.Year)
	}
}

func TestSelectImagePrefersSidecarOverRemote(t *testing.T) {
	images := [][]ImageCandidate{
		{{Category: models.AgentRemote, Role: "poster", URI: "https://img.example/remote.jpg"}},
		{{Category: models.AgentSidecar, Role: "poster", URI: "file:///m/movies/poster.jpg"}},
	}
	winner := selectImage(images)
	if winner == nil || winner.URI != "file:///m/movies/poster.jpg" {
		t.Fatalf("expected sidecar poster to win, got %+v", winner)
	}
}

func TestSelectImagePrefersPosterRole(t *testing.T) {
	images := [][]ImageCandidate{
		{
			{Category: models.AgentRemote, Role: "backdrop", URI: "https://img.example/backdrop.jpg"},
			{Category: models.AgentRemote, Role: "poster", URI: "https://img.example/poster.jpg"},
		},
	}
	winner := selectImage(images)
	if winner == nil || winner.Role != "poster" {
		t.Fatalf("expected poster role to win, got %+v", winner)
	}
}

func TestSelectImageEmptyReturnsNil(t *testing.T) {
	if winner := selectImage(nil); winner != nil {
		t.Fatalf("expected nil winner for no candidates, got %+v", winner)
	}
}
