package metadata

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/nexamediaserver/server/internal/models"
)

// artworkExtensions lists the image extensions local artwork detection
// checks for each candidate base name, in the teacher's priority order.
var artworkExtensions = []string{".jpg", ".jpeg", ".png", ".webp"}

// LocalArtworkAgent detects Plex/Jellyfin/Kodi-style artwork files sitting
// next to a media file (poster.jpg, fanart.jpg, clearlogo.png, ...) as the
// AgentLocal tier of the image orchestrator's precedence order (§4.4: local
// sidecar > embedded > remote).
type LocalArtworkAgent struct {
	MediaPath func(item *models.MetadataItem) string
}

func NewLocalArtworkAgent(mediaPath func(*models.MetadataItem) string) *LocalArtworkAgent {
	return &LocalArtworkAgent{MediaPath: mediaPath}
}

func (a *LocalArtworkAgent) Descriptor() models.AgentDescriptor {
	return models.AgentDescriptor{
		Name:            "local_artwork",
		Category:        models.AgentLocal,
		ApplicableTypes: []models.MetadataType{models.MetadataTypeMovie, models.MetadataTypeShow, models.MetadataTypeEpisode, models.MetadataTypeSeason},
		DisplayName:     "Local Artwork",
		Description:     "poster/fanart/logo/banner files alongside the media",
		ProvidesImages:  true,
	}
}

// Fetch never reports a text match; this agent only ever supplies images.
func (a *LocalArtworkAgent) Fetch(_ context.Context, _ *models.MetadataItem, _ string) (*Match, error) {
	return nil, nil
}

func (a *LocalArtworkAgent) ProvideImages(_ context.Context, item *models.MetadataItem, hintPath string) ([]ImageCandidate, error) {
	mediaPath := hintPath
	if mediaPath == "" && a.MediaPath != nil {
		mediaPath = a.MediaPath(item)
	}
	if mediaPath == "" {
		return nil, nil
	}

	dir := filepath.Dir(mediaPath)
	base := strings.TrimSuffix(filepath.Base(mediaPath), filepath.Ext(mediaPath))

	var out []ImageCandidate
	add := func(role string, names []string) {
		if uri := findArtworkFile(dir, names); uri != "" {
			out = append(out, ImageCandidate{Category: models.AgentLocal, Role: role, URI: uri})
		}
	}

	posterNames := []string{base + "-poster", "poster", "movie-poster", "folder", "cover"}
	if item.Type == models.MetadataTypeShow {
		posterNames = append(posterNames, "show")
	}
	add("poster", posterNames)
	add("backdrop", []string{base + "-fanart", "backdrop", "fanart", "background"})
	add("logo", []string{base + "-logo", "logo", "clearlogo"})
	add("banner", []string{base + "-banner", "banner"})
	if item.Type == models.MetadataTypeEpisode {
		add("thumb", []string{base + "-thumb", base})
	}
	return out, nil
}

// findArtworkFile checks dir for a file matching any of baseNames with any
// of the standard image extensions, returning the first match.
func findArtworkFile(dir string, baseNames []string) string {
	for _, name := range baseNames {
		for _, ext := range artworkExtensions {
			path := filepath.Join(dir, name+ext)
			if _, err := os.Stat(path); err == nil {
				return path
			}
		}
	}
	return ""
}
