package metadata

import (
	"context"
	"encoding/xml"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/nexamediaserver/server/internal/models"
)

// xmlMovie/xmlTVShow/xmlEpisode mirror the Kodi/Jellyfin/Emby NFO XML
// vocabulary: <movie>, <tvshow>, <episodedetails> with <uniqueid>/<actor>
// /<director>/<credits> child elements.
type xmlMovie struct {
	XMLName       xml.Name      `xml:"movie"`
	Title         string        `xml:"title"`
	OriginalTitle string        `xml:"originaltitle"`
	SortTitle     string        `xml:"sorttitle"`
	Tagline       string        `xml:"tagline"`
	Plot          string        `xml:"plot"`
	Year          string        `xml:"year"`
	MPAA          string        `xml:"mpaa"`
	Studios       []string      `xml:"studio"`
	Directors     []string      `xml:"director"`
	Credits       []string      `xml:"credits"`
	Actors        []xmlActor    `xml:"actor"`
	UniqueIDs     []xmlUniqueID `xml:"uniqueid"`
	LockData      string        `xml:"lockdata"`
}

type xmlTVShow struct {
	XMLName       xml.Name      `xml:"tvshow"`
	Title         string        `xml:"title"`
	OriginalTitle string        `xml:"originaltitle"`
	SortTitle     string        `xml:"sorttitle"`
	Tagline       string        `xml:"tagline"`
	Plot          string        `xml:"plot"`
	Year          string        `xml:"year"`
	MPAA          string        `xml:"mpaa"`
	Studios       []string      `xml:"studio"`
	Actors        []xmlActor    `xml:"actor"`
	UniqueIDs     []xmlUniqueID `xml:"uniqueid"`
	LockData      string        `xml:"lockdata"`
}

type xmlEpisode struct {
	XMLName   xml.Name      `xml:"episodedetails"`
	Title     string        `xml:"title"`
	Plot      string        `xml:"plot"`
	MPAA      string        `xml:"mpaa"`
	Directors []string      `xml:"director"`
	Credits   []string      `xml:"credits"`
	Actors    []xmlActor    `xml:"actor"`
	UniqueIDs []xmlUniqueID `xml:"uniqueid"`
	LockData  string        `xml:"lockdata"`
}

type xmlActor struct {
	Name  string `xml:"name"`
	Role  string `xml:"role"`
	Order string `xml:"order"`
}

type xmlUniqueID struct {
	Type    string `xml:"type,attr"`
	Default string `xml:"default,attr"`
	Value   string `xml:",chardata"`
}

// SidecarAgent reads/writes Kodi-compatible NFO files as the local "sidecar"
// category of the agent registry (§3, §4.4's "Sidecar" precedence tier). It
// never makes network calls, so it is dispatched outside the
// maxConcurrentRemote cap the orchestrator applies to AgentRemote.
type SidecarAgent struct {
	// LibraryRoot resolves a MetadataItem's library section to its root path
	// for tvshow.nfo directory walk-up; keyed by LibrarySectionID.
	LibraryRoot func(sectionID int64) string
	// MediaPath resolves a MetadataItem to the absolute path of its primary
	// media file, used to find "<name>.nfo" alongside it.
	MediaPath func(item *models.MetadataItem) string
}

func NewSidecarAgent(libraryRoot func(int64) string, mediaPath func(*models.MetadataItem) string) *SidecarAgent {
	return &SidecarAgent{LibraryRoot: libraryRoot, MediaPath: mediaPath}
}

func (a *SidecarAgent) Descriptor() models.AgentDescriptor {
	return models.AgentDescriptor{
		Name:             "nfo",
		Category:         models.AgentSidecar,
		ApplicableTypes:  []models.MetadataType{models.MetadataTypeMovie, models.MetadataTypeShow, models.MetadataTypeEpisode},
		DisplayName:      "Local NFO",
		Description:      "Kodi/Jellyfin/Emby-compatible .nfo sidecar files",
		ProvidesSidecars: true,
	}
}

// Fetch locates and parses the NFO sidecar for item, returning nil (not an
// error) when no sidecar exists — absence of a sidecar is normal, not a
// fetch failure (§4.4, §7: agent unavailability never aborts the item).
func (a *SidecarAgent) Fetch(_ context.Context, item *models.MetadataItem, hintPath string) (*Match, error) {
	mediaPath := hintPath
	if mediaPath == "" && a.MediaPath != nil {
		mediaPath = a.MediaPath(item)
	}
	if mediaPath == "" {
		return nil, nil
	}

	switch item.Type {
	case models.MetadataTypeMovie:
		nfoPath := findSidecarNFO(mediaPath, "movie.nfo")
		if nfoPath == "" {
			return nil, nil
		}
		return parseMovieNFO(nfoPath)
	case models.MetadataTypeShow:
		root := ""
		if a.LibraryRoot != nil {
			root = a.LibraryRoot(item.LibrarySectionID)
		}
		nfoPath := findTVShowNFO(mediaPath, root)
		if nfoPath == "" {
			return nil, nil
		}
		return parseTVShowNFO(nfoPath)
	case models.MetadataTypeEpisode:
		nfoPath := findSidecarNFO(mediaPath, "")
		if nfoPath == "" {
			return nil, nil
		}
		return parseEpisodeNFO(nfoPath)
	default:
		return nil, nil
	}
}

// WriteSidecar exports item (plus its resolved relations) as an NFO file next
// to its media, writing lockdata=true when the item's title is locked. The
// lockdata element is not read back on import.
func (a *SidecarAgent) WriteSidecar(_ context.Context, item *models.MetadataItem, relations []models.MetadataRelation, hintPath string) error {
	mediaPath := hintPath
	if mediaPath == "" && a.MediaPath != nil {
		mediaPath = a.MediaPath(item)
	}
	if mediaPath == "" {
		return fmt.Errorf("nfo: no media path for %s", item.UUID)
	}

	var directors, writers []string
	var actors []xmlActor
	for i, rel := range relations {
		switch rel.Type {
		case models.RelationDirector:
			directors = append(directors, rel.Role)
		case models.RelationWriter:
			writers = append(writers, rel.Role)
		case models.RelationActor:
			actors = append(actors, xmlActor{Name: rel.Role, Order: strconv.Itoa(i)})
		}
	}

	switch item.Type {
	case models.MetadataTypeMovie, models.MetadataTypeEpisode:
		ext := filepath.Ext(mediaPath)
		nfoPath := strings.TrimSuffix(mediaPath, ext) + ".nfo"
		movie := xmlMovie{
			Title:         item.Title,
			OriginalTitle: item.OriginalTitle,
			SortTitle:     item.SortTitle,
			Tagline:       item.Tagline,
			Plot:          item.Summary,
			MPAA:          item.ContentRating,
			Studios:       studiosOf(item),
			Directors:     directors,
			Credits:       writers,
			Actors:        actors,
			UniqueIDs:     uniqueIDsFromItem(item),
		}
		if item.Year > 0 {
			movie.Year = strconv.Itoa(item.Year)
		}
		if item.IsLocked("title") {
			movie.LockData = "true"
		}
		return writeNFOFile(nfoPath, movie)
	default:
		return fmt.Errorf("nfo: unsupported type %s for sidecar export", item.Type)
	}
}

func studiosOf(item *models.MetadataItem) []string {
	if item.Studio == "" {
		return nil
	}
	return []string{item.Studio}
}

func uniqueIDsFromItem(item *models.MetadataItem) []xmlUniqueID {
	if len(item.ExternalIDs) == 0 {
		return nil
	}
	var out []xmlUniqueID
	for provider, id := range item.ExternalIDs {
		out = append(out, xmlUniqueID{Type: provider, Value: id})
	}
	return out
}

func writeNFOFile(path string, v interface{}) error {
	data, err := xml.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("nfo: marshal: %w", err)
	}
	output := append([]byte(xml.Header), data...)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("nfo: create directory: %w", err)
	}
	if err := os.WriteFile(path, output, 0o644); err != nil {
		return fmt.Errorf("nfo: write: %w", err)
	}
	log.Printf("nfo: wrote %s", path)
	return nil
}

// findSidecarNFO looks for "<mediaFile-without-ext>.nfo", falling back to
// fallbackName in the same directory.
func findSidecarNFO(mediaPath, fallbackName string) string {
	dir := filepath.Dir(mediaPath)
	base := strings.TrimSuffix(filepath.Base(mediaPath), filepath.Ext(mediaPath))
	exact := filepath.Join(dir, base+".nfo")
	if _, err := os.Stat(exact); err == nil {
		return exact
	}
	if fallbackName != "" {
		alt := filepath.Join(dir, fallbackName)
		if _, err := os.Stat(alt); err == nil {
			return alt
		}
	}
	return ""
}

// findTVShowNFO walks up from mediaPath's directory to root looking for
// tvshow.nfo, matching the teacher's directory walk-up idiom.
func findTVShowNFO(mediaPath, root string) string {
	dir := filepath.Dir(mediaPath)
	for dir != root && len(dir) > len(root) {
		candidate := filepath.Join(dir, "tvshow.nfo")
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	if root != "" {
		candidate := filepath.Join(root, "tvshow.nfo")
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
	}
	return ""
}

func parseMovieNFO(path string) (*Match, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("nfo: read %s: %w", path, err)
	}
	var movie xmlMovie
	if err := xml.Unmarshal(data, &movie); err != nil || movie.Title == "" {
		return nil, nil
	}

	fields := map[string]any{
		"title":          movie.Title,
		"original_title": movie.OriginalTitle,
		"sort_title":      movie.SortTitle,
		"tagline":        movie.Tagline,
		"summary":        movie.Plot,
		"content_rating": movie.MPAA,
	}
	if len(movie.Studios) > 0 {
		fields["studio"] = movie.Studios[0]
	}
	if y, err := strconv.Atoi(movie.Year); err == nil {
		fields["year"] = y
	}

	m := &Match{Title: movie.Title, Fields: fields}
	if y, err := strconv.Atoi(movie.Year); err == nil {
		m.Year = y
	}
	m.ExternalID = firstUniqueID(movie.UniqueIDs)
	m.Relations = relationsFromNFO(movie.Directors, movie.Credits, movie.Actors)
	return m, nil
}

func parseTVShowNFO(path string) (*Match, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("nfo: read %s: %w", path, err)
	}
	var show xmlTVShow
	if err := xml.Unmarshal(data, &show); err != nil || show.Title == "" {
		return nil, nil
	}

	fields := map[string]any{
		"title":          show.Title,
		"original_title": show.OriginalTitle,
		"sort_title":      show.SortTitle,
		"tagline":        show.Tagline,
		"summary":        show.Plot,
		"content_rating": show.MPAA,
	}
	if len(show.Studios) > 0 {
		fields["studio"] = show.Studios[0]
	}
	if y, err := strconv.Atoi(show.Year); err == nil {
		fields["year"] = y
	}

	m := &Match{Title: show.Title, Fields: fields}
	if y, err := strconv.Atoi(show.Year); err == nil {
		m.Year = y
	}
	m.ExternalID = firstUniqueID(show.UniqueIDs)
	m.Relations = relationsFromNFO(nil, nil, show.Actors)
	return m, nil
}

func parseEpisodeNFO(path string) (*Match, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("nfo: read %s: %w", path, err)
	}
	var ep xmlEpisode
	if err := xml.Unmarshal(data, &ep); err != nil || ep.Title == "" {
		return nil, nil
	}

	fields := map[string]any{
		"title":          ep.Title,
		"summary":        ep.Plot,
		"content_rating": ep.MPAA,
	}
	m := &Match{Title: ep.Title, Fields: fields}
	m.ExternalID = firstUniqueID(ep.UniqueIDs)
	m.Relations = relationsFromNFO(ep.Directors, ep.Credits, ep.Actors)
	return m, nil
}

func firstUniqueID(ids []xmlUniqueID) string {
	for _, id := range ids {
		if id.Default == "true" {
			return strings.TrimSpace(id.Value)
		}
	}
	if len(ids) > 0 {
		return strings.TrimSpace(ids[0].Value)
	}
	return ""
}

func relationsFromNFO(directors, writers []string, actors []xmlActor) []RelationCandidate {
	var out []RelationCandidate
	for _, d := range directors {
		out = append(out, RelationCandidate{Type: models.RelationDirector, Name: d})
	}
	for _, w := range writers {
		out = append(out, RelationCandidate{Type: models.RelationWriter, Name: w})
	}
	for _, a := range actors {
		out = append(out, RelationCandidate{Type: models.RelationActor, Name: a.Name})
	}
	return out
}
