package scan

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/nexamediaserver/server/internal/models"
)

// ParsedFilename is what the resolver extracts from a path before looking it
// up via the dedup service, mirroring the teacher's per-type filename
// patterns.
type ParsedFilename struct {
	Title       string
	Year        *int
	Edition     string
	ExternalID  string // pre-extracted provider id, e.g. from "{tmdb-603}"
	Season      int
	Episode     int
	PartNumber  *int
	PartType    string // "CD", "DISC", "PART", "PT"
	BaseTitle   string // grouping key for multi-part sets
	Artist      string
	Album       string
	TrackNumber *int
}

var (
	movieFilenamePattern = regexp.MustCompile(
		`(?i)^(.+?)\s*\((\d{4})\)\s*(?:\{([^}]+)\})?\s*$`)

	externalIDPattern = regexp.MustCompile(`(?i)\{(tmdb|tvdb|imdb|mbid)-([a-z0-9]+)\}`)

	// Group 1: show title, group 2: season, group 3: episode.
	episodicPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)^(.+?)[.\s_-]+[Ss](\d{1,2})[Ee](\d{1,3})`),
		regexp.MustCompile(`(?i)^(.+?)[.\s_-]+(\d{1,2})x(\d{1,3})`),
	}

	multiPartPattern = regexp.MustCompile(`(?i)[._\s-](CD|DISC|PART|PT)-?(\d+)\s*$`)

	musicFilenamePattern = regexp.MustCompile(`(?i)^(\d{1,3})[.\s_-]+(.+)$`)

	// Matched against the base filename (suffix form, "Movie-trailer") and
	// against the parent directory name ("Trailers/", "Behind The Scenes/").
	extraPatterns = []struct {
		re   *regexp.Regexp
		kind models.ExtraType
	}{
		{regexp.MustCompile(`(?i)[._\s-]trailer\d*$`), models.ExtraTrailer},
		{regexp.MustCompile(`(?i)[._\s-]featurette\d*$`), models.ExtraFeaturette},
		{regexp.MustCompile(`(?i)[._\s-]behind[._\s-]?the[._\s-]?scenes\d*$`), models.ExtraBehindTheScenes},
		{regexp.MustCompile(`(?i)[._\s-]deleted[._\s-]?scene\d*$`), models.ExtraDeletedScene},
		{regexp.MustCompile(`(?i)[._\s-]sample\d*$`), models.ExtraSample},
		{regexp.MustCompile(`(?i)[._\s-]interview\d*$`), models.ExtraInterview},
	}

	extraDirNames = map[string]models.ExtraType{
		"trailers":          models.ExtraTrailer,
		"featurettes":       models.ExtraFeaturette,
		"behind the scenes": models.ExtraBehindTheScenes,
		"deleted scenes":    models.ExtraDeletedScene,
		"samples":           models.ExtraSample,
		"interviews":        models.ExtraInterview,
	}
)

// ClassifyExtra reports whether path names bonus material and, when it does,
// the name the owning feature resolves from: the filename with the extra
// suffix stripped, or the directory that owns a conventional extras
// directory.
func ClassifyExtra(path string) (models.ExtraType, string) {
	name := filepath.Base(path)
	base := strings.TrimSuffix(name, filepath.Ext(name))
	for _, p := range extraPatterns {
		if loc := p.re.FindStringIndex(base); loc != nil {
			return p.kind, strings.TrimSpace(base[:loc[0]])
		}
	}
	dir := filepath.Dir(path)
	if kind, ok := extraDirNames[strings.ToLower(filepath.Base(dir))]; ok {
		return kind, filepath.Base(filepath.Dir(dir))
	}
	return "", ""
}

// ParseFilename extracts candidate grouping/identity information from a
// filename according to the section type it belongs to.
func ParseFilename(name string, sectionType models.LibrarySectionType) ParsedFilename {
	result := ParsedFilename{Edition: "Theatrical"}
	ext := filepath.Ext(name)
	base := strings.TrimSuffix(name, ext)
	result.BaseTitle = base

	if m := externalIDPattern.FindStringSubmatch(base); m != nil {
		result.ExternalID = fmt.Sprintf("%s-%s", strings.ToLower(m[1]), m[2])
		base = externalIDPattern.ReplaceAllString(base, "")
		base = strings.TrimSpace(base)
	}

	switch sectionType {
	case models.SectionMovies, models.SectionHomeVideos, models.SectionMusicVideos:
		if m := multiPartPattern.FindStringSubmatch(base); m != nil {
			n, _ := strconv.Atoi(m[2])
			result.PartNumber = &n
			result.PartType = strings.ToUpper(m[1])
			base = multiPartPattern.ReplaceAllString(base, "")
			base = strings.TrimSpace(base)
		}
		result.BaseTitle = base
		if m := movieFilenamePattern.FindStringSubmatch(base); m != nil {
			result.Title = strings.TrimSpace(m[1])
			if y, err := strconv.Atoi(m[2]); err == nil {
				result.Year = &y
			}
			if len(m) > 3 && m[3] != "" {
				result.Edition = m[3]
			}
		} else {
			result.Title = base
		}

	case models.SectionTVShows:
		for _, re := range episodicPatterns {
			if m := re.FindStringSubmatch(base); m != nil {
				result.Title = strings.TrimSpace(strings.NewReplacer(".", " ", "_", " ").Replace(m[1]))
				result.Season, _ = strconv.Atoi(m[2])
				result.Episode, _ = strconv.Atoi(m[3])
				break
			}
		}

	case models.SectionMusic, models.SectionAudiobooks, models.SectionPodcasts:
		if m := musicFilenamePattern.FindStringSubmatch(base); m != nil {
			n, _ := strconv.Atoi(m[1])
			result.TrackNumber = &n
			result.Title = strings.TrimSpace(m[2])
		} else {
			result.Title = base
		}
		result.Album = filepath.Base(filepath.Dir(name))

	default:
		result.Title = base
	}

	return result
}

// GroupKey identifies the candidate MediaItem a file belongs to: for movies,
// one per (Title, Year); for episodic, one per (Title, Season, Episode);
// for other section types (music included), one per Title.
type GroupKey string

func (p ParsedFilename) GroupKey(sectionType models.LibrarySectionType) GroupKey {
	switch sectionType {
	case models.SectionTVShows:
		return GroupKey(fmt.Sprintf("%s|s%de%d", strings.ToLower(p.Title), p.Season, p.Episode))
	case models.SectionMovies, models.SectionHomeVideos, models.SectionMusicVideos:
		year := 0
		if p.Year != nil {
			year = *p.Year
		}
		return GroupKey(fmt.Sprintf("%s|%d", strings.ToLower(p.Title), year))
	default:
		return GroupKey(strings.ToLower(p.Title))
	}
}

// IsMultiPart reports whether the parse detected a CD/DISC/PART suffix.
func (p ParsedFilename) IsMultiPart() bool {
	return p.PartNumber != nil
}
