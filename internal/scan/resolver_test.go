package scan

import (
	"testing"

	"github.com/nexamediaserver/server/internal/models"
)

func TestParseFilenameMovieExtractsTitleYearEdition(t *testing.T) {
	p := ParseFilename("Inception (2010) {Director's Cut}.mkv", models.SectionMovies)
	if p.Title != "Inception" {
		t.Fatalf("expected title Inception, got %q", p.Title)
	}
	if p.Year == nil || *p.Year != 2010 {
		t.Fatalf("expected year 2010, got %v", p.Year)
	}
	if p.Edition != "Director's Cut" {
		t.Fatalf("expected edition override, got %q", p.Edition)
	}
}

func TestParseFilenameMovieDefaultsEditionToTheatrical(t *testing.T) {
	p := ParseFilename("Inception (2010).mkv", models.SectionMovies)
	if p.Edition != "Theatrical" {
		t.Fatalf("expected default edition Theatrical, got %q", p.Edition)
	}
}

func TestParseFilenameExtractsExternalIDTag(t *testing.T) {
	p := ParseFilename("Inception (2010) {tmdb-27205}.mkv", models.SectionMovies)
	if p.ExternalID != "tmdb-27205" {
		t.Fatalf("expected external id tmdb-27205, got %q", p.ExternalID)
	}
	if p.Title != "Inception" {
		t.Fatalf("expected the external id tag stripped from title, got %q", p.Title)
	}
}

func TestParseFilenameMultiPartMovie(t *testing.T) {
	p := ParseFilename("Gone With The Wind (1939)-CD1.mkv", models.SectionMovies)
	if p.PartNumber == nil || *p.PartNumber != 1 {
		t.Fatalf("expected part number 1, got %v", p.PartNumber)
	}
	if p.PartType != "CD" {
		t.Fatalf("expected part type CD, got %q", p.PartType)
	}
	if !p.IsMultiPart() {
		t.Fatal("expected IsMultiPart to report true")
	}
}

func TestParseFilenameEpisodicExtractsSeasonEpisode(t *testing.T) {
	p := ParseFilename("Breaking.Bad.S03E07.mkv", models.SectionTVShows)
	if p.Title != "Breaking Bad" {
		t.Fatalf("expected title Breaking Bad, got %q", p.Title)
	}
	if p.Season != 3 || p.Episode != 7 {
		t.Fatalf("expected S3E7, got S%dE%d", p.Season, p.Episode)
	}
}

func TestParseFilenameEpisodicAlternateXPattern(t *testing.T) {
	p := ParseFilename("The Office 2x05.mkv", models.SectionTVShows)
	if p.Season != 2 || p.Episode != 5 {
		t.Fatalf("expected S2E5, got S%dE%d", p.Season, p.Episode)
	}
}

func TestParseFilenameMusicExtractsTrackNumberAndAlbum(t *testing.T) {
	p := ParseFilename("03. Paranoid Android.flac", models.SectionMusic)
	if p.TrackNumber == nil || *p.TrackNumber != 3 {
		t.Fatalf("expected track number 3, got %v", p.TrackNumber)
	}
	if p.Title != "Paranoid Android" {
		t.Fatalf("expected title Paranoid Android, got %q", p.Title)
	}
}

func TestGroupKeyDistinguishesSameTitleDifferentYear(t *testing.T) {
	a := ParseFilename("Dune (1984).mkv", models.SectionMovies)
	b := ParseFilename("Dune (2021).mkv", models.SectionMovies)
	if a.GroupKey(models.SectionMovies) == b.GroupKey(models.SectionMovies) {
		t.Fatal("expected distinct group keys for different release years")
	}
}

func TestGroupKeyEpisodicIncludesSeasonEpisode(t *testing.T) {
	a := ParseFilename("Breaking.Bad.S01E01.mkv", models.SectionTVShows)
	b := ParseFilename("Breaking.Bad.S01E02.mkv", models.SectionTVShows)
	if a.GroupKey(models.SectionTVShows) == b.GroupKey(models.SectionTVShows) {
		t.Fatal("expected distinct group keys for different episodes of the same show")
	}
}

func TestClassifyExtraBySuffix(t *testing.T) {
	cases := []struct {
		path  string
		kind  models.ExtraType
		owner string
	}{
		{"/m/movies/Inception (2010)/Inception (2010)-trailer.mkv", models.ExtraTrailer, "Inception (2010)"},
		{"/m/movies/Inception (2010)/Inception (2010)-featurette2.mkv", models.ExtraFeaturette, "Inception (2010)"},
		{"/m/movies/Inception (2010)/Inception (2010).behind-the-scenes.mkv", models.ExtraBehindTheScenes, "Inception (2010)"},
		{"/m/movies/Inception (2010)/Inception (2010) sample.mkv", models.ExtraSample, "Inception (2010)"},
	}
	for _, c := range cases {
		kind, owner := ClassifyExtra(c.path)
		if kind != c.kind {
			t.Errorf("%s: expected kind %q, got %q", c.path, c.kind, kind)
		}
		if owner != c.owner {
			t.Errorf("%s: expected owner %q, got %q", c.path, c.owner, owner)
		}
	}
}

func TestClassifyExtraByDirectory(t *testing.T) {
	kind, owner := ClassifyExtra("/m/movies/Inception (2010)/Trailers/teaser.mkv")
	if kind != models.ExtraTrailer {
		t.Fatalf("expected trailer kind, got %q", kind)
	}
	if owner != "Inception (2010)" {
		t.Fatalf("expected owner dir, got %q", owner)
	}
}

func TestClassifyExtraMainFeatureIsNotAnExtra(t *testing.T) {
	if kind, _ := ClassifyExtra("/m/movies/Inception (2010)/Inception (2010).mkv"); kind != "" {
		t.Fatalf("main feature misclassified as %q", kind)
	}
}
