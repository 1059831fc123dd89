package playback

import (
	"errors"
	"testing"

	"github.com/nexamediaserver/server/internal/models"
	"github.com/nexamediaserver/server/internal/paths"
)

func testPaths(t *testing.T) *paths.Paths {
	t.Helper()
	dir := t.TempDir()
	return paths.New(dir, dir, dir)
}

func baseMediaItem() *models.MediaItem {
	return &models.MediaItem{
		Container:  "mp4",
		DurationMs: 60_000,
		Bitrate:    4_000_000,
		Width:      1920,
		Height:     1080,
		VideoCodec: "h264",
		AudioCodec: "aac",
		Parts:      []models.MediaPart{{ID: 1}},
	}
}

func permissiveCapability() *models.CapabilityProfile {
	return &models.CapabilityProfile{
		SupportedContainers:  []string{"mp4"},
		SupportedVideoCodecs: []string{"h264"},
		SupportedAudioCodecs: []string{"aac"},
		AllowRemuxing:        true,
		MaxBitrate:           10_000_000,
	}
}

func TestDecidePlanDirectPlayWhenFullyCompatible(t *testing.T) {
	plan, ladder, err := decidePlan(baseMediaItem(), permissiveCapability(), testPaths(t))
	if err != nil {
		t.Fatalf("decidePlan: %v", err)
	}
	if plan.Mode != models.ModeDirectPlay {
		t.Fatalf("expected DirectPlay, got %v", plan.Mode)
	}
	if ladder != nil {
		t.Fatalf("expected no ABR ladder for direct play, got %v", ladder)
	}
}

func TestDecidePlanDirectStreamWhenOnlyContainerDiffers(t *testing.T) {
	item := baseMediaItem()
	item.Container = "mkv"
	cap := permissiveCapability() // only mp4 listed as supported container

	plan, _, err := decidePlan(item, cap, testPaths(t))
	if err != nil {
		t.Fatalf("decidePlan: %v", err)
	}
	if plan.Mode != models.ModeDirectStream {
		t.Fatalf("expected DirectStream, got %v", plan.Mode)
	}
	if plan.RemuxURL == "" {
		t.Fatal("expected a remux URL to be set")
	}
}

func TestDecidePlanTranscodeWhenCodecUnsupported(t *testing.T) {
	item := baseMediaItem()
	item.VideoCodec = "hevc"
	cap := permissiveCapability() // only h264 listed

	plan, ladder, err := decidePlan(item, cap, testPaths(t))
	if err != nil {
		t.Fatalf("decidePlan: %v", err)
	}
	if plan.Mode != models.ModeTranscode {
		t.Fatalf("expected Transcode, got %v", plan.Mode)
	}
	if plan.ManifestURL == "" {
		t.Fatal("expected a manifest URL to be set")
	}
	if len(ladder) == 0 {
		t.Fatal("expected a non-empty ABR ladder")
	}
}

func TestDecidePlanTranscodeWhenRemuxingDisallowed(t *testing.T) {
	item := baseMediaItem()
	item.Container = "mkv"
	cap := permissiveCapability()
	cap.AllowRemuxing = false

	plan, _, err := decidePlan(item, cap, testPaths(t))
	if err != nil {
		t.Fatalf("decidePlan: %v", err)
	}
	if plan.Mode != models.ModeTranscode {
		t.Fatalf("expected Transcode when remuxing disallowed, got %v", plan.Mode)
	}
}

// §8 boundary behavior: playback of an item with duration=0 is unsupported.
func TestDecidePlanZeroDurationIsUnsupported(t *testing.T) {
	item := baseMediaItem()
	item.DurationMs = 0

	_, _, err := decidePlan(item, permissiveCapability(), testPaths(t))
	if !errors.Is(err, ErrPlaybackUnsupported) {
		t.Fatalf("expected ErrPlaybackUnsupported, got %v", err)
	}
}

func TestDirectPlayRejectsMissingHDRSupport(t *testing.T) {
	item := baseMediaItem()
	item.HDRFormat = "HDR10"
	cap := permissiveCapability()
	cap.SupportsHDR = false

	if directPlayCompatible(item, cap) {
		t.Fatal("expected direct play to be rejected when capability lacks HDR support")
	}
}

func TestContainsFoldIsCaseInsensitive(t *testing.T) {
	if !containsFold([]string{"MP4", "mkv"}, "mp4") {
		t.Fatal("expected case-insensitive match")
	}
	if containsFold([]string{"mp4"}, "mkv") {
		t.Fatal("expected no match for absent value")
	}
}
