package abr

import "testing"

func TestGenerateDropsUpscaleAndOverCapRungs(t *testing.T) {
	ladder := Generate(Params{
		SourceWidth:       1920,
		SourceHeight:      1080,
		MaxAllowedBitrate: 3_000_000,
	})

	for _, r := range ladder {
		if r.Height > 1080 {
			t.Fatalf("rung %+v exceeds source height", r)
		}
		if r.BitrateBps > 3_000_000 {
			t.Fatalf("rung %+v exceeds bitrate cap", r)
		}
	}
	if len(ladder) == 0 {
		t.Fatal("expected at least one rung")
	}
}

func TestGenerateIsAscendingByBitrate(t *testing.T) {
	ladder := Generate(Params{SourceWidth: 3840, SourceHeight: 2160, MaxAllowedBitrate: 50_000_000})
	for i := 1; i < len(ladder); i++ {
		if ladder[i].BitrateBps < ladder[i-1].BitrateBps {
			t.Fatalf("ladder not sorted ascending: %+v", ladder)
		}
	}
}

func TestGenerateIncludesSourceWhenRequested(t *testing.T) {
	ladder := Generate(Params{
		SourceWidth:       1920,
		SourceHeight:      1080,
		SourceBitrateBps:  8_000_000,
		MaxAllowedBitrate: 50_000_000,
		IncludeSource:     true,
	})

	var found bool
	for _, r := range ladder {
		if r.IsSource {
			found = true
			if r.BitrateBps != 8_000_000 {
				t.Fatalf("source rung has wrong bitrate: %+v", r)
			}
		}
	}
	if !found {
		t.Fatal("expected source rung to be included")
	}
}

func TestGenerateIncludeSourceDoesNotDuplicateExistingResolution(t *testing.T) {
	ladder := Generate(Params{
		SourceWidth:       1920,
		SourceHeight:      1080,
		SourceBitrateBps:  5_000_000,
		MaxAllowedBitrate: 50_000_000,
		IncludeSource:     true,
	})

	count := 0
	for _, r := range ladder {
		if r.Width == 1920 && r.Height == 1080 {
			count++
		}
	}
	if count != 1 {
		t.Fatalf("expected exactly one 1080p rung, got %d", count)
	}
}

// Corner case per §4.10 and §8: src_h=240, max_allowed=100k returns exactly
// the lowest rung even though it exceeds the cap.
func TestGenerateAllRungsOverCapReturnsLowestRungRegardless(t *testing.T) {
	ladder := Generate(Params{
		SourceWidth:       426,
		SourceHeight:      240,
		MaxAllowedBitrate: 100_000,
	})

	if len(ladder) != 1 {
		t.Fatalf("expected exactly one fallback rung, got %d: %+v", len(ladder), ladder)
	}
	if ladder[0].Height != 240 || ladder[0].BitrateBps != 400_000 {
		t.Fatalf("expected fallback to the 240p/400k rung, got %+v", ladder[0])
	}
}

func TestGenerateNeverUpscalesEvenWhenCapIsGenerous(t *testing.T) {
	ladder := Generate(Params{SourceWidth: 640, SourceHeight: 360, MaxAllowedBitrate: 100_000_000})
	for _, r := range ladder {
		if r.Height > 360 {
			t.Fatalf("upscaled rung leaked into ladder: %+v", r)
		}
	}
}
