// Package abr generates adaptive-bitrate ladders (§4.10): ordered
// (width, height, bitrate) rungs derived from a source's resolution/bitrate
// and a client's bitrate cap.
package abr

import "sort"

// Rung is one rendition in an ABR ladder.
type Rung struct {
	Width      int   `json:"width"`
	Height     int   `json:"height"`
	BitrateBps int64 `json:"bitrateBps"`
	IsSource   bool  `json:"isSource,omitempty"`
}

// catalog is the fixed resolution/bitrate pair list from §4.10, ascending.
var catalog = []Rung{
	{Width: 426, Height: 240, BitrateBps: 400_000},
	{Width: 640, Height: 360, BitrateBps: 700_000},
	{Width: 854, Height: 480, BitrateBps: 1_200_000},
	{Width: 1280, Height: 720, BitrateBps: 2_500_000},
	{Width: 1920, Height: 1080, BitrateBps: 5_000_000},
	{Width: 2560, Height: 1440, BitrateBps: 10_000_000},
	{Width: 3840, Height: 2160, BitrateBps: 20_000_000},
}

// Params bundles the generator inputs from §4.10.
type Params struct {
	SourceWidth       int
	SourceHeight      int
	SourceBitrateBps  int64
	MaxAllowedBitrate int64
	IncludeSource     bool
}

// Generate builds the ladder per the rules in §4.10:
//   - never upscale: rungs taller than the source height are dropped
//   - rungs whose bitrate exceeds MaxAllowedBitrate are dropped
//   - if IncludeSource, the source rung (marked IsSource) takes the place of
//     a kept rung with the same resolution, or is inserted if there is none,
//     keeping the ladder sorted ascending by bitrate
//   - always return at least one rung: if every rung was filtered by the
//     bitrate cap, return the lowest rung unfiltered even though it exceeds
//     the cap (documented corner case, §4.10 and DESIGN.md open question)
func Generate(p Params) []Rung {
	var ladder []Rung
	for _, rung := range catalog {
		if rung.Height > p.SourceHeight {
			continue
		}
		if p.MaxAllowedBitrate > 0 && rung.BitrateBps > p.MaxAllowedBitrate {
			continue
		}
		ladder = append(ladder, rung)
	}

	if p.IncludeSource && p.SourceWidth > 0 && p.SourceHeight > 0 && p.SourceBitrateBps > 0 {
		source := Rung{Width: p.SourceWidth, Height: p.SourceHeight, BitrateBps: p.SourceBitrateBps, IsSource: true}
		if i := indexOfResolution(ladder, source); i >= 0 {
			ladder[i] = source
		} else {
			ladder = append(ladder, source)
		}
	}

	sort.Slice(ladder, func(i, j int) bool { return ladder[i].BitrateBps < ladder[j].BitrateBps })

	if len(ladder) > 0 {
		return ladder
	}

	// Every catalog rung exceeded the cap, or the source height filtered the
	// whole catalog (e.g. a 240p source with a sub-lowest-rung cap). Fall
	// back to the lowest rung at or below the source height; if the source
	// height filters out even the lowest rung, fall back to the catalog's
	// lowest rung outright.
	for _, rung := range catalog {
		if rung.Height <= p.SourceHeight {
			return []Rung{rung}
		}
	}
	return []Rung{catalog[0]}
}

func indexOfResolution(ladder []Rung, r Rung) int {
	for i, existing := range ladder {
		if existing.Width == r.Width && existing.Height == r.Height {
			return i
		}
	}
	return -1
}
