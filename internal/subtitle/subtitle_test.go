package subtitle

import (
	"strings"
	"testing"
	"time"
)

const sampleSRT = "1\n00:00:01,000 --> 00:00:03,500\nHello there\n\n2\n00:00:04,000 --> 00:00:06,000\nSecond line\nwraps\n\n"

func TestConvertSRTToVTT(t *testing.T) {
	var out strings.Builder
	err := Convert("", strings.NewReader(sampleSRT), "", 0, FormatSRT, FormatVTT, nil, nil, &out)
	if err != nil {
		t.Fatalf("Convert: %v", err)
	}
	got := out.String()
	if !strings.HasPrefix(got, "WEBVTT\n\n") {
		t.Fatalf("expected WEBVTT header, got %q", got)
	}
	if !strings.Contains(got, "00:00:01.000 --> 00:00:03.500") {
		t.Fatalf("expected converted timestamp, got %q", got)
	}
	if !strings.Contains(got, "Second line\nwraps") {
		t.Fatalf("expected multi-line cue text preserved, got %q", got)
	}
}

func TestConvertSRTRoundTripThroughVTT(t *testing.T) {
	var vtt strings.Builder
	if err := Convert("", strings.NewReader(sampleSRT), "", 0, FormatSRT, FormatVTT, nil, nil, &vtt); err != nil {
		t.Fatalf("srt->vtt: %v", err)
	}

	var srt strings.Builder
	if err := Convert("", strings.NewReader(vtt.String()), "", 0, FormatVTT, FormatSRT, nil, nil, &srt); err != nil {
		t.Fatalf("vtt->srt: %v", err)
	}

	cues, err := parseSRT(strings.NewReader(srt.String()))
	if err != nil {
		t.Fatalf("parse round-tripped srt: %v", err)
	}
	if len(cues) != 2 {
		t.Fatalf("expected 2 cues after round-trip, got %d", len(cues))
	}
	if cues[0].Text != "Hello there" {
		t.Fatalf("expected first cue text preserved, got %q", cues[0].Text)
	}
}

func TestWindowDropsCuesOutsideRangeAndShiftsSurvivors(t *testing.T) {
	cues := []Cue{
		{Start: 0, End: 2 * time.Second, Text: "before"},
		{Start: 3 * time.Second, End: 5 * time.Second, Text: "inside"},
		{Start: 10 * time.Second, End: 12 * time.Second, Text: "after"},
	}
	windowed := window(cues, 2500*time.Millisecond, 8*time.Second)
	if len(windowed) != 1 {
		t.Fatalf("expected exactly 1 cue within window, got %d: %+v", len(windowed), windowed)
	}
	if windowed[0].Text != "inside" {
		t.Fatalf("expected the 'inside' cue to survive, got %q", windowed[0].Text)
	}
	if windowed[0].Start != 500*time.Millisecond {
		t.Fatalf("expected cue shifted to 500ms relative to window start, got %v", windowed[0].Start)
	}
}

func TestConvertAppliesTickWindow(t *testing.T) {
	var out strings.Builder
	start := int64(0)
	end := int64(35 * TicksPerSecond / 10) // 3.5s
	err := Convert("", strings.NewReader(sampleSRT), "", 0, FormatSRT, FormatSRT, &start, &end, &out)
	if err != nil {
		t.Fatalf("Convert: %v", err)
	}
	if strings.Contains(out.String(), "Second line") {
		t.Fatalf("expected second cue (starts at 4s) to be windowed out, got %q", out.String())
	}
	if !strings.Contains(out.String(), "Hello there") {
		t.Fatalf("expected first cue retained, got %q", out.String())
	}
}

func TestParseASSExtractsDialogueAndStripsTags(t *testing.T) {
	ass := "[Script Info]\nScriptType: v4.00+\n\n[Events]\n" +
		"Format: Layer, Start, End, Style, Name, MarginL, MarginR, MarginV, Effect, Text\n" +
		"Dialogue: 0,0:00:01.00,0:00:03.00,Default,,0,0,0,,{\\i1}Styled{\\i0} text\\Nsecond line\n"

	cues, err := parseASS(strings.NewReader(ass))
	if err != nil {
		t.Fatalf("parseASS: %v", err)
	}
	if len(cues) != 1 {
		t.Fatalf("expected 1 cue, got %d", len(cues))
	}
	if cues[0].Text != "Styled text\nsecond line" {
		t.Fatalf("expected style tags stripped and \\N converted to newline, got %q", cues[0].Text)
	}
	if cues[0].Start != time.Second {
		t.Fatalf("expected start at 1s, got %v", cues[0].Start)
	}
}

func TestGetMimeType(t *testing.T) {
	cases := map[Format]string{
		FormatVTT: "text/vtt",
		FormatSRT: "application/x-subrip",
		FormatASS: "text/x-ssa",
	}
	for f, want := range cases {
		if got := GetMimeType(f); got != want {
			t.Errorf("GetMimeType(%s) = %q, want %q", f, got, want)
		}
	}
}
