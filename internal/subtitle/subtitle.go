// Package subtitle converts and time-windows sidecar or embedded subtitles
// between formats (§4.12): srt/vtt/ass in-process, image-based formats
// (PGS, VobSub) via FFmpeg extraction.
package subtitle

import (
	"bufio"
	"fmt"
	"io"
	"os/exec"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Format identifies a subtitle wire format.
type Format string

const (
	FormatSRT    Format = "srt"
	FormatVTT    Format = "vtt"
	FormatASS    Format = "ass"
	FormatPGS    Format = "pgs"
	FormatVobSub Format = "vobsub"
)

// TicksPerSecond matches the convention used across the spec's
// startTicks/endTicks windowing parameters: 100ns units, ten million per
// second.
const TicksPerSecond = 10_000_000

// GetMimeType returns the MIME type advertised for a subtitle format.
func GetMimeType(f Format) string {
	switch f {
	case FormatVTT:
		return "text/vtt"
	case FormatSRT:
		return "application/x-subrip"
	case FormatASS:
		return "text/x-ssa"
	default:
		return "application/octet-stream"
	}
}

// isImageBased reports whether a format requires FFmpeg extraction rather
// than in-process text conversion.
func isImageBased(f Format) bool {
	return f == FormatPGS || f == FormatVobSub
}

// Cue is one subtitle line with an in-process-representable time window.
type Cue struct {
	Start time.Duration
	End   time.Duration
	Text  string
}

// Convert reads input in inputFmt and writes it to w in outputFmt, windowed
// to [startTicks, endTicks] when both are non-nil. Image-based source
// formats are extracted via FFmpeg from mediaPath at streamIndex; text
// formats are converted in-process.
func Convert(ffmpegPath string, r io.Reader, mediaPath string, streamIndex int, inputFmt, outputFmt Format, startTicks, endTicks *int64, w io.Writer) error {
	if isImageBased(inputFmt) {
		return extractViaFFmpeg(ffmpegPath, mediaPath, streamIndex, outputFmt, w)
	}

	cues, err := parse(r, inputFmt)
	if err != nil {
		return fmt.Errorf("subtitle: parse %s: %w", inputFmt, err)
	}

	if startTicks != nil && endTicks != nil {
		cues = window(cues, ticksToDuration(*startTicks), ticksToDuration(*endTicks))
	}

	return write(w, cues, outputFmt)
}

func ticksToDuration(ticks int64) time.Duration {
	return time.Duration(ticks) * time.Second / TicksPerSecond
}

// window clips cues to [start, end), dropping any entirely outside the
// range and shifting the survivors so the first cue's Start becomes
// relative to the window, matching how a client requests a time-windowed
// subtitle track for a seeked-to segment.
func window(cues []Cue, start, end time.Duration) []Cue {
	var out []Cue
	for _, c := range cues {
		if c.End <= start || c.Start >= end {
			continue
		}
		shifted := Cue{Start: c.Start - start, End: c.End - start, Text: c.Text}
		if shifted.Start < 0 {
			shifted.Start = 0
		}
		out = append(out, shifted)
	}
	return out
}

func parse(r io.Reader, f Format) ([]Cue, error) {
	switch f {
	case FormatSRT:
		return parseSRT(r)
	case FormatVTT:
		return parseVTT(r)
	case FormatASS:
		return parseASS(r)
	default:
		return nil, fmt.Errorf("subtitle: unsupported input format %q", f)
	}
}

func write(w io.Writer, cues []Cue, f Format) error {
	switch f {
	case FormatVTT:
		return writeVTT(w, cues)
	case FormatSRT:
		return writeSRT(w, cues)
	case FormatASS:
		return writeASS(w, cues)
	default:
		return fmt.Errorf("subtitle: unsupported output format %q", f)
	}
}

var srtTimeRe = regexp.MustCompile(`(\d{2}):(\d{2}):(\d{2})[,.](\d{3})\s*-->\s*(\d{2}):(\d{2}):(\d{2})[,.](\d{3})`)

func parseSRT(r io.Reader) ([]Cue, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)

	var cues []Cue
	var cur *Cue
	var text []string
	flush := func() {
		if cur != nil {
			cur.Text = strings.TrimSpace(strings.Join(text, "\n"))
			cues = append(cues, *cur)
		}
		cur = nil
		text = nil
	}
	for scanner.Scan() {
		line := strings.TrimPrefix(strings.TrimSpace(scanner.Text()), "\xef\xbb\xbf")
		if m := srtTimeRe.FindStringSubmatch(line); m != nil {
			flush()
			cur = &Cue{Start: srtTimestamp(m[1:5]), End: srtTimestamp(m[5:9])}
			continue
		}
		if line == "" {
			flush()
			continue
		}
		if _, err := strconv.Atoi(line); err == nil && cur == nil {
			continue // cue index line
		}
		text = append(text, line)
	}
	flush()
	return cues, scanner.Err()
}

func srtTimestamp(parts []string) time.Duration {
	h, _ := strconv.Atoi(parts[0])
	m, _ := strconv.Atoi(parts[1])
	s, _ := strconv.Atoi(parts[2])
	ms, _ := strconv.Atoi(parts[3])
	return time.Duration(h)*time.Hour + time.Duration(m)*time.Minute + time.Duration(s)*time.Second + time.Duration(ms)*time.Millisecond
}

func parseVTT(r io.Reader) ([]Cue, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)

	var cues []Cue
	var cur *Cue
	var text []string
	flush := func() {
		if cur != nil {
			cur.Text = strings.TrimSpace(strings.Join(text, "\n"))
			cues = append(cues, *cur)
		}
		cur = nil
		text = nil
	}
	vttTimeRe := regexp.MustCompile(`(\d{2}:)?(\d{2}):(\d{2})\.(\d{3})\s*-->\s*(\d{2}:)?(\d{2}):(\d{2})\.(\d{3})`)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "WEBVTT" || strings.HasPrefix(line, "WEBVTT") {
			continue
		}
		if m := vttTimeRe.FindStringSubmatch(line); m != nil {
			flush()
			cur = &Cue{Start: vttTimestamp(m[1:5]), End: vttTimestamp(m[5:9])}
			continue
		}
		if line == "" {
			flush()
			continue
		}
		text = append(text, line)
	}
	flush()
	return cues, scanner.Err()
}

func vttTimestamp(parts []string) time.Duration {
	h := 0
	if parts[0] != "" {
		h, _ = strconv.Atoi(strings.TrimSuffix(parts[0], ":"))
	}
	m, _ := strconv.Atoi(parts[1])
	s, _ := strconv.Atoi(parts[2])
	ms, _ := strconv.Atoi(parts[3])
	return time.Duration(h)*time.Hour + time.Duration(m)*time.Minute + time.Duration(s)*time.Second + time.Duration(ms)*time.Millisecond
}

// parseASS extracts Dialogue lines from the [Events] section; styling
// overrides beyond plain text are stripped since the wire formats we convert
// to (vtt/srt) don't carry ASS style tags.
func parseASS(r io.Reader) ([]Cue, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)

	assTagRe := regexp.MustCompile(`\{[^}]*\}`)
	var cues []Cue
	inEvents := false
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if strings.EqualFold(line, "[Events]") {
			inEvents = true
			continue
		}
		if strings.HasPrefix(line, "[") {
			inEvents = false
			continue
		}
		if !inEvents || !strings.HasPrefix(line, "Dialogue:") {
			continue
		}
		fields := strings.SplitN(strings.TrimPrefix(line, "Dialogue:"), ",", 10)
		if len(fields) < 10 {
			continue
		}
		start, err1 := assTimestamp(strings.TrimSpace(fields[1]))
		end, err2 := assTimestamp(strings.TrimSpace(fields[2]))
		if err1 != nil || err2 != nil {
			continue
		}
		text := assTagRe.ReplaceAllString(fields[9], "")
		text = strings.ReplaceAll(text, `\N`, "\n")
		cues = append(cues, Cue{Start: start, End: end, Text: strings.TrimSpace(text)})
	}
	return cues, scanner.Err()
}

func assTimestamp(s string) (time.Duration, error) {
	parts := strings.SplitN(s, ":", 3)
	if len(parts) != 3 {
		return 0, fmt.Errorf("subtitle: bad ass timestamp %q", s)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, err
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil {
		return 0, err
	}
	secParts := strings.SplitN(parts[2], ".", 2)
	s2, err := strconv.Atoi(secParts[0])
	if err != nil {
		return 0, err
	}
	cs := 0
	if len(secParts) == 2 {
		cs, _ = strconv.Atoi(secParts[1])
	}
	return time.Duration(h)*time.Hour + time.Duration(m)*time.Minute + time.Duration(s2)*time.Second + time.Duration(cs)*10*time.Millisecond, nil
}

func writeVTT(w io.Writer, cues []Cue) error {
	if _, err := io.WriteString(w, "WEBVTT\n\n"); err != nil {
		return err
	}
	for _, c := range cues {
		if _, err := fmt.Fprintf(w, "%s --> %s\n%s\n\n", formatVTTTime(c.Start), formatVTTTime(c.End), c.Text); err != nil {
			return err
		}
	}
	return nil
}

func formatVTTTime(d time.Duration) string {
	h := d / time.Hour
	d -= h * time.Hour
	m := d / time.Minute
	d -= m * time.Minute
	s := d / time.Second
	d -= s * time.Second
	ms := d / time.Millisecond
	return fmt.Sprintf("%02d:%02d:%02d.%03d", h, m, s, ms)
}

func writeSRT(w io.Writer, cues []Cue) error {
	for i, c := range cues {
		if _, err := fmt.Fprintf(w, "%d\n%s --> %s\n%s\n\n", i+1, formatSRTTime(c.Start), formatSRTTime(c.End), c.Text); err != nil {
			return err
		}
	}
	return nil
}

func formatSRTTime(d time.Duration) string {
	return strings.Replace(formatVTTTime(d), ".", ",", 1)
}

func writeASS(w io.Writer, cues []Cue) error {
	header := "[Script Info]\nScriptType: v4.00+\n\n[V4+ Styles]\n" +
		"Format: Name, Fontname, Fontsize, PrimaryColour, Bold, Italic\n" +
		"Style: Default,Arial,20,&H00FFFFFF,0,0\n\n[Events]\n" +
		"Format: Layer, Start, End, Style, Name, MarginL, MarginR, MarginV, Effect, Text\n"
	if _, err := io.WriteString(w, header); err != nil {
		return err
	}
	for _, c := range cues {
		text := strings.ReplaceAll(c.Text, "\n", `\N`)
		if _, err := fmt.Fprintf(w, "Dialogue: 0,%s,%s,Default,,0,0,0,,%s\n", formatASSTime(c.Start), formatASSTime(c.End), text); err != nil {
			return err
		}
	}
	return nil
}

func formatASSTime(d time.Duration) string {
	h := d / time.Hour
	d -= h * time.Hour
	m := d / time.Minute
	d -= m * time.Minute
	s := d / time.Second
	d -= s * time.Second
	cs := d / (10 * time.Millisecond)
	return fmt.Sprintf("%d:%02d:%02d.%02d", h, m, s, cs)
}

// extractViaFFmpeg spawns FFmpeg to pull an image-based subtitle stream out
// of the source media and convert it to outputFmt, piping the result back.
// Image-based subtitles (PGS, VobSub) cannot be parsed in-process; FFmpeg's
// subtitle filter graph does the rasterized-to-text-track work internally
// for vtt/srt targets, or passes through for unsupported combinations.
func extractViaFFmpeg(ffmpegPath, mediaPath string, streamIndex int, outputFmt Format, w io.Writer) error {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	args := []string{
		"-hide_banner", "-v", "error",
		"-i", mediaPath,
		"-map", fmt.Sprintf("0:s:%d", streamIndex),
		"-f", ffmpegMuxerFor(outputFmt),
		"pipe:1",
	}
	cmd := exec.Command(ffmpegPath, args...)
	cmd.Stdout = w
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("subtitle: ffmpeg stderr pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("subtitle: ffmpeg start: %w", err)
	}
	errBytes, _ := io.ReadAll(stderr)
	if err := cmd.Wait(); err != nil {
		return fmt.Errorf("subtitle: ffmpeg extraction failed: %w: %s", err, string(errBytes))
	}
	return nil
}

func ffmpegMuxerFor(f Format) string {
	switch f {
	case FormatVTT:
		return "webvtt"
	case FormatSRT:
		return "srt"
	case FormatASS:
		return "ass"
	default:
		return "webvtt"
	}
}
