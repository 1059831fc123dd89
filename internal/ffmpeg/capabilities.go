package ffmpeg

import (
	"bufio"
	"fmt"
	"os/exec"
	"regexp"
	"strings"
	"sync"
)

// AccelKind identifies a hardware acceleration backend.
type AccelKind string

const (
	AccelNone          AccelKind = "none"
	AccelNVENC         AccelKind = "nvenc"
	AccelQSV           AccelKind = "qsv"
	AccelVAAPI         AccelKind = "vaapi"
	AccelVideoToolbox  AccelKind = "videotoolbox"
	AccelAMF           AccelKind = "amf"
)

// accelPriority is consulted in order; the first kind whose decoder/encoder
// pair for the reference codec (h264) is present wins.
var accelPriority = []struct {
	kind    AccelKind
	decoder string
	encoder string
}{
	{AccelNVENC, "h264_cuvid", "h264_nvenc"},
	{AccelQSV, "h264_qsv", "h264_qsv"},
	{AccelVAAPI, "h264_vaapi", "h264_vaapi"},
	{AccelVideoToolbox, "h264_videotoolbox", "h264_videotoolbox"},
	{AccelAMF, "h264_amf", "h264_amf"},
}

// Capabilities is a one-shot, immutable snapshot of what an installed FFmpeg
// binary can do. All lookups after Probe are O(1) set membership checks.
type Capabilities struct {
	Version          string
	SupportedEncoders map[string]bool
	SupportedDecoders map[string]bool
	SupportedFilters  map[string]bool
	SupportedHWAccels map[string]bool
	RecommendedAccel  AccelKind
}

func (c *Capabilities) HasEncoder(name string) bool { return c.SupportedEncoders[name] }
func (c *Capabilities) HasDecoder(name string) bool { return c.SupportedDecoders[name] }
func (c *Capabilities) HasFilter(name string) bool  { return c.SupportedFilters[name] }
func (c *Capabilities) HasHWAccel(name string) bool { return c.SupportedHWAccels[name] }

var (
	probeMu     sync.Mutex
	probeCache  *Capabilities
	probeCached bool
)

// Probe synchronously interrogates the FFmpeg binary at ffmpegPath and
// returns a cached Capabilities snapshot. Call once at process start; the
// result is reused for the lifetime of the process. A missing or
// unexecutable binary is a fatal configuration error — callers should treat
// it as such and fail fast rather than limp along with an empty snapshot.
func Probe(ffmpegPath string) (*Capabilities, error) {
	probeMu.Lock()
	defer probeMu.Unlock()
	if probeCached {
		return probeCache, nil
	}

	version, err := probeVersion(ffmpegPath)
	if err != nil {
		return nil, fmt.Errorf("ffmpeg: probe version: %w", err)
	}
	encoders, err := probeCodecSet(ffmpegPath, "-encoders")
	if err != nil {
		return nil, fmt.Errorf("ffmpeg: probe encoders: %w", err)
	}
	decoders, err := probeCodecSet(ffmpegPath, "-decoders")
	if err != nil {
		return nil, fmt.Errorf("ffmpeg: probe decoders: %w", err)
	}
	filters, err := probeFilters(ffmpegPath)
	if err != nil {
		return nil, fmt.Errorf("ffmpeg: probe filters: %w", err)
	}
	hwaccels, err := probeHWAccels(ffmpegPath)
	if err != nil {
		return nil, fmt.Errorf("ffmpeg: probe hwaccels: %w", err)
	}

	c := &Capabilities{
		Version:           version,
		SupportedEncoders:  encoders,
		SupportedDecoders:  decoders,
		SupportedFilters:   filters,
		SupportedHWAccels:  hwaccels,
		RecommendedAccel:   AccelNone,
	}
	for _, candidate := range accelPriority {
		if !decoders[candidate.decoder] || !encoders[candidate.encoder] {
			continue
		}
		c.RecommendedAccel = candidate.kind
		break
	}

	probeCache = c
	probeCached = true
	return c, nil
}

var versionRe = regexp.MustCompile(`ffmpeg version (\S+)`)

func probeVersion(ffmpegPath string) (string, error) {
	out, err := exec.Command(ffmpegPath, "-version").Output()
	if err != nil {
		return "", err
	}
	if m := versionRe.FindSubmatch(out); m != nil {
		return string(m[1]), nil
	}
	return "unknown", nil
}

// codecLineRe matches ffmpeg -encoders/-decoders rows: a six-character
// capability flag column then the codec name, e.g. " V..... libx264  libx264 H.264...".
var codecLineRe = regexp.MustCompile(`^\s*[A-Z.]{6}\s+(\S+)\s+`)

func probeCodecSet(ffmpegPath, flag string) (map[string]bool, error) {
	out, err := exec.Command(ffmpegPath, "-hide_banner", flag).Output()
	if err != nil {
		return nil, err
	}
	set := map[string]bool{}
	scanner := bufio.NewScanner(strings.NewReader(string(out)))
	for scanner.Scan() {
		if m := codecLineRe.FindStringSubmatch(scanner.Text()); m != nil {
			set[m[1]] = true
		}
	}
	return set, nil
}

func probeFilters(ffmpegPath string) (map[string]bool, error) {
	out, err := exec.Command(ffmpegPath, "-hide_banner", "-filters").Output()
	if err != nil {
		return nil, err
	}
	set := map[string]bool{}
	scanner := bufio.NewScanner(strings.NewReader(string(out)))
	re := regexp.MustCompile(`^\s*[T.][S.][C.]\s+(\S+)\s+`)
	for scanner.Scan() {
		if m := re.FindStringSubmatch(scanner.Text()); m != nil {
			set[m[1]] = true
		}
	}
	return set, nil
}

func probeHWAccels(ffmpegPath string) (map[string]bool, error) {
	out, err := exec.Command(ffmpegPath, "-hide_banner", "-hwaccels").Output()
	if err != nil {
		return nil, err
	}
	set := map[string]bool{}
	scanner := bufio.NewScanner(strings.NewReader(string(out)))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "Hardware") {
			continue
		}
		set[line] = true
	}
	return set, nil
}

// resetForTests clears the probe cache; used only by tests that need a fresh
// Probe call against a fake ffmpeg binary.
func resetForTests() {
	probeMu.Lock()
	defer probeMu.Unlock()
	probeCached = false
	probeCache = nil
}
