package ffmpeg

import (
	"encoding/json"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
)

// FFprobe wraps the ffprobe binary. One instance is shared process-wide; the
// binary path comes from configuration at startup.
type FFprobe struct {
	path string
}

func NewFFprobe(path string) *FFprobe {
	return &FFprobe{path: path}
}

// ProbeResult is the analyzed shape of one media file: container-level
// totals plus one entry per stream, already converted to the units the rest
// of the system uses (milliseconds, bits per second).
type ProbeResult struct {
	DurationMs int64
	SizeBytes  int64
	BitrateBps int64
	Video      *VideoStreamInfo
	Audio      []AudioStreamInfo
	Subtitles  []SubtitleStreamInfo
	Chapters   []ChapterInfo
}

// VideoStreamInfo describes the primary video stream.
type VideoStreamInfo struct {
	StreamIndex int
	Codec       string
	Width       int
	Height      int
	Rotation    int
	PixelFormat string
	HDRFormat   string // "Dolby Vision" | "HDR10" | "HLG" | "PQ" | ""
}

// AudioStreamInfo describes one audio stream.
type AudioStreamInfo struct {
	StreamIndex   int
	Codec         string
	Channels      int
	ChannelLayout string
	SampleRate    int
	BitrateBps    int64
	Language      string
	Title         string
	IsDefault     bool
	IsCommentary  bool
}

// SubtitleStreamInfo describes one embedded subtitle stream.
type SubtitleStreamInfo struct {
	StreamIndex int
	Codec       string
	Language    string
	Title       string
	IsDefault   bool
	IsForced    bool
	IsSDH       bool
}

// ChapterInfo is one container chapter marker.
type ChapterInfo struct {
	Title   string
	StartMs int64
	EndMs   int64
}

// Raw ffprobe JSON wire shapes; converted to the typed result immediately
// after decode and never exposed.
type probeOutput struct {
	Format   probeFormat    `json:"format"`
	Streams  []probeStream  `json:"streams"`
	Chapters []probeChapter `json:"chapters"`
}

type probeFormat struct {
	Duration string `json:"duration"`
	Size     string `json:"size"`
	BitRate  string `json:"bit_rate"`
}

type probeStream struct {
	Index          int               `json:"index"`
	CodecType      string            `json:"codec_type"`
	CodecName      string            `json:"codec_name"`
	Width          int               `json:"width"`
	Height         int               `json:"height"`
	Channels       int               `json:"channels"`
	ChannelLayout  string            `json:"channel_layout"`
	SampleRate     string            `json:"sample_rate"`
	BitRate        string            `json:"bit_rate"`
	ColorTransfer  string            `json:"color_transfer"`
	ColorPrimaries string            `json:"color_primaries"`
	PixFmt         string            `json:"pix_fmt"`
	SideData       []probeSideData   `json:"side_data_list"`
	Tags           map[string]string `json:"tags"`
	Disposition    probeDisposition  `json:"disposition"`
}

type probeSideData struct {
	Type     string `json:"side_data_type"`
	Rotation int    `json:"rotation"`
}

type probeDisposition struct {
	Default         int `json:"default"`
	Forced          int `json:"forced"`
	Comment         int `json:"comment"`
	HearingImpaired int `json:"hearing_impaired"`
}

type probeChapter struct {
	StartTime string            `json:"start_time"`
	EndTime   string            `json:"end_time"`
	Tags      map[string]string `json:"tags"`
}

// Probe runs ffprobe against path and returns the typed result.
func (f *FFprobe) Probe(path string) (*ProbeResult, error) {
	cmd := exec.Command(f.path, "-v", "quiet", "-print_format", "json",
		"-show_format", "-show_streams", "-show_chapters", path)
	output, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("ffprobe %s: %w", path, err)
	}
	var raw probeOutput
	if err := json.Unmarshal(output, &raw); err != nil {
		return nil, fmt.Errorf("ffprobe %s: parse output: %w", path, err)
	}
	return convertProbe(&raw), nil
}

func convertProbe(raw *probeOutput) *ProbeResult {
	r := &ProbeResult{
		DurationMs: secondsToMs(raw.Format.Duration),
		SizeBytes:  parseInt64(raw.Format.Size),
		BitrateBps: parseInt64(raw.Format.BitRate),
	}
	for _, s := range raw.Streams {
		switch s.CodecType {
		case "video":
			if r.Video == nil {
				r.Video = convertVideo(s)
			}
		case "audio":
			r.Audio = append(r.Audio, convertAudio(s))
		case "subtitle":
			r.Subtitles = append(r.Subtitles, convertSubtitle(s))
		}
	}
	for _, c := range raw.Chapters {
		r.Chapters = append(r.Chapters, ChapterInfo{
			Title:   c.Tags["title"],
			StartMs: secondsToMs(c.StartTime),
			EndMs:   secondsToMs(c.EndTime),
		})
	}
	return r
}

func convertVideo(s probeStream) *VideoStreamInfo {
	v := &VideoStreamInfo{
		StreamIndex: s.Index,
		Codec:       s.CodecName,
		Width:       s.Width,
		Height:      s.Height,
		PixelFormat: s.PixFmt,
		HDRFormat:   hdrFormatOf(s),
	}
	for _, sd := range s.SideData {
		if strings.Contains(strings.ToLower(sd.Type), "display matrix") {
			v.Rotation = normalizeRotation(sd.Rotation)
		}
	}
	if v.Rotation == 0 {
		if rot, ok := s.Tags["rotate"]; ok {
			if n, err := strconv.Atoi(rot); err == nil {
				v.Rotation = normalizeRotation(n)
			}
		}
	}
	return v
}

// hdrFormatOf classifies the stream's dynamic range. Dolby Vision side data
// wins over transfer-characteristic detection; PQ without BT.2020 primaries
// is reported as bare "PQ" rather than HDR10.
func hdrFormatOf(s probeStream) string {
	for _, sd := range s.SideData {
		if sd.Type == "DOVI configuration record" || sd.Type == "Dolby Vision RPU Data" {
			return "Dolby Vision"
		}
	}
	switch s.ColorTransfer {
	case "smpte2084":
		if s.ColorPrimaries == "bt2020" {
			return "HDR10"
		}
		return "PQ"
	case "arib-std-b67":
		return "HLG"
	}
	return ""
}

func convertAudio(s probeStream) AudioStreamInfo {
	a := AudioStreamInfo{
		StreamIndex:   s.Index,
		Codec:         s.CodecName,
		Channels:      s.Channels,
		ChannelLayout: s.ChannelLayout,
		SampleRate:    int(parseInt64(s.SampleRate)),
		BitrateBps:    parseInt64(s.BitRate),
		Language:      s.Tags["language"],
		Title:         s.Tags["title"],
		IsDefault:     s.Disposition.Default == 1,
		IsCommentary:  s.Disposition.Comment == 1,
	}
	if !a.IsCommentary && strings.Contains(strings.ToLower(a.Title), "commentary") {
		a.IsCommentary = true
	}
	return a
}

func convertSubtitle(s probeStream) SubtitleStreamInfo {
	sub := SubtitleStreamInfo{
		StreamIndex: s.Index,
		Codec:       s.CodecName,
		Language:    s.Tags["language"],
		Title:       s.Tags["title"],
		IsDefault:   s.Disposition.Default == 1,
		IsForced:    s.Disposition.Forced == 1,
		IsSDH:       s.Disposition.HearingImpaired == 1,
	}
	lower := strings.ToLower(sub.Title)
	if !sub.IsSDH && (strings.Contains(lower, "sdh") || strings.Contains(lower, "hearing impaired")) {
		sub.IsSDH = true
	}
	if !sub.IsForced && strings.Contains(lower, "forced") {
		sub.IsForced = true
	}
	return sub
}

func secondsToMs(s string) int64 {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return int64(f * 1000)
}

func parseInt64(s string) int64 {
	n, _ := strconv.ParseInt(s, 10, 64)
	return n
}

// normalizeRotation maps ffprobe's display-matrix rotation (which may be
// negative or a multiple past 360) into [0, 360).
func normalizeRotation(deg int) int {
	deg %= 360
	if deg < 0 {
		deg += 360
	}
	return deg
}
