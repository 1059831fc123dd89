package ffmpeg

import (
	"fmt"
	"regexp"
	"strings"
)

// VideoFilterContext describes the source/target shape and hardware path a
// candidate filter graph must satisfy.
type VideoFilterContext struct {
	SourceCodec      string
	TargetCodec      string
	SourceWidth      int
	SourceHeight     int
	TargetWidth      int
	TargetHeight     int
	HDR              bool
	ToneMapRequested bool
	Rotation         int
	Interlaced       bool
	SubtitleOverlay  bool
	DecoderIsHW      bool
	EncoderIsHW      bool
	Accel            AccelKind
	Capabilities     *Capabilities
}

// ValidationResult is the outcome of validating a filter chain: either it's
// usable as-is, or it isn't and RequiresSoftwareFallback/Errors explain why.
type ValidationResult struct {
	Valid                    bool
	Errors                   []string
	RequiresSoftwareFallback bool
}

func (r *ValidationResult) fail(requiresFallback bool, format string, args ...any) {
	r.Valid = false
	r.Errors = append(r.Errors, fmt.Sprintf(format, args...))
	if requiresFallback {
		r.RequiresSoftwareFallback = true
	}
}

var filterNameRe = regexp.MustCompile(`^([a-zA-Z0-9_]+)`)

// accelFilterPrefix maps an accel kind to the tag its filters carry in their
// names (matched by hasAccelTag as a suffix, a prefix or the whole name),
// used to detect cross-vendor mixing.
var accelFilterPrefix = map[AccelKind]string{
	AccelNVENC:        "cuda",
	AccelQSV:          "qsv",
	AccelVAAPI:        "vaapi",
	AccelVideoToolbox: "videotoolbox",
	AccelAMF:          "amf",
}

// ValidateFilterChain checks a candidate FFmpeg video filter string (the
// comma-separated -vf/-filter:v argument) against the rules in §4.2:
// hwdownload/hwupload placement, single-vendor hardware graphs, filter
// availability, and conditional tone-mapping. Validation is advisory: a
// failing result never aborts a caller, it only informs the stream planner
// whether to fall back to software filtering.
func ValidateFilterChain(chain string, ctx VideoFilterContext) ValidationResult {
	result := ValidationResult{Valid: true}

	stages := splitFilterChain(chain)

	if ctx.DecoderIsHW && len(stages) > 0 && !operatesOnHWFrames(stages[0]) {
		if !strings.HasPrefix(stages[0], "hwdownload") {
			result.fail(true, "hardware decoder produces hw frames but first filter %q expects system memory; hwdownload must precede it", stages[0])
		}
	}

	if ctx.EncoderIsHW && len(stages) > 0 {
		last := stages[len(stages)-1]
		if !strings.HasPrefix(last, "hwupload") && !operatesOnHWFrames(last) {
			result.fail(true, "hardware encoder requires hw frames but last filter %q emits system memory; hwupload (%s) must precede the encoder", last, ctx.Accel)
		}
	}

	if err := checkSingleHWVendor(stages); err != "" {
		result.fail(true, "%s", err)
	}

	if ctx.Capabilities != nil {
		for _, stage := range stages {
			name := filterNameRe.FindString(stage)
			if name == "" {
				continue
			}
			if !ctx.Capabilities.HasFilter(name) {
				result.fail(true, "filter %q is not supported by this FFmpeg build", name)
			}
		}
	}

	needsToneMap := ctx.HDR && !targetIsHDR(ctx) && ctx.ToneMapRequested
	hasToneMap := chainContainsAny(stages, "tonemap", "zscale")
	if needsToneMap && !hasToneMap {
		result.fail(false, "HDR source with SDR target and tone-mapping enabled requires a tonemap filter, none present")
	}
	if !needsToneMap && hasToneMap && ctx.HDR && targetIsHDR(ctx) {
		result.fail(false, "tonemap filter present but target is HDR; tone-mapping should not run")
	}

	return result
}

func targetIsHDR(ctx VideoFilterContext) bool {
	// The context only carries a single HDR flag describing the source; a
	// non-tone-mapped HDR target is assumed whenever tone-mapping wasn't
	// requested by the caller.
	return ctx.HDR && !ctx.ToneMapRequested
}

func splitFilterChain(chain string) []string {
	chain = strings.TrimSpace(chain)
	if chain == "" {
		return nil
	}
	parts := strings.Split(chain, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func operatesOnHWFrames(stage string) bool {
	name := filterNameRe.FindString(stage)
	switch name {
	case "hwupload", "hwmap":
		return true
	}
	for _, prefix := range accelFilterPrefix {
		if hasAccelTag(name, prefix) {
			return true
		}
	}
	return false
}

// hasAccelTag reports whether a filter name carries the given accel's tag,
// either as a suffix (the common "scale_vaapi", "hwupload_cuda" form) or a
// prefix (a few filters like "vaapi_scale" name it the other way round).
func hasAccelTag(name, tag string) bool {
	return strings.HasSuffix(name, "_"+tag) || strings.HasPrefix(name, tag+"_") || name == tag
}

func checkSingleHWVendor(stages []string) string {
	seen := map[AccelKind]bool{}
	for _, stage := range stages {
		name := filterNameRe.FindString(stage)
		for accel, prefix := range accelFilterPrefix {
			if hasAccelTag(name, prefix) {
				seen[accel] = true
			}
		}
	}
	if len(seen) > 1 {
		var kinds []string
		for k := range seen {
			kinds = append(kinds, string(k))
		}
		return fmt.Sprintf("filter chain mixes hardware vendors: %s; a single device type must be used throughout", strings.Join(kinds, ", "))
	}
	return ""
}

func chainContainsAny(stages []string, names ...string) bool {
	for _, stage := range stages {
		name := filterNameRe.FindString(stage)
		for _, n := range names {
			if name == n {
				return true
			}
		}
	}
	return false
}
