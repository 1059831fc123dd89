package ffmpeg

import "testing"

func capsWith(filters ...string) *Capabilities {
	m := make(map[string]bool, len(filters))
	for _, f := range filters {
		m[f] = true
	}
	return &Capabilities{SupportedFilters: m}
}

func TestValidateFilterChainRequiresHwdownloadBeforeSoftwareFilter(t *testing.T) {
	result := ValidateFilterChain("scale=1280:720", VideoFilterContext{
		DecoderIsHW:  true,
		Capabilities: capsWith("scale"),
	})
	if result.Valid {
		t.Fatal("expected invalid result when hw decoder output hits a software filter without hwdownload")
	}
	if !result.RequiresSoftwareFallback {
		t.Fatal("expected RequiresSoftwareFallback to be set")
	}
}

func TestValidateFilterChainHwdownloadSatisfiesRule(t *testing.T) {
	result := ValidateFilterChain("hwdownload,scale=1280:720", VideoFilterContext{
		DecoderIsHW:  true,
		Capabilities: capsWith("hwdownload", "scale"),
	})
	if !result.Valid {
		t.Fatalf("expected valid result, got errors: %v", result.Errors)
	}
}

func TestValidateFilterChainRequiresHwuploadBeforeHWEncoder(t *testing.T) {
	result := ValidateFilterChain("scale=1280:720", VideoFilterContext{
		EncoderIsHW:  true,
		Accel:        AccelVAAPI,
		Capabilities: capsWith("scale"),
	})
	if result.Valid {
		t.Fatal("expected invalid result when hw encoder follows a filter emitting system memory without hwupload")
	}
}

func TestValidateFilterChainRejectsCrossVendorMix(t *testing.T) {
	result := ValidateFilterChain("scale_cuda=1280:720,scale_vaapi=640:360", VideoFilterContext{
		Capabilities: capsWith("scale_cuda", "scale_vaapi"),
	})
	if result.Valid {
		t.Fatal("expected invalid result for a chain mixing nvenc and vaapi filters")
	}
	found := false
	for _, e := range result.Errors {
		if contains(e, "mixes hardware vendors") {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected a cross-vendor mixing error, got: %v", result.Errors)
	}
}

func TestValidateFilterChainFlagsUnsupportedFilter(t *testing.T) {
	result := ValidateFilterChain("fancyfilter=1", VideoFilterContext{
		Capabilities: capsWith("scale"),
	})
	if result.Valid {
		t.Fatal("expected invalid result for a filter missing from SupportedFilters")
	}
	if !result.RequiresSoftwareFallback {
		t.Fatal("expected RequiresSoftwareFallback for an unsupported filter")
	}
}

func TestValidateFilterChainRequiresToneMapForHDRToSDR(t *testing.T) {
	result := ValidateFilterChain("scale=1280:720", VideoFilterContext{
		HDR:              true,
		ToneMapRequested: true,
		Capabilities:     capsWith("scale"),
	})
	if result.Valid {
		t.Fatal("expected invalid result: HDR source + SDR target + tone-map requested but no tonemap filter present")
	}
}

func TestValidateFilterChainToneMapPresentSatisfiesRule(t *testing.T) {
	result := ValidateFilterChain("tonemap=hable,scale=1280:720", VideoFilterContext{
		HDR:              true,
		ToneMapRequested: true,
		Capabilities:     capsWith("tonemap", "scale"),
	})
	if !result.Valid {
		t.Fatalf("expected valid result, got errors: %v", result.Errors)
	}
}

func TestValidateFilterChainNoHDRNoToneMapRequired(t *testing.T) {
	result := ValidateFilterChain("scale=1280:720", VideoFilterContext{
		Capabilities: capsWith("scale"),
	})
	if !result.Valid {
		t.Fatalf("expected valid result for a plain SDR chain, got errors: %v", result.Errors)
	}
}

func contains(s, substr string) bool {
	for i := 0; i+len(substr) <= len(s); i++ {
		if s[i:i+len(substr)] == substr {
			return true
		}
	}
	return false
}
