// Package scan implements the library ingestion pipeline (§4.4): discovery
// of files on disk, resolution into candidate media items, FFprobe analysis,
// metadata-agent fan-out, image selection, and artifact generation, wired
// together behind a resumable, checkpointing pipeline.
package scan

import (
	"runtime"
	"time"
)

// Config holds the worker-pool sizing and timing knobs for one pipeline run,
// derived from the concurrency-defaults table (§4.4) as a function of the
// logical CPU count.
type Config struct {
	DiscoveryProducersPerLocation int
	ResolverWorkers               int
	FileAnalyzerWorkers           int
	AgentWorkers                  int
	ImageWorkers                  int

	CheckpointEveryNDirs int
	CancelGraceWindow    time.Duration
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// DefaultConfig computes worker counts from the logical CPU count per the
// spec's concurrency-defaults table.
func DefaultConfig() Config {
	p := runtime.NumCPU()
	return Config{
		DiscoveryProducersPerLocation: 2,
		ResolverWorkers:               max(2, (p*3)/4),
		FileAnalyzerWorkers:           clamp(p/2, 2, 4),
		AgentWorkers:                  3,
		ImageWorkers:                  max(1, p/2),
		CheckpointEveryNDirs:          50,
		CancelGraceWindow:             5 * time.Second,
	}
}
