package transcode

import (
	"container/list"
	"os"
	"path/filepath"
	"testing"
)

func TestGetCurrentTranscodingIndexReturnsHighestSegment(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{
		"chunk-stream0-0001.m4s",
		"chunk-stream0-0007.m4s",
		"chunk-stream0-0003.m4s",
		"manifest.mpd",
	} {
		if err := os.WriteFile(filepath.Join(dir, name), nil, 0o644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}

	if got := GetCurrentTranscodingIndex(dir, "chunk-stream0-"); got != 7 {
		t.Fatalf("expected highest index 7, got %d", got)
	}
}

func TestGetCurrentTranscodingIndexNoSegmentsReturnsMinusOne(t *testing.T) {
	dir := t.TempDir()
	if got := GetCurrentTranscodingIndex(dir, "chunk-stream0-"); got != -1 {
		t.Fatalf("expected -1 for empty dir, got %d", got)
	}
}

func TestGetCurrentTranscodingIndexMissingDirReturnsMinusOne(t *testing.T) {
	if got := GetCurrentTranscodingIndex("/nonexistent/does/not/exist", "chunk-"); got != -1 {
		t.Fatalf("expected -1 for missing dir, got %d", got)
	}
}

func newTestManager(maxCache int) *Manager {
	return &Manager{
		cache:    make(map[string]*cacheEntry),
		lru:      list.New(),
		maxCache: maxCache,
	}
}

// evictLocked drops the least-recently-used entries once the cache exceeds
// maxCache, mirroring the process-aware cache's LRU eviction (§4.9).
func TestEvictLockedDropsLeastRecentlyUsed(t *testing.T) {
	m := newTestManager(2)
	for _, path := range []string{"/a", "/b", "/c"} {
		m.mu.Lock()
		e := &cacheEntry{outputPath: path}
		e.elem = m.lru.PushFront(e)
		m.cache[path] = e
		m.evictLocked()
		m.mu.Unlock()
	}

	snapshot := m.cacheSnapshot()
	if len(snapshot) != 2 {
		t.Fatalf("expected cache capped at 2 entries, got %v", snapshot)
	}
	for _, path := range snapshot {
		if path == "/a" {
			t.Fatalf("expected the oldest entry /a to be evicted, got %v", snapshot)
		}
	}
}
