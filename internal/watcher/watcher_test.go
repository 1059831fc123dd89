package watcher

import (
	"errors"
	"sync"
	"testing"
)

type recordingScanner struct {
	mu     sync.Mutex
	events []CoalescedChangeEvent
}

func (r *recordingScanner) ScanPaths(ev CoalescedChangeEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return nil
}

func newTestWatcher(scanner MicroScanner) *Watcher {
	return &Watcher{
		scanner:      scanner,
		watched:      make(map[string]int64),
		groups:       make(map[string]*group),
		requiresFull: make(map[int64]bool),
	}
}

// §4.5 / §8 scenario 3: a Create immediately followed by a Delete within the
// coalesce window is dropped as transient churn, never reaching the group.
func TestEnqueueDropsTransientCreateThenDelete(t *testing.T) {
	w := newTestWatcher(&recordingScanner{})
	w.watched["/m/movies/new"] = 1

	w.enqueue(1, "/m/movies/new/tmpfile.mkv", ChangeAdded)
	w.enqueue(1, "/m/movies/new/tmpfile.mkv", ChangeRemoved)

	if len(w.groups) != 0 {
		t.Fatalf("expected the transient create+delete pair to clear the group, got %+v", w.groups)
	}
}

// A delete immediately followed by a re-create (the other heuristic
// direction) is dropped the same way.
func TestEnqueueDropsTransientDeleteThenCreate(t *testing.T) {
	w := newTestWatcher(&recordingScanner{})
	w.watched["/m/movies/new"] = 1

	w.enqueue(1, "/m/movies/new/renamed.mkv", ChangeRemoved)
	w.enqueue(1, "/m/movies/new/renamed.mkv", ChangeAdded)

	if len(w.groups) != 0 {
		t.Fatalf("expected the transient delete+create pair to clear the group, got %+v", w.groups)
	}
}

// Surviving events (no matching create/delete pair) remain queued and flush
// as one CoalescedChangeEvent per scenario 3: "one micro-scan; items for the
// 2 surviving files created".
func TestEnqueueThenFlushDispatchesSurvivingPaths(t *testing.T) {
	scanner := &recordingScanner{}
	w := newTestWatcher(scanner)
	w.watched["/m/movies/new"] = 1

	w.enqueue(1, "/m/movies/new/a.mkv", ChangeAdded)
	w.enqueue(1, "/m/movies/new/b.mkv", ChangeAdded)
	w.enqueue(1, "/m/movies/new/c.mkv", ChangeAdded)
	w.enqueue(1, "/m/movies/new/c.mkv", ChangeRemoved) // c is deleted again fast, should drop

	w.mu.Lock()
	if g, ok := w.groups["/m/movies/new"]; ok && g.timer != nil {
		g.timer.Stop()
	}
	w.mu.Unlock()
	w.flushGroup("/m/movies/new")

	scanner.mu.Lock()
	defer scanner.mu.Unlock()
	if len(scanner.events) != 1 {
		t.Fatalf("expected exactly one dispatched event, got %d", len(scanner.events))
	}
	ev := scanner.events[0]
	if len(ev.Paths) != 2 {
		t.Fatalf("expected 2 surviving paths, got %v", ev.Paths)
	}
}

func TestFlushGroupMarksRequiresFullRescanOnScanError(t *testing.T) {
	w := newTestWatcher(failingScanner{})
	w.watched["/m/movies"] = 5
	w.enqueue(5, "/m/movies/a.mkv", ChangeAdded)
	w.flushGroup("/m/movies")

	if !w.RequiresFullRescan(5) {
		t.Fatal("expected requires_full_rescan to be set after a micro-scan dispatch error")
	}
}

type failingScanner struct{}

func (failingScanner) ScanPaths(ev CoalescedChangeEvent) error { return errors.New("scan failed") }

func TestNearestTrackedWalksUpToClosestWatchedAncestor(t *testing.T) {
	w := newTestWatcher(&recordingScanner{})
	w.watched["/m/movies"] = 1

	got := w.nearestTracked("/m/movies/Inception (2010)/file.mkv")
	if got != "/m/movies" {
		t.Fatalf("expected nearest tracked dir /m/movies, got %q", got)
	}
}

func TestIsMediaExtensionRecognizesCommonContainers(t *testing.T) {
	for _, ext := range []string{".mkv", ".mp4", ".avi"} {
		if !isMediaExtension(ext) {
			t.Errorf("expected %q to be recognized as a media extension", ext)
		}
	}
	if isMediaExtension(".txt") {
		t.Error("did not expect .txt to be recognized as a media extension")
	}
}
