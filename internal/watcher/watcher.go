// Package watcher implements the hybrid watcher + micro-scan dispatch
// (§4.5): a native fsnotify watch down to a configurable depth, polling
// beyond it, coalescing raw events into CoalescedChangeEvents, and handing
// them to a restricted micro-scan.
package watcher

import (
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultWatchDepth is how many directory levels under a SectionLocation
// root get a native fsnotify watch before the poll-beyond strategy takes
// over (§4.5).
const DefaultWatchDepth = 3

// DefaultPollInterval is how often poll-beyond-depth subtrees are rescanned.
const DefaultPollInterval = 60 * time.Second

// coalesceWindow drops a Create immediately followed by a Delete for the
// same path within this window (transient temp-file churn, §4.5).
const coalesceWindow = 500 * time.Millisecond

// debounceWindow is how long the coalescer waits after the last event in a
// group before dispatching a micro-scan (§4.5).
const debounceWindow = 2 * time.Second

// ChangeKind enumerates the coalesced event kinds (§4.5).
type ChangeKind string

const (
	ChangeAdded    ChangeKind = "added"
	ChangeModified ChangeKind = "modified"
	ChangeRemoved  ChangeKind = "removed"
	ChangeRenamed  ChangeKind = "renamed"
)

// CoalescedChangeEvent is the unit of work handed to the micro-scan
// dispatcher once a group of raw filesystem events has settled (§4.5).
type CoalescedChangeEvent struct {
	LibrarySectionID int64
	Paths            []string
	Kind             ChangeKind
}

// MicroScanner runs a restricted subset of the scan pipeline
// (discovery+resolver+refresh) over a fixed set of paths. The watcher
// depends only on this narrow interface so it never imports internal/scan
// directly; internal/jobs wires a concrete implementation at startup.
type MicroScanner interface {
	ScanPaths(ev CoalescedChangeEvent) error
}

// Location is the subset of a SectionLocation the watcher needs.
type Location struct {
	LibrarySectionID int64
	RootPath         string
}

type rawEvent struct {
	path     string
	isCreate bool
	isRemove bool
	isRename bool
	at       time.Time
}

type group struct {
	sectionID int64
	paths     map[string]bool
	kind      ChangeKind
	timer     *time.Timer
	lastOp    map[string]rawEvent // path -> most recent raw op, for the 500ms create+delete heuristic
}

// Watcher monitors library locations for filesystem changes and dispatches
// coalesced change events to a MicroScanner.
type Watcher struct {
	scanner MicroScanner
	fw      *fsnotify.Watcher
	depth   int
	poll    time.Duration

	mu          sync.Mutex
	watched     map[string]int64 // dir path -> library section id
	roots       []Location
	groups      map[string]*group // keyed by nearest tracked dir
	pollStop    chan struct{}
	requiresFull map[int64]bool

	stop chan struct{}
	done chan struct{}
}

// New creates a Watcher with the given locations and depth/poll settings
// (zero values fall back to the §4.5 defaults).
func New(scanner MicroScanner, locations []Location, depth int, pollInterval time.Duration) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if depth <= 0 {
		depth = DefaultWatchDepth
	}
	if pollInterval <= 0 {
		pollInterval = DefaultPollInterval
	}
	return &Watcher{
		scanner:      scanner,
		fw:           fw,
		depth:        depth,
		poll:         pollInterval,
		watched:      make(map[string]int64),
		roots:        locations,
		groups:       make(map[string]*group),
		requiresFull: make(map[int64]bool),
		stop:         make(chan struct{}),
		done:         make(chan struct{}),
	}, nil
}

// Start begins watching every configured location and launches the event
// and poll loops.
func (w *Watcher) Start() {
	for _, loc := range w.roots {
		if err := w.addToDepth(loc.RootPath, loc.LibrarySectionID, w.depth); err != nil {
			log.Printf("[watcher] add %s: %v", loc.RootPath, err)
			w.markRequiresFullRescan(loc.LibrarySectionID)
		}
	}
	go w.eventLoop()
	go w.pollLoop()
	log.Printf("[watcher] watching %d directories across %d locations", len(w.watched), len(w.roots))
}

// Stop halts the watcher and its loops.
func (w *Watcher) Stop() {
	close(w.stop)
	w.fw.Close()
	<-w.done
}

// addToDepth walks root up to depth levels, registering a native watch on
// every directory encountered; deeper subtrees are left to the poll loop.
func (w *Watcher) addToDepth(root string, sectionID int64, depth int) error {
	rootDepth := strings.Count(filepath.Clean(root), string(filepath.Separator))
	return filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return nil
		}
		if !info.IsDir() {
			return nil
		}
		level := strings.Count(filepath.Clean(path), string(filepath.Separator)) - rootDepth
		if level > depth {
			return filepath.SkipDir
		}
		if err := w.fw.Add(path); err != nil {
			return nil
		}
		w.mu.Lock()
		w.watched[path] = sectionID
		w.mu.Unlock()
		return nil
	})
}

// pollLoop periodically re-walks every root past the native-watch depth. On
// each poll, every media file found beyond the watched depth is sent in one
// ChangeModified CoalescedChangeEvent per root; no mtimes are compared, so
// unchanged files are reported again on every poll.
func (w *Watcher) pollLoop() {
	ticker := time.NewTicker(w.poll)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			for _, loc := range w.roots {
				w.pollBeyondDepth(loc)
			}
		case <-w.stop:
			return
		}
	}
}

func (w *Watcher) pollBeyondDepth(loc Location) {
	rootDepth := strings.Count(filepath.Clean(loc.RootPath), string(filepath.Separator))
	var changed []string
	_ = filepath.Walk(loc.RootPath, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return nil
		}
		level := strings.Count(filepath.Clean(path), string(filepath.Separator)) - rootDepth
		if level <= w.depth {
			return nil
		}
		if info.IsDir() {
			return nil
		}
		if isMediaExtension(strings.ToLower(filepath.Ext(path))) {
			changed = append(changed, path)
		}
		return nil
	})
	if len(changed) == 0 {
		return
	}
	if err := w.scanner.ScanPaths(CoalescedChangeEvent{LibrarySectionID: loc.LibrarySectionID, Paths: changed, Kind: ChangeModified}); err != nil {
		log.Printf("[watcher] poll micro-scan for %s: %v", loc.RootPath, err)
		w.markRequiresFullRescan(loc.LibrarySectionID)
	}
}

func (w *Watcher) eventLoop() {
	defer close(w.done)
	for {
		select {
		case event, ok := <-w.fw.Events:
			if !ok {
				return
			}
			w.handleEvent(event)
		case err, ok := <-w.fw.Errors:
			if !ok {
				return
			}
			log.Printf("[watcher] fsnotify error: %v", err)
			w.markAllRequiresFullRescan()
		case <-w.stop:
			return
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	base := filepath.Base(event.Name)
	if strings.HasPrefix(base, ".") || strings.HasSuffix(base, ".tmp") || strings.HasSuffix(base, ".part") {
		return
	}

	sectionID := w.resolveSection(event.Name)
	if sectionID == 0 {
		return
	}

	if event.Has(fsnotify.Create) {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			w.mu.Lock()
			if err := w.fw.Add(event.Name); err == nil {
				w.watched[event.Name] = sectionID
			}
			w.mu.Unlock()
			return
		}
	}

	if !isMediaExtension(strings.ToLower(filepath.Ext(event.Name))) {
		return
	}

	kind := ChangeModified
	switch {
	case event.Has(fsnotify.Create):
		kind = ChangeAdded
	case event.Has(fsnotify.Remove):
		kind = ChangeRemoved
	case event.Has(fsnotify.Rename):
		kind = ChangeRenamed
	case event.Has(fsnotify.Write):
		kind = ChangeModified
	default:
		return
	}

	w.enqueue(sectionID, event.Name, kind)
}

// enqueue groups raw events by their nearest tracked directory, applying the
// create+delete transient-drop heuristic before starting/refreshing the
// group's debounce timer (§4.5).
func (w *Watcher) enqueue(sectionID int64, path string, kind ChangeKind) {
	dir := w.nearestTracked(path)
	now := time.Now()

	w.mu.Lock()
	defer w.mu.Unlock()

	g, ok := w.groups[dir]
	if !ok {
		g = &group{sectionID: sectionID, paths: make(map[string]bool), kind: kind, lastOp: make(map[string]rawEvent)}
		w.groups[dir] = g
	}

	if prev, ok := g.lastOp[path]; ok {
		isCreateThenDelete := prev.isCreate && kind == ChangeRemoved
		isDeleteThenCreate := prev.isRemove && kind == ChangeAdded
		if (isCreateThenDelete || isDeleteThenCreate) && now.Sub(prev.at) < coalesceWindow {
			delete(g.lastOp, path)
			delete(g.paths, path)
			if len(g.paths) == 0 {
				if g.timer != nil {
					g.timer.Stop()
				}
				delete(w.groups, dir)
			}
			return
		}
	}

	g.lastOp[path] = rawEvent{path: path, isCreate: kind == ChangeAdded, isRemove: kind == ChangeRemoved, isRename: kind == ChangeRenamed, at: now}
	g.paths[path] = true
	g.kind = kind

	if g.timer != nil {
		g.timer.Stop()
	}
	g.timer = time.AfterFunc(debounceWindow, func() { w.flushGroup(dir) })
}

func (w *Watcher) flushGroup(dir string) {
	w.mu.Lock()
	g, ok := w.groups[dir]
	if !ok {
		w.mu.Unlock()
		return
	}
	delete(w.groups, dir)
	paths := make([]string, 0, len(g.paths))
	for p := range g.paths {
		paths = append(paths, p)
	}
	sectionID, kind := g.sectionID, g.kind
	w.mu.Unlock()

	if len(paths) == 0 {
		return
	}
	ev := CoalescedChangeEvent{LibrarySectionID: sectionID, Paths: paths, Kind: kind}
	if err := w.scanner.ScanPaths(ev); err != nil {
		log.Printf("[watcher] micro-scan dispatch: %v", err)
		w.markRequiresFullRescan(sectionID)
	}
}

func (w *Watcher) nearestTracked(path string) string {
	w.mu.Lock()
	defer w.mu.Unlock()
	dir := filepath.Dir(path)
	for dir != "/" && dir != "." {
		if _, ok := w.watched[dir]; ok {
			return dir
		}
		dir = filepath.Dir(dir)
	}
	return filepath.Dir(path)
}

func (w *Watcher) resolveSection(path string) int64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	dir := filepath.Dir(path)
	for dir != "/" && dir != "." {
		if id, ok := w.watched[dir]; ok {
			return id
		}
		dir = filepath.Dir(dir)
	}
	return 0
}

// markRequiresFullRescan flips the requires_full_rescan signal for a
// library; a manual or scheduled full scan clears it (§4.5).
func (w *Watcher) markRequiresFullRescan(sectionID int64) {
	w.mu.Lock()
	w.requiresFull[sectionID] = true
	w.mu.Unlock()
}

func (w *Watcher) markAllRequiresFullRescan() {
	w.mu.Lock()
	for _, loc := range w.roots {
		w.requiresFull[loc.LibrarySectionID] = true
	}
	w.mu.Unlock()
}

// RequiresFullRescan reports whether sectionID's watcher has hit an error
// condition that only a full scan can clear.
func (w *Watcher) RequiresFullRescan(sectionID int64) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.requiresFull[sectionID]
}

// ClearRequiresFullRescan is called once a full or scheduled scan completes
// successfully for sectionID.
func (w *Watcher) ClearRequiresFullRescan(sectionID int64) {
	w.mu.Lock()
	delete(w.requiresFull, sectionID)
	w.mu.Unlock()
}

func isMediaExtension(ext string) bool {
	media := map[string]bool{
		".mp4": true, ".mkv": true, ".avi": true, ".mov": true,
		".m4v": true, ".wmv": true, ".flv": true, ".webm": true,
		".ts": true, ".m2ts": true, ".mpg": true, ".mpeg": true,
		".mp3": true, ".flac": true, ".aac": true, ".ogg": true,
		".wav": true, ".m4a": true, ".m4b": true, ".opus": true,
		".jpg": true, ".jpeg": true, ".png": true, ".gif": true,
		".webp": true, ".bmp": true,
	}
	return media[ext]
}

// ClassifyExtra classifies a filename as an extra type from folder/file name
// conventions (§3 supplement: extras classification), e.g.
// ".../Trailers/foo.mp4" -> "trailer". Returns "" when filePath doesn't match
// any known extra convention, meaning it's a main feature, not an extra.
func ClassifyExtra(filePath string) string {
	lower := strings.ToLower(filePath)
	patterns := map[string]string{
		"trailer":           "trailer",
		"featurette":        "featurette",
		"behind the scenes": "behind-the-scenes",
		"behind_the_scenes": "behind-the-scenes",
		"behindthescenes":   "behind-the-scenes",
		"deleted scene":     "deleted-scene",
		"deleted_scene":     "deleted-scene",
		"deletedscene":      "deleted-scene",
		"interview":         "interview",
		"short":             "short",
		"sample":            "sample",
	}
	for pattern, extraType := range patterns {
		if strings.Contains(lower, pattern) {
			return extraType
		}
	}
	return ""
}
