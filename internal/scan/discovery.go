package scan

import (
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// EventKind classifies a discovered change relative to the tracked
// Directory/MediaPart rows.
type EventKind string

const (
	EventSeen     EventKind = "seen"
	EventAdded    EventKind = "added"
	EventModified EventKind = "modified"
	EventMissing  EventKind = "missing"
)

// FileEvent is one file observed by discovery, with enough information for
// the resolver to decide whether it's new, unchanged, or updated.
type FileEvent struct {
	Path    string
	Name    string
	Size    int64
	ModTime int64 // unix seconds
	Kind    EventKind
}

// KnownFile is the subset of a tracked MediaPart's identity discovery needs
// to classify a walked file without depending on the repository package.
type KnownFile struct {
	Size    int64
	ModTime int64
}

// KnownLookup resolves a path to its last-known (size, mtime), when tracked.
type KnownLookup func(path string) (KnownFile, bool)

// videoExtensions mirrors the teacher's scanner extension sets, widened to
// cover every media type named in §3 (movies/shows/music/photos/books).
var videoExtensions = extSet(".mp4", ".mkv", ".avi", ".mov", ".m4v", ".wmv", ".flv", ".webm", ".ts", ".m2ts", ".mpg", ".mpeg")
var audioExtensions = extSet(".mp3", ".flac", ".aac", ".ogg", ".wav", ".m4a", ".alac", ".wma", ".opus", ".m4b")
var imageExtensions = extSet(".jpg", ".jpeg", ".png", ".gif", ".webp", ".bmp", ".tiff", ".tif")
var bookExtensions = extSet(".epub", ".pdf", ".mobi", ".cbz", ".cbr", ".azw3")

func extSet(exts ...string) map[string]bool {
	m := make(map[string]bool, len(exts))
	for _, e := range exts {
		m[e] = true
	}
	return m
}

// eligibleExtension reports whether ext is a media file this pipeline cares
// about, across every library section type.
func eligibleExtension(ext string) bool {
	ext = strings.ToLower(ext)
	return videoExtensions[ext] || audioExtensions[ext] || imageExtensions[ext] || bookExtensions[ext]
}

// Checkpoint describes a resume point for a killed scan. The pipeline does
// not use this type: it saves a models.ScanCheckpoint in a write of its own,
// not in the same transaction as the entity updates.
type Checkpoint struct {
	CursorDirectoryID int64
	ProcessedFiles    int
	Added             int
	Modified          int
	Removed           int
	Errors            []string
}

// Walk performs a breadth-first-ish traversal of root (actually depth-first
// via filepath.WalkDir, which is what the teacher uses; ordering doesn't
// matter to the resolver), honoring `.nomedia` markers and hidden-file
// conventions, with symlink-cycle protection matching the teacher's
// `visitedDirs` idiom. Discovered files are sent to out; out is closed when
// the walk finishes. onDir is invoked as each directory is entered, before
// its contents are walked, for checkpoint bookkeeping.
func Walk(root string, skipHidden bool, out chan<- FileEvent, known KnownLookup, onDir func(path string)) error {
	defer close(out)
	visited := make(map[string]bool)
	nomedia := make(map[string]bool) // directories (or ancestors) marked with .nomedia

	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			if path != root && skipHidden && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			real, everr := filepath.EvalSymlinks(path)
			if everr != nil {
				return nil
			}
			if visited[real] {
				return filepath.SkipDir
			}
			visited[real] = true

			if parentNomedia(path, nomedia) {
				nomedia[path] = true
				return filepath.SkipDir
			}
			if _, statErr := os.Stat(filepath.Join(path, ".nomedia")); statErr == nil {
				nomedia[path] = true
				return filepath.SkipDir
			}
			if onDir != nil {
				onDir(path)
			}
			return nil
		}

		if skipHidden && strings.HasPrefix(d.Name(), ".") {
			return nil
		}
		ext := strings.ToLower(filepath.Ext(path))
		if !eligibleExtension(ext) {
			return nil
		}
		info, ierr := d.Info()
		if ierr != nil {
			return nil
		}

		kind := EventAdded
		if known != nil {
			if kf, ok := known(path); ok {
				kind = EventSeen
				if kf.Size != info.Size() || kf.ModTime != info.ModTime().Unix() {
					kind = EventModified
				}
			}
		}

		out <- FileEvent{
			Path:    path,
			Name:    d.Name(),
			Size:    info.Size(),
			ModTime: info.ModTime().Unix(),
			Kind:    kind,
		}
		return nil
	})
}

// CountEligible walks root up front and counts the media files discovery
// would emit an event for, honoring the same `.nomedia`/hidden-file/
// eligible-extension rules as Walk. The pipeline uses this to report a real
// total to the job notification fabric (§4.6, §8 scenario 1) before the
// resolver stage starts consuming events.
func CountEligible(root string, skipHidden bool) (int, error) {
	visited := make(map[string]bool)
	nomedia := make(map[string]bool)
	count := 0

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			if path != root && skipHidden && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			real, everr := filepath.EvalSymlinks(path)
			if everr != nil {
				return nil
			}
			if visited[real] {
				return filepath.SkipDir
			}
			visited[real] = true

			if parentNomedia(path, nomedia) {
				nomedia[path] = true
				return filepath.SkipDir
			}
			if _, statErr := os.Stat(filepath.Join(path, ".nomedia")); statErr == nil {
				nomedia[path] = true
				return filepath.SkipDir
			}
			return nil
		}

		if skipHidden && strings.HasPrefix(d.Name(), ".") {
			return nil
		}
		if !eligibleExtension(strings.ToLower(filepath.Ext(path))) {
			return nil
		}
		count++
		return nil
	})
	return count, err
}

func parentNomedia(path string, nomedia map[string]bool) bool {
	dir := filepath.Dir(path)
	return nomedia[dir]
}

// MissingPaths compares the previously tracked set of paths against seen to
// produce the Missing event set discovery must emit for rows that no longer
// exist on disk.
func MissingPaths(tracked []string, seen map[string]bool) []string {
	var missing []string
	for _, p := range tracked {
		if !seen[p] {
			missing = append(missing, p)
		}
	}
	return missing
}

// CollectSeen drains ch into a set of seen paths and a slice of events, for
// callers that need both the stream and a post-hoc missing-file diff.
func CollectSeen(ch <-chan FileEvent) ([]FileEvent, map[string]bool) {
	var events []FileEvent
	seen := make(map[string]bool)
	for e := range ch {
		events = append(events, e)
		seen[e.Path] = true
	}
	return events, seen
}
