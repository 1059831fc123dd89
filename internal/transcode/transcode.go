// Package transcode implements the transcode job manager (§4.9): job
// lifecycle, concurrency throttling, a process-aware in-memory cache with
// LRU eviction, and FFmpeg process spawning/termination.
package transcode

import (
	"container/list"
	"context"
	"fmt"
	"log"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sys/unix"

	"github.com/nexamediaserver/server/internal/models"
	"github.com/nexamediaserver/server/internal/notify"
	"github.com/nexamediaserver/server/internal/repository"
)

// DefaultIdleTimeout is how long a job may go without a Ping before the
// reaper kills it (§5 timeouts).
const DefaultIdleTimeout = 30 * time.Second

// killGrace is how long Kill waits after SIGTERM before escalating to
// SIGKILL (§4.9, §5).
const killGrace = 2 * time.Second

// Options configures a single transcode invocation.
type Options struct {
	FFmpegArgs       []string
	SegmentLengthS   int
	SegmentPrefix    string
	SegmentExtension string
}

type cacheEntry struct {
	outputPath       string
	pid              int
	cmd              *exec.Cmd
	createdAt        time.Time
	lastAccess       time.Time
	segmentPrefix    string
	segmentExtension string
	segmentLengthS   int
	startTimeMs      int64
	librarySectionID int64
	elem             *list.Element
}

// Manager is the process-aware transcode job manager. MaxConcurrent is read
// on every CanStartNewJob call so it can be changed live via settings.
type Manager struct {
	repo    *repository.TranscodeRepository
	media   *repository.MediaRepository
	fabric  *notify.Fabric
	maxConc func() int

	mu       sync.Mutex
	cache    map[string]*cacheEntry // keyed by output path
	lru      *list.List
	maxCache int
}

func New(repo *repository.TranscodeRepository, media *repository.MediaRepository, fabric *notify.Fabric, maxConcurrent func() int) *Manager {
	return &Manager{
		repo:     repo,
		media:    media,
		fabric:   fabric,
		maxConc:  maxConcurrent,
		cache:    make(map[string]*cacheEntry),
		lru:      list.New(),
		maxCache: 64,
	}
}

// notifyKey builds the job notification fabric key for a transcode whose
// source lives in librarySectionID (§4.6, §4.9: the fabric "unifies" scan and
// playback progress under the same (library, jobType) keying scheme).
func notifyKey(librarySectionID int64) notify.Key {
	return notify.Key{LibrarySectionID: librarySectionID, JobType: notify.JobTranscode}
}

// sectionForOutputPath returns the library section a live cache entry for
// outputPath was started against, if any.
func (m *Manager) sectionForOutputPath(outputPath string) (int64, bool) {
	m.mu.Lock()
	entry, ok := m.cache[outputPath]
	m.mu.Unlock()
	if !ok || entry.librarySectionID == 0 {
		return 0, false
	}
	return entry.librarySectionID, true
}

// sectionForJob resolves the library section for a job id by looking up its
// output path in the repository, then the cache. Used by callers (ReportProgress,
// Fail) that only carry a job id.
func (m *Manager) sectionForJob(id uuid.UUID) (int64, bool) {
	j, err := m.repo.GetByUUID(id)
	if err != nil || j == nil {
		return 0, false
	}
	return m.sectionForOutputPath(j.OutputPath)
}

// CanStartNewJob reports whether another job may start per the configured
// concurrency throttle (§4.9).
func (m *Manager) CanStartNewJob() (bool, error) {
	running, err := m.repo.CountRunning()
	if err != nil {
		return false, fmt.Errorf("transcode: can start: %w", err)
	}
	return running < m.maxConc(), nil
}

// Create persists a new job in Queued state.
func (m *Manager) Create(sessionID uuid.UUID, mediaPartID int64, protocol models.Protocol, outputPath string, opts Options) (*models.TranscodeJob, error) {
	j := &models.TranscodeJob{
		PlaybackSessionID: sessionID,
		MediaPartID:       mediaPartID,
		Protocol:          protocol,
		OutputPath:        outputPath,
		State:             models.TranscodeQueued,
		SegmentLengthS:    opts.SegmentLengthS,
		SegmentPrefix:     opts.SegmentPrefix,
		SegmentExtension:  opts.SegmentExtension,
	}
	if err := m.repo.Create(j); err != nil {
		return nil, fmt.Errorf("transcode: create: %w", err)
	}
	return j, nil
}

// Start spawns the FFmpeg process for a queued job and records it as
// Running; the job goes from Queued to Running without a Starting state.
func (m *Manager) Start(ctx context.Context, ffmpegPath string, job *models.TranscodeJob, opts Options) error {
	if err := os.MkdirAll(filepath.Dir(job.OutputPath), 0o755); err != nil {
		return fmt.Errorf("transcode: mkdir output: %w", err)
	}

	cmd := exec.CommandContext(ctx, ffmpegPath, opts.FFmpegArgs...)
	if err := cmd.Start(); err != nil {
		m.Fail(job.UUID, fmt.Sprintf("spawn failed: %v", err))
		return fmt.Errorf("transcode: spawn: %w", err)
	}

	pid := cmd.Process.Pid
	if err := m.repo.SetStarted(job.UUID, pid); err != nil {
		return fmt.Errorf("transcode: set started: %w", err)
	}
	job.PID = pid
	job.State = models.TranscodeRunning

	var sectionID int64
	if m.media != nil {
		if part, perr := m.media.GetPartByID(job.MediaPartID); perr == nil && part != nil {
			sectionID = part.SectionID
		}
	}

	now := time.Now()
	m.mu.Lock()
	entry := &cacheEntry{
		outputPath:       job.OutputPath,
		pid:              pid,
		cmd:              cmd,
		createdAt:        now,
		lastAccess:       now,
		segmentPrefix:    opts.SegmentPrefix,
		segmentExtension: opts.SegmentExtension,
		segmentLengthS:   opts.SegmentLengthS,
		startTimeMs:      job.StartTimeMs,
		librarySectionID: sectionID,
	}
	entry.elem = m.lru.PushFront(entry)
	m.cache[job.OutputPath] = entry
	m.evictLocked()
	m.mu.Unlock()

	if m.fabric != nil && sectionID != 0 {
		m.fabric.StartJob(notifyKey(sectionID), 100)
	}

	go func() {
		if err := cmd.Wait(); err != nil {
			log.Printf("[transcode] job %s ffmpeg exited: %v", job.UUID, err)
		}
	}()

	log.Printf("[transcode] started job %s pid=%d", job.UUID, pid)
	return nil
}

// Ping resets a job's idle timer and marks its cache entry as the most
// recently used.
func (m *Manager) Ping(id uuid.UUID) error {
	if err := m.repo.Ping(id); err != nil {
		return fmt.Errorf("transcode: ping: %w", err)
	}
	if j, err := m.repo.GetByUUID(id); err == nil && j != nil {
		m.mu.Lock()
		if entry, ok := m.cache[j.OutputPath]; ok {
			entry.lastAccess = time.Now()
			m.lru.MoveToFront(entry.elem)
		}
		m.mu.Unlock()
	}
	return nil
}

// ReportProgress records a monotonically increasing completion percentage
// and the last segment index written.
func (m *Manager) ReportProgress(id uuid.UUID, pct float64, lastSegmentIndex int) error {
	if err := m.repo.ReportProgress(id, pct, lastSegmentIndex); err != nil {
		return fmt.Errorf("transcode: report progress: %w", err)
	}
	if m.fabric != nil {
		if sectionID, ok := m.sectionForJob(id); ok {
			m.fabric.ReportProgress(notifyKey(sectionID), int(pct), 100)
		}
	}
	return nil
}

// Complete marks a job Completed and releases its process-cache entry
// (segments are left in place — a completed job's output is still served).
func (m *Manager) Complete(id, sessionID uuid.UUID, outputPath string) error {
	if err := m.repo.SetTerminal(id, models.TranscodeCompleted); err != nil {
		return fmt.Errorf("transcode: complete: %w", err)
	}
	if m.fabric != nil {
		if sectionID, ok := m.sectionForOutputPath(outputPath); ok {
			m.fabric.Complete(notifyKey(sectionID))
		}
	}
	m.releaseCache(outputPath, false)
	return nil
}

// Cancel kills the job's process and transitions it to Cancelled,
// optionally deleting its segment directory (§5: "deletes segments only if
// deleteSegments=true").
func (m *Manager) Cancel(id uuid.UUID, outputPath string, deleteSegments bool) error {
	m.killCached(outputPath)
	if err := m.repo.SetTerminal(id, models.TranscodeCancelled); err != nil {
		return fmt.Errorf("transcode: cancel: %w", err)
	}
	if m.fabric != nil {
		if sectionID, ok := m.sectionForOutputPath(outputPath); ok {
			m.fabric.Fail(notifyKey(sectionID), "cancelled")
		}
	}
	m.releaseCache(outputPath, deleteSegments)
	return nil
}

// Fail transitions the job to Failed. It does not signal the job's process;
// ReapIdle kills it through killCached before calling Fail.
func (m *Manager) Fail(id uuid.UUID, msg string) error {
	sectionID, haveSection := m.sectionForJob(id)
	if err := m.repo.SetTerminal(id, models.TranscodeFailed); err != nil {
		return fmt.Errorf("transcode: fail: %w", err)
	}
	if m.fabric != nil && haveSection {
		m.fabric.Fail(notifyKey(sectionID), msg)
	}
	log.Printf("[transcode] job %s failed: %s", id, msg)
	return nil
}

// killCached sends SIGTERM to the cached process for outputPath, waiting up
// to killGrace before escalating to SIGKILL. Kill only returns once the OS
// has confirmed the process exited. Live jobs are only killed through the
// cache (the single owner of the Process handle) to avoid double-kill
// races (§5); CleanupStaleJobs calls killProcess directly for processes
// left over from a previous run, which have no cache entry.
func (m *Manager) killCached(outputPath string) {
	m.mu.Lock()
	entry, ok := m.cache[outputPath]
	m.mu.Unlock()
	if !ok {
		return
	}
	killProcess(entry.pid, entry.cmd)
}

func killProcess(pid int, cmd *exec.Cmd) {
	if pid <= 0 {
		return
	}
	_ = unix.Kill(pid, unix.SIGTERM)

	done := make(chan struct{})
	go func() {
		if cmd != nil {
			cmd.Wait()
		} else {
			for processAlive(pid) {
				time.Sleep(50 * time.Millisecond)
			}
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(killGrace):
		_ = unix.Kill(pid, unix.SIGKILL)
		<-done
	}
}

func processAlive(pid int) bool {
	return unix.Kill(pid, 0) == nil
}

func (m *Manager) releaseCache(outputPath string, deleteSegments bool) {
	m.mu.Lock()
	entry, ok := m.cache[outputPath]
	if ok {
		m.lru.Remove(entry.elem)
		delete(m.cache, outputPath)
	}
	m.mu.Unlock()

	if deleteSegments {
		if err := os.RemoveAll(filepath.Dir(outputPath)); err != nil {
			log.Printf("[transcode] delete segments %s: %v", outputPath, err)
		}
	}
}

// evictLocked drops the least-recently-accessed cache entries beyond
// maxCache. Must be called with m.mu held.
func (m *Manager) evictLocked() {
	for len(m.cache) > m.maxCache {
		back := m.lru.Back()
		if back == nil {
			return
		}
		entry := back.Value.(*cacheEntry)
		m.lru.Remove(back)
		delete(m.cache, entry.outputPath)
	}
}

var segmentIndexRe = regexp.MustCompile(`^(.+?)(\d{4,})\.[^.]+$`)

// GetCurrentTranscodingIndex scans outputDir's segment files and returns
// the highest written `<prefix><N><ext>` index (e.g. chunk-stream0-0007.m4s
// -> 7), used by the playback layer to answer "has the client's requested
// segment already been written?". Returns -1 if no segments exist yet.
func GetCurrentTranscodingIndex(outputDir, segmentPrefix string) int {
	entries, err := os.ReadDir(outputDir)
	if err != nil {
		return -1
	}
	highest := -1
	for _, e := range entries {
		name := e.Name()
		if segmentPrefix != "" && !regexp.MustCompile(`^` + regexp.QuoteMeta(segmentPrefix)).MatchString(name) {
			continue
		}
		m := segmentIndexRe.FindStringSubmatch(name)
		if m == nil {
			continue
		}
		idx := 0
		fmt.Sscanf(m[2], "%d", &idx)
		if idx > highest {
			highest = idx
		}
	}
	return highest
}

// CleanupStaleJobs runs at startup: kills any OS process still alive for a
// job that the DB thinks is Starting/Running, deletes its segments, and
// marks the job Failed so a restarted process never inherits an orphaned
// transcode (§4.9).
func (m *Manager) CleanupStaleJobs() error {
	running, err := m.repo.ListRunning()
	if err != nil {
		return fmt.Errorf("transcode: cleanup: list running: %w", err)
	}
	for _, j := range running {
		if j.PID > 0 && processAlive(j.PID) {
			killProcess(j.PID, nil)
		}
		if err := os.RemoveAll(filepath.Dir(j.OutputPath)); err != nil {
			log.Printf("[transcode] cleanup: remove segments for %s: %v", j.UUID, err)
		}
		if err := m.repo.SetTerminal(j.UUID, models.TranscodeFailed); err != nil {
			log.Printf("[transcode] cleanup: mark failed %s: %v", j.UUID, err)
		}
	}
	return nil
}

// ReapIdle kills and fails every job whose last ping predates the idle
// timeout, called periodically by the owning scheduler loop.
func (m *Manager) ReapIdle(idleTimeout time.Duration) error {
	if idleTimeout <= 0 {
		idleTimeout = DefaultIdleTimeout
	}
	idle, err := m.repo.ListIdleSince(time.Now().Add(-idleTimeout))
	if err != nil {
		return fmt.Errorf("transcode: reap idle: %w", err)
	}
	for _, j := range idle {
		m.killCached(j.OutputPath)
		if err := m.Fail(j.UUID, "idle timeout"); err != nil {
			log.Printf("[transcode] reap: fail %s: %v", j.UUID, err)
		}
	}
	return nil
}

// cacheSnapshot is exposed only for tests that need to assert LRU behavior
// without reaching into unexported fields directly.
func (m *Manager) cacheSnapshot() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.cache))
	for k := range m.cache {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
