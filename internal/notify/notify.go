// Package notify implements the job notification fabric (§4.6): a
// process-wide, in-memory aggregator of per-(library, job-type) progress
// entries, flushed to subscribers on a fixed cadence.
package notify

import (
	"log"
	"sync"
	"time"
)

// JobType enumerates the kinds of background work the fabric tracks
// progress for.
type JobType string

const (
	JobScan            JobType = "scan"
	JobMetadataRefresh JobType = "metadata_refresh"
	JobImageGeneration JobType = "image_generation"
	JobTrickplay       JobType = "trickplay"
	JobTranscode       JobType = "transcode"
)

// Status is the lifecycle state of a notification entry.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Key identifies one tracked job stream.
type Key struct {
	LibrarySectionID int64
	JobType          JobType
}

// Entry is the externally visible snapshot of a tracked job's progress.
type Entry struct {
	Key          Key
	Epoch        uint64
	Total        int
	Completed    int
	Status       Status
	LastUpdate   time.Time
	ErrorMessage string
}

type entryState struct {
	Entry
	dirty bool
}

// Publisher receives flushed entries; the websocket hub implements this to
// fan them out to subscribed clients.
type Publisher interface {
	Publish(Entry)
}

// Fabric is the process-wide aggregator. The zero value is not usable; use
// New.
type Fabric struct {
	mu            sync.Mutex
	entries       map[Key]*entryState
	retention     time.Duration
	flushInterval time.Duration
	publisher     Publisher

	stopCh chan struct{}
	doneCh chan struct{}
}

// New constructs a Fabric with the given retention period (completed/failed
// entries older than this are purged) and publisher.
func New(retentionDays int, publisher Publisher) *Fabric {
	if retentionDays <= 0 {
		retentionDays = 7
	}
	return &Fabric{
		entries:       make(map[Key]*entryState),
		retention:     time.Duration(retentionDays) * 24 * time.Hour,
		flushInterval: time.Second,
		publisher:     publisher,
	}
}

// SetPublisher swaps the publisher entries are flushed to, e.g. once the
// websocket hub is constructed after the fabric itself.
func (f *Fabric) SetPublisher(p Publisher) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.publisher = p
}

// Start launches the flush loop as a goroutine; call Stop to halt it.
func (f *Fabric) Start() {
	f.stopCh = make(chan struct{})
	f.doneCh = make(chan struct{})
	go f.run()
}

// Stop halts the flush loop and blocks until it exits.
func (f *Fabric) Stop() {
	if f.stopCh == nil {
		return
	}
	close(f.stopCh)
	<-f.doneCh
}

func (f *Fabric) run() {
	defer close(f.doneCh)
	ticker := time.NewTicker(f.flushInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			f.flush()
			f.purgeExpired()
		case <-f.stopCh:
			f.flush()
			return
		}
	}
}

// StartJob begins (or restarts) tracking for key. A second StartJob call for
// a key still in progress bumps the epoch and resets completed to 0, per the
// "Start is idempotent within an epoch" contract.
func (f *Fabric) StartJob(key Key, total int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	e, ok := f.entries[key]
	if !ok {
		e = &entryState{Entry: Entry{Key: key}}
		f.entries[key] = e
	}
	e.Epoch++
	e.Total = total
	e.Completed = 0
	e.Status = StatusRunning
	e.ErrorMessage = ""
	e.LastUpdate = time.Now()
	e.dirty = true
}

// ReportProgress advances completed/total for the current epoch. Regressions
// in completed are clamped to the existing value; calls after the entry has
// reached a terminal status for its epoch are ignored.
func (f *Fabric) ReportProgress(key Key, completed, total int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	e, ok := f.entries[key]
	if !ok || e.Status == StatusCompleted || e.Status == StatusFailed {
		return
	}
	if completed > e.Completed {
		e.Completed = completed
	}
	if total > 0 {
		e.Total = total
	}
	e.LastUpdate = time.Now()
	e.dirty = true
}

// Complete marks key as terminally completed for its current epoch.
func (f *Fabric) Complete(key Key) {
	f.mu.Lock()
	defer f.mu.Unlock()
	e, ok := f.entries[key]
	if !ok {
		return
	}
	if e.Status == StatusCompleted || e.Status == StatusFailed {
		return
	}
	e.Status = StatusCompleted
	// Raise completed up to total (the common case: total was known
	// upfront and the last progress report just hadn't caught up yet) but
	// never regress an already-observed completed count back down when
	// total is still 0 (e.g. a caller that never reported a total).
	if e.Completed < e.Total {
		e.Completed = e.Total
	}
	e.LastUpdate = time.Now()
	e.dirty = true
}

// Fail marks key as terminally failed for its current epoch with msg.
func (f *Fabric) Fail(key Key, msg string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	e, ok := f.entries[key]
	if !ok {
		return
	}
	if e.Status == StatusCompleted || e.Status == StatusFailed {
		return
	}
	e.Status = StatusFailed
	e.ErrorMessage = msg
	e.LastUpdate = time.Now()
	e.dirty = true
}

// Get returns a point-in-time snapshot of key's entry, if tracked.
func (f *Fabric) Get(key Key) (Entry, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	e, ok := f.entries[key]
	if !ok {
		return Entry{}, false
	}
	return e.Entry, true
}

// List returns a point-in-time snapshot of every tracked entry, for the
// job-notification listing query (§6).
func (f *Fabric) List() []Entry {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Entry, 0, len(f.entries))
	for _, e := range f.entries {
		out = append(out, e.Entry)
	}
	return out
}

// flush drains dirty entries and hands them to the publisher.
func (f *Fabric) flush() {
	f.mu.Lock()
	var toPublish []Entry
	for _, e := range f.entries {
		if e.dirty {
			toPublish = append(toPublish, e.Entry)
			e.dirty = false
		}
	}
	publisher := f.publisher
	f.mu.Unlock()

	if publisher == nil {
		return
	}
	for _, e := range toPublish {
		publisher.Publish(e)
	}
}

// purgeExpired removes terminal entries older than the retention window.
func (f *Fabric) purgeExpired() {
	cutoff := time.Now().Add(-f.retention)
	f.mu.Lock()
	defer f.mu.Unlock()
	for k, e := range f.entries {
		if (e.Status == StatusCompleted || e.Status == StatusFailed) && e.LastUpdate.Before(cutoff) {
			delete(f.entries, k)
		}
	}
}

// LogPublisher is a trivial Publisher used when no subscriber is attached
// yet; it exists so the fabric always has somewhere to send flushed entries
// during startup before the websocket hub registers itself.
type LogPublisher struct{}

func (LogPublisher) Publish(e Entry) {
	log.Printf("[notify] %s/%s epoch=%d %d/%d status=%s", e.Key.JobType, statusLibrary(e.Key.LibrarySectionID), e.Epoch, e.Completed, e.Total, e.Status)
}

func statusLibrary(id int64) string {
	if id == 0 {
		return "global"
	}
	return "section"
}
