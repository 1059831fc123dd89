package notify

import (
	"sync"
	"testing"
)

type collectingPublisher struct {
	mu      sync.Mutex
	entries []Entry
}

func (c *collectingPublisher) Publish(e Entry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = append(c.entries, e)
}

func TestStartResetsCompletedAndBumpsEpoch(t *testing.T) {
	f := New(7, nil)
	key := Key{LibrarySectionID: 1, JobType: JobScan}

	f.StartJob(key, 10)
	f.ReportProgress(key, 5, 10)
	e, _ := f.Get(key)
	if e.Completed != 5 || e.Epoch != 1 {
		t.Fatalf("got %+v", e)
	}

	f.StartJob(key, 20)
	e, _ = f.Get(key)
	if e.Completed != 0 || e.Epoch != 2 || e.Total != 20 {
		t.Fatalf("restart did not reset: %+v", e)
	}
}

func TestProgressRegressionClamped(t *testing.T) {
	f := New(7, nil)
	key := Key{LibrarySectionID: 1, JobType: JobScan}
	f.StartJob(key, 10)
	f.ReportProgress(key, 8, 10)
	f.ReportProgress(key, 3, 10)
	e, _ := f.Get(key)
	if e.Completed != 8 {
		t.Fatalf("completed regressed to %d, want clamped at 8", e.Completed)
	}
}

func TestTerminalIgnoresFurtherReports(t *testing.T) {
	f := New(7, nil)
	key := Key{LibrarySectionID: 1, JobType: JobScan}
	f.StartJob(key, 10)
	f.Complete(key)
	f.ReportProgress(key, 1, 10)
	e, _ := f.Get(key)
	if e.Status != StatusCompleted || e.Completed != 10 {
		t.Fatalf("terminal entry mutated: %+v", e)
	}

	f.Fail(key, "should be ignored")
	e, _ = f.Get(key)
	if e.Status != StatusCompleted {
		t.Fatalf("Fail changed a completed entry: %+v", e)
	}
}

func TestFlushPublishesOnlyDirtyEntries(t *testing.T) {
	pub := &collectingPublisher{}
	f := New(7, pub)
	key := Key{LibrarySectionID: 1, JobType: JobScan}
	f.StartJob(key, 10)
	f.flush()
	if len(pub.entries) != 1 {
		t.Fatalf("expected 1 publish, got %d", len(pub.entries))
	}
	f.flush()
	if len(pub.entries) != 1 {
		t.Fatalf("second flush with no changes should not republish, got %d", len(pub.entries))
	}
}
