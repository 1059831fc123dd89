package gopindex

import (
	"testing"

	"github.com/google/uuid"

	"github.com/nexamediaserver/server/internal/paths"
)

func TestWriteReadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	p := paths.New(dir, "", dir)
	if err := p.Ensure(); err != nil {
		t.Fatalf("ensure: %v", err)
	}
	store := NewStore([]*paths.Paths{p})

	id := uuid.New()
	idx := &Index{Entries: []Entry{
		{PTSMs: 4000, ByteOffset: 300, IsKeyframe: true, GopDurationMs: 2000},
		{PTSMs: 0, ByteOffset: 0, IsKeyframe: true, GopDurationMs: 2000},
		{PTSMs: 2000, ByteOffset: 150, IsKeyframe: true, GopDurationMs: 2000},
		{PTSMs: 6000, ByteOffset: 450, IsKeyframe: true, GopDurationMs: 2000},
	}}

	if err := store.Write(id, 0, idx); err != nil {
		t.Fatalf("write: %v", err)
	}

	got, err := store.Read(id, 0)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(got.Entries) != len(idx.Entries) {
		t.Fatalf("entry count = %d, want %d", len(got.Entries), len(idx.Entries))
	}
	for i := 1; i < len(got.Entries); i++ {
		if got.Entries[i].PTSMs < got.Entries[i-1].PTSMs {
			t.Fatalf("entries not sorted ascending: %v", got.Entries)
		}
	}
}

func TestNearestKeyframe(t *testing.T) {
	idx := &Index{Entries: []Entry{
		{PTSMs: 0, IsKeyframe: true},
		{PTSMs: 2000, IsKeyframe: true},
		{PTSMs: 4000, IsKeyframe: true},
		{PTSMs: 6000, IsKeyframe: true},
	}}

	cases := []struct {
		target   int64
		wantMs   int64
		wantFound bool
	}{
		{3500, 2000, true},
		{0, 0, true},
		{6000, 6000, true},
		{-1, 0, false},
		{7000, 6000, true},
	}
	for _, c := range cases {
		got, found := idx.Nearest(c.target)
		if found != c.wantFound {
			t.Errorf("Nearest(%d) found = %v, want %v", c.target, found, c.wantFound)
			continue
		}
		if found && got.PTSMs != c.wantMs {
			t.Errorf("Nearest(%d) = %d, want %d", c.target, got.PTSMs, c.wantMs)
		}
	}
}
