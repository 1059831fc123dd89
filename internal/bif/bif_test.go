package bif

import (
	"bytes"
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
	f := &File{
		IntervalMs: 10000,
		Entries: []Entry{
			{Index: 0, TimeMs: 0, Thumbnail: bytes.Repeat([]byte{0xff, 0xd8}, 10)},
			{Index: 1, TimeMs: 10000, Thumbnail: bytes.Repeat([]byte{0xaa}, 20)},
			{Index: 2, TimeMs: 20000, Thumbnail: bytes.Repeat([]byte{0xbb}, 5)},
		},
	}

	if err := store.Write(id, 0, f); err != nil {
		t.Fatalf("write: %v", err)
	}

	meta, err := store.ReadMetadata(id, 0)
	if err != nil {
		t.Fatalf("read metadata: %v", err)
	}
	if meta.Count != len(f.Entries) {
		t.Fatalf("count = %d, want %d", meta.Count, len(f.Entries))
	}
	if meta.IntervalMs != f.IntervalMs {
		t.Fatalf("interval = %d, want %d", meta.IntervalMs, f.IntervalMs)
	}

	for i, e := range f.Entries {
		got, err := store.ReadThumbnail(id, 0, i)
		if err != nil {
			t.Fatalf("read thumbnail %d: %v", i, err)
		}
		if !bytes.Equal(got, e.Thumbnail) {
			t.Errorf("thumbnail %d mismatch: got %d bytes, want %d bytes", i, len(got), len(e.Thumbnail))
		}
	}
}

func TestReadThumbnailOutOfRange(t *testing.T) {
	dir := t.TempDir()
	p := paths.New(dir, "", dir)
	if err := p.Ensure(); err != nil {
		t.Fatalf("ensure: %v", err)
	}
	store := NewStore([]*paths.Paths{p})
	id := uuid.New()
	f := &File{IntervalMs: 10000, Entries: []Entry{{Index: 0, TimeMs: 0, Thumbnail: []byte{1, 2, 3}}}}
	if err := store.Write(id, 0, f); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := store.ReadThumbnail(id, 0, 5); err == nil {
		t.Fatal("expected out-of-range error")
	}
}
