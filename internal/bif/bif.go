// Package bif implements the on-disk BIF (Base Index Frames) trickplay
// thumbnail store: a header, an index of (timestamp, byte-offset) entries,
// and a trailing sequence of JPEG blobs, one roughly every ten seconds of
// source playback. Readers can fetch metadata alone (thumbnail count and
// interval) or a single thumbnail by index without loading the whole file.
package bif

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"os"

	"github.com/cespare/xxhash/v2"
	"github.com/dgryski/go-rendezvous"
	"github.com/google/uuid"

	"github.com/nexamediaserver/server/internal/lockpool"
	"github.com/nexamediaserver/server/internal/paths"
)

// magic identifies a BIF file; arbitrary but stable across writes.
var magic = [8]byte{0x89, 'B', 'I', 'F', 0x0d, 0x0a, 0x1a, 0x0a}

const (
	version    = 0
	headerSize = 64
)

// Entry is one trickplay thumbnail: its position in the sequence, the
// timestamp it represents, and the JPEG bytes.
type Entry struct {
	Index     uint32
	TimeMs    int64
	Thumbnail []byte
}

// File is the in-memory representation of a BIF archive.
type File struct {
	IntervalMs int64
	Entries    []Entry
}

// Metadata is a lightweight summary, cheap to return without reading every
// thumbnail blob.
type Metadata struct {
	IntervalMs int64
	Count      int
	Checksum   uint64
}

// encode serializes f into the BIF wire format:
//
//	[8]  magic
//	u32  version
//	u32  entry count
//	i64  interval ms
//	u64  checksum of the thumbnail payload (xxhash)
//	pad  to headerSize
//	[]   index entries: u32 index, i64 timeMs, u64 byteOffset, u32 pad  (24 bytes each)
//	[]   concatenated JPEG blobs, offsets recorded above
func (f *File) encode() ([]byte, error) {
	var payload bytes.Buffer
	offsets := make([]uint64, len(f.Entries))
	for i, e := range f.Entries {
		offsets[i] = uint64(headerSize + 24*len(f.Entries) + payload.Len())
		if _, err := payload.Write(e.Thumbnail); err != nil {
			return nil, fmt.Errorf("bif: write thumbnail %d: %w", i, err)
		}
	}
	checksum := xxhash.Sum64(payload.Bytes())

	var buf bytes.Buffer
	buf.Write(magic[:])
	binary.Write(&buf, binary.LittleEndian, uint32(version))
	binary.Write(&buf, binary.LittleEndian, uint32(len(f.Entries)))
	binary.Write(&buf, binary.LittleEndian, f.IntervalMs)
	binary.Write(&buf, binary.LittleEndian, checksum)
	buf.Write(make([]byte, headerSize-buf.Len()))

	for i, e := range f.Entries {
		binary.Write(&buf, binary.LittleEndian, e.Index)
		binary.Write(&buf, binary.LittleEndian, e.TimeMs)
		binary.Write(&buf, binary.LittleEndian, offsets[i])
		binary.Write(&buf, binary.LittleEndian, uint32(0))
	}
	buf.Write(payload.Bytes())
	return buf.Bytes(), nil
}

func decodeMetadata(data []byte) (Metadata, []indexEntry, error) {
	if len(data) < headerSize || !bytes.Equal(data[:8], magic[:]) {
		return Metadata{}, nil, fmt.Errorf("bif: bad magic")
	}
	count := binary.LittleEndian.Uint32(data[12:16])
	interval := int64(binary.LittleEndian.Uint64(data[16:24]))
	checksum := binary.LittleEndian.Uint64(data[24:32])

	entries := make([]indexEntry, count)
	off := headerSize
	for i := range entries {
		if off+24 > len(data) {
			return Metadata{}, nil, fmt.Errorf("bif: truncated index at entry %d", i)
		}
		entries[i] = indexEntry{
			Index:      binary.LittleEndian.Uint32(data[off : off+4]),
			TimeMs:     int64(binary.LittleEndian.Uint64(data[off+4 : off+12])),
			ByteOffset: binary.LittleEndian.Uint64(data[off+12 : off+20]),
		}
		off += 24
	}
	return Metadata{IntervalMs: interval, Count: int(count), Checksum: checksum}, entries, nil
}

type indexEntry struct {
	Index      uint32
	TimeMs     int64
	ByteOffset uint64
}

// Store reads and writes BIF files under one or more configured cache roots,
// rendezvous-hashed by (uuid, partIndex) exactly as gopindex.Store does.
type Store struct {
	roots      []*paths.Paths
	rootByName map[string]*paths.Paths
	hash       *rendezvous.Rendezvous
	locks      *lockpool.Pool
}

func NewStore(roots []*paths.Paths) *Store {
	names := make([]string, len(roots))
	byName := make(map[string]*paths.Paths, len(roots))
	for i, r := range roots {
		names[i] = r.Cache
		byName[r.Cache] = r
	}
	return &Store{
		roots:      roots,
		rootByName: byName,
		hash:       rendezvous.New(names, xxhash.Sum64String),
		locks:      lockpool.New(),
	}
}

func key(id uuid.UUID, partIndex int) string {
	return fmt.Sprintf("%s.%d", id, partIndex)
}

func (s *Store) rootFor(id uuid.UUID, partIndex int) *paths.Paths {
	if len(s.roots) == 1 {
		return s.roots[0]
	}
	return s.rootByName[s.hash.Lookup(key(id, partIndex))]
}

// Write atomically persists f for (id, partIndex).
func (s *Store) Write(id uuid.UUID, partIndex int, f *File) error {
	data, err := f.encode()
	if err != nil {
		return err
	}
	p := s.rootFor(id, partIndex)
	dest := p.BifPath(id, partIndex)
	return s.locks.With(key(id, partIndex), func() error {
		return paths.WriteAtomic(dest, data, 0o644)
	})
}

// ReadMetadata returns the thumbnail count and interval without reading any
// thumbnail payload.
func (s *Store) ReadMetadata(id uuid.UUID, partIndex int) (Metadata, error) {
	p := s.rootFor(id, partIndex)
	path := p.BifPath(id, partIndex)

	var meta Metadata
	err := s.locks.With(key(id, partIndex), func() error {
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		m, _, err := decodeMetadata(data)
		if err != nil {
			return err
		}
		meta = m
		return nil
	})
	if err != nil {
		return Metadata{}, fmt.Errorf("bif: read metadata %s: %w", path, err)
	}
	return meta, nil
}

// ReadThumbnail returns the JPEG bytes for a single thumbnail by its index in
// the archive, without decoding the others.
func (s *Store) ReadThumbnail(id uuid.UUID, partIndex int, index int) ([]byte, error) {
	p := s.rootFor(id, partIndex)
	path := p.BifPath(id, partIndex)

	var thumb []byte
	err := s.locks.With(key(id, partIndex), func() error {
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		_, entries, err := decodeMetadata(data)
		if err != nil {
			return err
		}
		if index < 0 || index >= len(entries) {
			return fmt.Errorf("bif: index %d out of range (count=%d)", index, len(entries))
		}
		start := entries[index].ByteOffset
		var end uint64
		if index+1 < len(entries) {
			end = entries[index+1].ByteOffset
		} else {
			end = uint64(len(data))
		}
		if end > uint64(len(data)) || start > end {
			return fmt.Errorf("bif: corrupt offsets for index %d", index)
		}
		thumb = append([]byte(nil), data[start:end]...)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("bif: read thumbnail %s#%d: %w", path, index, err)
	}
	return thumb, nil
}
