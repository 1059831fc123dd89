// Package paths resolves the on-disk directory layout (§4.3, §6 filesystem
// layout) and ensures it exists at startup.
package paths

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

// Paths exposes every root directory the server writes to or reads from.
// Computed once at startup from config.Config and ensured to exist.
type Paths struct {
	Data   string
	Config string
	Log    string
	Cache  string
	Media  string
	Temp   string
	DB     string
	Index  string
	Backup string
}

// New resolves every root relative to dataDir, defaulting config/log/cache/
// etc. to subdirectories of it unless explicitly overridden.
func New(dataDir, cacheDir, mediaDir string) *Paths {
	if cacheDir == "" {
		cacheDir = filepath.Join(dataDir, "cache")
	}
	return &Paths{
		Data:   dataDir,
		Config: filepath.Join(dataDir, "config"),
		Log:    filepath.Join(dataDir, "logs"),
		Cache:  cacheDir,
		Media:  mediaDir,
		Temp:   filepath.Join(dataDir, "temp"),
		DB:     filepath.Join(dataDir, "db"),
		Index:  filepath.Join(dataDir, "index"),
		Backup: filepath.Join(dataDir, "backup"),
	}
}

// Ensure creates every managed directory (all but Media, which is user-owned
// and must already exist).
func (p *Paths) Ensure() error {
	for _, dir := range []string{p.Data, p.Config, p.Log, p.Cache, p.Temp, p.DB, p.Index, p.Backup} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("paths: ensure %s: %w", dir, err)
		}
	}
	return nil
}

// shard returns the two-level hex-prefix shard directory for a uuid, per the
// spec's `aa/bb/<uuid>...` convention.
func shard(id uuid.UUID) (string, string) {
	hex := id.String()
	// uuid.String() is dash-separated hex; first 4 hex chars are the first
	// two bytes, skipping the dash-free prefix is unnecessary since the
	// first 8 chars of the canonical form are never dashes.
	return hex[0:2], hex[2:4]
}

// GopIndexPath returns <cache>/media/<aa>/<bb>/<uuid>.<partIndex>.xml.
func (p *Paths) GopIndexPath(id uuid.UUID, partIndex int) string {
	aa, bb := shard(id)
	return filepath.Join(p.Cache, "media", aa, bb, fmt.Sprintf("%s.%d.xml", id, partIndex))
}

// BifPath returns <cache>/media/<aa>/<bb>/<uuid>.<partIndex>.bif.
func (p *Paths) BifPath(id uuid.UUID, partIndex int) string {
	aa, bb := shard(id)
	return filepath.Join(p.Cache, "media", aa, bb, fmt.Sprintf("%s.%d.bif", id, partIndex))
}

// ArtworkDir returns <cache>/media/<aa>/<bb>/<uuid>/artwork.
func (p *Paths) ArtworkDir(id uuid.UUID) string {
	aa, bb := shard(id)
	return filepath.Join(p.Cache, "media", aa, bb, id.String(), "artwork")
}

// ArtworkPath returns the path for a specific artwork role (poster, backdrop,
// logo, ...) and extension.
func (p *Paths) ArtworkPath(id uuid.UUID, role, ext string) string {
	return filepath.Join(p.ArtworkDir(id), fmt.Sprintf("%s.%s", role, ext))
}

// TranscodeDir returns <cache>/transcodes/<jobUuid>.
func (p *Paths) TranscodeDir(jobUUID uuid.UUID) string {
	return filepath.Join(p.Cache, "transcodes", jobUUID.String())
}

// TranscodeManifestPath returns <cache>/transcodes/<jobUuid>/manifest.mpd.
func (p *Paths) TranscodeManifestPath(jobUUID uuid.UUID) string {
	return filepath.Join(p.TranscodeDir(jobUUID), "manifest.mpd")
}

// TempFile returns a scratch path under Temp for an atomic-write operation;
// callers rename it into place after fsync.
func (p *Paths) TempFile(name string) string {
	return filepath.Join(p.Temp, name+".tmp")
}

// WriteAtomic writes data to a sibling ".tmp" file, fsyncs it, then renames
// it over dest. Used by every on-disk artifact store (GoP, BIF, artwork) so a
// crash never leaves a partially-written file at dest.
func WriteAtomic(dest string, data []byte, perm os.FileMode) error {
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return fmt.Errorf("atomic write: mkdir: %w", err)
	}
	tmp := dest + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, perm)
	if err != nil {
		return fmt.Errorf("atomic write: open: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("atomic write: write: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("atomic write: fsync: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("atomic write: close: %w", err)
	}
	if err := os.Rename(tmp, dest); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("atomic write: rename: %w", err)
	}
	return nil
}
