// Package jobs wires the asynq-backed background task queue: payload types,
// handlers, and the scan.JobScheduler / watcher.MicroScanner adapters that
// let internal/scan and internal/watcher enqueue work without importing
// this package.
package jobs

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os/exec"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	"github.com/nexamediaserver/server/internal/bif"
	"github.com/nexamediaserver/server/internal/ffmpeg"
	"github.com/nexamediaserver/server/internal/gopindex"
	"github.com/nexamediaserver/server/internal/metadata"
	"github.com/nexamediaserver/server/internal/models"
	"github.com/nexamediaserver/server/internal/repository"
	"github.com/nexamediaserver/server/internal/scan"
	"github.com/nexamediaserver/server/internal/watcher"
)

// ──────── Payloads ────────

type ScanLibraryPayload struct {
	ScanUUID  uuid.UUID `json:"scan_uuid"`
	SectionID int64     `json:"section_id"`
	RootPath  string    `json:"root_path"`
}

type MicroScanPayload struct {
	SectionID int64    `json:"section_id"`
	Paths     []string `json:"paths"`
	Kind      string   `json:"kind"`
}

type FileAnalysisPayload struct {
	MediaItemID int64  `json:"media_item_id"`
	PartIndex   int    `json:"part_index"`
	Path        string `json:"path"`
}

type TrickplayPayload struct {
	MetadataItemUUID uuid.UUID `json:"metadata_item_uuid"`
	PartIndex        int       `json:"part_index"`
	Path             string    `json:"path"`
}

type MetadataRefreshPayload struct {
	MetadataItemUUID uuid.UUID `json:"metadata_item_uuid"`
	OverrideFields   []string  `json:"override_fields,omitempty"`
}

// ──────── scan.JobScheduler / watcher.MicroScanner adapters ────────

// Scheduler enqueues the follow-up jobs the scan pipeline and refresh
// orchestrator hand off instead of running inline (§4.4, §4.5).
type Scheduler struct {
	queue *Queue
}

func NewScheduler(queue *Queue) *Scheduler {
	return &Scheduler{queue: queue}
}

func (s *Scheduler) ScheduleFileAnalysis(mediaItemID int64, partIndex int, path string) error {
	id := fmt.Sprintf("analyze:%d:%d", mediaItemID, partIndex)
	_, err := s.queue.EnqueueUnique(TaskFileAnalysis, FileAnalysisPayload{
		MediaItemID: mediaItemID, PartIndex: partIndex, Path: path,
	}, id)
	return err
}

func (s *Scheduler) ScheduleTrickplay(metadataItemUUID uuid.UUID, partIndex int, path string) error {
	id := fmt.Sprintf("trickplay:%s:%d", metadataItemUUID, partIndex)
	_, err := s.queue.EnqueueUnique(TaskTrickplay, TrickplayPayload{
		MetadataItemUUID: metadataItemUUID, PartIndex: partIndex, Path: path,
	}, id)
	return err
}

var _ scan.JobScheduler = (*Scheduler)(nil)

// MicroScanDispatcher satisfies watcher.MicroScanner by enqueueing a
// scan:micro task for the watcher's coalesced paths rather than running the
// restricted scan inline on the fsnotify goroutine.
type MicroScanDispatcher struct {
	queue *Queue
}

func NewMicroScanDispatcher(queue *Queue) *MicroScanDispatcher {
	return &MicroScanDispatcher{queue: queue}
}

func (d *MicroScanDispatcher) ScanPaths(ev watcher.CoalescedChangeEvent) error {
	_, err := d.queue.Enqueue(TaskMicroScan, MicroScanPayload{
		SectionID: ev.LibrarySectionID,
		Paths:     ev.Paths,
		Kind:      string(ev.Kind),
	})
	return err
}

var _ watcher.MicroScanner = (*MicroScanDispatcher)(nil)

// ──────── Handlers ────────

// ScanLibraryHandler runs a full scan.Pipeline pass for one section
// location (§4.4).
type ScanLibraryHandler struct {
	Pipeline *scan.Pipeline
	Sections *repository.LibrarySectionRepository
	Scans    *repository.ScanRepository
}

func (h *ScanLibraryHandler) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var p ScanLibraryPayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		return fmt.Errorf("scan payload: %w", err)
	}

	section, err := h.Sections.GetByID(p.SectionID)
	if err != nil {
		return fmt.Errorf("scan: load section %d: %w", p.SectionID, err)
	}
	var loc models.SectionLocation
	for _, l := range section.Locations {
		if l.RootPath == p.RootPath {
			loc = l
			break
		}
	}
	if loc.RootPath == "" {
		loc.RootPath = p.RootPath
	}

	target, err := h.Scans.GetByUUID(p.ScanUUID)
	if err != nil {
		return fmt.Errorf("scan: load scan %s: %w", p.ScanUUID, err)
	}

	return h.Pipeline.Run(ctx, target, section.Type, loc)
}

// MicroScanHandler runs a restricted discovery+resolve pass over the exact
// paths a watcher coalesced event reported, reusing the full pipeline by
// synthesizing a scan record scoped to those paths (§4.5).
type MicroScanHandler struct {
	Pipeline *scan.Pipeline
	Sections *repository.LibrarySectionRepository
	Scans    *repository.ScanRepository
}

func (h *MicroScanHandler) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var p MicroScanPayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		return fmt.Errorf("microscan payload: %w", err)
	}
	section, err := h.Sections.GetByID(p.SectionID)
	if err != nil {
		return fmt.Errorf("microscan: load section %d: %w", p.SectionID, err)
	}

	libScan := &models.LibraryScan{LibrarySectionID: p.SectionID}
	if err := h.Scans.Create(libScan); err != nil {
		return fmt.Errorf("microscan: create scan record: %w", err)
	}

	var firstErr error
	for _, path := range p.Paths {
		loc := models.SectionLocation{SectionID: p.SectionID, RootPath: path}
		if err := h.Pipeline.Run(ctx, libScan, section.Type, loc); err != nil {
			log.Printf("jobs: microscan %s: %v", path, err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

// FileAnalysisHandler re-probes a media part with ffprobe, persists the
// technical fields, and builds its GoP index from ffprobe packet flags
// (§4.1, §4.8 GoP index).
type FileAnalysisHandler struct {
	Probe    *ffmpeg.FFprobe
	Media    *repository.MediaRepository
	Metadata *repository.MetadataRepository
	Gop      *gopindex.Store
}

func (h *FileAnalysisHandler) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var p FileAnalysisPayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		return fmt.Errorf("file analysis payload: %w", err)
	}

	mediaItem, err := h.Media.GetByID(p.MediaItemID)
	if err != nil {
		return fmt.Errorf("file analysis: load media item %d: %w", p.MediaItemID, err)
	}
	if err := scan.Analyze(h.Probe, p.Path, mediaItem); err != nil {
		return fmt.Errorf("file analysis: probe %s: %w", p.Path, err)
	}
	if err := h.Media.UpdateProbe(mediaItem); err != nil {
		return fmt.Errorf("file analysis: persist %s: %w", p.Path, err)
	}

	entries, err := probeKeyframes(p.Path)
	if err != nil {
		log.Printf("jobs: keyframe probe %s: %v", p.Path, err)
		return nil
	}

	metaItem, err := h.Metadata.GetByID(mediaItem.MetadataItemID)
	if err != nil {
		return fmt.Errorf("file analysis: load metadata item %d: %w", mediaItem.MetadataItemID, err)
	}
	idx := &gopindex.Index{Entries: entries}
	if err := h.Gop.Write(metaItem.UUID, p.PartIndex, idx); err != nil {
		return fmt.Errorf("file analysis: write gop index: %w", err)
	}
	return nil
}

// TrickplayHandler extracts periodic JPEG thumbnails with ffmpeg and writes
// the resulting BIF archive (§4.1, §6 "trickplay image generation").
type TrickplayHandler struct {
	FFmpegPath     string
	Bif            *bif.Store
	ThumbIntervalS int
}

func (h *TrickplayHandler) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var p TrickplayPayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		return fmt.Errorf("trickplay payload: %w", err)
	}
	interval := h.ThumbIntervalS
	if interval <= 0 {
		interval = 10
	}

	thumbs, err := extractThumbnails(ctx, h.FFmpegPath, p.Path, interval)
	if err != nil {
		return fmt.Errorf("trickplay: extract %s: %w", p.Path, err)
	}
	if len(thumbs) == 0 {
		return nil
	}

	file := &bif.File{IntervalMs: int64(interval) * 1000}
	for i, jpeg := range thumbs {
		file.Entries = append(file.Entries, bif.Entry{
			Index:     uint32(i),
			TimeMs:    int64(i*interval) * 1000,
			Thumbnail: jpeg,
		})
	}
	return h.Bif.Write(p.MetadataItemUUID, p.PartIndex, file)
}

// MetadataRefreshHandler runs the agent fan-out orchestrator for a single
// item in the background, e.g. for an items.refreshMetadata request that
// opted out of the synchronous path (§4.4, §6).
type MetadataRefreshHandler struct {
	Orchestrator *metadata.Orchestrator
	Metadata     *repository.MetadataRepository
}

func (h *MetadataRefreshHandler) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var p MetadataRefreshPayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		return fmt.Errorf("metadata refresh payload: %w", err)
	}
	item, err := h.Metadata.GetByUUID(p.MetadataItemUUID)
	if err != nil {
		return fmt.Errorf("metadata refresh: load %s: %w", p.MetadataItemUUID, err)
	}
	return h.Orchestrator.RefreshWithOverrides(ctx, item, p.OverrideFields, scan.RefreshOptions{})
}

// ──────── ffmpeg/ffprobe helpers ────────

// probeKeyframes runs ffprobe over the video stream's packet flags to build
// a GoP index: one entry per packet, keyframes flagged, PTS and byte offset
// recorded (§4.8).
func probeKeyframes(path string) ([]gopindex.Entry, error) {
	cmd := exec.Command("ffprobe",
		"-v", "error",
		"-select_streams", "v:0",
		"-show_entries", "packet=pts_time,flags,pos",
		"-of", "csv=p=0",
		path,
	)
	var out bytes.Buffer
	cmd.Stdout = &out
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("ffprobe packets: %w", err)
	}

	var entries []gopindex.Entry
	var lastKeyMs int64
	lines := strings.Split(out.String(), "\n")
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		fields := strings.Split(line, ",")
		if len(fields) < 3 {
			continue
		}
		ptsSec, err := strconv.ParseFloat(fields[0], 64)
		if err != nil {
			continue
		}
		pos, _ := strconv.ParseInt(fields[2], 10, 64)
		isKey := strings.Contains(fields[1], "K")
		ptsMs := int64(ptsSec * 1000)

		var gopDur int64
		if isKey {
			gopDur = ptsMs - lastKeyMs
			lastKeyMs = ptsMs
		}
		entries = append(entries, gopindex.Entry{
			PTSMs:         ptsMs,
			ByteOffset:    pos,
			IsKeyframe:    isKey,
			GopDurationMs: gopDur,
		})
	}
	return entries, nil
}

// extractThumbnails runs ffmpeg with a fps filter to pull one JPEG every
// intervalSeconds, returning each frame's encoded bytes in order.
func extractThumbnails(ctx context.Context, ffmpegPath, path string, intervalSeconds int) ([][]byte, error) {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	cmd := exec.CommandContext(ctx, ffmpegPath,
		"-i", path,
		"-vf", fmt.Sprintf("fps=1/%d,scale=320:-1", intervalSeconds),
		"-f", "image2pipe",
		"-vcodec", "mjpeg",
		"-",
	)
	var out bytes.Buffer
	cmd.Stdout = &out
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("ffmpeg trickplay: %w", err)
	}
	return splitJPEGs(out.Bytes()), nil
}

// splitJPEGs splits a concatenated MJPEG stream on JPEG SOI markers.
func splitJPEGs(data []byte) [][]byte {
	marker := []byte{0xff, 0xd8, 0xff}
	var frames [][]byte
	start := -1
	for i := 0; i+3 <= len(data); i++ {
		if bytes.Equal(data[i:i+3], marker) {
			if start >= 0 {
				frames = append(frames, data[start:i])
			}
			start = i
		}
	}
	if start >= 0 {
		frames = append(frames, data[start:])
	}
	return frames
}
