package scan

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nexamediaserver/server/internal/ffmpeg"
	"github.com/nexamediaserver/server/internal/models"
	"github.com/nexamediaserver/server/internal/notify"
)

// Refresher is implemented by internal/metadata: it runs the agent fan-out
// and image-selector stages for a single item. The scan pipeline only
// depends on this narrow interface so it never imports internal/metadata
// directly.
type Refresher interface {
	Refresh(ctx context.Context, item *models.MetadataItem, opts RefreshOptions) error
}

// RefreshOptions carries the per-item follow-up flags the resolver/pipeline
// decides on.
type RefreshOptions struct {
	SkipAnalysis bool
}

// JobScheduler is implemented by internal/jobs: the pipeline hands off
// trickplay/artifact generation as background jobs rather than running them
// inline.
type JobScheduler interface {
	ScheduleFileAnalysis(mediaItemID int64, partIndex int, path string) error
	ScheduleTrickplay(metadataItemUUID uuid.UUID, partIndex int, path string) error
}

// Repositories bundles the persistence dependencies the pipeline needs. It's
// a struct of interfaces rather than concrete *sql.DB-backed types so tests
// can supply fakes.
type Repositories struct {
	Directories DirectoryStore
	Media       MediaStore
	MetadataLookup Lookup
	MetadataCreate Factory
	Scans       ScanStore
}

type DirectoryStore interface {
	Upsert(d *models.Directory) error
	GetByPath(sectionID int64, path string) (*models.Directory, error)
}

type MediaStore interface {
	CreatePart(p *models.MediaPart) error
	GetPartByPath(sectionID int64, path string) (*models.MediaPart, error)
	TouchPart(id int64, size int64, mtime time.Time) error
	Create(m *models.MediaItem) error
	// GetByGroupKey finds the sibling MediaItem a multi-part file (CD1/CD2,
	// PT1/PT2) attaches to, if an earlier part already created one (§3).
	GetByGroupKey(metadataItemID int64, groupKey string) (*models.MediaItem, error)
}

type ScanStore interface {
	SaveCheckpoint(scanID int64, cp *models.ScanCheckpoint) error
	SetState(scanID int64, state models.ScanState) error
	AppendError(scanID int64, msg string) error
}

// Pipeline runs one scan to completion: discovery, resolution, file
// analysis, and (via Refresher) agent fan-out + image selection, reporting
// progress through the job notification fabric.
type Pipeline struct {
	cfg       Config
	probe     *ffmpeg.FFprobe
	repos     Repositories
	refresher Refresher
	jobs      JobScheduler
	fabric    *notify.Fabric
}

func NewPipeline(cfg Config, probe *ffmpeg.FFprobe, repos Repositories, refresher Refresher, jobs JobScheduler, fabric *notify.Fabric) *Pipeline {
	return &Pipeline{cfg: cfg, probe: probe, repos: repos, refresher: refresher, jobs: jobs, fabric: fabric}
}

// Run executes a scan for one SectionLocation under the given LibraryScan
// record, checkpointing periodically and reporting progress via the
// notification fabric.
func (p *Pipeline) Run(ctx context.Context, scan *models.LibraryScan, sectionType models.LibrarySectionType, location models.SectionLocation) error {
	key := notify.Key{LibrarySectionID: scan.LibrarySectionID, JobType: notify.JobScan}
	total, err := CountEligible(location.RootPath, true)
	if err != nil {
		log.Printf("scan: count eligible files under %s: %v", location.RootPath, err)
		total = 0
	}
	p.fabric.StartJob(key, total)

	dedup := NewDedup(p.repos.MetadataLookup)
	defer dedup.Reset()

	events := make(chan FileEvent, p.cfg.ResolverWorkers*4)
	var dirCount int
	var mu sync.Mutex
	var processed, added int
	var resolveMu sync.Mutex

	walkErr := make(chan error, 1)
	go func() {
		walkErr <- Walk(location.RootPath, true, events, p.knownLookup(scan.LibrarySectionID), func(dir string) {
			mu.Lock()
			dirCount++
			n := dirCount
			mu.Unlock()
			if n%p.cfg.CheckpointEveryNDirs == 0 {
				resolveMu.Lock()
				files := processed
				resolveMu.Unlock()
				_ = p.repos.Scans.SaveCheckpoint(scan.ID, &models.ScanCheckpoint{ProcessedFiles: files})
			}
		})
	}()

	var wg sync.WaitGroup
	sem := make(chan struct{}, p.cfg.ResolverWorkers)

	var firstErr error
	for evt := range events {
		select {
		case <-ctx.Done():
			_ = p.repos.Scans.SetState(scan.ID, models.ScanCancelled)
			p.fabric.Fail(key, "cancelled")
			return ctx.Err()
		default:
		}

		wg.Add(1)
		sem <- struct{}{}
		go func(evt FileEvent) {
			defer wg.Done()
			defer func() { <-sem }()

			if err := p.resolveOne(ctx, scan, sectionType, evt, dedup); err != nil {
				log.Printf("scan: resolve %s: %v", evt.Path, err)
				_ = p.repos.Scans.AppendError(scan.ID, fmt.Sprintf("%s: %v", evt.Path, err))
				resolveMu.Lock()
				if firstErr == nil {
					firstErr = err
				}
				resolveMu.Unlock()
				return
			}

			resolveMu.Lock()
			processed++
			if evt.Kind == EventAdded {
				added++
			}
			n := processed
			resolveMu.Unlock()
			p.fabric.ReportProgress(key, n, 0)
		}(evt)
	}
	wg.Wait()

	if err := <-walkErr; err != nil {
		_ = p.repos.Scans.SetState(scan.ID, models.ScanFailed)
		p.fabric.Fail(key, err.Error())
		return fmt.Errorf("scan: walk %s: %w", location.RootPath, err)
	}

	_ = p.repos.Scans.SetState(scan.ID, models.ScanCompleted)
	p.fabric.Complete(key)
	return nil
}

func (p *Pipeline) knownLookup(sectionID int64) KnownLookup {
	return func(path string) (KnownFile, bool) {
		part, err := p.repos.Media.GetPartByPath(sectionID, path)
		if err != nil || part == nil {
			return KnownFile{}, false
		}
		return KnownFile{Size: part.Size, ModTime: part.MtimeSeen.Unix()}, true
	}
}

// resolveOne handles a single discovered file end to end: group it into a
// candidate item via the dedup service, analyze it, persist it, and kick off
// the refresh orchestrator unless this was a no-op "seen" event.
func (p *Pipeline) resolveOne(ctx context.Context, scan *models.LibraryScan, sectionType models.LibrarySectionType, evt FileEvent, dedup *Dedup) error {
	if evt.Kind == EventSeen {
		return nil
	}

	part, err := p.repos.Media.GetPartByPath(scan.LibrarySectionID, evt.Path)
	if err == nil && part != nil {
		return p.repos.Media.TouchPart(part.ID, evt.Size, time.Unix(evt.ModTime, 0))
	}

	parsed := ParseFilename(evt.Name, sectionType)
	var extra models.ExtraType
	switch sectionType {
	case models.SectionMovies, models.SectionTVShows, models.SectionHomeVideos, models.SectionMusicVideos:
		// Bonus material resolves against its owning feature's name so the
		// extra's MediaItem lands under the feature's MetadataItem.
		if kind, owner := ClassifyExtra(evt.Path); kind != "" && owner != "" {
			extra = kind
			parsed = ParseFilename(owner, sectionType)
		}
	}
	externalIDs := map[string]string{}
	if parsed.ExternalID != "" {
		provider := strings.SplitN(parsed.ExternalID, "-", 2)[0]
		externalIDs[provider] = parsed.ExternalID
	}

	key := DedupKey{
		MetadataType: metadataTypeFor(sectionType),
		SectionID:    scan.LibrarySectionID,
		ExternalID:   parsed.ExternalID,
		Title:        parsed.Title,
	}
	if parsed.Year != nil {
		key.Year = *parsed.Year
	}
	item, err := dedup.Resolve(key, externalIDs, p.repos.MetadataCreate)
	if err != nil {
		return fmt.Errorf("resolve metadata item: %w", err)
	}

	groupKey := parsed.GroupKey(sectionType)
	var mediaItem *models.MediaItem
	if parsed.IsMultiPart() && extra == "" {
		if existing, gerr := p.repos.Media.GetByGroupKey(item.ID, string(groupKey)); gerr == nil && existing != nil {
			mediaItem = existing
		}
	}
	if mediaItem == nil {
		mediaItem = &models.MediaItem{MetadataItemID: item.ID, ExtraType: extra}
		if parsed.IsMultiPart() && extra == "" {
			mediaItem.GroupKey = string(groupKey)
		}
		if p.probe != nil {
			if err := Analyze(p.probe, evt.Path, mediaItem); err != nil {
				log.Printf("scan: analyze %s failed, continuing with filename metadata only: %v", evt.Path, err)
			}
		}
		if err := p.repos.Media.Create(mediaItem); err != nil {
			return fmt.Errorf("create media item: %w", err)
		}
	}

	newPart := &models.MediaPart{
		MediaItemID:  mediaItem.ID,
		SectionID:    scan.LibrarySectionID,
		PartIndex:    0,
		AbsolutePath: evt.Path,
		Size:         evt.Size,
		MtimeSeen:    time.Unix(evt.ModTime, 0),
	}
	if parsed.PartNumber != nil {
		newPart.PartIndex = *parsed.PartNumber
	}
	if err := p.repos.Media.CreatePart(newPart); err != nil {
		return fmt.Errorf("create media part: %w", err)
	}

	if p.jobs != nil {
		if err := p.jobs.ScheduleFileAnalysis(mediaItem.ID, newPart.PartIndex, evt.Path); err != nil {
			log.Printf("scan: schedule file analysis for %s: %v", evt.Path, err)
		}
	}
	if p.refresher != nil {
		if err := p.refresher.Refresh(ctx, item, RefreshOptions{SkipAnalysis: true}); err != nil {
			log.Printf("scan: refresh metadata for %s: %v", item.UUID, err)
		}
	}
	return nil
}

func metadataTypeFor(t models.LibrarySectionType) models.MetadataType {
	switch t {
	case models.SectionMovies, models.SectionHomeVideos, models.SectionMusicVideos:
		return models.MetadataTypeMovie
	case models.SectionTVShows:
		return models.MetadataTypeEpisode
	case models.SectionMusic:
		return models.MetadataTypeTrack
	case models.SectionAudiobooks, models.SectionPodcasts:
		return models.MetadataTypeTrack
	default:
		return models.MetadataTypeMovie
	}
}
