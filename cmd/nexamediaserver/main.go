package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/nexamediaserver/server/internal/api"
	"github.com/nexamediaserver/server/internal/auth"
	"github.com/nexamediaserver/server/internal/bif"
	"github.com/nexamediaserver/server/internal/config"
	"github.com/nexamediaserver/server/internal/db"
	"github.com/nexamediaserver/server/internal/ffmpeg"
	"github.com/nexamediaserver/server/internal/gopindex"
	"github.com/nexamediaserver/server/internal/hub"
	"github.com/nexamediaserver/server/internal/jobs"
	"github.com/nexamediaserver/server/internal/metadata"
	"github.com/nexamediaserver/server/internal/models"
	"github.com/nexamediaserver/server/internal/notify"
	"github.com/nexamediaserver/server/internal/paths"
	"github.com/nexamediaserver/server/internal/playback"
	"github.com/nexamediaserver/server/internal/playlist"
	"github.com/nexamediaserver/server/internal/repository"
	"github.com/nexamediaserver/server/internal/scan"
	"github.com/nexamediaserver/server/internal/scheduler"
	"github.com/nexamediaserver/server/internal/transcode"
	"github.com/nexamediaserver/server/internal/version"
	"github.com/nexamediaserver/server/internal/watcher"
)

const bannerArt = `
  _   _
 | \ | | _____  ____ _
 |  \| |/ _ \ \/ / _' |
 | |\  |  __/>  < (_| |
 |_| \_|\___/_/\_\__,_|
`

func main() {
	fmt.Println(bannerArt)
	v := version.Load()
	fmt.Printf("  Nexa Media Server %s\n\n", v.Version)

	cfg := config.Load()

	database, err := db.Connect(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("connect database: %v", err)
	}
	defer database.Close()

	p := paths.New(cfg.DataDir, cfg.CacheDir, cfg.MediaDir)
	if err := p.Ensure(); err != nil {
		log.Fatalf("ensure data directories: %v", err)
	}
	pathRoots := []*paths.Paths{p}

	settings := config.NewSettings(database)
	if err := settings.Load(); err != nil {
		log.Fatalf("load settings: %v", err)
	}

	capabilities, err := ffmpeg.Probe(cfg.FFmpegPath)
	if err != nil {
		log.Fatalf("probe ffmpeg: %v", err)
	}
	ffprobe := ffmpeg.NewFFprobe(cfg.FFprobePath)

	// Repositories
	sections := repository.NewLibrarySectionRepository(database)
	directories := repository.NewDirectoryRepository(database)
	media := repository.NewMediaRepository(database)
	metadataRepo := repository.NewMetadataRepository(database)
	scans := repository.NewScanRepository(database)
	playbackRepo := repository.NewPlaybackRepository(database)
	transcodes := repository.NewTranscodeRepository(database)
	playlists := repository.NewPlaylistRepository(database)
	hubs := repository.NewHubRepository(database)
	detailFields := repository.NewDetailFieldRepository(database)

	// Job notification fabric + websocket hub (the hub is wired as the
	// fabric's publisher once api.NewServer constructs it).
	fabric := notify.New(7, notify.LogPublisher{})

	// Job queue + handlers
	jobQueue := jobs.NewQueue(cfg.RedisAddr)
	jobScheduler := jobs.NewScheduler(jobQueue)
	microScanDispatcher := jobs.NewMicroScanDispatcher(jobQueue)

	// Metadata agents, credits, refresh orchestrator
	primaryMediaPath := func(item *models.MetadataItem) string {
		mediaItems, err := media.ListByMetadataItem(item.ID)
		if err != nil || len(mediaItems) == 0 {
			return ""
		}
		parts, err := media.ListParts(mediaItems[0].ID)
		if err != nil || len(parts) == 0 {
			return ""
		}
		return parts[0].AbsolutePath
	}
	sectionRoot := func(sectionID int64) string {
		section, err := sections.GetByID(sectionID)
		if err != nil || len(section.Locations) == 0 {
			return ""
		}
		return section.Locations[0].RootPath
	}

	agents := metadata.NewRegistry()
	agents.Register(metadata.NewSidecarAgent(sectionRoot, primaryMediaPath))
	agents.Register(metadata.NewLocalArtworkAgent(primaryMediaPath))
	credits := metadata.NewCreditService(metadataRepo)
	orchestrator := metadata.NewOrchestrator(agents, metadataRepo, media, sections, credits, jobScheduler)

	gopStore := gopindex.NewStore(pathRoots)
	bifStore := bif.NewStore(pathRoots)

	scanRepos := scan.Repositories{
		Directories:    directories,
		Media:          media,
		MetadataLookup: newMetadataLookup(metadataRepo),
		MetadataCreate: newMetadataFactory(metadataRepo),
		Scans:          scans,
	}
	scanPipeline := scan.NewPipeline(scan.DefaultConfig(), ffprobe, scanRepos, orchestrator, jobScheduler, fabric)

	var watchLocations []watcher.Location
	allSections, err := sections.List()
	if err != nil {
		log.Fatalf("list library sections: %v", err)
	}
	for _, section := range allSections {
		locs, err := sections.ListLocations(section.ID)
		if err != nil {
			log.Fatalf("list section locations: %v", err)
		}
		for _, loc := range locs {
			watchLocations = append(watchLocations, watcher.Location{
				LibrarySectionID: section.ID,
				RootPath:         loc.RootPath,
			})
		}
	}
	fsWatcher, err := watcher.New(microScanDispatcher, watchLocations, watcher.DefaultWatchDepth, watcher.DefaultPollInterval)
	if err != nil {
		log.Fatalf("create watcher: %v", err)
	}

	maxBitrate := func() int64 { return config.Get(settings, "max_bitrate", int64(20_000_000)) }
	maxTranscodes := func() int { return int(config.Get(settings, "max_transcodes", int64(cfg.MaxTranscodes))) }

	transcodeMg := transcode.New(transcodes, media, fabric, maxTranscodes)
	playlistSvc := playlist.New(playlists, api.NewRepoItemSource(metadataRepo))
	playbackOrch := playback.New(playbackRepo, transcodes, metadataRepo, media, gopStore, p, playlistSvc, transcodeMg, maxBitrate)

	hubSvc := hub.New(hubs, detailFields, metadataRepo, database)

	authMiddleware := auth.NewMiddleware(database)

	jobQueue.RegisterHandler(jobs.TaskScanLibrary, &jobs.ScanLibraryHandler{Pipeline: scanPipeline, Sections: sections, Scans: scans})
	jobQueue.RegisterHandler(jobs.TaskMicroScan, &jobs.MicroScanHandler{Pipeline: scanPipeline, Sections: sections, Scans: scans})
	jobQueue.RegisterHandler(jobs.TaskFileAnalysis, &jobs.FileAnalysisHandler{Probe: ffprobe, Media: media, Metadata: metadataRepo, Gop: gopStore})
	jobQueue.RegisterHandler(jobs.TaskTrickplay, &jobs.TrickplayHandler{FFmpegPath: cfg.FFmpegPath, Bif: bifStore, ThumbIntervalS: 10})
	jobQueue.RegisterHandler(jobs.TaskMetadataRefresh, &jobs.MetadataRefreshHandler{Orchestrator: orchestrator, Metadata: metadataRepo})

	deps := api.Deps{
		Config:   cfg,
		DB:       database,
		Settings: settings,
		Paths:    p,

		Sections:     sections,
		Directories:  directories,
		Media:        media,
		Metadata:     metadataRepo,
		Scans:        scans,
		PlaybackRepo: playbackRepo,
		Transcodes:   transcodes,
		Playlists:    playlists,
		Hubs:         hubs,
		DetailFields: detailFields,

		Capabilities: capabilities,
		FFprobe:      ffprobe,

		ScanPipeline: scanPipeline,
		Watcher:      fsWatcher,
		Agents:       agents,
		Orchestrator: orchestrator,
		Credits:      credits,

		Playback:    playbackOrch,
		TranscodeMg: transcodeMg,
		PlaylistSvc: playlistSvc,
		HubSvc:      hubSvc,

		Gop: gopStore,
		Bif: bifStore,

		Jobs:   jobQueue,
		Fabric: fabric,

		AuthMiddleware: authMiddleware,
		Version:        v,
	}

	server := api.NewServer(deps)
	fabric.SetPublisher(server.WSHub())

	fabric.Start()
	defer fabric.Stop()

	go func() {
		if err := jobQueue.Start(context.Background()); err != nil {
			log.Printf("job queue worker stopped: %v", err)
		}
	}()
	defer jobQueue.Stop()

	fsWatcher.Start()
	defer fsWatcher.Stop()

	scanScheduler := scheduler.New(sections, fsWatcher, "@every 1m", func(sectionID int64) {
		section, err := sections.GetByID(sectionID)
		if err != nil {
			log.Printf("[scheduler] load section %d: %v", sectionID, err)
			return
		}
		for _, loc := range section.Locations {
			sc := &models.LibraryScan{LibrarySectionID: sectionID, State: models.ScanRunning}
			if err := scans.Create(sc); err != nil {
				log.Printf("[scheduler] create scan record: %v", err)
				continue
			}
			_, err := jobQueue.EnqueueUnique(jobs.TaskScanLibrary, jobs.ScanLibraryPayload{
				ScanUUID: sc.UUID, SectionID: sectionID, RootPath: loc.RootPath,
			}, "scheduled-scan:"+sc.UUID.String())
			if err != nil {
				log.Printf("[scheduler] enqueue scan: %v", err)
			}
		}
		fsWatcher.ClearRequiresFullRescan(sectionID)
	})
	scanScheduler.Start()
	defer scanScheduler.Stop()

	go func() {
		ticker := time.NewTicker(time.Minute)
		defer ticker.Stop()
		for range ticker.C {
			if err := playbackOrch.ReapExpired(); err != nil {
				log.Printf("[playback] reap expired sessions: %v", err)
			}
			if err := transcodeMg.ReapIdle(transcode.DefaultIdleTimeout); err != nil {
				log.Printf("[transcode] reap idle jobs: %v", err)
			}
		}
	}()

	addr := fmt.Sprintf(":%d", cfg.Port)
	log.Printf("listening on %s", addr)
	if err := http.ListenAndServe(addr, server); err != nil {
		log.Fatalf("server failed: %v", err)
	}
}

// newMetadataLookup adapts MetadataRepository.FindByExternalID to
// scan.Lookup, trying each of the candidate external ids in turn.
func newMetadataLookup(repo *repository.MetadataRepository) scan.Lookup {
	return func(sectionID int64, metadataType models.MetadataType, externalIDs map[string]string) (*models.MetadataItem, bool, error) {
		for provider, externalID := range externalIDs {
			item, err := repo.FindByExternalID(sectionID, metadataType, provider, externalID)
			if err == nil {
				return item, true, nil
			}
			if !errors.Is(err, repository.ErrNotFound) {
				return nil, false, err
			}
		}
		return nil, false, nil
	}
}

// newMetadataFactory adapts MetadataRepository.Create to scan.Factory.
func newMetadataFactory(repo *repository.MetadataRepository) scan.Factory {
	return func(key scan.DedupKey) (*models.MetadataItem, error) {
		item := &models.MetadataItem{
			LibrarySectionID: key.SectionID,
			Type:             key.MetadataType,
			Title:            key.Title,
			SortTitle:        key.Title,
			Year:             key.Year,
		}
		if key.Provider != "" && key.ExternalID != "" {
			item.ExternalIDs = map[string]string{key.Provider: key.ExternalID}
		}
		if err := repo.Create(item); err != nil {
			return nil, err
		}
		return item, nil
	}
}
