package api

import (
	"database/sql"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/nexamediaserver/server/internal/auth"
	"github.com/nexamediaserver/server/internal/bif"
	"github.com/nexamediaserver/server/internal/config"
	"github.com/nexamediaserver/server/internal/ffmpeg"
	"github.com/nexamediaserver/server/internal/gopindex"
	"github.com/nexamediaserver/server/internal/hub"
	"github.com/nexamediaserver/server/internal/jobs"
	"github.com/nexamediaserver/server/internal/metadata"
	"github.com/nexamediaserver/server/internal/notify"
	"github.com/nexamediaserver/server/internal/paths"
	"github.com/nexamediaserver/server/internal/playback"
	"github.com/nexamediaserver/server/internal/playlist"
	"github.com/nexamediaserver/server/internal/repository"
	"github.com/nexamediaserver/server/internal/scan"
	"github.com/nexamediaserver/server/internal/transcode"
	"github.com/nexamediaserver/server/internal/version"
	"github.com/nexamediaserver/server/internal/watcher"
)

// Deps bundles every service the HTTP layer calls into. main wires one of
// these at startup; Server itself only ever depends on the interfaces /
// concrete services it needs to dispatch a request, never on how they were
// constructed.
type Deps struct {
	Config   *config.Config
	DB       *sql.DB
	Settings *config.Settings
	Paths    *paths.Paths

	Sections     *repository.LibrarySectionRepository
	Directories  *repository.DirectoryRepository
	Media        *repository.MediaRepository
	Metadata     *repository.MetadataRepository
	Scans        *repository.ScanRepository
	PlaybackRepo *repository.PlaybackRepository
	Transcodes   *repository.TranscodeRepository
	Playlists    *repository.PlaylistRepository
	Hubs         *repository.HubRepository
	DetailFields *repository.DetailFieldRepository

	Capabilities *ffmpeg.Capabilities
	FFprobe      *ffmpeg.FFprobe

	ScanPipeline *scan.Pipeline
	Watcher      *watcher.Watcher
	Agents       *metadata.Registry
	Orchestrator *metadata.Orchestrator
	Credits      *metadata.CreditService

	Playback    *playback.Orchestrator
	TranscodeMg *transcode.Manager
	PlaylistSvc *playlist.Service
	HubSvc      *hub.Service

	Gop *gopindex.Store
	Bif *bif.Store

	Jobs   *jobs.Queue
	Fabric *notify.Fabric

	AuthMiddleware *auth.Middleware
	Version        version.Info
}

// Server is the HTTP surface: §6 operations/queries/subscriptions plus the
// streaming endpoints, routed with chi the way the rest of the corpus wires
// its HTTP layer.
type Server struct {
	deps   Deps
	db     *sql.DB
	wsHub  *WSHub
	router chi.Router
}

func NewServer(deps Deps) *Server {
	s := &Server{
		deps:  deps,
		db:    deps.DB,
		wsHub: NewWSHub(),
	}
	s.router = s.buildRouter()
	return s
}

func (s *Server) WSHub() *WSHub { return s.wsHub }

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) buildRouter() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Get("/health", s.handleHealth)
	r.Get("/api/v1/version", s.handleVersion)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(s.deps.AuthMiddleware.RequireAuth)

		r.Route("/libraries", func(r chi.Router) {
			r.Get("/", s.handleListLibraries)
			r.Post("/", s.handleAddLibrary)
			r.Delete("/{sectionID}", s.handleRemoveLibrary)
			r.Get("/{sectionID}/children", s.handleLibraryChildren)
		})

		r.Route("/scans", func(r chi.Router) {
			r.Post("/", s.handleStartScan)
			r.Post("/{scanUUID}/cancel", s.handleCancelScan)
			r.Post("/{scanUUID}/resume", s.handleResumeScan)
		})

		r.Route("/items/{itemUUID}", func(r chi.Router) {
			r.Get("/", s.handleGetItem)
			r.Post("/refresh", s.handleRefreshMetadata)
			r.Post("/analyze", s.handleAnalyzeItem)
			r.Post("/promote", s.handlePromoteItem)
			r.Post("/unpromote", s.handleUnpromoteItem)
		})

		r.Route("/hubs", func(r chi.Router) {
			r.Get("/", s.handleGetHubs)
			r.Put("/config", s.handleSaveHubConfig)
		})

		r.Get("/detail-fields", s.handleGetDetailFields)

		r.Route("/playback", func(r chi.Router) {
			r.Post("/capability", s.handleUpsertCapability)
			r.Post("/start", s.handleStartPlayback)
			r.Post("/{sessionUUID}/heartbeat", s.handleHeartbeat)
			r.Post("/{sessionUUID}/decide", s.handleDecide)
			r.Post("/{sessionUUID}/seek", s.handleSeek)
			r.Post("/{sessionUUID}/resume", s.handleResumePlayback)
			r.Post("/{sessionUUID}/stop", s.handleStopPlayback)
		})

		r.Route("/playlists", func(r chi.Router) {
			r.Post("/", s.handleCreatePlaylist)
			r.Get("/{playlistUUID}/chunk", s.handleGetPlaylistChunk)
			r.Post("/{playlistUUID}/next", s.handlePlaylistNext)
			r.Post("/{playlistUUID}/previous", s.handlePlaylistPrevious)
			r.Post("/{playlistUUID}/jump", s.handlePlaylistJump)
			r.Post("/{playlistUUID}/shuffle", s.handlePlaylistShuffle)
			r.Post("/{playlistUUID}/repeat", s.handlePlaylistRepeat)
		})

		r.Route("/settings", func(r chi.Router) {
			r.Get("/", s.handleGetSettings)
			r.Patch("/", s.handleUpdateSettings)
		})

		r.Get("/filesystem/browse", s.handleBrowseDirectory)
		r.Get("/jobs", s.handleListJobNotifications)
		r.Get("/transcodes", s.handleListTranscodes)

		r.Route("/stream", func(r chi.Router) {
			r.Get("/direct/{mediaPartID}", s.handleDirectPlay)
			r.Get("/remux/{mediaPartID}", s.handleDirectStream)
			r.Get("/transcode/{jobUUID}/manifest.mpd", s.handleTranscodeManifest)
			r.Get("/transcode/{jobUUID}/{segment}", s.handleTranscodeSegment)
		})

		r.Route("/subtitles", func(r chi.Router) {
			r.Get("/{mediaPartID}/{streamIndex}", s.handleGetSubtitle)
		})

		r.Get("/ws", s.handleWebSocket)
	})

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.deps.Version)
}
