// Package models defines the entities of the Nexa Media Server data model:
// library sections, the directory/media-item/metadata-item tree, scans,
// job notifications, playback sessions, transcode jobs, and playlists.
package models

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ──────────────────── Library Section ────────────────────

type MetadataType string

const (
	MetadataTypeMovie      MetadataType = "movie"
	MetadataTypeShow       MetadataType = "show"
	MetadataTypeSeason     MetadataType = "season"
	MetadataTypeEpisode    MetadataType = "episode"
	MetadataTypeAlbum      MetadataType = "album_release"
	MetadataTypeTrack      MetadataType = "track"
	MetadataTypePerson     MetadataType = "person"
	MetadataTypeGroup      MetadataType = "group"
	MetadataTypeCollection MetadataType = "collection"
	MetadataTypePhoto      MetadataType = "photo"
)

type LibrarySectionType string

const (
	SectionMovies      LibrarySectionType = "movies"
	SectionTVShows     LibrarySectionType = "tv_shows"
	SectionMusicVideos LibrarySectionType = "music_videos"
	SectionHomeVideos  LibrarySectionType = "home_videos"
	SectionMusic       LibrarySectionType = "music"
	SectionPodcasts    LibrarySectionType = "podcasts"
	SectionAudiobooks  LibrarySectionType = "audiobooks"
	SectionBooks       LibrarySectionType = "books"
	SectionComics      LibrarySectionType = "comics"
	SectionManga       LibrarySectionType = "manga"
	SectionMagazines   LibrarySectionType = "magazines"
	SectionPhotos      LibrarySectionType = "photos"
	SectionPictures    LibrarySectionType = "pictures"
	SectionGames       LibrarySectionType = "games"
)

// LibrarySectionSettings holds per-section configuration that the scan
// pipeline and agent fan-out consult.
type LibrarySectionSettings struct {
	PreferredMetadataLanguage string            `json:"preferredMetadataLanguage,omitempty"`
	PreferredAudioLanguage    string            `json:"preferredAudioLanguage,omitempty"`
	PreferredSubtitleLanguage string            `json:"preferredSubtitleLanguage,omitempty"`
	EpisodeSortOrder          string            `json:"episodeSortOrder,omitempty"` // "aired" | "dvd" | "absolute"
	AgentOrder                []string          `json:"agentOrder,omitempty"`
	AgentOverrides            map[string]string `json:"agentOverrides,omitempty"`
	HideSingleSeason          bool              `json:"hideSingleSeason,omitempty"`
}

type SectionLocation struct {
	ID        int64     `json:"-" db:"id"`
	UUID      uuid.UUID `json:"uuid" db:"uuid"`
	SectionID int64     `json:"sectionId" db:"library_section_id"`
	RootPath  string    `json:"rootPath" db:"root_path"`
	CreatedAt time.Time `json:"createdAt" db:"created_at"`
}

type LibrarySection struct {
	ID        int64                  `json:"-" db:"id"`
	UUID      uuid.UUID              `json:"uuid" db:"uuid"`
	Name      string                 `json:"name" db:"name"`
	Type      LibrarySectionType     `json:"type" db:"type"`
	Settings  LibrarySectionSettings `json:"settings" db:"settings"`
	Locations []SectionLocation      `json:"locations,omitempty" db:"-"`
	CreatedAt time.Time              `json:"createdAt" db:"created_at"`
	UpdatedAt time.Time              `json:"updatedAt" db:"updated_at"`
}

// ──────────────────── Directory / MediaPart / MediaItem ────────────────────

type Directory struct {
	ID           int64      `json:"-" db:"id"`
	SectionID    int64      `json:"sectionId" db:"library_section_id"`
	Path         string     `json:"path" db:"path"`
	ParentID     *int64     `json:"parentId,omitempty" db:"parent_id"`
	MtimeSeen    time.Time  `json:"mtimeSeen" db:"mtime_seen"`
	MissingSince *time.Time `json:"missingSince,omitempty" db:"missing_since"`
}

// MediaItem is a physical playable unit: one file, or a multi-part file set.
// Technical characteristics are authoritative from FFprobe, never overridden
// by browser-reported values.
// ExtraType classifies a MediaItem that is bonus material rather than the
// main feature; empty means main feature.
type ExtraType string

const (
	ExtraTrailer         ExtraType = "trailer"
	ExtraFeaturette      ExtraType = "featurette"
	ExtraBehindTheScenes ExtraType = "behind_the_scenes"
	ExtraDeletedScene    ExtraType = "deleted_scene"
	ExtraSample          ExtraType = "sample"
	ExtraInterview       ExtraType = "interview"
)

type MediaItem struct {
	ID              int64            `json:"-" db:"id"`
	UUID            uuid.UUID        `json:"uuid" db:"uuid"`
	MetadataItemID  int64            `json:"metadataItemId" db:"metadata_item_id"`
	Container       string           `json:"container" db:"container"`
	DurationMs      int64            `json:"durationMs" db:"duration_ms"`
	Bitrate         int64            `json:"bitrate" db:"bitrate"`
	Width           int              `json:"width" db:"width"`
	Height          int              `json:"height" db:"height"`
	VideoCodec      string           `json:"videoCodec" db:"video_codec"`
	AudioCodec      string           `json:"audioCodec" db:"audio_codec"`
	HDRFormat       string           `json:"hdrFormat,omitempty" db:"hdr_format"`
	Rotation        int              `json:"rotation" db:"rotation"`
	GroupKey        string           `json:"-" db:"group_key"`
	ExtraType       ExtraType        `json:"extraType,omitempty" db:"extra_type"`
	AudioStreams    []AudioStream    `json:"audioStreams" db:"-"`
	SubtitleStreams []SubtitleStream `json:"subtitleStreams" db:"-"`
	Parts           []MediaPart      `json:"parts" db:"-"`
	CreatedAt       time.Time        `json:"createdAt" db:"created_at"`
	UpdatedAt       time.Time        `json:"updatedAt" db:"updated_at"`
}

type AudioStream struct {
	StreamIndex   int    `json:"streamIndex"`
	Codec         string `json:"codec"`
	Channels      int    `json:"channels"`
	ChannelLayout string `json:"channelLayout"`
	Language      string `json:"language,omitempty"`
	Title         string `json:"title,omitempty"`
	IsDefault     bool   `json:"isDefault"`
}

type SubtitleSource string

const (
	SubtitleEmbedded SubtitleSource = "embedded"
	SubtitleSidecar  SubtitleSource = "sidecar"
)

type SubtitleStream struct {
	StreamIndex *int           `json:"streamIndex,omitempty"`
	FilePath    string         `json:"filePath,omitempty"`
	Source      SubtitleSource `json:"source"`
	Format      string         `json:"format"`
	Language    string         `json:"language,omitempty"`
	Title       string         `json:"title,omitempty"`
	IsForced    bool           `json:"isForced"`
	IsSDH       bool           `json:"isSdh"`
	IsDefault   bool           `json:"isDefault"`
}

// MediaPart is a real file on disk: absolute path, size, mtime, part index
// within its owning MediaItem. Paths are unique within a section.
type MediaPart struct {
	ID           int64      `json:"-" db:"id"`
	MediaItemID  int64      `json:"mediaItemId" db:"media_item_id"`
	SectionID    int64      `json:"sectionId" db:"library_section_id"`
	PartIndex    int        `json:"partIndex" db:"part_index"`
	AbsolutePath string     `json:"absolutePath" db:"absolute_path"`
	Size         int64      `json:"size" db:"size"`
	MtimeSeen    time.Time  `json:"mtimeSeen" db:"mtime_seen"`
	MissingSince *time.Time `json:"missingSince,omitempty" db:"missing_since"`
}

// ──────────────────── MetadataItem ────────────────────

// LockableFields is the closed vocabulary of field names that can appear in
// MetadataItem.LockedFields.
var LockableFields = map[string]bool{
	"title": true, "original_title": true, "sort_title": true, "year": true,
	"release_date": true, "summary": true, "tagline": true, "studio": true,
	"content_rating": true, "thumb_uri": true,
}

type MetadataItem struct {
	ID               int64             `json:"-" db:"id"`
	UUID             uuid.UUID         `json:"uuid" db:"uuid"`
	LibrarySectionID int64             `json:"librarySectionId" db:"library_section_id"`
	ParentID         *int64            `json:"parentId,omitempty" db:"parent_id"`
	Type             MetadataType      `json:"type" db:"type"`
	Title            string            `json:"title" db:"title"`
	OriginalTitle    string            `json:"originalTitle,omitempty" db:"original_title"`
	SortTitle        string            `json:"sortTitle,omitempty" db:"sort_title"`
	Year             int               `json:"year,omitempty" db:"year"`
	ReleaseDate      *time.Time        `json:"releaseDate,omitempty" db:"release_date"`
	Summary          string            `json:"summary,omitempty" db:"summary"`
	Tagline          string            `json:"tagline,omitempty" db:"tagline"`
	Studio           string            `json:"studio,omitempty" db:"studio"`
	ContentRating    string            `json:"contentRating,omitempty" db:"content_rating"`
	DurationMs       int64             `json:"durationMs,omitempty" db:"duration_ms"`
	ViewCount        int               `json:"viewCount" db:"view_count"`
	ViewOffsetMs     int64             `json:"viewOffsetMs" db:"view_offset_ms"`
	ThumbURI         string            `json:"thumbUri,omitempty" db:"thumb_uri"`
	ThumbHash        string            `json:"thumbHash,omitempty" db:"thumb_hash"`
	IsPromoted       bool              `json:"isPromoted" db:"is_promoted"`
	ExternalIDs      map[string]string `json:"externalIds" db:"external_ids"`
	LockedFields     map[string]bool   `json:"lockedFields" db:"locked_fields"`
	CreatedAt        time.Time         `json:"createdAt" db:"created_at"`
	UpdatedAt        time.Time         `json:"updatedAt" db:"updated_at"`
}

// Validate enforces the invariants named in the data model for a single item.
func (m *MetadataItem) Validate() error {
	if m.DurationMs > 0 && m.ViewOffsetMs > m.DurationMs {
		return ErrViewOffsetExceedsDuration
	}
	return nil
}

// IsLocked reports whether field is in the item's locked-field set and thus
// must be skipped by a refresh unless explicitly overridden.
func (m *MetadataItem) IsLocked(field string) bool {
	return m.LockedFields != nil && m.LockedFields[field]
}

// ──────────────────── MetadataRelation ────────────────────

type RelationType string

const (
	RelationActor               RelationType = "actor"
	RelationDirector            RelationType = "director"
	RelationWriter              RelationType = "writer"
	RelationProducer            RelationType = "producer"
	RelationGuest               RelationType = "guest"
	RelationBandMember          RelationType = "band_member"
	RelationComposer            RelationType = "composer"
	RelationBelongsToCollection RelationType = "belongs_to_collection"
)

type MetadataRelation struct {
	ID         int64        `json:"-" db:"id"`
	FromItemID int64        `json:"fromItemId" db:"from_item_id"`
	ToItemID   int64        `json:"toItemId" db:"to_item_id"`
	Type       RelationType `json:"type" db:"type"`
	Order      int          `json:"order" db:"sort_order"`
	Role       string       `json:"role,omitempty" db:"role"`
}

// ──────────────────── Agent / Provider registry ────────────────────

type AgentCategory string

const (
	AgentEmbedded AgentCategory = "embedded"
	AgentLocal    AgentCategory = "local"
	AgentRemote   AgentCategory = "remote"
	AgentSidecar  AgentCategory = "sidecar"
)

// AgentDescriptor describes an available metadata agent, image provider, or
// sidecar parser. The orchestrator dispatches by this capability set, not by
// inheritance.
type AgentDescriptor struct {
	Name               string
	Category           AgentCategory
	ApplicableTypes    []MetadataType
	DisplayName        string
	Description        string
	ProvidesImages     bool
	ProvidesSidecars   bool
	RateLimitPerSecond float64
}

// ──────────────────── Custom fields / detail layout / hubs ────────────────────

type FieldWidget string

const (
	WidgetText    FieldWidget = "text"
	WidgetNumber  FieldWidget = "number"
	WidgetBoolean FieldWidget = "boolean"
	WidgetDate    FieldWidget = "date"
	WidgetLink    FieldWidget = "link"
	WidgetList    FieldWidget = "list"
	WidgetBadge   FieldWidget = "badge"
)

type CustomFieldDefinition struct {
	ID              int64          `db:"id"`
	Key             string         `db:"key"`
	Label           string         `db:"label"`
	Widget          FieldWidget    `db:"widget"`
	ApplicableTypes []MetadataType `db:"-"`
	SortOrder       int            `db:"sort_order"`
	Enabled         bool           `db:"enabled"`
}

type FieldGroupLayout string

const (
	LayoutVertical   FieldGroupLayout = "vertical"
	LayoutHorizontal FieldGroupLayout = "horizontal"
	LayoutGrid       FieldGroupLayout = "grid"
)

type FieldGroup struct {
	ID          int64            `db:"id"`
	Key         string           `db:"key"`
	Label       string           `db:"label"`
	LayoutType  FieldGroupLayout `db:"layout_type"`
	Collapsible bool             `db:"collapsible"`
	SortOrder   int              `db:"sort_order"`
}

type DetailFieldConfiguration struct {
	ID                    int64             `db:"id"`
	MetadataType          MetadataType      `db:"metadata_type"`
	LibrarySectionID      *int64            `db:"library_section_id"`
	EnabledBuiltinTypes   []string          `db:"enabled_builtin_types"`
	DisabledCustomKeys    []string          `db:"disabled_custom_keys"`
	Groups                []FieldGroup      `db:"-"`
	FieldGroupAssignments map[string]string `db:"-"` // field key -> group key
}

type HubContext string

const (
	HubContextHome            HubContext = "home"
	HubContextLibraryDiscover HubContext = "library_discover"
	HubContextItemDetail      HubContext = "item_detail"
)

type HubConfiguration struct {
	ID               int64         `db:"id"`
	Context          HubContext    `db:"context"`
	LibrarySectionID *int64        `db:"library_section_id"`
	MetadataType     *MetadataType `db:"metadata_type"`
	EnabledHubTypes  []string      `db:"enabled_hub_types"`
	DisabledHubTypes []string      `db:"disabled_hub_types"`
	HiddenHubTypes   []string      `db:"hidden_hub_types"`
}

// ──────────────────── LibraryScan ────────────────────

type ScanState string

const (
	ScanQueued    ScanState = "queued"
	ScanRunning   ScanState = "running"
	ScanCompleted ScanState = "completed"
	ScanFailed    ScanState = "failed"
	ScanCancelled ScanState = "cancelled"
)

// ScanCheckpoint is the serialized resume state for an interrupted scan.
type ScanCheckpoint struct {
	CursorDirectoryID int64    `json:"cursorDirectoryId"`
	ProcessedFiles    int      `json:"processedFiles"`
	Added             int      `json:"added"`
	Modified          int      `json:"modified"`
	Removed           int      `json:"removed"`
	Errors            []string `json:"errors"`
}

type LibraryScan struct {
	ID               int64           `json:"-" db:"id"`
	UUID             uuid.UUID       `json:"uuid" db:"uuid"`
	LibrarySectionID int64           `json:"librarySectionId" db:"library_section_id"`
	StartedAt        time.Time       `json:"startedAt" db:"started_at"`
	FinishedAt       *time.Time      `json:"finishedAt,omitempty" db:"finished_at"`
	State            ScanState       `json:"state" db:"state"`
	Checkpoint       *ScanCheckpoint `json:"checkpoint,omitempty" db:"checkpoint"`
	TotalFiles       int             `json:"totalFiles" db:"total_files"`
	Errors           []string        `json:"errors,omitempty" db:"errors"`
}

// Resumable reports whether this scan can be picked up by a restarted
// process.
func (s *LibraryScan) Resumable() bool {
	return s.State == ScanRunning && s.Checkpoint != nil
}

// ──────────────────── JobNotificationEntry ────────────────────

type JobType string

const (
	JobScan            JobType = "scan"
	JobMetadataRefresh JobType = "metadata_refresh"
	JobImageGeneration JobType = "image_generation"
	JobTrickplay       JobType = "trickplay"
	JobTranscode       JobType = "transcode"
)

type JobStatus string

const (
	JobPending   JobStatus = "pending"
	JobRunning   JobStatus = "running"
	JobCompleted JobStatus = "completed"
	JobFailed    JobStatus = "failed"
)

type JobNotificationEntry struct {
	LibrarySectionID int64     `json:"librarySectionId"`
	Type             JobType   `json:"type"`
	Total            int       `json:"total"`
	Completed        int       `json:"completed"`
	Status           JobStatus `json:"status"`
	LastUpdate       time.Time `json:"lastUpdate"`
	ErrorMessage     string    `json:"errorMessage,omitempty"`
	Epoch            uint64    `json:"-"`
}

// ──────────────────── Playback ────────────────────

type PlaybackMode int

const (
	ModeDirectPlay   PlaybackMode = 0
	ModeDirectStream PlaybackMode = 1
	ModeTranscode    PlaybackMode = 2
)

func (m PlaybackMode) String() string {
	switch m {
	case ModeDirectPlay:
		return "DirectPlay"
	case ModeDirectStream:
		return "DirectStream"
	case ModeTranscode:
		return "Transcode"
	default:
		return "Unknown"
	}
}

// MarshalJSON always emits the numeric form (§6: "the spec fixes ... numeric-only
// on write").
func (m PlaybackMode) MarshalJSON() ([]byte, error) {
	return []byte(strconv.Itoa(int(m))), nil
}

// UnmarshalJSON accepts both the numeric and legacy string forms the source
// mixed in stream-plan JSON (§6, §9 design notes).
func (m *PlaybackMode) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	switch s {
	case "0", "DirectPlay", "directplay", "direct_play":
		*m = ModeDirectPlay
	case "1", "DirectStream", "directstream", "direct_stream":
		*m = ModeDirectStream
	case "2", "Transcode", "transcode":
		*m = ModeTranscode
	default:
		n, err := strconv.Atoi(s)
		if err != nil {
			return fmt.Errorf("models: invalid playback mode %q", s)
		}
		*m = PlaybackMode(n)
	}
	return nil
}

type StreamPlan struct {
	Mode         PlaybackMode `json:"mode"`
	MediaPartID  int64        `json:"mediaPartId"`
	ManifestURL  string       `json:"manifestUrl,omitempty"`
	RemuxURL     string       `json:"remuxUrl,omitempty"`
	PlaybackURL  string       `json:"playbackUrl"`
	TrickplayURL string       `json:"trickplayUrl,omitempty"`
}

type PlaybackState string

const (
	PlaybackPreparing PlaybackState = "preparing"
	PlaybackPlaying   PlaybackState = "playing"
	PlaybackPaused    PlaybackState = "paused"
	PlaybackCompleted PlaybackState = "completed"
	PlaybackStopped   PlaybackState = "stopped"
)

type PlaybackSession struct {
	ID                       int64         `json:"-" db:"id"`
	UUID                     uuid.UUID     `json:"uuid" db:"uuid"`
	UserID                   uuid.UUID     `json:"userId" db:"user_id"`
	MetadataItemID           int64         `json:"metadataItemId" db:"metadata_item_id"`
	CapabilityProfileVersion int64         `json:"capabilityProfileVersion" db:"capability_profile_version"`
	StreamPlan               StreamPlan    `json:"streamPlan" db:"stream_plan"`
	CreatedAt                time.Time     `json:"createdAt" db:"created_at"`
	LastHeartbeatAt          time.Time     `json:"lastHeartbeatAt" db:"last_heartbeat_at"`
	PlaylistGeneratorID      *uuid.UUID    `json:"playlistGeneratorId,omitempty" db:"playlist_generator_id"`
	PlayheadMs               int64         `json:"playheadMs" db:"playhead_ms"`
	State                    PlaybackState `json:"state" db:"state"`
}

// Expired reports whether the session's last heartbeat is older than ttl.
func (p *PlaybackSession) Expired(now time.Time, ttl time.Duration) bool {
	return now.Sub(p.LastHeartbeatAt) > ttl
}

// CapabilityProfile is a client-declared decoding/rendering capability set,
// version-tagged so stale stream plans can be detected.
type CapabilityProfile struct {
	UserID               uuid.UUID `json:"userId" db:"user_id"`
	Version              int64     `json:"version" db:"version"`
	SupportedContainers  []string  `json:"supportedContainers"`
	SupportedVideoCodecs []string  `json:"supportedVideoCodecs"`
	SupportedAudioCodecs []string  `json:"supportedAudioCodecs"`
	SupportsHDR          bool      `json:"supportsHdr"`
	MaxBitrate           int64     `json:"maxBitrate"`
	AllowRemuxing        bool      `json:"allowRemuxing"`
}

// ──────────────────── TranscodeJob ────────────────────

type Protocol string

const (
	ProtocolDASH Protocol = "dash"
	ProtocolHLS  Protocol = "hls"
)

type TranscodeState string

const (
	TranscodeQueued    TranscodeState = "queued"
	TranscodeStarting  TranscodeState = "starting"
	TranscodeRunning   TranscodeState = "running"
	TranscodeCompleted TranscodeState = "completed"
	TranscodeCancelled TranscodeState = "cancelled"
	TranscodeFailed    TranscodeState = "failed"
)

// Terminal reports whether the state permits no further transitions.
func (s TranscodeState) Terminal() bool {
	return s == TranscodeCompleted || s == TranscodeCancelled || s == TranscodeFailed
}

type TranscodeJob struct {
	ID                int64          `json:"-" db:"id"`
	UUID              uuid.UUID      `json:"uuid" db:"uuid"`
	PlaybackSessionID uuid.UUID      `json:"playbackSessionId" db:"playback_session_id"`
	MediaPartID       int64          `json:"mediaPartId" db:"media_part_id"`
	Protocol          Protocol       `json:"protocol" db:"protocol"`
	OutputPath        string         `json:"outputPath" db:"output_path"`
	PID               int            `json:"pid" db:"pid"`
	State             TranscodeState `json:"state" db:"state"`
	Progress          float64        `json:"progress" db:"progress"`
	SegmentLengthS    int            `json:"segmentLengthS" db:"segment_length_s"`
	StartTimeMs       int64          `json:"startTimeMs" db:"start_time_ms"`
	SegmentPrefix     string         `json:"segmentPrefix" db:"segment_prefix"`
	SegmentExtension  string         `json:"segmentExtension" db:"segment_extension"`
	LastPingAt        time.Time      `json:"lastPingAt" db:"last_ping_at"`
	LastSegmentIndex  int            `json:"lastSegmentIndex" db:"last_segment_index"`
}

// ──────────────────── PlaylistGenerator ────────────────────

type PlaylistSeedType string

const (
	SeedSingle   PlaylistSeedType = "single"
	SeedAlbum    PlaylistSeedType = "album"
	SeedSeason   PlaylistSeedType = "season"
	SeedShow     PlaylistSeedType = "show"
	SeedLibrary  PlaylistSeedType = "library"
	SeedExplicit PlaylistSeedType = "explicit"
)

type PlaylistSeed struct {
	Type         PlaylistSeedType `json:"type"`
	OriginatorID int64            `json:"originatorId,omitempty"`
	ExplicitIDs  []int64          `json:"explicitIds,omitempty"`
}

type PlaylistItem struct {
	Index          int          `json:"index"`
	MetadataItemID int64        `json:"metadataItemId"`
	Title          string       `json:"title"`
	MetadataType   MetadataType `json:"metadataType"`
	DurationMs     int64        `json:"durationMs"`
	Served         bool         `json:"served"`
}

type PlaylistGenerator struct {
	UUID              uuid.UUID    `json:"uuid" db:"uuid"`
	PlaybackSessionID uuid.UUID    `json:"playbackSessionId" db:"playback_session_id"`
	Seed              PlaylistSeed `json:"seed" db:"seed"`
	CursorIndex       int          `json:"cursorIndex" db:"cursor_index"`
	TotalCount        int          `json:"totalCount" db:"total_count"`
	Shuffle           bool         `json:"shuffle" db:"shuffle"`
	Repeat            bool         `json:"repeat" db:"repeat"`
	ShuffleOrder      []int        `json:"-" db:"shuffle_order"`
	Active            bool         `json:"active" db:"active"`
}

// ──────────────────── GoP / BIF artifacts ────────────────────

type GopEntry struct {
	PTSMs         int64 `json:"ptsMs"`
	ByteOffset    int64 `json:"byteOffset"`
	IsKeyframe    bool  `json:"isKeyframe"`
	GopDurationMs int64 `json:"gopDurationMs"`
}

type GopIndex struct {
	MetadataUUID uuid.UUID  `json:"metadataUuid"`
	PartIndex    int        `json:"partIndex"`
	Entries      []GopEntry `json:"entries"`
}

type BifEntry struct {
	Index       int   `json:"index"`
	TimestampMs int64 `json:"timestampMs"`
	Offset      int64 `json:"offset"`
	Length      int   `json:"length"`
}

type BifFile struct {
	MetadataUUID uuid.UUID  `json:"metadataUuid"`
	PartIndex    int        `json:"partIndex"`
	IntervalMs   int64      `json:"intervalMs"`
	Entries      []BifEntry `json:"entries"`
}
