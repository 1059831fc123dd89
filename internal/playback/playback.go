// Package playback implements the playback orchestrator (§4.8): capability
// negotiation, stream-plan decision, GoP-aware seeking, and the
// heartbeat/decide/seek/resume/stop lifecycle.
package playback

import (
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/nexamediaserver/server/internal/abr"
	"github.com/nexamediaserver/server/internal/gopindex"
	"github.com/nexamediaserver/server/internal/models"
	"github.com/nexamediaserver/server/internal/paths"
	"github.com/nexamediaserver/server/internal/playlist"
	"github.com/nexamediaserver/server/internal/repository"
	"github.com/nexamediaserver/server/internal/transcode"
)

// SessionTTL is how long a session may go without a heartbeat before the
// reaper expires it (§5).
const SessionTTL = 120 * time.Second

var (
	// ErrPlaybackUnavailable is returned when the requested item has no
	// playable MediaItem (§4.8 failure model).
	ErrPlaybackUnavailable = errors.New("playback: item unavailable")
	// ErrPlaybackUnsupported is returned when the item is technically
	// unplayable (e.g. zero duration) or capability negotiation fails.
	ErrPlaybackUnsupported = errors.New("playback: unsupported")
)

// MetadataSource is the narrow interface onto MetadataItem the orchestrator
// needs: item reads for planning, view-state writes for heartbeat/stop.
type MetadataSource interface {
	GetByID(id int64) (*models.MetadataItem, error)
	UpdateViewState(id int64, viewCount int, viewOffsetMs int64) error
}

// MediaSource is the narrow read interface onto MediaItem/MediaPart.
type MediaSource interface {
	ListByMetadataItem(metadataItemID int64) ([]models.MediaItem, error)
}

// StartInput is the input to StartPlayback (§4.8, §6 playback.start).
type StartInput struct {
	UserID                   uuid.UUID
	ItemID                   int64
	OriginatorID             int64
	PlaylistSeedType         models.PlaylistSeedType
	ExplicitIDs              []int64
	Shuffle                  bool
	Repeat                   bool
	CapabilityProfileVersion int64
}

// StartResponse is the §4.8 StartPlayback return payload.
type StartResponse struct {
	PlaybackSessionID   uuid.UUID          `json:"playbackSessionId"`
	PlaylistGeneratorID *uuid.UUID         `json:"playlistGeneratorId,omitempty"`
	Title               string             `json:"title"`
	PlaybackURL         string             `json:"playbackUrl"`
	TrickplayURL        string             `json:"trickplayUrl,omitempty"`
	DurationMs          int64              `json:"durationMs"`
	StreamPlan          models.StreamPlan  `json:"streamPlan"`
	ABRLadder           []abr.Rung         `json:"abrLadder,omitempty"`
	CapabilityVersion   int64              `json:"capabilityVersion"`
}

// Orchestrator is the playback orchestrator (§4.8).
type Orchestrator struct {
	sessions   *repository.PlaybackRepository
	transcodes *repository.TranscodeRepository
	metadata   MetadataSource
	media      MediaSource
	gop        *gopindex.Store
	paths      *paths.Paths
	playlists  *playlist.Service
	jobs       *transcode.Manager
	maxBitrate func() int64
}

func New(
	sessions *repository.PlaybackRepository,
	transcodes *repository.TranscodeRepository,
	metadata MetadataSource,
	media MediaSource,
	gop *gopindex.Store,
	p *paths.Paths,
	playlists *playlist.Service,
	jobs *transcode.Manager,
	maxBitrate func() int64,
) *Orchestrator {
	return &Orchestrator{
		sessions: sessions, transcodes: transcodes, metadata: metadata, media: media,
		gop: gop, paths: p, playlists: playlists, jobs: jobs, maxBitrate: maxBitrate,
	}
}

// UpsertCapabilityProfile records a client's decoding/rendering capability
// set and returns its new version (§4.8, §6 playback.upsertCapability).
func (o *Orchestrator) UpsertCapabilityProfile(p *models.CapabilityProfile) (int64, error) {
	if err := o.sessions.UpsertCapabilityProfile(p); err != nil {
		return 0, fmt.Errorf("playback: upsert capability: %w", err)
	}
	return p.Version, nil
}

// selectMediaItem picks the highest-bitrate MediaItem for an item (§4.8 step
// 1), preferring main-feature items over extras. The capability profile is
// not consulted here.
func (o *Orchestrator) selectMediaItem(itemID int64) (*models.MediaItem, error) {
	items, err := o.media.ListByMetadataItem(itemID)
	if err != nil {
		return nil, fmt.Errorf("playback: list media items: %w", err)
	}
	if len(items) == 0 {
		return nil, ErrPlaybackUnavailable
	}
	// Bonus material never wins selection over the main feature.
	features := items[:0:0]
	for _, m := range items {
		if m.ExtraType == "" {
			features = append(features, m)
		}
	}
	if len(features) == 0 {
		features = items
	}
	best := features[0]
	for _, m := range features[1:] {
		if m.Bitrate > best.Bitrate {
			best = m
		}
	}
	return &best, nil
}

// decidePlan computes a stream plan for mediaItem under cap (§4.8 step 2).
func decidePlan(mediaItem *models.MediaItem, cap *models.CapabilityProfile, p *paths.Paths) (models.StreamPlan, []abr.Rung, error) {
	if mediaItem.DurationMs <= 0 {
		return models.StreamPlan{}, nil, ErrPlaybackUnsupported
	}

	part := mediaItem.Parts[0]
	if directPlayCompatible(mediaItem, cap) {
		return models.StreamPlan{
			Mode:        models.ModeDirectPlay,
			MediaPartID: part.ID,
			PlaybackURL: fmt.Sprintf("/stream/direct/%d", part.ID),
		}, nil, nil
	}

	if directStreamCompatible(mediaItem, cap) {
		return models.StreamPlan{
			Mode:        models.ModeDirectStream,
			MediaPartID: part.ID,
			RemuxURL:    fmt.Sprintf("/stream/remux/%d", part.ID),
			PlaybackURL: fmt.Sprintf("/stream/remux/%d", part.ID),
		}, nil, nil
	}

	ladder := abr.Generate(abr.Params{
		SourceWidth:       mediaItem.Width,
		SourceHeight:      mediaItem.Height,
		SourceBitrateBps:  mediaItem.Bitrate,
		MaxAllowedBitrate: cap.MaxBitrate,
		IncludeSource:     true,
	})
	// The transcode job itself is created lazily on first segment request
	// (§4.9); only its eventual manifest location is fixed here so the plan
	// URL is stable across retries.
	jobUUID := uuid.New()
	return models.StreamPlan{
		Mode:        models.ModeTranscode,
		MediaPartID: part.ID,
		ManifestURL: fmt.Sprintf("/stream/transcode/%s/manifest.mpd", jobUUID),
		PlaybackURL: fmt.Sprintf("/stream/transcode/%s/manifest.mpd", jobUUID),
	}, ladder, nil
}

func directPlayCompatible(m *models.MediaItem, cap *models.CapabilityProfile) bool {
	if !containsFold(cap.SupportedContainers, m.Container) {
		return false
	}
	if !containsFold(cap.SupportedVideoCodecs, m.VideoCodec) {
		return false
	}
	if !containsFold(cap.SupportedAudioCodecs, m.AudioCodec) {
		return false
	}
	if m.HDRFormat != "" && !cap.SupportsHDR {
		return false
	}
	return true
}

func directStreamCompatible(m *models.MediaItem, cap *models.CapabilityProfile) bool {
	if !cap.AllowRemuxing {
		return false
	}
	if !containsFold(cap.SupportedVideoCodecs, m.VideoCodec) {
		return false
	}
	if !containsFold(cap.SupportedAudioCodecs, m.AudioCodec) {
		return false
	}
	return true
}

func containsFold(list []string, v string) bool {
	for _, s := range list {
		if eqFold(s, v) {
			return true
		}
	}
	return false
}

func eqFold(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		ca, cb := a[i], b[i]
		if 'A' <= ca && ca <= 'Z' {
			ca += 'a' - 'A'
		}
		if 'A' <= cb && cb <= 'Z' {
			cb += 'a' - 'A'
		}
		if ca != cb {
			return false
		}
	}
	return true
}

// StartPlayback begins a new playback session for the requested item
// (§4.8).
func (o *Orchestrator) StartPlayback(in StartInput) (*StartResponse, error) {
	cap, err := o.sessions.GetCapabilityProfile(in.UserID)
	if err != nil {
		return nil, fmt.Errorf("playback: get capability: %w", err)
	}
	if cap.Version != in.CapabilityProfileVersion {
		return nil, fmt.Errorf("%w: capabilityVersionMismatch", ErrPlaybackUnsupported)
	}

	item, err := o.metadata.GetByID(in.ItemID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPlaybackUnavailable, err)
	}

	mediaItem, err := o.selectMediaItem(in.ItemID)
	if err != nil {
		return nil, err
	}
	plan, ladder, err := decidePlan(mediaItem, cap, o.paths)
	if err != nil {
		return nil, err
	}

	session := &models.PlaybackSession{
		UserID:                   in.UserID,
		MetadataItemID:           in.ItemID,
		CapabilityProfileVersion: cap.Version,
		StreamPlan:               plan,
		State:                    models.PlaybackPreparing,
	}
	if err := o.sessions.Create(session); err != nil {
		return nil, fmt.Errorf("playback: create session: %w", err)
	}

	resp := &StartResponse{
		PlaybackSessionID: session.UUID,
		Title:             item.Title,
		PlaybackURL:       plan.PlaybackURL,
		DurationMs:        mediaItem.DurationMs,
		StreamPlan:        plan,
		ABRLadder:         ladder,
		CapabilityVersion: cap.Version,
	}
	resp.TrickplayURL = fmt.Sprintf("/trickplay/%d", mediaItem.ID)

	if in.PlaylistSeedType != "" && in.PlaylistSeedType != models.SeedSingle {
		seed := models.PlaylistSeed{Type: in.PlaylistSeedType, OriginatorID: in.OriginatorID, ExplicitIDs: in.ExplicitIDs}
		gen, err := o.playlists.Create(session.UUID, seed)
		if err != nil {
			return nil, fmt.Errorf("playback: create playlist: %w", err)
		}
		if in.Shuffle {
			if _, err := o.playlists.SetShuffle(gen.UUID, true); err != nil {
				return nil, fmt.Errorf("playback: set shuffle: %w", err)
			}
		}
		if in.Repeat {
			if _, err := o.playlists.SetRepeat(gen.UUID, true); err != nil {
				return nil, fmt.Errorf("playback: set repeat: %w", err)
			}
		}
		resp.PlaylistGeneratorID = &gen.UUID
		if err := o.sessions.UpdatePlan(session.UUID, in.ItemID, plan, models.PlaybackPlaying); err != nil {
			return nil, fmt.Errorf("playback: link playlist: %w", err)
		}
	}

	return resp, nil
}

// HeartbeatResult is returned by Heartbeat.
type HeartbeatResult struct {
	CapabilityVersionMismatch bool `json:"capabilityVersionMismatch"`
}

// Heartbeat updates playhead, resets the session TTL, and records the resume
// point on the item plus an append-only watch-history row (§4.8).
func (o *Orchestrator) Heartbeat(sessionID uuid.UUID, playheadMs, capabilityVersion int64) (*HeartbeatResult, error) {
	session, err := o.sessions.GetByUUID(sessionID)
	if err != nil {
		return nil, err
	}
	if err := o.sessions.Heartbeat(sessionID, playheadMs); err != nil {
		return nil, fmt.Errorf("playback: heartbeat: %w", err)
	}
	if item, err := o.metadata.GetByID(session.MetadataItemID); err == nil {
		offset := playheadMs
		if item.DurationMs > 0 && offset > item.DurationMs {
			offset = item.DurationMs
		}
		if err := o.metadata.UpdateViewState(item.ID, item.ViewCount, offset); err != nil {
			log.Printf("[playback] heartbeat: view state %d: %v", item.ID, err)
		}
		if err := o.sessions.AppendWatchHistory(item.ID, session.UserID, offset, false); err != nil {
			log.Printf("[playback] heartbeat: watch history %d: %v", item.ID, err)
		}
	}
	return &HeartbeatResult{CapabilityVersionMismatch: session.CapabilityProfileVersion != capabilityVersion}, nil
}

// Direction enumerates the §4.8 Decide directions.
type Direction string

const (
	DirectionNext     Direction = "next"
	DirectionPrevious Direction = "previous"
	DirectionJump     Direction = "jump"
	DirectionStay     Direction = "stay"
	DirectionStop     Direction = "stop"
)

// DecideInput is the §6 playback.decide input.
type DecideInput struct {
	SessionID uuid.UUID
	Direction Direction
	JumpIndex int
}

// DecideResult is the §6 playback.decide response.
type DecideResult struct {
	Action      Direction         `json:"action"`
	PlaybackURL string            `json:"playbackUrl,omitempty"`
	StreamPlan  *models.StreamPlan `json:"streamPlanJson,omitempty"`
	NextItemID  int64             `json:"nextItemId,omitempty"`
}

// Decide advances playlist navigation at a boundary and re-plans the new
// item (§4.8).
func (o *Orchestrator) Decide(in DecideInput) (*DecideResult, error) {
	session, err := o.sessions.GetByUUID(in.SessionID)
	if err != nil {
		return nil, err
	}
	if in.Direction == DirectionStop || session.PlaylistGeneratorID == nil {
		if in.Direction == DirectionStop {
			return &DecideResult{Action: DirectionStop}, o.Stop(in.SessionID)
		}
		return &DecideResult{Action: DirectionStay}, nil
	}

	var item *models.PlaylistItem
	switch in.Direction {
	case DirectionNext:
		item, err = o.playlists.Next(*session.PlaylistGeneratorID)
	case DirectionPrevious:
		item, err = o.playlists.Previous(*session.PlaylistGeneratorID)
	case DirectionJump:
		item, err = o.playlists.JumpTo(*session.PlaylistGeneratorID, in.JumpIndex)
	default:
		return &DecideResult{Action: DirectionStay}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("playback: decide navigate: %w", err)
	}

	mediaItem, err := o.selectMediaItem(item.MetadataItemID)
	if err != nil {
		return nil, err
	}
	cap, err := o.sessions.GetCapabilityProfile(session.UserID)
	if err != nil {
		return nil, fmt.Errorf("playback: decide get capability: %w", err)
	}
	plan, _, err := decidePlan(mediaItem, cap, o.paths)
	if err != nil {
		return nil, err
	}
	if err := o.sessions.UpdatePlan(in.SessionID, item.MetadataItemID, plan, models.PlaybackPlaying); err != nil {
		return nil, fmt.Errorf("playback: decide update plan: %w", err)
	}

	return &DecideResult{Action: in.Direction, PlaybackURL: plan.PlaybackURL, StreamPlan: &plan, NextItemID: item.MetadataItemID}, nil
}

// SeekInput is the §6 playback.seek input.
type SeekInput struct {
	SessionID   uuid.UUID
	MediaPartID int64
	TargetMs    int64
}

// SeekResult is the §4.8/§8 GoP-aware seek response.
type SeekResult struct {
	KeyframeMs      int64 `json:"keyframeMs"`
	GopDurationMs   int64 `json:"gopDurationMs"`
	HasGopIndex     bool  `json:"hasGopIndex"`
	OriginalTargetMs int64 `json:"originalTargetMs"`
}

// Seek resolves targetMs to the nearest keyframe at or before it using the
// GoP index for the item's UUID/part. DirectPlay sessions never call this
// (§4.8); callers are responsible for gating on the session's stream-plan
// mode.
func (o *Orchestrator) Seek(itemUUID uuid.UUID, partIndex int, in SeekInput) (*SeekResult, error) {
	idx, err := o.gop.Read(itemUUID, partIndex)
	if err != nil {
		return &SeekResult{KeyframeMs: in.TargetMs, OriginalTargetMs: in.TargetMs, HasGopIndex: false}, nil
	}
	entry, ok := idx.Nearest(in.TargetMs)
	if !ok {
		return &SeekResult{KeyframeMs: in.TargetMs, OriginalTargetMs: in.TargetMs, HasGopIndex: true}, nil
	}
	return &SeekResult{KeyframeMs: entry.PTSMs, GopDurationMs: entry.GopDurationMs, HasGopIndex: true, OriginalTargetMs: in.TargetMs}, nil
}

// Resume returns the in-flight session for a client reconnecting within the
// TTL, or nil if it has already expired/been stopped.
func (o *Orchestrator) Resume(sessionID uuid.UUID) (*models.PlaybackSession, error) {
	session, err := o.sessions.GetByUUID(sessionID)
	if err != nil {
		return nil, err
	}
	if session.Expired(time.Now(), SessionTTL) || session.State == models.PlaybackStopped {
		return nil, nil
	}
	return session, nil
}

// Stop terminates a session: cancels its transcodes (deleting segments) and
// deactivates its playlist generator, keeping both for history up to TTL
// (§4.8).
func (o *Orchestrator) Stop(sessionID uuid.UUID) error {
	session, err := o.sessions.GetByUUID(sessionID)
	if err != nil {
		return err
	}
	jobs, err := o.transcodes.ListBySession(sessionID)
	if err != nil {
		return fmt.Errorf("playback: stop: list jobs: %w", err)
	}
	for _, j := range jobs {
		if j.State.Terminal() {
			continue
		}
		if err := o.jobs.Cancel(j.UUID, j.OutputPath, true); err != nil {
			log.Printf("[playback] stop: cancel transcode %s: %v", j.UUID, err)
		}
	}
	if session.PlaylistGeneratorID != nil {
		if err := o.playlists.Stop(*session.PlaylistGeneratorID); err != nil {
			log.Printf("[playback] stop: deactivate playlist %s: %v", *session.PlaylistGeneratorID, err)
		}
	}
	if item, err := o.metadata.GetByID(session.MetadataItemID); err == nil {
		// Past 90% of the runtime counts as watched: the view counter ticks
		// and the resume point resets.
		if item.DurationMs > 0 && session.PlayheadMs*10 >= item.DurationMs*9 {
			if err := o.metadata.UpdateViewState(item.ID, item.ViewCount+1, 0); err != nil {
				log.Printf("[playback] stop: view state %d: %v", item.ID, err)
			}
			if err := o.sessions.AppendWatchHistory(item.ID, session.UserID, item.DurationMs, true); err != nil {
				log.Printf("[playback] stop: watch history %d: %v", item.ID, err)
			}
		}
	}
	return o.sessions.SetState(sessionID, models.PlaybackStopped)
}

// ReapExpired stops every session whose heartbeat predates the TTL; called
// periodically by the owning scheduler loop.
func (o *Orchestrator) ReapExpired() error {
	expired, err := o.sessions.ListExpired(int(SessionTTL.Seconds()))
	if err != nil {
		return fmt.Errorf("playback: reap: %w", err)
	}
	for _, s := range expired {
		if err := o.Stop(s.UUID); err != nil {
			log.Printf("[playback] reap: stop %s: %v", s.UUID, err)
		}
	}
	return nil
}

// --- capability-token consumption (JWT is decoded, never issued here) ---

// CapabilityClaims is the decode-only shape of a capability-profile session
// token a client may present instead of a raw profile payload; the server
// never issues these (token issuance is out of scope, §1).
type CapabilityClaims struct {
	UserID  string `json:"userId"`
	Version int64  `json:"version"`
	jwt.RegisteredClaims
}

// ParseCapabilityToken verifies and decodes a capability-profile token using
// keyFunc to resolve the verification key, never minting new tokens itself.
func ParseCapabilityToken(tokenString string, keyFunc jwt.Keyfunc) (*CapabilityClaims, error) {
	claims := &CapabilityClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, keyFunc)
	if err != nil {
		return nil, fmt.Errorf("playback: parse capability token: %w", err)
	}
	if !token.Valid {
		return nil, fmt.Errorf("playback: capability token invalid")
	}
	return claims, nil
}

// StreamPlanStruct renders a StreamPlan as a protobuf Struct so the
// numeric-Mode wire contract (§6: "numeric-only on write") is backed by a
// structural type rather than a stringly-typed map, satisfying the "both
// forms valid on read" rule via Mode's custom JSON unmarshaling while the
// write path always emits the protobuf Struct's number kind for Mode.
func StreamPlanStruct(p models.StreamPlan) (*structpb.Struct, error) {
	fields := map[string]any{
		"mode":        float64(p.Mode),
		"mediaPartId": float64(p.MediaPartID),
		"playbackUrl": p.PlaybackURL,
	}
	if p.ManifestURL != "" {
		fields["manifestUrl"] = p.ManifestURL
	}
	if p.RemuxURL != "" {
		fields["remuxUrl"] = p.RemuxURL
	}
	if p.TrickplayURL != "" {
		fields["trickplayUrl"] = p.TrickplayURL
	}
	return structpb.NewStruct(fields)
}
