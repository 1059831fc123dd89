package metadata

import (
	"context"
	"fmt"
	"log"
	"math/rand"
	"net/http"
	"sort"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/nexamediaserver/server/internal/models"
	"github.com/nexamediaserver/server/internal/repository"
	"github.com/nexamediaserver/server/internal/scan"
)

// ClientFactory hands out an *http.Client per remote agent, reusing the same
// rate limiter across every client built for the same agent name (§4.4:
// "identical rate limiters are reused across clients of the same agent").
type ClientFactory struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	timeout  time.Duration
}

func NewClientFactory(timeout time.Duration) *ClientFactory {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &ClientFactory{limiters: make(map[string]*rate.Limiter), timeout: timeout}
}

func (f *ClientFactory) limiterFor(agent string, perSecond float64) *rate.Limiter {
	f.mu.Lock()
	defer f.mu.Unlock()
	l, ok := f.limiters[agent]
	if !ok {
		if perSecond <= 0 {
			perSecond = 1
		}
		l = rate.NewLimiter(rate.Limit(perSecond), 1)
		f.limiters[agent] = l
	}
	return l
}

// Do executes req honoring the agent's rate limiter, retrying up to 3 times
// with jittered exponential backoff on 429/5xx; a 4xx response is terminal.
func (f *ClientFactory) Do(ctx context.Context, agent string, perSecond float64, client *http.Client, req *http.Request) (*http.Response, error) {
	limiter := f.limiterFor(agent, perSecond)
	var lastErr error
	for attempt := 0; attempt < 3; attempt++ {
		if err := limiter.Wait(ctx); err != nil {
			return nil, err
		}
		resp, err := client.Do(req)
		if err != nil {
			lastErr = err
			continue
		}
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			resp.Body.Close()
			lastErr = fmt.Errorf("metadata: %s returned %d", agent, resp.StatusCode)
			backoff := time.Duration(1<<uint(attempt)) * time.Second
			jitter := time.Duration(rand.Int63n(int64(backoff) / 2))
			select {
			case <-time.After(backoff + jitter):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
			continue
		}
		return resp, nil
	}
	return nil, lastErr
}

// maxConcurrentRemote is the global cap on concurrent remote agent calls
// across the whole process (§4.4).
const maxConcurrentRemote = 3

// Orchestrator runs sidecar + remote-agent + image-provider stages
// concurrently for a single item, merges results under the precedence
// policy, enforces per-field locks, and persists once (§4.4 "Refresh
// orchestrator (single item)").
type Orchestrator struct {
	registry    *Registry
	metaRepo    *repository.MetadataRepository
	mediaRepo   *repository.MediaRepository
	sectionRepo *repository.LibrarySectionRepository
	credits     *CreditService
	jobs        scan.JobScheduler
	remoteSem   chan struct{}
}

func NewOrchestrator(registry *Registry, metaRepo *repository.MetadataRepository, mediaRepo *repository.MediaRepository, sectionRepo *repository.LibrarySectionRepository, credits *CreditService, jobs scan.JobScheduler) *Orchestrator {
	return &Orchestrator{
		registry:    registry,
		metaRepo:    metaRepo,
		mediaRepo:   mediaRepo,
		sectionRepo: sectionRepo,
		credits:     credits,
		jobs:        jobs,
		remoteSem:   make(chan struct{}, maxConcurrentRemote),
	}
}

// Refresh implements scan.Refresher. overrideFields, when non-empty, lifts
// the per-field lock for exactly those names.
func (o *Orchestrator) Refresh(ctx context.Context, item *models.MetadataItem, opts scan.RefreshOptions) error {
	return o.RefreshWithOverrides(ctx, item, nil, opts)
}

// RefreshWithOverrides is the full entry point the items.refreshMetadata
// command uses; Refresh (satisfying scan.Refresher) calls it with no
// overrides.
func (o *Orchestrator) RefreshWithOverrides(ctx context.Context, item *models.MetadataItem, overrideFields []string, opts scan.RefreshOptions) error {
	order := o.agentOrder(item.LibrarySectionID)
	agents := o.registry.ForType(item.Type, order)

	type result struct {
		agent models.AgentDescriptor
		match *Match
	}
	results := make([]result, len(agents))
	images := make([][]ImageCandidate, len(agents))

	var wg sync.WaitGroup
	for i, a := range agents {
		wg.Add(1)
		go func(i int, a Agent) {
			defer wg.Done()
			desc := a.Descriptor()
			if desc.Category == models.AgentRemote {
				select {
				case o.remoteSem <- struct{}{}:
					defer func() { <-o.remoteSem }()
				case <-ctx.Done():
					return
				}
			}
			m, err := a.Fetch(ctx, item, "")
			if err != nil {
				// Unavailable: logged, never aborts the item (§4.4, §7).
				log.Printf("[metadata] agent %s: fetch %s: %v", desc.Name, item.UUID, err)
				return
			}
			results[i] = result{agent: desc, match: m}

			if ip, ok := a.(ImageProvider); ok && desc.ProvidesImages {
				cands, err := ip.ProvideImages(ctx, item, "")
				if err == nil {
					images[i] = cands
				}
			}
		}(i, a)
	}
	wg.Wait()

	overrides := make(map[string]bool, len(overrideFields))
	for _, f := range overrideFields {
		overrides[f] = true
	}

	var candidates []RelationCandidate
	for i, a := range agents {
		r := results[i]
		if r.match == nil {
			continue
		}
		desc := a.Descriptor()
		applyFields(item, r.match.Fields, overrides)
		if r.match.ExternalID != "" {
			if item.ExternalIDs == nil {
				item.ExternalIDs = make(map[string]string)
			}
			item.ExternalIDs[desc.Name] = r.match.ExternalID
		}
		candidates = append(candidates, r.match.Relations...)
	}

	if winner := selectImage(images); winner != nil {
		if !item.IsLocked("thumb_uri") || overrides["thumb_uri"] {
			item.ThumbURI = winner.URI
		}
	}

	if err := item.Validate(); err != nil {
		return fmt.Errorf("metadata: refresh %s: %w", item.UUID, err)
	}
	if err := o.metaRepo.Update(item); err != nil {
		return fmt.Errorf("metadata: persist %s: %w", item.UUID, err)
	}

	if o.credits != nil && len(candidates) > 0 {
		relations, err := o.credits.Resolve(item.LibrarySectionID, candidates)
		if err != nil {
			return fmt.Errorf("metadata: resolve credits %s: %w", item.UUID, err)
		}
		if err := o.credits.Apply(item.ID, relations); err != nil {
			return fmt.Errorf("metadata: credits %s: %w", item.UUID, err)
		}
	}

	if !opts.SkipAnalysis && o.jobs != nil && o.mediaRepo != nil {
		mediaItems, err := o.mediaRepo.ListByMetadataItem(item.ID)
		if err != nil {
			return fmt.Errorf("metadata: list media for %s: %w", item.UUID, err)
		}
		for _, mi := range mediaItems {
			for _, part := range mi.Parts {
				_ = o.jobs.ScheduleFileAnalysis(mi.ID, part.PartIndex, part.AbsolutePath)
				_ = o.jobs.ScheduleTrickplay(item.UUID, part.PartIndex, part.AbsolutePath)
			}
		}
	}
	return nil
}

// applyFields writes each field from fields into item unless it is locked
// and not present in overrides (§3 "locked_fields", §8 invariant 3).
func applyFields(item *models.MetadataItem, fields map[string]any, overrides map[string]bool) {
	for name, v := range fields {
		if item.IsLocked(name) && !overrides[name] {
			continue
		}
		switch name {
		case "title":
			item.Title, _ = v.(string)
		case "original_title":
			item.OriginalTitle, _ = v.(string)
		case "sort_title":
			item.SortTitle, _ = v.(string)
		case "year":
			if y, ok := v.(int); ok {
				item.Year = y
			}
		case "summary":
			item.Summary, _ = v.(string)
		case "tagline":
			item.Tagline, _ = v.(string)
		case "studio":
			item.Studio, _ = v.(string)
		case "content_rating":
			item.ContentRating, _ = v.(string)
		}
	}
}

// selectImage picks the winning candidate by precedence rank, first role
// "poster" seen in the highest-precedence category wins (§4.4 "Image
// providers" / "image orchestrator").
func selectImage(images [][]ImageCandidate) *ImageCandidate {
	var all []ImageCandidate
	for _, c := range images {
		all = append(all, c...)
	}
	if len(all) == 0 {
		return nil
	}
	sort.SliceStable(all, func(i, j int) bool {
		return precedenceRank(all[i].Category) < precedenceRank(all[j].Category)
	})
	for i := range all {
		if all[i].Role == "poster" {
			return &all[i]
		}
	}
	return &all[0]
}

func (o *Orchestrator) agentOrder(sectionID int64) []string {
	sec, err := o.sectionRepo.GetByID(sectionID)
	if err != nil || sec == nil {
		return nil
	}
	return sec.Settings.AgentOrder
}
