// Package metadata implements the agent/provider registry and refresh
// orchestrator (§3 "Agent / Provider registry", §4.4 "Agent fan-out"): a
// capability-dispatched catalog of metadata/image/sidecar providers, merged
// under a precedence policy with per-field lock enforcement.
package metadata

import (
	"context"
	"sort"

	"github.com/nexamediaserver/server/internal/models"
)

// Match is one candidate result a metadata agent's Fetch returns.
type Match struct {
	ExternalID string
	Title      string
	Year       int
	Fields     map[string]any // field name -> value, applied under lock/precedence rules
	Relations  []RelationCandidate
}

// ImageCandidate is one candidate artwork result an image agent provides.
type ImageCandidate struct {
	Category models.AgentCategory // local | embedded | remote, used for precedence ordering
	Role     string                // "poster" | "backdrop" | "logo" | "banner" | "thumb"
	URI      string
}

// Agent is the capability set every metadata/image/sidecar provider
// implements; the orchestrator dispatches by capability, not by type
// hierarchy (§4.4's "capability set, not inheritance").
type Agent interface {
	Descriptor() models.AgentDescriptor
	// Fetch returns the agent's best match for item, or nil if it has none.
	Fetch(ctx context.Context, item *models.MetadataItem, hintPath string) (*Match, error)
}

// ImageProvider is the subset of Agent that can also supply artwork
// candidates; an Agent only satisfies this when its descriptor's
// ProvidesImages is true.
type ImageProvider interface {
	Agent
	ProvideImages(ctx context.Context, item *models.MetadataItem, hintPath string) ([]ImageCandidate, error)
}

// SidecarProvider is the subset of Agent that can write sidecar files back
// (NFO export); an Agent only satisfies this when ProvidesSidecars is true.
type SidecarProvider interface {
	Agent
	WriteSidecar(ctx context.Context, item *models.MetadataItem, relations []models.MetadataRelation, hintPath string) error
}

// Registry is the in-memory catalog of available agents (§3). Per-library
// ordering is read from LibrarySection settings at dispatch time; the
// registry itself is unordered.
type Registry struct {
	agents map[string]Agent
}

func NewRegistry() *Registry {
	return &Registry{agents: make(map[string]Agent)}
}

func (r *Registry) Register(a Agent) {
	r.agents[a.Descriptor().Name] = a
}

func (r *Registry) Get(name string) (Agent, bool) {
	a, ok := r.agents[name]
	return a, ok
}

// Descriptors returns the descriptor of every registered agent, for admin
// surfaces that list available agents per library section.
func (r *Registry) Descriptors() []models.AgentDescriptor {
	out := make([]models.AgentDescriptor, 0, len(r.agents))
	for _, a := range r.agents {
		out = append(out, a.Descriptor())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// ForType returns every registered agent applicable to mType, ordered per
// order (names not present in order are appended alphabetically after it —
// §3: "Order per library is stored in LibrarySection settings").
func (r *Registry) ForType(mType models.MetadataType, order []string) []Agent {
	applicable := make(map[string]Agent)
	for name, a := range r.agents {
		for _, t := range a.Descriptor().ApplicableTypes {
			if t == mType {
				applicable[name] = a
				break
			}
		}
	}

	var out []Agent
	seen := make(map[string]bool)
	for _, name := range order {
		if a, ok := applicable[name]; ok && !seen[name] {
			out = append(out, a)
			seen[name] = true
		}
	}
	var rest []string
	for name := range applicable {
		if !seen[name] {
			rest = append(rest, name)
		}
	}
	sort.Strings(rest)
	for _, name := range rest {
		out = append(out, applicable[name])
	}
	return out
}

// precedenceRank orders agent categories for the image-selector and the
// refresh merge: local sidecar > embedded > remote, evaluated in
// configured order within a category (§3, §4.4's image-orchestrator rule).
func precedenceRank(c models.AgentCategory) int {
	switch c {
	case models.AgentSidecar:
		return 0
	case models.AgentLocal:
		return 1
	case models.AgentEmbedded:
		return 2
	case models.AgentRemote:
		return 3
	default:
		return 4
	}
}
