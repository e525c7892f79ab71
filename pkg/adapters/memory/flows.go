package memory

import (
	"context"
	"sync"

	"github.com/aretw0/chatflow/pkg/domain"
)

type project struct {
	draft    *domain.Graph
	active   string
	versions map[string]*domain.Graph
}

// FlowRepository implements ports.FlowRepository in memory.
type FlowRepository struct {
	mu       sync.RWMutex
	projects map[string]*project
}

// NewFlowRepository creates an empty repository.
func NewFlowRepository() *FlowRepository {
	return &FlowRepository{projects: make(map[string]*project)}
}

func (r *FlowRepository) project(id string) *project {
	p, ok := r.projects[id]
	if !ok {
		p = &project{versions: make(map[string]*domain.Graph)}
		r.projects[id] = p
	}
	return p
}

// SaveDraft replaces the draft.
func (r *FlowRepository) SaveDraft(ctx context.Context, projectID string, g *domain.Graph) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.project(projectID).draft = g.Clone()
	return nil
}

// Draft returns a copy of the draft.
func (r *FlowRepository) Draft(ctx context.Context, projectID string) (*domain.Graph, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.projects[projectID]
	if !ok || p.draft == nil {
		return nil, domain.ErrFlowNotFound
	}
	return p.draft.Clone(), nil
}

// Publish stores the sealed graph as a version and activates it.
func (r *FlowRepository) Publish(ctx context.Context, projectID string, g *domain.Graph) error {
	sealed := g.Clone()
	if sealed.Version == "" {
		sealed.Seal()
	} else {
		sealed.Restore(sealed.Version)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	p := r.project(projectID)
	if _, exists := p.versions[sealed.Version]; !exists {
		p.versions[sealed.Version] = sealed
	}
	p.active = sealed.Version
	return nil
}

// Deactivate clears the active version.
func (r *FlowRepository) Deactivate(ctx context.Context, projectID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.projects[projectID]
	if !ok {
		return domain.ErrFlowNotFound
	}
	p.active = ""
	return nil
}

// Active returns the active graph. Published graphs are shared read-only.
func (r *FlowRepository) Active(ctx context.Context, projectID string) (*domain.Graph, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.projects[projectID]
	if !ok || p.active == "" {
		return nil, domain.ErrFlowNotActive
	}
	return p.versions[p.active], nil
}

// Version returns a published graph.
func (r *FlowRepository) Version(ctx context.Context, projectID, version string) (*domain.Graph, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.projects[projectID]
	if !ok {
		return nil, domain.ErrFlowVersionNotFound
	}
	g, ok := p.versions[version]
	if !ok {
		return nil, domain.ErrFlowVersionNotFound
	}
	return g, nil
}
