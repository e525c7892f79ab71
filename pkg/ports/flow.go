package ports

import (
	"context"

	"github.com/aretw0/chatflow/pkg/domain"
)

// FlowRepository stores the authored flow of each project.
//
// A project has at most one draft, which can be edited freely, and a set of published
// versions keyed by graph fingerprint. Published versions are immutable and retained so
// sessions keep running against the version they captured.
type FlowRepository interface {
	// SaveDraft replaces the project's draft without validation.
	SaveDraft(ctx context.Context, projectID string, graph *domain.Graph) error

	// Draft returns the project's draft or domain.ErrFlowNotFound.
	Draft(ctx context.Context, projectID string) (*domain.Graph, error)

	// Publish stores a sealed graph as a version and makes it the active one.
	Publish(ctx context.Context, projectID string, graph *domain.Graph) error

	// Deactivate stops the project from receiving live traffic.
	// Returns domain.ErrFlowNotFound if the project has no flow.
	Deactivate(ctx context.Context, projectID string) error

	// Active returns the active graph or domain.ErrFlowNotActive.
	Active(ctx context.Context, projectID string) (*domain.Graph, error)

	// Version returns a published graph or domain.ErrFlowVersionNotFound.
	Version(ctx context.Context, projectID, version string) (*domain.Graph, error)
}

// ChannelDirectory resolves channel addresses to projects.
type ChannelDirectory interface {
	// Register binds (or rebinds) a channel address to a project.
	Register(ctx context.Context, channel domain.Channel) error

	// Lookup finds the channel by its address or returns domain.ErrChannelNotFound.
	Lookup(ctx context.Context, phoneNumberID string) (domain.Channel, error)

	// ByProject finds the channel of a project or returns domain.ErrChannelNotFound.
	ByProject(ctx context.Context, projectID string) (domain.Channel, error)
}
