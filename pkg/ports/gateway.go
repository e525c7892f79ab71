package ports

import (
	"context"

	"github.com/aretw0/chatflow/pkg/domain"
)

// OutboundGateway delivers messages to a sender on the project's channel.
type OutboundGateway interface {
	SendText(ctx context.Context, projectID, to, text string) (domain.DeliveryResult, error)
	SendInteractive(ctx context.Context, projectID, to, text string, options []string) (domain.DeliveryResult, error)
}

// ExternalInvoker performs the request of an apiCall node.
// A *domain.StatusError signals a non-2xx response.
type ExternalInvoker interface {
	Invoke(ctx context.Context, req domain.ExternalRequest) (domain.ExternalResponse, error)
}

// Deliver sends a deliverable effect through the gateway.
func Deliver(ctx context.Context, gw OutboundGateway, projectID string, effect domain.Effect) (domain.DeliveryResult, error) {
	switch effect.Type {
	case domain.EffectSendInteractive:
		return gw.SendInteractive(ctx, projectID, effect.To, effect.Text, effect.Options)
	default:
		return gw.SendText(ctx, projectID, effect.To, effect.Text)
	}
}
