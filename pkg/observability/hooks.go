package observability

import (
	"context"
	"log/slog"

	"github.com/aretw0/chatflow/pkg/domain"
)

// LogHooks returns lifecycle hooks that log every event at debug level,
// external failures at warn and session ends at info.
func LogHooks(logger *slog.Logger) domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnNodeEnter: func(ctx context.Context, e *domain.NodeEvent) {
			logger.DebugContext(ctx, "node_enter",
				"project_id", e.ProjectID,
				"sender_id", e.SenderID,
				"node_id", e.NodeID,
				"node_type", e.NodeType,
			)
		},
		OnNodeLeave: func(ctx context.Context, e *domain.NodeEvent) {
			logger.DebugContext(ctx, "node_leave", "sender_id", e.SenderID, "node_id", e.NodeID)
		},
		OnExternalCall: func(ctx context.Context, e *domain.ExternalEvent) {
			logger.DebugContext(ctx, "external_call",
				"sender_id", e.SenderID,
				"request", e.RequestName,
				"attempt", e.Attempt,
			)
		},
		OnExternalReturn: func(ctx context.Context, e *domain.ExternalEvent) {
			level := slog.LevelDebug
			if e.IsError {
				level = slog.LevelWarn
			}
			logger.Log(ctx, level, "external_return",
				"sender_id", e.SenderID,
				"request", e.RequestName,
				"attempt", e.Attempt,
				"status", e.StatusCode,
				"duration", e.Duration,
			)
		},
		OnSessionEnd: func(ctx context.Context, e *domain.SessionEvent) {
			logger.InfoContext(ctx, "session_end",
				"project_id", e.ProjectID,
				"sender_id", e.SenderID,
				"status", e.Status,
				"reason", e.Reason,
			)
		},
	}
}

// MergeHooks combines hook sets; each event is passed to every non-nil callback in order.
func MergeHooks(sets ...domain.LifecycleHooks) domain.LifecycleHooks {
	var out domain.LifecycleHooks
	for _, h := range sets {
		out.OnNodeEnter = chain(out.OnNodeEnter, h.OnNodeEnter)
		out.OnNodeLeave = chain(out.OnNodeLeave, h.OnNodeLeave)
		out.OnExternalCall = chain(out.OnExternalCall, h.OnExternalCall)
		out.OnExternalReturn = chain(out.OnExternalReturn, h.OnExternalReturn)
		out.OnSessionEnd = chain(out.OnSessionEnd, h.OnSessionEnd)
	}
	return out
}

func chain[E any](a, b func(context.Context, *E)) func(context.Context, *E) {
	switch {
	case a == nil:
		return b
	case b == nil:
		return a
	}
	return func(ctx context.Context, e *E) {
		a(ctx, e)
		b(ctx, e)
	}
}
