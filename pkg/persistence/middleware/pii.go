package middleware

import (
	"context"
	"fmt"
	"regexp"

	"github.com/aretw0/chatflow/pkg/domain"
	"github.com/aretw0/chatflow/pkg/ports"
)

// Mask replaces redacted variable values.
const Mask = "***"

type redactMiddleware struct {
	next     ports.SessionStore
	patterns []*regexp.Regexp
}

// NewRedactMiddleware masks, on Load, the variables whose names match any pattern.
// Stored data is untouched, so only wrap stores used for inspection, never the
// one a running engine writes through.
func NewRedactMiddleware(patterns []string) (Middleware, error) {
	compiled := make([]*regexp.Regexp, len(patterns))
	for i, p := range patterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("invalid redaction pattern %q: %w", p, err)
		}
		compiled[i] = re
	}
	return func(next ports.SessionStore) ports.SessionStore {
		return &redactMiddleware{next: next, patterns: compiled}
	}, nil
}

func (m *redactMiddleware) Save(ctx context.Context, session *domain.Session) error {
	return m.next.Save(ctx, session)
}

func (m *redactMiddleware) Load(ctx context.Context, key domain.SessionKey) (*domain.Session, error) {
	s, err := m.next.Load(ctx, key)
	if err != nil {
		return nil, err
	}
	// Clone so in-memory stores keep the real values.
	out := s.Clone()
	for name := range out.Variables {
		for _, p := range m.patterns {
			if p.MatchString(name) {
				out.Variables[name] = Mask
				break
			}
		}
	}
	return out, nil
}

func (m *redactMiddleware) Delete(ctx context.Context, key domain.SessionKey) error {
	return m.next.Delete(ctx, key)
}

func (m *redactMiddleware) List(ctx context.Context) ([]domain.SessionKey, error) {
	return m.next.List(ctx)
}
