package memory

import (
	"context"
	"sync"

	"github.com/aretw0/chatflow/pkg/domain"
)

// Channels implements ports.ChannelDirectory in memory.
type Channels struct {
	mu        sync.RWMutex
	byPhone   map[string]domain.Channel
	byProject map[string]domain.Channel
}

// NewChannels creates a directory seeded with the given channels.
func NewChannels(seed ...domain.Channel) *Channels {
	c := &Channels{
		byPhone:   make(map[string]domain.Channel),
		byProject: make(map[string]domain.Channel),
	}
	for _, ch := range seed {
		_ = c.Register(context.Background(), ch)
	}
	return c
}

// Register binds the channel, replacing any previous binding of the project.
func (c *Channels) Register(ctx context.Context, ch domain.Channel) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if prev, ok := c.byProject[ch.ProjectID]; ok && prev.PhoneNumberID != ch.PhoneNumberID {
		delete(c.byPhone, prev.PhoneNumberID)
	}
	c.byPhone[ch.PhoneNumberID] = ch
	c.byProject[ch.ProjectID] = ch
	return nil
}

// Lookup resolves a phone number id.
func (c *Channels) Lookup(ctx context.Context, phoneNumberID string) (domain.Channel, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	ch, ok := c.byPhone[phoneNumberID]
	if !ok {
		return domain.Channel{}, domain.ErrChannelNotFound
	}
	return ch, nil
}

// ByProject resolves a project's channel.
func (c *Channels) ByProject(ctx context.Context, projectID string) (domain.Channel, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	ch, ok := c.byProject[projectID]
	if !ok {
		return domain.Channel{}, domain.ErrChannelNotFound
	}
	return ch, nil
}
