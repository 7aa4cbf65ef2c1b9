package chat

import (
	"context"
	"sync"
)

// Cache holds one Conversation per chat session so multi-turn context survives
// between turns. Conversations are only cached when history is enabled.
type Cache struct {
	backend Backend

	mu      sync.Mutex
	entries map[string]Conversation
}

// NewCache creates an empty cache that builds conversations with backend.
func NewCache(backend Backend) *Cache {
	return &Cache{
		backend: backend,
		entries: make(map[string]Conversation),
	}
}

// GetOrCreate returns the conversation for sessionID. With history disabled a
// fresh, uncached conversation is returned every time.
func (c *Cache) GetOrCreate(ctx context.Context, sessionID string, memoryEnabled, historyEnabled bool) (Conversation, error) {
	instruction := SystemInstruction(memoryEnabled)
	if !historyEnabled {
		return c.backend.NewConversation(ctx, instruction)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if conv, ok := c.entries[sessionID]; ok {
		return conv, nil
	}
	conv, err := c.backend.NewConversation(ctx, instruction)
	if err != nil {
		return nil, err
	}
	c.entries[sessionID] = conv
	return conv, nil
}

// InvalidateAll drops every cached conversation.
func (c *Cache) InvalidateAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	clear(c.entries)
}

// Len returns the number of cached conversations.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
