package app

import (
	"sync"

	"github.com/autonex-agency/autonex/pkg/core/chat"
	"github.com/autonex-agency/autonex/pkg/core/types"
)

const mediaHandlePrefix = "media-"

// MediaRegistry owns attachment bytes referenced from messages by opaque handles.
// Releasing an unknown or already released handle is a no-op.
type MediaRegistry struct {
	mu      sync.Mutex
	entries map[string]chat.Attachment
}

// NewMediaRegistry creates an empty registry.
func NewMediaRegistry() *MediaRegistry {
	return &MediaRegistry{entries: make(map[string]chat.Attachment)}
}

// Register stores data and returns its handle.
func (r *MediaRegistry) Register(data []byte, mimeType string) string {
	handle := mediaHandlePrefix + types.NewID()
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[handle] = chat.Attachment{Data: data, MIMEType: mimeType}
	return handle
}

// Resolve returns the attachment behind handle.
func (r *MediaRegistry) Resolve(handle string) (chat.Attachment, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.entries[handle]
	return a, ok
}

// Release frees handle.
func (r *MediaRegistry) Release(handle string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.entries, handle)
}

// ReleaseAll frees every handle.
func (r *MediaRegistry) ReleaseAll() {
	r.mu.Lock()
	defer r.mu.Unlock()
	clear(r.entries)
}

// Len returns the number of live handles.
func (r *MediaRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}
