package queue

import "sync"

// Registry maps guild IDs to their queues with thread-safe access.
type Registry struct {
	mu     sync.RWMutex
	queues map[string]*Queue
	config Config
}

// NewRegistry creates a new queue registry.
func NewRegistry(config Config) *Registry {
	return &Registry{
		queues: make(map[string]*Queue),
		config: config,
	}
}

// GetOrCreate returns the guild's queue, creating it if needed.
func (r *Registry) GetOrCreate(guildID string) *Queue {
	r.mu.Lock()
	defer r.mu.Unlock()

	if q, ok := r.queues[guildID]; ok {
		return q
	}
	q := New(guildID, r.config)
	r.queues[guildID] = q
	return q
}

// Get retrieves the guild's queue.
func (r *Registry) Get(guildID string) (*Queue, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	q, ok := r.queues[guildID]
	return q, ok
}

// Remove deletes the guild's queue only if it is still q.
// It returns false when q was already replaced or removed.
func (r *Registry) Remove(guildID string, q *Queue) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if cur, ok := r.queues[guildID]; ok && cur == q {
		delete(r.queues, guildID)
		return true
	}
	return false
}

// All returns all queues.
func (r *Registry) All() []*Queue {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]*Queue, 0, len(r.queues))
	for _, q := range r.queues {
		result = append(result, q)
	}
	return result
}

// Count returns the number of queues.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.queues)
}
