package core

import "sync"

// Registry maps a user id to its single live connection. Last registered
// wins: a second connection for the same user replaces the first, and the
// superseded client is handed back to the caller so its transport can be
// closed. Correct within one process only.
type Registry struct {
	mu    sync.RWMutex
	conns map[string]*Client

	// onDisconnect runs before an entry is removed, so a presence query
	// racing the disconnect sees either the live entry or the freshly
	// written last-seen record.
	onDisconnect func(userID string)
}

// NewRegistry builds an empty registry.
func NewRegistry() *Registry {
	return &Registry{conns: make(map[string]*Client)}
}

// SetDisconnectHook installs the hook invoked on unregister. Must be called
// before connections are accepted.
func (r *Registry) SetDisconnectHook(fn func(userID string)) {
	r.onDisconnect = fn
}

// Register records the client as the live connection for its user and
// returns the client it replaced, if any.
func (r *Registry) Register(c *Client) (prev *Client) {
	r.mu.Lock()
	defer r.mu.Unlock()

	prev = r.conns[c.ID]
	r.conns[c.ID] = c
	return prev
}

// Lookup returns the live connection for a user. Never blocks on I/O.
func (r *Registry) Lookup(userID string) (*Client, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.conns[userID]
	return c, ok
}

// Unregister removes the client's entry if it is still the registered one;
// a connection that was superseded must not evict its replacement.
// Idempotent. The disconnect hook fires before removal and may block on
// the cache collaborator, so it runs outside the lock.
func (r *Registry) Unregister(c *Client) {
	r.mu.RLock()
	current := r.conns[c.ID] == c
	r.mu.RUnlock()
	if !current {
		return
	}

	if r.onDisconnect != nil {
		r.onDisconnect(c.ID)
	}

	r.mu.Lock()
	if r.conns[c.ID] == c {
		delete(r.conns, c.ID)
	}
	r.mu.Unlock()
}
