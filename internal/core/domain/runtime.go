package domain

import "sync"

// RuntimeConfig tracks which backends are in use at runtime.
// Backends are fixed at startup; remote reachability is updated by the warmer.
// Thread-safe for concurrent access.
type RuntimeConfig struct {
	mu sync.RWMutex

	// Static (set at startup, read-only)
	StoreBackend    string // "sqlite" or "postgres"
	NotifierBackend string // "memory" or "redis"

	remoteReachable bool
}

// NewRuntimeConfig creates a new RuntimeConfig with initial values
func NewRuntimeConfig(storeBackend, notifierBackend string) *RuntimeConfig {
	return &RuntimeConfig{
		StoreBackend:    storeBackend,
		NotifierBackend: notifierBackend,
	}
}

// RemoteReachable returns whether the last remote call succeeded
func (c *RuntimeConfig) RemoteReachable() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.remoteReachable
}

// SetRemoteReachable updates the remote reachability flag
func (c *RuntimeConfig) SetRemoteReachable(reachable bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.remoteReachable = reachable
}

// Shared reports whether several processes may write the same cache, which
// is when loads need the distributed lock.
func (c *RuntimeConfig) Shared() bool {
	return c.StoreBackend == "postgres"
}
