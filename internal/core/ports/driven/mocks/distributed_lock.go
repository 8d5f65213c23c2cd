package mocks

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/custodia-labs/rickandmorty-sync/internal/core/ports/driven"
)

var _ driven.DistributedLock = (*MockDistributedLock)(nil)

const (
	mockOwner     = "mock-owner"
	externalOwner = "other-instance"
)

// MockDistributedLock is an in-process DistributedLock that records which
// lock names were taken, e.g. "load:character" or "warm". TTLs are recorded
// but never expire a lock: it is held until released or freed.
type MockDistributedLock struct {
	mu       sync.Mutex
	held     map[string]string // name -> owner
	ttls     map[string]time.Duration
	acquired []string
	released []string
	attempts int

	// AcquireFn replaces the acquire decision when set
	AcquireFn  func(name string, ttl time.Duration) (bool, error)
	ReleaseErr error
	PingErr    error
}

// NewMockDistributedLock creates a new MockDistributedLock
func NewMockDistributedLock() *MockDistributedLock {
	return &MockDistributedLock{
		held: make(map[string]string),
		ttls: make(map[string]time.Duration),
	}
}

func (m *MockDistributedLock) Acquire(ctx context.Context, name string, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	m.attempts++
	fn := m.AcquireFn
	m.mu.Unlock()

	if fn != nil {
		ok, err := fn(name, ttl)
		if ok && err == nil {
			m.take(name, ttl)
		}
		return ok, err
	}

	m.mu.Lock()
	_, busy := m.held[name]
	m.mu.Unlock()
	if busy {
		return false, nil
	}
	m.take(name, ttl)
	return true, nil
}

func (m *MockDistributedLock) take(name string, ttl time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.held[name] = mockOwner
	m.ttls[name] = ttl
	m.acquired = append(m.acquired, name)
}

// Release drops the lock only when this instance holds it, like the real
// backends do.
func (m *MockDistributedLock) Release(ctx context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ReleaseErr != nil {
		return m.ReleaseErr
	}
	m.released = append(m.released, name)
	if m.held[name] == mockOwner {
		delete(m.held, name)
	}
	return nil
}

func (m *MockDistributedLock) Extend(ctx context.Context, name string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.held[name] != mockOwner {
		return fmt.Errorf("lock %s not held", name)
	}
	m.ttls[name] = ttl
	return nil
}

func (m *MockDistributedLock) Ping(ctx context.Context) error {
	return m.PingErr
}

// Hold marks name as held by another instance.
func (m *MockDistributedLock) Hold(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.held[name] = externalOwner
}

// Free drops name whoever holds it.
func (m *MockDistributedLock) Free(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.held, name)
}

// Held reports whether anyone holds name.
func (m *MockDistributedLock) Held(name string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.held[name]
	return ok
}

// TTL returns the TTL of the last acquire or extend of name.
func (m *MockDistributedLock) TTL(name string) time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ttls[name]
}

// Acquired lists the names of successful acquires in order.
func (m *MockDistributedLock) Acquired() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.acquired...)
}

// Released lists the names passed to Release in order.
func (m *MockDistributedLock) Released() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.released...)
}

// Attempts counts every Acquire call, successful or not.
func (m *MockDistributedLock) Attempts() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.attempts
}
