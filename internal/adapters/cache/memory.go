package cache

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/remlyo/remlyo-api/internal/domain"
	"github.com/remlyo/remlyo-api/internal/ports"
)

// Memory implements every cache port in process. It is used when no Redis URL is
// configured and by tests; state is lost on restart and not shared between replicas.
type Memory struct {
	mu       sync.Mutex
	now      func() time.Time
	lockouts map[string]memoryLockout
	revoked  map[uuid.UUID]time.Time
	flows    map[uuid.UUID]memoryFlow
	counters map[string]memoryCounter
}

type memoryLockout struct {
	state     ports.LockoutState
	expiresAt time.Time
}

type memoryFlow struct {
	status    domain.FlowStatus
	expiresAt time.Time
}

type memoryCounter struct {
	value     int64
	expiresAt time.Time
}

func NewMemory() *Memory {
	return &Memory{
		now:      func() time.Time { return time.Now().UTC() },
		lockouts: map[string]memoryLockout{},
		revoked:  map[uuid.UUID]time.Time{},
		flows:    map[uuid.UUID]memoryFlow{},
		counters: map[string]memoryCounter{},
	}
}

func (m *Memory) Get(_ context.Context, key string) (ports.LockoutState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry, ok := m.lockouts[key]
	if !ok || m.now().After(entry.expiresAt) {
		delete(m.lockouts, key)
		return ports.LockoutState{}, nil
	}
	return entry.state, nil
}

func (m *Memory) RecordFailure(_ context.Context, key string, now time.Time, threshold int, lockoutWindow time.Duration) (ports.LockoutState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry, ok := m.lockouts[key]
	if !ok || m.now().After(entry.expiresAt) {
		entry = memoryLockout{expiresAt: m.now().Add(lockoutWindow)}
	}
	entry.state.FailedCount++
	if entry.state.FailedCount >= threshold {
		lockedUntil := now.Add(lockoutWindow).UTC()
		entry.state.LockedUntil = &lockedUntil
		entry.expiresAt = m.now().Add(lockoutWindow)
	}
	m.lockouts[key] = entry
	return entry.state, nil
}

func (m *Memory) Clear(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.lockouts, key)
	return nil
}

func (m *Memory) MarkRevoked(_ context.Context, sessionID uuid.UUID, expiresAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.revoked[sessionID] = expiresAt
	return nil
}

func (m *Memory) IsRevoked(_ context.Context, sessionID uuid.UUID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.revoked[sessionID]
	return ok, nil
}

// Flows exposes the flow-status cache, whose method set collides with the lockout store.
func (m *Memory) Flows() ports.FlowStatusCache {
	return memoryFlowCache{m: m}
}

type memoryFlowCache struct {
	m *Memory
}

func (c memoryFlowCache) Get(_ context.Context, userID uuid.UUID) (domain.FlowStatus, bool, error) {
	c.m.mu.Lock()
	defer c.m.mu.Unlock()
	entry, ok := c.m.flows[userID]
	if !ok || c.m.now().After(entry.expiresAt) {
		delete(c.m.flows, userID)
		return "", false, nil
	}
	return entry.status, true, nil
}

func (c memoryFlowCache) Put(_ context.Context, userID uuid.UUID, status domain.FlowStatus, ttl time.Duration) error {
	c.m.mu.Lock()
	defer c.m.mu.Unlock()
	c.m.flows[userID] = memoryFlow{status: status, expiresAt: c.m.now().Add(ttl)}
	return nil
}

func (c memoryFlowCache) Invalidate(_ context.Context, userID uuid.UUID) error {
	c.m.mu.Lock()
	defer c.m.mu.Unlock()
	delete(c.m.flows, userID)
	return nil
}

func (m *Memory) Increment(_ context.Context, key string, window time.Duration) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry, ok := m.counters[key]
	if !ok || m.now().After(entry.expiresAt) {
		entry = memoryCounter{expiresAt: m.now().Add(window)}
	}
	entry.value++
	m.counters[key] = entry
	return entry.value, nil
}

func (m *Memory) Decrement(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry, ok := m.counters[key]
	if !ok || m.now().After(entry.expiresAt) || entry.value == 0 {
		return nil
	}
	entry.value--
	m.counters[key] = entry
	return nil
}
