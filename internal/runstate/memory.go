package runstate

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Memory is the in-process run state used when Redis is not configured.
// Locks do not expire; they are released when the run finishes.
type Memory struct {
	mu       sync.Mutex
	locks    map[string]bool
	notified map[string]bool
}

func NewMemory() *Memory {
	return &Memory{
		locks:    make(map[string]bool),
		notified: make(map[string]bool),
	}
}

func (m *Memory) AcquireRunLock(_ context.Context, repo string, _ time.Duration) (Release, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.locks[repo] {
		return nil, fmt.Errorf("%w: %s", ErrRunInProgress, repo)
	}
	m.locks[repo] = true

	var once sync.Once
	return func(context.Context) error {
		once.Do(func() {
			m.mu.Lock()
			delete(m.locks, repo)
			m.mu.Unlock()
		})
		return nil
	}, nil
}

func (m *Memory) MarkNotified(_ context.Context, repo string, number int) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := fmt.Sprintf("%s:%d", repo, number)
	if m.notified[key] {
		return false, nil
	}
	m.notified[key] = true
	return true, nil
}

func (m *Memory) ClearNotified(_ context.Context, repo string, number int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.notified, fmt.Sprintf("%s:%d", repo, number))
	return nil
}

func (m *Memory) Ping(context.Context) error {
	return nil
}
