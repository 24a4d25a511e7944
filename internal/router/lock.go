package router

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/infoundr/infoundr/internal/domain"
)

// ThreadLockManager serializes message processing per thread key. Two
// messages on the same thread must be handled one at a time so session
// history and routing state stay ordered.
type ThreadLockManager struct {
	locks  map[string]*sync.Mutex
	mu     sync.Mutex
	logger *slog.Logger
}

// NewThreadLockManager creates an empty lock manager.
func NewThreadLockManager(logger *slog.Logger) *ThreadLockManager {
	return &ThreadLockManager{
		locks:  make(map[string]*sync.Mutex),
		logger: logger,
	}
}

func (m *ThreadLockManager) getLock(threadKey string) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.locks[threadKey] == nil {
		m.locks[threadKey] = &sync.Mutex{}
	}
	return m.locks[threadKey]
}

// TryLockWithTimeout attempts to acquire the lock for a thread, failing
// with ErrThreadBusy when the holder does not release it in time.
func (m *ThreadLockManager) TryLockWithTimeout(ctx context.Context, threadKey string, timeout time.Duration) error {
	lock := m.getLock(threadKey)

	done := make(chan struct{})
	go func() {
		lock.Lock()
		close(done)
	}()

	// On timeout the acquiring goroutine may still get the lock later;
	// it must then be released or the thread stays locked forever.
	abandon := func() {
		go func() {
			<-done
			lock.Unlock()
		}()
	}

	select {
	case <-done:
		return nil
	case <-time.After(timeout):
		abandon()
		m.logger.Warn("timeout acquiring thread lock", "thread_key", threadKey, "timeout", timeout)
		return fmt.Errorf("acquiring lock for %s: %w", threadKey, domain.ErrThreadBusy)
	case <-ctx.Done():
		abandon()
		return ctx.Err()
	}
}

// Unlock releases the lock for a thread.
func (m *ThreadLockManager) Unlock(threadKey string) {
	m.getLock(threadKey).Unlock()
}
