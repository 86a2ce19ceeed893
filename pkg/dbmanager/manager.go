package dbmanager

import (
	"context"
	"log"
	"sort"
	"sync"
	"time"

	"mongoscan/pkg/locator"
)

// Manager keeps one pool per locator key. Locators that differ only in the
// collection share a pool.
type Manager struct {
	dialer      Dialer
	opts        PoolOptions
	pools       map[string]*Pool
	mu          sync.RWMutex
	stopCleanup chan struct{}
	stopOnce    sync.Once
}

// NewManager creates a pool registry and starts the idle sweep when
// opts.CleanupInterval is positive.
func NewManager(dialer Dialer, opts PoolOptions) *Manager {
	m := &Manager{
		dialer:      dialer,
		opts:        opts.withDefaults(),
		pools:       make(map[string]*Pool),
		stopCleanup: make(chan struct{}),
	}

	if opts.CleanupInterval > 0 {
		go func() {
			defer func() {
				if r := recover(); r != nil {
					log.Printf("DBManager -> Cleanup routine panic recovered: %v", r)
				}
			}()
			m.startCleanupRoutine(opts.CleanupInterval)
		}()
	}
	return m
}

// Pool returns the pool for loc, creating it on first use.
func (m *Manager) Pool(loc *locator.Locator) *Pool {
	key := loc.Key()

	m.mu.RLock()
	pool, ok := m.pools[key]
	m.mu.RUnlock()
	if ok {
		return pool
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if pool, ok := m.pools[key]; ok {
		return pool
	}
	pool = newPool(loc, m.dialer, m.opts)
	m.pools[key] = pool
	log.Printf("DBManager -> Pool -> Created pool for %s", loc.Redacted())
	return pool
}

// Acquire checks a connection out of the pool for loc.
func (m *Manager) Acquire(ctx context.Context, loc *locator.Locator) (*Connection, error) {
	return m.Pool(loc).Acquire(ctx)
}

// Release hands conn back to the pool it came from.
func (m *Manager) Release(conn *Connection) {
	if conn == nil || conn.pool == nil {
		return
	}
	conn.pool.Release(conn)
}

// Stats returns a snapshot of every pool, ordered by key.
func (m *Manager) Stats() []PoolStats {
	m.mu.RLock()
	stats := make([]PoolStats, 0, len(m.pools))
	for _, pool := range m.pools {
		stats = append(stats, pool.Stats())
	}
	m.mu.RUnlock()

	sort.Slice(stats, func(i, j int) bool { return stats[i].Key < stats[j].Key })
	return stats
}

// ForceReconnectAll recycles the connections of every pool.
func (m *Manager) ForceReconnectAll() {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, pool := range m.pools {
		pool.ForceReconnectAll()
	}
}

// CleanupAll evicts idle connections across all pools.
func (m *Manager) CleanupAll() int {
	m.mu.RLock()
	pools := make([]*Pool, 0, len(m.pools))
	for _, pool := range m.pools {
		pools = append(pools, pool)
	}
	m.mu.RUnlock()

	evicted := 0
	for _, pool := range pools {
		evicted += pool.EvictIdle()
	}
	return evicted
}

func (m *Manager) startCleanupRoutine(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	log.Printf("DBManager -> startCleanupRoutine -> Starting cleanup routine with interval: %v", interval)

	for {
		select {
		case <-m.stopCleanup:
			log.Printf("DBManager -> startCleanupRoutine -> Cleanup routine stopped")
			return
		case <-ticker.C:
			if n := m.CleanupAll(); n > 0 {
				log.Printf("DBManager -> cleanup -> Evicted %d idle connections", n)
			}
		}
	}
}

// Stop closes every pool and stops the cleanup routine. Safe to call twice.
func (m *Manager) Stop() error {
	m.stopOnce.Do(func() {
		log.Println("DBManager -> Stop -> Stopping manager")
		close(m.stopCleanup)

		m.mu.Lock()
		for key, pool := range m.pools {
			pool.Close()
			delete(m.pools, key)
		}
		m.mu.Unlock()

		log.Println("DBManager -> Stop -> Manager stopped successfully")
	})
	return nil
}
