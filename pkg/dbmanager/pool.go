package dbmanager

import (
	"context"
	"log"
	"sync"
	"time"

	"mongoscan/internal/metrics"
	"mongoscan/pkg/apperr"
	"mongoscan/pkg/locator"
)

// Connection is a pooled native client plus usage metadata. The pool owns its
// lifetime; a caller holding it from Acquire owns its use until Release.
type Connection struct {
	ID        uint64
	Client    NativeClient
	CreatedAt time.Time

	lastUsed time.Time
	inUse    bool
	discard  bool
	pool     *Pool
}

// Collection returns a handle on a collection of the pool's database.
func (c *Connection) Collection(name string) Collection {
	return c.Client.Collection(c.pool.loc.Database, name)
}

// Status reports whether the connection is idle, checked out or closed.
func (c *Connection) Status() ConnectionStatus {
	c.pool.mu.Lock()
	defer c.pool.mu.Unlock()
	switch {
	case c.inUse:
		return StatusInUse
	case c.pool.conns[c.ID] == c:
		return StatusIdle
	}
	return StatusClosed
}

// Pool manages the connections of one locator key.
type Pool struct {
	loc    *locator.Locator
	dialer Dialer
	opts   PoolOptions

	mu           sync.Mutex
	conns        map[uint64]*Connection
	creating     int
	active       int
	nextID       uint64
	totalCreated uint64
	closed       bool
}

func newPool(loc *locator.Locator, dialer Dialer, opts PoolOptions) *Pool {
	return &Pool{
		loc:    loc,
		dialer: dialer,
		opts:   opts.withDefaults(),
		conns:  make(map[uint64]*Connection),
	}
}

// Acquire evicts expired idle connections, then hands out an idle connection
// or dials a new one while under capacity. A full pool returns
// apperr.ErrConnectionExhausted, which callers may retry.
func (p *Pool) Acquire(ctx context.Context) (*Connection, error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, apperr.New(apperr.KindConnectionFailed, "Pool.Acquire", "pool is closed")
	}

	now := time.Now()
	victims := p.evictLocked(now)

	for _, conn := range p.conns {
		if !conn.inUse && !conn.discard {
			conn.inUse = true
			conn.lastUsed = now
			p.active++
			p.mu.Unlock()
			metrics.ConnectionsActive.Inc()
			p.disconnectAll(victims)
			return conn, nil
		}
	}

	if len(p.conns)+p.creating >= p.opts.MaxConnections {
		p.mu.Unlock()
		p.disconnectAll(victims)
		metrics.PoolExhausted.Inc()
		return nil, apperr.Newf(apperr.KindConnectionExhausted, "Pool.Acquire", "all %d connections to %s are in use", p.opts.MaxConnections, p.loc.Redacted())
	}

	p.creating++
	p.nextID++
	id := p.nextID
	p.mu.Unlock()
	p.disconnectAll(victims)

	client, err := p.dial(ctx)

	p.mu.Lock()
	p.creating--
	if err != nil {
		p.mu.Unlock()
		return nil, err
	}
	if p.closed {
		p.mu.Unlock()
		p.disconnect(client)
		return nil, apperr.New(apperr.KindConnectionFailed, "Pool.Acquire", "pool closed while connecting")
	}

	conn := &Connection{
		ID:        id,
		Client:    client,
		CreatedAt: now,
		lastUsed:  time.Now(),
		inUse:     true,
		pool:      p,
	}
	p.conns[id] = conn
	p.active++
	p.totalCreated++
	p.mu.Unlock()

	metrics.ConnectionsCreated.Inc()
	metrics.ConnectionsActive.Inc()
	log.Printf("Pool -> Acquire -> Created connection %d for %s", id, p.loc.Redacted())
	return conn, nil
}

// dial connects and runs the liveness probe. The collection check only logs.
func (p *Pool) dial(ctx context.Context) (NativeClient, error) {
	ctx, cancel := context.WithTimeout(ctx, p.opts.ConnectTimeout)
	defer cancel()

	client, err := p.dialer.Dial(ctx, p.loc)
	if err != nil {
		log.Printf("Pool -> dial -> Failed to connect to %s: %v", p.loc.Redacted(), err)
		return nil, ClassifyError("Pool.Dial", err)
	}

	if err := client.Ping(ctx, p.loc.Database); err != nil {
		log.Printf("Pool -> dial -> Liveness probe failed for %s: %v", p.loc.Redacted(), err)
		p.disconnect(client)
		return nil, ClassifyError("Pool.Ping", err)
	}

	exists, err := client.CollectionExists(ctx, p.loc.Database, p.loc.Collection)
	switch {
	case err != nil:
		log.Printf("Pool -> dial -> Could not check collection %s: %v", p.loc.Namespace(), err)
	case !exists:
		log.Printf("Pool -> dial -> Collection %s does not exist yet", p.loc.Namespace())
	}
	return client, nil
}

// Release returns a connection to the pool. Releasing a connection that is
// not checked out is a no-op.
func (p *Pool) Release(conn *Connection) {
	if conn == nil || conn.pool != p {
		return
	}

	p.mu.Lock()
	if !conn.inUse {
		p.mu.Unlock()
		return
	}
	conn.inUse = false
	conn.lastUsed = time.Now()
	p.active--
	metrics.ConnectionsActive.Dec()

	_, tracked := p.conns[conn.ID]
	if !conn.discard && !p.closed && tracked {
		p.mu.Unlock()
		return
	}
	delete(p.conns, conn.ID)
	p.mu.Unlock()

	if tracked {
		p.disconnect(conn.Client)
	}
}

// EvictIdle closes idle connections older than the idle timeout.
func (p *Pool) EvictIdle() int {
	p.mu.Lock()
	victims := p.evictLocked(time.Now())
	p.mu.Unlock()

	p.disconnectAll(victims)
	return len(victims)
}

func (p *Pool) evictLocked(now time.Time) []*Connection {
	var victims []*Connection
	for id, conn := range p.conns {
		if !conn.inUse && now.Sub(conn.lastUsed) > p.opts.IdleTimeout {
			victims = append(victims, conn)
			delete(p.conns, id)
		}
	}
	return victims
}

// IsHealthy pings the store through an idle or newly created connection.
// A pool whose connections are all busy reports healthy.
func (p *Pool) IsHealthy(ctx context.Context) bool {
	conn, err := p.Acquire(ctx)
	if err != nil {
		return apperr.Retryable(err)
	}
	defer p.Release(conn)

	if err := conn.Client.Ping(ctx, p.loc.Database); err != nil {
		log.Printf("Pool -> IsHealthy -> Ping failed for %s: %v", p.loc.Redacted(), err)
		p.mu.Lock()
		conn.discard = true
		p.mu.Unlock()
		return false
	}
	return true
}

// ForceReconnectAll closes idle connections now and marks checked-out ones so
// they are closed on release. Later acquires dial fresh connections.
func (p *Pool) ForceReconnectAll() {
	p.mu.Lock()
	var victims []*Connection
	for id, conn := range p.conns {
		if conn.inUse {
			conn.discard = true
			continue
		}
		victims = append(victims, conn)
		delete(p.conns, id)
	}
	p.mu.Unlock()

	p.disconnectAll(victims)
	log.Printf("Pool -> ForceReconnectAll -> Closed %d idle connections for %s", len(victims), p.loc.Redacted())
}

// Close destroys every connection, checked out or not. Connections must not
// be used after Close.
func (p *Pool) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	victims := make([]*Connection, 0, len(p.conns))
	for id, conn := range p.conns {
		if conn.inUse {
			conn.inUse = false
			p.active--
			metrics.ConnectionsActive.Dec()
		}
		victims = append(victims, conn)
		delete(p.conns, id)
	}
	p.mu.Unlock()

	p.disconnectAll(victims)
}

// Stats returns a snapshot of the pool counters.
func (p *Pool) Stats() PoolStats {
	p.mu.Lock()
	defer p.mu.Unlock()

	return PoolStats{
		Key:          p.loc.Redacted(),
		Max:          p.opts.MaxConnections,
		Active:       p.active,
		Idle:         len(p.conns) - p.active,
		TotalCreated: p.totalCreated,
		NextID:       p.nextID + 1,
		Closed:       p.closed,
	}
}

func (p *Pool) disconnectAll(conns []*Connection) {
	for _, conn := range conns {
		p.disconnect(conn.Client)
	}
}

func (p *Pool) disconnect(client NativeClient) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Disconnect(ctx); err != nil {
		log.Printf("Pool -> disconnect -> Error disconnecting from %s: %v", p.loc.Redacted(), err)
	}
}
