package dbmanager

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"

	"mongoscan/pkg/locator"
)

// ConnectionStatus represents the current state of a pooled connection
type ConnectionStatus string

const (
	StatusIdle   ConnectionStatus = "idle"
	StatusInUse  ConnectionStatus = "in-use"
	StatusClosed ConnectionStatus = "closed"
)

// Dialer opens native clients. The MongoDB driver implements it in production;
// tests substitute an in-memory store.
type Dialer interface {
	Dial(ctx context.Context, loc *locator.Locator) (NativeClient, error)
}

// NativeClient is a live client bound to one deployment.
type NativeClient interface {
	Ping(ctx context.Context, database string) error
	CollectionExists(ctx context.Context, database, collection string) (bool, error)
	Collection(database, collection string) Collection
	Disconnect(ctx context.Context) error
}

// Collection is the subset of collection operations a scan needs.
type Collection interface {
	Find(ctx context.Context, filter bson.D, opts FindOptions) (Cursor, error)
	CountDocuments(ctx context.Context, filter bson.D) (int64, error)
	EstimatedDocumentCount(ctx context.Context) (int64, error)
	Sample(ctx context.Context, size int) ([]bson.D, error)
}

// Cursor is a forward-only iterator over query results. *mongo.Cursor satisfies it.
type Cursor interface {
	Next(ctx context.Context) bool
	Decode(val interface{}) error
	Err() error
	Close(ctx context.Context) error
}

// FindOptions carries projection, ordering and batching hints.
type FindOptions struct {
	Projection bson.D
	Sort       bson.D
	Limit      int64
	BatchSize  int32
}

// PoolOptions configures every pool created by a Manager.
type PoolOptions struct {
	MaxConnections  int           // per locator key (default: 10)
	IdleTimeout     time.Duration // idle connections older than this are evicted (default: 5min)
	ConnectTimeout  time.Duration // bound on dial + liveness probe (default: 30s)
	CleanupInterval time.Duration // background eviction sweep; zero disables it
}

// DefaultPoolOptions returns default pool options
func DefaultPoolOptions() PoolOptions {
	return PoolOptions{
		MaxConnections:  10,
		IdleTimeout:     300 * time.Second,
		ConnectTimeout:  30 * time.Second,
		CleanupInterval: time.Minute,
	}
}

func (o PoolOptions) withDefaults() PoolOptions {
	def := DefaultPoolOptions()
	if o.MaxConnections <= 0 {
		o.MaxConnections = def.MaxConnections
	}
	if o.IdleTimeout <= 0 {
		o.IdleTimeout = def.IdleTimeout
	}
	if o.ConnectTimeout <= 0 {
		o.ConnectTimeout = def.ConnectTimeout
	}
	return o
}

// PoolStats is a snapshot of one pool's counters.
type PoolStats struct {
	Key          string `json:"key"`
	Max          int    `json:"max_connections"`
	Active       int    `json:"active"`
	Idle         int    `json:"idle"`
	TotalCreated uint64 `json:"total_created"`
	NextID       uint64 `json:"next_id"`
	Closed       bool   `json:"closed"`
}
