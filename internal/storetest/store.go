// Package storetest provides an in-memory document store that satisfies the
// dbmanager client interfaces, for tests that must not reach a server.
package storetest

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"go.mongodb.org/mongo-driver/bson"

	"mongoscan/pkg/dbmanager"
	"mongoscan/pkg/locator"
	"mongoscan/pkg/rowconv"
)

// Counts records how the store was used.
type Counts struct {
	Dials       int
	Pings       int
	Disconnects int
	Finds       int
	CountDocs   int
	Estimates   int
	Samples     int
	OpenCursors int
}

// Store holds collections keyed by "db.collection".
type Store struct {
	mu          sync.Mutex
	collections map[string][]bson.D
	counts      Counts
	filters     []bson.D

	dialErr  error
	pingErr  error
	findErr  error
	countErr error
}

// New returns an empty store.
func New() *Store {
	return &Store{collections: make(map[string][]bson.D)}
}

// Insert appends documents to db.coll, creating the collection.
func (s *Store) Insert(db, coll string, docs ...bson.D) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ns := db + "." + coll
	s.collections[ns] = append(s.collections[ns], docs...)
}

// CreateCollection makes db.coll exist with no documents.
func (s *Store) CreateCollection(db, coll string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ns := db + "." + coll
	if _, ok := s.collections[ns]; !ok {
		s.collections[ns] = []bson.D{}
	}
}

func (s *Store) SetDialErr(err error) {
	s.mu.Lock()
	s.dialErr = err
	s.mu.Unlock()
}

func (s *Store) SetPingErr(err error) {
	s.mu.Lock()
	s.pingErr = err
	s.mu.Unlock()
}

func (s *Store) SetFindErr(err error) {
	s.mu.Lock()
	s.findErr = err
	s.mu.Unlock()
}

func (s *Store) SetCountErr(err error) {
	s.mu.Lock()
	s.countErr = err
	s.mu.Unlock()
}

// Counts returns a snapshot of the usage counters.
func (s *Store) Counts() Counts {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.counts
}

// Filters returns the filters passed to Find and CountDocuments, in order.
func (s *Store) Filters() []bson.D {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]bson.D(nil), s.filters...)
}

// Dial implements dbmanager.Dialer.
func (s *Store) Dial(ctx context.Context, loc *locator.Locator) (dbmanager.NativeClient, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counts.Dials++
	if s.dialErr != nil {
		return nil, s.dialErr
	}
	return &client{store: s}, nil
}

type client struct {
	store  *Store
	closed bool
}

func (c *client) Ping(ctx context.Context, database string) error {
	c.store.mu.Lock()
	defer c.store.mu.Unlock()
	c.store.counts.Pings++
	if c.closed {
		return errors.New("client is disconnected")
	}
	return c.store.pingErr
}

func (c *client) CollectionExists(ctx context.Context, database, collection string) (bool, error) {
	c.store.mu.Lock()
	defer c.store.mu.Unlock()
	_, ok := c.store.collections[database+"."+collection]
	return ok, nil
}

func (c *client) Collection(database, collection string) dbmanager.Collection {
	return &memCollection{store: c.store, ns: database + "." + collection}
}

func (c *client) Disconnect(ctx context.Context) error {
	c.store.mu.Lock()
	defer c.store.mu.Unlock()
	if c.closed {
		return errors.New("client already disconnected")
	}
	c.closed = true
	c.store.counts.Disconnects++
	return nil
}

type memCollection struct {
	store *Store
	ns    string
}

func (c *memCollection) Find(ctx context.Context, filter bson.D, opts dbmanager.FindOptions) (dbmanager.Cursor, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c.store.mu.Lock()
	defer c.store.mu.Unlock()
	c.store.counts.Finds++
	c.store.filters = append(c.store.filters, filter)
	if c.store.findErr != nil {
		return nil, c.store.findErr
	}

	var docs []bson.D
	for _, doc := range c.store.collections[c.ns] {
		if MatchFilter(filter, doc) {
			docs = append(docs, doc)
		}
	}
	if len(opts.Sort) > 0 {
		sortDocs(docs, opts.Sort)
	}
	if opts.Limit > 0 && int64(len(docs)) > opts.Limit {
		docs = docs[:opts.Limit]
	}
	if len(opts.Projection) > 0 {
		docs = project(docs, opts.Projection)
	}

	c.store.counts.OpenCursors++
	return &cursor{store: c.store, docs: docs, pos: -1}, nil
}

func (c *memCollection) CountDocuments(ctx context.Context, filter bson.D) (int64, error) {
	c.store.mu.Lock()
	defer c.store.mu.Unlock()
	c.store.counts.CountDocs++
	c.store.filters = append(c.store.filters, filter)
	if c.store.countErr != nil {
		return 0, c.store.countErr
	}
	var n int64
	for _, doc := range c.store.collections[c.ns] {
		if MatchFilter(filter, doc) {
			n++
		}
	}
	return n, nil
}

func (c *memCollection) EstimatedDocumentCount(ctx context.Context) (int64, error) {
	c.store.mu.Lock()
	defer c.store.mu.Unlock()
	c.store.counts.Estimates++
	if c.store.countErr != nil {
		return 0, c.store.countErr
	}
	return int64(len(c.store.collections[c.ns])), nil
}

// Sample returns the first size documents, which keeps tests deterministic.
func (c *memCollection) Sample(ctx context.Context, size int) ([]bson.D, error) {
	c.store.mu.Lock()
	defer c.store.mu.Unlock()
	c.store.counts.Samples++
	if c.store.findErr != nil {
		return nil, c.store.findErr
	}
	docs := c.store.collections[c.ns]
	if len(docs) > size {
		docs = docs[:size]
	}
	return append([]bson.D(nil), docs...), nil
}

type cursor struct {
	store  *Store
	docs   []bson.D
	pos    int
	closed bool
}

func (c *cursor) Next(ctx context.Context) bool {
	if c.closed || ctx.Err() != nil {
		return false
	}
	if c.pos+1 >= len(c.docs) {
		c.pos = len(c.docs)
		return false
	}
	c.pos++
	return true
}

func (c *cursor) Decode(val interface{}) error {
	if c.pos < 0 || c.pos >= len(c.docs) {
		return errors.New("cursor is not positioned on a document")
	}
	data, err := bson.Marshal(c.docs[c.pos])
	if err != nil {
		return err
	}
	return bson.Unmarshal(data, val)
}

func (c *cursor) Err() error {
	return nil
}

func (c *cursor) Close(ctx context.Context) error {
	if c.closed {
		return nil
	}
	c.closed = true
	c.store.mu.Lock()
	c.store.counts.OpenCursors--
	c.store.mu.Unlock()
	return nil
}

func sortDocs(docs []bson.D, spec bson.D) {
	sort.SliceStable(docs, func(i, j int) bool {
		for _, key := range spec {
			cmp, ok := rowconv.Compare(rowconv.Lookup(docs[i], key.Key), rowconv.Lookup(docs[j], key.Key))
			if !ok || cmp == 0 {
				continue
			}
			if direction(key.Value) < 0 {
				return cmp > 0
			}
			return cmp < 0
		}
		return false
	})
}

func direction(v interface{}) int {
	switch d := v.(type) {
	case int:
		return d
	case int32:
		return int(d)
	case int64:
		return int(d)
	case float64:
		return int(d)
	}
	return 1
}

// project supports inclusion projections on top-level fields.
func project(docs []bson.D, spec bson.D) []bson.D {
	out := make([]bson.D, 0, len(docs))
	for _, doc := range docs {
		var projected bson.D
		for _, e := range doc {
			for _, p := range spec {
				if p.Key == e.Key && direction(p.Value) != 0 {
					projected = append(projected, e)
				}
			}
		}
		out = append(out, projected)
	}
	return out
}

// Doc builds a document from alternating keys and values.
func Doc(kv ...interface{}) bson.D {
	if len(kv)%2 != 0 {
		panic(fmt.Sprintf("storetest.Doc: odd argument count %d", len(kv)))
	}
	doc := make(bson.D, 0, len(kv)/2)
	for i := 0; i < len(kv); i += 2 {
		doc = append(doc, bson.E{Key: kv[i].(string), Value: kv[i+1]})
	}
	return doc
}
