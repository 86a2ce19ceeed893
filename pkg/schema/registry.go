package schema

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson"

	"mongoscan/internal/metrics"
	"mongoscan/pkg/dbmanager"
	"mongoscan/pkg/locator"
	"mongoscan/pkg/rowconv"
)

// ConnectionSource hands out connections for sampling. *dbmanager.Pool
// satisfies it.
type ConnectionSource interface {
	Acquire(ctx context.Context) (*dbmanager.Connection, error)
	Release(conn *dbmanager.Connection)
}

// Registries keeps one Registry per deployment key.
type Registries struct {
	manager *dbmanager.Manager
	store   Store
	opts    Options

	mu         sync.Mutex
	registries map[string]*Registry
}

// NewRegistries creates the registry map. store may be nil.
func NewRegistries(manager *dbmanager.Manager, store Store, opts Options) *Registries {
	return &Registries{
		manager:    manager,
		store:      store,
		opts:       opts.withDefaults(),
		registries: make(map[string]*Registry),
	}
}

// For returns the registry for loc's deployment, creating it on first use.
func (r *Registries) For(loc *locator.Locator) *Registry {
	key := loc.Key()

	r.mu.Lock()
	defer r.mu.Unlock()
	if reg, ok := r.registries[key]; ok {
		return reg
	}
	reg := NewRegistry(r.manager.Pool(loc), r.store, r.opts)
	reg.scope = key
	r.registries[key] = reg
	return reg
}

// ClearAll empties every registry cache.
func (r *Registries) ClearAll(ctx context.Context) {
	r.mu.Lock()
	regs := make([]*Registry, 0, len(r.registries))
	for _, reg := range r.registries {
		regs = append(regs, reg)
	}
	r.mu.Unlock()

	for _, reg := range regs {
		reg.Clear(ctx)
	}
}

// Registry infers and caches collection mappings for one deployment.
type Registry struct {
	source ConnectionSource
	store  Store
	opts   Options
	scope  string

	mu        sync.Mutex
	cache     map[string]*Mapping
	overrides map[string][]FieldMapping
	hits      uint64
	misses    uint64
}

// NewRegistry creates a registry sampling through source. store may be nil.
func NewRegistry(source ConnectionSource, store Store, opts Options) *Registry {
	return &Registry{
		source:    source,
		store:     store,
		opts:      opts.withDefaults(),
		cache:     make(map[string]*Mapping),
		overrides: make(map[string][]FieldMapping),
	}
}

func namespace(database, collection string) string {
	return database + "." + collection
}

func (r *Registry) storeKey(ns string) string {
	if r.scope == "" {
		return ns
	}
	return r.scope + "|" + ns
}

// Infer returns the mapping of database.collection, sampling the collection
// when no unexpired cached mapping exists. The returned mapping is a copy.
func (r *Registry) Infer(ctx context.Context, database, collection string) (*Mapping, error) {
	ns := namespace(database, collection)
	now := time.Now()

	if r.opts.CacheEnabled {
		r.mu.Lock()
		if m, ok := r.cache[ns]; ok && !m.Expired(now) {
			r.hits++
			r.mu.Unlock()
			metrics.SchemaCacheHits.Inc()
			return m.clone(), nil
		}
		r.mu.Unlock()

		if m := r.loadStored(ctx, ns, now); m != nil {
			r.mu.Lock()
			r.hits++
			r.cache[ns] = m
			r.mu.Unlock()
			metrics.SchemaCacheHits.Inc()
			return m.clone(), nil
		}
	}

	r.mu.Lock()
	r.misses++
	r.mu.Unlock()
	metrics.SchemaCacheMisses.Inc()

	docs, err := r.sample(ctx, database, collection)
	if err != nil {
		return nil, err
	}
	fields := Build(docs, r.opts)

	r.mu.Lock()
	fields = applyOverrides(fields, r.overrides[ns])
	m := &Mapping{
		Database:    database,
		Collection:  collection,
		Fields:      fields,
		SampleSize:  len(docs),
		Fingerprint: Fingerprint(fields),
		CreatedAt:   now,
		ExpiresAt:   now.Add(r.opts.TTL),
	}
	if prev, ok := r.cache[ns]; ok && prev.Fingerprint != m.Fingerprint {
		log.Printf("SchemaRegistry -> Infer -> Layout of %s changed (%d -> %d fields)", ns, len(prev.Fields), len(m.Fields))
	}
	if r.opts.CacheEnabled {
		r.cache[ns] = m
	}
	r.mu.Unlock()

	if r.opts.CacheEnabled && r.store != nil {
		if err := r.store.Save(ctx, r.storeKey(ns), m, r.opts.TTL); err != nil {
			log.Printf("SchemaRegistry -> Infer -> Failed to persist mapping for %s: %v", ns, err)
		}
	}

	log.Printf("SchemaRegistry -> Infer -> Inferred %d fields for %s from %d documents", len(m.Fields), ns, len(docs))
	return m.clone(), nil
}

func (r *Registry) loadStored(ctx context.Context, ns string, now time.Time) *Mapping {
	if r.store == nil {
		return nil
	}
	m, err := r.store.Load(ctx, r.storeKey(ns))
	if err != nil {
		if !errors.Is(err, ErrNotStored) {
			log.Printf("SchemaRegistry -> loadStored -> Failed to load mapping for %s: %v", ns, err)
		}
		return nil
	}
	if m.Expired(now) {
		return nil
	}
	return m
}

// sample runs outside the registry lock; concurrent cold inferences of one
// collection may both sample and the later merge wins.
func (r *Registry) sample(ctx context.Context, database, collection string) ([]bson.D, error) {
	conn, err := r.source.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer r.source.Release(conn)

	docs, err := conn.Client.Collection(database, collection).Sample(ctx, r.opts.SampleSize)
	if err != nil {
		return nil, dbmanager.ClassifyError("SchemaRegistry.Sample", err)
	}
	return docs, nil
}

// RegisterFieldMapping pins a field mapping for a collection. It replaces any
// inferred mapping with the same column name and survives reinference.
func (r *Registry) RegisterFieldMapping(database, collection string, field FieldMapping) error {
	if !IsValidIdentifier(field.Column) {
		return fmt.Errorf("invalid column name %q", field.Column)
	}
	if field.Path == "" {
		field.Path = field.Column
	}
	field.Nullable = true
	field.Manual = true
	if field.Length == 0 {
		field.Length = rowconv.LengthHint(field.Type)
	}

	ns := namespace(database, collection)
	r.mu.Lock()
	defer r.mu.Unlock()

	pinned := r.overrides[ns]
	replaced := false
	for i := range pinned {
		if pinned[i].Column == field.Column {
			pinned[i] = field
			replaced = true
		}
	}
	if !replaced {
		pinned = append(pinned, field)
	}
	r.overrides[ns] = pinned

	if m, ok := r.cache[ns]; ok {
		m.Fields = applyOverrides(m.Fields, []FieldMapping{field})
		m.Fingerprint = Fingerprint(m.Fields)
	}
	return nil
}

func applyOverrides(fields, overrides []FieldMapping) []FieldMapping {
	out := append([]FieldMapping(nil), fields...)
	for _, o := range overrides {
		found := false
		for i := range out {
			if out[i].Column == o.Column {
				out[i] = o
				found = true
				break
			}
		}
		if !found {
			out = append(out, o)
		}
	}
	return out
}

// Invalidate drops the cached mapping of one collection.
func (r *Registry) Invalidate(ctx context.Context, database, collection string) {
	ns := namespace(database, collection)
	r.mu.Lock()
	delete(r.cache, ns)
	r.mu.Unlock()

	if r.store != nil {
		if err := r.store.Delete(ctx, r.storeKey(ns)); err != nil {
			log.Printf("SchemaRegistry -> Invalidate -> Failed to delete stored mapping for %s: %v", ns, err)
		}
	}
}

// Clear drops every cached mapping and resets the hit counters.
func (r *Registry) Clear(ctx context.Context) {
	r.mu.Lock()
	namespaces := make([]string, 0, len(r.cache))
	for ns := range r.cache {
		namespaces = append(namespaces, ns)
	}
	r.cache = make(map[string]*Mapping)
	r.hits, r.misses = 0, 0
	r.mu.Unlock()

	if r.store != nil {
		for _, ns := range namespaces {
			if err := r.store.Delete(ctx, r.storeKey(ns)); err != nil {
				log.Printf("SchemaRegistry -> Clear -> Failed to delete stored mapping for %s: %v", ns, err)
			}
		}
	}
}

// CacheSize counts cached mappings, expired ones included.
func (r *Registry) CacheSize() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.cache)
}

// CachedTables lists the namespaces with an unexpired mapping.
func (r *Registry) CachedTables() []string {
	now := time.Now()
	r.mu.Lock()
	defer r.mu.Unlock()

	tables := make([]string, 0, len(r.cache))
	for ns, m := range r.cache {
		if !m.Expired(now) {
			tables = append(tables, ns)
		}
	}
	sort.Strings(tables)
	return tables
}

// HitRatio is hits / (hits + misses), or zero before the first lookup.
func (r *Registry) HitRatio() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	total := r.hits + r.misses
	if total == 0 {
		return 0
	}
	return float64(r.hits) / float64(total)
}
