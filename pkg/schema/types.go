package schema

import (
	"time"

	"mongoscan/pkg/rowconv"
)

// FieldMapping maps one native document path to a relational column.
type FieldMapping struct {
	Column   string       `json:"column"`
	Path     string       `json:"path"`
	Type     rowconv.Type `json:"type"`
	Nullable bool         `json:"nullable"`
	Length   int          `json:"length"`
	Observed int          `json:"observed"`
	Manual   bool         `json:"manual,omitempty"`
}

// Mapping is the inferred layout of one collection.
type Mapping struct {
	Database    string         `json:"database"`
	Collection  string         `json:"collection"`
	Fields      []FieldMapping `json:"fields"`
	SampleSize  int            `json:"sample_size"`
	Fingerprint string         `json:"fingerprint"`
	CreatedAt   time.Time      `json:"created_at"`
	ExpiresAt   time.Time      `json:"expires_at"`
}

// Namespace returns "db.collection".
func (m *Mapping) Namespace() string {
	return m.Database + "." + m.Collection
}

// Expired reports whether the mapping may no longer be served from cache.
func (m *Mapping) Expired(now time.Time) bool {
	return !now.Before(m.ExpiresAt)
}

// Field returns the mapping for an exact column name.
func (m *Mapping) Field(column string) (FieldMapping, bool) {
	for _, f := range m.Fields {
		if f.Column == column {
			return f, true
		}
	}
	return FieldMapping{}, false
}

func (m *Mapping) clone() *Mapping {
	c := *m
	c.Fields = append([]FieldMapping(nil), m.Fields...)
	return &c
}

// Columns derives a row layout from the mapping: the identity column, one
// column per field, and the whole-document column last.
func (m *Mapping) Columns() []rowconv.Column {
	cols := make([]rowconv.Column, 0, len(m.Fields)+2)
	cols = append(cols, rowconv.Column{Name: rowconv.IdentityField, Type: rowconv.TypeVarchar, Role: rowconv.RoleIdentity})
	for _, f := range m.Fields {
		cols = append(cols, rowconv.Column{Name: f.Column, Type: f.Type, Role: rowconv.RoleField, Path: f.Path})
	}
	cols = append(cols, rowconv.Column{Name: DocumentColumn, Type: rowconv.TypeJSON, Role: rowconv.RoleDocument})
	return cols
}

// DocumentColumn names the synthetic whole-document column.
const DocumentColumn = "_doc"

// Options configures a Registries instance.
type Options struct {
	SampleSize       int
	TTL              time.Duration
	CacheEnabled     bool
	MaxFieldMappings int
	// NestedDepth flattens embedded documents this many levels deep into
	// dotted paths; zero keeps them as JSON columns.
	NestedDepth int
	Widen       WideningFunc
}

// DefaultOptions returns default schema options
func DefaultOptions() Options {
	return Options{
		SampleSize:       100,
		TTL:              300 * time.Second,
		CacheEnabled:     true,
		MaxFieldMappings: 1000,
		Widen:            DefaultWidening,
	}
}

func (o Options) withDefaults() Options {
	def := DefaultOptions()
	if o.SampleSize <= 0 {
		o.SampleSize = def.SampleSize
	}
	if o.TTL <= 0 {
		o.TTL = def.TTL
	}
	if o.MaxFieldMappings <= 0 {
		o.MaxFieldMappings = def.MaxFieldMappings
	}
	if o.Widen == nil {
		o.Widen = def.Widen
	}
	return o
}
