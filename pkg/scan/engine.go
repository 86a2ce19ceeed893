// Package scan drives table scans over a collection: predicate pushdown,
// cursor iteration, positional seek and the count fast path.
package scan

import (
	"fmt"

	"mongoscan/pkg/dbmanager"
	"mongoscan/pkg/locator"
	"mongoscan/pkg/rowconv"
	"mongoscan/pkg/schema"
)

// DefaultRowEstimate is returned by RowCountEstimate when no connection is
// available.
const DefaultRowEstimate = 10

// ConverterFactory builds the converter for a bound column layout.
type ConverterFactory func(columns []rowconv.Column) (rowconv.Converter, error)

// Options configures an Engine.
type Options struct {
	PushdownEnabled    bool
	DefaultRowEstimate int64
	BatchSize          int32
	NewConverter       ConverterFactory
}

// DefaultOptions returns default engine options
func DefaultOptions() Options {
	return Options{
		PushdownEnabled:    true,
		DefaultRowEstimate: DefaultRowEstimate,
		NewConverter:       NewDocumentConverter,
	}
}

// NewDocumentConverter is the default ConverterFactory.
func NewDocumentConverter(columns []rowconv.Column) (rowconv.Converter, error) {
	c, err := rowconv.NewConverter(columns)
	if err != nil {
		return nil, err
	}
	return c, nil
}

// Engine opens table handlers. It is safe for concurrent use; handlers are not.
type Engine struct {
	manager *dbmanager.Manager
	schemas *schema.Registries
	opts    Options
}

// NewEngine wires the pool registry and the schema registries. schemas may be
// nil, in which case columns read the field named after them.
func NewEngine(manager *dbmanager.Manager, schemas *schema.Registries, opts Options) *Engine {
	if opts.DefaultRowEstimate <= 0 {
		opts.DefaultRowEstimate = DefaultRowEstimate
	}
	if opts.NewConverter == nil {
		opts.NewConverter = NewDocumentConverter
	}
	return &Engine{manager: manager, schemas: schemas, opts: opts}
}

// Manager returns the pool registry the engine scans through.
func (e *Engine) Manager() *dbmanager.Manager {
	return e.manager
}

// Schemas returns the schema registries, possibly nil.
func (e *Engine) Schemas() *schema.Registries {
	return e.schemas
}

// Open parses the locator once and returns a handler for the given row
// layout. The layout is validated immediately.
func (e *Engine) Open(raw string, columns []rowconv.Column) (*Handler, error) {
	loc, err := locator.Parse(raw)
	if err != nil {
		return nil, err
	}
	return e.OpenLocator(loc, columns)
}

// OpenLocator is Open for an already parsed locator.
func (e *Engine) OpenLocator(loc *locator.Locator, columns []rowconv.Column) (*Handler, error) {
	if len(columns) == 0 {
		return nil, fmt.Errorf("table %s declares no columns", loc.Namespace())
	}
	layout := append([]rowconv.Column(nil), columns...)
	if _, err := e.opts.NewConverter(layout); err != nil {
		return nil, err
	}
	return &Handler{engine: e, loc: loc, columns: layout}, nil
}

// Create validates the locator. Collections are created by the store on
// first write, so there is nothing to provision.
func (e *Engine) Create(raw string) error {
	_, err := locator.Parse(raw)
	return err
}
