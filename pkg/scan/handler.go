package scan

import (
	"context"
	"errors"
	"fmt"
	"log"

	"go.mongodb.org/mongo-driver/bson"

	"mongoscan/internal/metrics"
	"mongoscan/pkg/apperr"
	"mongoscan/pkg/dbmanager"
	"mongoscan/pkg/locator"
	"mongoscan/pkg/predicate"
	"mongoscan/pkg/rowconv"
)

// ErrNoScan is returned by row operations when no scan is in progress.
var ErrNoScan = errors.New("no scan in progress")

// ErrHandlerClosed is returned by every operation after Close.
var ErrHandlerClosed = errors.New("handler is closed")

// pushed is a predicate offered by the host and not yet consumed by a scan.
type pushed struct {
	node        predicate.Node
	translation predicate.Translation
}

// ScanRequest carries the optional hints of one scan.
type ScanRequest struct {
	// Sort orders the cursor, e.g. {"age": -1}.
	Sort bson.D
	// Limit caps the number of documents fetched; zero means no limit.
	Limit     int64
	BatchSize int32
	// Projection restricts fetched fields to the named columns.
	Projection []string
	// CountOnly asks for the number of matching rows without their content.
	CountOnly bool
	// IdentityOnly fetches only _id, for existence-style iteration.
	IdentityOnly bool
}

// Handler is one open table. It is used by a single goroutine at a time.
type Handler struct {
	engine  *Engine
	loc     *locator.Locator
	columns []rowconv.Column

	pending        *pushed
	scan           *Scan
	converter      rowconv.Converter
	bound          bool
	collectionSeen bool
	closed         bool
}

// Locator returns the parsed locator of the table.
func (h *Handler) Locator() *locator.Locator {
	return h.loc
}

// Columns returns the declared row layout.
func (h *Handler) Columns() []rowconv.Column {
	return h.columns
}

// NewRow allocates a row buffer matching the layout.
func (h *Handler) NewRow() rowconv.Row {
	return make(rowconv.Row, len(h.columns))
}

// PushPredicate offers a predicate for the next scan. Fields name columns of
// the layout and are resolved to the document paths those columns read. An
// accepted predicate is enforced by the store; a declined one must be
// evaluated by the host. Either way it is consumed by the next successful
// BeginScan.
func (h *Handler) PushPredicate(n predicate.Node) predicate.Translation {
	if h.closed {
		return predicate.Translation{Outcome: predicate.Declined, Reason: ErrHandlerClosed.Error()}
	}

	var tr predicate.Translation
	resolved, err := predicate.MapFields(n, h.fieldPath)
	switch {
	case !h.engine.opts.PushdownEnabled:
		tr = predicate.Translation{Outcome: predicate.Declined, Reason: "pushdown disabled"}
	case err != nil:
		tr = predicate.Translation{Outcome: predicate.Declined, Reason: err.Error()}
	default:
		tr = predicate.Translate(resolved)
	}

	if tr.Accepted() {
		metrics.QueriesTranslated.Inc()
	} else {
		metrics.PredicatesDeclined.Inc()
		log.Printf("ScanEngine -> PushPredicate -> Declined %s on %s: %s", n, h.loc.Namespace(), tr.Reason)
	}
	h.pending = &pushed{node: n, translation: tr}
	return tr
}

// PopPredicate drops a pushed predicate that no scan has consumed yet.
func (h *Handler) PopPredicate() {
	h.pending = nil
}

// BeginScan starts a scan, ending any scan still in progress. The pushed
// predicate, if any, moves into the scan only once the scan is open, and is
// released by EndScan. On error it stays pending for the next attempt.
func (h *Handler) BeginScan(ctx context.Context, req ScanRequest) (*Scan, error) {
	if h.closed {
		return nil, ErrHandlerClosed
	}
	if h.scan != nil {
		log.Printf("ScanEngine -> BeginScan -> Ending unfinished scan %s on %s", h.scan.ID, h.loc.Namespace())
		h.scan.End()
	}

	pred := h.pending
	countOnly := req.CountOnly
	if countOnly && pred != nil && !pred.translation.Accepted() {
		log.Printf("ScanEngine -> BeginScan -> Count on %s needs host filtering, scanning rows", h.loc.Namespace())
		countOnly = false
	}

	// Counting without a predicate needs no layout; everything else reads
	// column paths.
	if !countOnly || pred != nil {
		if err := h.bind(ctx); err != nil {
			return nil, err
		}
	}
	filter, residual, err := h.settle(pred)
	if err != nil {
		return nil, err
	}

	conn, err := h.engine.manager.Acquire(ctx, h.loc)
	if err != nil {
		return nil, err
	}
	if err := h.ensureCollection(ctx, conn); err != nil {
		h.engine.manager.Release(conn)
		return nil, err
	}

	s := newScan(h, conn, filter)
	s.residual = residual

	if countOnly {
		if err := s.startCount(ctx); err != nil {
			s.End()
			return nil, err
		}
	} else {
		s.findOpts = h.findOptions(req)
		if err := s.open(ctx); err != nil {
			s.End()
			return nil, err
		}
	}

	h.pending = nil
	h.scan = s
	metrics.ScansTotal.WithLabelValues(s.mode()).Inc()
	log.Printf("ScanEngine -> BeginScan -> Scan %s on %s (mode=%s, filtered=%t)", s.ID, h.loc.Namespace(), s.mode(), filter != nil)
	return s, nil
}

// ensureCollection fails a scan of a collection the store does not have.
// The store itself answers such queries with no rows. Once the collection
// has been seen it is not checked again; a failed check is only logged.
func (h *Handler) ensureCollection(ctx context.Context, conn *dbmanager.Connection) error {
	if h.collectionSeen {
		return nil
	}
	exists, err := conn.Client.CollectionExists(ctx, h.loc.Database, h.loc.Collection)
	switch {
	case err != nil:
		log.Printf("ScanEngine -> ensureCollection -> Could not check %s: %v", h.loc.Namespace(), err)
		return nil
	case !exists:
		return apperr.Newf(apperr.KindCollectionNotFound, "Scan.Begin", "collection %s does not exist", h.loc.Namespace())
	}
	h.collectionSeen = true
	return nil
}

// settle resolves a pending predicate against the bound layout. An accepted
// predicate yields the store filter; a declined one yields the residual the
// host evaluates against raw documents.
func (h *Handler) settle(p *pushed) (bson.D, predicate.Node, error) {
	if p == nil {
		return nil, nil, nil
	}
	resolved, err := predicate.MapFields(p.node, h.fieldPath)
	if !p.translation.Accepted() {
		if err != nil {
			return nil, p.node, nil
		}
		return nil, resolved, nil
	}
	if err != nil {
		return nil, nil, fmt.Errorf("accepted predicate %s no longer resolves: %w", p.node, err)
	}
	tr := predicate.Translate(resolved)
	if !tr.Accepted() {
		return nil, nil, fmt.Errorf("accepted predicate %s no longer translates: %s", p.node, tr.Reason)
	}
	return tr.Filter, nil, nil
}

// fieldPath maps a column name to the document path the column reads.
func (h *Handler) fieldPath(name string) (string, error) {
	for _, col := range h.columns {
		if col.Name != name {
			continue
		}
		switch col.Role {
		case rowconv.RoleIdentity:
			return rowconv.IdentityField, nil
		case rowconv.RoleDocument:
			return "", fmt.Errorf("column %s holds the whole document and cannot be filtered", name)
		}
		return col.FieldPath(), nil
	}
	return "", fmt.Errorf("unknown column %s", name)
}

func (h *Handler) findOptions(req ScanRequest) dbmanager.FindOptions {
	opts := dbmanager.FindOptions{
		Sort:      h.sortPaths(req.Sort),
		Limit:     req.Limit,
		BatchSize: req.BatchSize,
	}
	if opts.BatchSize == 0 {
		opts.BatchSize = h.engine.opts.BatchSize
	}

	switch {
	case h.needsWholeDocument(req):
	case req.IdentityOnly:
		opts.Projection = bson.D{{Key: rowconv.IdentityField, Value: 1}}
	case len(req.Projection) > 0:
		projection := bson.D{{Key: rowconv.IdentityField, Value: 1}}
		for _, name := range req.Projection {
			for _, col := range h.columns {
				if col.Name == name && col.Role == rowconv.RoleField {
					projection = append(projection, bson.E{Key: col.FieldPath(), Value: 1})
				}
			}
		}
		opts.Projection = projection
	}
	return opts
}

// needsWholeDocument reports whether a document column would be filled by
// the scan, in which case no projection may trim what the store returns.
func (h *Handler) needsWholeDocument(req ScanRequest) bool {
	wanted := map[string]bool{}
	for _, name := range req.Projection {
		wanted[name] = true
	}
	for _, col := range h.columns {
		if col.Role != rowconv.RoleDocument {
			continue
		}
		if len(req.Projection) == 0 || wanted[col.Name] {
			return true
		}
	}
	return false
}

// sortPaths rewrites sort keys naming a column to that column's path. Other
// keys are taken as document paths.
func (h *Handler) sortPaths(sort bson.D) bson.D {
	if len(sort) == 0 {
		return sort
	}
	out := make(bson.D, len(sort))
	for i, e := range sort {
		out[i] = e
		if path, err := h.fieldPath(e.Key); err == nil {
			out[i].Key = path
		}
	}
	return out
}

// bind resolves column paths against the schema mapping once per handler.
// Columns with an explicit path keep it; others pick up the path of the
// mapping entry with the same column name.
func (h *Handler) bind(ctx context.Context) error {
	if h.bound {
		return nil
	}

	columns := h.columns
	if registries := h.engine.schemas; registries != nil && needsBinding(columns) {
		mapping, err := registries.For(h.loc).Infer(ctx, h.loc.Database, h.loc.Collection)
		if err != nil {
			if apperr.KindOf(err) == apperr.KindConnectionExhausted {
				return err
			}
			log.Printf("ScanEngine -> bind -> Schema unavailable for %s, using column names: %v", h.loc.Namespace(), err)
		} else {
			columns = append([]rowconv.Column(nil), columns...)
			for i := range columns {
				if columns[i].Role != rowconv.RoleField || columns[i].Path != "" {
					continue
				}
				if f, ok := mapping.Field(columns[i].Name); ok {
					columns[i].Path = f.Path
				}
			}
		}
	}

	converter, err := h.engine.opts.NewConverter(columns)
	if err != nil {
		return err
	}
	h.columns = columns
	h.converter = converter
	h.bound = true
	return nil
}

func needsBinding(columns []rowconv.Column) bool {
	for _, col := range columns {
		if col.Role == rowconv.RoleField && col.Path == "" {
			return true
		}
	}
	return false
}

// Scan returns the scan in progress, or nil.
func (h *Handler) Scan() *Scan {
	return h.scan
}

// NextRow advances the current scan. See Scan.NextRow.
func (h *Handler) NextRow(ctx context.Context, row rowconv.Row) (bool, error) {
	if h.scan == nil {
		return false, ErrNoScan
	}
	return h.scan.NextRow(ctx, row)
}

// CapturePosition returns the ordinal of the row just produced.
func (h *Handler) CapturePosition() (int64, error) {
	if h.scan == nil {
		return 0, ErrNoScan
	}
	return h.scan.CapturePosition()
}

// Seek positions the current scan on ordinal and fills row with it.
func (h *Handler) Seek(ctx context.Context, ordinal int64, row rowconv.Row) error {
	if h.scan == nil {
		return ErrNoScan
	}
	return h.scan.Seek(ctx, ordinal, row)
}

// EndScan ends the current scan. Calling it without a scan is a no-op.
func (h *Handler) EndScan() {
	if h.scan != nil {
		h.scan.End()
	}
}

// RowCountEstimate counts the rows the next or current scan would see. With
// an accepted predicate the count is exact; otherwise it is the collection's
// estimated size. Without a connection it returns the configured default.
func (h *Handler) RowCountEstimate(ctx context.Context) int64 {
	fallback := h.engine.opts.DefaultRowEstimate
	if h.closed {
		return fallback
	}

	var filter bson.D
	switch {
	case h.scan != nil:
		filter = h.scan.filter
	case h.pending != nil && h.pending.translation.Accepted():
		filter = h.pending.translation.Filter
	}

	var conn *dbmanager.Connection
	if h.scan != nil && h.scan.conn != nil {
		conn = h.scan.conn
	} else {
		acquired, err := h.engine.manager.Acquire(ctx, h.loc)
		if err != nil {
			log.Printf("ScanEngine -> RowCountEstimate -> No connection for %s, using default: %v", h.loc.Namespace(), err)
			return fallback
		}
		defer h.engine.manager.Release(acquired)
		conn = acquired
	}

	coll := conn.Collection(h.loc.Collection)
	var (
		n   int64
		err error
	)
	if filter != nil {
		n, err = coll.CountDocuments(ctx, filter)
	} else {
		n, err = coll.EstimatedDocumentCount(ctx)
	}
	if err != nil {
		log.Printf("ScanEngine -> RowCountEstimate -> Count failed on %s, using default: %v", h.loc.Namespace(), err)
		return fallback
	}
	return n
}

// Close ends any scan and drops the pending predicate. The handler cannot be
// reused.
func (h *Handler) Close() {
	if h.closed {
		return
	}
	h.EndScan()
	h.pending = nil
	h.closed = true
}

func (h *Handler) String() string {
	return fmt.Sprintf("Handler(%s)", h.loc.Redacted())
}
