package services

import (
	"context"
	"fmt"
	"log"
	"net/http"

	"go.mongodb.org/mongo-driver/bson"

	"mongoscan/internal/apis/dtos"
	"mongoscan/internal/catalog"
	"mongoscan/internal/constants"
	"mongoscan/pkg/predicate"
	"mongoscan/pkg/rowconv"
	"mongoscan/pkg/scan"
	"mongoscan/pkg/schema"
)

type TableService interface {
	ListTables() ([]dtos.TableResponse, uint32, error)
	GetSchema(ctx context.Context, name string) (*dtos.SchemaResponse, uint32, error)
	RefreshSchema(ctx context.Context, name string) (*dtos.SchemaResponse, uint32, error)
	Scan(ctx context.Context, name string, req *dtos.ScanRequest) (*dtos.ScanResponse, uint32, error)
	Count(ctx context.Context, name string, req *dtos.CountRequest) (*dtos.CountResponse, uint32, error)
	ListPools() ([]dtos.PoolResponse, uint32, error)
	ReconnectPools() (*dtos.ReconnectResponse, uint32, error)
}

type tableService struct {
	engine  *scan.Engine
	catalog *catalog.Catalog
}

func NewTableService(engine *scan.Engine, cat *catalog.Catalog) TableService {
	return &tableService{engine: engine, catalog: cat}
}

func (s *tableService) ListTables() ([]dtos.TableResponse, uint32, error) {
	tables := s.catalog.List()
	resp := make([]dtos.TableResponse, 0, len(tables))
	for _, t := range tables {
		resp = append(resp, dtos.TableResponse{
			Name:      t.Name,
			Locator:   t.Locator.Redacted(),
			Namespace: t.Locator.Namespace(),
			Declared:  t.Declared(),
			Columns:   columnResponses(t.Columns),
		})
	}
	return resp, http.StatusOK, nil
}

func (s *tableService) GetSchema(ctx context.Context, name string) (*dtos.SchemaResponse, uint32, error) {
	table, status, err := s.table(name)
	if err != nil {
		return nil, status, err
	}
	registry, status, err := s.registry(table)
	if err != nil {
		return nil, status, err
	}

	mapping, err := registry.Infer(ctx, table.Locator.Database, table.Locator.Collection)
	if err != nil {
		log.Printf("TableService -> GetSchema -> Error inferring schema for %s: %v", name, err)
		return nil, StatusForError(err), err
	}
	return schemaResponse(table.Name, mapping), http.StatusOK, nil
}

func (s *tableService) RefreshSchema(ctx context.Context, name string) (*dtos.SchemaResponse, uint32, error) {
	table, status, err := s.table(name)
	if err != nil {
		return nil, status, err
	}
	registry, status, err := s.registry(table)
	if err != nil {
		return nil, status, err
	}

	registry.Invalidate(ctx, table.Locator.Database, table.Locator.Collection)
	mapping, err := registry.Infer(ctx, table.Locator.Database, table.Locator.Collection)
	if err != nil {
		log.Printf("TableService -> RefreshSchema -> Error inferring schema for %s: %v", name, err)
		return nil, StatusForError(err), err
	}
	log.Printf("TableService -> RefreshSchema -> Schema of %s refreshed, fingerprint %s", name, mapping.Fingerprint)
	return schemaResponse(table.Name, mapping), http.StatusOK, nil
}

// Scan reads rows the way a relational host does: push the predicate, begin,
// pull rows, filter whatever the store declined, end.
func (s *tableService) Scan(ctx context.Context, name string, req *dtos.ScanRequest) (*dtos.ScanResponse, uint32, error) {
	if req.Limit < 0 || req.Offset < 0 {
		return nil, http.StatusBadRequest, fmt.Errorf("limit and offset must not be negative")
	}
	limit := req.Limit
	if limit == 0 || limit > constants.MaxScanLimit {
		limit = constants.MaxScanLimit
	}

	table, status, err := s.table(name)
	if err != nil {
		return nil, status, err
	}
	pred, err := decodeWhere(req.Where)
	if err != nil {
		return nil, http.StatusBadRequest, err
	}

	h, status, err := s.open(ctx, table)
	if err != nil {
		return nil, status, err
	}
	defer h.Close()

	indexes, names, err := selectColumns(h.Columns(), req.Columns)
	if err != nil {
		return nil, http.StatusBadRequest, err
	}

	pushdown := push(h, pred)
	estimate := h.RowCountEstimate(ctx)

	scanReq := scan.ScanRequest{Sort: sortSpec(req.Sort)}
	if pushdown == nil || pushdown.Pushed {
		// Without a residual predicate every fetched document is returned,
		// and the host never needs fields outside the projection.
		scanReq.Limit = limit + req.Offset
		scanReq.Projection = req.Columns
	}
	sc, err := h.BeginScan(ctx, scanReq)
	if err != nil {
		log.Printf("TableService -> Scan -> Error beginning scan of %s: %v", name, err)
		return nil, StatusForError(err), err
	}
	defer h.EndScan()

	resp := &dtos.ScanResponse{
		ScanID:   sc.ID,
		Table:    table.Name,
		Columns:  names,
		Rows:     make([][]interface{}, 0),
		Estimate: estimate,
		Pushdown: pushdown,
	}

	residual := sc.Residual()
	row := h.NewRow()
	skip := req.Offset
	if residual == nil && skip > 0 {
		if err := h.Seek(ctx, skip, row); err != nil {
			if sc.State() == scan.StateExhausted {
				return resp, http.StatusOK, nil
			}
			return nil, StatusForError(err), err
		}
		resp.Rows = append(resp.Rows, pick(row, indexes))
		skip = 0
	}

	for int64(len(resp.Rows)) < limit {
		ok, err := h.NextRow(ctx, row)
		if err != nil {
			log.Printf("TableService -> Scan -> Error reading %s: %v", name, err)
			return nil, StatusForError(err), err
		}
		if !ok {
			break
		}
		if residual != nil && !predicate.Matches(residual, sc.Document()) {
			continue
		}
		if skip > 0 {
			skip--
			continue
		}
		resp.Rows = append(resp.Rows, pick(row, indexes))
	}
	return resp, http.StatusOK, nil
}

// Count answers from the count fast path when the store enforces the whole
// predicate, and counts host-filtered rows otherwise.
func (s *tableService) Count(ctx context.Context, name string, req *dtos.CountRequest) (*dtos.CountResponse, uint32, error) {
	table, status, err := s.table(name)
	if err != nil {
		return nil, status, err
	}
	pred, err := decodeWhere(req.Where)
	if err != nil {
		return nil, http.StatusBadRequest, err
	}

	h, status, err := s.open(ctx, table)
	if err != nil {
		return nil, status, err
	}
	defer h.Close()

	pushdown := push(h, pred)
	sc, err := h.BeginScan(ctx, scan.ScanRequest{CountOnly: true})
	if err != nil {
		log.Printf("TableService -> Count -> Error beginning count of %s: %v", name, err)
		return nil, StatusForError(err), err
	}
	defer h.EndScan()

	mode := constants.ScanModeRows
	if sc.State() == scan.StateCountReady {
		mode = constants.ScanModeCount
	}

	residual := sc.Residual()
	row := h.NewRow()
	var n int64
	for {
		ok, err := h.NextRow(ctx, row)
		if err != nil {
			log.Printf("TableService -> Count -> Error reading %s: %v", name, err)
			return nil, StatusForError(err), err
		}
		if !ok {
			break
		}
		if residual != nil && !predicate.Matches(residual, sc.Document()) {
			continue
		}
		n++
	}

	return &dtos.CountResponse{
		ScanID:   sc.ID,
		Table:    table.Name,
		Count:    n,
		Mode:     mode,
		Pushdown: pushdown,
	}, http.StatusOK, nil
}

func (s *tableService) ListPools() ([]dtos.PoolResponse, uint32, error) {
	stats := s.engine.Manager().Stats()
	resp := make([]dtos.PoolResponse, 0, len(stats))
	for _, st := range stats {
		resp = append(resp, dtos.PoolResponse{
			Key:          st.Key,
			MaxConns:     st.Max,
			Active:       st.Active,
			Idle:         st.Idle,
			TotalCreated: st.TotalCreated,
			Closed:       st.Closed,
		})
	}
	return resp, http.StatusOK, nil
}

func (s *tableService) ReconnectPools() (*dtos.ReconnectResponse, uint32, error) {
	manager := s.engine.Manager()
	manager.ForceReconnectAll()
	return &dtos.ReconnectResponse{Pools: len(manager.Stats())}, http.StatusOK, nil
}

func (s *tableService) table(name string) (*catalog.Table, uint32, error) {
	table, ok := s.catalog.Get(name)
	if !ok {
		return nil, http.StatusNotFound, fmt.Errorf("table %s not found", name)
	}
	return table, http.StatusOK, nil
}

func (s *tableService) registry(table *catalog.Table) (*schema.Registry, uint32, error) {
	registries := s.engine.Schemas()
	if registries == nil {
		return nil, http.StatusNotImplemented, fmt.Errorf("schema inference is not configured")
	}
	return registries.For(table.Locator), http.StatusOK, nil
}

func (s *tableService) open(ctx context.Context, table *catalog.Table) (*scan.Handler, uint32, error) {
	columns, err := s.catalog.Layout(ctx, table, s.engine.Schemas())
	if err != nil {
		log.Printf("TableService -> open -> Error resolving layout of %s: %v", table.Name, err)
		return nil, StatusForError(err), err
	}
	h, err := s.engine.OpenLocator(table.Locator, columns)
	if err != nil {
		return nil, StatusForError(err), err
	}
	return h, http.StatusOK, nil
}

func push(h *scan.Handler, pred predicate.Node) *dtos.PushdownResponse {
	if pred == nil {
		return nil
	}
	tr := h.PushPredicate(pred)
	return &dtos.PushdownResponse{Pushed: tr.Accepted(), Reason: tr.Reason}
}

func decodeWhere(raw []byte) (predicate.Node, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	return predicate.Decode(raw)
}

func sortSpec(fields []dtos.SortField) bson.D {
	if len(fields) == 0 {
		return nil
	}
	spec := make(bson.D, 0, len(fields))
	for _, f := range fields {
		dir := 1
		if f.Desc {
			dir = -1
		}
		spec = append(spec, bson.E{Key: f.Field, Value: dir})
	}
	return spec
}

// selectColumns maps requested column names to row positions. No names
// selects every column.
func selectColumns(columns []rowconv.Column, requested []string) ([]int, []string, error) {
	if len(requested) == 0 {
		indexes := make([]int, len(columns))
		names := make([]string, len(columns))
		for i, col := range columns {
			indexes[i] = i
			names[i] = col.Name
		}
		return indexes, names, nil
	}

	indexes := make([]int, 0, len(requested))
	for _, name := range requested {
		found := -1
		for i, col := range columns {
			if col.Name == name {
				found = i
				break
			}
		}
		if found < 0 {
			return nil, nil, fmt.Errorf("unknown column %s", name)
		}
		indexes = append(indexes, found)
	}
	return indexes, requested, nil
}

func pick(row rowconv.Row, indexes []int) []interface{} {
	out := make([]interface{}, len(indexes))
	for i, idx := range indexes {
		out[i] = row[idx]
	}
	return out
}

func columnResponses(columns []rowconv.Column) []dtos.ColumnResponse {
	if len(columns) == 0 {
		return nil
	}
	out := make([]dtos.ColumnResponse, 0, len(columns))
	for _, col := range columns {
		out = append(out, dtos.ColumnResponse{
			Name:    col.Name,
			Type:    col.Type.String(),
			Role:    RoleName(col.Role),
			Path:    col.Path,
			Charset: col.Charset,
		})
	}
	return out
}

// RoleName renders a column role for display.
func RoleName(role rowconv.Role) string {
	switch role {
	case rowconv.RoleIdentity:
		return "identity"
	case rowconv.RoleDocument:
		return "document"
	default:
		return "field"
	}
}

func schemaResponse(table string, m *schema.Mapping) *dtos.SchemaResponse {
	fields := make([]dtos.FieldResponse, 0, len(m.Fields))
	for _, f := range m.Fields {
		fields = append(fields, dtos.FieldResponse{
			Column:   f.Column,
			Path:     f.Path,
			Type:     f.Type.String(),
			Length:   f.Length,
			Observed: f.Observed,
			Manual:   f.Manual,
		})
	}
	return &dtos.SchemaResponse{
		Table:       table,
		Namespace:   m.Namespace(),
		SampleSize:  m.SampleSize,
		Fingerprint: m.Fingerprint,
		CreatedAt:   m.CreatedAt,
		ExpiresAt:   m.ExpiresAt,
		Fields:      fields,
	}
}
