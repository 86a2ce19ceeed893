package dtos

import (
	"encoding/json"
	"time"
)

type ColumnResponse struct {
	Name    string `json:"name"`
	Type    string `json:"type"`
	Role    string `json:"role"`
	Path    string `json:"path,omitempty"`
	Charset string `json:"charset,omitempty"`
}

type TableResponse struct {
	Name      string           `json:"name"`
	Locator   string           `json:"locator"`
	Namespace string           `json:"namespace"`
	Declared  bool             `json:"declared"`
	Columns   []ColumnResponse `json:"columns,omitempty"`
}

type FieldResponse struct {
	Column   string `json:"column"`
	Path     string `json:"path"`
	Type     string `json:"type"`
	Length   int    `json:"length"`
	Observed int    `json:"observed"`
	Manual   bool   `json:"manual"`
}

type SchemaResponse struct {
	Table       string          `json:"table"`
	Namespace   string          `json:"namespace"`
	SampleSize  int             `json:"sample_size"`
	Fingerprint string          `json:"fingerprint"`
	CreatedAt   time.Time       `json:"created_at"`
	ExpiresAt   time.Time       `json:"expires_at"`
	Fields      []FieldResponse `json:"fields"`
}

type SortField struct {
	Field string `json:"field" binding:"required"`
	Desc  bool   `json:"desc"`
}

type ScanRequest struct {
	// Where is a predicate tree, e.g. {"op":"eq","field":"city","value":"Paris"}.
	Where   json.RawMessage `json:"where,omitempty"`
	Columns []string        `json:"columns,omitempty"`
	Sort    []SortField     `json:"sort,omitempty"`
	Limit   int64           `json:"limit,omitempty"`
	Offset  int64           `json:"offset,omitempty"`
}

type CountRequest struct {
	Where json.RawMessage `json:"where,omitempty"`
}

// PushdownResponse tells the caller what the store enforced.
type PushdownResponse struct {
	Pushed bool   `json:"pushed"`
	Reason string `json:"reason,omitempty"`
}

type ScanResponse struct {
	ScanID   string            `json:"scan_id"`
	Table    string            `json:"table"`
	Columns  []string          `json:"columns"`
	Rows     [][]interface{}   `json:"rows"`
	Estimate int64             `json:"estimate"`
	Pushdown *PushdownResponse `json:"pushdown,omitempty"`
}

type CountResponse struct {
	ScanID   string            `json:"scan_id"`
	Table    string            `json:"table"`
	Count    int64             `json:"count"`
	Mode     string            `json:"mode"`
	Pushdown *PushdownResponse `json:"pushdown,omitempty"`
}
