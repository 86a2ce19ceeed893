package predicate

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// wireNode is the JSON shape accepted by Decode:
//
//	{"op":"eq","field":"city","value":"Paris"}
//	{"op":"and","args":[...]}
//	{"op":"in","field":"status","values":["new","paid"]}
//	{"op":"is_null","field":"phone"}
//	{"op":"like","field":"name","value":"A%"}
//
// Typed literals use MongoDB extended JSON, e.g. {"$oid": "..."} or
// {"$date": "2024-01-02T03:04:05Z"}.
type wireNode struct {
	Op     string            `json:"op"`
	Field  string            `json:"field,omitempty"`
	Value  json.RawMessage   `json:"value,omitempty"`
	Values []json.RawMessage `json:"values,omitempty"`
	Args   []json.RawMessage `json:"args,omitempty"`
}

var comparisonOps = map[string]Op{
	"eq": OpEq, "=": OpEq,
	"ne": OpNe, "!=": OpNe, "<>": OpNe,
	"lt": OpLt, "<": OpLt,
	"le": OpLe, "lte": OpLe, "<=": OpLe,
	"gt": OpGt, ">": OpGt,
	"ge": OpGe, "gte": OpGe, ">=": OpGe,
}

// Decode parses a JSON predicate tree.
func Decode(data []byte) (Node, error) {
	var w wireNode
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("invalid predicate: %w", err)
	}

	op := strings.ToLower(w.Op)
	if cmp, ok := comparisonOps[op]; ok {
		v, err := decodeLiteral(w.Value)
		if err != nil {
			return nil, err
		}
		return Comparison{Field: w.Field, Op: cmp, Value: v}, nil
	}

	switch op {
	case "and", "or", "not":
		children := make([]Node, 0, len(w.Args))
		for _, raw := range w.Args {
			child, err := Decode(raw)
			if err != nil {
				return nil, err
			}
			children = append(children, child)
		}
		switch op {
		case "and":
			return And{Children: children}, nil
		case "or":
			return Or{Children: children}, nil
		}
		if len(children) != 1 {
			return nil, fmt.Errorf("not takes exactly one argument, got %d", len(children))
		}
		return Not{Child: children[0]}, nil
	case "in":
		values := make([]interface{}, 0, len(w.Values))
		for _, raw := range w.Values {
			v, err := decodeLiteral(raw)
			if err != nil {
				return nil, err
			}
			values = append(values, v)
		}
		return In{Field: w.Field, Values: values}, nil
	case "is_null", "is_not_null":
		return IsNull{Field: w.Field, Negated: op == "is_not_null"}, nil
	case "like":
		var pattern string
		if err := json.Unmarshal(w.Value, &pattern); err != nil {
			return nil, fmt.Errorf("like pattern must be a string: %w", err)
		}
		return Like{Field: w.Field, Pattern: pattern}, nil
	}
	return nil, fmt.Errorf("unknown predicate op %q", w.Op)
}

func decodeLiteral(raw json.RawMessage) (interface{}, error) {
	if len(raw) == 0 {
		return nil, nil
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v interface{}
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("invalid literal: %w", err)
	}

	switch t := v.(type) {
	case json.Number:
		if i, err := t.Int64(); err == nil {
			return i, nil
		}
		f, err := t.Float64()
		if err != nil {
			return nil, fmt.Errorf("invalid number %q", t)
		}
		return f, nil
	case map[string]interface{}:
		return decodeExtendedLiteral(raw)
	}
	return v, nil
}

// decodeExtendedLiteral reads a scalar written in MongoDB extended JSON,
// canonical or relaxed, e.g. {"$oid":...}, {"$date":"2024-01-02T00:00:00Z"},
// {"$date":{"$numberLong":"1704153600000"}} or {"$numberDecimal":"1.5"}.
func decodeExtendedLiteral(raw json.RawMessage) (interface{}, error) {
	wrapped := make([]byte, 0, len(raw)+6)
	wrapped = append(wrapped, `{"v":`...)
	wrapped = append(wrapped, raw...)
	wrapped = append(wrapped, '}')

	var doc bson.D
	if err := bson.UnmarshalExtJSON(wrapped, false, &doc); err != nil {
		return nil, fmt.Errorf("invalid extended JSON literal: %w", err)
	}
	if len(doc) != 1 {
		return nil, fmt.Errorf("invalid extended JSON literal")
	}
	switch v := doc[0].Value.(type) {
	case primitive.ObjectID, primitive.DateTime, primitive.Decimal128, primitive.Timestamp, int32, int64, float64:
		return v, nil
	}
	return nil, fmt.Errorf("unsupported literal object")
}
