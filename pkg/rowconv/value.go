package rowconv

import (
	"math"
	"strconv"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Kind tags the native type held by a Value.
type Kind uint8

const (
	KindAbsent Kind = iota
	KindNull
	KindString
	KindInt32
	KindInt64
	KindDouble
	KindBool
	KindDateTime
	KindTimestamp
	KindDecimal
	KindObjectID
	KindBinary
	KindDocument
	KindArray
	KindOther
)

var kindNames = [...]string{
	KindAbsent:    "absent",
	KindNull:      "null",
	KindString:    "string",
	KindInt32:     "int32",
	KindInt64:     "int64",
	KindDouble:    "double",
	KindBool:      "bool",
	KindDateTime:  "datetime",
	KindTimestamp: "timestamp",
	KindDecimal:   "decimal128",
	KindObjectID:  "objectId",
	KindBinary:    "binary",
	KindDocument:  "document",
	KindArray:     "array",
	KindOther:     "other",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "unknown"
}

// Value is a document field as decoded from the store. The zero Value is absent.
type Value struct {
	kind Kind
	raw  interface{}
}

// Absent is the value of a field the document does not carry.
func Absent() Value {
	return Value{}
}

// Of classifies a decoded BSON value.
func Of(v interface{}) Value {
	switch t := v.(type) {
	case nil, primitive.Null, primitive.Undefined:
		return Value{kind: KindNull}
	case string:
		return Value{kind: KindString, raw: t}
	case int32:
		return Value{kind: KindInt32, raw: t}
	case int64:
		return Value{kind: KindInt64, raw: t}
	case int:
		return Value{kind: KindInt64, raw: int64(t)}
	case float64:
		return Value{kind: KindDouble, raw: t}
	case float32:
		return Value{kind: KindDouble, raw: float64(t)}
	case bool:
		return Value{kind: KindBool, raw: t}
	case primitive.DateTime:
		return Value{kind: KindDateTime, raw: t}
	case time.Time:
		return Value{kind: KindDateTime, raw: primitive.NewDateTimeFromTime(t)}
	case primitive.Timestamp:
		return Value{kind: KindTimestamp, raw: t}
	case primitive.Decimal128:
		return Value{kind: KindDecimal, raw: t}
	case primitive.ObjectID:
		return Value{kind: KindObjectID, raw: t}
	case primitive.Binary:
		return Value{kind: KindBinary, raw: t}
	case []byte:
		return Value{kind: KindBinary, raw: primitive.Binary{Data: t}}
	case bson.D, bson.M, map[string]interface{}:
		return Value{kind: KindDocument, raw: t}
	case bson.A, []interface{}:
		return Value{kind: KindArray, raw: t}
	default:
		return Value{kind: KindOther, raw: t}
	}
}

func (v Value) Kind() Kind {
	return v.kind
}

func (v Value) Raw() interface{} {
	return v.raw
}

func (v Value) IsAbsent() bool {
	return v.kind == KindAbsent
}

func (v Value) IsNull() bool {
	return v.kind == KindNull
}

func (v Value) IsMissing() bool {
	return v.kind == KindAbsent || v.kind == KindNull
}

func (v Value) IsNumeric() bool {
	return v.kind == KindInt32 || v.kind == KindInt64 || v.kind == KindDouble || v.kind == KindDecimal
}

func (v Value) IsComposite() bool {
	return v.kind == KindDocument || v.kind == KindArray
}

func (v Value) String() string {
	return v.kind.String()
}

// Int64 returns the value as an exact integer.
func (v Value) Int64() (int64, bool) {
	switch v.kind {
	case KindInt32:
		return int64(v.raw.(int32)), true
	case KindInt64:
		return v.raw.(int64), true
	case KindDouble:
		f := v.raw.(float64)
		if f == math.Trunc(f) && f >= math.MinInt64 && f < math.MaxInt64 {
			return int64(f), true
		}
	case KindDecimal:
		if i, err := strconv.ParseInt(v.raw.(primitive.Decimal128).String(), 10, 64); err == nil {
			return i, true
		}
	}
	return 0, false
}

// Float64 returns any numeric value as a float.
func (v Value) Float64() (float64, bool) {
	switch v.kind {
	case KindInt32:
		return float64(v.raw.(int32)), true
	case KindInt64:
		return float64(v.raw.(int64)), true
	case KindDouble:
		return v.raw.(float64), true
	case KindDecimal:
		f, err := strconv.ParseFloat(v.raw.(primitive.Decimal128).String(), 64)
		return f, err == nil
	}
	return 0, false
}

// Time returns datetime and timestamp values in UTC.
func (v Value) Time() (time.Time, bool) {
	switch v.kind {
	case KindDateTime:
		return v.raw.(primitive.DateTime).Time().UTC(), true
	case KindTimestamp:
		return time.Unix(int64(v.raw.(primitive.Timestamp).T), 0).UTC(), true
	}
	return time.Time{}, false
}

// Elements returns the members of an array value.
func (v Value) Elements() []interface{} {
	switch a := v.raw.(type) {
	case bson.A:
		return a
	case []interface{}:
		return a
	}
	return nil
}

// Lookup resolves a field path in a document. Dotted paths descend into
// embedded documents; a top-level key containing the dot wins if present.
func Lookup(doc bson.D, path string) Value {
	if raw, ok := lookupKey(doc, path); ok {
		return Of(raw)
	}
	if !strings.Contains(path, ".") {
		return Absent()
	}

	var current interface{} = doc
	for _, part := range strings.Split(path, ".") {
		raw, ok := lookupKey(current, part)
		if !ok {
			return Absent()
		}
		current = raw
	}
	return Of(current)
}

func lookupKey(container interface{}, key string) (interface{}, bool) {
	switch d := container.(type) {
	case bson.D:
		for _, e := range d {
			if e.Key == key {
				return e.Value, true
			}
		}
	case bson.M:
		v, ok := d[key]
		return v, ok
	case map[string]interface{}:
		v, ok := d[key]
		return v, ok
	}
	return nil, false
}

// LookupAll resolves a path the way query filters do. An array met before
// the last segment fans out into its embedded documents (a numeric segment
// also indexes it), and a trailing array contributes itself and each of its
// elements. Branches that run out of fields yield Absent, and so does a
// path that reaches no value at all.
func LookupAll(doc bson.D, path string) []Value {
	if raw, ok := lookupKey(doc, path); ok {
		return expand(raw)
	}
	var out []Value
	collect(doc, strings.Split(path, "."), &out)
	if len(out) == 0 {
		out = append(out, Absent())
	}
	return out
}

func collect(container interface{}, parts []string, out *[]Value) {
	raw, ok := lookupKey(container, parts[0])
	if !ok {
		*out = append(*out, Absent())
		return
	}
	if len(parts) == 1 {
		*out = append(*out, expand(raw)...)
		return
	}

	rest := parts[1:]
	v := Of(raw)
	switch v.Kind() {
	case KindDocument:
		collect(raw, rest, out)
	case KindArray:
		elems := v.Elements()
		if i, err := strconv.Atoi(rest[0]); err == nil && i >= 0 && i < len(elems) {
			if len(rest) == 1 {
				*out = append(*out, expand(elems[i])...)
			} else if Of(elems[i]).Kind() == KindDocument {
				collect(elems[i], rest[1:], out)
			}
		}
		for _, e := range elems {
			if Of(e).Kind() == KindDocument {
				collect(e, rest, out)
			}
		}
	default:
		*out = append(*out, Absent())
	}
}

func expand(raw interface{}) []Value {
	v := Of(raw)
	if v.Kind() != KindArray {
		return []Value{v}
	}
	out := []Value{v}
	for _, e := range v.Elements() {
		out = append(out, Of(e))
	}
	return out
}
