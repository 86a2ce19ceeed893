package predicate

import (
	"fmt"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Outcome distinguishes a filter the store will enforce from a predicate the
// host must evaluate itself.
type Outcome int

const (
	Declined Outcome = iota
	Accepted
)

func (o Outcome) String() string {
	if o == Accepted {
		return "accepted"
	}
	return "declined"
}

// Translation is the result of Translate. Filter is nil unless Outcome is
// Accepted; an accepted empty filter matches every document on purpose.
type Translation struct {
	Outcome Outcome
	Filter  bson.D
	Reason  string
}

// Accepted reports whether the store can enforce the predicate.
func (t Translation) Accepted() bool {
	return t.Outcome == Accepted
}

var rangeOperators = map[Op]string{
	OpLt: "$lt",
	OpLe: "$lte",
	OpGt: "$gt",
	OpGe: "$gte",
}

type declined struct {
	reason string
}

func decline(format string, args ...interface{}) *declined {
	return &declined{reason: fmt.Sprintf(format, args...)}
}

// Translate converts a predicate into a native filter document. If any node
// cannot be represented the whole predicate is declined; nothing is ever
// partially applied.
func Translate(n Node) Translation {
	if n == nil {
		return Translation{Outcome: Declined, Reason: "no predicate"}
	}
	filter, d := translate(n)
	if d != nil {
		return Translation{Outcome: Declined, Reason: d.reason}
	}
	return Translation{Outcome: Accepted, Filter: filter}
}

func translate(n Node) (bson.D, *declined) {
	switch node := n.(type) {
	case Comparison:
		return translateComparison(node)
	case In:
		return translateIn(node)
	case IsNull:
		if err := checkField(node.Field); err != nil {
			return nil, err
		}
		if node.Negated {
			return bson.D{{Key: node.Field, Value: bson.D{{Key: "$ne", Value: nil}}}}, nil
		}
		return bson.D{{Key: node.Field, Value: nil}}, nil
	case And:
		return translateAnd(node)
	case Or:
		return translateOr(node)
	case Not:
		return nil, decline("NOT is evaluated by the host")
	case Like:
		return nil, decline("LIKE is evaluated by the host")
	default:
		return nil, decline("unsupported predicate node %T", n)
	}
}

func translateComparison(c Comparison) (bson.D, *declined) {
	if err := checkField(c.Field); err != nil {
		return nil, err
	}
	value, err := literal(c.Value)
	if err != nil {
		return nil, err
	}
	if value == nil {
		return nil, decline("comparison of %s with NULL is never true", c.Field)
	}

	switch c.Op {
	case OpEq:
		return bson.D{{Key: c.Field, Value: value}}, nil
	case OpNe:
		// SQL excludes NULL from `<>`; $ne alone would match missing fields.
		return bson.D{{Key: c.Field, Value: bson.D{{Key: "$nin", Value: bson.A{value, nil}}}}}, nil
	}
	if op, ok := rangeOperators[c.Op]; ok {
		return bson.D{{Key: c.Field, Value: bson.D{{Key: op, Value: value}}}}, nil
	}
	return nil, decline("unsupported operator %v", c.Op)
}

func translateIn(in In) (bson.D, *declined) {
	if err := checkField(in.Field); err != nil {
		return nil, err
	}
	values := bson.A{}
	for _, v := range in.Values {
		lit, err := literal(v)
		if err != nil {
			return nil, err
		}
		// NULL members never produce a match.
		if lit != nil {
			values = append(values, lit)
		}
	}
	if len(values) == 0 {
		return nil, decline("IN list on %s has no non-NULL members", in.Field)
	}
	return bson.D{{Key: in.Field, Value: bson.D{{Key: "$in", Value: values}}}}, nil
}

func translateAnd(and And) (bson.D, *declined) {
	parts := make([]bson.D, 0, len(and.Children))
	for _, child := range and.Children {
		f, err := translate(child)
		if err != nil {
			return nil, err
		}
		parts = append(parts, f)
	}

	merged := bson.D{}
	seen := map[string]bool{}
	for _, part := range parts {
		for _, e := range part {
			if seen[e.Key] {
				return bson.D{{Key: "$and", Value: toArray(parts)}}, nil
			}
			seen[e.Key] = true
			merged = append(merged, e)
		}
	}
	return merged, nil
}

func translateOr(or Or) (bson.D, *declined) {
	if len(or.Children) == 0 {
		return nil, decline("empty disjunction")
	}
	parts := make([]bson.D, 0, len(or.Children))
	for _, child := range or.Children {
		f, err := translate(child)
		if err != nil {
			return nil, err
		}
		parts = append(parts, f)
	}
	if len(parts) == 1 {
		return parts[0], nil
	}
	return bson.D{{Key: "$or", Value: toArray(parts)}}, nil
}

func toArray(parts []bson.D) bson.A {
	arr := make(bson.A, len(parts))
	for i, p := range parts {
		arr[i] = p
	}
	return arr
}

func checkField(field string) *declined {
	if field == "" {
		return decline("empty field name")
	}
	if strings.HasPrefix(field, "$") {
		return decline("field %q looks like an operator", field)
	}
	return nil
}

// literal normalizes a Go value into a BSON scalar. Composite values are
// declined since the host compares them as text.
func literal(v interface{}) (interface{}, *declined) {
	switch t := v.(type) {
	case nil:
		return nil, nil
	case string, bool, int32, int64, float64,
		primitive.ObjectID, primitive.DateTime, primitive.Decimal128, primitive.Timestamp:
		return t, nil
	case int:
		return int64(t), nil
	case int8:
		return int64(t), nil
	case int16:
		return int64(t), nil
	case uint8:
		return int64(t), nil
	case uint16:
		return int64(t), nil
	case uint32:
		return int64(t), nil
	case float32:
		return float64(t), nil
	case time.Time:
		return primitive.NewDateTimeFromTime(t), nil
	}
	return nil, decline("literal of type %T cannot be pushed down", v)
}
