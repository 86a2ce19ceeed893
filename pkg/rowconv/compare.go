package rowconv

import (
	"strings"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Compare orders two scalars of compatible type the way the store does for
// filters. ok is false when the types do not compare.
func Compare(a, b Value) (int, bool) {
	if a.IsNumeric() && b.IsNumeric() {
		if ai, aok := exactInt(a); aok {
			if bi, bok := exactInt(b); bok {
				return cmpInt(ai, bi), true
			}
		}
		af, _ := a.Float64()
		bf, _ := b.Float64()
		return cmpFloat(af, bf), true
	}
	if a.Kind() != b.Kind() {
		if (a.Kind() == KindDateTime || a.Kind() == KindTimestamp) &&
			(b.Kind() == KindDateTime || b.Kind() == KindTimestamp) {
			at, _ := a.Time()
			bt, _ := b.Time()
			return at.Compare(bt), true
		}
		return 0, false
	}

	switch a.Kind() {
	case KindString:
		return strings.Compare(a.Raw().(string), b.Raw().(string)), true
	case KindBool:
		return cmpInt(boolInt(a.Raw().(bool)), boolInt(b.Raw().(bool))), true
	case KindDateTime:
		return cmpInt(int64(a.Raw().(primitive.DateTime)), int64(b.Raw().(primitive.DateTime))), true
	case KindTimestamp:
		at, bt := a.Raw().(primitive.Timestamp), b.Raw().(primitive.Timestamp)
		return primitive.CompareTimestamp(at, bt), true
	case KindObjectID:
		ao, bo := a.Raw().(primitive.ObjectID), b.Raw().(primitive.ObjectID)
		return strings.Compare(ao.Hex(), bo.Hex()), true
	}
	return 0, false
}

func exactInt(v Value) (int64, bool) {
	if v.Kind() == KindInt32 || v.Kind() == KindInt64 {
		return v.Int64()
	}
	return 0, false
}

func cmpInt(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

func cmpFloat(a, b float64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

func boolInt(b bool) int64 {
	if b {
		return 1
	}
	return 0
}
