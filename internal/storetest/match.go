package storetest

import (
	"strings"

	"go.mongodb.org/mongo-driver/bson"

	"mongoscan/pkg/rowconv"
)

// MatchFilter reports whether doc satisfies a query filter the way a
// MongoDB server does. It understands the operators the predicate translator
// emits: $eq, $ne, $in, $nin, $gt, $gte, $lt, $lte, $and and $or. A null
// operand matches absent and null fields and arrays holding null; dotted
// paths fan out through arrays of embedded documents.
func MatchFilter(filter bson.D, doc bson.D) bool {
	for _, e := range filter {
		switch e.Key {
		case "$and":
			for _, sub := range subFilters(e.Value) {
				if !MatchFilter(sub, doc) {
					return false
				}
			}
		case "$or":
			matched := false
			for _, sub := range subFilters(e.Value) {
				if MatchFilter(sub, doc) {
					matched = true
					break
				}
			}
			if !matched {
				return false
			}
		default:
			if !matchField(rowconv.LookupAll(doc, e.Key), e.Value) {
				return false
			}
		}
	}
	return true
}

func subFilters(v interface{}) []bson.D {
	var out []bson.D
	switch arr := v.(type) {
	case bson.A:
		for _, item := range arr {
			if d, ok := item.(bson.D); ok {
				out = append(out, d)
			}
		}
	case []bson.D:
		out = arr
	}
	return out
}

func matchField(field []rowconv.Value, cond interface{}) bool {
	ops, ok := cond.(bson.D)
	if !ok || len(ops) == 0 || !strings.HasPrefix(ops[0].Key, "$") {
		return equals(field, cond)
	}

	for _, op := range ops {
		var hit bool
		switch op.Key {
		case "$eq":
			hit = equals(field, op.Value)
		case "$ne":
			hit = !equals(field, op.Value)
		case "$in":
			hit = inList(field, op.Value)
		case "$nin":
			hit = !inList(field, op.Value)
		case "$gt":
			hit = ordered(field, op.Value, func(c int) bool { return c > 0 })
		case "$gte":
			hit = ordered(field, op.Value, func(c int) bool { return c >= 0 })
		case "$lt":
			hit = ordered(field, op.Value, func(c int) bool { return c < 0 })
		case "$lte":
			hit = ordered(field, op.Value, func(c int) bool { return c <= 0 })
		default:
			return false
		}
		if !hit {
			return false
		}
	}
	return true
}

// equals is server equality over every value the path reaches: null matches
// a null or absent branch, anything else matches an equal value.
func equals(field []rowconv.Value, want interface{}) bool {
	if want == nil {
		for _, v := range field {
			if v.IsMissing() {
				return true
			}
		}
		return false
	}
	target := rowconv.Of(want)
	for _, v := range field {
		if v.IsMissing() {
			continue
		}
		if c, ok := rowconv.Compare(v, target); ok && c == 0 {
			return true
		}
	}
	return false
}

func inList(field []rowconv.Value, list interface{}) bool {
	arr, ok := list.(bson.A)
	if !ok {
		return false
	}
	for _, want := range arr {
		if equals(field, want) {
			return true
		}
	}
	return false
}

func ordered(field []rowconv.Value, bound interface{}, accept func(int) bool) bool {
	target := rowconv.Of(bound)
	for _, v := range field {
		if v.IsMissing() {
			continue
		}
		if c, ok := rowconv.Compare(v, target); ok && accept(c) {
			return true
		}
	}
	return false
}
