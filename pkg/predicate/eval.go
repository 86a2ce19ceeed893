package predicate

import (
	"regexp"
	"strings"
	"sync"

	"go.mongodb.org/mongo-driver/bson"

	"mongoscan/pkg/rowconv"
)

// Truth is a three-valued logic result.
type Truth int

const (
	False Truth = iota
	True
	Unknown
)

func (t Truth) not() Truth {
	switch t {
	case True:
		return False
	case False:
		return True
	}
	return Unknown
}

func truth(b bool) Truth {
	if b {
		return True
	}
	return False
}

// Matches reports whether the document satisfies the predicate. Unknown
// results do not match, as in a WHERE clause.
func Matches(n Node, doc bson.D) bool {
	return Evaluate(n, doc) == True
}

// Evaluate applies the predicate to a document with SQL NULL semantics.
// Field access follows the store's query rules: dotted paths fan out through
// arrays of embedded documents, an array field matches when any element
// does, and IS NULL holds when any branch is null or absent. Numbers compare
// across widths; values of different types never compare equal.
func Evaluate(n Node, doc bson.D) Truth {
	switch node := n.(type) {
	case Comparison:
		return evalComparison(node, rowconv.LookupAll(doc, node.Field))
	case In:
		return evalIn(node, rowconv.LookupAll(doc, node.Field))
	case IsNull:
		_, missing := present(rowconv.LookupAll(doc, node.Field))
		return truth(missing != node.Negated)
	case And:
		result := True
		for _, c := range node.Children {
			switch Evaluate(c, doc) {
			case False:
				return False
			case Unknown:
				result = Unknown
			}
		}
		return result
	case Or:
		result := False
		for _, c := range node.Children {
			switch Evaluate(c, doc) {
			case True:
				return True
			case Unknown:
				result = Unknown
			}
		}
		return result
	case Not:
		return Evaluate(node.Child, doc).not()
	case Like:
		return evalLike(node, rowconv.LookupAll(doc, node.Field))
	}
	return Unknown
}

// present drops null and absent branches, reporting whether there were any.
func present(vals []rowconv.Value) ([]rowconv.Value, bool) {
	out := make([]rowconv.Value, 0, len(vals))
	missing := false
	for _, v := range vals {
		if v.IsMissing() {
			missing = true
			continue
		}
		out = append(out, v)
	}
	return out, missing
}

func evalComparison(c Comparison, vals []rowconv.Value) Truth {
	lit, d := literal(c.Value)
	if d != nil || lit == nil {
		return Unknown
	}
	want := rowconv.Of(lit)
	values, missing := present(vals)

	if c.Op == OpNe {
		for _, v := range values {
			if cmp, ok := rowconv.Compare(v, want); ok && cmp == 0 {
				return False
			}
		}
		if missing {
			return Unknown
		}
		return True
	}

	if len(values) == 0 {
		return Unknown
	}
	for _, v := range values {
		cmp, ok := rowconv.Compare(v, want)
		if !ok {
			continue
		}
		var hit bool
		switch c.Op {
		case OpEq:
			hit = cmp == 0
		case OpLt:
			hit = cmp < 0
		case OpLe:
			hit = cmp <= 0
		case OpGt:
			hit = cmp > 0
		case OpGe:
			hit = cmp >= 0
		}
		if hit {
			return True
		}
	}
	return False
}

func evalIn(in In, vals []rowconv.Value) Truth {
	result := Unknown
	for _, v := range in.Values {
		switch evalComparison(Eq(in.Field, v), vals) {
		case True:
			return True
		case False:
			result = False
		}
	}
	return result
}

var likeCache sync.Map

func evalLike(l Like, vals []rowconv.Value) Truth {
	values, _ := present(vals)
	if len(values) == 0 {
		return Unknown
	}
	re, err := likeRegexp(l.Pattern)
	if err != nil {
		return Unknown
	}
	for _, v := range values {
		if s, ok := v.Raw().(string); ok && re.MatchString(s) {
			return True
		}
	}
	return False
}

func likeRegexp(pattern string) (*regexp.Regexp, error) {
	if re, ok := likeCache.Load(pattern); ok {
		return re.(*regexp.Regexp), nil
	}
	var b strings.Builder
	b.WriteString("^")
	escaped := false
	for _, r := range pattern {
		switch {
		case escaped:
			b.WriteString(regexp.QuoteMeta(string(r)))
			escaped = false
		case r == '\\':
			escaped = true
		case r == '%':
			b.WriteString(".*")
		case r == '_':
			b.WriteString(".")
		default:
			b.WriteString(regexp.QuoteMeta(string(r)))
		}
	}
	b.WriteString("$")
	re, err := regexp.Compile("(?s)" + b.String())
	if err != nil {
		return nil, err
	}
	likeCache.Store(pattern, re)
	return re, nil
}
