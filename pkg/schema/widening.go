package schema

import "mongoscan/pkg/rowconv"

// WideningFunc merges the type seen so far for a field with a newly observed
// one. It must be commutative for inference to be independent of sample
// order.
type WideningFunc func(current, observed rowconv.Type) rowconv.Type

// DefaultWidening favours the most general common representation: integer
// widths grow, integers meet floats as doubles, anything numeric meets a
// decimal as decimal, the two time types meet as datetime, and any other
// pair falls back to text.
func DefaultWidening(current, observed rowconv.Type) rowconv.Type {
	switch {
	case current == observed:
		return current
	case observed == rowconv.TypeNull:
		return current
	case current == rowconv.TypeNull:
		return observed
	}

	if current.IsNumeric() && observed.IsNumeric() {
		switch {
		case current == rowconv.TypeDecimal || observed == rowconv.TypeDecimal:
			return rowconv.TypeDecimal
		case current == rowconv.TypeDouble || observed == rowconv.TypeDouble:
			return rowconv.TypeDouble
		}
		if intRank(current) > intRank(observed) {
			return current
		}
		return observed
	}

	if isTime(current) && isTime(observed) {
		return rowconv.TypeDateTime
	}
	return rowconv.TypeVarchar
}

// StringWidening turns every conflict into text.
func StringWidening(current, observed rowconv.Type) rowconv.Type {
	switch {
	case current == observed, observed == rowconv.TypeNull:
		return current
	case current == rowconv.TypeNull:
		return observed
	}
	return rowconv.TypeVarchar
}

func intRank(t rowconv.Type) int {
	switch t {
	case rowconv.TypeTinyInt:
		return 1
	case rowconv.TypeInt:
		return 2
	case rowconv.TypeBigInt:
		return 3
	}
	return 0
}

func isTime(t rowconv.Type) bool {
	return t == rowconv.TypeDateTime || t == rowconv.TypeTimestamp
}
