package schema

import (
	"strings"
	"unicode"
)

// MaxIdentifierLength is the longest column name a host accepts.
const MaxIdentifierLength = 64

// IsValidIdentifier reports whether name can be used as a column name as is.
func IsValidIdentifier(name string) bool {
	if name == "" || len(name) > MaxIdentifierLength {
		return false
	}
	for i, r := range name {
		switch {
		case r == '_', r < unicode.MaxASCII && unicode.IsLetter(r):
		case i > 0 && r < unicode.MaxASCII && unicode.IsDigit(r):
		default:
			return false
		}
	}
	return true
}

// NormalizeFieldName turns a document path into a column name. Illegal
// characters become '_', a leading digit gets a '_' prefix and the result
// is cut to MaxIdentifierLength. An empty result means the name is rejected.
func NormalizeFieldName(path string) string {
	var b strings.Builder
	for _, r := range path {
		if r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)) {
			b.WriteRune(r)
		} else {
			b.WriteByte('_')
		}
	}

	name := b.String()
	if strings.Trim(name, "_") == "" {
		return ""
	}
	if name[0] >= '0' && name[0] <= '9' {
		name = "_" + name
	}
	if len(name) > MaxIdentifierLength {
		name = name[:MaxIdentifierLength]
	}
	return name
}
