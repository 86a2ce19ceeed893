package rowconv

import (
	"fmt"
	"strings"
)

// Type is the relational column category a field maps to.
type Type int

const (
	// TypeNull only appears during inference, before a non-null value is seen.
	TypeNull Type = iota
	TypeTinyInt
	TypeInt
	TypeBigInt
	TypeDouble
	TypeDecimal
	TypeVarchar
	TypeJSON
	TypeBlob
	TypeDateTime
	TypeTimestamp
)

const (
	VarcharLength = 255
	BlobLength    = 65535
	JSONLength    = 1 << 20
	DecimalDigits = 34
)

var typeNames = map[Type]string{
	TypeNull:      "NULL",
	TypeTinyInt:   "TINYINT",
	TypeInt:       "INT",
	TypeBigInt:    "BIGINT",
	TypeDouble:    "DOUBLE",
	TypeDecimal:   "DECIMAL",
	TypeVarchar:   "VARCHAR",
	TypeJSON:      "JSON",
	TypeBlob:      "BLOB",
	TypeDateTime:  "DATETIME",
	TypeTimestamp: "TIMESTAMP",
}

func (t Type) String() string {
	if name, ok := typeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("Type(%d)", int(t))
}

func (t Type) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

func (t *Type) UnmarshalText(text []byte) error {
	parsed, err := ParseType(string(text))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// IsInteger reports whether the type holds exact integers.
func (t Type) IsInteger() bool {
	return t == TypeTinyInt || t == TypeInt || t == TypeBigInt
}

// IsNumeric reports whether the type holds numbers of any kind.
func (t Type) IsNumeric() bool {
	return t.IsInteger() || t == TypeDouble || t == TypeDecimal
}

// ParseType accepts the usual SQL spellings of each category.
func ParseType(name string) (Type, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "tinyint", "bool", "boolean":
		return TypeTinyInt, nil
	case "int", "integer", "long":
		return TypeInt, nil
	case "bigint", "longlong":
		return TypeBigInt, nil
	case "double", "float", "real":
		return TypeDouble, nil
	case "decimal", "numeric", "newdecimal":
		return TypeDecimal, nil
	case "varchar", "string", "text", "char":
		return TypeVarchar, nil
	case "json", "mediumblob", "longtext":
		return TypeJSON, nil
	case "blob", "binary", "varbinary":
		return TypeBlob, nil
	case "datetime", "date":
		return TypeDateTime, nil
	case "timestamp":
		return TypeTimestamp, nil
	case "null":
		return TypeNull, nil
	}
	return TypeNull, fmt.Errorf("unknown column type %q", name)
}

// TypeForKind maps a native value kind to its relational category.
func TypeForKind(k Kind) Type {
	switch k {
	case KindDouble:
		return TypeDouble
	case KindString, KindObjectID:
		return TypeVarchar
	case KindDocument, KindArray:
		return TypeJSON
	case KindBinary:
		return TypeBlob
	case KindBool:
		return TypeTinyInt
	case KindDateTime:
		return TypeDateTime
	case KindInt32:
		return TypeInt
	case KindInt64:
		return TypeBigInt
	case KindTimestamp:
		return TypeTimestamp
	case KindDecimal:
		return TypeDecimal
	case KindAbsent, KindNull:
		return TypeNull
	default:
		return TypeVarchar
	}
}

// LengthHint is the display length a host should reserve for the type.
func LengthHint(t Type) int {
	switch t {
	case TypeVarchar, TypeNull:
		return VarcharLength
	case TypeBlob:
		return BlobLength
	case TypeJSON:
		return JSONLength
	case TypeDecimal:
		return DecimalDigits
	case TypeTinyInt:
		return 1
	case TypeInt:
		return 11
	case TypeBigInt:
		return 20
	case TypeDouble:
		return 22
	case TypeDateTime, TypeTimestamp:
		return 19
	}
	return 0
}
