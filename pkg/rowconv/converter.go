package rowconv

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"

	"mongoscan/pkg/apperr"
)

const (
	IdentityField  = "_id"
	DateTimeFormat = "2006-01-02 15:04:05"
)

// Role marks synthetic columns.
type Role int

const (
	RoleField Role = iota
	// RoleIdentity columns carry the document's _id.
	RoleIdentity
	// RoleDocument columns carry the whole document as canonical text.
	RoleDocument
)

// Column is one entry of a row descriptor.
type Column struct {
	Name string
	Type Type
	Role Role
	// Path is the native field path; empty means Name.
	Path string
	// Charset of text cells. Empty, utf8 and utf8mb4 leave strings untouched.
	Charset string
}

// FieldPath returns the document path the column reads.
func (c Column) FieldPath() string {
	if c.Path != "" {
		return c.Path
	}
	return c.Name
}

// Row is a host-owned buffer with one cell per declared column. Cells hold
// nil, string, int64, float64, time.Time or []byte.
type Row []interface{}

// Converter populates a row from a document.
type Converter interface {
	Convert(doc bson.D, row Row) error
}

// DocumentConverter converts documents against a fixed column layout.
type DocumentConverter struct {
	columns  []Column
	encoders []*encoding.Encoder
}

// NewConverter validates the layout and prepares charset encoders.
func NewConverter(columns []Column) (*DocumentConverter, error) {
	c := &DocumentConverter{
		columns:  columns,
		encoders: make([]*encoding.Encoder, len(columns)),
	}
	for i, col := range columns {
		if col.Name == "" {
			return nil, apperr.Newf(apperr.KindConversionFailed, "rowconv.NewConverter", "column %d has no name", i)
		}
		enc, err := encoderFor(col.Charset)
		if err != nil {
			return nil, apperr.Newf(apperr.KindConversionFailed, "rowconv.NewConverter", "column %s: %v", col.Name, err)
		}
		c.encoders[i] = enc
	}
	return c, nil
}

// Columns returns the layout the converter was built for.
func (c *DocumentConverter) Columns() []Column {
	return c.columns
}

// Convert resets every cell to nil and fills the columns the document can supply.
// Absent and null fields stay nil; a field whose type cannot be represented in
// its column fails the whole row.
func (c *DocumentConverter) Convert(doc bson.D, row Row) error {
	if len(row) != len(c.columns) {
		return apperr.Newf(apperr.KindConversionFailed, "rowconv.Convert", "row has %d cells, layout has %d columns", len(row), len(c.columns))
	}
	for i := range row {
		row[i] = nil
	}

	for i, col := range c.columns {
		var (
			cell interface{}
			err  error
		)
		switch col.Role {
		case RoleIdentity:
			cell, err = identityCell(Lookup(doc, IdentityField), col)
		case RoleDocument:
			cell, err = CanonicalText(doc)
		default:
			v := Lookup(doc, col.FieldPath())
			if v.IsMissing() {
				continue
			}
			cell, err = c.fieldCell(v, col, c.encoders[i])
		}
		if err != nil {
			return apperr.Wrap(apperr.KindConversionFailed, "rowconv.Convert", fmt.Errorf("column %s: %w", col.Name, err))
		}
		row[i] = cell
	}
	return nil
}

func identityCell(v Value, col Column) (interface{}, error) {
	switch v.Kind() {
	case KindAbsent, KindNull:
		return nil, nil
	case KindObjectID:
		return v.Raw().(primitive.ObjectID).Hex(), nil
	case KindString:
		return v.Raw().(string), nil
	case KindInt32, KindInt64:
		i, _ := v.Int64()
		if col.Type.IsNumeric() {
			return i, nil
		}
		return strconv.FormatInt(i, 10), nil
	case KindDouble:
		f, _ := v.Float64()
		if col.Type.IsNumeric() {
			return f, nil
		}
		return strconv.FormatFloat(f, 'g', -1, 64), nil
	case KindBinary:
		bin := v.Raw().(primitive.Binary)
		if (bin.Subtype == bson.TypeBinaryUUID || bin.Subtype == bson.TypeBinaryUUIDOld) && len(bin.Data) == 16 {
			id, err := uuid.FromBytes(bin.Data)
			if err != nil {
				return nil, err
			}
			return id.String(), nil
		}
	}
	return CanonicalText(v.Raw())
}

func (c *DocumentConverter) fieldCell(v Value, col Column, enc *encoding.Encoder) (interface{}, error) {
	switch col.Type {
	case TypeVarchar, TypeNull:
		s, err := naturalText(v)
		if err != nil {
			return nil, err
		}
		if enc != nil {
			return enc.String(s)
		}
		return s, nil

	case TypeJSON:
		return CanonicalText(v.Raw())

	case TypeTinyInt, TypeInt, TypeBigInt:
		if v.Kind() == KindBool {
			return boolCell(v), nil
		}
		if i, ok := v.Int64(); ok {
			return i, nil
		}

	case TypeDouble:
		if v.Kind() == KindBool {
			return float64(boolCell(v)), nil
		}
		if f, ok := v.Float64(); ok {
			return f, nil
		}

	case TypeDecimal:
		switch v.Kind() {
		case KindDecimal:
			return v.Raw().(primitive.Decimal128).String(), nil
		case KindInt32, KindInt64:
			i, _ := v.Int64()
			return strconv.FormatInt(i, 10), nil
		case KindDouble:
			f := v.Raw().(float64)
			if !math.IsInf(f, 0) && !math.IsNaN(f) {
				return strconv.FormatFloat(f, 'f', -1, 64), nil
			}
		}

	case TypeDateTime, TypeTimestamp:
		if t, ok := v.Time(); ok {
			return t, nil
		}

	case TypeBlob:
		switch v.Kind() {
		case KindBinary:
			return v.Raw().(primitive.Binary).Data, nil
		case KindString:
			return []byte(v.Raw().(string)), nil
		case KindDocument, KindArray:
			s, err := CanonicalText(v.Raw())
			return []byte(s), err
		}
	}
	return nil, fmt.Errorf("cannot store %s value in %s column", v.Kind(), col.Type)
}

// naturalText renders a value the way a text column shows it.
func naturalText(v Value) (string, error) {
	switch v.Kind() {
	case KindString:
		return v.Raw().(string), nil
	case KindInt32, KindInt64:
		i, _ := v.Int64()
		return strconv.FormatInt(i, 10), nil
	case KindDouble:
		return strconv.FormatFloat(v.Raw().(float64), 'g', -1, 64), nil
	case KindBool:
		return strconv.FormatInt(boolCell(v), 10), nil
	case KindDecimal:
		return v.Raw().(primitive.Decimal128).String(), nil
	case KindObjectID:
		return v.Raw().(primitive.ObjectID).Hex(), nil
	case KindDateTime, KindTimestamp:
		t, _ := v.Time()
		return t.Format(DateTimeFormat), nil
	case KindBinary:
		bin := v.Raw().(primitive.Binary)
		if bin.Subtype == bson.TypeBinaryUUID && len(bin.Data) == 16 {
			id, err := uuid.FromBytes(bin.Data)
			if err == nil {
				return id.String(), nil
			}
		}
		return "", fmt.Errorf("cannot store binary value in text column")
	}
	return CanonicalText(v.Raw())
}

func boolCell(v Value) int64 {
	if v.Raw().(bool) {
		return 1
	}
	return 0
}

func encoderFor(charset string) (*encoding.Encoder, error) {
	switch strings.ToLower(charset) {
	case "", "utf8", "utf8mb4", "utf-8":
		return nil, nil
	case "latin1", "iso-8859-1":
		return encoding.ReplaceUnsupported(charmap.ISO8859_1.NewEncoder()), nil
	case "cp1252", "windows-1252":
		return encoding.ReplaceUnsupported(charmap.Windows1252.NewEncoder()), nil
	case "latin2", "iso-8859-2":
		return encoding.ReplaceUnsupported(charmap.ISO8859_2.NewEncoder()), nil
	}
	return nil, fmt.Errorf("unsupported charset %q", charset)
}

// FormatCell renders a converted cell for display.
func FormatCell(cell interface{}) string {
	switch v := cell.(type) {
	case nil:
		return "NULL"
	case string:
		return v
	case int64:
		return strconv.FormatInt(v, 10)
	case float64:
		return strconv.FormatFloat(v, 'g', -1, 64)
	case time.Time:
		return v.Format(DateTimeFormat)
	case []byte:
		return fmt.Sprintf("0x%X", v)
	}
	return fmt.Sprint(cell)
}
