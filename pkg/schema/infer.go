package schema

import (
	"log"
	"sort"
	"strings"

	"go.mongodb.org/mongo-driver/bson"

	"mongoscan/internal/utils"
	"mongoscan/pkg/rowconv"
)

// Build merges the field observations of a document sample into a mapping.
// Fields keep the order of first appearance.
func Build(docs []bson.D, opts Options) []FieldMapping {
	opts = opts.withDefaults()

	b := &builder{opts: opts, index: make(map[string]int), columns: make(map[string]string)}
	for _, doc := range docs {
		b.observe(doc, "", 0)
	}

	for i := range b.fields {
		if b.fields[i].Type == rowconv.TypeNull {
			b.fields[i].Type = rowconv.TypeVarchar
		}
		b.fields[i].Length = rowconv.LengthHint(b.fields[i].Type)
	}
	return b.fields
}

type builder struct {
	opts    Options
	fields  []FieldMapping
	index   map[string]int    // path -> position in fields
	columns map[string]string // column -> path
	capped  bool
}

func (b *builder) observe(doc bson.D, prefix string, depth int) {
	for _, e := range doc {
		if prefix == "" && e.Key == rowconv.IdentityField {
			continue
		}
		path := e.Key
		if prefix != "" {
			path = prefix + "." + e.Key
		}

		if sub, ok := e.Value.(bson.D); ok && depth < b.opts.NestedDepth {
			b.observe(sub, path, depth+1)
			continue
		}
		b.record(path, rowconv.TypeForKind(rowconv.Of(e.Value).Kind()))
	}
}

func (b *builder) record(path string, observed rowconv.Type) {
	if i, ok := b.index[path]; ok {
		b.fields[i].Type = b.opts.Widen(b.fields[i].Type, observed)
		b.fields[i].Observed++
		return
	}

	if len(b.fields) >= b.opts.MaxFieldMappings {
		if !b.capped {
			log.Printf("SchemaRegistry -> Build -> Field limit %d reached, ignoring further fields", b.opts.MaxFieldMappings)
			b.capped = true
		}
		return
	}

	column := strings.ReplaceAll(path, ".", "_")
	if !IsValidIdentifier(column) {
		column = NormalizeFieldName(column)
	}
	if column == "" {
		log.Printf("SchemaRegistry -> Build -> Rejecting field %q: no usable column name", path)
		return
	}
	if other, taken := b.columns[column]; taken {
		log.Printf("SchemaRegistry -> Build -> Field %q normalizes to %q already used by %q, skipping", path, column, other)
		return
	}

	b.columns[column] = path
	b.index[path] = len(b.fields)
	b.fields = append(b.fields, FieldMapping{
		Column:   column,
		Path:     path,
		Type:     observed,
		Nullable: true,
		Observed: 1,
	})
}

// Fingerprint hashes the column layout so reinference can tell whether
// anything changed.
func Fingerprint(fields []FieldMapping) string {
	parts := make([]string, 0, len(fields))
	for _, f := range fields {
		parts = append(parts, f.Column+"="+f.Path+":"+f.Type.String())
	}
	sort.Strings(parts)
	return utils.MD5Hash(strings.Join(parts, ";"))
}

// FieldValue resolves a dotted path in a document.
func FieldValue(doc bson.D, path string) (interface{}, bool) {
	v := rowconv.Lookup(doc, path)
	if v.IsAbsent() {
		return nil, false
	}
	return v.Raw(), true
}
