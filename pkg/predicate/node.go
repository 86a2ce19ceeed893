package predicate

import "fmt"

// Op is a comparison operator.
type Op int

const (
	OpEq Op = iota
	OpNe
	OpLt
	OpLe
	OpGt
	OpGe
)

var opNames = map[Op]string{
	OpEq: "=",
	OpNe: "!=",
	OpLt: "<",
	OpLe: "<=",
	OpGt: ">",
	OpGe: ">=",
}

func (o Op) String() string {
	if s, ok := opNames[o]; ok {
		return s
	}
	return fmt.Sprintf("Op(%d)", int(o))
}

// Node is a relational predicate. The set of implementations is closed.
type Node interface {
	fmt.Stringer
	isNode()
}

// Comparison is `Field Op Value`.
type Comparison struct {
	Field string
	Op    Op
	Value interface{}
}

// And is a conjunction. An empty And is true.
type And struct {
	Children []Node
}

// Or is a disjunction. An empty Or is false.
type Or struct {
	Children []Node
}

// In is `Field IN (Values...)`.
type In struct {
	Field  string
	Values []interface{}
}

// IsNull is `Field IS [NOT] NULL`; absent fields count as null.
type IsNull struct {
	Field   string
	Negated bool
}

// Not negates its child. It is never pushed down.
type Not struct {
	Child Node
}

// Like is SQL pattern matching with % and _. It is never pushed down.
type Like struct {
	Field   string
	Pattern string
}

func (Comparison) isNode() {}
func (And) isNode()        {}
func (Or) isNode()         {}
func (In) isNode()         {}
func (IsNull) isNode()     {}
func (Not) isNode()        {}
func (Like) isNode()       {}

func (c Comparison) String() string {
	return fmt.Sprintf("%s %s %v", c.Field, c.Op, c.Value)
}

func (a And) String() string {
	return join("AND", a.Children)
}

func (o Or) String() string {
	return join("OR", o.Children)
}

func (i In) String() string {
	return fmt.Sprintf("%s IN %v", i.Field, i.Values)
}

func (n IsNull) String() string {
	if n.Negated {
		return n.Field + " IS NOT NULL"
	}
	return n.Field + " IS NULL"
}

func (n Not) String() string {
	return fmt.Sprintf("NOT (%v)", n.Child)
}

func (l Like) String() string {
	return fmt.Sprintf("%s LIKE %q", l.Field, l.Pattern)
}

func join(sep string, children []Node) string {
	s := "("
	for i, c := range children {
		if i > 0 {
			s += " " + sep + " "
		}
		s += c.String()
	}
	return s + ")"
}

// Eq builds `field = value`.
func Eq(field string, value interface{}) Comparison {
	return Comparison{Field: field, Op: OpEq, Value: value}
}

// Cmp builds `field op value`.
func Cmp(field string, op Op, value interface{}) Comparison {
	return Comparison{Field: field, Op: op, Value: value}
}

// MapFields returns a copy of n with every field name replaced by
// resolve(name). It stops at the first name resolve rejects.
func MapFields(n Node, resolve func(field string) (string, error)) (Node, error) {
	switch node := n.(type) {
	case Comparison:
		field, err := resolve(node.Field)
		node.Field = field
		return node, err
	case In:
		field, err := resolve(node.Field)
		node.Field = field
		return node, err
	case IsNull:
		field, err := resolve(node.Field)
		node.Field = field
		return node, err
	case Like:
		field, err := resolve(node.Field)
		node.Field = field
		return node, err
	case Not:
		child, err := MapFields(node.Child, resolve)
		return Not{Child: child}, err
	case And:
		children, err := mapChildren(node.Children, resolve)
		return And{Children: children}, err
	case Or:
		children, err := mapChildren(node.Children, resolve)
		return Or{Children: children}, err
	case nil:
		return nil, nil
	}
	return nil, fmt.Errorf("unsupported predicate node %T", n)
}

func mapChildren(children []Node, resolve func(string) (string, error)) ([]Node, error) {
	out := make([]Node, len(children))
	for i, c := range children {
		mapped, err := MapFields(c, resolve)
		if err != nil {
			return nil, err
		}
		out[i] = mapped
	}
	return out, nil
}
