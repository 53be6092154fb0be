package query

import "fmt"

// FilterExpr is the sealed interface implemented by every $filter AST node.
// It is a tagged variant per node kind (Design Note, spec §9) rather than a
// stringly-typed "operator" field that must be revalidated at every use
// site.
type FilterExpr interface {
	filterExpr()
	String() string
}

// CompareOp is one of the six scalar comparison operators.
type CompareOp string

const (
	OpEq CompareOp = "eq"
	OpNe CompareOp = "ne"
	OpLt CompareOp = "lt"
	OpLe CompareOp = "le"
	OpGt CompareOp = "gt"
	OpGe CompareOp = "ge"
)

// StringOp is one of the three string-predicate functions.
type StringOp string

const (
	OpContains   StringOp = "contains"
	OpStartsWith StringOp = "startswith"
	OpEndsWith   StringOp = "endswith"
)

// Literal is a parsed $filter literal value: one of string, int64, float64,
// bool, or nil (for the SQL NULL literal).
type Literal struct {
	Value any
}

func (l Literal) String() string {
	if l.Value == nil {
		return "null"
	}
	return literalString(l.Value)
}

// Compare is `field OP literal`.
type Compare struct {
	Field string
	Op    CompareOp
	Value Literal
}

func (*Compare) filterExpr() {}
func (c *Compare) String() string {
	return "(compare " + c.Field + " " + string(c.Op) + " " + c.Value.String() + ")"
}

// StringPred is `func(field, literal)`.
type StringPred struct {
	Field string
	Op    StringOp
	Value Literal
}

func (*StringPred) filterExpr() {}
func (s *StringPred) String() string {
	return "(" + string(s.Op) + " " + s.Field + " " + s.Value.String() + ")"
}

// In is `field in (literal, literal, ...)`.
type In struct {
	Field  string
	Values []Literal
}

func (*In) filterExpr() {}
func (i *In) String() string { return "(in " + i.Field + ")" }

// And is a conjunction of two filter expressions.
type And struct{ Left, Right FilterExpr }

func (*And) filterExpr() {}
func (a *And) String() string { return "(and " + a.Left.String() + " " + a.Right.String() + ")" }

// Or is a disjunction of two filter expressions.
type Or struct{ Left, Right FilterExpr }

func (*Or) filterExpr() {}
func (o *Or) String() string { return "(or " + o.Left.String() + " " + o.Right.String() + ")" }

// Not negates a filter expression.
type Not struct{ Inner FilterExpr }

func (*Not) filterExpr() {}
func (n *Not) String() string { return "(not " + n.Inner.String() + ")" }

// Direction is an ORDER BY sort direction.
type Direction string

const (
	Asc  Direction = "asc"
	Desc Direction = "desc"
)

// OrderTerm is a single `field direction` pair.
type OrderTerm struct {
	Field     string
	Direction Direction
}

// Paging is the parsed $top/$skip pair. Nil means "unspecified".
type Paging struct {
	Top  *int
	Skip *int
}

// ExpandField is one parsed $expand navigation, recursively carrying its
// own nested system options.
type ExpandField struct {
	Path    string
	Select  []string
	Filter  FilterExpr
	OrderBy []OrderTerm
	Top     *int
	Skip    *int
	Nested  []*ExpandField
}

// AggregateOp is one of the five supported $apply aggregate functions.
type AggregateOp string

const (
	AggSum   AggregateOp = "sum"
	AggAvg   AggregateOp = "avg"
	AggMin   AggregateOp = "min"
	AggMax   AggregateOp = "max"
	AggCount AggregateOp = "count"
)

// Aggregate is one `source with OP as alias` clause inside $apply.
type Aggregate struct {
	Source string
	Op     AggregateOp
	As     string
}

// Apply is the parsed $apply groupby/aggregate clause.
type Apply struct {
	GroupBy    []string
	Aggregates []Aggregate
}

// Compute is one `expression as alias` clause inside $compute.
type Compute struct {
	Expression string
	As         string
}

// Query is the fully parsed set of RQL system options for one request.
// Every field's zero value means "unspecified"; callers must not infer
// meaning from a nil/empty field beyond "not given".
type Query struct {
	Filter     FilterExpr
	OrderBy    []OrderTerm
	Select     []string
	Paging     Paging
	Expand     []*ExpandField
	Search     *string
	Apply      *Apply
	Compute    []Compute
	Count      *bool
	DeltaToken *string
}

func literalString(v any) string {
	switch t := v.(type) {
	case string:
		return "'" + t + "'"
	default:
		return fmt.Sprintf("%v", t)
	}
}
