package model

// Predicate is the recursive tagged value the query grammar compiles to.
// The core never parses predicate strings past the HTTP boundary — by
// the time a Predicate value exists it has already been validated.
type Predicate struct {
	Op     PredicateOp
	Field  string
	Value  interface{}
	Values []interface{} // used by OpIn/OpNotIn/OpBetween
	And    []Predicate   // used by OpAnd
	Or     []Predicate   // used by OpOr
}

// PredicateOp is the closed set of comparison/logical operators the query
// builder understands.
type PredicateOp string

const (
	OpEq      PredicateOp = "="
	OpNeq     PredicateOp = "<>"
	OpGt      PredicateOp = ">"
	OpGte     PredicateOp = ">="
	OpLt      PredicateOp = "<"
	OpLte     PredicateOp = "<="
	OpIn      PredicateOp = "in"
	OpNotIn   PredicateOp = "not in"
	OpLike    PredicateOp = "ilike" // case-insensitive LIKE
	OpBetween PredicateOp = "between"
	OpIsNull  PredicateOp = "is null"
	OpAnd     PredicateOp = "$and"
	OpOr      PredicateOp = "$or"
)

// Eq builds an equality predicate; a nil value becomes IS NULL
// ("k: v (scalar) | equals; IS NULL if v is null").
func Eq(field string, value interface{}) Predicate {
	if value == nil {
		return Predicate{Op: OpIsNull, Field: field}
	}
	return Predicate{Op: OpEq, Field: field, Value: value}
}

// Cmp builds a comparison predicate for one of >, >=, <, <=, <>.
func Cmp(field string, op PredicateOp, value interface{}) Predicate {
	return Predicate{Op: op, Field: field, Value: value}
}

// In builds an IN predicate. The list must be non-empty.
func In(field string, values []interface{}) Predicate {
	return Predicate{Op: OpIn, Field: field, Values: values}
}

// NotIn builds a NOT IN predicate. The list must be non-empty.
func NotIn(field string, values []interface{}) Predicate {
	return Predicate{Op: OpNotIn, Field: field, Values: values}
}

// Like builds a case-insensitive LIKE predicate.
func Like(field string, pattern string) Predicate {
	return Predicate{Op: OpLike, Field: field, Value: pattern}
}

// Between builds a BETWEEN predicate. The pair must have exactly 2
// elements.
func Between(field string, lo, hi interface{}) Predicate {
	return Predicate{Op: OpBetween, Field: field, Values: []interface{}{lo, hi}}
}

// And builds a conjunction of sub-predicates.
func And(preds ...Predicate) Predicate {
	return Predicate{Op: OpAnd, And: preds}
}

// Or builds a disjunction of sub-predicates.
func Or(preds ...Predicate) Predicate {
	return Predicate{Op: OpOr, Or: preds}
}

// EqRecord builds a conjunction of equality predicates from a record,
// matching the common "search by example" call shape.
func EqRecord(r Record) Predicate {
	preds := make([]Predicate, 0, len(r))
	for k, v := range r {
		preds = append(preds, Eq(k, v))
	}
	if len(preds) == 1 {
		return preds[0]
	}
	return And(preds...)
}
