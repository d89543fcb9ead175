package expr

import (
	"fmt"
	"reflect"
)

// Resolver resolves a dotted path against the metrics record tree. found is
// false when any segment of the path is absent.
type Resolver interface {
	Resolve(dotted string) (value any, found bool)
}

// Observation records one path read during evaluation: the raw value seen and
// whether the path resolved. An explicit JSON null counts as missing for
// confidence purposes.
type Observation struct {
	Path  string
	Value any
	Found bool
}

// Trace accumulates everything the evidence tracker needs from one criterion
// evaluation.
type Trace struct {
	Observations []Observation
	// LengthMisuse is set when .length was applied to a non-array value.
	LengthMisuse bool
	Notes        []string
}

// AnyMissing reports whether any referenced path failed to resolve (or
// resolved to null).
func (t *Trace) AnyMissing() bool {
	for _, o := range t.Observations {
		if !o.Found || o.Value == nil {
			return true
		}
	}
	return false
}

// invalid propagates a criterion-level type failure: any comparison or
// logical operation touching it evaluates false.
type invalid struct{ reason string }

// missing marks an unresolved path. It compares true only against null.
type missing struct{}

// Evaluate interprets a parsed criterion against the resolver. The result is
// strictly boolean: any non-boolean expression value is false. Both operands
// of logical nodes are always evaluated so the trace sees every path read.
func Evaluate(node Node, r Resolver, trace *Trace) bool {
	if trace == nil {
		trace = &Trace{}
	}
	v := eval(node, r, trace)
	b, ok := v.(bool)
	return ok && b
}

func eval(node Node, r Resolver, trace *Trace) any {
	switch n := node.(type) {
	case *Literal:
		return n.Value

	case *Path:
		v, found := r.Resolve(n.Dotted)
		trace.Observations = append(trace.Observations, Observation{Path: n.Dotted, Value: v, Found: found})
		if !found {
			return missing{}
		}
		return v

	case *Length:
		v, found := r.Resolve(n.Of.Dotted)
		trace.Observations = append(trace.Observations, Observation{Path: n.Of.Dotted, Value: v, Found: found})
		if !found {
			return missing{}
		}
		arr, ok := v.([]any)
		if !ok {
			trace.LengthMisuse = true
			trace.Notes = append(trace.Notes,
				fmt.Sprintf(".length applied to non-array value at %s (%T)", n.Of.Dotted, v))
			return invalid{reason: "length of non-array"}
		}
		return float64(len(arr))

	case *Cmp:
		left := eval(n.Left, r, trace)
		right := eval(n.Right, r, trace)
		return compare(n.Op, left, right)

	case *And:
		left := eval(n.Left, r, trace)
		right := eval(n.Right, r, trace)
		return asBool(left) && asBool(right)

	case *Or:
		left := eval(n.Left, r, trace)
		right := eval(n.Right, r, trace)
		return asBool(left) || asBool(right)

	default:
		return invalid{reason: fmt.Sprintf("unknown node %T", node)}
	}
}

// asBool is strict: only boolean true is true. No coercion.
func asBool(v any) bool {
	b, ok := v.(bool)
	return ok && b
}

// compare implements the comparison semantics of the criterion language.
func compare(op string, left, right any) any {
	// Type failures poison the comparison.
	if isInvalid(left) || isInvalid(right) {
		return false
	}

	// An unresolved path (or explicit null) compares true only against the
	// null literal; every other comparison with it is false.
	leftNull := isNullish(left)
	rightNull := isNullish(right)
	if leftNull || rightNull {
		switch op {
		case "==":
			return leftNull && rightNull
		case "!=":
			return leftNull != rightNull && !isMissing(left) && !isMissing(right)
		default:
			return false
		}
	}

	// Structural emptiness for the [] and {} literals.
	if _, ok := left.(EmptyArray); ok {
		return emptinessCompare(op, right, reflect.Slice)
	}
	if _, ok := right.(EmptyArray); ok {
		return emptinessCompare(op, left, reflect.Slice)
	}
	if _, ok := left.(EmptyObject); ok {
		return emptinessCompare(op, right, reflect.Map)
	}
	if _, ok := right.(EmptyObject); ok {
		return emptinessCompare(op, left, reflect.Map)
	}

	switch op {
	case "==", "!=":
		eq := strictEqual(left, right)
		if op == "==" {
			return eq
		}
		return !eq
	case ">", ">=", "<", "<=":
		lf, lok := left.(float64)
		rf, rok := right.(float64)
		if !lok || !rok {
			return false
		}
		switch op {
		case ">":
			return lf > rf
		case ">=":
			return lf >= rf
		case "<":
			return lf < rf
		default:
			return lf <= rf
		}
	default:
		return false
	}
}

// emptinessCompare tests `value op []` / `value op {}`. The value must
// actually be of the expected kind; comparing a scalar against [] is false
// for both == and !=.
func emptinessCompare(op string, value any, kind reflect.Kind) any {
	rv := reflect.ValueOf(value)
	if !rv.IsValid() || rv.Kind() != kind {
		return false
	}
	empty := rv.Len() == 0
	switch op {
	case "==":
		return empty
	case "!=":
		return !empty
	default:
		return false
	}
}

// strictEqual compares without coercion: 0 == false is false, "0" == 0 is
// false. Arrays and objects fall back to deep equality.
func strictEqual(left, right any) bool {
	switch l := left.(type) {
	case float64:
		r, ok := right.(float64)
		return ok && l == r
	case string:
		r, ok := right.(string)
		return ok && l == r
	case bool:
		r, ok := right.(bool)
		return ok && l == r
	default:
		return reflect.DeepEqual(left, right)
	}
}

func isInvalid(v any) bool {
	_, ok := v.(invalid)
	return ok
}

func isMissing(v any) bool {
	_, ok := v.(missing)
	return ok
}

func isNullish(v any) bool {
	if v == nil {
		return true
	}
	return isMissing(v)
}
