package dist

import (
	"fmt"
)

// Operator names accepted by Predicate.
const (
	OpEq  = "eq"
	OpNe  = "ne"
	OpLt  = "lt"
	OpLte = "lte"
	OpGt  = "gt"
	OpGte = "gte"
	OpIn  = "in"
)

// Predicate is an attribute comparison evaluated against an explicit
// context map. It is a small pure interpreter - no expression strings,
// no eval.
type Predicate struct {
	Attribute string `json:"attribute" yaml:"attribute"`
	Operator  string `json:"operator" yaml:"operator"`
	Value     any    `json:"value" yaml:"value"`
}

// Evaluate applies the predicate to ctx. A reference to an absent key
// returns a MissingContext error; callers decide whether that is fatal
// (strict mode) or treated as false.
func (p Predicate) Evaluate(ctx map[string]any) (bool, error) {
	actual, ok := ctx[p.Attribute]
	if !ok {
		return false, missingContext("", p.Attribute)
	}

	switch p.Operator {
	case OpEq:
		return valuesEqual(actual, p.Value), nil
	case OpNe:
		return !valuesEqual(actual, p.Value), nil
	case OpLt, OpLte, OpGt, OpGte:
		return compareOrdered(actual, p.Value, p.Operator)
	case OpIn:
		list, ok := p.Value.([]any)
		if !ok {
			return false, invalidf(KindConditional, "operator %q requires a list value", p.Operator)
		}
		for _, candidate := range list {
			if valuesEqual(actual, candidate) {
				return true, nil
			}
		}
		return false, nil
	default:
		return false, invalidf(KindConditional, "unknown operator %q", p.Operator)
	}
}

// valuesEqual compares loosely across numeric representations: YAML and
// JSON decoding produce a mix of int and float64 for the same logical value.
func valuesEqual(a, b any) bool {
	if af, aok := toFloat(a); aok {
		if bf, bok := toFloat(b); bok {
			return af == bf
		}
		return false
	}
	return fmt.Sprintf("%v", a) == fmt.Sprintf("%v", b)
}

func compareOrdered(a, b any, op string) (bool, error) {
	af, aok := toFloat(a)
	bf, bok := toFloat(b)
	if !aok || !bok {
		return false, invalidf(KindConditional, "operator %q requires numeric operands, got %T and %T", op, a, b)
	}
	switch op {
	case OpLt:
		return af < bf, nil
	case OpLte:
		return af <= bf, nil
	case OpGt:
		return af > bf, nil
	case OpGte:
		return af >= bf, nil
	}
	return false, invalidf(KindConditional, "unknown ordered operator %q", op)
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint64:
		return float64(n), true
	}
	return 0, false
}
