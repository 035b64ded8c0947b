package filterquery

import (
	"errors"
	"fmt"
	"maps"
	"net/url"
	"slices"
	"strings"
)

// Operator is the comparison applied by one compound condition.
type Operator string

// Supported operators.
const (
	OpEq         Operator = "eq"
	OpNe         Operator = "ne"
	OpGt         Operator = "gt"
	OpGte        Operator = "gte"
	OpLt         Operator = "lt"
	OpLte        Operator = "lte"
	OpContains   Operator = "contains"
	OpStartsWith Operator = "starts_with"
	OpEndsWith   Operator = "ends_with"
)

var operators = []Operator{OpEq, OpNe, OpGt, OpGte, OpLt, OpLte, OpContains, OpStartsWith, OpEndsWith}

// Operators lists the supported operators in display order.
func Operators() []Operator {
	return slices.Clone(operators)
}

// Valid reports whether o is a supported operator.
func (o Operator) Valid() bool {
	return slices.Contains(operators, o)
}

// Logic joins the two conditions of a compound filter.
type Logic string

// Supported logic values. They are written literally as the parameter suffix.
const (
	LogicAnd Logic = "and"
	LogicOr  Logic = "or"
)

// Valid reports whether l is and/or.
func (l Logic) Valid() bool {
	return l == LogicAnd || l == LogicOr
}

// Condition is a single operator/value predicate.
type Condition struct {
	Op    Operator `json:"op"`
	Value string   `json:"value"`
}

// Empty reports whether the condition contributes nothing.
func (c Condition) Empty() bool {
	return c.Value == ""
}

// Compound holds two predicates over one field.
type Compound struct {
	C1    Condition `json:"c1"`
	C2    Condition `json:"c2"`
	Logic Logic     `json:"logic"`
}

// Empty reports whether both conditions are empty.
func (c Compound) Empty() bool {
	return c.C1.Empty() && c.C2.Empty()
}

// CompoundFilters maps a field name to its compound filter.
type CompoundFilters map[string]Compound

// Active reports whether any field carries a non-empty condition.
func (f CompoundFilters) Active() bool {
	for _, c := range f {
		if !c.Empty() {
			return true
		}
	}
	return false
}

// Clone copies the filters.
func (f CompoundFilters) Clone() CompoundFilters {
	out := make(CompoundFilters, len(f))
	maps.Copy(out, f)
	return out
}

// ErrUnknownPrefixPolicy is returned by ParsePrefixPolicy.
var ErrUnknownPrefixPolicy = errors.New("filterquery: unknown prefix policy")

// PrefixPolicy decides which existing parameters belong to a compound field
// when stale parameters are purged before a new filter is applied.
type PrefixPolicy int

const (
	// PrefixFullKey matches "{field}_{op}" and "{field}_{op}_{and|or}"
	// exactly, so created_at and created_by never touch each other.
	PrefixFullKey PrefixPolicy = iota
	// PrefixFirstToken matches every parameter starting with the field's
	// first underscore-separated token. created_at and created_by collide
	// and may wipe each other's parameters. Kept for resources whose keys
	// rely on the old behaviour.
	PrefixFirstToken
)

// ParsePrefixPolicy accepts "full_key" (or "") and "first_token".
func ParsePrefixPolicy(s string) (PrefixPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "full_key", "full":
		return PrefixFullKey, nil
	case "first_token", "legacy":
		return PrefixFirstToken, nil
	default:
		return PrefixFullKey, fmt.Errorf("%w: %q", ErrUnknownPrefixPolicy, s)
	}
}

func (p PrefixPolicy) String() string {
	if p == PrefixFirstToken {
		return "first_token"
	}
	return "full_key"
}

// owns reports whether param is purged when field is re-applied.
func (p PrefixPolicy) owns(field, param string) bool {
	if p == PrefixFirstToken {
		return strings.HasPrefix(param, firstToken(field))
	}
	_, ok := parseParam(field, param)
	return ok
}

// clears reports whether param is removed when field is cleared.
func (p PrefixPolicy) clears(field, param string) bool {
	if p == PrefixFirstToken {
		return strings.HasPrefix(param, field+"_")
	}
	_, ok := parseParam(field, param)
	return ok
}

type parsedParam struct {
	op     Operator
	logic  Logic
	second bool
}

// parseParam splits "{field}_{op}[_{logic}]".
func parseParam(field, param string) (parsedParam, bool) {
	rest, ok := strings.CutPrefix(param, field+"_")
	if !ok || rest == "" {
		return parsedParam{}, false
	}
	for _, logic := range []Logic{LogicAnd, LogicOr} {
		if op, ok := strings.CutSuffix(rest, "_"+string(logic)); ok && Operator(op).Valid() {
			return parsedParam{op: Operator(op), logic: logic, second: true}, true
		}
	}
	if Operator(rest).Valid() {
		return parsedParam{op: Operator(rest)}, true
	}
	return parsedParam{}, false
}

// FirstParam names the parameter of a first condition.
func FirstParam(field string, op Operator) string {
	return field + "_" + string(op)
}

// SecondParam names the parameter of a second condition.
func SecondParam(field string, op Operator, logic Logic) string {
	return field + "_" + string(op) + "_" + string(logic)
}

// ApplyCompound writes filters into values: parameters owned by each field
// are purged first, non-empty conditions are written, and page resets to 1.
// Conditions with an unknown operator are dropped.
func ApplyCompound(values url.Values, filters CompoundFilters, policy PrefixPolicy) {
	fields := slices.Sorted(maps.Keys(filters))
	for _, field := range fields {
		for param := range values {
			if policy.owns(field, param) {
				delete(values, param)
			}
		}
	}
	for _, field := range fields {
		c := filters[field]
		if !c.C1.Empty() && c.C1.Op.Valid() {
			values.Set(FirstParam(field, c.C1.Op), c.C1.Value)
		}
		if !c.C2.Empty() && c.C2.Op.Valid() {
			logic := c.Logic
			if !logic.Valid() {
				logic = LogicAnd
			}
			values.Set(SecondParam(field, c.C2.Op, logic), c.C2.Value)
		}
	}
	values.Set(ParamPage, "1")
}

// ClearCompound removes every parameter of the tracked fields and returns
// the emptied state.
func ClearCompound(values url.Values, filters CompoundFilters, policy PrefixPolicy) CompoundFilters {
	for field := range filters {
		for param := range values {
			if policy.clears(field, param) {
				delete(values, param)
			}
		}
	}
	return CompoundFilters{}
}

// DecodeCompound rebuilds compound filters for fields from values. When a
// field carries several first (or second) conditions the lexically first
// parameter wins.
func DecodeCompound(values url.Values, fields []string) CompoundFilters {
	out := make(CompoundFilters, len(fields))
	params := slices.Sorted(maps.Keys(values))
	for _, field := range fields {
		var c Compound
		var haveFirst, haveSecond bool
		for _, param := range params {
			parsed, ok := parseParam(field, param)
			if !ok {
				continue
			}
			value := values.Get(param)
			if value == "" {
				continue
			}
			switch {
			case parsed.second && !haveSecond:
				c.C2 = Condition{Op: parsed.op, Value: value}
				c.Logic = parsed.logic
				haveSecond = true
			case !parsed.second && !haveFirst:
				c.C1 = Condition{Op: parsed.op, Value: value}
				haveFirst = true
			}
		}
		if haveFirst || haveSecond {
			if c.Logic == "" {
				c.Logic = LogicAnd
			}
			out[field] = c
		}
	}
	return out
}

// Colliding returns the pairs of fields that share a first token and would
// purge each other's parameters under PrefixFirstToken.
func Colliding(fields []string) [][2]string {
	sorted := slices.Clone(fields)
	slices.Sort(sorted)
	sorted = slices.Compact(sorted)
	var out [][2]string
	for i := range sorted {
		for j := i + 1; j < len(sorted); j++ {
			a, b := sorted[i], sorted[j]
			if strings.HasPrefix(b, firstToken(a)) || strings.HasPrefix(a, firstToken(b)) {
				out = append(out, [2]string{a, b})
			}
		}
	}
	return out
}

func firstToken(field string) string {
	token, _, _ := strings.Cut(field, "_")
	return token
}
