package backoffice

import (
	"errors"
	"fmt"
	"net/url"
	"slices"

	"github.com/go-playground/validator/v10"

	"github.com/odyssey-erp/backoffice/internal/grid/filterquery"
)

// ErrInvalidFilter is returned for compound filter input that fails
// validation.
var ErrInvalidFilter = errors.New("backoffice: invalid filter")

var validate = validator.New()

type conditionForm struct {
	Op    string `validate:"omitempty,oneof=eq ne gt gte lt lte contains starts_with ends_with"`
	Value string `validate:"max=256"`
}

type compoundForm struct {
	C1    conditionForm
	C2    conditionForm
	Logic string `validate:"omitempty,oneof=and or"`
}

// Form field names of one compound field.
func opField(field, cond string) string    { return field + "." + cond + ".op" }
func valueField(field, cond string) string { return field + "." + cond + ".value" }
func logicField(field string) string       { return field + ".logic" }

// parseCompound reads the "Apply Filters" form. Fields that fail validation
// are left out of the result and reported together in the error.
func parseCompound(form url.Values, fields []string) (filterquery.CompoundFilters, error) {
	out := filterquery.CompoundFilters{}
	var errs []error
	for _, field := range fields {
		in := compoundForm{
			C1:    conditionForm{Op: form.Get(opField(field, "c1")), Value: form.Get(valueField(field, "c1"))},
			C2:    conditionForm{Op: form.Get(opField(field, "c2")), Value: form.Get(valueField(field, "c2"))},
			Logic: form.Get(logicField(field)),
		}
		if err := validate.Struct(in); err != nil {
			errs = append(errs, fmt.Errorf("%w: %s: %v", ErrInvalidFilter, field, err))
			continue
		}
		out[field] = filterquery.Compound{
			C1:    condition(in.C1),
			C2:    condition(in.C2),
			Logic: filterquery.Logic(in.Logic),
		}
	}
	return out, errors.Join(errs...)
}

func condition(in conditionForm) filterquery.Condition {
	op := filterquery.Operator(in.Op)
	if op == "" {
		op = filterquery.OpEq
	}
	return filterquery.Condition{Op: op, Value: in.Value}
}

type optionControl struct {
	Value    string
	Label    string
	Selected bool
}

type filterControl struct {
	Key     string
	Label   string
	Value   string
	Options []optionControl
}

type conditionControl struct {
	OpName    string
	ValueName string
	Op        string
	Value     string
}

type compoundControl struct {
	Field     string
	Label     string
	Input     string
	C1        conditionControl
	C2        conditionControl
	LogicName string
	Logic     string
}

type columnControl struct {
	Tag     string
	Checked bool
}

// filterData feeds the partials/grid_filters.html template.
type filterData struct {
	CSRFToken  string
	State      string
	IsFiltered bool
	Search     string
	Fields     []filterControl
	Compound   []compoundControl
	Operators  []string
	Columns    []columnControl
	Selected   int
	Actions    filterActions
}

type filterActions struct {
	Filter        string
	ApplyCompound string
	ClearCompound string
	Columns       string
	Export        string
	Refresh       string
}

func filterControls(fields []FilterField, active filterquery.SimpleFilters) []filterControl {
	out := make([]filterControl, 0, len(fields))
	for _, f := range fields {
		label := f.Label
		if label == "" {
			label = f.Key
		}
		values := active[f.Key]
		ctl := filterControl{Key: f.Key, Label: label, Value: active.Get(f.Key)}
		for _, opt := range f.Options {
			ctl.Options = append(ctl.Options, optionControl{
				Value:    opt.Value,
				Label:    opt.Label,
				Selected: slices.Contains(values, opt.Value),
			})
		}
		out = append(out, ctl)
	}
	return out
}

func compoundControls(fields []CompoundField, draft filterquery.CompoundFilters) []compoundControl {
	out := make([]compoundControl, 0, len(fields))
	for _, f := range fields {
		current := draft[f.Field]
		input := f.Input
		if input == "" {
			input = "text"
		}
		label := f.Label
		if label == "" {
			label = f.Field
		}
		logic := string(current.Logic)
		if logic == "" {
			logic = string(filterquery.LogicAnd)
		}
		out = append(out, compoundControl{
			Field: f.Field,
			Label: label,
			Input: input,
			C1: conditionControl{
				OpName: opField(f.Field, "c1"), ValueName: valueField(f.Field, "c1"),
				Op: string(current.C1.Op), Value: current.C1.Value,
			},
			C2: conditionControl{
				OpName: opField(f.Field, "c2"), ValueName: valueField(f.Field, "c2"),
				Op: string(current.C2.Op), Value: current.C2.Value,
			},
			LogicName: logicField(f.Field),
			Logic:     logic,
		})
	}
	return out
}

func operatorNames() []string {
	ops := filterquery.Operators()
	out := make([]string, 0, len(ops))
	for _, op := range ops {
		out = append(out, string(op))
	}
	return out
}
