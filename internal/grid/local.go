package grid

import (
	"cmp"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/lithammer/fuzzysearch/fuzzy"
	"golang.org/x/text/cases"

	"github.com/odyssey-erp/backoffice/internal/grid/column"
	"github.com/odyssey-erp/backoffice/internal/grid/filterquery"
	"github.com/odyssey-erp/backoffice/internal/grid/keypath"
)

var dateLayouts = []string{time.RFC3339, "2006-01-02T15:04", "2006-01-02"}

// recompute filters, searches and sorts the in-memory rows into c.derived.
func (c *Controller[R]) recompute() {
	out := make([]R, 0, len(c.rows))
	needle := c.searchNeedle()
	searchCols := c.searchColumns()
	for _, row := range c.rows {
		if !c.matchSimple(row) || !c.matchCompound(row) {
			continue
		}
		if needle != "" && !c.matchSearch(row, needle, searchCols) {
			continue
		}
		out = append(out, row)
	}
	if c.sort.Active() {
		if def, ok := column.Find(c.opts.Columns, c.sort.Key); ok {
			sortRows(out, def.Path(), c.sort.Direction)
		}
	}
	c.derived = out
}

// sortRows is a stable sort on path. Missing and nil values go last in both
// directions so they do not jump when the direction flips.
func sortRows[R any](rows []R, path string, dir SortDirection) {
	slices.SortStableFunc(rows, func(a, b R) int {
		va, okA := keypath.Resolve(a, path)
		vb, okB := keypath.Resolve(b, path)
		switch {
		case !okA && !okB:
			return 0
		case !okA:
			return 1
		case !okB:
			return -1
		}
		r := keypath.Compare(va, vb)
		if dir == SortDesc {
			return -r
		}
		return r
	})
}

func (c *Controller[R]) matchSimple(row R) bool {
	for key, want := range c.filters {
		if len(want) == 0 {
			continue
		}
		got, ok := keypath.String(row, c.opts.filterPath(key))
		if !ok || !slices.Contains(want, got) {
			return false
		}
	}
	return true
}

func (c *Controller[R]) matchCompound(row R) bool {
	for field, filter := range c.compound {
		if filter.Empty() {
			continue
		}
		value, ok := keypath.Resolve(row, c.opts.filterPath(field))
		first := !filter.C1.Empty()
		second := !filter.C2.Empty()
		var r1, r2 bool
		if first {
			r1 = ok && evaluate(value, filter.C1)
		}
		if second {
			r2 = ok && evaluate(value, filter.C2)
		}
		var matched bool
		switch {
		case first && second && filter.Logic == filterquery.LogicOr:
			matched = r1 || r2
		case first && second:
			matched = r1 && r2
		case first:
			matched = r1
		default:
			matched = r2
		}
		if !matched {
			return false
		}
	}
	return true
}

// evaluate applies one condition. The condition value is parsed to the
// row value's kind (number, time) before comparing; text operators work on
// the formatted value.
func evaluate(value any, cond filterquery.Condition) bool {
	text := keypath.Format(value)
	switch cond.Op {
	case filterquery.OpContains:
		return strings.Contains(text, cond.Value)
	case filterquery.OpStartsWith:
		return strings.HasPrefix(text, cond.Value)
	case filterquery.OpEndsWith:
		return strings.HasSuffix(text, cond.Value)
	}
	order, ok := compareTo(value, cond.Value)
	if !ok {
		return false
	}
	switch cond.Op {
	case filterquery.OpEq:
		return order == 0
	case filterquery.OpNe:
		return order != 0
	case filterquery.OpGt:
		return order > 0
	case filterquery.OpGte:
		return order >= 0
	case filterquery.OpLt:
		return order < 0
	case filterquery.OpLte:
		return order <= 0
	default:
		return false
	}
}

func compareTo(value any, raw string) (int, bool) {
	switch v := value.(type) {
	case time.Time:
		for _, layout := range dateLayouts {
			if t, err := time.Parse(layout, raw); err == nil {
				return v.Compare(t), true
			}
		}
		return 0, false
	case bool:
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return 0, false
		}
		return keypath.Compare(v, b), true
	case string:
		return strings.Compare(v, raw), true
	}
	if n, ok := keypath.Number(value); ok {
		f, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return 0, false
		}
		return cmp.Compare(n, f), true
	}
	return strings.Compare(keypath.Format(value), raw), true
}

func (c *Controller[R]) searchNeedle() string {
	term := strings.TrimSpace(c.search)
	if term == "" {
		return ""
	}
	if c.opts.SearchMode == SearchFuzzy {
		return term
	}
	return cases.Fold().String(term)
}

// searchColumns are the columns flagged Searchable, or all columns when
// none is flagged.
func (c *Controller[R]) searchColumns() []column.Def[R] {
	var out []column.Def[R]
	for _, def := range c.opts.Columns {
		if def.Searchable {
			out = append(out, def)
		}
	}
	if len(out) == 0 {
		return c.opts.Columns
	}
	return out
}

func (c *Controller[R]) matchSearch(row R, needle string, cols []column.Def[R]) bool {
	folder := cases.Fold()
	for _, def := range cols {
		text, ok := keypath.String(row, def.Path())
		if !ok || text == "" {
			continue
		}
		if c.opts.SearchMode == SearchFuzzy {
			if fuzzy.MatchNormalizedFold(needle, text) {
				return true
			}
			continue
		}
		if strings.Contains(folder.String(text), needle) {
			return true
		}
	}
	return false
}
