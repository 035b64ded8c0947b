package column

import (
	"slices"
	"sync"
)

// Visibility derives the rendered columns from a set of checked visibility
// tags. It never touches row selection.
type Visibility[R any] struct {
	mu      sync.RWMutex
	columns []Def[R]
	known   map[string]struct{}
	checked map[string]struct{}
}

// NewVisibility starts with every tag checked. Call SetChecked to seed a
// narrower default.
func NewVisibility[R any](defs []Def[R]) *Visibility[R] {
	v := &Visibility[R]{
		known:   make(map[string]struct{}),
		checked: make(map[string]struct{}),
	}
	v.SetColumns(defs)
	return v
}

// SetColumns swaps the column set. Tags seen for the first time start
// checked; tags seen before keep their state.
func (v *Visibility[R]) SetColumns(defs []Def[R]) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.columns = slices.Clone(defs)
	for _, tag := range tagsOf(defs) {
		if _, ok := v.known[tag]; ok {
			continue
		}
		v.known[tag] = struct{}{}
		v.checked[tag] = struct{}{}
	}
}

// Columns returns the full column set.
func (v *Visibility[R]) Columns() []Def[R] {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return slices.Clone(v.columns)
}

// Tags lists the distinct visibility tags in column order.
func (v *Visibility[R]) Tags() []string {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return tagsOf(v.columns)
}

// Checked lists the checked tags of the current column set in column order.
func (v *Visibility[R]) Checked() []string {
	v.mu.RLock()
	defer v.mu.RUnlock()
	var out []string
	for _, tag := range tagsOf(v.columns) {
		if _, ok := v.checked[tag]; ok {
			out = append(out, tag)
		}
	}
	return out
}

// IsChecked reports whether tag is checked.
func (v *Visibility[R]) IsChecked(tag string) bool {
	v.mu.RLock()
	defer v.mu.RUnlock()
	_, ok := v.checked[tag]
	return ok
}

// SetChecked replaces the checked set.
func (v *Visibility[R]) SetChecked(tags ...string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.checked = make(map[string]struct{}, len(tags))
	for _, tag := range tags {
		if tag != "" {
			v.checked[tag] = struct{}{}
		}
	}
}

// Toggle flips tag.
func (v *Visibility[R]) Toggle(tag string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if _, ok := v.checked[tag]; ok {
		delete(v.checked, tag)
		return
	}
	v.checked[tag] = struct{}{}
}

// Visible returns the columns that render: untagged ones plus those whose
// tag is checked.
func (v *Visibility[R]) Visible() []Def[R] {
	v.mu.RLock()
	defer v.mu.RUnlock()
	out := make([]Def[R], 0, len(v.columns))
	for _, def := range v.columns {
		if def.Hidden == "" {
			out = append(out, def)
			continue
		}
		if _, ok := v.checked[def.Hidden]; ok {
			out = append(out, def)
		}
	}
	return out
}

// VisibleKeys lists the keys of Visible.
func (v *Visibility[R]) VisibleKeys() []string {
	return Keys(v.Visible())
}

func tagsOf[R any](defs []Def[R]) []string {
	var out []string
	for _, def := range defs {
		if def.Hidden != "" && !slices.Contains(out, def.Hidden) {
			out = append(out, def.Hidden)
		}
	}
	return out
}
