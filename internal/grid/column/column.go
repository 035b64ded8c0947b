// Package column holds grid column definitions and the visibility manager
// that decides which of them render.
package column

import (
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"

	"github.com/odyssey-erp/backoffice/internal/grid/keypath"
)

var (
	// ErrDuplicateKey is returned when two columns share a key.
	ErrDuplicateKey = errors.New("column: duplicate key")
	// ErrInvalidDef is returned when a column fails validation.
	ErrInvalidDef = errors.New("column: invalid definition")
)

var validate = validator.New()

// Def describes one grid column over rows of type R.
type Def[R any] struct {
	// Key identifies the column; unique within a set.
	Key   string `validate:"required,excludesall=&?"`
	Title string
	// DataPath is the dotted path read from the row. Defaults to Key.
	DataPath string
	// Hidden is the visibility group toggled by the column picker.
	Hidden     string `validate:"omitempty,max=64"`
	Sortable   bool
	Searchable bool
	// Render formats the resolved value; value is nil when the path is missing.
	Render func(value any, row R) string
}

// Path returns the data path used to read the column.
func (d Def[R]) Path() string {
	if d.DataPath != "" {
		return d.DataPath
	}
	return d.Key
}

// Value resolves the column's path on row.
func (d Def[R]) Value(row R) (any, bool) {
	return keypath.Resolve(row, d.Path())
}

// Text renders the column for row.
func (d Def[R]) Text(row R) string {
	value, ok := d.Value(row)
	if d.Render != nil {
		return d.Render(value, row)
	}
	if !ok {
		return ""
	}
	return keypath.Format(value)
}

// Validate checks every column and key uniqueness.
func Validate[R any](defs []Def[R]) error {
	seen := make(map[string]struct{}, len(defs))
	for i, def := range defs {
		if err := validate.Struct(def); err != nil {
			return fmt.Errorf("%w: column %d (%q): %v", ErrInvalidDef, i, def.Key, err)
		}
		if _, dup := seen[def.Key]; dup {
			return fmt.Errorf("%w: %q", ErrDuplicateKey, def.Key)
		}
		seen[def.Key] = struct{}{}
	}
	return nil
}

// Find returns the column with key.
func Find[R any](defs []Def[R], key string) (Def[R], bool) {
	for _, def := range defs {
		if def.Key == key {
			return def, true
		}
	}
	return Def[R]{}, false
}

// Keys lists the column keys in order.
func Keys[R any](defs []Def[R]) []string {
	out := make([]string, 0, len(defs))
	for _, def := range defs {
		out = append(out, def.Key)
	}
	return out
}
