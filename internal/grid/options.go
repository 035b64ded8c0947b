package grid

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/go-playground/validator/v10"

	"github.com/odyssey-erp/backoffice/internal/grid/column"
	"github.com/odyssey-erp/backoffice/internal/grid/filterquery"
)

// Defaults applied when Options leaves a value empty.
const (
	DefaultPageSize    = 10
	DefaultMaxPageSize = 100
	DefaultIDPath      = "id"
)

// ErrInvalidOptions is returned by New for unusable options.
var ErrInvalidOptions = errors.New("grid: invalid options")

var validate = validator.New()

// Mode selects where filtering, sorting and paging happen.
type Mode int

const (
	// ModeRemote sends a Descriptor to the data source and renders the
	// page it returns.
	ModeRemote Mode = iota
	// ModeLocal filters, sorts and slices an in-memory row set.
	ModeLocal
)

// SearchMode selects how the free-text search matches in ModeLocal.
type SearchMode int

const (
	// SearchContains matches a case-folded substring.
	SearchContains SearchMode = iota
	// SearchFuzzy matches the search characters in order, ignoring case
	// and diacritics.
	SearchFuzzy
)

// Options configures a controller for one resource.
type Options[R any] struct {
	Resource string `validate:"required"`
	Columns  []column.Def[R]
	// FilterKeys are the simple filter keys recognised in the URL.
	FilterKeys []string `validate:"dive,required"`
	// CompoundFields are the fields accepting two-condition filters.
	CompoundFields []string `validate:"dive,required"`
	// FilterPaths maps a filter key or compound field to the row path it
	// matches in ModeLocal. Unmapped keys match the path of the same name.
	FilterPaths map[string]string
	// IDPath is the row path of the identifier. Defaults to "id".
	IDPath       string
	Mode         Mode
	PageSize     int `validate:"gte=0"`
	MaxPageSize  int `validate:"gte=0"`
	SearchMode   SearchMode
	PrefixPolicy filterquery.PrefixPolicy
	// OnStale is called when a superseded fetch result is dropped.
	OnStale func(resource string) `validate:"-"`
	Logger  *slog.Logger          `validate:"-"`
}

func (o Options[R]) withDefaults() Options[R] {
	if o.PageSize <= 0 {
		o.PageSize = DefaultPageSize
	}
	if o.MaxPageSize <= 0 {
		o.MaxPageSize = DefaultMaxPageSize
	}
	if o.PageSize > o.MaxPageSize {
		o.MaxPageSize = o.PageSize
	}
	if o.IDPath == "" {
		o.IDPath = DefaultIDPath
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	return o
}

func (o Options[R]) validate() error {
	if err := validate.Struct(o); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidOptions, err)
	}
	if len(o.Columns) == 0 {
		return fmt.Errorf("%w: at least one column required", ErrInvalidOptions)
	}
	if err := column.Validate(o.Columns); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidOptions, err)
	}
	return nil
}

func (o Options[R]) filterPath(key string) string {
	if path, ok := o.FilterPaths[key]; ok && path != "" {
		return path
	}
	return key
}
