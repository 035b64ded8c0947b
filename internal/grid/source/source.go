// Package source defines the data-source contract the grid controller
// fetches pages through, plus the REST client and caching decorators that
// implement it.
package source

import (
	"context"
	"maps"
	"net/url"
	"slices"
	"strconv"

	"github.com/odyssey-erp/backoffice/internal/grid/filterquery"
)

// Descriptor is everything a backend needs to produce one page.
type Descriptor struct {
	Resource string                      `json:"resource"`
	Page     int                         `json:"page"`
	Limit    int                         `json:"limit"`
	Filters  filterquery.SimpleFilters   `json:"filters,omitempty"`
	Compound filterquery.CompoundFilters `json:"compound,omitempty"`
	SortKey  string                      `json:"sort,omitempty"`
	SortDir  string                      `json:"dir,omitempty"`
	Search   string                      `json:"search,omitempty"`
}

// Values encodes the descriptor with the same parameter names list pages use.
func (d Descriptor) Values() url.Values {
	values := filterquery.EncodeSimple(d.Filters)
	for _, field := range slices.Sorted(maps.Keys(d.Compound)) {
		c := d.Compound[field]
		if !c.C1.Empty() && c.C1.Op.Valid() {
			values.Set(filterquery.FirstParam(field, c.C1.Op), c.C1.Value)
		}
		if !c.C2.Empty() && c.C2.Op.Valid() {
			logic := c.Logic
			if !logic.Valid() {
				logic = filterquery.LogicAnd
			}
			values.Set(filterquery.SecondParam(field, c.C2.Op, logic), c.C2.Value)
		}
	}
	if d.Page > 0 {
		values.Set(filterquery.ParamPage, strconv.Itoa(d.Page))
	}
	if d.Limit > 0 {
		values.Set(filterquery.ParamLimit, strconv.Itoa(d.Limit))
	}
	if d.SortKey != "" && d.SortDir != "" {
		values.Set(filterquery.ParamSort, d.SortKey)
		values.Set(filterquery.ParamDir, d.SortDir)
	}
	filterquery.SetSimple(values, filterquery.ParamSearch, d.Search)
	return values
}

// Key is a stable identity for the descriptor, used for caching and
// request de-duplication.
func (d Descriptor) Key() string {
	return d.Resource + "?" + filterquery.Canonical(d.Values())
}

// Page is one page of rows plus the size of the whole result set.
type Page[R any] struct {
	Rows  []R `json:"rows"`
	Total int `json:"total"`
}

// Source fetches pages of R.
type Source[R any] interface {
	FetchPage(ctx context.Context, d Descriptor) (Page[R], error)
}

// Func adapts a function to Source.
type Func[R any] func(ctx context.Context, d Descriptor) (Page[R], error)

// FetchPage implements Source.
func (f Func[R]) FetchPage(ctx context.Context, d Descriptor) (Page[R], error) {
	return f(ctx, d)
}
