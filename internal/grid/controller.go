package grid

import (
	"log/slog"
	"net/url"
	"slices"
	"strconv"
	"strings"
	"sync"

	"github.com/odyssey-erp/backoffice/internal/grid/column"
	"github.com/odyssey-erp/backoffice/internal/grid/filterquery"
	"github.com/odyssey-erp/backoffice/internal/grid/keypath"
	"github.com/odyssey-erp/backoffice/internal/grid/source"
)

// Token identifies one fetch. Tokens increase monotonically per controller.
type Token uint64

// View is the derived state a grid renders.
type View[R any] struct {
	Rows        []R
	Total       int
	TotalPages  int
	CurrentPage int
	PageSize    int
	Sort        SortConfig
	Search      string
	Filters     filterquery.SimpleFilters
	Compound    filterquery.CompoundFilters
	Draft       filterquery.CompoundFilters
	Selected    []RowID
	// PageSelected reports whether every row of Rows is selected.
	PageSelected bool
	IsFiltered   bool
	IsLoading    bool
	Err          error
}

// ExportPayload is the opaque hand-off to export: visible column keys and
// the selected row ids.
type ExportPayload struct {
	Resource string   `json:"resource" validate:"required"`
	Columns  []string `json:"columns" validate:"required,min=1,dive,required"`
	Rows     []RowID  `json:"rows" validate:"required,min=1,dive,required"`
}

// PageSnapshot records the row ids and total of one fetched remote page.
// Carrying it from one controller to the next lets a refetch of the same
// page notice rows deleted in between.
type PageSnapshot struct {
	Key   string  `json:"key"`
	IDs   []RowID `json:"ids"`
	Total int     `json:"total"`
}

// Controller owns the state of one list page. Every mutation is applied
// under one lock and committed to the store with a single Replace, so a
// reader never observes a half-applied transition such as a new filter
// with the old page. Controller is safe for concurrent use.
type Controller[R any] struct {
	mu    sync.Mutex
	opts  Options[R]
	store filterquery.Store
	log   *slog.Logger

	pagination Pagination
	sort       SortConfig
	search     string
	filters    filterquery.SimpleFilters
	compound   filterquery.CompoundFilters
	draft      filterquery.CompoundFilters
	selection  *Selection

	rows    []R
	derived []R
	total   int
	loaded  bool
	loading bool
	err     error
	token   Token
	refetch bool
	seen    map[string]PageSnapshot
	lastKey string
}

// New seeds a controller from the store's current query. Malformed
// navigation input (bad page, unknown sort key, invalid operator) is
// dropped silently.
func New[R any](store filterquery.Store, opts Options[R]) (*Controller[R], error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}
	opts = opts.withDefaults()
	c := &Controller[R]{
		opts:      opts,
		store:     store,
		log:       opts.Logger.With(slog.String("resource", opts.Resource)),
		selection: NewSelection(),
		seen:      make(map[string]PageSnapshot),
	}
	c.seed(store.Query())
	return c, nil
}

func (c *Controller[R]) seed(q url.Values) {
	c.pagination = Pagination{PageSize: c.opts.PageSize, CurrentPage: 1}
	if page, err := strconv.Atoi(q.Get(filterquery.ParamPage)); err == nil && page > 1 {
		c.pagination.CurrentPage = page
	}
	if limit, err := strconv.Atoi(q.Get(filterquery.ParamLimit)); err == nil && limit > 0 {
		c.pagination.PageSize = min(limit, c.opts.MaxPageSize)
	}
	c.search = strings.TrimSpace(q.Get(filterquery.ParamSearch))
	if key, dir := q.Get(filterquery.ParamSort), ParseSortDirection(q.Get(filterquery.ParamDir)); c.sortable(key) && dir != SortNone {
		c.sort = SortConfig{Key: key, Direction: dir}
	}
	c.filters = filterquery.DecodeSimple(q, c.opts.FilterKeys)
	c.compound = filterquery.DecodeCompound(q, c.opts.CompoundFields)
	c.draft = c.compound.Clone()
}

// Columns returns the full column set.
func (c *Controller[R]) Columns() []column.Def[R] {
	return slices.Clone(c.opts.Columns)
}

// Resource names the controlled resource.
func (c *Controller[R]) Resource() string {
	return c.opts.Resource
}

// SetSearchTerm updates the free-text search and returns to page 1. A term
// of only whitespace clears the search.
func (c *Controller[R]) SetSearchTerm(term string) {
	term = strings.TrimSpace(term)
	c.mutate(func(q url.Values) {
		c.search = term
		c.pagination.CurrentPage = 1
	})
}

// HandleSort sorts by key. A new key starts ascending; repeating the key
// cycles asc → desc → unsorted. Keys of non-sortable columns are ignored.
func (c *Controller[R]) HandleSort(key string) {
	if !c.sortable(key) {
		c.log.Debug("ignore sort on unsortable column", slog.String("key", key))
		return
	}
	c.mutate(func(q url.Values) {
		if key != c.sort.Key {
			c.sort = SortConfig{Key: key, Direction: SortAsc}
			return
		}
		next := c.sort.Direction.next()
		if next == SortNone {
			c.sort = SortConfig{}
			return
		}
		c.sort.Direction = next
	})
}

// HandlePaginate moves to page, clamped to [1, total pages]. Before the
// first remote load the upper bound is unknown and only the lower bound
// applies.
func (c *Controller[R]) HandlePaginate(page int) {
	c.mutate(func(q url.Values) {
		c.pagination.CurrentPage = c.clampPage(page)
	})
}

// SetPageSize changes the page size and returns to page 1. Non-positive
// sizes are ignored; sizes above the maximum are capped.
func (c *Controller[R]) SetPageSize(size int) {
	if size <= 0 {
		return
	}
	c.mutate(func(q url.Values) {
		c.pagination.PageSize = min(size, c.opts.MaxPageSize)
		c.pagination.CurrentPage = 1
	})
}

// UpdateFilter sets a simple filter. An empty value clears it. The filter,
// the URL and the reset to page 1 land as one transition. Unknown keys are
// ignored.
func (c *Controller[R]) UpdateFilter(key string, value ...string) {
	if !slices.Contains(c.opts.FilterKeys, key) {
		c.log.Debug("ignore unknown filter key", slog.String("key", key))
		return
	}
	c.mutate(func(q url.Values) {
		filterquery.SetSimple(q, key, value...)
		c.filters = filterquery.DecodeSimple(q, c.opts.FilterKeys)
		c.pagination.CurrentPage = 1
	})
}

// SetCompoundDraft stages a compound filter without touching the URL.
func (c *Controller[R]) SetCompoundDraft(field string, filter filterquery.Compound) {
	if !slices.Contains(c.opts.CompoundFields, field) {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.draft[field] = filter
}

// ApplyCompoundFilters merges filters into the draft and applies the whole
// draft: stale parameters of every drafted field are purged, non-empty
// conditions are written and the page resets to 1.
func (c *Controller[R]) ApplyCompoundFilters(filters filterquery.CompoundFilters) {
	c.mutate(func(q url.Values) {
		for field, filter := range filters {
			if slices.Contains(c.opts.CompoundFields, field) {
				c.draft[field] = filter
			}
		}
		filterquery.ApplyCompound(q, c.draft, c.opts.PrefixPolicy)
		c.compound = filterquery.DecodeCompound(q, c.opts.CompoundFields)
		c.draft = c.compound.Clone()
		c.pagination.CurrentPage = 1
	})
}

// ClearCompoundFilters removes every compound parameter of the tracked
// fields and empties the compound state.
func (c *Controller[R]) ClearCompoundFilters() {
	c.mutate(func(q url.Values) {
		c.clearCompound(q)
		c.pagination.CurrentPage = 1
	})
}

// HandleReset clears simple filters, compound filters and the search term
// and returns to page 1. Sort and row selection are kept: a pending bulk
// action survives a filter reset.
func (c *Controller[R]) HandleReset() {
	c.mutate(func(q url.Values) {
		for _, key := range c.opts.FilterKeys {
			q.Del(key)
		}
		c.filters = filterquery.SimpleFilters{}
		c.clearCompound(q)
		c.search = ""
		c.pagination.CurrentPage = 1
	})
}

func (c *Controller[R]) clearCompound(q url.Values) {
	tracked := c.draft.Clone()
	for field, filter := range c.compound {
		tracked[field] = filter
	}
	filterquery.ClearCompound(q, tracked, c.opts.PrefixPolicy)
	c.compound = filterquery.CompoundFilters{}
	c.draft = filterquery.CompoundFilters{}
}

// HandleRowSelect toggles id. Only rows of the current page can be added;
// any selected id can be removed.
func (c *Controller[R]) HandleRowSelect(id RowID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.selection.Has(id) {
		c.selection.Remove(id)
		return
	}
	if !slices.Contains(c.pageIDs(), id) {
		c.log.Debug("ignore selection of row outside the page", slog.String("id", string(id)))
		return
	}
	c.selection.Add(id)
}

// HandleSelectAll selects (or deselects) the rows of the current page
// only. Rows on other pages, and rows of the server-side result set that
// were never loaded, are not affected: after a select-all on page 1 of 40
// rows with page size 10, exactly 10 ids are selected.
func (c *Controller[R]) HandleSelectAll(checked bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, id := range c.pageIDs() {
		if checked {
			c.selection.Add(id)
		} else {
			c.selection.Remove(id)
		}
	}
}

// SetSelected replaces the selection, e.g. when restoring it from a session.
func (c *Controller[R]) SetSelected(ids ...RowID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.selection = NewSelection(ids...)
}

// ClearSelection empties the selection.
func (c *Controller[R]) ClearSelection() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.selection.Clear()
}

// Selected returns the selected ids in selection order.
func (c *Controller[R]) Selected() []RowID {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.selection.IDs()
}

// IsSelected reports whether id is selected.
func (c *Controller[R]) IsSelected(id RowID) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.selection.Has(id)
}

// IsFiltered reports whether any simple filter, compound filter or search
// is active.
func (c *Controller[R]) IsFiltered() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.isFiltered()
}

func (c *Controller[R]) isFiltered() bool {
	return c.search != "" || c.filters.Active() || c.compound.Active()
}

// Sort returns the active sort.
func (c *Controller[R]) Sort() SortConfig {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sort
}

// Pagination returns the page cursor.
func (c *Controller[R]) Pagination() Pagination {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pagination
}

// Descriptor describes the page to fetch from a remote source.
func (c *Controller[R]) Descriptor() source.Descriptor {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.descriptor()
}

func (c *Controller[R]) descriptor() source.Descriptor {
	d := source.Descriptor{
		Resource: c.opts.Resource,
		Page:     c.pagination.CurrentPage,
		Limit:    c.pagination.PageSize,
		Filters:  c.filters.Clone(),
		Compound: c.compound.Clone(),
		Search:   c.search,
	}
	if c.sort.Active() {
		d.SortKey = c.sort.Key
		d.SortDir = string(c.sort.Direction)
	}
	return d
}

// View derives the rows and flags to render.
func (c *Controller[R]) View() View[R] {
	c.mu.Lock()
	defer c.mu.Unlock()
	total := c.totalRows()
	v := View[R]{
		Rows:        c.pageRows(),
		Total:       total,
		TotalPages:  c.pagination.TotalPages(total),
		CurrentPage: c.pagination.CurrentPage,
		PageSize:    c.pagination.PageSize,
		Sort:        c.sort,
		Search:      c.search,
		Filters:     c.filters.Clone(),
		Compound:    c.compound.Clone(),
		Draft:       c.draft.Clone(),
		Selected:    c.selection.IDs(),
		IsFiltered:  c.isFiltered(),
		IsLoading:   c.loading,
		Err:         c.err,
	}
	ids := c.pageIDs()
	v.PageSelected = len(ids) > 0 && !slices.ContainsFunc(ids, func(id RowID) bool { return !c.selection.Has(id) })
	return v
}

// ExportPayload pairs the given visible column keys with the selection.
func (c *Controller[R]) ExportPayload(visible []string) ExportPayload {
	c.mu.Lock()
	defer c.mu.Unlock()
	return ExportPayload{
		Resource: c.opts.Resource,
		Columns:  slices.Clone(visible),
		Rows:     c.selection.IDs(),
	}
}

// RowID extracts the identifier of row.
func (c *Controller[R]) RowID(row R) (RowID, bool) {
	value, ok := keypath.String(row, c.opts.IDPath)
	if !ok || value == "" {
		return "", false
	}
	return RowID(value), true
}

// mutate applies fn and commits the URL and derived rows in one step.
func (c *Controller[R]) mutate(fn func(q url.Values)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	q := c.store.Query()
	fn(q)
	if c.opts.Mode == ModeLocal {
		c.recompute()
		c.pagination.CurrentPage = c.clampPage(c.pagination.CurrentPage)
	}
	c.writeState(q)
	c.store.Replace(q)
}

// writeState mirrors page, limit, search and sort onto q. Filters are
// written by the operations that change them.
func (c *Controller[R]) writeState(q url.Values) {
	q.Set(filterquery.ParamPage, strconv.Itoa(c.pagination.CurrentPage))
	q.Set(filterquery.ParamLimit, strconv.Itoa(c.pagination.PageSize))
	filterquery.SetSimple(q, filterquery.ParamSearch, c.search)
	if c.sort.Active() {
		q.Set(filterquery.ParamSort, c.sort.Key)
		q.Set(filterquery.ParamDir, string(c.sort.Direction))
	} else {
		q.Del(filterquery.ParamSort)
		q.Del(filterquery.ParamDir)
	}
}

func (c *Controller[R]) sortable(key string) bool {
	def, ok := column.Find(c.opts.Columns, key)
	return ok && def.Sortable
}

func (c *Controller[R]) totalRows() int {
	if c.opts.Mode == ModeLocal {
		return len(c.derived)
	}
	return c.total
}

func (c *Controller[R]) clampPage(page int) int {
	if page < 1 {
		return 1
	}
	if c.opts.Mode == ModeRemote && !c.loaded {
		return page
	}
	return min(page, c.pagination.TotalPages(c.totalRows()))
}

func (c *Controller[R]) pageRows() []R {
	if c.opts.Mode == ModeRemote {
		return slices.Clone(c.rows)
	}
	start := (c.pagination.CurrentPage - 1) * c.pagination.PageSize
	if start >= len(c.derived) {
		return nil
	}
	end := min(start+c.pagination.PageSize, len(c.derived))
	return slices.Clone(c.derived[start:end])
}

func (c *Controller[R]) pageIDs() []RowID {
	rows := c.pageRows()
	ids := make([]RowID, 0, len(rows))
	for _, row := range rows {
		if id, ok := c.RowID(row); ok {
			ids = append(ids, id)
		}
	}
	return ids
}
