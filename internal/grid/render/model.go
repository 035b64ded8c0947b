// Package render turns controller and visibility state into a grid model and
// renders it with html/template. It owns no state: every value in a Model is
// derived from the Props it was built from.
package render

import (
	"html/template"
	"net/url"
	"strconv"
	"strings"

	"github.com/odyssey-erp/backoffice/internal/grid"
	"github.com/odyssey-erp/backoffice/internal/grid/column"
	"github.com/odyssey-erp/backoffice/internal/grid/filterquery"
)

// DefaultWindow is the number of page links shown on each side of the
// current page.
const DefaultWindow = 2

// Paginator is the pagination input of a grid.
type Paginator struct {
	Total       int
	CurrentPage int
	PageSize    int
	TotalPages  int
	// Sizes are the page sizes offered by the size picker.
	Sizes  []int
	Window int
}

// Props is everything a grid needs to render.
type Props[R any] struct {
	Data    []R
	Columns []column.Def[R]
	// RowID enables the checkbox column when set.
	RowID     func(R) (grid.RowID, bool)
	Paginator Paginator
	Sort      grid.SortConfig
	Selected  []grid.RowID
	// Filter is the filter UI, rendered above the table as is.
	Filter template.HTML
	Footer template.HTML

	IsFiltered bool
	IsLoading  bool
	Err        error

	// Path is the list route; Query its current state.
	Path      string
	Query     url.Values
	CSRFToken string
	EmptyText string
}

// FromView fills the state-derived props from a controller view.
func FromView[R any](v grid.View[R], cols []column.Def[R], rowID func(R) (grid.RowID, bool)) Props[R] {
	return Props[R]{
		Data:    v.Rows,
		Columns: cols,
		RowID:   rowID,
		Paginator: Paginator{
			Total:       v.Total,
			CurrentPage: v.CurrentPage,
			PageSize:    v.PageSize,
			TotalPages:  v.TotalPages,
		},
		Sort:       v.Sort,
		Selected:   v.Selected,
		IsFiltered: v.IsFiltered,
		IsLoading:  v.IsLoading,
		Err:        v.Err,
	}
}

// HeaderCell is one column header.
type HeaderCell struct {
	Key       string
	Title     string
	Sortable  bool
	Direction grid.SortDirection
	AriaSort  string
	// Href cycles the sort of this column. Empty for non-sortable columns.
	Href string
}

// Cell is one rendered value.
type Cell struct {
	Key  string
	Text string
}

// Row is one table row.
type Row struct {
	ID       grid.RowID
	Selected bool
	Cells    []Cell
}

// PageLink is one paginator entry. Gap entries render as an ellipsis.
type PageLink struct {
	Number  int
	Href    string
	Current bool
	Gap     bool
}

// SizeOption is one entry of the page size picker.
type SizeOption struct {
	Size     int
	Selected bool
}

// Pager is the rendered paginator.
type Pager struct {
	Total       int
	From        int
	To          int
	CurrentPage int
	TotalPages  int
	PageSize    int
	Pages       []PageLink
	Prev        string
	Next        string
	Sizes       []SizeOption
}

// Actions are the routes the grid's forms and links target.
type Actions struct {
	Select         string
	SelectAll      string
	ClearSelection string
	Reset          string
	Limit          string
	Page           string
}

// Model is the template input of the grid.
type Model struct {
	Headers    []HeaderCell
	Rows       []Row
	Selectable bool
	// Colspan is the width of the table in cells.
	Colspan       int
	PageSelected  bool
	SelectedCount int
	Pager         Pager
	Filter        template.HTML
	Footer        template.HTML
	IsFiltered    bool
	IsLoading     bool
	Error         string
	Actions       Actions
	// State is the canonical list query, carried by every form.
	State     string
	CSRFToken string
	EmptyText string
}

// Build derives the grid model from props.
func Build[R any](p Props[R]) Model {
	state := filterquery.Canonical(p.Query)
	m := Model{
		Selectable:    p.RowID != nil,
		SelectedCount: len(p.Selected),
		Filter:        p.Filter,
		Footer:        p.Footer,
		IsFiltered:    p.IsFiltered,
		IsLoading:     p.IsLoading,
		State:         state,
		CSRFToken:     p.CSRFToken,
		EmptyText:     p.EmptyText,
		Actions: Actions{
			Select:         action(p.Path, "select", ""),
			SelectAll:      action(p.Path, "select-all", ""),
			ClearSelection: action(p.Path, "selection/clear", ""),
			Reset:          action(p.Path, "reset", state),
			Limit:          action(p.Path, "limit", ""),
			Page:           action(p.Path, "page", ""),
		},
	}
	if p.Err != nil {
		m.Error = p.Err.Error()
	}
	if m.EmptyText == "" {
		m.EmptyText = "No records found."
	}

	for _, def := range p.Columns {
		h := HeaderCell{Key: def.Key, Title: def.Title, Sortable: def.Sortable, AriaSort: "none"}
		if h.Title == "" {
			h.Title = def.Key
		}
		if p.Sort.Active() && p.Sort.Key == def.Key {
			h.Direction = p.Sort.Direction
			h.AriaSort = ariaSort(p.Sort.Direction)
		}
		if def.Sortable {
			h.Href = action(p.Path, "sort/"+url.PathEscape(def.Key), state)
		}
		m.Headers = append(m.Headers, h)
	}

	selected := make(map[grid.RowID]struct{}, len(p.Selected))
	for _, id := range p.Selected {
		selected[id] = struct{}{}
	}
	allSelected := len(p.Data) > 0
	for _, item := range p.Data {
		row := Row{Cells: make([]Cell, 0, len(p.Columns))}
		if p.RowID != nil {
			if id, ok := p.RowID(item); ok {
				row.ID = id
				_, row.Selected = selected[id]
			}
			allSelected = allSelected && row.Selected
		}
		for _, def := range p.Columns {
			row.Cells = append(row.Cells, Cell{Key: def.Key, Text: def.Text(item)})
		}
		m.Rows = append(m.Rows, row)
	}
	m.PageSelected = m.Selectable && allSelected
	m.Colspan = len(m.Headers)
	if m.Selectable {
		m.Colspan++
	}
	m.Pager = buildPager(p.Paginator, p.Path, p.Query)
	return m
}

func buildPager(pg Paginator, path string, q url.Values) Pager {
	totalPages := max(pg.TotalPages, 1)
	current := min(max(pg.CurrentPage, 1), totalPages)
	out := Pager{
		Total:       pg.Total,
		CurrentPage: current,
		TotalPages:  totalPages,
		PageSize:    pg.PageSize,
	}
	if pg.Total > 0 && pg.PageSize > 0 {
		out.From = (current-1)*pg.PageSize + 1
		out.To = min(current*pg.PageSize, pg.Total)
	}
	window := pg.Window
	if window <= 0 {
		window = DefaultWindow
	}
	for _, n := range pageWindow(current, totalPages, window) {
		if n == 0 {
			out.Pages = append(out.Pages, PageLink{Gap: true})
			continue
		}
		out.Pages = append(out.Pages, PageLink{Number: n, Href: pageHref(path, q, n), Current: n == current})
	}
	if current > 1 {
		out.Prev = pageHref(path, q, current-1)
	}
	if current < totalPages {
		out.Next = pageHref(path, q, current+1)
	}
	for _, size := range pg.Sizes {
		out.Sizes = append(out.Sizes, SizeOption{Size: size, Selected: size == pg.PageSize})
	}
	return out
}

// pageWindow lists the first, last and current±radius pages; 0 marks a gap.
func pageWindow(current, total, radius int) []int {
	var out []int
	last := 0
	for p := 1; p <= total; p++ {
		if p != 1 && p != total && (p < current-radius || p > current+radius) {
			continue
		}
		if last != 0 && p-last > 1 {
			out = append(out, 0)
		}
		out = append(out, p)
		last = p
	}
	return out
}

func pageHref(path string, q url.Values, page int) string {
	next := filterquery.Clone(q)
	next.Set(filterquery.ParamPage, strconv.Itoa(page))
	return path + "?" + filterquery.Canonical(next)
}

func action(path, name, state string) string {
	u := strings.TrimRight(path, "/") + "/" + name
	if state != "" {
		u += "?" + state
	}
	return u
}

func ariaSort(d grid.SortDirection) string {
	switch d {
	case grid.SortAsc:
		return "ascending"
	case grid.SortDesc:
		return "descending"
	default:
		return "none"
	}
}
