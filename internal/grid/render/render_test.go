package render

import (
	"errors"
	"html/template"
	"net/url"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/backoffice/internal/grid"
	"github.com/odyssey-erp/backoffice/internal/grid/column"
	"github.com/odyssey-erp/backoffice/internal/grid/filterquery"
)

type reservation struct {
	ID     int64  `json:"id"`
	Name   string `json:"name"`
	Status string `json:"status"`
}

var columns = []column.Def[reservation]{
	{Key: "id", Title: "ID", Sortable: true},
	{Key: "name", Title: "Guest", Sortable: true},
	{Key: "status", Title: "Status", Render: func(v any, r reservation) string { return strings.ToUpper(r.Status) }},
}

func rowID(r reservation) (grid.RowID, bool) {
	return grid.RowID(strconv.FormatInt(r.ID, 10)), r.ID != 0
}

func props() Props[reservation] {
	return Props[reservation]{
		Data:    []reservation{{ID: 3, Name: "<b>Cara</b>", Status: "active"}, {ID: 4, Name: "Dan", Status: "held"}},
		Columns: columns,
		RowID:   rowID,
		Paginator: Paginator{
			Total: 5, CurrentPage: 2, PageSize: 2, TotalPages: 3,
			Sizes: []int{2, 10, 25},
		},
		Sort:       grid.SortConfig{Key: "name", Direction: grid.SortDesc},
		Selected:   []grid.RowID{"4", "9"},
		IsFiltered: true,
		Path:       "/reservations",
		Query:      url.Values{"status": {"active"}, "page": {"2"}, "limit": {"2"}},
		CSRFToken:  "tok",
	}
}

func TestBuildHeaders(t *testing.T) {
	m := Build(props())

	require.Len(t, m.Headers, 3)
	assert.Equal(t, HeaderCell{Key: "id", Title: "ID", Sortable: true, AriaSort: "none",
		Href: "/reservations/sort/id?limit=2&page=2&status=active"}, m.Headers[0])
	assert.Equal(t, grid.SortDesc, m.Headers[1].Direction)
	assert.Equal(t, "descending", m.Headers[1].AriaSort)
	assert.Empty(t, m.Headers[2].Href, "non-sortable columns get no link")
}

func TestBuildRowsAndSelection(t *testing.T) {
	m := Build(props())

	require.Len(t, m.Rows, 2)
	assert.Equal(t, grid.RowID("3"), m.Rows[0].ID)
	assert.False(t, m.Rows[0].Selected)
	assert.True(t, m.Rows[1].Selected)
	assert.Equal(t, []Cell{{Key: "id", Text: "4"}, {Key: "name", Text: "Dan"}, {Key: "status", Text: "HELD"}}, m.Rows[1].Cells)
	assert.True(t, m.Selectable)
	assert.Equal(t, 4, m.Colspan, "three columns plus the checkbox")
	assert.False(t, m.PageSelected)
	assert.Equal(t, 2, m.SelectedCount, "ids from other pages count too")

	p := props()
	p.Selected = []grid.RowID{"3", "4"}
	assert.True(t, Build(p).PageSelected)

	p.RowID = nil
	m = Build(p)
	assert.False(t, m.Selectable)
	assert.False(t, m.PageSelected)
}

func TestBuildPager(t *testing.T) {
	m := Build(props())
	pg := m.Pager

	assert.Equal(t, 3, pg.From)
	assert.Equal(t, 4, pg.To)
	assert.Equal(t, "/reservations?limit=2&page=1&status=active", pg.Prev)
	assert.Equal(t, "/reservations?limit=2&page=3&status=active", pg.Next)
	require.Len(t, pg.Pages, 3)
	assert.True(t, pg.Pages[1].Current)
	assert.Equal(t, []SizeOption{{Size: 2, Selected: true}, {Size: 10}, {Size: 25}}, pg.Sizes)
	assert.Equal(t, "/reservations/reset?limit=2&page=2&status=active", m.Actions.Reset)
	assert.Equal(t, "/reservations/select", m.Actions.Select)
	assert.Equal(t, "/reservations/page", m.Actions.Page)

	empty := Build(Props[reservation]{Columns: columns, Path: "/reservations"})
	assert.Equal(t, 0, empty.Pager.From)
	assert.Equal(t, 1, empty.Pager.TotalPages)
	assert.Empty(t, empty.Pager.Prev)
	assert.Empty(t, empty.Pager.Next)
}

func TestPageWindow(t *testing.T) {
	cases := []struct {
		current, total int
		want           []int
	}{
		{1, 1, []int{1}},
		{3, 6, []int{1, 2, 3, 4, 5, 6}},
		{10, 20, []int{1, 0, 8, 9, 10, 11, 12, 0, 20}},
		{1, 9, []int{1, 2, 3, 0, 9}},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, pageWindow(tc.current, tc.total, 2), "page %d of %d", tc.current, tc.total)
	}
}

func TestRendererOutput(t *testing.T) {
	r, err := NewRenderer()
	require.NoError(t, err)

	p := props()
	p.Filter = template.HTML(`<form class="filters"></form>`)
	p.Err = errors.New("backend unavailable")
	html, err := r.HTML(Build(p))
	require.NoError(t, err)
	out := string(html)

	assert.Contains(t, out, `<form class="filters"></form>`)
	assert.Contains(t, out, `aria-sort="descending"`)
	assert.Contains(t, out, `href="/reservations/sort/id?limit=2&amp;page=2&amp;status=active"`)
	assert.Contains(t, out, "&lt;b&gt;Cara&lt;/b&gt;")
	assert.Contains(t, out, "Clear filters")
	assert.Contains(t, out, "backend unavailable")
	assert.Contains(t, out, `name="csrf_token" value="tok"`)
	assert.Contains(t, out, `aria-current="page">2<`)
}

func TestFromControllerView(t *testing.T) {
	store, err := filterquery.NewMemoryStore("?limit=2")
	require.NoError(t, err)
	c, err := grid.New(store, grid.Options[reservation]{
		Resource: "reservations",
		Columns:  columns,
		Mode:     grid.ModeLocal,
	})
	require.NoError(t, err)
	c.SetRows([]reservation{{ID: 1, Name: "B"}, {ID: 2, Name: "A"}, {ID: 3, Name: "C"}})
	c.HandleSort("name")
	c.HandleRowSelect("2")

	p := FromView(c.View(), c.Columns(), c.RowID)
	p.Path = "/reservations"
	p.Query = store.Query()
	m := Build(p)

	require.Len(t, m.Rows, 2)
	assert.Equal(t, grid.RowID("2"), m.Rows[0].ID)
	assert.True(t, m.Rows[0].Selected)
	assert.Equal(t, grid.SortAsc, m.Headers[1].Direction)
	assert.Equal(t, 2, m.Pager.TotalPages)
	assert.Equal(t, "/reservations?dir=asc&limit=2&page=2&sort=name", m.Pager.Next)
}
