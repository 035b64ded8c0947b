package backoffice

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"slices"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/backoffice/internal/grid"
	"github.com/odyssey-erp/backoffice/internal/grid/column"
	"github.com/odyssey-erp/backoffice/internal/grid/filterquery"
	"github.com/odyssey-erp/backoffice/internal/grid/render"
	"github.com/odyssey-erp/backoffice/internal/grid/source"
	"github.com/odyssey-erp/backoffice/internal/observability"
	"github.com/odyssey-erp/backoffice/internal/shared"
	"github.com/odyssey-erp/backoffice/internal/view"
	"github.com/odyssey-erp/backoffice/jobs"
)

type fakeQueue struct {
	mu       sync.Mutex
	payloads []jobs.ExportPayload
}

func (q *fakeQueue) EnqueueExport(ctx context.Context, payload jobs.ExportPayload) (string, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.payloads = append(q.payloads, payload)
	return "task-1", nil
}

type harness struct {
	t       *testing.T
	reg     *Registry
	router  chi.Router
	sess    *shared.Session
	csrf    string
	exports *fakeQueue
}

func newHarness(t *testing.T, register func(reg *Registry)) *harness {
	t.Helper()
	mr := miniredis.RunT(t)
	redisClient := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	sessions := shared.NewSessionManager(redisClient, "test_session", "secret", time.Hour, false)
	csrf := shared.NewCSRFManager("csrfsecret")
	templates, err := view.NewEngine()
	require.NoError(t, err)
	renderer, err := render.NewRenderer()
	require.NoError(t, err)

	exports := &fakeQueue{}
	reg := NewRegistry(Deps{
		Logger:       slog.New(slog.NewTextHandler(io.Discard, nil)),
		Templates:    templates,
		Grid:         renderer,
		CSRF:         csrf,
		Exports:      exports,
		Metrics:      observability.NewMetrics(),
		Cache:        redisClient,
		CacheTTL:     time.Minute,
		PageSize:     5,
		MaxPageSize:  50,
		PrefixPolicy: filterquery.PrefixFullKey,
	})
	register(reg)

	sess, err := sessions.Load(context.Background(), httptest.NewRequest(http.MethodGet, "/", nil))
	require.NoError(t, err)
	token, err := csrf.EnsureToken(context.Background(), sess)
	require.NoError(t, err)

	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			next.ServeHTTP(w, req.WithContext(shared.ContextWithSession(req.Context(), sess)))
		})
	})
	reg.MountRoutes(r)
	return &harness{t: t, reg: reg, router: r, sess: sess, csrf: token, exports: exports}
}

func demoHarness(t *testing.T) *harness {
	return newHarness(t, func(reg *Registry) {
		require.NoError(t, RegisterDemo(reg, "", nil))
	})
}

func (h *harness) get(target string) *httptest.ResponseRecorder {
	h.t.Helper()
	rec := httptest.NewRecorder()
	h.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	return rec
}

func (h *harness) post(target string, form url.Values) *httptest.ResponseRecorder {
	h.t.Helper()
	if form == nil {
		form = url.Values{}
	}
	form.Set(shared.CSRFFormField, h.csrf)
	req := httptest.NewRequest(http.MethodPost, target, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	h.router.ServeHTTP(rec, req)
	return rec
}

func (h *harness) redirect(rec *httptest.ResponseRecorder) string {
	h.t.Helper()
	require.Equal(h.t, http.StatusSeeOther, rec.Code, rec.Body.String())
	return rec.Header().Get("Location")
}

func (h *harness) selection(resource string) []grid.RowID {
	return loadSelection(h.sess, resource)
}

func TestListRendersFirstPage(t *testing.T) {
	h := demoHarness(t)

	rec := h.get("/brands")
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "Acme")
	assert.Contains(t, body, "Élan")
	assert.NotContains(t, body, "Fjord", "sixth brand is on page 2")
	assert.Contains(t, body, `aria-current="page"`)
	assert.Contains(t, body, `href="/brands?page=2"`)
	assert.Contains(t, body, "1–5 of 12")
}

func TestSortRedirectsToCanonicalURL(t *testing.T) {
	h := demoHarness(t)

	loc := h.redirect(h.get("/brands/sort/name?limit=5&page=2"))
	assert.Equal(t, "/brands?dir=asc&limit=5&page=2&sort=name", loc)

	loc = h.redirect(h.get("/brands/sort/name?dir=asc&limit=5&page=2&sort=name"))
	assert.Equal(t, "/brands?dir=desc&limit=5&page=2&sort=name", loc)

	loc = h.redirect(h.get("/brands/sort/status?limit=5&page=2"))
	assert.Equal(t, "/brands?limit=5&page=2", loc, "status is not sortable")
}

func TestPaginateClampsToLastPage(t *testing.T) {
	h := demoHarness(t)

	loc := h.redirect(h.get("/brands/page?n=9&q=" + url.QueryEscape("limit=5")))
	assert.Equal(t, "/brands?limit=5&page=3", loc)

	loc = h.redirect(h.get("/brands/limit?n=10&q=" + url.QueryEscape("limit=5&page=3")))
	assert.Equal(t, "/brands?limit=10&page=1", loc)
}

func TestFilterAndSearch(t *testing.T) {
	h := demoHarness(t)

	target := "/reservations/filter?status=held&search=RSV-000&q=" + url.QueryEscape("limit=10&page=3")
	loc := h.redirect(h.get(target))
	assert.Equal(t, "/reservations?limit=10&page=1&search=RSV-000&status=held", loc)

	body := h.get(loc).Body.String()
	assert.Contains(t, body, "RSV-0002")
	assert.Contains(t, body, "RSV-0005")
	assert.NotContains(t, body, "RSV-0001")
	assert.Contains(t, body, "Clear filters")

	loc = h.redirect(h.get("/reservations/reset?limit=10&page=1&search=RSV-000&sort=code&dir=desc&status=held"))
	assert.Equal(t, "/reservations?dir=desc&limit=10&page=1&sort=code", loc)
}

func TestSelectionPersistsAcrossRequests(t *testing.T) {
	h := demoHarness(t)
	state := url.Values{"q": {"limit=5&page=1"}}

	h.redirect(h.post("/brands/select", url.Values{"id": {"3"}, "q": state["q"]}))
	assert.Equal(t, []grid.RowID{"3"}, h.selection("brands"))

	h.redirect(h.get("/brands/sort/name?limit=5&page=1"))
	assert.Equal(t, []grid.RowID{"3"}, h.selection("brands"), "sorting keeps the selection")

	h.redirect(h.post("/brands/select-all", url.Values{"checked": {"true"}, "q": state["q"]}))
	assert.Equal(t, []grid.RowID{"3", "1", "2", "4", "5"}, h.selection("brands"))

	body := h.get("/brands?limit=5&page=1").Body.String()
	assert.Contains(t, body, "5 selected")
	assert.Contains(t, body, `aria-checked="true" title="Select this page"`)

	h.redirect(h.post("/brands/select-all", url.Values{"checked": {"false"}, "q": {"limit=5&page=2"}}))
	assert.Len(t, h.selection("brands"), 5, "page 2 holds none of the selected rows")

	h.redirect(h.post("/brands/selection/clear", state))
	assert.Empty(t, h.selection("brands"))
	assert.Empty(t, h.sess.Get(selectionKey("brands")))
}

func TestApplyCompoundFilters(t *testing.T) {
	h := demoHarness(t)

	form := url.Values{
		"q":                   {"limit=10&page=2"},
		"created_at.c1.op":    {"gte"},
		"created_at.c1.value": {"2024-01-15"},
		"created_at.c2.op":    {"lte"},
		"created_at.c2.value": {"2024-02-28"},
		"created_at.logic":    {"and"},
		"created_by.c1.op":    {"like"},
		"created_by.c1.value": {"admin"},
		"unrelated.c1.op":     {"eq"},
		"unrelated.c1.value":  {"x"},
	}
	loc := h.redirect(h.post("/reservations/filters/apply", form))
	assert.Equal(t, "/reservations?created_at_gte=2024-01-15&created_at_lte_and=2024-02-28&limit=10&page=1", loc)

	flash := h.sess.PopFlash()
	require.NotNil(t, flash)
	assert.Equal(t, "warning", flash.Kind)

	body := h.get(loc).Body.String()
	assert.Contains(t, body, `value="2024-01-15"`, "draft is rendered back into the form")

	loc = h.redirect(h.post("/reservations/filters/clear", url.Values{"q": {"created_at_gte=2024-01-15&created_at_lte_and=2024-02-28&limit=10&page=1&status=held"}}))
	assert.Equal(t, "/reservations?limit=10&page=1&status=held", loc)
}

func TestColumnPicker(t *testing.T) {
	h := demoHarness(t)

	body := h.get("/reservations").Body.String()
	assert.Contains(t, body, `data-key="region"`)
	assert.NotContains(t, body, `data-key="created_by"`, "audit columns start hidden")

	h.redirect(h.post("/reservations/columns", url.Values{"tag": {"store", "audit", "bogus"}}))
	body = h.get("/reservations").Body.String()
	assert.Contains(t, body, `data-key="created_by"`)

	h.redirect(h.post("/reservations/columns", url.Values{"tag": {"audit"}}))
	body = h.get("/reservations").Body.String()
	assert.NotContains(t, body, `data-key="store"`)
	assert.NotContains(t, body, `data-key="region"`)
	assert.Contains(t, body, `data-key="code"`, "untagged columns always render")
}

func TestExportEnqueuesSelection(t *testing.T) {
	h := demoHarness(t)

	h.redirect(h.post("/brands/export", url.Values{"format": {"csv"}}))
	assert.Empty(t, h.exports.payloads)
	flash := h.sess.PopFlash()
	require.NotNil(t, flash)
	assert.Equal(t, "warning", flash.Kind)

	h.redirect(h.post("/brands/select", url.Values{"id": {"2"}}))
	h.redirect(h.post("/brands/export", url.Values{"format": {"xlsx"}}))
	require.Len(t, h.exports.payloads, 1)
	got := h.exports.payloads[0]
	assert.Equal(t, "brands", got.Resource)
	assert.Equal(t, []string{"id", "name", "country", "status", "products"}, got.Columns)
	assert.Equal(t, []string{"2"}, got.Rows)
	assert.Equal(t, "xlsx", got.Format)
	flash = h.sess.PopFlash()
	require.NotNil(t, flash)
	assert.Equal(t, "success", flash.Kind)
}

func TestStateJSON(t *testing.T) {
	h := demoHarness(t)

	rec := h.get("/brands/state?limit=5&page=2&sort=name&dir=desc")
	require.Equal(t, http.StatusOK, rec.Code)
	var got stateResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, 2, got.Descriptor.Page)
	assert.Equal(t, 5, got.Descriptor.Limit)
	assert.Equal(t, "name", got.Descriptor.SortKey)
	assert.Equal(t, "desc", got.Descriptor.SortDir)
	assert.Equal(t, 12, got.Total)
	assert.Equal(t, 3, got.TotalPages)
}

func TestPutSelectionPrunesUnknownIDs(t *testing.T) {
	h := demoHarness(t)

	req := httptest.NewRequest(http.MethodPut, "/brands/selection", strings.NewReader(`{"ids":["1","99"]}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var got stateResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, []grid.RowID{"1"}, got.Selected)
	assert.Equal(t, []grid.RowID{"1"}, h.selection("brands"))

	req = httptest.NewRequest(http.MethodPut, "/brands/selection", strings.NewReader(`{"ids":[""],"extra":1}`))
	rec = httptest.NewRecorder()
	h.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRegistry(t *testing.T) {
	h := demoHarness(t)
	reg := h.reg

	assert.Equal(t, []string{"brands", "reservations", "users"}, reg.Names())
	links := reg.Links()
	require.Len(t, links, 3)
	assert.Equal(t, Link{Name: "brands", Title: "Brands", Href: "/brands"}, links[0])

	err := Register(reg, BrandResource(func(context.Context) ([]Brand, error) { return nil, nil }))
	assert.ErrorIs(t, err, ErrDuplicateResource)

	err = Register(reg, Resource[Brand]{Name: "empty", Columns: []column.Def[Brand]{{Key: "id"}}})
	assert.ErrorIs(t, err, ErrNoRows)

	err = Register(reg, Resource[Brand]{Name: "broken", Rows: func(context.Context) ([]Brand, error) { return nil, nil }})
	assert.ErrorIs(t, err, grid.ErrInvalidOptions)

	_, err = reg.ExportTable(context.Background(), "nope", []string{"id"}, []string{"1"})
	assert.ErrorIs(t, err, ErrUnknownResource)
}

func TestExportTableLocal(t *testing.T) {
	h := demoHarness(t)

	table, err := h.reg.ExportTable(context.Background(), "brands", []string{"name", "country", "missing"}, []string{"2", "1", "99"})
	require.NoError(t, err)
	assert.Equal(t, "brands", table.Name)
	assert.Equal(t, []string{"Name", "Country"}, table.Headers)
	assert.Equal(t, [][]string{{"Borealis", "SG"}, {"Acme", "ID"}}, table.Rows)
}

type row = map[string]any

func TestRemoteResource(t *testing.T) {
	var calls atomic.Int32
	src := source.Func[row](func(ctx context.Context, d source.Descriptor) (source.Page[row], error) {
		calls.Add(1)
		all := []row{{"id": 1, "name": "one"}, {"id": 2, "name": "two"}, {"id": 3, "name": "three"}}
		if ids := d.Filters["id"]; len(ids) > 0 {
			var out []row
			for _, r := range all {
				for _, id := range ids {
					if id == strconv.Itoa(r["id"].(int)) {
						out = append(out, r)
					}
				}
			}
			return source.Page[row]{Rows: out, Total: len(out)}, nil
		}
		start := (d.Page - 1) * d.Limit
		end := min(start+d.Limit, len(all))
		if start >= len(all) {
			return source.Page[row]{Total: len(all)}, nil
		}
		return source.Page[row]{Rows: all[start:end], Total: len(all)}, nil
	})
	h := newHarness(t, func(reg *Registry) {
		require.NoError(t, Register(reg, Resource[row]{
			Name:    "things",
			Columns: []column.Def[row]{{Key: "id", Sortable: true}, {Key: "name", Title: "Name"}},
			Source:  src,
		}))
	})

	body := h.get("/things?limit=2&page=2").Body.String()
	assert.Contains(t, body, "three")
	assert.NotContains(t, body, ">one<")
	h.get("/things?limit=2&page=2")
	assert.Equal(t, int32(1), calls.Load(), "second render is served from the cache")

	// A selection toggle loads the page it applies to.
	h.redirect(h.post("/things/select", url.Values{"id": {"1"}, "q": {"limit=2&page=1"}}))
	assert.Equal(t, int32(2), calls.Load())
	assert.Equal(t, []grid.RowID{"1"}, h.selection("things"))

	table, err := h.reg.ExportTable(context.Background(), "things", []string{"name"}, []string{"3", "1"})
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"three"}, {"one"}}, table.Rows)
}

// fakeBackend serves string-keyed rows by page, or by id when the id key
// is filtered on.
type fakeBackend struct {
	mu    sync.Mutex
	idKey string
	rows  []row
	calls atomic.Int32
}

func (b *fakeBackend) FetchPage(ctx context.Context, d source.Descriptor) (source.Page[row], error) {
	b.calls.Add(1)
	b.mu.Lock()
	defer b.mu.Unlock()
	if ids := d.Filters[b.idKey]; len(ids) > 0 {
		var out []row
		for _, r := range b.rows {
			for _, id := range ids {
				if r[b.idKey] == id {
					out = append(out, r)
				}
			}
		}
		return source.Page[row]{Rows: out, Total: len(out)}, nil
	}
	start := (d.Page - 1) * d.Limit
	if start >= len(b.rows) {
		return source.Page[row]{Total: len(b.rows)}, nil
	}
	end := min(start+d.Limit, len(b.rows))
	return source.Page[row]{Rows: slices.Clone(b.rows[start:end]), Total: len(b.rows)}, nil
}

func (b *fakeBackend) delete(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.rows = slices.DeleteFunc(b.rows, func(r row) bool { return r[b.idKey] == id })
}

func remoteHarness(t *testing.T, backend *fakeBackend) *harness {
	return newHarness(t, func(reg *Registry) {
		require.NoError(t, Register(reg, Resource[row]{
			Name:    "things",
			Columns: []column.Def[row]{{Key: backend.idKey}, {Key: "name", Title: "Name"}},
			IDPath:  backend.idKey,
			Source:  backend,
		}))
	})
}

func TestRemoteSelectionDropsDeletedRows(t *testing.T) {
	backend := &fakeBackend{idKey: "id", rows: []row{
		{"id": "1", "name": "one"}, {"id": "2", "name": "two"}, {"id": "3", "name": "three"},
	}}
	h := remoteHarness(t, backend)

	require.Equal(t, http.StatusOK, h.get("/things?limit=2&page=1").Code)
	for _, id := range []string{"1", "2", "ghost"} {
		h.redirect(h.post("/things/select", url.Values{"id": {id}, "q": {"limit=2&page=1"}}))
	}
	assert.Equal(t, []grid.RowID{"1", "2"}, h.selection("things"), "only rows on the page can be selected")

	backend.delete("1")
	before := backend.calls.Load()
	loc := h.redirect(h.get("/things/refresh?limit=2&page=1"))
	assert.Equal(t, "/things?limit=2&page=1", loc)
	assert.Greater(t, backend.calls.Load(), before, "refresh bypasses the cached page")
	assert.Equal(t, []grid.RowID{"2"}, h.selection("things"))

	body := h.get(loc).Body.String()
	assert.Contains(t, body, `action="/things/refresh"`)
	assert.NotContains(t, body, ">one<")
}

func TestRemotePutSelectionDropsUnknownIDs(t *testing.T) {
	backend := &fakeBackend{idKey: "id", rows: []row{
		{"id": "1", "name": "one"}, {"id": "2", "name": "two"}, {"id": "3", "name": "three"},
	}}
	h := remoteHarness(t, backend)

	req := httptest.NewRequest(http.MethodPut, "/things/selection?limit=2&page=1", strings.NewReader(`{"ids":["3","bogus","1"]}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var got stateResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, []grid.RowID{"3", "1"}, got.Selected)
	assert.Equal(t, []grid.RowID{"3", "1"}, h.selection("things"))
}

func TestRemoteExportUsesConfiguredIDPath(t *testing.T) {
	backend := &fakeBackend{idKey: "sku", rows: []row{
		{"sku": "A-1", "name": "anvil"}, {"sku": "B-2", "name": "bolt"},
	}}
	h := remoteHarness(t, backend)

	h.get("/things")
	h.redirect(h.post("/things/select", url.Values{"id": {"B-2"}}))
	assert.Equal(t, []grid.RowID{"B-2"}, h.selection("things"))

	table, err := h.reg.ExportTable(context.Background(), "things", []string{"name"}, []string{"B-2", "A-1", "C-3"})
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"bolt"}, {"anvil"}}, table.Rows)
}
