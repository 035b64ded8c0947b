package backoffice

import (
	"context"
	"fmt"
	"html/template"
	"log/slog"
	"net/http"
	"net/url"
	"slices"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/backoffice/internal/export"
	"github.com/odyssey-erp/backoffice/internal/grid"
	"github.com/odyssey-erp/backoffice/internal/grid/column"
	"github.com/odyssey-erp/backoffice/internal/grid/filterquery"
	"github.com/odyssey-erp/backoffice/internal/grid/render"
	"github.com/odyssey-erp/backoffice/internal/grid/source"
	"github.com/odyssey-erp/backoffice/internal/platform/httpx"
	"github.com/odyssey-erp/backoffice/internal/shared"
	"github.com/odyssey-erp/backoffice/internal/view"
	"github.com/odyssey-erp/backoffice/jobs"
)

var pageSizes = []int{10, 25, 50, 100}

type page[R any] struct {
	deps           Deps
	res            Resource[R]
	src            source.Source[R]
	cache          *source.Cached[R]
	filterKeys     []string
	compoundFields []string
}

func newPage[R any](deps Deps, res Resource[R]) *page[R] {
	p := &page[R]{deps: deps, res: res}
	for _, f := range res.Filters {
		p.filterKeys = append(p.filterKeys, f.Key)
	}
	for _, c := range res.Compound {
		p.compoundFields = append(p.compoundFields, c.Field)
	}
	if res.Source != nil {
		var src source.Source[R] = res.Source
		if deps.Metrics != nil {
			src = source.Instrument(src, deps.Metrics)
		}
		p.cache = source.NewCached(src, deps.Cache, "grid", deps.CacheTTL)
		p.src = p.cache
	}
	return p
}

func (p *page[R]) Name() string { return p.res.Name }

func (p *page[R]) Title() string {
	if p.res.Title != "" {
		return p.res.Title
	}
	return p.res.Name
}

func (p *page[R]) path() string { return "/" + p.res.Name }

func (p *page[R]) options() grid.Options[R] {
	mode := grid.ModeLocal
	if p.src != nil {
		mode = grid.ModeRemote
	}
	pageSize := p.res.PageSize
	if pageSize <= 0 {
		pageSize = p.deps.PageSize
	}
	return grid.Options[R]{
		Resource:       p.res.Name,
		Columns:        p.res.Columns,
		FilterKeys:     p.filterKeys,
		CompoundFields: p.compoundFields,
		FilterPaths:    p.res.FilterPaths,
		IDPath:         p.res.IDPath,
		Mode:           mode,
		PageSize:       pageSize,
		MaxPageSize:    p.deps.MaxPageSize,
		SearchMode:     p.res.SearchMode,
		PrefixPolicy:   p.deps.PrefixPolicy,
		OnStale:        p.deps.Metrics.ObserveStale,
		Logger:         p.deps.Logger,
	}
}

func (p *page[R]) sizes() []int {
	limit := p.deps.MaxPageSize
	if limit <= 0 {
		limit = grid.DefaultMaxPageSize
	}
	var out []int
	for _, size := range pageSizes {
		if size <= limit {
			out = append(out, size)
		}
	}
	if size := p.options().PageSize; !slices.Contains(out, size) {
		out = append(out, size)
		slices.Sort(out)
	}
	return out
}

// Routes mounts the list page and its actions.
func (p *page[R]) Routes(r chi.Router) {
	r.Get("/", p.list)
	r.Get("/sort/{key}", p.act(false, func(c *grid.Controller[R], r *http.Request) {
		c.HandleSort(chi.URLParam(r, "key"))
	}))
	r.Get("/page", p.act(false, func(c *grid.Controller[R], r *http.Request) {
		n, _ := strconv.Atoi(r.FormValue("n"))
		c.HandlePaginate(n)
	}))
	r.Get("/limit", p.act(false, func(c *grid.Controller[R], r *http.Request) {
		n, _ := strconv.Atoi(r.FormValue("n"))
		c.SetPageSize(n)
	}))
	r.Get("/filter", p.act(false, p.applySimple))
	r.Get("/reset", p.act(false, func(c *grid.Controller[R], r *http.Request) {
		c.HandleReset()
	}))
	r.Get("/refresh", p.refresh)
	r.Post("/select", p.act(true, func(c *grid.Controller[R], r *http.Request) {
		if id := r.PostFormValue("id"); id != "" {
			c.HandleRowSelect(grid.RowID(id))
		}
	}))
	r.Post("/select-all", p.act(true, func(c *grid.Controller[R], r *http.Request) {
		c.HandleSelectAll(r.PostFormValue("checked") != "false")
	}))
	r.Post("/selection/clear", p.act(false, func(c *grid.Controller[R], r *http.Request) {
		c.ClearSelection()
	}))
	r.Post("/columns", p.act(false, p.pickColumns))
	r.Post("/filters/apply", p.act(false, p.applyCompound))
	r.Post("/filters/clear", p.act(false, func(c *grid.Controller[R], r *http.Request) {
		c.ClearCompoundFilters()
	}))
	r.Post("/export", p.act(false, p.export))
	r.Get("/state", p.state)
	r.Put("/selection", p.putSelection)
}

// controller rebuilds the controller of one request from q and the session.
func (p *page[R]) controller(r *http.Request, q url.Values) (*grid.Controller[R], *filterquery.URLStore, error) {
	store := filterquery.NewURLStore(&url.URL{Path: p.path(), RawQuery: q.Encode()})
	c, err := grid.New(store, p.options())
	if err != nil {
		return nil, nil, err
	}
	sess := shared.SessionFromContext(r.Context())
	c.SetSelected(loadSelection(sess, p.res.Name)...)
	if p.src != nil {
		if snap, ok := loadSnapshot(sess, p.res.Name); ok {
			c.SeedSnapshot(snap)
		}
	}
	return c, store, nil
}

// load fills c with rows and persists whatever the load pruned from the
// selection. Remote resources also record the fetched page so the next
// request can tell which rows were deleted in between.
func (p *page[R]) load(ctx context.Context, c *grid.Controller[R]) error {
	sess := shared.SessionFromContext(ctx)
	before := c.Selected()
	if p.src != nil {
		if err := c.Load(ctx, p.src); err != nil {
			return err
		}
		if snap, ok := c.Snapshot(); ok {
			saveSnapshot(sess, p.res.Name, snap)
		}
	} else {
		token := c.BeginLoad()
		rows, err := p.res.Rows(ctx)
		if err != nil {
			c.FailLoad(token, err)
			return err
		}
		c.SetRows(rows)
	}
	if after := c.Selected(); !slices.Equal(before, after) {
		saveSelection(sess, p.res.Name, after)
	}
	return nil
}

// refresh drops the cached pages of a remote resource and reloads the
// current page.
func (p *page[R]) refresh(w http.ResponseWriter, r *http.Request) {
	if p.cache != nil {
		if err := p.cache.Bump(r.Context(), p.res.Name); err != nil {
			p.deps.Logger.Warn("invalidate grid cache", slog.String("resource", p.res.Name), slog.Any("error", err))
		}
	}
	p.act(true, func(*grid.Controller[R], *http.Request) {})(w, r)
}

func (p *page[R]) visibility(sess *shared.Session) *column.Visibility[R] {
	vis := column.NewVisibility(p.res.Columns)
	restoreVisibility(sess, p.res.Name, vis, p.res.DefaultHidden)
	return vis
}

// act wraps a controller mutation: rebuild, optionally load rows, apply fn,
// persist the selection and redirect to the canonical list URL. In-memory
// resources always load so that page clamping sees the real row count.
func (p *page[R]) act(needRows bool, fn func(*grid.Controller[R], *http.Request)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c, store, err := p.controller(r, stateQuery(r))
		if err != nil {
			p.fail(w, "build grid controller", err)
			return
		}
		before := c.Selected()
		if needRows || p.src == nil {
			if err := p.load(r.Context(), c); err != nil {
				p.deps.Logger.Warn("load grid rows", slog.String("resource", p.res.Name), slog.Any("error", err))
			}
		}
		fn(c, r)
		if after := c.Selected(); !slices.Equal(before, after) {
			saveSelection(shared.SessionFromContext(r.Context()), p.res.Name, after)
		}
		http.Redirect(w, r, store.Location(), http.StatusSeeOther)
	}
}

func (p *page[R]) applySimple(c *grid.Controller[R], r *http.Request) {
	if err := r.ParseForm(); err != nil {
		return
	}
	for _, key := range p.filterKeys {
		if values, ok := r.Form[key]; ok {
			c.UpdateFilter(key, values...)
		}
	}
	if values, ok := r.Form[filterquery.ParamSearch]; ok {
		c.SetSearchTerm(values[0])
	}
}

func (p *page[R]) applyCompound(c *grid.Controller[R], r *http.Request) {
	if err := r.ParseForm(); err != nil {
		return
	}
	filters, err := parseCompound(r.PostForm, p.compoundFields)
	if err != nil {
		p.deps.Logger.Info("drop invalid compound filter", slog.String("resource", p.res.Name), slog.Any("error", err))
		p.flash(r, "warning", "Some filter conditions were invalid and have been ignored.")
	}
	c.ApplyCompoundFilters(filters)
}

func (p *page[R]) pickColumns(c *grid.Controller[R], r *http.Request) {
	if err := r.ParseForm(); err != nil {
		return
	}
	sess := shared.SessionFromContext(r.Context())
	vis := p.visibility(sess)
	var tags []string
	for _, tag := range r.PostForm["tag"] {
		if slices.Contains(vis.Tags(), tag) {
			tags = append(tags, tag)
		}
	}
	vis.SetChecked(tags...)
	saveVisibility(sess, p.res.Name, vis)
}

func (p *page[R]) export(c *grid.Controller[R], r *http.Request) {
	if p.deps.Exports == nil {
		p.flash(r, "danger", "Exports are not available.")
		return
	}
	vis := p.visibility(shared.SessionFromContext(r.Context()))
	payload := c.ExportPayload(vis.VisibleKeys())
	if len(payload.Rows) == 0 {
		p.flash(r, "warning", "Select at least one row to export.")
		return
	}
	rows := make([]string, 0, len(payload.Rows))
	for _, id := range payload.Rows {
		rows = append(rows, string(id))
	}
	id, err := p.deps.Exports.EnqueueExport(r.Context(), jobs.ExportPayload{
		Resource: payload.Resource,
		Columns:  payload.Columns,
		Rows:     rows,
		Format:   r.PostFormValue("format"),
	})
	if err != nil {
		p.deps.Logger.Error("enqueue export", slog.String("resource", p.res.Name), slog.Any("error", err))
		p.flash(r, "danger", "Export could not be queued.")
		return
	}
	p.flash(r, "success", fmt.Sprintf("Export of %d rows queued (%s).", len(rows), id))
}

type stateResponse struct {
	Descriptor source.Descriptor `json:"descriptor"`
	Location   string            `json:"location"`
	Selected   []grid.RowID      `json:"selected"`
	Columns    []string          `json:"columns"`
	Total      int               `json:"total"`
	TotalPages int               `json:"total_pages"`
}

type selectionRequest struct {
	IDs []grid.RowID `json:"ids" validate:"max=10000,dive,required"`
}

// state reports the grid state of the request's query as JSON.
func (p *page[R]) state(w http.ResponseWriter, r *http.Request) {
	c, store, err := p.controller(r, r.URL.Query())
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if !p.loadJSON(w, r, c) {
		return
	}
	p.writeState(w, r, c, store)
}

// putSelection replaces the persisted selection.
func (p *page[R]) putSelection(w http.ResponseWriter, r *http.Request) {
	var req selectionRequest
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := validate.Struct(req); err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: %v", httpx.ErrValidation, err))
		return
	}
	c, store, err := p.controller(r, r.URL.Query())
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	c.SetSelected(req.IDs...)
	// Loading prunes ids that match no row of an in-memory resource.
	if !p.loadJSON(w, r, c) {
		return
	}
	if p.src != nil {
		if !p.keepExisting(w, r, c) {
			return
		}
	}
	saveSelection(shared.SessionFromContext(r.Context()), p.res.Name, c.Selected())
	p.writeState(w, r, c, store)
}

// keepExisting narrows the selection of a remote resource to ids the
// backend still knows.
func (p *page[R]) keepExisting(w http.ResponseWriter, r *http.Request, c *grid.Controller[R]) bool {
	selected := c.Selected()
	ids := make([]string, 0, len(selected))
	for _, id := range selected {
		ids = append(ids, string(id))
	}
	_, found, err := p.rowsByID(r.Context(), ids)
	if err != nil {
		p.deps.Logger.Warn("resolve selected rows", slog.String("resource", p.res.Name), slog.Any("error", err))
		httpx.RespondError(w, fmt.Errorf("%w: %v", httpx.ErrUnavailable, err))
		return false
	}
	kept := make([]grid.RowID, 0, len(found))
	for _, id := range found {
		kept = append(kept, grid.RowID(id))
	}
	c.SetSelected(kept...)
	return true
}

func (p *page[R]) loadJSON(w http.ResponseWriter, r *http.Request, c *grid.Controller[R]) bool {
	if err := p.load(r.Context(), c); err != nil {
		p.deps.Logger.Warn("load grid rows", slog.String("resource", p.res.Name), slog.Any("error", err))
		httpx.RespondError(w, fmt.Errorf("%w: %v", httpx.ErrUnavailable, err))
		return false
	}
	return true
}

func (p *page[R]) writeState(w http.ResponseWriter, r *http.Request, c *grid.Controller[R], store *filterquery.URLStore) {
	v := c.View()
	httpx.JSON(w, http.StatusOK, stateResponse{
		Descriptor: c.Descriptor(),
		Location:   store.Location(),
		Selected:   v.Selected,
		Columns:    p.visibility(shared.SessionFromContext(r.Context())).VisibleKeys(),
		Total:      v.Total,
		TotalPages: v.TotalPages,
	})
}

type listData struct {
	Resource string
	Title    string
	Grid     template.HTML
}

func (p *page[R]) list(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sess := shared.SessionFromContext(ctx)
	c, store, err := p.controller(r, r.URL.Query())
	if err != nil {
		p.fail(w, "build grid controller", err)
		return
	}
	if err := p.load(ctx, c); err != nil {
		p.deps.Logger.Error("load grid rows", slog.String("resource", p.res.Name), slog.Any("error", err))
	}

	csrfToken := p.csrfToken(ctx, sess)
	vis := p.visibility(sess)
	v := c.View()
	state := filterquery.Canonical(store.Query())

	filters, err := p.deps.Templates.Partial("partials/grid_filters.html", p.filterData(v, vis, csrfToken, state))
	if err != nil {
		p.fail(w, "render grid filters", err)
		return
	}
	props := render.FromView(v, vis.Visible(), c.RowID)
	props.Path = p.path()
	props.Query = store.Query()
	props.CSRFToken = csrfToken
	props.Filter = filters
	props.Paginator.Sizes = p.sizes()
	gridHTML, err := p.deps.Grid.HTML(render.Build(props))
	if err != nil {
		p.fail(w, "render grid", err)
		return
	}

	var flash *shared.FlashMessage
	if sess != nil {
		flash = sess.PopFlash()
	}
	data := view.TemplateData{
		Title:       p.Title(),
		CSRFToken:   csrfToken,
		Flash:       flash,
		CurrentPath: r.URL.Path,
		Data:        listData{Resource: p.res.Name, Title: p.Title(), Grid: gridHTML},
	}
	if err := p.deps.Templates.Render(w, "pages/list.html", data); err != nil {
		p.deps.Logger.Error("render list", slog.String("resource", p.res.Name), slog.Any("error", err))
	}
}

func (p *page[R]) filterData(v grid.View[R], vis *column.Visibility[R], csrfToken, state string) filterData {
	data := filterData{
		CSRFToken:  csrfToken,
		State:      state,
		IsFiltered: v.IsFiltered,
		Search:     v.Search,
		Fields:     filterControls(p.res.Filters, v.Filters),
		Compound:   compoundControls(p.res.Compound, v.Draft),
		Operators:  operatorNames(),
		Selected:   len(v.Selected),
		Actions: filterActions{
			Filter:        p.path() + "/filter",
			ApplyCompound: p.path() + "/filters/apply",
			ClearCompound: p.path() + "/filters/clear",
			Columns:       p.path() + "/columns",
			Export:        p.path() + "/export",
		},
	}
	if p.cache != nil {
		data.Actions.Refresh = p.path() + "/refresh"
	}
	for _, tag := range vis.Tags() {
		data.Columns = append(data.Columns, columnControl{Tag: tag, Checked: vis.IsChecked(tag)})
	}
	return data
}

// ExportTable resolves ids to rows and projects them onto columns. Ids
// that no longer exist are skipped.
func (p *page[R]) ExportTable(ctx context.Context, columns, ids []string) (export.Table, error) {
	rows, _, err := p.rowsByID(ctx, ids)
	if err != nil {
		return export.Table{}, err
	}
	return export.BuildTable(p.res.Name, p.res.Columns, columns, rows), nil
}

// rowsByID returns the rows of ids that still exist together with their
// ids, both in the order of ids.
func (p *page[R]) rowsByID(ctx context.Context, ids []string) ([]R, []string, error) {
	if len(ids) == 0 {
		return nil, nil, nil
	}
	store, err := filterquery.NewMemoryStore("")
	if err != nil {
		return nil, nil, err
	}
	opts := p.options()
	c, err := grid.New(store, opts)
	if err != nil {
		return nil, nil, err
	}
	var all []R
	if p.src != nil {
		idPath := opts.IDPath
		if idPath == "" {
			idPath = grid.DefaultIDPath
		}
		fetched, err := p.src.FetchPage(ctx, source.Descriptor{
			Resource: p.res.Name,
			Page:     1,
			Limit:    len(ids),
			Filters:  filterquery.SimpleFilters{idPath: ids},
		})
		if err != nil {
			return nil, nil, err
		}
		all = fetched.Rows
	} else {
		if all, err = p.res.Rows(ctx); err != nil {
			return nil, nil, err
		}
	}
	byID := make(map[string]R, len(all))
	for _, row := range all {
		if id, ok := c.RowID(row); ok {
			byID[string(id)] = row
		}
	}
	rows := make([]R, 0, len(ids))
	found := make([]string, 0, len(ids))
	for _, id := range ids {
		if row, ok := byID[id]; ok {
			rows = append(rows, row)
			found = append(found, id)
		}
	}
	return rows, found, nil
}

func (p *page[R]) csrfToken(ctx context.Context, sess *shared.Session) string {
	if p.deps.CSRF == nil || sess == nil {
		return ""
	}
	token, err := p.deps.CSRF.EnsureToken(ctx, sess)
	if err != nil {
		p.deps.Logger.Warn("ensure csrf token", slog.Any("error", err))
	}
	return token
}

func (p *page[R]) flash(r *http.Request, kind, message string) {
	if sess := shared.SessionFromContext(r.Context()); sess != nil {
		sess.AddFlash(shared.FlashMessage{Kind: kind, Message: message})
	}
}

func (p *page[R]) fail(w http.ResponseWriter, msg string, err error) {
	p.deps.Logger.Error(msg, slog.String("resource", p.res.Name), slog.Any("error", err))
	http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
}
