// Package backoffice mounts list pages for grid resources. One generic
// page type serves every resource: each request rebuilds a grid controller
// from the URL and the session, applies the requested action and redirects
// to the canonical list URL.
package backoffice

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"

	"github.com/odyssey-erp/backoffice/internal/export"
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

var (
	// ErrUnknownResource is returned for a resource that was never registered.
	ErrUnknownResource = errors.New("backoffice: unknown resource")
	// ErrDuplicateResource is returned when a name is registered twice.
	ErrDuplicateResource = errors.New("backoffice: duplicate resource")
	// ErrNoRows is returned by a resource with neither Rows nor Source.
	ErrNoRows = errors.New("backoffice: resource has no data")
)

// Option is one choice of a select filter.
type Option struct {
	Value string
	Label string
}

// FilterField describes a simple filter control. Fields without options
// render as text inputs.
type FilterField struct {
	Key     string
	Label   string
	Options []Option
}

// CompoundField describes a field accepting a two-condition filter.
// Input is the HTML input type of the value boxes.
type CompoundField struct {
	Field string
	Label string
	Input string
}

// Resource configures one list page.
type Resource[R any] struct {
	Name     string
	Title    string
	Columns  []column.Def[R]
	Filters  []FilterField
	Compound []CompoundField
	// IDPath is the row path of the identifier. Remote sources must accept
	// it as a filter key. Defaults to "id".
	IDPath string
	// FilterPaths maps filter keys to row paths for in-memory filtering.
	FilterPaths map[string]string
	// DefaultHidden lists visibility tags unchecked until the user picks.
	DefaultHidden []string
	SearchMode    grid.SearchMode
	PageSize      int

	// Rows serves the whole row set for in-memory resources.
	Rows func(ctx context.Context) ([]R, error)
	// Source serves pages for remote resources. Source wins over Rows.
	Source source.Source[R]
}

// ExportQueue accepts export jobs.
type ExportQueue interface {
	EnqueueExport(ctx context.Context, payload jobs.ExportPayload) (string, error)
}

// Deps are shared by every page.
type Deps struct {
	Logger       *slog.Logger
	Templates    *view.Engine
	Grid         *render.Renderer
	CSRF         *shared.CSRFManager
	Exports      ExportQueue
	Metrics      *observability.Metrics
	Cache        *redis.Client
	CacheTTL     time.Duration
	PageSize     int
	MaxPageSize  int
	PrefixPolicy filterquery.PrefixPolicy
}

// Page is a mounted resource.
type Page interface {
	Name() string
	Title() string
	Routes(r chi.Router)
	ExportTable(ctx context.Context, columns, ids []string) (export.Table, error)
}

// Link points at a registered list page.
type Link struct {
	Name  string
	Title string
	Href  string
}

// Registry holds the registered pages.
type Registry struct {
	deps  Deps
	mu    sync.RWMutex
	pages map[string]Page
	order []string
}

// NewRegistry constructs an empty registry.
func NewRegistry(deps Deps) *Registry {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	return &Registry{deps: deps, pages: make(map[string]Page)}
}

// Register validates res and adds its page to reg.
func Register[R any](reg *Registry, res Resource[R]) error {
	if res.Rows == nil && res.Source == nil {
		return fmt.Errorf("%w: %s", ErrNoRows, res.Name)
	}
	p := newPage(reg.deps, res)
	scratch, err := filterquery.NewMemoryStore("")
	if err != nil {
		return err
	}
	if _, err := grid.New(scratch, p.options()); err != nil {
		return fmt.Errorf("backoffice: register %s: %w", res.Name, err)
	}

	reg.mu.Lock()
	defer reg.mu.Unlock()
	if _, ok := reg.pages[res.Name]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateResource, res.Name)
	}
	reg.pages[res.Name] = p
	reg.order = append(reg.order, res.Name)
	return nil
}

// MountRoutes mounts every page under /{name}.
func (reg *Registry) MountRoutes(r chi.Router) {
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	for _, name := range reg.order {
		r.Route("/"+name, reg.pages[name].Routes)
	}
}

// Links lists the registered pages in registration order.
func (reg *Registry) Links() []Link {
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	out := make([]Link, 0, len(reg.order))
	for _, name := range reg.order {
		out = append(out, Link{Name: name, Title: reg.pages[name].Title(), Href: "/" + name})
	}
	return out
}

// Names lists the registered resource names.
func (reg *Registry) Names() []string {
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	return slices.Clone(reg.order)
}

// ExportTable implements jobs.TableLoader.
func (reg *Registry) ExportTable(ctx context.Context, resource string, columns, ids []string) (export.Table, error) {
	reg.mu.RLock()
	p, ok := reg.pages[resource]
	reg.mu.RUnlock()
	if !ok {
		return export.Table{}, fmt.Errorf("%w: %s", ErrUnknownResource, resource)
	}
	return p.ExportTable(ctx, columns, ids)
}
