package grid

import (
	"context"
	"log/slog"
	"slices"

	"github.com/odyssey-erp/backoffice/internal/grid/source"
)

const maxSeenPages = 64

// SetRows replaces the in-memory row set (ModeLocal) and prunes selected
// ids that are no longer present.
func (c *Controller[R]) SetRows(rows []R) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rows = slices.Clone(rows)
	c.loaded = true
	c.loading = false
	c.err = nil
	present := make(map[RowID]struct{}, len(rows))
	for _, row := range rows {
		if id, ok := c.RowID(row); ok {
			present[id] = struct{}{}
		}
	}
	c.selection.Retain(func(id RowID) bool {
		_, ok := present[id]
		return ok
	})
	if c.opts.Mode == ModeLocal {
		c.recompute()
		c.pagination.CurrentPage = c.clampPage(c.pagination.CurrentPage)
	}
}

// BeginLoad marks a fetch in flight and returns its token. Any earlier
// token is superseded from this point on.
func (c *Controller[R]) BeginLoad() Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token++
	c.loading = true
	c.err = nil
	return c.token
}

// ApplyPage stores the result of the fetch identified by token. Results of
// superseded fetches are dropped and ApplyPage reports false.
//
// Selected ids are pruned in two cases. When the same page of the same
// query was seen before with a larger total, ids that have disappeared
// from it are dropped, which is what a refetch after a delete looks like.
// When an unfiltered first page holds the whole result set, every selected
// id outside it is dropped. Filtered pages never prune, so a selection
// survives narrowing the view.
func (c *Controller[R]) ApplyPage(token Token, page source.Page[R]) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if token != c.token {
		c.dropStale(token)
		return false
	}
	c.rows = slices.Clone(page.Rows)
	c.total = max(page.Total, 0)
	c.loading = false
	c.loaded = true
	c.err = nil

	key := c.descriptor().Key()
	ids := make([]RowID, 0, len(page.Rows))
	for _, row := range page.Rows {
		if id, ok := c.RowID(row); ok {
			ids = append(ids, id)
		}
	}
	if prev, ok := c.seen[key]; ok && c.total < prev.Total {
		for _, id := range prev.IDs {
			if !slices.Contains(ids, id) {
				c.selection.Remove(id)
			}
		}
	}
	if c.pagination.CurrentPage == 1 && !c.isFiltered() && c.total <= len(ids) {
		c.selection.Retain(func(id RowID) bool { return slices.Contains(ids, id) })
	}
	c.remember(PageSnapshot{Key: key, IDs: ids, Total: c.total})

	if clamped := c.clampPage(c.pagination.CurrentPage); clamped != c.pagination.CurrentPage {
		c.pagination.CurrentPage = clamped
		c.refetch = true
	}
	return true
}

// Snapshot returns the most recently applied remote page.
func (c *Controller[R]) Snapshot() (PageSnapshot, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	snap, ok := c.seen[c.lastKey]
	return snap, ok
}

// SeedSnapshot restores a page recorded by an earlier controller. It must
// be called before Load.
func (c *Controller[R]) SeedSnapshot(snap PageSnapshot) {
	if snap.Key == "" {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.remember(snap)
}

func (c *Controller[R]) remember(snap PageSnapshot) {
	if _, ok := c.seen[snap.Key]; !ok && len(c.seen) >= maxSeenPages {
		clear(c.seen)
	}
	c.seen[snap.Key] = snap
	c.lastKey = snap.Key
}

// FailLoad records a data-source failure for token. The error is exposed
// unchanged through View; nothing is retried.
func (c *Controller[R]) FailLoad(token Token, err error) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if token != c.token {
		c.dropStale(token)
		return false
	}
	c.loading = false
	c.err = err
	return true
}

func (c *Controller[R]) dropStale(token Token) {
	c.log.Debug("drop stale fetch result", slog.Uint64("token", uint64(token)), slog.Uint64("current", uint64(c.token)))
	if c.opts.OnStale != nil {
		c.opts.OnStale(c.opts.Resource)
	}
}

// Load fetches the current descriptor from src and applies the result.
// When the requested page lies past the end of the result set the page is
// clamped and fetched once more. A superseded load returns nil without
// touching state.
func (c *Controller[R]) Load(ctx context.Context, src source.Source[R]) error {
	for attempt := 0; attempt < 2; attempt++ {
		token := c.BeginLoad()
		page, err := src.FetchPage(ctx, c.Descriptor())
		if err != nil {
			c.FailLoad(token, err)
			return err
		}
		if !c.ApplyPage(token, page) {
			return nil
		}
		if !c.takeRefetch() {
			return nil
		}
	}
	return nil
}

func (c *Controller[R]) takeRefetch() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	refetch := c.refetch
	c.refetch = false
	return refetch
}
