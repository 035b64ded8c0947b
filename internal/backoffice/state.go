package backoffice

import (
	"net/http"
	"net/url"
	"slices"

	"github.com/odyssey-erp/backoffice/internal/grid"
	"github.com/odyssey-erp/backoffice/internal/grid/column"
	"github.com/odyssey-erp/backoffice/internal/shared"
)

// stateField carries the list query through forms.
const stateField = "q"

func selectionKey(resource string) string { return "grid:" + resource + ":selected" }
func columnsKey(resource string) string   { return "grid:" + resource + ":columns" }
func snapshotKey(resource string) string  { return "grid:" + resource + ":page" }

// columnState is the persisted column picker. Known lets tags added later
// start checked while tags the user unchecked stay unchecked.
type columnState struct {
	Known   []string `json:"known"`
	Checked []string `json:"checked"`
}

func loadSelection(sess *shared.Session, resource string) []grid.RowID {
	var ids []grid.RowID
	if sess == nil || !sess.GetJSON(selectionKey(resource), &ids) {
		return nil
	}
	return ids
}

func saveSelection(sess *shared.Session, resource string, ids []grid.RowID) {
	if sess == nil {
		return
	}
	if len(ids) == 0 {
		sess.Delete(selectionKey(resource))
		return
	}
	_ = sess.SetJSON(selectionKey(resource), ids)
}

// restoreVisibility applies the persisted picker to vis, or the default
// hidden tags when nothing was saved.
func restoreVisibility[R any](sess *shared.Session, resource string, vis *column.Visibility[R], defaultHidden []string) {
	var state columnState
	if sess != nil {
		if sess.GetJSON(columnsKey(resource), &state) {
			checked := slices.Clone(state.Checked)
			for _, tag := range vis.Tags() {
				if !slices.Contains(state.Known, tag) {
					checked = append(checked, tag)
				}
			}
			vis.SetChecked(checked...)
			return
		}
	}
	if len(defaultHidden) == 0 {
		return
	}
	var checked []string
	for _, tag := range vis.Tags() {
		if !slices.Contains(defaultHidden, tag) {
			checked = append(checked, tag)
		}
	}
	vis.SetChecked(checked...)
}

func saveVisibility[R any](sess *shared.Session, resource string, vis *column.Visibility[R]) {
	if sess == nil {
		return
	}
	_ = sess.SetJSON(columnsKey(resource), columnState{Known: vis.Tags(), Checked: vis.Checked()})
}

// stateQuery returns the list query an action applies to: the hidden
// state field of a form, or the request's own query for action links.
func stateQuery(r *http.Request) url.Values {
	if raw := r.FormValue(stateField); raw != "" {
		if q, err := url.ParseQuery(raw); err == nil {
			return q
		}
	}
	q := r.URL.Query()
	q.Del(stateField)
	return q
}

// loadSnapshot returns the remote page the session saw last.
func loadSnapshot(sess *shared.Session, resource string) (grid.PageSnapshot, bool) {
	var snap grid.PageSnapshot
	if sess == nil || !sess.GetJSON(snapshotKey(resource), &snap) {
		return grid.PageSnapshot{}, false
	}
	return snap, true
}

func saveSnapshot(sess *shared.Session, resource string, snap grid.PageSnapshot) {
	if sess == nil {
		return
	}
	_ = sess.SetJSON(snapshotKey(resource), snap)
}
