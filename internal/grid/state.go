// Package grid is the list-page state controller: pagination, single-column
// sort, free-text search, simple and compound filters, and row selection,
// kept in sync with the page URL.
package grid

import "slices"

// SortDirection is asc, desc or none.
type SortDirection string

// Sort directions. SortNone keeps insertion (or backend) order.
const (
	SortNone SortDirection = ""
	SortAsc  SortDirection = "asc"
	SortDesc SortDirection = "desc"
)

// ParseSortDirection accepts asc/desc; anything else is SortNone.
func ParseSortDirection(s string) SortDirection {
	switch SortDirection(s) {
	case SortAsc:
		return SortAsc
	case SortDesc:
		return SortDesc
	default:
		return SortNone
	}
}

// next cycles asc → desc → none.
func (d SortDirection) next() SortDirection {
	switch d {
	case SortAsc:
		return SortDesc
	case SortDesc:
		return SortNone
	default:
		return SortAsc
	}
}

// SortConfig is the single active sort. The zero value means unsorted.
type SortConfig struct {
	Key       string        `json:"key"`
	Direction SortDirection `json:"direction"`
}

// Active reports whether a sort applies.
func (s SortConfig) Active() bool {
	return s.Key != "" && s.Direction != SortNone
}

// Pagination is the 1-based page cursor.
type Pagination struct {
	PageSize    int `json:"page_size"`
	CurrentPage int `json:"current_page"`
}

// TotalPages returns ceil(total/pageSize), at least 1.
func (p Pagination) TotalPages(total int) int {
	if p.PageSize <= 0 || total <= 0 {
		return 1
	}
	return (total + p.PageSize - 1) / p.PageSize
}

// RowID identifies a row. Numeric ids are carried in their decimal form.
type RowID string

// Selection is an insertion-ordered set of row ids. It is not safe for
// concurrent use on its own; the controller guards it.
type Selection struct {
	ids   []RowID
	index map[RowID]struct{}
}

// NewSelection builds a selection from ids, ignoring duplicates.
func NewSelection(ids ...RowID) *Selection {
	s := &Selection{index: make(map[RowID]struct{}, len(ids))}
	for _, id := range ids {
		s.Add(id)
	}
	return s
}

// Has reports membership.
func (s *Selection) Has(id RowID) bool {
	_, ok := s.index[id]
	return ok
}

// Add inserts id.
func (s *Selection) Add(id RowID) {
	if id == "" || s.Has(id) {
		return
	}
	s.index[id] = struct{}{}
	s.ids = append(s.ids, id)
}

// Remove deletes id.
func (s *Selection) Remove(id RowID) {
	if !s.Has(id) {
		return
	}
	delete(s.index, id)
	s.ids = slices.DeleteFunc(s.ids, func(v RowID) bool { return v == id })
}

// Toggle flips id and reports whether it is selected afterwards.
func (s *Selection) Toggle(id RowID) bool {
	if s.Has(id) {
		s.Remove(id)
		return false
	}
	s.Add(id)
	return s.Has(id)
}

// Retain drops every id for which keep returns false.
func (s *Selection) Retain(keep func(RowID) bool) {
	s.ids = slices.DeleteFunc(s.ids, func(id RowID) bool {
		if keep(id) {
			return false
		}
		delete(s.index, id)
		return true
	})
}

// Clear empties the selection.
func (s *Selection) Clear() {
	s.ids = nil
	s.index = make(map[RowID]struct{})
}

// Len returns the number of ids.
func (s *Selection) Len() int {
	return len(s.ids)
}

// IDs returns a copy in insertion order.
func (s *Selection) IDs() []RowID {
	return slices.Clone(s.ids)
}
