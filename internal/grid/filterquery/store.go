// Package filterquery maps list-page filter state to and from URL query
// parameters. The URL is treated as an external key/value store: every
// mutation builds a complete new query and commits it with one Replace call.
package filterquery

import (
	"maps"
	"net/url"
	"slices"
	"sync"
)

// Reserved query parameters shared by every list page.
const (
	ParamPage   = "page"
	ParamLimit  = "limit"
	ParamSearch = "search"
	ParamSort   = "sort"
	ParamDir    = "dir"
)

// Store is the URL-backed state store of a list page.
type Store interface {
	// Query returns a copy of the current query parameters.
	Query() url.Values
	// Replace commits values as one navigation.
	Replace(values url.Values)
}

// MemoryStore keeps the query in memory and records every navigation.
type MemoryStore struct {
	mu      sync.Mutex
	values  url.Values
	history []string
}

// NewMemoryStore parses raw (with or without a leading "?") into a store.
func NewMemoryStore(raw string) (*MemoryStore, error) {
	if len(raw) > 0 && raw[0] == '?' {
		raw = raw[1:]
	}
	values, err := url.ParseQuery(raw)
	if err != nil {
		return nil, err
	}
	return &MemoryStore{values: values}, nil
}

// Query implements Store.
func (s *MemoryStore) Query() url.Values {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Clone(s.values)
}

// Replace implements Store.
func (s *MemoryStore) Replace(values url.Values) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values = Clone(values)
	s.history = append(s.history, Canonical(values))
}

// History lists the canonical query of every navigation, oldest first.
func (s *MemoryStore) History() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.history)
}

// String returns the canonical form of the current query.
func (s *MemoryStore) String() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Canonical(s.values)
}

// URLStore binds a store to a request URL. Handlers redirect to Location
// once the controller has committed its changes.
type URLStore struct {
	mu      sync.Mutex
	path    string
	values  url.Values
	changed bool
}

// NewURLStore copies the query of u.
func NewURLStore(u *url.URL) *URLStore {
	if u == nil {
		return &URLStore{values: url.Values{}}
	}
	return &URLStore{path: u.Path, values: u.Query()}
}

// Query implements Store.
func (s *URLStore) Query() url.Values {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Clone(s.values)
}

// Replace implements Store.
func (s *URLStore) Replace(values url.Values) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values = Clone(values)
	s.changed = true
}

// Changed reports whether Replace has been called.
func (s *URLStore) Changed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.changed
}

// Location returns the path plus canonical query.
func (s *URLStore) Location() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if q := Canonical(s.values); q != "" {
		return s.path + "?" + q
	}
	return s.path
}

// Clone deep-copies values.
func Clone(values url.Values) url.Values {
	out := make(url.Values, len(values))
	for key, vs := range values {
		out[key] = slices.Clone(vs)
	}
	return out
}

// Canonical encodes values with sorted keys, dropping empty values and
// keys left without any value. Equivalent states encode identically.
func Canonical(values url.Values) string {
	clean := make(url.Values, len(values))
	for _, key := range slices.Sorted(maps.Keys(values)) {
		if vs := nonEmpty(values[key]); len(vs) > 0 {
			clean[key] = vs
		}
	}
	return clean.Encode()
}

func nonEmpty(values []string) []string {
	var out []string
	for _, v := range values {
		if v != "" {
			out = append(out, v)
		}
	}
	return out
}
