package filterquery

import (
	"maps"
	"net/url"
	"slices"
)

// SimpleFilters maps a filter key to its values. A key with no non-empty
// value is inactive.
type SimpleFilters map[string][]string

// Get returns the first value of key.
func (f SimpleFilters) Get(key string) string {
	if vs := f[key]; len(vs) > 0 {
		return vs[0]
	}
	return ""
}

// Active reports whether any filter carries a non-empty value.
func (f SimpleFilters) Active() bool {
	for _, vs := range f {
		if len(nonEmpty(vs)) > 0 {
			return true
		}
	}
	return false
}

// Clone deep-copies the filters, dropping inactive keys.
func (f SimpleFilters) Clone() SimpleFilters {
	out := make(SimpleFilters, len(f))
	for key, vs := range f {
		if clean := nonEmpty(vs); len(clean) > 0 {
			out[key] = clean
		}
	}
	return out
}

// Keys returns the active keys in sorted order.
func (f SimpleFilters) Keys() []string {
	return slices.Sorted(maps.Keys(f.Clone()))
}

// DecodeSimple reads the recognised keys from values. Unknown parameters
// (page, limit, server-only flags) are ignored.
func DecodeSimple(values url.Values, keys []string) SimpleFilters {
	out := make(SimpleFilters, len(keys))
	for _, key := range keys {
		if vs := nonEmpty(values[key]); len(vs) > 0 {
			out[key] = vs
		}
	}
	return out
}

// SetSimple replaces key in values. An empty value removes the key so the
// encoded query stays canonical.
func SetSimple(values url.Values, key string, value ...string) {
	vs := nonEmpty(value)
	if len(vs) == 0 {
		values.Del(key)
		return
	}
	values[key] = vs
}

// EncodeSimple renders the active filters as query parameters.
func EncodeSimple(filters SimpleFilters) url.Values {
	values := make(url.Values, len(filters))
	for key, vs := range filters {
		SetSimple(values, key, vs...)
	}
	return values
}
