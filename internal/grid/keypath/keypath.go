// Package keypath resolves dotted paths such as "store.region.name" against
// arbitrary row values (maps, structs, pointers and slices).
package keypath

import (
	"reflect"
	"strconv"
	"strings"
)

// Separator splits path segments.
const Separator = "."

// Resolve walks path through row and returns the value found at the end.
// The boolean is false when any segment is missing or the value is nil.
// Resolve never panics on unexpected shapes.
func Resolve(row any, path string) (any, bool) {
	if path == "" || row == nil {
		return nil, false
	}
	cur := reflect.ValueOf(row)
	for _, segment := range strings.Split(path, Separator) {
		next, ok := step(cur, segment)
		if !ok {
			return nil, false
		}
		cur = next
	}
	cur, ok := indirect(cur)
	if !ok || !cur.CanInterface() {
		return nil, false
	}
	return cur.Interface(), true
}

// String resolves path and formats the value for display or search.
func String(row any, path string) (string, bool) {
	value, ok := Resolve(row, path)
	if !ok {
		return "", false
	}
	return Format(value), true
}

func step(v reflect.Value, segment string) (reflect.Value, bool) {
	v, ok := indirect(v)
	if !ok {
		return reflect.Value{}, false
	}
	switch v.Kind() {
	case reflect.Map:
		if v.Type().Key().Kind() != reflect.String {
			return reflect.Value{}, false
		}
		key := reflect.ValueOf(segment).Convert(v.Type().Key())
		value := v.MapIndex(key)
		if !value.IsValid() {
			return reflect.Value{}, false
		}
		return value, true
	case reflect.Struct:
		return field(v, segment)
	case reflect.Slice, reflect.Array:
		idx, err := strconv.Atoi(segment)
		if err != nil || idx < 0 || idx >= v.Len() {
			return reflect.Value{}, false
		}
		return v.Index(idx), true
	default:
		return reflect.Value{}, false
	}
}

// field matches a struct field by its json tag first, then by name
// (case-insensitive so "name" finds Name).
func field(v reflect.Value, segment string) (reflect.Value, bool) {
	t := v.Type()
	byName := -1
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if !f.IsExported() {
			continue
		}
		if tag := f.Tag.Get("json"); tag != "" {
			name, _, _ := strings.Cut(tag, ",")
			if name == segment {
				return v.Field(i), true
			}
			if name == "-" {
				continue
			}
		}
		if byName < 0 && strings.EqualFold(f.Name, segment) {
			byName = i
		}
	}
	if byName < 0 {
		return reflect.Value{}, false
	}
	return v.Field(byName), true
}

func indirect(v reflect.Value) (reflect.Value, bool) {
	for v.IsValid() && (v.Kind() == reflect.Pointer || v.Kind() == reflect.Interface) {
		if v.IsNil() {
			return reflect.Value{}, false
		}
		v = v.Elem()
	}
	return v, v.IsValid()
}
