package keypath

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type region struct {
	Name string `json:"name"`
}

type store struct {
	Region *region `json:"region"`
	Code   string
	secret string
}

type reservation struct {
	ID     int64  `json:"id"`
	Store  *store `json:"store"`
	Tags   []string
	Ignore string `json:"-"`
}

func TestResolveStructPaths(t *testing.T) {
	row := reservation{ID: 7, Store: &store{Region: &region{Name: "Java"}, Code: "S1", secret: "x"}, Tags: []string{"vip", "late"}}

	got, ok := Resolve(row, "store.region.name")
	require.True(t, ok)
	assert.Equal(t, "Java", got)

	got, ok = Resolve(&row, "store.code")
	require.True(t, ok)
	assert.Equal(t, "S1", got)

	got, ok = Resolve(row, "tags.1")
	require.True(t, ok)
	assert.Equal(t, "late", got)

	_, ok = Resolve(row, "store.secret")
	assert.False(t, ok, "unexported fields stay hidden")

	_, ok = Resolve(row, "ignore")
	assert.False(t, ok, "json:\"-\" hides the field")
}

func TestResolveMissing(t *testing.T) {
	tests := []struct {
		name string
		row  any
		path string
	}{
		{name: "nil row", row: nil, path: "id"},
		{name: "empty path", row: map[string]any{"id": 1}, path: ""},
		{name: "missing key", row: map[string]any{"id": 1}, path: "name"},
		{name: "nil value", row: map[string]any{"name": nil}, path: "name"},
		{name: "nil pointer hop", row: reservation{}, path: "store.region.name"},
		{name: "index out of range", row: reservation{Tags: []string{"a"}}, path: "tags.3"},
		{name: "non numeric index", row: []int{1}, path: "first"},
		{name: "scalar hop", row: map[string]any{"id": 1}, path: "id.value"},
		{name: "int keyed map", row: map[int]string{1: "a"}, path: "1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, ok := Resolve(tt.row, tt.path)
			assert.False(t, ok)
		})
	}
}

func TestResolveNestedMaps(t *testing.T) {
	row := map[string]any{
		"store": map[string]any{"region": map[string]any{"name": "Bali"}},
	}
	got, ok := String(row, "store.region.name")
	require.True(t, ok)
	assert.Equal(t, "Bali", got)
}

func TestCompare(t *testing.T) {
	early := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	late := early.Add(time.Hour)

	assert.Equal(t, -1, Compare(2, 10))
	assert.Equal(t, 1, Compare(int64(3), 2.5))
	assert.Equal(t, -1, Compare("B", "a"), "ordinal, not locale aware")
	assert.Equal(t, -1, Compare(early, late))
	assert.Equal(t, -1, Compare(false, true))
	assert.Equal(t, 0, Compare(true, true))
	assert.Equal(t, 0, Compare("x", "x"))
}

func TestFormat(t *testing.T) {
	assert.Equal(t, "", Format(nil))
	assert.Equal(t, "1.5", Format(1.5))
	assert.Equal(t, "true", Format(true))
	assert.Equal(t, "42", Format(42))
	assert.Equal(t, "", Format(time.Time{}))
}
