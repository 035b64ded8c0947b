package filterquery

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustParse(t *testing.T, raw string) url.Values {
	t.Helper()
	values, err := url.ParseQuery(raw)
	require.NoError(t, err)
	return values
}

func TestSimpleRoundTrip(t *testing.T) {
	keys := []string{"status", "filter_region", "type"}
	tests := []struct {
		name  string
		state SimpleFilters
		want  SimpleFilters
	}{
		{name: "empty", state: SimpleFilters{}, want: SimpleFilters{}},
		{name: "single", state: SimpleFilters{"status": {"active"}}, want: SimpleFilters{"status": {"active"}}},
		{name: "multi value", state: SimpleFilters{"filter_region": {"java", "bali"}}, want: SimpleFilters{"filter_region": {"java", "bali"}}},
		{name: "empty values dropped", state: SimpleFilters{"status": {""}, "type": {}, "filter_region": {"", "java"}}, want: SimpleFilters{"filter_region": {"java"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			encoded := EncodeSimple(tt.state)
			for _, vs := range encoded {
				for _, v := range vs {
					assert.NotEmpty(t, v, "empty values must never be encoded")
				}
			}
			assert.Equal(t, tt.want, DecodeSimple(encoded, keys))
		})
	}
}

func TestDecodeSimpleIgnoresUnknownKeys(t *testing.T) {
	values := mustParse(t, "page=3&limit=50&role=admin&status=active")
	got := DecodeSimple(values, []string{"status"})
	assert.Equal(t, SimpleFilters{"status": {"active"}}, got)
}

func TestSetSimpleRemovesEmptyValue(t *testing.T) {
	values := mustParse(t, "status=active&type=b2b")
	SetSimple(values, "status", "")
	assert.Equal(t, "type=b2b", Canonical(values))

	SetSimple(values, "type", "b2c")
	assert.Equal(t, "type=b2c", Canonical(values))
}

func TestCanonicalIsOrderIndependent(t *testing.T) {
	a := mustParse(t, "status=active&page=1&type=")
	b := mustParse(t, "page=1&status=active")
	assert.Equal(t, Canonical(a), Canonical(b))
	assert.Equal(t, "page=1&status=active", Canonical(a))
}

func TestApplyCompound(t *testing.T) {
	values := mustParse(t, "created_at_gt=2023-01-01&created_at_lt_or=2023-06-01&page=4&status=active")
	ApplyCompound(values, CompoundFilters{
		"created_at": {
			C1:    Condition{Op: OpGte, Value: "2024-01-01"},
			C2:    Condition{Op: OpLte, Value: "2024-02-01"},
			Logic: LogicAnd,
		},
	}, PrefixFullKey)

	assert.Equal(t, "created_at_gte=2024-01-01&created_at_lte_and=2024-02-01&page=1&status=active", Canonical(values))
}

func TestApplyCompoundSkipsEmptyConditions(t *testing.T) {
	values := mustParse(t, "total_gt=10")
	ApplyCompound(values, CompoundFilters{
		"total":      {C1: Condition{Op: OpGt}, C2: Condition{Op: OpLt}, Logic: LogicOr},
		"created_at": {C2: Condition{Op: OpLt, Value: "2024-01-01"}, Logic: LogicOr},
		"amount":     {C1: Condition{Op: "between", Value: "1"}},
	}, PrefixFullKey)

	assert.Equal(t, "created_at_lt_or=2024-01-01&page=1", Canonical(values))
}

func TestApplyCompoundDefaultsLogicToAnd(t *testing.T) {
	values := url.Values{}
	ApplyCompound(values, CompoundFilters{
		"total": {C1: Condition{Op: OpGt, Value: "1"}, C2: Condition{Op: OpLt, Value: "9"}},
	}, PrefixFullKey)
	assert.Equal(t, "9", values.Get("total_lt_and"))
}

func TestClearCompound(t *testing.T) {
	values := mustParse(t, "created_at_gte=2024-01-01&created_at_lte_and=2024-02-01&other=x")
	state := ClearCompound(values, CompoundFilters{"created_at": {}}, PrefixFullKey)

	assert.Empty(t, state)
	assert.Equal(t, "other=x", Canonical(values))
}

func TestPrefixCollision(t *testing.T) {
	raw := "created_by_eq=42&created_at_gt=2023-01-01"
	next := CompoundFilters{"created_at": {C1: Condition{Op: OpGte, Value: "2024-01-01"}}}

	t.Run("full key keeps sibling field", func(t *testing.T) {
		values := mustParse(t, raw)
		ApplyCompound(values, next, PrefixFullKey)
		assert.Equal(t, "created_at_gte=2024-01-01&created_by_eq=42&page=1", Canonical(values))
	})

	t.Run("first token wipes sibling field", func(t *testing.T) {
		values := mustParse(t, raw)
		ApplyCompound(values, next, PrefixFirstToken)
		assert.Equal(t, "created_at_gte=2024-01-01&page=1", Canonical(values))
	})

	t.Run("clear uses the full field prefix under both policies", func(t *testing.T) {
		for _, policy := range []PrefixPolicy{PrefixFullKey, PrefixFirstToken} {
			values := mustParse(t, "created_at_gte=2024-01-01&created_by_eq=42")
			ClearCompound(values, CompoundFilters{"created_at": {}}, policy)
			assert.Equal(t, "created_by_eq=42", Canonical(values), policy.String())
		}
	})

	assert.Equal(t, [][2]string{{"created_at", "created_by"}}, Colliding([]string{"created_by", "status", "created_at"}))
}

func TestFullKeyIgnoresLongerFieldNames(t *testing.T) {
	values := mustParse(t, "created_at_date_eq=2024-01-01&created_eq=x")
	ApplyCompound(values, CompoundFilters{"created": {C1: Condition{Op: OpNe, Value: "y"}}}, PrefixFullKey)
	assert.Equal(t, "created_at_date_eq=2024-01-01&created_ne=y&page=1", Canonical(values))
}

func TestDecodeCompound(t *testing.T) {
	values := mustParse(t, "created_at_gte=2024-01-01&created_at_lte_or=2024-02-01&total_starts_with=12&status=active&created_at_bogus=1")
	got := DecodeCompound(values, []string{"created_at", "total", "missing"})

	assert.Equal(t, CompoundFilters{
		"created_at": {
			C1:    Condition{Op: OpGte, Value: "2024-01-01"},
			C2:    Condition{Op: OpLte, Value: "2024-02-01"},
			Logic: LogicOr,
		},
		"total": {C1: Condition{Op: OpStartsWith, Value: "12"}, Logic: LogicAnd},
	}, got)
}

func TestCompoundRoundTrip(t *testing.T) {
	state := CompoundFilters{
		"created_at": {C1: Condition{Op: OpGt, Value: "2024-01-01"}, C2: Condition{Op: OpEndsWith, Value: "Z"}, Logic: LogicOr},
	}
	values := url.Values{}
	ApplyCompound(values, state, PrefixFullKey)
	assert.Equal(t, state, DecodeCompound(values, []string{"created_at"}))
}

func TestParsePrefixPolicy(t *testing.T) {
	p, err := ParsePrefixPolicy("")
	require.NoError(t, err)
	assert.Equal(t, PrefixFullKey, p)

	p, err = ParsePrefixPolicy("first_token")
	require.NoError(t, err)
	assert.Equal(t, PrefixFirstToken, p)

	_, err = ParsePrefixPolicy("regex")
	assert.ErrorIs(t, err, ErrUnknownPrefixPolicy)
}

func TestMemoryStoreHistory(t *testing.T) {
	store, err := NewMemoryStore("?status=active")
	require.NoError(t, err)

	q := store.Query()
	q.Set("page", "2")
	assert.Equal(t, "status=active", store.String(), "Query returns a copy")

	store.Replace(q)
	assert.Equal(t, []string{"page=2&status=active"}, store.History())
}

func TestURLStoreLocation(t *testing.T) {
	u, err := url.Parse("/brands?status=active")
	require.NoError(t, err)
	store := NewURLStore(u)
	assert.False(t, store.Changed())

	q := store.Query()
	q.Del("status")
	store.Replace(q)
	assert.True(t, store.Changed())
	assert.Equal(t, "/brands", store.Location())
}
