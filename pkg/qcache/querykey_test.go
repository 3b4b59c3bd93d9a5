package qcache

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func Test_CanonicalizeKey_OrderMattersAtTopLevel(t *testing.T) {
	a := CanonicalizeKey(QueryKey{"todos", "list"})
	b := CanonicalizeKey(QueryKey{"list", "todos"})
	assert.NotEqual(t, a, b)
}

func Test_CanonicalizeKey_MapKeyOrderIsIrrelevant(t *testing.T) {
	a := CanonicalizeKey(QueryKey{"todos", map[string]any{"status": "done", "page": 1}})
	b := CanonicalizeKey(QueryKey{"todos", map[string]any{"page": 1, "status": "done"}})
	assert.Equal(t, a, b)
}

func Test_CanonicalizeKey_DistinguishesTypes(t *testing.T) {
	a := CanonicalizeKey(QueryKey{"1"})
	b := CanonicalizeKey(QueryKey{1})
	assert.NotEqual(t, a, b)
}

func Test_EqualKeys_TrueForValueEqualKeys(t *testing.T) {
	assert.True(t, EqualKeys(
		QueryKey{"todos", map[string]any{"a": 1, "b": 2}},
		QueryKey{"todos", map[string]any{"b": 2, "a": 1}},
	))
	assert.False(t, EqualKeys(QueryKey{"todos"}, QueryKey{"users"}))
}

func Test_PartialMatchKey_PrefixMatchesLeadingSubsequence(t *testing.T) {
	key := QueryKey{"todos", "list", map[string]any{"page": 1}}
	assert.True(t, PartialMatchKey(key, QueryKey{"todos"}))
	assert.True(t, PartialMatchKey(key, QueryKey{"todos", "list"}))
	assert.False(t, PartialMatchKey(key, QueryKey{"list"}))
}

func Test_SortHashes_DeterministicOrderIndependentOfInput(t *testing.T) {
	a := sortHashes([]string{"c", "a", "b"})
	b := sortHashes([]string{"b", "c", "a"})
	assert.Equal(t, []string{"a", "b", "c"}, a)
	assert.Equal(t, a, b)
}

func Test_PartialMatchKey_PrefixLongerThanKeyFails(t *testing.T) {
	assert.False(t, PartialMatchKey(QueryKey{"todos"}, QueryKey{"todos", "list"}))
}

func Test_PartialMatchKey_EmptyPrefixMatchesAnyKey(t *testing.T) {
	assert.True(t, PartialMatchKey(QueryKey{"todos", "list"}, QueryKey{}))
}
