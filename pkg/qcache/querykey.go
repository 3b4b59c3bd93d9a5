package qcache

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
)

// QueryKey is an ordered sequence of values identifying a query. Two keys
// that are deep-equal by value canonicalize to the same QueryHash regardless
// of map-key ordering within any element.
type QueryKey []any

// MutationKey plays the same role for mutations, though mutations are never
// looked up by key (spec §3): it is carried on MutationOptions to label a
// mutation, and MutationFilters and SetMutationDefaults match on it.
type MutationKey []any

// QueryHasher computes the cache lookup hash for a QueryKey. The default,
// CanonicalizeKey, is a stable, recursive, key-sorted stringification;
// QueryOptions.QueryKeyHashFn overrides it per-query.
type QueryHasher func(QueryKey) string

// CanonicalizeKey is the default QueryHasher: recursive, key-sorted
// stringification, so equal-by-value keys hash identically irrespective of
// map key order (spec §3).
func CanonicalizeKey(key QueryKey) string {
	var b strings.Builder
	b.WriteByte('[')
	for i, v := range key {
		if i > 0 {
			b.WriteByte(',')
		}
		writeCanonical(&b, v)
	}
	b.WriteByte(']')
	return b.String()
}

func writeCanonical(b *strings.Builder, v any) {
	switch t := v.(type) {
	case nil:
		b.WriteString("null")
	case string:
		b.WriteString(strconv.Quote(t))
	case bool:
		b.WriteString(strconv.FormatBool(t))
	case int:
		b.WriteString(strconv.Itoa(t))
	case int64:
		b.WriteString(strconv.FormatInt(t, 10))
	case float64:
		b.WriteString(strconv.FormatFloat(t, 'g', -1, 64))
	case []any:
		b.WriteByte('[')
		for i, e := range t {
			if i > 0 {
				b.WriteByte(',')
			}
			writeCanonical(b, e)
		}
		b.WriteByte(']')
	case map[string]any:
		keys := maps.Keys(t)
		slices.Sort(keys)
		b.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				b.WriteByte(',')
			}
			b.WriteString(strconv.Quote(k))
			b.WriteByte(':')
			writeCanonical(b, t[k])
		}
		b.WriteByte('}')
	default:
		// Fall back to the %#v representation (struct fields in declaration
		// order) so arbitrary comparable structs still canonicalize
		// deterministically.
		b.WriteString(canonicalizeFallback(v))
	}
}

// canonicalizeFallback handles struct/slice/map shapes not covered by the
// fast paths above (e.g. []int, structs) by formatting with fmt's "%#v",
// which prints struct fields in declaration order and map entries sorted by
// key; no further normalization is done. It is intentionally conservative: it never needs to
// be exact JSON, only stable and injective enough for cache-key equality.
func canonicalizeFallback(v any) string {
	s := fmt.Sprintf("%#v", v)
	return s
}

// EqualKeys reports whether two QueryKeys canonicalize identically.
func EqualKeys(a, b QueryKey) bool {
	return CanonicalizeKey(a) == CanonicalizeKey(b)
}

// PartialMatchKey reports whether prefix's values equal, in order, a leading
// subsequence of key's values — used by QueryFilters.ExactKey==false partial
// key matching (spec §4.7 find/findAll).
func PartialMatchKey(key, prefix QueryKey) bool {
	if len(prefix) > len(key) {
		return false
	}
	for i, p := range prefix {
		if CanonicalizeKey(QueryKey{p}) != CanonicalizeKey(QueryKey{key[i]}) {
			return false
		}
	}
	return true
}

// sortHashes is a small helper used by tests/devtools that want a
// deterministic iteration order over a set of query hashes.
func sortHashes(hashes []string) []string {
	out := append([]string(nil), hashes...)
	sort.Strings(out)
	return out
}
