package qcache

import "reflect"

// ReplaceEqualDeep returns oldVal if newVal is deeply structurally equal to
// it, and otherwise returns a value with the same shape as newVal where any
// subtree that is deeply equal to the corresponding subtree of oldVal is
// replaced by that old subtree (spec §4.5's "structural sharing": callers
// that compare successive query results by reference, e.g. a UI framework's
// memoized selector, keep working when the fetch produced an equivalent but
// newly-allocated value).
//
// Only map[string]any and []any are recursed into, matching the JSON-ish
// data QueryFn results are expected to be shaped like; any other type is
// compared with reflect.DeepEqual and returned as-is on inequality.
func ReplaceEqualDeep(oldVal, newVal any) any {
	if oldVal == nil || newVal == nil {
		if oldVal == nil && newVal == nil {
			return oldVal
		}
		return newVal
	}

	switch newTyped := newVal.(type) {
	case map[string]any:
		oldTyped, ok := oldVal.(map[string]any)
		if !ok {
			return newVal
		}
		if len(oldTyped) != len(newTyped) {
			return newVal
		}
		merged := make(map[string]any, len(newTyped))
		identical := true
		for k, nv := range newTyped {
			ov, present := oldTyped[k]
			if !present {
				identical = false
				merged[k] = nv
				continue
			}
			rv := ReplaceEqualDeep(ov, nv)
			if !sameValue(rv, ov) {
				identical = false
			}
			merged[k] = rv
		}
		if identical {
			return oldVal
		}
		return merged

	case []any:
		oldTyped, ok := oldVal.([]any)
		if !ok || len(oldTyped) != len(newTyped) {
			return newVal
		}
		merged := make([]any, len(newTyped))
		identical := true
		for i, nv := range newTyped {
			rv := ReplaceEqualDeep(oldTyped[i], nv)
			if !sameValue(rv, oldTyped[i]) {
				identical = false
			}
			merged[i] = rv
		}
		if identical {
			return oldVal
		}
		return merged

	default:
		if reflect.DeepEqual(oldVal, newVal) {
			return oldVal
		}
		return newVal
	}
}

func sameValue(a, b any) bool {
	return reflect.DeepEqual(a, b)
}
