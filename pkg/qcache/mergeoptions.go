package qcache

import "reflect"

// mergeStructs layers override's non-zero fields on top of base, field by
// field, and returns the result. Used to resolve QueryClient's layered
// defaults (global defaults -> per-key defaults -> call-site options) for
// both QueryOptions and MutationOptions without hand-listing every field.
//
// This approximates the source's "explicit unset vs. zero value" semantics:
// a Go struct field left at its zero value is indistinguishable from one
// explicitly set to that zero value, so a call-site option explicitly set to
// (say) StaleTime: 0 will not override a non-zero client default. Callers
// that need to force a zero value should set it directly on the built
// QueryOptions/MutationOptions rather than through client-level defaults.
func mergeStructs[T any](base, override T) T {
	result := base
	rv := reflect.ValueOf(&result).Elem()
	ov := reflect.ValueOf(override)
	for i := 0; i < rv.NumField(); i++ {
		f := ov.Field(i)
		if !f.IsZero() {
			rv.Field(i).Set(f)
		}
	}
	return result
}
