package qcache

import "errors"

var (
	// ErrNoQueryFn is returned when a query has no QueryFn and is not
	// skipped.
	ErrNoQueryFn = errors.New("qcache: no queryFn configured")

	// ErrRetryerActive is a programmer-error invariant violation: a Query
	// or Mutation may have at most one active Retryer (spec invariant 1).
	ErrRetryerActive = errors.New("qcache: retryer already active")
)

// CancelledError is the sentinel error used to reject a Retryer's external
// promise when Cancel is called. Revert signals the owner (Query) should
// restore its pre-fetch data/dataUpdatedAt snapshot; Silent suppresses the
// intermediate observer notification for the cancelled attempt.
type CancelledError struct {
	Revert bool
	Silent bool
}

func (e *CancelledError) Error() string {
	return "qcache: cancelled"
}

// IsCancelledError reports whether err is (or wraps) a *CancelledError.
func IsCancelledError(err error) (*CancelledError, bool) {
	var ce *CancelledError
	if errors.As(err, &ce) {
		return ce, true
	}
	return nil, false
}
