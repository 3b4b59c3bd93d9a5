package qcache

import "time"

// Status reflects the data/error outcome lifecycle of a Query, independent
// of its execution axis (FetchStatus).
type Status int

const (
	StatusPending Status = iota
	StatusError
	StatusSuccess
)

func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusError:
		return "error"
	case StatusSuccess:
		return "success"
	default:
		return "unknown"
	}
}

// FetchStatus reflects a Query's execution axis, independent of Status.
type FetchStatus int

const (
	FetchStatusIdle FetchStatus = iota
	FetchStatusFetching
	FetchStatusPaused
)

func (s FetchStatus) String() string {
	switch s {
	case FetchStatusIdle:
		return "idle"
	case FetchStatusFetching:
		return "fetching"
	case FetchStatusPaused:
		return "paused"
	default:
		return "unknown"
	}
}

// QueryState is Query's reducer state (spec §3).
type QueryState struct {
	Data              any
	DataUpdatedAt     time.Time
	Error             error
	ErrorUpdatedAt    time.Time
	FetchFailureCount int
	FetchFailureReason error
	FetchMeta         any
	IsInvalidated     bool
	Status            Status
	FetchStatus       FetchStatus
}

// HasData reports whether Data has ever been set (a zero DataUpdatedAt means
// never).
func (s QueryState) HasData() bool {
	return !s.DataUpdatedAt.IsZero()
}

// queryActionKind enumerates the reducer's action variants (spec §4.5
// "State actions").
type queryActionKind int

const (
	actionContinue queryActionKind = iota
	actionFailed
	actionPause
	actionFetch
	actionSuccess
	actionError
	actionInvalidate
	actionSetState
)

// queryAction is one reducer input. Only the fields relevant to Kind are
// read.
type queryAction struct {
	Kind queryActionKind

	// actionFetch
	FetchMeta any

	// actionSuccess
	Data              any
	DataUpdatedAt     time.Time
	ManualUpdatedAt   bool // true if DataUpdatedAt was explicitly supplied (setQueryData)

	// actionError / actionFailed. FailureCount is supplied by the caller
	// (mirroring the Retryer's own count) rather than incremented by the
	// reducer, since actionFailed fires once per retry attempt and a final
	// actionError must not double-count the last one. ErrorUpdatedAt is
	// supplied by the caller (the injected clock), not read from time.Now()
	// inside the reducer, so the reducer stays pure and mock-clock-testable
	// (mirroring SubmittedAt on mutationAction).
	Err            error
	FailureCount   int
	ErrorUpdatedAt time.Time

	// actionSetState
	SetState      *QueryState
	SetStateOptions SetStateOptions
}

// SetStateOptions controls how much of an externally-supplied QueryState is
// applied by actionSetState.
type SetStateOptions struct {
	// KeepPreviousData, when true, does not clear the reducer's current
	// data before applying SetState's fields.
	KeepPreviousData bool
}

// queryReducer is a pure function from (state, action) to the next state,
// matching the source's dispatch reducer exactly in shape: no I/O, no
// notification side effects (those happen in the caller after the
// transition, per spec §4.5).
func queryReducer(state QueryState, action queryAction) QueryState {
	switch action.Kind {
	case actionFetch:
		next := state
		next.FetchMeta = action.FetchMeta
		if next.FetchStatus != FetchStatusPaused {
			next.FetchStatus = FetchStatusFetching
		}
		return next

	case actionPause:
		next := state
		next.FetchStatus = FetchStatusPaused
		return next

	case actionContinue:
		next := state
		next.FetchStatus = FetchStatusFetching
		return next

	case actionFailed:
		next := state
		next.FetchFailureCount = action.FailureCount
		next.FetchFailureReason = action.Err
		return next

	case actionSuccess:
		next := state
		next.Data = action.Data
		next.DataUpdatedAt = action.DataUpdatedAt
		next.Error = nil
		next.ErrorUpdatedAt = time.Time{}
		next.Status = StatusSuccess
		next.FetchStatus = FetchStatusIdle
		next.FetchFailureCount = 0
		next.FetchFailureReason = nil
		next.IsInvalidated = false
		return next

	case actionError:
		next := state
		next.Error = action.Err
		next.ErrorUpdatedAt = action.ErrorUpdatedAt
		next.Status = StatusError
		next.FetchStatus = FetchStatusIdle
		next.FetchFailureCount = action.FailureCount
		next.FetchFailureReason = action.Err
		return next

	case actionInvalidate:
		next := state
		next.IsInvalidated = true
		return next

	case actionSetState:
		if action.SetState == nil {
			return state
		}
		next := *action.SetState
		if action.SetStateOptions.KeepPreviousData && !next.HasData() {
			next.Data = state.Data
			next.DataUpdatedAt = state.DataUpdatedAt
		}
		return next

	default:
		return state
	}
}

// newQueryState builds the initial state for a fresh Query, applying
// InitialData/InitialDataUpdatedAt from QueryOptions if present. clock
// supplies "now" for InitialData without an explicit InitialDataUpdatedAt,
// so a Query's initial state stays deterministic under a mock clock.
func newQueryState(opts QueryOptions, clock TimeSource) QueryState {
	state := QueryState{Status: StatusPending, FetchStatus: FetchStatusIdle}
	if opts.InitialData != nil {
		state.Data = opts.InitialData
		state.Status = StatusSuccess
		if !opts.InitialDataUpdatedAt.IsZero() {
			state.DataUpdatedAt = opts.InitialDataUpdatedAt
		} else {
			state.DataUpdatedAt = clock.Now()
		}
	}
	return state
}
