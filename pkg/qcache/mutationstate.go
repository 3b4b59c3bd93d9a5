package qcache

import "time"

// MutationStatus is a Mutation's state-machine position (spec §3, §4.6):
// idle -> pending -> (success | error), revisitable by Reset or a new
// Execute.
type MutationStatus int

const (
	MutationStatusIdle MutationStatus = iota
	MutationStatusPending
	MutationStatusSuccess
	MutationStatusError
)

func (s MutationStatus) String() string {
	switch s {
	case MutationStatusIdle:
		return "idle"
	case MutationStatusPending:
		return "pending"
	case MutationStatusSuccess:
		return "success"
	case MutationStatusError:
		return "error"
	default:
		return "unknown"
	}
}

// MutationState is Mutation's state (spec §3).
type MutationState struct {
	Data          any
	Error         error
	Variables     any
	Context       any
	FailureCount  int
	FailureReason error
	IsPaused      bool
	Status        MutationStatus
	SubmittedAt   time.Time
}

// IsTerminal reports whether Status is a resting state a Mutation stays in
// until Reset or a new Execute call (spec §4.6).
func (s MutationState) IsTerminal() bool {
	return s.Status == MutationStatusSuccess || s.Status == MutationStatusError
}

type mutationActionKind int

const (
	mutActionPending mutationActionKind = iota
	mutActionSuccess
	mutActionError
	mutActionFailed
	mutActionPause
	mutActionContinue
	mutActionSetState
)

type mutationAction struct {
	Kind mutationActionKind

	Variables   any
	SubmittedAt time.Time
	IsPaused    bool

	Data    any
	Err     error
	Context any

	FailureCount int

	SetState *MutationState
}

// mutationReducer is Mutation's pure state-transition function, the
// mutation-side analogue of queryReducer (spec §4.6).
func mutationReducer(state MutationState, action mutationAction) MutationState {
	switch action.Kind {
	case mutActionPending:
		next := state
		next.Status = MutationStatusPending
		next.Variables = action.Variables
		next.SubmittedAt = action.SubmittedAt
		next.IsPaused = action.IsPaused
		next.FailureCount = 0
		next.FailureReason = nil
		next.Error = nil
		return next

	case mutActionSuccess:
		next := state
		next.Data = action.Data
		next.Error = nil
		next.Status = MutationStatusSuccess
		next.IsPaused = false
		if action.Context != nil {
			next.Context = action.Context
		}
		return next

	case mutActionError:
		next := state
		next.Error = action.Err
		next.Status = MutationStatusError
		next.IsPaused = false
		return next

	case mutActionFailed:
		next := state
		next.FailureCount = action.FailureCount
		next.FailureReason = action.Err
		return next

	case mutActionPause:
		next := state
		next.IsPaused = true
		return next

	case mutActionContinue:
		next := state
		next.IsPaused = false
		return next

	case mutActionSetState:
		if action.SetState == nil {
			return state
		}
		return *action.SetState

	default:
		return state
	}
}

func newMutationState() MutationState {
	return MutationState{Status: MutationStatusIdle}
}
