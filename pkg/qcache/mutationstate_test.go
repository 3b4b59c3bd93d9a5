package qcache

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func Test_MutationReducer_PendingResetsFailureAndError(t *testing.T) {
	start := MutationState{
		Status:        MutationStatusError,
		Error:         errors.New("previous failure"),
		FailureCount:  3,
		FailureReason: errors.New("previous failure"),
	}
	submittedAt := time.Unix(100, 0)

	next := mutationReducer(start, mutationAction{
		Kind:        mutActionPending,
		Variables:   "payload",
		SubmittedAt: submittedAt,
	})

	assert.Equal(t, MutationStatusPending, next.Status)
	assert.Equal(t, "payload", next.Variables)
	assert.Equal(t, submittedAt, next.SubmittedAt)
	assert.False(t, next.IsPaused)
	assert.Zero(t, next.FailureCount)
	assert.NoError(t, next.FailureReason)
	assert.NoError(t, next.Error)
}

func Test_MutationReducer_PendingCanStartPaused(t *testing.T) {
	next := mutationReducer(newMutationState(), mutationAction{Kind: mutActionPending, IsPaused: true})
	assert.True(t, next.IsPaused)
}

func Test_MutationReducer_SuccessClearsErrorAndUnpauses(t *testing.T) {
	start := MutationState{Status: MutationStatusPending, IsPaused: true, Error: errors.New("x")}
	next := mutationReducer(start, mutationAction{Kind: mutActionSuccess, Data: "ok", Context: "ctx"})

	assert.Equal(t, MutationStatusSuccess, next.Status)
	assert.Equal(t, "ok", next.Data)
	assert.False(t, next.IsPaused)
	assert.NoError(t, next.Error)
	assert.Equal(t, "ctx", next.Context)
	assert.True(t, next.IsTerminal())
}

func Test_MutationReducer_ErrorIsTerminal(t *testing.T) {
	wantErr := errors.New("boom")
	next := mutationReducer(newMutationState(), mutationAction{Kind: mutActionError, Err: wantErr})

	assert.Equal(t, MutationStatusError, next.Status)
	assert.ErrorIs(t, next.Error, wantErr)
	assert.True(t, next.IsTerminal())
}

func Test_MutationReducer_FailedTracksCountWithoutChangingStatus(t *testing.T) {
	wantErr := errors.New("transient")
	next := mutationReducer(MutationState{Status: MutationStatusPending}, mutationAction{
		Kind: mutActionFailed, FailureCount: 2, Err: wantErr,
	})

	assert.Equal(t, MutationStatusPending, next.Status)
	assert.Equal(t, 2, next.FailureCount)
	assert.ErrorIs(t, next.FailureReason, wantErr)
}

func Test_MutationReducer_PauseAndContinue(t *testing.T) {
	paused := mutationReducer(MutationState{Status: MutationStatusPending}, mutationAction{Kind: mutActionPause})
	assert.True(t, paused.IsPaused)

	resumed := mutationReducer(paused, mutationAction{Kind: mutActionContinue})
	assert.False(t, resumed.IsPaused)
}

func Test_MutationReducer_SetStateReplacesWholesale(t *testing.T) {
	override := MutationState{Status: MutationStatusSuccess, Data: "restored"}
	next := mutationReducer(newMutationState(), mutationAction{Kind: mutActionSetState, SetState: &override})
	assert.Equal(t, override, next)

	unchanged := mutationReducer(override, mutationAction{Kind: mutActionSetState, SetState: nil})
	assert.Equal(t, override, unchanged)
}

func Test_NewMutationState_StartsIdle(t *testing.T) {
	assert.Equal(t, MutationStatusIdle, newMutationState().Status)
}

func Test_MutationStatus_String(t *testing.T) {
	assert.Equal(t, "idle", MutationStatusIdle.String())
	assert.Equal(t, "pending", MutationStatusPending.String())
	assert.Equal(t, "success", MutationStatusSuccess.String())
	assert.Equal(t, "error", MutationStatusError.String())
	assert.Equal(t, "unknown", MutationStatus(99).String())
}
