package boltpersister

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voedger/qcache/pkg/qcache"
)

func openTestPersister(t *testing.T) *Persister {
	t.Helper()
	p, err := Open(filepath.Join(t.TempDir(), "qcache.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Close() })
	return p
}

func Test_Persister_RestoreWithoutPriorPersistIsEmpty(t *testing.T) {
	p := openTestPersister(t)
	snapshot, err := p.RestoreClient(context.Background())
	require.NoError(t, err)
	assert.Empty(t, snapshot.Queries)
	assert.Empty(t, snapshot.Mutations)
}

func Test_Persister_PersistAndRestoreRoundTrip(t *testing.T) {
	p := openTestPersister(t)

	updatedAt := time.Unix(1000, 0)
	snapshot := qcache.DehydratedState{
		Queries: []qcache.DehydratedQuery{
			{
				QueryHash: "todos",
				QueryKey:  qcache.QueryKey{"todos"},
				State: qcache.QueryState{
					Data:          []string{"a", "b"},
					DataUpdatedAt: updatedAt,
					Status:        qcache.StatusSuccess,
					FetchStatus:   qcache.FetchStatusIdle,
				},
			},
		},
		Mutations: []qcache.DehydratedMutation{
			{
				MutationID: 7,
				State: qcache.MutationState{
					Variables:   "payload",
					IsPaused:    true,
					Status:      qcache.MutationStatusPending,
					SubmittedAt: updatedAt,
				},
			},
		},
	}

	require.NoError(t, p.PersistClient(context.Background(), snapshot))

	restored, err := p.RestoreClient(context.Background())
	require.NoError(t, err)

	require.Len(t, restored.Queries, 1)
	assert.Equal(t, "todos", restored.Queries[0].QueryHash)
	assert.Equal(t, qcache.QueryKey{"todos"}, restored.Queries[0].QueryKey)
	assert.Equal(t, []string{"a", "b"}, restored.Queries[0].State.Data)
	assert.True(t, restored.Queries[0].State.DataUpdatedAt.Equal(updatedAt))
	assert.NoError(t, restored.Queries[0].State.Error)

	require.Len(t, restored.Mutations, 1)
	assert.EqualValues(t, 7, restored.Mutations[0].MutationID)
	assert.True(t, restored.Mutations[0].State.IsPaused)
	assert.Equal(t, "payload", restored.Mutations[0].State.Variables)
}

func Test_Persister_ErrorFieldsRoundTripAsText(t *testing.T) {
	p := openTestPersister(t)

	snapshot := qcache.DehydratedState{
		Queries: []qcache.DehydratedQuery{
			{
				QueryHash: "todos",
				QueryKey:  qcache.QueryKey{"todos"},
				State: qcache.QueryState{
					Error:              errors.New("upstream 500"),
					FetchFailureReason: errors.New("timeout"),
					FetchFailureCount:  2,
					Status:             qcache.StatusError,
				},
			},
		},
	}
	require.NoError(t, p.PersistClient(context.Background(), snapshot))

	restored, err := p.RestoreClient(context.Background())
	require.NoError(t, err)
	require.Len(t, restored.Queries, 1)
	assert.EqualError(t, restored.Queries[0].State.Error, "upstream 500")
	assert.EqualError(t, restored.Queries[0].State.FetchFailureReason, "timeout")
}

func Test_Persister_RemoveClearsSnapshot(t *testing.T) {
	p := openTestPersister(t)
	require.NoError(t, p.PersistClient(context.Background(), qcache.DehydratedState{
		Queries: []qcache.DehydratedQuery{{QueryHash: "a", QueryKey: qcache.QueryKey{"a"}}},
	}))

	require.NoError(t, p.RemoveClient(context.Background()))

	restored, err := p.RestoreClient(context.Background())
	require.NoError(t, err)
	assert.Empty(t, restored.Queries)
}

func Test_Persister_PersistOverwritesPriorSnapshot(t *testing.T) {
	p := openTestPersister(t)
	require.NoError(t, p.PersistClient(context.Background(), qcache.DehydratedState{
		Queries: []qcache.DehydratedQuery{{QueryHash: "a", QueryKey: qcache.QueryKey{"a"}}},
	}))
	require.NoError(t, p.PersistClient(context.Background(), qcache.DehydratedState{
		Queries: []qcache.DehydratedQuery{{QueryHash: "b", QueryKey: qcache.QueryKey{"b"}}},
	}))

	restored, err := p.RestoreClient(context.Background())
	require.NoError(t, err)
	require.Len(t, restored.Queries, 1)
	assert.Equal(t, "b", restored.Queries[0].QueryHash)
}
