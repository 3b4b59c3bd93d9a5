// Package boltpersister is a concrete qcache.Persister backed by
// go.etcd.io/bbolt, grounded on the teacher's pkg/istorage/bbolt storage
// factory: one bucket, one key ("snapshot"), the whole DehydratedState
// gob-encoded into its value.
//
// The engine treats persistence as best-effort (spec §7) and prescribes no
// wire format for the Data/Error payloads a query or mutation carries (spec
// §1 Non-goals: "persistence encoding"); gob is this package's own transport
// choice for the outer envelope, not a specification of how caller data must
// be shaped. Callers whose QueryFn/MutationFn results are not gob-encodable
// concrete types (interfaces, unexported-field structs) should gob.Register
// them, or wrap Data/Error at the call site as their own serializable
// representation before it ever reaches the cache.
package boltpersister

import (
	"bytes"
	"context"
	"encoding/gob"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/voedger/qcache/pkg/qcache"
)

const (
	bucketName = "qcache_snapshots"
	snapshotKey = "snapshot"

	dirMode  = 0o755
	fileMode = 0o644
)

// Persister implements qcache.Persister over a single bbolt database file.
type Persister struct {
	mu   sync.Mutex
	db   *bolt.DB
	path string
}

// Open creates (if necessary) and opens a bbolt database at path, ensuring
// its snapshot bucket exists.
func Open(path string) (*Persister, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, dirMode); err != nil {
			return nil, fmt.Errorf("boltpersister: create dir: %w", err)
		}
	}

	db, err := bolt.Open(path, fileMode, bolt.DefaultOptions)
	if err != nil {
		return nil, fmt.Errorf("boltpersister: open: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(bucketName))
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("boltpersister: init bucket: %w", err)
	}

	return &Persister{db: db, path: path}, nil
}

// Close closes the underlying bbolt database.
func (p *Persister) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.db.Close()
}

// PersistClient gob-encodes snapshot and writes it under the persister's
// single key, replacing any prior snapshot.
func (p *Persister) PersistClient(_ context.Context, snapshot qcache.DehydratedState) error {
	wire := toWire(snapshot)

	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(wire); err != nil {
		return fmt.Errorf("boltpersister: encode: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	return p.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket([]byte(bucketName))
		return bucket.Put([]byte(snapshotKey), buf.Bytes())
	})
}

// RestoreClient reads back the most recently persisted snapshot, returning
// a zero-value DehydratedState if none was ever written.
func (p *Persister) RestoreClient(_ context.Context) (qcache.DehydratedState, error) {
	var data []byte

	p.mu.Lock()
	err := p.db.View(func(tx *bolt.Tx) error {
		bucket := tx.Bucket([]byte(bucketName))
		v := bucket.Get([]byte(snapshotKey))
		if v != nil {
			data = append([]byte(nil), v...)
		}
		return nil
	})
	p.mu.Unlock()
	if err != nil {
		return qcache.DehydratedState{}, fmt.Errorf("boltpersister: read: %w", err)
	}
	if data == nil {
		return qcache.DehydratedState{}, nil
	}

	var wire wireState
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&wire); err != nil {
		return qcache.DehydratedState{}, fmt.Errorf("boltpersister: decode: %w", err)
	}
	return fromWire(wire), nil
}

// RemoveClient deletes any persisted snapshot.
func (p *Persister) RemoveClient(_ context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket([]byte(bucketName))
		return bucket.Delete([]byte(snapshotKey))
	})
}

// wireState/wireQuery/wireMutation mirror qcache.DehydratedState but replace
// the `error` fields (not gob-encodable as a bare interface) with their
// text, since the engine does not prescribe an error wire format. The
// mutation's Context is not persisted.
type wireState struct {
	Queries   []wireQuery
	Mutations []wireMutation
}

type wireQuery struct {
	QueryHash         string
	QueryKey          qcache.QueryKey
	Data              any
	DataUpdatedAt     time.Time
	ErrorText         string
	ErrorUpdatedAt    time.Time
	FetchFailureCount int
	FetchFailureText  string
	FetchMeta         any
	IsInvalidated     bool
	Status            int
	FetchStatus       int
}

type wireMutation struct {
	MutationID    int64
	Data          any
	ErrorText     string
	Variables     any
	FailureCount  int
	FailureText   string
	IsPaused      bool
	Status        int
	SubmittedAt   time.Time
}

func toWire(s qcache.DehydratedState) wireState {
	out := wireState{
		Queries:   make([]wireQuery, 0, len(s.Queries)),
		Mutations: make([]wireMutation, 0, len(s.Mutations)),
	}
	for _, q := range s.Queries {
		out.Queries = append(out.Queries, wireQuery{
			QueryHash:         q.QueryHash,
			QueryKey:          q.QueryKey,
			Data:              q.State.Data,
			DataUpdatedAt:     q.State.DataUpdatedAt,
			ErrorText:         errText(q.State.Error),
			ErrorUpdatedAt:    q.State.ErrorUpdatedAt,
			FetchFailureCount: q.State.FetchFailureCount,
			FetchFailureText:  errText(q.State.FetchFailureReason),
			FetchMeta:         q.State.FetchMeta,
			IsInvalidated:     q.State.IsInvalidated,
			Status:            int(q.State.Status),
			FetchStatus:       int(q.State.FetchStatus),
		})
	}
	for _, m := range s.Mutations {
		out.Mutations = append(out.Mutations, wireMutation{
			MutationID:   m.MutationID,
			Data:         m.State.Data,
			ErrorText:    errText(m.State.Error),
			Variables:    m.State.Variables,
			FailureCount: m.State.FailureCount,
			FailureText:  errText(m.State.FailureReason),
			IsPaused:     m.State.IsPaused,
			Status:       int(m.State.Status),
			SubmittedAt:  m.State.SubmittedAt,
		})
	}
	return out
}

func fromWire(w wireState) qcache.DehydratedState {
	out := qcache.DehydratedState{
		Queries:   make([]qcache.DehydratedQuery, 0, len(w.Queries)),
		Mutations: make([]qcache.DehydratedMutation, 0, len(w.Mutations)),
	}
	for _, q := range w.Queries {
		out.Queries = append(out.Queries, qcache.DehydratedQuery{
			QueryHash: q.QueryHash,
			QueryKey:  q.QueryKey,
			State: qcache.QueryState{
				Data:               q.Data,
				DataUpdatedAt:      q.DataUpdatedAt,
				Error:              textErr(q.ErrorText),
				ErrorUpdatedAt:     q.ErrorUpdatedAt,
				FetchFailureCount:  q.FetchFailureCount,
				FetchFailureReason: textErr(q.FetchFailureText),
				FetchMeta:          q.FetchMeta,
				IsInvalidated:      q.IsInvalidated,
				Status:             qcache.Status(q.Status),
				FetchStatus:        qcache.FetchStatus(q.FetchStatus),
			},
		})
	}
	for _, m := range w.Mutations {
		out.Mutations = append(out.Mutations, qcache.DehydratedMutation{
			MutationID: m.MutationID,
			State: qcache.MutationState{
				Data:          m.Data,
				Error:         textErr(m.ErrorText),
				Variables:     m.Variables,
				FailureCount:  m.FailureCount,
				FailureReason: textErr(m.FailureText),
				IsPaused:      m.IsPaused,
				Status:        qcache.MutationStatus(m.Status),
				SubmittedAt:   m.SubmittedAt,
			},
		})
	}
	return out
}

func errText(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

func textErr(s string) error {
	if s == "" {
		return nil
	}
	return fmt.Errorf("%s", s)
}
