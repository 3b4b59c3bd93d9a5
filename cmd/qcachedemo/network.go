package main

import (
	"context"
	"fmt"
	"math/rand"
	"time"
)

// flakyNetwork simulates a backend that fails a configurable fraction of
// calls and adds a small artificial round trip, so a demo run can show
// retry/backoff behavior end to end. It never simulates going offline.
type flakyNetwork struct {
	rng        *rand.Rand
	failChance float64
	latency    time.Duration
}

func newFlakyNetwork(seed int64, failChance float64, latency time.Duration) *flakyNetwork {
	return &flakyNetwork{
		rng:        rand.New(rand.NewSource(seed)),
		failChance: failChance,
		latency:    latency,
	}
}

func (n *flakyNetwork) fetchTodos(ctx context.Context) (any, error) {
	select {
	case <-time.After(n.latency):
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	if n.rng.Float64() < n.failChance {
		return nil, fmt.Errorf("todos: upstream returned 503")
	}
	return []string{"buy milk", "write demo", "ship it"}, nil
}

func (n *flakyNetwork) postTodo(ctx context.Context, title any) (any, error) {
	select {
	case <-time.After(n.latency):
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	if n.rng.Float64() < n.failChance {
		return nil, fmt.Errorf("todos: write rejected, upstream returned 500")
	}
	return map[string]any{"title": title, "id": n.rng.Int63()}, nil
}
