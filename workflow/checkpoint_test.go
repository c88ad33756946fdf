package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newRedisStore(t *testing.T, ttl time.Duration) (*RedisCheckpointStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisCheckpointStore(client, "test", ttl, zap.NewNop()), mr
}

func sampleCheckpoint(runID string, step int, next string) *Checkpoint {
	return &Checkpoint{
		ID:        checkpointID(runID, step),
		RunID:     runID,
		Graph:     "g",
		Step:      step,
		Node:      "work",
		Next:      next,
		State:     json.RawMessage(`{"loops":` + string(rune('0'+step)) + `}`),
		Terminal:  next == End,
		UpdatedAt: time.Unix(1700000000, 0).UTC(),
	}
}

// storeContract runs the behaviour every CheckpointStore must share.
func storeContract(t *testing.T, store CheckpointStore) {
	ctx := context.Background()

	_, err := store.Latest(ctx, "nothing")
	assert.ErrorIs(t, err, ErrCheckpointNotFound)

	for step := 1; step <= 3; step++ {
		next := "work"
		if step == 3 {
			next = End
		}
		require.NoError(t, store.Save(ctx, sampleCheckpoint("run-a", step, next)))
	}
	require.NoError(t, store.Save(ctx, sampleCheckpoint("run-b", 1, "work")))

	latest, err := store.Latest(ctx, "run-a")
	require.NoError(t, err)
	assert.Equal(t, 3, latest.Step)
	assert.True(t, latest.Terminal)
	assert.JSONEq(t, `{"loops":3}`, string(latest.State))

	history, err := store.History(ctx, "run-a")
	require.NoError(t, err)
	require.Len(t, history, 3)
	for i, cp := range history {
		assert.Equal(t, i+1, cp.Step)
	}

	require.NoError(t, store.Delete(ctx, "run-a"))
	_, err = store.Latest(ctx, "run-a")
	assert.ErrorIs(t, err, ErrCheckpointNotFound)

	other, err := store.Latest(ctx, "run-b")
	require.NoError(t, err)
	assert.Equal(t, "run-b", other.RunID)
}

func TestMemoryCheckpointStore(t *testing.T) {
	t.Parallel()
	storeContract(t, NewMemoryCheckpointStore())
}

func TestMemoryCheckpointStore_CopiesOnSave(t *testing.T) {
	t.Parallel()

	store := NewMemoryCheckpointStore()
	cp := sampleCheckpoint("r", 1, "work")
	require.NoError(t, store.Save(context.Background(), cp))
	cp.State[0] = 'X'
	cp.Next = "changed"

	got, err := store.Latest(context.Background(), "r")
	require.NoError(t, err)
	assert.Equal(t, "work", got.Next)
	assert.JSONEq(t, `{"loops":1}`, string(got.State))
}

func TestRedisCheckpointStore(t *testing.T) {
	t.Parallel()
	store, _ := newRedisStore(t, 0)
	storeContract(t, store)
}

func TestRedisCheckpointStore_TTL(t *testing.T) {
	t.Parallel()

	store, mr := newRedisStore(t, time.Minute)
	ctx := context.Background()
	require.NoError(t, store.Save(ctx, sampleCheckpoint("ttl", 1, "work")))

	assert.Equal(t, time.Minute, mr.TTL("test:run:ttl"))
	assert.Equal(t, time.Minute, mr.TTL("test:checkpoint:"+checkpointID("ttl", 1)))

	mr.FastForward(2 * time.Minute)
	_, err := store.Latest(ctx, "ttl")
	assert.ErrorIs(t, err, ErrCheckpointNotFound)
}

func TestRedisCheckpointStore_EngineResume(t *testing.T) {
	t.Parallel()

	store, _ := newRedisStore(t, 0)
	engine := NewEngine(loopGraph(t, 3), WithCheckpointStore(store))
	ctx := context.Background()

	out, err := engine.Invoke(ctx, "redis-run", &testState{}, RunConfig{})
	require.NoError(t, err)

	resumed, err := engine.Resume(ctx, "redis-run", RunConfig{})
	require.NoError(t, err)
	assert.Equal(t, out, resumed)
}

func TestRedisCheckpointStore_ReusedRunIDStartsOver(t *testing.T) {
	t.Parallel()

	store, _ := newRedisStore(t, 0)
	ctx := context.Background()
	cfg := NewRunConfig(map[string]any{"max_loops": 3})

	first := NewEngine(loopGraph(t, 3), WithCheckpointStore(store))
	_, err := first.Invoke(ctx, "r", &testState{}, cfg)
	require.NoError(t, err)

	var failing atomic.Bool
	failing.Store(true)
	second := NewEngine(NewBuilder[*testState]("second").
		AddNode("a", visit("a")).
		AddNode("boom", func(_ context.Context, s *testState, _ RunConfig) (*testState, error) {
			if failing.Load() {
				return s, errors.New("boom")
			}
			s.Visits = append(s.Visits, "boom")
			return s, nil
		}).
		AddEdge(Start, "a").
		AddEdge("a", "boom").
		AddEdge("boom", End).
		MustCompile(), WithCheckpointStore(store))

	_, err = second.Invoke(ctx, "r", &testState{}, cfg)
	require.Error(t, err)

	history, err := store.History(ctx, "r")
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, "second", history[0].Graph)

	latest, err := store.Latest(ctx, "r")
	require.NoError(t, err)
	assert.Equal(t, "boom", latest.Next)
	assert.False(t, latest.Terminal)

	_, err = first.Resume(ctx, "r", cfg)
	assert.ErrorIs(t, err, ErrGraphMismatch)

	failing.Store(false)
	out, err := second.Resume(ctx, "r", cfg)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "boom"}, out.Visits)
	assert.Zero(t, out.Loops)
}
