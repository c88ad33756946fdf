package workflow

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"
)

// Checkpoint is the run/thread record written after every node: the node
// that just completed, where the run goes next and a JSON snapshot of the
// state at that point.
type Checkpoint struct {
	ID        string          `json:"id"`
	RunID     string          `json:"run_id"`
	Graph     string          `json:"graph"`
	Step      int             `json:"step"`
	Node      string          `json:"node"`
	Next      string          `json:"next"`
	State     json.RawMessage `json:"state"`
	Terminal  bool            `json:"terminal"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// CheckpointStore persists checkpoints partitioned by run ID. Implementations
// must be safe for concurrent use across runs.
type CheckpointStore interface {
	Save(ctx context.Context, cp *Checkpoint) error
	Latest(ctx context.Context, runID string) (*Checkpoint, error)
	History(ctx context.Context, runID string) ([]*Checkpoint, error)
	Delete(ctx context.Context, runID string) error
}

func checkpointID(runID string, step int) string {
	return fmt.Sprintf("ckpt_%s_%d", runID, step)
}

// =============================================================================
// In-memory store
// =============================================================================

// MemoryCheckpointStore keeps checkpoints in process memory.
type MemoryCheckpointStore struct {
	mu   sync.RWMutex
	runs map[string][]*Checkpoint
}

// NewMemoryCheckpointStore creates an empty in-memory store.
func NewMemoryCheckpointStore() *MemoryCheckpointStore {
	return &MemoryCheckpointStore{runs: make(map[string][]*Checkpoint)}
}

func (s *MemoryCheckpointStore) Save(_ context.Context, cp *Checkpoint) error {
	c := *cp
	c.State = append(json.RawMessage(nil), cp.State...)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs[cp.RunID] = append(s.runs[cp.RunID], &c)
	return nil
}

func (s *MemoryCheckpointStore) Latest(_ context.Context, runID string) (*Checkpoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	history := s.runs[runID]
	if len(history) == 0 {
		return nil, fmt.Errorf("%w: run %s", ErrCheckpointNotFound, runID)
	}
	c := *history[len(history)-1]
	return &c, nil
}

func (s *MemoryCheckpointStore) History(_ context.Context, runID string) ([]*Checkpoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	history := s.runs[runID]
	out := make([]*Checkpoint, len(history))
	for i, cp := range history {
		c := *cp
		out[i] = &c
	}
	return out, nil
}

func (s *MemoryCheckpointStore) Delete(_ context.Context, runID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.runs, runID)
	return nil
}
