package workflow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.uber.org/zap"
)

// ====== MongoDB store ======

// MongoCheckpointStore stores one document per checkpoint.
type MongoCheckpointStore struct {
	coll   *mongo.Collection
	logger *zap.Logger
}

type mongoCheckpoint struct {
	ID        string    `bson:"_id"`
	RunID     string    `bson:"run_id"`
	Graph     string    `bson:"graph"`
	Step      int       `bson:"step"`
	Node      string    `bson:"node"`
	Next      string    `bson:"next"`
	State     []byte    `bson:"state"`
	Terminal  bool      `bson:"terminal"`
	UpdatedAt time.Time `bson:"updated_at"`
}

// NewMongoCheckpointStore wraps a collection.
func NewMongoCheckpointStore(coll *mongo.Collection, logger *zap.Logger) *MongoCheckpointStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MongoCheckpointStore{
		coll:   coll,
		logger: logger.With(zap.String("store", "mongo_checkpoint")),
	}
}

// EnsureIndexes creates the unique (run_id, step) index used by every query.
func (s *MongoCheckpointStore) EnsureIndexes(ctx context.Context) error {
	_, err := s.coll.Indexes().CreateOne(ctx, checkpointIndex())
	if err != nil {
		return fmt.Errorf("failed to create checkpoint index: %w", err)
	}
	return nil
}

func checkpointIndex() mongo.IndexModel {
	return mongo.IndexModel{
		Keys:    bson.D{{Key: "run_id", Value: 1}, {Key: "step", Value: 1}},
		Options: options.Index().SetUnique(true).SetName("run_id_step"),
	}
}

func (s *MongoCheckpointStore) Save(ctx context.Context, cp *Checkpoint) error {
	doc := mongoCheckpoint{
		ID:        cp.ID,
		RunID:     cp.RunID,
		Graph:     cp.Graph,
		Step:      cp.Step,
		Node:      cp.Node,
		Next:      cp.Next,
		State:     cp.State,
		Terminal:  cp.Terminal,
		UpdatedAt: cp.UpdatedAt,
	}
	opts := options.Replace().SetUpsert(true)
	if _, err := s.coll.ReplaceOne(ctx, bson.D{{Key: "_id", Value: cp.ID}}, doc, opts); err != nil {
		return fmt.Errorf("failed to save checkpoint %s: %w", cp.ID, err)
	}
	s.logger.Debug("checkpoint saved to mongo",
		zap.String("checkpoint_id", cp.ID),
		zap.String("run_id", cp.RunID),
	)
	return nil
}

func (s *MongoCheckpointStore) Latest(ctx context.Context, runID string) (*Checkpoint, error) {
	var doc mongoCheckpoint
	opts := options.FindOne().SetSort(bson.D{{Key: "step", Value: -1}})
	err := s.coll.FindOne(ctx, bson.D{{Key: "run_id", Value: runID}}, opts).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, fmt.Errorf("%w: run %s", ErrCheckpointNotFound, runID)
		}
		return nil, fmt.Errorf("failed to load checkpoint: %w", err)
	}
	return doc.checkpoint(), nil
}

func (s *MongoCheckpointStore) History(ctx context.Context, runID string) ([]*Checkpoint, error) {
	opts := options.Find().SetSort(bson.D{{Key: "step", Value: 1}})
	cur, err := s.coll.Find(ctx, bson.D{{Key: "run_id", Value: runID}}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list checkpoints: %w", err)
	}
	var docs []mongoCheckpoint
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("failed to decode checkpoints: %w", err)
	}
	out := make([]*Checkpoint, len(docs))
	for i := range docs {
		out[i] = docs[i].checkpoint()
	}
	return out, nil
}

func (s *MongoCheckpointStore) Delete(ctx context.Context, runID string) error {
	if _, err := s.coll.DeleteMany(ctx, bson.D{{Key: "run_id", Value: runID}}); err != nil {
		return fmt.Errorf("failed to delete checkpoints: %w", err)
	}
	return nil
}

func (d mongoCheckpoint) checkpoint() *Checkpoint {
	return &Checkpoint{
		ID:        d.ID,
		RunID:     d.RunID,
		Graph:     d.Graph,
		Step:      d.Step,
		Node:      d.Node,
		Next:      d.Next,
		State:     d.State,
		Terminal:  d.Terminal,
		UpdatedAt: d.UpdatedAt,
	}
}
