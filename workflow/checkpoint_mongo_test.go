package workflow

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

func TestCheckpointIndex_UniquePerRunStep(t *testing.T) {
	t.Parallel()

	model := checkpointIndex()
	assert.Equal(t, bson.D{{Key: "run_id", Value: 1}, {Key: "step", Value: 1}}, model.Keys)

	require.NotNil(t, model.Options)
	var opts options.IndexOptions
	for _, set := range model.Options.Opts {
		require.NoError(t, set(&opts))
	}
	require.NotNil(t, opts.Unique)
	assert.True(t, *opts.Unique)
	require.NotNil(t, opts.Name)
	assert.Equal(t, "run_id_step", *opts.Name)
}

func TestMongoCheckpoint_RoundTrip(t *testing.T) {
	t.Parallel()

	doc := mongoCheckpoint{
		ID:        checkpointID("m", 2),
		RunID:     "m",
		Graph:     "rag_basic",
		Step:      2,
		Node:      "generate",
		Next:      End,
		State:     []byte(`{"question":"q"}`),
		Terminal:  true,
		UpdatedAt: time.Unix(1700000000, 0).UTC(),
	}
	cp := doc.checkpoint()
	assert.Equal(t, "ckpt_m_2", cp.ID)
	assert.Equal(t, "rag_basic", cp.Graph)
	assert.Equal(t, json.RawMessage(`{"question":"q"}`), cp.State)
	assert.True(t, cp.Terminal)
}
