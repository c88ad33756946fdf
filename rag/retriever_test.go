package rag

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/bgunyel/ragnar/search"
	"github.com/bgunyel/ragnar/testutil"
	"github.com/bgunyel/ragnar/testutil/mocks"
)

func TestStaticRetriever_RanksByOverlap(t *testing.T) {
	t.Parallel()

	r := NewStaticRetriever(
		Document{ID: "weather", Content: "Rain is expected in the capital tomorrow."},
		Document{ID: "capital", Title: "Ankara", Content: "Ankara is the capital of Turkey."},
		Document{ID: "food", Content: "Baklava is a dessert."},
	)

	docs, err := r.Retrieve(context.Background(), "What is the capital of Turkey?", 5)
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, "capital", docs[0].ID)
	assert.Equal(t, "weather", docs[1].ID)
	assert.Greater(t, docs[0].Score, docs[1].Score)

	docs, err = r.Retrieve(context.Background(), "capital Turkey", 1)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "capital", docs[0].ID)
	assert.InDelta(t, 1.0, docs[0].Score, 1e-9)
}

func TestStaticRetriever_NoOverlap(t *testing.T) {
	t.Parallel()

	r := NewStaticRetriever(Document{ID: "a", Content: "Go channels"})

	docs, err := r.Retrieve(context.Background(), "baklava recipe", 3)
	require.NoError(t, err)
	assert.Empty(t, docs)

	docs, err = r.Retrieve(context.Background(), "a an", 3)
	require.NoError(t, err)
	assert.Empty(t, docs, "short words are not terms")

	_, err = r.Retrieve(testutil.CancelledContext(), "channels", 3)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSearchRetriever(t *testing.T) {
	t.Parallel()

	client := mocks.NewStaticSearch().WithResults("capital of Turkey",
		search.Result{Title: "Ankara", URL: "https://a.example", Content: "Ankara is the capital.", Score: 0.9},
		search.Result{Title: "Ankara again", URL: "https://a.example", Content: "duplicate", Score: 0.5},
		search.Result{Title: "Turkey", URL: "https://t.example", Content: "Turkey is a country.", Score: 0.7},
	)
	r := NewSearchRetriever(client, "", 3, zap.NewNop())

	docs, err := r.Retrieve(context.Background(), "capital of Turkey", 3)
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, "https://a.example", docs[0].ID)
	assert.Equal(t, "Ankara is the capital.", docs[0].Content)
	assert.Equal(t, "https://t.example", docs[1].URL)

	reqs := client.Requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, search.CategoryGeneral, reqs[0].Category)
	assert.Equal(t, 3, reqs[0].Days)
	assert.Equal(t, []string{"capital of Turkey"}, reqs[0].Queries)
}

func TestSearchRetriever_Error(t *testing.T) {
	t.Parallel()

	r := NewSearchRetriever(mocks.NewStaticSearch().WithError(errors.New("quota")), search.CategoryNews, 0, nil)
	_, err := r.Retrieve(context.Background(), "q", 3)
	assert.ErrorContains(t, err, "quota")
}
