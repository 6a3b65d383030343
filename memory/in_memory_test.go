package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInMemoryStore_Search(t *testing.T) {
	s := NewInMemoryStore()
	s.Add(Document{ID: "1", Content: "Restart the tracking service when the map freezes"})
	s.Add(Document{ID: "2", Content: "Clear the browser cache to fix login loops"})
	s.Add(Document{ID: "3", Content: "The video stream requires port 8554 open"})

	results, err := s.Search(context.Background(), "map tracking freezes", 5)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "1", results[0].ID)
	assert.InDelta(t, 1.0, results[0].Score, 0.01)
}

func TestInMemoryStore_SearchPartialScore(t *testing.T) {
	s := NewInMemoryStore()
	s.Add(Document{ID: "1", Content: "login problems on mobile"})

	results, err := s.Search(context.Background(), "login desktop", 5)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.InDelta(t, 0.5, results[0].Score, 0.01)
}

func TestInMemoryStore_SearchLimit(t *testing.T) {
	s := NewInMemoryStore()
	s.Add(Document{ID: "1", Content: "network outage checklist"})
	s.Add(Document{ID: "2", Content: "network capacity planning"})
	s.Add(Document{ID: "3", Content: "network hardware inventory"})

	results, err := s.Search(context.Background(), "network", 2)
	require.NoError(t, err)
	assert.Len(t, results, 2)
}

func TestInMemoryStore_SearchNoMatch(t *testing.T) {
	s := NewInMemoryStore()
	s.Add(Document{ID: "1", Content: "printer setup"})

	results, err := s.Search(context.Background(), "kubernetes", 5)
	require.NoError(t, err)
	assert.Empty(t, results)
}
