package ws

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTranscript_RecentTurnsOrderAndLimit(t *testing.T) {
	tr := NewTranscript()
	tr.Append("c1", "user", "first")
	tr.Append("c1", "assistant", "second")
	tr.Append("c1", "user", "third")

	turns := tr.RecentTurns("c1", 2, time.Time{})
	require.Len(t, turns, 2)
	assert.Equal(t, "second", turns[0].Text)
	assert.Equal(t, "third", turns[1].Text)
}

func TestTranscript_RecentTurnsWindow(t *testing.T) {
	tr := NewTranscript()
	tr.Append("c1", "user", "old")
	time.Sleep(5 * time.Millisecond)
	cutoff := time.Now()
	tr.Append("c1", "user", "new")

	turns := tr.RecentTurns("c1", 10, cutoff)
	require.Len(t, turns, 1)
	assert.Equal(t, "new", turns[0].Text)
}

func TestTranscript_UnknownChatIsEmpty(t *testing.T) {
	tr := NewTranscript()
	assert.Empty(t, tr.RecentTurns("nobody", 10, time.Time{}))
}

func TestTranscript_CapBoundsBuffer(t *testing.T) {
	tr := NewTranscript()
	for i := 0; i < transcriptCap+25; i++ {
		tr.Append("c1", "user", "msg")
	}
	turns := tr.RecentTurns("c1", transcriptCap+25, time.Time{})
	assert.Len(t, turns, transcriptCap)
}
