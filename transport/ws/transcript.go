package ws

import (
	"sync"
	"time"

	"github.com/standbybot/standby/core"
)

// transcriptCap bounds the per-chat turn buffer; older turns are discarded.
const transcriptCap = 200

// Transcript keeps the recent turns of every chat in memory and serves as the
// engine's history provider.
type Transcript struct {
	mu    sync.RWMutex
	turns map[string][]core.Turn
}

var _ core.HistoryProvider = (*Transcript)(nil)

// NewTranscript creates an empty transcript store.
func NewTranscript() *Transcript {
	return &Transcript{turns: make(map[string][]core.Turn)}
}

// Append records one turn for a chat.
func (t *Transcript) Append(chatID, role, text string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	turns := append(t.turns[chatID], core.Turn{Role: role, Text: text, At: time.Now()})
	if len(turns) > transcriptCap {
		turns = turns[len(turns)-transcriptCap:]
	}
	t.turns[chatID] = turns
}

// RecentTurns implements core.HistoryProvider: the newest turns of the chat,
// oldest first, excluding turns from before since and capped at limit.
func (t *Transcript) RecentTurns(chatID string, limit int, since time.Time) []core.Turn {
	t.mu.RLock()
	defer t.mu.RUnlock()

	all := t.turns[chatID]
	fresh := make([]core.Turn, 0, len(all))
	for _, turn := range all {
		if turn.At.Before(since) {
			continue
		}
		fresh = append(fresh, turn)
	}
	if len(fresh) > limit {
		fresh = fresh[len(fresh)-limit:]
	}
	return fresh
}
