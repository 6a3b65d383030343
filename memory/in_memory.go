// Package memory provides core.Retriever implementations: a naive in-memory
// store for tests and demos, and (in the qdrant subpackage) a vector database
// backed store for production retrieval.
package memory

import (
	"context"
	"strings"
	"sync"

	"github.com/standbybot/standby/core"
)

// Document is a reference text held by the in-memory store.
type Document struct {
	ID       string
	Content  string
	Metadata map[string]any
}

// InMemoryStore is a process-local retriever.
//
// Concurrency: protected by RWMutex.
// Search: linear scan with case-insensitive word matching; the score is the
// fraction of query words found in the document. Suitable only for tests and
// demos; use the qdrant store for semantic retrieval.
type InMemoryStore struct {
	mu   sync.RWMutex
	docs []Document
}

var _ core.Retriever = (*InMemoryStore)(nil)

// NewInMemoryStore creates an empty in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{}
}

// Add appends a document.
func (m *InMemoryStore) Add(doc Document) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.docs = append(m.docs, doc)
}

// Search implements core.Retriever. Results are returned in insertion order
// up to limit; documents matching no query word are skipped.
func (m *InMemoryStore) Search(_ context.Context, query string, limit int) ([]core.SearchResult, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	words := strings.Fields(strings.ToLower(query))
	results := make([]core.SearchResult, 0, limit)
	for _, doc := range m.docs {
		if len(results) >= limit {
			break
		}
		score := overlap(strings.ToLower(doc.Content), words)
		if score == 0 {
			continue
		}
		results = append(results, core.SearchResult{
			ID:       doc.ID,
			Content:  doc.Content,
			Score:    score,
			Metadata: doc.Metadata,
		})
	}
	return results, nil
}

// overlap scores a document as the fraction of query words it contains.
func overlap(content string, words []string) float64 {
	if len(words) == 0 {
		return 0
	}
	found := 0
	for _, w := range words {
		if strings.Contains(content, w) {
			found++
		}
	}
	return float64(found) / float64(len(words))
}
