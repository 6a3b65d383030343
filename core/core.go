package core

import (
	"context"
	"time"
)

// Message is an inbound chat event normalized by a transport. The core never
// assumes anything about the underlying delivery mechanism beyond the fields
// carried here.
type Message struct {
	// UserID identifies the sender. Opaque to the core.
	UserID string `json:"user_id"`
	// ChatID identifies the conversation the message arrived in. For direct
	// chats this usually equals UserID.
	ChatID string `json:"chat_id"`
	// Text is the raw message body.
	Text string `json:"text"`
	// FromOperator marks a manual reply typed by the human operator the
	// assistant stands in for. It triggers the administrative override.
	FromOperator bool `json:"from_operator,omitempty"`
}

// Responder delivers outbound text to a specific user. It is captured at
// session creation and treated as an opaque capability; delivery is best
// effort and asynchronous.
type Responder func(ctx context.Context, text string) error

// Generator produces and delivers an assistant reply for an inbound message.
// Implementations perform the full retrieval + model round trip and send the
// result through the supplied responder.
type Generator interface {
	Respond(ctx context.Context, msg Message, respond Responder) error
}

// Retriever performs semantic search over stored reference documents.
type Retriever interface {
	Search(ctx context.Context, query string, limit int) ([]SearchResult, error)
}

// SearchResult is a retrieved document with a relevance score and arbitrary
// metadata.
type SearchResult struct {
	ID       string
	Content  string
	Score    float64
	Metadata map[string]any
}

// Turn is a single prior exchange in a conversation transcript.
type Turn struct {
	Role string // "user" or "assistant"
	Text string
	At   time.Time
}

// HistoryProvider exposes the recent conversation window for a chat, newest
// turn last. Turns older than since are excluded; at most limit turns are
// returned.
type HistoryProvider interface {
	RecentTurns(chatID string, limit int, since time.Time) []Turn
}

// Handler consumes normalized inbound messages. The flow engine implements
// this; transports call it for every event they surface.
type Handler interface {
	HandleMessage(ctx context.Context, msg Message, respond Responder) error
}
