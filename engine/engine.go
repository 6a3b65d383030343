// Package engine implements the reply generation operation: embed the user
// message, retrieve semantically relevant context, collect the recent
// conversation window, call the language model and deliver the reply. The
// whole operation runs under the caller's context so it can be cancelled
// mid-flight by the session store's task runner.
package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/standbybot/standby/core"
	"github.com/standbybot/standby/logging"
	"github.com/standbybot/standby/model"
)

// DefaultSystemPrompt instructs the model when no custom prompt is configured.
const DefaultSystemPrompt = "You are a helpful support assistant answering on behalf of a busy operator. " +
	"Be concise, direct, and clear. Only provide factual and relevant information based on the context. " +
	"Use a tone that is professional, calm, and tactful. If you have insufficient data just say you do not know."

// DefaultFallbackMessage is sent when the model call fails.
const DefaultFallbackMessage = "[AI]: Sorry, backend system down!"

// Options configure an Engine.
type Options struct {
	// Retriever supplies semantic context; nil disables retrieval.
	Retriever core.Retriever
	// History supplies the recent conversation window; nil disables history.
	History core.HistoryProvider
	// SystemPrompt is prepended to every request.
	SystemPrompt string
	// SimilarityThreshold filters retrieved hits; results scoring below it
	// are discarded.
	SimilarityThreshold float64
	// MaxContextHits caps the number of retrieved documents per request.
	MaxContextHits int
	// HistoryLimit caps the number of prior turns included.
	HistoryLimit int
	// HistoryWindow excludes turns older than this.
	HistoryWindow time.Duration
	// FallbackMessage is delivered when the model call fails.
	FallbackMessage string
	Logger          logging.Logger
}

// Engine is the concrete core.Generator.
type Engine struct {
	model     model.Model
	retriever core.Retriever
	history   core.HistoryProvider
	opts      Options
	logger    logging.Logger
}

var _ core.Generator = (*Engine)(nil)

// New constructs an Engine around a model with optional overrides.
func New(m model.Model, optFns ...func(o *Options)) *Engine {
	opts := Options{
		SystemPrompt:        DefaultSystemPrompt,
		SimilarityThreshold: 0.352,
		MaxContextHits:      5,
		HistoryLimit:        20,
		HistoryWindow:       72 * time.Hour,
		FallbackMessage:     DefaultFallbackMessage,
		Logger:              logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Engine{
		model:     m,
		retriever: opts.Retriever,
		history:   opts.History,
		opts:      opts,
		logger:    opts.Logger,
	}
}

// Respond generates a reply to msg and delivers it through respond. On model
// failure a single fallback message is sent instead and no error is returned;
// a cancelled context aborts the operation with no delivery at all.
func (e *Engine) Respond(ctx context.Context, msg core.Message, respond core.Responder) error {
	req := model.Request{
		System: e.buildSystem(ctx, msg.Text),
		Turns:  e.recentTurns(msg.ChatID),
		Input:  msg.Text,
	}

	start := time.Now()
	resp, err := e.model.Generate(ctx, req)
	if err != nil {
		if errors.Is(err, context.Canceled) || ctx.Err() != nil {
			return ctx.Err()
		}
		e.logger.Error("model call failed", "user_id", msg.UserID, "duration", time.Since(start), "error", err)
		if ferr := respond(ctx, e.opts.FallbackMessage); ferr != nil {
			return fmt.Errorf("deliver fallback: %w", ferr)
		}
		return nil
	}
	e.logger.Info("model call completed",
		"user_id", msg.UserID,
		"model", e.model.Info().Name,
		"duration", time.Since(start),
		"total_tokens", resp.Usage.TotalTokens,
	)

	reply := strings.TrimSpace(resp.Text)
	if reply == "" {
		return nil
	}
	return respond(ctx, "[AI]: "+reply)
}

// buildSystem assembles the system prompt plus the retrieved context block.
func (e *Engine) buildSystem(ctx context.Context, query string) string {
	var sb strings.Builder
	sb.WriteString(e.opts.SystemPrompt)
	sb.WriteString("\n\nContext from the assistant database:\n")

	hits := e.retrieve(ctx, query)
	if len(hits) == 0 {
		sb.WriteString("No relevant context found in the database.")
		return sb.String()
	}
	for i, hit := range hits {
		if i > 0 {
			sb.WriteString("\n\n")
		}
		sb.WriteString(hit.Content)
	}
	return sb.String()
}

// retrieve performs the semantic search and applies the similarity threshold.
// Retrieval failures degrade to an empty context block rather than aborting
// the reply.
func (e *Engine) retrieve(ctx context.Context, query string) []core.SearchResult {
	if e.retriever == nil {
		return nil
	}
	hits, err := e.retriever.Search(ctx, query, e.opts.MaxContextHits)
	if err != nil {
		e.logger.Warn("context retrieval failed", "error", err)
		return nil
	}
	filtered := hits[:0]
	for _, hit := range hits {
		if hit.Score >= e.opts.SimilarityThreshold && hit.Content != "" {
			filtered = append(filtered, hit)
		}
	}
	return filtered
}

// recentTurns collects the prior conversation window. The transcript may
// already contain the message being answered; it is dropped so the model does
// not see it twice.
func (e *Engine) recentTurns(chatID string) []core.Turn {
	if e.history == nil {
		return nil
	}
	cutoff := time.Now().Add(-e.opts.HistoryWindow)
	turns := e.history.RecentTurns(chatID, e.opts.HistoryLimit, cutoff)
	if n := len(turns); n > 0 && turns[n-1].Role == "user" {
		turns = turns[:n-1]
	}
	return turns
}
