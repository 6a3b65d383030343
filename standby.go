// Package standby provides a high-level façade over the session store, the
// transition-rule flow and the reply engine, enabling construction of an
// away-assistant in a few lines. Most applications interact with this package
// by:
//  1. Creating an Assistant via New() with a language model (optionally a
//     retriever and a history provider)
//  2. Feeding it normalized inbound messages from a transport via
//     HandleMessage
//
// The façade delegates all behavior to the flow engine while keeping setup
// ergonomics concise. Defaults are safe for local development and testing;
// production deployments typically supply a qdrant retriever and a structured
// logger.
package standby

import (
	"context"

	"github.com/standbybot/standby/core"
	"github.com/standbybot/standby/engine"
	"github.com/standbybot/standby/flow"
	"github.com/standbybot/standby/logging"
	"github.com/standbybot/standby/model"
	"github.com/standbybot/standby/session"
)

// Options configure the Assistant.
type Options struct {
	// FlowConfig tunes the conversation timings and wording.
	FlowConfig flow.Config
	// Retriever supplies semantic context for replies (nil disables retrieval).
	Retriever core.Retriever
	// History supplies the recent conversation window (nil disables history).
	History core.HistoryProvider
	// SystemPrompt overrides the engine's default instructions.
	SystemPrompt string
	// SimilarityThreshold filters retrieved context hits.
	SimilarityThreshold float64
	// AllowedUsers bypass the opt-in flow entirely.
	AllowedUsers []string
	// IgnoredUsers and IgnoredChats are dropped before any processing.
	IgnoredUsers []string
	IgnoredChats []string
	// Logger (defaults to NoOp logger if nil).
	Logger logging.Logger
}

// Assistant aggregates the session store, the reply engine and the flow.
type Assistant struct {
	store  *session.Store
	engine *engine.Engine
	flow   *flow.Flow
}

var _ core.Handler = (*Assistant)(nil)

// New creates an Assistant around a language model with optional overrides.
func New(m model.Model, optFns ...func(o *Options)) *Assistant {
	opts := Options{
		FlowConfig:          flow.DefaultConfig(),
		SystemPrompt:        engine.DefaultSystemPrompt,
		SimilarityThreshold: 0.352,
		Logger:              logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	store := session.NewStore(opts.Logger)
	eng := engine.New(m, func(o *engine.Options) {
		o.Retriever = opts.Retriever
		o.History = opts.History
		o.SystemPrompt = opts.SystemPrompt
		o.SimilarityThreshold = opts.SimilarityThreshold
		o.Logger = opts.Logger
	})
	fl := flow.New(store, eng, func(o *flow.Options) {
		o.Config = opts.FlowConfig
		o.AllowedUsers = opts.AllowedUsers
		o.IgnoredUsers = opts.IgnoredUsers
		o.IgnoredChats = opts.IgnoredChats
		o.Logger = opts.Logger
	})

	return &Assistant{store: store, engine: eng, flow: fl}
}

// HandleMessage routes one inbound event through the transition rules.
func (a *Assistant) HandleMessage(ctx context.Context, msg core.Message, respond core.Responder) error {
	return a.flow.HandleMessage(ctx, msg, respond)
}

// SilenceAll applies the administrative override to every active session.
func (a *Assistant) SilenceAll() { a.flow.SilenceAll() }

// Store exposes the underlying session store.
func (a *Assistant) Store() *session.Store { return a.store }
