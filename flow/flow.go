// Package flow implements the opt-in conversation state machine: for each
// (current state, event) pair it applies the matching transition and its side
// effects (send a message, arm or re-arm a timer, start response generation,
// terminate the session). Timers re-enter the same rule set as synthetic
// events when they fire.
package flow

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/standbybot/standby/core"
	"github.com/standbybot/standby/logging"
	"github.com/standbybot/standby/session"
)

// Config holds the tunable timings and wording of the flow.
type Config struct {
	// InitialPromptDelay is how long a new user's first message goes
	// unanswered before the assistant offers itself.
	InitialPromptDelay time.Duration
	// InactivityTimeout is how long a talking user may stay idle before the
	// still-around check.
	InactivityTimeout time.Duration
	// AutoEndTimeout is how long the still-around check may go unanswered
	// before the session is ended.
	AutoEndTimeout time.Duration
	// SilentPeriod is how long the assistant stays quiet after the operator
	// takes over or the user declines.
	SilentPeriod time.Duration
	// OwnerName is how the person the assistant stands in for is referred to
	// in prompts.
	OwnerName string
}

// DefaultConfig returns the production timings: 5 minutes before the initial
// prompt, 10 minute inactivity windows and a 3 hour silent period.
func DefaultConfig() Config {
	return Config{
		InitialPromptDelay: 300 * time.Second,
		InactivityTimeout:  600 * time.Second,
		AutoEndTimeout:     600 * time.Second,
		SilentPeriod:       10800 * time.Second,
		OwnerName:          "the operator",
	}
}

// Options configure a Flow beyond its timing config.
type Options struct {
	Config Config
	// AllowedUsers bypass the state machine entirely and are always routed
	// straight to response generation.
	AllowedUsers []string
	// IgnoredUsers and IgnoredChats are dropped before any processing.
	IgnoredUsers []string
	IgnoredChats []string
	Logger       logging.Logger
}

// Flow is the transition rule engine. Safe for concurrent use; all shared
// state lives in the session store.
type Flow struct {
	cfg     Config
	store   *session.Store
	gen     core.Generator
	allowed map[string]struct{}
	ignored map[string]struct{}
	logger  logging.Logger
}

var _ core.Handler = (*Flow)(nil)

// New constructs a Flow over the given store and generator.
func New(store *session.Store, gen core.Generator, optFns ...func(o *Options)) *Flow {
	opts := Options{
		Config: DefaultConfig(),
		Logger: logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	allowed := make(map[string]struct{}, len(opts.AllowedUsers))
	for _, id := range opts.AllowedUsers {
		allowed[id] = struct{}{}
	}
	ignored := make(map[string]struct{}, len(opts.IgnoredUsers)+len(opts.IgnoredChats))
	for _, id := range opts.IgnoredUsers {
		ignored[id] = struct{}{}
	}
	for _, id := range opts.IgnoredChats {
		ignored[id] = struct{}{}
	}

	return &Flow{
		cfg:     opts.Config,
		store:   store,
		gen:     gen,
		allowed: allowed,
		ignored: ignored,
		logger:  opts.Logger,
	}
}

// Store exposes the underlying session store, mainly for tests and
// diagnostics endpoints.
func (f *Flow) Store() *session.Store { return f.store }

// HandleMessage routes one inbound event through the transition rules.
func (f *Flow) HandleMessage(ctx context.Context, msg core.Message, respond core.Responder) error {
	if f.isIgnored(msg) {
		f.logger.Debug("dropping message from ignored source", "user_id", msg.UserID, "chat_id", msg.ChatID)
		return nil
	}

	if msg.FromOperator {
		f.logger.Info("manual operator reply detected, silencing all sessions")
		f.SilenceAll()
		return nil
	}

	if _, ok := f.allowed[msg.UserID]; ok {
		// Allow-listed identities skip session bookkeeping entirely.
		return f.gen.Respond(ctx, msg, respond)
	}

	text := strings.ToLower(strings.TrimSpace(msg.Text))

	state, ok := f.store.State(msg.UserID)
	if !ok {
		f.store.Start(msg.UserID, core.StateWaiting, respond)
		f.scheduleInitialPrompt(msg.UserID)
		return nil
	}

	switch state {
	case core.StateSilent:
		f.logger.Debug("ignoring message during silent period", "user_id", msg.UserID)
		return nil
	case core.StatePrompted:
		return f.handlePrompted(ctx, msg, text, respond)
	case core.StateTalking:
		return f.handleTalking(ctx, msg, text, respond)
	case core.StateWaiting:
		// The user keeps typing while the initial-prompt timer runs; nothing
		// to do until it fires.
		return nil
	}
	return nil
}

// handlePrompted resolves a yes/no question previously put to the user.
func (f *Flow) handlePrompted(ctx context.Context, msg core.Message, text string, respond core.Responder) error {
	switch text {
	case "yes":
		f.store.UpdateState(msg.UserID, core.StateTalking)
		if err := respond(ctx, msgEndHint); err != nil {
			return fmt.Errorf("send end hint: %w", err)
		}
		if err := respond(ctx, msgHowCanIHelp); err != nil {
			return fmt.Errorf("send help offer: %w", err)
		}
		f.scheduleInactivityCheck(msg.UserID)
		return nil
	case "no":
		if err := respond(ctx, f.declineText()); err != nil {
			return fmt.Errorf("send decline ack: %w", err)
		}
		f.store.Cancel(msg.UserID)
		f.store.Start(msg.UserID, core.StateSilent, respond)
		f.scheduleSilentExpiry(msg.UserID)
		return nil
	default:
		return respond(ctx, msgReprompt)
	}
}

// handleTalking answers a message from an opted-in user, or ends the chat on
// request.
func (f *Flow) handleTalking(ctx context.Context, msg core.Message, text string, respond core.Responder) error {
	if text == "end discussion" {
		if err := respond(ctx, msgEndAck); err != nil {
			f.logger.Error("send end ack failed", "user_id", msg.UserID, "error", err)
		}
		f.store.Cancel(msg.UserID)
		return nil
	}

	f.store.SetResponding(msg.UserID, true)
	err := f.store.RunCancellable(msg.UserID, func(taskCtx context.Context) error {
		return f.gen.Respond(taskCtx, msg, f.guarded(msg.UserID, respond))
	})
	f.store.SetResponding(msg.UserID, false)
	if err != nil {
		f.logger.Error("response generation failed", "user_id", msg.UserID, "error", err)
	}

	// The session may have been cancelled while the model call was in flight.
	if f.store.Exists(msg.UserID) {
		f.scheduleInactivityCheck(msg.UserID)
	}
	return nil
}

// SilenceAll is the administrative override: every currently active session
// is cancelled (aborting its pending timer and in-flight task) and restarted
// in the silent state with a fresh silent-expiry timer. The set of affected
// users is a single consistent snapshot; sessions created afterwards are
// untouched. Each session keeps its own responder.
func (f *Flow) SilenceAll() {
	for _, userID := range f.store.ActiveUsers() {
		respond := f.store.Responder(userID)
		if respond == nil {
			continue
		}
		f.logger.Info("silencing session", "user_id", userID)
		f.store.Cancel(userID)
		f.store.Start(userID, core.StateSilent, respond)
		f.scheduleSilentExpiry(userID)
	}
}

// guarded wraps a responder so that delivery is suppressed when the task was
// cancelled or the session disappeared while a reply was being generated.
func (f *Flow) guarded(userID string, respond core.Responder) core.Responder {
	return func(ctx context.Context, text string) error {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if !f.store.Exists(userID) {
			f.logger.Info("session gone before reply delivery, suppressing", "user_id", userID)
			return nil
		}
		return respond(ctx, text)
	}
}

func (f *Flow) isIgnored(msg core.Message) bool {
	if _, ok := f.ignored[msg.UserID]; ok {
		return true
	}
	_, ok := f.ignored[msg.ChatID]
	return ok
}
