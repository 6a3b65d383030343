package flow

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/standbybot/standby/core"
	"github.com/standbybot/standby/session"
)

// recorder is a concurrency-safe responder double.
type recorder struct {
	mu   sync.Mutex
	msgs []string
}

func (r *recorder) responder() core.Responder {
	return func(_ context.Context, text string) error {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.msgs = append(r.msgs, text)
		return nil
	}
}

func (r *recorder) messages() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.msgs))
	copy(out, r.msgs)
	return out
}

func (r *recorder) contains(substr string) bool {
	for _, m := range r.messages() {
		if strings.Contains(m, substr) {
			return true
		}
	}
	return false
}

// fakeGen is a generator double with a configurable delay and failure mode.
type fakeGen struct {
	reply string
	delay time.Duration
	err   error
	calls atomic.Int32
}

func (g *fakeGen) Respond(ctx context.Context, msg core.Message, respond core.Responder) error {
	g.calls.Add(1)
	if g.delay > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(g.delay):
		}
	}
	if g.err != nil {
		return g.err
	}
	return respond(ctx, "[AI]: "+g.reply)
}

func testConfig() Config {
	return Config{
		InitialPromptDelay: 30 * time.Millisecond,
		InactivityTimeout:  40 * time.Millisecond,
		AutoEndTimeout:     40 * time.Millisecond,
		SilentPeriod:       50 * time.Millisecond,
		OwnerName:          "Alex",
	}
}

func newTestFlow(cfg Config, gen *fakeGen, optFns ...func(o *Options)) (*Flow, *session.Store) {
	store := session.NewStore(nil)
	f := New(store, gen, append([]func(o *Options){func(o *Options) {
		o.Config = cfg
	}}, optFns...)...)
	return f, store
}

func TestFlow_FirstMessageCreatesWaitingSessionAndPrompts(t *testing.T) {
	gen := &fakeGen{reply: "hi"}
	f, store := newTestFlow(testConfig(), gen)
	rec := &recorder{}

	err := f.HandleMessage(context.Background(), core.Message{UserID: "u1", ChatID: "u1", Text: "hello"}, rec.responder())
	require.NoError(t, err)
	assert.True(t, store.InState("u1", core.StateWaiting))
	assert.Empty(t, rec.messages(), "no reply before the initial-prompt timer fires")

	time.Sleep(80 * time.Millisecond)
	require.True(t, rec.contains("Alex is currently busy"), "initial prompt expected, got %v", rec.messages())
	assert.True(t, store.InState("u1", core.StatePrompted))
}

func TestFlow_InitialPromptGuardFailsAfterStateChange(t *testing.T) {
	gen := &fakeGen{}
	f, store := newTestFlow(testConfig(), gen)
	rec := &recorder{}

	require.NoError(t, f.HandleMessage(context.Background(), core.Message{UserID: "u1", ChatID: "u1", Text: "hello"}, rec.responder()))
	store.UpdateState("u1", core.StateTalking)

	time.Sleep(80 * time.Millisecond)
	assert.Empty(t, rec.messages(), "fired timer with failing guard must produce no side effects")
	assert.True(t, store.InState("u1", core.StateTalking))
}

func TestFlow_PromptedYesStartsTalking(t *testing.T) {
	gen := &fakeGen{reply: "sure"}
	f, store := newTestFlow(testConfig(), gen)
	rec := &recorder{}

	store.Start("u1", core.StatePrompted, rec.responder())
	require.NoError(t, f.HandleMessage(context.Background(), core.Message{UserID: "u1", ChatID: "u1", Text: "Yes"}, rec.responder()))

	msgs := rec.messages()
	require.Len(t, msgs, 2)
	assert.Contains(t, msgs[0], "End discussion")
	assert.Contains(t, msgs[1], "How can I help?")
	assert.True(t, store.InState("u1", core.StateTalking))
}

func TestFlow_PromptedNoEntersSilentPeriodThenReverts(t *testing.T) {
	gen := &fakeGen{}
	f, store := newTestFlow(testConfig(), gen)
	rec := &recorder{}

	store.Start("u1", core.StatePrompted, rec.responder())
	require.NoError(t, f.HandleMessage(context.Background(), core.Message{UserID: "u1", ChatID: "u1", Text: "no"}, rec.responder()))

	require.True(t, rec.contains("No problem!"))
	assert.True(t, store.InState("u1", core.StateSilent))

	// Messages during the silent period are ignored entirely.
	require.NoError(t, f.HandleMessage(context.Background(), core.Message{UserID: "u1", ChatID: "u1", Text: "hello?"}, rec.responder()))
	assert.Len(t, rec.messages(), 1)
	assert.Equal(t, int32(0), gen.calls.Load())

	// After the silent period the session reverts to waiting, carrying the
	// responder forward, and the initial prompt is re-armed.
	time.Sleep(70 * time.Millisecond)
	assert.True(t, store.InState("u1", core.StateWaiting))
	time.Sleep(60 * time.Millisecond)
	assert.True(t, rec.contains("currently busy"), "re-armed initial prompt must be deliverable: %v", rec.messages())
}

func TestFlow_PromptedOtherReplyReprompts(t *testing.T) {
	gen := &fakeGen{}
	f, store := newTestFlow(testConfig(), gen)
	rec := &recorder{}

	store.Start("u1", core.StatePrompted, rec.responder())
	require.NoError(t, f.HandleMessage(context.Background(), core.Message{UserID: "u1", ChatID: "u1", Text: "maybe"}, rec.responder()))

	msgs := rec.messages()
	require.Len(t, msgs, 1)
	assert.Contains(t, msgs[0], "'Yes' or 'No'")
	assert.True(t, store.InState("u1", core.StatePrompted))
}

func TestFlow_TalkingEndDiscussion(t *testing.T) {
	gen := &fakeGen{}
	f, store := newTestFlow(testConfig(), gen)
	rec := &recorder{}

	store.Start("u1", core.StateTalking, rec.responder())
	require.NoError(t, f.HandleMessage(context.Background(), core.Message{UserID: "u1", ChatID: "u1", Text: "End Discussion"}, rec.responder()))

	assert.True(t, rec.contains("ending AI conversation"))
	assert.False(t, store.Exists("u1"))
	assert.Equal(t, int32(0), gen.calls.Load())
}

func TestFlow_TalkingGeneratesReplyAndIdlesOut(t *testing.T) {
	gen := &fakeGen{reply: "try turning it off and on"}
	f, store := newTestFlow(testConfig(), gen)
	rec := &recorder{}

	store.Start("u1", core.StateTalking, rec.responder())
	require.NoError(t, f.HandleMessage(context.Background(), core.Message{UserID: "u1", ChatID: "u1", Text: "the dashboard is down"}, rec.responder()))

	assert.Equal(t, int32(1), gen.calls.Load())
	require.True(t, rec.contains("turning it off and on"))
	assert.True(t, store.InState("u1", core.StateTalking))
	assert.False(t, store.Responding("u1"))

	// Idle: the inactivity check fires, asks whether the user is still
	// around and arms the auto-end timer.
	time.Sleep(60 * time.Millisecond)
	require.True(t, rec.contains("Still around?"), "messages: %v", rec.messages())
	assert.True(t, store.InState("u1", core.StatePrompted))

	// Still no answer: the auto-end timer removes the session.
	time.Sleep(60 * time.Millisecond)
	assert.True(t, rec.contains("due to inactivity"))
	assert.False(t, store.Exists("u1"))
}

func TestFlow_TalkingGeneratorFailureKeepsSession(t *testing.T) {
	gen := &fakeGen{err: errors.New("model exploded")}
	f, store := newTestFlow(testConfig(), gen)
	rec := &recorder{}

	store.Start("u1", core.StateTalking, rec.responder())
	require.NoError(t, f.HandleMessage(context.Background(), core.Message{UserID: "u1", ChatID: "u1", Text: "help"}, rec.responder()))

	assert.True(t, store.InState("u1", core.StateTalking), "external failure must not force a transition")
}

func TestFlow_CancelDuringGenerationSuppressesReply(t *testing.T) {
	gen := &fakeGen{reply: "late answer", delay: 100 * time.Millisecond}
	f, store := newTestFlow(testConfig(), gen)
	rec := &recorder{}

	store.Start("u1", core.StateTalking, rec.responder())

	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = f.HandleMessage(context.Background(), core.Message{UserID: "u1", ChatID: "u1", Text: "slow question"}, rec.responder())
	}()

	time.Sleep(20 * time.Millisecond)
	store.Cancel("u1")
	<-done

	assert.False(t, rec.contains("late answer"), "cancelled task must not deliver a reply")
	assert.False(t, store.Exists("u1"))
}

func TestFlow_WaitingStateIgnoresFurtherMessages(t *testing.T) {
	gen := &fakeGen{}
	f, store := newTestFlow(testConfig(), gen)
	rec := &recorder{}

	require.NoError(t, f.HandleMessage(context.Background(), core.Message{UserID: "u1", ChatID: "u1", Text: "hello"}, rec.responder()))
	require.NoError(t, f.HandleMessage(context.Background(), core.Message{UserID: "u1", ChatID: "u1", Text: "anyone there?"}, rec.responder()))

	assert.True(t, store.InState("u1", core.StateWaiting))
	assert.Empty(t, rec.messages())
	assert.Equal(t, int32(0), gen.calls.Load())
}

func TestFlow_OperatorOverrideSilencesAllActiveSessions(t *testing.T) {
	gen := &fakeGen{}
	f, store := newTestFlow(testConfig(), gen)

	recs := map[string]*recorder{"u1": {}, "u2": {}, "u3": {}}
	store.Start("u1", core.StateWaiting, recs["u1"].responder())
	store.Start("u2", core.StateTalking, recs["u2"].responder())
	store.Start("u3", core.StatePrompted, recs["u3"].responder())

	op := &recorder{}
	require.NoError(t, f.HandleMessage(context.Background(), core.Message{UserID: "op", ChatID: "u2", Text: "I'll take it from here", FromOperator: true}, op.responder()))

	for id := range recs {
		assert.True(t, store.InState(id, core.StateSilent), "user %s must be silenced", id)
	}
	// The operator's own message never creates a session.
	assert.False(t, store.Exists("op"))

	// After the silent period every user reverts to waiting with the
	// initial-prompt timer re-armed.
	time.Sleep(70 * time.Millisecond)
	for id := range recs {
		assert.True(t, store.InState(id, core.StateWaiting), "user %s must revert to waiting", id)
	}
	time.Sleep(60 * time.Millisecond)
	for id, rec := range recs {
		assert.True(t, rec.contains("currently busy"), "user %s must get the re-armed prompt", id)
	}
}

func TestFlow_AllowedUserBypassesStateMachine(t *testing.T) {
	gen := &fakeGen{reply: "right away"}
	f, store := newTestFlow(testConfig(), gen, func(o *Options) {
		o.AllowedUsers = []string{"boss"}
	})
	rec := &recorder{}

	require.NoError(t, f.HandleMessage(context.Background(), core.Message{UserID: "boss", ChatID: "boss", Text: "status?"}, rec.responder()))

	assert.Equal(t, int32(1), gen.calls.Load())
	assert.True(t, rec.contains("right away"))
	assert.False(t, store.Exists("boss"), "allow-listed identities get no session bookkeeping")
}

func TestFlow_IgnoredSourcesAreDropped(t *testing.T) {
	gen := &fakeGen{}
	f, store := newTestFlow(testConfig(), gen, func(o *Options) {
		o.IgnoredUsers = []string{"spammer"}
		o.IgnoredChats = []string{"group-1"}
	})
	rec := &recorder{}

	require.NoError(t, f.HandleMessage(context.Background(), core.Message{UserID: "spammer", ChatID: "spammer", Text: "hi"}, rec.responder()))
	require.NoError(t, f.HandleMessage(context.Background(), core.Message{UserID: "u1", ChatID: "group-1", Text: "hi"}, rec.responder()))

	assert.Empty(t, store.ActiveUsers())
	assert.Empty(t, rec.messages())
	assert.Equal(t, int32(0), gen.calls.Load())
}
