package standby

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/standbybot/standby/core"
	"github.com/standbybot/standby/flow"
	"github.com/standbybot/standby/model"
)

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

func (r *recorder) contains(substr string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range r.msgs {
		if strings.Contains(m, substr) {
			return true
		}
	}
	return false
}

// TestAssistant_OptInConversation walks the full happy path through the
// façade: first contact, opt-in offer, acceptance, a model-backed answer and
// an explicit end.
func TestAssistant_OptInConversation(t *testing.T) {
	mock := model.NewMockModel("test")
	mock.AddResponse("the map is frozen", "try reloading the tracking layer")

	assistant := New(mock, func(o *Options) {
		o.FlowConfig = flow.Config{
			InitialPromptDelay: 20 * time.Millisecond,
			InactivityTimeout:  500 * time.Millisecond,
			AutoEndTimeout:     500 * time.Millisecond,
			SilentPeriod:       time.Hour,
			OwnerName:          "Sam",
		}
	})

	ctx := context.Background()
	rec := &recorder{}
	send := func(text string) {
		require.NoError(t, assistant.HandleMessage(ctx, core.Message{UserID: "u1", ChatID: "u1", Text: text}, rec.responder()))
	}

	send("hello?")
	require.True(t, assistant.Store().InState("u1", core.StateWaiting))

	time.Sleep(60 * time.Millisecond)
	require.True(t, rec.contains("Sam is currently busy"))
	require.True(t, assistant.Store().InState("u1", core.StatePrompted))

	send("yes")
	require.True(t, assistant.Store().InState("u1", core.StateTalking))

	send("the map is frozen")
	assert.True(t, rec.contains("reloading the tracking layer"))

	send("end discussion")
	assert.True(t, rec.contains("ending AI conversation"))
	assert.False(t, assistant.Store().Exists("u1"))
}

func TestAssistant_SilenceAll(t *testing.T) {
	assistant := New(model.NewMockModel("test"), func(o *Options) {
		o.FlowConfig = flow.Config{
			InitialPromptDelay: time.Hour,
			InactivityTimeout:  time.Hour,
			AutoEndTimeout:     time.Hour,
			SilentPeriod:       time.Hour,
			OwnerName:          "Sam",
		}
	})

	rec := &recorder{}
	require.NoError(t, assistant.HandleMessage(context.Background(), core.Message{UserID: "u1", ChatID: "u1", Text: "hi"}, rec.responder()))

	assistant.SilenceAll()
	assert.True(t, assistant.Store().InState("u1", core.StateSilent))
}
