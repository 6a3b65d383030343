package ws

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/standbybot/standby/core"
)

// echoHandler replies immediately; enough to exercise the frame round trip.
type echoHandler struct {
	lastMsg core.Message
	gotMsg  chan struct{}
}

func newEchoHandler() *echoHandler {
	return &echoHandler{gotMsg: make(chan struct{}, 8)}
}

func (h *echoHandler) HandleMessage(ctx context.Context, msg core.Message, respond core.Responder) error {
	h.lastMsg = msg
	h.gotMsg <- struct{}{}
	return respond(ctx, "echo: "+msg.Text)
}

func dial(t *testing.T, srvURL, userID string) *websocket.Conn {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(srvURL, "http") + "/ws/" + userID
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestServer_MessageRoundTrip(t *testing.T) {
	handler := newEchoHandler()
	transcript := NewTranscript()
	server := NewServer(handler, transcript)

	ts := httptest.NewServer(server.Router())
	defer ts.Close()

	conn := dial(t, ts.URL, "u1")
	require.NoError(t, conn.WriteJSON(inboundFrame{Type: "message", Text: "hello"}))

	var frame outgoingFrame
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	require.NoError(t, conn.ReadJSON(&frame))

	assert.Equal(t, "message", frame.Type)
	assert.Equal(t, "echo: hello", frame.Text)
	assert.NotEmpty(t, frame.ID)

	<-handler.gotMsg
	assert.Equal(t, "u1", handler.lastMsg.UserID)
	assert.Equal(t, "u1", handler.lastMsg.ChatID)
	assert.False(t, handler.lastMsg.FromOperator)

	// Both sides of the exchange land in the transcript. The assistant turn is
	// appended by the writer goroutine, so allow it a moment.
	require.Eventually(t, func() bool {
		return len(transcript.RecentTurns("u1", 10, time.Time{})) == 2
	}, 2*time.Second, 10*time.Millisecond)
	turns := transcript.RecentTurns("u1", 10, time.Time{})
	assert.Equal(t, "user", turns[0].Role)
	assert.Equal(t, "assistant", turns[1].Role)
}

func TestServer_OperatorConnectionFlagged(t *testing.T) {
	handler := newEchoHandler()
	server := NewServer(handler, NewTranscript(), func(o *Options) {
		o.OperatorID = "op"
	})

	ts := httptest.NewServer(server.Router())
	defer ts.Close()

	conn := dial(t, ts.URL, "op")
	require.NoError(t, conn.WriteJSON(inboundFrame{Text: "taking over"}))

	select {
	case <-handler.gotMsg:
	case <-time.After(2 * time.Second):
		t.Fatal("handler never saw the operator message")
	}
	assert.True(t, handler.lastMsg.FromOperator)
}

func TestServer_Healthz(t *testing.T) {
	server := NewServer(newEchoHandler(), NewTranscript())
	ts := httptest.NewServer(server.Router())
	defer ts.Close()

	resp, err := ts.Client().Get(ts.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, 200, resp.StatusCode)
}
