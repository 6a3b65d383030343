// Package ws exposes the assistant over websockets: each connection is one
// direct chat, inbound frames become normalized core.Messages and the
// responder capability writes frames back to the same connection. It also
// keeps the per-chat transcript used as conversation history.
package ws

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"

	"github.com/standbybot/standby/core"
	"github.com/standbybot/standby/internal/util"
	"github.com/standbybot/standby/logging"
)

// Options configure the websocket server.
type Options struct {
	// OperatorID marks a connection as the human operator; their messages
	// trigger the administrative override instead of the normal flow.
	OperatorID string
	Logger     logging.Logger
}

// Server bridges websocket connections to a core.Handler.
type Server struct {
	handler    core.Handler
	transcript *Transcript
	operatorID string
	upgrader   websocket.Upgrader
	logger     logging.Logger
}

// NewServer constructs a Server delivering inbound messages to handler.
func NewServer(handler core.Handler, transcript *Transcript, optFns ...func(o *Options)) *Server {
	opts := Options{Logger: logging.NoOpLogger{}}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Server{
		handler:    handler,
		transcript: transcript,
		operatorID: opts.OperatorID,
		upgrader: websocket.Upgrader{
			CheckOrigin:     func(r *http.Request) bool { return true },
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		logger: opts.Logger,
	}
}

// Router wires HTTP routes to the server.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Get("/ws/{userID}", s.handleWebSocket)
	return r
}

// inboundFrame is one message received from a client.
type inboundFrame struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// outgoingFrame is one message pushed to a client.
type outgoingFrame struct {
	Type      string `json:"type"`
	ID        string `json:"id"`
	Text      string `json:"text"`
	Timestamp int64  `json:"timestamp"`
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	if userID == "" {
		http.Error(w, "missing user id", http.StatusBadRequest)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("websocket upgrade failed", "user_id", userID, "error", err)
		return
	}
	defer conn.Close()

	s.logger.Info("chat connected", "user_id", userID)

	// gorilla/websocket allows a single concurrent writer; timer and task
	// goroutines all deliver through this responder.
	var writeMu sync.Mutex
	respond := func(ctx context.Context, text string) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		writeMu.Lock()
		defer writeMu.Unlock()
		frame := outgoingFrame{
			Type:      "message",
			ID:        util.NewID(),
			Text:      text,
			Timestamp: time.Now().Unix(),
		}
		if err := conn.WriteJSON(frame); err != nil {
			return err
		}
		s.transcript.Append(userID, "assistant", text)
		return nil
	}

	ctx := r.Context()
	for {
		var frame inboundFrame
		if err := conn.ReadJSON(&frame); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.logger.Warn("websocket read failed", "user_id", userID, "error", err)
			}
			s.logger.Info("chat disconnected", "user_id", userID)
			return
		}
		if frame.Type != "" && frame.Type != "message" {
			continue
		}

		msg := core.Message{
			UserID:       userID,
			ChatID:       userID,
			Text:         frame.Text,
			FromOperator: s.operatorID != "" && userID == s.operatorID,
		}
		s.transcript.Append(userID, "user", frame.Text)

		// Handling can block on a full model round trip; dispatch per message
		// so a later frame (e.g. "end discussion") can interrupt it.
		go func(msg core.Message) {
			if err := s.handler.HandleMessage(ctx, msg, respond); err != nil {
				s.logger.Error("message handling failed", "user_id", msg.UserID, "error", err)
			}
		}(msg)
	}
}
