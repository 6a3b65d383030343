// Package session owns the per-user session lifecycle: the state table, the
// delayed-transition timers and the cancellable background task tracked on
// each record. It is the single source of truth for conversational state.
//
// Concurrency contract:
//   - All map and record mutation happens inside one coarse mutex.
//   - The mutex is never held across a timer sleep, an external call, or
//     while awaiting a cancelled unit to unwind, so a timer or task callback
//     re-entering the store can never deadlock against its canceller.
//   - At most one pending timer and one in-flight task exist per session;
//     installing a new one always cancels the previous one first.
package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/standbybot/standby/core"
	"github.com/standbybot/standby/logging"
)

// handle tracks one cancellable unit of concurrency (a timer or a task).
// done is closed when the unit's goroutine has fully unwound.
type handle struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// stop requests cancellation and waits for the unit to acknowledge it.
// Callers must not hold the store lock.
func (h *handle) stop() {
	h.cancel()
	<-h.done
}

// abort requests cancellation without waiting. Used when replacing a pending
// timer: the sleeping goroutine holds no shared resources and exits silently.
func (h *handle) abort() {
	h.cancel()
}

// record is the per-user session entry. Fields are read and written only
// while holding the store lock.
type record struct {
	state   core.SessionState
	respond core.Responder
	timer   *handle
	task    *handle
}

// Store maps user identity to session record. The zero value is not usable;
// construct with NewStore.
type Store struct {
	mu         sync.Mutex
	sessions   map[string]*record
	responding map[string]bool
	logger     logging.Logger
}

// NewStore constructs an empty session store. A nil logger disables logging.
func NewStore(logger logging.Logger) *Store {
	if logger == nil {
		logger = logging.NoOpLogger{}
	}
	return &Store{
		sessions:   make(map[string]*record),
		responding: make(map[string]bool),
		logger:     logger,
	}
}

// Start installs a fresh session for userID with the given initial state and
// responder. Any existing session for the user is cancelled first, and its
// timer and task are awaited to completion before the new session becomes
// visible. The new session has no pending timer or task and its responding
// flag is false.
func (s *Store) Start(userID string, state core.SessionState, respond core.Responder) {
	s.Cancel(userID)

	s.mu.Lock()
	s.sessions[userID] = &record{state: state, respond: respond}
	s.responding[userID] = false
	s.mu.Unlock()

	s.logger.Info("session started", "user_id", userID, "state", state)
}

// UpdateState mutates the session state in place. No-op if the user has no
// session.
func (s *Store) UpdateState(userID string, state core.SessionState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rec, ok := s.sessions[userID]; ok {
		rec.state = state
	}
}

// Cancel tears down the user's session: the record is removed from the table,
// then the pending timer and task (if any) are cancelled and awaited with the
// lock released. Idempotent; cancelling a non-existent session is a no-op.
func (s *Store) Cancel(userID string) {
	s.mu.Lock()
	rec, ok := s.sessions[userID]
	delete(s.sessions, userID)
	delete(s.responding, userID)
	s.mu.Unlock()
	if !ok {
		return
	}

	if rec.timer != nil {
		rec.timer.stop()
	}
	if rec.task != nil {
		rec.task.stop()
	}
	s.logger.Info("session cancelled", "user_id", userID)
}

// Exists reports whether the user has an active session.
func (s *Store) Exists(userID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.sessions[userID]
	return ok
}

// State returns the user's current session state. The second return value is
// false when no session exists.
func (s *Store) State(userID string) (core.SessionState, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.sessions[userID]
	if !ok {
		return "", false
	}
	return rec.state, true
}

// InState reports whether the user has a session currently in state.
func (s *Store) InState(userID string, state core.SessionState) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.sessions[userID]
	return ok && rec.state == state
}

// Responder returns the responder captured at session creation, or nil when
// no session exists.
func (s *Store) Responder(userID string) core.Responder {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rec, ok := s.sessions[userID]; ok {
		return rec.respond
	}
	return nil
}

// SetResponding flips the per-user in-flight-response flag.
func (s *Store) SetResponding(userID string, v bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.responding[userID] = v
}

// Responding reports the per-user in-flight-response flag; false for unknown
// users.
func (s *Store) Responding(userID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.responding[userID]
}

// ActiveUsers returns a snapshot of all users with an active session. The
// snapshot is taken atomically; sessions created after the call are not
// included.
func (s *Store) ActiveUsers() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	users := make([]string, 0, len(s.sessions))
	for id := range s.sessions {
		users = append(users, id)
	}
	return users
}

// ScheduleTimeout arms a timer that invokes fn after delay. A previously
// pending timer for the same user is cancelled fire-and-forget; exactly one
// timer handle is stored per session. Scheduling for a user with no session
// is a logged no-op.
//
// The store lock is released during the sleep, so the session may be
// cancelled, replaced or transitioned before the timer fires. Every callback
// must therefore re-check, upon firing, that the session still exists and is
// in the state it expects before producing any side effect; fn receives a
// context that is cancelled when the timer is.
func (s *Store) ScheduleTimeout(userID string, delay time.Duration, fn func(ctx context.Context)) {
	s.mu.Lock()
	rec, ok := s.sessions[userID]
	if !ok {
		s.mu.Unlock()
		s.logger.Warn("no active session when scheduling timeout", "user_id", userID)
		return
	}
	if rec.timer != nil {
		s.logger.Debug("replacing pending timer", "user_id", userID)
		rec.timer.abort()
	}
	ctx, cancel := context.WithCancel(context.Background())
	h := &handle{cancel: cancel, done: make(chan struct{})}
	rec.timer = h
	s.mu.Unlock()

	s.logger.Debug("timeout scheduled", "user_id", userID, "delay", delay)

	go func() {
		defer close(h.done)
		defer cancel()

		t := time.NewTimer(delay)
		defer t.Stop()
		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}

		// The timer is no longer pending once it fires; clearing the handle
		// here lets the callback call Cancel on its own session without
		// waiting on itself.
		s.clearTimer(userID, h)
		if ctx.Err() != nil {
			return
		}
		fn(ctx)
	}()
}

func (s *Store) clearTimer(userID string, h *handle) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rec, ok := s.sessions[userID]; ok && rec.timer == h {
		rec.timer = nil
	}
}

// RunCancellable executes op as the user's single in-flight task, blocking
// until it returns. The task handle is recorded on the session so Cancel can
// signal op through its context; on completion or cancellation the handle is
// cleared. A cancelled op never surfaces an error to the caller: the
// operation is expected to observe its context, produce no further side
// effects and unwind cleanly.
func (s *Store) RunCancellable(userID string, op func(ctx context.Context) error) error {
	ctx, cancel := context.WithCancel(context.Background())
	h := &handle{cancel: cancel, done: make(chan struct{})}

	s.mu.Lock()
	if rec, ok := s.sessions[userID]; ok {
		if rec.task != nil {
			rec.task.abort()
		}
		rec.task = h
	}
	s.mu.Unlock()

	err := op(ctx)

	s.mu.Lock()
	if rec, ok := s.sessions[userID]; ok && rec.task == h {
		rec.task = nil
	}
	s.mu.Unlock()
	close(h.done)
	cancel()

	if err != nil && (errors.Is(err, context.Canceled) || ctx.Err() != nil) {
		s.logger.Info("task cancelled", "user_id", userID)
		return nil
	}
	return err
}
