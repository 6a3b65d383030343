package flow

import (
	"context"
	"fmt"

	"github.com/standbybot/standby/core"
)

// Outbound wording. The "[AI]" / "[system]" prefixes distinguish automated
// messages from the operator's own in the chat history.
const (
	msgEndHint     = "[AI]: At any moment if you would like to end the chat with me, just respond with 'End discussion'."
	msgHowCanIHelp = "[AI]: How can I help?"
	msgReprompt    = "[system]: Please reply with just 'Yes' or 'No'."
	msgEndAck      = "[AI]: Okay, ending AI conversation."
	msgStillAround = "[AI]: Still around? Do you still need my help? Reply 'Yes' or 'No'."
	msgAutoEnd     = "[AI]: Ending our session due to inactivity. Feel free to message again anytime."
)

func (f *Flow) initialPromptText() string {
	return fmt.Sprintf("[system]: Hi, %s is currently busy. Would you like to talk to their AI assistant instead? Reply with 'Yes' or 'No' only.", f.cfg.OwnerName)
}

func (f *Flow) declineText() string {
	return fmt.Sprintf("[system]: No problem! %s will get to you as soon as possible.", f.cfg.OwnerName)
}

// scheduleInitialPrompt arms the timer that offers the assistant to a user
// whose first message has gone unanswered.
func (f *Flow) scheduleInitialPrompt(userID string) {
	f.store.ScheduleTimeout(userID, f.cfg.InitialPromptDelay, func(ctx context.Context) {
		f.initialPrompt(ctx, userID)
	})
}

// initialPrompt fires after InitialPromptDelay. Guard: the session must still
// be waiting; anything else means the operator replied or the session was
// torn down in the meantime, and the prompt is silently dropped.
func (f *Flow) initialPrompt(ctx context.Context, userID string) {
	if !f.store.InState(userID, core.StateWaiting) {
		f.logger.Debug("initial prompt skipped, state changed", "user_id", userID)
		return
	}
	respond := f.store.Responder(userID)
	if respond == nil {
		f.logger.Warn("no responder for session", "user_id", userID)
		return
	}
	if err := respond(ctx, f.initialPromptText()); err != nil {
		f.logger.Error("send initial prompt failed", "user_id", userID, "error", err)
		return
	}
	f.store.UpdateState(userID, core.StatePrompted)
}

// scheduleInactivityCheck arms (or re-arms) the idle timer for a talking user.
func (f *Flow) scheduleInactivityCheck(userID string) {
	f.store.ScheduleTimeout(userID, f.cfg.InactivityTimeout, func(ctx context.Context) {
		f.inactivityCheck(ctx, userID)
	})
}

// inactivityCheck fires after InactivityTimeout of silence from a talking
// user: it asks whether the user is still around and arms the auto-end timer.
func (f *Flow) inactivityCheck(ctx context.Context, userID string) {
	if !f.store.InState(userID, core.StateTalking) {
		f.logger.Debug("inactivity check skipped, state changed", "user_id", userID)
		return
	}
	respond := f.store.Responder(userID)
	if respond == nil {
		return
	}
	if err := respond(ctx, msgStillAround); err != nil {
		f.logger.Error("send inactivity prompt failed", "user_id", userID, "error", err)
		return
	}
	f.store.UpdateState(userID, core.StatePrompted)
	f.store.ScheduleTimeout(userID, f.cfg.AutoEndTimeout, func(ctx context.Context) {
		f.autoEnd(ctx, userID)
	})
}

// autoEnd fires when the still-around check went unanswered: the session is
// announced over and removed.
func (f *Flow) autoEnd(ctx context.Context, userID string) {
	if !f.store.InState(userID, core.StatePrompted) {
		f.logger.Debug("auto end skipped, state changed", "user_id", userID)
		return
	}
	if respond := f.store.Responder(userID); respond != nil {
		if err := respond(ctx, msgAutoEnd); err != nil {
			f.logger.Error("send auto-end notice failed", "user_id", userID, "error", err)
		}
	}
	f.store.Cancel(userID)
}

// scheduleSilentExpiry arms the timer that ends a silent period.
func (f *Flow) scheduleSilentExpiry(userID string) {
	f.store.ScheduleTimeout(userID, f.cfg.SilentPeriod, func(ctx context.Context) {
		f.silentExpiry(ctx, userID)
	})
}

// silentExpiry fires when the silent period is over: the session reverts to
// waiting and the initial-prompt timer is re-armed. The responder is carried
// over from the silent session so the re-armed prompt can still be delivered.
func (f *Flow) silentExpiry(_ context.Context, userID string) {
	if !f.store.InState(userID, core.StateSilent) {
		f.logger.Debug("silent expiry skipped, state changed", "user_id", userID)
		return
	}
	respond := f.store.Responder(userID)
	if respond == nil {
		return
	}
	f.logger.Info("silent period expired, reverting to waiting", "user_id", userID)
	f.store.Cancel(userID)
	f.store.Start(userID, core.StateWaiting, respond)
	f.scheduleInitialPrompt(userID)
}
