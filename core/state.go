package core

// SessionState is the position of a user in the opt-in conversation flow.
// The absence of a session is the implicit state "none"; it has no constant
// because it is represented by a missing store entry, never stored.
type SessionState string

const (
	// StateWaiting: a first message arrived and the initial-prompt timer is
	// running; the assistant has not yet offered itself.
	StateWaiting SessionState = "waiting_prompt"
	// StatePrompted: the user has been asked a yes/no question (the opt-in
	// offer or the still-around check) and a reply is expected.
	StatePrompted SessionState = "prompted"
	// StateTalking: the user opted in and messages are answered by the model.
	StateTalking SessionState = "talking_ai"
	// StateSilent: the operator took over or the user declined; the assistant
	// ignores the user until the silent period expires.
	StateSilent SessionState = "silent"
)

// String implements fmt.Stringer.
func (s SessionState) String() string { return string(s) }
