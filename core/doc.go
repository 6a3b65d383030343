// Package core defines the shared vocabulary of the standby assistant: the
// normalized inbound message, the responder capability used to deliver
// outbound text, the session state enumeration, and the narrow interfaces
// through which the flow talks to its collaborators (reply generation,
// semantic retrieval, conversation history).
//
// The package deliberately contains no behavior beyond type declarations so
// that every other package can depend on it without cycles.
package core
