package domain

import "time"

// MessageKind distinguishes free text from a quick-reply selection.
type MessageKind string

const (
	KindText   MessageKind = "text"
	KindButton MessageKind = "button"
)

// InboundMessage is a single delivery from the messaging provider. It only
// lives for one routing pass.
type InboundMessage struct {
	ID        string
	Sender    string
	Kind      MessageKind
	Body      string // text body, or the button id for KindButton
	ArrivedAt time.Time
}

// Reply is what the assistant sends back: text plus optional quick-reply options.
type Reply struct {
	Text    string
	Options []string
}

// OutcomeKind is the routing verdict for one inbound message.
type OutcomeKind string

const (
	OutcomeSuppressed OutcomeKind = "suppressed"
	OutcomeReplied    OutcomeKind = "replied"
	OutcomeDelegated  OutcomeKind = "delegated"
)

// DelegateStatus tags the result of a single completion-service attempt.
type DelegateStatus string

const (
	DelegateOK           DelegateStatus = "ok"
	DelegateTimedOut     DelegateStatus = "timed_out"
	DelegateServiceError DelegateStatus = "service_error"
	DelegateMalformed    DelegateStatus = "malformed"
)

// Outcome is the result of routing one inbound message. Callers transmit
// Reply unless Kind is OutcomeSuppressed.
type Outcome struct {
	Kind     OutcomeKind
	Reply    Reply
	Intent   Intent
	Rule     string
	Delegate DelegateStatus // set for OutcomeDelegated only
	Fallback bool           // reply text came from the local fallback chain
}

// Suppressed reports whether the message was dropped as a duplicate.
func (o Outcome) Suppressed() bool { return o.Kind == OutcomeSuppressed }
