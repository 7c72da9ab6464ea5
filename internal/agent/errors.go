package agent

import "errors"

// ErrUnknownAgentType is returned when no worker is registered for a
// requested agent type. Fatal to plan construction, never retried.
var ErrUnknownAgentType = errors.New("unknown agent type")

// ErrorKind classifies a failed invocation for recovery decisions.
type ErrorKind int

const (
	KindNone ErrorKind = iota
	KindTimeout
	KindUnavailable
	KindInvalidInput
	KindUnknownAgent
	KindRejected // validator refused the outcome
	KindCancelled
	KindInternal
)

// String returns the stable wire name of the kind, used in log entries
// and persisted rows.
func (k ErrorKind) String() string {
	switch k {
	case KindNone:
		return "none"
	case KindTimeout:
		return "timeout"
	case KindUnavailable:
		return "unavailable"
	case KindInvalidInput:
		return "invalid_input"
	case KindUnknownAgent:
		return "unknown_agent"
	case KindRejected:
		return "rejected"
	case KindCancelled:
		return "cancelled"
	case KindInternal:
		return "internal"
	}
	return "unknown"
}

// Transient reports whether the kind may succeed on a retry with the
// same worker. Rejected outcomes are recoverable but only by
// reassignment, so they are not transient here.
func (k ErrorKind) Transient() bool {
	return k == KindTimeout || k == KindUnavailable
}

// Fatal reports whether the kind rules out any further attempt on the
// step, by any worker.
func (k ErrorKind) Fatal() bool {
	return k == KindInvalidInput || k == KindUnknownAgent || k == KindCancelled
}

// Failure builds a failed Outcome of the given kind.
func Failure(kind ErrorKind, detail string) Outcome {
	return Outcome{Success: false, Kind: kind, Detail: detail}
}
