package execlog

import (
	"time"
)

// Event names a step or plan transition recorded in the log.
type Event string

const (
	EventPlanStarted  Event = "plan_started"
	EventPlanFinished Event = "plan_finished"
	EventDispatched   Event = "dispatched"
	EventSucceeded    Event = "succeeded"
	EventFailed       Event = "failed"
	EventRetried      Event = "retried"
	EventReassigned   Event = "reassigned"
	EventValidated    Event = "validated"
	EventRejected     Event = "rejected"
	EventAborted      Event = "aborted"
	EventSkipped      Event = "skipped"
	EventProgress     Event = "progress"
)

// Entry is one record of the audit trail. Entries are append-only and
// never reordered or mutated; Seq is the position in the plan's append
// sequence, starting at 0.
type Entry struct {
	PlanID string
	StepID string // empty for plan-level events
	Seq    int
	Time   time.Time
	Event  Event
	Detail string
}
