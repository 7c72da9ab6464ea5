package agent

import (
	"time"
)

// Type identifies a capability category. The set is open: new types are
// introduced by registering a descriptor, not by changing dispatch code.
type Type string

const (
	TypePlanner    Type = "planner"
	TypeCoder      Type = "coder"
	TypeTutor      Type = "tutor"
	TypeDeployment Type = "deployment"
)

// Descriptor declares the runtime contract of one agent type.
// Registered once at startup and read-only thereafter.
type Descriptor struct {
	Type           Type
	MaxConcurrency int           // admission limit across all workers of this type
	Timeout        time.Duration // hard deadline per invocation
}

// Task is the unit of work handed to a worker. Input is owned by the step;
// workers must treat it as read-only.
type Task struct {
	StepID  string
	PlanID  string
	Type    Type
	Input   map[string]string
	Attempt int // 1-based; >1 means retry or reassignment
}

// Outcome is the result of one capability invocation.
type Outcome struct {
	Success bool
	Payload string
	Kind    ErrorKind // set when Success is false
	Detail  string    // human-readable error or rejection detail
}

// Chunk is one partial payload emitted by a streaming worker. Seq is
// strictly increasing within a single invocation.
type Chunk struct {
	Seq     int
	Payload string
}

// ProgressFunc receives streaming chunks. Implementations must not block;
// the registry forwards chunks to the execution log on the worker's
// goroutine.
type ProgressFunc func(Chunk)
