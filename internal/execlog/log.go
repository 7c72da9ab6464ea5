package execlog

import (
	"sync"
	"time"
)

// Sink receives every appended entry, in append order. Used to mirror the
// log into persistent storage. Sink errors are the sink's problem; the
// in-memory log is the source of truth for ordering.
type Sink func(Entry)

// Log is the append-only execution log for a single plan. One goroutine
// appends at a time per the dispatcher's single-writer discipline, but
// Append is safe under concurrent use regardless. Subscribers can join at
// any offset: entries before the offset are replayed from the retained
// sequence, then live entries stream in real time.
type Log struct {
	mu      sync.RWMutex
	planID  string
	entries []Entry
	subs    []chan Entry
	sink    Sink
	closed  bool
}

// New creates an empty log for the given plan.
func New(planID string) *Log {
	return &Log{planID: planID}
}

// WithSink attaches a sink invoked synchronously on each append.
func (l *Log) WithSink(sink Sink) *Log {
	l.mu.Lock()
	l.sink = sink
	l.mu.Unlock()
	return l
}

// PlanID returns the plan this log belongs to.
func (l *Log) PlanID() string {
	return l.planID
}

// Append records an event and fans it out to live subscribers.
// Publishing to subscribers is non-blocking: a subscriber whose channel
// is full misses live entries (it can re-Subscribe from its last seen
// Seq to catch up). Returns the assigned sequence number.
func (l *Log) Append(stepID string, event Event, detail string) int {
	l.mu.Lock()

	if l.closed {
		l.mu.Unlock()
		return -1
	}

	entry := Entry{
		PlanID: l.planID,
		StepID: stepID,
		Seq:    len(l.entries),
		Time:   time.Now(),
		Event:  event,
		Detail: detail,
	}
	l.entries = append(l.entries, entry)
	sink := l.sink

	for _, ch := range l.subs {
		select {
		case ch <- entry:
		default:
			// Subscriber full, drop the live entry.
		}
	}
	l.mu.Unlock()

	if sink != nil {
		sink(entry)
	}
	return entry.Seq
}

// Subscribe returns a channel that first replays all retained entries
// with Seq >= from, then streams live entries. The channel is closed when
// the log closes. bufSize pads the live portion (defaults to 256 if <= 0).
func (l *Log) Subscribe(from int, bufSize int) <-chan Entry {
	if bufSize <= 0 {
		bufSize = 256
	}
	if from < 0 {
		from = 0
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	var replay []Entry
	if from < len(l.entries) {
		replay = l.entries[from:]
	}

	ch := make(chan Entry, len(replay)+bufSize)
	for _, e := range replay {
		ch <- e
	}

	if l.closed {
		close(ch)
		return ch
	}

	l.subs = append(l.subs, ch)
	return ch
}

// Entries returns a snapshot of the full append sequence.
func (l *Log) Entries() []Entry {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]Entry, len(l.entries))
	copy(out, l.entries)
	return out
}

// Len returns the number of appended entries.
func (l *Log) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}

// Close closes all subscriber channels. Idempotent. Entries remain
// readable via Entries after close.
func (l *Log) Close() {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return
	}
	l.closed = true

	for _, ch := range l.subs {
		close(ch)
	}
	l.subs = nil
}
