package intent

import (
	"context"
	"time"
)

// IntentType is the classified category of a user request.
type IntentType string

const (
	IntentCreateProject  IntentType = "create_project"
	IntentDebugError     IntentType = "debug_error"
	IntentDeployApp      IntentType = "deploy_app"
	IntentExplainConcept IntentType = "explain_concept"
	IntentUnknown        IntentType = "unknown"
)

// Intent is the output of the external classification service.
// Immutable once received; the core trusts type, confidence and slots
// and does not re-validate language semantics.
type Intent struct {
	Type       IntentType
	Confidence float64
	Slots      map[string]string
}

// Classifier is the consumed interface to the external intent
// classification service.
type Classifier interface {
	Classify(ctx context.Context, text string, cc *ConversationContext) (Intent, error)
}

// Message is one turn of conversation history.
type Message struct {
	Role    string // "user" or "assistant"
	Content string
	Time    time.Time
}

// ConversationContext carries per-session state shared by all steps of a
// plan. Only the supervisor writes to it; every step receives an
// immutable Snapshot instead of the live value.
type ConversationContext struct {
	UserID    string
	ProjectID string
	SessionID string
	Language  string
	History   []Message
}

// Append adds a turn to the history. Caller must be the sole writer.
func (cc *ConversationContext) Append(role, content string) {
	cc.History = append(cc.History, Message{Role: role, Content: content, Time: time.Now()})
}

// Snapshot is a deep, read-only copy of a ConversationContext, published
// to each step at plan build time.
type Snapshot struct {
	UserID    string
	ProjectID string
	SessionID string
	Language  string
	History   []Message
}

// Snapshot produces an immutable copy safe for concurrent reads.
func (cc *ConversationContext) Snapshot() Snapshot {
	history := make([]Message, len(cc.History))
	copy(history, cc.History)
	return Snapshot{
		UserID:    cc.UserID,
		ProjectID: cc.ProjectID,
		SessionID: cc.SessionID,
		Language:  cc.Language,
		History:   history,
	}
}
