// Package model defines the core conversation and memory data types.
package model

import "time"

// Roles a ConversationMessage may carry.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ConversationMessage is a single turn read from the host page.
type ConversationMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// MemoryRecord is a memory returned by the memory service search.
// Server metadata other than the memory text is ignored.
type MemoryRecord struct {
	Memory string `json:"memory"`
}

// OperationRecord describes what the memory service did with an added message.
type OperationRecord struct {
	Event  string `json:"event"`
	Memory string `json:"memory"`
	ID     string `json:"id"`
}

// PendingSubmission is the transient state of one submission cycle.
// It exists only between capture and release.
type PendingSubmission struct {
	CycleID         string    `json:"cycle_id"`
	Site            string    `json:"site"`
	RawMessage      string    `json:"raw_message"`
	ComposedMessage string    `json:"composed_message"`
	Rich            bool      `json:"rich"`
	InFlight        bool      `json:"in_flight"`
	CapturedAt      time.Time `json:"captured_at"`
}

// ValidEvents are the operation tags the memory service may return.
var ValidEvents = map[string]bool{
	"ADD":    true,
	"UPDATE": true,
	"DELETE": true,
	"NONE":   true,
}

// ValidRoles are the roles accepted by the memory service.
var ValidRoles = map[string]bool{
	RoleUser:      true,
	RoleAssistant: true,
}

// Cycle outcomes recorded in the journal.
const (
	OutcomeSent       = "sent"
	OutcomeComposed   = "composed"
	OutcomeEmpty      = "empty"
	OutcomeNoInput    = "no_input"
	OutcomeSendFailed = "send_failed"
)

// Cycle summarizes one finished submission cycle.
type Cycle struct {
	ID         string    `json:"id"`
	Site       string    `json:"site"`
	Source     string    `json:"source"`
	Outcome    string    `json:"outcome"`
	Raw        string    `json:"raw"`
	Composed   string    `json:"composed,omitempty"`
	Memories   int       `json:"memories"`
	SearchErr  string    `json:"search_error,omitempty"`
	Err        string    `json:"error,omitempty"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
}
