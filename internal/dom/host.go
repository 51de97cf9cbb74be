// Package dom models the host chat page as a capability interface and finds
// the elements the controller needs on it.
package dom

import (
	"context"
	"errors"
	"time"

	"github.com/rcliao/chat-memory/internal/model"
)

// ErrElementNotFound is returned when a required element is not rendered.
var ErrElementNotFound = errors.New("element not found")

// Kind identifies the role of a located element.
type Kind int

const (
	KindInput Kind = iota
	KindSubmit
)

func (k Kind) String() string {
	switch k {
	case KindInput:
		return "input"
	case KindSubmit:
		return "submit"
	}
	return "unknown"
}

// Ref addresses an element by the selector that matched it. Refs are
// resolved again on every use; the page owns the element's lifetime.
type Ref struct {
	Selector string `json:"selector"`
	Kind     Kind   `json:"kind"`
}

// EventType is the kind of notification forwarded from the page.
type EventType string

const (
	EventMutation  EventType = "mutation"
	EventEnter     EventType = "enter"
	EventTrigger   EventType = "trigger"
	EventShortcut  EventType = "shortcut"
	EventSendClick EventType = "send_click"
)

// Event is a page notification. The page has already suppressed the native
// action for every event type except EventMutation.
type Event struct {
	Type EventType `json:"type"`
	At   time.Time `json:"at"`
}

// IsSubmission reports whether the event expresses an intent to send.
func (e Event) IsSubmission() bool {
	switch e.Type {
	case EventEnter, EventTrigger, EventShortcut, EventSendClick:
		return true
	}
	return false
}

// Finder checks whether a selector currently matches an element.
type Finder interface {
	Exists(ctx context.Context, selector string) (bool, error)
}

// Host is everything the controller may do to a page it does not own.
type Host interface {
	Finder

	// Read returns the element's content: markup when rich, text otherwise.
	Read(ctx context.Context, ref Ref, rich bool) (string, error)
	// IsRich reports whether the element is a contenteditable editor.
	IsRich(ctx context.Context, ref Ref) (bool, error)
	// Write replaces the element's content and fires the page's input event.
	Write(ctx context.Context, ref Ref, content string, rich bool) error
	// Click invokes the element's native action without re-triggering interception.
	Click(ctx context.Context, ref Ref) error

	// Marked and Mark manage per-element attachment flags.
	Marked(ctx context.Context, ref Ref, flag string) (bool, error)
	Mark(ctx context.Context, ref Ref, flag string) error
	// Attach installs the interception hook for ref.Kind.
	Attach(ctx context.Context, ref Ref) error
	// AttachTrigger inserts the manual trigger control next to anchor.
	AttachTrigger(ctx context.Context, anchor Ref) error
	// RemoveOrphans removes trigger controls whose anchor is gone.
	RemoveOrphans(ctx context.Context) (int, error)

	// Notify shows a transient notice to the user.
	Notify(ctx context.Context, message string) error
	// Messages extracts prior turns in document order.
	Messages(ctx context.Context, userSelectors, assistantSelectors []string) ([]model.ConversationMessage, error)
}
