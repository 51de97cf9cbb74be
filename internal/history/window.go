// Package history assembles the conversational context window sent to the
// memory service alongside a new message.
package history

import (
	"strings"

	"github.com/rcliao/chat-memory/internal/compose"
	"github.com/rcliao/chat-memory/internal/model"
)

// DefaultTurns is the number of prior turns carried with a new message.
const DefaultTurns = 6

// Options configures window assembly.
type Options struct {
	Turns       int
	MaxTurnSize int
}

// DefaultOptions returns default window options.
func DefaultOptions() Options {
	return Options{
		Turns:       DefaultTurns,
		MaxTurnSize: DefaultMaxTurnSize,
	}
}

// Window returns the last opts.Turns prior messages followed by next as a
// user message. Memory blocks are stripped from user turns so injected
// memories are never fed back to the service, and long turns are clipped.
func Window(prior []model.ConversationMessage, next string, opts Options) []model.ConversationMessage {
	if opts.Turns < 0 {
		opts.Turns = 0
	}
	next = strings.TrimSpace(compose.Strip(next, false))

	var turns []model.ConversationMessage
	for _, m := range prior {
		if !model.ValidRoles[m.Role] {
			continue
		}
		content := m.Content
		if m.Role == model.RoleUser {
			content = compose.Strip(content, false)
		}
		content = Clip(content, opts.MaxTurnSize)
		if content == "" {
			continue
		}
		turns = append(turns, model.ConversationMessage{Role: m.Role, Content: content})
	}

	// The host may already render the message being sent as the last turn.
	if n := len(turns); n > 0 && turns[n-1].Role == model.RoleUser && turns[n-1].Content == Clip(next, opts.MaxTurnSize) {
		turns = turns[:n-1]
	}

	if len(turns) > opts.Turns {
		turns = turns[len(turns)-opts.Turns:]
	}

	if next != "" {
		turns = append(turns, model.ConversationMessage{Role: model.RoleUser, Content: Clip(next, opts.MaxTurnSize)})
	}
	return turns
}
