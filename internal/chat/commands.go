// Package chat implements the per-message reply flow: slash commands,
// prompt window assembly, the completion call, and turn persistence.
package chat

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/user/wxbridge/internal/types"
)

// CommandPrefix marks control messages that are never sent to the model.
const CommandPrefix = "/"

const (
	clearCommand = "/clear"
	helpCommand  = "/help"
)

// ClearedReply confirms a successful history clear.
const ClearedReply = "✅ Conversation history cleared"

// HelpReply lists the available commands. It is also the fallback for
// any unrecognized slash input.
const HelpReply = `Chat command guide

Usage:
    /clear    clear the conversation history
    /help     show this help
`

// IsCommand reports whether trimmed input is a control message.
func IsCommand(question string) bool {
	return strings.HasPrefix(question, CommandPrefix)
}

// Commands interprets slash-prefixed control messages.
type Commands struct {
	store types.MessageStore
	now   func() time.Time
}

// NewCommands creates a command processor over the given store.
func NewCommands(store types.MessageStore) *Commands {
	return &Commands{store: store, now: time.Now}
}

// Process handles a single command, matched by exact string equality.
// Clearing soft-deletes every live message of the session; everything
// else answers with the help text.
func (c *Commands) Process(ctx context.Context, sessionID, question string) (string, error) {
	switch question {
	case clearCommand:
		affected, err := c.store.MarkDeleted(ctx, sessionID, c.now())
		if err != nil {
			return "", err
		}
		slog.Debug("history cleared", "session_id", sessionID, "messages", affected)
		return ClearedReply, nil
	default:
		return HelpReply, nil
	}
}
