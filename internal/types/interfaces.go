// internal/types/interfaces.go
package types

import (
	"context"
	"time"
)

// Order selects the created_at sort direction for message queries.
type Order int

const (
	OldestFirst Order = iota
	NewestFirst
)

// MessageQuery is the filter surface the core logic needs from a message
// table: equality, "field does not exist", "field greater than", sort,
// and limit. Zero values mean "no constraint".
type MessageQuery struct {
	SessionID    string    // equality on session_id
	MsgID        string    // equality on msgid
	Undeleted    bool      // deleted_at does not exist
	CreatedAfter time.Time // created_at strictly greater than
	Sort         Order
	Limit        int
}

// MessageStore persists completed turns.
type MessageStore interface {
	// Insert appends a new message, assigning ID and CreatedAt.
	Insert(ctx context.Context, msg *Message) error

	// Find returns the messages matching the query.
	Find(ctx context.Context, q MessageQuery) ([]*Message, error)

	// Count returns the number of messages matching the query.
	Count(ctx context.Context, q MessageQuery) (int64, error)

	// MarkDeleted sets DeletedAt on every non-deleted message of the
	// session and returns how many rows were affected.
	MarkDeleted(ctx context.Context, sessionID string, at time.Time) (int64, error)
}

// EventLog is the idempotency table for inbound deliveries.
type EventLog interface {
	// Record inserts the event if its EventID has never been seen.
	// It returns false when a row already existed; the insert is
	// conditional on the unique event_id so that two concurrent
	// deliveries cannot both pass the check.
	Record(ctx context.Context, ev *Event) (bool, error)
}
