// internal/types/models.go
package types

import "time"

// Message records one completed question/answer turn within a session.
// Rows are append-only: the only mutation ever applied is the single
// DeletedAt transition (unset -> set) performed by a clear command.
type Message struct {
	ID        int64      `json:"id"`
	SessionID string     `json:"session_id"`
	MsgID     string     `json:"msgid"`
	Question  string     `json:"question"`
	Answer    string     `json:"answer"`
	Token     int        `json:"token"`
	CreatedAt time.Time  `json:"created_at"`
	DeletedAt *time.Time `json:"deleted_at,omitempty"`
}

// Deleted reports whether the message has been soft-deleted.
func (m *Message) Deleted() bool {
	return m.DeletedAt != nil
}

// Event records one distinct upstream delivery, keyed by the platform's
// message identifier. Existence of a row means "seen before", regardless
// of whether processing completed. Rows are never updated or deleted.
type Event struct {
	EventID string    `json:"event_id"`
	Payload string    `json:"payload"`
	SeenAt  time.Time `json:"seen_at"`
}
