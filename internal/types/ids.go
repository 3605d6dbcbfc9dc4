// internal/types/ids.go
package types

import "github.com/google/uuid"

// RequestID correlates all log lines produced while handling one inbound delivery.
type RequestID string

func NewRequestID() RequestID {
	return RequestID(uuid.New().String())
}
