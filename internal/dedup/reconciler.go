// Package dedup detects redelivered webhook events and, when one is
// seen, waits briefly for the answer the original delivery is still
// computing instead of reprocessing the turn.
package dedup

import (
	"context"
	"log/slog"
	"time"

	"github.com/user/wxbridge/internal/types"
)

const (
	// DefaultAttempts is how many times AwaitAnswer polls the store.
	DefaultAttempts = 10
	// DefaultDelay separates consecutive poll attempts.
	DefaultDelay = 500 * time.Millisecond
)

// Reconciler pairs the idempotency log with a bounded answer wait.
// Attempt count and delay are constructor parameters so tests never
// need real wall-clock waits.
type Reconciler struct {
	events   types.EventLog
	messages types.MessageStore
	attempts int
	delay    time.Duration
}

// New creates a Reconciler. attempts <= 0 or delay <= 0 select the defaults.
func New(events types.EventLog, messages types.MessageStore, attempts int, delay time.Duration) *Reconciler {
	if attempts <= 0 {
		attempts = DefaultAttempts
	}
	if delay <= 0 {
		delay = DefaultDelay
	}
	return &Reconciler{
		events:   events,
		messages: messages,
		attempts: attempts,
		delay:    delay,
	}
}

// Observe records a never-before-seen event and reports whether the
// delivery is a retry of one already observed. Redeliveries leave the
// log untouched.
func (r *Reconciler) Observe(ctx context.Context, ev *types.Event) (bool, error) {
	inserted, err := r.events.Record(ctx, ev)
	if err != nil {
		return false, err
	}
	return !inserted, nil
}

// AwaitAnswer polls for the newest persisted answer matching the
// message identifier. It gives up after the configured attempt count,
// or earlier when the context is cancelled; the caller then falls back
// to normal processing.
func (r *Reconciler) AwaitAnswer(ctx context.Context, msgID string) (string, bool) {
	for attempt := 0; attempt < r.attempts; attempt++ {
		found, err := r.messages.Find(ctx, types.MessageQuery{
			MsgID: msgID,
			Sort:  types.NewestFirst,
			Limit: 1,
		})
		if err != nil {
			slog.Warn("await answer query failed", "msgid", msgID, "error", err)
		} else if len(found) > 0 {
			return found[0].Answer, true
		}

		select {
		case <-ctx.Done():
			return "", false
		case <-time.After(r.delay):
		}
	}
	return "", false
}
