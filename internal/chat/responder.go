// internal/chat/responder.go
package chat

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"unicode/utf8"

	"golang.org/x/sync/semaphore"

	"github.com/user/wxbridge/internal/history"
	"github.com/user/wxbridge/internal/types"
	"github.com/user/wxbridge/pkg/llm"
)

// ErrorReply is the soft-fail answer for any completion failure other
// than throttling. The user sees a fixed string; detail goes to the log.
const ErrorReply = "That one was too hard for me and something broke. (uДu〃)"

// RateLimitedReply is the soft-fail answer for HTTP 429 from the backend.
const RateLimitedReply = "Too many questions at once, I'm a little dizzy. Please try again later."

// Responder runs the chat reply flow for one inbound text message.
type Responder struct {
	store    types.MessageStore
	builder  *history.Builder
	provider llm.Provider
	commands *Commands
	sem      *semaphore.Weighted
}

// NewResponder wires the reply flow. maxConcurrent bounds simultaneous
// outbound completion calls across all sessions.
func NewResponder(store types.MessageStore, builder *history.Builder, provider llm.Provider, maxConcurrent int64) *Responder {
	if maxConcurrent <= 0 {
		maxConcurrent = 2
	}
	return &Responder{
		store:    store,
		builder:  builder,
		provider: provider,
		commands: NewCommands(store),
		sem:      semaphore.NewWeighted(maxConcurrent),
	}
}

// Reply produces the answer text for an inbound message. It fails soft:
// any completion failure yields a fixed user-facing string, never an
// error, and no Message record is persisted for failed turns.
func (r *Responder) Reply(ctx context.Context, sessionID, msgID, content string) string {
	question := strings.TrimSpace(content)
	logger := slog.With("session_id", sessionID, "msgid", msgID)

	if IsCommand(question) {
		reply, err := r.commands.Process(ctx, sessionID, question)
		if err != nil {
			logger.Error("command failed", "command", question, "error", err)
			return ErrorReply
		}
		return reply
	}

	prompt, err := r.builder.Build(ctx, sessionID, question)
	if err != nil {
		logger.Error("build prompt failed", "error", err)
		return ErrorReply
	}

	answer, err := r.complete(ctx, prompt)
	if err != nil {
		if errors.Is(err, llm.ErrRateLimited) {
			logger.Warn("completion rate limited", "error", err)
			return RateLimitedReply
		}
		logger.Error("completion failed", "error", err)
		return ErrorReply
	}

	logger.Debug("completion succeeded", "question", question, "answer", answer)

	msg := &types.Message{
		SessionID: sessionID,
		MsgID:     msgID,
		Question:  question,
		Answer:    answer,
		Token:     utf8.RuneCountInString(question) + utf8.RuneCountInString(answer),
	}
	if err := r.store.Insert(ctx, msg); err != nil {
		// The user still gets the answer; a redelivery may reprocess.
		logger.Error("persist turn failed", "error", err)
	}

	return answer
}

// complete calls the provider under the concurrency semaphore and
// collapses double newlines in the generated text.
func (r *Responder) complete(ctx context.Context, prompt []llm.Message) (string, error) {
	if err := r.sem.Acquire(ctx, 1); err != nil {
		return "", err
	}
	defer r.sem.Release(1)

	resp, err := r.provider.Complete(ctx, prompt)
	if err != nil {
		return "", err
	}
	return strings.ReplaceAll(resp.Content, "\n\n", "\n"), nil
}
