// Package history assembles the bounded prompt window sent to the
// completion API: recent turns of a session, newest-first capped, token-
// and gap-limited, reordered oldest-first with the new question last.
package history

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/pkoukk/tiktoken-go"

	"github.com/user/wxbridge/internal/types"
	"github.com/user/wxbridge/pkg/llm"
)

const (
	// DefaultLookback bounds how far back history is fetched.
	DefaultLookback = time.Hour
	// DefaultMaxGap is the silence between adjacent turns that marks the
	// start of an unrelated conversation.
	DefaultMaxGap = 5 * time.Minute
	// DefaultLimit caps fetched records regardless of token budget.
	DefaultLimit = 50
)

// Options tune the window bounds. Zero values fall back to the defaults.
type Options struct {
	Lookback time.Duration
	MaxGap   time.Duration
	Limit    int
}

// Builder assembles token-budgeted prompt windows from session history.
type Builder struct {
	store     types.MessageStore
	tokenizer *tiktoken.Tiktoken
	budget    int
	lookback  time.Duration
	maxGap    time.Duration
	limit     int
	now       func() time.Time
}

// New creates a window builder over the given store. model selects the
// tokenizer used for the debug-level size estimate of each assembled
// prompt; budget is the ceiling on accumulated per-turn token cost.
func New(store types.MessageStore, model string, budget int, opts Options) (*Builder, error) {
	enc, err := tiktoken.EncodingForModel(model)
	if err != nil {
		// Fallback to cl100k_base for unknown models
		enc, err = tiktoken.GetEncoding("cl100k_base")
		if err != nil {
			return nil, fmt.Errorf("get tokenizer: %w", err)
		}
	}

	b := &Builder{
		store:     store,
		tokenizer: enc,
		budget:    budget,
		lookback:  opts.Lookback,
		maxGap:    opts.MaxGap,
		limit:     opts.Limit,
		now:       time.Now,
	}
	if b.lookback <= 0 {
		b.lookback = DefaultLookback
	}
	if b.maxGap <= 0 {
		b.maxGap = DefaultMaxGap
	}
	if b.limit <= 0 {
		b.limit = DefaultLimit
	}
	return b, nil
}

// Build returns the prompt for a new question: prior turns oldest-first,
// each as a user/assistant pair, ending with the question itself.
//
// History is walked newest to oldest. A record is excluded, and the walk
// stops, once including it would push the accumulated token cost over the
// budget, or once the gap between it and the previously accumulated
// timestamp exceeds the configured maximum.
func (b *Builder) Build(ctx context.Context, sessionID, question string) ([]llm.Message, error) {
	now := b.now()

	history, err := b.store.Find(ctx, types.MessageQuery{
		SessionID:    sessionID,
		Undeleted:    true,
		CreatedAfter: now.Add(-b.lookback),
		Sort:         types.NewestFirst,
		Limit:        b.limit,
	})
	if err != nil {
		return nil, fmt.Errorf("fetch history: %w", err)
	}

	var turns []llm.Message
	tokenSize := 0
	last := now
	for _, msg := range history {
		if tokenSize+msg.Token > b.budget {
			break
		}
		if last.Sub(msg.CreatedAt) > b.maxGap {
			break
		}

		turns = append([]llm.Message{
			{Role: "user", Content: msg.Question},
			{Role: "assistant", Content: msg.Answer},
		}, turns...)
		tokenSize += msg.Token
		last = msg.CreatedAt
	}

	prompt := append(turns, llm.Message{Role: "user", Content: question})

	slog.Debug("prompt window assembled",
		"session_id", sessionID,
		"turns", len(turns)/2,
		"token_cost", tokenSize,
		"estimated_tokens", b.countTokens(prompt),
	)

	return prompt, nil
}

// countTokens returns the tokenizer's estimate for the whole prompt.
func (b *Builder) countTokens(prompt []llm.Message) int {
	total := 0
	for _, msg := range prompt {
		total += len(b.tokenizer.Encode(msg.Content, nil, nil))
	}
	return total
}
