package history

import (
	"context"
	"testing"
	"time"

	"github.com/user/wxbridge/internal/state"
	"github.com/user/wxbridge/internal/types"
)

// seedTurn inserts a turn with a controlled creation time.
func seedTurn(t *testing.T, store *state.MemoryStore, sessionID string, at time.Time, question, answer string, token int) {
	t.Helper()
	store.Now = func() time.Time { return at }
	err := store.Insert(context.Background(), &types.Message{
		SessionID: sessionID,
		Question:  question,
		Answer:    answer,
		Token:     token,
	})
	if err != nil {
		t.Fatal(err)
	}
}

func newTestBuilder(t *testing.T, store *state.MemoryStore, budget int, now time.Time) *Builder {
	t.Helper()
	b, err := New(store, "gpt-3.5-turbo", budget, Options{})
	if err != nil {
		t.Fatal(err)
	}
	b.now = func() time.Time { return now }
	return b
}

func TestBuildIncludesAllRecentTurns(t *testing.T) {
	store := state.NewMemoryStore()
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	seedTurn(t, store, "u1", now.Add(-4*time.Minute), "first question", "first answer", 10)
	seedTurn(t, store, "u1", now.Add(-2*time.Minute), "second question", "second answer", 10)

	b := newTestBuilder(t, store, 1024, now)
	prompt, err := b.Build(context.Background(), "u1", "new question")
	if err != nil {
		t.Fatal(err)
	}

	// 2 turns * 2 entries + the new question
	if len(prompt) != 5 {
		t.Fatalf("expected 5 prompt entries, got %d", len(prompt))
	}
	want := []struct{ role, content string }{
		{"user", "first question"},
		{"assistant", "first answer"},
		{"user", "second question"},
		{"assistant", "second answer"},
		{"user", "new question"},
	}
	for i, w := range want {
		if prompt[i].Role != w.role || prompt[i].Content != w.content {
			t.Errorf("entry %d: expected %s/%q, got %s/%q", i, w.role, w.content, prompt[i].Role, prompt[i].Content)
		}
	}
}

func TestBuildStopsAtTokenBudget(t *testing.T) {
	store := state.NewMemoryStore()
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	seedTurn(t, store, "u1", now.Add(-3*time.Minute), "dropped", "dropped", 30)
	seedTurn(t, store, "u1", now.Add(-2*time.Minute), "kept older", "kept older", 30)
	seedTurn(t, store, "u1", now.Add(-1*time.Minute), "kept newer", "kept newer", 30)

	// Budget fits two turns; the third (oldest) would exceed it.
	b := newTestBuilder(t, store, 70, now)
	prompt, err := b.Build(context.Background(), "u1", "q")
	if err != nil {
		t.Fatal(err)
	}

	if len(prompt) != 5 {
		t.Fatalf("expected 5 prompt entries, got %d", len(prompt))
	}
	if prompt[0].Content != "kept older" {
		t.Errorf("expected oldest included entry 'kept older', got %q", prompt[0].Content)
	}
}

func TestBuildExcludesOverBudgetFirstRecord(t *testing.T) {
	store := state.NewMemoryStore()
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	// The single most recent record already exceeds the budget: it is
	// excluded entirely, not truncated.
	seedTurn(t, store, "u1", now.Add(-1*time.Minute), "huge", "huge", 5000)

	b := newTestBuilder(t, store, 1024, now)
	prompt, err := b.Build(context.Background(), "u1", "q")
	if err != nil {
		t.Fatal(err)
	}

	if len(prompt) != 1 {
		t.Fatalf("expected only the new question, got %d entries", len(prompt))
	}
	if prompt[0].Role != "user" || prompt[0].Content != "q" {
		t.Errorf("expected the new question last, got %s/%q", prompt[0].Role, prompt[0].Content)
	}
}

func TestBuildStopsAtConversationGap(t *testing.T) {
	store := state.NewMemoryStore()
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	// 20 minutes of silence between the two turns: the older one belongs
	// to a different conversation.
	seedTurn(t, store, "u1", now.Add(-24*time.Minute), "stale", "stale", 5)
	seedTurn(t, store, "u1", now.Add(-2*time.Minute), "fresh", "fresh", 5)

	b := newTestBuilder(t, store, 1024, now)
	prompt, err := b.Build(context.Background(), "u1", "q")
	if err != nil {
		t.Fatal(err)
	}

	if len(prompt) != 3 {
		t.Fatalf("expected 3 prompt entries, got %d", len(prompt))
	}
	if prompt[0].Content != "fresh" {
		t.Errorf("expected only the fresh turn, got %q first", prompt[0].Content)
	}
}

func TestBuildSkipsRecordOlderThanGapFromNow(t *testing.T) {
	store := state.NewMemoryStore()
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	// The most recent turn is itself older than the max gap relative to
	// the new question, so no history is included at all.
	seedTurn(t, store, "u1", now.Add(-10*time.Minute), "old", "old", 5)

	b := newTestBuilder(t, store, 1024, now)
	prompt, err := b.Build(context.Background(), "u1", "q")
	if err != nil {
		t.Fatal(err)
	}

	if len(prompt) != 1 {
		t.Fatalf("expected only the new question, got %d entries", len(prompt))
	}
}

func TestBuildExcludesDeletedAndForeignSessions(t *testing.T) {
	store := state.NewMemoryStore()
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	seedTurn(t, store, "u1", now.Add(-3*time.Minute), "mine", "mine", 5)
	seedTurn(t, store, "u2", now.Add(-2*time.Minute), "other user", "other user", 5)

	if _, err := store.MarkDeleted(context.Background(), "u1", now.Add(-time.Minute)); err != nil {
		t.Fatal(err)
	}

	b := newTestBuilder(t, store, 1024, now)
	prompt, err := b.Build(context.Background(), "u1", "q")
	if err != nil {
		t.Fatal(err)
	}

	// Cleared history and other sessions never appear.
	if len(prompt) != 1 {
		t.Fatalf("expected empty history after clear, got %d entries", len(prompt))
	}
}

func TestBuildExcludesHistoryBeyondLookback(t *testing.T) {
	store := state.NewMemoryStore()
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	seedTurn(t, store, "u1", now.Add(-2*time.Hour), "ancient", "ancient", 5)

	b := newTestBuilder(t, store, 1024, now)
	prompt, err := b.Build(context.Background(), "u1", "q")
	if err != nil {
		t.Fatal(err)
	}

	if len(prompt) != 1 {
		t.Fatalf("expected lookback to exclude ancient turn, got %d entries", len(prompt))
	}
}

func TestBuildCapsFetchedRecords(t *testing.T) {
	store := state.NewMemoryStore()
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	// All turns are a second apart with tiny cost, but only the limit's
	// worth of newest records is ever fetched.
	for i := 0; i < 60; i++ {
		seedTurn(t, store, "u1", now.Add(-time.Duration(60-i)*time.Second), "q", "a", 1)
	}

	b, err := New(store, "gpt-3.5-turbo", 100000, Options{Limit: 50})
	if err != nil {
		t.Fatal(err)
	}
	b.now = func() time.Time { return now }

	prompt, err := b.Build(context.Background(), "u1", "new")
	if err != nil {
		t.Fatal(err)
	}

	if len(prompt) != 50*2+1 {
		t.Fatalf("expected %d prompt entries, got %d", 50*2+1, len(prompt))
	}
}
