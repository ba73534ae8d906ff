package chat

import (
	"context"
	"testing"

	"github.com/boternity/boternity/internal/sessions"
	"github.com/boternity/boternity/pkg/models"
)

func newTestService() *Service {
	return New(sessions.NewMemoryStore(), nil, nil, nil)
}

func TestStartSessionCreatesActiveSession(t *testing.T) {
	s := newTestService()
	session, err := s.StartSession(context.Background(), "bot-1", "claude-x")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if session.Status != models.SessionActive {
		t.Fatalf("expected Active status, got %q", session.Status)
	}
	if session.BotID != "bot-1" || session.Model != "claude-x" {
		t.Fatalf("unexpected session: %+v", session)
	}
	if session.StartedAt.IsZero() {
		t.Fatal("expected StartedAt to be set")
	}
}

func TestEndSessionMarksCompleted(t *testing.T) {
	s := newTestService()
	session, _ := s.StartSession(context.Background(), "bot-1", "claude-x")

	if err := s.EndSession(context.Background(), session.ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got, err := s.GetSession(context.Background(), session.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Status != models.SessionCompleted {
		t.Fatalf("expected Completed status, got %q", got.Status)
	}
	if got.EndedAt.IsZero() {
		t.Fatal("expected EndedAt to be set")
	}
}

func TestUpdateTitle(t *testing.T) {
	s := newTestService()
	session, _ := s.StartSession(context.Background(), "bot-1", "claude-x")

	if err := s.UpdateTitle(context.Background(), session.ID, "Pricing discussion"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got, _ := s.GetSession(context.Background(), session.ID)
	if got.Title != "Pricing discussion" {
		t.Fatalf("unexpected title: %q", got.Title)
	}
}

func TestAppendMessageAccumulatesAssistantTokenTotals(t *testing.T) {
	s := newTestService()
	session, _ := s.StartSession(context.Background(), "bot-1", "claude-x")

	if err := s.AppendMessage(context.Background(), session.ID, &models.Message{Role: models.RoleUser, Content: "hi"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := s.AppendMessage(context.Background(), session.ID, &models.Message{
		Role: models.RoleAssistant, Content: "hello", InputTokens: 10, OutputTokens: 20,
	}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got, _ := s.GetSession(context.Background(), session.ID)
	if got.MessageCount != 2 {
		t.Fatalf("expected message_count 2, got %d", got.MessageCount)
	}
	if got.TotalInputTokens != 10 || got.TotalOutputTokens != 20 {
		t.Fatalf("unexpected token totals: %+v", got)
	}
}

func TestAppendMessageDoesNotAccumulateTokensForUserMessages(t *testing.T) {
	s := newTestService()
	session, _ := s.StartSession(context.Background(), "bot-1", "claude-x")

	s.AppendMessage(context.Background(), session.ID, &models.Message{
		Role: models.RoleUser, Content: "hi", InputTokens: 999,
	})

	got, _ := s.GetSession(context.Background(), session.ID)
	if got.TotalInputTokens != 0 {
		t.Fatalf("expected user messages not to contribute to token totals, got %d", got.TotalInputTokens)
	}
}

func TestHistoryReturnsPersistedMessages(t *testing.T) {
	s := newTestService()
	session, _ := s.StartSession(context.Background(), "bot-1", "claude-x")
	s.AppendMessage(context.Background(), session.ID, &models.Message{Role: models.RoleUser, Content: "hi"})

	history, err := s.History(context.Background(), session.ID, 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(history) != 1 || history[0].Content != "hi" {
		t.Fatalf("unexpected history: %+v", history)
	}
}

func TestMemoryOperationsDegradeGracefullyWhenMemoryUnconfigured(t *testing.T) {
	s := newTestService()

	if entries := s.LoadMemories(context.Background(), "bot-1"); entries != nil {
		t.Fatalf("expected nil/empty entries when memory is unconfigured, got %+v", entries)
	}
	if results := s.RecallMemories(context.Background(), "bot-1", "anything"); results != nil {
		t.Fatalf("expected nil/empty results when memory is unconfigured, got %+v", results)
	}
	if n := s.ExtractAndStore(context.Background(), "bot-1", nil); n != 0 {
		t.Fatalf("expected 0 extracted facts when extractor is unconfigured, got %d", n)
	}
	if n := s.ReembedStale(context.Background(), "bot-1", nil); n != 0 {
		t.Fatalf("expected 0 reembedded entries when extractor is unconfigured, got %d", n)
	}
}
