// Package chat implements the chat service orchestrator from spec.md
// §4.13: session CRUD, message persistence with atomic counter
// increments, and memory load/embed/recall/reembed with graceful
// degradation — a memory-layer failure must never break a conversation.
package chat

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/boternity/boternity/internal/memory"
	"github.com/boternity/boternity/internal/providers"
	"github.com/boternity/boternity/internal/sessions"
	"github.com/boternity/boternity/pkg/models"
)

// Service is the chat orchestrator. Grounded on internal/sessions.Store
// (CRUD + message history, reused directly) composed with
// internal/memory.Manager and internal/memory.Extractor for the memory
// side, which spec.md §4.13 requires to degrade gracefully rather than
// propagate errors into the conversation path.
type Service struct {
	store     sessions.Store
	mem       *memory.Manager
	extractor *memory.Extractor
	logger    *slog.Logger
}

// New creates a Service. mem and extractor may be nil, in which case every
// memory operation below degrades to its empty result (useful for a
// memory-less deployment or for tests that only exercise session CRUD).
func New(store sessions.Store, mem *memory.Manager, extractor *memory.Extractor, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: store, mem: mem, extractor: extractor, logger: logger.With("component", "chat")}
}

// StartSession creates a new Active chat session for botID.
func (s *Service) StartSession(ctx context.Context, botID, model string) (*models.Session, error) {
	now := time.Now()
	session := &models.Session{
		ID:        uuid.NewString(),
		BotID:     botID,
		AgentID:   botID,
		Status:    models.SessionActive,
		Model:     model,
		StartedAt: now,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.store.Create(ctx, session); err != nil {
		return nil, err
	}
	return session, nil
}

// GetSession returns a session by ID.
func (s *Service) GetSession(ctx context.Context, id string) (*models.Session, error) {
	return s.store.Get(ctx, id)
}

// ListSessions lists sessions for a bot.
func (s *Service) ListSessions(ctx context.Context, botID string, opts sessions.ListOptions) ([]*models.Session, error) {
	return s.store.List(ctx, botID, opts)
}

// UpdateTitle sets a session's title.
func (s *Service) UpdateTitle(ctx context.Context, sessionID, title string) error {
	session, err := s.store.Get(ctx, sessionID)
	if err != nil {
		return err
	}
	session.Title = title
	return s.store.Update(ctx, session)
}

// EndSession marks a session Completed and stamps EndedAt.
func (s *Service) EndSession(ctx context.Context, sessionID string) error {
	session, err := s.store.Get(ctx, sessionID)
	if err != nil {
		return err
	}
	session.Status = models.SessionCompleted
	session.EndedAt = time.Now()
	return s.store.Update(ctx, session)
}

// AppendMessage persists msg, increments the session's message count and,
// for assistant messages, accumulates token totals onto the session row atomically
// with the insert (both writes happen under the same call before
// returning, so a caller never observes a message persisted without its
// counters updated).
func (s *Service) AppendMessage(ctx context.Context, sessionID string, msg *models.Message) error {
	if err := s.store.AppendMessage(ctx, sessionID, msg); err != nil {
		return err
	}

	session, err := s.store.Get(ctx, sessionID)
	if err != nil {
		return err
	}
	session.MessageCount++
	if msg.Role == models.RoleAssistant {
		session.TotalInputTokens += msg.InputTokens
		session.TotalOutputTokens += msg.OutputTokens
	}
	return s.store.Update(ctx, session)
}

// History returns the last limit messages for a session.
func (s *Service) History(ctx context.Context, sessionID string, limit int) ([]*models.Message, error) {
	return s.store.GetHistory(ctx, sessionID, limit)
}

// LoadMemories returns botID's stored memories for session-scoped prompt
// assembly. On any backend failure it logs and returns an empty slice
// rather than an error, per spec.md §4.13.
func (s *Service) LoadMemories(ctx context.Context, botID string) []*models.MemoryEntry {
	if s.mem == nil {
		return nil
	}
	resp, err := s.mem.Search(ctx, &models.SearchRequest{Scope: models.ScopeAgent, ScopeID: botID})
	if err != nil {
		s.logger.Warn("memory load failed, degrading to empty", "bot_id", botID, "error", err)
		return nil
	}
	entries := make([]*models.MemoryEntry, 0, len(resp.Results))
	for _, r := range resp.Results {
		if r.Entry != nil {
			entries = append(entries, r.Entry)
		}
	}
	return entries
}

// RecallMemories embeds userText and returns the top relevant memories
// for botID. On any embedding or search failure it logs and returns an
// empty slice rather than an error.
func (s *Service) RecallMemories(ctx context.Context, botID, userText string) []*models.SearchResult {
	if s.extractor == nil {
		return nil
	}
	results, err := s.extractor.Recall(ctx, botID, userText)
	if err != nil {
		s.logger.Warn("memory recall failed, degrading to empty", "bot_id", botID, "error", err)
		return nil
	}
	return results
}

// ExtractAndStore runs fact extraction over conversation and stores any
// deduped facts for botID. Failures are logged and swallowed: extraction
// is best-effort and must never interrupt the conversation turn that
// triggered it.
func (s *Service) ExtractAndStore(ctx context.Context, botID string, conversation []*models.Message) int {
	if s.extractor == nil {
		return 0
	}
	providerMessages := make([]providers.Message, 0, len(conversation))
	for _, m := range conversation {
		providerMessages = append(providerMessages, providers.Message{Role: providers.Role(m.Role), Content: m.Content})
	}
	entries := s.extractor.Extract(ctx, botID, providerMessages)
	if len(entries) == 0 {
		return 0
	}
	stored, err := s.extractor.StoreDeduped(ctx, entries)
	if err != nil {
		s.logger.Warn("memory extraction store failed, degrading", "bot_id", botID, "error", err)
		return 0
	}
	return stored
}

// ReembedStale re-embeds botID's memories whose embedding model no longer
// matches the manager's active model. Failures are logged and degrade to
// zero rather than propagating, consistent with spec.md §4.13's
// graceful-degradation rule for every memory operation.
func (s *Service) ReembedStale(ctx context.Context, botID string, lister memory.EntryLister) int {
	if s.extractor == nil {
		return 0
	}
	n, err := s.extractor.ReembedStale(ctx, botID, lister)
	if err != nil {
		s.logger.Warn("memory reembed failed, degrading", "bot_id", botID, "error", err)
		return 0
	}
	return n
}
