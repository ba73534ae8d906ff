package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/boternity/boternity/internal/memory/backend"
	"github.com/boternity/boternity/internal/providers"
	"github.com/boternity/boternity/pkg/models"
	"github.com/google/uuid"
)

// extractionPrompt is the fixed instruction sent with every conversation at
// temperature 0.0. The model must return a JSON array and nothing else.
const extractionPrompt = `You extract durable facts worth remembering about the user from a conversation.

Return a JSON array of objects, each with exactly these fields:
  "fact": one sentence stating the fact
  "category": one of "preference", "fact", "decision", "context", "correction"
  "importance": an integer from 1 (trivial) to 5 (critical)

Only extract facts that would still matter in a future conversation. If
nothing is worth remembering, return an empty array. Return only the JSON
array, no surrounding text.`

// ExtractionConfig configures the LLM-driven fact extractor.
type ExtractionConfig struct {
	// Model is the completion model used for extraction calls.
	Model string `yaml:"model"`

	// DedupDistance is the cosine-distance threshold below which a new fact
	// is considered a duplicate of an existing one and skipped (default 0.15).
	DedupDistance float32 `yaml:"dedup_distance"`

	// RecallLimit is the default top-K for recall (default 10).
	RecallLimit int `yaml:"recall_limit"`

	// RecallThreshold is the minimum similarity for a recalled memory
	// (default 0.3).
	RecallThreshold float32 `yaml:"recall_threshold"`
}

func (c *ExtractionConfig) withDefaults() {
	if c.DedupDistance <= 0 {
		c.DedupDistance = 0.15
	}
	if c.RecallLimit <= 0 {
		c.RecallLimit = 10
	}
	if c.RecallThreshold <= 0 {
		c.RecallThreshold = 0.3
	}
}

// Extractor turns a conversation into durable memory entries via an LLM
// call, deduplicates against existing entries for the same bot, and serves
// similarity-based recall for a new user message.
//
// Grounded on internal/memory/hooks.go's MemoryHooks (auto-capture/auto-recall
// wiring, config-with-defaults shape), generalized per spec.md §4.8: the
// regex-trigger heuristic (shouldCapture/detectCategory) is replaced with an
// LLM extraction call returning structured {fact, category, importance}.
type Extractor struct {
	manager  *Manager
	provider providers.Provider
	cfg      ExtractionConfig
	logger   *slog.Logger
}

// NewExtractor builds an Extractor over a Manager (storage) and a Provider
// (the LLM used for extraction calls).
func NewExtractor(manager *Manager, provider providers.Provider, cfg ExtractionConfig, logger *slog.Logger) *Extractor {
	cfg.withDefaults()
	if logger == nil {
		logger = slog.Default()
	}
	return &Extractor{
		manager:  manager,
		provider: provider,
		cfg:      cfg,
		logger:   logger.With("component", "memory-extractor"),
	}
}

// extractedFact is the wire shape of one element of the model's JSON array.
type extractedFact struct {
	Fact       string `json:"fact"`
	Category   string `json:"category"`
	Importance int    `json:"importance"`
}

// Extract sends the conversation to the LLM at temperature 0.0 and parses
// its JSON response into memory entries ready to store. A parse failure
// returns an empty slice (not an error) so the caller can queue the
// conversation for a later retry rather than losing the turn entirely.
func (e *Extractor) Extract(ctx context.Context, botID string, conversation []providers.Message) []*models.MemoryEntry {
	req := &providers.Request{
		Model:       e.cfg.Model,
		System:      extractionPrompt,
		Messages:    conversation,
		Temperature: 0.0,
	}

	resp, err := e.provider.Complete(ctx, req)
	if err != nil {
		e.logger.Warn("extraction call failed", "error", err, "bot_id", botID)
		return nil
	}

	facts, err := parseExtractedFacts(resp.Text)
	if err != nil {
		e.logger.Warn("extraction response did not parse as JSON", "error", err, "bot_id", botID)
		return nil
	}

	entries := make([]*models.MemoryEntry, 0, len(facts))
	now := time.Now()
	for _, f := range facts {
		if strings.TrimSpace(f.Fact) == "" {
			continue
		}
		if !models.ValidMemoryCategory(f.Category) {
			e.logger.Warn("dropping extracted fact with unknown category", "category", f.Category, "bot_id", botID)
			continue
		}
		importance := f.Importance
		if importance < 1 {
			importance = 1
		}
		if importance > 5 {
			importance = 5
		}
		entries = append(entries, &models.MemoryEntry{
			ID:         uuid.New().String(),
			BotID:      botID,
			Content:    f.Fact,
			Category:   f.Category,
			Importance: importance,
			Metadata: models.MemoryMetadata{
				Source: "extraction",
				Tags:   []string{f.Category},
			},
			CreatedAt: now,
			UpdatedAt: now,
		})
	}
	return entries
}

// parseExtractedFacts tolerates a model wrapping its JSON array in a
// markdown fence, which providers occasionally do despite instructions.
func parseExtractedFacts(text string) ([]extractedFact, error) {
	trimmed := strings.TrimSpace(text)
	trimmed = strings.TrimPrefix(trimmed, "```json")
	trimmed = strings.TrimPrefix(trimmed, "```")
	trimmed = strings.TrimSuffix(trimmed, "```")
	trimmed = strings.TrimSpace(trimmed)

	var facts []extractedFact
	if err := json.Unmarshal([]byte(trimmed), &facts); err != nil {
		return nil, fmt.Errorf("parse extraction response: %w", err)
	}
	return facts, nil
}

// StoreDeduped embeds and stores each entry unless an existing entry for the
// same bot lies within DedupDistance (cosine distance) of it, in which case
// the entry is skipped. Returns the number actually stored.
func (e *Extractor) StoreDeduped(ctx context.Context, entries []*models.MemoryEntry) (int, error) {
	stored := 0
	similarityFloor := 1 - e.cfg.DedupDistance

	for _, entry := range entries {
		vec, err := e.manager.EmbedOne(ctx, entry.Content)
		if err != nil {
			return stored, fmt.Errorf("embed fact for dedup check: %w", err)
		}
		entry.Embedding = vec
		entry.EmbeddingModel = e.manager.EmbeddingModel()

		existing, err := e.manager.SearchByEmbedding(ctx, vec, &backend.SearchOptions{
			Scope:     models.ScopeAgent,
			ScopeID:   entry.BotID,
			Limit:     1,
			Threshold: similarityFloor,
		})
		if err != nil {
			return stored, fmt.Errorf("dedup search: %w", err)
		}
		if len(existing) > 0 {
			e.logger.Debug("skipping duplicate memory", "bot_id", entry.BotID, "content", truncate(entry.Content, 50))
			continue
		}

		if err := e.manager.Index(ctx, []*models.MemoryEntry{entry}); err != nil {
			return stored, fmt.Errorf("index deduped entry: %w", err)
		}
		stored++
	}
	return stored, nil
}

// Recall embeds the user's message and returns the top-K memories for the
// bot within RecallThreshold similarity, for placement into the agent
// context's recalled_memories.
func (e *Extractor) Recall(ctx context.Context, botID, userText string) ([]*models.SearchResult, error) {
	vec, err := e.manager.EmbedOne(ctx, userText)
	if err != nil {
		return nil, fmt.Errorf("embed recall query: %w", err)
	}
	results, err := e.manager.SearchByEmbedding(ctx, vec, &backend.SearchOptions{
		Scope:     models.ScopeAgent,
		ScopeID:   botID,
		Limit:     e.cfg.RecallLimit,
		Threshold: e.cfg.RecallThreshold,
	})
	if err != nil {
		return nil, fmt.Errorf("recall search: %w", err)
	}
	return results, nil
}

// EntryLister supplies the authoritative set of memory entries for a bot.
// The vector backend has no general listing primitive (it is optimized for
// similarity search, not enumeration); the relational store that owns the
// canonical rows (per spec.md §3's "stored both in the relational table and
// ... the vector index") is expected to implement this.
type EntryLister interface {
	ListMemoryEntries(ctx context.Context, botID string) ([]*models.MemoryEntry, error)
}

// ReembedStale re-embeds and re-indexes every entry for botID whose
// EmbeddingModel differs from the manager's currently configured model.
// Intended to run once at startup. Returns the count of entries re-embedded.
func (e *Extractor) ReembedStale(ctx context.Context, botID string, lister EntryLister) (int, error) {
	currentModel := e.manager.EmbeddingModel()

	entries, err := lister.ListMemoryEntries(ctx, botID)
	if err != nil {
		return 0, fmt.Errorf("list entries for re-embed: %w", err)
	}

	var stale []*models.MemoryEntry
	for _, entry := range entries {
		if entry.EmbeddingModel != currentModel {
			stale = append(stale, entry)
		}
	}
	if len(stale) == 0 {
		return 0, nil
	}

	for _, entry := range stale {
		vec, err := e.manager.EmbedOne(ctx, entry.Content)
		if err != nil {
			return 0, fmt.Errorf("re-embed entry %s: %w", entry.ID, err)
		}
		entry.Embedding = vec
		entry.EmbeddingModel = currentModel
		entry.UpdatedAt = time.Now()
	}

	if err := e.manager.Index(ctx, stale); err != nil {
		return 0, fmt.Errorf("re-index stale entries: %w", err)
	}

	e.logger.Info("re-embedded stale memories", "bot_id", botID, "count", len(stale), "model", currentModel)
	return len(stale), nil
}
