package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/boternity/boternity/internal/memory/backend"
	"github.com/boternity/boternity/internal/providers"
	"github.com/boternity/boternity/pkg/models"
)

type fakeExtractionProvider struct {
	text string
	err  error
}

func (f *fakeExtractionProvider) Name() string { return "fake" }
func (f *fakeExtractionProvider) Complete(ctx context.Context, req *providers.Request) (*providers.Response, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &providers.Response{Text: f.text}, nil
}
func (f *fakeExtractionProvider) Stream(ctx context.Context, req *providers.Request) (<-chan *providers.Chunk, error) {
	return nil, errors.New("not implemented")
}
func (f *fakeExtractionProvider) CountTokens(s string) int            { return len(s) / 4 }
func (f *fakeExtractionProvider) Models() []providers.ModelInfo { return nil }

func TestExtractParsesWellFormedJSON(t *testing.T) {
	e := NewExtractor(nil, &fakeExtractionProvider{text: `[
		{"fact": "prefers dark mode", "category": "preference", "importance": 3},
		{"fact": "works at Acme", "category": "fact", "importance": 4}
	]`}, ExtractionConfig{}, nil)

	entries := e.Extract(context.Background(), "bot-1", nil)
	if len(entries) != 2 {
		t.Fatalf("got %d entries, want 2", len(entries))
	}
	if entries[0].Category != "preference" || entries[0].Importance != 3 {
		t.Fatalf("unexpected entry: %+v", entries[0])
	}
	if entries[0].BotID != "bot-1" {
		t.Fatalf("BotID not propagated: %+v", entries[0])
	}
}

func TestExtractToleratesMarkdownFence(t *testing.T) {
	e := NewExtractor(nil, &fakeExtractionProvider{text: "```json\n[{\"fact\": \"likes tea\", \"category\": \"preference\", \"importance\": 2}]\n```"}, ExtractionConfig{}, nil)

	entries := e.Extract(context.Background(), "bot-1", nil)
	if len(entries) != 1 || entries[0].Content != "likes tea" {
		t.Fatalf("unexpected entries: %+v", entries)
	}
}

func TestExtractDropsUnknownCategory(t *testing.T) {
	e := NewExtractor(nil, &fakeExtractionProvider{text: `[
		{"fact": "good fact", "category": "fact", "importance": 3},
		{"fact": "bad category fact", "category": "mood", "importance": 3}
	]`}, ExtractionConfig{}, nil)

	entries := e.Extract(context.Background(), "bot-1", nil)
	if len(entries) != 1 {
		t.Fatalf("got %d entries, want 1 (unknown category dropped)", len(entries))
	}
	if entries[0].Content != "good fact" {
		t.Fatalf("unexpected surviving entry: %+v", entries[0])
	}
}

func TestExtractClampsImportance(t *testing.T) {
	e := NewExtractor(nil, &fakeExtractionProvider{text: `[
		{"fact": "too high", "category": "fact", "importance": 99},
		{"fact": "too low", "category": "fact", "importance": -5}
	]`}, ExtractionConfig{}, nil)

	entries := e.Extract(context.Background(), "bot-1", nil)
	if len(entries) != 2 {
		t.Fatalf("got %d entries, want 2", len(entries))
	}
	if entries[0].Importance != 5 {
		t.Fatalf("Importance = %d, want clamped to 5", entries[0].Importance)
	}
	if entries[1].Importance != 1 {
		t.Fatalf("Importance = %d, want clamped to 1", entries[1].Importance)
	}
}

func TestExtractReturnsEmptyOnParseFailure(t *testing.T) {
	e := NewExtractor(nil, &fakeExtractionProvider{text: "not json at all"}, ExtractionConfig{}, nil)

	entries := e.Extract(context.Background(), "bot-1", nil)
	if entries != nil {
		t.Fatalf("expected nil entries on parse failure, got %+v", entries)
	}
}

func TestExtractReturnsEmptyOnProviderError(t *testing.T) {
	e := NewExtractor(nil, &fakeExtractionProvider{err: errors.New("provider down")}, ExtractionConfig{}, nil)

	entries := e.Extract(context.Background(), "bot-1", nil)
	if entries != nil {
		t.Fatalf("expected nil entries on provider error, got %+v", entries)
	}
}

// fakeBackend is an in-memory backend.Backend for exercising dedup/recall
// without a real vector store.
type fakeBackend struct {
	entries []*models.MemoryEntry
}

func cosineSim(a, b []float32) float32 {
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return float32(dot / (sqrt(na) * sqrt(nb)))
}

func sqrt(x float64) float64 {
	if x == 0 {
		return 0
	}
	z := x
	for i := 0; i < 30; i++ {
		z -= (z*z - x) / (2 * z)
	}
	return z
}

func (b *fakeBackend) Index(ctx context.Context, entries []*models.MemoryEntry) error {
	for _, e := range entries {
		replaced := false
		for i, existing := range b.entries {
			if existing.ID == e.ID {
				b.entries[i] = e
				replaced = true
				break
			}
		}
		if !replaced {
			b.entries = append(b.entries, e)
		}
	}
	return nil
}

func (b *fakeBackend) Search(ctx context.Context, embedding []float32, opts *backend.SearchOptions) ([]*models.SearchResult, error) {
	var out []*models.SearchResult
	for _, e := range b.entries {
		if opts.ScopeID != "" && e.BotID != opts.ScopeID {
			continue
		}
		score := cosineSim(embedding, e.Embedding)
		if score < opts.Threshold {
			continue
		}
		out = append(out, &models.SearchResult{Entry: e, Score: score})
	}
	if opts.Limit > 0 && len(out) > opts.Limit {
		out = out[:opts.Limit]
	}
	return out, nil
}

func (b *fakeBackend) Delete(ctx context.Context, ids []string) error { return nil }
func (b *fakeBackend) Count(ctx context.Context, scope models.MemoryScope, scopeID string) (int64, error) {
	return int64(len(b.entries)), nil
}
func (b *fakeBackend) Compact(ctx context.Context) error { return nil }
func (b *fakeBackend) Close() error                      { return nil }

// fakeEmbedder returns a fixed vector per input text, looked up by exact
// string match, so tests can control similarity deterministically.
type fakeEmbedder struct {
	vectors map[string][]float32
	model   string
}

func (f *fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if v, ok := f.vectors[text]; ok {
		return v, nil
	}
	return []float32{1, 0, 0}, nil
}
func (f *fakeEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v, _ := f.Embed(ctx, t)
		out[i] = v
	}
	return out, nil
}
func (f *fakeEmbedder) Name() string      { return "fake" }
func (f *fakeEmbedder) Dimension() int    { return 3 }
func (f *fakeEmbedder) MaxBatchSize() int { return 100 }

func newTestManager(fb *fakeBackend, fe *fakeEmbedder) *Manager {
	return &Manager{
		backend:  fb,
		embedder: fe,
		config: &Config{
			Dimension: 3,
			Embeddings: EmbeddingsConfig{
				Model: fe.model,
			},
			Indexing: IndexingConfig{MinContentLength: 1, BatchSize: 10},
			Search:   SearchConfig{DefaultLimit: 10, DefaultThreshold: 0.3, DefaultScope: "session"},
		},
		cache: newEmbeddingCache(10),
	}
}

func TestStoreDedupedSkipsNearDuplicate(t *testing.T) {
	fb := &fakeBackend{}
	fe := &fakeEmbedder{model: "embed-v1", vectors: map[string][]float32{
		"likes coffee":        {1, 0, 0},
		"really likes coffee": {0.99, 0.01, 0},
	}}
	mgr := newTestManager(fb, fe)
	ex := NewExtractor(mgr, &fakeExtractionProvider{}, ExtractionConfig{DedupDistance: 0.15}, nil)

	first := []*models.MemoryEntry{{ID: "a", BotID: "bot-1", Content: "likes coffee"}}
	stored, err := ex.StoreDeduped(context.Background(), first)
	if err != nil || stored != 1 {
		t.Fatalf("first store: stored=%d err=%v", stored, err)
	}

	second := []*models.MemoryEntry{{ID: "b", BotID: "bot-1", Content: "really likes coffee"}}
	stored, err = ex.StoreDeduped(context.Background(), second)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if stored != 0 {
		t.Fatalf("expected near-duplicate to be skipped, stored=%d", stored)
	}
	if len(fb.entries) != 1 {
		t.Fatalf("expected only 1 stored entry, got %d", len(fb.entries))
	}
}

func TestStoreDedupedKeepsDistinctFacts(t *testing.T) {
	fb := &fakeBackend{}
	fe := &fakeEmbedder{model: "embed-v1", vectors: map[string][]float32{
		"likes coffee": {1, 0, 0},
		"hates cilantro": {0, 1, 0},
	}}
	mgr := newTestManager(fb, fe)
	ex := NewExtractor(mgr, &fakeExtractionProvider{}, ExtractionConfig{DedupDistance: 0.15}, nil)

	entries := []*models.MemoryEntry{
		{ID: "a", BotID: "bot-1", Content: "likes coffee"},
		{ID: "b", BotID: "bot-1", Content: "hates cilantro"},
	}
	stored, err := ex.StoreDeduped(context.Background(), entries)
	if err != nil || stored != 2 {
		t.Fatalf("stored=%d err=%v, want 2", stored, err)
	}
}

func TestRecallReturnsWithinThreshold(t *testing.T) {
	fb := &fakeBackend{entries: []*models.MemoryEntry{
		{ID: "a", BotID: "bot-1", Content: "likes coffee", Embedding: []float32{1, 0, 0}},
		{ID: "b", BotID: "bot-1", Content: "unrelated", Embedding: []float32{0, 1, 0}},
	}}
	fe := &fakeEmbedder{model: "embed-v1", vectors: map[string][]float32{
		"what coffee do I like": {1, 0, 0},
	}}
	mgr := newTestManager(fb, fe)
	ex := NewExtractor(mgr, &fakeExtractionProvider{}, ExtractionConfig{RecallThreshold: 0.5}, nil)

	results, err := ex.Recall(context.Background(), "bot-1", "what coffee do I like")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(results) != 1 || results[0].Entry.ID != "a" {
		t.Fatalf("unexpected recall results: %+v", results)
	}
}

type fakeLister struct {
	entries []*models.MemoryEntry
}

func (f *fakeLister) ListMemoryEntries(ctx context.Context, botID string) ([]*models.MemoryEntry, error) {
	return f.entries, nil
}

func TestReembedStaleUpdatesOnlyOldModelEntries(t *testing.T) {
	fb := &fakeBackend{}
	fe := &fakeEmbedder{model: "embed-v2", vectors: map[string][]float32{
		"old fact": {0.5, 0.5, 0},
	}}
	mgr := newTestManager(fb, fe)
	ex := NewExtractor(mgr, &fakeExtractionProvider{}, ExtractionConfig{}, nil)

	lister := &fakeLister{entries: []*models.MemoryEntry{
		{ID: "old", Content: "old fact", EmbeddingModel: "embed-v1"},
		{ID: "current", Content: "current fact", EmbeddingModel: "embed-v2"},
	}}

	count, err := ex.ReembedStale(context.Background(), "bot-1", lister)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if count != 1 {
		t.Fatalf("count = %d, want 1", count)
	}
	if len(fb.entries) != 1 || fb.entries[0].ID != "old" {
		t.Fatalf("expected only the stale entry to be re-indexed, got %+v", fb.entries)
	}
	if fb.entries[0].EmbeddingModel != "embed-v2" {
		t.Fatalf("stale entry not updated to current model: %+v", fb.entries[0])
	}
}

func TestReembedStaleNoopWhenNothingStale(t *testing.T) {
	fb := &fakeBackend{}
	fe := &fakeEmbedder{model: "embed-v2"}
	mgr := newTestManager(fb, fe)
	ex := NewExtractor(mgr, &fakeExtractionProvider{}, ExtractionConfig{}, nil)

	lister := &fakeLister{entries: []*models.MemoryEntry{
		{ID: "current", Content: "current fact", EmbeddingModel: "embed-v2"},
	}}

	count, err := ex.ReembedStale(context.Background(), "bot-1", lister)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if count != 0 {
		t.Fatalf("count = %d, want 0", count)
	}
	if len(fb.entries) != 0 {
		t.Fatalf("expected no writes when nothing is stale, got %+v", fb.entries)
	}
}
