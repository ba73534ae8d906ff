package secretchain

import (
	"context"
	"testing"

	"github.com/boternity/boternity/pkg/models"
)

// mockProvider is a simple in-memory Provider stand-in used to exercise
// Service's precedence and degradation rules without touching SQLite.
type mockProvider struct {
	name     models.SecretProviderName
	writable bool
	values   map[string]string // key is "scopeString|key"
}

func newMockProvider(name models.SecretProviderName, writable bool) *mockProvider {
	return &mockProvider{name: name, writable: writable, values: make(map[string]string)}
}

func (m *mockProvider) withValue(key string, scope models.SecretScope, value string) *mockProvider {
	m.values[scope.String()+"|"+key] = value
	return m
}

func (m *mockProvider) Name() models.SecretProviderName { return m.name }

func (m *mockProvider) Get(_ context.Context, key string, scope models.SecretScope) (string, bool, error) {
	v, ok := m.values[scope.String()+"|"+key]
	return v, ok, nil
}

func (m *mockProvider) Set(_ context.Context, key, value string, scope models.SecretScope) error {
	if !m.writable {
		return ErrReadOnly
	}
	m.values[scope.String()+"|"+key] = value
	return nil
}

func (m *mockProvider) Delete(_ context.Context, key string, scope models.SecretScope) error {
	k := scope.String() + "|" + key
	if _, ok := m.values[k]; !ok {
		return ErrNotFound
	}
	delete(m.values, k)
	return nil
}

func (m *mockProvider) List(_ context.Context, scope models.SecretScope) ([]models.SecretEntry, error) {
	var entries []models.SecretEntry
	prefix := scope.String() + "|"
	for k := range m.values {
		if len(k) > len(prefix) && k[:len(prefix)] == prefix {
			entries = append(entries, models.SecretEntry{Key: k[len(prefix):], Provider: m.name, Scope: scope})
		}
	}
	return entries, nil
}

func TestGetPrefersEnvOverVault(t *testing.T) {
	env := newMockProvider(models.SecretProviderEnv, false).withValue("API_KEY", models.GlobalScope, "env-value")
	vault := newMockProvider(models.SecretProviderVault, true).withValue("API_KEY", models.GlobalScope, "vault-value")

	s := NewService(env, vault)
	v, ok, err := s.Get(context.Background(), "API_KEY", models.GlobalScope)
	if err != nil || !ok || v != "env-value" {
		t.Fatalf("expected env-value, got %q ok=%v err=%v", v, ok, err)
	}
}

func TestGetFallsBackWhenEnvMissing(t *testing.T) {
	env := newMockProvider(models.SecretProviderEnv, false)
	vault := newMockProvider(models.SecretProviderVault, true).withValue("API_KEY", models.GlobalScope, "vault-value")

	s := NewService(env, vault)
	v, ok, err := s.Get(context.Background(), "API_KEY", models.GlobalScope)
	if err != nil || !ok || v != "vault-value" {
		t.Fatalf("expected vault-value, got %q ok=%v err=%v", v, ok, err)
	}
}

func TestGetBotScopeFallsBackToGlobal(t *testing.T) {
	botScope := models.BotScope("bot-1")
	vault := newMockProvider(models.SecretProviderVault, true).withValue("API_KEY", models.GlobalScope, "global-value")

	s := NewService(vault)
	v, ok, err := s.Get(context.Background(), "API_KEY", botScope)
	if err != nil || !ok || v != "global-value" {
		t.Fatalf("expected global-value, got %q ok=%v err=%v", v, ok, err)
	}
}

func TestGetBotScopePrefersBotOverGlobal(t *testing.T) {
	botScope := models.BotScope("bot-1")
	vault := newMockProvider(models.SecretProviderVault, true).
		withValue("API_KEY", models.GlobalScope, "global-value").
		withValue("API_KEY", botScope, "bot-value")

	s := NewService(vault)
	v, ok, err := s.Get(context.Background(), "API_KEY", botScope)
	if err != nil || !ok || v != "bot-value" {
		t.Fatalf("expected bot-value, got %q ok=%v err=%v", v, ok, err)
	}
}

func TestSetSkipsReadOnlyProvider(t *testing.T) {
	env := newMockProvider(models.SecretProviderEnv, false)
	vault := newMockProvider(models.SecretProviderVault, true)

	s := NewService(env, vault)
	if err := s.Set(context.Background(), "NEW_KEY", "value", models.GlobalScope); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	v, ok, _ := vault.Get(context.Background(), "NEW_KEY", models.GlobalScope)
	if !ok || v != "value" {
		t.Fatalf("expected vault to hold the write, got %q ok=%v", v, ok)
	}
}

func TestSetFailsWhenNoWritableProvider(t *testing.T) {
	env := newMockProvider(models.SecretProviderEnv, false)
	s := NewService(env)
	if err := s.Set(context.Background(), "KEY", "value", models.GlobalScope); err == nil {
		t.Fatal("expected error when no provider is writable")
	}
}

func TestDeleteNonexistentReturnsNotFound(t *testing.T) {
	vault := newMockProvider(models.SecretProviderVault, true)
	s := NewService(vault)
	if err := s.Delete(context.Background(), "NONEXISTENT", models.GlobalScope); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestListDeduplicatesPreservingPrecedence(t *testing.T) {
	p1 := newMockProvider("p1", false).
		withValue("KEY_A", models.GlobalScope, "v1").
		withValue("KEY_B", models.GlobalScope, "v2")
	p2 := newMockProvider("p2", true).
		withValue("KEY_B", models.GlobalScope, "v3").
		withValue("KEY_C", models.GlobalScope, "v4")

	s := NewService(p1, p2)
	entries, err := s.List(context.Background(), models.GlobalScope)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("expected 3 unique keys, got %d: %+v", len(entries), entries)
	}
}

func TestMaskSecret(t *testing.T) {
	cases := map[string]string{
		"sk-abcdefghijklmnop": "****mnop",
		"abc":                 "****",
		"abcd":                "****",
		"abcde":               "****bcde",
		"":                    "****",
	}
	for in, want := range cases {
		if got := MaskSecret(in); got != want {
			t.Errorf("MaskSecret(%q) = %q, want %q", in, got, want)
		}
	}
}
