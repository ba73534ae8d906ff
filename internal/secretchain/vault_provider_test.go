package secretchain

import (
	"context"
	"testing"

	"github.com/boternity/boternity/pkg/models"
)

func newTestVaultProvider(t *testing.T) *VaultProvider {
	t.Helper()
	store, err := NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	crypto, err := NewVaultCrypto(testKey())
	if err != nil {
		t.Fatalf("new crypto: %v", err)
	}
	return NewVaultProvider(store, crypto)
}

func TestVaultProviderRoundTrip(t *testing.T) {
	p := newTestVaultProvider(t)
	ctx := context.Background()

	if err := p.Set(ctx, "API_KEY", "sk-secret-value-123", models.GlobalScope); err != nil {
		t.Fatalf("set: %v", err)
	}
	v, ok, err := p.Get(ctx, "API_KEY", models.GlobalScope)
	if err != nil || !ok || v != "sk-secret-value-123" {
		t.Fatalf("got %q ok=%v err=%v", v, ok, err)
	}
}

func TestVaultProviderMissingKey(t *testing.T) {
	p := newTestVaultProvider(t)
	_, ok, err := p.Get(context.Background(), "NONEXISTENT", models.GlobalScope)
	if err != nil || ok {
		t.Fatalf("expected not-found, got ok=%v err=%v", ok, err)
	}
}

func TestVaultProviderOverwrite(t *testing.T) {
	p := newTestVaultProvider(t)
	ctx := context.Background()
	p.Set(ctx, "KEY", "value-1", models.GlobalScope)
	p.Set(ctx, "KEY", "value-2", models.GlobalScope)

	v, _, _ := p.Get(ctx, "KEY", models.GlobalScope)
	if v != "value-2" {
		t.Fatalf("expected value-2, got %q", v)
	}
}

func TestVaultProviderScopedIsolation(t *testing.T) {
	p := newTestVaultProvider(t)
	ctx := context.Background()
	botScope := models.BotScope("bot-1")

	p.Set(ctx, "BOT_KEY", "bot-secret", botScope)

	v, ok, _ := p.Get(ctx, "BOT_KEY", botScope)
	if !ok || v != "bot-secret" {
		t.Fatalf("expected bot-secret in bot scope, got %q ok=%v", v, ok)
	}
	_, ok, _ = p.Get(ctx, "BOT_KEY", models.GlobalScope)
	if ok {
		t.Fatal("expected bot-scoped key not to leak into global scope")
	}
}

func TestVaultProviderDelete(t *testing.T) {
	p := newTestVaultProvider(t)
	ctx := context.Background()
	p.Set(ctx, "TO_DELETE", "val", models.GlobalScope)

	if err := p.Delete(ctx, "TO_DELETE", models.GlobalScope); err != nil {
		t.Fatalf("delete: %v", err)
	}
	_, ok, _ := p.Get(ctx, "TO_DELETE", models.GlobalScope)
	if ok {
		t.Fatal("expected key to be gone after delete")
	}
}
