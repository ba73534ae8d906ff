package secretchain

import (
	"context"
	"errors"
	"fmt"

	"github.com/boternity/boternity/pkg/models"
)

// ErrNoWritableProvider is returned by Service.Set when every provider in
// the chain rejected the write (all read-only).
var ErrNoWritableProvider = errors.New("secretchain: no writable provider available")

// Service resolves secrets through an ordered chain of providers,
// implementing spec.md §4.14's precedence: bot-scoped entries rank above
// global ones, and within a scope earlier providers rank above later ones.
type Service struct {
	providers []Provider
}

// NewService builds a Service from providers in precedence order
// (highest priority first).
func NewService(providers ...Provider) *Service {
	return &Service{providers: providers}
}

// Get resolves key under scope. For a Bot scope, every provider is tried
// at bot scope first, then every provider is tried at global scope. The
// env provider only answers global lookups, so in a bot-scoped lookup a
// per-bot vault entry wins over an env var of the same name; for a Global
// scope the first provider holding the key (env before vault) wins.
func (s *Service) Get(ctx context.Context, key string, scope models.SecretScope) (string, bool, error) {
	if scope.Kind == models.SecretScopeBot {
		for _, p := range s.providers {
			v, ok, err := p.Get(ctx, key, scope)
			if err != nil {
				return "", false, fmt.Errorf("secretchain: %s: %w", p.Name(), err)
			}
			if ok {
				return v, true, nil
			}
		}
		for _, p := range s.providers {
			v, ok, err := p.Get(ctx, key, models.GlobalScope)
			if err != nil {
				return "", false, fmt.Errorf("secretchain: %s: %w", p.Name(), err)
			}
			if ok {
				return v, true, nil
			}
		}
		return "", false, nil
	}

	for _, p := range s.providers {
		v, ok, err := p.Get(ctx, key, scope)
		if err != nil {
			return "", false, fmt.Errorf("secretchain: %s: %w", p.Name(), err)
		}
		if ok {
			return v, true, nil
		}
	}
	return "", false, nil
}

// Set writes to the first provider that accepts the write. Read-only
// providers (ErrReadOnly) are skipped silently, matching the next
// provider in the chain.
func (s *Service) Set(ctx context.Context, key, value string, scope models.SecretScope) error {
	for _, p := range s.providers {
		err := p.Set(ctx, key, value, scope)
		if err == nil {
			return nil
		}
		if errors.Is(err, ErrReadOnly) {
			continue
		}
		return fmt.Errorf("secretchain: %s: %w", p.Name(), err)
	}
	return ErrNoWritableProvider
}

// Delete removes key from every provider that has it. It succeeds if at
// least one provider deleted the key, and returns ErrNotFound only if
// none did.
func (s *Service) Delete(ctx context.Context, key string, scope models.SecretScope) error {
	deleted := false
	for _, p := range s.providers {
		err := p.Delete(ctx, key, scope)
		switch {
		case err == nil:
			deleted = true
		case errors.Is(err, ErrNotFound), errors.Is(err, ErrReadOnly):
			// not present in this provider, or provider can't delete at all
		default:
			// provider unavailable; keep trying the rest of the chain
		}
	}
	if !deleted {
		return ErrNotFound
	}
	return nil
}

// List aggregates entries from every provider, deduplicated by key with
// the first (highest-precedence) provider's entry winning.
func (s *Service) List(ctx context.Context, scope models.SecretScope) ([]models.SecretEntry, error) {
	seen := make(map[string]bool)
	var entries []models.SecretEntry
	for _, p := range s.providers {
		provEntries, err := p.List(ctx, scope)
		if err != nil {
			continue // provider unavailable
		}
		for _, e := range provEntries {
			if seen[e.Key] {
				continue
			}
			seen[e.Key] = true
			entries = append(entries, e)
		}
	}
	return entries, nil
}

// MaskSecret shows only the last 4 characters of a value, for safe
// display in logs or UIs. Values of 4 characters or fewer are fully
// masked.
func MaskSecret(value string) string {
	if len(value) <= 4 {
		return "****"
	}
	return "****" + value[len(value)-4:]
}
