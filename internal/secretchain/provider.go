// Package secretchain implements the ordered secret provider chain from
// spec.md §4.14. Bot-scoped lookups try every provider at bot scope before
// falling back to global scope across every provider; global lookups take
// the first provider holding the key (env vars before the vault).
package secretchain

import (
	"context"
	"errors"

	"github.com/boternity/boternity/pkg/models"
)

// ErrReadOnly is returned by Set/Delete on a provider that cannot write
// (the env provider). The chain treats it as "try the next provider".
var ErrReadOnly = errors.New("secretchain: provider is read-only")

// ErrNotFound is returned by Delete when the key is absent from a provider.
var ErrNotFound = errors.New("secretchain: key not found")

// Provider is a single secret backend. Implementations must be safe for
// concurrent use.
type Provider interface {
	Name() models.SecretProviderName
	Get(ctx context.Context, key string, scope models.SecretScope) (string, bool, error)
	Set(ctx context.Context, key, value string, scope models.SecretScope) error
	Delete(ctx context.Context, key string, scope models.SecretScope) error
	List(ctx context.Context, scope models.SecretScope) ([]models.SecretEntry, error)
}
