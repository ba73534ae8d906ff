package secretchain

import (
	"context"
	"os"

	"github.com/boternity/boternity/pkg/models"
)

// EnvProvider reads secrets from process environment variables. It is
// read-only and only answers global-scope lookups — env vars have no
// natural per-bot scoping, so bot-scoped gets fall through to the next
// provider rather than matching by accident.
type EnvProvider struct{}

// NewEnvProvider creates an EnvProvider.
func NewEnvProvider() *EnvProvider {
	return &EnvProvider{}
}

func (p *EnvProvider) Name() models.SecretProviderName { return models.SecretProviderEnv }

func (p *EnvProvider) Get(_ context.Context, key string, scope models.SecretScope) (string, bool, error) {
	if scope.Kind != models.SecretScopeGlobal {
		return "", false, nil
	}
	v, ok := os.LookupEnv(key)
	return v, ok, nil
}

func (p *EnvProvider) Set(_ context.Context, _, _ string, _ models.SecretScope) error {
	return ErrReadOnly
}

func (p *EnvProvider) Delete(_ context.Context, _ string, _ models.SecretScope) error {
	return ErrReadOnly
}

// List returns nothing: enumerating the whole process environment as
// secrets would leak unrelated variables, and the env provider has no
// allowlist of keys it owns.
func (p *EnvProvider) List(_ context.Context, _ models.SecretScope) ([]models.SecretEntry, error) {
	return nil, nil
}
